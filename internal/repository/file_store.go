package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"camwatch/internal/model"
)

// FileStore keeps the user table in a JSON file on disk. It is the
// default backend on a Pi without Postgres. All mutations happen under
// one mutex and are flushed to disk before returning, so the
// check-then-insert of Create is atomic by construction.
type FileStore struct {
	path string

	mu    sync.RWMutex
	users map[string]model.User // keyed by ID
}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("users file path is required")
	}

	s := &FileStore{
		path:  path,
		users: map[string]model.User{},
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *FileStore) FindByUsername(_ context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}

	return model.User{}, model.ErrUserNotFound
}

func (s *FileStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}

	return u, nil
}

func (s *FileStore) List(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}

	sortUsers(out)
	return out, nil
}

func (s *FileStore) Create(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.usernameTakenLocked(user.Username, "") {
		return model.ErrUsernameTaken
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	s.users[user.ID] = user
	if err := s.saveLocked(); err != nil {
		delete(s.users, user.ID)
		return err
	}

	return nil
}

func (s *FileStore) Update(_ context.Context, id string, upd model.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	if u.Protected {
		return model.ErrProtected
	}

	prev := u
	if upd.Username != nil {
		if s.usernameTakenLocked(*upd.Username, id) {
			return model.ErrUsernameTaken
		}
		u.Username = *upd.Username
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}

	s.users[id] = u
	if err := s.saveLocked(); err != nil {
		// Memory must not keep a mutation the disk rejected.
		s.users[id] = prev
		return err
	}

	return nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	if u.Protected {
		return model.ErrProtected
	}

	delete(s.users, id)
	if err := s.saveLocked(); err != nil {
		s.users[id] = u
		return err
	}

	return nil
}

func (s *FileStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}

	prev := u
	u.LastLogin = &at
	s.users[id] = u
	if err := s.saveLocked(); err != nil {
		s.users[id] = prev
		return err
	}

	return nil
}

func (s *FileStore) Seed(_ context.Context, admins []SeedAdmin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]model.User, len(s.users))
	for id, u := range s.users {
		prev[id] = u
	}

	for _, admin := range admins {
		existing, ok := s.findByUsernameLocked(admin.Username)
		if ok {
			existing.PasswordHash = admin.PasswordHash
			existing.Role = model.RoleAdmin
			existing.Protected = true
			s.users[existing.ID] = existing
			continue
		}

		id := uuid.NewString()
		s.users[id] = model.User{
			ID:           id,
			Username:     admin.Username,
			PasswordHash: admin.PasswordHash,
			Role:         model.RoleAdmin,
			Protected:    true,
			CreatedAt:    time.Now().UTC(),
		}
	}

	if err := s.saveLocked(); err != nil {
		s.users = prev
		return err
	}

	return nil
}

func (s *FileStore) usernameTakenLocked(username string, excludeID string) bool {
	for id, u := range s.users {
		if id != excludeID && u.Username == username {
			return true
		}
	}
	return false
}

func (s *FileStore) findByUsernameLocked(username string) (model.User, bool) {
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return model.User{}, false
}

func (s *FileStore) load() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return err
	}

	for _, u := range users {
		s.users[u.ID] = u
	}

	return nil
}

func (s *FileStore) saveLocked() error {
	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sortUsers(users)

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}

func sortUsers(users []model.User) {
	// Stable listing order for the admin panel: oldest first.
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}
