package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"camwatch/internal/model"
	"camwatch/internal/repository"
)

// UserService backs the admin panel. Protection of the seed admin
// accounts is enforced by the store, not here; this layer only shapes
// requests and hashes passwords.
type UserService struct {
	store repository.CredentialStore
}

func NewUserService(store repository.CredentialStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) List(ctx context.Context) ([]model.UserInfo, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, u.Info())
	}

	return out, nil
}

func (s *UserService) Update(ctx context.Context, req model.AdminUpdateRequest) error {
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)

	if req.ID == "" || (req.Username == "" && req.Password == "") {
		return model.ErrInvalidInput
	}

	var upd model.UserUpdate
	if req.Username != "" {
		upd.Username = &req.Username
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			return err
		}
		hashed := string(hash)
		upd.PasswordHash = &hashed
	}

	return s.store.Update(ctx, req.ID, upd)
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return model.ErrInvalidInput
	}

	return s.store.Delete(ctx, id)
}
