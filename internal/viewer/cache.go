package viewer

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// CachedSession is the on-disk analog of the browser's localStorage
// token: restored once at startup and re-validated before being
// trusted.
type CachedSession struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"` // zero for unbounded admin sessions
}

type SessionCache struct {
	path string
}

func NewSessionCache(path string) *SessionCache {
	return &SessionCache{path: path}
}

// Load returns the cached session if one exists and has not expired.
// A stale cache is deleted rather than returned, so an expired token
// can never sneak back into a live controller.
func (c *SessionCache) Load() (CachedSession, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return CachedSession{}, false
	}

	var session CachedSession
	if err := json.Unmarshal(data, &session); err != nil || session.Token == "" {
		c.Clear()
		return CachedSession{}, false
	}

	if !session.ExpiresAt.IsZero() && !time.Now().Before(session.ExpiresAt) {
		c.Clear()
		return CachedSession{}, false
	}

	return session, true
}

func (c *SessionCache) Save(session CachedSession) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0o600)
}

func (c *SessionCache) Clear() {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Best effort; a leftover cache is re-validated on next load.
		_ = err
	}
}
