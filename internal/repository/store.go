package repository

import (
	"context"
	"time"

	"camwatch/internal/model"
)

// CredentialStore is the flat user table behind the authenticator and
// the admin panel. Implementations must make the duplicate-username
// check and the insert atomic, and must refuse to touch protected
// (seed admin) records no matter who asks.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByID(ctx context.Context, id string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Create(ctx context.Context, user model.User) error
	Update(ctx context.Context, id string, upd model.UserUpdate) error
	Delete(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	Seed(ctx context.Context, admins []SeedAdmin) error
}

// SeedAdmin describes one of the fixed admin accounts created at
// startup. Seeding upserts: an existing record gets its hash refreshed
// and the protected flag forced on.
type SeedAdmin struct {
	Username     string
	PasswordHash string
}
