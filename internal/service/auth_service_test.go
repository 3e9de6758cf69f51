package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"camwatch/internal/model"
	"camwatch/internal/repository"
)

func newTestStore(t *testing.T) *repository.FileStore {
	t.Helper()
	store, err := repository.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return store
}

func newTestAuth(t *testing.T, store repository.CredentialStore, userTTL, adminTTL time.Duration) *AuthService {
	t.Helper()
	svc, err := NewAuthService(store, "test-secret", userTTL, adminTTL, nil)
	require.NoError(t, err)
	return svc
}

func TestAuthServiceRequiresSecret(t *testing.T) {
	_, err := NewAuthService(newTestStore(t), "  ", time.Hour, 0, nil)
	require.Error(t, err)
}

func TestLoginValidateRoundtrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(t, newTestStore(t), 2*time.Hour, 0)

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	session, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, model.RoleUser, session.Role)
	require.Equal(t, int64(7200), session.ExpiresIn)

	claims, err := svc.ValidateToken(session.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, model.RoleUser, claims.Role)
	require.False(t, claims.ExpiresAt.IsZero())
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	_, err := svc.Login(context.Background(), "nobody", "whatever")
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, model.ErrUsernameTaken)
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	_, err := svc.Register(ctx, "   ", "pw")
	require.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = svc.Register(ctx, "bob", "")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRegisterConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, "carol", "pw")
		}(i)
	}
	wg.Wait()

	var winners, losers int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		default:
			require.ErrorIs(t, err, model.ErrUsernameTaken)
			losers++
		}
	}
	require.Equal(t, 1, winners)
	require.Equal(t, attempts-1, losers)
}

func TestTokenExpiresAtBoundary(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	_, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	session, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	// Just before expiry the token still validates.
	svc.now = func() time.Time { return issued.Add(time.Hour - time.Second) }
	_, err = svc.ValidateToken(session.Token)
	require.NoError(t, err)

	// Exactly at expiry fails closed.
	svc.now = func() time.Time { return issued.Add(time.Hour) }
	_, err = svc.ValidateToken(session.Token)
	require.ErrorIs(t, err, model.ErrTokenExpired)

	// Past expiry stays expired, not merely invalid.
	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(session.Token)
	require.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestAdminTokenNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("adminpw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Seed(ctx, []repository.SeedAdmin{{Username: "Admin_G", PasswordHash: string(hash)}}))

	svc := newTestAuth(t, store, time.Hour, 0)

	session, err := svc.Login(ctx, "Admin_G", "adminpw")
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, session.Role)
	require.Zero(t, session.ExpiresIn)

	// Even far in the future the token stays valid.
	svc.now = func() time.Time { return time.Now().UTC().Add(1000 * time.Hour) }
	claims, err := svc.ValidateToken(session.Token)
	require.NoError(t, err)
	require.True(t, claims.ExpiresAt.IsZero())
}

func TestAdminTokenBoundedWhenConfigured(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("adminpw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Seed(ctx, []repository.SeedAdmin{{Username: "Admin_D", PasswordHash: string(hash)}}))

	svc := newTestAuth(t, store, time.Hour, 30*time.Minute)

	session, err := svc.Login(ctx, "Admin_D", "adminpw")
	require.NoError(t, err)
	require.Equal(t, int64(1800), session.ExpiresIn)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := newTestAuth(t, newTestStore(t), time.Hour, 0)

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.ValidateToken(tok)
		require.ErrorIs(t, err, model.ErrTokenInvalid)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	issuer := newTestAuth(t, store, time.Hour, 0)
	_, err := issuer.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	session, err := issuer.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	verifier, err := NewAuthService(store, "other-secret", time.Hour, 0, nil)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(session.Token)
	require.ErrorIs(t, err, model.ErrTokenInvalid)
}
