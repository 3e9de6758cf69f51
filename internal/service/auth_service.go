package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"camwatch/internal/event"
	"camwatch/internal/model"
	"camwatch/internal/repository"
)

const bcryptCost = 12

// dummyHash is compared against when the username does not exist, so a
// failed lookup costs the same as a failed password check.
var dummyHash = []byte("$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW")

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	store    repository.CredentialStore
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration // 0 means admin tokens carry no expiry
	bus      event.Bus

	now func() time.Time
}

func NewAuthService(store repository.CredentialStore, secret string, userTTL time.Duration, adminTTL time.Duration, bus event.Bus) (*AuthService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("signing secret is required")
	}

	return &AuthService{
		store:    store,
		secret:   []byte(secret),
		userTTL:  userTTL,
		adminTTL: adminTTL,
		bus:      bus,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (model.Session, error) {
	username = strings.TrimSpace(username)

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		// Burn a compare anyway to keep timing flat for unknown names.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.publish(event.TypeLoginFailed, username)
		return model.Session{}, model.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.publish(event.TypeLoginFailed, username)
		return model.Session{}, model.ErrInvalidCredentials
	}

	session, err := s.issueToken(user)
	if err != nil {
		return model.Session{}, err
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		slog.Warn("updating last_login", "user", user.Username, "error", err)
	}

	s.publish(event.TypeLoginSucceeded, user.Username)
	return session, nil
}

func (s *AuthService) Register(ctx context.Context, username string, password string) (model.UserInfo, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.UserInfo{}, model.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return model.UserInfo{}, err
	}

	user := model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		CreatedAt:    s.now(),
	}

	if err := s.store.Create(ctx, user); err != nil {
		return model.UserInfo{}, err
	}

	created, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return model.UserInfo{}, err
	}

	return created.Info(), nil
}

// ValidateToken checks signature and expiry. Expired and otherwise
// invalid tokens fail with distinct errors because the client reacts
// differently: expired forces logout, invalid is a hard reject.
func (s *AuthService) ValidateToken(tokenString string) (*model.AuthClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims tokenClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, model.ErrTokenInvalid
	}

	if claims.Subject == "" || claims.Role == "" {
		return nil, model.ErrTokenInvalid
	}

	out := &model.AuthClaims{
		Username: claims.Subject,
		Role:     claims.Role,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
		// exp == now fails closed.
		if !s.now().Before(out.ExpiresAt) {
			return nil, model.ErrTokenExpired
		}
	}

	return out, nil
}

func (s *AuthService) issueToken(user model.User) (model.Session, error) {
	now := s.now()

	ttl := s.userTTL
	if user.IsAdmin() {
		ttl = s.adminTTL
	}

	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.Username,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	var expiresIn int64
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
		expiresIn = int64(ttl.Seconds())
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return model.Session{}, err
	}

	return model.Session{Token: signed, Role: user.Role, ExpiresIn: expiresIn}, nil
}

func (s *AuthService) publish(t event.Type, actor string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: s.now().Format(time.RFC3339),
		Actor:     actor,
	})
}
