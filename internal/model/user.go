package model

import "time"

type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	Role         string     `json:"role"`
	Protected    bool       `json:"protected"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserInfo is the admin-facing view of a user record, without the hash.
type UserInfo struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	IsAdmin   bool       `json:"is_admin"`
	Protected bool       `json:"protected"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func (u User) Info() UserInfo {
	return UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin(),
		Protected: u.Protected,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// UserUpdate carries the mutable fields of an admin update.
// Nil means "leave unchanged". PasswordHash is already hashed by the
// caller; the store never sees plaintext.
type UserUpdate struct {
	Username     *string
	PasswordHash *string
}

type AuthClaims struct {
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero for unbounded admin sessions
}

func (c *AuthClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
