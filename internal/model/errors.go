package model

import "errors"

var (
	// Credential store errors
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrProtected     = errors.New("account is protected")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrForbidden          = errors.New("forbidden")

	// Signaling errors
	ErrSignalingFailed = errors.New("signaling failed")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
