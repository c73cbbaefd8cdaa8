// Package auth signs identities in and out of the hosted auth service and
// broadcasts session changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials means the email/password pair was rejected.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrEmailNotConfirmed means the account exists but its email is unconfirmed.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrNoSession means the token is missing, expired or revoked.
	ErrNoSession = errors.New("no active session")
	// ErrUserExists means sign-up was attempted with a registered email.
	ErrUserExists = errors.New("user already registered")
)

// APIError is a provider failure that maps to none of the sentinel errors.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth api error (status %d): %s", e.Status, e.Message)
}

// User is an authenticated identity.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// Session is a signed-in identity with its tokens.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expiry returns when the access token stops being valid. It prefers the
// expires_at field and falls back to the token's exp claim. The zero time
// means unknown.
func (s *Session) Expiry() time.Time {
	if s == nil {
		return time.Time{}
	}
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	if claims, err := ParseClaims(s.AccessToken); err == nil {
		return claims.ExpiresAt
	}
	return time.Time{}
}

// Expired reports whether the access token is past its expiry at now.
// Sessions with unknown expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	exp := s.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}

// SignUpResult is the outcome of registration. Session is nil while the
// email address awaits confirmation.
type SignUpResult struct {
	User    User
	Session *Session
}

// ConfirmationPending reports whether the new account must confirm its email
// before signing in.
func (r *SignUpResult) ConfirmationPending() bool {
	return r.Session == nil
}

// Provider is the interface auth backends must implement. Successful
// sign-in, sign-out and refresh are published on the provider's event stream.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	GetUser(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Subscribe() (<-chan Event, func())
}
