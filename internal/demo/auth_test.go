package demo

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/pai-progress/internal/auth"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	f, err := LoadFixture("")
	if err != nil {
		t.Fatalf("LoadFixture() error = %v", err)
	}
	a, err := NewAuth(f)
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	a.cost = bcrypt.MinCost
	t.Cleanup(a.Close)
	return a
}

func TestAuth_SignIn(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	events, cancel := a.Subscribe()
	defer cancel()

	s, err := a.SignIn(ctx, "DEMO@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if s.User.ID != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("User.ID = %q", s.User.ID)
	}
	if s.Expired(a.now()) {
		t.Error("fresh session should not be expired")
	}

	e := <-events
	if e.Type != auth.EventSignedIn || e.Session.AccessToken != s.AccessToken {
		t.Errorf("event = %+v", e)
	}

	u, err := a.GetUser(ctx, s.AccessToken)
	if err != nil || u.Email != "demo@uni.edu.pe" {
		t.Errorf("GetUser() = %+v, %v", u, err)
	}
}

func TestAuth_SignIn_WrongPassword(t *testing.T) {
	a := newTestAuth(t)

	_, err := a.SignIn(context.Background(), "demo@uni.edu.pe", "nope")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("error = %v, want ErrInvalidCredentials", err)
	}
	_, err = a.SignIn(context.Background(), "ghost@uni.edu.pe", "demo1234")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuth_SignUp(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	r, err := a.SignUp(ctx, "nueva@uni.edu.pe", "secreto1", map[string]any{"full_name": "Nueva"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if r.ConfirmationPending() {
		t.Error("demo accounts should be confirmed immediately")
	}
	if r.User.ID == "" {
		t.Error("new account should get an id")
	}

	if _, err := a.SignUp(ctx, "nueva@uni.edu.pe", "secreto1", nil); !errors.Is(err, auth.ErrUserExists) {
		t.Errorf("duplicate SignUp() error = %v, want ErrUserExists", err)
	}
	var apiErr *auth.APIError
	if _, err := a.SignUp(ctx, "not-an-email", "secreto1", nil); !errors.As(err, &apiErr) {
		t.Errorf("invalid email error = %v, want APIError", err)
	}
	if _, err := a.SignIn(ctx, "nueva@uni.edu.pe", "secreto1"); err != nil {
		t.Errorf("SignIn() after SignUp() error = %v", err)
	}
}

func TestAuth_RefreshAndSignOut(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	s, err := a.SignIn(ctx, "demo@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	r, err := a.Refresh(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if r.AccessToken == s.AccessToken {
		t.Error("Refresh() should issue a new access token")
	}
	if _, err := a.Refresh(ctx, s.RefreshToken); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("reused refresh token error = %v, want ErrNoSession", err)
	}

	if err := a.SignOut(ctx, r.AccessToken); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, err := a.GetUser(ctx, r.AccessToken); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("GetUser() after SignOut() error = %v, want ErrNoSession", err)
	}
}
