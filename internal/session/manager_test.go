package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/auth"
	"github.com/p-n-ai/pai-progress/internal/demo"
	"github.com/p-n-ai/pai-progress/internal/session"
)

const demoUserID = "00000000-0000-0000-0000-000000000001"

func newDemoAuth(t *testing.T) *demo.Auth {
	t.Helper()
	f, err := demo.LoadFixture("")
	if err != nil {
		t.Fatalf("LoadFixture() error = %v", err)
	}
	a, err := demo.NewAuth(f)
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func startManager(t *testing.T, cfg session.Config) *session.Manager {
	t.Helper()
	m, err := session.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.Start(context.Background())
	t.Cleanup(m.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	return m
}

func waitFor(t *testing.T, events <-chan auth.Event, want auth.EventType) auth.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
			return auth.Event{}
		}
	}
}

func TestNew_RequiresProvider(t *testing.T) {
	if _, err := session.New(session.Config{}); err == nil {
		t.Fatal("New() should fail without a provider")
	}
}

func TestManager_StartsSignedOut(t *testing.T) {
	m := startManager(t, session.Config{Provider: newDemoAuth(t)})

	if m.Loading() {
		t.Error("Loading() should be false after WaitReady")
	}
	if m.Current() != nil {
		t.Errorf("Current() = %+v, want nil", m.Current())
	}
	if got := m.UserID(context.Background()); got != session.FallbackUserID {
		t.Errorf("UserID() = %q, want fallback", got)
	}
	if got := m.AccessToken(context.Background()); got != "" {
		t.Errorf("AccessToken() = %q, want empty", got)
	}
}

func TestManager_LoadingUntilStarted(t *testing.T) {
	m, err := session.New(session.Config{Provider: newDemoAuth(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if !m.Loading() {
		t.Error("Loading() should be true before Start")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() before Start = %v, want deadline exceeded", err)
	}
}

func TestManager_SignInAndOut(t *testing.T) {
	tokens := session.NewMemoryTokenStore()
	m := startManager(t, session.Config{Provider: newDemoAuth(t), Tokens: tokens})
	ctx := context.Background()

	events, cancel := m.Subscribe()
	defer cancel()

	s, err := m.SignIn(ctx, "demo@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	waitFor(t, events, auth.EventSignedIn)

	if got := m.UserID(ctx); got != demoUserID {
		t.Errorf("UserID() = %q, want %q", got, demoUserID)
	}
	if got := m.AccessToken(ctx); got != s.AccessToken {
		t.Errorf("AccessToken() = %q, want %q", got, s.AccessToken)
	}
	if stored, _ := tokens.Load(ctx); stored == nil || stored.AccessToken != s.AccessToken {
		t.Errorf("stored session = %+v, want the signed-in session", stored)
	}

	if err := m.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	waitFor(t, events, auth.EventSignedOut)
	if m.Current() != nil {
		t.Error("Current() should be nil after SignOut")
	}
	if stored, _ := tokens.Load(ctx); stored != nil {
		t.Errorf("stored session = %+v, want cleared", stored)
	}
}

func TestManager_SignInFailureKeepsState(t *testing.T) {
	m := startManager(t, session.Config{Provider: newDemoAuth(t)})

	_, err := m.SignIn(context.Background(), "demo@uni.edu.pe", "wrong")
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("SignIn() error = %v, want ErrInvalidCredentials", err)
	}
	if m.Current() != nil {
		t.Error("failed sign in should not set a session")
	}
}

func TestManager_RestoresStoredSession(t *testing.T) {
	provider := newDemoAuth(t)
	s, err := provider.SignIn(context.Background(), "demo@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatal(err)
	}
	tokens := session.NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), s)

	m := startManager(t, session.Config{Provider: provider, Tokens: tokens})

	cur := m.Current()
	if cur == nil || cur.AccessToken != s.AccessToken {
		t.Fatalf("Current() = %+v, want restored session", cur)
	}
	if cur.User.Email != "demo@uni.edu.pe" {
		t.Errorf("restored user = %+v", cur.User)
	}
}

func TestManager_RefreshesExpiredStoredSession(t *testing.T) {
	provider := newDemoAuth(t)
	s, err := provider.SignIn(context.Background(), "demo@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatal(err)
	}
	s.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	tokens := session.NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), s)

	m := startManager(t, session.Config{Provider: provider, Tokens: tokens})

	cur := m.Current()
	if cur == nil {
		t.Fatal("Current() = nil, want refreshed session")
	}
	if cur.AccessToken == s.AccessToken {
		t.Error("expired session should have been refreshed")
	}
}

func TestManager_DropsRevokedStoredSession(t *testing.T) {
	provider := newDemoAuth(t)
	s, err := provider.SignIn(context.Background(), "demo@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatal(err)
	}
	_ = provider.SignOut(context.Background(), s.AccessToken)

	tokens := session.NewMemoryTokenStore()
	_ = tokens.Save(context.Background(), s)

	m := startManager(t, session.Config{Provider: provider, Tokens: tokens})

	if m.Current() != nil {
		t.Errorf("Current() = %+v, want nil for a revoked session", m.Current())
	}
	if stored, _ := tokens.Load(context.Background()); stored != nil {
		t.Error("revoked session should be removed from the token store")
	}
}

func TestManager_RefreshesBeforeExpiry(t *testing.T) {
	provider := newDemoAuth(t)
	// Demo tokens live an hour, so this schedules the refresh within two seconds.
	m := startManager(t, session.Config{Provider: provider, RefreshMargin: time.Hour - 2*time.Second})

	events, cancel := m.Subscribe()
	defer cancel()

	s, err := m.SignIn(context.Background(), "demo@uni.edu.pe", "demo1234")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	e := waitFor(t, events, auth.EventTokenRefreshed)
	if e.Session == nil || e.Session.AccessToken == s.AccessToken {
		t.Errorf("refreshed event = %+v, want a new token", e)
	}
}

type failingSignOut struct {
	*demo.Auth
}

func (f failingSignOut) SignOut(context.Context, string) error {
	return errors.New("network down")
}

func TestManager_SignOutIsBestEffort(t *testing.T) {
	m := startManager(t, session.Config{Provider: failingSignOut{newDemoAuth(t)}})
	ctx := context.Background()

	if _, err := m.SignIn(ctx, "demo@uni.edu.pe", "demo1234"); err != nil {
		t.Fatal(err)
	}
	if err := m.SignOut(ctx); err == nil {
		t.Error("SignOut() should report the remote failure")
	}
	if m.Current() != nil {
		t.Error("local session should be cleared even when remote sign out fails")
	}
}

func TestManager_SignUp(t *testing.T) {
	m := startManager(t, session.Config{Provider: newDemoAuth(t)})

	r, err := m.SignUp(context.Background(), "ana@uni.edu.pe", "secreto1", nil)
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if got := m.UserID(context.Background()); got != r.User.ID {
		t.Errorf("UserID() = %q, want new account %q", got, r.User.ID)
	}
}
