package demo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/pai-progress/internal/auth"
)

const demoTokenTTL = time.Hour

type account struct {
	user auth.User
	hash []byte
}

// Auth is an in-memory auth provider. Sign-up confirms accounts immediately.
type Auth struct {
	bus  *auth.Bus
	now  func() time.Time
	cost int

	mu       sync.Mutex
	accounts map[string]*account // by lower-cased email
	access   map[string]string   // access token -> user id
	refresh  map[string]string   // refresh token -> user id
}

// NewAuth creates a provider holding the fixture's accounts.
func NewAuth(f *Fixture) (*Auth, error) {
	a := &Auth{
		bus:      auth.NewBus(),
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
		accounts: make(map[string]*account),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
	}
	for _, acc := range f.Accounts {
		if _, err := a.register(acc.ID, acc.Email, acc.Password, nil); err != nil {
			return nil, fmt.Errorf("fixture account %s: %w", acc.Email, err)
		}
	}
	return a, nil
}

// Subscribe returns the provider's session event stream.
func (a *Auth) Subscribe() (<-chan auth.Event, func()) {
	return a.bus.Subscribe()
}

// Close ends every subscription.
func (a *Auth) Close() {
	a.bus.Close()
}

func (a *Auth) SignIn(_ context.Context, email, password string) (*auth.Session, error) {
	a.mu.Lock()
	acc, ok := a.accounts[strings.ToLower(email)]
	a.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return nil, fmt.Errorf("sign in: %w", auth.ErrInvalidCredentials)
	}

	s := a.issue(acc.user)
	a.bus.Publish(auth.Event{Type: auth.EventSignedIn, Session: s})
	return s, nil
}

func (a *Auth) SignUp(_ context.Context, email, password string, metadata map[string]any) (*auth.SignUpResult, error) {
	acc, err := a.register("", email, password, metadata)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	s := a.issue(acc.user)
	a.bus.Publish(auth.Event{Type: auth.EventSignedIn, Session: s})
	return &auth.SignUpResult{User: acc.user, Session: s}, nil
}

func (a *Auth) GetUser(_ context.Context, accessToken string) (*auth.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.access[accessToken]
	if !ok {
		return nil, fmt.Errorf("get user: %w", auth.ErrNoSession)
	}
	for _, acc := range a.accounts {
		if acc.user.ID == id {
			u := acc.user
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user: %w", auth.ErrNoSession)
}

func (a *Auth) Refresh(_ context.Context, refreshToken string) (*auth.Session, error) {
	a.mu.Lock()
	id, ok := a.refresh[refreshToken]
	delete(a.refresh, refreshToken)
	var user auth.User
	for _, acc := range a.accounts {
		if acc.user.ID == id {
			user = acc.user
		}
	}
	a.mu.Unlock()
	if !ok || user.ID == "" {
		return nil, fmt.Errorf("refresh session: %w", auth.ErrNoSession)
	}

	s := a.issue(user)
	a.bus.Publish(auth.Event{Type: auth.EventTokenRefreshed, Session: s})
	return s, nil
}

func (a *Auth) SignOut(_ context.Context, accessToken string) error {
	a.mu.Lock()
	if id, ok := a.access[accessToken]; ok {
		delete(a.access, accessToken)
		for rt, uid := range a.refresh {
			if uid == id {
				delete(a.refresh, rt)
			}
		}
	}
	a.mu.Unlock()

	a.bus.Publish(auth.Event{Type: auth.EventSignedOut})
	return nil
}

func (a *Auth) register(id, email, password string, metadata map[string]any) (*account, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, &auth.APIError{Status: 400, Code: "validation_failed", Message: "invalid email address"}
	}
	if len(password) < 6 {
		return nil, &auth.APIError{Status: 422, Code: "weak_password", Message: "password should be at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	confirmed := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := a.accounts[key]; exists {
		return nil, auth.ErrUserExists
	}
	acc := &account{
		user: auth.User{ID: id, Email: email, EmailConfirmedAt: &confirmed, Metadata: metadata},
		hash: hash,
	}
	a.accounts[key] = acc
	return acc, nil
}

func (a *Auth) issue(u auth.User) *auth.Session {
	s := &auth.Session{
		AccessToken:  "demo-" + uuid.NewString(),
		RefreshToken: uuid.NewString(),
		TokenType:    "bearer",
		ExpiresIn:    int(demoTokenTTL.Seconds()),
		ExpiresAt:    a.now().Add(demoTokenTTL).Unix(),
		User:         u,
	}
	a.mu.Lock()
	a.access[s.AccessToken] = u.ID
	a.refresh[s.RefreshToken] = u.ID
	a.mu.Unlock()
	return s
}
