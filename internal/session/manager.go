// Package session holds the signed-in identity of the process. A Manager is
// created explicitly, started once and closed on shutdown; it follows the
// auth provider's session events and keeps the stored tokens fresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/pai-progress/internal/auth"
)

// FallbackUserID is the identity used for record queries while nobody is
// signed in. It matches the demo user seeded into the store.
const FallbackUserID = "00000000-0000-0000-0000-000000000001"

const (
	defaultRefreshMargin = time.Minute
	persistTimeout       = 5 * time.Second
)

// Config holds dependencies for a Manager.
type Config struct {
	Provider      auth.Provider
	Tokens        TokenStore       // defaults to a MemoryTokenStore
	RefreshMargin time.Duration    // refresh this long before expiry; defaults to one minute
	Now           func() time.Time // defaults to time.Now
}

// Manager tracks the current session. Loading is true until the stored
// session has been resolved or any session event has arrived.
type Manager struct {
	provider auth.Provider
	tokens   TokenStore
	margin   time.Duration
	now      func() time.Time
	bus      *auth.Bus

	mu           sync.RWMutex
	current      *auth.Session
	loading      bool
	refreshTimer *time.Timer
	ctx          context.Context
	cancel       context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	startOnce sync.Once
	closeOnce sync.Once
	persistMu sync.Mutex

	unsubscribe func()
	wg          sync.WaitGroup
}

// New creates a Manager. Call Start to begin tracking sessions.
func New(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: auth provider is required")
	}
	m := &Manager{
		provider: cfg.Provider,
		tokens:   cfg.Tokens,
		margin:   cfg.RefreshMargin,
		now:      cfg.Now,
		bus:      auth.NewBus(),
		loading:  true,
		ready:    make(chan struct{}),
	}
	if m.tokens == nil {
		m.tokens = NewMemoryTokenStore()
	}
	if m.margin <= 0 {
		m.margin = defaultRefreshMargin
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Start subscribes to the provider's session events and resolves the stored
// session in the background. Only the first call has an effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.ctx, m.cancel = context.WithCancel(ctx)
		m.mu.Unlock()

		events, unsubscribe := m.provider.Subscribe()
		m.unsubscribe = unsubscribe

		m.wg.Add(2)
		go m.listen(events)
		go m.resolveInitial()
	})
}

// Close stops background work and ends every subscription.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		if m.refreshTimer != nil {
			m.refreshTimer.Stop()
			m.refreshTimer = nil
		}
		m.mu.Unlock()

		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.wg.Wait()
		m.bus.Close()
	})
}

// Current returns a copy of the current session, or nil when signed out.
func (m *Manager) Current() *auth.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	c := *m.current
	return &c
}

// Loading reports whether the initial session resolution is still running.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// WaitReady blocks until loading has finished or ctx is done.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UserID returns the signed-in identity, or FallbackUserID.
func (m *Manager) UserID(context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.User.ID == "" {
		return FallbackUserID
	}
	return m.current.User.ID
}

// AccessToken returns the current bearer token, or "" when signed out.
func (m *Manager) AccessToken(context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// Subscribe returns session changes after the Manager has applied them.
func (m *Manager) Subscribe() (<-chan auth.Event, func()) {
	return m.bus.Subscribe()
}

// SignIn authenticates with email and password and makes the result current.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	s, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.apply(auth.Event{Type: auth.EventSignedIn, Session: s})
	return s, nil
}

// SignUp registers an account. When the provider signs the account in
// straight away the new session becomes current.
func (m *Manager) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.SignUpResult, error) {
	r, err := m.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}
	if r.Session != nil {
		m.apply(auth.Event{Type: auth.EventSignedIn, Session: r.Session})
	}
	return r, nil
}

// SignOut revokes the session remotely and clears it locally. The local
// session is cleared even when the remote call fails; that error is returned.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.provider.SignOut(ctx, m.AccessToken(ctx))
	if err != nil {
		slog.Warn("remote sign out failed, clearing local session", "error", err)
	}
	m.apply(auth.Event{Type: auth.EventSignedOut})
	return err
}

func (m *Manager) listen(events <-chan auth.Event) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.apply(e)
		}
	}
}

func (m *Manager) resolveInitial() {
	defer m.wg.Done()
	s, err := m.restore(m.ctx)
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		slog.Warn("failed to restore session", "error", err)
	}
	m.apply(auth.Event{Type: auth.EventInitialSession, Session: s})
}

// restore loads the stored session and checks it with the provider,
// refreshing it when the access token is expired or rejected. When the
// provider cannot be reached the stored session is kept.
func (m *Manager) restore(ctx context.Context) (*auth.Session, error) {
	s, err := m.tokens.Load(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		return m.refreshStored(ctx, s)
	}

	u, err := m.provider.GetUser(ctx, s.AccessToken)
	switch {
	case err == nil:
		s.User = *u
		return s, nil
	case errors.Is(err, auth.ErrNoSession):
		return m.refreshStored(ctx, s)
	default:
		return s, fmt.Errorf("verify stored session: %w", err)
	}
}

func (m *Manager) refreshStored(ctx context.Context, s *auth.Session) (*auth.Session, error) {
	r, err := m.provider.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if cerr := m.tokens.Clear(ctx); cerr != nil {
			slog.Warn("failed to clear stored session", "error", cerr)
		}
		return nil, fmt.Errorf("refresh stored session: %w", err)
	}
	return r, nil
}

// apply makes e's session current. Repeated delivery of the same session
// and an initial session arriving after another event are ignored.
func (m *Manager) apply(e auth.Event) {
	var s *auth.Session
	if e.Type != auth.EventSignedOut && e.Session != nil {
		c := *e.Session
		s = &c
	}

	m.mu.Lock()
	if !m.loading && (e.Type == auth.EventInitialSession || sameToken(m.current, s)) {
		m.mu.Unlock()
		return
	}
	m.current = s
	m.loading = false
	m.scheduleRefreshLocked(s)
	m.mu.Unlock()

	m.readyOnce.Do(func() { close(m.ready) })
	m.persist()

	slog.Info("session changed", "event", e.Type, "user_id", userIDOf(s))
	m.bus.Publish(auth.Event{Type: e.Type, Session: s, At: e.At})
}

// persist writes the current session to the token store.
func (m *Manager) persist() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if s := m.Current(); s != nil {
		err = m.tokens.Save(ctx, s)
	} else {
		err = m.tokens.Clear(ctx)
	}
	if err != nil {
		slog.Warn("failed to persist session", "error", err)
	}
}

func (m *Manager) scheduleRefreshLocked(s *auth.Session) {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if s == nil || s.RefreshToken == "" || m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	exp := s.Expiry()
	if exp.IsZero() {
		return
	}
	wait := max(exp.Sub(m.now())-m.margin, 0)
	token := s.RefreshToken
	m.refreshTimer = time.AfterFunc(wait, func() { m.refresh(token) })
}

func (m *Manager) refresh(refreshToken string) {
	m.mu.RLock()
	ctx := m.ctx
	m.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	s, err := m.provider.Refresh(ctx, refreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("session refresh failed", "error", err)
		if errors.Is(err, auth.ErrNoSession) {
			m.apply(auth.Event{Type: auth.EventSignedOut})
		}
		return
	}
	m.apply(auth.Event{Type: auth.EventTokenRefreshed, Session: s})
}

func sameToken(a, b *auth.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken
}

func userIDOf(s *auth.Session) string {
	if s == nil {
		return ""
	}
	return s.User.ID
}
