package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GoTrueClient implements Provider against a Supabase auth (GoTrue) endpoint.
type GoTrueClient struct {
	baseURL string
	anonKey string
	client  *http.Client
	bus     *Bus
	now     func() time.Time
}

// GoTrueOption configures a GoTrueClient.
type GoTrueOption func(*GoTrueClient)

// WithGoTrueHTTPClient sets a custom HTTP client.
func WithGoTrueHTTPClient(client *http.Client) GoTrueOption {
	return func(c *GoTrueClient) {
		c.client = client
	}
}

// WithGoTrueBus publishes session events on bus instead of a private one.
func WithGoTrueBus(bus *Bus) GoTrueOption {
	return func(c *GoTrueClient) {
		c.bus = bus
	}
}

// NewGoTrueClient creates a client for the project at projectURL, e.g.
// https://abc.supabase.co. Requests go to {projectURL}/auth/v1.
func NewGoTrueClient(projectURL, anonKey string, opts ...GoTrueOption) *GoTrueClient {
	c := &GoTrueClient{
		baseURL: strings.TrimRight(projectURL, "/") + "/auth/v1",
		anonKey: anonKey,
		client:  http.DefaultClient,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = NewBus()
	}
	return c
}

// Subscribe returns the client's session event stream.
func (c *GoTrueClient) Subscribe() (<-chan Event, func()) {
	return c.bus.Subscribe()
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// signUpResponse is either a session (auto-confirm) or a bare user.
type signUpResponse struct {
	Session
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// errorResponse covers both the legacy OAuth-style and the current error bodies.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", passwordGrant{Email: email, Password: password}, &s); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	c.stamp(&s)
	c.bus.Publish(Event{Type: EventSignedIn, Session: &s})
	return &s, nil
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var r signUpResponse
	req := signUpRequest{Email: email, Password: password, Data: metadata}
	if err := c.do(ctx, http.MethodPost, "/signup", "", req, &r); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}

	if r.AccessToken == "" {
		return &SignUpResult{User: User{
			ID:               r.ID,
			Email:            r.Email,
			EmailConfirmedAt: r.EmailConfirmedAt,
			Metadata:         r.Metadata,
		}}, nil
	}

	s := r.Session
	c.stamp(&s)
	c.bus.Publish(Event{Type: EventSignedIn, Session: &s})
	return &SignUpResult{User: s.User, Session: &s}, nil
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (c *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", refreshGrant{RefreshToken: refreshToken}, &s); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	c.stamp(&s)
	c.bus.Publish(Event{Type: EventTokenRefreshed, Session: &s})
	return &s, nil
}

// SignOut revokes the session remotely. The signed-out event is published
// even when the remote call fails.
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	defer c.bus.Publish(Event{Type: EventSignedOut})
	if accessToken == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// HealthCheck probes the auth service's health endpoint.
func (c *GoTrueClient) HealthCheck(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// stamp fills ExpiresAt from ExpiresIn when the server omitted it.
func (c *GoTrueClient) stamp(s *Session) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
}

func (c *GoTrueClient) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	msg := firstNonEmpty(er.Msg, er.ErrorDescription, er.Message, er.Error, strings.TrimSpace(string(body)))
	code := firstNonEmpty(er.ErrorCode, er.Error)

	switch {
	case code == "invalid_credentials" || strings.EqualFold(msg, "Invalid login credentials"):
		return ErrInvalidCredentials
	case code == "email_not_confirmed" || strings.EqualFold(msg, "Email not confirmed"):
		return ErrEmailNotConfirmed
	case code == "user_already_exists" || strings.EqualFold(msg, "User already registered"):
		return ErrUserExists
	case status == http.StatusUnauthorized || code == "bad_jwt" || code == "session_not_found":
		return fmt.Errorf("%w: %s", ErrNoSession, msg)
	}
	return &APIError{Status: status, Code: code, Message: msg}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
