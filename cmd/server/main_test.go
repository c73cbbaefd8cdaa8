package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/session"
)

func demoConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"LEARN_SUPABASE_URL", "LEARN_SUPABASE_ANON_KEY", "LEARN_SESSION_STORE", "LEARN_AI_GOOGLE_API_KEY", "LEARN_AI_SUMMARY_DAILY_TOKENS"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestNewApp_DemoMode(t *testing.T) {
	a, err := newApp(context.Background(), demoConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	if !a.demo {
		t.Fatal("app should run on demo data without a remote store")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.sessions.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", "", http.StatusOK},
		{"signed out dashboard", http.MethodGet, "/api/dashboard", "", http.StatusUnauthorized},
		{"login", http.MethodPost, "/api/auth/login", `{"email":"demo@uni.edu.pe","password":"demo1234"}`, http.StatusOK},
		{"signed in dashboard", http.MethodGet, "/api/dashboard", "", http.StatusOK},
		{"summary without provider", http.MethodPost, "/api/topics/t3/summary", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestNewApp_SummaryFallbackWithoutProvider(t *testing.T) {
	a, err := newApp(context.Background(), demoConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.sessions.SignIn(context.Background(), "demo@uni.edu.pe", "demo1234"); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/topics/t3/summary", nil))

	var got struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Summary != "Hubo un error al conectar con la IA de Gemini." {
		t.Errorf("summary = %q, want the connection fallback", got.Summary)
	}
}

func TestNewTokenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SessionConfig
		want    string
		wantErr bool
	}{
		{"memory", config.SessionConfig{Store: "memory"}, "*session.MemoryTokenStore", false},
		{"file", config.SessionConfig{Store: "file", File: filepath.Join(t.TempDir(), "s.json")}, "*session.FileTokenStore", false},
		{"redis without cache", config.SessionConfig{Store: "redis"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := newTokenStore(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newTokenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch ts.(type) {
			case *session.MemoryTokenStore:
				if tt.want != "*session.MemoryTokenStore" {
					t.Errorf("got memory store, want %s", tt.want)
				}
			case *session.FileTokenStore:
				if tt.want != "*session.FileTokenStore" {
					t.Errorf("got file store, want %s", tt.want)
				}
			default:
				t.Errorf("unexpected store %T", ts)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantDebug bool
		wantJSON  bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, true},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, true, false},
		{"unknown level", config.LogConfig{Level: "loud", Format: "json"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)

			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			logger.Info("hello", "k", "v")
			if isJSON := strings.HasPrefix(buf.String(), "{"); isJSON != tt.wantJSON {
				t.Errorf("output %q, want JSON %v", buf.String(), tt.wantJSON)
			}
		})
	}
}
