// Package httpapi serves the dashboard over HTTP: session endpoints, the
// course catalog, progress views and profile settings.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-progress/internal/auth"
	"github.com/p-n-ai/pai-progress/internal/dashboard"
	"github.com/p-n-ai/pai-progress/internal/platform/metrics"
	"github.com/p-n-ai/pai-progress/internal/store"
)

const (
	maxBodyBytes        = 1 << 20
	defaultReadyTimeout = 5 * time.Second
)

// Dashboard is the subset of the dashboard service the handlers use.
type Dashboard interface {
	ListCoursesWithEnrollmentStatus(ctx context.Context) []dashboard.Course
	Enroll(ctx context.Context, courseID string) error
	SetEnrollment(ctx context.Context, courseID string, active bool) bool
	ListEnrolledCoursesWithProgress(ctx context.Context) []dashboard.CourseWithProgress
	GetCourseDetail(ctx context.Context, courseID string) (*dashboard.Course, bool)
	UpdateCourseDetails(ctx context.Context, courseID string, patch dashboard.CoursePatch) bool
	ListSyllabusWithMaterials(ctx context.Context, courseID string) []dashboard.TopicWithMaterials
	SetTopicStatus(ctx context.Context, topicID string, status dashboard.TopicStatus) bool
	GetProfile(ctx context.Context, identityID string) (*dashboard.Profile, error)
	CreateProfile(ctx context.Context, p dashboard.Profile) bool
	UpdateProfile(ctx context.Context, patch dashboard.ProfilePatch) bool
	TopicSummary(ctx context.Context, topicID, courseName string) string
}

// Sessions is the subset of the session manager the handlers use.
type Sessions interface {
	Current() *auth.Session
	Loading() bool
	WaitReady(ctx context.Context) error
	Subscribe() (<-chan auth.Event, func())
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.SignUpResult, error)
	SignOut(ctx context.Context) error
}

// Config holds dependencies for a Server.
type Config struct {
	Dashboard Dashboard
	Sessions  Sessions
	Metrics   *metrics.Metrics               // optional; enables /metrics and request metrics
	Checks    map[string]store.HealthChecker // probed by /readyz

	// OriginPatterns lists hosts allowed to open the session websocket
	// from another origin.
	OriginPatterns []string
	ReadyTimeout   time.Duration // how long protected routes wait for the session; defaults to 5s
}

// Server routes HTTP requests to the dashboard service.
type Server struct {
	dash           Dashboard
	sessions       Sessions
	metrics        *metrics.Metrics
	checks         map[string]store.HealthChecker
	originPatterns []string
	readyTimeout   time.Duration
	validator      *validator
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Dashboard == nil {
		return nil, fmt.Errorf("httpapi: dashboard is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("httpapi: sessions are required")
	}
	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	s := &Server{
		dash:           cfg.Dashboard,
		sessions:       cfg.Sessions,
		metrics:        cfg.Metrics,
		checks:         cfg.Checks,
		originPatterns: cfg.OriginPatterns,
		readyTimeout:   cfg.ReadyTimeout,
		validator:      v,
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = defaultReadyTimeout
	}
	return s, nil
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/session/events", s.handleSessionEvents)

	protected := map[string]http.HandlerFunc{
		"GET /api/courses":                    s.handleListCourses,
		"PUT /api/courses/{id}/enrollment":    s.handleEnroll,
		"DELETE /api/courses/{id}/enrollment": s.handleUnenroll,
		"GET /api/dashboard":                  s.handleDashboard,
		"GET /api/dashboard/export.xlsx":      s.handleExport,
		"GET /api/courses/{id}":               s.handleGetCourse,
		"PATCH /api/courses/{id}":             s.handleUpdateCourse,
		"GET /api/courses/{id}/syllabus":      s.handleSyllabus,
		"PUT /api/topics/{id}/status":         s.handleTopicStatus,
		"POST /api/topics/{id}/summary":       s.handleTopicSummary,
		"GET /api/profile":                    s.handleGetProfile,
		"PATCH /api/profile":                  s.handleUpdateProfile,
	}
	for pattern, h := range protected {
		mux.Handle(pattern, s.requireSession(h))
	}

	if s.metrics != nil {
		return s.metrics.Middleware(mux)
	}
	return mux
}

// requireSession waits for the initial session to resolve and rejects
// requests made while signed out.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
		err := s.sessions.WaitReady(ctx)
		cancel()
		if err != nil {
			writeError(w, r, http.StatusServiceUnavailable, msgAuthUnavailable)
			return
		}
		if s.sessions.Current() == nil {
			writeError(w, r, http.StatusUnauthorized, msgNotSignedIn)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeBody reads the request body, checks it against the named schema and
// decodes it into dest. On failure it writes a 400 and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, schema string, dest any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	if err := s.validator.validate(schema, body); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// writeError writes the localized message key as {"error": "..."}.
func writeError(w http.ResponseWriter, r *http.Request, status int, key string, args ...any) {
	writeJSON(w, status, map[string]string{"error": printerFor(r).Sprintf(key, args...)})
}
