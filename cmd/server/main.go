package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-progress/internal/ai"
	"github.com/p-n-ai/pai-progress/internal/auth"
	"github.com/p-n-ai/pai-progress/internal/dashboard"
	"github.com/p-n-ai/pai-progress/internal/demo"
	"github.com/p-n-ai/pai-progress/internal/httpapi"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/platform/metrics"
	"github.com/p-n-ai/pai-progress/internal/session"
	"github.com/p-n-ai/pai-progress/internal/store"
)

const appName = "pai-progress"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "demo", a.demo)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is the wired application. Close releases resources in reverse order
// of acquisition.
type app struct {
	handler  http.Handler
	sessions *session.Manager
	demo     bool
	closers  []func()
}

func (a *app) onClose(f func()) {
	a.closers = append(a.closers, f)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	m := metrics.New()
	checks := map[string]store.HealthChecker{}

	var kv *cache.Cache
	if cfg.Session.Store == "redis" {
		kv, err = cache.Open(ctx, cfg.Cache.URL, appName)
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.onClose(func() { _ = kv.Close() })
		checks["cache"] = kv
	}

	tokens, err := newTokenStore(cfg.Session, kv)
	if err != nil {
		return nil, err
	}

	var (
		provider auth.Provider
		gw       store.Gateway
	)
	if cfg.Supabase.Configured() {
		gt := auth.NewGoTrueClient(cfg.Supabase.URL, cfg.Supabase.AnonKey)
		provider = gt
		checks["auth"] = gt
	} else {
		slog.Warn("remote store not configured, serving demo data")
		a.demo = true
		f, err := demo.LoadFixture(cfg.Demo.FixturePath)
		if err != nil {
			return nil, err
		}
		st, err := demo.NewStore(f)
		if err != nil {
			return nil, err
		}
		da, err := demo.NewAuth(f)
		if err != nil {
			return nil, err
		}
		a.onClose(da.Close)
		provider, gw = da, st
		checks["store"] = st
	}

	mgr, err := session.New(session.Config{Provider: provider, Tokens: tokens})
	if err != nil {
		return nil, err
	}
	a.sessions = mgr

	if gw == nil {
		gw, err = newRemoteGateway(ctx, cfg, mgr, a)
		if err != nil {
			return nil, err
		}
		if hc, ok := gw.(store.HealthChecker); ok {
			checks["store"] = hc
		}
	}

	svc, err := dashboard.NewService(dashboard.ServiceConfig{
		Gateway:    store.NewInstrumented(gw, m),
		Identity:   mgr,
		Summarizer: newSummarizer(cfg, kv),
	})
	if err != nil {
		return nil, err
	}

	srv, err := httpapi.New(httpapi.Config{
		Dashboard:      svc,
		Sessions:       mgr,
		Metrics:        m,
		Checks:         checks,
		OriginPatterns: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return nil, err
	}

	mgr.Start(ctx)
	a.onClose(mgr.Close)
	a.handler = srv.Handler()
	return a, nil
}

// newRemoteGateway connects the configured record backend. The REST backend
// sends the signed-in user's token so row-level security applies.
func newRemoteGateway(ctx context.Context, cfg *config.Config, tokens store.TokenSource, a *app) (store.Gateway, error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := database.Open(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			AppName:  appName,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.onClose(db.Close)

		pg, err := store.NewPostgresGateway(db.Pool)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, err
			}
			slog.Info("database schema applied")
		}
		return pg, nil
	default:
		return store.NewRESTGateway(cfg.Supabase.URL, cfg.Supabase.AnonKey, store.WithTokenSource(tokens)), nil
	}
}

func newTokenStore(cfg config.SessionConfig, kv *cache.Cache) (session.TokenStore, error) {
	switch cfg.Store {
	case "file":
		return session.NewFileTokenStore(cfg.File), nil
	case "redis":
		if kv == nil {
			return nil, fmt.Errorf("redis session store needs a cache connection")
		}
		return session.NewRedisTokenStore(kv.Client, cfg.Key), nil
	default:
		return session.NewMemoryTokenStore(), nil
	}
}

// newSummarizer always returns a summarizer. Without a provider every
// summary request yields the fallback text.
func newSummarizer(cfg *config.Config, kv *cache.Cache) *ai.Summarizer {
	router := ai.NewRouter()
	if cfg.HasAIProvider() {
		router.Register("google", ai.NewGoogleProvider(cfg.AI.Google.APIKey, ai.WithGoogleModel(cfg.AI.Google.Model)))
	} else {
		slog.Warn("no AI provider configured, topic summaries are unavailable")
	}

	opts := []ai.SummarizerOption{ai.WithSummaryModel(cfg.AI.Google.Model)}
	if limit := cfg.AI.SummaryDailyTokens; limit > 0 {
		var budget ai.Budget = ai.NewInMemoryBudget(limit)
		if kv != nil {
			budget = ai.NewRedisBudget(kv.Client, kv.Key("summary-tokens"), limit)
		}
		opts = append(opts, ai.WithBudget(budget))
	}
	return ai.NewSummarizer(router, opts...)
}
