package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-progress/internal/auth"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
)

func exerciseTokenStore(t *testing.T, ts TokenStore) {
	t.Helper()
	ctx := context.Background()

	got, err := ts.Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("Load() on empty store = %+v, %v; want nil, nil", got, err)
	}

	want := &auth.Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1_700_000_000, User: auth.User{ID: "u1"}}
	if err := ts.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = ts.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || got.AccessToken != "at" || got.RefreshToken != "rt" || got.User.ID != "u1" || got.ExpiresAt != want.ExpiresAt {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	if err := ts.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := ts.Load(ctx); got != nil {
		t.Errorf("Load() after Clear() = %+v, want nil", got)
	}
	if err := ts.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestMemoryTokenStore(t *testing.T) {
	exerciseTokenStore(t, NewMemoryTokenStore())
}

func TestMemoryTokenStore_Copies(t *testing.T) {
	ts := NewMemoryTokenStore()
	s := &auth.Session{AccessToken: "a"}
	_ = ts.Save(context.Background(), s)
	s.AccessToken = "changed"

	got, _ := ts.Load(context.Background())
	if got.AccessToken != "a" {
		t.Errorf("stored session aliased caller's value: %q", got.AccessToken)
	}
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	exerciseTokenStore(t, NewFileTokenStore(path))
}

func TestFileTokenStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ts := NewFileTokenStore(path)
	if err := ts.Save(context.Background(), &auth.Session{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestFileTokenStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileTokenStore(path).Load(context.Background()); err == nil {
		t.Error("Load() should fail on a corrupt file")
	}
}

func TestRedisTokenStore(t *testing.T) {
	url := os.Getenv("LEARN_TEST_CACHE_URL")
	if testing.Short() || url == "" {
		t.Skip("set LEARN_TEST_CACHE_URL to run against Redis")
	}

	c, err := cache.Open(t.Context(), url, "pai-progress:test")
	if err != nil {
		t.Fatalf("cache.Open() error = %v", err)
	}
	defer c.Close()

	exerciseTokenStore(t, NewRedisTokenStore(c.Client, c.Key(t.Name())))
}
