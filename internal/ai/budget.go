package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Budget caps the tokens one identity may spend on generated text per day.
type Budget interface {
	// Allow reports whether userID has budget left today.
	Allow(ctx context.Context, userID string) (bool, error)
	// Record adds tokens to userID's usage for today.
	Record(ctx context.Context, userID string, tokens int) error
}

// InMemoryBudget tracks daily usage in process memory. A limit of zero or
// less means unlimited.
type InMemoryBudget struct {
	limit int64
	now   func() time.Time

	mu    sync.Mutex
	usage map[string]int64 // user:day -> tokens used
}

// NewInMemoryBudget creates a daily budget of limit tokens per identity.
func NewInMemoryBudget(limit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit: limit,
		now:   time.Now,
		usage: make(map[string]int64),
	}
}

func (b *InMemoryBudget) Allow(_ context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[budgetKey(userID, b.now())] < b.limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[budgetKey(userID, b.now())] += int64(tokens)
	return nil
}

// Usage returns the tokens userID has used today.
func (b *InMemoryBudget) Usage(userID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage[budgetKey(userID, b.now())]
}

const budgetKeyTTL = 48 * time.Hour

// RedisBudget keeps daily usage counters in Redis so several processes
// share one budget.
type RedisBudget struct {
	client *redis.Client
	prefix string
	limit  int64
	now    func() time.Time
}

// NewRedisBudget creates a Redis-backed budget. Keys are prefix:user:day.
func NewRedisBudget(client *redis.Client, prefix string, limit int64) *RedisBudget {
	return &RedisBudget{client: client, prefix: prefix, limit: limit, now: time.Now}
}

func (b *RedisBudget) Allow(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	v, err := b.client.Get(ctx, b.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read budget: %w", err)
	}
	used, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse budget: %w", err)
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.key(userID)
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, budgetKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record budget: %w", err)
	}
	return nil
}

func (b *RedisBudget) key(userID string) string {
	return b.prefix + ":" + budgetKey(userID, b.now())
}

func budgetKey(userID string, now time.Time) string {
	return userID + ":" + now.UTC().Format("2006-01-02")
}
