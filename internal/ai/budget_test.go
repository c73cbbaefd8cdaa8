package ai

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryBudget_Unlimited(t *testing.T) {
	b := NewInMemoryBudget(0)
	_ = b.Record(context.Background(), "u1", 1_000_000)

	ok, err := b.Allow(context.Background(), "u1")
	if err != nil || !ok {
		t.Errorf("Allow() = %v, %v; want true with no limit", ok, err)
	}
}

func TestInMemoryBudget_Exhausted(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBudget(100)

	if ok, _ := b.Allow(ctx, "u1"); !ok {
		t.Fatal("fresh identity should have budget")
	}
	_ = b.Record(ctx, "u1", 60)
	if ok, _ := b.Allow(ctx, "u1"); !ok {
		t.Error("60/100 used should still allow")
	}
	_ = b.Record(ctx, "u1", 40)
	if ok, _ := b.Allow(ctx, "u1"); ok {
		t.Error("100/100 used should not allow")
	}
	if ok, _ := b.Allow(ctx, "u2"); !ok {
		t.Error("budgets must be per identity")
	}
	if got := b.Usage("u1"); got != 100 {
		t.Errorf("Usage() = %d, want 100", got)
	}
}

func TestInMemoryBudget_ResetsDaily(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	b := NewInMemoryBudget(10)
	b.now = func() time.Time { return day }

	_ = b.Record(ctx, "u1", 10)
	if ok, _ := b.Allow(ctx, "u1"); ok {
		t.Fatal("budget should be spent")
	}

	day = day.Add(2 * time.Hour)
	if ok, _ := b.Allow(ctx, "u1"); !ok {
		t.Error("budget should reset on the next day")
	}
}

func TestInMemoryBudget_NegativeTokens(t *testing.T) {
	b := NewInMemoryBudget(10)
	if err := b.Record(context.Background(), "u1", -1); err == nil {
		t.Error("Record() should reject negative tokens")
	}
}
