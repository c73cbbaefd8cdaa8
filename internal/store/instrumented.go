package store

import (
	"context"
	"time"
)

// Observer records the outcome of a gateway call.
type Observer interface {
	ObserveGateway(op, table string, start time.Time, err error)
}

// Instrumented decorates a Gateway with an Observer.
type Instrumented struct {
	next Gateway
	obs  Observer
}

// NewInstrumented wraps next so every call is reported to obs.
func NewInstrumented(next Gateway, obs Observer) *Instrumented {
	return &Instrumented{next: next, obs: obs}
}

// Unwrap returns the decorated gateway.
func (g *Instrumented) Unwrap() Gateway { return g.next }

func (g *Instrumented) Select(ctx context.Context, q Query, dest any) error {
	start := time.Now()
	err := g.next.Select(ctx, q, dest)
	g.obs.ObserveGateway("select", q.Table, start, err)
	return err
}

func (g *Instrumented) SelectOne(ctx context.Context, table, id string, dest any) error {
	start := time.Now()
	err := g.next.SelectOne(ctx, table, id, dest)
	g.obs.ObserveGateway("select_one", table, start, err)
	return err
}

func (g *Instrumented) Insert(ctx context.Context, table string, row any) error {
	start := time.Now()
	err := g.next.Insert(ctx, table, row)
	g.obs.ObserveGateway("insert", table, start, err)
	return err
}

func (g *Instrumented) Update(ctx context.Context, table, id string, patch Patch) error {
	start := time.Now()
	err := g.next.Update(ctx, table, id, patch)
	g.obs.ObserveGateway("update", table, start, err)
	return err
}

func (g *Instrumented) Upsert(ctx context.Context, table string, row any, conflict ...string) error {
	start := time.Now()
	err := g.next.Upsert(ctx, table, row, conflict...)
	g.obs.ObserveGateway("upsert", table, start, err)
	return err
}

func (g *Instrumented) Delete(ctx context.Context, table string, filters ...Filter) error {
	start := time.Now()
	err := g.next.Delete(ctx, table, filters...)
	g.obs.ObserveGateway("delete", table, start, err)
	return err
}

// HealthCheck delegates to the wrapped gateway when it supports probing.
func (g *Instrumented) HealthCheck(ctx context.Context) error {
	if hc, ok := g.next.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
