// Package store provides the record gateway to the remote backend: CRUD over
// named collections, implemented over PostgREST (HTTP) or directly over SQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Collections used by the dashboard.
const (
	TableProfiles       = "profiles"
	TableCourses        = "courses"
	TableEnrollments    = "enrollments"
	TableSyllabusTopics = "syllabus_topics"
	TableStudyMaterials = "study_materials"
	TableUserProgress   = "user_progress"
)

// ErrNotFound is returned by SelectOne when no row has the given id.
var ErrNotFound = errors.New("record not found")

// Gateway is the interface all record backends must implement.
// Zero matching rows is never an error for Select.
type Gateway interface {
	Select(ctx context.Context, q Query, dest any) error
	SelectOne(ctx context.Context, table, id string, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Update(ctx context.Context, table, id string, patch Patch) error
	Upsert(ctx context.Context, table string, row any, conflict ...string) error
	Delete(ctx context.Context, table string, filters ...Filter) error
}

// HealthChecker is implemented by gateways that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// TokenSource supplies the bearer token of the signed-in user.
// An empty token means requests go out with the public key only.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// Op is a filter comparison.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Filter restricts a query to rows whose column matches.
type Filter struct {
	Column string
	Op     Op
	Value  any      // for OpEq
	Values []string // for OpIn
}

// Eq matches rows where column equals v.
func Eq(column string, v any) Filter {
	return Filter{Column: column, Op: OpEq, Value: v}
}

// In matches rows where column is one of values. No values matches nothing.
func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

// Matches reports whether a decoded row satisfies the filter.
// Values are compared on their text form.
func (f Filter) Matches(row map[string]any) bool {
	got := textOf(row[f.Column])
	switch f.Op {
	case OpEq:
		return got == textOf(f.Value)
	case OpIn:
		for _, v := range f.Values {
			if got == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (f Filter) String() string {
	if f.Op == OpIn {
		return fmt.Sprintf("%s=in.(%s)", f.Column, strings.Join(f.Values, ","))
	}
	return fmt.Sprintf("%s=eq.%s", f.Column, textOf(f.Value))
}

func textOf(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Order sorts query results by a column.
type Order struct {
	Column string
	Desc   bool
}

// Asc orders by column ascending.
func Asc(column string) Order { return Order{Column: column} }

// Desc orders by column descending.
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query describes a Select.
type Query struct {
	Table   string
	Columns []string // empty selects all columns
	Filters []Filter
	Order   []Order
}

// From starts a query over table.
func From(table string) Query {
	return Query{Table: table}
}

// Select limits the returned columns.
func (q Query) Select(columns ...string) Query {
	q.Columns = append(append([]string{}, q.Columns...), columns...)
	return q
}

// Where adds filters; all filters must match.
func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter{}, q.Filters...), filters...)
	return q
}

// OrderBy adds sort keys, applied in the given order.
func (q Query) OrderBy(orders ...Order) Query {
	q.Order = append(append([]Order{}, q.Order...), orders...)
	return q
}

// MatchesNothing reports whether an empty In filter makes the result empty.
func (q Query) MatchesNothing() bool {
	for _, f := range q.Filters {
		if f.Op == OpIn && len(f.Values) == 0 {
			return true
		}
	}
	return false
}

// Patch holds the columns an update changes. Absent keys are left untouched.
type Patch map[string]any

// Error wraps a failed gateway operation.
type Error struct {
	Op     string
	Table  string
	Status int // HTTP status for the REST backend, 0 otherwise
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Op, e.Table, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
