package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFilter_Matches(t *testing.T) {
	row := map[string]any{
		"user_id":   "u1",
		"is_active": true,
		"cycle":     float64(2),
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq string", Eq("user_id", "u1"), true},
		{"eq string mismatch", Eq("user_id", "u2"), false},
		{"eq bool", Eq("is_active", true), true},
		{"eq number against int", Eq("cycle", 2), true},
		{"in hit", In("user_id", "u0", "u1"), true},
		{"in miss", In("user_id", "u0"), false},
		{"in empty", In("user_id"), false},
		{"missing column", Eq("nope", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(row); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuery_BuilderDoesNotAlias(t *testing.T) {
	base := From(TableCourses).Where(Eq("cycle", 1))
	a := base.Where(Eq("code", "A"))
	b := base.Where(Eq("code", "B"))

	if len(base.Filters) != 1 {
		t.Errorf("base filters = %d, want 1", len(base.Filters))
	}
	if a.Filters[1].Value != "A" || b.Filters[1].Value != "B" {
		t.Errorf("derived queries share filter storage: a=%v b=%v", a.Filters, b.Filters)
	}
}

func TestQuery_MatchesNothing(t *testing.T) {
	if From(TableCourses).Where(Eq("id", "x")).MatchesNothing() {
		t.Error("eq filter should not match nothing")
	}
	if !From(TableCourses).Where(In("id")).MatchesNothing() {
		t.Error("empty in filter should match nothing")
	}
}

func TestError_WrapsNotFound(t *testing.T) {
	err := error(&Error{Op: "select one", Table: TableProfiles, Err: ErrNotFound})
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) should be true")
	}
	if !strings.Contains(err.Error(), "profiles") {
		t.Errorf("Error() = %q, want table name", err.Error())
	}
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveGateway(op, table string, _ time.Time, err error) {
	r.calls = append(r.calls, op+":"+table)
}

func TestWhereClause(t *testing.T) {
	where, args := whereClause([]Filter{Eq("user_id", "u1"), In("course_id", "c1", "c2"), Eq("is_active", true)}, 1)

	want := ` WHERE "user_id"::text = $1 AND "course_id"::text = ANY($2::text[]) AND "is_active"::text = $3`
	if where != want {
		t.Errorf("where = %q\nwant  %q", where, want)
	}
	if len(args) != 3 || args[0] != "u1" || args[2] != "true" {
		t.Errorf("args = %v", args)
	}
	if vals, ok := args[1].([]string); !ok || len(vals) != 2 {
		t.Errorf("in arg = %#v", args[1])
	}
}

func TestRowColumns(t *testing.T) {
	_, cols, err := rowColumns(struct {
		B string `json:"b"`
		A int    `json:"a"`
		C string `json:"c,omitempty"`
	}{B: "x", A: 1})
	if err != nil {
		t.Fatalf("rowColumns() error = %v", err)
	}
	if strings.Join(cols, ",") != "a,b" {
		t.Errorf("cols = %v, want [a b]", cols)
	}

	if _, _, err := rowColumns([]int{1}); err == nil {
		t.Error("rowColumns() should reject non-object rows")
	}
	if _, _, err := rowColumns(map[string]any{}); err == nil {
		t.Error("rowColumns() should reject empty rows")
	}
}

func TestIdent(t *testing.T) {
	if got := ident(`we"ird`); got != `"we""ird"` {
		t.Errorf("ident() = %s", got)
	}
}

func TestNewPostgresGateway_NilPool(t *testing.T) {
	if _, err := NewPostgresGateway(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
