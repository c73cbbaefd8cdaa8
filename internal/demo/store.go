// Package demo serves a fixed, in-memory data set with the same contracts as
// the remote store and auth service. It is used when no remote store is
// configured; writes change the in-memory copy and always succeed.
package demo

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-progress/internal/store"
)

//go:embed fixture.yaml
var defaultFixture []byte

// Fixture is the demo data set as read from YAML.
type Fixture struct {
	Accounts []Account                    `yaml:"accounts"`
	Tables   map[string][]map[string]any `yaml:"tables"`
}

// Account is a demo login.
type Account struct {
	ID       string `yaml:"id"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type row = map[string]any

// Store is the in-memory record gateway.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]row
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// LoadFixture reads the fixture at path, or the embedded one when path is empty.
func LoadFixture(path string) (*Fixture, error) {
	data := defaultFixture
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read fixture: %w", err)
		}
		data = b
	}
	return ParseFixture(data)
}

// NewStore creates a store holding a copy of the fixture's tables.
func NewStore(f *Fixture) (*Store, error) {
	s := &Store{tables: make(map[string][]row)}
	for table, rows := range f.Tables {
		for i, r := range rows {
			n, err := normalize(r)
			if err != nil {
				return nil, fmt.Errorf("fixture %s row %d: %w", table, i, err)
			}
			s.tables[table] = append(s.tables[table], n)
		}
	}

	counts := make([]any, 0, 2*len(s.tables))
	for table, rows := range s.tables {
		counts = append(counts, table, len(rows))
	}
	slog.Info("demo store loaded", counts...)
	return s, nil
}

func (s *Store) Select(_ context.Context, q store.Query, dest any) error {
	s.mu.RLock()
	matched := s.filter(q.Table, q.Filters)
	s.mu.RUnlock()

	sortRows(matched, q.Order)
	if len(q.Columns) > 0 {
		for i, r := range matched {
			matched[i] = project(r, q.Columns)
		}
	}
	return decode("select", q.Table, matched, dest)
}

func (s *Store) SelectOne(_ context.Context, table, id string, dest any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(table, store.Eq("id", id)); i >= 0 {
		return decode("select one", table, s.tables[table][i], dest)
	}
	return &store.Error{Op: "select one", Table: table, Err: store.ErrNotFound}
}

func (s *Store) Insert(_ context.Context, table string, r any) error {
	n, err := normalize(r)
	if err != nil {
		return &store.Error{Op: "insert", Table: table, Err: err}
	}
	assignID(table, n)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], n)
	return nil
}

// Update changes the row with the given id. Updating a missing row is not
// an error, matching the remote store.
func (s *Store) Update(_ context.Context, table, id string, patch store.Patch) error {
	if len(patch) == 0 {
		return nil
	}
	n, err := normalize(map[string]any(patch))
	if err != nil {
		return &store.Error{Op: "update", Table: table, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(table, store.Eq("id", id)); i >= 0 {
		for k, v := range n {
			s.tables[table][i][k] = v
		}
	}
	return nil
}

// Upsert merges r into the row that matches it on every conflict column, or
// appends it. With no conflict columns the id column is used.
func (s *Store) Upsert(_ context.Context, table string, r any, conflict ...string) error {
	n, err := normalize(r)
	if err != nil {
		return &store.Error{Op: "upsert", Table: table, Err: err}
	}
	if len(conflict) == 0 {
		conflict = []string{"id"}
	}
	filters := make([]store.Filter, 0, len(conflict))
	for _, c := range conflict {
		filters = append(filters, store.Eq(c, n[c]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(table, filters...); i >= 0 {
		existing := s.tables[table][i]
		for k, v := range n {
			if k == "id" && isBlank(v) {
				continue
			}
			existing[k] = v
		}
		return nil
	}
	assignID(table, n)
	s.tables[table] = append(s.tables[table], n)
	return nil
}

func (s *Store) Delete(_ context.Context, table string, filters ...store.Filter) error {
	if len(filters) == 0 {
		return &store.Error{Op: "delete", Table: table, Err: fmt.Errorf("refusing unfiltered delete")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0]
	for _, r := range s.tables[table] {
		if !matchesAll(r, filters) {
			kept = append(kept, r)
		}
	}
	s.tables[table] = kept
	return nil
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error {
	return nil
}

// Count returns the number of rows in table.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// filter returns copies of the rows matching every filter. Callers hold mu.
func (s *Store) filter(table string, filters []store.Filter) []row {
	var out []row
	for _, r := range s.tables[table] {
		if matchesAll(r, filters) {
			out = append(out, copyRow(r))
		}
	}
	return out
}

// indexOf returns the index of the first row matching every filter, or -1.
// Callers hold mu.
func (s *Store) indexOf(table string, filters ...store.Filter) int {
	for i, r := range s.tables[table] {
		if matchesAll(r, filters) {
			return i
		}
	}
	return -1
}

func matchesAll(r row, filters []store.Filter) bool {
	for _, f := range filters {
		if !f.Matches(r) {
			return false
		}
	}
	return true
}

// sortRows orders rows by each key in turn. Numbers compare numerically,
// everything else by text; missing values sort first.
func sortRows(rows []row, order []store.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compare(rows[i][o.Column], rows[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func project(r row, columns []string) row {
	out := make(row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func copyRow(r row) row {
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// assignID gives rows of id-keyed tables a fresh id when they lack one.
func assignID(table string, r row) {
	if table == store.TableEnrollments {
		return
	}
	if isBlank(r["id"]) {
		r["id"] = uuid.NewString()
	}
}

func isBlank(v any) bool {
	return v == nil || v == ""
}

// normalize turns any JSON-encodable value into a row with JSON value types,
// so fixture rows and written rows compare and decode the same way.
func normalize(v any) (row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var out row
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("row is not an object: %w", err)
	}
	return out, nil
}

func decode(op, table string, v, dest any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &store.Error{Op: op, Table: table, Err: fmt.Errorf("encode rows: %w", err)}
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &store.Error{Op: op, Table: table, Err: fmt.Errorf("unmarshal rows: %w", err)}
	}
	return nil
}
