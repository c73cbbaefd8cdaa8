package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Schema creates the dashboard tables when they do not exist.
//
//go:embed schema.sql
var Schema string

// PostgresGateway implements Gateway with SQL against the backing database.
// Rows travel as JSON so both backends share the models' field tags.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway creates a gateway over an open pool.
func NewPostgresGateway(pool *pgxpool.Pool) (*PostgresGateway, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresGateway{pool: pool}, nil
}

// Migrate applies Schema.
func (g *PostgresGateway) Migrate(ctx context.Context) error {
	if _, err := g.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (g *PostgresGateway) HealthCheck(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

func (g *PostgresGateway) Select(ctx context.Context, q Query, dest any) error {
	if q.MatchesNothing() {
		return json.Unmarshal([]byte("[]"), dest)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cols := "*"
	if len(q.Columns) > 0 {
		cols = identList(q.Columns)
	}
	where, args := whereClause(q.Filters, 1)

	var orderBy string
	if len(q.Order) > 0 {
		keys := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			keys = append(keys, ident(o.Column)+" "+dir)
		}
		orderBy = " ORDER BY " + strings.Join(keys, ", ")
	}

	sql := fmt.Sprintf(
		`SELECT COALESCE(json_agg(t), '[]'::json) FROM (SELECT %s FROM %s%s%s) t`,
		cols, ident(q.Table), where, orderBy,
	)

	var data []byte
	if err := g.pool.QueryRow(ctx, sql, args...).Scan(&data); err != nil {
		return &Error{Op: "select", Table: q.Table, Err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &Error{Op: "select", Table: q.Table, Err: fmt.Errorf("unmarshal rows: %w", err)}
	}
	return nil
}

func (g *PostgresGateway) SelectOne(ctx context.Context, table, id string, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sql := fmt.Sprintf(`SELECT row_to_json(t) FROM (SELECT * FROM %s WHERE "id"::text = $1 LIMIT 1) t`, ident(table))

	var data []byte
	if err := g.pool.QueryRow(ctx, sql, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &Error{Op: "select one", Table: table, Err: ErrNotFound}
		}
		return &Error{Op: "select one", Table: table, Err: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &Error{Op: "select one", Table: table, Err: fmt.Errorf("unmarshal row: %w", err)}
	}
	return nil
}

func (g *PostgresGateway) Insert(ctx context.Context, table string, row any) error {
	data, cols, err := rowColumns(row)
	if err != nil {
		return &Error{Op: "insert", Table: table, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sql := fmt.Sprintf(
		`INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM json_populate_record(NULL::%[1]s, $1::json)`,
		ident(table), identList(cols),
	)
	if _, err := g.pool.Exec(ctx, sql, string(data)); err != nil {
		return &Error{Op: "insert", Table: table, Err: err}
	}
	return nil
}

func (g *PostgresGateway) Update(ctx context.Context, table, id string, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}
	data, cols, err := rowColumns(map[string]any(patch))
	if err != nil {
		return &Error{Op: "update", Table: table, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sql := fmt.Sprintf(
		`UPDATE %[1]s SET (%[2]s) = (SELECT %[2]s FROM json_populate_record(NULL::%[1]s, $1::json)) WHERE "id"::text = $2`,
		ident(table), identList(cols),
	)
	if _, err := g.pool.Exec(ctx, sql, string(data), id); err != nil {
		return &Error{Op: "update", Table: table, Err: err}
	}
	return nil
}

func (g *PostgresGateway) Upsert(ctx context.Context, table string, row any, conflict ...string) error {
	if len(conflict) == 0 {
		conflict = []string{"id"}
	}
	data, cols, err := rowColumns(row)
	if err != nil {
		return &Error{Op: "upsert", Table: table, Err: err}
	}

	isConflict := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		isConflict[c] = true
	}
	var sets []string
	for _, c := range cols {
		if !isConflict[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sql := fmt.Sprintf(
		`INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM json_populate_record(NULL::%[1]s, $1::json) ON CONFLICT (%[3]s) %[4]s`,
		ident(table), identList(cols), identList(conflict), action,
	)
	if _, err := g.pool.Exec(ctx, sql, string(data)); err != nil {
		return &Error{Op: "upsert", Table: table, Err: err}
	}
	return nil
}

func (g *PostgresGateway) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return &Error{Op: "delete", Table: table, Err: fmt.Errorf("refusing unfiltered delete")}
	}
	if (Query{Filters: filters}).MatchesNothing() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := whereClause(filters, 1)
	if _, err := g.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s%s`, ident(table), where), args...); err != nil {
		return &Error{Op: "delete", Table: table, Err: err}
	}
	return nil
}

// whereClause renders filters as text comparisons so the gateway does not
// need to know column types (uuid, bool, int all compare by their text form).
func whereClause(filters []Filter, first int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	n := first
	for _, f := range filters {
		switch f.Op {
		case OpIn:
			conds = append(conds, fmt.Sprintf("%s::text = ANY($%d::text[])", ident(f.Column), n))
			args = append(args, f.Values)
		default:
			conds = append(conds, fmt.Sprintf("%s::text = $%d", ident(f.Column), n))
			args = append(args, textOf(f.Value))
		}
		n++
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowColumns encodes row as a JSON object and returns its sorted keys.
func rowColumns(row any) ([]byte, []string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal row: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, nil, fmt.Errorf("row must encode as an object: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("row has no columns")
	}
	cols := make([]string, 0, len(fields))
	for k := range fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return data, cols, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}
