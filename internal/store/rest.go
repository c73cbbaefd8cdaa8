package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const restPath = "/rest/v1/"

// RESTGateway implements Gateway over a PostgREST endpoint (Supabase).
type RESTGateway struct {
	baseURL string
	anonKey string
	tokens  TokenSource
	client  *http.Client
}

// RESTOption configures a RESTGateway.
type RESTOption func(*RESTGateway)

// WithRESTHTTPClient sets a custom HTTP client.
func WithRESTHTTPClient(client *http.Client) RESTOption {
	return func(g *RESTGateway) {
		g.client = client
	}
}

// WithTokenSource sets where the signed-in user's bearer token comes from.
func WithTokenSource(tokens TokenSource) RESTOption {
	return func(g *RESTGateway) {
		g.tokens = tokens
	}
}

// NewRESTGateway creates a gateway for the project at baseURL.
func NewRESTGateway(baseURL, anonKey string, opts ...RESTOption) *RESTGateway {
	g := &RESTGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// postgrestError is the error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (g *RESTGateway) Select(ctx context.Context, q Query, dest any) error {
	if q.MatchesNothing() {
		return json.Unmarshal([]byte("[]"), dest)
	}

	params := url.Values{}
	params.Set("select", selectList(q.Columns))
	addFilters(params, q.Filters)
	if len(q.Order) > 0 {
		keys := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			keys = append(keys, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(keys, ","))
	}

	body, err := g.do(ctx, "select", http.MethodGet, q.Table, params, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &Error{Op: "select", Table: q.Table, Err: fmt.Errorf("unmarshal rows: %w", err)}
	}
	return nil
}

func (g *RESTGateway) SelectOne(ctx context.Context, table, id string, dest any) error {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("id", "eq."+id)

	body, err := g.do(ctx, "select one", http.MethodGet, table, params, nil, map[string]string{
		"Accept": "application/vnd.pgrst.object+json",
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) && se.Status == http.StatusNotAcceptable {
			return &Error{Op: "select one", Table: table, Status: se.Status, Err: ErrNotFound}
		}
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &Error{Op: "select one", Table: table, Err: fmt.Errorf("unmarshal row: %w", err)}
	}
	return nil
}

func (g *RESTGateway) Insert(ctx context.Context, table string, row any) error {
	_, err := g.do(ctx, "insert", http.MethodPost, table, nil, row, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

func (g *RESTGateway) Update(ctx context.Context, table, id string, patch Patch) error {
	if len(patch) == 0 {
		return nil
	}
	params := url.Values{}
	params.Set("id", "eq."+id)
	_, err := g.do(ctx, "update", http.MethodPatch, table, params, patch, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

func (g *RESTGateway) Upsert(ctx context.Context, table string, row any, conflict ...string) error {
	params := url.Values{}
	if len(conflict) > 0 {
		params.Set("on_conflict", strings.Join(conflict, ","))
	}
	_, err := g.do(ctx, "upsert", http.MethodPost, table, params, row, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	})
	return err
}

func (g *RESTGateway) Delete(ctx context.Context, table string, filters ...Filter) error {
	if len(filters) == 0 {
		return &Error{Op: "delete", Table: table, Err: fmt.Errorf("refusing unfiltered delete")}
	}
	q := Query{Filters: filters}
	if q.MatchesNothing() {
		return nil
	}
	params := url.Values{}
	addFilters(params, filters)
	_, err := g.do(ctx, "delete", http.MethodDelete, table, params, nil, nil)
	return err
}

// HealthCheck verifies the REST endpoint answers with the configured key.
func (g *RESTGateway) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+restPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.anonKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (g *RESTGateway) do(ctx context.Context, op, method, table string, params url.Values, payload any, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Op: op, Table: table, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	u := g.baseURL + restPath + url.PathEscape(table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Authorization", "Bearer "+g.bearer(ctx))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: op, Table: table, Status: resp.StatusCode, Err: decodeError(respBody)}
	}
	return respBody, nil
}

func (g *RESTGateway) bearer(ctx context.Context) string {
	if g.tokens != nil {
		if tok := g.tokens.AccessToken(ctx); tok != "" {
			return tok
		}
	}
	return g.anonKey
}

func decodeError(body []byte) error {
	var pe postgrestError
	if err := json.Unmarshal(body, &pe); err == nil && pe.Message != "" {
		if pe.Code != "" {
			return fmt.Errorf("postgrest %s: %s", pe.Code, pe.Message)
		}
		return fmt.Errorf("postgrest: %s", pe.Message)
	}
	return fmt.Errorf("postgrest: %s", strings.TrimSpace(string(body)))
}

func selectList(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	return strings.Join(columns, ",")
}

func addFilters(params url.Values, filters []Filter) {
	for _, f := range filters {
		switch f.Op {
		case OpIn:
			quoted := make([]string, len(f.Values))
			for i, v := range f.Values {
				quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
			}
			params.Add(f.Column, "in.("+strings.Join(quoted, ",")+")")
		default:
			params.Add(f.Column, "eq."+textOf(f.Value))
		}
	}
}
