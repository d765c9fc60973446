package postgres_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

// fakePool is a scripted PgxPool. Each call records the SQL and args and
// returns the next queued response.
type fakePool struct {
	execs   []execCall
	queries []queryCall

	execResults []execResult
	rowResults  []rowResult
	rowsResults []rowsResult
}

type execCall struct {
	sql  string
	args []any
}

type queryCall struct {
	sql  string
	args []any
}

type execResult struct {
	tag pgconn.CommandTag
	err error
}

type rowResult struct {
	values []any
	err    error
}

type rowsResult struct {
	rows [][]any
	err  error
}

func (f *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if len(f.execResults) == 0 {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	r := f.execResults[0]
	f.execResults = f.execResults[1:]
	return r.tag, r.err
}

func (f *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.queries = append(f.queries, queryCall{sql: sql, args: args})
	if len(f.rowResults) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	r := f.rowResults[0]
	f.rowResults = f.rowResults[1:]
	return fakeRow{values: r.values, err: r.err}
}

func (f *fakePool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, queryCall{sql: sql, args: args})
	if len(f.rowsResults) == 0 {
		return &fakeRows{}, nil
	}
	r := f.rowsResults[0]
	f.rowsResults = f.rowsResults[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &fakeRows{rows: r.rows}, nil
}

func (f *fakePool) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, fmt.Errorf("not scripted")
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.idx-1]) }

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan arity: want %d got %d", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		case *domain.JobStatus:
			*d = v.(domain.JobStatus)
		default:
			return fmt.Errorf("scan: unsupported dest %T", dest[i])
		}
	}
	return nil
}
