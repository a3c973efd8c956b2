package repo

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNotStubbed = errors.New("not stubbed")

type execRule struct {
	contains string
	tag      string
	err      error
}

// fakeDB scripts Exec results by SQL fragment and records transaction calls.
type fakeDB struct {
	mu          sync.Mutex
	rules       []execRule
	executed    []string
	commits     map[int]int
	rollbacks   map[int]int
	batchQueued int
}

func newFakeDB(rules ...execRule) *fakeDB {
	return &fakeDB{rules: rules, commits: map[int]int{}, rollbacks: map[int]int{}}
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, sql)
	for _, r := range f.rules {
		if strings.Contains(sql, r.contains) {
			return pgconn.NewCommandTag(r.tag), r.err
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNotStubbed
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f, depth: 1}, nil
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	f.batchQueued += b.Len()
	f.mu.Unlock()
	return okBatch{}
}

func (f *fakeDB) ran(fragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sql := range f.executed {
		if strings.Contains(sql, fragment) {
			n++
		}
	}
	return n
}

type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	depth  int
	closed bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return t.db.SendBatch(ctx, b)
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return &fakeTx{db: t.db, depth: t.depth + 1}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.mu.Lock()
	t.db.commits[t.depth]++
	t.db.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.db.mu.Lock()
	t.db.rollbacks[t.depth]++
	t.db.mu.Unlock()
	return nil
}

type okBatch struct{ pgx.BatchResults }

func (okBatch) Close() error { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNotStubbed }
