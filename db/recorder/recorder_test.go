package recorder

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/blockwatch/mempoolhub/collab"
)

// execCall records one Exec invocation against the fake driver below, so
// tests can assert what Recorder actually sent to the database without a
// real Postgres server.
type execCall struct {
	query string
	args  []driver.Value
}

type fakeDriver struct {
	mtx   sync.Mutex
	calls []execCall
}

func (d *fakeDriver) Open(name string) (driver.Conn, error) {
	return &fakeConn{d: d}, nil
}

type fakeConn struct{ d *fakeDriver }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{d: c.d, query: query}, nil
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeStmt struct {
	d     *fakeDriver
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }
func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.d.mtx.Lock()
	s.d.calls = append(s.d.calls, execCall{query: s.query, args: args})
	s.d.mtx.Unlock()
	return driver.RowsAffected(1), nil
}
func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, sql.ErrNoRows
}

var registerOnce sync.Once
var registeredDriver *fakeDriver

func newTestRecorder(t *testing.T) (*Recorder, *fakeDriver) {
	t.Helper()
	d := &fakeDriver{}
	registerOnce.Do(func() {
		registeredDriver = d
		sql.Register("recorder-fake", driverProxy{get: func() *fakeDriver { return registeredDriver }})
	})
	registeredDriver = d

	db, err := sql.Open("recorder-fake", "test")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r, err := newRecorder(db)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	return r, d
}

// driverProxy lets every test register under the same driver name while
// still dispatching to that test's own fakeDriver instance (sql.Register
// panics on a duplicate name, so the name can only be registered once for
// the whole test binary).
type driverProxy struct {
	get func() *fakeDriver
}

func (p driverProxy) Open(name string) (driver.Conn, error) {
	return p.get().Open(name)
}

func Test_Recorder_CreateTables_RunsOnNew(t *testing.T) {
	_, d := newTestRecorder(t)
	if len(d.calls) == 0 {
		t.Fatalf("expected createTables to issue at least one Exec call")
	}
}

func Test_SaveTemplate(t *testing.T) {
	r, d := newTestRecorder(t)
	before := len(d.calls)

	tmpl := collab.MempoolBlockTemplate{Index: 2, NTx: 10, TotalFees: 5000}
	if err := r.SaveTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	if len(d.calls) != before+1 {
		t.Fatalf("expected exactly one new Exec call, got %d", len(d.calls)-before)
	}
	call := d.calls[len(d.calls)-1]
	if call.args[0] != int64(2) {
		t.Fatalf("expected index arg 2, got %v", call.args[0])
	}
	if len(call.args) != 4 {
		t.Fatalf("expected 4 bound args (index, n_tx, total_fees, template), got %d", len(call.args))
	}
}

func Test_SaveAudit(t *testing.T) {
	r, d := newTestRecorder(t)
	before := len(d.calls)

	result := collab.AuditResult{Height: 800000, MatchRate: 0.98}
	if err := r.SaveAudit(context.Background(), result); err != nil {
		t.Fatalf("SaveAudit: %v", err)
	}
	if len(d.calls) != before+1 {
		t.Fatalf("expected exactly one new Exec call, got %d", len(d.calls)-before)
	}
}

func Test_SaveAcceleration(t *testing.T) {
	r, d := newTestRecorder(t)
	before := len(d.calls)

	if err := r.SaveAcceleration(context.Background(), "deadbeef", 1500); err != nil {
		t.Fatalf("SaveAcceleration: %v", err)
	}
	if len(d.calls) != before+1 {
		t.Fatalf("expected exactly one new Exec call, got %d", len(d.calls)-before)
	}
	call := d.calls[len(d.calls)-1]
	if call.args[0] != "deadbeef" {
		t.Fatalf("expected txid arg %q, got %v", "deadbeef", call.args[0])
	}
}
