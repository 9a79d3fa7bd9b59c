package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/shule/core"
)

// Diff fails the test with a line diff when got differs from want.
func Diff(t *testing.T, want, got interface{}) {
	t.Helper()
	wantStr := fmt.Sprintf("%+v", want)
	gotStr := fmt.Sprintf("%+v", got)
	if wantStr == gotStr {
		return
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(wantStr),
		B:        difflib.SplitLines(gotStr),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	t.Errorf("mismatch (-want +got):\n%s", diff)
}

// FakeDB satisfies core.DB without touching a real database; repositories
// used alongside it must ignore the executor they are handed.
type FakeDB struct {
	fakeExecutor
}

var _ core.DB = (*FakeDB)(nil)

func (db FakeDB) Begin(context.Context) (core.Tx, error) {
	return fakeTx{}, nil
}

type fakeTx struct {
	fakeExecutor
}

func (tx fakeTx) Commit() error   { return nil }
func (tx fakeTx) Rollback() error { return nil }

type fakeExecutor struct{}

func (fakeExecutor) DriverName() string     { return "fake" }
func (fakeExecutor) Rebind(q string) string { return q }
func (fakeExecutor) BindNamed(q string, arg interface{}) (string, []interface{}, error) {
	return q, nil, nil
}
func (fakeExecutor) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	panic("fake executor cannot run queries")
}
func (fakeExecutor) QueryxContext(context.Context, string, ...interface{}) (*sqlx.Rows, error) {
	panic("fake executor cannot run queries")
}
func (fakeExecutor) QueryRowxContext(context.Context, string, ...interface{}) *sqlx.Row {
	panic("fake executor cannot run queries")
}
func (fakeExecutor) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	panic("fake executor cannot run queries")
}

// FakeLogger collects log calls for assertions.
type FakeLogger struct {
	mu     sync.Mutex
	Lines  []string
	Fatals []string
}

var _ core.Logger = (*FakeLogger)(nil)

func (l *FakeLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Lines = append(l.Lines, level+": "+msg)
}

func (l *FakeLogger) Enable(bool)                          {}
func (l *FakeLogger) Debug(msg string, _ ...interface{})   { l.record("DEBUG", msg) }
func (l *FakeLogger) Info(msg string, _ ...interface{})    { l.record("INFO", msg) }
func (l *FakeLogger) Warn(msg string, _ ...interface{})    { l.record("WARN", msg) }
func (l *FakeLogger) Error(msg string, _ ...interface{})   { l.record("ERROR", msg) }
func (l *FakeLogger) Fatal(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Fatals = append(l.Fatals, msg)
}

// FakeEmailService records messages instead of sending them.
type FakeEmailService struct {
	mu       sync.Mutex
	Messages []*core.EmailMessage
}

var _ core.EmailService = (*FakeEmailService)(nil)

func (svc *FakeEmailService) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.Messages = append(svc.Messages, messages...)
}

// FakeSemesterProvider returns a fixed semester id.
type FakeSemesterProvider struct {
	SemesterID string
}

func (p FakeSemesterProvider) CurrentSemesterID(context.Context) (string, error) {
	return p.SemesterID, nil
}
