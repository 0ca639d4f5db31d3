package tokenstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newSQLMock(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQL(sqlx.NewDb(db, "sqlite")), mock
}

func TestSQLSaveAndLoad(t *testing.T) {
	kv, mock := newSQLMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("insert into client_tokens").
		WithArgs(KeyAccess, `"a1"`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into client_tokens").
		WithArgs(KeyRefresh, `"r1"`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := New(kv).Save(ctx, Pair{Access: "a1", Refresh: "r1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("select value from client_tokens where name = ?")).
		WithArgs(KeyAccess).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`"a1"`))
	mock.ExpectQuery(regexp.QuoteMeta("select value from client_tokens where name = ?")).
		WithArgs(KeyRefresh).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	got, err := New(kv).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != (Pair{Access: "a1"}) {
		t.Fatalf("unexpected pair %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLSaveRollsBackOnError(t *testing.T) {
	kv, mock := newSQLMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into client_tokens").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	if err := New(kv).Save(context.Background(), Pair{Access: "a", Refresh: "r"}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLClear(t *testing.T) {
	kv, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta("delete from client_tokens where name in (?, ?)")).
		WithArgs(KeyAccess, KeyRefresh).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := New(kv).Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
