package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	if err := db.Exec("CREATE TABLE IF NOT EXISTS codes (code TEXT NOT NULL UNIQUE)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.Exec("DELETE FROM codes").Error; err != nil {
		t.Fatalf("reset table: %v", err)
	}
	if err := db.Exec("INSERT INTO codes (code) VALUES ('A')").Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.Exec("INSERT INTO codes (code) VALUES ('A')").Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatal("plain errors are not unique violations")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is not a unique violation")
	}
}

func TestDialectorForSQLite(t *testing.T) {
	d := dialectorFor(config.DBConfig{Driver: DriverSQLite, DSN: "file::memory:"})
	if d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %s", d.Name())
	}
	d = dialectorFor(config.DBConfig{Driver: DriverPostgres, DSN: "postgres://localhost/db"})
	if d.Name() != "postgres" {
		t.Fatalf("expected postgres dialector, got %s", d.Name())
	}
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	client := NewFromConn(newTestDB(t))

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("allocate: %w", &pgconn.PgError{Code: pgSerializationFailure})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithTxGivesUpAfterRetries(t *testing.T) {
	client := &Client{conn: newTestDB(t), txRetries: 1}

	calls := 0
	deadlock := &pgconn.PgError{Code: pgDeadlockDetected}
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return deadlock
	})
	if !errors.Is(err, deadlock) {
		t.Fatalf("expected deadlock error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	client := NewFromConn(newTestDB(t))

	calls := 0
	_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestMapErrorTxConflictIsRetryable(t *testing.T) {
	err := MapError(&pgconn.PgError{Code: pgSerializationFailure}, "allocate")
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) || !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable dependency error, got %v", err)
	}
}

func TestWithTxRetriesWrappedSQLiteBusy(t *testing.T) {
	client := NewFromConn(newTestDB(t))

	busy := errors.New("database is locked (5) (SQLITE_BUSY)")
	mapped := MapError(busy, "decrement stock entry")
	if !IsTxConflict(mapped) {
		t.Fatalf("expected mapped busy error to be a tx conflict: %v", mapped)
	}
	if !pkgerrors.HasCode(mapped, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", mapped)
	}

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("allocate: %w", mapped)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestGormLoggerReportsSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	gl := newGormLogger(logg, 10*time.Millisecond)
	fc := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), fc, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast query should not log: %s", buf.String())
	}

	gl.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	if !strings.Contains(buf.String(), "db.slow_query") || !strings.Contains(buf.String(), "SELECT 1") {
		t.Fatalf("expected slow query entry, got %s", buf.String())
	}

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	if buf.Len() != 0 {
		t.Fatalf("silent mode should not log: %s", buf.String())
	}
}
