package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DefaultDir is the on-disk migrations directory used by create and validate.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect, base FS and logger in package state.
var gooseMu sync.Mutex

// Runner executes goose commands against Postgres. An empty Dir reads the
// migrations compiled into the binary.
type Runner struct {
	DB     *sql.DB
	Dir    string
	Logger *logger.Logger
}

func (r Runner) Run(ctx context.Context, command string, args ...string) error {
	if r.DB == nil {
		return fmt.Errorf("db is required")
	}
	return r.withGoose(ctx, func(dir string) error {
		if err := goose.RunContext(ctx, command, r.DB, dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// ToVersion moves the schema up or down until it sits at targetVersion.
func (r Runner) ToVersion(ctx context.Context, targetVersion string) error {
	if r.DB == nil {
		return fmt.Errorf("db is required")
	}
	target, err := parseVersion(targetVersion)
	if err != nil {
		return err
	}

	return r.withGoose(ctx, func(dir string) error {
		current, err := goose.GetDBVersionContext(ctx, r.DB)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current < target:
			if err := goose.UpToContext(ctx, r.DB, dir, target); err != nil {
				return fmt.Errorf("goose up-to %d: %w", target, err)
			}
		case current > target:
			if err := goose.DownToContext(ctx, r.DB, dir, target); err != nil {
				return fmt.Errorf("goose down-to %d: %w", target, err)
			}
		}
		return nil
	})
}

func parseVersion(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("target version is required")
	}
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected %d digits)", raw, len(versionLayout))
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}

func (r Runner) withGoose(ctx context.Context, fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir := r.Dir
	if dir == "" {
		goose.SetBaseFS(embedded)
		dir = embeddedDir
	} else {
		goose.SetBaseFS(nil)
	}
	goose.SetLogger(gooseLogger{ctx: ctx, log: r.Logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn(dir)
}

// gooseLogger routes goose progress lines through the service logger.
type gooseLogger struct {
	ctx context.Context
	log *logger.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(l.ctx, "goose fatal", fmt.Errorf(format, v...))
}
