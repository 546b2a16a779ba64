package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// gormLogger forwards GORM diagnostics to the service logger. Statement
// text is only logged for slow queries and unexpected errors.
type gormLogger struct {
	logg          *logger.Logger
	slowThreshold time.Duration
	level         gormlogger.LogLevel
}

func newGormLogger(logg *logger.Logger, slowThreshold time.Duration) *gormLogger {
	return &gormLogger{logg: logg, slowThreshold: slowThreshold, level: gormlogger.Warn}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		g.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		g.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		g.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

// Trace reports slow statements at warn and failed ones at debug; callers
// own the decision of whether a failed statement is an error.
func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		g.logg.Debug(g.logg.WithFields(ctx, map[string]any{
			"sql": sql, "rows": rows, "elapsed_ms": elapsed.Milliseconds(), "error": err.Error(),
		}), "db.statement_failed")
	case g.slowThreshold > 0 && elapsed > g.slowThreshold && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{
			"sql": sql, "rows": rows, "elapsed_ms": elapsed.Milliseconds(), "threshold_ms": g.slowThreshold.Milliseconds(),
		}), "db.slow_query")
	}
}
