package migrate

import (
	"context"
	_ "embed"
	"fmt"

	"gorm.io/gorm"
)

//go:embed sqlite/schema.sql
var sqliteSchema string

// ApplySQLiteSchema creates the storefront tables on a sqlite connection. It
// mirrors the Postgres migrations closely enough for local runs and tests.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.WithContext(ctx).Exec(sqliteSchema).Error; err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
