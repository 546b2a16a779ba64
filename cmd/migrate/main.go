package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// dbCommands run against a live postgres connection.
var dbCommands = map[string]func(ctx context.Context, runner migrate.Runner, opts options) error{
	"up": func(ctx context.Context, runner migrate.Runner, _ options) error {
		return runner.Run(ctx, "up")
	},
	"down": func(ctx context.Context, runner migrate.Runner, _ options) error {
		return runner.Run(ctx, "down")
	},
	"redo": func(ctx context.Context, runner migrate.Runner, _ options) error {
		return runner.Run(ctx, "redo")
	},
	"status": func(ctx context.Context, runner migrate.Runner, _ options) error {
		return runner.Run(ctx, "status")
	},
	"version": func(ctx context.Context, runner migrate.Runner, opts options) error {
		return runner.ToVersion(ctx, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+commandList())
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory (empty uses the migrations built into the binary)")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	cfg, err := config.Load()
	exitOn(context.Background(), logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"dir":    opts.dir,
		"driver": cfg.DB.Driver,
	})

	switch *cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		exitOn(ctx, logg, "create migration", err)
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		exitOn(ctx, logg, "validate migrations", migrate.ValidateDir(opts.dir))
		logg.Info(ctx, "migrations valid")
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		exitOn(ctx, logg, "parse flags", fmt.Errorf("unknown -cmd %q (want %s)", *cmd, commandList()))
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	// sqlite has no versioned history; only a full schema apply is meaningful.
	if cfg.DB.Driver == db.DriverSQLite {
		if *cmd != "up" {
			exitOn(ctx, logg, "sqlite", fmt.Errorf("only -cmd=up is supported for sqlite"))
		}
		exitOn(ctx, logg, "apply sqlite schema", migrate.ApplySQLiteSchema(ctx, dbClient.DB()))
		logg.Info(ctx, "sqlite schema applied")
		return
	}

	conn, err := dbClient.DB().DB()
	exitOn(ctx, logg, "open sql handle", err)

	runner := migrate.Runner{DB: conn, Dir: opts.dir, Logger: logg}
	exitOn(ctx, logg, "goose "+*cmd, run(ctx, runner, opts))
	logg.Info(ctx, "migration command finished")
}

func commandList() string {
	names := []string{"create", "validate"}
	for name := range dbCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("migrate failed: %s", step), err)
	os.Exit(1)
}
