package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/migrate"
)

const serviceName = "migrate"

func main() {
	cmd := flag.String("cmd", "up", "up | down | status | version | validate")
	target := flag.String("version", "", "target YYYYMMDDHHMMSS version for -cmd=version")
	flag.Parse()

	if *cmd == "validate" {
		if err := migrate.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "migrations are invalid:\n%v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations are valid")
		return
	}

	if err := run(*cmd, *target); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *cmd, err)
		os.Exit(1)
	}
}

func run(cmd, target string) error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer client.Close()
	pool, err := client.SQL()
	if err != nil {
		return err
	}
	dialect := client.Dialect()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": cmd, "dialect": dialect})

	var ran []migrate.Applied
	switch cmd {
	case "up":
		ran, err = migrate.Up(ctx, pool, dialect)
	case "down":
		ran, err = migrate.Down(ctx, pool, dialect)
	case "version":
		if target == "" {
			return fmt.Errorf("-version is required")
		}
		ran, err = migrate.MigrateToVersion(ctx, pool, dialect, target)
	case "status":
		states, err := migrate.Status(ctx, pool, dialect)
		if err != nil {
			return err
		}
		printStatus(states)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	for _, m := range ran {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     m.Version,
			"file":        m.File,
			"direction":   m.Direction,
			"duration_ms": m.Duration.Milliseconds(),
		}), "migration finished")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "count", len(ran)), "migrate done")
	return nil
}

func printStatus(states []migrate.State) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED AT\tFILE")
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, applied, s.File)
	}
	tw.Flush()
}
