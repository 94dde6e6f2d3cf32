package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/datacleaner/internal/config"
	"github.com/banshee-data/datacleaner/internal/db"
)

func runMigrate(args []string, env config.Env, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", env.DBPath, "Run database path (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("--db is required")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("migrate needs one of up, down or status: %w", errUsage)
	}

	store, err := db.OpenDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch fs.Arg(0) {
	case "up":
		if err := store.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := store.MigrateDown(); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q: %w", fs.Arg(0), errUsage)
	}

	v, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Fprintln(stdout, "schema version: none")
		return nil
	}
	fmt.Fprintf(stdout, "schema version: %d (dirty=%v)\n", v, dirty)
	return nil
}
