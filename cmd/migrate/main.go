package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.cmd, "cmd", "up", "up|down|status|version|create|validate")
	fs.StringVar(&o.dir, "dir", "", "migrations directory (embedded by default; "+migrate.DefaultDir+" for create/validate)")
	fs.StringVar(&o.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&o.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.cmd {
	case "create":
		if o.name == "" {
			return o, errors.New("-cmd=create needs -name")
		}
	case "version":
		if o.version == "" {
			return o, errors.New("-cmd=version needs -version")
		}
	case "up", "down", "status", "validate":
	default:
		return o, fmt.Errorf("unknown -cmd %q", o.cmd)
	}
	return o, nil
}

// fileDir is where create and validate look when -dir is unset.
func (o options) fileDir() string {
	if o.dir == "" {
		return migrate.DefaultDir
	}
	return o.dir
}

// runOffline handles the commands that only touch the filesystem.
func runOffline(o options, out io.Writer) (bool, error) {
	switch o.cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(o.fileDir(), o.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(o.fileDir()); err != nil {
			return true, err
		}
		fmt.Fprintln(out, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if done, err := runOffline(o, out); done {
		return err
	}

	proc, err := bootstrap.Start(ctx, "migrate", bootstrap.SkipDevMigrations())
	if err != nil {
		return err
	}
	defer proc.Close()

	ctx = proc.Logger.WithFields(ctx, map[string]any{"cmd": o.cmd, "dir": o.dir, "env": proc.Config.App.Env})
	sqlDB, err := proc.DB.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	source, err := migrate.Source(o.dir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	proc.Logger.Info(ctx, "running migrations")
	if o.cmd == "version" {
		err = migrate.MigrateToVersion(ctx, sqlDB, source, o.version)
	} else {
		err = migrate.Run(ctx, sqlDB, source, o.cmd, out)
	}
	if err != nil {
		proc.Logger.Error(ctx, "migration failed", err)
		return err
	}
	return nil
}
