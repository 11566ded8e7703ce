// Команда migrate применяет и откатывает миграции схемы PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

type options struct {
	direction string
	steps     int
	dsn       string
}

// migrator — операции хранилища, которые нужны команде.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
	Close() error
}

var openMigrator = func(ctx context.Context, dsn string) (migrator, error) {
	return postgres.Open(ctx, dsn)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	opts, err := parseOptions(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: MARKETPLACE_POSTGRES_DSN)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("MARKETPLACE_POSTGRES_DSN"))
	}

	switch {
	case opts.dsn == "":
		return options{}, errors.New("MARKETPLACE_POSTGRES_DSN (or -dsn) is required")
	case opts.steps < 0:
		return options{}, errors.New("steps must be >= 0")
	}
	switch opts.direction {
	case "up", "down", "status":
	default:
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	store, err := openMigrator(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer func() { _ = store.Close() }()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	label := "migration status"
	if opts.direction != "status" {
		label = "migrate " + opts.direction + " ok"
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d pending=%d\n", label, state.Version, state.Applied, len(state.Pending))
	if opts.direction == "status" {
		for _, name := range state.Pending {
			_, _ = fmt.Fprintf(out, "  pending %s\n", name)
		}
	}
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
