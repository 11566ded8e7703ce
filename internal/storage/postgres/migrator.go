package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Миграции лежат парами NNNN_name.up.sql / NNNN_name.down.sql и встраиваются
// в бинарник. Журнал хранит версию и контрольную сумму up-скрипта.
const (
	migrationsDir     = "sql/migrations"
	migrationLockKey  = int64(0x6d6b74706c)
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS marketplace_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)
)

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

// MigrationState — состояние схемы относительно встроенных миграций.
type MigrationState struct {
	// Version — максимальная применённая версия, 0 для пустой схемы.
	Version int64
	Applied int
	// Pending — ещё не применённые миграции в порядке применения.
	Pending []string
}

// MigrateUp применяет неприменённые миграции. steps=0 применяет все.
// Миграция, чей up-скрипт изменился после применения, останавливает процесс.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, false, steps)
}

// MigrateDown откатывает последние steps миграций. steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, true, steps)
}

// MigrationStatus сравнивает журнал со встроенными миграциями.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errors.New("postgres store is not initialized")
	}
	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := readAppliedMigrations(queryCtx, s.db)
	if err != nil {
		return MigrationState{}, err
	}
	return describeMigrations(all, applied), nil
}

func (s *Store) migrate(ctx context.Context, down bool, steps int) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := readAppliedMigrations(ctx, conn)
		if err != nil {
			return err
		}

		var plan []migration
		if down {
			plan, err = planDown(all, applied, steps)
		} else {
			plan, err = planUp(all, applied, steps)
		}
		if err != nil {
			return err
		}

		for _, m := range plan {
			if err := runMigration(ctx, conn, m, down); err != nil {
				return err
			}
		}
		return nil
	})
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock,
// чтобы параллельные экземпляры не применяли миграции одновременно.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn)
}

func runMigration(ctx context.Context, conn *sql.Conn, m migration, down bool) (err error) {
	direction, script := "up", m.Up
	record := `INSERT INTO marketplace_migrations (version, name, checksum) VALUES ($1, $2, $3)`
	args := []any{m.Version, m.Name, m.checksum()}
	if down {
		direction, script = "down", m.Down
		record = `DELETE FROM marketplace_migrations WHERE version = $1`
		args = []any{m.Version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("run %s migration %s: %w", direction, m.label(), err)
	}
	if _, err = tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}
	return nil
}

// readAppliedMigrations возвращает версии из журнала с их контрольными суммами.
func readAppliedMigrations(ctx context.Context, db dbtx) (map[int64]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM marketplace_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]string)
	for rows.Next() {
		var (
			version  int64
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func planUp(all []migration, applied map[int64]string, steps int) ([]migration, error) {
	var plan []migration
	for _, m := range all {
		if checksum, ok := applied[m.Version]; ok {
			if checksum != m.checksum() {
				return nil, fmt.Errorf("migration %s was modified after it was applied", m.label())
			}
			continue
		}
		plan = append(plan, m)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan, nil
}

func planDown(all []migration, applied map[int64]string, steps int) ([]migration, error) {
	known := make(map[int64]migration, len(all))
	for _, m := range all {
		known[m.Version] = m
	}

	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps < len(versions) {
		versions = versions[:steps]
	}

	plan := make([]migration, 0, len(versions))
	for _, version := range versions {
		m, ok := known[version]
		if !ok {
			return nil, fmt.Errorf("cannot roll back unknown migration version %d", version)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

func describeMigrations(all []migration, applied map[int64]string) MigrationState {
	state := MigrationState{Applied: len(applied)}
	for version := range applied {
		if version > state.Version {
			state.Version = version
		}
	}
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			state.Pending = append(state.Pending, m.label())
		}
	}
	return state
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, direction, err := parseMigrationFile(entry.Name())
		if err != nil {
			return nil, err
		}

		body, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(body))
		if script == "" {
			return nil, fmt.Errorf("migration file %s is empty", entry.Name())
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.Name, name)
		}

		target := &m.Up
		if direction == "down" {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s script for migration %d", direction, version)
		}
		*target = script
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func parseMigrationFile(file string) (version int64, name, direction string, err error) {
	match := migrationFileRe.FindStringSubmatch(file)
	if match == nil {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", file)
	}
	version, err = strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", file, err)
	}
	if version <= 0 {
		return 0, "", "", fmt.Errorf("migration version must be positive: %s", file)
	}
	return version, match[2], match[3], nil
}
