// Package store implements the durable decoy domain / public key record store.
// Each record kind keeps exactly one current row; every write replaces the
// previous row inside a single transaction.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

const (
	// SchemaVersion tracks the current schema version
	SchemaVersion = 2

	busyTimeoutMillis = 30000
)

// ErrNotFound is returned when no record of the requested kind exists yet
var ErrNotFound = errors.New("store: no record")

// Options tune how the store is opened
type Options struct {
	// ReadOnly opens an existing database without creating it
	ReadOnly bool
}

// Store wraps the SQL database connection
type Store struct {
	db     *sql.DB
	path   string
	logger *logger.Logger
	mutex  sync.RWMutex
}

var _ domain.DecoyStore = (*Store)(nil)

// Open opens the SQLite database at path. The schema is not touched; call
// InitializeSchema before the first write.
func Open(path string, opts Options, log *logger.Logger) (*Store, error) {
	if path == "" {
		return nil, rerrors.NewStorageUnavailableError("open", fmt.Errorf("empty database path"))
	}
	if log == nil {
		log = logger.NewNop()
	}

	dsn := path
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, rerrors.NewStorageUnavailableError("open", err)
		}
		dsn = "file:" + path + "?mode=ro"
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, rerrors.NewStorageUnavailableError("open", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rerrors.NewStorageUnavailableError("open", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis)); err != nil {
		db.Close()
		return nil, rerrors.NewStorageUnavailableError("open", err)
	}

	s := &Store{db: db, path: path, logger: log.StoreLogger()}
	s.logger.WithFields(map[string]interface{}{
		"path":      path,
		"read_only": opts.ReadOnly,
	}).Debug("Store opened")
	return s, nil
}

// Path returns the database location
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable
func (s *Store) Ping() error {
	if err := s.db.Ping(); err != nil {
		return rerrors.NewStorageUnavailableError("ping", err)
	}
	return nil
}

// InitializeSchema creates the record tables if they do not exist. It is safe
// to call on every startup and upgrades tables created without versioning.
func (s *Store) InitializeSchema() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL,
		description TEXT
	);`); err != nil {
		return rerrors.NewStorageUnavailableError("initialize schema", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return rerrors.NewStorageUnavailableError("initialize schema", err)
	}

	if current < SchemaVersion {
		if err := s.applyMigrations(current); err != nil {
			return rerrors.NewStorageUnavailableError("initialize schema", err)
		}
	}
	return nil
}

// applyMigrations applies database schema migrations
func (s *Store) applyMigrations(fromVersion int) error {
	s.logger.Infof("Applying store migrations from version %d to %d", fromVersion, SchemaVersion)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Migration 1: the two single-purpose tables
	if fromVersion < 1 {
		if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS fakedomain (
			reality   TEXT,
			shadowtls TEXT,
			hysteria  TEXT
		);
		CREATE TABLE IF NOT EXISTS realitykey (
			key TEXT
		);`); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
	}

	// Migration 2: record versions and timestamps
	if fromVersion < 2 {
		for _, table := range []string{"fakedomain", "realitykey"} {
			for _, col := range []string{"version", "created_at"} {
				has, err := hasColumn(tx, table, col)
				if err != nil {
					return fmt.Errorf("migration 2 failed: %w", err)
				}
				if has {
					continue
				}
				stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER NOT NULL DEFAULT 0", table, col)
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration 2 failed: %w", err)
				}
			}
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO schema_version (version, applied_at, description)
		VALUES (?, ?, ?)
	`, SchemaVersion, time.Now().Unix(), "decoy domain and reality key records"); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// ReplaceDomainSelection deletes every prior selection and stores sel as the
// only row. On failure the previous selection is left intact.
func (s *Store) ReplaceDomainSelection(sel domain.DecoySelection) error {
	if err := sel.Validate(); err != nil {
		return rerrors.NewInvalidInputError("store", err.Error())
	}

	version, err := s.replace("fakedomain",
		"INSERT INTO fakedomain (version, reality, shadowtls, hysteria, created_at) VALUES (?, ?, ?, ?, ?)",
		func(version int64, now int64) []interface{} {
			return []interface{}{version, sel.Reality, sel.ShadowTLS, sel.Hysteria, now}
		})
	if err != nil {
		return rerrors.NewStorageUnavailableError("replace domain selection", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"version":   version,
		"reality":   sel.Reality,
		"shadowtls": sel.ShadowTLS,
		"hysteria":  sel.Hysteria,
	}).Info("Decoy domain selection replaced")
	return nil
}

// ReplacePublicKey deletes every prior public key and stores pub as the only row
func (s *Store) ReplacePublicKey(pub string) error {
	if pub == "" {
		return rerrors.NewInvalidInputError("store", "public key cannot be empty")
	}

	version, err := s.replace("realitykey",
		"INSERT INTO realitykey (version, key, created_at) VALUES (?, ?, ?)",
		func(version int64, now int64) []interface{} {
			return []interface{}{version, pub, now}
		})
	if err != nil {
		return rerrors.NewStorageUnavailableError("replace public key", err)
	}

	s.logger.WithField("version", version).Info("Reality public key replaced")
	return nil
}

// replace runs the read-delete-insert sequence for one table in a transaction
func (s *Store) replace(table, insert string, args func(version, now int64) []interface{}) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // ignored once Commit succeeds

	var current int64
	if err := tx.QueryRow(fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", table)).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read current version: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table, err)
	}

	next := current + 1
	if _, err := tx.Exec(insert, args(next, time.Now().Unix())...); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// LatestDomainSelection returns the newest selection or ErrNotFound
func (s *Store) LatestDomainSelection() (*domain.StoredSelection, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var (
		sel                          domain.StoredSelection
		reality, shadowtls, hysteria sql.NullString
		createdAt                    int64
	)
	err := s.db.QueryRow(`
		SELECT version, reality, shadowtls, hysteria, created_at
		FROM fakedomain ORDER BY version DESC, ROWID DESC LIMIT 1
	`).Scan(&sel.Version, &reality, &shadowtls, &hysteria, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, rerrors.NewStorageUnavailableError("read domain selection", err)
	}

	sel.Reality = reality.String
	sel.ShadowTLS = shadowtls.String
	sel.Hysteria = hysteria.String
	sel.CreatedAt = time.Unix(createdAt, 0).UTC()
	// migrated legacy rows may carry NULL or blank columns
	if err := sel.Validate(); err != nil {
		return nil, rerrors.NewStorageUnavailableError("read domain selection",
			fmt.Errorf("incomplete record at version %d: %w", sel.Version, err))
	}
	return &sel, nil
}

// LatestPublicKey returns the newest public key or ErrNotFound
func (s *Store) LatestPublicKey() (*domain.StoredPublicKey, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var (
		key       domain.StoredPublicKey
		value     sql.NullString
		createdAt int64
	)
	err := s.db.QueryRow(`
		SELECT version, key, created_at
		FROM realitykey ORDER BY version DESC, ROWID DESC LIMIT 1
	`).Scan(&key.Version, &value, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, rerrors.NewStorageUnavailableError("read public key", err)
	}

	key.Key = value.String
	if strings.TrimSpace(key.Key) == "" {
		return nil, rerrors.NewStorageUnavailableError("read public key",
			fmt.Errorf("incomplete record at version %d: empty key", key.Version))
	}
	key.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &key, nil
}

// Counts returns the number of rows per record table, for diagnostics
func (s *Store) Counts() (map[string]int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := make(map[string]int, 2)
	for _, table := range []string{"fakedomain", "realitykey"} {
		var n int
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, rerrors.NewStorageUnavailableError("count records", err)
		}
		counts[table] = n
	}
	return counts, nil
}
