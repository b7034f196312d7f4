/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	applog "canvasvault/internal/log"
	"canvasvault/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	VaultFileName = "vault.sqlite"

	// schemaVersion tracks the local SQLite schema of the vault database.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 1
)

// VaultPath returns the full path to the vault database file under dir.
func VaultPath(dir string) string {
	return filepath.Join(dir, VaultFileName)
}

// SQLiteStore persists key/value pairs in an embedded single-file database.
// A quota of 0 disables budget enforcement.
type SQLiteStore struct {
	mu    sync.Mutex
	db    *sql.DB
	path  string
	quota int64
	log   *slog.Logger
}

// OpenSQLite opens (or creates) the vault database under dir, enables WAL,
// and ensures the kv/meta schema exists. A database that fails the integrity
// probe is backed up aside and recreated empty; key/value content is
// re-creatable from the editor's live document, so losing it is preferable to
// refusing to start.
func OpenSQLite(dir string, quota int64) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("kv"), "open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create storage dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	path := VaultPath(dir)

	db, err := openAndEnsure(path)
	if err != nil {
		// Corrupt or unopenable database: back it up and start fresh.
		l.Warn("vault unusable, recreating", slog.Any("err", err), slog.String("path", path))
		backupVaultFile(path)
		_ = os.Remove(path)
		db, err = openAndEnsure(path)
		if err != nil {
			l.Error("recreate vault failed", slog.Any("err", err))
			return nil, err
		}
	}
	l.Info("vault ready", slog.String("path", path))
	return &SQLiteStore{db: db, path: path, quota: quota, log: applog.WithComponent("kv")}, nil
}

func openAndEnsure(path string) (*sql.DB, error) {
	uriPath := filepath.ToSlash(path)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", uriPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// quick_check catches a vault file overwritten with junk.
	var chk string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check;").Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		_ = db.Close()
		return nil, fmt.Errorf("integrity check failed: %v (%s)", err, chk)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			id         INTEGER PRIMARY KEY CHECK(id=1),
			schema     INTEGER NOT NULL,
			app        TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM meta WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO meta (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert meta: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read meta: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE meta SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update meta: %w", err)
		}
	}
	return nil
}

// backupVaultFile copies the current vault file into a timestamped backup next to it.
func backupVaultFile(path string) {
	bdir := filepath.Join(filepath.Dir(path), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
	if data, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func (s *SQLiteStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quota > 0 {
		used, err := s.usedLocked()
		if err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
		var prev int64
		_ = s.db.QueryRow(`SELECT length(value) FROM kv WHERE key=?`, key).Scan(&prev)
		if used-prev+int64(len(value)) > s.quota {
			return fmt.Errorf("set %q (%d bytes, %d/%d used): %w", key, len(value), used, s.quota, ErrQuotaExceeded)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key=?`, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Usage() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used, err := s.usedLocked()
	if err != nil {
		s.log.Warn("usage query failed", slog.Any("err", err))
		return 0, s.quota
	}
	return used, s.quota
}

func (s *SQLiteStore) usedLocked() (int64, error) {
	var used int64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(length(value)),0) FROM kv`).Scan(&used); err != nil {
		return 0, err
	}
	return used, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
