/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package kv

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSQLiteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(dir, 0)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer s.Close()

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set("a", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !bytes.Equal(got, []byte(`{"x":1}`)) {
		t.Fatalf("round trip mismatch: %s", got)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := s.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
	// Removing a missing key is not an error.
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove of missing key: %v", err)
	}
}

func TestSQLiteQuota(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(dir, 32)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer s.Close()

	if err := s.Set("k", make([]byte, 24)); err != nil {
		t.Fatalf("Set within quota: %v", err)
	}
	if err := s.Set("k2", make([]byte, 16)); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	// The failed write must not have clobbered anything.
	if _, err := s.Get("k2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed Set left a value behind: %v", err)
	}
	// Overwriting an existing key counts the replaced bytes as freed.
	if err := s.Set("k", make([]byte, 30)); err != nil {
		t.Fatalf("overwrite within quota: %v", err)
	}
	used, quota := s.Usage()
	if used != 30 || quota != 32 {
		t.Fatalf("usage = %d/%d, want 30/32", used, quota)
	}
}

func TestSQLiteRecreatesCorruptVault(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(dir, 0)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	if err := s.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Overwrite the database with junk.
	if err := os.WriteFile(VaultPath(dir), []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("corrupt vault: %v", err)
	}

	s2, err := OpenSQLite(dir, 0)
	if err != nil {
		t.Fatalf("reopen after corruption: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("recreated vault should be empty, got %v", err)
	}
	// A backup of the junk file should exist.
	ents, _ := os.ReadDir(filepath.Join(dir, "backups"))
	if len(ents) == 0 {
		t.Fatalf("expected a backup of the corrupt vault file")
	}
}

func TestMemStoreFailSets(t *testing.T) {
	s := NewMemStore(0)
	s.FailSets(2)
	if err := s.Set("a", []byte("1")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("first forced failure missing: %v", err)
	}
	if err := s.Set("a", []byte("1")); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second forced failure missing: %v", err)
	}
	if err := s.Set("a", []byte("1")); err != nil {
		t.Fatalf("third Set should succeed: %v", err)
	}
}
