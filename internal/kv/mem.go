/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package kv

import (
	"fmt"
	"sync"
)

// MemStore is an in-memory Store used by tests and the ephemeral run mode.
// Quota behaves like SQLiteStore's; FailSets forces the next N writes to fail
// with ErrQuotaExceeded regardless of usage, which lets tests drive the
// repository's eviction escalation deterministically.
type MemStore struct {
	mu       sync.Mutex
	m        map[string][]byte
	quota    int64
	failSets int
	failErr  error
}

func NewMemStore(quota int64) *MemStore {
	return &MemStore{m: make(map[string][]byte), quota: quota}
}

// FailSets makes the next n Set calls fail with ErrQuotaExceeded.
func (s *MemStore) FailSets(n int) {
	s.FailSetsWith(n, ErrQuotaExceeded)
}

// FailSetsWith makes the next n Set calls fail with err.
func (s *MemStore) FailSetsWith(n int, err error) {
	s.mu.Lock()
	s.failSets = n
	s.failErr = err
	s.mu.Unlock()
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSets > 0 {
		s.failSets--
		return fmt.Errorf("set %q: %w", key, s.failErr)
	}
	if s.quota > 0 {
		used := s.usedLocked()
		used -= int64(len(s.m[key]))
		if used+int64(len(value)) > s.quota {
			return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
		}
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.m[key] = cp
	return nil
}

func (s *MemStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MemStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemStore) Usage() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedLocked(), s.quota
}

func (s *MemStore) usedLocked() int64 {
	var used int64
	for _, v := range s.m {
		used += int64(len(v))
	}
	return used
}

func (s *MemStore) Close() error { return nil }
