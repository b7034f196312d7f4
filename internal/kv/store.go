/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package kv implements the durable key/value store backing the vault.
// The store is assumed durable but capacity-bounded and fallible: writes may
// fail with ErrQuotaExceeded when the configured byte budget would be blown,
// which is the signal the repository's eviction policy reacts to.
package kv

import "errors"

var (
	// ErrNotFound is returned by Get/Remove when the key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrQuotaExceeded is returned by Set when the write would push total
	// stored bytes past the quota. The previous value, if any, stays intact.
	ErrQuotaExceeded = errors.New("kv: storage quota exceeded")
)

// Store is the minimal adapter surface the persistence layer depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored value for key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set writes value under key, overwriting any previous value.
	Set(key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
	// Keys lists all stored keys in unspecified order.
	Keys() ([]string, error)
	// Usage reports total stored value bytes and the configured quota
	// (quota 0 means unbounded).
	Usage() (used, quota int64)
	// Close releases underlying resources.
	Close() error
}
