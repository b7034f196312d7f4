/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package project

import (
	"encoding/json"
	"errors"
	"log/slog"

	"canvasvault/internal/kv"
)

// Recents returns the most recently used index, newest first. A corrupt or
// missing index reads as empty.
func (r *Repository) Recents() []RecentEntry {
	raw, err := r.store.Get(KeyRecents)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			r.log.Warn("reading recents failed", slog.String("error", err.Error()))
		}
		return nil
	}
	var recents []RecentEntry
	if err := json.Unmarshal(raw, &recents); err != nil {
		r.log.Warn("recents blob corrupt, starting empty", slog.String("error", err.Error()))
		return nil
	}
	return recents
}

// RecordRecent moves rec to the front of the recents index, deduplicating by
// id and truncating to the configured cap. The index is advisory; a failed
// write is logged and swallowed so it can never fail a save.
func (r *Repository) RecordRecent(rec Record) {
	entry := RecentEntry{
		ID:        rec.ID,
		Name:      rec.Name,
		Date:      rec.Timestamp,
		Thumbnail: rec.Thumbnail,
	}
	recents := r.Recents()
	out := make([]RecentEntry, 0, len(recents)+1)
	out = append(out, entry)
	for _, e := range recents {
		if e.ID == entry.ID {
			continue
		}
		out = append(out, e)
	}
	if len(out) > r.recentsLimit {
		out = out[:r.recentsLimit]
	}
	r.persistRecents(out)
}

// RemoveRecent drops the entry with the given id, if present.
func (r *Repository) RemoveRecent(id string) {
	recents := r.Recents()
	out := recents[:0]
	for _, e := range recents {
		if e.ID != id {
			out = append(out, e)
		}
	}
	if len(out) == len(recents) {
		return
	}
	r.persistRecents(out)
}

func (r *Repository) persistRecents(recents []RecentEntry) {
	raw, err := json.Marshal(recents)
	if err != nil {
		r.log.Warn("encoding recents failed", slog.String("error", err.Error()))
		return
	}
	if err := r.store.Set(KeyRecents, raw); err != nil {
		r.log.Warn("writing recents failed", slog.String("error", err.Error()))
	}
}
