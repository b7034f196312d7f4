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
	"fmt"
	"log/slog"
	"sort"

	"canvasvault/internal/kv"
	applog "canvasvault/internal/log"
)

// ErrNotFound is returned by Load when no record has the requested id.
var ErrNotFound = errors.New("project not found")

// maxSaveAttempts bounds the quota-eviction retry loop at three writes in
// total: the initial one plus two escalating retries. After the final attempt
// the error surfaces.
const maxSaveAttempts = 3

// Repository stores project records in a kv.Store and keeps the recents
// index consistent with them. It is not safe for concurrent use; the session
// controller serializes access.
type Repository struct {
	store        kv.Store
	limit        int
	recentsLimit int
	log          *slog.Logger
}

// NewRepository wraps store with the given caps. Non-positive caps fall back
// to the browser build's defaults of ten projects and ten recents.
func NewRepository(store kv.Store, limit, recentsLimit int) *Repository {
	if limit <= 0 {
		limit = 10
	}
	if recentsLimit <= 0 {
		recentsLimit = 10
	}
	return &Repository{
		store:        store,
		limit:        limit,
		recentsLimit: recentsLimit,
		log:          applog.WithComponent("project"),
	}
}

// Limit returns the maximum number of stored projects.
func (r *Repository) Limit() int { return r.limit }

// All returns every stored record, newest first. A corrupt projects blob is
// treated as an empty store; the damage is logged, never fatal.
func (r *Repository) All() []Record {
	projects := r.loadAll()
	out := make([]Record, 0, len(projects))
	for _, rec := range projects {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Load returns the record with the given id.
func (r *Repository) Load(id string) (Record, error) {
	rec, ok := r.loadAll()[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// SaveResult reports what a Save did besides storing the record.
type SaveResult struct {
	// Evicted lists project ids removed to make room, oldest first.
	Evicted []string
	// ThumbnailStripped is set when the final attempt had to drop the
	// record's own thumbnail to fit.
	ThumbnailStripped bool
	// Attempts counts writes to the store, including the successful one.
	Attempts int
}

// Save stamps rec with the current time and writes it. When the store is
// over its project cap the oldest records give way; when the write itself
// exceeds the byte quota, up to two retries cut the store down to three
// under the cap, the second also stripping the saved record's thumbnail.
// Records evicted here are dropped from the recents index too.
func (r *Repository) Save(rec Record) (SaveResult, error) {
	var res SaveResult
	if rec.ID == "" {
		return res, errors.New("save: empty project id")
	}
	rec.Timestamp = NowMilli()

	projects := r.loadAll()
	projects[rec.ID] = rec
	res.Evicted = append(res.Evicted, trimOldest(projects, rec.ID, r.limit)...)

	err := r.persist(projects)
	res.Attempts++
	for attempt := 0; err != nil && errors.Is(err, kv.ErrQuotaExceeded) && res.Attempts < maxSaveAttempts; attempt++ {
		plan := r.evictionPlan(attempt)
		freed := trimOldest(projects, rec.ID, plan.keep)
		res.Evicted = append(res.Evicted, freed...)
		if plan.stripThumbnail && rec.Thumbnail != "" {
			rec.Thumbnail = ""
			projects[rec.ID] = rec
			res.ThumbnailStripped = true
		}
		r.log.Warn("storage quota hit, evicting old projects",
			slog.Int("attempt", attempt+1),
			slog.Int("evicted", len(freed)),
			slog.Bool("thumbnail_stripped", plan.stripThumbnail))
		err = r.persist(projects)
		res.Attempts++
	}
	if err != nil {
		return res, fmt.Errorf("save project %s: %w", rec.ID, err)
	}
	for _, id := range res.Evicted {
		r.RemoveRecent(id)
	}
	return res, nil
}

// Delete removes a record and its recents entry. Deleting an unknown id is
// not an error.
func (r *Repository) Delete(id string) error {
	projects := r.loadAll()
	if _, ok := projects[id]; !ok {
		return nil
	}
	delete(projects, id)
	if err := r.persist(projects); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	r.RemoveRecent(id)
	return nil
}

// KeySize is the stored byte size of one key.
type KeySize struct {
	Key   string
	Bytes int64
}

// Info describes current storage occupancy.
type Info struct {
	Projects   int
	Limit      int
	UsedBytes  int64
	QuotaBytes int64
	// Keys breaks usage down per stored key, largest first.
	Keys []KeySize
}

func (r *Repository) StorageInfo() Info {
	used, quota := r.store.Usage()
	info := Info{
		Projects:   len(r.loadAll()),
		Limit:      r.limit,
		UsedBytes:  used,
		QuotaBytes: quota,
	}
	keys, err := r.store.Keys()
	if err != nil {
		r.log.Warn("listing keys failed", slog.String("error", err.Error()))
		return info
	}
	for _, k := range keys {
		v, err := r.store.Get(k)
		if err != nil {
			continue
		}
		info.Keys = append(info.Keys, KeySize{Key: k, Bytes: int64(len(v))})
	}
	sort.Slice(info.Keys, func(i, j int) bool { return info.Keys[i].Bytes > info.Keys[j].Bytes })
	return info
}

type evictionPlan struct {
	keep           int
	stripThumbnail bool
}

// evictionPlan maps a retry attempt to how many records survive it. Both
// retries cut down to three under the cap; the second additionally
// sacrifices the saved record's thumbnail.
func (r *Repository) evictionPlan(attempt int) evictionPlan {
	keep := r.limit - 3
	if keep < 1 {
		keep = 1
	}
	if attempt == 0 {
		return evictionPlan{keep: keep}
	}
	return evictionPlan{keep: keep, stripThumbnail: true}
}

// trimOldest deletes records oldest-first until at most keep remain. The
// record being saved is never a candidate. Returns the evicted ids in
// eviction order.
func trimOldest(projects map[string]Record, keepID string, keep int) []string {
	if keep < 1 {
		keep = 1
	}
	var evicted []string
	for len(projects) > keep {
		oldestID := ""
		var oldestTS int64
		for id, rec := range projects {
			if id == keepID {
				continue
			}
			if oldestID == "" || rec.Timestamp < oldestTS {
				oldestID, oldestTS = id, rec.Timestamp
			}
		}
		if oldestID == "" {
			break
		}
		delete(projects, oldestID)
		evicted = append(evicted, oldestID)
	}
	return evicted
}

func (r *Repository) loadAll() map[string]Record {
	raw, err := r.store.Get(KeyProjects)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			r.log.Warn("reading projects failed", slog.String("error", err.Error()))
		}
		return map[string]Record{}
	}
	var projects map[string]Record
	if err := json.Unmarshal(raw, &projects); err != nil {
		r.log.Warn("projects blob corrupt, starting empty", slog.String("error", err.Error()))
		return map[string]Record{}
	}
	if projects == nil {
		projects = map[string]Record{}
	}
	return projects
}

func (r *Repository) persist(projects map[string]Record) error {
	raw, err := json.Marshal(projects)
	if err != nil {
		return fmt.Errorf("encode projects: %w", err)
	}
	return r.store.Set(KeyProjects, raw)
}
