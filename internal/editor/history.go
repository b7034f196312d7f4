/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"sync"
	"time"
)

// Checkpoint is a reversible canvas state for one project. Blob content is
// opaque to the history; size is estimated as len(Blob). TS is when the
// checkpoint was captured.
type Checkpoint struct {
	ProjectID string
	Blob      []byte
	TS        time.Time
}

// HistoryConfig controls memory and depth caps and coalescing behavior.
type HistoryConfig struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerProject limits checkpoints per project kept in memory (0 means unlimited).
	MaxPerProject int
	// MinInterval coalesces checkpoints captured within the interval for the
	// same project, replacing the previous one instead of pushing a new entry.
	MinInterval time.Duration
}

// History is an in-memory undo/redo stack per project with performance
// safeguards. It is safe for concurrent use.
type History struct {
	cfg HistoryConfig
	mu  sync.Mutex
	// per-project stacks
	undo map[string][]Checkpoint
	redo map[string][]Checkpoint
	// accounting
	totalBytes int
}

func NewHistory(cfg HistoryConfig) *History {
	// Set conservative defaults if not provided
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &History{cfg: cfg, undo: make(map[string][]Checkpoint), redo: make(map[string][]Checkpoint)}
}

// Push records a checkpoint for a project. If within MinInterval from the
// last checkpoint on the same project, it replaces the last one. Clears the
// redo stack for that project.
func (h *History) Push(c Checkpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[c.ProjectID]
	if n := len(stack); n > 0 {
		last := stack[n-1]
		if c.TS.Sub(last.TS) < h.cfg.MinInterval {
			// Coalesce: adjust accounting and replace
			h.totalBytes -= len(last.Blob)
			h.totalBytes += len(c.Blob)
			stack[n-1] = c
			h.undo[c.ProjectID] = stack
			h.redo[c.ProjectID] = nil
			h.enforceCapsLocked(c.ProjectID)
			return
		}
	}
	// Push new
	stack = append(stack, c)
	h.undo[c.ProjectID] = stack
	h.totalBytes += len(c.Blob)
	// Any new change invalidates redo for the project
	h.redo[c.ProjectID] = nil
	h.enforceCapsLocked(c.ProjectID)
}

// Undo pops from the project's undo stack and pushes to the redo stack,
// returning the checkpoint.
func (h *History) Undo(projectID string) (Checkpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[projectID]
	if len(stack) == 0 {
		return Checkpoint{}, false
	}
	c := stack[len(stack)-1]
	h.undo[projectID] = stack[:len(stack)-1]
	h.totalBytes -= len(c.Blob)
	h.redo[projectID] = append(h.redo[projectID], c)
	return c, true
}

// Redo pops from redo and pushes back to undo.
func (h *History) Redo(projectID string) (Checkpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.redo[projectID]
	if len(r) == 0 {
		return Checkpoint{}, false
	}
	c := r[len(r)-1]
	h.redo[projectID] = r[:len(r)-1]
	h.undo[projectID] = append(h.undo[projectID], c)
	h.totalBytes += len(c.Blob)
	h.enforceCapsLocked(projectID)
	return c, true
}

// Clear drops the undo/redo stacks for a project to free memory, typically
// after the project is deleted or evicted.
func (h *History) Clear(projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.undo[projectID] {
		h.totalBytes -= len(c.Blob)
	}
	delete(h.undo, projectID)
	delete(h.redo, projectID)
	if h.totalBytes < 0 {
		h.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (totalBytes int, projects int, totalCheckpoints int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	projects = len(h.undo)
	for _, v := range h.undo {
		totalCheckpoints += len(v)
	}
	return h.totalBytes, projects, totalCheckpoints
}

func (h *History) enforceCapsLocked(projectID string) {
	// Per-project depth cap
	if h.cfg.MaxPerProject > 0 {
		stack := h.undo[projectID]
		if len(stack) > h.cfg.MaxPerProject {
			// drop the oldest extras
			toDrop := len(stack) - h.cfg.MaxPerProject
			for i := 0; i < toDrop; i++ {
				h.totalBytes -= len(stack[i].Blob)
			}
			h.undo[projectID] = append([]Checkpoint{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune oldest across all projects
	for h.cfg.MaxBytes > 0 && h.totalBytes > h.cfg.MaxBytes {
		oldestProject := ""
		oldestIdx := -1
		var oldestTS time.Time
		for id, stack := range h.undo {
			if len(stack) == 0 {
				continue
			}
			if oldestIdx == -1 || stack[0].TS.Before(oldestTS) {
				oldestProject = id
				oldestIdx = 0
				oldestTS = stack[0].TS
			}
		}
		if oldestIdx == -1 {
			break
		}
		stack := h.undo[oldestProject]
		h.totalBytes -= len(stack[0].Blob)
		h.undo[oldestProject] = stack[1:]
		if len(h.undo[oldestProject]) == 0 {
			delete(h.undo, oldestProject)
		}
	}
}
