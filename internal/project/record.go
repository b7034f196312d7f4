/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package project implements the multi-project store: a keyed collection of
// canvas snapshots with bounded size, quota-driven eviction and a most
// recently used index. All records for a vault live under a single store key
// so a save is one atomic write.
package project

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage keys. The names are shared with the browser build of the editor so
// an exported vault stays interchangeable between the two.
const (
	KeyProjects    = "canvas-editor-projects"
	KeyRecents     = "canvas-editor-recents"
	KeyCurrent     = "canvas-editor-current"
	KeyLegacyState = "canvas-editor-state"
)

// Record is one stored project. Timestamp is unix milliseconds of the last
// save; Thumbnail is a JPEG data URL or empty.
type Record struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Canvas    json.RawMessage `json:"canvas"`
	Thumbnail string          `json:"thumbnail,omitempty"`
}

// RecentEntry is one row of the recents index, newest first.
type RecentEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Date      int64  `json:"date"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// NewProjectID returns a fresh project identifier. The prefix and the
// timestamp component match the ids minted by the browser build, the random
// tail comes from a UUID.
func NewProjectID() string {
	tail := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("project_%d_%s", time.Now().UnixMilli(), tail)
}

// NowMilli is the timestamp stamped onto saved records. Overridable in tests.
var NowMilli = func() int64 { return time.Now().UnixMilli() }
