/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ccjson reads and writes the .ccjson project interchange format.
// The envelope is shared with the browser editor: a versioned JSON wrapper
// with a type tag, provenance metadata and the canvas document under "data".
package ccjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const (
	// FileType tags a project file; anything else is rejected.
	FileType = "CampusCloud Canvas Project"
	// Application is recorded in exported metadata.
	Application = "CampusCloud Canvas Editor"
	// SupportedVersion is the newest envelope version this build reads.
	SupportedVersion = "1.0"
	// Extension gates imports before the file is even opened.
	Extension = ".ccjson"
)

// CanvasSize mirrors the pixel dimensions recorded at export time.
type CanvasSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Metadata carries export provenance. All fields are advisory; their absence
// yields warnings, never errors.
type Metadata struct {
	Created     string      `json:"created,omitempty"`
	Application string      `json:"application,omitempty"`
	CanvasSize  *CanvasSize `json:"canvasSize,omitempty"`
}

// ProjectFile is the .ccjson envelope.
type ProjectFile struct {
	Version   string          `json:"version"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp,omitempty"`
	Metadata  *Metadata       `json:"metadata,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Build wraps a canvas document in a fresh envelope.
func Build(canvas json.RawMessage, width, height int) *ProjectFile {
	now := time.Now().UTC().Format(time.RFC3339)
	return &ProjectFile{
		Version:   SupportedVersion,
		Type:      FileType,
		Timestamp: now,
		Metadata: &Metadata{
			Created:     now,
			Application: Application,
			CanvasSize:  &CanvasSize{Width: width, Height: height},
		},
		Data: canvas,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// FileName derives an export file name from a project name, replacing
// anything outside [a-zA-Z0-9] like the browser build does.
func FileName(projectName string) string {
	base := unsafeNameChars.ReplaceAllString(projectName, "_")
	if base == "" || base == "_" {
		base = "project"
	}
	return base + Extension
}

// WriteFile writes the envelope atomically: the payload lands in a temp file
// in the target directory and is renamed into place.
func (f *ProjectFile) WriteFile(path string) error {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project file: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ccjson-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
