/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ccjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Size gates on import. Files over MaxImportBytes are refused outright;
// files over WarnImportBytes load with a warning.
const (
	MaxImportBytes  = 100 << 20
	WarnImportBytes = 50 << 20
)

// Import is the outcome of reading a project file: the canvas document,
// a display name derived from the file, and any validation warnings.
type Import struct {
	Canvas   json.RawMessage
	Name     string
	Warnings []string
}

// ReadFile runs the full import pipeline: extension gate, size gates, a
// cheap structural sniff, JSON parsing, schema and semantic validation, and
// finally unwrapping of nested "data" envelopes from older exports.
// The extension is checked before the file is opened.
func ReadFile(path string) (*Import, error) {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return nil, fmt.Errorf("unsupported file type %q: expected a %s file", filepath.Ext(path), Extension)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s is empty", filepath.Base(path))
	}
	if fi.Size() > MaxImportBytes {
		return nil, fmt.Errorf("%s is too large (%d bytes, limit %d)", filepath.Base(path), fi.Size(), int64(MaxImportBytes))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	imp, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if fi.Size() > WarnImportBytes {
		imp.Warnings = append(imp.Warnings, fmt.Sprintf("file is very large (%d bytes); saving it may exceed the storage quota", fi.Size()))
	}
	imp.Name = importName(path)
	return imp, nil
}

// Parse validates raw file content and extracts the canvas document. It
// accepts both the full envelope and a bare canvas, the latter with a
// warning.
func Parse(raw []byte) (*Import, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, fmt.Errorf("file does not contain a JSON document")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		if trimmed[0] == '[' {
			return nil, fmt.Errorf("file holds a JSON array, not a project")
		}
		return nil, fmt.Errorf("file is not valid JSON: %v", err)
	}

	imp := &Import{}
	if typeTag, ok := top["type"]; ok && jsonString(typeTag) == FileType {
		res := ValidateProject(raw)
		if !res.Valid {
			return nil, fmt.Errorf("invalid project file: %s", strings.Join(res.Errors, "; "))
		}
		imp.Warnings = append(imp.Warnings, res.Warnings...)
		imp.Canvas = unwrapData(top["data"])
		return imp, nil
	}

	// No envelope: treat the document as a canvas, unwrapping any plain
	// "data" wrapper the same way envelope payloads are.
	canvas := unwrapData(json.RawMessage(raw))
	res := ValidateRawCanvas(canvas)
	if !res.Valid {
		return nil, fmt.Errorf("invalid canvas document: %s", strings.Join(res.Errors, "; "))
	}
	imp.Warnings = append(imp.Warnings, "file has no project envelope, importing as a raw canvas")
	imp.Warnings = append(imp.Warnings, res.Warnings...)
	imp.Canvas = canvas
	return imp, nil
}

// unwrapData peels nested "data" wrappers left behind by exports of already
// exported files. It descends while the current level has a "data" object
// and none of the canvas markers, at most three levels deep.
func unwrapData(data json.RawMessage) json.RawMessage {
	current := data
	for depth := 0; depth < 3; depth++ {
		var level map[string]json.RawMessage
		if err := json.Unmarshal(current, &level); err != nil {
			return current
		}
		inner, ok := level["data"]
		if !ok {
			return current
		}
		// A nested envelope keeps its type tag; a canvas document never
		// has one. Envelopes are always descended into, plain "data"
		// wrappers only when the current level carries no canvas fields.
		if tag, hasTag := level["type"]; !hasTag || jsonString(tag) != FileType {
			if looksLikeCanvas(current) {
				return current
			}
		}
		trimmed := bytes.TrimLeft(inner, " \t\r\n")
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return current
		}
		current = inner
	}
	return current
}

// looksLikeCanvas reports whether raw carries any of the canvas document's
// marker fields: objects, version, width, height or background.
func looksLikeCanvas(raw []byte) bool {
	var probe struct {
		Objects    *json.RawMessage `json:"objects"`
		Width      *json.RawMessage `json:"width"`
		Height     *json.RawMessage `json:"height"`
		Version    *json.RawMessage `json:"version"`
		Background *json.RawMessage `json:"background"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Objects != nil || probe.Width != nil || probe.Height != nil ||
		probe.Version != nil || probe.Background != nil
}

// hasCanvasMarkers looks for the marker fields at the top level and one level
// under a "data" wrapper.
func hasCanvasMarkers(raw []byte) bool {
	if looksLikeCanvas(raw) {
		return true
	}
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || len(wrapper.Data) == 0 {
		return false
	}
	return looksLikeCanvas(wrapper.Data)
}

func jsonString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// importName turns a file path into a display name for the imported project.
func importName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.TrimSpace(base)
	if base == "" {
		return "Imported Project"
	}
	return base
}
