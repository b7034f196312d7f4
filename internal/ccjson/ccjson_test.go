/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ccjson

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCanvas = `{"version":"1.0","width":1200,"height":610,"background":"#ffffff","objects":[{"type":"rect"}]}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestExportImportRoundTrip(t *testing.T) {
	pf := Build(json.RawMessage(sampleCanvas), 1200, 610)
	path := filepath.Join(t.TempDir(), "poster.ccjson")
	if err := pf.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}

	imp, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(imp.Warnings) != 0 {
		t.Fatalf("fresh export should import clean, got warnings %v", imp.Warnings)
	}
	if imp.Name != "poster" {
		t.Fatalf("unexpected import name %q", imp.Name)
	}
	var canvas map[string]any
	if err := json.Unmarshal(imp.Canvas, &canvas); err != nil {
		t.Fatalf("canvas payload unreadable: %v", err)
	}
	if canvas["width"].(float64) != 1200 {
		t.Fatalf("canvas not preserved: %+v", canvas)
	}
}

func TestExtensionGateRunsBeforeRead(t *testing.T) {
	// The path does not exist; the extension check must reject it first.
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), Extension) {
		t.Fatalf("expected extension error, got %v", err)
	}
}

func TestEmptyFileRejected(t *testing.T) {
	path := writeTemp(t, "empty.ccjson", "")
	if _, err := ReadFile(path); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty-file error, got %v", err)
	}
}

func TestNonJSONRejected(t *testing.T) {
	path := writeTemp(t, "junk.ccjson", "this is not json at all")
	if _, err := ReadFile(path); err == nil || !strings.Contains(err.Error(), "JSON") {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestArrayRejected(t *testing.T) {
	path := writeTemp(t, "array.ccjson", `[1,2,3]`)
	if _, err := ReadFile(path); err == nil {
		t.Fatal("expected error for a top-level array")
	}
}

func TestNewerVersionRejected(t *testing.T) {
	pf := Build(json.RawMessage(sampleCanvas), 1200, 610)
	pf.Version = "2.0"
	raw, _ := json.Marshal(pf)
	path := writeTemp(t, "future.ccjson", string(raw))
	_, err := ReadFile(path)
	if err == nil || !strings.Contains(err.Error(), "newer") {
		t.Fatalf("expected newer-version error, got %v", err)
	}
}

func TestWrongTypeTagImportsAsRawCanvas(t *testing.T) {
	raw := `{"version":"1.0","type":"Some Other Format","data":{"objects":[]},"objects":[]}`
	path := writeTemp(t, "other.ccjson", raw)
	imp, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	found := false
	for _, w := range imp.Warnings {
		if strings.Contains(w, "raw canvas") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected raw-canvas warning, got %v", imp.Warnings)
	}
}

func TestMissingMetadataCreatedIsWarningOnly(t *testing.T) {
	pf := Build(json.RawMessage(sampleCanvas), 1200, 610)
	pf.Metadata.Created = ""
	raw, _ := json.Marshal(pf)

	res := ValidateProject(raw)
	if !res.Valid {
		t.Fatalf("missing created date must not invalidate the file: %v", res.Errors)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "created") {
		t.Fatalf("expected exactly one created-date warning, got %v", res.Warnings)
	}
}

func TestNestedEnvelopeUnwrapped(t *testing.T) {
	inner := Build(json.RawMessage(sampleCanvas), 1200, 610)
	innerRaw, _ := json.Marshal(inner)
	outer := Build(innerRaw, 1200, 610)
	raw, _ := json.Marshal(outer)

	path := writeTemp(t, "nested.ccjson", string(raw))
	imp, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var canvas map[string]any
	if err := json.Unmarshal(imp.Canvas, &canvas); err != nil {
		t.Fatalf("canvas unreadable: %v", err)
	}
	if _, hasType := canvas["type"]; hasType {
		t.Fatalf("envelope not unwrapped: %+v", canvas)
	}
	if _, hasObjects := canvas["objects"]; !hasObjects {
		t.Fatalf("canvas content lost: %+v", canvas)
	}
}

func TestRawCanvasImport(t *testing.T) {
	path := writeTemp(t, "bare.ccjson", sampleCanvas)
	imp, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(imp.Warnings) == 0 {
		t.Fatal("expected a warning about the missing envelope")
	}
	if string(imp.Canvas) != sampleCanvas {
		t.Fatal("raw canvas content altered on import")
	}
}

func TestPlainDataWrapperUnwrappedWithoutEnvelope(t *testing.T) {
	path := writeTemp(t, "wrapped.ccjson", `{"data":{"objects":[],"version":"1.0"}}`)
	imp, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var canvas map[string]any
	if err := json.Unmarshal(imp.Canvas, &canvas); err != nil {
		t.Fatalf("canvas unreadable: %v", err)
	}
	if _, wrapped := canvas["data"]; wrapped {
		t.Fatalf("data wrapper not unwrapped: %+v", canvas)
	}
	if _, hasObjects := canvas["objects"]; !hasObjects {
		t.Fatalf("canvas content lost: %+v", canvas)
	}
	for _, w := range imp.Warnings {
		if strings.Contains(w, "canvas fields") {
			t.Fatalf("unwrapped canvas flagged as unrecognized: %v", imp.Warnings)
		}
	}
}

func TestEnvelopeWithUnrecognizedDataWarns(t *testing.T) {
	pf := Build(json.RawMessage(`{"foo":1}`), 1200, 610)
	raw, _ := json.Marshal(pf)

	res := ValidateProject(raw)
	if !res.Valid {
		t.Fatalf("unrecognized data must stay a warning, got errors %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "canvas fields") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a canvas-fields warning, got %v", res.Warnings)
	}
}

func TestBackgroundAloneCountsAsCanvasMarker(t *testing.T) {
	res := ValidateRawCanvas([]byte(`{"background":"#ffffff"}`))
	if !res.Valid {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "canvas fields") {
			t.Fatalf("background marker not recognized: %v", res.Warnings)
		}
	}
}

func TestFileName(t *testing.T) {
	cases := map[string]string{
		"My Poster (final)": "My_Poster_final_" + Extension,
		"":                  "project" + Extension,
		"###":               "project" + Extension,
		"Plan2026":          "Plan2026" + Extension,
	}
	for in, want := range cases {
		if got := FileName(in); got != want {
			t.Fatalf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
