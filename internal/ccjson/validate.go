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
	"fmt"
	"strconv"

	"github.com/xeipuuv/gojsonschema"
)

// projectSchema is the structural contract for the envelope. Semantic rules
// (type tag, version ceiling, provenance) are layered on top in Go because
// their outcomes differ: some are errors, some only warnings.
const projectSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "type", "data"],
  "properties": {
    "version": {"type": "string"},
    "type": {"type": "string"},
    "timestamp": {"type": "string"},
    "metadata": {
      "type": "object",
      "properties": {
        "created": {"type": "string"},
        "application": {"type": "string"},
        "canvasSize": {
          "type": "object",
          "properties": {
            "width": {"type": "number"},
            "height": {"type": "number"}
          }
        }
      }
    },
    "data": {"type": ["object", "array"]}
  }
}`

// canvasSchema accepts a bare canvas document, the shape stored under "data".
const canvasSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "version": {"type": "string"},
    "width": {"type": "number"},
    "height": {"type": "number"},
    "background": {"type": "string"},
    "objects": {"type": "array"}
  }
}`

var (
	compiledProject *gojsonschema.Schema
	compiledCanvas  *gojsonschema.Schema
)

func init() {
	var err error
	compiledProject, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(projectSchema))
	if err != nil {
		panic(fmt.Sprintf("ccjson: project schema: %v", err))
	}
	compiledCanvas, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(canvasSchema))
	if err != nil {
		panic(fmt.Sprintf("ccjson: canvas schema: %v", err))
	}
}

// Result is the outcome of validating an import. A file with warnings is
// still usable; a file with errors is not.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) errorf(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateProject checks a parsed envelope against the schema and the
// semantic rules of the format.
func ValidateProject(raw []byte) *Result {
	res := &Result{Valid: true}
	sr, err := compiledProject.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		res.errorf("file is not a valid project document: %v", err)
		return res
	}
	if !sr.Valid() {
		for _, e := range sr.Errors() {
			res.errorf("%s", e.String())
		}
		return res
	}

	var pf ProjectFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		res.errorf("file structure unreadable: %v", err)
		return res
	}
	if pf.Type != FileType {
		res.errorf("unexpected file type %q", pf.Type)
	}
	if newer, err := versionNewer(pf.Version, SupportedVersion); err != nil {
		res.errorf("unreadable version %q", pf.Version)
	} else if newer {
		res.errorf("file was created with a newer editor version (%s, this build reads up to %s)", pf.Version, SupportedVersion)
	}
	if pf.Timestamp == "" {
		res.warnf("file has no timestamp")
	}
	if pf.Metadata == nil {
		res.warnf("file has no metadata block")
	} else {
		if pf.Metadata.Created == "" {
			res.warnf("metadata is missing the created date")
		}
		if pf.Metadata.Application == "" {
			res.warnf("metadata does not name the exporting application")
		}
	}
	if !hasCanvasMarkers(pf.Data) {
		res.warnf("project data has none of the usual canvas fields (objects, version, width, height, background)")
	}
	return res
}

// ValidateRawCanvas checks a bare canvas document, the fallback for files
// that carry canvas content without the project envelope.
func ValidateRawCanvas(raw []byte) *Result {
	res := &Result{Valid: true}
	sr, err := compiledCanvas.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		res.errorf("content is not a valid canvas document: %v", err)
		return res
	}
	if !sr.Valid() {
		for _, e := range sr.Errors() {
			res.errorf("%s", e.String())
		}
		return res
	}
	if !hasCanvasMarkers(raw) {
		res.warnf("content has none of the usual canvas fields (objects, version, width, height, background)")
	}
	return res
}

// versionNewer reports whether a is a newer envelope version than b. The
// format uses simple decimal versions ("1.0"), compared numerically.
func versionNewer(a, b string) (bool, error) {
	av, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return false, err
	}
	bv, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return false, err
	}
	return av > bv, nil
}
