/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor defines the narrow capability surface the persistence layer
// needs from a canvas editor. The real editor is an external collaborator;
// everything here treats its document as an opaque JSON payload and never
// interprets the internal scene-graph structure.
package editor

import (
	"context"
	"encoding/json"
	"image"
)

// Handle is the boundary interface consumed by autosave and session code.
// Adapting a concrete editor to this interface is the only place allowed to
// know the collaborator's actual shape.
type Handle interface {
	// Snapshot serializes the live document to its opaque JSON form.
	Snapshot() (json.RawMessage, error)
	// Rehydrate reconstructs the live document from a serialized payload.
	Rehydrate(ctx context.Context, payload json.RawMessage) error
	// Objects returns the number of objects on the canvas, for status
	// reporting only.
	Objects() int
	// Size returns the workspace dimensions in pixels.
	Size() (w, h int)
	// Preview renders a raster preview of the canvas, when the editor can.
	Preview() (image.Image, bool)
	// Subscribe registers a change-notification callback and returns a
	// cancel func. Callbacks fire after every document mutation.
	Subscribe(fn func()) (cancel func())
}
