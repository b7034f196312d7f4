/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
)

// Default workspace dimensions, matching the editor's blank-document size.
const (
	DefaultWidth  = 1200
	DefaultHeight = 610
)

// Headless is an in-process Handle implementation. It holds the serialized
// document verbatim and maintains just enough derived state (object count,
// workspace size) for status reporting. The CLI run mode and the test suite
// use it in place of the real canvas editor.
type Headless struct {
	mu      sync.Mutex
	doc     json.RawMessage
	width   int
	height  int
	subs    map[int]func()
	nextSub int
}

// NewBlank creates a headless editor with an empty document of the given
// size. Non-positive dimensions fall back to the defaults.
func NewBlank(width, height int) *Headless {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	doc := fmt.Sprintf(`{"version":"1.0","width":%d,"height":%d,"background":"#ffffff","objects":[]}`, width, height)
	return &Headless{doc: json.RawMessage(doc), width: width, height: height, subs: make(map[int]func())}
}

// NewFromJSON creates a headless editor rehydrated from payload.
func NewFromJSON(ctx context.Context, payload json.RawMessage) (*Headless, error) {
	h := NewBlank(0, 0)
	if err := h.Rehydrate(ctx, payload); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Headless) Snapshot() (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.doc) == 0 {
		return nil, errors.New("no document")
	}
	out := make(json.RawMessage, len(h.doc))
	copy(out, h.doc)
	return out, nil
}

// Rehydrate replaces the live document. The payload must be a JSON object;
// anything else is the headless analogue of the real editor failing to
// reconstruct a scene graph.
func (h *Headless) Rehydrate(ctx context.Context, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	h.mu.Lock()
	h.doc = append(json.RawMessage(nil), payload...)
	if w := intField(doc, "width"); w > 0 {
		h.width = w
	}
	if ht := intField(doc, "height"); ht > 0 {
		h.height = ht
	}
	h.mu.Unlock()
	h.notify()
	return nil
}

func intField(doc map[string]json.RawMessage, key string) int {
	raw, ok := doc[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

func (h *Headless) Objects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var doc struct {
		Objects []json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(h.doc, &doc); err != nil {
		return 0
	}
	return len(doc.Objects)
}

func (h *Headless) Size() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// Preview renders a flat placeholder raster at the workspace size. The real
// editor rasterizes the scene; headless mode only needs something encodable.
func (h *Headless) Preview() (image.Image, bool) {
	h.mu.Lock()
	w, ht := h.width, h.height
	h.mu.Unlock()
	if w <= 0 || ht <= 0 {
		return nil, false
	}
	img := image.NewRGBA(image.Rect(0, 0, w, ht))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	// A corner marker so previews are not byte-identical across documents.
	n := h.Objects()
	c := color.RGBA{R: uint8(40 + n*13), G: 90, B: 200, A: 255}
	for y := 0; y < 8 && y < ht; y++ {
		for x := 0; x < 8 && x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, true
}

func (h *Headless) Subscribe(fn func()) func() {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Headless) notify() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// AddObject appends an object of the given type to the document and fires
// change notifications, simulating a user edit.
func (h *Headless) AddObject(typ string) error {
	h.mu.Lock()
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(h.doc, &doc); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("add object: %w", err)
	}
	var objects []json.RawMessage
	if raw, ok := doc["objects"]; ok {
		if err := json.Unmarshal(raw, &objects); err != nil {
			h.mu.Unlock()
			return fmt.Errorf("add object: %w", err)
		}
	}
	obj, _ := json.Marshal(map[string]any{"type": typ})
	objects = append(objects, obj)
	rawObjs, _ := json.Marshal(objects)
	doc["objects"] = rawObjs
	newDoc, err := json.Marshal(doc)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.doc = newDoc
	h.mu.Unlock()
	h.notify()
	return nil
}
