/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package thumbnail produces the low-fidelity raster previews stored with
// project records. Previews are deliberately small and low quality: they are
// list decoration, and they compete with document payloads for the storage
// byte budget.
package thumbnail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// MaxEdge is the longest side of a generated thumbnail in pixels.
	MaxEdge = 128
	// Quality matches the browser editor's toDataURL('image/jpeg', 0.2).
	Quality = 20

	dataURLPrefix = "data:image/jpeg;base64,"
)

// DataURL downscales img so its longest side is at most MaxEdge and encodes
// it as a JPEG data URL.
func DataURL(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return "", errors.New("empty image")
	}

	w, h := b.Dx(), b.Dy()
	if w > MaxEdge || h > MaxEdge {
		if w >= h {
			h = h * MaxEdge / w
			w = MaxEdge
		} else {
			w = w * MaxEdge / h
			h = MaxEdge
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: Quality}); err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// IsDataURL reports whether s looks like an image data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}
