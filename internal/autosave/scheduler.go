/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package autosave drives periodic and change-triggered background saves.
// A running scheduler combines a fixed-interval ticker with a trailing
// debounce on change notifications, so a burst of edits costs one write.
package autosave

import (
	"log/slog"
	"sync"
	"time"

	applog "canvasvault/internal/log"
)

// Defaults match the cadence of the browser build.
const (
	DefaultInterval = 5 * time.Second
	DefaultDebounce = 1 * time.Second
)

// SaveFunc persists the current project. The scheduler never interprets the
// error beyond logging it; a failed autosave must not stop the next one.
type SaveFunc func() error

// Scheduler owns the autosave timers. Start and Stop bracket the lifetime of
// one editor; starting an already running scheduler is a no-op.
type Scheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	debounce  time.Duration
	save      SaveFunc
	ticker    *time.Ticker
	trailing  *time.Timer
	done      chan struct{}
	running   bool
	recording bool
	lastSave  time.Time
	log       *slog.Logger
}

// New builds a stopped scheduler. Non-positive durations fall back to the
// defaults.
func New(interval, debounce time.Duration, save SaveFunc) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Scheduler{
		interval: interval,
		debounce: debounce,
		save:     save,
		log:      applog.WithComponent("autosave"),
	}
}

// Start launches the periodic ticker. Idempotent while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	go s.loop(s.ticker, s.done)
	s.log.Debug("autosave started", slog.Duration("interval", s.interval))
}

// Stop halts the ticker and cancels any pending trailing save. Safe to call
// on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.done)
	if s.trailing != nil {
		s.trailing.Stop()
		s.trailing = nil
	}
	s.log.Debug("autosave stopped")
}

// Running reports whether the periodic ticker is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetRecording suppresses saves while the editor is being torn down and
// rebuilt. Changes observed during recording are dropped, not queued; the
// rebuild ends with an explicit save.
func (s *Scheduler) SetRecording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = on
	if on && s.trailing != nil {
		s.trailing.Stop()
		s.trailing = nil
	}
}

// NoteChange schedules a trailing save. Repeated calls inside the debounce
// window collapse into a single write carrying the latest state.
func (s *Scheduler) NoteChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.recording {
		return
	}
	if s.trailing != nil {
		s.trailing.Stop()
	}
	s.trailing = time.AfterFunc(s.debounce, s.fire)
}

// LastSave returns the time of the most recent successful save, zero if none.
func (s *Scheduler) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave
}

func (s *Scheduler) loop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-ticker.C:
			s.fire()
		case <-done:
			return
		}
	}
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.running || s.recording {
		s.mu.Unlock()
		return
	}
	save := s.save
	s.mu.Unlock()

	if err := save(); err != nil {
		s.log.Warn("autosave failed", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.lastSave = time.Now()
	s.mu.Unlock()
}
