/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package notify carries short user-facing signals (the toast notifications
// of the browser shell) without binding the persistence layer to any UI.
// Messages stay short; diagnostic detail belongs in the log, not here.
package notify

import (
	"log/slog"
	"sync"
	"time"

	applog "canvasvault/internal/log"
)

// Level is the severity of a signal.
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Duration returns how long a signal of this severity stays visible before
// auto-dismissing. Errors linger longest.
func (l Level) Duration() time.Duration {
	switch l {
	case Success:
		return 4 * time.Second
	case Warning:
		return 5 * time.Second
	case Error:
		return 6 * time.Second
	default:
		return 3 * time.Second
	}
}

// Notifier receives user-facing signals.
type Notifier interface {
	Notify(level Level, message string)
}

// Logger is a Notifier that writes signals through the application log.
// It is the default sink in headless contexts.
type Logger struct{ l *slog.Logger }

func NewLogger() *Logger { return &Logger{l: applog.WithComponent("notify")} }

func (n *Logger) Notify(level Level, message string) {
	attrs := []any{slog.String("severity", level.String()), slog.Duration("dismiss_after", level.Duration())}
	switch level {
	case Error:
		n.l.Error(message, attrs...)
	case Warning:
		n.l.Warn(message, attrs...)
	default:
		n.l.Info(message, attrs...)
	}
}

// Signal is a recorded notification.
type Signal struct {
	Level   Level
	Message string
}

// Recorder captures signals for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	r.signals = append(r.signals, Signal{Level: level, Message: message})
	r.mu.Unlock()
}

// Signals returns a copy of everything recorded so far.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal(nil), r.signals...)
}

// Reset clears recorded signals.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.signals = nil
	r.mu.Unlock()
}
