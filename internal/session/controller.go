/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session owns the editing session: which project is current, when
// it is saved, and how projects move in and out of the vault. It is the only
// writer of the current-project pointer and the legacy single-project key.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"canvasvault/internal/autosave"
	"canvasvault/internal/ccjson"
	"canvasvault/internal/editor"
	"canvasvault/internal/kv"
	applog "canvasvault/internal/log"
	"canvasvault/internal/notify"
	"canvasvault/internal/project"
	"canvasvault/internal/thumbnail"
)

// DefaultProjectName is used for projects saved before being named.
const DefaultProjectName = "Untitled Project"

// Options configure a Controller. Store, Repo and Editor are required.
type Options struct {
	Store    kv.Store
	Repo     *project.Repository
	Editor   editor.Handle
	Notifier notify.Notifier

	AutosaveInterval time.Duration
	AutosaveDebounce time.Duration
}

// Controller coordinates the repository, the editor and the autosave
// scheduler. All exported methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	store    kv.Store
	repo     *project.Repository
	editor   editor.Handle
	sched    *autosave.Scheduler
	notifier notify.Notifier
	log      *slog.Logger

	history *editor.History

	currentID   string
	projectName string
	unsubscribe func()
	importing   bool
	restoring   bool
}

func New(opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogger()
	}
	c := &Controller{
		store:    opts.Store,
		repo:     opts.Repo,
		editor:   opts.Editor,
		notifier: opts.Notifier,
		history:  editor.NewHistory(editor.HistoryConfig{MaxPerProject: 20}),
		log:      applog.WithComponent("session"),
	}
	c.sched = autosave.New(opts.AutosaveInterval, opts.AutosaveDebounce, c.autosaveNow)
	c.unsubscribe = c.editor.Subscribe(c.sched.NoteChange)
	return c
}

// legacyState is the single-project format written before the multi-project
// vault existed.
type legacyState struct {
	Timestamp int64           `json:"timestamp"`
	Canvas    json.RawMessage `json:"canvas"`
}

// Startup restores the session. Order: the current-project pointer, then the
// legacy single-project key (migrated into a real project on sight), then a
// blank canvas. It ends with the autosave scheduler running.
func (c *Controller) Startup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.sched.Start()

	if id, ok := c.currentPointer(); ok {
		rec, err := c.repo.Load(id)
		if err == nil {
			rerr := c.restoreLocked(ctx, rec)
			if rerr == nil {
				c.log.Info("restored current project", slog.String("id", id), slog.String("name", rec.Name))
				return nil
			}
			// The stored canvas will not load. Startup continues with a
			// blank canvas; the record stays in the vault, the pointer is
			// cleared so the next save does not overwrite it.
			c.log.Warn("restoring current project failed", slog.String("id", id), slog.String("error", rerr.Error()))
			c.notifier.Notify(notify.Error, "Could not restore your last project, starting with a blank canvas")
			c.store.Remove(project.KeyCurrent)
			return nil
		}
		// Stale pointer, likely left behind by an eviction.
		c.log.Warn("current pointer names a missing project", slog.String("id", id))
		c.store.Remove(project.KeyCurrent)
	}

	if raw, err := c.store.Get(project.KeyLegacyState); err == nil {
		merr := c.migrateLegacyLocked(ctx, raw)
		if merr == nil {
			return nil
		}
		c.log.Warn("legacy state unreadable, discarding", slog.String("error", merr.Error()))
		c.store.Remove(project.KeyLegacyState)
	}

	c.log.Info("starting with a blank canvas")
	return nil
}

func (c *Controller) restoreLocked(ctx context.Context, rec project.Record) error {
	c.sched.SetRecording(true)
	defer c.sched.SetRecording(false)
	if err := c.editor.Rehydrate(ctx, rec.Canvas); err != nil {
		return fmt.Errorf("restore project %s: %w", rec.ID, err)
	}
	c.currentID = rec.ID
	c.projectName = rec.Name
	c.repo.RecordRecent(rec)
	return nil
}

// migrateLegacyLocked turns the pre-vault single-project state into a real
// project record and removes the old key, one way only.
func (c *Controller) migrateLegacyLocked(ctx context.Context, raw []byte) error {
	var legacy legacyState
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return fmt.Errorf("parse legacy state: %w", err)
	}
	if len(legacy.Canvas) == 0 {
		return errors.New("legacy state has no canvas")
	}
	c.sched.SetRecording(true)
	defer c.sched.SetRecording(false)
	if err := c.editor.Rehydrate(ctx, legacy.Canvas); err != nil {
		return fmt.Errorf("rehydrate legacy canvas: %w", err)
	}

	rec := project.Record{
		ID:      project.NewProjectID(),
		Name:    "Recovered Project",
		Version: ccjson.SupportedVersion,
		Canvas:  legacy.Canvas,
	}
	if _, err := c.repo.Save(rec); err != nil {
		return err
	}
	c.currentID = rec.ID
	c.projectName = rec.Name
	c.store.Set(project.KeyCurrent, []byte(rec.ID))
	c.store.Remove(project.KeyLegacyState)
	c.repo.RecordRecent(rec)
	c.log.Info("migrated legacy project", slog.String("id", rec.ID))
	c.notifier.Notify(notify.Info, "Recovered your previous project")
	return nil
}

// SaveNow persists the current canvas immediately. A first save mints the
// project id and sets the current pointer.
func (c *Controller) SaveNow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Controller) autosaveNow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.importing {
		return nil
	}
	return c.saveLocked()
}

func (c *Controller) saveLocked() error {
	canvas, err := c.editor.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot canvas: %w", err)
	}
	if c.currentID == "" {
		c.currentID = project.NewProjectID()
	}
	if c.projectName == "" {
		c.projectName = DefaultProjectName
	}
	if !c.restoring {
		// Keep the previously persisted state reachable through Undo.
		if prev, err := c.repo.Load(c.currentID); err == nil {
			c.history.Push(editor.Checkpoint{ProjectID: c.currentID, Blob: prev.Canvas, TS: time.Now()})
		}
	}
	rec := project.Record{
		ID:        c.currentID,
		Name:      c.projectName,
		Version:   ccjson.SupportedVersion,
		Canvas:    canvas,
		Thumbnail: c.renderThumbnail(),
	}
	res, err := c.repo.Save(rec)
	if err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			c.notifier.Notify(notify.Error, "Saving failed: storage is full")
		} else {
			c.notifier.Notify(notify.Error, "Saving failed")
		}
		return err
	}
	if len(res.Evicted) > 0 {
		c.notifier.Notify(notify.Warning, fmt.Sprintf("Removed %d old project(s) to free storage", len(res.Evicted)))
	}
	if res.ThumbnailStripped {
		c.log.Warn("saved without thumbnail to fit quota", slog.String("id", rec.ID))
	}
	if err := c.store.Set(project.KeyCurrent, []byte(c.currentID)); err != nil {
		c.log.Warn("writing current pointer failed", slog.String("error", err.Error()))
	}
	saved, err := c.repo.Load(c.currentID)
	if err == nil {
		c.repo.RecordRecent(saved)
	}
	return nil
}

func (c *Controller) renderThumbnail() string {
	img, ok := c.editor.Preview()
	if !ok {
		return ""
	}
	url, err := thumbnail.DataURL(img)
	if err != nil {
		c.log.Warn("thumbnail render failed", slog.String("error", err.Error()))
		return ""
	}
	return url
}

// SwitchTo saves the current project, then loads another one into the
// editor. Autosave is suppressed while the editor is rebuilt.
func (c *Controller) SwitchTo(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.currentID {
		return nil
	}
	rec, err := c.repo.Load(id)
	if err != nil {
		return err
	}
	if c.currentID != "" {
		if err := c.saveLocked(); err != nil {
			return fmt.Errorf("save before switch: %w", err)
		}
	}
	if err := c.restoreLocked(ctx, rec); err != nil {
		return err
	}
	if err := c.store.Set(project.KeyCurrent, []byte(id)); err != nil {
		c.log.Warn("writing current pointer failed", slog.String("error", err.Error()))
	}
	c.log.Info("switched project", slog.String("id", id), slog.String("name", rec.Name))
	return nil
}

// NewProject saves the current project, then starts a blank unsaved one. The
// current pointer is cleared until the new project's first save.
func (c *Controller) NewProject(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentID != "" {
		if err := c.saveLocked(); err != nil {
			return fmt.Errorf("save before new project: %w", err)
		}
	}
	c.sched.SetRecording(true)
	defer c.sched.SetRecording(false)
	blank, err := editor.NewBlank(0, 0).Snapshot()
	if err != nil {
		return err
	}
	if err := c.editor.Rehydrate(ctx, blank); err != nil {
		return err
	}
	c.currentID = ""
	c.projectName = name
	c.store.Remove(project.KeyCurrent)
	return nil
}

// ClearCurrent detaches the session from its project without touching the
// vault: the pointer is removed and the canvas on screen becomes unsaved
// work.
func (c *Controller) ClearCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentID == "" {
		return
	}
	c.log.Info("cleared current project", slog.String("id", c.currentID))
	c.currentID = ""
	c.store.Remove(project.KeyCurrent)
}

// Rename changes the current project's name. The new name lands in the
// vault on the next save.
func (c *Controller) Rename(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectName = name
}

// Delete removes a project. Deleting the current project clears the pointer
// but leaves the canvas on screen as unsaved work.
func (c *Controller) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.repo.Delete(id); err != nil {
		return err
	}
	c.history.Clear(id)
	if id == c.currentID {
		c.currentID = ""
		c.store.Remove(project.KeyCurrent)
		c.log.Info("deleted current project, canvas kept as unsaved", slog.String("id", id))
	}
	return nil
}

// Undo rolls the current project back to its previously saved state and
// persists the rollback. Returns false when there is nothing to undo.
func (c *Controller) Undo(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentID == "" {
		return false
	}
	ckpt, ok := c.history.Undo(c.currentID)
	if !ok {
		return false
	}
	return c.applyCheckpointLocked(ctx, ckpt)
}

// Redo reapplies the state the last Undo rolled back from.
func (c *Controller) Redo(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentID == "" {
		return false
	}
	ckpt, ok := c.history.Redo(c.currentID)
	if !ok {
		return false
	}
	return c.applyCheckpointLocked(ctx, ckpt)
}

func (c *Controller) applyCheckpointLocked(ctx context.Context, ckpt editor.Checkpoint) bool {
	c.sched.SetRecording(true)
	err := c.editor.Rehydrate(ctx, ckpt.Blob)
	c.sched.SetRecording(false)
	if err != nil {
		c.log.Warn("restoring checkpoint failed", slog.String("error", err.Error()))
		return false
	}
	c.restoring = true
	defer func() { c.restoring = false }()
	if err := c.saveLocked(); err != nil {
		c.log.Warn("persisting restored state failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Import loads a .ccjson file into the editor. The result is persisted only
// when a current project exists; otherwise it stays on screen unsaved, like
// the browser build. Concurrent imports are refused.
func (c *Controller) Import(ctx context.Context, path string) ([]string, error) {
	c.mu.Lock()
	if c.importing {
		c.mu.Unlock()
		return nil, errors.New("an import is already in progress")
	}
	c.importing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.importing = false
		c.mu.Unlock()
	}()

	imp, err := ccjson.ReadFile(path)
	if err != nil {
		c.notifier.Notify(notify.Error, fmt.Sprintf("Import failed: %v", err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sched.SetRecording(true)
	err = c.editor.Rehydrate(ctx, imp.Canvas)
	c.sched.SetRecording(false)
	if err != nil {
		c.notifier.Notify(notify.Error, "Import failed: canvas could not be loaded")
		return nil, fmt.Errorf("load imported canvas: %w", err)
	}
	c.projectName = imp.Name
	for _, w := range imp.Warnings {
		c.notifier.Notify(notify.Warning, w)
	}
	if c.currentID != "" {
		if err := c.saveLocked(); err != nil {
			return imp.Warnings, err
		}
		c.notifier.Notify(notify.Success, fmt.Sprintf("Imported %q", imp.Name))
	} else {
		c.notifier.Notify(notify.Info, fmt.Sprintf("Imported %q (not yet saved)", imp.Name))
	}
	return imp.Warnings, nil
}

// Export writes the current canvas to dir as a .ccjson file and returns the
// full path.
func (c *Controller) Export(dir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	canvas, err := c.editor.Snapshot()
	if err != nil {
		return "", fmt.Errorf("snapshot canvas: %w", err)
	}
	name := c.projectName
	if name == "" {
		name = DefaultProjectName
	}
	w, h := c.editor.Size()
	path := filepath.Join(dir, ccjson.FileName(name))
	if err := ccjson.Build(canvas, w, h).WriteFile(path); err != nil {
		c.notifier.Notify(notify.Error, "Export failed")
		return "", err
	}
	c.notifier.Notify(notify.Success, fmt.Sprintf("Exported %q", name))
	return path, nil
}

// Shutdown stops autosave and performs a final save of the current project.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.sched.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.currentID == "" {
		return nil
	}
	return c.saveLocked()
}

// State is a snapshot of the session for status displays.
type State struct {
	CurrentID   string
	ProjectName string
	Projects    int
	Autosave    bool
	LastSave    time.Time
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		CurrentID:   c.currentID,
		ProjectName: c.projectName,
		Projects:    c.repo.StorageInfo().Projects,
		Autosave:    c.sched.Running(),
		LastSave:    c.sched.LastSave(),
	}
}

func (c *Controller) currentPointer() (string, bool) {
	raw, err := c.store.Get(project.KeyCurrent)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}
