/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canvasvault/internal/ccjson"
	"canvasvault/internal/editor"
	"canvasvault/internal/kv"
	"canvasvault/internal/notify"
	"canvasvault/internal/project"
)

type fixture struct {
	c     *Controller
	store *kv.MemStore
	repo  *project.Repository
	ed    *editor.Headless
	rec   *notify.Recorder
}

func newFixture(t *testing.T, store *kv.MemStore) *fixture {
	t.Helper()
	if store == nil {
		store = kv.NewMemStore(0)
	}
	repo := project.NewRepository(store, 10, 10)
	ed := editor.NewBlank(0, 0)
	rec := notify.NewRecorder()
	c := New(Options{
		Store:    store,
		Repo:     repo,
		Editor:   ed,
		Notifier: rec,
		// Keep the timers out of the way; tests drive saves directly.
		AutosaveInterval: time.Hour,
		AutosaveDebounce: time.Hour,
	})
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return &fixture{c: c, store: store, repo: repo, ed: ed, rec: rec}
}

func TestStartupBlankWhenEmpty(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	st := f.c.State()
	if st.CurrentID != "" {
		t.Fatalf("expected no current project, got %q", st.CurrentID)
	}
	if !st.Autosave {
		t.Fatal("autosave should be running after startup")
	}
}

func TestSaveNowMintsIDAndPointer(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	f.ed.AddObject("rect")
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("save: %v", err)
	}
	st := f.c.State()
	if st.CurrentID == "" {
		t.Fatal("first save did not mint a project id")
	}
	if st.ProjectName != DefaultProjectName {
		t.Fatalf("expected default name, got %q", st.ProjectName)
	}
	raw, err := f.store.Get(project.KeyCurrent)
	if err != nil || string(raw) != st.CurrentID {
		t.Fatalf("current pointer not written: %q, %v", raw, err)
	}
	saved, err := f.repo.Load(st.CurrentID)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if saved.Thumbnail == "" {
		t.Fatal("save did not capture a thumbnail")
	}
	recents := f.repo.Recents()
	if len(recents) != 1 || recents[0].ID != st.CurrentID {
		t.Fatalf("recents not updated: %+v", recents)
	}
}

func TestStartupRestoresCurrentProject(t *testing.T) {
	store := kv.NewMemStore(0)

	f := newFixture(t, store)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	f.ed.AddObject("rect")
	f.c.Rename("Poster Draft")
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("save: %v", err)
	}
	savedID := f.c.State().CurrentID
	if err := f.c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// A fresh controller over the same store restores the session.
	f2 := newFixture(t, store)
	if err := f2.c.Startup(context.Background()); err != nil {
		t.Fatalf("second startup: %v", err)
	}
	st := f2.c.State()
	if st.CurrentID != savedID {
		t.Fatalf("expected current %q, got %q", savedID, st.CurrentID)
	}
	if st.ProjectName != "Poster Draft" {
		t.Fatalf("name not restored: %q", st.ProjectName)
	}
	if f2.ed.Objects() != 1 {
		t.Fatalf("canvas not restored, %d objects", f2.ed.Objects())
	}
}

func TestLegacyStateMigration(t *testing.T) {
	store := kv.NewMemStore(0)
	legacy := `{"timestamp":1700000000000,"canvas":{"version":"1.0","width":800,"height":600,"objects":[{"type":"text"}]}}`
	if err := store.Set(project.KeyLegacyState, []byte(legacy)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f := newFixture(t, store)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	st := f.c.State()
	if st.CurrentID == "" {
		t.Fatal("migration did not create a project")
	}
	if st.ProjectName != "Recovered Project" {
		t.Fatalf("unexpected migrated name %q", st.ProjectName)
	}
	if _, err := store.Get(project.KeyLegacyState); err == nil {
		t.Fatal("legacy key survived migration")
	}
	if f.ed.Objects() != 1 {
		t.Fatalf("legacy canvas not loaded, %d objects", f.ed.Objects())
	}
	rec, err := f.repo.Load(st.CurrentID)
	if err != nil {
		t.Fatalf("migrated record missing: %v", err)
	}
	var canvas map[string]any
	if err := json.Unmarshal(rec.Canvas, &canvas); err != nil {
		t.Fatalf("migrated canvas unreadable: %v", err)
	}
	if canvas["width"].(float64) != 800 {
		t.Fatalf("migrated canvas altered: %+v", canvas)
	}
}

func TestCorruptLegacyStateDiscarded(t *testing.T) {
	store := kv.NewMemStore(0)
	store.Set(project.KeyLegacyState, []byte("{broken"))

	f := newFixture(t, store)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if f.c.State().CurrentID != "" {
		t.Fatal("corrupt legacy state should fall back to blank")
	}
	if _, err := store.Get(project.KeyLegacyState); err == nil {
		t.Fatal("corrupt legacy key not removed")
	}
}

func TestStalePointerFallsBackToBlank(t *testing.T) {
	store := kv.NewMemStore(0)
	store.Set(project.KeyCurrent, []byte("project_1_ghost"))

	f := newFixture(t, store)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if f.c.State().CurrentID != "" {
		t.Fatal("stale pointer should not restore a project")
	}
	if _, err := store.Get(project.KeyCurrent); err == nil {
		t.Fatal("stale pointer not cleared")
	}
}

func TestUnloadableProjectFallsBackToBlank(t *testing.T) {
	store := kv.NewMemStore(0)
	seed := project.NewRepository(store, 10, 10)
	rec := project.Record{ID: "p1", Name: "Broken", Version: "1.0", Canvas: json.RawMessage(`[1,2,3]`)}
	if _, err := seed.Save(rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.Set(project.KeyCurrent, []byte("p1"))

	f := newFixture(t, store)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("a project that will not load must not fail startup: %v", err)
	}
	if f.c.State().CurrentID != "" {
		t.Fatal("expected a blank session after a failed restore")
	}
	if _, err := store.Get(project.KeyCurrent); err == nil {
		t.Fatal("pointer to the unloadable project not cleared")
	}
	// The record itself is kept for manual recovery.
	if _, err := f.repo.Load("p1"); err != nil {
		t.Fatalf("unloadable record removed from the vault: %v", err)
	}
	errSeen := false
	for _, s := range f.rec.Signals() {
		if s.Level == notify.Error && strings.Contains(s.Message, "blank canvas") {
			errSeen = true
		}
	}
	if !errSeen {
		t.Fatalf("expected a restore-failure notice, got %+v", f.rec.Signals())
	}
}

func TestSaveErrorMessagesDistinguishQuota(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	f.store.FailSetsWith(1, errors.New("backend offline"))
	if err := f.c.SaveNow(); err == nil {
		t.Fatal("expected save error")
	}
	for _, s := range f.rec.Signals() {
		if strings.Contains(s.Message, "storage is full") {
			t.Fatalf("non-quota failure announced as storage full: %+v", f.rec.Signals())
		}
	}
	f.rec.Reset()

	f.store.FailSets(3)
	if err := f.c.SaveNow(); err == nil {
		t.Fatal("expected quota error")
	}
	fullSeen := false
	for _, s := range f.rec.Signals() {
		if s.Level == notify.Error && strings.Contains(s.Message, "storage is full") {
			fullSeen = true
		}
	}
	if !fullSeen {
		t.Fatalf("quota failure missing the storage-full notice: %+v", f.rec.Signals())
	}
}

func TestSwitchToSavesCurrentFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	f.ed.AddObject("rect")
	f.c.Rename("First")
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("save: %v", err)
	}
	firstID := f.c.State().CurrentID

	if err := f.c.NewProject(ctx, "Second"); err != nil {
		t.Fatalf("new project: %v", err)
	}
	f.ed.AddObject("circle")
	f.ed.AddObject("text")
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("save second: %v", err)
	}

	// Mutate the second project, then switch back without saving.
	f.ed.AddObject("line")
	if err := f.c.SwitchTo(ctx, firstID); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if f.c.State().CurrentID != firstID {
		t.Fatalf("switch did not update current id")
	}
	if f.ed.Objects() != 1 {
		t.Fatalf("first project canvas not restored, %d objects", f.ed.Objects())
	}

	// The unsaved mutation must have been flushed by the switch.
	all := f.repo.All()
	for _, rec := range all {
		if rec.Name == "Second" {
			var canvas struct {
				Objects []json.RawMessage `json:"objects"`
			}
			if err := json.Unmarshal(rec.Canvas, &canvas); err != nil {
				t.Fatalf("second canvas unreadable: %v", err)
			}
			if len(canvas.Objects) != 3 {
				t.Fatalf("switch lost edits, %d objects stored", len(canvas.Objects))
			}
			return
		}
	}
	t.Fatal("second project missing from the vault")
}

func TestDeleteCurrentClearsPointer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("save: %v", err)
	}
	id := f.c.State().CurrentID
	if err := f.c.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.c.State().CurrentID != "" {
		t.Fatal("delete did not clear the current project")
	}
	if _, err := f.store.Get(project.KeyCurrent); err == nil {
		t.Fatal("current pointer survived delete")
	}
}

func TestImportWithoutCurrentStaysUnsaved(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}

	path := exportSample(t)
	if _, err := f.c.Import(ctx, path); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := len(f.repo.All()); got != 0 {
		t.Fatalf("import without a current project must not persist, got %d records", got)
	}
	if f.ed.Objects() != 1 {
		t.Fatalf("imported canvas not loaded, %d objects", f.ed.Objects())
	}
	infoSeen := false
	for _, s := range f.rec.Signals() {
		if s.Level == notify.Info && strings.Contains(s.Message, "not yet saved") {
			infoSeen = true
		}
	}
	if !infoSeen {
		t.Fatalf("expected unsaved-import notice, got %+v", f.rec.Signals())
	}
}

func TestImportWithCurrentPersists(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("save: %v", err)
	}
	id := f.c.State().CurrentID

	path := exportSample(t)
	if _, err := f.c.Import(ctx, path); err != nil {
		t.Fatalf("import: %v", err)
	}
	rec, err := f.repo.Load(id)
	if err != nil {
		t.Fatalf("record missing after import: %v", err)
	}
	var canvas struct {
		Objects []json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(rec.Canvas, &canvas); err != nil {
		t.Fatalf("canvas unreadable: %v", err)
	}
	if len(canvas.Objects) != 1 {
		t.Fatalf("imported canvas not persisted, %d objects", len(canvas.Objects))
	}
}

func TestExportRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	f.ed.AddObject("rect")
	f.c.Rename("Campus Map")

	dir := t.TempDir()
	path, err := f.c.Export(dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(path) != "Campus_Map.ccjson" {
		t.Fatalf("unexpected export name %q", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	imp, err := ccjson.ReadFile(path)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(imp.Warnings) != 0 {
		t.Fatalf("fresh export should validate clean: %v", imp.Warnings)
	}
}

func TestUndoRestoresPreviousSave(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	f.ed.AddObject("rect")
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("first save: %v", err)
	}
	f.ed.AddObject("circle")
	// Keep the saves outside the history coalescing window.
	time.Sleep(300 * time.Millisecond)
	if err := f.c.SaveNow(); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if f.ed.Objects() != 2 {
		t.Fatalf("expected 2 objects before undo, got %d", f.ed.Objects())
	}

	if !f.c.Undo(ctx) {
		t.Fatal("undo reported nothing to undo")
	}
	if f.ed.Objects() != 1 {
		t.Fatalf("undo did not restore previous state, %d objects", f.ed.Objects())
	}
	// The rollback is persisted, not just on screen.
	rec, err := f.repo.Load(f.c.State().CurrentID)
	if err != nil {
		t.Fatalf("load after undo: %v", err)
	}
	var canvas struct {
		Objects []json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(rec.Canvas, &canvas); err != nil {
		t.Fatalf("canvas unreadable: %v", err)
	}
	if len(canvas.Objects) != 1 {
		t.Fatalf("undo not persisted, %d objects stored", len(canvas.Objects))
	}

	if !f.c.Redo(ctx) {
		t.Fatal("redo reported nothing to redo")
	}
	// Redo reapplies the undone checkpoint.
	if f.c.State().CurrentID == "" {
		t.Fatal("redo lost the current project")
	}
}

func TestUndoWithoutHistoryIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.c.Startup(ctx); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if f.c.Undo(ctx) {
		t.Fatal("undo on a blank session should report false")
	}
}

// exportSample writes a valid single-object project file to import in tests.
func exportSample(t *testing.T) string {
	t.Helper()
	canvas := json.RawMessage(`{"version":"1.0","width":640,"height":480,"background":"#ffffff","objects":[{"type":"star"}]}`)
	path := filepath.Join(t.TempDir(), "sample.ccjson")
	if err := ccjson.Build(canvas, 640, 480).WriteFile(path); err != nil {
		t.Fatalf("building sample: %v", err)
	}
	return path
}
