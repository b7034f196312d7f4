/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"canvasvault/internal/config"
	"canvasvault/internal/crash"
	"canvasvault/internal/editor"
	"canvasvault/internal/kv"
	applog "canvasvault/internal/log"
	"canvasvault/internal/project"
	"canvasvault/internal/session"
	"canvasvault/internal/telemetry"
	"canvasvault/internal/version"
)

func usage() {
	fmt.Println("CanvasVault — local project vault for the canvas editor")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  canvasvault version|-v|--version   Show version")
	fmt.Println("  canvasvault list                    List stored projects")
	fmt.Println("  canvasvault recents                 Show the recent-projects index")
	fmt.Println("  canvasvault info                    Show storage occupancy")
	fmt.Println("  canvasvault import <file.ccjson>    Import a project file")
	fmt.Println("  canvasvault export <dir>            Export the current project")
	fmt.Println("  canvasvault switch <id>             Make another project current")
	fmt.Println("  canvasvault delete <id>             Delete a project")
	fmt.Println("  canvasvault clear                   Detach from the current project")
	fmt.Println("  canvasvault new <name>              Start a blank project")
	fmt.Println("  canvasvault run                     Run the session with autosave until interrupted")
}

// app bundles everything a subcommand needs.
type app struct {
	sess  *session.Controller
	store *kv.SQLiteStore
	repo  *project.Repository
	cfg   config.AppConfig
}

// bootstrap opens the vault and builds a session controller from config.
func bootstrap(l *slog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Dir == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.Storage.Dir = dir
	}
	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := kv.OpenSQLite(cfg.Storage.Dir, cfg.Storage.QuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	repo := project.NewRepository(store, cfg.Storage.MaxProjects, cfg.Storage.MaxRecents)
	sess := session.New(session.Options{
		Store:            store,
		Repo:             repo,
		Editor:           editor.NewBlank(0, 0),
		AutosaveInterval: time.Duration(cfg.Autosave.IntervalMs) * time.Millisecond,
		AutosaveDebounce: time.Duration(cfg.Autosave.DebounceMs) * time.Millisecond,
	})
	l.Debug("vault opened", slog.String("dir", cfg.Storage.Dir))
	return &app{sess: sess, store: store, repo: repo, cfg: cfg}, nil
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")

	var sess *session.Controller
	var dataDir string
	defer func() { crash.Recover(sess, dataDir) }()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) <= 1 {
		usage()
		return
	}

	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("CanvasVault")
		fmt.Println(version.String())
		return
	case "help", "--help", "-h":
		usage()
		return
	}

	ctx := context.Background()
	a, err := bootstrap(l)
	if err != nil {
		fail(l, "bootstrap failed", err)
	}
	sess = a.sess
	dataDir = a.cfg.Storage.Dir
	repo, cfg := a.repo, a.cfg
	defer func() {
		if err := a.store.Close(); err != nil {
			l.Warn("closing vault", slog.Any("err", err))
		}
	}()

	switch args[1] {
	case "list":
		all := repo.All()
		if len(all) == 0 {
			fmt.Println("No projects stored.")
			return
		}
		for _, rec := range all {
			fmt.Printf("%-40s  %-24s  %s\n", rec.ID, rec.Name, time.UnixMilli(rec.Timestamp).Format(time.RFC3339))
		}
	case "recents":
		recents := repo.Recents()
		if len(recents) == 0 {
			fmt.Println("No recent projects.")
			return
		}
		for i, e := range recents {
			fmt.Printf("%2d. %-24s  %s\n", i+1, e.Name, e.ID)
		}
	case "info":
		info := repo.StorageInfo()
		fmt.Printf("Projects: %d / %d\n", info.Projects, info.Limit)
		fmt.Printf("Storage:  %d / %d bytes\n", info.UsedBytes, info.QuotaBytes)
		fmt.Println("Dir:     ", cfg.Storage.Dir)
		for _, k := range info.Keys {
			fmt.Printf("  %-28s %d bytes\n", k.Key, k.Bytes)
		}
	case "import":
		if len(args) < 3 {
			fmt.Println("import requires <file.ccjson>")
			usage()
			os.Exit(2)
		}
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		warnings, err := sess.Import(ctx, args[2])
		if err != nil {
			fail(l, "import failed", err)
		}
		for _, w := range warnings {
			fmt.Println("Warning:", w)
		}
		telemetry.Event("import", nil)
		if err := sess.Shutdown(ctx); err != nil {
			fail(l, "shutdown failed", err)
		}
		fmt.Println("Imported", args[2])
	case "export":
		if len(args) < 3 {
			fmt.Println("export requires <dir>")
			usage()
			os.Exit(2)
		}
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		path, err := sess.Export(args[2])
		if err != nil {
			fail(l, "export failed", err)
		}
		telemetry.Event("export", nil)
		fmt.Println("Exported to", path)
	case "switch":
		if len(args) < 3 {
			fmt.Println("switch requires <id>")
			usage()
			os.Exit(2)
		}
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		if err := sess.SwitchTo(ctx, args[2]); err != nil {
			fail(l, "switch failed", err)
		}
		if err := sess.Shutdown(ctx); err != nil {
			fail(l, "shutdown failed", err)
		}
		fmt.Println("Current project is now", args[2])
	case "delete":
		if len(args) < 3 {
			fmt.Println("delete requires <id>")
			usage()
			os.Exit(2)
		}
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		if err := sess.Delete(args[2]); err != nil {
			fail(l, "delete failed", err)
		}
		fmt.Println("Deleted", args[2])
	case "clear":
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		sess.ClearCurrent()
		fmt.Println("Current project cleared; next save starts a new one.")
	case "new":
		if len(args) < 3 {
			fmt.Println("new requires <name>")
			usage()
			os.Exit(2)
		}
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		if err := sess.NewProject(ctx, args[2]); err != nil {
			fail(l, "new project failed", err)
		}
		if err := sess.SaveNow(); err != nil {
			fail(l, "save failed", err)
		}
		st := sess.State()
		fmt.Printf("Created project %q (%s)\n", st.ProjectName, st.CurrentID)
	case "run":
		if err := sess.Startup(ctx); err != nil {
			fail(l, "startup failed", err)
		}
		st := sess.State()
		if st.CurrentID == "" {
			fmt.Println("Session started on a blank canvas.")
		} else {
			fmt.Printf("Session started on %q (%s).\n", st.ProjectName, st.CurrentID)
		}
		fmt.Printf("Autosave every %dms, debounce %dms. Ctrl-C to stop.\n", cfg.Autosave.IntervalMs, cfg.Autosave.DebounceMs)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		fmt.Println("\nShutting down...")
		if err := sess.Shutdown(ctx); err != nil {
			fail(l, "shutdown failed", err)
		}
		fmt.Println("Session saved.")
	default:
		usage()
		os.Exit(2)
	}
}
