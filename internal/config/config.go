/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal, so older builds tolerate newer files.

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type StorageConfig struct {
	// Dir is where the vault database lives. Empty means the per-user data dir.
	Dir string `yaml:"dir"`
	// MaxProjects caps how many project records the vault keeps before eviction.
	MaxProjects int `yaml:"max_projects"`
	// MaxRecents caps the recent-projects list length.
	MaxRecents int `yaml:"max_recents"`
	// QuotaBytes is the storage byte budget. 0 means the built-in default.
	QuotaBytes int64 `yaml:"quota_bytes"`
}

type AutosaveConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	DebounceMs int `yaml:"debounce_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Storage       StorageConfig  `yaml:"storage"`
	Autosave      AutosaveConfig `yaml:"autosave"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults. The autosave cadence and project
// cap mirror the browser editor this vault is compatible with: a 5 s periodic
// save, a 1 s trailing debounce, at most 10 projects.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Storage:       StorageConfig{Dir: "", MaxProjects: 10, MaxRecents: 10, QuotaBytes: 5 * 1024 * 1024},
		Autosave:      AutosaveConfig{IntervalMs: 5000, DebounceMs: 1000},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvStorageDir         = "CCV_STORAGE_DIR"
	EnvMaxProjects        = "CCV_MAX_PROJECTS"
	EnvQuotaBytes         = "CCV_QUOTA_BYTES"
	EnvAutosaveIntervalMs = "CCV_AUTOSAVE_INTERVAL_MS"
	EnvAutosaveDebounceMs = "CCV_AUTOSAVE_DEBOUNCE_MS"
	EnvTelemetryOptIn     = "CCV_TELEMETRY_OPT_IN"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "CCV_LOG_LEVEL"
	EnvLogFormat = "CCV_LOG_FORMAT"
	EnvLogSource = "CCV_LOG_SOURCE"
	EnvLogFile   = "CCV_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	base, err := userScopeDir("CanvasVault", "canvasvault")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the per-user data directory used when storage.dir is empty.
func DataDir() (string, error) {
	return userScopeDir("CanvasVault", "canvasvault")
}

func userScopeDir(titled, lowered string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, titled)
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", titled)
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", lowered)
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if strings.TrimSpace(src.Storage.Dir) != "" {
		dst.Storage.Dir = strings.TrimSpace(src.Storage.Dir)
	}
	if src.Storage.MaxProjects > 0 {
		dst.Storage.MaxProjects = src.Storage.MaxProjects
	}
	if src.Storage.MaxRecents > 0 {
		dst.Storage.MaxRecents = src.Storage.MaxRecents
	}
	if src.Storage.QuotaBytes > 0 {
		dst.Storage.QuotaBytes = src.Storage.QuotaBytes
	}
	if src.Autosave.IntervalMs > 0 {
		dst.Autosave.IntervalMs = src.Autosave.IntervalMs
	}
	if src.Autosave.DebounceMs > 0 {
		dst.Autosave.DebounceMs = src.Autosave.DebounceMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvStorageDir)); v != "" {
		cfg.Storage.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxProjects)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Storage.MaxProjects = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvQuotaBytes)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Storage.QuotaBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvAutosaveIntervalMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Autosave.IntervalMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvAutosaveDebounceMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Autosave.DebounceMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		lv := strings.ToLower(v)
		cfg.General.TelemetryOptIn = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	switch key {
	case "storage.dir":
		if os.Getenv(EnvStorageDir) != "" {
			return EnvStorageDir, true
		}
	case "storage.max_projects":
		if os.Getenv(EnvMaxProjects) != "" {
			return EnvMaxProjects, true
		}
	case "storage.quota_bytes":
		if os.Getenv(EnvQuotaBytes) != "" {
			return EnvQuotaBytes, true
		}
	case "autosave.interval_ms":
		if os.Getenv(EnvAutosaveIntervalMs) != "" {
			return EnvAutosaveIntervalMs, true
		}
	case "autosave.debounce_ms":
		if os.Getenv(EnvAutosaveDebounceMs) != "" {
			return EnvAutosaveDebounceMs, true
		}
	case "general.telemetry_opt_in":
		if os.Getenv(EnvTelemetryOptIn) != "" {
			return EnvTelemetryOptIn, true
		}
	case "logging.level":
		if os.Getenv(EnvLogLevel) != "" {
			return EnvLogLevel, true
		}
	case "logging.format":
		if os.Getenv(EnvLogFormat) != "" {
			return EnvLogFormat, true
		}
	case "logging.source":
		if os.Getenv(EnvLogSource) != "" {
			return EnvLogSource, true
		}
	case "logging.file":
		if os.Getenv(EnvLogFile) != "" {
			return EnvLogFile, true
		}
	}
	return "", false
}
