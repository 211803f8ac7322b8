// Package config loads the persistence core's runtime configuration:
// the data-root path, compaction settings, tool-result offload caps,
// the long-context pricing threshold, and the log level.
//
// Load order mirrors the teacher's internal/config package: a global
// config file, a project-local override, then environment variables —
// each layer merging over the previous one. JSONC comment-stripping and
// .env loading are kept from the teacher in spirit.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the core's runtime configuration.
type Config struct {
	// DataRoot is the directory containing events.db and logs/.
	DataRoot string `json:"dataRoot" yaml:"dataRoot"`

	// CompactionThreshold is a context usage fraction (0..1). Default 0.70
	// (spec.md §4.3). contextmgr's ShouldCompact does not read it; it
	// uses its own fixed 0.70.
	CompactionThreshold float64 `json:"compactionThreshold" yaml:"compactionThreshold"`

	// PreserveRecentTurns is a count of trailing turns kept verbatim
	// across compaction. Default 5 (spec.md §4.3.1). contextmgr does not
	// read it; its compaction calls fall back to their own default of 5.
	PreserveRecentTurns int `json:"preserveRecentTurns" yaml:"preserveRecentTurns"`

	// ToolResultEmbedCap is the byte threshold under which tool.result
	// content is embedded directly rather than offloaded. Default 10240
	// (spec.md §4.5, MAX_TOOL_RESULT_SIZE).
	ToolResultEmbedCap int `json:"toolResultEmbedCap" yaml:"toolResultEmbedCap"`

	// LongContextThreshold is the rawInputTokens value above which
	// long-context pricing multipliers apply (spec.md §4.4).
	LongContextThreshold int `json:"longContextThreshold" yaml:"longContextThreshold"`

	// LogLevel is parsed by internal/logging.ParseLevel.
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// Default returns the configuration used when no files or env vars
// override it.
func Default() Config {
	return Config{
		DataRoot:             defaultDataRoot(),
		CompactionThreshold:  0.70,
		PreserveRecentTurns:  5,
		ToolResultEmbedCap:   10 * 1024,
		LongContextThreshold: 128_000,
		LogLevel:             "info",
	}
}

func defaultDataRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "sessioncore")
	}
	return filepath.Join(os.TempDir(), "sessioncore")
}

// Load resolves configuration in priority order: defaults, then a global
// config file, then a project-local config file, then .env-sourced and
// process environment variables. directory may be empty to skip the
// project-local layer.
func Load(directory string) (Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		globalDir := filepath.Join(home, ".config", "sessioncore")
		mergeFile(&cfg, filepath.Join(globalDir, "config.json"))
		mergeFile(&cfg, filepath.Join(globalDir, "config.jsonc"))
		mergeFile(&cfg, filepath.Join(globalDir, "config.yaml"))
	}

	if directory != "" {
		localDir := filepath.Join(directory, ".sessioncore")
		mergeFile(&cfg, filepath.Join(localDir, "config.json"))
		mergeFile(&cfg, filepath.Join(localDir, "config.jsonc"))

		// .env files are sourced into the process environment (never
		// overriding a var that's already set), matching godotenv's
		// documented Load() semantics.
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // absent file is not an error; layers are optional
	}

	var fileCfg Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return
		}
	default:
		stripped := jsonc.ToJSON(data)
		if err := json.Unmarshal(stripped, &fileCfg); err != nil {
			return
		}
	}

	merge(cfg, fileCfg)
}

func merge(dst *Config, src Config) {
	if src.DataRoot != "" {
		dst.DataRoot = src.DataRoot
	}
	if src.CompactionThreshold != 0 {
		dst.CompactionThreshold = src.CompactionThreshold
	}
	if src.PreserveRecentTurns != 0 {
		dst.PreserveRecentTurns = src.PreserveRecentTurns
	}
	if src.ToolResultEmbedCap != 0 {
		dst.ToolResultEmbedCap = src.ToolResultEmbedCap
	}
	if src.LongContextThreshold != 0 {
		dst.LongContextThreshold = src.LongContextThreshold
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SESSIONCORE_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv("SESSIONCORE_COMPACTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CompactionThreshold = f
		}
	}
	if v := os.Getenv("SESSIONCORE_PRESERVE_RECENT_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PreserveRecentTurns = n
		}
	}
	if v := os.Getenv("SESSIONCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}
