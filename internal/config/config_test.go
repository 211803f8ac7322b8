package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 0.70, cfg.CompactionThreshold)
	require.Equal(t, 5, cfg.PreserveRecentTurns)
	require.Equal(t, 10*1024, cfg.ToolResultEmbedCap)
	require.Equal(t, 128_000, cfg.LongContextThreshold)
}

func TestLoad_ProjectLayerOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	localDir := filepath.Join(dir, ".sessioncore")
	require.NoError(t, os.MkdirAll(localDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "config.json"), []byte(`{
		// trailing comment allowed, this is JSONC
		"compactionThreshold": 0.5,
		"preserveRecentTurns": 2
	}`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 0.5, cfg.CompactionThreshold)
	require.Equal(t, 2, cfg.PreserveRecentTurns)
	require.Equal(t, 10*1024, cfg.ToolResultEmbedCap) // untouched default
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	localDir := filepath.Join(dir, ".sessioncore")
	require.NoError(t, os.MkdirAll(localDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "config.json"), []byte(`{"compactionThreshold": 0.5}`), 0644))
	t.Setenv("SESSIONCORE_COMPACTION_THRESHOLD", "0.9")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 0.9, cfg.CompactionThreshold)
}
