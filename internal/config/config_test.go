package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdviz-collector/cdviz-collector/internal/config"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
)

func TestLoad_BaseConfigOnly_DebugSinkDisabled(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Contains(t, cfg.Sinks, "debug")
	assert.False(t, cfg.Sinks["debug"].Enabled)
	require.Contains(t, cfg.Transformers, "passthrough")
}

func TestLoad_UserFileMergesOverBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdviz-collector.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[sources.poll]
enabled = true
[sources.poll.extractor]
type = "sleep"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Contains(t, cfg.Sources, "poll")
	assert.True(t, cfg.Sources["poll"].Enabled)
	assert.Equal(t, "sleep", cfg.Sources["poll"].Extractor.Type)
	// base config's debug sink still present, unaffected by the merge.
	assert.Contains(t, cfg.Sinks, "debug")
}

func TestLoad_MalformedUserFile_ErrConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdviz-collector.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sinks.debug\nenabled = true"), 0o644))

	_, err := config.Load(path)
	require.ErrorIs(t, err, errs.ErrConfigMalformed)
}

func TestLoad_MissingUserFile_ErrConfigNotFound(t *testing.T) {
	_, err := config.Load("/nonexistent/path/cdviz-collector.toml")
	require.ErrorIs(t, err, errs.ErrConfigNotFound)
}

func TestLoad_EnvOverride_EnablesDebugSink(t *testing.T) {
	t.Setenv("CDVIZ_COLLECTOR__SINKS__DEBUG__ENABLED", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Sinks["debug"].Enabled)
}

func TestLoad_EnvOverride_WinsOverUserFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdviz-collector.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[sinks.debug]
enabled = true
`), 0o644))

	t.Setenv("CDVIZ_COLLECTOR__SINKS__DEBUG__ENABLED", "false")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Sinks["debug"].Enabled)
}
