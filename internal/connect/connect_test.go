package connect_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdviz-collector/cdviz-collector/internal/connect"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cdviz-collector.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_NoEnabledSink_FatalNoSink(t *testing.T) {
	path := writeConfig(t, `
[sources.poll]
enabled = true
[sources.poll.extractor]
type = "sleep"
`)
	err := connect.Run(context.Background(), connect.Options{ConfigPath: path})
	require.Error(t, err)
	assert.Equal(t, errs.ExitNoSink, errs.ExitCodeFromError(err))
}

func TestRun_NoEnabledSource_FatalNoSource(t *testing.T) {
	path := writeConfig(t, `
[sinks.debug]
enabled = true
type = "debug"
`)
	err := connect.Run(context.Background(), connect.Options{ConfigPath: path})
	require.Error(t, err)
	assert.Equal(t, errs.ExitNoSource, errs.ExitCodeFromError(err))
}

func TestRun_SleepSourceAndDebugSink_RunsUntilCancelled(t *testing.T) {
	path := writeConfig(t, `
[sinks.debug]
enabled = true
type = "debug"
[sources.poll]
enabled = true
[sources.poll.extractor]
type = "sleep"
`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := connect.Run(ctx, connect.Options{ConfigPath: path})
	require.NoError(t, err)
}

func TestRun_UnresolvedTransformerRef_ErrorsBeforeStarting(t *testing.T) {
	path := writeConfig(t, `
[sinks.debug]
enabled = true
type = "debug"
[sources.poll]
enabled = true
transformer_refs = ["missing"]
[sources.poll.extractor]
type = "sleep"
`)
	err := connect.Run(context.Background(), connect.Options{ConfigPath: path})
	require.ErrorIs(t, err, errs.ErrTransformerNotFound)
}
