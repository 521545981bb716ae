package extractor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdviz-collector/cdviz-collector/internal/extractor"
	"github.com/cdviz-collector/cdviz-collector/internal/parser"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

// TestMatchPatterns_LiteralSeparator pins the glob filter: patterns
// ["*.json", "!*.out.json"]; foo.json accepted, foo.out.json rejected,
// bar/foo.json rejected (a single "*" does not cross a "/" boundary).
func TestMatchPatterns_LiteralSeparator(t *testing.T) {
	patterns := []string{"*.json", "!*.out.json"}

	assert.True(t, extractor.MatchPatterns(patterns, "foo.json"))
	assert.False(t, extractor.MatchPatterns(patterns, "foo.out.json"))
	assert.False(t, extractor.MatchPatterns(patterns, "bar/foo.json"))
}

func TestMatchPatterns_DoubleStarCrossesSeparator(t *testing.T) {
	patterns := []string{"**/*.json"}
	assert.True(t, extractor.MatchPatterns(patterns, "bar/foo.json"))
	assert.True(t, extractor.MatchPatterns(patterns, "foo.json"))
}

func TestMatchPatterns_ExcludeWinsOverInclude(t *testing.T) {
	patterns := []string{"*.json", "!foo.json"}
	assert.False(t, extractor.MatchPatterns(patterns, "foo.json"))
	assert.True(t, extractor.MatchPatterns(patterns, "bar.json"))
}

func TestMatchPatterns_EmptyIncludeAcceptsAll(t *testing.T) {
	patterns := []string{"!foo.json"}
	assert.True(t, extractor.MatchPatterns(patterns, "bar.json"))
	assert.False(t, extractor.MatchPatterns(patterns, "foo.json"))
}

type recordingPipe struct {
	received []*pipe.EventSource
}

func (r *recordingPipe) Send(_ context.Context, es *pipe.EventSource) error {
	r.received = append(r.received, es)
	return nil
}

// TestStoragePoll_HalfOpenWindow_AdvancesAfterEachPass pins the half-open
// window contract: the window is (after, before], and after advances to
// the previous before once a pass completes, so a file written between
// two passes is picked up exactly once.
func TestStoragePoll_HalfOpenWindow_AdvancesAfterEachPass(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.New(storage.Config{Kind: storage.Fs, Parameters: map[string]string{"root": dir}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, "a.json", []byte(`{"a":1}`)))

	p, err := parser.New(parser.KindJSON)
	require.NoError(t, err)

	next := &recordingPipe{}
	sp := extractor.NewStoragePoll("poll", backend, time.Minute, false, []string{"*.json"}, p, next)

	firstPass := time.Now().Add(time.Hour)
	sp.RunOnce(ctx, firstPass)
	assert.Len(t, next.received, 1, "file written before the window end is picked up")

	// Second pass with a later "before": after has advanced past the
	// file's mtime, so the half-open window now excludes it.
	secondPass := firstPass.Add(time.Hour)
	sp.RunOnce(ctx, secondPass)
	assert.Len(t, next.received, 1, "a file already consumed is not re-emitted once after advances")
}

func TestStoragePoll_SkipsDirectoriesAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.New(storage.Config{Kind: storage.Fs, Parameters: map[string]string{"root": dir}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, "empty.json", []byte{}))
	// creates the directory entry "sub" in the non-recursive listing.
	require.NoError(t, backend.Write(ctx, "sub/nested.json", []byte(`{"a":1}`)))

	p, err := parser.New(parser.KindJSON)
	require.NoError(t, err)

	next := &recordingPipe{}
	sp := extractor.NewStoragePoll("poll", backend, time.Minute, false, nil, p, next)
	sp.RunOnce(ctx, time.Now().Add(time.Hour))

	assert.Empty(t, next.received, "directories and zero-size entries are never accepted")
}
