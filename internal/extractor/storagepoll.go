package extractor

import (
	"context"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/cdviz-collector/cdviz-collector/internal/logging"
	"github.com/cdviz-collector/cdviz-collector/internal/parser"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

// StoragePoll periodically lists a storage backend, filters entries by a
// half-open time window plus glob patterns, and feeds survivors to a
// parser.
type StoragePoll struct {
	Name      string
	Backend   storage.Backend
	Interval  time.Duration
	Recursive bool
	Patterns  []string
	Parser    parser.Parser
	Next      pipe.Pipe

	logger *log.Logger
	// after is the exclusive lower bound of the next pass's window;
	// RunOnce advances it to that pass's before.
	after time.Time
}

// NewStoragePoll constructs a StoragePoll extractor. after defaults to
// the zero time, so the first pass's window starts at the epoch minimum.
func NewStoragePoll(name string, backend storage.Backend, interval time.Duration, recursive bool, patterns []string, p parser.Parser, next pipe.Pipe) *StoragePoll {
	return &StoragePoll{
		Name: name, Backend: backend, Interval: interval, Recursive: recursive,
		Patterns: patterns, Parser: p, Next: next, logger: logging.Module(name),
	}
}

// Run loops forever: one pass (which advances the window), then sleep.
func (s *StoragePoll) Run(ctx context.Context) error {
	for {
		before := time.Now()
		s.RunOnce(ctx, before)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.Interval):
		}
	}
}

// RunOnce runs a single pass with the window (s.after, before], then
// advances s.after to before so the next pass cannot select the same
// entries again. Exported so the transform-mode driver can reuse the
// exact same filtering logic for its single, non-looping pass.
func (s *StoragePoll) RunOnce(ctx context.Context, before time.Time) {
	defer func() { s.after = before }()
	entries, err := s.Backend.List(ctx, "", s.Recursive)
	if err != nil {
		s.logger.Warn("list failed, aborting this pass", "err", err)
		return
	}
	for _, entry := range entries {
		if !s.accepts(entry, before) {
			continue
		}
		if err := s.Parser.Parse(ctx, s.Backend, entry, s.Next); err != nil {
			s.logger.Warn("parser error, skipping entry", "path", entry.Path, "err", err)
		}
	}
}

func (s *StoragePoll) accepts(entry storage.Entry, before time.Time) bool {
	if !entry.IsFile {
		return false
	}
	if entry.LastModified.IsZero() {
		return false
	}
	if !entry.LastModified.After(s.after) || entry.LastModified.After(before) {
		return false
	}
	if entry.Size <= 0 {
		return false
	}
	return MatchPatterns(s.Patterns, entry.Path)
}

// MatchPatterns applies the path-pattern filter: include set empty
// accepts all; any include match with no exclude match accepts; any
// exclude match rejects, even if also included. Patterns use
// doublestar's "literal separator" semantics: a single `*` does not
// cross a `/` boundary, `**` does.
func MatchPatterns(patterns []string, path string) bool {
	var includes, excludes []string
	for _, p := range patterns {
		if len(p) > 0 && p[0] == '!' {
			excludes = append(excludes, p[1:])
		} else {
			includes = append(includes, p)
		}
	}

	for _, ex := range excludes {
		if ok, _ := doublestar.Match(ex, path); ok {
			return false
		}
	}
	if len(includes) == 0 {
		return true
	}
	for _, in := range includes {
		if ok, _ := doublestar.Match(in, path); ok {
			return true
		}
	}
	return false
}
