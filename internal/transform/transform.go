// Package transform implements the transform-mode batch driver: run
// a configured transformer chain once over a directory of JSON fixtures,
// write each result as "<name>.new.json", then reconcile against the
// checked-in "<name>.out.json" baseline per the selected Mode: build a
// file-writer terminal, resolve+build the chain in front of it, run one
// non-looping storage-poll pass, reconcile, then always clean up stray
// ".new.json" files.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cdviz-collector/cdviz-collector/internal/config"
	"github.com/cdviz-collector/cdviz-collector/internal/diff"
	"github.com/cdviz-collector/cdviz-collector/internal/extractor"
	"github.com/cdviz-collector/cdviz-collector/internal/parser"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
	"github.com/cdviz-collector/cdviz-collector/internal/transformer"
)

// Mode selects how Run reconciles freshly generated ".new.json" fixtures
// against the existing ".out.json" baseline.
type Mode string

const (
	// ModeReview interactively asks, per difference, whether to accept
	// the new state.
	ModeReview Mode = "review"
	// ModeOverwrite accepts every new state without asking.
	ModeOverwrite Mode = "overwrite"
	// ModeCheck reports differences and fails without modifying anything.
	ModeCheck Mode = "check"
)

// Options configures a Run call.
type Options struct {
	ConfigPath      string
	TransformerRefs []string
	Input           string
	Output          string
	Mode            Mode
}

// patterns matches every top-level spec fixture, excluding both halves
// of a prior run's comparison pair so re-running transform never treats
// its own output as new input.
var patterns = []string{"**/*.json", "!**/*.out.json", "!**/*.new.json"}

// Run builds the transformer chain, runs one pass over Input writing
// "<name>.new.json" files into Output, reconciles per Mode, and always
// deletes any stray ".new.json" left behind. The returned bool is true
// when no unresolved difference remains (Mode == ModeCheck failing, or
// ModeReview rejections, make it false).
func Run(ctx context.Context, opts Options) (bool, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(opts.Output, 0o755); err != nil {
		return false, fmt.Errorf("transform: mkdir %s: %w", opts.Output, err)
	}

	refs := opts.TransformerRefs
	if len(refs) == 0 {
		refs = []string{"passthrough"}
	}
	chainCfgs, err := transformer.ResolveChain(refs, nil, cfg.Transformers)
	if err != nil {
		return false, err
	}

	terminal := &outputToJSONFile{directory: opts.Output}
	head, err := transformer.Build(chainCfgs, terminal)
	if err != nil {
		return false, err
	}

	backend := storage.NewFSBackend(opts.Input)
	p, err := parser.New(parser.KindJSON)
	if err != nil {
		return false, err
	}
	sp := extractor.NewStoragePoll("transform", backend, 0, false, patterns, p, head)
	sp.RunOnce(ctx, time.Now())

	var ok bool
	switch opts.Mode {
	case ModeOverwrite:
		ok, err = overwrite(opts.Output)
	case ModeCheck:
		ok, err = check(opts.Output)
	case ModeReview, "":
		ok, err = review(opts.Output)
	default:
		return false, fmt.Errorf("transform: unknown mode %q", opts.Mode)
	}
	if cleanupErr := removeNewFiles(opts.Output); cleanupErr != nil && err == nil {
		err = cleanupErr
	}
	return ok, err
}

// outputToJSONFile is the terminal pipe (not cdevents.Terminal): it
// writes the pretty-printed EventSource itself, not a CDEvent, so the
// regression baseline captures whatever the chain actually produced.
type outputToJSONFile struct {
	directory string
}

func (o *outputToJSONFile) Send(_ context.Context, es *pipe.EventSource) error {
	meta, _ := es.Metadata.(map[string]any)
	name, _ := meta["name"].(string)
	if name == "" {
		name = "unnamed.json"
	}
	filename := strings.Replace(name, ".json", ".new.json", 1)

	data, err := json.MarshalIndent(es, "", "  ")
	if err != nil {
		return fmt.Errorf("transform: marshal %s: %w", filename, err)
	}
	return os.WriteFile(filepath.Join(o.directory, filename), data, 0o644)
}

func overwrite(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".new.json") {
			continue
		}
		outName := strings.Replace(name, ".new.json", ".out.json", 1)
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, outName)); err != nil {
			return false, err
		}
		count++
	}
	fmt.Printf("Overwritten %d files.\n", count)
	return true, nil
}

func check(dir string) (bool, error) {
	differences, err := diff.SearchNewVsOut(dir)
	if err != nil {
		return false, err
	}
	if len(differences) == 0 {
		fmt.Println("NO differences found.")
		return true, nil
	}
	fmt.Println("Differences found:")
	for cmp, d := range differences {
		diff.Show(cmp, d, true)
	}
	return false, nil
}

func review(dir string) (bool, error) {
	differences, err := diff.SearchNewVsOut(dir)
	if err != nil {
		return false, err
	}
	if len(differences) == 0 {
		fmt.Println("NO differences found.")
		return true, nil
	}
	fmt.Println("Differences found:")
	noDifferences := true
	for cmp, d := range differences {
		accepted, err := diff.Review(cmp, d)
		if err != nil {
			return false, err
		}
		noDifferences = accepted && noDifferences
	}
	return noDifferences, nil
}

func removeNewFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".new.json") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
