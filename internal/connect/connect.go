// Package connect implements the connect orchestrator: load config,
// wire up sinks and sources against a shared bus, and await completion.
package connect

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/config"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/extractor"
	"github.com/cdviz-collector/cdviz-collector/internal/parser"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
	"github.com/cdviz-collector/cdviz-collector/internal/sink"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
	"github.com/cdviz-collector/cdviz-collector/internal/transformer"
)

const defaultBusCapacity = 100

// Options configures a Run call.
type Options struct {
	ConfigPath string
	Directory  string // optional chdir, done after the config is loaded
}

// Run loads config, wires sinks and sources against one bus, and blocks
// until the first task error or every task exits cleanly.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if opts.Directory != "" {
		if err := os.Chdir(opts.Directory); err != nil {
			return fmt.Errorf("connect: chdir %s: %w", opts.Directory, err)
		}
	}

	b := bus.New(defaultBusCapacity)
	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	started := 0
	for name, sc := range cfg.Sinks {
		if !sc.Enabled {
			continue
		}
		s, err := sink.New(gctx, name, sc)
		if err != nil {
			cancel()
			return err
		}
		sub := b.Subscribe()
		started++
		g.Go(func() error {
			defer sub.Close()
			return s.Run(gctx, sub)
		})
	}
	if started == 0 {
		cancel()
		g.Wait()
		return errs.NewExitError(errs.ErrNoSink, errs.ExitNoSink)
	}

	sourcesStarted := 0
	for name, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		chainCfgs, err := transformer.ResolveChain(src.TransformerRefs, src.Transformers, cfg.Transformers)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		terminal := cdevents.NewTerminal(b)
		head, err := transformer.Build(chainCfgs, terminal)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		ext, err := buildExtractor(name, src.Extractor, head)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		sourcesStarted++
		g.Go(func() error {
			return ext.Run(gctx)
		})
	}
	if sourcesStarted == 0 {
		cancel()
		g.Wait()
		return errs.NewExitError(errs.ErrNoSource, errs.ExitNoSource)
	}

	return g.Wait()
}

func buildExtractor(name string, cfg config.ExtractorConfig, next pipe.Pipe) (extractor.Extractor, error) {
	switch cfg.Type {
	case "sleep", "":
		return extractor.Sleep{}, nil
	case "http":
		return extractor.NewHTTP(name, cfg.Host, cfg.Port, next), nil
	case "opendal", "storage-poll", "poll":
		backend, err := storage.New(storage.Config{Kind: storage.Kind(cfg.StorageKind), Parameters: cfg.Parameters})
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}
		p, err := parser.New(parser.Kind(cfg.Parser))
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}
		interval, err := time.ParseDuration(cfg.PollingInterval)
		if err != nil || interval <= 0 {
			interval = 10 * time.Second
		}
		return extractor.NewStoragePoll(name, backend, interval, cfg.Recursive, cfg.PathPatterns, p, next), nil
	default:
		return nil, fmt.Errorf("source %q: unknown extractor type %q", name, cfg.Type)
	}
}
