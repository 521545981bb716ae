// Package transformer implements the concrete transformer pipes —
// passthrough, log, discard-all, template (Handlebars-style), expression
// (VRL-style alternate) — plus the ref resolver that expands a
// source's transformer_refs into an ordered chain.
//
// Chain construction is strictly right-to-left: Build starts from the
// terminal pipe and wraps each transformer config in reverse order, so
// each pipe is handed ownership of its successor at construction time.
package transformer

import (
	"context"
	"fmt"

	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/logging"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
)

// Kind identifies a transformer pipe implementation.
type Kind string

const (
	KindPassthrough Kind = "passthrough"
	KindLog         Kind = "log"
	KindDiscardAll  Kind = "discard-all"
	KindTemplate    Kind = "template"
)

// Format selects the template engine for a KindTemplate config.
type Format string

const (
	FormatHandlebars Format = "hbs"
	FormatExpression Format = "vrl"
)

// Config describes one transformer in a chain. Type selects the pipe
// implementation; Format/Content are only meaningful for KindTemplate
// ("hbs" or "vrl", and the template/expression source respectively).
type Config struct {
	Type    Kind   `mapstructure:"type" toml:"type"`
	Target  string `mapstructure:"target" toml:"target"` // log tag
	Format  Format `mapstructure:"format" toml:"format"`
	Content string `mapstructure:"content" toml:"content"`
}

// Build constructs a single head pipe from chain, right-to-left, with
// terminal as the innermost next pipe.
func Build(chain []Config, terminal pipe.Pipe) (pipe.Pipe, error) {
	next := terminal
	for i := len(chain) - 1; i >= 0; i-- {
		p, err := build(chain[i], next)
		if err != nil {
			return nil, err
		}
		next = p
	}
	return next, nil
}

func build(cfg Config, next pipe.Pipe) (pipe.Pipe, error) {
	switch cfg.Type {
	case KindPassthrough, "":
		return &Passthrough{next: next}, nil
	case KindLog:
		return &Log{next: next, target: cfg.Target, logger: logging.Module("transformer")}, nil
	case KindDiscardAll:
		return &DiscardAll{}, nil
	case KindTemplate:
		switch cfg.Format {
		case FormatExpression:
			return NewExpression(cfg.Content, next)
		case FormatHandlebars, "":
			return NewTemplate(cfg.Content, next)
		default:
			return nil, fmt.Errorf("transformer: unknown format %q", cfg.Format)
		}
	default:
		return nil, fmt.Errorf("transformer: unknown type %q", cfg.Type)
	}
}

// Passthrough forwards its input verbatim.
type Passthrough struct{ next pipe.Pipe }

func (p *Passthrough) Send(ctx context.Context, es *pipe.EventSource) error {
	return p.next.Send(ctx, es)
}

// Log emits a structured info-level record tagged `target`, then
// forwards.
type Log struct {
	next   pipe.Pipe
	target string
	logger interface{ Info(any, ...any) }
}

func (l *Log) Send(ctx context.Context, es *pipe.EventSource) error {
	l.logger.Info("transformer", "target", l.target, "metadata", es.Metadata)
	return l.next.Send(ctx, es)
}

// DiscardAll accepts input and returns success without forwarding. It is
// terminal: a next pipe would never be reached.
type DiscardAll struct{}

func (DiscardAll) Send(ctx context.Context, es *pipe.EventSource) error { return nil }

// Resolve expands refs into the ordered list of referenced configs
// looked up in table, failing on the first unresolved ref.
func Resolve(refs []string, table map[string]Config) ([]Config, error) {
	out := make([]Config, 0, len(refs))
	for _, ref := range refs {
		cfg, ok := table[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errs.ErrTransformerNotFound, ref)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// ResolveChain builds the full ordered chain for a source: resolved refs
// followed by the source's own inline transformers.
func ResolveChain(refs []string, inline []Config, table map[string]Config) ([]Config, error) {
	resolved, err := Resolve(refs, table)
	if err != nil {
		return nil, err
	}
	return append(resolved, inline...), nil
}
