package transformer

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
)

// Expression is the VRL-style alternate transformer: a small expression
// program compiled once at chain-build time over the EventSource,
// evaluated per input, whose result becomes the new Body. An empty
// program is identity.
type Expression struct {
	next    pipe.Pipe
	program *vm.Program
}

// NewExpression compiles source once. An empty source short-circuits to
// passthrough semantics (empty program ≡ identity).
func NewExpression(source string, next pipe.Pipe) (pipe.Pipe, error) {
	if source == "" {
		return &Passthrough{next: next}, nil
	}
	program, err := expr.Compile(source, expr.Env(exprEnv{}))
	if err != nil {
		return nil, fmt.Errorf("%w: compile expression: %v", errs.ErrTemplate, err)
	}
	return &Expression{next: next, program: program}, nil
}

// exprEnv is the environment shape exposed to expression programs:
// metadata/header/body mirror the EventSource fields the template
// transformer exposes, for contract symmetry between the two engines.
type exprEnv struct {
	Metadata any               `expr:"metadata"`
	Header   map[string]string `expr:"header"`
	Body     any               `expr:"body"`
}

func (e *Expression) Send(ctx context.Context, es *pipe.EventSource) error {
	env := exprEnv{Metadata: es.Metadata, Header: es.Header, Body: es.Body}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return fmt.Errorf("%w: eval expression: %v", errs.ErrTemplate, err)
	}
	next := es.Clone()
	next.Body = out
	return e.next.Send(ctx, next)
}
