package transformer

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
)

func init() {
	raymond.RegisterHelper("upper", func(s string) string { return strings.ToUpper(s) })
	raymond.RegisterHelper("lower", func(s string) string { return strings.ToLower(s) })
	raymond.RegisterHelper("trim", func(s string) string { return strings.TrimSpace(s) })
	raymond.RegisterHelper("replace", func(s, old, new string) string { return strings.ReplaceAll(s, old, new) })
	raymond.RegisterHelper("basename", func(p string) string { return path.Base(p) })
	raymond.RegisterHelper("dirname", func(p string) string { return path.Dir(p) })
	raymond.RegisterHelper("json", func(v any) string {
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	})
}

// mustacheRef matches a bare, non-helper, non-block mustache reference:
// {{ some.dotted.path }}. Helper calls ("{{foo bar}}") and block openers
// ("{{#if x}}") are excluded from this pattern so strictCheck does not
// flag helper invocations. The inner "{{raw}}" of a triple-stache
// ("{{{raw}}}") does match, so those references are checked as well.
var mustacheRef = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Template renders a Handlebars-style template against the EventSource as
// JSON context, parses the rendered text back into an EventSource, and
// forwards it. raymond has no built-in strict/non-dev-mode flag, so
// strictness is approximated here: before rendering, every bare
// {{path}} reference in the source is checked against the JSON context
// and any unresolved path is a render error.
type Template struct {
	next     pipe.Pipe
	tpl      *raymond.Template
	source   string
	refPaths []string
}

// NewTemplate parses source once at chain-build time.
func NewTemplate(source string, next pipe.Pipe) (*Template, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse template: %v", errs.ErrTemplate, err)
	}
	var refs []string
	for _, m := range mustacheRef.FindAllStringSubmatch(source, -1) {
		refs = append(refs, m[1])
	}
	return &Template{next: next, tpl: tpl, source: source, refPaths: refs}, nil
}

func (t *Template) Send(ctx context.Context, es *pipe.EventSource) error {
	jsonCtx, err := toJSONContext(es)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTemplate, err)
	}

	if err := strictCheck(t.refPaths, jsonCtx); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTemplate, err)
	}

	rendered, err := t.tpl.Exec(jsonCtx)
	if err != nil {
		return fmt.Errorf("%w: render: %v", errs.ErrTemplate, err)
	}

	out, err := parseRenderedEventSource(rendered)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTemplate, err)
	}
	return t.next.Send(ctx, out)
}

func toJSONContext(es *pipe.EventSource) (map[string]any, error) {
	data, err := json.Marshal(es)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func strictCheck(refPaths []string, ctx map[string]any) error {
	for _, ref := range refPaths {
		if ref == "this" || ref == "@root" || ref == "else" {
			continue
		}
		parts := strings.Split(ref, ".")
		var cur any = ctx
		for _, p := range parts {
			m, ok := cur.(map[string]any)
			if !ok {
				return fmt.Errorf("undefined field %q", ref)
			}
			cur, ok = m[p]
			if !ok {
				return fmt.Errorf("undefined field %q", ref)
			}
		}
	}
	return nil
}

// parseRenderedEventSource parses the rendered template text back into an
// EventSource. The rendered text must itself be a JSON object with
// metadata/header/body keys (matching toJSONContext's shape), or a bare
// JSON value that becomes the new Body with metadata/header unset.
func parseRenderedEventSource(rendered string) (*pipe.EventSource, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(rendered), &m); err == nil {
		if _, hasBody := m["body"]; hasBody {
			header := map[string]string{}
			if h, ok := m["header"].(map[string]any); ok {
				for k, v := range h {
					if s, ok := v.(string); ok {
						header[k] = s
					}
				}
			}
			return &pipe.EventSource{Metadata: m["metadata"], Header: header, Body: m["body"]}, nil
		}
	}
	var body any
	if err := json.Unmarshal([]byte(rendered), &body); err != nil {
		return nil, fmt.Errorf("rendered output is not valid JSON: %w", err)
	}
	return &pipe.EventSource{Header: map[string]string{}, Body: body}, nil
}
