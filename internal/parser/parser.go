// Package parser implements the per-entry adapters that turn one
// storage entry into zero or more EventSources: json, metadata-only, and
// csv-row. Parser errors on a single entry are the caller's concern to
// log and skip; these functions simply return an error for a bad entry.
package parser

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

// Kind identifies a parser implementation, matching the config
// discriminator `json` | `metadata` | `csv-row`.
type Kind string

const (
	KindJSON     Kind = "json"
	KindMetadata Kind = "metadata"
	KindCSVRow   Kind = "csv-row"
)

// Parser turns one storage entry into zero or more EventSources, each
// handed to next.
type Parser interface {
	Parse(ctx context.Context, backend storage.Backend, entry storage.Entry, next pipe.Pipe) error
}

// New constructs a Parser for the given kind.
func New(kind Kind) (Parser, error) {
	switch kind {
	case KindJSON, "":
		return JSONParser{}, nil
	case KindMetadata:
		return MetadataParser{}, nil
	case KindCSVRow:
		return CSVRowParser{}, nil
	default:
		return nil, fmt.Errorf("parser: unknown kind %q", kind)
	}
}

// entryMetadata builds the {name, path, root, last_modified} object every
// parser emits once per entry.
func entryMetadata(backend storage.Backend, entry storage.Entry) map[string]any {
	root := ""
	if rooted, ok := backend.(interface{ Root() string }); ok {
		root = rooted.Root()
	}
	lastModified := ""
	if !entry.LastModified.IsZero() {
		lastModified = entry.LastModified.UTC().Format("2006-01-02T15:04:05.000000000Z")
	}
	return map[string]any{
		"name":          entry.Name,
		"path":          entry.Path,
		"root":          root,
		"last_modified": lastModified,
	}
}

// JSONParser reads bytes and parses them as JSON, emitting one
// EventSource {metadata, body, header=∅}.
type JSONParser struct{}

func (JSONParser) Parse(ctx context.Context, backend storage.Backend, entry storage.Entry, next pipe.Pipe) error {
	data, err := backend.Read(ctx, entry.Path)
	if err != nil {
		return err
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrParse, entry.Path, err)
	}
	return next.Send(ctx, &pipe.EventSource{
		Metadata: entryMetadata(backend, entry),
		Header:   map[string]string{},
		Body:     body,
	})
}

// MetadataParser emits one EventSource with only metadata populated.
type MetadataParser struct{}

func (MetadataParser) Parse(ctx context.Context, backend storage.Backend, entry storage.Entry, next pipe.Pipe) error {
	return next.Send(ctx, &pipe.EventSource{
		Metadata: entryMetadata(backend, entry),
		Header:   map[string]string{},
	})
}

// CSVRowParser reads bytes, parses them as CSV with a header row, and
// emits one EventSource per row whose body maps header name to row value.
// All rows from one entry carry identical metadata.
type CSVRowParser struct{}

func (CSVRowParser) Parse(ctx context.Context, backend storage.Backend, entry storage.Entry, next pipe.Pipe) error {
	data, err := backend.Read(ctx, entry.Path)
	if err != nil {
		return err
	}
	r := csv.NewReader(strings.NewReader(string(data)))
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrCSV, entry.Path, err)
	}
	if len(records) == 0 {
		return nil
	}
	header := records[0]
	meta := entryMetadata(backend, entry)
	for _, row := range records[1:] {
		body := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				body[col] = row[i]
			} else {
				body[col] = ""
			}
		}
		if err := next.Send(ctx, &pipe.EventSource{
			Metadata: meta,
			Header:   map[string]string{},
			Body:     body,
		}); err != nil {
			return err
		}
	}
	return nil
}
