package sink

import (
	"context"
	"fmt"

	"github.com/cdviz-collector/cdviz-collector/internal/config"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

// New constructs the Sink described by cfg. name is used as the sink's
// logger module prefix.
func New(ctx context.Context, name string, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "debug":
		return NewDebug(name), nil
	case "http":
		return NewHTTP(name, cfg.URL, HTTPMode(cfg.Mode)), nil
	case "folder":
		backend, err := storage.New(storage.Config{Kind: storage.Kind(cfg.StorageKind), Parameters: cfg.Parameters})
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", name, err)
		}
		return NewFolder(name, backend), nil
	case "db":
		return NewDB(ctx, name, cfg.URL, int32(cfg.MinConnections), int32(cfg.MaxConnections))
	default:
		return nil, fmt.Errorf("sink %q: unknown type %q", name, cfg.Type)
	}
}
