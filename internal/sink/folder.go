package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/logging"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

// Folder writes one "{id}.json" file per received message into a storage
// backend, grounded on the same storage.Backend abstraction the
// storage-poll extractor reads from.
type Folder struct {
	backend storage.Backend
	logger  *log.Logger
}

// NewFolder constructs a Folder sink writing into backend.
func NewFolder(name string, backend storage.Backend) *Folder {
	return &Folder{backend: backend, logger: logging.Module(name)}
}

func (f *Folder) Run(ctx context.Context, sub *bus.Subscription) error {
	return runLoop(ctx, sub, func(msg *cdevents.Message) error {
		data, err := json.MarshalIndent(msg.CDEvent, "", "  ")
		if err != nil {
			return fmt.Errorf("sink/folder: marshal: %w", err)
		}
		path := msg.CDEvent.ID() + ".json"
		if err := f.backend.Write(ctx, path, data); err != nil {
			return fmt.Errorf("sink/folder: write %s: %w", path, err)
		}
		return nil
	}, func(err error) {
		f.logger.Warn("recv", "err", err)
	})
}
