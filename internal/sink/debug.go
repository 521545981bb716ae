package sink

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/logging"
)

// Debug logs one structured info line per received message.
type Debug struct {
	logger *log.Logger
}

// NewDebug constructs a Debug sink with its own module-prefixed logger.
func NewDebug(name string) *Debug {
	return &Debug{logger: logging.Module(name)}
}

func (d *Debug) Run(ctx context.Context, sub *bus.Subscription) error {
	return runLoop(ctx, sub, func(msg *cdevents.Message) error {
		d.logger.Info("cdevent",
			"id", msg.CDEvent.ID(),
			"source", msg.CDEvent.Source(),
			"subject_id", msg.CDEvent.SubjectID(),
			"subject_type", msg.CDEvent.SubjectType(),
		)
		return nil
	}, func(err error) {
		d.logger.Warn("recv", "err", err)
	})
}
