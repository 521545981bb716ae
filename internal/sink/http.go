package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/logging"
)

// HTTPMode selects the request envelope: "body" sends the raw CDEvent as
// the POST body; "structured" adds ce-* headers carrying the core
// attributes alongside the body, mirroring the CloudEvents HTTP binding.
type HTTPMode string

const (
	HTTPModeBody       HTTPMode = "body"
	HTTPModeStructured HTTPMode = "structured"
)

// HTTP posts one request per received message to a fixed URL.
type HTTP struct {
	url    string
	mode   HTTPMode
	client *http.Client
	logger *log.Logger
}

// NewHTTP constructs an HTTP sink. An empty mode defaults to "body".
func NewHTTP(name, url string, mode HTTPMode) *HTTP {
	if mode == "" {
		mode = HTTPModeBody
	}
	return &HTTP{
		url:    url,
		mode:   mode,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logging.Module(name),
	}
}

func (h *HTTP) Run(ctx context.Context, sub *bus.Subscription) error {
	return runLoop(ctx, sub, func(msg *cdevents.Message) error {
		return h.send(ctx, msg)
	}, func(err error) {
		h.logger.Warn("recv", "err", err)
	})
}

func (h *HTTP) send(ctx context.Context, msg *cdevents.Message) error {
	data, err := msg.CDEvent.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", errs.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.mode == HTTPModeStructured {
		req.Header.Set("ce-specversion", "1.0")
		req.Header.Set("ce-id", msg.CDEvent.ID())
		req.Header.Set("ce-source", msg.CDEvent.Source())
		req.Header.Set("ce-type", msg.CDEvent.Type())
		req.Header.Set("ce-subject", msg.CDEvent.SubjectID())
		req.Header.Set("ce-time", msg.CDEvent.Timestamp().Format(time.RFC3339Nano))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", errs.ErrTransport, resp.StatusCode)
	}
	return nil
}
