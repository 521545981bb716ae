package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/cdviz-collector/cdviz-collector/internal/logging"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
)

// HTTP is the long-running HTTP extractor: binds host:port, accepts
// POST /cdevents, and exposes GET /healthz and /readyz. The next-pipe
// handle is shared across request goroutines behind a mutex; a small
// chain-of-func(http.Handler) http.Handler middleware wraps the mux for
// request-id propagation.
type HTTP struct {
	Name string
	Host string
	Port int
	Next pipe.Pipe

	mu     sync.Mutex
	logger *log.Logger
}

// NewHTTP constructs an HTTP extractor.
func NewHTTP(name, host string, port int, next pipe.Pipe) *HTTP {
	return &HTTP{Name: name, Host: host, Port: port, Next: next, logger: logging.Module(name)}
}

// Handler builds the extractor's full HTTP handler, including the
// request-id middleware. Run serves it; tests can drive it directly
// through httptest without binding a port.
func (h *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cdevents", h.handleCDEvents)
	mux.HandleFunc("GET /healthz", handleOK)
	mux.HandleFunc("GET /readyz", handleOK)
	return withRequestID(mux)
}

// Run binds the listener and serves until ctx is cancelled.
func (h *HTTP) Run(ctx context.Context) error {
	srv := &http.Server{Handler: h.Handler()}

	addr := net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (h *HTTP) handleCDEvents(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("invalid json body", "err", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	es := &pipe.EventSource{Header: map[string]string{}, Body: body}

	h.mu.Lock()
	err := h.Next.Send(r.Context(), es)
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("downstream send failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func handleOK(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// withRequestID propagates a per-request id through a response header,
// standing in for the tracing middleware a production deployment wires
// behind this extractor.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

