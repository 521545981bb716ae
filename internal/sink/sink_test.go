package sink_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdviz-collector/cdviz-collector/internal/bus"
	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
	"github.com/cdviz-collector/cdviz-collector/internal/sink"
	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

func sampleBody() map[string]any {
	raw := []byte(`{
		"context": {
			"id": "0",
			"source": "/e/1",
			"type": "dev.cdevents.service.deployed.0.1.1",
			"timestamp": "2023-03-20T14:27:05.315384Z"
		},
		"subject": {
			"id": "s1",
			"source": "/e/1",
			"type": "service",
			"content": {"environment": {"id": "t"}, "artifactId": "pkg:oci/a"}
		}
	}`)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		panic(err)
	}
	return body
}

func publishOne(t *testing.T, b *bus.Bus) {
	t.Helper()
	body := sampleBody()
	_, err := cdevents.AssignContentID(body)
	require.NoError(t, err)
	term := cdevents.NewTerminal(b)
	require.NoError(t, term.Send(context.Background(), &pipe.EventSource{Body: body}))
}

func TestDebug_ConsumesPublishedMessage(t *testing.T) {
	b := bus.New(10)
	sub := b.Subscribe()
	d := sink.NewDebug("debug")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, sub) }()

	publishOne(t, b)
	b.Close()
	cancel()
	require.NoError(t, <-done)
}

func TestFolder_WritesIDJSON(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewFSBackend(dir)
	b := bus.New(10)
	sub := b.Subscribe()
	f := sink.NewFolder("folder", backend)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, sub) }()

	publishOne(t, b)
	time.Sleep(50 * time.Millisecond)
	b.Close()
	require.NoError(t, <-done)

	entries, err := backend.List(ctx, "", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^ba`, entries[0].Name)
}

func TestHTTP_PostsCDEventAndStructuredHeaders(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		gotBody = buf
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := bus.New(10)
	sub := b.Subscribe()
	h := sink.NewHTTP("http", srv.URL, sink.HTTPModeStructured)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, sub) }()

	publishOne(t, b)
	time.Sleep(50 * time.Millisecond)
	b.Close()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, gotBody)
	assert.Equal(t, "dev.cdevents.service.deployed.0.1.1", gotHeaders.Get("ce-type"))
	assert.Equal(t, "s1", gotHeaders.Get("ce-subject"))
	assert.Equal(t, "1.0", gotHeaders.Get("ce-specversion"))
}

// TestDebug_ResumesAfterLag verifies a sink that falls behind the bus's
// bounded capacity logs the lag and keeps consuming, rather than
// stopping after the first lagged(n) receive.
func TestDebug_ResumesAfterLag(t *testing.T) {
	b := bus.New(2)
	sub := b.Subscribe()
	d := sink.NewDebug("debug")

	ctx := context.Background()
	done := make(chan error, 1)

	for i := 0; i < 5; i++ {
		publishOne(t, b)
	}

	go func() { done <- d.Run(ctx, sub) }()

	time.Sleep(50 * time.Millisecond)
	publishOne(t, b)
	time.Sleep(50 * time.Millisecond)

	b.Close()
	require.NoError(t, <-done)
}

// TestSinkIsolation pins the isolation guarantee: one sink fails every
// send; both sink loops keep running until the bus closes and then exit
// cleanly.
func TestSinkIsolation(t *testing.T) {
	b := bus.New(10)
	failingSub := b.Subscribe()
	okSub := b.Subscribe()

	failing := sink.NewHTTP("failing", "http://127.0.0.1:1", sink.HTTPModeBody)
	ok := sink.NewDebug("ok")

	ctx := context.Background()
	doneFailing := make(chan error, 1)
	doneOK := make(chan error, 1)
	go func() { doneFailing <- failing.Run(ctx, failingSub) }()
	go func() { doneOK <- ok.Run(ctx, okSub) }()

	for i := 0; i < 3; i++ {
		publishOne(t, b)
	}
	time.Sleep(100 * time.Millisecond)
	b.Close()

	require.NoError(t, <-doneFailing)
	require.NoError(t, <-doneOK)
}
