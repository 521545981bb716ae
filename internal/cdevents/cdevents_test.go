package cdevents_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdviz-collector/cdviz-collector/internal/cdevents"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
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
			"content": {
				"environment": {"id": "t"},
				"artifactId": "pkg:oci/a"
			}
		}
	}`)
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		panic(err)
	}
	return body
}

// TestAssignContentID_ZeroID exercises the end-to-end content-ID scenario:
// a zero-id body gets a deterministic bafkrei... CIDv1 (raw, sha2-256,
// base32) written back into context.id, and re-assigning over the same
// body is a no-op on the second call (id is no longer "0").
func TestAssignContentID_ZeroID(t *testing.T) {
	body := sampleBody()
	assigned, err := cdevents.AssignContentID(body)
	require.NoError(t, err)
	assert.True(t, assigned)

	ctx := body["context"].(map[string]any)
	id, _ := ctx["id"].(string)
	assert.True(t, strings.HasPrefix(id, "bafkrei"), "expected a CIDv1 raw/sha2-256 base32 id, got %q", id)

	assigned, err = cdevents.AssignContentID(body)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, id, ctx["id"])
}

func TestAssignContentID_SkipsWhenNotZero(t *testing.T) {
	body := sampleBody()
	body["context"].(map[string]any)["id"] = "already-set"

	assigned, err := cdevents.AssignContentID(body)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Equal(t, "already-set", body["context"].(map[string]any)["id"])
}

type fakePublisher struct {
	published []*cdevents.Message
	err       error
}

func (f *fakePublisher) Publish(msg *cdevents.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func TestTerminal_Send_PublishesParsedEvent(t *testing.T) {
	pub := &fakePublisher{}
	term := cdevents.NewTerminal(pub)

	es := &pipe.EventSource{Body: sampleBody()}
	require.NoError(t, term.Send(context.Background(), es))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "/e/1", pub.published[0].CDEvent.Source())
	assert.Equal(t, "s1", pub.published[0].CDEvent.SubjectID())
}

func TestTerminal_Send_DecomposesContextType(t *testing.T) {
	pub := &fakePublisher{}
	term := cdevents.NewTerminal(pub)

	es := &pipe.EventSource{Body: sampleBody()}
	require.NoError(t, term.Send(context.Background(), es))

	ev := pub.published[0].CDEvent
	assert.Equal(t, "service", ev.TypeSubject())
	assert.Equal(t, "deployed", ev.TypePredicate())
	assert.Equal(t, []int{0, 1, 1}, ev.TypeVersion())
}

func TestTerminal_Send_BusErrorWrapsErrBus(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	term := cdevents.NewTerminal(pub)

	es := &pipe.EventSource{Body: sampleBody()}
	err := term.Send(context.Background(), es)
	require.ErrorIs(t, err, errs.ErrBus)
}
