// Package cdevents wraps the external CDEvent schema type and implements
// the terminal send-CDEvents pipe: content-ID assignment, parse, and
// publish onto the bus.
package cdevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cdevents/sdk-go/pkg/api"

	"github.com/cdviz-collector/cdviz-collector/internal/cid"
	"github.com/cdviz-collector/cdviz-collector/internal/errs"
	"github.com/cdviz-collector/cdviz-collector/internal/pipe"
)

// CDEvent wraps a parsed CDEvent payload. Core context attributes (id,
// timestamp, source, subject id) are read through the SDK reader; fields
// the reader does not expose (subject.type, subject.content) are read
// out of the decoded generic map kept alongside it, which also gives
// lossless JSON round-tripping.
type CDEvent struct {
	reader api.CDEventReader
	raw    map[string]any
}

// Parse validates data as a CDEvent (via the SDK reader, which enforces
// the required context/subject shape) and keeps the decoded generic map
// around for lossless JSON round-tripping and for the non-core
// subject.content fields.
func Parse(data []byte) (*CDEvent, error) {
	reader, err := api.NewFromJsonBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrParse, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrParse, err)
	}
	return &CDEvent{reader: reader, raw: raw}, nil
}

// ID returns context.id.
func (c *CDEvent) ID() string { return c.reader.GetId() }

// Timestamp returns context.timestamp.
func (c *CDEvent) Timestamp() time.Time { return c.reader.GetTimestamp() }

// Source returns context.source.
func (c *CDEvent) Source() string { return c.reader.GetSource() }

// SubjectID returns subject.id.
func (c *CDEvent) SubjectID() string { return c.reader.GetSubjectId() }

// SubjectType returns subject.type, read from the decoded generic map:
// the SDK reader exposes the subject id and source but the subject type
// lives on each concrete event's typed subject.
func (c *CDEvent) SubjectType() string { return stringPath(c.raw, "subject", "type") }

// Type returns context.type verbatim, e.g.
// "dev.cdevents.service.deployed.0.1.1".
func (c *CDEvent) Type() string { return stringPath(c.raw, "context", "type") }

// TypeSubject, TypePredicate and TypeVersion decompose context.type,
// which the CDEvents spec fixes as
// "dev.cdevents.<subject>.<predicate>.<MAJOR>.<MINOR>.<PATCH>" — the
// same three components the database sink's lake table stores alongside
// the raw payload.
func (c *CDEvent) TypeSubject() string {
	s, _, _ := splitCDEventType(c.Type())
	return s
}

func (c *CDEvent) TypePredicate() string {
	_, p, _ := splitCDEventType(c.Type())
	return p
}

// TypeVersion returns the three version components as ints, or nil if
// context.type does not have the expected shape.
func (c *CDEvent) TypeVersion() []int {
	_, _, v := splitCDEventType(c.Type())
	return v
}

func splitCDEventType(t string) (subject, predicate string, version []int) {
	parts := strings.Split(t, ".")
	if len(parts) < 7 {
		return "", "", nil
	}
	v := make([]int, 3)
	for i, p := range parts[len(parts)-3:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", "", nil
		}
		v[i] = n
	}
	rest := parts[:len(parts)-3]
	return rest[len(rest)-2], rest[len(rest)-1], v
}

// SubjectContentSubject returns subject.content.subject, read from the
// decoded generic map since it is not part of the CDEvents core schema.
func (c *CDEvent) SubjectContentSubject() string { return stringPath(c.raw, "subject", "content", "subject") }

// SubjectContentPredicate returns subject.content.predicate.
func (c *CDEvent) SubjectContentPredicate() string {
	return stringPath(c.raw, "subject", "content", "predicate")
}

// MarshalJSON round-trips the original decoded body, losslessly.
func (c *CDEvent) MarshalJSON() ([]byte, error) {
	return cid.MarshalCanonical(c.raw)
}

func stringPath(m map[string]any, path ...string) string {
	var cur any = m
	for _, p := range path {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = asMap[p]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}

// AssignContentID mutates body in place: if body.context.id == "0", it
// computes a content identifier over the canonical serialization of body
// and stores the textual form back into body.context.id. Returns true if
// an assignment happened.
func AssignContentID(body map[string]any) (bool, error) {
	ctx, ok := body["context"].(map[string]any)
	if !ok {
		return false, nil
	}
	id, _ := ctx["id"].(string)
	if id != "0" {
		return false, nil
	}
	textual, err := cid.FromValue(body)
	if err != nil {
		return false, fmt.Errorf("cdevents: content id: %w", err)
	}
	ctx["id"] = textual
	return true, nil
}

// Terminal is the send-CDEvents pipe: the last link in every chain. It
// assigns a content ID when needed, parses the body as a CDEvent, and
// publishes a Message on the bus.
type Terminal struct {
	publisher Publisher
}

// Publisher is the minimal bus capability the terminal pipe needs:
// publish one message, returning an error if there are no subscribers
// (the "bus" error).
type Publisher interface {
	Publish(msg *Message) error
}

// Message is the bus envelope: one finalized CDEvent. ReceivedAt is
// not read by any current consumer, but kept
// alive so a future consumer can rely on it without breaking the
// contract.
type Message struct {
	CDEvent    *CDEvent
	ReceivedAt time.Time
}

// NewTerminal constructs the terminal pipe publishing onto pub.
func NewTerminal(pub Publisher) *Terminal {
	return &Terminal{publisher: pub}
}

// Send implements pipe.Pipe.
func (t *Terminal) Send(ctx context.Context, es *pipe.EventSource) error {
	bodyMap, ok := es.Body.(map[string]any)
	if ok {
		if _, err := AssignContentID(bodyMap); err != nil {
			return err
		}
		es.Body = bodyMap
	}

	data, err := cid.MarshalCanonical(es.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrParse, err)
	}

	event, err := Parse(data)
	if err != nil {
		return err
	}

	if err := t.publisher.Publish(&Message{CDEvent: event, ReceivedAt: timeNow()}); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBus, err)
	}
	return nil
}

// timeNow is a seam so tests can stamp deterministic timestamps if ever
// needed; production always wants the real clock.
var timeNow = time.Now
