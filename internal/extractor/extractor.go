// Package extractor implements the long-running tasks that introduce new
// EventSources into a chain: the storage-poll extractor, the HTTP
// extractor, and a no-op `sleep` extractor used by samples/tests.
package extractor

import "context"

// Extractor is a long-running task. Run blocks until ctx is cancelled or
// an unrecoverable error occurs; a nil return on context cancellation is
// the normal shutdown path.
type Extractor interface {
	Run(ctx context.Context) error
}

// Sleep is a no-op extractor: it never emits and simply waits for
// cancellation. Used for samples/tests that want a source entry with no
// real ingress.
type Sleep struct{}

func (Sleep) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
