package eventstream

import "context"

// Publisher publishes status events to an event stream backend.
type Publisher interface {
	PublishStatus(ctx context.Context, event *StatusResolvedEvent) error
	Close() error
}
