// Package notifier appends reload events to a durable log the bot worker
// consumes. Delivery is at-least-once: the worker treats a reload as
// idempotent, and a lost publish is recovered when the worker polls the
// command table directly.
package notifier

import (
	"context"

	"github.com/chatforge/commandd/pkg/types"
)

// Publisher appends reload events for a server scope.
// Implementations must be safe for concurrent use.
type Publisher interface {
	// Publish appends one RELOAD_COMMANDS event for the server and returns
	// the created event.
	Publish(ctx context.Context, serverID string) (*types.ReloadEvent, error)

	// Close releases any resources.
	Close() error
}

// EventLog is the read side of the reload log, exposed to consumers that
// poll or subscribe. Backends that hand delivery to a broker (AMQP) do not
// implement it; the broker's queues play that role instead.
type EventLog interface {
	// EventsSince returns events after the given event ID (exclusive).
	// If lastEventID is empty, returns all retained events.
	EventsSince(ctx context.Context, serverID, lastEventID string) ([]*types.ReloadEvent, error)

	// Subscribe returns a channel that receives new events for the server.
	// The cleanup function must be called when done to release resources.
	Subscribe(ctx context.Context, serverID string) (<-chan *types.ReloadEvent, func(), error)
}
