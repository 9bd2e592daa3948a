package notifier

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/chatforge/commandd/pkg/types"
)

// MemoryNotifier implements Publisher and EventLog in memory.
// Suitable for testing and local development.
type MemoryNotifier struct {
	mu     sync.RWMutex
	seq    int64
	events map[string][]*types.ReloadEvent                 // serverID -> ordered events
	subs   map[string]map[chan *types.ReloadEvent]struct{} // serverID -> subscribers
}

// NewMemoryNotifier creates a new in-memory notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		events: make(map[string][]*types.ReloadEvent),
		subs:   make(map[string]map[chan *types.ReloadEvent]struct{}),
	}
}

// Publish appends one reload event and fans it out to subscribers.
// The fan-out happens under the lock so it cannot race a subscriber's
// cleanup closing its channel; the sends are non-blocking.
func (n *MemoryNotifier) Publish(ctx context.Context, serverID string) (*types.ReloadEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	event := &types.ReloadEvent{
		ID:        strconv.FormatInt(n.seq, 10),
		Type:      types.EventTypeReloadCommands,
		ServerID:  serverID,
		CreatedAt: time.Now().UTC(),
	}
	n.events[serverID] = append(n.events[serverID], event)

	for ch := range n.subs[serverID] {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip; it catches up via EventsSince.
		}
	}

	return event, nil
}

// EventsSince returns events after the given event ID (exclusive).
func (n *MemoryNotifier) EventsSince(ctx context.Context, serverID, lastEventID string) ([]*types.ReloadEvent, error) {
	var lastSeq int64
	if lastEventID != "" {
		lastSeq, _ = strconv.ParseInt(lastEventID, 10, 64)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	var events []*types.ReloadEvent
	for _, event := range n.events[serverID] {
		seq, _ := strconv.ParseInt(event.ID, 10, 64)
		if seq <= lastSeq {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Subscribe returns a channel that receives new events for the server.
func (n *MemoryNotifier) Subscribe(ctx context.Context, serverID string) (<-chan *types.ReloadEvent, func(), error) {
	ch := make(chan *types.ReloadEvent, 16)

	n.mu.Lock()
	if n.subs[serverID] == nil {
		n.subs[serverID] = make(map[chan *types.ReloadEvent]struct{})
	}
	n.subs[serverID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[serverID], ch)
			if len(n.subs[serverID]) == 0 {
				delete(n.subs, serverID)
			}
			// Closed under the lock so a concurrent Publish can never send
			// on the closed channel.
			close(ch)
			n.mu.Unlock()
		})
	}

	return ch, cleanup, nil
}

// Close is a no-op for the memory notifier.
func (n *MemoryNotifier) Close() error {
	return nil
}

// Ensure MemoryNotifier implements both sides
var (
	_ Publisher = (*MemoryNotifier)(nil)
	_ EventLog  = (*MemoryNotifier)(nil)
)
