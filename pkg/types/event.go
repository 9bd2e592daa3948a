package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventTypeReloadCommands tells the bot worker to reload its full command set
// for a server. Reloads are coarse: the worker re-reads everything for the
// scope rather than diffing per command.
const EventTypeReloadCommands = "RELOAD_COMMANDS"

// ReloadEvent is one entry in the durable reload log. Events are append-only
// and never mutated after insert; IDs grow monotonically within a server
// scope so consumers can resume from the last ID they saw.
type ReloadEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ServerID  string    `json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ToSSE formats the event for Server-Sent Events delivery.
// Format: id: <id>\nevent: <type>\ndata: <json>\n\n
func (e *ReloadEvent) ToSSE() []byte {
	data, _ := json.Marshal(e)
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data))
}
