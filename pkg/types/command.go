package types

import "time"

// Command is a compiled, persisted command definition. Names are unique per
// server among stored commands; the pair (ServerID, Name) is the identity the
// bot worker resolves invocations against.
type Command struct {
	ID          string    `json:"id"`
	ServerID    string    `json:"server_id"`
	Name        string    `json:"name"` // normalized: lowercased and trimmed
	Description string    `json:"description,omitempty"`
	Graph       Graph     `json:"graph"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
