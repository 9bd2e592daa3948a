package compiler

import "strings"

// Validation reasons reported for malformed graphs.
const (
	ReasonMissingEntryNode = "graph has no entry node"
)

// ValidationError is returned when a graph or name fails compilation. It is
// terminal: nothing has been persisted and nothing needs undoing. Message is
// safe to display to the command author; Reasons itemizes what failed.
type ValidationError struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Reasons, "; ")
}
