// Package cmdstore provides command definition persistence.
//
// The store is the source of truth for compiled commands and the authority on
// name uniqueness: both backends enforce the (server, name) constraint at
// write time, so two racing creates degrade to one success and one
// ErrNameTaken instead of a silent duplicate.
package cmdstore

import (
	"context"
	"errors"

	"github.com/chatforge/commandd/pkg/types"
)

// Common errors returned by CommandStore implementations.
var (
	ErrCommandNotFound = errors.New("command not found")
	ErrNameTaken       = errors.New("command name already in use on this server")
)

// CreateCommandRequest is the input for storing a newly compiled command.
type CreateCommandRequest struct {
	ServerID    string
	Name        string // already normalized by the compiler
	Description string
	Graph       types.Graph
}

// UpdateCommandRequest replaces a command's compiled fields. Updates always
// carry the full set because every edit goes back through the compiler.
type UpdateCommandRequest struct {
	Name        string
	Description string
	Graph       types.Graph
}

// ListOptions configures list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// CommandStore defines the interface for command persistence.
// Implementations must be safe for concurrent use.
type CommandStore interface {
	// Create saves a new command. Returns ErrNameTaken if the (server, name)
	// pair is already claimed.
	Create(ctx context.Context, req *CreateCommandRequest) (*types.Command, error)

	// Get retrieves a command by id within a server scope. Returns
	// ErrCommandNotFound if it does not exist or belongs to another server.
	Get(ctx context.Context, serverID, id string) (*types.Command, error)

	// FindByName retrieves a command by its normalized name within a server
	// scope. Returns ErrCommandNotFound if no command holds the name.
	FindByName(ctx context.Context, serverID, name string) (*types.Command, error)

	// Update replaces a command's name, description and graph. Returns
	// ErrCommandNotFound if missing, ErrNameTaken if the new name is held by
	// another command on the same server.
	Update(ctx context.Context, serverID, id string, req *UpdateCommandRequest) (*types.Command, error)

	// Delete removes a command and releases its name.
	Delete(ctx context.Context, serverID, id string) error

	// List returns the server's commands matching the options, ordered by
	// name.
	List(ctx context.Context, serverID string, opts *ListOptions) ([]*types.Command, error)

	// AdapterInfo returns diagnostic information about the backend.
	AdapterInfo(ctx context.Context) (map[string]interface{}, error)

	// Close releases any resources.
	Close() error
}

// Validate checks if a CreateCommandRequest is complete.
func (r *CreateCommandRequest) Validate() error {
	if r.ServerID == "" {
		return errors.New("server id is required")
	}
	if r.Name == "" {
		return errors.New("command name is required")
	}
	if len(r.Graph.Nodes) == 0 {
		return errors.New("command graph is required")
	}
	return nil
}
