package cmdstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/commandd/pkg/types"
)

// MemoryStore implements CommandStore using in-memory storage.
// Suitable for testing and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	commands map[string]*types.Command
	names    map[nameKey]string // (server, name) -> command id
}

type nameKey struct {
	serverID string
	name     string
}

// NewMemoryStore creates a new in-memory command store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		commands: make(map[string]*types.Command),
		names:    make(map[nameKey]string),
	}
}

// Create saves a new command. The name claim and the write happen under one
// lock, so the uniqueness check cannot race the insert.
func (s *MemoryStore) Create(ctx context.Context, req *CreateCommandRequest) (*types.Command, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey{serverID: req.ServerID, name: req.Name}
	if _, taken := s.names[key]; taken {
		return nil, ErrNameTaken
	}

	now := time.Now().UTC()
	cmd := &types.Command{
		ID:          uuid.New().String(),
		ServerID:    req.ServerID,
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.commands[cmd.ID] = cmd
	s.names[key] = cmd.ID
	return copyCommand(cmd), nil
}

// Get retrieves a command by id within a server scope.
func (s *MemoryStore) Get(ctx context.Context, serverID, id string) (*types.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cmd, ok := s.commands[id]
	if !ok || cmd.ServerID != serverID {
		return nil, ErrCommandNotFound
	}
	return copyCommand(cmd), nil
}

// FindByName retrieves a command by its normalized name.
func (s *MemoryStore) FindByName(ctx context.Context, serverID, name string) (*types.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.names[nameKey{serverID: serverID, name: name}]
	if !ok {
		return nil, ErrCommandNotFound
	}
	return copyCommand(s.commands[id]), nil
}

// Update replaces the command's compiled fields, re-claiming the name if it
// changed.
func (s *MemoryStore) Update(ctx context.Context, serverID, id string, req *UpdateCommandRequest) (*types.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := s.commands[id]
	if !ok || cmd.ServerID != serverID {
		return nil, ErrCommandNotFound
	}

	if req.Name != cmd.Name {
		newKey := nameKey{serverID: serverID, name: req.Name}
		if holder, taken := s.names[newKey]; taken && holder != id {
			return nil, ErrNameTaken
		}
		delete(s.names, nameKey{serverID: serverID, name: cmd.Name})
		s.names[newKey] = id
	}

	cmd.Name = req.Name
	cmd.Description = req.Description
	cmd.Graph = req.Graph
	cmd.UpdatedAt = time.Now().UTC()

	return copyCommand(cmd), nil
}

// Delete removes a command and releases its name.
func (s *MemoryStore) Delete(ctx context.Context, serverID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := s.commands[id]
	if !ok || cmd.ServerID != serverID {
		return ErrCommandNotFound
	}

	delete(s.names, nameKey{serverID: serverID, name: cmd.Name})
	delete(s.commands, id)
	return nil
}

// List returns the server's commands ordered by name.
func (s *MemoryStore) List(ctx context.Context, serverID string, opts *ListOptions) ([]*types.Command, error) {
	if opts == nil {
		opts = &ListOptions{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var commands []*types.Command
	for _, cmd := range s.commands {
		if cmd.ServerID != serverID {
			continue
		}
		commands = append(commands, copyCommand(cmd))
	}

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })

	if opts.Offset > 0 {
		if opts.Offset >= len(commands) {
			return []*types.Command{}, nil
		}
		commands = commands[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(commands) {
		commands = commands[:opts.Limit]
	}

	return commands, nil
}

// AdapterInfo returns diagnostic information.
func (s *MemoryStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"adapter":  "memory",
		"healthy":  true,
		"commands": len(s.commands),
	}, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// copyCommand returns a shallow copy to prevent external mutation of stored
// state. Graph slices are shared; callers treat them as read-only.
func copyCommand(cmd *types.Command) *types.Command {
	c := *cmd
	return &c
}

// Ensure MemoryStore implements CommandStore
var _ CommandStore = (*MemoryStore)(nil)
