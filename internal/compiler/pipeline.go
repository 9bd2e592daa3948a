// Package compiler turns user-authored command graphs into stored command
// definitions and notifies the bot worker through the reload log.
package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatforge/commandd/internal/cmdstore"
	"github.com/chatforge/commandd/internal/metrics"
	"github.com/chatforge/commandd/internal/notifier"
)

// Stage names the pipeline's sequential states. A compile only ever moves
// forward; validation failures jump to StageRejected without side effects.
type Stage string

const (
	StageReceived          Stage = "received"
	StageStructurallyValid Stage = "structurally_valid"
	StageNameValid         Stage = "name_valid"
	StageConflictChecked   Stage = "conflict_checked"
	StagePersisted         Stage = "persisted"
	StageNotifyAttempted   Stage = "notify_attempted"
	StageDone              Stage = "done"
	StageRejected          Stage = "rejected"
)

// Pipeline orchestrates validate -> conflict-check -> persist -> notify.
// Each call is an independent, stateless unit of work; the store and the
// reload log are the only shared resources.
type Pipeline struct {
	store     cmdstore.CommandStore
	publisher notifier.Publisher
	graphs    *GraphCheck
	logger    *slog.Logger
}

// Result is the successful outcome of a compile.
type Result struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Notified reports whether the reload event reached the log. A false
	// value is informational only; the command is stored either way.
	Notified bool `json:"notified"`
}

// New creates a compile pipeline.
func New(store cmdstore.CommandStore, publisher notifier.Publisher, graphs *GraphCheck, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     store,
		publisher: publisher,
		graphs:    graphs,
		logger:    logger,
	}
}

// Create compiles a graph into a new command for the server.
func (p *Pipeline) Create(ctx context.Context, serverID string, rawGraph json.RawMessage) (*Result, error) {
	return p.compile(ctx, serverID, "", rawGraph)
}

// Update recompiles a graph into an existing command. Validation is identical
// to creation; the command's own name never counts as a conflict.
func (p *Pipeline) Update(ctx context.Context, serverID, id string, rawGraph json.RawMessage) (*Result, error) {
	if id == "" {
		return nil, &ValidationError{Message: "command id is required"}
	}
	return p.compile(ctx, serverID, id, rawGraph)
}

// compile runs the full stage sequence. excludeID is empty on create and the
// command's own id on update.
func (p *Pipeline) compile(ctx context.Context, serverID, excludeID string, rawGraph json.RawMessage) (*Result, error) {
	op := "create"
	if excludeID != "" {
		op = "update"
	}
	start := time.Now()
	stage := StageReceived

	defer func() {
		metrics.CompileDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.CompilesTotal.WithLabelValues(op, string(stage)).Inc()
	}()

	// Received -> StructurallyValid
	spec, verr := p.graphs.Extract(rawGraph)
	if verr != nil {
		stage = StageRejected
		return nil, verr
	}
	stage = StageStructurallyValid

	// -> NameValid
	if err := ValidateName(spec.Name); err != nil {
		stage = StageRejected
		return nil, err
	}
	stage = StageNameValid

	// -> ConflictChecked. An early exit only; the store's write-time
	// constraint is the authority, so a race here just surfaces later as the
	// same conflict.
	existing, err := p.store.FindByName(ctx, serverID, spec.Name)
	switch {
	case err == nil:
		if existing.ID != excludeID {
			stage = StageRejected
			metrics.NameConflictsTotal.Inc()
			return nil, cmdstore.ErrNameTaken
		}
	case errors.Is(err, cmdstore.ErrCommandNotFound):
		// Name is free.
	default:
		stage = StageRejected
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	stage = StageConflictChecked

	// -> Persisted
	var id string
	if excludeID == "" {
		cmd, err := p.store.Create(ctx, &cmdstore.CreateCommandRequest{
			ServerID:    serverID,
			Name:        spec.Name,
			Description: spec.Description,
			Graph:       spec.Graph,
		})
		if err != nil {
			if errors.Is(err, cmdstore.ErrNameTaken) {
				metrics.NameConflictsTotal.Inc()
			}
			stage = StageRejected
			return nil, err
		}
		id = cmd.ID
	} else {
		cmd, err := p.store.Update(ctx, serverID, excludeID, &cmdstore.UpdateCommandRequest{
			Name:        spec.Name,
			Description: spec.Description,
			Graph:       spec.Graph,
		})
		if err != nil {
			if errors.Is(err, cmdstore.ErrNameTaken) {
				metrics.NameConflictsTotal.Inc()
			}
			stage = StageRejected
			return nil, err
		}
		id = cmd.ID
	}
	stage = StagePersisted

	// -> NotifyAttempted. The command is authoritative from here on: a
	// failed publish is logged and swallowed, never rolled back.
	notified := p.notify(ctx, serverID)
	stage = StageNotifyAttempted

	result := &Result{
		ID:          id,
		Name:        spec.Name,
		Description: spec.Description,
		Notified:    notified,
	}
	stage = StageDone

	p.logger.Info("command compiled",
		slog.String("op", op),
		slog.String("server_id", serverID),
		slog.String("command_id", id),
		slog.String("name", spec.Name),
		slog.Bool("notified", notified),
	)
	return result, nil
}

// Delete removes a command and tells the worker to reload. Kept on the
// pipeline so deletion and compilation share the same notify path.
func (p *Pipeline) Delete(ctx context.Context, serverID, id string) error {
	if err := p.store.Delete(ctx, serverID, id); err != nil {
		return err
	}
	p.notify(ctx, serverID)
	return nil
}

func (p *Pipeline) notify(ctx context.Context, serverID string) bool {
	_, err := p.publisher.Publish(ctx, serverID)
	if err != nil {
		metrics.ReloadPublishesTotal.WithLabelValues("error").Inc()
		p.logger.Error("reload publish failed; worker will catch up on next poll",
			slog.String("server_id", serverID),
			slog.Any("error", err),
		)
		return false
	}
	metrics.ReloadPublishesTotal.WithLabelValues("success").Inc()
	return true
}
