package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/chatforge/commandd/internal/cmdstore"
	"github.com/chatforge/commandd/internal/notifier"
	"github.com/chatforge/commandd/pkg/types"
)

func newPipeline(t *testing.T) (*Pipeline, *cmdstore.MemoryStore, *notifier.MemoryNotifier) {
	t.Helper()
	store := cmdstore.NewMemoryStore()
	events := notifier.NewMemoryNotifier()
	return New(store, events, newGraphCheck(t), nil), store, events
}

func graphJSON(label, description string) json.RawMessage {
	data := map[string]any{"label": label}
	if description != "" {
		data["description"] = description
	}
	raw, _ := json.Marshal(map[string]any{
		"nodes": []map[string]any{
			{"id": "entry", "type": "input", "data": data, "position": map[string]float64{"x": 0, "y": 0}},
			{"id": "act", "type": "action", "data": map[string]any{"label": "Reply"}, "position": map[string]float64{"x": 120, "y": 0}},
		},
		"edges": []map[string]string{{"source": "entry", "target": "act"}},
	})
	return raw
}

func TestPipeline_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("compiles and notifies", func(t *testing.T) {
		p, store, events := newPipeline(t)

		result, err := p.Create(ctx, "S1", graphJSON("welcome-message", "Greets new members"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if result.ID == "" {
			t.Error("expected id to be assigned")
		}
		if result.Name != "welcome-message" {
			t.Errorf("expected name %q, got %q", "welcome-message", result.Name)
		}
		if !result.Notified {
			t.Error("expected Notified to be true")
		}

		cmd, err := store.FindByName(ctx, "S1", "welcome-message")
		if err != nil {
			t.Fatalf("stored command not found: %v", err)
		}
		if cmd.Description != "Greets new members" {
			t.Errorf("expected description stored, got %q", cmd.Description)
		}

		published, _ := events.EventsSince(ctx, "S1", "")
		if len(published) != 1 {
			t.Fatalf("expected exactly one reload event, got %d", len(published))
		}
		if published[0].Type != types.EventTypeReloadCommands {
			t.Errorf("expected %s event, got %s", types.EventTypeReloadCommands, published[0].Type)
		}
	})

	t.Run("rejects label that normalizes to an invalid name", func(t *testing.T) {
		p, store, events := newPipeline(t)

		// "Ban User" lowercases to "ban user"; the space breaks the
		// character rules.
		_, err := p.Create(ctx, "S1", graphJSON("Ban User", ""))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *ValidationError, got %v", err)
		}
		if verr.Message != NameRulesMessage {
			t.Errorf("expected NameRulesMessage, got %q", verr.Message)
		}

		// Rejection must be side-effect free.
		if commands, _ := store.List(ctx, "S1", nil); len(commands) != 0 {
			t.Errorf("expected no stored commands, got %d", len(commands))
		}
		if published, _ := events.EventsSince(ctx, "S1", ""); len(published) != 0 {
			t.Errorf("expected no reload events, got %d", len(published))
		}
	})

	t.Run("duplicate name conflicts without side effects", func(t *testing.T) {
		p, store, events := newPipeline(t)

		if _, err := p.Create(ctx, "S1", graphJSON("welcome-message", "")); err != nil {
			t.Fatalf("first create failed: %v", err)
		}

		_, err := p.Create(ctx, "S1", graphJSON("Welcome-Message", "different description"))
		if !errors.Is(err, cmdstore.ErrNameTaken) {
			t.Fatalf("expected ErrNameTaken, got %v", err)
		}

		if commands, _ := store.List(ctx, "S1", nil); len(commands) != 1 {
			t.Errorf("expected one stored command, got %d", len(commands))
		}
		if published, _ := events.EventsSince(ctx, "S1", ""); len(published) != 1 {
			t.Errorf("expected one reload event, got %d", len(published))
		}
	})

	t.Run("same name on another server is not a conflict", func(t *testing.T) {
		p, _, _ := newPipeline(t)

		if _, err := p.Create(ctx, "S1", graphJSON("ping", "")); err != nil {
			t.Fatalf("create on S1 failed: %v", err)
		}
		if _, err := p.Create(ctx, "S2", graphJSON("ping", "")); err != nil {
			t.Fatalf("create on S2 failed: %v", err)
		}
	})
}

func TestPipeline_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("recompile with same name never self-conflicts", func(t *testing.T) {
		p, _, _ := newPipeline(t)

		created, err := p.Create(ctx, "S1", graphJSON("ping", "old"))
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		for i := 0; i < 2; i++ {
			result, err := p.Update(ctx, "S1", created.ID, graphJSON("ping", "new"))
			if err != nil {
				t.Fatalf("update %d failed: %v", i, err)
			}
			if result.Name != "ping" || result.Description != "new" {
				t.Errorf("unexpected result %+v", result)
			}
		}
	})

	t.Run("rename frees the old name and claims the new one", func(t *testing.T) {
		p, store, _ := newPipeline(t)

		created, _ := p.Create(ctx, "S1", graphJSON("old-name", ""))
		if _, err := p.Update(ctx, "S1", created.ID, graphJSON("new-name", "")); err != nil {
			t.Fatalf("rename failed: %v", err)
		}

		if _, err := store.FindByName(ctx, "S1", "old-name"); !errors.Is(err, cmdstore.ErrCommandNotFound) {
			t.Errorf("old name should be free, got %v", err)
		}
		if _, err := p.Create(ctx, "S1", graphJSON("old-name", "")); err != nil {
			t.Errorf("old name should be claimable: %v", err)
		}
	})

	t.Run("rename onto another command conflicts", func(t *testing.T) {
		p, _, _ := newPipeline(t)

		p.Create(ctx, "S1", graphJSON("first", ""))
		second, _ := p.Create(ctx, "S1", graphJSON("second", ""))

		_, err := p.Update(ctx, "S1", second.ID, graphJSON("first", ""))
		if !errors.Is(err, cmdstore.ErrNameTaken) {
			t.Errorf("expected ErrNameTaken, got %v", err)
		}
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		p, _, _ := newPipeline(t)

		_, err := p.Update(ctx, "S1", "nope", graphJSON("ping", ""))
		if !errors.Is(err, cmdstore.ErrCommandNotFound) {
			t.Errorf("expected ErrCommandNotFound, got %v", err)
		}
	})
}

// failingPublisher simulates an unreachable reload log.
type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, serverID string) (*types.ReloadEvent, error) {
	return nil, errors.New("log unavailable")
}

func (failingPublisher) Close() error { return nil }

func TestPipeline_NotifyFailureDoesNotFailCompile(t *testing.T) {
	ctx := context.Background()
	store := cmdstore.NewMemoryStore()
	p := New(store, failingPublisher{}, newGraphCheck(t), nil)

	result, err := p.Create(ctx, "S1", graphJSON("welcome-message", ""))
	if err != nil {
		t.Fatalf("expected success despite notify failure, got %v", err)
	}
	if result.Notified {
		t.Error("expected Notified to be false")
	}

	// The command is authoritative even though the worker was not told.
	if _, err := store.Get(ctx, "S1", result.ID); err != nil {
		t.Errorf("command should be retrievable: %v", err)
	}
}

func TestPipeline_ConcurrentCreateSameName(t *testing.T) {
	ctx := context.Background()
	p, store, events := newPipeline(t)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Create(ctx, "S1", graphJSON("giveaway", fmt.Sprintf("racer %d", i)))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, cmdstore.ErrNameTaken):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("expected exactly one success, got %d", successes)
	}
	if conflicts != racers-1 {
		t.Errorf("expected %d conflicts, got %d", racers-1, conflicts)
	}

	if commands, _ := store.List(ctx, "S1", nil); len(commands) != 1 {
		t.Errorf("expected exactly one stored command, got %d", len(commands))
	}
	if published, _ := events.EventsSince(ctx, "S1", ""); len(published) != 1 {
		t.Errorf("expected exactly one reload event, got %d", len(published))
	}
}

func TestPipeline_Delete(t *testing.T) {
	ctx := context.Background()
	p, store, events := newPipeline(t)

	created, _ := p.Create(ctx, "S1", graphJSON("ping", ""))

	if err := p.Delete(ctx, "S1", created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "S1", created.ID); !errors.Is(err, cmdstore.ErrCommandNotFound) {
		t.Errorf("expected command gone, got %v", err)
	}

	// One event for the create, one for the delete.
	if published, _ := events.EventsSince(ctx, "S1", ""); len(published) != 2 {
		t.Errorf("expected two reload events, got %d", len(published))
	}
}
