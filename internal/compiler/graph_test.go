package compiler

import (
	"encoding/json"
	"strings"
	"testing"
)

func newGraphCheck(t *testing.T) *GraphCheck {
	t.Helper()
	c, err := NewGraphCheck()
	if err != nil {
		t.Fatalf("NewGraphCheck failed: %v", err)
	}
	return c
}

func TestGraphCheck_Extract(t *testing.T) {
	check := newGraphCheck(t)

	t.Run("extracts name and description from entry node", func(t *testing.T) {
		raw := json.RawMessage(`{
			"nodes": [
				{"id": "n1", "type": "input", "data": {"label": "Welcome-Message", "description": "Greets new members"}, "position": {"x": 0, "y": 0}},
				{"id": "n2", "type": "action", "data": {"label": "Send greeting"}, "position": {"x": 100, "y": 0}}
			],
			"edges": [{"source": "n1", "target": "n2"}]
		}`)

		spec, verr := check.Extract(raw)
		if verr != nil {
			t.Fatalf("Extract failed: %v", verr)
		}
		if spec.Name != "welcome-message" {
			t.Errorf("expected name %q, got %q", "welcome-message", spec.Name)
		}
		if spec.Description != "Greets new members" {
			t.Errorf("expected description %q, got %q", "Greets new members", spec.Description)
		}
		if len(spec.Graph.Nodes) != 2 || len(spec.Graph.Edges) != 1 {
			t.Errorf("graph not carried through: %+v", spec.Graph)
		}
	})

	t.Run("missing description defaults to empty", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [{"id": "n1", "type": "input", "data": {"label": "ping"}}]}`)

		spec, verr := check.Extract(raw)
		if verr != nil {
			t.Fatalf("Extract failed: %v", verr)
		}
		if spec.Description != "" {
			t.Errorf("expected empty description, got %q", spec.Description)
		}
	})

	t.Run("rejects graph without entry node", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [{"id": "n1", "type": "action", "data": {"label": "x"}}]}`)

		spec, verr := check.Extract(raw)
		if spec != nil || verr == nil {
			t.Fatal("expected rejection")
		}
		if !containsReason(verr.Reasons, ReasonMissingEntryNode) {
			t.Errorf("expected %q in reasons, got %v", ReasonMissingEntryNode, verr.Reasons)
		}
	})

	t.Run("uses the first entry node when several exist", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [
			{"id": "n1", "type": "input", "data": {"label": "first"}},
			{"id": "n2", "type": "input", "data": {"label": "second"}}
		]}`)

		spec, verr := check.Extract(raw)
		if verr != nil {
			t.Fatalf("Extract failed: %v", verr)
		}
		if spec.Name != "first" {
			t.Errorf("expected name %q, got %q", "first", spec.Name)
		}
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		if spec, verr := check.Extract(json.RawMessage(`{nodes:}`)); spec != nil || verr == nil {
			t.Fatal("expected rejection")
		}
	})

	t.Run("rejects unknown node type", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [{"id": "n1", "type": "webhook", "data": {"label": "x"}}]}`)

		_, verr := check.Extract(raw)
		if verr == nil {
			t.Fatal("expected rejection")
		}
	})

	t.Run("rejects empty node list", func(t *testing.T) {
		if _, verr := check.Extract(json.RawMessage(`{"nodes": []}`)); verr == nil {
			t.Fatal("expected rejection")
		}
	})

	t.Run("rejects duplicate node ids", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [
			{"id": "n1", "type": "input", "data": {"label": "x"}},
			{"id": "n1", "type": "action", "data": {"label": "y"}}
		]}`)

		_, verr := check.Extract(raw)
		if verr == nil {
			t.Fatal("expected rejection")
		}
		if !reasonsMention(verr.Reasons, "duplicate node id") {
			t.Errorf("expected duplicate id reason, got %v", verr.Reasons)
		}
	})

	t.Run("rejects edges referencing undeclared nodes", func(t *testing.T) {
		raw := json.RawMessage(`{
			"nodes": [{"id": "n1", "type": "input", "data": {"label": "x"}}],
			"edges": [{"source": "n1", "target": "ghost"}]
		}`)

		_, verr := check.Extract(raw)
		if verr == nil {
			t.Fatal("expected rejection")
		}
		if !reasonsMention(verr.Reasons, "undeclared node") {
			t.Errorf("expected undeclared node reason, got %v", verr.Reasons)
		}
	})

	t.Run("rejects condition node with bad expression", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [
			{"id": "n1", "type": "input", "data": {"label": "x"}},
			{"id": "n2", "type": "condition", "data": {"label": "gate", "expression": "user.role =="}}
		]}`)

		_, verr := check.Extract(raw)
		if verr == nil {
			t.Fatal("expected rejection")
		}
	})

	t.Run("accepts condition node with valid expression", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [
			{"id": "n1", "type": "input", "data": {"label": "x"}},
			{"id": "n2", "type": "condition", "data": {"label": "gate", "expression": "user.role == \"mod\""}}
		]}`)

		if _, verr := check.Extract(raw); verr != nil {
			t.Fatalf("Extract failed: %v", verr)
		}
	})

	t.Run("rejects condition node without expression", func(t *testing.T) {
		raw := json.RawMessage(`{"nodes": [
			{"id": "n1", "type": "input", "data": {"label": "x"}},
			{"id": "n2", "type": "condition", "data": {"label": "gate"}}
		]}`)

		if _, verr := check.Extract(raw); verr == nil {
			t.Fatal("expected rejection")
		}
	})

	t.Run("collects multiple reasons in one pass", func(t *testing.T) {
		raw := json.RawMessage(`{
			"nodes": [
				{"id": "n1", "type": "input", "data": {"label": "x"}},
				{"id": "n1", "type": "action", "data": {"label": "y"}}
			],
			"edges": [{"source": "ghost", "target": "n1"}]
		}`)

		_, verr := check.Extract(raw)
		if verr == nil {
			t.Fatal("expected rejection")
		}
		if len(verr.Reasons) < 2 {
			t.Errorf("expected multiple reasons, got %v", verr.Reasons)
		}
	})
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

func reasonsMention(reasons []string, substr string) bool {
	for _, r := range reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}
