// Package types defines the wire types shared between the API, the compiler,
// and the stores.
package types

// NodeType identifies the kind of a graph node. The set is closed: unknown
// types are rejected during structural validation.
type NodeType string

const (
	// NodeTypeInput marks the entry node. Its label and description become
	// the compiled command's name and description.
	NodeTypeInput NodeType = "input"

	// NodeTypeAction is a step the bot performs when the command runs.
	NodeTypeAction NodeType = "action"

	// NodeTypeCondition gates downstream nodes on an expression.
	NodeTypeCondition NodeType = "condition"
)

// Known reports whether t is one of the declared node types.
func (t NodeType) Known() bool {
	switch t {
	case NodeTypeInput, NodeTypeAction, NodeTypeCondition:
		return true
	}
	return false
}

// NodeData carries the editable fields of a node.
type NodeData struct {
	// Label is the user-facing title. On the entry node it is the source of
	// the command name.
	Label string `json:"label"`

	// Description is optional; on the entry node it becomes the command
	// description.
	Description string `json:"description,omitempty"`

	// Expression is the condition to evaluate (condition nodes only).
	Expression string `json:"expression,omitempty"`

	// Params holds action-specific settings the editor attaches.
	Params map[string]any `json:"params,omitempty"`
}

// Position is the node's location on the editor canvas. Kept verbatim so the
// editor can restore the layout.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single node in a command graph.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Data     NodeData `json:"data"`
	Position Position `json:"position"`
}

// Edge connects two nodes by id.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the caller-supplied command graph: the node sequence plus the
// edges between them.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// EntryNode returns the first input node, or nil if the graph has none.
func (g *Graph) EntryNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeInput {
			return &g.Nodes[i]
		}
	}
	return nil
}
