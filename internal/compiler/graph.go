package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chatforge/commandd/pkg/types"
)

// maxExpressionLength limits condition expression size.
const maxExpressionLength = 4096

// GraphCheck validates raw command graphs. Validation runs in two passes: a
// JSON Schema pass over the raw document (shape, required fields, the closed
// node-type set), then a typed pass over the decoded graph (entry node,
// duplicate ids, edge referential integrity, condition expression syntax).
type GraphCheck struct {
	schema *jsonschema.Schema
}

// CommandSpec is the compiled essence of a valid graph: the command identity
// the entry node declares, plus the graph itself.
type CommandSpec struct {
	Name        string
	Description string
	Graph       types.Graph
}

// NewGraphCheck compiles the embedded graph schema.
func NewGraphCheck() (*GraphCheck, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("graph.json", strings.NewReader(graphSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add graph schema: %w", err)
	}

	schema, err := compiler.Compile("graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &GraphCheck{schema: schema}, nil
}

// Extract validates the raw graph and returns the command spec it declares.
// A nil spec means the graph was rejected; the returned *ValidationError
// lists every reason found, not just the first.
func (c *GraphCheck) Extract(raw json.RawMessage) (*CommandSpec, *ValidationError) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{
			Message: "command graph is not valid JSON",
			Reasons: []string{err.Error()},
		}
	}

	if err := c.schema.Validate(doc); err != nil {
		return nil, &ValidationError{
			Message: "command graph is malformed",
			Reasons: schemaReasons(err),
		}
	}

	var graph types.Graph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return nil, &ValidationError{
			Message: "command graph is malformed",
			Reasons: []string{err.Error()},
		}
	}

	if reasons := checkGraph(&graph); len(reasons) > 0 {
		return nil, &ValidationError{
			Message: "command graph is malformed",
			Reasons: reasons,
		}
	}

	entry := graph.EntryNode()
	if entry == nil {
		return nil, &ValidationError{
			Message: "command graph has no entry node",
			Reasons: []string{ReasonMissingEntryNode},
		}
	}

	return &CommandSpec{
		Name:        NormalizeName(entry.Data.Label),
		Description: entry.Data.Description,
		Graph:       graph,
	}, nil
}

// checkGraph runs the typed structural checks and collects every violation.
func checkGraph(g *types.Graph) []string {
	var reasons []string

	seen := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if seen[node.ID] {
			reasons = append(reasons, fmt.Sprintf("duplicate node id %q", node.ID))
			continue
		}
		seen[node.ID] = true
	}

	for _, edge := range g.Edges {
		if !seen[edge.Source] {
			reasons = append(reasons, fmt.Sprintf("edge references undeclared node %q", edge.Source))
		}
		if !seen[edge.Target] {
			reasons = append(reasons, fmt.Sprintf("edge references undeclared node %q", edge.Target))
		}
	}

	for _, node := range g.Nodes {
		if node.Type != types.NodeTypeCondition {
			continue
		}
		if err := checkExpression(node.Data.Expression); err != nil {
			reasons = append(reasons, fmt.Sprintf("condition node %q: %v", node.ID, err))
		}
	}

	return reasons
}

// checkExpression verifies a condition expression compiles. The expression is
// never evaluated here; the bot worker does that at invocation time.
func checkExpression(expression string) error {
	if expression == "" {
		return fmt.Errorf("expression is required")
	}
	if len(expression) > maxExpressionLength {
		return fmt.Errorf("expression exceeds maximum length of %d characters", maxExpressionLength)
	}
	if _, err := expr.Compile(expression); err != nil {
		return fmt.Errorf("invalid expression: %w", err)
	}
	return nil
}

// schemaReasons flattens jsonschema validation errors into display strings.
func schemaReasons(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return flattenSchemaError(verr)
}

func flattenSchemaError(verr *jsonschema.ValidationError) []string {
	var reasons []string
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "$"
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Message)}
	}
	for _, cause := range verr.Causes {
		reasons = append(reasons, flattenSchemaError(cause)...)
	}
	return reasons
}

// graphSchemaJSON is the embedded structural schema for command graphs.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "graph.json",
  "title": "Command Graph",
  "description": "Schema for editor-authored command graphs",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type", "data"],
        "properties": {
          "id": {
            "type": "string",
            "minLength": 1,
            "description": "Node identifier, unique within the graph"
          },
          "type": {
            "type": "string",
            "enum": ["input", "action", "condition"],
            "description": "Node kind"
          },
          "data": {
            "type": "object",
            "required": ["label"],
            "properties": {
              "label": {"type": "string"},
              "description": {"type": "string"},
              "expression": {"type": "string"},
              "params": {"type": "object"}
            }
          },
          "position": {
            "type": "object",
            "properties": {
              "x": {"type": "number"},
              "y": {"type": "number"}
            }
          }
        }
      },
      "description": "Nodes in the command graph"
    },
    "edges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "source": {
            "type": "string",
            "description": "Source node ID"
          },
          "target": {
            "type": "string",
            "description": "Target node ID"
          }
        }
      },
      "description": "Connections between nodes"
    }
  }
}`
