package rules

import (
	"encoding/json"
	"fmt"
)

// Operator identifies a leaf predicate comparison.
type Operator string

const (
	// OpEqual checks actual == expected.
	OpEqual Operator = "eq"

	// OpNotEqual checks actual != expected.
	OpNotEqual Operator = "neq"

	// OpGreaterThan checks actual > expected (numeric).
	OpGreaterThan Operator = "gt"

	// OpLessThan checks actual < expected (numeric).
	OpLessThan Operator = "lt"

	// OpIn checks that actual is an element of the expected list.
	OpIn Operator = "in"

	// OpContains checks substring or element containment.
	OpContains Operator = "contains"
)

// Valid reports whether the operator is part of the wire contract.
func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpIn, OpContains:
		return true
	}
	return false
}

// Combinator identifies a boolean composition node.
type Combinator string

const (
	// CombAnd requires all children to hold.
	CombAnd Combinator = "AND"

	// CombOr requires at least one child to hold.
	CombOr Combinator = "OR"

	// CombNot inverts its single child.
	CombNot Combinator = "NOT"
)

// Valid reports whether the combinator is part of the wire contract.
func (c Combinator) Valid() bool {
	switch c {
	case CombAnd, CombOr, CombNot:
		return true
	}
	return false
}

// Node is one node of a rule-logic predicate tree. Exactly one of the two
// shapes is populated: a leaf predicate (Field, Operator, Value) or a
// combinator (Op, Children).
type Node struct {
	// Leaf predicate fields.
	Field    string      `json:"field,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`

	// Combinator fields.
	Op       Combinator `json:"op,omitempty"`
	Children []*Node    `json:"children,omitempty"`
}

// IsLeaf reports whether the node is a leaf predicate.
func (n *Node) IsLeaf() bool {
	return n.Op == ""
}

// RuleSet is one immutable rule-logic document as stored on a policy
// version. SchemaMin and SchemaMax bound the fact schema versions the
// rules were authored against; evaluating against a snapshot outside
// that range is a schema mismatch, never a silent pass.
type RuleSet struct {
	// SchemaMin is the lowest fact schema version these rules understand.
	SchemaMin int `json:"schema_min"`

	// SchemaMax is the highest fact schema version these rules understand.
	SchemaMax int `json:"schema_max"`

	// IncludePaths restricts the rule set to changes touching these path
	// patterns. Empty means all paths. Patterns are normalized prefix
	// globs ("src/*") or exact paths.
	IncludePaths []string `json:"include_paths,omitempty"`

	// ExcludePaths removes matching paths from consideration.
	ExcludePaths []string `json:"exclude_paths,omitempty"`

	// Root is the predicate tree. The tree holding means the change
	// satisfies the policy.
	Root *Node `json:"root"`
}

// Parse decodes and validates a serialized rule set.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("malformed rule logic: %v", err)}
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Validate checks the structural invariants of the rule set.
func (rs *RuleSet) Validate() error {
	if rs.Root == nil {
		return &ValidationError{Reason: "rule set has no root node"}
	}
	if rs.SchemaMin <= 0 || rs.SchemaMax < rs.SchemaMin {
		return &ValidationError{Reason: fmt.Sprintf("invalid schema range [%d, %d]", rs.SchemaMin, rs.SchemaMax)}
	}
	return validateNode(rs.Root, "root")
}

// SupportsSchema reports whether the rule set understands a fact schema version.
func (rs *RuleSet) SupportsSchema(version int) bool {
	return version >= rs.SchemaMin && version <= rs.SchemaMax
}

// validateNode checks one node and recurses into children. The path
// argument names the node position for error messages.
func validateNode(n *Node, path string) error {
	if n == nil {
		return &ValidationError{Reason: fmt.Sprintf("%s: nil node", path)}
	}

	if n.IsLeaf() {
		if len(n.Children) > 0 {
			return &ValidationError{Reason: fmt.Sprintf("%s: leaf predicate cannot have children", path)}
		}
		if n.Field == "" {
			return &ValidationError{Reason: fmt.Sprintf("%s: leaf predicate missing field", path)}
		}
		if !n.Operator.Valid() {
			return &ValidationError{Reason: fmt.Sprintf("%s: unknown operator %q", path, n.Operator)}
		}
		if n.Value == nil {
			return &ValidationError{Reason: fmt.Sprintf("%s: leaf predicate missing value", path)}
		}
		return nil
	}

	if !n.Op.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("%s: unknown combinator %q", path, n.Op)}
	}
	if n.Field != "" || n.Operator != "" || n.Value != nil {
		return &ValidationError{Reason: fmt.Sprintf("%s: combinator cannot carry leaf fields", path)}
	}
	switch n.Op {
	case CombNot:
		if len(n.Children) != 1 {
			return &ValidationError{Reason: fmt.Sprintf("%s: NOT requires exactly one child, got %d", path, len(n.Children))}
		}
	default:
		if len(n.Children) == 0 {
			return &ValidationError{Reason: fmt.Sprintf("%s: %s requires at least one child", path, n.Op)}
		}
	}
	for i, child := range n.Children {
		if err := validateNode(child, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
