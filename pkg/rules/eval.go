package rules

import (
	"fmt"
	"reflect"
	"strings"
)

// FieldResolver looks up a fact field by dot path. It returns the value
// and whether the field exists. Resolvers must be pure: no clock, no
// randomness, no I/O.
type FieldResolver func(path string) (interface{}, bool)

// LeafResult records the evaluation of one leaf predicate, used to build
// deterministic rationales for failing trees.
type LeafResult struct {
	// Field is the fact field the predicate examined.
	Field string

	// Operator is the comparison applied.
	Operator Operator

	// Expected is the value from the rule logic.
	Expected interface{}

	// Actual is the value resolved from the fact snapshot.
	Actual interface{}

	// Held reports whether the predicate was satisfied.
	Held bool
}

// Eval evaluates the predicate tree against the resolver. It returns
// whether the tree holds and every leaf evaluation in depth-first order.
// A missing field fails the leaf rather than erroring: absent facts can
// never satisfy a predicate (closed-world evaluation).
func (rs *RuleSet) Eval(resolve FieldResolver) (bool, []LeafResult, error) {
	var leaves []LeafResult
	held, err := evalNode(rs.Root, resolve, &leaves)
	if err != nil {
		return false, nil, err
	}
	return held, leaves, nil
}

// evalNode evaluates one node, appending leaf results as it goes.
func evalNode(n *Node, resolve FieldResolver, leaves *[]LeafResult) (bool, error) {
	if n.IsLeaf() {
		actual, ok := resolve(n.Field)
		if !ok {
			*leaves = append(*leaves, LeafResult{
				Field:    n.Field,
				Operator: n.Operator,
				Expected: n.Value,
				Actual:   nil,
				Held:     false,
			})
			return false, nil
		}

		held, err := evalOperator(n.Operator, actual, n.Value)
		if err != nil {
			return false, &EvalError{Field: n.Field, Operator: n.Operator, Cause: err}
		}
		*leaves = append(*leaves, LeafResult{
			Field:    n.Field,
			Operator: n.Operator,
			Expected: n.Value,
			Actual:   actual,
			Held:     held,
		})
		return held, nil
	}

	switch n.Op {
	case CombAnd:
		all := true
		for _, child := range n.Children {
			held, err := evalNode(child, resolve, leaves)
			if err != nil {
				return false, err
			}
			if !held {
				all = false
			}
		}
		return all, nil

	case CombOr:
		any := false
		for _, child := range n.Children {
			held, err := evalNode(child, resolve, leaves)
			if err != nil {
				return false, err
			}
			if held {
				any = true
			}
		}
		return any, nil

	case CombNot:
		held, err := evalNode(n.Children[0], resolve, leaves)
		if err != nil {
			return false, err
		}
		return !held, nil

	default:
		return false, &EvalError{Cause: fmt.Errorf("unknown combinator %q", n.Op)}
	}
}

// evalOperator applies a leaf operator to actual and expected values.
func evalOperator(op Operator, actual, expected interface{}) (bool, error) {
	switch op {
	case OpEqual:
		return valuesEqual(actual, expected), nil

	case OpNotEqual:
		return !valuesEqual(actual, expected), nil

	case OpGreaterThan:
		a, b, err := toNumeric(actual, expected)
		if err != nil {
			return false, err
		}
		return a > b, nil

	case OpLessThan:
		a, b, err := toNumeric(actual, expected)
		if err != nil {
			return false, err
		}
		return a < b, nil

	case OpIn:
		return evalIn(actual, expected)

	case OpContains:
		return evalContains(actual, expected)

	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// valuesEqual compares two values, treating all numeric types as float64
// so JSON-decoded numbers compare with Go integers.
func valuesEqual(actual, expected interface{}) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	aNum, aErr := convertToFloat64(actual)
	bNum, bErr := convertToFloat64(expected)
	if aErr == nil && bErr == nil {
		return aNum == bNum
	}

	return reflect.DeepEqual(actual, expected)
}

// evalIn checks membership of actual in the expected list.
func evalIn(actual, expected interface{}) (bool, error) {
	expectedVal := reflect.ValueOf(expected)
	if expectedVal.Kind() != reflect.Slice && expectedVal.Kind() != reflect.Array {
		return false, fmt.Errorf("in operator requires a list, got %T", expected)
	}
	for i := 0; i < expectedVal.Len(); i++ {
		if valuesEqual(actual, expectedVal.Index(i).Interface()) {
			return true, nil
		}
	}
	return false, nil
}

// evalContains checks substring containment for strings, element
// containment for lists.
func evalContains(actual, expected interface{}) (bool, error) {
	if actualStr, ok := actual.(string); ok {
		expectedStr, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("contains on a string requires a string value, got %T", expected)
		}
		return strings.Contains(actualStr, expectedStr), nil
	}

	actualVal := reflect.ValueOf(actual)
	if actualVal.Kind() != reflect.Slice && actualVal.Kind() != reflect.Array {
		return false, fmt.Errorf("contains requires a string or list field, got %T", actual)
	}
	for i := 0; i < actualVal.Len(); i++ {
		if valuesEqual(actualVal.Index(i).Interface(), expected) {
			return true, nil
		}
	}
	return false, nil
}

// toNumeric converts both operands to float64 for ordering comparisons.
func toNumeric(actual, expected interface{}) (float64, float64, error) {
	a, err := convertToFloat64(actual)
	if err != nil {
		return 0, 0, fmt.Errorf("actual value: %w", err)
	}
	b, err := convertToFloat64(expected)
	if err != nil {
		return 0, 0, fmt.Errorf("expected value: %w", err)
	}
	return a, b, nil
}

// convertToFloat64 converts any Go numeric type to float64.
func convertToFloat64(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", v)
	}
}
