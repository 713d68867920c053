// Package rules defines the serialized rule-logic format shared between
// policy authoring and the evaluation engine.
//
// A rule set is a predicate tree over fact fields. Each node is either a
// leaf predicate {field, operator, value} or a combinator {op, children}
// with op one of AND, OR, NOT. The JSON encoding of this tree is a stable
// wire and storage contract: historical rule logic must remain
// reinterpretable byte-for-byte so that simulations can replay old
// versions exactly.
//
// The package also provides canonical serialization (sorted object keys,
// no insignificant whitespace), which is the input to integrity and
// simulation hashes.
package rules
