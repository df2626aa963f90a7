package match

// Predicate tests a string value and returns true if it matches.
type Predicate func(string) bool

// FieldPredicate binds a named request field to its compiled predicate.
// Body predicates receive the raw request body text.
type FieldPredicate struct {
	Field     string
	Predicate Predicate
}
