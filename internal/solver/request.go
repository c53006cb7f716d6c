package solver

import (
	"errbound/internal/errstate"
	"errbound/internal/expr"
)

// BoundRequest is an assembled error-bound query: the path constraints,
// the violation predicate error > bound, and the input-error variables
// the optimizer should maximize independently.
type BoundRequest struct {
	Name  string
	File  string
	Line  int
	Bound float64

	// Error is the accumulated error term being bounded.
	Error *expr.Term

	// Violation is Error > Bound; satisfiable means the bound is
	// violated.
	Violation *expr.Term

	// Satisfaction is Error <= Bound. When the violation query is
	// unsolvable the optimizer re-runs under this predicate so the
	// per-input maxima are still reported alongside a holding bound.
	Satisfaction *expr.Term

	// Constraints are the path condition plus any constraints the
	// propagation emitted (scaling).
	Constraints []*expr.Term

	// Objectives are the input-error arrays of interest, in first
	// occurrence order.
	Objectives []*expr.Array
}

// NewBoundRequest collects the input-error variables reachable from
// the error term and the constraints, and phrases the violation
// predicate against the literal bound.
func NewBoundRequest(f *expr.Factory, name, file string, line int, errTerm *expr.Term, bound float64, constraints []*expr.Term) BoundRequest {
	terms := append([]*expr.Term{errTerm}, constraints...)
	return BoundRequest{
		Name:         name,
		File:         file,
		Line:         line,
		Bound:        bound,
		Error:        errTerm,
		Violation:    f.Ugt(errTerm, f.Float(bound)),
		Satisfaction: f.Ule(errTerm, f.Float(bound)),
		Constraints:  constraints,
		Objectives:   CollectErrorArrays(terms...),
	}
}

// CollectErrorArrays walks terms and returns every distinct
// registry-minted error array read anywhere inside them, in first
// occurrence order.
func CollectErrorArrays(terms ...*expr.Term) []*expr.Array {
	seen := make(map[*expr.Array]struct{})
	var out []*expr.Array
	var walk func(t *expr.Term)
	walk = func(t *expr.Term) {
		if t.Kind() == expr.Read {
			a := t.Array()
			if errstate.IsErrorArray(a) {
				if _, ok := seen[a]; !ok {
					seen[a] = struct{}{}
					out = append(out, a)
				}
			}
		}
		for _, child := range t.Children() {
			walk(child)
		}
	}
	for _, t := range terms {
		if t != nil {
			walk(t)
		}
	}
	return out
}
