package errstate

import "errbound/internal/expr"

// ErrorArrayPrefix is prepended to a source array's name to form the
// name of its paired error array.
const ErrorArrayPrefix = "_fractional_error_"

// Registry mints the error array paired with each symbolic input
// array. It is shared append-only across all execution states.
//
// The element width of every error array is fixed at 8 bits regardless
// of the source array's element width: per-byte relative error is
// modeled at 2^8 granularity and widened at use sites.
type Registry struct {
	factory *expr.Factory
	paired  map[*expr.Array]*expr.Array
}

// NewRegistry creates an empty registry over the given term factory.
func NewRegistry(factory *expr.Factory) *Registry {
	return &Registry{
		factory: factory,
		paired:  make(map[*expr.Array]*expr.Array),
	}
}

// ErrorArrayFor returns the error array paired with a, creating it on
// the first call. For any source array there is at most one error
// array; once created it is always reused.
func (r *Registry) ErrorArrayFor(a *expr.Array) *expr.Array {
	if e, ok := r.paired[a]; ok {
		return e
	}
	e := r.factory.Array(ErrorArrayPrefix+a.Name, expr.Int8, 1)
	r.paired[a] = e
	return e
}

// IsErrorArray reports whether a was minted by a registry.
func IsErrorArray(a *expr.Array) bool {
	return len(a.Name) > len(ErrorArrayPrefix) && a.Name[:len(ErrorArrayPrefix)] == ErrorArrayPrefix
}
