package errstate

import (
	"fmt"

	"errbound/internal/expr"
)

// Phase tracks where an error state is in its reporting lifecycle.
type Phase int

const (
	// Fresh means no input error has been registered yet.
	Fresh Phase = iota
	// Tainted means propagation is active.
	Tainted
	// Reported means at least one bound request has completed.
	Reported
)

func (p Phase) String() string {
	switch p {
	case Tainted:
		return "tainted"
	case Reported:
		return "reported"
	default:
		return "fresh"
	}
}

// Options are the propagation switches lifted out of the global
// configuration; everything else in Config is irrelevant to a state.
type Options struct {
	// OptimizeDivides rewrites division of the error numerator by a
	// constant power-of-two result into a shift.
	OptimizeDivides bool

	// Scaling multiplies every division numerator by a nonzero
	// symbolic scaling variable.
	Scaling bool
}

// MemcpyInfo is the single-slot witness passed from the most recent
// memcpy-modeling store to the next load. It is cleared on read.
type MemcpyInfo struct {
	Line     int
	Function string
}

// MathCall records one symbolic invocation of a recognized libm
// function, keyed by the fresh return variable name.
type MathCall struct {
	Name string
	Args []*expr.Term
}

// cell is one error-memory entry: the stored value and its error
// shadow, both terms of the same width.
type cell struct {
	value *expr.Term
	err   *expr.Term
}

// State is the per-execution-state error shadow: the value-to-error
// map maintained by the propagator, the error memory serving loads and
// stores, and the bookkeeping consumed by the reporter.
//
// Error memory is keyed by the address term itself. Terms are
// hash-consed, so structural equality is pointer equality; two
// symbolic addresses that are provably equal but structurally distinct
// are treated as distinct cells. There is no alias analysis — this
// errs on the side the analysis is sound in.
type State struct {
	factory  *expr.Factory
	registry *Registry
	opts     Options

	valueError   map[*expr.Term]*expr.Term
	currentError *expr.Term

	// divisionByZeroModeled marks results whose error numerator was
	// kept undivided because the result term is literally zero.
	divisionByZeroModeled map[*expr.Term]bool

	stored        map[*expr.Term]cell
	declaredInput map[*expr.Term]*expr.Term
	inputErrors   []*expr.Term

	mathCalls    map[string]MathCall
	mathVarCount int

	memcpyInfo MemcpyInfo
	memcpySet  bool

	scalingVar       *expr.Term
	extraConstraints []*expr.Term

	phase            Phase
	uninitializedLoads int
}

// NewState creates a fresh error state over the shared factory and
// registry.
func NewState(factory *expr.Factory, registry *Registry, opts Options) *State {
	return &State{
		factory:               factory,
		registry:              registry,
		opts:                  opts,
		valueError:            make(map[*expr.Term]*expr.Term),
		divisionByZeroModeled: make(map[*expr.Term]bool),
		stored:                make(map[*expr.Term]cell),
		declaredInput:         make(map[*expr.Term]*expr.Term),
		mathCalls:             make(map[string]MathCall),
	}
}

// Clone returns an independent copy of the state for a forked path.
// The term DAG, factory and registry stay shared; they are immutable.
func (s *State) Clone() *State {
	c := &State{
		factory:               s.factory,
		registry:              s.registry,
		opts:                  s.opts,
		valueError:            make(map[*expr.Term]*expr.Term, len(s.valueError)),
		divisionByZeroModeled: make(map[*expr.Term]bool, len(s.divisionByZeroModeled)),
		stored:                make(map[*expr.Term]cell, len(s.stored)),
		declaredInput:         make(map[*expr.Term]*expr.Term, len(s.declaredInput)),
		mathCalls:             make(map[string]MathCall, len(s.mathCalls)),
		mathVarCount:          s.mathVarCount,
		currentError:          s.currentError,
		memcpyInfo:            s.memcpyInfo,
		memcpySet:             s.memcpySet,
		scalingVar:            s.scalingVar,
		phase:                 s.phase,
		uninitializedLoads:    s.uninitializedLoads,
	}
	for k, v := range s.valueError {
		c.valueError[k] = v
	}
	for k, v := range s.divisionByZeroModeled {
		c.divisionByZeroModeled[k] = v
	}
	for k, v := range s.stored {
		c.stored[k] = v
	}
	for k, v := range s.declaredInput {
		c.declaredInput[k] = v
	}
	for k, v := range s.mathCalls {
		c.mathCalls[k] = v
	}
	c.inputErrors = append([]*expr.Term(nil), s.inputErrors...)
	c.extraConstraints = append([]*expr.Term(nil), s.extraConstraints...)
	return c
}

// OverwriteWith replaces this state's error memory and input error
// list with another state's. Used when a collaborator re-seeds a
// state after breaking a loop.
func (s *State) OverwriteWith(o *State) {
	s.stored = make(map[*expr.Term]cell, len(o.stored))
	for k, v := range o.stored {
		s.stored[k] = v
	}
	s.declaredInput = make(map[*expr.Term]*expr.Term, len(o.declaredInput))
	for k, v := range o.declaredInput {
		s.declaredInput[k] = v
	}
	s.inputErrors = append([]*expr.Term(nil), o.inputErrors...)
}

// Phase returns the reporting lifecycle phase.
func (s *State) Phase() Phase { return s.phase }

// MarkReported moves the state to the Reported phase after a bound
// request completes.
func (s *State) MarkReported() { s.phase = Reported }

// CurrentError returns the candidate error term the next bound
// intrinsic compares against its literal bound.
func (s *State) CurrentError() *expr.Term { return s.currentError }

// Registry returns the shared error-array registry.
func (s *State) Registry() *Registry { return s.registry }

// RegisterInputError appends a declared input error term and taints
// the state.
func (s *State) RegisterInputError(e *expr.Term) {
	s.inputErrors = append(s.inputErrors, e)
	if s.phase == Fresh {
		s.phase = Tainted
	}
}

// InputErrors returns the declared input error terms in declaration
// order.
func (s *State) InputErrors() []*expr.Term { return s.inputErrors }

// ExtraConstraints returns constraints the propagation itself emitted
// into the path condition, currently only the scaling variable's
// nonzero constraint.
func (s *State) ExtraConstraints() []*expr.Term { return s.extraConstraints }

// DivisionByZeroModeled reports whether the given result's error term
// was produced with the divide-by-result guard triggered.
func (s *State) DivisionByZeroModeled(result *expr.Term) bool {
	return s.divisionByZeroModeled[result]
}

// UninitializedLoads returns the count of loads that found neither a
// stored nor a declared error.
func (s *State) UninitializedLoads() int { return s.uninitializedLoads }

// StoreSimple records (value, error) for the given address term,
// overwriting a previous cell for the structurally same address. A
// declared input error on the same address is left in place; the two
// shadow independently.
func (s *State) StoreSimple(addr, value, err *expr.Term) {
	s.stored[addr] = cell{value: value, err: err}
}

// Load returns the (value, error) pair for the address. If no cell is
// stored, a declared input error is consulted; failing that both
// components default to zero of the requested width and the miss is
// counted.
func (s *State) Load(addr *expr.Term, width expr.Width) (value, err *expr.Term, miss bool) {
	if c, ok := s.stored[addr]; ok {
		return c.value, c.err, false
	}
	if declared, ok := s.declaredInput[addr]; ok {
		return s.factory.Constant(0, width), declared, false
	}
	s.uninitializedLoads++
	return s.factory.Constant(0, width), s.factory.Constant(0, width), true
}

// BindError attaches an externally supplied error shadow to a value
// term. Loads use it to reattach the stored or declared error of the
// loaded value before further propagation.
func (s *State) BindError(v, e *expr.Term) {
	s.valueError[v] = e
}

// DeclareInputError records a user-declared input error for the
// address, independent of any stored cell.
func (s *State) DeclareInputError(addr, err *expr.Term) {
	s.declaredInput[addr] = err
}

// DeclaredInputError returns the declared error for the address, if
// any.
func (s *State) DeclaredInputError(addr *expr.Term) (*expr.Term, bool) {
	e, ok := s.declaredInput[addr]
	return e, ok
}

// NoteMemcpyStore records the single-slot memcpy witness.
func (s *State) NoteMemcpyStore(line int, function string) {
	s.memcpyInfo = MemcpyInfo{Line: line, Function: function}
	s.memcpySet = true
}

// RetrieveMemcpyStoreInfo returns the memcpy witness and clears the
// slot; a second read returns the zero value.
func (s *State) RetrieveMemcpyStoreInfo() MemcpyInfo {
	if !s.memcpySet {
		return MemcpyInfo{}
	}
	info := s.memcpyInfo
	s.memcpyInfo = MemcpyInfo{}
	s.memcpySet = false
	return info
}

// RegisterMathCall records a symbolic libm invocation and returns the
// fresh, state-unique return variable name.
func (s *State) RegisterMathCall(name string, args []*expr.Term) string {
	varName := fmt.Sprintf("_mathvar_%d", s.mathVarCount)
	s.mathVarCount++
	s.mathCalls[varName] = MathCall{Name: name, Args: args}
	return varName
}

// MathCalls returns the recorded math-call table.
func (s *State) MathCalls() map[string]MathCall { return s.mathCalls }
