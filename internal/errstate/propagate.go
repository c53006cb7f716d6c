package errstate

import (
	"fmt"

	"errbound/internal/diag"
	"errbound/internal/expr"
)

// Opcode identifies the instruction whose result error is being
// propagated. The floating variants carry the extra unit rounding term
// on top of the integer algebra.
type Opcode int

const (
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpZExt
	OpSExt
	OpTrunc
	OpBitcast
	OpSelect
	OpICmp
)

var opcodeNames = map[Opcode]string{
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpUDiv:    "udiv",
	OpSDiv:    "sdiv",
	OpFAdd:    "fadd",
	OpFSub:    "fsub",
	OpFMul:    "fmul",
	OpFDiv:    "fdiv",
	OpZExt:    "zext",
	OpSExt:    "sext",
	OpTrunc:   "trunc",
	OpBitcast: "bitcast",
	OpSelect:  "select",
	OpICmp:    "icmp",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "unknown"
}

// ErrorOf returns the error term shadowing v.
//
// Constants carry zero error of matching width. A read (or a concat of
// reads) from a single source array mints a read of the paired error
// array and caches it. Any other term must already have been processed
// by the propagator; if no cached entry exists the expression is
// malformed.
//
// The lookup is side-effecting in exactly one direction: it creates
// error-array reads but never composite errors.
func (s *State) ErrorOf(v *expr.Term) (*expr.Term, error) {
	if e, ok := s.valueError[v]; ok {
		return e, nil
	}
	switch v.Kind() {
	case expr.Constant:
		return s.factory.Constant(0, v.Width()), nil
	case expr.Read:
		return s.errorReadFor(v, v.Array()), nil
	case expr.Concat:
		root, ok := singleReadRoot(v)
		if !ok {
			return nil, diag.MalformedExpression(
				fmt.Sprintf("concat does not read a single source array: %s", v))
		}
		return s.errorReadFor(v, root), nil
	}
	return nil, diag.MalformedExpression(
		fmt.Sprintf("no error recorded for composite term: %s", v))
}

// errorReadFor mints the 8-bit read of v's paired error array and
// caches it under v.
func (s *State) errorReadFor(v *expr.Term, root *expr.Array) *expr.Term {
	errorArray := s.registry.ErrorArrayFor(root)
	read := s.factory.Read(errorArray, s.factory.Constant(0, expr.Int8))
	s.valueError[v] = read
	return read
}

// singleReadRoot returns the source array when every leaf of a concat
// tree is a read of the same array.
func singleReadRoot(t *expr.Term) (*expr.Array, bool) {
	switch t.Kind() {
	case expr.Read:
		return t.Array(), true
	case expr.Concat:
		left, ok := singleReadRoot(t.Child(0))
		if !ok {
			return nil, false
		}
		right, ok := singleReadRoot(t.Child(1))
		if !ok || left != right {
			return nil, false
		}
		return left, true
	}
	return nil, false
}

// PropagateError produces and records the error term of result from
// the errors of its operands, per the relative-error algebra. It
// returns the recorded term; comparison opcodes produce no error and
// return nil.
func (s *State) PropagateError(op Opcode, result *expr.Term, operands []*expr.Term) (*expr.Term, error) {
	switch op {
	case OpAdd, OpSub, OpFAdd, OpFSub:
		num, err := s.magnitudeNumerator(result, operands)
		if err != nil {
			return nil, err
		}
		e := s.divideByResult(num, result)
		if op == OpFAdd || op == OpFSub {
			e = s.factory.Add(e, s.ulp(result))
		}
		return s.record(result, e), nil

	case OpMul, OpUDiv, OpSDiv, OpFMul, OpFDiv:
		el, er, err := s.operandErrors(operands)
		if err != nil {
			return nil, err
		}
		e := s.factory.Add(
			s.factory.ZExt(el, result.Width()),
			s.factory.ZExt(er, result.Width()))
		if op == OpFMul || op == OpFDiv {
			e = s.factory.Add(e, s.ulp(result))
		}
		return s.record(result, e), nil

	case OpZExt, OpSExt, OpTrunc:
		e, err := s.ErrorOf(operands[0])
		if err != nil {
			return nil, err
		}
		return s.record(result, s.castError(op, e, result.Width())), nil

	case OpBitcast:
		e, err := s.ErrorOf(operands[0])
		if err != nil {
			return nil, err
		}
		return s.record(result, e), nil

	case OpSelect:
		cond := operands[0]
		el, er, err := s.operandErrors(operands[1:])
		if err != nil {
			return nil, err
		}
		e := s.factory.Select(cond,
			s.factory.ZExt(el, result.Width()),
			s.factory.ZExt(er, result.Width()))
		return s.record(result, e), nil

	case OpICmp:
		return nil, nil
	}
	return nil, diag.MalformedExpression(fmt.Sprintf("unhandled opcode %s", op))
}

// magnitudeNumerator builds el·L + er·R with both errors widened to
// the result width. Add and Sub share it: error magnitudes add either
// way.
func (s *State) magnitudeNumerator(result *expr.Term, operands []*expr.Term) (*expr.Term, error) {
	el, er, err := s.operandErrors(operands)
	if err != nil {
		return nil, err
	}
	left := s.factory.Mul(s.factory.ZExt(el, result.Width()), operands[0])
	right := s.factory.Mul(s.factory.ZExt(er, result.Width()), operands[1])
	return s.factory.Add(left, right), nil
}

func (s *State) operandErrors(operands []*expr.Term) (el, er *expr.Term, err error) {
	el, err = s.ErrorOf(operands[0])
	if err != nil {
		return nil, nil, err
	}
	er, err = s.ErrorOf(operands[1])
	if err != nil {
		return nil, nil, err
	}
	return el, er, nil
}

// divideByResult closes the numerator over the result value. A literal
// zero result keeps the numerator undivided and marks the cell. When
// divide optimization is on and the result is a constant power of two,
// the division becomes a shift; the rewrite touches only the error
// term, never the value.
func (s *State) divideByResult(num, result *expr.Term) *expr.Term {
	if s.opts.Scaling {
		num = s.factory.Mul(num, s.factory.ZExt(s.scalingVariable(), num.Width()))
	}
	if result.IsZero() {
		s.divisionByZeroModeled[result] = true
		return num
	}
	if s.opts.OptimizeDivides {
		if exp, ok := expr.IsPowerOfTwo(result); ok {
			return s.factory.LShr(num, exp)
		}
	}
	return s.factory.UDiv(num, result)
}

// scalingVariable lazily mints the per-state scaling variable and
// emits its nonzero constraint into the path condition.
func (s *State) scalingVariable() *expr.Term {
	if s.scalingVar == nil {
		array := s.factory.Array("_scaling", expr.Int8, 1)
		s.scalingVar = s.factory.Read(array, s.factory.Constant(0, expr.Int8))
		s.extraConstraints = append(s.extraConstraints,
			s.factory.Ne(s.scalingVar, s.factory.Constant(0, expr.Int8)))
	}
	return s.scalingVar
}

// ulp is the unit rounding term the floating opcodes add.
func (s *State) ulp(result *expr.Term) *expr.Term {
	return s.factory.Constant(1, result.Width())
}

// castError adjusts an error term across a width cast. Extensions use
// the same cast; a truncation only narrows the error when it would
// otherwise be wider than the result.
func (s *State) castError(op Opcode, e *expr.Term, w expr.Width) *expr.Term {
	switch op {
	case OpZExt:
		if e.Width() < w {
			return s.factory.ZExt(e, w)
		}
	case OpSExt:
		if e.Width() < w {
			return s.factory.SExt(e, w)
		}
	case OpTrunc:
		if e.Width() > w {
			return s.factory.Trunc(e, w)
		}
	}
	return e
}

func (s *State) record(result, e *expr.Term) *expr.Term {
	s.valueError[result] = e
	s.currentError = e
	return e
}
