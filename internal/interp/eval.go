package interp

import (
	"fmt"

	"errbound/grammar"
	"errbound/internal/diag"
	"errbound/internal/errstate"
	"errbound/internal/expr"
)

// eval lowers a trace expression into a term, calling the propagator
// for every operation it performs.
func (in *Interp) eval(e *grammar.Expr, f *frame) (*expr.Term, error) {
	return in.evalCmp(e.Cmp, f)
}

func (in *Interp) evalCmp(c *grammar.CmpExpr, f *frame) (*expr.Term, error) {
	left, err := in.evalAdd(c.Left, f)
	if err != nil {
		return nil, err
	}
	if c.Op == "" {
		return left, nil
	}
	right, err := in.evalAdd(c.Right, f)
	if err != nil {
		return nil, err
	}
	left, right = in.coerce(left, right)
	var result *expr.Term
	switch c.Op {
	case "==":
		result = in.factory.Eq(left, right)
	case "!=":
		result = in.factory.Ne(left, right)
	case "<":
		result = in.factory.Ult(left, right)
	case "<=":
		result = in.factory.Ule(left, right)
	case ">":
		result = in.factory.Ugt(left, right)
	case ">=":
		result = in.factory.Uge(left, right)
	}
	// Comparisons produce no error; the propagator is still consulted
	// so every operation goes through the same dispatch.
	if _, err := f.state.PropagateError(errstate.OpICmp, result, []*expr.Term{left, right}); err != nil {
		return nil, err
	}
	return result, nil
}

func (in *Interp) evalAdd(a *grammar.AddExpr, f *frame) (*expr.Term, error) {
	acc, err := in.evalMul(a.Left, f)
	if err != nil {
		return nil, err
	}
	for _, tail := range a.Rest {
		rhs, err := in.evalMul(tail.Term, f)
		if err != nil {
			return nil, err
		}
		l, r := in.coerce(acc, rhs)
		var result *expr.Term
		var op errstate.Opcode
		switch tail.Op {
		case "+":
			result, op = in.factory.Add(l, r), errstate.OpAdd
		case "-":
			result, op = in.factory.Sub(l, r), errstate.OpSub
		}
		if _, err := f.state.PropagateError(op, result, []*expr.Term{l, r}); err != nil {
			return nil, err
		}
		acc = result
	}
	return acc, nil
}

func (in *Interp) evalMul(m *grammar.MulExpr, f *frame) (*expr.Term, error) {
	acc, err := in.evalPrimary(m.Left, f)
	if err != nil {
		return nil, err
	}
	for _, tail := range m.Rest {
		rhs, err := in.evalPrimary(tail.Term, f)
		if err != nil {
			return nil, err
		}
		l, r := in.coerce(acc, rhs)
		var result *expr.Term
		var op errstate.Opcode
		switch tail.Op {
		case "*":
			result, op = in.factory.Mul(l, r), errstate.OpMul
		case "/":
			result, op = in.factory.UDiv(l, r), errstate.OpUDiv
		case "%":
			result, op = in.factory.URem(l, r), errstate.OpUDiv
		}
		if _, err := f.state.PropagateError(op, result, []*expr.Term{l, r}); err != nil {
			return nil, err
		}
		acc = result
	}
	return acc, nil
}

func (in *Interp) evalPrimary(p *grammar.Primary, f *frame) (*expr.Term, error) {
	switch {
	case p.Neg != nil:
		t, err := in.evalPrimary(p.Neg, f)
		if err != nil {
			return nil, err
		}
		// Unary minus is subtraction from zero, rides the sub algebra.
		zero := in.factory.Constant(0, t.Width())
		result := in.factory.Sub(zero, t)
		if _, err := f.state.PropagateError(errstate.OpSub, result, []*expr.Term{zero, t}); err != nil {
			return nil, err
		}
		return result, nil

	case p.Input != nil:
		return in.freshInput(uint(p.Input.Width.Value)), nil

	case p.Load != nil:
		addr, err := in.evalAddress(p.Load.Addr, f)
		if err != nil {
			return nil, err
		}
		width := expr.Width(p.Load.Width.Value)
		value, errTerm, miss := f.state.Load(addr, width)
		if miss {
			in.report.Note(diag.UninitializedLoad(
				fmt.Sprintf("load from %s found no stored cell", addr)))
		} else {
			f.state.BindError(value, errTerm)
			// A load that services a memcpy destination consumes the
			// single-slot witness.
			f.state.RetrieveMemcpyStoreInfo()
		}
		return value, nil

	case p.Select != nil:
		cond, err := in.eval(p.Select.Cond, f)
		if err != nil {
			return nil, err
		}
		thenTerm, err := in.eval(p.Select.Then, f)
		if err != nil {
			return nil, err
		}
		elseTerm, err := in.eval(p.Select.Else, f)
		if err != nil {
			return nil, err
		}
		thenTerm, elseTerm = in.coerce(thenTerm, elseTerm)
		result := in.factory.Select(cond, thenTerm, elseTerm)
		if _, err := f.state.PropagateError(errstate.OpSelect, result,
			[]*expr.Term{cond, thenTerm, elseTerm}); err != nil {
			return nil, err
		}
		return result, nil

	case p.Call != nil:
		return in.evalCall(p.Call, f)

	case p.Int != nil:
		return in.factory.Constant(p.Int.Value, expr.Int32), nil

	case p.Var != nil:
		v, ok := f.env[*p.Var]
		if !ok {
			return nil, fmt.Errorf("%s: undefined variable %q", in.file, *p.Var)
		}
		return v, nil

	case p.Sub != nil:
		return in.eval(p.Sub, f)
	}
	return nil, fmt.Errorf("%s: empty expression", in.file)
}

var callOpcodes = map[string]errstate.Opcode{
	"sdiv": errstate.OpSDiv,
	"fadd": errstate.OpFAdd,
	"fsub": errstate.OpFSub,
	"fmul": errstate.OpFMul,
	"fdiv": errstate.OpFDiv,
}

func (in *Interp) evalCall(call *grammar.BuiltinCall, f *frame) (*expr.Term, error) {
	if len(call.Args) != 2 {
		return nil, fmt.Errorf("%s: %s takes two arguments", in.file, call.Name)
	}
	left, err := in.eval(call.Args[0], f)
	if err != nil {
		return nil, err
	}
	right, err := in.eval(call.Args[1], f)
	if err != nil {
		return nil, err
	}
	left, right = in.coerce(left, right)
	var result *expr.Term
	switch call.Name {
	case "sdiv", "fdiv":
		if call.Name == "sdiv" {
			result = in.factory.SDiv(left, right)
		} else {
			result = in.factory.UDiv(left, right)
		}
	case "fadd":
		result = in.factory.Add(left, right)
	case "fsub":
		result = in.factory.Sub(left, right)
	case "fmul":
		result = in.factory.Mul(left, right)
	}
	if _, err := f.state.PropagateError(callOpcodes[call.Name], result,
		[]*expr.Term{left, right}); err != nil {
		return nil, err
	}
	return result, nil
}

// freshInput mints a new symbolic input array and its value term: the
// big-endian concat of its byte reads, so the error lookup sees a
// single source array.
func (in *Interp) freshInput(width uint) *expr.Term {
	name := fmt.Sprintf("input_%d", in.inputCount)
	in.inputCount++
	bytes := width / 8
	if bytes == 0 {
		bytes = 1
	}
	array := in.factory.Array(name, expr.Int8, bytes)
	parts := make([]*expr.Term, bytes)
	for i := uint(0); i < bytes; i++ {
		parts[i] = in.factory.Read(array, in.factory.Constant(uint64(bytes-1-i), expr.Int8))
	}
	return in.factory.ConcatAll(parts...)
}

// evalAddress evaluates an address operand: a variable name denotes
// the variable's own address, anything else evaluates to a 64-bit
// address term.
func (in *Interp) evalAddress(e *grammar.Expr, f *frame) (*expr.Term, error) {
	if name, ok := plainVar(e); ok {
		if addr, exists := f.addrs[name]; exists {
			return addr, nil
		}
	}
	t, err := in.eval(e, f)
	if err != nil {
		return nil, err
	}
	if t.Width() < expr.Int64 {
		t = in.factory.ZExt(t, expr.Int64)
	}
	return t, nil
}

// plainVar matches an expression that is exactly one identifier.
func plainVar(e *grammar.Expr) (string, bool) {
	if e == nil || e.Cmp == nil || e.Cmp.Op != "" {
		return "", false
	}
	add := e.Cmp.Left
	if len(add.Rest) != 0 || len(add.Left.Rest) != 0 {
		return "", false
	}
	p := add.Left.Left
	if p.Var != nil {
		return *p.Var, true
	}
	return "", false
}

// coerce resizes a constant operand to its companion's width; of two
// symbolic operands of different widths, the narrower is zero-extended.
func (in *Interp) coerce(l, r *expr.Term) (*expr.Term, *expr.Term) {
	if l.Width() == r.Width() {
		return l, r
	}
	if l.IsConstant() {
		return in.factory.Constant(l.Value(), r.Width()), r
	}
	if r.IsConstant() {
		return l, in.factory.Constant(r.Value(), l.Width())
	}
	if l.Width() < r.Width() {
		return in.factory.ZExt(l, r.Width()), r
	}
	return l, in.factory.ZExt(r, l.Width())
}
