package errstate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errbound/internal/diag"
	"errbound/internal/expr"
)

func newTestState(opts Options) (*expr.Factory, *State) {
	f := expr.NewFactory()
	return f, NewState(f, NewRegistry(f), opts)
}

// symbolicInput mints a 32-bit input value as a concat of byte reads
// of one source array, the shape the executor produces.
func symbolicInput(f *expr.Factory, name string) *expr.Term {
	a := f.Array(name, expr.Int8, 4)
	parts := make([]*expr.Term, 4)
	for i := 0; i < 4; i++ {
		parts[i] = f.Read(a, f.Constant(uint64(3-i), expr.Int8))
	}
	return f.ConcatAll(parts...)
}

func TestErrorOfConstantIsZero(t *testing.T) {
	f, s := newTestState(Options{})
	for _, w := range []expr.Width{expr.Int8, expr.Int16, expr.Int32, expr.Int64} {
		e, err := s.ErrorOf(f.Constant(42, w))
		require.NoError(t, err)
		assert.True(t, e.IsZero())
		assert.Equal(t, w, e.Width(), "error width must match the value width")
	}
}

func TestErrorOfInputMintsErrorArrayRead(t *testing.T) {
	f, s := newTestState(Options{})
	v := symbolicInput(f, "input_0")

	e, err := s.ErrorOf(v)
	require.NoError(t, err)
	require.Equal(t, expr.Read, e.Kind())
	assert.Equal(t, expr.Int8, e.Width())
	assert.Equal(t, "_fractional_error_input_0", e.Array().Name)

	// Cached: a second lookup returns the identical term.
	e2, err := s.ErrorOf(v)
	require.NoError(t, err)
	assert.Same(t, e, e2)
}

func TestErrorOfSingleReadMintsErrorArrayRead(t *testing.T) {
	f, s := newTestState(Options{})
	a := f.Array("input_0", expr.Int8, 1)
	v := f.Read(a, f.Constant(0, expr.Int8))

	e, err := s.ErrorOf(v)
	require.NoError(t, err)
	assert.Equal(t, "_fractional_error_input_0", e.Array().Name)
}

func TestErrorOfUnseenCompositeIsMalformed(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")
	composite := f.Add(x, y)

	_, err := s.ErrorOf(composite)
	require.Error(t, err)
	assert.True(t, diag.IsCode(err, diag.CodeMalformedExpression))
}

func TestErrorOfMixedConcatIsMalformed(t *testing.T) {
	f, s := newTestState(Options{})
	a := f.Array("input_0", expr.Int8, 1)
	b := f.Array("input_1", expr.Int8, 1)
	mixed := f.Concat(f.Read(a, f.Constant(0, expr.Int8)), f.Read(b, f.Constant(0, expr.Int8)))

	_, err := s.ErrorOf(mixed)
	assert.True(t, diag.IsCode(err, diag.CodeMalformedExpression))
}

func TestPropagateAddShape(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")
	result := f.Add(x, y)

	e, err := s.PropagateError(OpAdd, result, []*expr.Term{x, y})
	require.NoError(t, err)

	// (el*x + er*y) / result, all at result width.
	require.Equal(t, expr.UDiv, e.Kind())
	assert.Equal(t, result.Width(), e.Width())
	num := e.Child(0)
	require.Equal(t, expr.Add, num.Kind())
	assert.Equal(t, expr.Mul, num.Child(0).Kind())
	assert.Equal(t, expr.Mul, num.Child(1).Kind())
	assert.Same(t, result, e.Child(1))

	assert.Same(t, e, s.CurrentError())
}

func TestPropagateSubSharesAddNumerator(t *testing.T) {
	// Sub deliberately uses the same numerator as Add: error
	// magnitudes add under subtraction too.
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")

	sum := f.Add(x, y)
	diff := f.Sub(x, y)
	eAdd, err := s.PropagateError(OpAdd, sum, []*expr.Term{x, y})
	require.NoError(t, err)
	eSub, err := s.PropagateError(OpSub, diff, []*expr.Term{x, y})
	require.NoError(t, err)

	assert.Same(t, eAdd.Child(0), eSub.Child(0), "identical numerators")
	assert.Same(t, diff, eSub.Child(1))
}

func TestPropagateMulAndDivAddRelativeErrors(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")

	for _, op := range []Opcode{OpMul, OpUDiv, OpSDiv} {
		var result *expr.Term
		switch op {
		case OpMul:
			result = f.Mul(x, y)
		case OpUDiv:
			result = f.UDiv(x, y)
		case OpSDiv:
			result = f.SDiv(x, y)
		}
		e, err := s.PropagateError(op, result, []*expr.Term{x, y})
		require.NoError(t, err, "%s", op)
		require.Equal(t, expr.Add, e.Kind(), "%s", op)
		assert.Equal(t, expr.ZExt, e.Child(0).Kind())
		assert.Equal(t, expr.ZExt, e.Child(1).Kind())
		assert.Equal(t, result.Width(), e.Width())
	}
}

func TestPropagateFloatOpsCarryUnitRounding(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")

	product := f.Mul(x, y)
	e, err := s.PropagateError(OpFMul, product, []*expr.Term{x, y})
	require.NoError(t, err)
	require.Equal(t, expr.Add, e.Kind())
	ulp := e.Child(1)
	assert.True(t, ulp.IsConstant())
	assert.Equal(t, uint64(1), ulp.Value())

	sum := f.Add(x, y)
	e, err = s.PropagateError(OpFAdd, sum, []*expr.Term{x, y})
	require.NoError(t, err)
	require.Equal(t, expr.Add, e.Kind())
	assert.Equal(t, expr.UDiv, e.Child(0).Kind())
	assert.Equal(t, uint64(1), e.Child(1).Value())
}

func TestPropagateDivisionByZeroResultGuard(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	zero := f.Constant(0, expr.Int32)
	// x - x folds nothing here, but x + (-x) style zero results are
	// represented by the literal zero the executor hands in.
	e, err := s.PropagateError(OpAdd, zero, []*expr.Term{x, f.Constant(0, expr.Int32)})
	require.NoError(t, err)
	assert.NotEqual(t, expr.UDiv, e.Kind(), "numerator must stay undivided")
	assert.True(t, s.DivisionByZeroModeled(zero))
}

func TestPropagateOptimizeDividesRewritesPowerOfTwo(t *testing.T) {
	f, s := newTestState(Options{OptimizeDivides: true})
	x := symbolicInput(f, "input_0")
	result := f.Constant(64, expr.Int32)

	e, err := s.PropagateError(OpAdd, result, []*expr.Term{x, f.Constant(32, expr.Int32)})
	require.NoError(t, err)
	assert.Equal(t, expr.LShr, e.Kind(), "constant power-of-two divide becomes a shift")

	// A non power of two keeps the division.
	f2, s2 := newTestState(Options{OptimizeDivides: true})
	x2 := symbolicInput(f2, "input_0")
	odd := f2.Constant(100, expr.Int32)
	e2, err := s2.PropagateError(OpAdd, odd, []*expr.Term{x2, f2.Constant(1, expr.Int32)})
	require.NoError(t, err)
	assert.Equal(t, expr.UDiv, e2.Kind())
}

func TestPropagateScalingEmitsNonzeroConstraint(t *testing.T) {
	f, s := newTestState(Options{Scaling: true})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")
	result := f.Add(x, y)

	_, err := s.PropagateError(OpAdd, result, []*expr.Term{x, y})
	require.NoError(t, err)

	constraints := s.ExtraConstraints()
	require.Len(t, constraints, 1)
	assert.Equal(t, expr.Ne, constraints[0].Kind())

	// A second division does not duplicate the constraint.
	result2 := f.Mul(result, x)
	_, err = s.PropagateError(OpAdd, result2, []*expr.Term{result, x})
	require.NoError(t, err)
	assert.Len(t, s.ExtraConstraints(), 1)
}

func TestPropagateCastAdjustsError(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	wide := f.ZExt(x, expr.Int64)

	e, err := s.PropagateError(OpZExt, wide, []*expr.Term{x})
	require.NoError(t, err)
	// The 8-bit error read is adjusted by the same cast.
	require.Equal(t, expr.ZExt, e.Kind())
	assert.Equal(t, expr.Int64, e.Width())
	assert.Equal(t, expr.Read, e.Child(0).Kind())

	cached, err := s.ErrorOf(wide)
	require.NoError(t, err)
	assert.Same(t, e, cached)
}

func TestPropagateSelectBuildsIte(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")
	cond := f.Ult(x, y)
	result := f.Select(cond, x, y)

	e, err := s.PropagateError(OpSelect, result, []*expr.Term{cond, x, y})
	require.NoError(t, err)
	require.Equal(t, expr.Select, e.Kind())
	assert.Same(t, cond, e.Child(0))
}

func TestPropagateComparisonProducesNoError(t *testing.T) {
	f, s := newTestState(Options{})
	x := symbolicInput(f, "input_0")
	y := symbolicInput(f, "input_1")
	cmp := f.Ult(x, y)

	e, err := s.PropagateError(OpICmp, cmp, []*expr.Term{x, y})
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Nil(t, s.CurrentError())
}

// TestRelativeErrorAlgebraSoundness checks the algebra numerically:
// for random inputs perturbed by random relative errors within 2^-8,
// the first-order error term dominates the actual deviation up to the
// second-order cross term and, for mul, two ulps of float rounding in
// the perturbed product.
func TestRelativeErrorAlgebraSoundness(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const maxRel = 1.0 / 256

	for i := 0; i < 2000; i++ {
		x := float64(rng.Intn(1<<20) + 1)
		y := float64(rng.Intn(1<<20) + 1)
		ex := rng.Float64() * maxRel
		ey := rng.Float64() * maxRel
		px := x * (1 + ex)
		py := y * (1 + ey)

		// add: relative error (ex*x + ey*y) / (x+y)
		rel := (ex*x + ey*y) / (x + y)
		actual := px + py
		assert.LessOrEqual(t, actual-(x+y), rel*(x+y)*(1+1e-9),
			"add deviation exceeds modeled error")

		// sub: same numerator, magnitudes add
		rel = (ex*x + ey*y)
		assert.LessOrEqual(t, (px-py)-(x-y), rel*(1+1e-9),
			"sub deviation exceeds modeled error")

		// mul: relative errors add, up to the second-order term
		rel = ex + ey
		tolerance := ex * ey * x * y
		ulp := math.Nextafter(px*py, math.Inf(1)) - px*py
		assert.LessOrEqual(t, px*py-x*y, rel*x*y+tolerance*(1+1e-9)+2*ulp,
			"mul deviation exceeds modeled error")

		// udiv: relative errors add for the quotient as well
		rel = ex + ey
		assert.LessOrEqual(t, px/py-x/y, rel*(x/y)+maxRel*maxRel*(x/y),
			"udiv deviation exceeds modeled error")
	}
}
