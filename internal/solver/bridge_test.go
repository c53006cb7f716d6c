package solver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errbound/internal/config"
	"errbound/internal/diag"
	"errbound/internal/expr"
)

// scriptedRunner replays canned solver responses and records every
// script it was handed.
type scriptedRunner struct {
	responses []string
	scripts   []string
}

func (r *scriptedRunner) Run(ctx context.Context, script string) (string, error) {
	r.scripts = append(r.scripts, script)
	if len(r.responses) == 0 {
		return "unsat", nil
	}
	response := r.responses[0]
	r.responses = r.responses[1:]
	return response, nil
}

func newTestBridge(cfg config.Config, f *expr.Factory, responses ...string) (*Bridge, *scriptedRunner) {
	b := NewBridge(cfg, f)
	runner := &scriptedRunner{responses: responses}
	b.SetRunner(runner)
	return b, runner
}

func realConfig() config.Config {
	cfg := config.Default()
	cfg.Precision = true
	cfg.ComputeErrorBound = config.ViaReal
	return cfg
}

func TestCheckFeasibleSatAndUnsat(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	cond := f.Ult(x, f.Constant(10, expr.Int32))

	b, _ := newTestBridge(realConfig(), f, "sat")
	status, feasible, err := b.CheckFeasible(nil, cond)
	require.NoError(t, err)
	assert.Equal(t, StatusSolvable, status)
	assert.True(t, feasible)

	b, _ = newTestBridge(realConfig(), f, "unsat")
	status, feasible, err = b.CheckFeasible(nil, cond)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsolvable, status)
	assert.False(t, feasible)
}

func TestCheckValidityNegatesQuery(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	query := f.Ult(x, f.Constant(10, expr.Int32))

	b, runner := newTestBridge(realConfig(), f, "unsat")
	_, valid, err := b.CheckValidity(nil, query)
	require.NoError(t, err)
	assert.True(t, valid, "unsat negation means the query is valid")
	assert.Contains(t, runner.scripts[0], "(assert (not (< x 10.0)))")
}

func TestUnknownTimeoutReason(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	cond := f.Ult(x, f.Constant(10, expr.Int32))

	for _, reason := range []string{"timeout", "canceled"} {
		b, _ := newTestBridge(realConfig(), f,
			"unknown\n(:reason-unknown \""+reason+"\")")
		status, _, err := b.CheckFeasible(nil, cond)
		require.NoError(t, err)
		assert.Equal(t, StatusTimeout, status, "reason %q", reason)
	}
}

func TestUnknownUnknownReasonIsFailure(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	cond := f.Ult(x, f.Constant(10, expr.Int32))

	b, _ := newTestBridge(realConfig(), f, "unknown\n(:reason-unknown \"unknown\")")
	status, _, err := b.CheckFeasible(nil, cond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, status)
}

func TestUnknownUnexpectedReasonAborts(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	cond := f.Ult(x, f.Constant(10, expr.Int32))

	b, _ := newTestBridge(realConfig(), f, "unknown\n(:reason-unknown \"interrupted from keyboard\")")
	_, _, err := b.CheckFeasible(nil, cond)
	require.Error(t, err)
	assert.True(t, diag.IsCode(err, diag.CodeSolverAbort))
}

func TestTimeoutConversion(t *testing.T) {
	f := expr.NewFactory()
	b, runner := newTestBridge(realConfig(), f, "sat")

	// Seconds convert to milliseconds rounding half up.
	b.SetTimeout(0.0015)
	x := symbolicInput(f, "x")
	_, _, err := b.CheckFeasible(nil, f.Ult(x, f.Constant(1, expr.Int32)))
	require.NoError(t, err)
	assert.Contains(t, runner.scripts[0], "(set-option :timeout 2)")

	// Zero means no limit: no timeout option at all.
	b2, runner2 := newTestBridge(realConfig(), f, "sat")
	b2.SetTimeout(0)
	_, _, err = b2.CheckFeasible(nil, f.Ult(x, f.Constant(1, expr.Int32)))
	require.NoError(t, err)
	assert.NotContains(t, runner2.scripts[0], ":timeout")
}

func TestOptimizeParetoPriority(t *testing.T) {
	f := expr.NewFactory()
	req := testBoundRequest(f, 1e-6)

	b, runner := newTestBridge(realConfig(), f, "sat\n(objectives (_fractional_error_input_0 1))")
	_, err := b.ComputeOptimalValues(req)
	require.NoError(t, err)
	assert.Contains(t, runner.scripts[0], "(set-option :opt.priority pareto)")

	cfg := realConfig()
	cfg.UniformInputError = true
	b2, runner2 := newTestBridge(cfg, f, "sat\n(objectives (_fractional_error_input_0 1))")
	_, err = b2.ComputeOptimalValues(req)
	require.NoError(t, err)
	assert.NotContains(t, runner2.scripts[0], "pareto")
}

func testBoundRequest(f *expr.Factory, bound float64) BoundRequest {
	errArray := f.Array("_fractional_error_input_0", expr.Int8, 1)
	errTerm := f.Read(errArray, f.Constant(0, expr.Int8))
	return NewBoundRequest(f, "c", "test.eb", 4, errTerm, bound, nil)
}

func TestComputeOptimalValuesDecodesPerInput(t *testing.T) {
	f := expr.NewFactory()
	errA := f.Array("_fractional_error_input_0", expr.Int8, 1)
	errB := f.Array("_fractional_error_input_1", expr.Int8, 1)
	errTerm := f.Add(
		f.Read(errA, f.Constant(0, expr.Int8)),
		f.Read(errB, f.Constant(0, expr.Int8)))
	req := NewBoundRequest(f, "c", "test.eb", 9, errTerm, 1e-6, nil)
	require.Len(t, req.Objectives, 2)

	b, runner := newTestBridge(realConfig(), f, `sat
(objectives
 (_fractional_error_input_0 (/ 1 8))
 (_fractional_error_input_1 oo)
)`)
	result, err := b.ComputeOptimalValues(req)
	require.NoError(t, err)
	assert.Equal(t, StatusSolvable, result.Status)
	assert.True(t, result.HasSolution)
	require.Len(t, result.Bounds, 2)

	assert.Equal(t, Finite, result.Bounds[0].Kind)
	assert.InDelta(t, 0.125, result.Bounds[0].Value, 1e-12)
	assert.Equal(t, "_fractional_error_input_0", result.Bounds[0].Name)

	assert.Equal(t, Infinity, result.Bounds[1].Kind)
	assert.Zero(t, result.Bounds[1].Value)

	// One maximize per objective, in order.
	script := runner.scripts[0]
	first := strings.Index(script, "(maximize _fractional_error_input_0)")
	second := strings.Index(script, "(maximize _fractional_error_input_1)")
	assert.Greater(t, first, -1)
	assert.Greater(t, second, first)
}

func TestComputeOptimalValuesUnsolvable(t *testing.T) {
	f := expr.NewFactory()
	req := testBoundRequest(f, 1e-6)

	b, _ := newTestBridge(realConfig(), f, "unsat")
	result, err := b.ComputeOptimalValues(req)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsolvable, result.Status)
	assert.False(t, result.HasSolution)
	assert.Empty(t, result.Bounds)
}

func TestComputeOptimalValuesDisabledDomain(t *testing.T) {
	f := expr.NewFactory()
	cfg := config.Default()
	b, _ := newTestBridge(cfg, f)
	_, err := b.ComputeOptimalValues(testBoundRequest(f, 1))
	require.Error(t, err)
}

func TestIntegerDomainRendersIntSorts(t *testing.T) {
	f := expr.NewFactory()
	cfg := realConfig()
	cfg.ComputeErrorBound = config.ViaInteger
	req := testBoundRequest(f, 2)

	b, runner := newTestBridge(cfg, f, "sat\n(objectives (_fractional_error_input_0 1))")
	_, err := b.ComputeOptimalValues(req)
	require.NoError(t, err)
	assert.Contains(t, runner.scripts[0], "(declare-const _fractional_error_input_0 Int)")
}

func TestCachesClearedBetweenQueries(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	cond := f.Ult(x, f.Constant(10, expr.Int32))

	b, runner := newTestBridge(realConfig(), f, "sat", "sat")
	_, _, err := b.CheckFeasible(nil, cond)
	require.NoError(t, err)
	_, _, err = b.CheckFeasible(nil, cond)
	require.NoError(t, err)

	// The second script re-declares everything: nothing leaked from
	// the first query's cache.
	assert.Contains(t, runner.scripts[1], "(declare-const x Real)")
}

func TestComputeSolutionsBlocksModels(t *testing.T) {
	f := expr.NewFactory()
	x := symbolicInput(f, "x")
	constraint := f.Ult(x, f.Constant(10, expr.Int32))

	b, runner := newTestBridge(realConfig(), f,
		"sat\n((x 1))",
		"sat\n((x 2))")
	solutions, err := b.ComputeSolutions([]*expr.Term{constraint}, []string{"x"}, 2)
	require.NoError(t, err)
	require.Len(t, solutions, 2)
	assert.Equal(t, 1.0, solutions[0]["x"])
	assert.Equal(t, 2.0, solutions[1]["x"])

	// The second query blocks the first model.
	assert.Contains(t, runner.scripts[1], "(assert (not (and (= x 1))))")
}

func TestBoundRequestPredicates(t *testing.T) {
	f := expr.NewFactory()
	req := testBoundRequest(f, 0.5)
	assert.Equal(t, expr.Ugt, req.Violation.Kind())
	assert.Equal(t, expr.Ule, req.Satisfaction.Kind())
	require.Len(t, req.Objectives, 1)
	assert.Equal(t, "_fractional_error_input_0", req.Objectives[0].Name)
}
