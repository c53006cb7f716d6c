package solver

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"errbound/internal/config"
	"errbound/internal/diag"
	"errbound/internal/expr"
)

var log = commonlog.GetLogger("errbound.solver")

// noLimit is the sentinel a zero timeout converts to: no limit at all.
const noLimit = ^uint32(0)

// Runner executes one SMT-LIB script and returns the solver's raw
// output. The production runner shells out to the solver binary; tests
// substitute a scripted fake.
type Runner interface {
	Run(ctx context.Context, script string) (string, error)
}

// processRunner drives the solver binary over stdin, the way the
// original forks its solver process.
type processRunner struct {
	path string
}

func (r processRunner) Run(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, r.path, "-in", "-smt2")
	cmd.Stdin = strings.NewReader(script)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			// The solver's own timeout option normally answers first;
			// a hard kill still decodes as a timeout.
			return "unknown\n(:reason-unknown \"canceled\")", nil
		}
		if len(out) == 0 {
			return "", fmt.Errorf("solver process failed: %w", err)
		}
	}
	return string(out), nil
}

// Bridge issues path-condition checks and error-bound optimizations.
// It owns two translators so the two query kinds never share an AST
// cache: renderings carry domain annotations (integer vs real) even
// when the terms are structurally identical. Both caches are cleared
// after every top-level query.
type Bridge struct {
	cfg           config.Config
	factory       *expr.Factory
	pathCondition *Translator
	errorBound    *Translator
	runner        Runner
	timeoutMillis uint32
}

// OptimizeResult is the decoded outcome of one optimization query.
type OptimizeResult struct {
	Status      Status
	HasSolution bool
	Bounds      []InputBound
}

// NewBridge creates a bridge for the configured domain. The error
// bound translator follows Config.ComputeErrorBound; the path
// condition translator always works over reals.
func NewBridge(cfg config.Config, factory *expr.Factory) *Bridge {
	b := &Bridge{
		cfg:           cfg,
		factory:       factory,
		pathCondition: NewTranslator(true),
		errorBound:    NewTranslator(cfg.ComputeErrorBound != config.ViaInteger),
		runner:        processRunner{path: cfg.SolverPath},
	}
	b.SetTimeout(cfg.MaxSolverTime)
	return b
}

// SetRunner substitutes the solver process, for tests.
func (b *Bridge) SetRunner(r Runner) { b.runner = r }

// SetTimeout converts a timeout in seconds to milliseconds, rounding
// half up. Zero means no limit.
func (b *Bridge) SetTimeout(seconds float64) {
	millis := uint32(seconds*1000 + 0.5)
	if millis == 0 {
		millis = noLimit
	}
	b.timeoutMillis = millis
}

// run executes a script with the configured timeout and parses the
// response into a status plus the remaining response forms.
func (b *Bridge) run(script string) (Status, []*sexpr, error) {
	ctx := context.Background()
	if b.timeoutMillis != noLimit {
		// Leave the solver's own timeout room to answer before the
		// process is killed.
		deadline := time.Duration(b.timeoutMillis)*time.Millisecond + 5*time.Second
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	if b.cfg.DebugPrecision {
		log.Infof("solving:\n%s", script)
	}
	out, err := b.runner.Run(ctx, script)
	if err != nil {
		return StatusFailure, nil, diag.SolverFailure(err.Error())
	}
	return b.decodeResponse(out)
}

// decodeResponse maps the solver verdict line onto a run status.
// Unknown results carry a reason: timeout and canceled are reported as
// timeouts, a literal "unknown" or a missing reason as failure, anything
// else aborts.
func (b *Bridge) decodeResponse(out string) (Status, []*sexpr, error) {
	verdict, rest := splitVerdict(out)
	switch verdict {
	case "sat":
		forms, err := parseSexprs(rest)
		if err != nil {
			return StatusFailure, nil, diag.SolverFailure(err.Error())
		}
		return StatusSolvable, forms, nil
	case "unsat":
		return StatusUnsolvable, nil, nil
	case "unknown":
		forms, _ := parseSexprs(rest)
		reason := findReasonUnknown(forms)
		switch reason {
		case "timeout", "canceled":
			return StatusTimeout, forms, nil
		case "unknown", "":
			return StatusFailure, forms, nil
		}
		return StatusFailure, forms, diag.SolverAbort(
			fmt.Sprintf("unexpected solver failure, reason is %q", reason))
	}
	return StatusFailure, nil, diag.SolverFailure(
		fmt.Sprintf("unrecognized solver verdict %q", verdict))
}

// splitVerdict peels the first non-error line off the response.
func splitVerdict(out string) (verdict, rest string) {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "(error") {
			continue
		}
		return line, strings.Join(lines[i+1:], "\n")
	}
	return "", ""
}

// CheckFeasible reports whether constraints ∧ cond is satisfiable,
// using the path-condition translator.
func (b *Bridge) CheckFeasible(constraints []*expr.Term, cond *expr.Term) (Status, bool, error) {
	defer b.pathCondition.ClearCache()

	var asserts []string
	for _, c := range constraints {
		asserts = append(asserts, fmt.Sprintf("(assert %s)", b.pathCondition.Construct(c)))
	}
	if cond != nil {
		asserts = append(asserts, fmt.Sprintf("(assert %s)", b.pathCondition.Construct(cond)))
	}

	var sb strings.Builder
	b.writeOptions(&sb, false)
	for _, line := range b.pathCondition.Declarations() {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range asserts {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString("(check-sat)\n(get-info :reason-unknown)\n")

	status, _, err := b.run(sb.String())
	if err != nil {
		return status, false, err
	}
	return status, status == StatusSolvable, nil
}

// CheckValidity reports whether constraints entail query: the bridge
// asserts constraints ∧ ¬query and reads validity off unsatisfiability,
// the usual satisfiability phrasing of a validity question.
func (b *Bridge) CheckValidity(constraints []*expr.Term, query *expr.Term) (Status, bool, error) {
	status, feasible, err := b.CheckFeasible(constraints, b.factory.Not(query))
	if err != nil {
		return status, false, err
	}
	return status, !feasible, nil
}

// ComputeOptimalValues runs the optimization query for a bound
// request: constraints plus the violation predicate, one maximize
// objective per input-error variable, pareto priority unless input
// errors are uniform.
func (b *Bridge) ComputeOptimalValues(req BoundRequest) (OptimizeResult, error) {
	if b.cfg.ComputeErrorBound == config.NoComputation {
		return OptimizeResult{Status: StatusFailure}, diag.SolverFailure("error bound computation is disabled")
	}
	defer b.errorBound.ClearCache()

	var asserts []string
	for _, c := range req.Constraints {
		asserts = append(asserts, fmt.Sprintf("(assert %s)", b.errorBound.Construct(c)))
	}
	asserts = append(asserts, fmt.Sprintf("(assert %s)", b.errorBound.Construct(req.Violation)))

	var objectives []string
	for _, array := range req.Objectives {
		name := b.errorBound.Declare(array.Name)
		objectives = append(objectives, fmt.Sprintf("(maximize %s)", name))
	}

	var sb strings.Builder
	b.writeOptions(&sb, true)
	for _, line := range b.errorBound.Declarations() {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range asserts {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range objectives {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString("(check-sat)\n(get-objectives)\n(get-info :reason-unknown)\n")

	status, forms, err := b.run(sb.String())
	result := OptimizeResult{Status: status, HasSolution: status == StatusSolvable}
	if err != nil || status != StatusSolvable {
		return result, err
	}

	values := findObjectives(forms)
	for i, array := range req.Objectives {
		bound := InputBound{Name: array.Name}
		if i < len(values) {
			decoded, decodeErr := decodeUpperBound(values[i])
			if decodeErr != nil {
				return result, diag.SolverFailure(decodeErr.Error())
			}
			if b.cfg.DebugPrecision {
				log.Infof("(infinity_coefficient, upper_bound, epsilon_coefficient) = (%d, %g, %d)",
					decoded.InfCoef, decoded.Value, decoded.EpsCoef)
			}
			switch {
			case decoded.InfCoef != 0:
				bound.Kind = Infinity
			case decoded.EpsCoef != 0:
				bound.Kind = Epsilon
			default:
				bound.Kind = Finite
				bound.Value = decoded.Value
				bound.Num = decoded.Num
				bound.Den = decoded.Den
			}
		}
		result.Bounds = append(result.Bounds, bound)
	}
	return result, nil
}

// ComputeSolutions extracts up to n distinct models for the named
// variables, blocking each found model before asking again. Used by
// multi-ktest reporting.
func (b *Bridge) ComputeSolutions(constraints []*expr.Term, names []string, n int) ([]map[string]float64, error) {
	if n <= 0 || len(names) == 0 {
		return nil, nil
	}
	defer b.pathCondition.ClearCache()

	var base []string
	for _, c := range constraints {
		base = append(base, fmt.Sprintf("(assert %s)", b.pathCondition.Construct(c)))
	}
	for _, name := range names {
		b.pathCondition.Declare(name)
	}
	decls := b.pathCondition.Declarations()

	var blocked []string
	var solutions []map[string]float64
	for len(solutions) < n {
		var sb strings.Builder
		b.writeOptions(&sb, false)
		for _, line := range decls {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		for _, line := range base {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		for _, line := range blocked {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "(check-sat)\n(get-value (%s))\n", strings.Join(names, " "))

		status, forms, err := b.run(sb.String())
		if err != nil || status != StatusSolvable {
			return solutions, err
		}
		pairs := findValuePairs(forms)
		if len(pairs) == 0 {
			return solutions, nil
		}
		model := make(map[string]float64, len(pairs))
		var distinct []string
		for _, name := range names {
			v := pairs[name]
			model[name] = v.Value
			distinct = append(distinct, fmt.Sprintf("(= %s %s)", name, renderModelValue(v)))
		}
		solutions = append(solutions, model)
		blocked = append(blocked, fmt.Sprintf("(assert (not (and %s)))", strings.Join(distinct, " ")))
	}
	return solutions, nil
}

func renderModelValue(v upperBound) string {
	if v.Den > 1 {
		return fmt.Sprintf("(/ %d %d)", v.Num, v.Den)
	}
	if v.Value == math.Trunc(v.Value) {
		return fmt.Sprintf("%d", int64(v.Value))
	}
	return fmt.Sprintf("%g", v.Value)
}

// ConstraintLog renders the optimization query as SMT-LIB text without
// running it, for -debug-precision dumps.
func (b *Bridge) ConstraintLog(req BoundRequest) string {
	defer b.errorBound.ClearCache()
	var body []string
	for _, c := range req.Constraints {
		body = append(body, fmt.Sprintf("(assert %s)", b.errorBound.Construct(c)))
	}
	body = append(body, fmt.Sprintf("(assert %s)", b.errorBound.Construct(req.Violation)))
	var sb strings.Builder
	for _, line := range b.errorBound.Declarations() {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range body {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// writeOptions emits the per-query option preamble: the timeout in
// milliseconds and, for optimization, the pareto priority.
func (b *Bridge) writeOptions(sb *strings.Builder, optimizing bool) {
	if b.timeoutMillis != noLimit {
		fmt.Fprintf(sb, "(set-option :timeout %d)\n", b.timeoutMillis)
	}
	if optimizing && !b.cfg.UniformInputError {
		sb.WriteString("(set-option :opt.priority pareto)\n")
	}
}
