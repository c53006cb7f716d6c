package interp

import (
	"fmt"
	"sort"

	"errbound/grammar"
	"errbound/internal/config"
	"errbound/internal/diag"
	"errbound/internal/errstate"
	"errbound/internal/expr"
	"errbound/internal/report"
	"errbound/internal/solver"
)

// Interp symbolically executes a trace program, driving the error
// propagator after every arithmetic statement and issuing bound
// requests through the optimizer bridge. It is the minimal executor
// collaborator of the analysis core, not a production engine.
type Interp struct {
	cfg      config.Config
	factory  *expr.Factory
	registry *errstate.Registry
	bridge   *solver.Bridge
	file     string

	inputCount int
	addrNext   uint64

	report *report.Report
}

// frame is one execution path: its error state, the variable bindings
// and the path condition collected so far.
type frame struct {
	state       *errstate.State
	env         map[string]*expr.Term
	addrs       map[string]*expr.Term
	constraints []*expr.Term
}

func (f *frame) fork() *frame {
	c := &frame{
		state: f.state.Clone(),
		env:   make(map[string]*expr.Term, len(f.env)),
		addrs: make(map[string]*expr.Term, len(f.addrs)),
	}
	for k, v := range f.env {
		c.env[k] = v
	}
	for k, v := range f.addrs {
		c.addrs[k] = v
	}
	c.constraints = append([]*expr.Term(nil), f.constraints...)
	return c
}

// New creates an interpreter over a fresh factory, registry and
// bridge.
func New(cfg config.Config, file string) *Interp {
	factory := expr.NewFactory()
	return &Interp{
		cfg:      cfg,
		factory:  factory,
		registry: errstate.NewRegistry(factory),
		bridge:   solver.NewBridge(cfg, factory),
		file:     file,
		addrNext: 0x1000,
	}
}

// Bridge returns the optimizer bridge, so callers can substitute the
// solver runner.
func (in *Interp) Bridge() *solver.Bridge { return in.bridge }

// Factory returns the shared term factory.
func (in *Interp) Factory() *expr.Factory { return in.factory }

// Run executes the program on an initial state and returns the
// aggregated report. Paths terminated by a malformed expression are
// recorded as diagnostics; solver aborts are fatal.
func (in *Interp) Run(program *grammar.Program) (*report.Report, error) {
	in.report = &report.Report{}
	opts := errstate.Options{
		OptimizeDivides: in.cfg.OptimizeDivides,
		Scaling:         in.cfg.Scaling,
	}
	root := &frame{
		state: errstate.NewState(in.factory, in.registry, opts),
		env:   make(map[string]*expr.Term),
		addrs: make(map[string]*expr.Term),
	}
	if _, err := in.runBlock(program.Statements, root); err != nil {
		return in.report, err
	}
	return in.report, nil
}

// runBlock executes statements over a set of live paths, forking at
// branches. A path that dies keeps its diagnostic and drops out.
func (in *Interp) runBlock(stmts []*grammar.Statement, f *frame) ([]*frame, error) {
	frames := []*frame{f}
	for _, stmt := range stmts {
		var next []*frame
		for _, fr := range frames {
			out, err := in.exec(stmt, fr)
			if err != nil {
				if d, ok := err.(*diag.Diagnostic); ok && d.Code == diag.CodeMalformedExpression {
					// Fatal to this state only.
					in.report.Note(d)
					continue
				}
				return nil, err
			}
			next = append(next, out...)
		}
		frames = next
	}
	return frames, nil
}

func (in *Interp) exec(stmt *grammar.Statement, f *frame) ([]*frame, error) {
	switch {
	case stmt.Let != nil:
		v, err := in.eval(stmt.Let.Expr, f)
		if err != nil {
			return nil, err
		}
		f.env[stmt.Let.Name] = v
		if _, ok := f.addrs[stmt.Let.Name]; !ok {
			f.addrs[stmt.Let.Name] = in.factory.Constant(in.addrNext, expr.Int64)
			in.addrNext += 8
		}
		return []*frame{f}, nil

	case stmt.Store != nil:
		return in.execStore(stmt.Store, f)

	case stmt.Memcpy != nil:
		return in.execMemcpy(stmt.Memcpy, f)

	case stmt.If != nil:
		return in.execIf(stmt.If, f)

	case stmt.SetInputError != nil:
		return in.execSetInputError(stmt.SetInputError, f)

	case stmt.BoundError != nil:
		return in.execBoundError(stmt.BoundError, f)

	case stmt.MathCall != nil:
		args := make([]*expr.Term, 0, len(stmt.MathCall.Args))
		for _, a := range stmt.MathCall.Args {
			v, err := in.eval(a, f)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		f.state.RegisterMathCall(stmt.MathCall.Name, args)
		return []*frame{f}, nil
	}
	return []*frame{f}, nil
}

func (in *Interp) execStore(stmt *grammar.StoreStmt, f *frame) ([]*frame, error) {
	value, err := in.eval(stmt.Value, f)
	if err != nil {
		return nil, err
	}
	addr, err := in.evalAddress(stmt.Addr, f)
	if err != nil {
		return nil, err
	}
	errTerm, err := f.state.ErrorOf(value)
	if err != nil {
		return nil, err
	}
	f.state.StoreSimple(addr, value, errTerm)
	return []*frame{f}, nil
}

func (in *Interp) execMemcpy(stmt *grammar.MemcpyStmt, f *frame) ([]*frame, error) {
	dst, err := in.evalAddress(stmt.Dst, f)
	if err != nil {
		return nil, err
	}
	src, err := in.evalAddress(stmt.Src, f)
	if err != nil {
		return nil, err
	}
	value, errTerm, miss := f.state.Load(src, expr.Int32)
	if miss {
		in.report.Note(diag.UninitializedLoad(
			fmt.Sprintf("memcpy source %s has no stored cell", src)))
	}
	f.state.StoreSimple(dst, value, errTerm)
	f.state.NoteMemcpyStore(stmt.Pos.Line, "memcpy")
	return []*frame{f}, nil
}

func (in *Interp) execIf(stmt *grammar.IfStmt, f *frame) ([]*frame, error) {
	cond, err := in.eval(stmt.Cond, f)
	if err != nil {
		return nil, err
	}
	negated := in.factory.Not(cond)

	thenOK, err := in.branchFeasible(f, cond)
	if err != nil {
		return nil, err
	}
	elseOK, err := in.branchFeasible(f, negated)
	if err != nil {
		return nil, err
	}

	var frames []*frame
	if thenOK && elseOK {
		child := f.fork()
		child.constraints = append(child.constraints, cond)
		thenFrames, err := in.runBlock(stmt.Then, child)
		if err != nil {
			return nil, err
		}
		frames = append(frames, thenFrames...)
		f.constraints = append(f.constraints, negated)
		elseFrames, err := in.runBlock(stmt.Else, f)
		if err != nil {
			return nil, err
		}
		return append(frames, elseFrames...), nil
	}
	if thenOK {
		f.constraints = append(f.constraints, cond)
		return in.runBlock(stmt.Then, f)
	}
	if elseOK {
		f.constraints = append(f.constraints, negated)
		return in.runBlock(stmt.Else, f)
	}
	// Both arms infeasible: the path dies quietly.
	return nil, nil
}

// branchFeasible pre-checks a branch through the path-condition
// translator; constant conditions and -no-branch-check bypass the
// solver.
func (in *Interp) branchFeasible(f *frame, cond *expr.Term) (bool, error) {
	if cond.IsConstant() {
		return cond.Value() != 0, nil
	}
	if in.cfg.NoBranchCheck || in.cfg.ComputeErrorBound == config.NoComputation {
		return true, nil
	}
	status, feasible, err := in.bridge.CheckFeasible(f.pathCondition(), cond)
	if err != nil {
		if diag.IsCode(err, diag.CodeSolverAbort) {
			return false, err
		}
		in.report.Note(diag.SolverFailure(err.Error()))
		return true, nil
	}
	if status == solver.StatusTimeout || status == solver.StatusFailure {
		// Inconclusive: keep the branch.
		return true, nil
	}
	return feasible, nil
}

func (f *frame) pathCondition() []*expr.Term {
	return append(append([]*expr.Term(nil), f.constraints...), f.state.ExtraConstraints()...)
}

func (in *Interp) execSetInputError(stmt *grammar.SetInputErrorStmt, f *frame) ([]*frame, error) {
	v, ok := f.env[stmt.Name]
	if !ok {
		return nil, fmt.Errorf("%s:%d: undefined variable %q", in.file, stmt.Pos.Line, stmt.Name)
	}
	errTerm, err := f.state.ErrorOf(v)
	if err != nil {
		return nil, err
	}
	addr := f.addrs[stmt.Name]
	f.state.DeclareInputError(addr, errTerm)
	f.state.RegisterInputError(errTerm)
	// The declared magnitude becomes a path constraint on the input
	// error variable.
	f.constraints = append(f.constraints,
		in.factory.Ule(errTerm, in.factory.Float(stmt.Err)))
	return []*frame{f}, nil
}

func (in *Interp) execBoundError(stmt *grammar.BoundErrorStmt, f *frame) ([]*frame, error) {
	v, err := in.eval(stmt.Expr, f)
	if err != nil {
		return nil, err
	}
	errTerm, err := f.state.ErrorOf(v)
	if err != nil {
		return nil, err
	}

	bound := &report.Bound{
		Name:    stmt.Label,
		File:    in.file,
		Line:    stmt.Pos.Line,
		Bound:   stmt.Bound,
		Verdict: report.Unknown,
	}
	mathCalls := f.state.MathCalls()
	varNames := make([]string, 0, len(mathCalls))
	for varName := range mathCalls {
		varNames = append(varNames, varName)
	}
	sort.Strings(varNames)
	for _, varName := range varNames {
		mc := mathCalls[varName]
		bound.MathCalls = append(bound.MathCalls, report.MathCallInfo{
			Var:     varName,
			Name:    mc.Name,
			Formula: formatMathCall(mc),
		})
	}

	if in.cfg.ComputeErrorBound == config.NoComputation {
		f.state.MarkReported()
		in.report.Add(bound)
		return []*frame{f}, nil
	}

	req := solver.NewBoundRequest(in.factory, stmt.Label, in.file, stmt.Pos.Line,
		errTerm, stmt.Bound, f.pathCondition())

	result, err := in.bridge.ComputeOptimalValues(req)
	if err != nil {
		if diag.IsCode(err, diag.CodeSolverAbort) {
			return nil, err
		}
		if d, ok := err.(*diag.Diagnostic); ok {
			in.report.Note(d)
		}
		f.state.MarkReported()
		in.report.Add(bound)
		return []*frame{f}, nil
	}
	switch result.Status {
	case solver.StatusSolvable:
		bound.Verdict = report.Violated
		bound.Inputs = result.Bounds
	case solver.StatusUnsolvable:
		bound.Verdict = report.Holds
		// The bound holds; re-run under error <= bound so the
		// per-input maxima are still reported.
		satisfied := req
		satisfied.Violation = req.Satisfaction
		if satResult, satErr := in.bridge.ComputeOptimalValues(satisfied); satErr == nil &&
			satResult.Status == solver.StatusSolvable {
			bound.Inputs = satResult.Bounds
		}
	case solver.StatusTimeout:
		in.report.Note(diag.SolverTimeout(
			fmt.Sprintf("bound %q at %s:%d timed out", stmt.Label, in.file, stmt.Pos.Line)))
	case solver.StatusFailure:
		in.report.Note(diag.SolverFailure(
			fmt.Sprintf("bound %q at %s:%d failed", stmt.Label, in.file, stmt.Pos.Line)))
	}

	if bound.Verdict == report.Violated && in.cfg.MultiKTest > 0 {
		names := make([]string, len(req.Objectives))
		for i, a := range req.Objectives {
			names[i] = a.Name
		}
		constraints := append(req.Constraints, req.Violation)
		solutions, solErr := in.bridge.ComputeSolutions(constraints, names, in.cfg.MultiKTest)
		if solErr == nil {
			bound.Solutions = solutions
		}
	}

	f.state.MarkReported()
	in.report.Add(bound)
	return []*frame{f}, nil
}

func formatMathCall(mc errstate.MathCall) string {
	args := ""
	for i, a := range mc.Args {
		if i > 0 {
			args += ", "
		}
		args += a.String()
	}
	return fmt.Sprintf("%s(%s)", mc.Name, args)
}
