package config

import (
	"flag"
	"fmt"
)

// Domain selects the arithmetic theory used for error-bound
// optimization queries.
type Domain int

const (
	NoComputation Domain = iota
	ViaReal
	ViaInteger
)

func (d Domain) String() string {
	switch d {
	case ViaReal:
		return "real"
	case ViaInteger:
		return "integer"
	default:
		return "none"
	}
}

// ParseDomain converts the -compute-error-bound flag value.
func ParseDomain(s string) (Domain, error) {
	switch s {
	case "real":
		return ViaReal, nil
	case "integer":
		return ViaInteger, nil
	case "none", "":
		return NoComputation, nil
	}
	return NoComputation, fmt.Errorf("unknown error bound domain %q (want real, integer or none)", s)
}

// Config carries the whole observable option surface of the analyzer.
// It is a plain value handed to each component at construction; there
// is no process-wide mutable option state.
type Config struct {
	// Precision is the master switch for the analysis core.
	Precision bool

	// DebugPrecision emits solver queries and decoded objective
	// triples on the solver debug logger.
	DebugPrecision bool

	// ComputeErrorBound selects the optimizer domain; NoComputation
	// disables the optimizer bridge entirely.
	ComputeErrorBound Domain

	// ComputeRealSolution additionally emits a .reals artifact with
	// raw rational numerator/denominator pairs.
	ComputeRealSolution bool

	// UniformInputError disables pareto priority so all input errors
	// are traded off together.
	UniformInputError bool

	// LoopBreaking and DefaultTripCount are carried for the
	// loop-breaking collaborator; this module only records them.
	LoopBreaking     bool
	DefaultTripCount int

	// Scaling injects a nonzero scaling variable into every error
	// numerator so real-domain optimization cannot collapse the
	// fraction to zero.
	Scaling bool

	// ApproximatePointers is carried for the pointer-approximation
	// collaborator; this module only records it.
	ApproximatePointers bool

	// MathCalls records the -math-calls flag; klee_math_call statements
	// register math-call records whether or not it is set.
	MathCalls bool

	// MultiKTest asks for up to N distinct solutions per bound.
	MultiKTest int

	// NoBranchCheck skips the branch feasibility pre-check.
	NoBranchCheck bool

	// OptimizeDivides rewrites the error term's division by a
	// constant into shifts where that is exact.
	OptimizeDivides bool

	// MaxSolverTime is the per-query solver timeout in seconds;
	// zero means no limit.
	MaxSolverTime float64

	// SolverPath is the SMT solver binary invoked by the bridge.
	SolverPath string
}

// Default returns the configuration matching the documented flag
// defaults.
func Default() Config {
	return Config{
		DefaultTripCount: -1,
		SolverPath:       "z3",
	}
}

// RegisterFlags binds the option surface onto a flag set and returns
// the destination Config, valid after fs.Parse. The -compute-error-bound
// enum is validated during parsing.
func RegisterFlags(fs *flag.FlagSet) *Config {
	cfg := Default()
	fs.BoolVar(&cfg.Precision, "precision", false, "Switch on numerical precision analysis")
	fs.BoolVar(&cfg.DebugPrecision, "debug-precision", false, "Output debugging trace for numerical precision analysis")
	fs.Func("compute-error-bound", "Compute precision error bound via `real`, `integer` or `none` (default none)", func(s string) error {
		d, err := ParseDomain(s)
		if err != nil {
			return err
		}
		cfg.ComputeErrorBound = d
		return nil
	})
	fs.BoolVar(&cfg.ComputeRealSolution, "compute-real-solution", false, "Output real number solution in .reals file")
	fs.BoolVar(&cfg.UniformInputError, "uniform-input-error", false, "Consider all input errors to be equal when computing error bound")
	fs.BoolVar(&cfg.LoopBreaking, "loop-breaking", false, "Enable loop breaking: effective only when -precision is specified")
	fs.IntVar(&cfg.DefaultTripCount, "default-trip-count", -1, "Default trip count for loop breaking when none can be derived")
	fs.BoolVar(&cfg.Scaling, "scaling", false, "Scale numerator of divisions to prevent rounding the result to zero")
	fs.BoolVar(&cfg.ApproximatePointers, "approximate-pointers", false, "Approximate the pointer based on the value it is pointing to")
	fs.BoolVar(&cfg.MathCalls, "math-calls", false, "Handle math function calls")
	fs.IntVar(&cfg.MultiKTest, "multi-ktest", 0, "Try to produce a specified number of ktest files of different solutions")
	fs.BoolVar(&cfg.NoBranchCheck, "no-branch-check", false, "Do not check branch feasibility")
	fs.BoolVar(&cfg.OptimizeDivides, "solver-optimize-divides", false, "Optimize constant divides into shifts before passing to the solver")
	fs.Float64Var(&cfg.MaxSolverTime, "max-solver-time", 0, "Maximum amount of time in seconds for a single SMT query (0 = off)")
	fs.StringVar(&cfg.SolverPath, "solver-path", "z3", "SMT solver binary used by the optimizer bridge")
	return &cfg
}
