package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"errbound/internal/diag"
	"errbound/internal/solver"
)

// Verdict is the outcome of one bound request.
type Verdict string

const (
	Holds    Verdict = "HOLDS"
	Violated Verdict = "VIOLATED"
	Unknown  Verdict = "UNKNOWN"
)

// MathCallInfo is the human-readable reconstruction of a recorded
// libm invocation: the fresh return variable, the function name and
// the rendered argument expressions.
type MathCallInfo struct {
	Var     string
	Name    string
	Formula string
}

// Bound is the stored descriptor of one completed bound request plus
// its decoded per-input results.
type Bound struct {
	Name      string
	File      string
	Line      int
	Bound     float64
	Verdict   Verdict
	Inputs    []solver.InputBound
	MathCalls []MathCallInfo
	Solutions []map[string]float64
}

// Report aggregates every bound reported on one analyzed program.
type Report struct {
	Bounds      []*Bound
	Diagnostics []*diag.Diagnostic
}

// Add appends a completed bound descriptor.
func (r *Report) Add(b *Bound) {
	r.Bounds = append(r.Bounds, b)
}

// Note appends a non-fatal diagnostic raised during analysis.
func (r *Report) Note(d *diag.Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

// WriteErrors renders the line-oriented .errors artifact: one header
// line per bound, one line per reported input, a blank line between
// bounds.
func (r *Report) WriteErrors(w io.Writer) error {
	for i, b := range r.Bounds {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s:%d: %s bound %g %s\n", b.File, b.Line, b.Name, b.Bound, b.Verdict); err != nil {
			return err
		}
		for _, in := range b.Inputs {
			if _, err := fmt.Fprintf(w, "%s %s %g\n", in.Name, in.Kind, in.Value); err != nil {
				return err
			}
		}
		for _, mc := range b.MathCalls {
			if _, err := fmt.Fprintf(w, "%s = %s\n", mc.Var, mc.Formula); err != nil {
				return err
			}
		}
		for j, sol := range b.Solutions {
			parts := make([]string, 0, len(sol))
			for _, in := range b.Inputs {
				if v, ok := sol[in.Name]; ok {
					parts = append(parts, fmt.Sprintf("%s=%g", in.Name, v))
				}
			}
			if _, err := fmt.Fprintf(w, "solution %d: %s\n", j+1, strings.Join(parts, " ")); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteReals renders the .reals artifact: the raw rational
// numerator/denominator pair behind every finite bound.
func (r *Report) WriteReals(w io.Writer) error {
	for i, b := range r.Bounds {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s:%d: %s\n", b.File, b.Line, b.Name); err != nil {
			return err
		}
		for _, in := range b.Inputs {
			if in.Kind != solver.Finite {
				continue
			}
			den := in.Den
			if den == 0 {
				den = 1
			}
			if _, err := fmt.Fprintf(w, "%s %d/%d\n", in.Name, in.Num, den); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteArtifacts writes <testName>.errors in dir and, when reals is
// set, the <testName>.reals sibling.
func (r *Report) WriteArtifacts(dir, testName string, reals bool) error {
	errorsPath := filepath.Join(dir, testName+".errors")
	f, err := os.Create(errorsPath)
	if err != nil {
		return err
	}
	if err := r.WriteErrors(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !reals {
		return nil
	}
	realsPath := filepath.Join(dir, testName+".reals")
	f, err = os.Create(realsPath)
	if err != nil {
		return err
	}
	if err := r.WriteReals(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
