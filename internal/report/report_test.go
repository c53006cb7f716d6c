package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errbound/internal/solver"
)

func sampleReport() *Report {
	r := &Report{}
	r.Add(&Bound{
		Name:    "c",
		File:    "test.eb",
		Line:    6,
		Bound:   1e-6,
		Verdict: Holds,
		Inputs: []solver.InputBound{
			{Name: "_fractional_error_input_0", Kind: solver.Finite, Value: 1e-8, Num: 1, Den: 100000000},
			{Name: "_fractional_error_input_1", Kind: solver.Infinity},
		},
	})
	r.Add(&Bound{
		Name:    "d",
		File:    "test.eb",
		Line:    9,
		Bound:   1e-4,
		Verdict: Violated,
		Inputs: []solver.InputBound{
			{Name: "_fractional_error_input_0", Kind: solver.Epsilon},
		},
	})
	return r
}

func TestWriteErrorsFormat(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, sampleReport().WriteErrors(&sb))

	lines := strings.Split(sb.String(), "\n")
	assert.Equal(t, "test.eb:6: c bound 1e-06 HOLDS", lines[0])
	assert.Equal(t, "_fractional_error_input_0 FINITE 1e-08", lines[1])
	assert.Equal(t, "_fractional_error_input_1 INFINITY 0", lines[2])
	assert.Equal(t, "", lines[3], "blank line separates bounds")
	assert.Equal(t, "test.eb:9: d bound 0.0001 VIOLATED", lines[4])
	assert.Equal(t, "_fractional_error_input_0 EPSILON 0", lines[5])
}

func TestWriteRealsOnlyFiniteBounds(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, sampleReport().WriteReals(&sb))

	out := sb.String()
	assert.Contains(t, out, "_fractional_error_input_0 1/100000000")
	assert.NotContains(t, out, "INFINITY")
	// Infinity and epsilon rows have no rational and are omitted.
	assert.Equal(t, 1, strings.Count(out, "_fractional_error_input_0 1/"))
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleReport().WriteArtifacts(dir, "case01", true))

	errorsData, err := os.ReadFile(filepath.Join(dir, "case01.errors"))
	require.NoError(t, err)
	assert.Contains(t, string(errorsData), "HOLDS")

	realsData, err := os.ReadFile(filepath.Join(dir, "case01.reals"))
	require.NoError(t, err)
	assert.Contains(t, string(realsData), "1/100000000")
}

func TestWriteArtifactsSkipsRealsWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleReport().WriteArtifacts(dir, "case02", false))

	_, err := os.Stat(filepath.Join(dir, "case02.errors"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "case02.reals"))
	assert.True(t, os.IsNotExist(err))
}

func TestMathCallLinesAppearInErrors(t *testing.T) {
	r := &Report{}
	r.Add(&Bound{
		Name: "c", File: "m.eb", Line: 3, Bound: 1, Verdict: Unknown,
		MathCalls: []MathCallInfo{{Var: "_mathvar_0", Name: "sin", Formula: "sin((read input_0 0:w8))"}},
	})
	var sb strings.Builder
	require.NoError(t, r.WriteErrors(&sb))
	assert.Contains(t, sb.String(), "_mathvar_0 = sin(")
}
