package diag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticError(t *testing.T) {
	d := MalformedExpression("no error recorded for composite term")
	assert.Equal(t, "error[P0001]: no error recorded for composite term", d.Error())

	d.File = "test.eb"
	d.Line = 7
	assert.Contains(t, d.Error(), "at test.eb:7")
}

func TestTaxonomyCodes(t *testing.T) {
	assert.Equal(t, CodeMalformedExpression, MalformedExpression("x").Code)
	assert.Equal(t, CodeSolverTimeout, SolverTimeout("x").Code)
	assert.Equal(t, CodeSolverFailure, SolverFailure("x").Code)
	assert.Equal(t, CodeSolverAbort, SolverAbort("x").Code)
	assert.Equal(t, CodeUninitializedLoad, UninitializedLoad("x").Code)

	assert.Equal(t, Error, MalformedExpression("x").Level)
	assert.Equal(t, Warning, SolverTimeout("x").Level)
	assert.Equal(t, Note, UninitializedLoad("x").Level)
}

func TestIsCode(t *testing.T) {
	err := error(SolverTimeout("slow query"))
	assert.True(t, IsCode(err, CodeSolverTimeout))
	assert.False(t, IsCode(err, CodeSolverAbort))

	wrapped := fmt.Errorf("bound failed: %w", err)
	assert.True(t, IsCode(wrapped, CodeSolverTimeout))

	assert.False(t, IsCode(fmt.Errorf("plain"), CodeSolverTimeout))
}
