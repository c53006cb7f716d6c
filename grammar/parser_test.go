// SPDX-License-Identifier: Apache-2.0
package grammar

import (
	"testing"

	"github.com/alecthomas/participle/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProgram = `
// single add with declared input errors
let a = input(32);
let b = input(32);
klee_set_input_error(a, 1e-8);
klee_set_input_error(b, 1e-8);
let c = a + b;
store(c, 16);
let d = load(16, 32);
if a < b {
    let e = d * c;
} else {
    let f = sdiv(d, c);
}
klee_math_call("sin", a);
klee_bound_error("c", c, 1e-6);
`

func TestParseSampleProgram(t *testing.T) {
	program, err := ParseSource("sample.eb", sampleProgram)
	require.NoError(t, err)
	require.Len(t, program.Statements, 10)

	let := program.Statements[0].Let
	require.NotNil(t, let)
	assert.Equal(t, "a", let.Name)

	sie := program.Statements[2].SetInputError
	require.NotNil(t, sie)
	assert.Equal(t, "a", sie.Name)
	assert.Equal(t, 1e-8, sie.Err)

	ifStmt := program.Statements[7].If
	require.NotNil(t, ifStmt)
	assert.Len(t, ifStmt.Then, 1)
	assert.Len(t, ifStmt.Else, 1)

	bound := program.Statements[9].BoundError
	require.NotNil(t, bound)
	assert.Equal(t, "c", bound.Label)
	assert.Equal(t, 1e-6, bound.Bound)
	assert.Equal(t, 16, bound.Pos.Line)
}

func TestParsePrecedence(t *testing.T) {
	program, err := ParseSource("prec.eb", `let x = 1 + 2 * 3;`)
	require.NoError(t, err)

	add := program.Statements[0].Let.Expr.Cmp.Left
	require.Len(t, add.Rest, 1, "one addition at the top")
	mul := add.Rest[0].Term
	require.Len(t, mul.Rest, 1, "multiplication binds tighter")
}

func TestParseBuiltinCalls(t *testing.T) {
	program, err := ParseSource("calls.eb", `let x = fadd(input(32), input(32));`)
	require.NoError(t, err)

	call := program.Statements[0].Let.Expr.Cmp.Left.Left.Left.Call
	require.NotNil(t, call)
	assert.Equal(t, "fadd", call.Name)
	assert.Len(t, call.Args, 2)
}

func TestParseSelectAndComparison(t *testing.T) {
	program, err := ParseSource("select.eb", `let x = select(input(8) <= 5, 1, 2);`)
	require.NoError(t, err)

	sel := program.Statements[0].Let.Expr.Cmp.Left.Left.Left.Select
	require.NotNil(t, sel)
	assert.Equal(t, "<=", sel.Cond.Cmp.Op)
}

func TestParseHexLiterals(t *testing.T) {
	program, err := ParseSource("hex.eb", `
let a = input(0x20);
let c = a + 0x10;
store(c, 0x10);
let d = load(0x10, 32);
`)
	require.NoError(t, err)
	require.Len(t, program.Statements, 4)

	input := program.Statements[0].Let.Expr.Cmp.Left.Left.Left.Input
	require.NotNil(t, input)
	assert.Equal(t, uint64(0x20), input.Width.Value)

	lit := program.Statements[1].Let.Expr.Cmp.Left.Rest[0].Term.Left.Int
	require.NotNil(t, lit)
	assert.Equal(t, uint64(0x10), lit.Value)

	load := program.Statements[3].Let.Expr.Cmp.Left.Left.Left.Load
	require.NotNil(t, load)
	assert.Equal(t, uint64(32), load.Width.Value)
}

func TestParseUnaryMinus(t *testing.T) {
	program, err := ParseSource("neg.eb", `
let x = -5;
let y = -(x + 1);
let z = 1 - -x;
`)
	require.NoError(t, err)

	neg := program.Statements[0].Let.Expr.Cmp.Left.Left.Left.Neg
	require.NotNil(t, neg)
	require.NotNil(t, neg.Int)
	assert.Equal(t, uint64(5), neg.Int.Value)

	neg = program.Statements[1].Let.Expr.Cmp.Left.Left.Left.Neg
	require.NotNil(t, neg)
	assert.NotNil(t, neg.Sub)

	sub := program.Statements[2].Let.Expr.Cmp.Left.Rest[0]
	assert.Equal(t, "-", sub.Op)
	require.NotNil(t, sub.Term.Left.Neg)
	assert.NotNil(t, sub.Term.Left.Neg.Var)
}

func TestParseErrorHasPosition(t *testing.T) {
	_, err := ParseSource("bad.eb", "let = 5;")
	require.Error(t, err)
	var pe participle.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Position().Line)
}

func TestPrinterRoundTrips(t *testing.T) {
	program, err := ParseSource("sample.eb", sampleProgram)
	require.NoError(t, err)

	printed := program.String()
	reparsed, err := ParseSource("printed.eb", printed)
	require.NoError(t, err)
	assert.Equal(t, printed, reparsed.String())
}

func TestMathCallWithoutArgs(t *testing.T) {
	program, err := ParseSource("math.eb", `klee_math_call("pi");`)
	require.NoError(t, err)
	mc := program.Statements[0].MathCall
	require.NotNil(t, mc)
	assert.Equal(t, "pi", mc.Name)
	assert.Empty(t, mc.Args)
}
