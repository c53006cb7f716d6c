package grammar

import (
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"
)

// IntLit is an integer literal, decimal or hex.
type IntLit struct {
	Value uint64
}

func (i *IntLit) Capture(values []string) error {
	v, err := strconv.ParseUint(values[0], 0, 64)
	if err != nil {
		return err
	}
	i.Value = v
	return nil
}

// The trace language: straight-line programs with symbolic inputs,
// error-memory stores and loads, two-way branches and the precision
// intrinsics. One statement maps to one analyzed instruction.

type Program struct {
	Statements []*Statement `@@*`
}

type Statement struct {
	SetInputError *SetInputErrorStmt `  @@`
	BoundError    *BoundErrorStmt    `| @@`
	MathCall      *MathCallStmt      `| @@`
	Let           *LetStmt           `| @@`
	Store         *StoreStmt         `| @@`
	Memcpy        *MemcpyStmt        `| @@`
	If            *IfStmt            `| @@`
}

type LetStmt struct {
	Name string `"let" @Ident "="`
	Expr *Expr  `@@ ";"`
}

type StoreStmt struct {
	Pos   lexer.Position
	Value *Expr `"store" "(" @@ ","`
	Addr  *Expr `@@ ")" ";"`
}

type MemcpyStmt struct {
	Pos lexer.Position
	Dst *Expr `"memcpy" "(" @@ ","`
	Src *Expr `@@ ","`
	Len *Expr `@@ ")" ";"`
}

type IfStmt struct {
	Cond *Expr        `"if" @@ "{"`
	Then []*Statement `@@* "}"`
	Else []*Statement `( "else" "{" @@* "}" )?`
}

type SetInputErrorStmt struct {
	Pos  lexer.Position
	Name string  `"klee_set_input_error" "(" @Ident ","`
	Err  float64 `@(Float | Integer) ")" ";"`
}

type BoundErrorStmt struct {
	Pos   lexer.Position
	Label string  `"klee_bound_error" "(" @String ","`
	Expr  *Expr   `@@ ","`
	Bound float64 `@(Float | Integer) ")" ";"`
}

type MathCallStmt struct {
	Pos  lexer.Position
	Name string  `"klee_math_call" "(" @String`
	Args []*Expr `( "," @@ )* ")" ";"`
}

// Expressions, lowest precedence first.

type Expr struct {
	Cmp *CmpExpr `@@`
}

type CmpExpr struct {
	Left  *AddExpr `@@`
	Op    string   `( @("==" | "!=" | "<=" | ">=" | "<" | ">")`
	Right *AddExpr `  @@ )?`
}

type AddExpr struct {
	Left *MulExpr   `@@`
	Rest []*AddTail `@@*`
}

type AddTail struct {
	Op   string   `@("+" | "-")`
	Term *MulExpr `@@`
}

type MulExpr struct {
	Left *Primary   `@@`
	Rest []*MulTail `@@*`
}

type MulTail struct {
	Op   string   `@("*" | "/" | "%")`
	Term *Primary `@@`
}

type Primary struct {
	Neg    *Primary     `  "-" @@`
	Input  *InputExpr   `| @@`
	Load   *LoadExpr    `| @@`
	Select *SelectExpr  `| @@`
	Call   *BuiltinCall `| @@`
	Int    *IntLit      `| @(Hex | Integer)`
	Var    *string      `| @Ident`
	Sub    *Expr        `| "(" @@ ")"`
}

type InputExpr struct {
	Width IntLit `"input" "(" @(Hex | Integer) ")"`
}

type LoadExpr struct {
	Pos   lexer.Position
	Addr  *Expr  `"load" "(" @@ ","`
	Width IntLit `@(Hex | Integer) ")"`
}

type SelectExpr struct {
	Cond *Expr `"select" "(" @@ ","`
	Then *Expr `@@ ","`
	Else *Expr `@@ ")"`
}

// BuiltinCall covers the operations with no infix spelling: signed
// division and the floating forms that carry a unit rounding term.
type BuiltinCall struct {
	Name string  `@("sdiv" | "fadd" | "fsub" | "fmul" | "fdiv")`
	Args []*Expr `"(" @@ ( "," @@ )* ")"`
}
