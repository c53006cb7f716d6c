package grammar

import (
	"fmt"
	"strings"
)

// String renders the program back as trace-language source. The output
// is re-parsable; the CLI prints it when echoing a parsed program.
func (p *Program) String() string {
	var sb strings.Builder
	writeStatements(&sb, p.Statements, "")
	return sb.String()
}

func writeStatements(sb *strings.Builder, stmts []*Statement, indent string) {
	for _, s := range stmts {
		switch {
		case s.Let != nil:
			fmt.Fprintf(sb, "%slet %s = %s;\n", indent, s.Let.Name, s.Let.Expr)
		case s.Store != nil:
			fmt.Fprintf(sb, "%sstore(%s, %s);\n", indent, s.Store.Value, s.Store.Addr)
		case s.Memcpy != nil:
			fmt.Fprintf(sb, "%smemcpy(%s, %s, %s);\n", indent, s.Memcpy.Dst, s.Memcpy.Src, s.Memcpy.Len)
		case s.If != nil:
			fmt.Fprintf(sb, "%sif %s {\n", indent, s.If.Cond)
			writeStatements(sb, s.If.Then, indent+"    ")
			if len(s.If.Else) > 0 {
				fmt.Fprintf(sb, "%s} else {\n", indent)
				writeStatements(sb, s.If.Else, indent+"    ")
			}
			fmt.Fprintf(sb, "%s}\n", indent)
		case s.SetInputError != nil:
			fmt.Fprintf(sb, "%sklee_set_input_error(%s, %g);\n", indent, s.SetInputError.Name, s.SetInputError.Err)
		case s.BoundError != nil:
			fmt.Fprintf(sb, "%sklee_bound_error(%q, %s, %g);\n", indent, s.BoundError.Label, s.BoundError.Expr, s.BoundError.Bound)
		case s.MathCall != nil:
			args := make([]string, len(s.MathCall.Args))
			for i, a := range s.MathCall.Args {
				args[i] = a.String()
			}
			if len(args) > 0 {
				fmt.Fprintf(sb, "%sklee_math_call(%q, %s);\n", indent, s.MathCall.Name, strings.Join(args, ", "))
			} else {
				fmt.Fprintf(sb, "%sklee_math_call(%q);\n", indent, s.MathCall.Name)
			}
		}
	}
}

func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	return e.Cmp.String()
}

func (c *CmpExpr) String() string {
	if c.Op == "" {
		return c.Left.String()
	}
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

func (a *AddExpr) String() string {
	var sb strings.Builder
	sb.WriteString(a.Left.String())
	for _, t := range a.Rest {
		fmt.Fprintf(&sb, " %s %s", t.Op, t.Term)
	}
	return sb.String()
}

func (m *MulExpr) String() string {
	var sb strings.Builder
	sb.WriteString(m.Left.String())
	for _, t := range m.Rest {
		fmt.Fprintf(&sb, " %s %s", t.Op, t.Term)
	}
	return sb.String()
}

func (p *Primary) String() string {
	switch {
	case p.Neg != nil:
		return fmt.Sprintf("-%s", p.Neg)
	case p.Input != nil:
		return fmt.Sprintf("input(%d)", p.Input.Width.Value)
	case p.Load != nil:
		return fmt.Sprintf("load(%s, %d)", p.Load.Addr, p.Load.Width.Value)
	case p.Select != nil:
		return fmt.Sprintf("select(%s, %s, %s)", p.Select.Cond, p.Select.Then, p.Select.Else)
	case p.Call != nil:
		args := make([]string, len(p.Call.Args))
		for i, a := range p.Call.Args {
			args[i] = a.String()
		}
		return fmt.Sprintf("%s(%s)", p.Call.Name, strings.Join(args, ", "))
	case p.Int != nil:
		return fmt.Sprintf("%d", p.Int.Value)
	case p.Var != nil:
		return *p.Var
	case p.Sub != nil:
		return fmt.Sprintf("(%s)", p.Sub)
	}
	return ""
}
