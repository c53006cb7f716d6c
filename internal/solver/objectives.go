package solver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// The optimizer answers in s-expressions. A small participle grammar
// reads them back; the interesting part is decoding each objective's
// upper bound, which is an extended real of the shape
// infCoef·∞ + value + epsCoef·ε with "oo" and "epsilon" atoms.

type sexpr struct {
	Atom *string  `  @(Number | Symbol | String)`
	List []*sexpr `| "(" @@* ")"`
}

var sexprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Number", Pattern: `[-+]?\d+(\.\d+)?`},
	{Name: "Symbol", Pattern: `[^\s()"]+`},
	{Name: "Paren", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var sexprParser = buildSexprParser()

func buildSexprParser() *participle.Parser[sexprDoc] {
	p, err := participle.Build[sexprDoc](
		participle.Lexer(sexprLexer),
		participle.Elide("Whitespace"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to build s-expression parser: %w", err))
	}
	return p
}

type sexprDoc struct {
	Forms []*sexpr `@@*`
}

// parseSexprs reads every top-level form of a solver response chunk.
func parseSexprs(text string) ([]*sexpr, error) {
	doc, err := sexprParser.ParseString("solver-response", text)
	if err != nil {
		return nil, fmt.Errorf("unparsable solver response: %w", err)
	}
	return doc.Forms, nil
}

func (s *sexpr) isAtom(name string) bool {
	return s.Atom != nil && *s.Atom == name
}

func (s *sexpr) head() string {
	if len(s.List) == 0 || s.List[0].Atom == nil {
		return ""
	}
	return *s.List[0].Atom
}

// upperBound is the decoded (infCoef, value, epsCoef) triple. The
// value keeps its exact rational alongside the converted double for
// the .reals artifact.
type upperBound struct {
	InfCoef int
	EpsCoef int
	Value   float64
	Num     int64
	Den     int64
}

func (u upperBound) add(o upperBound) upperBound {
	u.InfCoef += o.InfCoef
	u.EpsCoef += o.EpsCoef
	u.Value += o.Value
	// Rational bookkeeping: sum via cross-multiplication.
	if u.Den == 0 {
		u.Num, u.Den = o.Num, o.Den
	} else if o.Den != 0 {
		u.Num = u.Num*o.Den + o.Num*u.Den
		u.Den = u.Den * o.Den
	}
	return u
}

func (u upperBound) scale(k int64) upperBound {
	u.InfCoef *= int(k)
	u.EpsCoef *= int(k)
	u.Value *= float64(k)
	u.Num *= k
	return u
}

// decodeUpperBound walks an objective value s-expression.
func decodeUpperBound(s *sexpr) (upperBound, error) {
	if s.Atom != nil {
		atom := *s.Atom
		switch atom {
		case "oo":
			return upperBound{InfCoef: 1}, nil
		case "epsilon":
			return upperBound{EpsCoef: 1}, nil
		}
		v, err := strconv.ParseFloat(atom, 64)
		if err != nil {
			return upperBound{}, fmt.Errorf("unrecognized objective atom %q", atom)
		}
		num, den := atomRational(atom, v)
		return upperBound{Value: v, Num: num, Den: den}, nil
	}
	if len(s.List) < 2 {
		return upperBound{}, fmt.Errorf("unrecognized objective form %s", s.render())
	}
	switch s.head() {
	case "+":
		var sum upperBound
		for _, arg := range s.List[1:] {
			part, err := decodeUpperBound(arg)
			if err != nil {
				return upperBound{}, err
			}
			sum = sum.add(part)
		}
		return sum, nil
	case "-":
		if len(s.List) == 2 {
			part, err := decodeUpperBound(s.List[1])
			if err != nil {
				return upperBound{}, err
			}
			return part.scale(-1), nil
		}
		left, err := decodeUpperBound(s.List[1])
		if err != nil {
			return upperBound{}, err
		}
		right, err := decodeUpperBound(s.List[2])
		if err != nil {
			return upperBound{}, err
		}
		return left.add(right.scale(-1)), nil
	case "*":
		if len(s.List) < 3 {
			return upperBound{}, fmt.Errorf("unrecognized objective form %s", s.render())
		}
		// Coefficient times oo/epsilon, or a plain product.
		left, err := decodeUpperBound(s.List[1])
		if err != nil {
			return upperBound{}, err
		}
		right, err := decodeUpperBound(s.List[2])
		if err != nil {
			return upperBound{}, err
		}
		if right.InfCoef != 0 || right.EpsCoef != 0 {
			return right.scale(int64(left.Value)), nil
		}
		if left.InfCoef != 0 || left.EpsCoef != 0 {
			return left.scale(int64(right.Value)), nil
		}
		left.Value *= right.Value
		left.Num *= right.Num
		left.Den *= right.Den
		return left, nil
	case "/":
		if len(s.List) < 3 {
			return upperBound{}, fmt.Errorf("unrecognized objective form %s", s.render())
		}
		num, err := decodeUpperBound(s.List[1])
		if err != nil {
			return upperBound{}, err
		}
		den, err := decodeUpperBound(s.List[2])
		if err != nil {
			return upperBound{}, err
		}
		if den.Value == 0 {
			return upperBound{}, fmt.Errorf("zero denominator in objective")
		}
		return upperBound{
			Value: num.Value / den.Value,
			Num:   num.Num,
			Den:   den.Num,
		}, nil
	case "to_real", "to_int":
		return decodeUpperBound(s.List[1])
	}
	return upperBound{}, fmt.Errorf("unrecognized objective form %s", s.render())
}

// atomRational derives the numerator/denominator pair of a numeric
// atom: integers are n/1, decimals are scaled by a power of ten.
func atomRational(atom string, v float64) (int64, int64) {
	if !strings.ContainsRune(atom, '.') {
		n, err := strconv.ParseInt(atom, 10, 64)
		if err != nil {
			return int64(v), 1
		}
		return n, 1
	}
	den := int64(1)
	for range atom[strings.IndexByte(atom, '.')+1:] {
		den *= 10
	}
	return int64(v * float64(den)), den
}

// render prints the s-expression back, for diagnostics.
func (s *sexpr) render() string {
	if s.Atom != nil {
		return *s.Atom
	}
	parts := make([]string, len(s.List))
	for i, c := range s.List {
		parts[i] = c.render()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// findObjectives locates the (objectives ...) form of a response and
// returns the value expression of each objective, in declaration
// order. Entries of the form (name value) are unwrapped; bare values
// are taken as-is.
func findObjectives(forms []*sexpr) []*sexpr {
	for _, form := range forms {
		if form.head() != "objectives" {
			continue
		}
		entries := form.List[1:]
		values := make([]*sexpr, 0, len(entries))
		for _, entry := range entries {
			// Entries are (objective-expr value) pairs; anything that
			// is not itself an arithmetic form unwraps to its value.
			if entry.Atom == nil && len(entry.List) == 2 && !isArithmeticHead(entry.head()) {
				values = append(values, entry.List[1])
				continue
			}
			values = append(values, entry)
		}
		return values
	}
	return nil
}

func isArithmeticHead(s string) bool {
	switch s {
	case "+", "-", "*", "/", "to_real", "to_int":
		return true
	}
	return false
}

// findReasonUnknown extracts the reply to (get-info :reason-unknown).
func findReasonUnknown(forms []*sexpr) string {
	for _, form := range forms {
		if len(form.List) == 2 && form.List[0].isAtom(":reason-unknown") {
			reason := form.List[1]
			if reason.Atom != nil {
				return strings.Trim(*reason.Atom, `"`)
			}
			return reason.render()
		}
	}
	return ""
}

// findValuePairs extracts the (get-value ...) reply: name/value pairs.
func findValuePairs(forms []*sexpr) map[string]upperBound {
	pairs := make(map[string]upperBound)
	for _, form := range forms {
		if form.Atom != nil || len(form.List) == 0 {
			continue
		}
		allPairs := true
		for _, entry := range form.List {
			if entry.Atom != nil || len(entry.List) != 2 || entry.List[0].Atom == nil {
				allPairs = false
				break
			}
		}
		if !allPairs {
			continue
		}
		for _, entry := range form.List {
			value, err := decodeUpperBound(entry.List[1])
			if err != nil {
				continue
			}
			pairs[*entry.List[0].Atom] = value
		}
	}
	return pairs
}
