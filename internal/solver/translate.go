package solver

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"errbound/internal/expr"
)

// Translator lowers expression terms into SMT-LIB 2 text over a single
// arithmetic sort (Int or Real). Every symbolic array collapses to one
// numeric solver variable named after the array, matching how the
// optimizer's objectives are phrased over input-error variables.
//
// Each Bridge owns two translators — one for path-condition checks,
// one for error-bound optimization — because their renderings carry
// domain annotations and must never share a cache. Both caches are
// cleared after every top-level query rather than per construct, so an
// entire query shares subterm renderings without unbounded growth.
type Translator struct {
	real  bool
	cache map[*expr.Term]string
	decls map[string]struct{}
	order []string
}

// NewTranslator creates a translator over the Real domain when real is
// true, Int otherwise.
func NewTranslator(real bool) *Translator {
	return &Translator{
		real:  real,
		cache: make(map[*expr.Term]string),
		decls: make(map[string]struct{}),
	}
}

// ClearCache drops all cached renderings and declarations. Called by
// the bridge at every top-level query boundary.
func (tr *Translator) ClearCache() {
	tr.cache = make(map[*expr.Term]string)
	tr.decls = make(map[string]struct{})
	tr.order = tr.order[:0]
}

// Sort returns the SMT sort name of the translator's domain.
func (tr *Translator) Sort() string {
	if tr.real {
		return "Real"
	}
	return "Int"
}

// Declare registers a free solver variable and returns its name.
func (tr *Translator) Declare(name string) string {
	if _, ok := tr.decls[name]; !ok {
		tr.decls[name] = struct{}{}
		tr.order = append(tr.order, name)
	}
	return name
}

// Declarations renders the declare-const preamble for everything the
// translated terms mentioned.
func (tr *Translator) Declarations() []string {
	names := append([]string(nil), tr.order...)
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = fmt.Sprintf("(declare-const %s %s)", name, tr.Sort())
	}
	return lines
}

// Construct renders a term, reusing cached renderings of shared
// subterms.
func (tr *Translator) Construct(t *expr.Term) string {
	if s, ok := tr.cache[t]; ok {
		return s
	}
	s := tr.construct(t)
	tr.cache[t] = s
	return s
}

func (tr *Translator) construct(t *expr.Term) string {
	switch t.Kind() {
	case expr.Constant:
		return tr.literal(t.Value())
	case expr.FloatConstant:
		return tr.rational(t.Float())
	case expr.Read:
		return tr.Declare(t.Array().Name)
	case expr.Concat:
		if root, ok := concatRoot(t); ok {
			return tr.Declare(root.Name)
		}
		hi, lo := t.Child(0), t.Child(1)
		scale := tr.literal(1 << uint(lo.Width()))
		return fmt.Sprintf("(+ (* %s %s) %s)", tr.Construct(hi), scale, tr.Construct(lo))
	case expr.Add:
		return tr.binary("+", t)
	case expr.Sub:
		return tr.binary("-", t)
	case expr.Mul:
		return tr.binary("*", t)
	case expr.UDiv, expr.SDiv:
		if tr.real {
			return tr.binary("/", t)
		}
		return tr.binary("div", t)
	case expr.URem:
		return tr.binary("mod", t)
	case expr.LShr:
		amount := t.Child(1).Value()
		divisor := tr.literal(1 << amount)
		if tr.real {
			return fmt.Sprintf("(/ %s %s)", tr.Construct(t.Child(0)), divisor)
		}
		return fmt.Sprintf("(div %s %s)", tr.Construct(t.Child(0)), divisor)
	case expr.ZExt, expr.SExt, expr.Trunc:
		// Widths vanish in the arithmetic domain.
		return tr.Construct(t.Child(0))
	case expr.Eq:
		return tr.binary("=", t)
	case expr.Ne:
		return fmt.Sprintf("(not (= %s %s))", tr.Construct(t.Child(0)), tr.Construct(t.Child(1)))
	case expr.Ult, expr.Slt:
		return tr.binary("<", t)
	case expr.Ule, expr.Sle:
		return tr.binary("<=", t)
	case expr.Ugt:
		return tr.binary(">", t)
	case expr.Uge:
		return tr.binary(">=", t)
	case expr.Not:
		return fmt.Sprintf("(not %s)", tr.Construct(t.Child(0)))
	case expr.And:
		return tr.binary("and", t)
	case expr.Or:
		return tr.binary("or", t)
	case expr.Select:
		return fmt.Sprintf("(ite %s %s %s)",
			tr.Construct(t.Child(0)), tr.Construct(t.Child(1)), tr.Construct(t.Child(2)))
	}
	panic(fmt.Sprintf("solver: cannot translate %s term", t.Kind()))
}

func (tr *Translator) binary(op string, t *expr.Term) string {
	return fmt.Sprintf("(%s %s %s)", op, tr.Construct(t.Child(0)), tr.Construct(t.Child(1)))
}

// literal renders an unsigned machine integer in the current domain.
func (tr *Translator) literal(v uint64) string {
	s := strconv.FormatUint(v, 10)
	if tr.real {
		return s + ".0"
	}
	return s
}

// rational renders a float literal exactly as a quotient. The integer
// domain uses truncating div, mirroring its machine-integer reading of
// the whole query.
func (tr *Translator) rational(v float64) string {
	r := new(big.Rat).SetFloat64(v)
	if r == nil {
		panic("solver: non-finite float literal")
	}
	if r.IsInt() {
		if tr.real {
			return r.Num().String() + ".0"
		}
		return r.Num().String()
	}
	op := "div"
	if tr.real {
		op = "/"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "(%s %s %s)", op, r.Num().String(), r.Denom().String())
	return sb.String()
}

// concatRoot returns the single source array of a concat-of-reads, if
// there is one.
func concatRoot(t *expr.Term) (*expr.Array, bool) {
	switch t.Kind() {
	case expr.Read:
		return t.Array(), true
	case expr.Concat:
		left, ok := concatRoot(t.Child(0))
		if !ok {
			return nil, false
		}
		right, ok := concatRoot(t.Child(1))
		if !ok || left != right {
			return nil, false
		}
		return left, true
	}
	return nil, false
}
