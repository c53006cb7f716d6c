package expr

import "math"

// Expression terms form an immutable, hash-consed DAG shared by every
// execution state. Terms are only ever created through a Factory, which
// guarantees that structurally equal terms are pointer equal.

// Kind identifies the operator of a term.
type Kind uint8

const (
	Constant Kind = iota
	FloatConstant
	Read
	Concat
	Add
	Sub
	Mul
	UDiv
	SDiv
	URem
	LShr
	ZExt
	SExt
	Trunc
	Not
	And
	Or
	Eq
	Ne
	Ult
	Ule
	Ugt
	Uge
	Slt
	Sle
	Select
)

var kindNames = map[Kind]string{
	Constant:      "const",
	FloatConstant: "fconst",
	Read:          "read",
	Concat:        "concat",
	Add:           "add",
	Sub:           "sub",
	Mul:           "mul",
	UDiv:          "udiv",
	SDiv:          "sdiv",
	URem:          "urem",
	LShr:          "lshr",
	ZExt:          "zext",
	SExt:          "sext",
	Trunc:         "trunc",
	Not:           "not",
	And:           "and",
	Or:            "or",
	Eq:            "eq",
	Ne:            "ne",
	Ult:           "ult",
	Ule:           "ule",
	Ugt:           "ugt",
	Uge:           "uge",
	Slt:           "slt",
	Sle:           "sle",
	Select:        "select",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsComparison reports whether the kind produces a boolean term.
func (k Kind) IsComparison() bool {
	switch k {
	case Eq, Ne, Ult, Ule, Ugt, Uge, Slt, Sle:
		return true
	}
	return false
}

// Width is a bit width. Boolean terms have width 1.
type Width uint

const (
	Bool  Width = 1
	Int8  Width = 8
	Int16 Width = 16
	Int32 Width = 32
	Int64 Width = 64
)

// Array describes a symbolic input as a named sequence of fixed-width
// elements. Arrays are minted by the Factory and unique per name.
type Array struct {
	Name      string
	ElemWidth Width
	Size      uint
}

// Term is a node of the expression DAG. Zero children for constants and
// nothing else; Read terms carry their source Array.
type Term struct {
	id    int
	kind  Kind
	width Width
	kids  []*Term
	value uint64
	array *Array
}

// ID returns the factory-assigned identifier, increasing in creation order.
func (t *Term) ID() int { return t.id }

// Kind returns the operator of the term.
func (t *Term) Kind() Kind { return t.kind }

// Width returns the bit width of the term's value.
func (t *Term) Width() Width { return t.width }

// NumChildren returns the number of operand terms.
func (t *Term) NumChildren() int { return len(t.kids) }

// Child returns the i-th operand term.
func (t *Term) Child(i int) *Term { return t.kids[i] }

// Children returns the operand slice. Callers must not mutate it.
func (t *Term) Children() []*Term { return t.kids }

// Value returns the payload of a Constant term, masked to its width.
func (t *Term) Value() uint64 { return t.value }

// Float returns the payload of a FloatConstant term.
func (t *Term) Float() float64 { return math.Float64frombits(t.value) }

// Array returns the source array of a Read term, nil otherwise.
func (t *Term) Array() *Array { return t.array }

// IsConstant reports whether the term is an integer constant.
func (t *Term) IsConstant() bool { return t.kind == Constant }

// IsZero reports whether the term is the integer constant zero.
func (t *Term) IsZero() bool { return t.kind == Constant && t.value == 0 }

// SignedValue returns a Constant's payload sign-extended from its width.
func (t *Term) SignedValue() int64 {
	if t.width >= 64 {
		return int64(t.value)
	}
	shift := 64 - uint(t.width)
	return int64(t.value<<shift) >> shift
}

// mask returns the value truncated to w bits.
func mask(v uint64, w Width) uint64 {
	if w >= 64 {
		return v
	}
	return v & ((1 << uint(w)) - 1)
}
