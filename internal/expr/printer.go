package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the term as a compact s-expression, mainly for debug
// traces and math-call formula reconstruction in reports.
func (t *Term) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Term) write(sb *strings.Builder) {
	switch t.kind {
	case Constant:
		sb.WriteString(strconv.FormatUint(t.value, 10))
		sb.WriteString(":w")
		sb.WriteString(strconv.Itoa(int(t.width)))
	case FloatConstant:
		sb.WriteString(strconv.FormatFloat(t.Float(), 'g', -1, 64))
	case Read:
		sb.WriteString("(read ")
		sb.WriteString(t.array.Name)
		sb.WriteByte(' ')
		t.kids[0].write(sb)
		sb.WriteByte(')')
	case ZExt, SExt, Trunc:
		fmt.Fprintf(sb, "(%s w%d ", t.kind, t.width)
		t.kids[0].write(sb)
		sb.WriteByte(')')
	default:
		sb.WriteByte('(')
		sb.WriteString(t.kind.String())
		for _, k := range t.kids {
			sb.WriteByte(' ')
			k.write(sb)
		}
		sb.WriteByte(')')
	}
}
