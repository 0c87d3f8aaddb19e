package blueprint

import (
	"fmt"

	"github.com/latticegql/lattice/internal/language"
)

// Violation is one compile-time defect, traced back to the SDL position that
// caused it.
type Violation struct {
	Message string
	File    string
	Line    int
	Column  int
}

// ValidationError aggregates every Violation collected during a Compile
// call; compilation never short-circuits on the first error.
type ValidationError []*Violation

func (e ValidationError) Error() string {
	msg := fmt.Sprintf("blueprint: %d violation(s):\n", len(e))
	for _, v := range e {
		line := "- " + v.Message
		if v.File != "" {
			line += fmt.Sprintf(" %s:%d:%d", v.File, v.Line, v.Column)
		}
		msg += line + "\n"
	}
	return msg
}

func violationAt(pos *language.Position, format string, a ...any) *Violation {
	v := &Violation{Message: fmt.Sprintf(format, a...)}
	if pos != nil && pos.Src != nil {
		v.File = pos.Src.Name
		v.Line = pos.Line
		v.Column = pos.Column
	}
	return v
}

func (b *builder) addViolation(v ...*Violation) {
	b.violations = append(b.violations, v...)
}
