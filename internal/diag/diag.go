package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a diagnostic.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Diagnostic is a structured analyzer failure with an error code and
// an optional source position.
type Diagnostic struct {
	Level   Level
	Code    string
	Message string
	File    string
	Line    int
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	var sb strings.Builder
	sb.WriteString(string(d.Level))
	if d.Code != "" {
		sb.WriteString("[")
		sb.WriteString(d.Code)
		sb.WriteString("]")
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	if d.File != "" {
		fmt.Fprintf(&sb, " at %s:%d", d.File, d.Line)
	}
	return sb.String()
}

// Format renders the diagnostic with the CLI color scheme.
func (d *Diagnostic) Format() string {
	levelColor := color.New(color.FgRed, color.Bold)
	switch d.Level {
	case Warning:
		levelColor = color.New(color.FgYellow, color.Bold)
	case Note:
		levelColor = color.New(color.FgCyan)
	}
	header := levelColor.SprintFunc()(fmt.Sprintf("%s[%s]", d.Level, d.Code))
	dim := color.New(color.Faint).SprintFunc()
	if d.File != "" {
		return fmt.Sprintf("%s: %s\n  %s %s:%d", header, d.Message, dim("-->"), d.File, d.Line)
	}
	return fmt.Sprintf("%s: %s", header, d.Message)
}

// MalformedExpression reports an expression the error lookup cannot
// handle. Fatal to the current execution state.
func MalformedExpression(msg string) *Diagnostic {
	return &Diagnostic{Level: Error, Code: CodeMalformedExpression, Message: msg}
}

// SolverTimeout reports an optimizer query that ran out of time. The
// affected bound is reported UNKNOWN and execution continues.
func SolverTimeout(msg string) *Diagnostic {
	return &Diagnostic{Level: Warning, Code: CodeSolverTimeout, Message: msg}
}

// SolverFailure reports an unknown solver result with a non-timeout
// reason.
func SolverFailure(msg string) *Diagnostic {
	return &Diagnostic{Level: Warning, Code: CodeSolverFailure, Message: msg}
}

// SolverAbort reports an unrecognized unknown reason; callers treat
// this as fatal to the process.
func SolverAbort(msg string) *Diagnostic {
	return &Diagnostic{Level: Error, Code: CodeSolverAbort, Message: msg}
}

// UninitializedLoad reports a load that found no stored or declared
// error; the load is modeled as zero and execution continues.
func UninitializedLoad(msg string) *Diagnostic {
	return &Diagnostic{Level: Note, Code: CodeUninitializedLoad, Message: msg}
}

// IsCode reports whether err is a Diagnostic carrying the given code.
func IsCode(err error, code string) bool {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Code == code
	}
	return false
}
