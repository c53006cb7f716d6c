package lsp

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"errbound/internal/report"
)

// ConvertParseError transforms a trace-language parse failure into an
// LSP diagnostic at the offending position.
func ConvertParseError(err error) []protocol.Diagnostic {
	pe, ok := err.(participle.Error)
	if !ok {
		return []protocol.Diagnostic{diagnosticAtLine(1, protocol.DiagnosticSeverityError, err.Error())}
	}
	pos := pe.Position()
	line := pos.Line
	if line < 1 {
		line = 1
	}
	column := pos.Column
	if column < 1 {
		column = 1
	}
	return []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line - 1), Character: uint32(column - 1)},
			End:   protocol.Position{Line: uint32(line - 1), Character: uint32(column + 5)},
		},
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("errbound-parser"),
		Message:  pe.Message(),
	}}
}

// ConvertReport transforms an analysis report into diagnostics:
// violated bounds are errors at the bound's source line, unknown
// verdicts and analysis notes are warnings.
func ConvertReport(rep *report.Report) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	for _, b := range rep.Bounds {
		switch b.Verdict {
		case report.Violated:
			diagnostics = append(diagnostics, diagnosticAtLine(b.Line,
				protocol.DiagnosticSeverityError,
				fmt.Sprintf("error bound %g violated for %q", b.Bound, b.Name)))
		case report.Unknown:
			diagnostics = append(diagnostics, diagnosticAtLine(b.Line,
				protocol.DiagnosticSeverityWarning,
				fmt.Sprintf("error bound %g for %q could not be decided", b.Bound, b.Name)))
		}
	}
	for _, d := range rep.Diagnostics {
		diagnostics = append(diagnostics, diagnosticAtLine(d.Line,
			protocol.DiagnosticSeverityWarning, d.Message))
	}
	return diagnostics
}

func diagnosticAtLine(line int, severity protocol.DiagnosticSeverity, message string) protocol.Diagnostic {
	if line < 1 {
		line = 1
	}
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line - 1), Character: 0},
			End:   protocol.Position{Line: uint32(line - 1), Character: 80},
		},
		Severity: ptrSeverity(severity),
		Source:   ptrString("errbound"),
		Message:  message,
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity {
	return &s
}

func ptrString(s string) *string {
	return &s
}
