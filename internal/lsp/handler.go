package lsp

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"errbound/grammar"
	"errbound/internal/config"
	"errbound/internal/interp"
	"errbound/internal/report"
	"errbound/internal/solver"
)

// Handler implements the LSP server handlers for trace programs: it
// parses on every change and, when precision analysis is enabled, runs
// the analysis and publishes its bound verdicts and notes as
// diagnostics.
type Handler struct {
	mu      sync.RWMutex
	cfg     config.Config
	runner  solver.Runner
	content map[string]string
	reports map[string]*report.Report
}

// NewHandler creates a handler analyzing with the given configuration.
func NewHandler(cfg config.Config) *Handler {
	return &Handler{
		cfg:     cfg,
		content: make(map[string]string),
		reports: make(map[string]*report.Report),
	}
}

// SetRunner substitutes the solver process for tests.
func (h *Handler) SetRunner(r solver.Runner) { h.runner = r }

// Initialize responds to the client's initialize request and
// advertises the server's capabilities.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("LSP Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
		},
	}, nil
}

// Initialized is called after the client completes initialization.
func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("errbound LSP initialized")
	return nil
}

// Shutdown handles the LSP shutdown request.
func (h *Handler) Shutdown(ctx *glsp.Context) error {
	log.Println("errbound LSP shutdown")
	return nil
}

// SetTrace handles trace level changes; tracing is not used.
func (h *Handler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// TextDocumentDidOpen analyzes a freshly opened file.
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("Opened file: %s\n", params.TextDocument.URI)

	text := params.TextDocument.Text
	if text == "" {
		path, err := uriToPath(params.TextDocument.URI)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", path, err)
		}
		text = string(raw)
	}
	sendDiagnosticNotification(ctx, params.TextDocument.URI, h.Analyze(params.TextDocument.URI, text))
	return nil
}

// TextDocumentDidClose drops cached state for the file.
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, string(params.TextDocument.URI))
	delete(h.reports, string(params.TextDocument.URI))
	return nil
}

// TextDocumentDidChange re-analyzes on every full-document change.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			sendDiagnosticNotification(ctx, params.TextDocument.URI,
				h.Analyze(params.TextDocument.URI, whole.Text))
		}
	}
	return nil
}

// Analyze parses and, when precision analysis is enabled, runs it; the
// returned diagnostics cover parse failures, violated and undecided
// bounds, and analysis notes.
func (h *Handler) Analyze(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	h.mu.Lock()
	h.content[string(uri)] = text
	h.mu.Unlock()

	program, err := grammar.ParseSource(string(uri), text)
	if err != nil {
		return ConvertParseError(err)
	}

	if !h.cfg.Precision {
		return []protocol.Diagnostic{}
	}

	engine := interp.New(h.cfg, displayName(uri))
	if h.runner != nil {
		engine.Bridge().SetRunner(h.runner)
	}
	rep, err := engine.Run(program)
	if err != nil {
		return []protocol.Diagnostic{diagnosticAtLine(1, protocol.DiagnosticSeverityError, err.Error())}
	}

	h.mu.Lock()
	h.reports[string(uri)] = rep
	h.mu.Unlock()

	return ConvertReport(rep)
}

// Report returns the last analysis report for a file.
func (h *Handler) Report(uri protocol.DocumentUri) (*report.Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.reports[string(uri)]
	return r, ok
}

func displayName(uri protocol.DocumentUri) string {
	path, err := uriToPath(uri)
	if err != nil {
		return string(uri)
	}
	return filepath.Base(path)
}

// uriToPath converts a file URI to a platform-local path.
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path
	if path == "" {
		return rawURI, nil
	}

	// On Windows, remove leading slash (e.g., /C:/...) -> C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	if ctx == nil {
		return
	}
	log.Printf("Sending %d diagnostics for %s\n", len(diagnostics), uri)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
