// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"log"
	"os"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"errbound/internal/config"
	"errbound/internal/lsp"
)

const lsName = "errbound" // Name identifier for the language server

var (
	version = "0.0.1"        // Server version
	handler protocol.Handler // Protocol handler instance (wired up below)
)

func main() {
	fs := flag.NewFlagSet(lsName, flag.ExitOnError)
	cfg := config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	// Configure debug logging (1 = debug level, nil = default logger)
	commonlog.Configure(1, nil)

	errboundHandler := lsp.NewHandler(*cfg)

	handler = protocol.Handler{
		Initialize:            errboundHandler.Initialize,
		Initialized:           errboundHandler.Initialized,
		Shutdown:              errboundHandler.Shutdown,
		SetTrace:              errboundHandler.SetTrace,
		TextDocumentDidOpen:   errboundHandler.TextDocumentDidOpen,
		TextDocumentDidClose:  errboundHandler.TextDocumentDidClose,
		TextDocumentDidChange: errboundHandler.TextDocumentDidChange,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Printf("Starting errbound LSP server %s...", version)

	// Serve over standard input/output, the transport editors use.
	if err := s.RunStdio(); err != nil {
		log.Println("Error starting errbound LSP server:", err)
		os.Exit(1)
	}
}
