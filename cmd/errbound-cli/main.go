// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"

	"errbound/grammar"
	"errbound/internal/config"
	"errbound/internal/interp"
	"errbound/internal/report"
)

func main() {
	fs := flag.NewFlagSet("errbound", flag.ExitOnError)
	cfg := config.RegisterFlags(fs)
	outputDir := fs.String("output-dir", ".", "Directory for .errors and .reals artifacts")
	echo := fs.Bool("echo", false, "Echo the parsed program before analyzing")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: errbound [flags] <file.eb>")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	path := fs.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	program, err := grammar.ParseSource(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	if *echo {
		fmt.Print(program.String())
	}

	if !cfg.Precision {
		color.Green("✅ Successfully parsed %s (precision analysis off)", path)
		return
	}

	engine := interp.New(*cfg, filepath.Base(path))
	rep, err := engine.Run(program)
	if err != nil {
		color.Red("Analysis failed: %s", err)
		os.Exit(1)
	}

	for _, d := range rep.Diagnostics {
		fmt.Fprintln(os.Stderr, d.Format())
	}
	printSummary(rep)

	testName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := rep.WriteArtifacts(*outputDir, testName, cfg.ComputeRealSolution); err != nil {
		color.Red("Failed to write artifacts: %s", err)
		os.Exit(1)
	}
	color.Green("✅ Wrote %s", filepath.Join(*outputDir, testName+".errors"))
}

func printSummary(rep *report.Report) {
	for _, b := range rep.Bounds {
		header := fmt.Sprintf("%s:%d: %s bound %g", b.File, b.Line, b.Name, b.Bound)
		switch b.Verdict {
		case report.Holds:
			color.Green("%s HOLDS", header)
		case report.Violated:
			color.Red("%s VIOLATED", header)
		default:
			color.Yellow("%s UNKNOWN", header)
		}
		for _, in := range b.Inputs {
			fmt.Printf("  %s %s %g\n", in.Name, in.Kind, in.Value)
		}
	}
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
