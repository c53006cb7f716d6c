package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var TraceLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},

		// String literals (bound and math-call names)
		{"String", `"[^"]*"`, nil},

		// Hex literals (must come before Integer so "0x10" does not
		// lex as Integer "0" plus a stray identifier)
		{"Hex", `0[xX][0-9a-fA-F]+`, nil},

		// Float literals (must come before Integer)
		{"Float", `[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?|[0-9]+[eE][-+]?[0-9]+`, nil},

		// Integer literals
		{"Integer", `[0-9]+`, nil},

		// Keywords and Identifiers
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// Operators (multi-character first)
		{"Operator", `(==|!=|<=|>=|[-+*/%<>=])`, nil},

		// Punctuation
		{"Punctuation", `[(){},;]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
