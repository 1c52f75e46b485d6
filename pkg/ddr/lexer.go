package ddr

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// TimingLexer tokenizes the C initializer subset used by vendor-generated
// DRAM timing sources.
var TimingLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*|/\*[\s\S]*?\*/`},
	{Name: "Preproc", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},

	{Name: "Int", Pattern: `0[xX][0-9a-fA-F]+[uUlL]*|[0-9]+[uUlL]*`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},

	{Name: "Punct", Pattern: `[{}\[\]();,.=&]`},
})
