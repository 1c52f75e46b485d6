package ddr

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// Parser reads timing sources.
type Parser struct {
	parser *participle.Parser[File]
}

// NewParser creates a timing source parser.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[File](
		participle.Lexer(TimingLexer),
		participle.Elide("Comment", "Preproc", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// Parse parses a timing source from a reader.
func (p *Parser) Parse(r io.Reader) (*File, error) {
	f, err := p.parser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return f, nil
}

// ParseString parses a timing source from a string.
func (p *Parser) ParseString(input string) (*File, error) {
	f, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return f, nil
}

// ParseFile parses a timing source from a file.
func (p *Parser) ParseFile(filename string) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	f, err := p.parser.Parse(filename, file)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", filename, err)
	}
	return f, nil
}

// ParseTiming parses and resolves a timing source.
func ParseTiming(r io.Reader) (*Timing, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	f, err := p.Parse(r)
	if err != nil {
		return nil, err
	}
	return Resolve(f)
}

// LoadTiming parses and resolves a timing source file.
func LoadTiming(filename string) (*Timing, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	f, err := p.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	t, err := Resolve(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return t, nil
}

//go:embed data/lpddr5_timing.c
var defaultSource string

// DefaultTiming returns a fresh copy of the built-in LPDDR5 configuration.
func DefaultTiming() (*Timing, error) {
	return ParseTiming(strings.NewReader(defaultSource))
}
