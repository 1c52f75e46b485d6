package ddr

import "github.com/alecthomas/participle/v2/lexer"

// File is a parsed timing source.
type File struct {
	Decls []*Decl `@@*`
}

// Decl is one struct object definition.
// Example: static struct ddrc_cfg_param ddr_ddrc_cfg[] = { ... };
type Decl struct {
	Pos lexer.Position

	Static bool   `@"static"?`
	Const  bool   `@"const"?`
	Type   string `"struct" @Ident`
	Name   string `@Ident`
	Array  bool   `@( "[" Int? "]" )?`
	Value  *Init  `"=" @@ ";"`
}

// Init is a brace-enclosed initializer list.
type Init struct {
	Pos lexer.Position

	Items []*Item `"{" ( @@ ","? )* "}"`
}

// Item is one initializer, optionally designated.
// Example: .drate = 6400
type Item struct {
	Pos lexer.Position

	Field string `( "." @Ident "=" )?`
	Value *Value `@@`
}

// Value is a nested list, an ARRAY_SIZE-style call, a number or a symbol.
type Value struct {
	Init   *Init   `  @@`
	Call   *Call   `| @@`
	Number *string `| @Int`
	Ref    *string `| "&"? @Ident`
}

// Call is a single-argument macro use.
// Example: ARRAY_SIZE(ddr_ddrc_cfg)
type Call struct {
	Func string `@Ident "("`
	Arg  string `@Ident ")"`
}

// Lookup returns the declaration named name, or nil.
func (f *File) Lookup(name string) *Decl {
	for _, d := range f.Decls {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// OfType returns the declarations of a struct type in source order.
func (f *File) OfType(typ string) []*Decl {
	var out []*Decl
	for _, d := range f.Decls {
		if d.Type == typ {
			out = append(out, d)
		}
	}
	return out
}

// Field returns the designated item named name, or nil.
func (i *Init) Field(name string) *Item {
	for _, it := range i.Items {
		if it.Field == name {
			return it
		}
	}
	return nil
}
