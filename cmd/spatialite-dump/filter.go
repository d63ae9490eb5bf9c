package main

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/quadrant-gis/spatialite-blob"
	coreerrors "github.com/quadrant-gis/spatialite-blob/core/errors"
)

// filterGrammar is the participle grammar for "dump --filter" expressions.
// Examples: "kind=Polygon", "kind=LineString AND compressed=true",
// "srid=4326 AND hasz=true".
//
//nolint:govet // participle grammar tags are not standard struct tags
type filterGrammar struct {
	Clauses []*filterClause `@@ ("AND" @@)*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type filterClause struct {
	Field string `@Ident`
	Op    string `@Op`
	Value string `@(Ident | Int)`
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Op", Pattern: `!=|=`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var filterParser = participle.MustBuild[filterGrammar](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
)

// compiledFilter is a parsed --filter expression ready to test against a
// decoded geometry's tag descriptor and SRID.
type compiledFilter struct {
	clauses []*filterClause
}

// parseFilter compiles a --filter expression. An empty expr matches
// everything.
func parseFilter(expr string) (*compiledFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &compiledFilter{}, nil
	}
	g, err := filterParser.ParseString("", expr)
	if err != nil {
		return nil, &coreerrors.ParseError{Format: "filter expression", Message: expr, Err: err}
	}
	return &compiledFilter{clauses: g.Clauses}, nil
}

// Matches reports whether desc/srid satisfies every clause in the filter.
func (f *compiledFilter) Matches(desc spatialite.Descriptor, srid int32) bool {
	for _, c := range f.clauses {
		if !clauseMatches(c, desc, srid) {
			return false
		}
	}
	return true
}

func clauseMatches(c *filterClause, desc spatialite.Descriptor, srid int32) bool {
	var actual string
	switch strings.ToLower(c.Field) {
	case "kind":
		actual = desc.BaseKind.String()
	case "srid":
		actual = strconv.Itoa(int(srid))
	case "hasz":
		actual = strconv.FormatBool(desc.HasZ)
	case "hasm":
		actual = strconv.FormatBool(desc.HasM)
	case "compressed":
		actual = strconv.FormatBool(desc.Compressed)
	default:
		return false
	}

	equal := strings.EqualFold(actual, c.Value)
	if c.Op == "!=" {
		return !equal
	}
	return equal
}
