package dlgp

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-chase/datalog"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "empty input",
			input: "",
			expected: []Token{
				{Type: TokenEOF, Line: 1, Col: 1},
			},
		},
		{
			name:  "comment only",
			input: "% nothing here\n",
			expected: []Token{
				{Type: TokenEOF, Line: 2, Col: 1},
			},
		},
		{
			name:  "fact",
			input: "p(a, X).",
			expected: []Token{
				{Type: TokenIdent, Value: "p", Line: 1, Col: 1},
				{Type: TokenLeftParen, Line: 1, Col: 2},
				{Type: TokenIdent, Value: "a", Line: 1, Col: 3},
				{Type: TokenComma, Line: 1, Col: 4},
				{Type: TokenIdent, Value: "X", Line: 1, Col: 6},
				{Type: TokenRightParen, Line: 1, Col: 7},
				{Type: TokenDot, Line: 1, Col: 8},
				{Type: TokenEOF, Line: 1, Col: 9},
			},
		},
		{
			name:  "rule without spaces",
			input: "q:-p.",
			expected: []Token{
				{Type: TokenIdent, Value: "q", Line: 1, Col: 1},
				{Type: TokenImplies, Line: 1, Col: 2},
				{Type: TokenIdent, Value: "p", Line: 1, Col: 4},
				{Type: TokenDot, Line: 1, Col: 5},
				{Type: TokenEOF, Line: 1, Col: 6},
			},
		},
		{
			name:  "literals and labels",
			input: "[r 1] -4 3.5 \"s\"^^<xsd:string> @facts",
			expected: []Token{
				{Type: TokenLabel, Value: "r 1", Line: 1, Col: 1},
				{Type: TokenNumber, Value: "-4", Line: 1, Col: 7},
				{Type: TokenNumber, Value: "3.5", Line: 1, Col: 10},
				{Type: TokenString, Value: "s", Line: 1, Col: 14},
				{Type: TokenDatatype, Line: 1, Col: 17},
				{Type: TokenIRI, Value: "xsd:string", Line: 1, Col: 19},
				{Type: TokenDirective, Value: "facts", Line: 1, Col: 32},
				{Type: TokenEOF, Line: 1, Col: 38},
			},
		},
		{
			name:  "number before statement end",
			input: "p(1).",
			expected: []Token{
				{Type: TokenIdent, Value: "p", Line: 1, Col: 1},
				{Type: TokenLeftParen, Line: 1, Col: 2},
				{Type: TokenNumber, Value: "1", Line: 1, Col: 3},
				{Type: TokenRightParen, Line: 1, Col: 4},
				{Type: TokenDot, Line: 1, Col: 5},
				{Type: TokenEOF, Line: 1, Col: 6},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			require.NoError(t, lexer.Lex())
			assert.Equal(t, tt.expected, lexer.Tokens())
		})
	}
}

func TestLexerErrors(t *testing.T) {
	for input, want := range map[string]string{
		`p("abc`:     "1:3: unterminated string",
		"p(<http":    "1:3: unterminated IRI",
		"p(a) # x":   "1:6: unexpected character '#'",
		`p("a\q")`:   `1:6: invalid escape sequence '\q'`,
		"@ facts":    "1:1: expected directive name after '@'",
		"[label\n]p": "1:1: unterminated label",
	} {
		err := NewLexer(input).Lex()
		require.Error(t, err, input)
		assert.Equal(t, want, err.Error(), input)
	}
}

const family = `
% a small family
@facts
person(alice). person(bob), parent(alice, bob).

@rules
[r1] parent(X, Y), person(Y) :- person(X).
ancestor(X, Y) :- parent(X, Y).
[trans] ancestor(X, Z) :- ancestor(X, Y), ancestor(Y, Z).

@queries
[q1] ?(X) :- ancestor(alice, X).
? :- person(bob).
`

func TestParseDocument(t *testing.T) {
	doc, err := Parse(family)
	require.NoError(t, err)

	assert.Equal(t, "person(alice), person(bob), parent(alice, bob)", datalog.FormatAtoms(doc.Facts))

	require.Len(t, doc.Rules, 3)
	assert.Equal(t, "r1", doc.Rules[0].Label)
	assert.Equal(t, []datalog.Term{datalog.NewVariable("Y")}, doc.Rules[0].Existentials())
	assert.Equal(t, "ancestor(X, Y) :- parent(X, Y).", doc.Rules[1].String())
	assert.Equal(t, "trans", doc.Rules[2].Name())

	require.Len(t, doc.Queries, 2)
	assert.Equal(t, "[q1] ?(X) :- ancestor(alice, X).", doc.Queries[0].String())
	assert.True(t, doc.Queries[1].IsBoolean())
}

func TestParseTerms(t *testing.T) {
	doc, err := Parse(`
@prefix ex: <http://example.org/>
@base <http://base.org/>
p(X, _y, alice, <rel>, ex:bob, 42, +7, -1.5e3, "hi\n", "2024"^^<xsd:gYear>, 99999999999999999999).
`)
	require.NoError(t, err)
	require.Len(t, doc.Facts, 1)

	assert.Equal(t, []datalog.Term{
		datalog.NewVariable("X"),
		datalog.NewVariable("_y"),
		datalog.NewConstant("alice"),
		datalog.NewConstant("http://base.org/rel"),
		datalog.NewConstant("http://example.org/bob"),
		datalog.IntLiteral(42),
		datalog.IntLiteral(7),
		datalog.NewLiteral("-1.5e3", datalog.XSDDouble),
		datalog.StringLiteral("hi\n"),
		datalog.NewLiteral("2024", "xsd:gYear"),
		datalog.NewLiteral("99999999999999999999", datalog.XSDInteger),
	}, doc.Facts[0].Terms)
}

func TestParseZeroArityAndConstraints(t *testing.T) {
	doc, err := Parse("raining. wet :- raining. ! :- wet, dry().")
	require.NoError(t, err)
	assert.Equal(t, "raining()", doc.Facts[0].String())
	assert.Equal(t, "wet() :- raining().", doc.Rules[0].String())
	require.Len(t, doc.Constraints, 1)
	assert.Len(t, doc.Constraints[0], 2)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"p(a)", "1:5: expected '.' or ':-', found end of input"},
		{"p(a b).", `1:5: expected ',' or ')', found identifier "b"`},
		{"p(a) :- .", "1:9: expected predicate, found '.'"},
		{"@nope", "1:1: unknown directive @nope"},
		{"@prefix ex <http://x/>", `1:9: malformed prefix "ex"`},
		{"?(X) p(X).", `1:6: expected ':-', found identifier "p"`},
		{"p(,).", "1:3: expected term, found ','"},
	}
	for _, tt := range tests {
		_, err := Parse(tt.input)
		require.Error(t, err, tt.input)
		assert.Equal(t, tt.want, err.Error(), tt.input)

		var pe *ParseError
		assert.True(t, errors.As(err, &pe), tt.input)
	}
}

func TestParseValidationErrors(t *testing.T) {
	_, err := Parse("[bad] p(X, Y) :- p(X).")
	assert.ErrorIs(t, err, datalog.ErrMalformedRule)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Line)

	_, err = Parse("?(Z) :- p(X).")
	assert.ErrorIs(t, err, datalog.ErrMalformedQuery)

	_, err = Parse("q(X) :- p(X).\nr(X) :- q(X, X).")
	assert.ErrorIs(t, err, datalog.ErrMalformedRule)
}

func TestWriterRoundTrip(t *testing.T) {
	doc, err := Parse(family + `
@facts
odd(<Upper Case>, "quote \" and \\", 3, 2.5, "7"^^<xsd:double>, "x"^^<xsd:gYear>, EE0).
`)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteDocument(doc))

	again, err := Parse(buf.String())
	require.NoError(t, err, buf.String())

	assert.Equal(t, datalog.FormatAtoms(doc.Facts), datalog.FormatAtoms(again.Facts))
	for i, a := range doc.Facts {
		assert.True(t, a.Equal(again.Facts[i]), "fact %d: %s", i, a)
	}
	require.Len(t, again.Rules, len(doc.Rules))
	for i := range doc.Rules {
		assert.Equal(t, doc.Rules[i].String(), again.Rules[i].String())
	}
	require.Len(t, again.Queries, len(doc.Queries))
	for i := range doc.Queries {
		assert.Equal(t, doc.Queries[i].String(), again.Queries[i].String())
	}
}

func TestWriterSections(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFacts([]datalog.Atom{datalog.NewAtom("p", datalog.NewConstant("a"))}))
	require.NoError(t, w.WriteFactsFrom(datalog.NewSliceIterator([]datalog.Atom{
		datalog.NewAtom("R", datalog.NewConstant("b"), datalog.NewVariable("EE1")),
	})))
	require.NoError(t, w.WriteRule(datalog.MustRule("r1",
		[]datalog.Atom{datalog.NewAtom("p", datalog.NewVariable("X"))},
		[]datalog.Atom{datalog.NewAtom("q", datalog.NewVariable("X"))})))
	require.NoError(t, w.Flush())

	assert.Equal(t, "@facts\np(a).\nR(b, EE1).\n@rules\n[r1] q(X) :- p(X).\n", buf.String())
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	facts := filepath.Join(dir, "facts.dlgp")
	rules := filepath.Join(dir, "rules.dlgp")
	require.NoError(t, os.WriteFile(facts, []byte("p(a).\n"), 0o644))
	require.NoError(t, os.WriteFile(rules, []byte("q(X) :- p(X).\nq(X) :-\n"), 0o644))

	_, err := ParseFiles(facts, rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.dlgp:3:1:")

	require.NoError(t, os.WriteFile(rules, []byte("q(X) :- p(X).\n"), 0o644))
	doc, err := ParseFiles(facts, rules)
	require.NoError(t, err)
	assert.Len(t, doc.Facts, 1)
	assert.Len(t, doc.Rules, 1)
}
