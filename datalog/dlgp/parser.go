// Package dlgp reads and writes the DLGP text format for facts, existential
// rules and conjunctive queries.
//
//	@facts
//	person(alice).
//	@rules
//	[r1] parent(X, Y), person(Y) :- person(X).
//	@queries
//	?(X) :- parent(alice, X).
//
// Identifiers starting with an uppercase letter or '_' are variables, other
// identifiers and <IRI>s are constants, numbers and quoted strings are
// literals. Statements are classified by their shape; section directives
// are accepted but not enforced.
package dlgp

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wbrown/janus-chase/datalog"
)

// ParseError is a syntax or validation error at a position of the input
type ParseError struct {
	Line int
	Col  int
	Msg  string
	Err  error
}

func newParseError(line, col int, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d:%d: %s: %v", e.Line, e.Col, e.Msg, e.Err)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document is the content of one or more DLGP inputs
type Document struct {
	Facts   []datalog.Atom
	Rules   datalog.RuleSet
	Queries []*datalog.ConjunctiveQuery

	// Negative constraints (! :- body.) are read but never checked
	Constraints [][]datalog.Atom
}

// Merge appends the statements of other
func (d *Document) Merge(other *Document) {
	d.Facts = append(d.Facts, other.Facts...)
	d.Rules = append(d.Rules, other.Rules...)
	d.Queries = append(d.Queries, other.Queries...)
	d.Constraints = append(d.Constraints, other.Constraints...)
}

// Parse parses a DLGP document
func Parse(input string) (*Document, error) {
	lexer := NewLexer(input)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	return NewParser(lexer).Parse()
}

// ParseReader parses a DLGP document read from r
func ParseReader(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dlgp: %w", err)
	}
	return Parse(string(data))
}

// ParseFiles parses and merges several files; errors are prefixed with the
// file name
func ParseFiles(paths ...string) (*Document, error) {
	doc := &Document{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		d, err := Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s:%w", path, err)
		}
		doc.Merge(d)
	}
	if err := doc.Rules.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Parser parses DLGP tokens into a Document
type Parser struct {
	lexer    *Lexer
	prefixes map[string]string
	base     string
	doc      *Document
}

// NewParser creates a new parser
func NewParser(lexer *Lexer) *Parser {
	return &Parser{
		lexer:    lexer,
		prefixes: make(map[string]string),
		doc:      &Document{},
	}
}

// Parse reads statements until EOF
func (p *Parser) Parse() (*Document, error) {
	for p.lexer.PeekToken().Type != TokenEOF {
		var err error
		if p.lexer.PeekToken().Type == TokenDirective {
			err = p.readDirective()
		} else {
			err = p.readStatement()
		}
		if err != nil {
			return nil, err
		}
	}
	if err := p.doc.Rules.Validate(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	token := p.lexer.NextToken()
	if token.Type != tt {
		return token, newParseError(token.Line, token.Col, "expected %s, found %s", tt, describe(token))
	}
	return token, nil
}

func describe(t Token) string {
	if t.Value != "" {
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	}
	return t.Type.String()
}

// readDirective handles @facts, @rules, @queries, @constraints, @prefix,
// @base, @top and @una
func (p *Parser) readDirective() error {
	token := p.lexer.NextToken()
	switch token.Value {
	case "facts", "rules", "queries", "constraints", "una":
		return nil
	case "top":
		// @top names the universal predicate; it has no effect here
		next := p.lexer.NextToken()
		if next.Type != TokenIdent && next.Type != TokenIRI {
			return newParseError(next.Line, next.Col, "expected predicate after @top")
		}
		return nil
	case "base":
		iri, err := p.expect(TokenIRI)
		if err != nil {
			return err
		}
		p.base = iri.Value
		return nil
	case "prefix":
		name, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		if !strings.HasSuffix(name.Value, ":") || strings.Count(name.Value, ":") != 1 {
			return newParseError(name.Line, name.Col, "malformed prefix %q", name.Value)
		}
		iri, err := p.expect(TokenIRI)
		if err != nil {
			return err
		}
		p.prefixes[strings.TrimSuffix(name.Value, ":")] = iri.Value
		return nil
	default:
		return newParseError(token.Line, token.Col, "unknown directive @%s", token.Value)
	}
}

// readStatement reads one fact list, rule, query or negative constraint
func (p *Parser) readStatement() error {
	start := p.lexer.PeekToken()
	label := ""
	if start.Type == TokenLabel {
		label = p.lexer.NextToken().Value
	}

	switch p.lexer.PeekToken().Type {
	case TokenQuestion:
		return p.readQuery(label, start)
	case TokenBang:
		p.lexer.NextToken()
		if _, err := p.expect(TokenImplies); err != nil {
			return err
		}
		body, err := p.readAtoms()
		if err != nil {
			return err
		}
		p.doc.Constraints = append(p.doc.Constraints, body)
		_, err = p.expect(TokenDot)
		return err
	}

	atoms, err := p.readAtoms()
	if err != nil {
		return err
	}
	next := p.lexer.NextToken()
	switch next.Type {
	case TokenDot:
		for _, a := range atoms {
			if err := a.Validate(); err != nil {
				return &ParseError{Line: start.Line, Col: start.Col, Msg: "invalid fact", Err: err}
			}
		}
		p.doc.Facts = append(p.doc.Facts, atoms...)
		return nil
	case TokenImplies:
		body, err := p.readAtoms()
		if err != nil {
			return err
		}
		if _, err := p.expect(TokenDot); err != nil {
			return err
		}
		rule, err := datalog.NewRule(label, body, atoms)
		if err != nil {
			return &ParseError{Line: start.Line, Col: start.Col, Msg: "invalid rule", Err: err}
		}
		p.doc.Rules = append(p.doc.Rules, rule)
		return nil
	default:
		return newParseError(next.Line, next.Col, "expected '.' or ':-', found %s", describe(next))
	}
}

// readQuery reads ?(X, ...) :- body. or ? :- body.
func (p *Parser) readQuery(label string, start Token) error {
	p.lexer.NextToken() // ?
	answer := []datalog.Term{}
	if p.lexer.PeekToken().Type == TokenLeftParen {
		terms, err := p.readTermList()
		if err != nil {
			return err
		}
		answer = terms
	}
	if _, err := p.expect(TokenImplies); err != nil {
		return err
	}
	body, err := p.readAtoms()
	if err != nil {
		return err
	}
	if _, err := p.expect(TokenDot); err != nil {
		return err
	}
	q, err := datalog.NewConjunctiveQuery(label, body, answer)
	if err != nil {
		return &ParseError{Line: start.Line, Col: start.Col, Msg: "invalid query", Err: err}
	}
	p.doc.Queries = append(p.doc.Queries, q)
	return nil
}

// readAtoms reads a comma separated, non-empty list of atoms
func (p *Parser) readAtoms() ([]datalog.Atom, error) {
	var atoms []datalog.Atom
	for {
		a, err := p.readAtom()
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, a)
		if p.lexer.PeekToken().Type != TokenComma {
			return atoms, nil
		}
		p.lexer.NextToken()
	}
}

// readAtom reads p(t1, ..., tn); the parentheses are optional for arity 0
func (p *Parser) readAtom() (datalog.Atom, error) {
	token := p.lexer.NextToken()
	var name string
	switch token.Type {
	case TokenIdent:
		name = p.expandName(token.Value)
	case TokenIRI:
		name = p.resolve(token.Value)
	default:
		return datalog.Atom{}, newParseError(token.Line, token.Col, "expected predicate, found %s", describe(token))
	}

	if p.lexer.PeekToken().Type != TokenLeftParen {
		return datalog.NewAtom(name), nil
	}
	terms, err := p.readTermList()
	if err != nil {
		return datalog.Atom{}, err
	}
	return datalog.NewAtom(name, terms...), nil
}

// readTermList reads ( t1, ..., tn ), possibly empty
func (p *Parser) readTermList() ([]datalog.Term, error) {
	if _, err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}
	var terms []datalog.Term
	if p.lexer.PeekToken().Type == TokenRightParen {
		p.lexer.NextToken()
		return terms, nil
	}
	for {
		t, err := p.readTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)

		next := p.lexer.NextToken()
		switch next.Type {
		case TokenComma:
		case TokenRightParen:
			return terms, nil
		default:
			return nil, newParseError(next.Line, next.Col, "expected ',' or ')', found %s", describe(next))
		}
	}
}

func (p *Parser) readTerm() (datalog.Term, error) {
	token := p.lexer.NextToken()
	switch token.Type {
	case TokenIdent:
		if isVariableName(token.Value) {
			return datalog.NewVariable(token.Value), nil
		}
		return datalog.NewConstant(p.expandName(token.Value)), nil

	case TokenIRI:
		return datalog.NewConstant(p.resolve(token.Value)), nil

	case TokenNumber:
		if strings.ContainsAny(token.Value, ".eE") {
			if _, err := strconv.ParseFloat(token.Value, 64); err != nil {
				return datalog.Term{}, newParseError(token.Line, token.Col, "invalid number %q", token.Value)
			}
			return datalog.NewLiteral(token.Value, datalog.XSDDouble), nil
		}
		i, err := strconv.ParseInt(token.Value, 10, 64)
		if err != nil {
			// out of int64 range, keep the lexical form
			return datalog.NewLiteral(strings.TrimPrefix(token.Value, "+"), datalog.XSDInteger), nil
		}
		return datalog.IntLiteral(i), nil

	case TokenString:
		if p.lexer.PeekToken().Type != TokenDatatype {
			return datalog.StringLiteral(token.Value), nil
		}
		p.lexer.NextToken()
		dt := p.lexer.NextToken()
		switch dt.Type {
		case TokenIRI:
			return datalog.NewLiteral(token.Value, p.resolve(dt.Value)), nil
		case TokenIdent:
			return datalog.NewLiteral(token.Value, dt.Value), nil
		default:
			return datalog.Term{}, newParseError(dt.Line, dt.Col, "expected datatype, found %s", describe(dt))
		}

	default:
		return datalog.Term{}, newParseError(token.Line, token.Col, "expected term, found %s", describe(token))
	}
}

// expandName replaces a declared prefix of pfx:local by its IRI
func (p *Parser) expandName(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		if iri, ok := p.prefixes[name[:i]]; ok {
			return iri + name[i+1:]
		}
	}
	return name
}

// resolve applies @base to relative IRIs
func (p *Parser) resolve(iri string) string {
	if p.base == "" || strings.Contains(iri, ":") {
		return iri
	}
	return p.base + iri
}

func isVariableName(s string) bool {
	if s == "" {
		return false
	}
	ch := s[0]
	return ch == '_' || (ch >= 'A' && ch <= 'Z')
}
