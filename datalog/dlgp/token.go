package dlgp

import "fmt"

// TokenType represents the type of DLGP token
type TokenType int

const (
	TokenEOF       TokenType = iota
	TokenIdent               // p, alice, X, _y, ex:name
	TokenIRI                 // <http://...>
	TokenString              // "..."
	TokenNumber              // 42, -1, 3.5
	TokenDirective           // @facts, @rules, @queries, @prefix, ...
	TokenLabel               // [label]
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenDot
	TokenImplies  // :-
	TokenQuestion // ?
	TokenDatatype // ^^
	TokenBang     // !
)

// Token represents a lexical token in DLGP
type Token struct {
	Type  TokenType
	Value string
	Line  int
	Col   int
}

// String returns a string representation of the token
func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return fmt.Sprintf("EOF[%d:%d]", t.Line, t.Col)
	case TokenIdent:
		return fmt.Sprintf("Ident[%d:%d]:%s", t.Line, t.Col, t.Value)
	case TokenIRI:
		return fmt.Sprintf("IRI[%d:%d]:<%s>", t.Line, t.Col, t.Value)
	case TokenString:
		return fmt.Sprintf("String[%d:%d]:%q", t.Line, t.Col, t.Value)
	case TokenNumber:
		return fmt.Sprintf("Number[%d:%d]:%s", t.Line, t.Col, t.Value)
	case TokenDirective:
		return fmt.Sprintf("Directive[%d:%d]:@%s", t.Line, t.Col, t.Value)
	case TokenLabel:
		return fmt.Sprintf("Label[%d:%d]:%s", t.Line, t.Col, t.Value)
	default:
		return fmt.Sprintf("%s[%d:%d]", t.Type, t.Line, t.Col)
	}
}

// String returns the punctuation a token type stands for
func (tt TokenType) String() string {
	switch tt {
	case TokenEOF:
		return "end of input"
	case TokenIdent:
		return "identifier"
	case TokenIRI:
		return "IRI"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenDirective:
		return "directive"
	case TokenLabel:
		return "label"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenComma:
		return "','"
	case TokenDot:
		return "'.'"
	case TokenImplies:
		return "':-'"
	case TokenQuestion:
		return "'?'"
	case TokenDatatype:
		return "'^^'"
	case TokenBang:
		return "'!'"
	default:
		return fmt.Sprintf("TokenType(%d)", int(tt))
	}
}
