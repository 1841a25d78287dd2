package dlgp

import (
	"strings"
	"unicode"
)

// Lexer tokenizes DLGP input
type Lexer struct {
	input   string
	pos     int
	line    int
	col     int
	tokens  []Token
	current int
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
}

// Lex tokenizes the entire input
func (l *Lexer) Lex() error {
	for l.pos < len(l.input) {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.input) {
			break
		}

		startLine := l.line
		startCol := l.col
		emit := func(tt TokenType, value string) {
			l.tokens = append(l.tokens, Token{Type: tt, Value: value, Line: startLine, Col: startCol})
		}

		ch := l.peek()
		switch {
		case ch == '"':
			str, err := l.readString()
			if err != nil {
				return err
			}
			emit(TokenString, str)
		case ch == '<':
			iri, err := l.readDelimited('<', '>', "IRI")
			if err != nil {
				return err
			}
			emit(TokenIRI, iri)
		case ch == '[':
			label, err := l.readDelimited('[', ']', "label")
			if err != nil {
				return err
			}
			emit(TokenLabel, strings.TrimSpace(label))
		case ch == '@':
			l.advance()
			name := l.readIdent()
			if name == "" {
				return l.errorf(startLine, startCol, "expected directive name after '@'")
			}
			emit(TokenDirective, name)
		case ch == '(':
			l.advance()
			emit(TokenLeftParen, "")
		case ch == ')':
			l.advance()
			emit(TokenRightParen, "")
		case ch == ',':
			l.advance()
			emit(TokenComma, "")
		case ch == '.':
			l.advance()
			emit(TokenDot, "")
		case ch == '?':
			l.advance()
			emit(TokenQuestion, "")
		case ch == '!':
			l.advance()
			emit(TokenBang, "")
		case ch == ':' && l.peekAt(1) == '-':
			l.advance()
			l.advance()
			emit(TokenImplies, "")
		case ch == '^' && l.peekAt(1) == '^':
			l.advance()
			l.advance()
			emit(TokenDatatype, "")
		case isDigit(ch) || ((ch == '-' || ch == '+') && isDigit(l.peekAt(1))):
			emit(TokenNumber, l.readNumber())
		case isIdentStart(ch):
			emit(TokenIdent, l.readIdent())
		default:
			return l.errorf(startLine, startCol, "unexpected character '%c'", ch)
		}
	}

	l.tokens = append(l.tokens, Token{
		Type: TokenEOF,
		Line: l.line,
		Col:  l.col,
	})
	return nil
}

// Tokens returns every token read by Lex, EOF included
func (l *Lexer) Tokens() []Token { return l.tokens }

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Line: l.line, Col: l.col}
	}
	token := l.tokens[l.current]
	l.current++
	return token
}

// PeekToken returns the next token without advancing
func (l *Lexer) PeekToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Line: l.line, Col: l.col}
	}
	return l.tokens[l.current]
}

func (l *Lexer) peek() byte { return l.peekAt(0) }

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

// advance moves to the next character
func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

// skipWhitespaceAndComments skips whitespace and % comments
func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.peek()
		if unicode.IsSpace(rune(ch)) {
			l.advance()
		} else if ch == '%' {
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		} else {
			break
		}
	}
}

// readString reads a string literal
func (l *Lexer) readString() (string, error) {
	var result strings.Builder
	line, col := l.line, l.col
	l.advance() // skip opening quote

	for l.pos < len(l.input) {
		ch := l.peek()
		if ch == '"' {
			l.advance()
			return result.String(), nil
		} else if ch == '\\' {
			l.advance()
			if l.pos >= len(l.input) {
				break
			}
			escaped := l.peek()
			switch escaped {
			case 't':
				result.WriteByte('\t')
			case 'r':
				result.WriteByte('\r')
			case 'n':
				result.WriteByte('\n')
			case '\\':
				result.WriteByte('\\')
			case '"':
				result.WriteByte('"')
			default:
				return "", l.errorf(l.line, l.col, "invalid escape sequence '\\%c'", escaped)
			}
			l.advance()
		} else {
			result.WriteByte(ch)
			l.advance()
		}
	}

	return "", l.errorf(line, col, "unterminated string")
}

// readDelimited reads <...> or [...] content; newlines are not allowed
func (l *Lexer) readDelimited(open, closing byte, what string) (string, error) {
	line, col := l.line, l.col
	l.advance() // skip open
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.peek()
		if ch == closing {
			s := l.input[start:l.pos]
			l.advance()
			return s, nil
		}
		if ch == '\n' || ch == open {
			break
		}
		l.advance()
	}
	return "", l.errorf(line, col, "unterminated %s", what)
}

// readIdent reads letters, digits, '_' and prefixed-name colons
func (l *Lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.peek()
		if isIdentPart(ch) || (ch == ':' && l.peekAt(1) != '-') {
			l.advance()
			continue
		}
		break
	}
	return l.input[start:l.pos]
}

// readNumber reads an integer or decimal, with optional sign and exponent
func (l *Lexer) readNumber() string {
	start := l.pos
	if ch := l.peek(); ch == '-' || ch == '+' {
		l.advance()
	}
	for isDigit(l.peek()) {
		l.advance()
	}
	// a dot only belongs to the number when a digit follows
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}
	if ch := l.peek(); ch == 'e' || ch == 'E' {
		next := l.peekAt(1)
		if isDigit(next) || ((next == '-' || next == '+') && isDigit(l.peekAt(2))) {
			l.advance()
			l.advance()
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	return l.input[start:l.pos]
}

func (l *Lexer) errorf(line, col int, format string, args ...interface{}) error {
	return newParseError(line, col, format, args...)
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '-'
}
