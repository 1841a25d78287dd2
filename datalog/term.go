package datalog

import (
	"fmt"
	"strconv"
	"strings"
)

// TermKind distinguishes the three kinds of terms
type TermKind uint8

const (
	Variable TermKind = iota + 1
	Constant
	Literal
)

// String returns the kind name
func (k TermKind) String() string {
	switch k {
	case Variable:
		return "variable"
	case Constant:
		return "constant"
	case Literal:
		return "literal"
	default:
		return fmt.Sprintf("TermKind(%d)", uint8(k))
	}
}

// Well-known literal datatypes
const (
	XSDString  = "xsd:string"
	XSDInteger = "xsd:integer"
	XSDDouble  = "xsd:double"
	XSDBoolean = "xsd:boolean"
)

// Term is a variable, a constant or a typed literal.
// Terms are small comparable values: == is structural equality and a Term
// can be used directly as a map key.
type Term struct {
	kind     TermKind
	id       string // identifier for variables/constants, lexical value for literals
	datatype string // only set for literals
}

// NewVariable creates a variable term
func NewVariable(id string) Term {
	return Term{kind: Variable, id: id}
}

// NewConstant creates a constant term
func NewConstant(id string) Term {
	return Term{kind: Constant, id: id}
}

// NewLiteral creates a literal term with the given lexical value and datatype
func NewLiteral(value, datatype string) Term {
	if datatype == "" {
		datatype = XSDString
	}
	return Term{kind: Literal, id: value, datatype: datatype}
}

// IntLiteral creates an xsd:integer literal
func IntLiteral(i int64) Term { return NewLiteral(strconv.FormatInt(i, 10), XSDInteger) }

// StringLiteral creates an xsd:string literal
func StringLiteral(s string) Term { return NewLiteral(s, XSDString) }

// Kind returns the term kind. The zero Term has kind 0 and is invalid.
func (t Term) Kind() TermKind { return t.kind }

// IsVariable reports whether t is a variable
func (t Term) IsVariable() bool { return t.kind == Variable }

// IsValid reports whether t was built by one of the constructors
func (t Term) IsValid() bool {
	return t.kind >= Variable && t.kind <= Literal
}

// Identifier returns the identifier of a variable or constant, or the
// lexical value of a literal
func (t Term) Identifier() string { return t.id }

// Datatype returns the datatype of a literal, "" otherwise
func (t Term) Datatype() string { return t.datatype }

// String renders the term in DLGP-like syntax
func (t Term) String() string {
	switch t.kind {
	case Variable:
		return t.id
	case Constant:
		return t.id
	case Literal:
		switch t.datatype {
		case XSDInteger, XSDDouble, XSDBoolean:
			return t.id
		case XSDString:
			return strconv.Quote(t.id)
		default:
			return strconv.Quote(t.id) + "^^<" + t.datatype + ">"
		}
	default:
		return "<invalid>"
	}
}

// Compare orders terms by kind, then datatype, then identifier
func (t Term) Compare(other Term) int {
	if t.kind != other.kind {
		if t.kind < other.kind {
			return -1
		}
		return 1
	}
	if c := strings.Compare(t.datatype, other.datatype); c != 0 {
		return c
	}
	return strings.Compare(t.id, other.id)
}
