package dlgp

import (
	"bufio"
	"io"
	"strings"

	"github.com/wbrown/janus-chase/datalog"
)

// Writer renders facts, rules and queries as DLGP. A section directive is
// written whenever the kind of statement changes.
type Writer struct {
	w       *bufio.Writer
	section string
}

// NewWriter creates a writer; call Flush when done
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFacts writes one fact statement per atom
func (w *Writer) WriteFacts(atoms []datalog.Atom) error {
	w.enter("facts")
	for _, a := range atoms {
		w.w.WriteString(FormatAtom(a))
		w.w.WriteString(".\n")
	}
	return nil
}

// WriteFactsFrom writes every atom of an iterator and closes it
func (w *Writer) WriteFactsFrom(it datalog.AtomIterator) error {
	defer it.Close()
	w.enter("facts")
	for it.Next() {
		w.w.WriteString(FormatAtom(it.Atom()))
		w.w.WriteString(".\n")
	}
	return it.Err()
}

// WriteRule writes [label] head :- body.
func (w *Writer) WriteRule(r *datalog.Rule) error {
	w.enter("rules")
	w.label(r.Label)
	w.w.WriteString(formatAtoms(r.Head))
	w.w.WriteString(" :- ")
	w.w.WriteString(formatAtoms(r.Body))
	w.w.WriteString(".\n")
	return nil
}

// WriteQuery writes [label] ?(X, ...) :- body.
func (w *Writer) WriteQuery(q *datalog.ConjunctiveQuery) error {
	w.enter("queries")
	w.label(q.Label)
	w.w.WriteString("?(")
	for i, t := range q.Answer {
		if i > 0 {
			w.w.WriteString(", ")
		}
		w.w.WriteString(FormatTerm(t))
	}
	w.w.WriteString(") :- ")
	w.w.WriteString(formatAtoms(q.Body))
	w.w.WriteString(".\n")
	return nil
}

// WriteDocument writes facts, then rules, then queries
func (w *Writer) WriteDocument(doc *Document) error {
	if len(doc.Facts) > 0 {
		w.WriteFacts(doc.Facts)
	}
	for _, r := range doc.Rules {
		w.WriteRule(r)
	}
	for _, q := range doc.Queries {
		w.WriteQuery(q)
	}
	if len(doc.Constraints) > 0 {
		w.enter("constraints")
		for _, c := range doc.Constraints {
			w.w.WriteString("! :- ")
			w.w.WriteString(formatAtoms(c))
			w.w.WriteString(".\n")
		}
	}
	return w.Flush()
}

// Flush writes any buffered output
func (w *Writer) Flush() error { return w.w.Flush() }

func (w *Writer) enter(section string) {
	if w.section == section {
		return
	}
	w.section = section
	w.w.WriteString("@")
	w.w.WriteString(section)
	w.w.WriteString("\n")
}

func (w *Writer) label(label string) {
	if label == "" {
		return
	}
	w.w.WriteString("[")
	w.w.WriteString(strings.NewReplacer("]", "", "\n", " ").Replace(label))
	w.w.WriteString("] ")
}

// FormatAtom renders an atom so that Parse reads it back unchanged
func FormatAtom(a datalog.Atom) string {
	var b strings.Builder
	b.WriteString(formatPredicate(a.Predicate.Name))
	b.WriteByte('(')
	for i, t := range a.Terms {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(FormatTerm(t))
	}
	b.WriteByte(')')
	return b.String()
}

func formatAtoms(atoms []datalog.Atom) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = FormatAtom(a)
	}
	return strings.Join(parts, ", ")
}

// FormatTerm renders a term in DLGP syntax
func FormatTerm(t datalog.Term) string {
	switch t.Kind() {
	case datalog.Variable:
		return t.Identifier()
	case datalog.Constant:
		return formatName(t.Identifier())
	case datalog.Literal:
		v := t.Identifier()
		switch t.Datatype() {
		case datalog.XSDString:
			return quote(v)
		case datalog.XSDInteger:
			if isNumber(v) && !strings.ContainsAny(v, ".eE") {
				return v
			}
		case datalog.XSDDouble:
			if isNumber(v) && strings.ContainsAny(v, ".eE") {
				return v
			}
		}
		return quote(v) + "^^<" + t.Datatype() + ">"
	default:
		return t.String()
	}
}

// formatName leaves lowercase identifiers bare and wraps anything else in
// angle brackets
func formatName(s string) string {
	if s != "" && s[0] >= 'a' && s[0] <= 'z' && isPlain(s) {
		return s
	}
	return "<" + s + ">"
}

// formatPredicate also leaves uppercase identifiers bare; the position is
// unambiguous
func formatPredicate(s string) string {
	if s != "" && s[0] != '_' && isIdentStart(s[0]) && isPlain(s) {
		return s
	}
	return "<" + s + ">"
}

func isPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// isNumber reports whether the lexer reads s back as a single number token
func isNumber(s string) bool {
	l := NewLexer(s)
	if l.Lex() != nil {
		return false
	}
	tokens := l.Tokens()
	return len(tokens) == 2 && tokens[0].Type == TokenNumber
}
