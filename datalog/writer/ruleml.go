package writer

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/wbrown/janus-chase/datalog"
)

const (
	rulemlNS = "http://ruleml.org/spec"
	xsdNS    = "http://www.w3.org/2001/XMLSchema"
	xsiNS    = "http://www.w3.org/2001/XMLSchema-instance"
	rulemlRN = `href="http://deliberation.ruleml.org/1.01/relaxng/datalogplus_min_relaxed.rnc"`
)

// RuleMLWriter writes Datalog+ RuleML 1.01. Facts become <Assert> blocks,
// rules universally quantified <Implies> with an <Exists> head when they
// have existential variables, queries <Query> blocks. Close must be called
// to end the document.
type RuleMLWriter struct {
	enc *xml.Encoder

	// variables of facts are labelled nulls and are written as individuals
	inFact bool
	closed bool
}

// NewRuleMLWriter writes the XML prolog and opens the RuleML element
func NewRuleMLWriter(w io.Writer) (*RuleMLWriter, error) {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	rw := &RuleMLWriter{enc: enc}

	err := rw.tokens(
		xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)},
		xml.ProcInst{Target: "xml-model", Inst: []byte(rulemlRN)},
		xml.StartElement{Name: xml.Name{Local: "RuleML"}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: rulemlNS},
			{Name: xml.Name{Local: "xmlns:xsd"}, Value: xsdNS},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: xsiNS},
		}},
	)
	if err != nil {
		return nil, err
	}
	return rw, nil
}

// WriteComment writes an XML comment
func (w *RuleMLWriter) WriteComment(text string) error {
	// "--" is not allowed inside XML comments
	return w.tokens(xml.Comment(" " + strings.ReplaceAll(text, "--", "- -") + " "))
}

// WriteAtom asserts a single fact
func (w *RuleMLWriter) WriteAtom(a datalog.Atom) error {
	return w.WriteFacts([]datalog.Atom{a})
}

// WriteFacts asserts atoms in one <Assert> block
func (w *RuleMLWriter) WriteFacts(atoms []datalog.Atom) error {
	if err := w.open("Assert"); err != nil {
		return err
	}
	w.inFact = true
	defer func() { w.inFact = false }()
	for _, a := range atoms {
		if err := w.atom(a); err != nil {
			return err
		}
	}
	return w.close("Assert")
}

// WriteFactsFrom asserts every atom of an iterator and closes it
func (w *RuleMLWriter) WriteFactsFrom(it datalog.AtomIterator) error {
	defer it.Close()
	var atoms []datalog.Atom
	for it.Next() {
		atoms = append(atoms, it.Atom())
	}
	if err := it.Err(); err != nil {
		return err
	}
	return w.WriteFacts(atoms)
}

// WriteRule asserts a rule
func (w *RuleMLWriter) WriteRule(r *datalog.Rule) error {
	existentials := make(map[datalog.Term]struct{}, len(r.Existentials()))
	for _, v := range r.Existentials() {
		existentials[v] = struct{}{}
	}
	var universal []datalog.Term
	for _, v := range r.Variables() {
		if _, ok := existentials[v]; !ok {
			universal = append(universal, v)
		}
	}

	steps := []func() error{
		func() error { return w.open("Assert") },
		func() error { return w.label(r.Label) },
		func() error { return w.open("Forall") },
		func() error { return w.terms(universal) },
		func() error { return w.open("Implies") },
		func() error { return w.open("if") },
		func() error { return w.conjunction(r.Body, true) },
		func() error { return w.close("if") },
		func() error { return w.open("then") },
	}
	if len(r.Existentials()) > 0 {
		steps = append(steps,
			func() error { return w.open("Exists") },
			func() error { return w.terms(r.Existentials()) },
			func() error { return w.conjunction(r.Head, false) },
			func() error { return w.close("Exists") },
		)
	} else {
		steps = append(steps, func() error { return w.conjunction(r.Head, false) })
	}
	steps = append(steps,
		func() error { return w.close("then") },
		func() error { return w.close("Implies") },
		func() error { return w.close("Forall") },
		func() error { return w.close("Assert") },
	)
	return run(steps)
}

// WriteQuery writes a query; the body variables that are not answer
// variables are existentially quantified
func (w *RuleMLWriter) WriteQuery(q *datalog.ConjunctiveQuery) error {
	answer := make(map[datalog.Term]struct{}, len(q.Answer))
	for _, v := range q.Answer {
		answer[v] = struct{}{}
	}
	var exists []datalog.Term
	for _, v := range datalog.VariablesOf(q.Body) {
		if _, ok := answer[v]; !ok {
			exists = append(exists, v)
		}
	}

	return run([]func() error{
		func() error { return w.open("Query") },
		func() error { return w.label(q.Label) },
		func() error { return w.open("Exists") },
		func() error { return w.terms(exists) },
		func() error { return w.conjunction(q.Body, true) },
		func() error { return w.close("Exists") },
		func() error { return w.close("Query") },
	})
}

// Close ends the RuleML element and flushes the output
func (w *RuleMLWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.close("RuleML"); err != nil {
		return err
	}
	return w.enc.Close()
}

func run(steps []func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (w *RuleMLWriter) tokens(tokens ...xml.Token) error {
	if w.closed {
		return fmt.Errorf("ruleml: write after close")
	}
	for _, t := range tokens {
		if err := w.enc.EncodeToken(t); err != nil {
			return fmt.Errorf("ruleml: %w", err)
		}
	}
	return w.enc.Flush()
}

func (w *RuleMLWriter) open(name string) error {
	return w.tokens(xml.StartElement{Name: xml.Name{Local: name}})
}

func (w *RuleMLWriter) close(name string) error {
	if err := w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}}); err != nil {
		return fmt.Errorf("ruleml: %w", err)
	}
	return w.enc.Flush()
}

// element writes <name attrs>text</name>
func (w *RuleMLWriter) element(name, text string, attrs ...xml.Attr) error {
	start := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
	toks := []xml.Token{start}
	if text != "" {
		toks = append(toks, xml.CharData(text))
	}
	return w.tokens(append(toks, start.End())...)
}

func (w *RuleMLWriter) label(label string) error {
	if label == "" {
		return nil
	}
	return w.WriteComment(label)
}

// conjunction wraps several atoms in <And>; a body is always wrapped
func (w *RuleMLWriter) conjunction(atoms []datalog.Atom, always bool) error {
	wrap := always || len(atoms) > 1
	if wrap {
		if err := w.open("And"); err != nil {
			return err
		}
	}
	for _, a := range atoms {
		if err := w.atom(a); err != nil {
			return err
		}
	}
	if wrap {
		return w.close("And")
	}
	return nil
}

func (w *RuleMLWriter) atom(a datalog.Atom) error {
	if err := w.open("Atom"); err != nil {
		return err
	}
	if isIRI(a.Predicate.Name) {
		if err := w.element("Rel", "", xml.Attr{Name: xml.Name{Local: "iri"}, Value: a.Predicate.Name}); err != nil {
			return err
		}
	} else if err := w.element("Rel", a.Predicate.Name); err != nil {
		return err
	}
	if err := w.terms(a.Terms); err != nil {
		return err
	}
	return w.close("Atom")
}

func (w *RuleMLWriter) terms(terms []datalog.Term) error {
	for _, t := range terms {
		if err := w.term(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *RuleMLWriter) term(t datalog.Term) error {
	switch {
	case t.IsVariable() && !w.inFact:
		return w.element("Var", t.Identifier())
	case t.Kind() == datalog.Literal:
		return w.element("Data", t.Identifier(),
			xml.Attr{Name: xml.Name{Local: "xsi:type"}, Value: t.Datatype()})
	case isIRI(t.Identifier()):
		return w.element("Ind", "", xml.Attr{Name: xml.Name{Local: "iri"}, Value: t.Identifier()})
	default:
		return w.element("Ind", t.Identifier())
	}
}

func isIRI(s string) bool {
	return strings.Contains(s, "://")
}
