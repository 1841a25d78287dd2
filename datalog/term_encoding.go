package datalog

import (
	"encoding/binary"
	"fmt"
)

// Binary layout
//
//	term: kind(1) | uvarint(len(datatype)) datatype | uvarint(len(id)) id
//	atom: uvarint(len(name)) name | uvarint(arity) | term*arity
//
// The encoding is canonical: equal terms (atoms) have equal encodings. It is
// used for map keys, BadgerDB keys and SQLite BLOB columns.

// AppendTerm appends the encoding of t to b
func AppendTerm(b []byte, t Term) []byte {
	b = append(b, byte(t.kind))
	b = appendString(b, t.datatype)
	return appendString(b, t.id)
}

// EncodeTerm returns the encoding of t
func EncodeTerm(t Term) []byte {
	return AppendTerm(make([]byte, 0, len(t.id)+len(t.datatype)+3), t)
}

// DecodeTerm decodes one term and returns the remaining bytes
func DecodeTerm(data []byte) (Term, []byte, error) {
	if len(data) == 0 {
		return Term{}, nil, fmt.Errorf("term encoding is empty")
	}
	kind := TermKind(data[0])
	if kind < Variable || kind > Literal {
		return Term{}, nil, fmt.Errorf("unknown term kind %d", data[0])
	}
	datatype, rest, err := readString(data[1:])
	if err != nil {
		return Term{}, nil, fmt.Errorf("term datatype: %w", err)
	}
	id, rest, err := readString(rest)
	if err != nil {
		return Term{}, nil, fmt.Errorf("term identifier: %w", err)
	}
	return Term{kind: kind, id: id, datatype: datatype}, rest, nil
}

// TermFromBytes decodes a term that must use all of data
func TermFromBytes(data []byte) (Term, error) {
	t, rest, err := DecodeTerm(data)
	if err != nil {
		return Term{}, err
	}
	if len(rest) != 0 {
		return Term{}, fmt.Errorf("%d trailing bytes after term", len(rest))
	}
	return t, nil
}

// AppendAtom appends the encoding of a to b
func AppendAtom(b []byte, a Atom) []byte {
	b = appendString(b, a.Predicate.Name)
	b = binary.AppendUvarint(b, uint64(len(a.Terms)))
	for _, t := range a.Terms {
		b = AppendTerm(b, t)
	}
	return b
}

// EncodeAtom returns the encoding of a
func EncodeAtom(a Atom) []byte {
	return AppendAtom(make([]byte, 0, 16*(len(a.Terms)+1)), a)
}

// DecodeAtom decodes an atom that must use all of data
func DecodeAtom(data []byte) (Atom, error) {
	name, rest, err := readString(data)
	if err != nil {
		return Atom{}, fmt.Errorf("atom predicate: %w", err)
	}
	arity, n := binary.Uvarint(rest)
	if n <= 0 {
		return Atom{}, fmt.Errorf("atom %s: bad arity", name)
	}
	rest = rest[n:]
	terms := make([]Term, arity)
	for i := range terms {
		terms[i], rest, err = DecodeTerm(rest)
		if err != nil {
			return Atom{}, fmt.Errorf("atom %s term %d: %w", name, i, err)
		}
	}
	if len(rest) != 0 {
		return Atom{}, fmt.Errorf("atom %s: %d trailing bytes", name, len(rest))
	}
	return Atom{Predicate: Predicate{Name: name, Arity: int(arity)}, Terms: terms}, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func readString(data []byte) (string, []byte, error) {
	l, n := binary.Uvarint(data)
	if n <= 0 {
		return "", nil, fmt.Errorf("bad length prefix")
	}
	data = data[n:]
	if uint64(len(data)) < l {
		return "", nil, fmt.Errorf("length %d exceeds %d remaining bytes", l, len(data))
	}
	return string(data[:l]), data[l:], nil
}
