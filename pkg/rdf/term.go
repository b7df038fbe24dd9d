package rdf

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTerm is wrapped by Validate for terms that have no N-Triples form
var ErrInvalidTerm = errors.New("invalid term")

// TermType represents the type of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "iri"
	case TermTypeBlankNode:
		return "bnode"
	case TermTypeLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Term represents an RDF term (IRI, blank node, or literal).
// String returns the N-Triples form of the term, which is also its identity.
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

// String writes the IRI with UCHAR escapes for the characters N-Triples
// does not allow inside <>
func (n *NamedNode) String() string {
	var sb strings.Builder
	sb.Grow(len(n.IRI) + 2)
	sb.WriteByte('<')
	escapeIRI(&sb, n.IRI)
	sb.WriteByte('>')
	return sb.String()
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return "_:" + b.ID
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal
type Literal struct {
	Value    string
	Language string     // for language-tagged strings
	Datatype *NamedNode // for typed literals
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: language}
}

func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

func (l *Literal) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	escapeLiteral(&sb, l.Value)
	sb.WriteByte('"')
	if l.Language != "" {
		sb.WriteByte('@')
		sb.WriteString(l.Language)
	} else if l.Datatype != nil && l.Datatype.IRI != XSDString.IRI {
		sb.WriteString("^^")
		sb.WriteString(l.Datatype.String())
	}
	return sb.String()
}

func (l *Literal) Equals(other Term) bool {
	ol, ok := other.(*Literal)
	if !ok {
		return false
	}
	return l.String() == ol.String()
}

func escapeIRI(sb *strings.Builder, iri string) {
	for i := 0; i < len(iri); i++ {
		ch := iri[i]
		if iriNeedsEscape(ch) {
			fmt.Fprintf(sb, `\u%04X`, ch)
			continue
		}
		sb.WriteByte(ch)
	}
}

func iriNeedsEscape(ch byte) bool {
	switch ch {
	case '<', '>', '"', '{', '}', '|', '^', '`', '\\':
		return true
	}
	return ch <= 0x20 || ch == 0x7F
}

// escapeLiteral writes value using the N-Triples ECHAR escapes
func escapeLiteral(sb *strings.Builder, value string) {
	for i := 0; i < len(value); i++ {
		switch ch := value[i]; ch {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(ch)
		}
	}
}

// Triple represents an RDF triple (subject, predicate, object).
// Triples are values: copy them freely and never mutate a shared one.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func NewTriple(subject, predicate, object Term) Triple {
	return Triple{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

// Equals reports structural equality of two triples
func (t Triple) Equals(other Triple) bool {
	return termEquals(t.Subject, other.Subject) &&
		termEquals(t.Predicate, other.Predicate) &&
		termEquals(t.Object, other.Object)
}

// IsZero reports whether no component of the triple is set
func (t Triple) IsZero() bool {
	return t.Subject == nil && t.Predicate == nil && t.Object == nil
}

// String returns the triple as one N-Triples statement (without newline)
func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", termString(t.Subject), termString(t.Predicate), termString(t.Object))
}

func termEquals(a, b Term) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}

func termString(t Term) string {
	if t == nil {
		return "<>"
	}
	return t.String()
}

// Validate checks that every component is set, has an N-Triples form and
// sits in a position N-Triples allows
func (t Triple) Validate() error {
	positions := []struct {
		name string
		term Term
	}{
		{"subject", t.Subject},
		{"predicate", t.Predicate},
		{"object", t.Object},
	}
	for _, pos := range positions {
		if err := ValidateTerm(pos.term); err != nil {
			return fmt.Errorf("%s: %w", pos.name, err)
		}
	}
	if t.Subject.Type() == TermTypeLiteral {
		return fmt.Errorf("%w: literal cannot be a subject: %s", ErrInvalidTerm, t)
	}
	if t.Predicate.Type() != TermTypeNamedNode {
		return fmt.Errorf("%w: predicate must be an IRI: %s", ErrInvalidTerm, t)
	}
	return nil
}

// ValidateTerm reports whether term can be written as N-Triples and read
// back unchanged. Nil terms, including typed nil pointers, are invalid.
func ValidateTerm(term Term) error {
	switch v := term.(type) {
	case nil:
		return fmt.Errorf("%w: missing term", ErrInvalidTerm)
	case *NamedNode:
		if v == nil {
			return fmt.Errorf("%w: missing term", ErrInvalidTerm)
		}
		return validateIRI(v.IRI)
	case *BlankNode:
		if v == nil {
			return fmt.Errorf("%w: missing term", ErrInvalidTerm)
		}
		return validateBlankLabel(v.ID)
	case *Literal:
		if v == nil {
			return fmt.Errorf("%w: missing term", ErrInvalidTerm)
		}
		if v.Language != "" {
			return validateLanguage(v.Language)
		}
		if v.Datatype != nil {
			return validateIRI(v.Datatype.IRI)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported term type %T", ErrInvalidTerm, term)
	}
}

func validateIRI(iri string) error {
	if !strings.Contains(iri, ":") {
		return fmt.Errorf("%w: relative IRI %q", ErrInvalidTerm, iri)
	}
	return nil
}

// validateBlankLabel accepts the labels the decoder reads back whole
func validateBlankLabel(label string) error {
	if label == "" {
		return fmt.Errorf("%w: empty blank node label", ErrInvalidTerm)
	}
	if strings.HasSuffix(label, ".") {
		return fmt.Errorf("%w: blank node label %q ends with '.'", ErrInvalidTerm, label)
	}
	for i := 0; i < len(label); i++ {
		if ch := label[i]; ch <= 0x20 || ch == '<' || ch == '"' {
			return fmt.Errorf("%w: blank node label %q contains %q", ErrInvalidTerm, label, ch)
		}
	}
	return nil
}

func validateLanguage(lang string) error {
	if !isLetter(lang[0]) {
		return fmt.Errorf("%w: language tag %q", ErrInvalidTerm, lang)
	}
	for i := 1; i < len(lang); i++ {
		if ch := lang[i]; !isLetter(ch) && ch != '-' && (ch < '0' || ch > '9') {
			return fmt.Errorf("%w: language tag %q", ErrInvalidTerm, lang)
		}
	}
	return nil
}

// Helper functions for common XSD datatypes
var (
	XSDString  = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")
	XSDInteger = NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")
	XSDDouble  = NewNamedNode("http://www.w3.org/2001/XMLSchema#double")
	XSDBoolean = NewNamedNode("http://www.w3.org/2001/XMLSchema#boolean")
)

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(fmt.Sprintf("%d", value), XSDInteger)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(fmt.Sprintf("%t", value), XSDBoolean)
}
