package rdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformed is wrapped by every error the Decoder reports for input it cannot decode
var ErrMalformed = errors.New("malformed N-Triples")

// MaxLineSize bounds a single N-Triples statement
const MaxLineSize = 16 * 1024 * 1024

// Decoder is a pull-style N-Triples decoder.
// It reads one statement per line and never buffers more than one line ahead.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
	pending string
	hasNext bool
	err     error
}

// NewDecoder creates a decoder over r
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Decoder{scanner: scanner}
}

// EOF reports whether the stream holds no further statements.
// A read error is not EOF: Next reports it instead.
func (d *Decoder) EOF() bool {
	return !d.fill() && d.err == nil
}

// Next decodes the next triple. It returns io.EOF once the stream is exhausted.
func (d *Decoder) Next() (Triple, error) {
	if !d.fill() {
		if d.err != nil {
			return Triple{}, d.err
		}
		return Triple{}, io.EOF
	}
	d.hasNext = false

	p := &lineParser{input: d.pending, length: len(d.pending)}
	triple, err := p.parseTriple()
	if err != nil {
		return Triple{}, fmt.Errorf("%w: line %d: %v", ErrMalformed, d.line, err)
	}
	return triple, nil
}

// Line returns the number of the last line read
func (d *Decoder) Line() int {
	return d.line
}

// fill buffers the next statement line, skipping blank lines and comments
func (d *Decoder) fill() bool {
	if d.hasNext {
		return true
	}
	if d.err != nil {
		return false
	}
	for d.scanner.Scan() {
		d.line++
		text := strings.TrimSpace(d.scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		d.pending = text
		d.hasNext = true
		return true
	}
	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			d.err = fmt.Errorf("%w: line %d: statement exceeds %d bytes", ErrMalformed, d.line+1, MaxLineSize)
		} else {
			d.err = fmt.Errorf("read N-Triples: %w", err)
		}
	}
	return false
}

// Encoder writes triples as N-Triples lines
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates an encoder writing to w. Call Flush when done.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one triple
func (e *Encoder) Encode(t Triple) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := e.w.WriteString(t.String()); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

// Flush writes any buffered data to the underlying writer
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// ParseTerm parses a single term in N-Triples syntax, e.g. <http://x>, _:b0 or "v"@en
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty term", ErrMalformed)
	}
	p := &lineParser{input: s, length: len(s)}
	term, err := p.parseTerm()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p.skipWhitespace()
	if p.pos != p.length {
		return nil, fmt.Errorf("%w: trailing input after term at position %d", ErrMalformed, p.pos)
	}
	return term, nil
}

// lineParser parses one N-Triples statement
type lineParser struct {
	input  string
	pos    int
	length int
}

// parseTriple parses: subject predicate object .
func (p *lineParser) parseTriple() (Triple, error) {
	subject, err := p.parseTerm()
	if err != nil {
		return Triple{}, fmt.Errorf("error parsing subject: %w", err)
	}
	if subject.Type() == TermTypeLiteral {
		return Triple{}, fmt.Errorf("literal cannot be a subject")
	}
	p.skipWhitespace()

	predicate, err := p.parseTerm()
	if err != nil {
		return Triple{}, fmt.Errorf("error parsing predicate: %w", err)
	}
	if predicate.Type() != TermTypeNamedNode {
		return Triple{}, fmt.Errorf("predicate must be an IRI")
	}
	p.skipWhitespace()

	object, err := p.parseTerm()
	if err != nil {
		return Triple{}, fmt.Errorf("error parsing object: %w", err)
	}
	p.skipWhitespace()

	if p.pos >= p.length || p.input[p.pos] != '.' {
		return Triple{}, fmt.Errorf("expected '.' at end of triple")
	}
	p.pos++
	p.skipWhitespace()

	// Trailing comment is allowed
	if p.pos < p.length && p.input[p.pos] != '#' {
		return Triple{}, fmt.Errorf("unexpected input after '.' at position %d", p.pos)
	}

	return NewTriple(subject, predicate, object), nil
}

func (p *lineParser) skipWhitespace() {
	for p.pos < p.length && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

// parseTerm parses an RDF term (IRI, blank node, or literal)
func (p *lineParser) parseTerm() (Term, error) {
	if p.pos >= p.length {
		return nil, fmt.Errorf("unexpected end of statement")
	}

	switch ch := p.input[p.pos]; ch {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	default:
		return nil, fmt.Errorf("unexpected character at position %d: %c", p.pos, ch)
	}
}

// parseIRI parses an IRI enclosed in < >
func (p *lineParser) parseIRI() (string, error) {
	if p.pos >= p.length || p.input[p.pos] != '<' {
		return "", fmt.Errorf("expected '<' at start of IRI")
	}
	p.pos++

	var result strings.Builder
	for p.pos < p.length && p.input[p.pos] != '>' {
		ch := p.input[p.pos]

		if ch == '\\' {
			if p.pos+1 < p.length && (p.input[p.pos+1] == 'u' || p.input[p.pos+1] == 'U') {
				escaped, err := p.processUnicodeEscape()
				if err != nil {
					return "", err
				}
				result.WriteString(escaped)
				continue
			}
			return "", fmt.Errorf("invalid escape sequence in IRI at position %d", p.pos)
		}

		// IRIs cannot contain: space, <, >, ", {, }, |, ^, ` or control characters
		if ch == ' ' || ch == '<' || ch == '"' || ch == '{' || ch == '}' ||
			ch == '|' || ch == '^' || ch == '`' || ch <= 0x1F {
			return "", fmt.Errorf("invalid character in IRI: %q at position %d", ch, p.pos)
		}

		result.WriteByte(ch)
		p.pos++
	}

	if p.pos >= p.length {
		return "", fmt.Errorf("unclosed IRI")
	}
	p.pos++

	iri := result.String()
	if !strings.Contains(iri, ":") {
		return "", fmt.Errorf("relative IRI not allowed: %s", iri)
	}
	return iri, nil
}

// parseBlankNode parses _:label
func (p *lineParser) parseBlankNode() (Term, error) {
	if p.pos+1 >= p.length || p.input[p.pos+1] != ':' {
		return nil, fmt.Errorf("expected '_:' at start of blank node")
	}
	p.pos += 2

	start := p.pos
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '<' || ch == '"' {
			break
		}
		p.pos++
	}
	// A trailing '.' terminates the statement rather than the label
	for p.pos > start && p.input[p.pos-1] == '.' {
		p.pos--
	}

	label := p.input[start:p.pos]
	if label == "" {
		return nil, fmt.Errorf("empty blank node label")
	}
	return NewBlankNode(label), nil
}

// parseLiteral parses a quoted literal with optional language tag or datatype
func (p *lineParser) parseLiteral() (Term, error) {
	p.pos++ // skip opening '"'

	var value strings.Builder
	for p.pos < p.length && p.input[p.pos] != '"' {
		ch := p.input[p.pos]
		if ch != '\\' {
			value.WriteByte(ch)
			p.pos++
			continue
		}

		if p.pos+1 >= p.length {
			return nil, fmt.Errorf("unexpected end of input in escape sequence")
		}
		switch esc := p.input[p.pos+1]; esc {
		case 'n':
			value.WriteByte('\n')
		case 't':
			value.WriteByte('\t')
		case 'r':
			value.WriteByte('\r')
		case 'b':
			value.WriteByte('\b')
		case 'f':
			value.WriteByte('\f')
		case '"':
			value.WriteByte('"')
		case '\'':
			value.WriteByte('\'')
		case '\\':
			value.WriteByte('\\')
		case 'u', 'U':
			escaped, err := p.processUnicodeEscape()
			if err != nil {
				return nil, err
			}
			value.WriteString(escaped)
			continue
		default:
			return nil, fmt.Errorf("invalid escape sequence \\%c at position %d", esc, p.pos)
		}
		p.pos += 2
	}

	if p.pos >= p.length {
		return nil, fmt.Errorf("unclosed string literal")
	}
	p.pos++ // skip closing '"'

	if p.pos < p.length && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		for p.pos < p.length {
			ch := p.input[p.pos]
			if !(ch == '-' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')) {
				break
			}
			p.pos++
		}
		lang := p.input[start:p.pos]
		if lang == "" || !isLetter(lang[0]) {
			return nil, fmt.Errorf("invalid language tag %q", lang)
		}
		return NewLiteralWithLanguage(value.String(), lang), nil
	}

	if strings.HasPrefix(p.input[p.pos:], "^^") {
		p.pos += 2
		datatype, err := p.parseIRI()
		if err != nil {
			return nil, fmt.Errorf("error parsing datatype: %w", err)
		}
		return NewLiteralWithDatatype(value.String(), NewNamedNode(datatype)), nil
	}

	return NewLiteral(value.String()), nil
}

// processUnicodeEscape processes \uXXXX or \UXXXXXXXX escape sequences
func (p *lineParser) processUnicodeEscape() (string, error) {
	p.pos++ // skip '\'
	digits := 4
	if p.input[p.pos] == 'U' {
		digits = 8
	}
	p.pos++

	if p.pos+digits > p.length {
		return "", fmt.Errorf("incomplete Unicode escape sequence")
	}
	hex := p.input[p.pos : p.pos+digits]
	p.pos += digits

	codePoint, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "", fmt.Errorf("invalid hex digits in Unicode escape: %s", hex)
	}
	r := rune(codePoint)
	if !utf8.ValidRune(r) {
		return "", fmt.Errorf("escape \\%c%s is not a valid Unicode code point", p.input[p.pos-digits-1], hex)
	}
	return string(r), nil
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
