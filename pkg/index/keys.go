package index

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// KeyDeriver maps triples and lookup patterns to index names
type KeyDeriver interface {
	// IndexNames returns every index t belongs to. An empty result means
	// the triple is not indexed.
	IndexNames(t rdf.Triple) []string

	ForSubject(s rdf.Term) string
	ForPredicate(p rdf.Term) string
	ForObject(o rdf.Term) string
	ForSubjectPredicate(s, p rdf.Term) string
	ForPredicateObject(p, o rdf.Term) string
	ForSubjectObject(s, o rdf.Term) string
	ForTriple(t rdf.Triple) string
}

// Pattern names the triple components an index is keyed by
type Pattern string

const (
	PatternSubject          Pattern = "s"
	PatternPredicate        Pattern = "p"
	PatternObject           Pattern = "o"
	PatternSubjectPredicate Pattern = "sp"
	PatternPredicateObject  Pattern = "po"
	PatternSubjectObject    Pattern = "so"
	PatternTriple           Pattern = "spo"
)

// AllPatterns lists every pattern in canonical order
var AllPatterns = []Pattern{
	PatternSubject,
	PatternPredicate,
	PatternObject,
	PatternSubjectPredicate,
	PatternPredicateObject,
	PatternSubjectObject,
	PatternTriple,
}

// ParsePattern accepts a pattern name such as "s" or "po"
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPatterns {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown index pattern %q", ErrInvalidArgument, s)
}

// ParsePatterns parses a list of pattern names
func ParsePatterns(names []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(names))
	for _, name := range names {
		p, err := ParsePattern(name)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// terms projects a triple onto the pattern's components
func (p Pattern) terms(t rdf.Triple) []rdf.Term {
	switch p {
	case PatternSubject:
		return []rdf.Term{t.Subject}
	case PatternPredicate:
		return []rdf.Term{t.Predicate}
	case PatternObject:
		return []rdf.Term{t.Object}
	case PatternSubjectPredicate:
		return []rdf.Term{t.Subject, t.Predicate}
	case PatternPredicateObject:
		return []rdf.Term{t.Predicate, t.Object}
	case PatternSubjectObject:
		return []rdf.Term{t.Subject, t.Object}
	default:
		return []rdf.Term{t.Subject, t.Predicate, t.Object}
	}
}

// HashKeyDeriver names indexes "<pattern>-<hash>", where hash is the
// 128-bit xxh3 of the pattern's terms in N-Triples form.
type HashKeyDeriver struct {
	patterns []Pattern
}

// NewHashKeyDeriver enables the given patterns, or all of them when none are given
func NewHashKeyDeriver(patterns ...Pattern) (*HashKeyDeriver, error) {
	if len(patterns) == 0 {
		patterns = AllPatterns
	}

	seen := make(map[Pattern]bool, len(patterns))
	enabled := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		if _, err := ParsePattern(string(p)); err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		enabled = append(enabled, p)
	}
	return &HashKeyDeriver{patterns: enabled}, nil
}

// Patterns returns the enabled patterns
func (d *HashKeyDeriver) Patterns() []Pattern {
	out := make([]Pattern, len(d.patterns))
	copy(out, d.patterns)
	return out
}

func (d *HashKeyDeriver) IndexNames(t rdf.Triple) []string {
	names := make([]string, len(d.patterns))
	for i, p := range d.patterns {
		names[i] = IndexName(p, p.terms(t)...)
	}
	return names
}

func (d *HashKeyDeriver) ForSubject(s rdf.Term) string {
	return IndexName(PatternSubject, s)
}

func (d *HashKeyDeriver) ForPredicate(p rdf.Term) string {
	return IndexName(PatternPredicate, p)
}

func (d *HashKeyDeriver) ForObject(o rdf.Term) string {
	return IndexName(PatternObject, o)
}

func (d *HashKeyDeriver) ForSubjectPredicate(s, p rdf.Term) string {
	return IndexName(PatternSubjectPredicate, s, p)
}

func (d *HashKeyDeriver) ForPredicateObject(p, o rdf.Term) string {
	return IndexName(PatternPredicateObject, p, o)
}

func (d *HashKeyDeriver) ForSubjectObject(s, o rdf.Term) string {
	return IndexName(PatternSubjectObject, s, o)
}

func (d *HashKeyDeriver) ForTriple(t rdf.Triple) string {
	return IndexName(PatternTriple, t.Subject, t.Predicate, t.Object)
}

// IndexName hashes terms into the index name for pattern p.
// Terms are joined the way an N-Triples statement separates them.
func IndexName(p Pattern, terms ...rdf.Term) string {
	parts := make([]string, len(terms))
	for i, term := range terms {
		parts[i] = term.String()
	}
	hash := xxh3.Hash128([]byte(strings.Join(parts, " ")))
	return fmt.Sprintf("%s-%016x%016x", p, hash.Hi, hash.Lo)
}
