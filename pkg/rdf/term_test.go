package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedNode_Equals(t *testing.T) {
	node1 := NewNamedNode("http://example.org/resource")
	node2 := NewNamedNode("http://example.org/resource")
	node3 := NewNamedNode("http://example.org/different")

	assert.True(t, node1.Equals(node2))
	assert.False(t, node1.Equals(node3))
	assert.False(t, node1.Equals(NewLiteral("http://example.org/resource")))
	assert.Equal(t, "<http://example.org/resource>", node1.String())
}

func TestBlankNode_Equals(t *testing.T) {
	assert.True(t, NewBlankNode("b1").Equals(NewBlankNode("b1")))
	assert.False(t, NewBlankNode("b1").Equals(NewBlankNode("b2")))
	assert.Equal(t, "_:b1", NewBlankNode("b1").String())
}

func TestLiteral_String(t *testing.T) {
	tests := []struct {
		name     string
		literal  *Literal
		expected string
	}{
		{"plain", NewLiteral("Alice"), `"Alice"`},
		{"language", NewLiteralWithLanguage("chat", "fr"), `"chat"@fr`},
		{"typed", NewIntegerLiteral(42), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"xsd string is plain", NewLiteralWithDatatype("x", XSDString), `"x"`},
		{"escapes", NewLiteral("a \"quoted\"\nline\\"), `"a \"quoted\"\nline\\"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.literal.String())
		})
	}
}

func TestLiteral_Equals(t *testing.T) {
	assert.True(t, NewLiteral("x").Equals(NewLiteralWithDatatype("x", XSDString)))
	assert.False(t, NewLiteral("x").Equals(NewLiteralWithLanguage("x", "en")))
	assert.False(t, NewIntegerLiteral(1).Equals(NewLiteral("1")))
	assert.False(t, NewLiteral("x").Equals(NewNamedNode("x:y")))
}

func TestTriple_Equals(t *testing.T) {
	a := NewTriple(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/p"), NewLiteral("b"))
	b := NewTriple(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/p"), NewLiteral("b"))
	c := NewTriple(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/p"), NewLiteral("c"))

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.Equal(t, `<http://example.org/a> <http://example.org/p> "b" .`, a.String())
	assert.True(t, Triple{}.IsZero())
	assert.False(t, a.IsZero())
}

func TestTriple_Validate(t *testing.T) {
	iri := NewNamedNode("http://example.org/x")

	require.NoError(t, NewTriple(iri, iri, NewLiteral("v")).Validate())
	require.NoError(t, NewTriple(NewBlankNode("b"), iri, iri).Validate())

	assert.Error(t, NewTriple(NewLiteral("s"), iri, iri).Validate())
	assert.Error(t, NewTriple(iri, NewBlankNode("p"), iri).Validate())
	assert.Error(t, NewTriple(iri, nil, iri).Validate())
}

func TestValidateTerm(t *testing.T) {
	tests := []struct {
		name  string
		term  Term
		valid bool
	}{
		{"iri", NewNamedNode("http://example.org/x"), true},
		{"iri with space", NewNamedNode("http://example.org/x y"), true},
		{"relative iri", NewNamedNode("x"), false},
		{"blank node", NewBlankNode("b0"), true},
		{"blank node with space", NewBlankNode("b 0"), false},
		{"blank node ending in dot", NewBlankNode("b0."), false},
		{"empty blank node", NewBlankNode(""), false},
		{"plain literal", NewLiteral("any \"text\"\n"), true},
		{"language", NewLiteralWithLanguage("v", "en-GB"), true},
		{"language with space", NewLiteralWithLanguage("v", "en GB"), false},
		{"language starting with digit", NewLiteralWithLanguage("v", "1en"), false},
		{"relative datatype", NewLiteralWithDatatype("v", NewNamedNode("int")), false},
		{"nil", nil, false},
		{"typed nil iri", (*NamedNode)(nil), false},
		{"typed nil blank node", (*BlankNode)(nil), false},
		{"typed nil literal", (*Literal)(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTerm(tt.term)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTerm)
			}
		})
	}
}

func TestTriple_ValidateTypedNil(t *testing.T) {
	iri := NewNamedNode("http://example.org/x")
	err := NewTriple(iri, (*NamedNode)(nil), iri).Validate()
	require.ErrorIs(t, err, ErrInvalidTerm)
	assert.Contains(t, err.Error(), "predicate")
}

func TestNamedNode_StringEscapes(t *testing.T) {
	node := NewNamedNode("http://example.org/a b>\\c\"d\ne")
	assert.Equal(t, `<http://example.org/a\u0020b\u003E\u005Cc\u0022d\u000Ae>`, node.String())
	assert.Equal(t, "<http://example.org/é>", NewNamedNode("http://example.org/é").String())
}
