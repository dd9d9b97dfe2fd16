package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restrict(t *testing.T, base string, facets ...FacetValidator) *SimpleType {
	t.Helper()
	b := GetBuiltinType(base)
	require.NotNil(t, b)
	return &SimpleType{Base: b, Facets: facets, state: resolved}
}

func TestFacets(t *testing.T) {
	pattern, err := NewPatternFacet(`[A-Z]{2}\d{3}`, `X+`)
	require.NoError(t, err)
	nameStart, err := NewPatternFacet(`\i\c*`)
	require.NoError(t, err)
	anchors, err := NewPatternFacet(`a$b`)
	require.NoError(t, err)

	tests := []struct {
		name    string
		st      *SimpleType
		value   string
		wantErr string
	}{
		{"pattern first branch", restrict(t, "string", pattern), "AB123", ""},
		{"pattern second branch", restrict(t, "string", pattern), "XXX", ""},
		{"pattern is anchored", restrict(t, "string", pattern), "AB1234", "[facet 'pattern'] The value 'AB1234' is not accepted by the pattern"},
		{"name class escapes", restrict(t, "string", nameStart), "_a.b-c", ""},
		{"name class rejects digit start", restrict(t, "string", nameStart), "1abc", "facet 'pattern'"},
		{"dollar is literal", restrict(t, "string", anchors), "a$b", ""},
		{"enumeration", restrict(t, "string", &EnumerationFacet{Values: []string{"red", "green"}}), "green", ""},
		{"enumeration miss", restrict(t, "string", &EnumerationFacet{Values: []string{"red", "green"}}), "blue",
			"[facet 'enumeration'] The value 'blue' is not an element of the set {'red', 'green'}"},
		{"enumeration compares decimals by value", restrict(t, "decimal", &EnumerationFacet{Values: []string{"1.5"}}), "1.50", ""},
		{"length counts runes", restrict(t, "string", &LengthFacet{Value: 3}), "héé", ""},
		{"length", restrict(t, "string", &LengthFacet{Value: 3}), "ab", "facet 'length'"},
		{"minLength", restrict(t, "string", &MinLengthFacet{Value: 2}), "a", "facet 'minLength'"},
		{"maxLength", restrict(t, "string", &MaxLengthFacet{Value: 2}), "abc", "facet 'maxLength'"},
		{"hexBinary length counts octets", restrict(t, "hexBinary", &LengthFacet{Value: 2}), "0AFF", ""},
		{"minInclusive", restrict(t, "integer", newMinInclusive("10")), "10", ""},
		{"minInclusive below", restrict(t, "integer", newMinInclusive("10")), "9", "facet 'minInclusive'"},
		{"maxExclusive", restrict(t, "decimal", newMaxExclusive("1.5")), "1.5", "facet 'maxExclusive'"},
		{"minExclusive", restrict(t, "double", newMinExclusive("0")), "1e-3", ""},
		{"date bound", restrict(t, "date", newMaxInclusive("2024-12-31")), "2025-01-01", "facet 'maxInclusive'"},
		{"totalDigits ignores leading zeros", restrict(t, "decimal", &TotalDigitsFacet{Value: 3}), "00123.0", ""},
		{"totalDigits", restrict(t, "decimal", &TotalDigitsFacet{Value: 3}), "12.34", "facet 'totalDigits'"},
		{"fractionDigits", restrict(t, "decimal", &FractionDigitsFacet{Value: 1}), "1.25", "facet 'fractionDigits'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateValue(tt.value, tt.st)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestListFacetsCountItems(t *testing.T) {
	list := &SimpleType{Variety: ListVariety, Base: AnySimpleType, ItemType: GetBuiltinType("int"), state: resolved}
	short := &SimpleType{Variety: ListVariety, Base: list, ItemType: list.ItemType, Facets: []FacetValidator{&MaxLengthFacet{Value: 2}}, state: resolved}

	_, err := ValidateValue(" 1   2 ", short)
	assert.NoError(t, err)
	_, err = ValidateValue("1 2 3", short)
	assert.Error(t, err)
	_, err = ValidateValue("1 x", short)
	assert.Error(t, err)
}

func TestParseFacet(t *testing.T) {
	f, err := ParseFacet("maxLength", "5")
	require.NoError(t, err)
	assert.Equal(t, "maxLength", f.Name())

	_, err = ParseFacet("length", "-1")
	assert.Error(t, err)
	_, err = ParseFacet("totalDigits", "0")
	assert.Error(t, err)
	_, err = ParseFacet("shape", "x")
	assert.Error(t, err)
}

func TestNormalizeWhiteSpace(t *testing.T) {
	assert.Equal(t, "a\tb\n", NormalizeWhiteSpace("a\tb\n", "preserve"))
	assert.Equal(t, "a b ", NormalizeWhiteSpace("a\tb\n", "replace"))
	assert.Equal(t, "a b", NormalizeWhiteSpace("  a \t\n b  ", "collapse"))
}
