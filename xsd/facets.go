package xsd

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FacetValidator validates a value against a constraining facet. The type
// passed in is the simple type being validated; it decides how values are
// measured and compared.
type FacetValidator interface {
	Validate(value string, st *SimpleType) error
	Name() string
}

// PatternFacet holds the xs:pattern facets of one derivation step; the value
// must match at least one of them.
type PatternFacet struct {
	Patterns []string
	regexes  []*regexp.Regexp
}

// NewPatternFacet compiles XSD regular expressions into a facet.
func NewPatternFacet(patterns ...string) (*PatternFacet, error) {
	f := &PatternFacet{Patterns: patterns}
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + convertXSDRegex(p) + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", p, err)
		}
		f.regexes = append(f.regexes, re)
	}
	return f, nil
}

func (f *PatternFacet) Name() string {
	return "pattern"
}

func (f *PatternFacet) Validate(value string, st *SimpleType) error {
	for _, re := range f.regexes {
		if re.MatchString(value) {
			return nil
		}
	}
	return fmt.Errorf("[facet 'pattern'] The value '%s' is not accepted by the pattern '%s'",
		value, strings.Join(f.Patterns, "|"))
}

// convertXSDRegex rewrites the parts of XSD regular expression syntax that
// differ from RE2: ^ and $ are ordinary characters, and \i \c \I \C are
// XML name character classes.
func convertXSDRegex(pattern string) string {
	var sb strings.Builder
	inClass := false
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			next := runes[i+1]
			i++
			switch next {
			case 'i':
				if inClass {
					sb.WriteString(`\p{L}_:`)
				} else {
					sb.WriteString(`[\p{L}_:]`)
				}
			case 'c':
				if inClass {
					sb.WriteString(`\p{L}\p{Nd}\p{Mn}\p{Mc}._:\-`)
				} else {
					sb.WriteString(`[\p{L}\p{Nd}\p{Mn}\p{Mc}._:\-]`)
				}
			case 'I':
				sb.WriteString(`[^\p{L}_:]`)
			case 'C':
				sb.WriteString(`[^\p{L}\p{Nd}\p{Mn}\p{Mc}._:\-]`)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(next)
			}
		case r == '[' && !inClass:
			inClass = true
			sb.WriteRune(r)
			if i+1 < len(runes) && runes[i+1] == '^' {
				sb.WriteRune('^')
				i++
			}
		case r == ']' && inClass:
			inClass = false
			sb.WriteRune(r)
		case (r == '^' || r == '$') && !inClass:
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// EnumerationFacet validates against a set of allowed values
type EnumerationFacet struct {
	Values []string
}

func (f *EnumerationFacet) Name() string {
	return "enumeration"
}

func (f *EnumerationFacet) Validate(value string, st *SimpleType) error {
	kind := stringKind
	if st != nil && st.Variety == AtomicVariety {
		kind = st.kind()
	}
	for _, allowed := range f.Values {
		if valuesEqual(value, allowed, kind) {
			return nil
		}
	}
	quoted := make([]string, len(f.Values))
	for i, v := range f.Values {
		quoted[i] = "'" + v + "'"
	}
	return fmt.Errorf("[facet 'enumeration'] The value '%s' is not an element of the set {%s}",
		value, strings.Join(quoted, ", "))
}

// LengthFacet validates exact length
type LengthFacet struct {
	Value int
}

func (f *LengthFacet) Name() string {
	return "length"
}

func (f *LengthFacet) Validate(value string, st *SimpleType) error {
	if n, ok := getLength(value, st); ok && n != f.Value {
		return fmt.Errorf("[facet 'length'] The value has a length of '%d'; this differs from the allowed length of '%d'", n, f.Value)
	}
	return nil
}

// MinLengthFacet validates minimum length
type MinLengthFacet struct {
	Value int
}

func (f *MinLengthFacet) Name() string {
	return "minLength"
}

func (f *MinLengthFacet) Validate(value string, st *SimpleType) error {
	if n, ok := getLength(value, st); ok && n < f.Value {
		return fmt.Errorf("[facet 'minLength'] The value has a length of '%d'; this underruns the allowed minimum length of '%d'", n, f.Value)
	}
	return nil
}

// MaxLengthFacet validates maximum length
type MaxLengthFacet struct {
	Value int
}

func (f *MaxLengthFacet) Name() string {
	return "maxLength"
}

func (f *MaxLengthFacet) Validate(value string, st *SimpleType) error {
	if n, ok := getLength(value, st); ok && n > f.Value {
		return fmt.Errorf("[facet 'maxLength'] The value has a length of '%d'; this exceeds the allowed maximum length of '%d'", n, f.Value)
	}
	return nil
}

// getLength measures a value in the units of its type: list items, octets
// for binary types, characters otherwise. QName and NOTATION have no length.
func getLength(value string, st *SimpleType) (int, bool) {
	if st != nil && st.Variety == ListVariety {
		return len(strings.Fields(value)), true
	}
	kind := stringKind
	if st != nil {
		kind = st.kind()
	}
	switch kind {
	case hexBinaryKind:
		return len(value) / 2, true
	case base64BinaryKind:
		b, err := base64.StdEncoding.DecodeString(stripSpace(value))
		if err != nil {
			return 0, false
		}
		return len(b), true
	case qnameKind:
		return 0, false
	}
	return len([]rune(value)), true
}

// boundFacet is shared by the four range facets.
type boundFacet struct {
	name  string
	Value string
	ok    func(cmp int) bool
	words string
}

func (f *boundFacet) Name() string {
	return f.name
}

func (f *boundFacet) Validate(value string, st *SimpleType) error {
	kind := stringKind
	if st != nil {
		kind = st.kind()
	}
	cmp, comparable := compareValues(value, f.Value, kind)
	if !comparable || !f.ok(cmp) {
		return fmt.Errorf("[facet '%s'] The value '%s' is %s '%s'", f.name, value, f.words, f.Value)
	}
	return nil
}

// MinInclusiveFacet validates minimum value (inclusive)
type MinInclusiveFacet struct{ boundFacet }

// MaxInclusiveFacet validates maximum value (inclusive)
type MaxInclusiveFacet struct{ boundFacet }

// MinExclusiveFacet validates minimum value (exclusive)
type MinExclusiveFacet struct{ boundFacet }

// MaxExclusiveFacet validates maximum value (exclusive)
type MaxExclusiveFacet struct{ boundFacet }

func newMinInclusive(v string) *MinInclusiveFacet {
	return &MinInclusiveFacet{boundFacet{"minInclusive", v, func(c int) bool { return c >= 0 }, "less than the minimum value allowed"}}
}

func newMaxInclusive(v string) *MaxInclusiveFacet {
	return &MaxInclusiveFacet{boundFacet{"maxInclusive", v, func(c int) bool { return c <= 0 }, "greater than the maximum value allowed"}}
}

func newMinExclusive(v string) *MinExclusiveFacet {
	return &MinExclusiveFacet{boundFacet{"minExclusive", v, func(c int) bool { return c > 0 }, "not greater than"}}
}

func newMaxExclusive(v string) *MaxExclusiveFacet {
	return &MaxExclusiveFacet{boundFacet{"maxExclusive", v, func(c int) bool { return c < 0 }, "not less than"}}
}

// TotalDigitsFacet limits the number of significant decimal digits
type TotalDigitsFacet struct {
	Value int
}

func (f *TotalDigitsFacet) Name() string {
	return "totalDigits"
}

func (f *TotalDigitsFacet) Validate(value string, st *SimpleType) error {
	intPart, fracPart := splitDecimal(value)
	digits := len(strings.TrimLeft(intPart, "0")) + len(fracPart)
	if digits > f.Value {
		return fmt.Errorf("[facet 'totalDigits'] The value '%s' has more digits than are allowed ('%d')", value, f.Value)
	}
	return nil
}

// FractionDigitsFacet limits the number of digits after the decimal point
type FractionDigitsFacet struct {
	Value int
}

func (f *FractionDigitsFacet) Name() string {
	return "fractionDigits"
}

func (f *FractionDigitsFacet) Validate(value string, st *SimpleType) error {
	if _, frac := splitDecimal(value); len(frac) > f.Value {
		return fmt.Errorf("[facet 'fractionDigits'] The value '%s' has more fractional digits than are allowed ('%d')", value, f.Value)
	}
	return nil
}

// splitDecimal returns the integer digits and the significant fraction
// digits of a decimal lexical value.
func splitDecimal(value string) (string, string) {
	value = strings.TrimLeft(value, "+-")
	intPart, fracPart, _ := strings.Cut(value, ".")
	return intPart, strings.TrimRight(fracPart, "0")
}

// ParseFacet builds a facet from a schema facet element. Pattern and
// enumeration facets are collected by the caller since several of them
// combine into one validator.
func ParseFacet(name, value string) (FacetValidator, error) {
	switch name {
	case "length", "minLength", "maxLength", "totalDigits", "fractionDigits":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("facet '%s' requires a non-negative integer, got '%s'", name, value)
		}
		switch name {
		case "length":
			return &LengthFacet{Value: n}, nil
		case "minLength":
			return &MinLengthFacet{Value: n}, nil
		case "maxLength":
			return &MaxLengthFacet{Value: n}, nil
		case "totalDigits":
			if n == 0 {
				return nil, fmt.Errorf("facet 'totalDigits' must be positive")
			}
			return &TotalDigitsFacet{Value: n}, nil
		default:
			return &FractionDigitsFacet{Value: n}, nil
		}
	case "minInclusive":
		return newMinInclusive(value), nil
	case "maxInclusive":
		return newMaxInclusive(value), nil
	case "minExclusive":
		return newMinExclusive(value), nil
	case "maxExclusive":
		return newMaxExclusive(value), nil
	}
	return nil, fmt.Errorf("unknown facet '%s'", name)
}

// NormalizeWhiteSpace normalizes whitespace according to the facet value
func NormalizeWhiteSpace(value string, whiteSpace string) string {
	switch whiteSpace {
	case "replace":
		return strings.Map(func(r rune) rune {
			if isXMLSpace(r) {
				return ' '
			}
			return r
		}, value)
	case "collapse":
		return strings.Join(strings.FieldsFunc(value, isXMLSpace), " ")
	default:
		return value
	}
}

// compareValues orders two lexical values in the value space of kind. The
// second result is false when the values are not comparable.
func compareValues(a, b string, kind valueKind) (int, bool) {
	switch kind {
	case decimalKind:
		x, okx := parseDecimal(a)
		y, oky := parseDecimal(b)
		if !okx || !oky {
			return 0, false
		}
		return x.Cmp(y), true
	case floatKind:
		x, errx := strconv.ParseFloat(a, 64)
		y, erry := strconv.ParseFloat(b, 64)
		if errx != nil || erry != nil || math.IsNaN(x) || math.IsNaN(y) {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case dateTimeKind, dateKind, timeKind:
		x, okx := parseTemporal(a, kind)
		y, oky := parseTemporal(b, kind)
		if okx && oky {
			return x.Compare(y), true
		}
	}
	return strings.Compare(a, b), true
}

func valuesEqual(a, b string, kind valueKind) bool {
	switch kind {
	case decimalKind, floatKind, dateTimeKind, dateKind, timeKind:
		cmp, ok := compareValues(a, b, kind)
		if kind == floatKind && a == "NaN" && b == "NaN" {
			return true
		}
		return ok && cmp == 0
	case booleanKind:
		return (a == "true" || a == "1") == (b == "true" || b == "1")
	}
	return a == b
}

func parseDecimal(s string) (*big.Rat, bool) {
	s = strings.TrimPrefix(s, "+")
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	if neg {
		s = "-" + s
	}
	return new(big.Rat).SetString(s)
}

var temporalLayouts = map[valueKind][]string{
	dateTimeKind: {"2006-01-02T15:04:05.999999999Z07:00", "2006-01-02T15:04:05.999999999"},
	dateKind:     {"2006-01-02Z07:00", "2006-01-02"},
	timeKind:     {"15:04:05.999999999Z07:00", "15:04:05.999999999"},
}

// parseTemporal parses dates and times with four-digit years. Values
// without a timezone are taken as UTC.
func parseTemporal(s string, kind valueKind) (time.Time, bool) {
	for _, layout := range temporalLayouts[kind] {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
