package xsd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// valueKind groups builtin types by the value space used for ordering and
// equality.
type valueKind int

const (
	stringKind valueKind = iota
	booleanKind
	decimalKind
	floatKind
	durationKind
	dateTimeKind
	dateKind
	timeKind
	gregorianKind
	hexBinaryKind
	base64BinaryKind
	qnameKind
)

type builtinType struct {
	kind  valueKind
	check func(value string) error
}

var builtinTypes = map[string]*SimpleType{}

// AnySimpleType is the base of every simple type.
var AnySimpleType *SimpleType

func init() {
	registerBuiltinTypes()
}

func registerBuiltinTypes() {
	define := func(name string, base *SimpleType, ws string, kind valueKind, check func(string) error) *SimpleType {
		st := &SimpleType{
			QName:      QName{Namespace: XSDNamespace, Local: name},
			Base:       base,
			WhiteSpace: ws,
			builtin:    &builtinType{kind: kind, check: check},
		}
		builtinTypes[name] = st
		return st
	}
	list := func(name string, item *SimpleType) {
		builtinTypes[name] = &SimpleType{
			QName:    QName{Namespace: XSDNamespace, Local: name},
			Variety:  ListVariety,
			Base:     AnySimpleType,
			ItemType: item,
			Facets:   []FacetValidator{&MinLengthFacet{Value: 1}},
		}
	}

	AnySimpleType = define("anySimpleType", nil, "preserve", stringKind, nil)

	// Primitive types
	str := define("string", AnySimpleType, "preserve", stringKind, nil)
	define("boolean", AnySimpleType, "collapse", booleanKind, validateBoolean)
	dec := define("decimal", AnySimpleType, "collapse", decimalKind, validateDecimal)
	define("float", AnySimpleType, "collapse", floatKind, validateFloat)
	define("double", AnySimpleType, "collapse", floatKind, validateFloat)
	define("duration", AnySimpleType, "collapse", durationKind, validateDuration)
	define("dateTime", AnySimpleType, "collapse", dateTimeKind, validateDateTime)
	define("time", AnySimpleType, "collapse", timeKind, validateTime)
	define("date", AnySimpleType, "collapse", dateKind, validateDate)
	define("gYearMonth", AnySimpleType, "collapse", gregorianKind, validateGYearMonth)
	define("gYear", AnySimpleType, "collapse", gregorianKind, validateGYear)
	define("gMonthDay", AnySimpleType, "collapse", gregorianKind, validateGMonthDay)
	define("gDay", AnySimpleType, "collapse", gregorianKind, validateGDay)
	define("gMonth", AnySimpleType, "collapse", gregorianKind, validateGMonth)
	define("hexBinary", AnySimpleType, "collapse", hexBinaryKind, validateHexBinary)
	define("base64Binary", AnySimpleType, "collapse", base64BinaryKind, validateBase64Binary)
	define("anyURI", AnySimpleType, "collapse", stringKind, nil)
	define("QName", AnySimpleType, "collapse", qnameKind, validateQName)
	define("NOTATION", AnySimpleType, "collapse", qnameKind, validateQName)

	// Derived types - strings
	norm := define("normalizedString", str, "replace", stringKind, validateNormalizedString)
	tok := define("token", norm, "collapse", stringKind, nil)
	define("language", tok, "collapse", stringKind, validateLanguage)
	nmtoken := define("NMTOKEN", tok, "collapse", stringKind, validateNMTOKEN)
	name := define("Name", tok, "collapse", stringKind, validateName)
	ncname := define("NCName", name, "collapse", stringKind, validateNCName)
	define("ID", ncname, "collapse", stringKind, validateNCName)
	idref := define("IDREF", ncname, "collapse", stringKind, validateNCName)
	entity := define("ENTITY", ncname, "collapse", stringKind, validateNCName)
	list("NMTOKENS", nmtoken)
	list("IDREFS", idref)
	list("ENTITIES", entity)

	// Derived types - numeric
	integer := define("integer", dec, "collapse", decimalKind, validateInteger)
	nonPos := define("nonPositiveInteger", integer, "collapse", decimalKind, integerRange("nonPositiveInteger", "", "0"))
	define("negativeInteger", nonPos, "collapse", decimalKind, integerRange("negativeInteger", "", "-1"))
	long := define("long", integer, "collapse", decimalKind, integerRange("long", "-9223372036854775808", "9223372036854775807"))
	i32 := define("int", long, "collapse", decimalKind, integerRange("int", "-2147483648", "2147483647"))
	i16 := define("short", i32, "collapse", decimalKind, integerRange("short", "-32768", "32767"))
	define("byte", i16, "collapse", decimalKind, integerRange("byte", "-128", "127"))
	nonNeg := define("nonNegativeInteger", integer, "collapse", decimalKind, integerRange("nonNegativeInteger", "0", ""))
	u64 := define("unsignedLong", nonNeg, "collapse", decimalKind, integerRange("unsignedLong", "0", "18446744073709551615"))
	u32 := define("unsignedInt", u64, "collapse", decimalKind, integerRange("unsignedInt", "0", "4294967295"))
	u16 := define("unsignedShort", u32, "collapse", decimalKind, integerRange("unsignedShort", "0", "65535"))
	define("unsignedByte", u16, "collapse", decimalKind, integerRange("unsignedByte", "0", "255"))
	define("positiveInteger", nonNeg, "collapse", decimalKind, integerRange("positiveInteger", "1", ""))
}

// GetBuiltinType returns the builtin simple type with the given local name
func GetBuiltinType(name string) *SimpleType {
	return builtinTypes[name]
}

// IsBuiltinType checks if a type is a built-in XSD type
func IsBuiltinType(name string) bool {
	return GetBuiltinType(name) != nil
}

// DerivesFrom reports whether st is base or restricts it, directly or not.
func (st *SimpleType) DerivesFrom(base *SimpleType) bool {
	for t := st; t != nil; t = t.Base {
		if t == base {
			return true
		}
	}
	return false
}

func (st *SimpleType) kind() valueKind {
	if p := st.Primitive(); p != nil {
		return p.builtin.kind
	}
	return stringKind
}

var (
	decimalPattern    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	integerPattern    = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern      = regexp.MustCompile(`^([+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?|-?INF|NaN)$`)
	durationPattern   = regexp.MustCompile(`^-?P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	dateTimePattern   = regexp.MustCompile(`^(-?\d{4,})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	datePattern       = regexp.MustCompile(`^(-?\d{4,})-(\d{2})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	timePattern       = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	gYearMonthPattern = regexp.MustCompile(`^(-?\d{4,})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gYearPattern      = regexp.MustCompile(`^(-?\d{4,})(Z|[+-]\d{2}:\d{2})?$`)
	gMonthDayPattern  = regexp.MustCompile(`^--(\d{2})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gDayPattern       = regexp.MustCompile(`^---(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gMonthPattern     = regexp.MustCompile(`^--(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	languagePattern   = regexp.MustCompile(`^[a-zA-Z]{1,8}(-[a-zA-Z0-9]{1,8})*$`)
)

func validateBoolean(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:boolean'", value)
}

func validateDecimal(value string) error {
	if !decimalPattern.MatchString(value) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:decimal'", value)
	}
	return nil
}

func validateFloat(value string) error {
	if !floatPattern.MatchString(value) {
		return fmt.Errorf("'%s' is not a valid floating point value", value)
	}
	return nil
}

func validateInteger(value string) error {
	if !integerPattern.MatchString(value) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:integer'", value)
	}
	return nil
}

// integerRange returns a checker for an integer type bounded by min and max
// (empty for no bound).
func integerRange(name, min, max string) func(string) error {
	var lo, hi *big.Int
	if min != "" {
		lo, _ = new(big.Int).SetString(min, 10)
	}
	if max != "" {
		hi, _ = new(big.Int).SetString(max, 10)
	}
	return func(value string) error {
		if !integerPattern.MatchString(value) {
			return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:%s'", value, name)
		}
		n, ok := new(big.Int).SetString(strings.TrimPrefix(value, "+"), 10)
		if !ok || (lo != nil && n.Cmp(lo) < 0) || (hi != nil && n.Cmp(hi) > 0) {
			return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:%s'", value, name)
		}
		return nil
	}
}

func validateDuration(value string) error {
	m := durationPattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:duration'", value)
	}
	// At least one component, and a T must be followed by a time component.
	if m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "" {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:duration'", value)
	}
	if m[4] == "T" {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:duration'", value)
	}
	return nil
}

func validateDateTime(value string) error {
	m := dateTimePattern.FindStringSubmatch(value)
	if m == nil || !validDate(m[1], m[2], m[3]) || !validClock(m[4], m[5], m[6], m[7]) || !validZone(m[8]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:dateTime'", value)
	}
	return nil
}

func validateDate(value string) error {
	m := datePattern.FindStringSubmatch(value)
	if m == nil || !validDate(m[1], m[2], m[3]) || !validZone(m[4]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:date'", value)
	}
	return nil
}

func validateTime(value string) error {
	m := timePattern.FindStringSubmatch(value)
	if m == nil || !validClock(m[1], m[2], m[3], m[4]) || !validZone(m[5]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:time'", value)
	}
	return nil
}

func validateGYearMonth(value string) error {
	m := gYearMonthPattern.FindStringSubmatch(value)
	if m == nil || !validYear(m[1]) || !inRange(m[2], 1, 12) || !validZone(m[3]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:gYearMonth'", value)
	}
	return nil
}

func validateGYear(value string) error {
	m := gYearPattern.FindStringSubmatch(value)
	if m == nil || !validYear(m[1]) || !validZone(m[2]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:gYear'", value)
	}
	return nil
}

func validateGMonthDay(value string) error {
	m := gMonthDayPattern.FindStringSubmatch(value)
	// 2000 is a leap year so --02-29 is accepted.
	if m == nil || !validDate("2000", m[1], m[2]) || !validZone(m[3]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:gMonthDay'", value)
	}
	return nil
}

func validateGDay(value string) error {
	m := gDayPattern.FindStringSubmatch(value)
	if m == nil || !inRange(m[1], 1, 31) || !validZone(m[2]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:gDay'", value)
	}
	return nil
}

func validateGMonth(value string) error {
	m := gMonthPattern.FindStringSubmatch(value)
	if m == nil || !inRange(m[1], 1, 12) || !validZone(m[2]) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:gMonth'", value)
	}
	return nil
}

func inRange(digits string, lo, hi int) bool {
	n, err := strconv.Atoi(digits)
	return err == nil && n >= lo && n <= hi
}

func validYear(year string) bool {
	y := strings.TrimPrefix(year, "-")
	// Leading zeros are only allowed for four-digit years; year 0000 is invalid.
	if len(y) > 4 && y[0] == '0' {
		return false
	}
	return strings.Trim(y, "0") != ""
}

func validDate(year, month, day string) bool {
	if !validYear(year) || !inRange(month, 1, 12) {
		return false
	}
	y, _ := strconv.Atoi(strings.TrimPrefix(year, "-"))
	m, _ := strconv.Atoi(month)
	return inRange(day, 1, daysIn(y, m))
}

func daysIn(year, month int) int {
	switch month {
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	}
	return 31
}

func validClock(hour, minute, second, fraction string) bool {
	if hour == "24" {
		// 24:00:00 is the only valid time with hour 24.
		return minute == "00" && second == "00" && strings.Trim(fraction, ".0") == ""
	}
	return inRange(hour, 0, 23) && inRange(minute, 0, 59) && inRange(second, 0, 59)
}

func validZone(zone string) bool {
	if zone == "" || zone == "Z" {
		return true
	}
	hh, mm := zone[1:3], zone[4:6]
	if !inRange(hh, 0, 14) || !inRange(mm, 0, 59) {
		return false
	}
	return hh != "14" || mm == "00"
}

func validateHexBinary(value string) error {
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:hexBinary'", value)
	}
	return nil
}

func validateBase64Binary(value string) error {
	if _, err := base64.StdEncoding.DecodeString(stripSpace(value)); err != nil {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:base64Binary'", value)
	}
	return nil
}

func stripSpace(value string) string {
	return strings.Map(func(r rune) rune {
		if isXMLSpace(r) {
			return -1
		}
		return r
	}, value)
}

func validateQName(value string) error {
	prefix, local, found := strings.Cut(value, ":")
	if !isNCName(prefix) || (found && !isNCName(local)) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:QName'", value)
	}
	return nil
}

func validateNormalizedString(value string) error {
	if strings.ContainsAny(value, "\r\n\t") {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:normalizedString'", value)
	}
	return nil
}

func validateLanguage(value string) error {
	if !languagePattern.MatchString(value) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:language'", value)
	}
	return nil
}

func validateName(value string) error {
	if !isName(value) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:Name'", value)
	}
	return nil
}

func validateNCName(value string) error {
	if !isNCName(value) {
		return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:NCName'", value)
	}
	return nil
}

func validateNMTOKEN(value string) error {
	if value == "" {
		return fmt.Errorf("'' is not a valid value of the atomic type 'xs:NMTOKEN'")
	}
	for _, r := range value {
		if !isNameChar(r) {
			return fmt.Errorf("'%s' is not a valid value of the atomic type 'xs:NMTOKEN'", value)
		}
	}
	return nil
}

func isXMLSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isNameStartChar(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == ':' || unicode.Is(unicode.Nl, r)
}

func isNameChar(r rune) bool {
	return isNameStartChar(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '·' ||
		unicode.In(r, unicode.Mn, unicode.Mc)
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !isNameStartChar(r) {
			return false
		}
		if !isNameChar(r) {
			return false
		}
	}
	return true
}

func isNCName(s string) bool {
	return isName(s) && !strings.Contains(s, ":")
}
