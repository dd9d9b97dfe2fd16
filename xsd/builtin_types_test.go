package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltinTypes(t *testing.T) {
	tests := []struct {
		typ   string
		valid []string
		bad   []string
	}{
		{"boolean", []string{"true", "0", " false "}, []string{"yes", "TRUE"}},
		{"decimal", []string{"1", "-1.5", ".5", "+3."}, []string{"1e3", "abc", ""}},
		{"integer", []string{"0", "-12", "+7"}, []string{"1.0", "x"}},
		{"int", []string{"2147483647", "-2147483648"}, []string{"2147483648"}},
		{"byte", []string{"127"}, []string{"128"}},
		{"unsignedByte", []string{"255"}, []string{"-1", "256"}},
		{"positiveInteger", []string{"1"}, []string{"0"}},
		{"nonPositiveInteger", []string{"0", "-5"}, []string{"1"}},
		{"double", []string{"1e10", "-INF", "NaN", "3.14"}, []string{"inf", "1e"}},
		{"date", []string{"2024-02-29", "2023-01-01Z", "2023-01-01+05:30"}, []string{"2023-02-29", "2023-13-01", "23-01-01"}},
		{"dateTime", []string{"2024-01-01T10:20:30", "2024-01-01T10:20:30.5Z"}, []string{"2024-01-01", "2024-01-01T25:00:00"}},
		{"time", []string{"23:59:59", "00:00:00Z"}, []string{"24:01:00", "1:00:00"}},
		{"duration", []string{"P1Y2M", "PT1H", "-P3D", "PT0.5S"}, []string{"P", "PT", "1Y"}},
		{"gYear", []string{"2024"}, []string{"24"}},
		{"gMonthDay", []string{"--02-29"}, []string{"--02-30"}},
		{"hexBinary", []string{"0aFF", ""}, []string{"0AF", "zz"}},
		{"base64Binary", []string{"aGVsbG8=", "aGVs bG8="}, []string{"a==="}},
		{"language", []string{"en", "en-US"}, []string{"toolongname", "e n"}},
		{"NCName", []string{"a.b", "_x"}, []string{"a:b", "1a"}},
		{"Name", []string{"a:b"}, []string{"-a"}},
		{"QName", []string{"p:local", "local"}, []string{"p:", ":x"}},
		{"NMTOKEN", []string{"-1a"}, []string{"a b"}},
		{"NMTOKENS", []string{"a b  c"}, []string{"", "a,b !"}},
		{"IDREFS", []string{"a b"}, []string{"1a"}},
		{"normalizedString", []string{"a b"}, nil},
		{"anyURI", []string{"http://example.com/x", "relative/path"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			st := GetBuiltinType(tt.typ)
			if !assert.NotNil(t, st) {
				return
			}
			for _, v := range tt.valid {
				_, err := ValidateValue(v, st)
				assert.NoError(t, err, "value %q", v)
			}
			for _, v := range tt.bad {
				_, err := ValidateValue(v, st)
				assert.Error(t, err, "value %q", v)
			}
		})
	}
}

func TestBuiltinDerivation(t *testing.T) {
	assert.True(t, GetBuiltinType("byte").DerivesFrom(GetBuiltinType("decimal")))
	assert.True(t, GetBuiltinType("ID").DerivesFrom(GetBuiltinType("string")))
	assert.False(t, GetBuiltinType("string").DerivesFrom(GetBuiltinType("token")))
	assert.Equal(t, decimalKind, GetBuiltinType("short").kind())
	assert.True(t, GetBuiltinType("short").IsBuiltin())
	assert.True(t, IsBuiltinType("gDay"))
	assert.False(t, IsBuiltinType("anyType"))
}

func TestBuiltinErrorMessage(t *testing.T) {
	_, err := ValidateValue("abc", GetBuiltinType("int"))
	assert.EqualError(t, err, "'abc' is not a valid value of the atomic type 'xs:int'")
}
