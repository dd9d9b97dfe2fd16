package xsd

import (
	"bytes"
	"testing"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, schema string, opts ...CompileOption) *Schema {
	t.Helper()
	s, err := CompileBytes([]byte(schema), opts...)
	require.NoError(t, err)
	return s
}

func parse(t *testing.T, doc string) xmldom.Document {
	t.Helper()
	parsed, err := xmldom.Decode(bytes.NewReader([]byte(doc)))
	require.NoError(t, err)
	return parsed
}

func validateString(t *testing.T, s *Schema, doc string) []Violation {
	t.Helper()
	return NewValidator(s).Validate(parse(t, doc))
}

func codes(violations []Violation) []string {
	out := make([]string, len(violations))
	for i, v := range violations {
		out[i] = v.Code
	}
	return out
}
