package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceDecls(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want map[string]string
	}{
		{"none", `<a id="1"/>`, nil},
		{"default only", `<a xmlns="urn:d"/>`, map[string]string{"": "urn:d"}},
		{"prefixed only", `<p:a xmlns:p="urn:p"/>`, map[string]string{"p": "urn:p"}},
		{
			name: "mixed",
			doc:  `<a xmlns="urn:d" xmlns:p="urn:p" xmlns:xsi="` + XSINamespace + `" id="1"/>`,
			want: map[string]string{"": "urn:d", "p": "urn:p", "xsi": XSINamespace},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := parse(t, tt.doc).DocumentElement()
			assert.Equal(t, tt.want, namespaceDecls(el))
		})
	}
}

func TestInstanceAttributeHelpers(t *testing.T) {
	el := parse(t, `<a xmlns="urn:d" xmlns:p="urn:p" xmlns:xsi="`+XSINamespace+`" xsi:nil="true" id="1"/>`).DocumentElement()

	assert.Equal(t, "1", attr(el, "id"))
	assert.False(t, hasAttr(el, "nil"))
	assert.Empty(t, attr(el, "nil"))

	var kept []string
	attrs := el.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		if a := attrs.Item(i); a != nil && !skipAttribute(a) {
			kept = append(kept, string(a.LocalName()))
		}
	}
	assert.Equal(t, []string{"id"}, kept)

	value, ok := instanceAttr(el, "nil")
	assert.True(t, ok)
	assert.Equal(t, "true", value)
}
