package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libraryIdentitySchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    targetNamespace="urn:lib" xmlns:l="urn:lib" elementFormDefault="qualified">
  <xs:element name="library">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="book" maxOccurs="unbounded">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="isbn" type="xs:string" minOccurs="0"/>
            </xs:sequence>
            <xs:attribute name="id" type="xs:string"/>
          </xs:complexType>
        </xs:element>
        <xs:element name="loan" minOccurs="0" maxOccurs="unbounded">
          <xs:complexType>
            <xs:attribute name="book" type="xs:string"/>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
    <xs:key name="bookKey">
      <xs:selector xpath="l:book"/>
      <xs:field xpath="@id"/>
    </xs:key>
    <xs:unique name="isbnUnique">
      <xs:selector xpath=".//l:book"/>
      <xs:field xpath="l:isbn"/>
    </xs:unique>
    <xs:keyref name="loanRef" refer="l:bookKey">
      <xs:selector xpath="l:loan"/>
      <xs:field xpath="@book"/>
    </xs:keyref>
  </xs:element>
</xs:schema>`

func TestIdentityConstraints(t *testing.T) {
	s := mustCompile(t, libraryIdentitySchema)

	tests := []struct {
		name    string
		xml     string
		codes   []string
		message string
	}{
		{
			name: "valid",
			xml: `<library xmlns="urn:lib">
  <book id="b1"><isbn>1</isbn></book>
  <book id="b2"/>
  <loan book="b2"/>
</library>`,
		},
		{
			name:    "duplicate key",
			xml:     `<library xmlns="urn:lib"><book id="b1"/><book id="b1"/></library>`,
			codes:   []string{"cvc-identity-constraint.4.1"},
			message: "Element '{urn:lib}book': Duplicate key-sequence ['b1'] in key identity-constraint 'bookKey'.",
		},
		{
			name:  "missing key field",
			xml:   `<library xmlns="urn:lib"><book/></library>`,
			codes: []string{"cvc-identity-constraint.4.2.1"},
		},
		{
			name:  "duplicate unique value",
			xml:   `<library xmlns="urn:lib"><book id="a"><isbn>9</isbn></book><book id="b"><isbn> 9 </isbn></book></library>`,
			codes: []string{"cvc-identity-constraint.4.1"},
		},
		{
			name:    "dangling keyref",
			xml:     `<library xmlns="urn:lib"><book id="b1"/><loan book="b9"/></library>`,
			codes:   []string{"cvc-identity-constraint.4.3"},
			message: "Element '{urn:lib}loan': No match found for key-sequence ['b9'] of keyref 'loanRef'.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := validateString(t, s, tt.xml)
			require.Equal(t, tt.codes, nilIfEmpty(codes(violations)))
			if tt.message != "" {
				assert.Equal(t, tt.message, violations[0].Message)
			}
		})
	}
}

func TestIdentityConstraintCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			name: "unknown refer",
			body: `<xs:keyref name="r" refer="nope">
      <xs:selector xpath="a"/><xs:field xpath="@x"/>
    </xs:keyref>`,
			message: "keyref 'r' refers to 'nope', which is not a key or unique constraint",
		},
		{
			name:    "missing field",
			body:    `<xs:key name="k"><xs:selector xpath="a"/></xs:key>`,
			message: "identity constraint 'k' requires at least one field",
		},
		{
			name:    "attribute in selector",
			body:    `<xs:key name="k"><xs:selector xpath="@a"/><xs:field xpath="."/></xs:key>`,
			message: "invalid selector xpath '@a'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="root">
    ` + tt.body + `
  </xs:element>
</xs:schema>`
			_, err := CompileBytes([]byte(schema))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestParseXPath(t *testing.T) {
	sc := &scope{ns: map[string]string{"p": "urn:p"}}

	paths, err := parseXPath(sc, ".//p:item | child::other", false)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, paths[0].descendant)
	assert.Equal(t, []xpathStep{{namespace: "urn:p", local: "item"}}, paths[0].steps)
	assert.Equal(t, []xpathStep{{local: "other"}}, paths[1].steps)

	paths, err = parseXPath(sc, "p:a/@p:code", true)
	require.NoError(t, err)
	require.NotNil(t, paths[0].attr)
	assert.Equal(t, "code", paths[0].attr.local)
	assert.Equal(t, "urn:p", paths[0].attr.namespace)

	_, err = parseXPath(sc, "q:a", false)
	assert.Error(t, err)
}
