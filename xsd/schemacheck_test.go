package xsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSchemaDocument(t *testing.T) {
	const xs = `xmlns:xs="http://www.w3.org/2001/XMLSchema"`

	tests := []struct {
		name    string
		schema  string
		message string
	}{
		{
			name: "global named components",
			schema: `<xs:schema ` + xs + `>
  <xs:simpleType name="Code"><xs:restriction base="xs:string"/></xs:simpleType>
  <xs:complexType name="Item"><xs:sequence><xs:element name="c" type="Code"/></xs:sequence></xs:complexType>
  <xs:group name="Body"><xs:sequence><xs:element name="b"/></xs:sequence></xs:group>
  <xs:attributeGroup name="Common"><xs:attribute name="id" type="xs:ID"/></xs:attributeGroup>
  <xs:attribute name="lang" type="xs:string"/>
  <xs:element name="head" abstract="true"/>
  <xs:element name="item" type="Item" substitutionGroup="head"/>
</xs:schema>`,
		},
		{
			name: "local references",
			schema: `<xs:schema ` + xs + `>
  <xs:group name="Body"><xs:sequence><xs:element name="b"/></xs:sequence></xs:group>
  <xs:element name="r"><xs:complexType><xs:group ref="Body" minOccurs="0"/></xs:complexType></xs:element>
</xs:schema>`,
		},
		{
			name: "named local complex type",
			schema: `<xs:schema ` + xs + `>
  <xs:element name="r"><xs:complexType name="T"/></xs:element>
</xs:schema>`,
			message: "a local complexType must not have a name attribute",
		},
		{
			name: "local group without ref",
			schema: `<xs:schema ` + xs + `>
  <xs:complexType name="T"><xs:group name="G"/></xs:complexType>
</xs:schema>`,
			message: "a local group must have a ref attribute",
		},
		{
			name: "global element with occurrence",
			schema: `<xs:schema ` + xs + `>
  <xs:element name="r" maxOccurs="2"/>
</xs:schema>`,
			message: "global element must not have a maxOccurs attribute",
		},
		{
			name: "local element reference with type",
			schema: `<xs:schema ` + xs + `>
  <xs:element name="a"/>
  <xs:complexType name="T"><xs:sequence><xs:element ref="a" type="xs:string"/></xs:sequence></xs:complexType>
</xs:schema>`,
			message: "element reference must not have a type attribute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := CheckSchemaDocument(parse(t, tt.schema))
			if tt.message == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.message, errs[0].Message)
		})
	}
}
