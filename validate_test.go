package xsdcheck

import (
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const noteSchema = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="note">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="text" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

const namedTypesSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="Short">
    <xs:restriction base="xs:string"><xs:maxLength value="5"/></xs:restriction>
  </xs:simpleType>
  <xs:attributeGroup name="Stamped">
    <xs:attribute name="id" type="xs:ID"/>
  </xs:attributeGroup>
  <xs:group name="Body">
    <xs:sequence><xs:element name="text" type="Short"/></xs:sequence>
  </xs:group>
  <xs:complexType name="NoteType">
    <xs:group ref="Body"/>
    <xs:attributeGroup ref="Stamped"/>
  </xs:complexType>
  <xs:element name="note" type="NoteType"/>
</xs:schema>`

const targetNamespaceSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    xmlns:tns="urn:notes" targetNamespace="urn:notes" elementFormDefault="qualified">
  <xs:complexType name="NoteType">
    <xs:sequence><xs:element name="text" type="xs:string"/></xs:sequence>
  </xs:complexType>
  <xs:element name="note" type="tns:NoteType"/>
</xs:schema>`

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		xsd     string
		kind    Kind
		errors  int
		stage   Stage
		message string
	}{
		{
			name: "conforming document",
			xml:  `<note><text>hi</text></note>`,
			xsd:  noteSchema,
			kind: Valid,
		},
		{
			name:    "unexpected child",
			xml:     `<note><body>hi</body></note>`,
			xsd:     noteSchema,
			kind:    Invalid,
			errors:  1,
			message: "body",
		},
		{
			name:  "unclosed tag",
			xml:   `<note><text>hi</note>`,
			xsd:   noteSchema,
			kind:  Malformed,
			stage: DocumentStage,
		},
		{
			name:  "schema is plain text",
			xml:   `<note><text>hi</text></note>`,
			xsd:   `this is not a schema`,
			kind:  Malformed,
			stage: SchemaStage,
		},
		{
			name:    "schema does not compile",
			xml:     `<note/>`,
			xsd:     `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="note" type="Missing"/></xs:schema>`,
			kind:    Malformed,
			stage:   SchemaStage,
			message: "the type 'Missing' is not resolved",
		},
		{
			name: "global named components",
			xml:  `<note id="n1"><text>hi</text></note>`,
			xsd:  namedTypesSchema,
			kind: Valid,
		},
		{
			name:    "global simple type facet",
			xml:     `<note><text>far too long</text></note>`,
			xsd:     namedTypesSchema,
			kind:    Invalid,
			errors:  1,
			message: "[facet 'maxLength']",
		},
		{
			name: "prefixed type reference with prefixed instance",
			xml:  `<n:note xmlns:n="urn:notes"><n:text>hi</n:text></n:note>`,
			xsd:  targetNamespaceSchema,
			kind: Valid,
		},
		{
			name: "prefixed type reference with default namespace instance",
			xml:  `<note xmlns="urn:notes"><text>hi</text></note>`,
			xsd:  targetNamespaceSchema,
			kind: Valid,
		},
		{
			name:    "root outside the target namespace",
			xml:     `<note><text>hi</text></note>`,
			xsd:     targetNamespaceSchema,
			kind:    Invalid,
			errors:  1,
			message: "No matching global declaration available for the validation root.",
		},
		{
			name: "instance declares xsi",
			xml: `<note xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xsi:noNamespaceSchemaLocation="note.xsd"><text>hi</text></note>`,
			xsd:  noteSchema,
			kind: Valid,
		},
		{
			name:    "second root element",
			xml:     `<note><text>hi</text></note><note><text>hi</text></note>`,
			xsd:     noteSchema,
			kind:    Malformed,
			stage:   DocumentStage,
			message: "Extra content at the end of the document",
		},
		{
			name:    "text after the root element",
			xml:     `<note><text>hi</text></note>junk`,
			xsd:     noteSchema,
			kind:    Malformed,
			stage:   DocumentStage,
			message: "text found outside the root element",
		},
		{
			name:    "schema with two roots",
			xml:     `<note><text>hi</text></note>`,
			xsd:     `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"/><xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"/>`,
			kind:    Malformed,
			stage:   SchemaStage,
			message: "Extra content at the end of the document",
		},
		{
			name:  "empty document",
			xml:   ``,
			xsd:   noteSchema,
			kind:  Malformed,
			stage: DocumentStage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate([]byte(tt.xml), []byte(tt.xsd))
			require.Equal(t, tt.kind, res.Kind, res.String())
			assert.Len(t, res.Errors, tt.errors)

			switch tt.kind {
			case Malformed:
				require.NotNil(t, res.Malformed)
				assert.Equal(t, tt.stage, res.Malformed.Stage)
				assert.NotEmpty(t, res.Malformed.Reason)
				if tt.message != "" {
					assert.Contains(t, res.Malformed.Reason, tt.message)
				}
				assert.Error(t, res.Err())
			case Invalid:
				assert.Nil(t, res.Malformed)
				assert.Contains(t, res.Errors[0].Message, tt.message)
			default:
				assert.True(t, res.OK())
				assert.NoError(t, res.Err())
			}
		})
	}
}

func TestValidateExtraRootLine(t *testing.T) {
	res := Validate([]byte("<note><text>hi</text></note>\n\n<note/>"), []byte(noteSchema))
	require.Equal(t, Malformed, res.Kind)
	assert.Equal(t, 3, res.Malformed.Line)
}

func TestZeroResultIsNotValid(t *testing.T) {
	var res Result
	assert.False(t, res.OK())
	assert.NotEqual(t, Valid, res.Kind)
	assert.Equal(t, "Kind(0)", res.Kind.String())
}

func TestValidateReportsLines(t *testing.T) {
	doc := `<note>
  <text>hi</text>
  <text>again</text>
</note>`
	res := Validate([]byte(doc), []byte(noteSchema))
	require.Equal(t, Invalid, res.Kind)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Line)
	assert.Equal(t, "cvc-complex-type.2.4.d", res.Errors[0].Code)
	assert.Equal(t, "Line 3: Element 'text': This element is not expected.", res.Errors[0].String())
}

func TestValidateSchemaLine(t *testing.T) {
	res := Validate([]byte(`<a/>`), []byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">

  <xs:element name="a" type="Nope"/>
</xs:schema>`))
	require.Equal(t, Malformed, res.Kind)
	assert.Equal(t, 3, res.Malformed.Line)
	assert.Equal(t, "malformed schema (line 3): element 'a': the type 'Nope' is not resolved", res.Malformed.Error())
}

func TestValidateIsIdempotent(t *testing.T) {
	xml := []byte(`<note><body>hi</body></note>`)
	xsd := []byte(noteSchema)
	v := New(WithSchemaCache(NewSchemaCache(4)))

	first := v.Validate(xml, xsd)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, v.Validate(xml, xsd))
	}
	assert.Equal(t, first, Validate(xml, xsd))
}

func TestValidateConcurrent(t *testing.T) {
	v := New(WithSchemaCache(NewSchemaCache(1)))
	docs := []string{
		`<note><text>a</text></note>`,
		`<note><body>b</body></note>`,
	}

	var wg sync.WaitGroup
	results := make([]Result, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = v.Validate([]byte(docs[i%2]), []byte(noteSchema))
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if i%2 == 0 {
			assert.Equal(t, Valid, res.Kind)
		} else {
			assert.Equal(t, Invalid, res.Kind)
		}
	}
}

func TestValidateMaxErrors(t *testing.T) {
	schema := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="list">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="n" type="xs:int" maxOccurs="unbounded"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`
	doc := `<list><n>x</n><n>y</n><n>z</n></list>`

	all := Validate([]byte(doc), []byte(schema))
	require.Len(t, all.Errors, 3)
	assert.False(t, all.Truncated)

	capped := New(WithMaxErrors(2)).Validate([]byte(doc), []byte(schema))
	assert.Equal(t, Invalid, capped.Kind)
	assert.Len(t, capped.Errors, 2)
	assert.True(t, capped.Truncated)
}

func TestValidateWithResolver(t *testing.T) {
	fsys := fstest.MapFS{
		"xsd/types.xsd": {Data: []byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="Short"><xs:restriction base="xs:string"><xs:maxLength value="3"/></xs:restriction></xs:simpleType>
</xs:schema>`)},
	}
	main := []byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:include schemaLocation="types.xsd"/>
  <xs:element name="code" type="Short"/>
</xs:schema>`)

	v := New(WithResolver(fsys, "xsd/main.xsd"))
	assert.Equal(t, Valid, v.Validate([]byte(`<code>abc</code>`), main).Kind)
	assert.Equal(t, Invalid, v.Validate([]byte(`<code>abcd</code>`), main).Kind)

	res := Validate([]byte(`<code>abc</code>`), main)
	require.Equal(t, Malformed, res.Kind)
	assert.Equal(t, SchemaStage, res.Malformed.Stage)
}

func TestValidateIncludedSchemaErrorNamesFile(t *testing.T) {
	fsys := fstest.MapFS{
		"xsd/types.xsd": {Data: []byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="x" maxOccurs="2"/>
</xs:schema>`)},
	}
	main := []byte(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:include schemaLocation="types.xsd"/>
  <xs:element name="y"/>
</xs:schema>`)

	res := New(WithResolver(fsys, "xsd/main.xsd")).Validate([]byte(`<x/>`), main)
	require.Equal(t, Malformed, res.Kind)
	assert.Equal(t, "xsd/types.xsd: global element must not have a maxOccurs attribute", res.Malformed.Reason)
	assert.Equal(t, 2, res.Malformed.Line)
}

func TestCheckSchema(t *testing.T) {
	assert.NoError(t, CheckSchema([]byte(noteSchema)))

	err := CheckSchema([]byte(`<schema/>`))
	var me *MalformedError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, SchemaStage, me.Stage)
}

func TestValidateLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	v := New(WithLogger(zap.New(core)))

	v.Validate([]byte(`<note><text>hi</text></note>`), []byte(noteSchema))
	assert.Equal(t, 1, logs.FilterMessage("schema compiled").Len())
	assert.Equal(t, 1, logs.FilterMessage("document validated").Len())
	assert.Zero(t, logs.FilterMessage("document is invalid but the error log is empty").Len())
}
