package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noteSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:include schemaLocation="types.xsd"/>
  <xs:element name="note">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="text" type="Short"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

const typesSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="Short">
    <xs:restriction base="xs:string"><xs:maxLength value="5"/></xs:restriction>
  </xs:simpleType>
</xs:schema>`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"xsd/note.xsd":  noteSchema,
		"xsd/types.xsd": typesSchema,
		"good.xml":      `<note><text>hi</text></note>`,
		"long.xml":      "<note>\n  <text>far too long</text>\n</note>",
		"broken.xml":    `<note><text>hi</note>`,
	})
	schema := filepath.Join(dir, "xsd", "note.xsd")
	good := filepath.Join(dir, "good.xml")
	long := filepath.Join(dir, "long.xml")
	broken := filepath.Join(dir, "broken.xml")

	t.Run("all valid", func(t *testing.T) {
		out, _, err := run(t, "validate", "--schema", schema, good)
		require.NoError(t, err)
		assert.Equal(t, "ok: "+good+" is valid\n", out)
	})

	t.Run("invalid document", func(t *testing.T) {
		out, _, err := run(t, "validate", "-s", schema, "--color", "never", good, long)
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, out, "ok: "+good+" is valid")
		assert.Contains(t, out, long+":2:")
		assert.Contains(t, out, "2 |   <text>far too long</text>")
		assert.Contains(t, out, "[facet 'maxLength']")
	})

	t.Run("results keep argument order", func(t *testing.T) {
		out, _, err := run(t, "validate", "-s", schema, "-j", "2", long, good, long)
		require.ErrorIs(t, err, ErrInvalid)
		first := bytes.Index([]byte(out), []byte("ok: "))
		last := bytes.LastIndex([]byte(out), []byte("invalid: "+long))
		assert.Greater(t, last, first)
	})

	t.Run("malformed document", func(t *testing.T) {
		out, _, err := run(t, "validate", "-s", schema, broken)
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, out, "error[malformed-document]")
	})

	t.Run("missing document", func(t *testing.T) {
		out, _, err := run(t, "validate", "-s", schema, filepath.Join(dir, "nope.xml"))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, out, "error[malformed-document]")
	})

	t.Run("json format", func(t *testing.T) {
		out, _, err := run(t, "validate", "-s", schema, "--format", "json", good)
		require.NoError(t, err)
		assert.Contains(t, out, `"result": "valid"`)
	})

	t.Run("html format", func(t *testing.T) {
		out, _, err := run(t, "validate", "-s", schema, "-f", "html", long)
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, out, "<b>Line 2:</b>")
	})

	t.Run("no schema", func(t *testing.T) {
		_, _, err := run(t, "validate", good)
		assert.ErrorContains(t, err, "no schema given")
	})

	t.Run("bad flag value", func(t *testing.T) {
		_, _, err := run(t, "validate", "-s", schema, "--format", "pdf", good)
		assert.ErrorContains(t, err, "format must be one of")
	})
}

func TestValidateCommandConfigFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"note.xsd":  noteSchema,
		"types.xsd": typesSchema,
		"good.xml":  `<note><text>hi</text></note>`,
	})
	cfg := filepath.Join(dir, "xsdcheck.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("schema: "+filepath.Join(dir, "note.xsd")+"\nformat: json\n"), 0o644))

	out, _, err := run(t, "validate", "--config", cfg, filepath.Join(dir, "good.xml"))
	require.NoError(t, err)
	assert.Contains(t, out, `"result": "valid"`)

	out, _, err = run(t, "validate", "--config", cfg, "--format", "text", filepath.Join(dir, "good.xml"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestSchemaCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"note.xsd":  noteSchema,
		"types.xsd": typesSchema,
		"bad.xsd":   "<xs:schema xmlns:xs=\"http://www.w3.org/2001/XMLSchema\">\n  <xs:element name=\"a\" type=\"Nope\"/>\n</xs:schema>",
		"text.xsd":  "not a schema",
	})

	out, _, err := run(t, "schema", filepath.Join(dir, "note.xsd"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, _, err = run(t, "schema", "--color", "never", filepath.Join(dir, "note.xsd"), filepath.Join(dir, "bad.xsd"), filepath.Join(dir, "text.xsd"))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, out, "error[malformed-schema]: element 'a': the type 'Nope' is not resolved")
	assert.Contains(t, out, "schema line 2")
}

func TestSchemaCommandLogs(t *testing.T) {
	dir := writeFiles(t, map[string]string{"note.xsd": noteSchema, "types.xsd": typesSchema})

	_, stderr, err := run(t, "schema", "--log-level", "info", filepath.Join(dir, "note.xsd"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "schema compiles")
}

func TestSuiteCommand(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"meta/set_w3c.xml": `<testSet name="set">
  <testGroup name="g">
    <schemaTest name="g.s"><schemaDocument href="../data/s.xsd"/><expected validity="valid"/></schemaTest>
    <instanceTest name="g.v"><instanceDocument href="../data/ok.xml"/><expected validity="valid"/></instanceTest>
    <instanceTest name="g.i"><instanceDocument href="../data/ok.xml"/><expected validity="invalid"/></instanceTest>
  </testGroup>
</testSet>`,
		"data/s.xsd":  `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a" type="xs:string"/></xs:schema>`,
		"data/ok.xml": `<a>x</a>`,
	})

	out, _, err := run(t, "suite", "--dir", dir, "--pattern", "meta/*_w3c.xml", "--analyze")
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, out, "Total Tests:     3")
	assert.Contains(t, out, "Passed:          2")
	assert.Contains(t, out, "set/g/g.i: expected=invalid, actual=valid")
	assert.Contains(t, out, "Failure Analysis")

	report := filepath.Join(dir, "report.json")
	_, _, err = run(t, "suite", "-f", "json", "-o", report, filepath.Join(dir, "meta", "set_w3c.xml"))
	require.ErrorIs(t, err, ErrInvalid)
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total": 3`)

	_, _, err = run(t, "suite")
	assert.ErrorContains(t, err, "no test metadata given")
}
