package conformance

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadata = `<testSet xmlns="http://www.w3.org/XML/2004/xml-schema-test-suite/" contributor="test" name="sample">
  <testGroup name="intRange">
    <schemaTest name="intRange.s">
      <schemaDocument href="../data/int.xsd"/>
      <expected validity="valid"/>
    </schemaTest>
    <instanceTest name="intRange.v">
      <instanceDocument href="../data/int-ok.xml"/>
      <expected validity="valid"/>
    </instanceTest>
    <instanceTest name="intRange.i">
      <instanceDocument href="../data/int-bad.xml"/>
      <expected validity="invalid"/>
    </instanceTest>
    <instanceTest name="intRange.wrong">
      <instanceDocument href="../data/int-bad.xml"/>
      <expected validity="valid"/>
    </instanceTest>
  </testGroup>
  <testGroup name="brokenSchema">
    <schemaTest name="broken.s">
      <schemaDocument href="../data/broken.xsd"/>
      <expected validity="invalid" version="1.0"/>
      <expected validity="valid" version="1.1"/>
    </schemaTest>
    <instanceTest name="broken.v">
      <instanceDocument href="../data/int-ok.xml"/>
      <expected validity="notKnown"/>
    </instanceTest>
  </testGroup>
</testSet>`

func writeSuite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"meta/sample.xml": metadata,
		"data/int.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="n">
    <xs:simpleType><xs:restriction base="xs:int"><xs:maxInclusive value="10"/></xs:restriction></xs:simpleType>
  </xs:element>
</xs:schema>`,
		"data/int-ok.xml":  `<n>7</n>`,
		"data/int-bad.xml": `<n>11</n>`,
		"data/broken.xsd":  `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="n" type="Nope"/></xs:schema>`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestRunFile(t *testing.T) {
	dir := writeSuite(t)
	r := NewRunner(nil, 2)
	require.NoError(t, r.RunFile(context.Background(), filepath.Join(dir, "meta", "sample.xml")))

	results := r.Results()
	require.Len(t, results, 6)

	byName := map[string]TestResult{}
	for _, res := range results {
		byName[res.Name] = res
	}
	assert.Equal(t, "intRange.s", results[0].Name, "metadata order is kept")

	assert.True(t, byName["intRange.s"].Passed)
	assert.True(t, byName["intRange.v"].Passed)
	assert.True(t, byName["intRange.i"].Passed)
	assert.Equal(t, "cvc-datatype-valid.1.2.1", byName["intRange.i"].Code)

	wrong := byName["intRange.wrong"]
	assert.False(t, wrong.Passed)
	assert.Equal(t, Invalid, wrong.Actual)

	broken := byName["broken.s"]
	assert.Equal(t, Invalid, broken.Expected)
	assert.True(t, broken.Passed)
	assert.Contains(t, broken.Detail, "'Nope' is not resolved")

	skipped := byName["broken.v"]
	assert.True(t, skipped.Skipped)
	assert.Equal(t, Error, skipped.Actual)
}

func TestRunFiles(t *testing.T) {
	dir := writeSuite(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta", "bad.xml"), []byte("<testSet"), 0o644))

	r := NewRunner(nil, 1)
	n, err := r.RunFiles(context.Background(), dir, "meta/*.xml")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, r.Results(), 6)
}

func TestSummaryAndAnalysis(t *testing.T) {
	dir := writeSuite(t)
	r := NewRunner(nil, 1)
	require.NoError(t, r.RunFile(context.Background(), filepath.Join(dir, "meta", "sample.xml")))

	s := Summarize(r.Results())
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 4, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 2, s.SchemaTests)
	assert.Equal(t, 2, s.SchemaPassed)

	var buf bytes.Buffer
	require.NoError(t, s.WriteText(&buf))
	assert.Contains(t, buf.String(), "Total Tests:     6")
	assert.Contains(t, buf.String(), "sample/intRange/intRange.wrong: expected=valid, actual=invalid")

	cats := Analyze(r.Results())
	require.Len(t, cats, 1)
	assert.Equal(t, "datatype", cats[0].Key)
	assert.Equal(t, 1, cats[0].Count)

	buf.Reset()
	require.NoError(t, WriteAnalysis(&buf, cats))
	assert.Contains(t, buf.String(), "Built-in Type Validation: 1 failures (100.0%)")

	buf.Reset()
	require.NoError(t, s.WriteJSON(&buf, cats))
	assert.Contains(t, buf.String(), `"failed": 1`)
	assert.Contains(t, buf.String(), `"key": "datatype"`)
}

func TestCategorizeByName(t *testing.T) {
	cats := Analyze([]TestResult{
		{Group: "particlesZ", Name: "sequence01", Actual: Valid, Expected: Invalid},
		{Group: "wildG", Name: "processContents2", Actual: Valid, Expected: Invalid},
		{Group: "misc", Name: "zz", Actual: Valid, Expected: Invalid},
	})
	keys := make([]string, len(cats))
	for i, c := range cats {
		keys[i] = c.Key
	}
	assert.ElementsMatch(t, []string{"content-model", "wildcard", "other"}, keys)
}
