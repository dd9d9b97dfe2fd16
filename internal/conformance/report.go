package conformance

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Summary counts results.
type Summary struct {
	Total          int          `json:"total"`
	Passed         int          `json:"passed"`
	Failed         int          `json:"failed"`
	Skipped        int          `json:"skipped"`
	Errors         int          `json:"errors"`
	SchemaTests    int          `json:"schemaTests"`
	SchemaPassed   int          `json:"schemaPassed"`
	InstanceTests  int          `json:"instanceTests"`
	InstancePassed int          `json:"instancePassed"`
	Failures       []TestResult `json:"failures,omitempty"`
}

// Summarize counts results and collects the failures.
func Summarize(results []TestResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		if r.Actual == Error {
			s.Errors++
		}
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Passed:
			s.Passed++
		default:
			s.Failed++
			s.Failures = append(s.Failures, r)
		}
		if r.Kind == "schema" {
			s.SchemaTests++
			if r.Passed {
				s.SchemaPassed++
			}
		} else {
			s.InstanceTests++
			if r.Passed {
				s.InstancePassed++
			}
		}
	}
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

// maxListedFailures bounds the failure list in text reports.
const maxListedFailures = 20

// WriteText writes a human-readable summary.
func (s Summary) WriteText(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("XSD Conformance Test Results\n")
	sb.WriteString("============================\n\n")
	fmt.Fprintf(&sb, "Total Tests:     %d\n", s.Total)
	fmt.Fprintf(&sb, "Passed:          %d (%.1f%%)\n", s.Passed, percent(s.Passed, s.Total))
	fmt.Fprintf(&sb, "Failed:          %d (%.1f%%)\n", s.Failed, percent(s.Failed, s.Total))
	fmt.Fprintf(&sb, "Skipped:         %d\n", s.Skipped)
	fmt.Fprintf(&sb, "Errors:          %d\n\n", s.Errors)
	fmt.Fprintf(&sb, "Schema Tests:    %d (passed: %d, %.1f%%)\n", s.SchemaTests, s.SchemaPassed, percent(s.SchemaPassed, s.SchemaTests))
	fmt.Fprintf(&sb, "Instance Tests:  %d (passed: %d, %.1f%%)\n", s.InstanceTests, s.InstancePassed, percent(s.InstancePassed, s.InstanceTests))

	if len(s.Failures) > 0 {
		fmt.Fprintf(&sb, "\nFailed Tests (first %d):\n", maxListedFailures)
		for i, f := range s.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&sb, "... and %d more\n", len(s.Failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(&sb, "%s/%s/%s: expected=%s, actual=%s\n", f.Set, f.Group, f.Name, f.Expected, f.Actual)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteJSON writes the summary and its failure analysis as JSON.
func (s Summary) WriteJSON(w io.Writer, categories []*Category) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary
		Categories []*Category `json:"categories,omitempty"`
	}{s, categories})
}

// Category groups failures that exercise the same schema feature.
type Category struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Count       int          `json:"count"`
	Examples    []TestResult `json:"examples,omitempty"`

	keywords []string
	codes    []string
}

func newCategories() []*Category {
	return []*Category{
		{Key: "identity-constraint", Name: "Identity Constraints", Description: "key, keyref and unique constraints",
			keywords: []string{"identity", "keyref", "unique", "key"}, codes: []string{"cvc-identity-constraint"}},
		{Key: "id", Name: "ID/IDREF", Description: "ID uniqueness and IDREF resolution",
			keywords: []string{"idref"}, codes: []string{"cvc-id"}},
		{Key: "facet", Name: "Facet Validation", Description: "pattern, length, enumeration and range facets",
			keywords: []string{"pattern", "regex", "length", "enum", "facet", "whitespace", "fraction", "digit", "inclusive", "exclusive"},
			codes:    []string{"cvc-pattern-valid", "cvc-enumeration-valid", "cvc-length-valid", "cvc-minLength-valid", "cvc-maxLength-valid"}},
		{Key: "datatype", Name: "Built-in Type Validation", Description: "lexical spaces of built-in datatypes",
			keywords: []string{"datatype", "decimal", "integer", "boolean", "date", "time", "base64", "hex", "duration"},
			codes:    []string{"cvc-datatype-valid"}},
		{Key: "namespace", Name: "Namespace Handling", Description: "target namespaces and qualified forms",
			keywords: []string{"namespace", "targetns", "qualified", "import"}},
		{Key: "derivation", Name: "Complex Type Derivation", Description: "restriction and extension of complex types",
			keywords: []string{"extension", "restriction", "derive", "complexcontent", "simplecontent"}, codes: []string{"cvc-elt.4"}},
		{Key: "attribute", Name: "Attribute Use", Description: "required, prohibited and fixed attributes",
			keywords: []string{"attribute"}, codes: []string{"cvc-complex-type.3", "cvc-complex-type.4", "cvc-attribute"}},
		{Key: "content-model", Name: "Content Model", Description: "sequence, choice, all and occurrence bounds",
			keywords: []string{"sequence", "choice", "all", "group", "particle", "occur"}, codes: []string{"cvc-complex-type.2.4"}},
		{Key: "composition", Name: "Schema Composition", Description: "include, redefine and override",
			keywords: []string{"include", "redefine", "override"}},
		{Key: "wildcard", Name: "Wildcards", Description: "xs:any and xs:anyAttribute",
			keywords: []string{"wildcard", "any", "processcontents"}, codes: []string{"cvc-wildcard"}},
		{Key: "substitution", Name: "Substitution Groups", Description: "substitution groups and abstract elements",
			keywords: []string{"substitution", "abstract"}, codes: []string{"cvc-elt.2"}},
		{Key: "notation", Name: "Notations", Description: "the NOTATION type",
			keywords: []string{"notation"}},
		{Key: "value-constraint", Name: "Fixed/Default Values", Description: "value constraints on elements and attributes",
			keywords: []string{"fixed", "default"}, codes: []string{"cvc-elt.5"}},
		{Key: "simple-type", Name: "Simple Type Definition", Description: "list and union types",
			keywords: []string{"simpletype", "list", "union"}},
		{Key: "mixed", Name: "Mixed Content", Description: "mixed and element-only text checks",
			keywords: []string{"mixed"}, codes: []string{"cvc-complex-type.2.3"}},
		{Key: "other", Name: "Other", Description: "uncategorized failures"},
	}
}

// maxExamples bounds the examples kept per category.
const maxExamples = 5

// Analyze sorts failed results into categories by the violation code they
// produced, falling back to keywords in the group and test names. Empty
// categories are dropped and the rest are ordered by count.
func Analyze(results []TestResult) []*Category {
	cats := newCategories()
	for _, r := range results {
		if r.Passed || r.Skipped {
			continue
		}
		c := categorize(cats, r)
		c.Count++
		if len(c.Examples) < maxExamples {
			c.Examples = append(c.Examples, r)
		}
	}

	out := cats[:0]
	for _, c := range cats {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func categorize(cats []*Category, r TestResult) *Category {
	if r.Code != "" {
		for _, c := range cats {
			for _, code := range c.codes {
				if strings.HasPrefix(r.Code, code) {
					return c
				}
			}
		}
	}
	name := strings.ToLower(r.Group + "/" + r.Name)
	for _, c := range cats {
		for _, kw := range c.keywords {
			if strings.Contains(name, kw) {
				return c
			}
		}
	}
	return cats[len(cats)-1]
}

// WriteAnalysis writes the failure categories as text.
func WriteAnalysis(w io.Writer, cats []*Category) error {
	total := 0
	for _, c := range cats {
		total += c.Count
	}

	var sb strings.Builder
	sb.WriteString("Failure Analysis\n")
	sb.WriteString("================\n\n")
	fmt.Fprintf(&sb, "Total Failures: %d\n\n", total)
	for _, c := range cats {
		fmt.Fprintf(&sb, "%s: %d failures (%.1f%%)\n", c.Name, c.Count, percent(c.Count, total))
		fmt.Fprintf(&sb, "  %s\n", c.Description)
		for i, ex := range c.Examples {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sb, "    - %s/%s (expected: %s, got: %s)\n", ex.Group, ex.Name, ex.Expected, ex.Actual)
			if ex.Schema != "" {
				fmt.Fprintf(&sb, "      schema: %s\n", filepath.Base(ex.Schema))
			}
		}
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
