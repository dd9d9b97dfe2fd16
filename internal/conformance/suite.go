// Package conformance runs W3C XML Schema test-suite metadata files
// (testSet documents) through xsdcheck and summarizes the outcome.
package conformance

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentflare-ai/xsdcheck"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TestSet is the root of a W3C test metadata file.
type TestSet struct {
	XMLName     xml.Name    `xml:"testSet"`
	Contributor string      `xml:"contributor,attr"`
	Name        string      `xml:"name,attr"`
	Groups      []TestGroup `xml:"testGroup"`
}

// TestGroup holds at most one schema test and the instance tests that
// validate against that schema.
type TestGroup struct {
	Name          string         `xml:"name,attr"`
	SchemaTest    *SchemaTest    `xml:"schemaTest"`
	InstanceTests []InstanceTest `xml:"instanceTest"`
}

// SchemaTest checks whether a schema compiles. The first document is the
// one compiled; the others are reached through include or import.
type SchemaTest struct {
	Name      string     `xml:"name,attr"`
	Documents []Ref      `xml:"schemaDocument"`
	Expected  []Expected `xml:"expected"`
}

// InstanceTest checks whether a document validates against its group's
// schema.
type InstanceTest struct {
	Name     string     `xml:"name,attr"`
	Document Ref        `xml:"instanceDocument"`
	Expected []Expected `xml:"expected"`
}

// Ref points at a file relative to the metadata file.
type Ref struct {
	Href string `xml:"href,attr"`
}

// Expected is the validity the suite asserts, optionally per XSD version.
type Expected struct {
	Validity string `xml:"validity,attr"`
	Version  string `xml:"version,attr"`
}

// Outcome values.
const (
	Valid    = "valid"
	Invalid  = "invalid"
	NotKnown = "notKnown"
	Error    = "error"
)

// expectation picks the XSD 1.0 verdict when several are listed.
func expectation(exp []Expected) string {
	for _, e := range exp {
		if e.Version == "" || strings.Contains(e.Version, "1.0") {
			return e.Validity
		}
	}
	for _, e := range exp {
		if !strings.Contains(e.Version, "1.1") {
			return e.Validity
		}
	}
	return NotKnown
}

// Load parses a test metadata file.
func Load(path string) (*TestSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test metadata: %w", err)
	}
	var ts TestSet
	if err := xml.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("failed to parse test metadata %s: %w", path, err)
	}
	return &ts, nil
}

// TestResult is the outcome of one schema or instance test.
type TestResult struct {
	Set      string `json:"set"`
	Group    string `json:"group"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Skipped  bool   `json:"skipped,omitempty"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Schema   string `json:"schema,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Runner runs test sets. Groups run concurrently; results keep metadata
// order.
type Runner struct {
	Logger      *zap.Logger
	Concurrency int

	mu      sync.Mutex
	results []TestResult
}

// NewRunner creates a Runner.
func NewRunner(logger *zap.Logger, concurrency int) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{Logger: logger, Concurrency: concurrency}
}

// Results returns everything run so far.
func (r *Runner) Results() []TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TestResult(nil), r.results...)
}

// RunFile loads and runs one metadata file.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	ts, err := Load(path)
	if err != nil {
		return err
	}
	results, err := r.RunSet(ctx, ts, filepath.Dir(path))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.results = append(r.results, results...)
	r.mu.Unlock()
	return nil
}

// RunFiles runs every metadata file matching pattern under dir. A file
// that cannot be loaded is logged and skipped.
func (r *Runner) RunFiles(ctx context.Context, dir, pattern string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("failed to find test files: %w", err)
	}
	sort.Strings(files)
	for i, path := range files {
		r.Logger.Info("running test set",
			zap.Int("index", i+1), zap.Int("total", len(files)), zap.String("file", path))
		if err := r.RunFile(ctx, path); err != nil {
			if ctx.Err() != nil {
				return i, ctx.Err()
			}
			r.Logger.Warn("skipping test set", zap.String("file", path), zap.Error(err))
		}
	}
	return len(files), nil
}

// RunSet runs every group of ts. base is the directory hrefs are
// relative to.
func (r *Runner) RunSet(ctx context.Context, ts *TestSet, base string) ([]TestResult, error) {
	perGroup := make([][]TestResult, len(ts.Groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Concurrency)
	for i, group := range ts.Groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			perGroup[i] = r.runGroup(ts.Name, group, base)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []TestResult
	for _, rs := range perGroup {
		out = append(out, rs...)
	}
	return out, nil
}

func (r *Runner) runGroup(set string, group TestGroup, base string) []TestResult {
	var (
		out        []TestResult
		schemaData []byte
		schemaPath string
		v          *xsdcheck.Validator
	)

	if st := group.SchemaTest; st != nil && len(st.Documents) > 0 {
		schemaPath = filepath.Join(base, filepath.FromSlash(st.Documents[0].Href))
		res := TestResult{
			Set: set, Group: group.Name, Name: st.Name, Kind: "schema",
			Expected: expectation(st.Expected), Schema: st.Documents[0].Href,
		}
		v = validatorFor(schemaPath)
		data, err := os.ReadFile(schemaPath)
		switch {
		case err != nil:
			res.Actual, res.Detail = Error, err.Error()
		default:
			if _, err := v.Schema(data); err != nil {
				res.Actual, res.Detail = Invalid, err.Error()
			} else {
				res.Actual = Valid
				schemaData = data
			}
		}
		out = append(out, score(res))
	}

	for _, it := range group.InstanceTests {
		res := TestResult{
			Set: set, Group: group.Name, Name: it.Name, Kind: "instance",
			Expected: expectation(it.Expected), Instance: it.Document.Href,
		}
		if schemaData == nil {
			res.Actual, res.Detail = Error, "no usable schema in test group"
			out = append(out, score(res))
			continue
		}
		res.Schema = group.SchemaTest.Documents[0].Href

		data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(it.Document.Href)))
		if err != nil {
			res.Actual, res.Detail = Error, err.Error()
			out = append(out, score(res))
			continue
		}
		result := v.Validate(data, schemaData)
		switch result.Kind {
		case xsdcheck.Valid:
			res.Actual = Valid
		case xsdcheck.Invalid:
			res.Actual = Invalid
			if len(result.Errors) > 0 {
				res.Code = result.Errors[0].Code
				res.Detail = result.Errors[0].String()
			}
		default:
			res.Actual, res.Detail = Error, result.Malformed.Error()
		}
		out = append(out, score(res))
	}

	r.Logger.Debug("test group done", zap.String("set", set), zap.String("group", group.Name), zap.Int("tests", len(out)))
	return out
}

func validatorFor(schemaPath string) *xsdcheck.Validator {
	dir, name := filepath.Split(schemaPath)
	if dir == "" {
		dir = "."
	}
	return xsdcheck.New(
		xsdcheck.WithResolver(os.DirFS(dir), filepath.ToSlash(name)),
		xsdcheck.WithSchemaCache(xsdcheck.NewSchemaCache(1)),
		xsdcheck.WithMaxErrors(1),
	)
}

func score(res TestResult) TestResult {
	if res.Expected == NotKnown || res.Expected == "" {
		res.Skipped = true
		return res
	}
	res.Passed = res.Expected == res.Actual
	return res
}
