// Package xsdcheck validates XML documents against XML Schema (XSD 1.0)
// documents and reports every violation with its line number.
package xsdcheck

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/agentflare-ai/xsdcheck/xsd"
	"go.uber.org/zap"
)

// Validator checks documents against schemas. The zero value is not
// usable; create one with New. A Validator is safe for concurrent use.
type Validator struct {
	logger    *zap.Logger
	cache     *SchemaCache
	resolver  fs.FS
	location  string
	maxErrors int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSchemaCache reuses compiled schemas across calls.
func WithSchemaCache(cache *SchemaCache) Option {
	return func(v *Validator) { v.cache = cache }
}

// WithResolver loads xs:include and xs:import schemaLocation values from
// fsys. location names the schema being validated against inside fsys so
// relative locations resolve from its directory.
func WithResolver(fsys fs.FS, location string) Option {
	return func(v *Validator) {
		v.resolver = fsys
		v.location = location
	}
}

// WithMaxErrors caps the number of violations kept in a Result. Zero or
// less keeps all of them.
func WithMaxErrors(n int) Option {
	return func(v *Validator) { v.maxErrors = n }
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// Validate checks xmlData against the schema in xsdData with default
// settings.
func Validate(xmlData, xsdData []byte) Result {
	return defaultValidator.Validate(xmlData, xsdData)
}

// CheckSchema compiles xsdData and returns a *MalformedError if it is not
// a usable schema.
func CheckSchema(xsdData []byte) error {
	_, err := defaultValidator.Schema(xsdData)
	return err
}

// Validate checks xmlData against the schema in xsdData.
func (v *Validator) Validate(xmlData, xsdData []byte) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = malformed(&MalformedError{Stage: DocumentStage, Reason: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	schema, err := v.Schema(xsdData)
	if err != nil {
		var me *MalformedError
		if errors.As(err, &me) {
			return malformed(me)
		}
		return malformed(&MalformedError{Stage: SchemaStage, Reason: err.Error()})
	}

	doc, err := xmldom.Decode(bytes.NewReader(xmlData))
	if err != nil {
		v.logger.Debug("document is not well-formed", zap.Error(err))
		return malformed(&MalformedError{Stage: DocumentStage, Line: syntaxErrorLine(err), Reason: err.Error()})
	}
	if doc == nil || doc.DocumentElement() == nil {
		return malformed(&MalformedError{Stage: DocumentStage, Reason: "the document has no root element"})
	}
	if line, reason := strayContent(doc); reason != "" {
		return malformed(&MalformedError{Stage: DocumentStage, Line: line, Reason: reason})
	}

	return v.ValidateDocument(doc, schema)
}

// ValidateDocument checks an already parsed document against a compiled
// schema.
func (v *Validator) ValidateDocument(doc xmldom.Document, schema *xsd.Schema) Result {
	violations := xsd.NewValidator(schema).Validate(doc)
	if len(violations) == 0 {
		v.logger.Debug("document validated", zap.Int("errors", 0))
		return Result{Kind: Valid}
	}

	res := Result{Kind: Invalid, Errors: make([]ValidationError, 0, len(violations))}
	for _, viol := range violations {
		if viol.Message == "" {
			continue
		}
		if v.maxErrors > 0 && len(res.Errors) == v.maxErrors {
			res.Truncated = true
			break
		}
		res.Errors = append(res.Errors, ValidationError{
			Line:      viol.Line,
			Column:    viol.Column,
			Code:      viol.Code,
			Element:   viol.Element,
			Attribute: viol.Attribute,
			Message:   viol.Message,
		})
	}
	if len(res.Errors) == 0 {
		v.logger.Warn("document is invalid but the error log is empty",
			zap.Int("violations", len(violations)))
	}
	v.logger.Debug("document validated",
		zap.Int("errors", len(res.Errors)),
		zap.Bool("truncated", res.Truncated))
	return res
}

// Schema parses and compiles xsdData, using the cache when one is set.
// Failures are returned as *MalformedError with the schema stage.
func (v *Validator) Schema(xsdData []byte) (*xsd.Schema, error) {
	compile := func() (*xsd.Schema, error) {
		return v.compile(xsdData)
	}
	if v.cache == nil {
		return compile()
	}
	return v.cache.GetOrCompile(v.location, xsdData, compile)
}

func (v *Validator) compile(xsdData []byte) (*xsd.Schema, error) {
	doc, err := xmldom.Decode(bytes.NewReader(xsdData))
	if err != nil {
		v.logger.Debug("schema is not well-formed", zap.Error(err))
		return nil, &MalformedError{Stage: SchemaStage, Line: syntaxErrorLine(err), Reason: err.Error()}
	}

	if line, reason := strayContent(doc); reason != "" {
		return nil, &MalformedError{Stage: SchemaStage, Line: line, Reason: reason}
	}

	var opts []xsd.CompileOption
	if v.resolver != nil {
		opts = append(opts, xsd.WithResolver(v.resolver), xsd.WithLocation(v.location))
	}
	schema, err := xsd.Compile(doc, opts...)
	if err != nil {
		v.logger.Debug("schema does not compile", zap.Error(err))
		me := &MalformedError{Stage: SchemaStage, Reason: err.Error()}
		var se *xsd.SchemaError
		if errors.As(err, &se) {
			me.Line = se.Line
			me.Reason = se.Message
			if se.Location != "" && se.Location != v.location {
				me.Reason = se.Location + ": " + se.Message
			}
		}
		return nil, me
	}
	v.logger.Debug("schema compiled",
		zap.String("targetNamespace", schema.TargetNamespace),
		zap.Int("elements", len(schema.ElementDecls)),
		zap.Int("types", len(schema.TypeDefs)))
	return schema, nil
}

func malformed(me *MalformedError) Result {
	return Result{Kind: Malformed, Malformed: me}
}

// strayContent finds content outside the root element: a second top-level
// element or non-blank text. go-xmldom keeps both as document children.
func strayContent(doc xmldom.Document) (int, string) {
	roots := 0
	nodes := doc.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		node := nodes.Item(i)
		if node == nil {
			continue
		}
		switch node.NodeType() {
		case xmldom.ELEMENT_NODE:
			if roots++; roots > 1 {
				return nodeLine(node), "Extra content at the end of the document"
			}
		case xmldom.TEXT_NODE, xmldom.CDATA_SECTION_NODE:
			if strings.TrimSpace(string(node.NodeValue())) != "" {
				return nodeLine(node), "Start tag expected, text found outside the root element"
			}
		}
	}
	return 0, ""
}

func nodeLine(node xmldom.Node) int {
	line, _, _ := node.Position()
	return line
}

var lineInMessage = regexp.MustCompile(`\bline (\d+)`)

// syntaxErrorLine extracts the line number a parser error points at, or 0.
func syntaxErrorLine(err error) int {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return se.Line
	}
	if m := lineInMessage.FindStringSubmatch(err.Error()); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
