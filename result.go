package xsdcheck

import (
	"fmt"
	"strings"
)

// Kind classifies the outcome of a validation. The zero Kind is none of
// the outcomes, so an unset Result never reads as valid.
type Kind int

const (
	// Valid means the document conforms to the schema.
	Valid Kind = iota + 1
	// Invalid means both inputs were usable but the document violates the schema.
	Invalid
	// Malformed means one of the inputs could not be parsed or compiled.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets Kind render as its name in JSON reports.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Stage names the input that was malformed.
type Stage string

const (
	SchemaStage   Stage = "schema"
	DocumentStage Stage = "document"
)

// ValidationError is one schema violation found in the document.
type ValidationError struct {
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
	Code      string `json:"code,omitempty"`
	Element   string `json:"element,omitempty"`
	Attribute string `json:"attribute,omitempty"`
	Message   string `json:"message"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("Line %d: %s", e.Line, e.Message)
}

// MalformedError describes an input that never reached validation.
type MalformedError struct {
	Stage  Stage  `json:"stage"`
	Line   int    `json:"line,omitempty"`
	Reason string `json:"reason"`
}

func (e *MalformedError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed %s (line %d): %s", e.Stage, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed %s: %s", e.Stage, e.Reason)
}

// Result is the outcome of validating one document against one schema.
// Errors is set only for Invalid results, Malformed only for Malformed ones.
type Result struct {
	Kind      Kind              `json:"result"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
	Malformed *MalformedError   `json:"malformed,omitempty"`
}

// OK reports whether the document is valid.
func (r Result) OK() bool { return r.Kind == Valid }

// Err returns the malformed-input error, if any.
func (r Result) Err() error {
	if r.Malformed == nil {
		return nil
	}
	return r.Malformed
}

func (r Result) String() string {
	switch r.Kind {
	case Valid:
		return "valid"
	case Malformed:
		return r.Malformed.Error()
	}
	if len(r.Errors) == 0 {
		return "invalid, no detailed errors"
	}
	lines := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
