package xsd

import (
	"strings"
)

// ProcessContents defines how wildcard content is validated
type ProcessContents string

const (
	// StrictProcess requires a declaration and validates against it
	StrictProcess ProcessContents = "strict"
	// LaxProcess validates if a declaration is found, otherwise allows it
	LaxProcess ProcessContents = "lax"
	// SkipProcess allows the element/attribute without validation
	SkipProcess ProcessContents = "skip"
)

func parseProcessContents(value string) (ProcessContents, bool) {
	switch value {
	case "", "strict":
		return StrictProcess, true
	case "lax":
		return LaxProcess, true
	case "skip":
		return SkipProcess, true
	}
	return "", false
}

// NamespaceConstraint is the namespace attribute of xs:any or
// xs:anyAttribute with ##targetNamespace already resolved.
type NamespaceConstraint struct {
	Any        bool
	Not        string // ##other: any namespace except this one and absent
	Namespaces []string
}

// ParseNamespaceConstraint parses a wildcard namespace attribute value.
func ParseNamespaceConstraint(value, targetNamespace string) *NamespaceConstraint {
	value = strings.TrimSpace(value)
	switch value {
	case "", "##any":
		return &NamespaceConstraint{Any: true}
	case "##other":
		return &NamespaceConstraint{Not: targetNamespace}
	}

	c := &NamespaceConstraint{}
	for _, ns := range strings.Fields(value) {
		switch ns {
		case "##targetNamespace":
			c.Namespaces = append(c.Namespaces, targetNamespace)
		case "##local":
			c.Namespaces = append(c.Namespaces, "")
		default:
			c.Namespaces = append(c.Namespaces, ns)
		}
	}
	return c
}

// Allows reports whether a name in namespace ns is admitted.
func (c *NamespaceConstraint) Allows(ns string) bool {
	if c == nil || c.Any {
		return true
	}
	if len(c.Namespaces) == 0 {
		return ns != "" && ns != c.Not
	}
	for _, allowed := range c.Namespaces {
		if allowed == ns {
			return true
		}
	}
	return false
}

// String renders the constraint the way it is written in a schema.
func (c *NamespaceConstraint) String() string {
	switch {
	case c == nil || c.Any:
		return "##any"
	case len(c.Namespaces) == 0:
		return "##other"
	}
	parts := make([]string, len(c.Namespaces))
	for i, ns := range c.Namespaces {
		if ns == "" {
			parts[i] = "##local"
		} else {
			parts[i] = ns
		}
	}
	return strings.Join(parts, " ")
}
