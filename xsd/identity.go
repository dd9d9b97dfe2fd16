package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// IdentityConstraintKind represents the type of identity constraint
type IdentityConstraintKind string

const (
	KeyConstraint    IdentityConstraintKind = "key"
	KeyRefConstraint IdentityConstraintKind = "keyref"
	UniqueConstraint IdentityConstraintKind = "unique"
)

// IdentityConstraint represents an xs:key, xs:keyref or xs:unique
// declared on an element.
type IdentityConstraint struct {
	Name     QName
	Kind     IdentityConstraintKind
	Selector string
	Fields   []string
	Refer    QName

	referenced *IdentityConstraint
	selector   []xpathPath
	fields     [][]xpathPath
	line       int
}

// xpathStep is a name test. An empty local name means self (".").
type xpathStep struct {
	namespace string
	local     string
	anyNS     bool
}

func (s xpathStep) self() bool { return s.local == "" }

func (s xpathStep) matches(namespace, local string) bool {
	if s.local != "*" && s.local != local {
		return false
	}
	return s.anyNS || s.namespace == namespace
}

// xpathPath is one alternative of the restricted XPath used by selectors
// and fields: an optional .// prefix, child steps and, for fields, a final
// attribute step.
type xpathPath struct {
	descendant bool
	steps      []xpathStep
	attr       *xpathStep
}

func (c *compiler) compileIdentityConstraint(sc *scope, el xmldom.Element) (*IdentityConstraint, error) {
	sc = sc.with(el)
	name := attr(el, "name")
	if name == "" {
		return nil, c.errorf(sc, el, "identity constraint must have a name attribute")
	}
	ic := &IdentityConstraint{
		Name: QName{Namespace: sc.targetNamespace, Local: name},
		Kind: IdentityConstraintKind(el.LocalName()),
		line: lineOf(el),
	}
	if _, dup := c.constraints[ic.Name]; dup {
		return nil, c.errorf(sc, el, "identity constraint '%s' is already defined", name)
	}
	c.constraints[ic.Name] = ic

	for _, child := range schemaChildren(el) {
		csc := sc.with(child)
		xpath := attr(child, "xpath")
		switch string(child.LocalName()) {
		case "selector":
			paths, err := parseXPath(csc, xpath, false)
			if err != nil {
				return nil, c.errorf(sc, child, "invalid selector xpath '%s': %v", xpath, err)
			}
			ic.Selector, ic.selector = xpath, paths
		case "field":
			paths, err := parseXPath(csc, xpath, true)
			if err != nil {
				return nil, c.errorf(sc, child, "invalid field xpath '%s': %v", xpath, err)
			}
			ic.Fields = append(ic.Fields, xpath)
			ic.fields = append(ic.fields, paths)
		}
	}
	if ic.selector == nil {
		return nil, c.errorf(sc, el, "identity constraint '%s' requires a selector", name)
	}
	if len(ic.fields) == 0 {
		return nil, c.errorf(sc, el, "identity constraint '%s' requires at least one field", name)
	}

	if ic.Kind == KeyRefConstraint {
		refer := attr(el, "refer")
		if refer == "" {
			return nil, c.errorf(sc, el, "keyref '%s' requires a refer attribute", name)
		}
		q, err := c.resolveQName(sc, el, refer)
		if err != nil {
			return nil, err
		}
		ic.Refer = q
		c.fixup(func() error {
			target, ok := c.constraints[q]
			if !ok || target.Kind == KeyRefConstraint {
				return c.errorf(sc, el, "keyref '%s' refers to '%s', which is not a key or unique constraint", name, refer)
			}
			if len(target.fields) != len(ic.fields) {
				return c.errorf(sc, el, "keyref '%s' has %d fields but '%s' has %d", name, len(ic.fields), refer, len(target.fields))
			}
			ic.referenced = target
			return nil
		})
	}
	return ic, nil
}

// parseXPath parses the XPath subset allowed in selector and field
// expressions.
func parseXPath(sc *scope, expr string, field bool) ([]xpathPath, error) {
	var paths []xpathPath
	for _, alt := range strings.Split(expr, "|") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("empty path")
		}
		var p xpathPath
		if strings.HasPrefix(alt, ".//") {
			p.descendant = true
			alt = alt[3:]
		}
		parts := strings.Split(alt, "/")
		for i, part := range parts {
			part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "child::"))
			last := i == len(parts)-1
			if strings.HasPrefix(part, "@") || strings.HasPrefix(part, "attribute::") {
				if !field || !last {
					return nil, fmt.Errorf("attribute step is only allowed at the end of a field")
				}
				part = strings.TrimPrefix(strings.TrimPrefix(part, "@"), "attribute::")
				step, err := parseNameTest(sc, part)
				if err != nil {
					return nil, err
				}
				p.attr = &step
				continue
			}
			if part == "." {
				p.steps = append(p.steps, xpathStep{})
				continue
			}
			step, err := parseNameTest(sc, part)
			if err != nil {
				return nil, err
			}
			p.steps = append(p.steps, step)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func parseNameTest(sc *scope, test string) (xpathStep, error) {
	if test == "*" {
		return xpathStep{local: "*", anyNS: true}, nil
	}
	prefix, local, found := strings.Cut(test, ":")
	if !found {
		if !isNCName(test) {
			return xpathStep{}, fmt.Errorf("invalid name test '%s'", test)
		}
		// Unprefixed names in XPath are in no namespace.
		return xpathStep{local: test}, nil
	}
	ns, ok := sc.ns[prefix]
	if !ok {
		return xpathStep{}, fmt.Errorf("prefix '%s' is not bound", prefix)
	}
	if local != "*" && !isNCName(local) {
		return xpathStep{}, fmt.Errorf("invalid name test '%s'", test)
	}
	return xpathStep{namespace: ns, local: local}, nil
}

// selectElements evaluates selector paths from el.
func selectElements(el xmldom.Element, paths []xpathPath) []xmldom.Element {
	var out []xmldom.Element
	seen := make(map[xmldom.Element]bool)
	for _, p := range paths {
		for _, node := range evalSteps(el, p) {
			if !seen[node] {
				seen[node] = true
				out = append(out, node)
			}
		}
	}
	return out
}

func evalSteps(el xmldom.Element, p xpathPath) []xmldom.Element {
	current := []xmldom.Element{el}
	if p.descendant {
		current = descendantsOrSelf(el, nil)
	}
	for _, step := range p.steps {
		if step.self() {
			continue
		}
		var next []xmldom.Element
		for _, node := range current {
			for _, child := range childElements(node) {
				if step.matches(string(child.NamespaceURI()), string(child.LocalName())) {
					next = append(next, child)
				}
			}
		}
		current = next
	}
	return current
}

func descendantsOrSelf(el xmldom.Element, out []xmldom.Element) []xmldom.Element {
	out = append(out, el)
	for _, child := range childElements(el) {
		out = descendantsOrSelf(child, out)
	}
	return out
}

// fieldValue evaluates a field from a selected element. It reports how
// many nodes the field matched; only a count of one yields a value.
func fieldValue(el xmldom.Element, paths []xpathPath) (string, int) {
	var values []string
	for _, p := range paths {
		for _, node := range evalSteps(el, p) {
			if p.attr == nil {
				values = append(values, textContent(node))
				continue
			}
			attrs := node.Attributes()
			for i := uint(0); i < attrs.Length(); i++ {
				a := attrs.Item(i)
				if a == nil {
					continue
				}
				if isNamespaceDecl(a) {
					continue
				}
				if p.attr.matches(string(a.NamespaceURI()), string(a.LocalName())) {
					values = append(values, string(a.NodeValue()))
				}
			}
		}
	}
	if len(values) != 1 {
		return "", len(values)
	}
	return strings.Join(strings.Fields(values[0]), " "), 1
}

type keyTable map[string]bool

func keySequence(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// checkIdentityConstraints evaluates the constraints declared for el. Key
// and unique tables are kept so that keyrefs on ancestors can use them.
func (v *Validator) checkIdentityConstraints(el xmldom.Element, decl *ElementDecl) {
	ordered := make([]*IdentityConstraint, 0, len(decl.Constraints))
	for _, ic := range decl.Constraints {
		if ic.Kind != KeyRefConstraint {
			ordered = append(ordered, ic)
		}
	}
	for _, ic := range decl.Constraints {
		if ic.Kind == KeyRefConstraint {
			ordered = append(ordered, ic)
		}
	}

	for _, ic := range ordered {
		table := keyTable{}
		for _, node := range selectElements(el, ic.selector) {
			values := make([]string, 0, len(ic.fields))
			complete := true
			for i, field := range ic.fields {
				value, count := fieldValue(node, field)
				if count > 1 {
					v.report(node, "", "cvc-identity-constraint.3",
						"The XPath '%s' of a field of %s identity-constraint '%s' evaluates to a node-set with more than one member.",
						ic.Fields[i], ic.Kind, ic.Name.Local)
					complete = false
					break
				}
				if count == 0 {
					if ic.Kind == KeyConstraint {
						v.report(node, "", "cvc-identity-constraint.4.2.1",
							"The XPath '%s' of a field of key identity-constraint '%s' evaluates to a node-set with more or less than one member.",
							ic.Fields[i], ic.Name.Local)
					}
					complete = false
					break
				}
				values = append(values, value)
			}
			if !complete {
				continue
			}
			seq := keySequence(values)

			if ic.Kind == KeyRefConstraint {
				if ic.referenced != nil && !v.keyTables[ic.referenced][seq] {
					v.report(node, "", "cvc-identity-constraint.4.3",
						"No match found for key-sequence %s of keyref '%s'.", seq, ic.Name.Local)
				}
				continue
			}
			if table[seq] {
				v.report(node, "", "cvc-identity-constraint.4.1",
					"Duplicate key-sequence %s in %s identity-constraint '%s'.", seq, ic.Kind, ic.Name.Local)
				continue
			}
			table[seq] = true
		}
		if ic.Kind != KeyRefConstraint {
			merged := v.keyTables[ic]
			if merged == nil {
				merged = keyTable{}
				v.keyTables[ic] = merged
			}
			for seq := range table {
				merged[seq] = true
			}
		}
	}
}
