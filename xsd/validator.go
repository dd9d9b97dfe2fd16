package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

const xmlnsNamespace = "http://www.w3.org/2000/xmlns/"

// Validator validates XML documents against a compiled schema. A Validator
// keeps per-run state and must not be used by two goroutines at once; the
// Schema it wraps can be shared.
type Validator struct {
	schema     *Schema
	violations []Violation
	ids        map[string]bool
	idrefs     []pendingIDREF
	keyTables  map[*IdentityConstraint]keyTable
}

type pendingIDREF struct {
	el    xmldom.Element
	attr  string
	value string
}

// NewValidator creates a new validator for a schema
func NewValidator(schema *Schema) *Validator {
	return &Validator{schema: schema}
}

// Validate validates an XML document against the schema and returns every
// violation found, in document order.
func (v *Validator) Validate(doc xmldom.Document) []Violation {
	v.violations = nil
	v.ids = make(map[string]bool)
	v.idrefs = nil
	v.keyTables = make(map[*IdentityConstraint]keyTable)

	if doc == nil || doc.DocumentElement() == nil {
		return []Violation{{Code: "xsd-no-root", Message: "The document has no root element."}}
	}
	root := doc.DocumentElement()
	decl := v.schema.ElementDecls[qnameOf(root)]
	if decl == nil {
		v.report(root, "", "cvc-elt.1.a", "No matching global declaration available for the validation root.")
		return v.violations
	}
	v.validateElement(root, decl, namespaceScope(nil, root))

	for _, ref := range v.idrefs {
		if !v.ids[ref.value] {
			v.report(ref.el, ref.attr, "cvc-id.1", "There is no ID/IDREF binding for IDREF '%s'.", ref.value)
		}
	}
	return v.violations
}

// report records a violation in the libxml2 message style:
// "Element 'name', attribute 'a': message".
func (v *Validator) report(el xmldom.Element, attrName, code, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	name := displayName(qnameOf(el))
	prefix := fmt.Sprintf("Element '%s'", name)
	if attrName != "" {
		prefix += fmt.Sprintf(", attribute '%s'", attrName)
	}
	line, col, _ := el.Position()
	v.violations = append(v.violations, Violation{
		Line:      line,
		Column:    col,
		Element:   name,
		Attribute: attrName,
		Code:      code,
		Message:   prefix + ": " + msg,
	})
}

func (v *Validator) reportExpected(el xmldom.Element, code, message string, expected []string) {
	if len(expected) > 0 {
		message += fmt.Sprintf(" Expected is ( %s )", strings.Join(expected, ", "))
	}
	v.report(el, "", code, "%s", message)
	v.violations[len(v.violations)-1].Expected = expected
}

// namespaceScope extends the in-scope namespace bindings with those
// declared on el.
func namespaceScope(parent map[string]string, el xmldom.Element) map[string]string {
	decls := namespaceDecls(el)
	if len(decls) == 0 && parent != nil {
		return parent
	}
	scope := make(map[string]string, len(parent)+len(decls))
	for k, ns := range parent {
		scope[k] = ns
	}
	for k, ns := range decls {
		scope[k] = ns
	}
	return scope
}

func (v *Validator) validateElement(el xmldom.Element, decl *ElementDecl, ns map[string]string) {
	if decl.Abstract {
		v.report(el, "", "cvc-elt.2", "The element declaration is abstract.")
	}

	t := decl.Type
	if xsiType, ok := instanceAttr(el, "type"); ok {
		override, valid := v.resolveXSIType(el, xsiType, t, ns)
		if !valid {
			return
		}
		t = override
	}

	if nilValue, ok := instanceAttr(el, "nil"); ok {
		nilled := strings.TrimSpace(nilValue) == "true" || strings.TrimSpace(nilValue) == "1"
		if !decl.Nillable {
			v.report(el, "", "cvc-elt.3.1", "The element is not 'nillable'.")
		} else if nilled {
			if len(childElements(el)) > 0 || strings.TrimFunc(textContent(el), isXMLSpace) != "" {
				v.report(el, "", "cvc-elt.3.2.1", "The element cannot be 'nilled' because there is character or element content.")
			}
			if decl.HasFixed {
				v.report(el, "", "cvc-elt.3.2.2", "The element cannot be 'nilled' because it has a fixed value constraint.")
			}
			if ct, ok := t.(*ComplexType); ok {
				v.validateAttributes(el, ct)
			}
			return
		}
	}

	switch t := t.(type) {
	case *SimpleType:
		v.rejectAttributes(el)
		if len(childElements(el)) > 0 {
			v.report(el, "", "cvc-type.3.1.2", "Element content is not allowed, because the type definition is simple.")
			break
		}
		v.validateText(el, decl, t)
	case *ComplexType:
		if t.Abstract {
			v.report(el, "", "cvc-type.2", "The type definition is abstract.")
		}
		v.validateAttributes(el, t)
		v.validateComplexContent(el, decl, t, ns)
	}

	if len(decl.Constraints) > 0 {
		v.checkIdentityConstraints(el, decl)
	}
}

// instanceAttr returns an xsi: attribute of el.
func instanceAttr(el xmldom.Element, local string) (string, bool) {
	attrs := el.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		a := attrs.Item(i)
		if a != nil && string(a.NamespaceURI()) == XSINamespace && string(a.LocalName()) == local {
			return string(a.NodeValue()), true
		}
	}
	return "", false
}

func (v *Validator) resolveXSIType(el xmldom.Element, value string, declared Type, ns map[string]string) (Type, bool) {
	value = strings.TrimSpace(value)
	prefix, local, found := strings.Cut(value, ":")
	if !found {
		prefix, local = "", value
	}
	namespace, bound := ns[prefix]
	if !bound && prefix != "" {
		v.report(el, "xsi:type", "cvc-elt.4.1", "The QName value '%s' has no corresponding namespace declaration in scope.", value)
		return nil, false
	}
	q := QName{Namespace: namespace, Local: local}
	var t Type
	switch {
	case q.Namespace == XSDNamespace && q.Local == "anyType":
		t = AnyType
	case q.Namespace == XSDNamespace:
		if st := builtinTypes[q.Local]; st != nil {
			t = st
		}
	default:
		t = v.schema.TypeDefs[q]
	}
	if t == nil {
		v.report(el, "xsi:type", "cvc-elt.4.2", "The QName value '%s' of the xsi:type attribute does not resolve to a type definition.", value)
		return nil, false
	}
	if !typeDerivesFrom(t, declared) {
		v.report(el, "xsi:type", "cvc-elt.4.3", "The type definition '%s' is not validly derived from the type definition of the element declaration.", value)
		return nil, false
	}
	return t, true
}

// typeDerivesFrom reports whether t is base or derived from it.
func typeDerivesFrom(t, base Type) bool {
	if base == nil || base == Type(AnyType) {
		return true
	}
	for cur := t; cur != nil; {
		if cur == base {
			return true
		}
		switch c := cur.(type) {
		case *ComplexType:
			if c == AnyType || c.Base == nil {
				return false
			}
			cur = c.Base
		case *SimpleType:
			if bs, ok := base.(*SimpleType); ok {
				return c.DerivesFrom(bs)
			}
			return false
		default:
			return false
		}
	}
	return false
}

// rejectAttributes reports attributes on an element whose type is simple.
func (v *Validator) rejectAttributes(el xmldom.Element) {
	attrs := el.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		a := attrs.Item(i)
		if a == nil || skipAttribute(a) {
			continue
		}
		name := displayName(attrQName(a))
		v.report(el, name, "cvc-complex-type.3.2.2", "The attribute '%s' is not allowed.", name)
	}
}

// skipAttribute reports whether a is a namespace declaration or an xsi:
// attribute, which are never validated against attribute uses.
func skipAttribute(a xmldom.Node) bool {
	return isNamespaceDecl(a) || string(a.NamespaceURI()) == XSINamespace
}

// attrQName returns the expanded name of an attribute. The xml prefix is
// bound by definition, whether or not the parser reports it.
func attrQName(a xmldom.Node) QName {
	q := QName{Namespace: string(a.NamespaceURI()), Local: string(a.LocalName())}
	switch {
	case q.Namespace == "xml":
		q.Namespace = XMLNamespace
	case q.Namespace == "" && strings.HasPrefix(string(a.NodeName()), "xml:"):
		q.Namespace = XMLNamespace
	}
	return q
}

func (v *Validator) validateAttributes(el xmldom.Element, ct *ComplexType) {
	seen := make(map[QName]bool)
	attrs := el.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		a := attrs.Item(i)
		if a == nil || skipAttribute(a) {
			continue
		}
		q := attrQName(a)
		name := displayName(q)
		value := string(a.NodeValue())

		var decl *AttributeDecl
		for _, use := range ct.Attributes {
			if use.Name == q {
				decl = use
				break
			}
		}
		if decl != nil {
			seen[q] = true
			v.validateAttributeValue(el, name, value, decl)
			continue
		}

		wildcard := ct.AnyAttribute
		if wildcard == nil || !wildcard.Namespace.Allows(q.Namespace) {
			v.report(el, name, "cvc-complex-type.3.2.2", "The attribute '%s' is not allowed.", name)
			continue
		}
		if wildcard.ProcessContents == SkipProcess {
			continue
		}
		global := v.schema.AttributeDecls[q]
		switch {
		case global != nil:
			v.validateAttributeValue(el, name, value, global)
		case wildcard.ProcessContents == StrictProcess:
			v.report(el, name, "cvc-wildcard.2", "No matching global attribute declaration available, but demanded by the strict wildcard.")
		}
	}

	for _, use := range ct.Attributes {
		if use.Use == RequiredUse && !seen[use.Name] {
			v.report(el, "", "cvc-complex-type.4", "The attribute '%s' is required but missing.", displayName(use.Name))
		}
	}
}

func (v *Validator) validateAttributeValue(el xmldom.Element, name, value string, decl *AttributeDecl) {
	normalized, err := ValidateValue(value, decl.Type)
	if err != nil {
		v.report(el, name, "cvc-attribute.3", "%s", err.Error())
		return
	}
	if decl.HasFixed {
		fixed, _ := ValidateValue(decl.Fixed, decl.Type)
		if !valuesEqual(normalized, fixed, typeKind(decl.Type)) {
			v.report(el, name, "cvc-attribute.4", "The value '%s' does not match the fixed value constraint '%s'.", normalized, decl.Fixed)
		}
	}
	v.trackIdentity(el, name, normalized, decl.Type)
}

func typeKind(st *SimpleType) valueKind {
	if st == nil {
		return stringKind
	}
	return st.kind()
}

// trackIdentity records ID values and queues IDREF values for the final
// check.
func (v *Validator) trackIdentity(el xmldom.Element, attrName, value string, st *SimpleType) {
	if isIDType(st) {
		if v.ids[value] {
			v.report(el, attrName, "cvc-id.2", "Duplicate ID value '%s'.", value)
		}
		v.ids[value] = true
		return
	}
	for _, ref := range idrefValues(value, st) {
		v.idrefs = append(v.idrefs, pendingIDREF{el: el, attr: attrName, value: ref})
	}
}

// validateText checks the character content of an element with a simple
// type, applying the declaration's default and fixed values.
func (v *Validator) validateText(el xmldom.Element, decl *ElementDecl, st *SimpleType) {
	text := textContent(el)
	if text == "" && len(childElements(el)) == 0 {
		switch {
		case decl.HasFixed:
			text = decl.Fixed
		case decl.Default != "":
			text = decl.Default
		}
	}
	normalized, err := ValidateValue(text, st)
	if err != nil {
		v.report(el, "", "cvc-datatype-valid.1.2.1", "%s", err.Error())
		return
	}
	if decl.HasFixed {
		fixed, _ := ValidateValue(decl.Fixed, st)
		if !valuesEqual(normalized, fixed, st.kind()) {
			v.report(el, "", "cvc-elt.5.2.2.2.2", "The value '%s' does not match the fixed value constraint '%s'.", normalized, decl.Fixed)
		}
	}
	v.trackIdentity(el, "", normalized, st)
}

func (v *Validator) validateComplexContent(el xmldom.Element, decl *ElementDecl, ct *ComplexType, ns map[string]string) {
	children := childElements(el)
	hasText := strings.TrimFunc(textContent(el), isXMLSpace) != ""

	switch ct.Kind {
	case SimpleContentKind:
		if len(children) > 0 {
			v.report(el, "", "cvc-complex-type.2.2", "Element content is not allowed, because the content type is a simple type definition.")
			return
		}
		v.validateText(el, decl, ct.SimpleType)
		return
	case EmptyContent:
		if len(children) > 0 {
			v.report(el, "", "cvc-complex-type.2.1", "Element content is not allowed, because the content type is empty.")
		} else if hasText {
			v.report(el, "", "cvc-complex-type.2.1", "Character content is not allowed, because the content type is empty.")
		}
		return
	case ElementOnlyContent:
		if hasText {
			v.report(el, "", "cvc-complex-type.2.3", "Character content other than whitespace is not allowed because the content type is 'element-only'.")
		}
	case MixedContent:
		if decl.HasFixed && len(children) == 0 && textContent(el) != decl.Fixed {
			v.report(el, "", "cvc-elt.5.2.2.2.1", "The value '%s' does not match the fixed value constraint '%s'.", textContent(el), decl.Fixed)
		}
	}

	match := matchContent(v.schema, children, ct.Particle)
	if !match.ok {
		switch {
		case match.failAt >= len(children):
			v.reportExpected(el, "cvc-complex-type.2.4.b", "Missing child element(s).", match.expected)
		case len(match.expected) > 0:
			v.reportExpected(children[match.failAt], "cvc-complex-type.2.4.a", "This element is not expected.", match.expected)
		default:
			v.report(children[match.failAt], "", "cvc-complex-type.2.4.d", "This element is not expected.")
		}
	}

	for i, child := range children {
		if !match.ok && i >= match.failAt {
			break
		}
		v.validateChild(child, match.terms[i], namespaceScope(ns, child))
	}
}

func (v *Validator) validateChild(child xmldom.Element, term matchTerm, ns map[string]string) {
	switch {
	case term.decl != nil:
		v.validateElement(child, term.decl, ns)
	case term.wildcard != nil:
		if term.wildcard.ProcessContents == SkipProcess {
			return
		}
		if global := v.schema.ElementDecls[qnameOf(child)]; global != nil {
			v.validateElement(child, global, ns)
			return
		}
		if term.wildcard.ProcessContents == StrictProcess {
			v.report(child, "", "cvc-complex-type.2.4.c", "No matching global element declaration available, but demanded by the strict wildcard.")
			return
		}
		v.validateLax(child, ns)
	}
}

// validateLax assesses an undeclared element under a lax wildcard: only
// descendants with global declarations are validated.
func (v *Validator) validateLax(el xmldom.Element, ns map[string]string) {
	for _, child := range childElements(el) {
		scope := namespaceScope(ns, child)
		if global := v.schema.ElementDecls[qnameOf(child)]; global != nil {
			v.validateElement(child, global, scope)
			continue
		}
		v.validateLax(child, scope)
	}
}
