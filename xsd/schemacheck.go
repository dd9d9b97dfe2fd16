package xsd

import (
	"fmt"

	"github.com/agentflare-ai/go-xmldom"
)

// schemaElements lists the XSD vocabulary the compiler understands.
var schemaElements = map[string]bool{
	"schema": true, "annotation": true, "documentation": true, "appinfo": true,
	"element": true, "attribute": true, "complexType": true, "simpleType": true,
	"group": true, "attributeGroup": true, "sequence": true, "choice": true, "all": true,
	"any": true, "anyAttribute": true, "simpleContent": true, "complexContent": true,
	"restriction": true, "extension": true, "list": true, "union": true,
	"include": true, "import": true, "redefine": true, "override": true, "notation": true,
	"unique": true, "key": true, "keyref": true, "selector": true, "field": true,
	"enumeration": true, "pattern": true, "length": true, "minLength": true, "maxLength": true,
	"minInclusive": true, "maxInclusive": true, "minExclusive": true, "maxExclusive": true,
	"totalDigits": true, "fractionDigits": true, "whiteSpace": true,
}

var topLevelElements = map[string]bool{
	"annotation": true, "element": true, "attribute": true, "complexType": true,
	"simpleType": true, "group": true, "attributeGroup": true, "include": true,
	"import": true, "redefine": true, "override": true, "notation": true,
}

// schemaChecker walks a schema document and reports structural mistakes
// before compilation.
type schemaChecker struct {
	errors []*SchemaError
	ids    map[string]bool
}

// CheckSchemaDocument reports structural problems in a schema document:
// a wrong root, unknown XSD elements, malformed names and misplaced
// attributes. It returns nil for a well-formed schema.
func CheckSchemaDocument(doc xmldom.Document) []*SchemaError {
	sc := &schemaChecker{ids: make(map[string]bool)}
	if doc == nil || doc.DocumentElement() == nil {
		return []*SchemaError{{Message: "the schema document has no root element"}}
	}
	root := doc.DocumentElement()
	if string(root.NamespaceURI()) != XSDNamespace || string(root.LocalName()) != "schema" {
		sc.addf(root, "the document element must be xs:schema, found '%s'", root.LocalName())
		return sc.errors
	}
	for _, a := range []string{"elementFormDefault", "attributeFormDefault"} {
		if v := attr(root, a); v != "" && v != "qualified" && v != "unqualified" {
			sc.addf(root, "invalid %s value '%s'", a, v)
		}
	}
	for _, child := range childElements(root) {
		if string(child.NamespaceURI()) == XSDNamespace && !topLevelElements[string(child.LocalName())] {
			sc.addf(child, "xs:%s is not allowed at the top level of a schema", child.LocalName())
		}
	}
	sc.walk(root, false)
	return sc.errors
}

func (sc *schemaChecker) addf(el xmldom.Element, format string, args ...any) {
	sc.errors = append(sc.errors, &SchemaError{Line: lineOf(el), Message: fmt.Sprintf(format, args...)})
}

func (sc *schemaChecker) walk(el xmldom.Element, topLevel bool) {
	if string(el.NamespaceURI()) != XSDNamespace {
		return
	}
	local := string(el.LocalName())
	if !schemaElements[local] {
		sc.addf(el, "unknown XSD element xs:%s", local)
		return
	}
	if local == "annotation" {
		return
	}

	if hasAttr(el, "id") {
		id := attr(el, "id")
		switch {
		case !isNCName(id):
			sc.addf(el, "invalid id value '%s'", id)
		case sc.ids[id]:
			sc.addf(el, "duplicate id value '%s'", id)
		default:
			sc.ids[id] = true
		}
	}
	if hasAttr(el, "name") && !isNCName(attr(el, "name")) {
		sc.addf(el, "invalid %s name '%s': must be a valid NCName", local, attr(el, "name"))
	}

	switch local {
	case "element", "attribute":
		sc.checkDeclaration(el, local, topLevel)
	case "complexType", "simpleType":
		if !topLevel && hasAttr(el, "name") {
			sc.addf(el, "a local %s must not have a name attribute", local)
		}
	case "group", "attributeGroup":
		if !topLevel && !hasAttr(el, "ref") {
			sc.addf(el, "a local %s must have a ref attribute", local)
		}
	}

	for _, child := range childElements(el) {
		sc.walk(child, local == "schema")
	}
}

func (sc *schemaChecker) checkDeclaration(el xmldom.Element, local string, topLevel bool) {
	name, ref := hasAttr(el, "name"), hasAttr(el, "ref")
	if name && ref {
		sc.addf(el, "%s cannot have both name and ref attributes", local)
	}
	if topLevel {
		for _, a := range []string{"ref", "minOccurs", "maxOccurs", "form"} {
			if hasAttr(el, a) {
				sc.addf(el, "global %s must not have a %s attribute", local, a)
			}
		}
		return
	}
	if ref {
		for _, a := range []string{"type", "nillable", "block", "form"} {
			if hasAttr(el, a) {
				sc.addf(el, "%s reference must not have a %s attribute", local, a)
			}
		}
		for _, child := range schemaChildren(el) {
			sc.addf(child, "%s reference must not have an xs:%s child", local, child.LocalName())
		}
	}
	if v := attr(el, "form"); v != "" && v != "qualified" && v != "unqualified" {
		sc.addf(el, "invalid form value '%s'", v)
	}
	if local == "element" {
		if v := attr(el, "substitutionGroup"); v != "" {
			sc.addf(el, "local element must not have a substitutionGroup attribute")
		}
	}
}
