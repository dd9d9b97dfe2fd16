package xsd

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

const (
	textNode  = 3
	cdataNode = 4
)

// attr returns an unqualified attribute of el. The parser keys attributes
// by local name, so a plain lookup would also find xsi:type for "type".
func attr(el xmldom.Element, name string) string {
	return string(el.GetAttributeNS("", xmldom.DOMString(name)))
}

func hasAttr(el xmldom.Element, name string) bool {
	return el.HasAttributeNS("", xmldom.DOMString(name))
}

func lineOf(el xmldom.Element) int {
	if el == nil {
		return 0
	}
	line, _, _ := el.Position()
	return line
}

func qnameOf(el xmldom.Element) QName {
	return QName{Namespace: string(el.NamespaceURI()), Local: string(el.LocalName())}
}

// childElements returns the element children of el in document order.
func childElements(el xmldom.Element) []xmldom.Element {
	children := el.Children()
	out := make([]xmldom.Element, 0, children.Length())
	for i := uint(0); i < children.Length(); i++ {
		if child := children.Item(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// schemaChildren returns the XSD-namespace children of a schema component,
// skipping annotations.
func schemaChildren(el xmldom.Element) []xmldom.Element {
	var out []xmldom.Element
	for _, child := range childElements(el) {
		if string(child.NamespaceURI()) != XSDNamespace || string(child.LocalName()) == "annotation" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// textContent concatenates the direct text and CDATA children of el.
func textContent(el xmldom.Element) string {
	var sb strings.Builder
	nodes := el.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		node := nodes.Item(i)
		if node == nil {
			continue
		}
		if t := node.NodeType(); t == textNode || t == cdataNode {
			sb.WriteString(string(node.NodeValue()))
		}
	}
	return sb.String()
}

// namespaceDecls returns the xmlns declarations made on el, keyed by prefix
// ("" for the default namespace).
func namespaceDecls(el xmldom.Element) map[string]string {
	var decls map[string]string
	attrs := el.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		a := attrs.Item(i)
		if a == nil {
			continue
		}
		prefix, ok := declaredPrefix(a)
		if !ok {
			continue
		}
		if decls == nil {
			decls = make(map[string]string)
		}
		decls[prefix] = string(a.NodeValue())
	}
	return decls
}

// declaredPrefix reports whether a is a namespace declaration and which
// prefix it binds. go-xmldom gives xmlns:p the namespace "xmlns" and the
// name p; xmlns alone keeps its name and has no namespace.
func declaredPrefix(a xmldom.Node) (string, bool) {
	name := string(a.NodeName())
	switch ns := string(a.NamespaceURI()); {
	case ns == "xmlns" || ns == xmlnsNamespace:
		if local := string(a.LocalName()); local != "" && local != "xmlns" {
			return local, true
		}
		if _, prefix, found := strings.Cut(name, ":"); found {
			return prefix, true
		}
		return "", true
	case name == "xmlns":
		return "", true
	case strings.HasPrefix(name, "xmlns:"):
		return strings.TrimPrefix(name, "xmlns:"), true
	}
	return "", false
}

// isNamespaceDecl reports whether a is an xmlns or xmlns:p attribute.
func isNamespaceDecl(a xmldom.Node) bool {
	_, ok := declaredPrefix(a)
	return ok
}
