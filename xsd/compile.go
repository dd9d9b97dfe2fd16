package xsd

import (
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// XMLNamespace is the namespace bound to the xml prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// SchemaError reports a schema document that cannot be compiled.
type SchemaError struct {
	Location string
	Line     int
	Message  string
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	if e.Location != "" {
		sb.WriteString(e.Location)
		sb.WriteString(":")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "%d:", e.Line)
	}
	if sb.Len() > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	resolver fs.FS
	location string
}

// WithResolver makes xs:include and xs:import schemaLocation values
// loadable from fsys. Locations are resolved relative to the including
// document.
func WithResolver(fsys fs.FS) CompileOption {
	return func(o *compileOptions) { o.resolver = fsys }
}

// WithLocation names the main schema document inside the resolver so
// relative schemaLocation values resolve against its directory.
func WithLocation(name string) CompileOption {
	return func(o *compileOptions) { o.location = name }
}

// AnyType is the ur-type: any attributes, any content.
var AnyType = &ComplexType{
	QName: QName{Namespace: XSDNamespace, Local: "anyType"},
	Mixed: true,
	Kind:  MixedContent,
	Particle: &ModelGroup{
		Kind:   SequenceGroup,
		MinOcc: 1,
		MaxOcc: 1,
		Particles: []Particle{&AnyElement{
			Namespace:       &NamespaceConstraint{Any: true},
			ProcessContents: LaxProcess,
			MaxOcc:          Unbounded,
		}},
	},
	AnyAttribute: &AnyAttribute{Namespace: &NamespaceConstraint{Any: true}, ProcessContents: LaxProcess},
	state:        resolved,
}

// CompileBytes parses and compiles a schema document.
func CompileBytes(data []byte, opts ...CompileOption) (*Schema, error) {
	doc, err := xmldom.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}
	return Compile(doc, opts...)
}

// Compile builds a Schema from a parsed XSD document. The first problem
// found is returned as a *SchemaError.
func Compile(doc xmldom.Document, opts ...CompileOption) (*Schema, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}
	if doc == nil || doc.DocumentElement() == nil {
		return nil, &SchemaError{Location: o.location, Message: "the schema document has no root element"}
	}
	if errs := CheckSchemaDocument(doc); len(errs) > 0 {
		errs[0].Location = o.location
		return nil, errs[0]
	}

	root := doc.DocumentElement()
	c := &compiler{
		schema:      newSchema(attr(root, "targetNamespace")),
		opts:        o,
		loaded:      map[string]bool{o.location: true},
		constraints: make(map[QName]*IdentityConstraint),
	}
	c.defineXMLAttributes()
	if err := c.compileDocument(root, o.location, nil); err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c.schema, nil
}

type compiler struct {
	schema       *Schema
	opts         compileOptions
	loaded       map[string]bool
	fixups       []func() error
	simpleTypes  []*SimpleType
	complexTypes []*ComplexType
	attrGroups   []*AttributeGroup
	elements     []*ElementDecl
	attributes   []*AttributeDecl
	constraints  map[QName]*IdentityConstraint
}

// scope carries the per-document and per-element context needed to turn
// schema attribute values into names.
type scope struct {
	location           string
	targetNamespace    string
	ns                 map[string]string
	elementQualified   bool
	attributeQualified bool
}

// with returns the scope for el, adding any namespace declarations it makes.
func (sc *scope) with(el xmldom.Element) *scope {
	decls := namespaceDecls(el)
	if len(decls) == 0 {
		return sc
	}
	next := *sc
	next.ns = make(map[string]string, len(sc.ns)+len(decls))
	for k, v := range sc.ns {
		next.ns[k] = v
	}
	for k, v := range decls {
		next.ns[k] = v
	}
	return &next
}

func (c *compiler) errorf(sc *scope, el xmldom.Element, format string, args ...any) error {
	return &SchemaError{Location: sc.location, Line: lineOf(el), Message: fmt.Sprintf(format, args...)}
}

// resolveQName turns a QName-valued schema attribute into a name.
// Unprefixed names take the default namespace.
func (c *compiler) resolveQName(sc *scope, el xmldom.Element, value string) (QName, error) {
	value = strings.TrimSpace(value)
	prefix, local, found := strings.Cut(value, ":")
	if !found {
		return QName{Namespace: sc.ns[""], Local: value}, nil
	}
	if prefix == "xml" {
		return QName{Namespace: XMLNamespace, Local: local}, nil
	}
	if ns, ok := sc.ns[prefix]; ok {
		return QName{Namespace: ns, Local: local}, nil
	}
	if prefix == "xs" || prefix == "xsd" {
		return QName{Namespace: XSDNamespace, Local: local}, nil
	}
	return QName{}, c.errorf(sc, el, "the QName value '%s' has no namespace binding for prefix '%s'", value, prefix)
}

func (c *compiler) compileDocument(root xmldom.Element, location string, chameleon *string) error {
	sc := &scope{
		location:           location,
		targetNamespace:    attr(root, "targetNamespace"),
		ns:                 map[string]string{},
		elementQualified:   attr(root, "elementFormDefault") == "qualified",
		attributeQualified: attr(root, "attributeFormDefault") == "qualified",
	}
	if chameleon != nil && sc.targetNamespace == "" {
		sc.targetNamespace = *chameleon
		sc.ns[""] = *chameleon
	}
	sc = sc.with(root)

	for _, child := range schemaChildren(root) {
		var err error
		switch string(child.LocalName()) {
		case "element":
			err = c.compileGlobalElement(sc, child)
		case "complexType":
			err = c.compileGlobalComplexType(sc, child)
		case "simpleType":
			err = c.compileGlobalSimpleType(sc, child)
		case "group":
			err = c.compileGlobalGroup(sc, child)
		case "attributeGroup":
			err = c.compileGlobalAttributeGroup(sc, child)
		case "attribute":
			err = c.compileGlobalAttribute(sc, child)
		case "include":
			err = c.compileInclude(sc, child)
		case "import":
			err = c.compileImport(sc, child)
		case "redefine", "override":
			err = c.errorf(sc, child, "xs:%s is not supported", child.LocalName())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) loadSchemaDocument(sc *scope, el xmldom.Element, location string) (xmldom.Element, string, error) {
	if c.opts.resolver == nil {
		return nil, "", c.errorf(sc, el, "cannot load schema '%s': no schema resolver is configured", location)
	}
	full := path.Clean(path.Join(path.Dir(sc.location), location))
	if sc.location == "" {
		full = path.Clean(location)
	}
	if c.loaded[full] {
		return nil, full, nil
	}
	c.loaded[full] = true
	data, err := fs.ReadFile(c.opts.resolver, full)
	if err != nil {
		return nil, "", c.errorf(sc, el, "cannot load schema '%s': %v", location, err)
	}
	doc, err := xmldom.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", c.errorf(sc, el, "cannot parse schema '%s': %v", location, err)
	}
	if errs := CheckSchemaDocument(doc); len(errs) > 0 {
		errs[0].Location = full
		return nil, "", errs[0]
	}
	return doc.DocumentElement(), full, nil
}

func (c *compiler) compileInclude(sc *scope, el xmldom.Element) error {
	location := attr(el, "schemaLocation")
	if location == "" {
		return c.errorf(sc, el, "xs:include requires a schemaLocation")
	}
	root, full, err := c.loadSchemaDocument(sc, el, location)
	if err != nil || root == nil {
		return err
	}
	if tns := attr(root, "targetNamespace"); tns != "" && tns != sc.targetNamespace {
		return c.errorf(sc, el, "included schema '%s' has target namespace '%s', expected '%s'", location, tns, sc.targetNamespace)
	}
	tns := sc.targetNamespace
	return c.compileDocument(root, full, &tns)
}

func (c *compiler) compileImport(sc *scope, el xmldom.Element) error {
	namespace := attr(el, "namespace")
	location := attr(el, "schemaLocation")
	if namespace == sc.targetNamespace && hasAttr(el, "namespace") {
		return c.errorf(sc, el, "xs:import namespace must differ from the target namespace")
	}
	// Components of the XML and XSD namespaces are predefined; imports
	// without a location leave their references to fail at resolution.
	if namespace == XMLNamespace || namespace == XSDNamespace || location == "" {
		return nil
	}
	if c.opts.resolver == nil {
		return nil
	}
	root, full, err := c.loadSchemaDocument(sc, el, location)
	if err != nil || root == nil {
		return err
	}
	if tns := attr(root, "targetNamespace"); tns != namespace {
		return c.errorf(sc, el, "imported schema '%s' has target namespace '%s', expected '%s'", location, tns, namespace)
	}
	return c.compileDocument(root, full, nil)
}

// defineXMLAttributes predeclares xml:lang, xml:space, xml:base and xml:id.
func (c *compiler) defineXMLAttributes() {
	space := &SimpleType{
		QName:   QName{Namespace: XMLNamespace, Local: "space"},
		Base:    builtinTypes["NCName"],
		Variety: AtomicVariety,
		Facets:  []FacetValidator{&EnumerationFacet{Values: []string{"default", "preserve"}}},
		state:   resolved,
	}
	for name, st := range map[string]*SimpleType{
		"lang":  builtinTypes["string"],
		"space": space,
		"base":  builtinTypes["anyURI"],
		"id":    builtinTypes["ID"],
	} {
		q := QName{Namespace: XMLNamespace, Local: name}
		c.schema.AttributeDecls[q] = &AttributeDecl{Name: q, Type: st, Use: OptionalUse}
	}
}

func (c *compiler) globalName(sc *scope, el xmldom.Element, kind string) (QName, error) {
	name := attr(el, "name")
	if name == "" {
		return QName{}, c.errorf(sc, el, "global %s must have a name attribute", kind)
	}
	return QName{Namespace: sc.targetNamespace, Local: name}, nil
}

func (c *compiler) compileGlobalElement(sc *scope, el xmldom.Element) error {
	sc = sc.with(el)
	name, err := c.globalName(sc, el, "element")
	if err != nil {
		return err
	}
	if _, dup := c.schema.ElementDecls[name]; dup {
		return c.errorf(sc, el, "element '%s' is already declared", name.Local)
	}
	decl, err := c.compileElementDecl(sc, el, name)
	if err != nil {
		return err
	}
	decl.Global = true
	if sg := attr(el, "substitutionGroup"); sg != "" {
		head, err := c.resolveQName(sc, el, sg)
		if err != nil {
			return err
		}
		decl.SubstitutionGroup = head
		c.fixup(func() error {
			if _, ok := c.schema.ElementDecls[head]; !ok {
				return c.errorf(sc, el, "substitution group head '%s' is not declared", sg)
			}
			return nil
		})
	}
	c.schema.ElementDecls[name] = decl
	return nil
}

// compileElementDecl handles what global and local element declarations
// share: type, value constraints, nillable and identity constraints.
func (c *compiler) compileElementDecl(sc *scope, el xmldom.Element, name QName) (*ElementDecl, error) {
	decl := &ElementDecl{
		Name:     name,
		Nillable: attr(el, "nillable") == "true",
		Abstract: attr(el, "abstract") == "true",
		line:     lineOf(el),
	}
	if hasAttr(el, "default") && hasAttr(el, "fixed") {
		return nil, c.errorf(sc, el, "element '%s' cannot have both default and fixed", name.Local)
	}
	decl.Default = attr(el, "default")
	if hasAttr(el, "fixed") {
		decl.Fixed = attr(el, "fixed")
		decl.HasFixed = true
	}

	if typeName := attr(el, "type"); typeName != "" {
		q, err := c.resolveQName(sc, el, typeName)
		if err != nil {
			return nil, err
		}
		decl.typeRef = q
		c.fixup(func() error {
			t, ok := c.lookupType(q)
			if !ok {
				return c.errorf(sc, el, "element '%s': the type '%s' is not resolved", name.Local, typeName)
			}
			decl.Type = t
			return nil
		})
	}

	for _, child := range schemaChildren(el) {
		switch string(child.LocalName()) {
		case "complexType":
			if decl.typeRef != (QName{}) {
				return nil, c.errorf(sc, child, "element '%s' has both a type attribute and an anonymous type", name.Local)
			}
			ct, err := c.compileComplexType(sc, child, QName{})
			if err != nil {
				return nil, err
			}
			decl.Type = ct
		case "simpleType":
			if decl.typeRef != (QName{}) {
				return nil, c.errorf(sc, child, "element '%s' has both a type attribute and an anonymous type", name.Local)
			}
			st, err := c.compileSimpleType(sc, child, QName{})
			if err != nil {
				return nil, err
			}
			decl.Type = st
		case "unique", "key", "keyref":
			ic, err := c.compileIdentityConstraint(sc, child)
			if err != nil {
				return nil, err
			}
			decl.Constraints = append(decl.Constraints, ic)
		}
	}
	c.elements = append(c.elements, decl)
	return decl, nil
}

func (c *compiler) compileLocalElement(sc *scope, el xmldom.Element) (Particle, error) {
	sc = sc.with(el)
	minOcc, maxOcc, err := c.occurs(sc, el)
	if err != nil {
		return nil, err
	}
	p := &ElementParticle{MinOcc: minOcc, MaxOcc: maxOcc, line: lineOf(el)}

	if ref := attr(el, "ref"); ref != "" {
		q, err := c.resolveQName(sc, el, ref)
		if err != nil {
			return nil, err
		}
		p.ref = q
		c.fixup(func() error {
			decl, ok := c.schema.ElementDecls[q]
			if !ok {
				return c.errorf(sc, el, "the element reference '%s' is not resolved", ref)
			}
			p.Decl = decl
			return nil
		})
		return p, nil
	}

	local := attr(el, "name")
	if local == "" {
		return nil, c.errorf(sc, el, "local element must have a name or ref attribute")
	}
	name := QName{Local: local}
	form := attr(el, "form")
	if form == "qualified" || (form == "" && sc.elementQualified) {
		name.Namespace = sc.targetNamespace
	}
	decl, err := c.compileElementDecl(sc, el, name)
	if err != nil {
		return nil, err
	}
	p.Decl = decl
	return p, nil
}

func (c *compiler) occurs(sc *scope, el xmldom.Element) (int, int, error) {
	minOcc, maxOcc := 1, 1
	if v := attr(el, "minOccurs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, c.errorf(sc, el, "invalid minOccurs value '%s'", v)
		}
		minOcc = n
	}
	if v := attr(el, "maxOccurs"); v != "" {
		if v == "unbounded" {
			maxOcc = Unbounded
		} else {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return 0, 0, c.errorf(sc, el, "invalid maxOccurs value '%s'", v)
			}
			maxOcc = n
		}
	}
	if maxOcc != Unbounded && minOcc > maxOcc {
		return 0, 0, c.errorf(sc, el, "minOccurs (%d) is greater than maxOccurs (%d)", minOcc, maxOcc)
	}
	return minOcc, maxOcc, nil
}

func (c *compiler) compileGlobalComplexType(sc *scope, el xmldom.Element) error {
	name, err := c.globalName(sc, el, "complexType")
	if err != nil {
		return err
	}
	if _, dup := c.schema.TypeDefs[name]; dup {
		return c.errorf(sc, el, "type '%s' is already defined", name.Local)
	}
	ct, err := c.compileComplexType(sc, el, name)
	if err != nil {
		return err
	}
	c.schema.TypeDefs[name] = ct
	return nil
}

func (c *compiler) compileComplexType(sc *scope, el xmldom.Element, name QName) (*ComplexType, error) {
	sc = sc.with(el)
	ct := &ComplexType{
		QName:    name,
		Abstract: attr(el, "abstract") == "true",
		Mixed:    attr(el, "mixed") == "true",
		line:     lineOf(el),
	}
	c.complexTypes = append(c.complexTypes, ct)

	children := schemaChildren(el)
	if len(children) > 0 {
		switch string(children[0].LocalName()) {
		case "simpleContent":
			ct.simpleContent = true
			return ct, c.compileDerivation(sc, ct, children[0])
		case "complexContent":
			ct.complexContent = true
			if m := attr(children[0], "mixed"); m != "" {
				ct.Mixed = m == "true"
			}
			return ct, c.compileDerivation(sc, ct, children[0])
		}
	}
	return ct, c.compileComplexBody(sc, ct, children)
}

// compileComplexBody reads a content model followed by attribute uses.
func (c *compiler) compileComplexBody(sc *scope, ct *ComplexType, children []xmldom.Element) error {
	for _, child := range children {
		switch string(child.LocalName()) {
		case "sequence", "choice", "all", "group":
			if ct.ownParticle != nil {
				return c.errorf(sc, child, "a complex type may contain only one model group")
			}
			p, err := c.compileParticle(sc, child)
			if err != nil {
				return err
			}
			ct.ownParticle = p
		}
	}
	attrs, refs, any, err := c.compileAttributeUses(sc, children)
	if err != nil {
		return err
	}
	ct.ownAttributes, ct.attrGroupRefs, ct.ownAnyAttr = attrs, refs, any
	return nil
}

func (c *compiler) compileDerivation(sc *scope, ct *ComplexType, content xmldom.Element) error {
	var deriv xmldom.Element
	for _, child := range schemaChildren(content) {
		switch string(child.LocalName()) {
		case "extension", "restriction":
			deriv = child
		}
	}
	if deriv == nil {
		return c.errorf(sc, content, "xs:%s requires an extension or restriction", content.LocalName())
	}
	sc = sc.with(deriv)
	ct.Derivation = string(deriv.LocalName())
	baseName := attr(deriv, "base")
	if baseName == "" {
		return c.errorf(sc, deriv, "xs:%s requires a base attribute", ct.Derivation)
	}
	base, err := c.resolveQName(sc, deriv, baseName)
	if err != nil {
		return err
	}
	ct.baseRef = base
	c.fixup(func() error {
		t, ok := c.lookupType(base)
		if !ok {
			return c.errorf(sc, deriv, "the base type '%s' is not resolved", baseName)
		}
		ct.Base = t
		return nil
	})

	children := schemaChildren(deriv)
	if ct.simpleContent {
		if ct.Derivation == "restriction" {
			facets, inline, err := c.compileFacets(sc, children)
			if err != nil {
				return err
			}
			ct.contentFacets, ct.contentSimple = facets, inline
		}
		attrs, refs, any, err := c.compileAttributeUses(sc, children)
		if err != nil {
			return err
		}
		ct.ownAttributes, ct.attrGroupRefs, ct.ownAnyAttr = attrs, refs, any
		return nil
	}
	return c.compileComplexBody(sc, ct, children)
}

func (c *compiler) compileParticle(sc *scope, el xmldom.Element) (Particle, error) {
	switch string(el.LocalName()) {
	case "element":
		return c.compileLocalElement(sc, el)
	case "sequence", "choice", "all":
		return c.compileModelGroup(sc, el)
	case "group":
		return c.compileGroupRef(sc, el)
	case "any":
		return c.compileAny(sc, el)
	}
	return nil, c.errorf(sc, el, "unexpected xs:%s in a content model", el.LocalName())
}

func (c *compiler) compileModelGroup(sc *scope, el xmldom.Element) (*ModelGroup, error) {
	sc = sc.with(el)
	minOcc, maxOcc, err := c.occurs(sc, el)
	if err != nil {
		return nil, err
	}
	mg := &ModelGroup{Kind: ModelGroupKind(el.LocalName()), MinOcc: minOcc, MaxOcc: maxOcc}
	if mg.Kind == AllGroup && maxOcc != 1 {
		return nil, c.errorf(sc, el, "xs:all must have maxOccurs 1")
	}
	for _, child := range schemaChildren(el) {
		p, err := c.compileParticle(sc, child)
		if err != nil {
			return nil, err
		}
		if mg.Kind == AllGroup {
			if _, ok := p.(*ElementParticle); !ok {
				return nil, c.errorf(sc, child, "xs:all may only contain element declarations")
			}
			if p.MaxOccurs() > 1 || p.MaxOccurs() == Unbounded {
				return nil, c.errorf(sc, child, "elements in xs:all must have maxOccurs 0 or 1")
			}
		}
		mg.Particles = append(mg.Particles, p)
	}
	return mg, nil
}

func (c *compiler) compileGroupRef(sc *scope, el xmldom.Element) (*GroupRef, error) {
	sc = sc.with(el)
	ref := attr(el, "ref")
	if ref == "" {
		return nil, c.errorf(sc, el, "group reference must have a ref attribute")
	}
	q, err := c.resolveQName(sc, el, ref)
	if err != nil {
		return nil, err
	}
	minOcc, maxOcc, err := c.occurs(sc, el)
	if err != nil {
		return nil, err
	}
	gr := &GroupRef{Ref: q, MinOcc: minOcc, MaxOcc: maxOcc, line: lineOf(el)}
	c.fixup(func() error {
		g, ok := c.schema.Groups[q]
		if !ok {
			return c.errorf(sc, el, "the model group reference '%s' is not resolved", ref)
		}
		gr.Group = g
		return nil
	})
	return gr, nil
}

func (c *compiler) compileAny(sc *scope, el xmldom.Element) (*AnyElement, error) {
	minOcc, maxOcc, err := c.occurs(sc, el)
	if err != nil {
		return nil, err
	}
	pc, ok := parseProcessContents(attr(el, "processContents"))
	if !ok {
		return nil, c.errorf(sc, el, "invalid processContents value '%s'", attr(el, "processContents"))
	}
	return &AnyElement{
		Namespace:       ParseNamespaceConstraint(attr(el, "namespace"), sc.targetNamespace),
		ProcessContents: pc,
		MinOcc:          minOcc,
		MaxOcc:          maxOcc,
	}, nil
}

func (c *compiler) compileGlobalGroup(sc *scope, el xmldom.Element) error {
	sc = sc.with(el)
	name, err := c.globalName(sc, el, "group")
	if err != nil {
		return err
	}
	if _, dup := c.schema.Groups[name]; dup {
		return c.errorf(sc, el, "group '%s' is already defined", name.Local)
	}
	children := schemaChildren(el)
	if len(children) != 1 {
		return c.errorf(sc, el, "group '%s' must contain exactly one of sequence, choice or all", name.Local)
	}
	mg, err := c.compileModelGroup(sc, children[0])
	if err != nil {
		return err
	}
	c.schema.Groups[name] = mg
	return nil
}

func (c *compiler) compileAttributeUses(sc *scope, children []xmldom.Element) ([]*AttributeDecl, []*attributeGroupRef, *AnyAttribute, error) {
	var (
		attrs []*AttributeDecl
		refs  []*attributeGroupRef
		any   *AnyAttribute
	)
	for _, child := range children {
		switch string(child.LocalName()) {
		case "attribute":
			a, err := c.compileLocalAttribute(sc, child)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, prev := range attrs {
				if prev.Name == a.Name && a.Name.Local != "" {
					return nil, nil, nil, c.errorf(sc, child, "duplicate attribute use '%s'", a.Name.Local)
				}
			}
			attrs = append(attrs, a)
		case "attributeGroup":
			ref, err := c.compileAttributeGroupRef(sc, child)
			if err != nil {
				return nil, nil, nil, err
			}
			refs = append(refs, ref)
		case "anyAttribute":
			pc, ok := parseProcessContents(attr(child, "processContents"))
			if !ok {
				return nil, nil, nil, c.errorf(sc, child, "invalid processContents value '%s'", attr(child, "processContents"))
			}
			any = &AnyAttribute{
				Namespace:       ParseNamespaceConstraint(attr(child, "namespace"), sc.targetNamespace),
				ProcessContents: pc,
			}
		}
	}
	return attrs, refs, any, nil
}

func (c *compiler) compileAttributeGroupRef(sc *scope, el xmldom.Element) (*attributeGroupRef, error) {
	ref := attr(el, "ref")
	if ref == "" {
		return nil, c.errorf(sc, el, "attributeGroup reference must have a ref attribute")
	}
	q, err := c.resolveQName(sc, el, ref)
	if err != nil {
		return nil, err
	}
	r := &attributeGroupRef{ref: q, line: lineOf(el)}
	c.fixup(func() error {
		g, ok := c.schema.AttributeGroups[q]
		if !ok {
			return c.errorf(sc, el, "the attribute group reference '%s' is not resolved", ref)
		}
		r.group = g
		return nil
	})
	return r, nil
}

func (c *compiler) compileGlobalAttributeGroup(sc *scope, el xmldom.Element) error {
	sc = sc.with(el)
	name, err := c.globalName(sc, el, "attributeGroup")
	if err != nil {
		return err
	}
	if _, dup := c.schema.AttributeGroups[name]; dup {
		return c.errorf(sc, el, "attribute group '%s' is already defined", name.Local)
	}
	attrs, refs, any, err := c.compileAttributeUses(sc, schemaChildren(el))
	if err != nil {
		return err
	}
	g := &AttributeGroup{Name: name, Attributes: attrs, AnyAttribute: any, refs: refs}
	c.schema.AttributeGroups[name] = g
	c.attrGroups = append(c.attrGroups, g)
	return nil
}

func (c *compiler) compileGlobalAttribute(sc *scope, el xmldom.Element) error {
	sc = sc.with(el)
	name, err := c.globalName(sc, el, "attribute")
	if err != nil {
		return err
	}
	if _, dup := c.schema.AttributeDecls[name]; dup {
		return c.errorf(sc, el, "attribute '%s' is already declared", name.Local)
	}
	if hasAttr(el, "use") {
		return c.errorf(sc, el, "global attribute '%s' cannot have a use attribute", name.Local)
	}
	a, err := c.compileAttributeDecl(sc, el, name)
	if err != nil {
		return err
	}
	c.schema.AttributeDecls[name] = a
	return nil
}

func (c *compiler) compileLocalAttribute(sc *scope, el xmldom.Element) (*AttributeDecl, error) {
	sc = sc.with(el)
	use := AttributeUse(attr(el, "use"))
	switch use {
	case "":
		use = OptionalUse
	case OptionalUse, RequiredUse, ProhibitedUse:
	default:
		return nil, c.errorf(sc, el, "invalid attribute use '%s'", use)
	}

	if ref := attr(el, "ref"); ref != "" {
		q, err := c.resolveQName(sc, el, ref)
		if err != nil {
			return nil, err
		}
		a := &AttributeDecl{Name: q, Use: use, ref: q, Default: attr(el, "default"), line: lineOf(el)}
		if hasAttr(el, "fixed") {
			a.Fixed, a.HasFixed = attr(el, "fixed"), true
		}
		c.fixup(func() error {
			global, ok := c.schema.AttributeDecls[q]
			if !ok {
				return c.errorf(sc, el, "the attribute reference '%s' is not resolved", ref)
			}
			a.Type = global.Type
			if a.Type == nil {
				if t, ok := c.lookupType(global.typeRef); ok {
					a.Type, _ = t.(*SimpleType)
				}
			}
			if a.Default == "" {
				a.Default = global.Default
			}
			if !a.HasFixed {
				a.Fixed, a.HasFixed = global.Fixed, global.HasFixed
			}
			return nil
		})
		c.attributes = append(c.attributes, a)
		return a, nil
	}

	local := attr(el, "name")
	if local == "" {
		return nil, c.errorf(sc, el, "local attribute must have a name or ref attribute")
	}
	name := QName{Local: local}
	form := attr(el, "form")
	if form == "qualified" || (form == "" && sc.attributeQualified) {
		name.Namespace = sc.targetNamespace
	}
	a, err := c.compileAttributeDecl(sc, el, name)
	if err != nil {
		return nil, err
	}
	a.Use = use
	if use == RequiredUse && a.Default != "" {
		return nil, c.errorf(sc, el, "attribute '%s' is required and cannot have a default", local)
	}
	return a, nil
}

func (c *compiler) compileAttributeDecl(sc *scope, el xmldom.Element, name QName) (*AttributeDecl, error) {
	if hasAttr(el, "default") && hasAttr(el, "fixed") {
		return nil, c.errorf(sc, el, "attribute '%s' cannot have both default and fixed", name.Local)
	}
	a := &AttributeDecl{Name: name, Use: OptionalUse, Default: attr(el, "default"), line: lineOf(el)}
	if hasAttr(el, "fixed") {
		a.Fixed, a.HasFixed = attr(el, "fixed"), true
	}
	for _, child := range schemaChildren(el) {
		if string(child.LocalName()) == "simpleType" {
			st, err := c.compileSimpleType(sc, child, QName{})
			if err != nil {
				return nil, err
			}
			a.Type = st
		}
	}
	if typeName := attr(el, "type"); typeName != "" {
		if a.Type != nil {
			return nil, c.errorf(sc, el, "attribute '%s' has both a type attribute and an anonymous type", name.Local)
		}
		q, err := c.resolveQName(sc, el, typeName)
		if err != nil {
			return nil, err
		}
		a.typeRef = q
		c.fixup(func() error {
			t, ok := c.lookupType(q)
			st, simple := t.(*SimpleType)
			if !ok || !simple {
				return c.errorf(sc, el, "attribute '%s': the simple type '%s' is not resolved", name.Local, typeName)
			}
			a.Type = st
			return nil
		})
	}
	if a.Type == nil && a.typeRef == (QName{}) {
		a.Type = AnySimpleType
	}
	c.attributes = append(c.attributes, a)
	return a, nil
}

func (c *compiler) compileGlobalSimpleType(sc *scope, el xmldom.Element) error {
	name, err := c.globalName(sc, el, "simpleType")
	if err != nil {
		return err
	}
	if _, dup := c.schema.TypeDefs[name]; dup {
		return c.errorf(sc, el, "type '%s' is already defined", name.Local)
	}
	st, err := c.compileSimpleType(sc, el, name)
	if err != nil {
		return err
	}
	c.schema.TypeDefs[name] = st
	return nil
}

func (c *compiler) compileSimpleType(sc *scope, el xmldom.Element, name QName) (*SimpleType, error) {
	sc = sc.with(el)
	st := &SimpleType{QName: name, line: lineOf(el)}
	c.simpleTypes = append(c.simpleTypes, st)

	children := schemaChildren(el)
	if len(children) != 1 {
		return nil, c.errorf(sc, el, "simpleType must contain exactly one of restriction, list or union")
	}
	def := children[0]
	sc = sc.with(def)
	st.derivation = string(def.LocalName())

	switch st.derivation {
	case "restriction":
		if base := attr(def, "base"); base != "" {
			q, err := c.resolveQName(sc, def, base)
			if err != nil {
				return nil, err
			}
			st.baseRef = q
		}
		facets, inline, err := c.compileFacets(sc, schemaChildren(def))
		if err != nil {
			return nil, err
		}
		st.Facets = facets
		for _, f := range facets {
			if ws, ok := f.(*whiteSpaceFacet); ok {
				st.WhiteSpace = ws.value
			}
		}
		switch {
		case inline != nil && st.baseRef != (QName{}):
			return nil, c.errorf(sc, def, "restriction has both a base attribute and an anonymous base type")
		case inline != nil:
			st.Base = inline
		case st.baseRef == (QName{}):
			return nil, c.errorf(sc, def, "restriction requires a base type")
		}
	case "list":
		st.Variety = ListVariety
		st.Base = AnySimpleType
		if item := attr(def, "itemType"); item != "" {
			q, err := c.resolveQName(sc, def, item)
			if err != nil {
				return nil, err
			}
			st.itemRef = q
		}
		for _, child := range schemaChildren(def) {
			if string(child.LocalName()) == "simpleType" {
				item, err := c.compileSimpleType(sc, child, QName{})
				if err != nil {
					return nil, err
				}
				st.ItemType = item
			}
		}
		if st.ItemType == nil && st.itemRef == (QName{}) {
			return nil, c.errorf(sc, def, "list requires an item type")
		}
	case "union":
		st.Variety = UnionVariety
		st.Base = AnySimpleType
		for _, m := range strings.Fields(attr(def, "memberTypes")) {
			q, err := c.resolveQName(sc, def, m)
			if err != nil {
				return nil, err
			}
			st.memberRefs = append(st.memberRefs, q)
		}
		for _, child := range schemaChildren(def) {
			if string(child.LocalName()) == "simpleType" {
				member, err := c.compileSimpleType(sc, child, QName{})
				if err != nil {
					return nil, err
				}
				st.MemberTypes = append(st.MemberTypes, member)
			}
		}
		if len(st.MemberTypes) == 0 && len(st.memberRefs) == 0 {
			return nil, c.errorf(sc, def, "union requires member types")
		}
	default:
		return nil, c.errorf(sc, def, "unexpected xs:%s in simpleType", st.derivation)
	}

	c.fixup(func() error { return c.resolveSimpleTypeRefs(sc, el, st) })
	return st, nil
}

func (c *compiler) resolveSimpleTypeRefs(sc *scope, el xmldom.Element, st *SimpleType) error {
	simple := func(q QName) (*SimpleType, error) {
		t, ok := c.lookupType(q)
		s, isSimple := t.(*SimpleType)
		if !ok || !isSimple {
			return nil, c.errorf(sc, el, "the simple type '%s' is not resolved", q.Local)
		}
		return s, nil
	}
	var err error
	if st.baseRef != (QName{}) {
		if st.Base, err = simple(st.baseRef); err != nil {
			return err
		}
	}
	if st.itemRef != (QName{}) {
		if st.ItemType, err = simple(st.itemRef); err != nil {
			return err
		}
	}
	members := make([]*SimpleType, 0, len(st.memberRefs)+len(st.MemberTypes))
	for _, q := range st.memberRefs {
		m, err := simple(q)
		if err != nil {
			return err
		}
		members = append(members, m)
	}
	if len(st.memberRefs) > 0 {
		st.MemberTypes = append(members, st.MemberTypes...)
	}
	return nil
}

// whiteSpaceFacet only carries the whiteSpace value to the simple type; it
// never rejects a value.
type whiteSpaceFacet struct{ value string }

func (f *whiteSpaceFacet) Name() string                        { return "whiteSpace" }
func (f *whiteSpaceFacet) Validate(string, *SimpleType) error { return nil }

// compileFacets reads the facets of a restriction. Patterns and
// enumerations of one step are combined. An anonymous base simpleType is
// returned separately.
func (c *compiler) compileFacets(sc *scope, children []xmldom.Element) ([]FacetValidator, *SimpleType, error) {
	var (
		facets   []FacetValidator
		patterns []string
		enum     *EnumerationFacet
		inline   *SimpleType
	)
	for _, child := range children {
		name := string(child.LocalName())
		value := attr(child, "value")
		switch name {
		case "simpleType":
			st, err := c.compileSimpleType(sc, child, QName{})
			if err != nil {
				return nil, nil, err
			}
			inline = st
		case "pattern":
			patterns = append(patterns, value)
		case "enumeration":
			if enum == nil {
				enum = &EnumerationFacet{}
				facets = append(facets, enum)
			}
			enum.Values = append(enum.Values, value)
		case "whiteSpace":
			switch value {
			case "preserve", "replace", "collapse":
				facets = append(facets, &whiteSpaceFacet{value: value})
			default:
				return nil, nil, c.errorf(sc, child, "invalid whiteSpace value '%s'", value)
			}
		case "length", "minLength", "maxLength", "totalDigits", "fractionDigits",
			"minInclusive", "maxInclusive", "minExclusive", "maxExclusive":
			if !hasAttr(child, "value") {
				return nil, nil, c.errorf(sc, child, "facet '%s' requires a value", name)
			}
			f, err := ParseFacet(name, value)
			if err != nil {
				return nil, nil, c.errorf(sc, child, "%v", err)
			}
			facets = append(facets, f)
		case "attribute", "attributeGroup", "anyAttribute":
		default:
			return nil, nil, c.errorf(sc, child, "unexpected xs:%s in restriction", name)
		}
	}
	if len(patterns) > 0 {
		pf, err := NewPatternFacet(patterns...)
		if err != nil {
			return nil, nil, &SchemaError{Location: sc.location, Message: err.Error()}
		}
		facets = append(facets, pf)
	}
	return facets, inline, nil
}

func (c *compiler) fixup(fn func() error) {
	c.fixups = append(c.fixups, fn)
}

func (c *compiler) lookupType(q QName) (Type, bool) {
	if q.Namespace == XSDNamespace {
		if q.Local == "anyType" {
			return AnyType, true
		}
		if st := builtinTypes[q.Local]; st != nil {
			return st, true
		}
		return nil, false
	}
	t, ok := c.schema.TypeDefs[q]
	return t, ok
}
