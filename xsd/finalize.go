package xsd

import (
	"fmt"
)

// finish resolves every reference recorded during parsing and computes the
// effective content of derived types.
func (c *compiler) finish() error {
	for _, fn := range c.fixups {
		if err := fn(); err != nil {
			return err
		}
	}
	for _, g := range c.attrGroups {
		if err := c.resolveAttributeGroup(g); err != nil {
			return err
		}
	}
	for _, st := range c.simpleTypes {
		if err := c.resolveSimpleType(st); err != nil {
			return err
		}
	}
	for _, ct := range c.complexTypes {
		if err := c.resolveComplexType(ct); err != nil {
			return err
		}
	}
	for _, decl := range c.elements {
		if err := c.resolveElementType(decl, nil); err != nil {
			return err
		}
	}
	if err := c.buildSubstitutionGroups(); err != nil {
		return err
	}
	for _, decl := range c.elements {
		if err := c.checkElementValueConstraint(decl); err != nil {
			return err
		}
	}
	for _, a := range c.attributes {
		if err := c.checkAttributeValueConstraint(a); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) fail(line int, format string, args ...any) error {
	return &SchemaError{Location: c.opts.location, Line: line, Message: fmt.Sprintf(format, args...)}
}

func (c *compiler) resolveAttributeGroup(g *AttributeGroup) error {
	switch g.state {
	case resolved:
		return nil
	case resolving:
		return c.fail(0, "attribute group '%s' references itself", g.Name.Local)
	}
	g.state = resolving
	attrs, any, err := c.flattenAttributes(g.Attributes, g.refs, g.AnyAttribute)
	if err != nil {
		return err
	}
	g.Attributes, g.AnyAttribute = attrs, any
	g.refs = nil
	g.state = resolved
	return nil
}

// flattenAttributes merges direct attribute uses with those of referenced
// attribute groups.
func (c *compiler) flattenAttributes(own []*AttributeDecl, refs []*attributeGroupRef, any *AnyAttribute) ([]*AttributeDecl, *AnyAttribute, error) {
	out := append([]*AttributeDecl(nil), own...)
	for _, ref := range refs {
		if ref.group == nil {
			return nil, nil, c.fail(ref.line, "the attribute group reference '%s' is not resolved", ref.ref.Local)
		}
		if err := c.resolveAttributeGroup(ref.group); err != nil {
			return nil, nil, err
		}
		out = mergeAttributes(out, ref.group.Attributes, false)
		if any == nil {
			any = ref.group.AnyAttribute
		}
	}
	return out, any, nil
}

// mergeAttributes adds the uses in extra to base. When override is set an
// extra use replaces the base use of the same name.
func mergeAttributes(base, extra []*AttributeDecl, override bool) []*AttributeDecl {
	out := append([]*AttributeDecl(nil), base...)
	for _, a := range extra {
		replaced := false
		for i, b := range out {
			if b.Name == a.Name {
				if override {
					out[i] = a
				}
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

func (c *compiler) resolveSimpleType(st *SimpleType) error {
	if st == nil || st.QName.Namespace == XSDNamespace || st.state == resolved {
		return nil
	}
	if st.state == resolving {
		return c.fail(st.line, "simple type '%s' is derived from itself", st.QName.Local)
	}
	st.state = resolving

	switch st.derivation {
	case "restriction":
		if err := c.resolveSimpleType(st.Base); err != nil {
			return err
		}
		st.Variety = st.Base.Variety
		switch st.Variety {
		case ListVariety:
			st.ItemType = st.Base.ItemType
		case UnionVariety:
			st.MemberTypes = st.Base.MemberTypes
		}
		if err := c.checkFacetValues(st); err != nil {
			return err
		}
	case "list":
		if err := c.resolveSimpleType(st.ItemType); err != nil {
			return err
		}
		if st.ItemType.Variety == ListVariety {
			return c.fail(st.line, "the item type of a list must not be a list type")
		}
	case "union":
		for _, m := range st.MemberTypes {
			if err := c.resolveSimpleType(m); err != nil {
				return err
			}
		}
	}
	st.state = resolved
	return nil
}

// checkFacetValues rejects enumeration and bound values that the base type
// would not accept.
func (c *compiler) checkFacetValues(st *SimpleType) error {
	for _, f := range st.Facets {
		var values []string
		switch f := f.(type) {
		case *EnumerationFacet:
			values = f.Values
		case *MinInclusiveFacet:
			values = []string{f.Value}
		case *MaxInclusiveFacet:
			values = []string{f.Value}
		case *MinExclusiveFacet:
			values = []string{f.Value}
		case *MaxExclusiveFacet:
			values = []string{f.Value}
		}
		for _, v := range values {
			if _, err := ValidateValue(v, st.Base); err != nil {
				return c.fail(st.line, "the value '%s' of the facet '%s' is not valid: %v", v, f.Name(), err)
			}
		}
	}
	return nil
}

func (c *compiler) resolveComplexType(ct *ComplexType) error {
	switch ct.state {
	case resolved:
		return nil
	case resolving:
		return c.fail(ct.line, "complex type '%s' is derived from itself", ct.QName.Local)
	}
	ct.state = resolving

	own, any, err := c.flattenAttributes(ct.ownAttributes, ct.attrGroupRefs, ct.ownAnyAttr)
	if err != nil {
		return err
	}

	var baseCT *ComplexType
	if b, ok := ct.Base.(*ComplexType); ok {
		if err := c.resolveComplexType(b); err != nil {
			return err
		}
		baseCT = b
	}

	switch {
	case ct.simpleContent:
		if err := c.deriveSimpleContent(ct, baseCT); err != nil {
			return err
		}
	case ct.complexContent:
		if baseCT == nil {
			return c.fail(ct.line, "the base type '%s' of complex content must be a complex type", ct.baseRef.Local)
		}
		if baseCT.Kind == SimpleContentKind && baseCT != AnyType {
			return c.fail(ct.line, "complex content cannot derive from '%s', which has simple content", ct.baseRef.Local)
		}
		ct.Particle = ct.ownParticle
		if ct.Derivation == "extension" {
			ct.Particle = extendParticle(baseCT.Particle, ct.ownParticle)
			if baseCT.Mixed && baseCT != AnyType {
				ct.Mixed = true
			}
		}
	default:
		ct.Base, ct.Derivation = AnyType, "restriction"
		ct.Particle = ct.ownParticle
	}

	switch {
	case baseCT == nil || baseCT == AnyType || ct.Derivation == "":
		ct.Attributes = own
	case ct.Derivation == "extension":
		ct.Attributes = mergeAttributes(baseCT.Attributes, own, false)
	default:
		ct.Attributes = mergeAttributes(baseCT.Attributes, own, true)
	}
	ct.Attributes = withoutProhibited(ct.Attributes)

	ct.AnyAttribute = any
	if any == nil && baseCT != nil && baseCT != AnyType && ct.Derivation == "extension" {
		ct.AnyAttribute = baseCT.AnyAttribute
	}

	if ct.Kind != SimpleContentKind {
		switch {
		case isEmptyParticle(ct.Particle) && ct.Mixed:
			ct.Particle, ct.Kind = nil, MixedContent
		case isEmptyParticle(ct.Particle):
			ct.Particle, ct.Kind = nil, EmptyContent
		case ct.Mixed:
			ct.Kind = MixedContent
		default:
			ct.Kind = ElementOnlyContent
		}
	}
	ct.state = resolved
	return nil
}

func (c *compiler) deriveSimpleContent(ct *ComplexType, baseCT *ComplexType) error {
	ct.Kind = SimpleContentKind
	var content *SimpleType
	switch base := ct.Base.(type) {
	case *SimpleType:
		if ct.Derivation == "restriction" {
			return c.fail(ct.line, "simple content restriction requires a complex base type, '%s' is simple", ct.baseRef.Local)
		}
		if err := c.resolveSimpleType(base); err != nil {
			return err
		}
		content = base
	case *ComplexType:
		if baseCT.Kind != SimpleContentKind {
			return c.fail(ct.line, "the base type '%s' does not have simple content", ct.baseRef.Local)
		}
		content = baseCT.SimpleType
	}

	if ct.Derivation == "restriction" && (len(ct.contentFacets) > 0 || ct.contentSimple != nil) {
		base := content
		if ct.contentSimple != nil {
			if err := c.resolveSimpleType(ct.contentSimple); err != nil {
				return err
			}
			base = ct.contentSimple
		}
		restricted := &SimpleType{Base: base, Facets: ct.contentFacets, derivation: "restriction", line: ct.line}
		for _, f := range ct.contentFacets {
			if ws, ok := f.(*whiteSpaceFacet); ok {
				restricted.WhiteSpace = ws.value
			}
		}
		if err := c.resolveSimpleType(restricted); err != nil {
			return err
		}
		content = restricted
	}
	ct.SimpleType = content
	return nil
}

// extendParticle appends the extension's particle to the base content model.
func extendParticle(base, ext Particle) Particle {
	switch {
	case isEmptyParticle(base):
		return ext
	case isEmptyParticle(ext):
		return base
	}
	return &ModelGroup{Kind: SequenceGroup, MinOcc: 1, MaxOcc: 1, Particles: []Particle{base, ext}}
}

func isEmptyParticle(p Particle) bool {
	switch p := p.(type) {
	case nil:
		return true
	case *ModelGroup:
		if p.MaxOcc == 0 {
			return true
		}
		for _, child := range p.Particles {
			if !isEmptyParticle(child) {
				return false
			}
		}
		return true
	case *GroupRef:
		return p.MaxOcc == 0 || p.Group == nil || isEmptyParticle(p.Group)
	}
	return p.MaxOccurs() == 0
}

func withoutProhibited(attrs []*AttributeDecl) []*AttributeDecl {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Use != ProhibitedUse {
			out = append(out, a)
		}
	}
	return out
}

// resolveElementType gives untyped declarations the type of their
// substitution group head, or anyType.
func (c *compiler) resolveElementType(decl *ElementDecl, seen map[*ElementDecl]bool) error {
	if decl.Type != nil {
		return nil
	}
	if decl.SubstitutionGroup.IsZero() {
		decl.Type = AnyType
		return nil
	}
	if seen[decl] {
		return c.fail(decl.line, "element '%s' is in a circular substitution group", decl.Name.Local)
	}
	if seen == nil {
		seen = make(map[*ElementDecl]bool)
	}
	seen[decl] = true
	head := c.schema.ElementDecls[decl.SubstitutionGroup]
	if err := c.resolveElementType(head, seen); err != nil {
		return err
	}
	decl.Type = head.Type
	return nil
}

func (c *compiler) buildSubstitutionGroups() error {
	for _, decl := range c.schema.ElementDecls {
		seen := map[QName]bool{decl.Name: true}
		for head := decl.SubstitutionGroup; !head.IsZero(); {
			if seen[head] {
				return c.fail(decl.line, "element '%s' is in a circular substitution group", decl.Name.Local)
			}
			seen[head] = true
			c.schema.SubstitutionGroups[head] = append(c.schema.SubstitutionGroups[head], decl)
			next := c.schema.ElementDecls[head]
			if next == nil {
				break
			}
			head = next.SubstitutionGroup
		}
	}
	return nil
}

// contentSimpleType returns the simple type that governs the text of
// elements of type t, or nil when t does not have simple content.
func contentSimpleType(t Type) *SimpleType {
	switch t := t.(type) {
	case *SimpleType:
		return t
	case *ComplexType:
		if t.Kind == SimpleContentKind {
			return t.SimpleType
		}
	}
	return nil
}

func (c *compiler) checkElementValueConstraint(decl *ElementDecl) error {
	value := decl.Default
	if decl.HasFixed {
		value = decl.Fixed
	} else if value == "" {
		return nil
	}
	st := contentSimpleType(decl.Type)
	if st == nil {
		if ct, ok := decl.Type.(*ComplexType); ok && ct.Kind != MixedContent {
			return c.fail(decl.line, "element '%s' has a value constraint but its type does not allow character content", decl.Name.Local)
		}
		return nil
	}
	if _, err := ValidateValue(value, st); err != nil {
		return c.fail(decl.line, "the value constraint '%s' of element '%s' is not valid: %v", value, decl.Name.Local, err)
	}
	return nil
}

func (c *compiler) checkAttributeValueConstraint(a *AttributeDecl) error {
	value := a.Default
	if a.HasFixed {
		value = a.Fixed
	} else if value == "" {
		return nil
	}
	if _, err := ValidateValue(value, a.Type); err != nil {
		return c.fail(a.line, "the value constraint '%s' of attribute '%s' is not valid: %v", value, a.Name.Local, err)
	}
	return nil
}
