package xsd

import (
	"fmt"
)

// XSDNamespace is the XML Schema namespace
const XSDNamespace = "http://www.w3.org/2001/XMLSchema"

// XSINamespace is the XML Schema instance namespace (xsi:nil, xsi:type, ...)
const XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

// Unbounded is the MaxOccurs value of maxOccurs="unbounded"
const Unbounded = -1

// Schema is a compiled XSD schema. It is read-only once Compile returns and
// may be shared by any number of validators.
type Schema struct {
	TargetNamespace string
	ElementDecls    map[QName]*ElementDecl
	TypeDefs        map[QName]Type
	AttributeDecls  map[QName]*AttributeDecl
	Groups          map[QName]*ModelGroup
	AttributeGroups map[QName]*AttributeGroup

	// SubstitutionGroups maps a head element to the elements that may
	// appear in its place, transitively.
	SubstitutionGroups map[QName][]*ElementDecl
}

func newSchema(targetNamespace string) *Schema {
	return &Schema{
		TargetNamespace:    targetNamespace,
		ElementDecls:       make(map[QName]*ElementDecl),
		TypeDefs:           make(map[QName]Type),
		AttributeDecls:     make(map[QName]*AttributeDecl),
		Groups:             make(map[QName]*ModelGroup),
		AttributeGroups:    make(map[QName]*AttributeGroup),
		SubstitutionGroups: make(map[QName][]*ElementDecl),
	}
}

// QName represents a qualified XML name
type QName struct {
	Namespace string
	Local     string
}

// String returns the string representation of a QName
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Namespace, q.Local)
}

// IsZero reports whether the name is empty.
func (q QName) IsZero() bool {
	return q.Local == ""
}

// Type is either a *SimpleType or a *ComplexType.
type Type interface {
	Name() QName
	isType()
}

// Variety is the variety of a simple type.
type Variety int

const (
	AtomicVariety Variety = iota
	ListVariety
	UnionVariety
)

// SimpleType represents an XSD simple type. Builtin types carry a lexical
// checker; user types restrict, list or union other simple types.
type SimpleType struct {
	QName       QName
	Variety     Variety
	Base        *SimpleType
	ItemType    *SimpleType
	MemberTypes []*SimpleType
	Facets      []FacetValidator
	WhiteSpace  string

	builtin    *builtinType
	derivation string
	baseRef    QName
	itemRef    QName
	memberRefs []QName
	state      resolveState
	line       int
}

func (st *SimpleType) Name() QName { return st.QName }
func (*SimpleType) isType()        {}

// IsBuiltin reports whether st is one of the predefined XSD datatypes.
func (st *SimpleType) IsBuiltin() bool { return st.builtin != nil }

// Primitive returns the builtin type at the root of the restriction chain.
func (st *SimpleType) Primitive() *SimpleType {
	for t := st; t != nil; t = t.Base {
		if t.builtin != nil {
			return t
		}
	}
	return nil
}

// whiteSpace returns the effective whiteSpace facet value.
func (st *SimpleType) whiteSpace() string {
	if st.Variety == ListVariety {
		return "collapse"
	}
	for t := st; t != nil; t = t.Base {
		if t.WhiteSpace != "" {
			return t.WhiteSpace
		}
	}
	return "preserve"
}

// ContentKind classifies the content allowed by a complex type.
type ContentKind int

const (
	EmptyContent ContentKind = iota
	SimpleContentKind
	ElementOnlyContent
	MixedContent
)

// ComplexType represents an XSD complex type after derivation has been
// applied: Particle and Attributes hold the effective content model.
type ComplexType struct {
	QName        QName
	Abstract     bool
	Mixed        bool
	Kind         ContentKind
	Particle     Particle
	SimpleType   *SimpleType
	Attributes   []*AttributeDecl
	AnyAttribute *AnyAttribute
	Base         Type
	Derivation   string

	// Filled during compilation; effective values are derived from them.
	baseRef        QName
	ownParticle    Particle
	ownAttributes  []*AttributeDecl
	attrGroupRefs  []*attributeGroupRef
	ownAnyAttr     *AnyAttribute
	contentFacets  []FacetValidator
	contentSimple  *SimpleType
	simpleContent  bool
	complexContent bool
	state          resolveState
	line           int
}

func (ct *ComplexType) Name() QName { return ct.QName }
func (*ComplexType) isType()        {}

type resolveState int

const (
	unresolved resolveState = iota
	resolving
	resolved
)

// ElementDecl represents an element declaration
type ElementDecl struct {
	Name              QName
	Type              Type
	Nillable          bool
	Abstract          bool
	Default           string
	Fixed             string
	HasFixed          bool
	SubstitutionGroup QName
	Constraints       []*IdentityConstraint
	Global            bool

	typeRef QName
	line    int
}

// Particle is a term in a content model with occurrence bounds.
type Particle interface {
	MinOccurs() int
	MaxOccurs() int
}

// ElementParticle is a local element declaration or an element reference.
type ElementParticle struct {
	Decl   *ElementDecl
	MinOcc int
	MaxOcc int

	ref  QName
	line int
}

func (ep *ElementParticle) MinOccurs() int { return ep.MinOcc }
func (ep *ElementParticle) MaxOccurs() int { return ep.MaxOcc }

// ModelGroup represents a sequence, choice or all group
type ModelGroup struct {
	Kind      ModelGroupKind
	Particles []Particle
	MinOcc    int
	MaxOcc    int
}

func (mg *ModelGroup) MinOccurs() int { return mg.MinOcc }
func (mg *ModelGroup) MaxOccurs() int { return mg.MaxOcc }

// ModelGroupKind represents the kind of model group
type ModelGroupKind string

const (
	SequenceGroup ModelGroupKind = "sequence"
	ChoiceGroup   ModelGroupKind = "choice"
	AllGroup      ModelGroupKind = "all"
)

// GroupRef is a reference to a named model group.
type GroupRef struct {
	Ref    QName
	Group  *ModelGroup
	MinOcc int
	MaxOcc int

	line int
}

func (gr *GroupRef) MinOccurs() int { return gr.MinOcc }
func (gr *GroupRef) MaxOccurs() int { return gr.MaxOcc }

// AnyElement represents the xs:any wildcard
type AnyElement struct {
	Namespace       *NamespaceConstraint
	ProcessContents ProcessContents
	MinOcc          int
	MaxOcc          int
}

func (ae *AnyElement) MinOccurs() int { return ae.MinOcc }
func (ae *AnyElement) MaxOccurs() int { return ae.MaxOcc }

// AttributeDecl represents an attribute declaration or attribute use.
type AttributeDecl struct {
	Name     QName
	Type     *SimpleType
	Use      AttributeUse
	Default  string
	Fixed    string
	HasFixed bool

	typeRef QName
	ref     QName
	line    int
}

// AttributeUse represents attribute use
type AttributeUse string

const (
	OptionalUse   AttributeUse = "optional"
	RequiredUse   AttributeUse = "required"
	ProhibitedUse AttributeUse = "prohibited"
)

// AttributeGroup represents a named group of attribute uses
type AttributeGroup struct {
	Name         QName
	Attributes   []*AttributeDecl
	AnyAttribute *AnyAttribute

	refs  []*attributeGroupRef
	state resolveState
}

type attributeGroupRef struct {
	ref   QName
	group *AttributeGroup
	line  int
}

// AnyAttribute represents xs:anyAttribute
type AnyAttribute struct {
	Namespace       *NamespaceConstraint
	ProcessContents ProcessContents
}

// Violation is one entry of the validation log.
type Violation struct {
	Line      int
	Column    int
	Element   string
	Attribute string
	Code      string
	Message   string
	Expected  []string
	Actual    string
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: %s", v.Line, v.Message)
	}
	return v.Message
}
