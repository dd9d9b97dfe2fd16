package xsd

import (
	"fmt"
	"strings"
)

// ValidateValue checks a lexical value against a simple type. It returns
// the whitespace-normalized value, which is what facets, fixed values and
// identity constraints compare.
func ValidateValue(value string, st *SimpleType) (string, error) {
	if st == nil {
		return value, nil
	}
	value = NormalizeWhiteSpace(value, st.whiteSpace())
	return value, validateNormalized(value, st)
}

func validateNormalized(value string, st *SimpleType) error {
	switch st.Variety {
	case ListVariety:
		if st.ItemType != nil {
			for _, item := range strings.Fields(value) {
				if _, err := ValidateValue(item, st.ItemType); err != nil {
					return err
				}
			}
		}
	case UnionVariety:
		if !matchesUnion(value, st) {
			return fmt.Errorf("'%s' is not a valid value of the union type '%s'", value, typeLabel(st))
		}
	default:
		for t := st; t != nil; t = t.Base {
			if t.builtin != nil && t.builtin.check != nil {
				if err := t.builtin.check(value); err != nil {
					return err
				}
			}
		}
	}

	for t := st; t != nil; t = t.Base {
		for _, f := range t.Facets {
			if err := f.Validate(value, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesUnion(value string, st *SimpleType) bool {
	for _, member := range st.MemberTypes {
		if _, err := ValidateValue(value, member); err == nil {
			return true
		}
	}
	return false
}

// typeLabel names a simple type for messages: xs:int, {ns}name or the
// anonymous marker libxml2 users are used to.
func typeLabel(st *SimpleType) string {
	switch {
	case st == nil || st.QName.IsZero():
		return "local simple type"
	case st.QName.Namespace == XSDNamespace:
		return "xs:" + st.QName.Local
	}
	return st.QName.String()
}

// isIDType reports whether values of st are document-unique identifiers.
func isIDType(st *SimpleType) bool {
	return st != nil && st.Variety == AtomicVariety && st.DerivesFrom(builtinTypes["ID"])
}

// idrefValues returns the IDREF values carried by value, if st is IDREF,
// IDREFS or a list of IDREF.
func idrefValues(value string, st *SimpleType) []string {
	if st == nil {
		return nil
	}
	switch st.Variety {
	case AtomicVariety:
		if st.DerivesFrom(builtinTypes["IDREF"]) {
			return []string{value}
		}
	case ListVariety:
		if st.ItemType != nil && st.ItemType.DerivesFrom(builtinTypes["IDREF"]) {
			return strings.Fields(value)
		}
	}
	return nil
}
