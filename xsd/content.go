package xsd

import (
	"github.com/agentflare-ai/go-xmldom"
)

// matchTerm is what a child element was matched against: an element
// declaration or a wildcard.
type matchTerm struct {
	decl     *ElementDecl
	wildcard *AnyElement
}

// contentMatch is the outcome of matching children against a content model.
type contentMatch struct {
	terms []matchTerm
	ok    bool
	// failAt is the index of the first child that could not be matched, or
	// len(children) when content is missing at the end.
	failAt   int
	expected []string
}

// posSet is a set of child positions, indexed 0..len(children).
type posSet []bool

func (s posSet) empty() bool {
	for _, in := range s {
		if in {
			return false
		}
	}
	return true
}

func (s posSet) equal(o posSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s posSet) union(o posSet) {
	for i, in := range o {
		if in {
			s[i] = true
		}
	}
}

// contentMatcher runs every path through a content model at once: each
// particle maps the set of positions it may start at to the set of
// positions it may end at.
type contentMatcher struct {
	schema   *Schema
	names    []QName
	terms    []matchTerm
	furthest int
	expected []string
	seen     map[string]bool
}

func matchContent(schema *Schema, children []xmldom.Element, p Particle) contentMatch {
	m := &contentMatcher{
		schema:   schema,
		names:    make([]QName, len(children)),
		terms:    make([]matchTerm, len(children)),
		furthest: -1,
		seen:     make(map[string]bool),
	}
	for i, child := range children {
		m.names[i] = qnameOf(child)
	}
	start := m.newSet()
	start[0] = true
	end := start
	if p != nil {
		end = m.particle(p, start)
	}

	n := len(children)
	if end[n] {
		return contentMatch{terms: m.terms, ok: true}
	}
	reach := 0
	for i, in := range end {
		if in {
			reach = i
		}
	}
	if reach > m.furthest || m.furthest < 0 {
		return contentMatch{terms: m.terms, failAt: reach}
	}
	return contentMatch{terms: m.terms, failAt: m.furthest, expected: m.expected}
}

func (m *contentMatcher) newSet() posSet {
	return make(posSet, len(m.names)+1)
}

func (m *contentMatcher) expect(pos int, what string) {
	if pos > m.furthest {
		m.furthest = pos
		m.expected = nil
		m.seen = make(map[string]bool)
	}
	if pos == m.furthest && !m.seen[what] {
		m.seen[what] = true
		m.expected = append(m.expected, what)
	}
}

func (m *contentMatcher) particle(p Particle, starts posSet) posSet {
	switch p := p.(type) {
	case *ElementParticle:
		return m.repeat(p, starts, func(s posSet) posSet { return m.element(p.Decl, s) })
	case *AnyElement:
		return m.repeat(p, starts, func(s posSet) posSet { return m.wildcard(p, s) })
	case *ModelGroup:
		return m.repeat(p, starts, func(s posSet) posSet { return m.group(p, s) })
	case *GroupRef:
		return m.repeat(p, starts, func(s posSet) posSet {
			if p.Group == nil {
				return m.newSet()
			}
			return m.particle(p.Group, s)
		})
	}
	return m.newSet()
}

// repeat applies term between MinOccurs and MaxOccurs times.
func (m *contentMatcher) repeat(p Particle, starts posSet, term func(posSet) posSet) posSet {
	minOcc, maxOcc := p.MinOccurs(), p.MaxOccurs()
	result := m.newSet()
	if minOcc == 0 {
		result.union(starts)
	}
	visited := m.newSet()
	visited.union(starts)
	cur := starts
	for i := 1; maxOcc == Unbounded || i <= maxOcc; i++ {
		next := term(cur)
		if next.empty() {
			break
		}
		if i >= minOcc {
			result.union(next)
			// Further rounds from already-seen positions add nothing new.
			fresh := m.newSet()
			for pos, in := range next {
				if in && !visited[pos] {
					fresh[pos] = true
				}
			}
			visited.union(next)
			if fresh.empty() {
				break
			}
			next = fresh
		} else if next.equal(cur) {
			// Every remaining mandatory round would end at the same positions.
			i = minOcc - 1
		}
		cur = next
	}
	return result
}

func (m *contentMatcher) element(decl *ElementDecl, starts posSet) posSet {
	out := m.newSet()
	if decl == nil {
		return out
	}
	for pos, in := range starts {
		if !in {
			continue
		}
		if pos < len(m.names) {
			if match := m.substitute(decl, m.names[pos]); match != nil {
				out[pos+1] = true
				if m.terms[pos] == (matchTerm{}) {
					m.terms[pos] = matchTerm{decl: match}
				}
				continue
			}
		}
		m.expect(pos, displayName(decl.Name))
	}
	return out
}

// substitute returns the declaration that name stands for at a place
// where decl is allowed: decl itself or a member of its substitution group.
func (m *contentMatcher) substitute(decl *ElementDecl, name QName) *ElementDecl {
	if decl.Name == name {
		return decl
	}
	if !decl.Global {
		return nil
	}
	for _, member := range m.schema.SubstitutionGroups[decl.Name] {
		if member.Name == name {
			return member
		}
	}
	return nil
}

func (m *contentMatcher) wildcard(w *AnyElement, starts posSet) posSet {
	out := m.newSet()
	for pos, in := range starts {
		if !in {
			continue
		}
		if pos < len(m.names) && w.Namespace.Allows(m.names[pos].Namespace) {
			out[pos+1] = true
			if m.terms[pos] == (matchTerm{}) {
				m.terms[pos] = matchTerm{wildcard: w}
			}
			continue
		}
		m.expect(pos, w.Namespace.String())
	}
	return out
}

func (m *contentMatcher) group(g *ModelGroup, starts posSet) posSet {
	switch g.Kind {
	case ChoiceGroup:
		out := m.newSet()
		for _, p := range g.Particles {
			out.union(m.particle(p, starts))
		}
		return out
	case AllGroup:
		return m.all(g, starts)
	}
	cur := starts
	for _, p := range g.Particles {
		cur = m.particle(p, cur)
		if cur.empty() {
			break
		}
	}
	return cur
}

// all matches an xs:all group: each member at most once, in any order.
func (m *contentMatcher) all(g *ModelGroup, starts posSet) posSet {
	type state struct {
		pos  int
		used uint64
	}
	out := m.newSet()
	var required uint64
	for i, p := range g.Particles {
		if p.MinOccurs() > 0 {
			required |= 1 << uint(i)
		}
	}
	var queue []state
	seen := make(map[state]bool)
	for pos, in := range starts {
		if in {
			queue = append(queue, state{pos: pos})
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if seen[s] {
			continue
		}
		seen[s] = true
		if s.used&required == required {
			out[s.pos] = true
		}
		one := m.newSet()
		one[s.pos] = true
		for i, p := range g.Particles {
			if s.used&(1<<uint(i)) != 0 {
				continue
			}
			ep, ok := p.(*ElementParticle)
			if !ok {
				continue
			}
			next := m.element(ep.Decl, one)
			if s.pos+1 < len(next) && next[s.pos+1] {
				queue = append(queue, state{pos: s.pos + 1, used: s.used | 1<<uint(i)})
			}
		}
	}
	return out
}

// displayName renders a name the way expectation lists show it.
func displayName(q QName) string {
	return q.String()
}
