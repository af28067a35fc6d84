package usage

import (
	"fmt"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// ReasonKind says which edge first marked an entity.
type ReasonKind uint8

const (
	ReasonKeep ReasonKind = iota + 1
	ReasonLibrary
	ReasonSuperclass
	ReasonInterface
	ReasonReference
	ReasonDescriptor
	ReasonOverride
	ReasonReflection
	ReasonInitializer
)

var reasonNames = map[ReasonKind]string{
	ReasonKeep:        "keep",
	ReasonLibrary:     "library",
	ReasonSuperclass:  "superclass",
	ReasonInterface:   "interface",
	ReasonReference:   "reference",
	ReasonDescriptor:  "descriptor",
	ReasonOverride:    "override",
	ReasonReflection:  "reflection",
	ReasonInitializer: "initializer",
}

func (k ReasonKind) String() string {
	if s, ok := reasonNames[k]; ok {
		return s
	}
	return "unknown"
}

// Reason records the first edge that marked a class or member. Class and
// Member name the entity being processed when the mark was made; Class is
// NoClass for seeds.
type Reason struct {
	Kind   ReasonKind
	Rule   string
	Class  classfile.ClassID
	Member *classfile.Member
}

func (r Reason) source(p *classfile.Program) string {
	if r.Class == classfile.NoClass {
		return ""
	}
	c := p.Class(r.Class)
	if r.Member != nil {
		return c.Name() + "." + r.Member.Signature(c)
	}
	return c.Name()
}

// Describe renders the reason for humans.
func (r Reason) Describe(p *classfile.Program) string {
	src := r.source(p)
	switch r.Kind {
	case ReasonKeep:
		return "kept by rule: " + r.Rule
	case ReasonLibrary:
		if src == "" {
			return "library class"
		}
		return "member of library class " + src
	case ReasonSuperclass:
		return "superclass of " + src
	case ReasonInterface:
		if src == "" {
			return "extends unresolved interface " + r.Rule
		}
		return "extends used interface " + src
	case ReasonReference:
		return "referenced by " + src
	case ReasonDescriptor:
		return "named in the descriptor of " + src
	case ReasonOverride:
		return "may override " + src
	case ReasonReflection:
		return fmt.Sprintf("loaded by name %q in %s", r.Rule, src)
	case ReasonInitializer:
		return "static initializer of " + src
	}
	return "unknown reason"
}

// Explain follows the recorded reasons from a class back to a seed, one
// line per step.
func Explain(p *classfile.Program, marks *Marks, id classfile.ClassID) []string {
	return explain(p, marks, id, nil)
}

// ExplainMember is Explain for a member of class id.
func ExplainMember(p *classfile.Program, marks *Marks, id classfile.ClassID, m *classfile.Member) []string {
	return explain(p, marks, id, m)
}

func explain(p *classfile.Program, marks *Marks, id classfile.ClassID, m *classfile.Member) []string {
	var lines []string
	seen := make(map[string]bool)
	for id != classfile.NoClass {
		c := p.Class(id)
		subject := c.Name()
		var (
			r  Reason
			ok bool
		)
		if m != nil {
			subject += "." + m.Signature(c)
			r, ok = marks.MemberReason(m)
		} else {
			r, ok = marks.ClassReason(id)
		}
		if !ok {
			lines = append(lines, subject+": "+marks.markOf(id, m).String())
			break
		}
		if seen[subject] {
			break
		}
		seen[subject] = true
		lines = append(lines, subject+": "+r.Describe(p))
		id, m = r.Class, r.Member
	}
	return lines
}

func (m *Marks) markOf(id classfile.ClassID, mem *classfile.Member) Mark {
	if mem != nil {
		return m.Member(mem)
	}
	return m.Class(id)
}
