// Package keep models entry-point and assumption rules: which classes and
// members seed the reachability closure, and which methods are free of side
// effects.
package keep

import (
	"strings"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/visitor"
)

// RuleKind says what a matched class specification does.
type RuleKind string

const (
	// RuleKeep keeps the matched classes and members.
	RuleKeep RuleKind = "keep"
	// RuleKeepClassMembers keeps the matched members of classes that are
	// otherwise found to be used.
	RuleKeepClassMembers RuleKind = "keepclassmembers"
	// RuleKeepClassesWithMembers keeps classes that declare every listed
	// member, together with those members.
	RuleKeepClassesWithMembers RuleKind = "keepclasseswithmembers"
	// RuleAssumeNoSideEffects lists methods whose calls may be dropped when
	// their result is unused.
	RuleAssumeNoSideEffects RuleKind = "assumenosideeffects"
)

// ClassSpec selects classes by name, access flags and supertype, and
// members of those classes.
type ClassSpec struct {
	Rule           RuleKind
	AllowShrinking bool
	Required       classfile.AccessFlags
	Forbidden      classfile.AccessFlags
	Name           *visitor.Matcher
	Extends        *visitor.Matcher // nil when no supertype is named
	Members        []MemberSpec
	Text           string
}

// MemberSpec selects fields, methods or both.
type MemberSpec struct {
	Fields    bool
	Methods   bool
	Required  classfile.AccessFlags
	Forbidden classfile.AccessFlags
	Name      *visitor.Matcher // nil matches every name
	Type      *TypePattern     // field type or return type; nil matches any
	Params    []TypePattern    // nil for fields or when any list is accepted
	AnyParams bool
}

// TypePattern matches one field descriptor.
type TypePattern struct {
	text      string
	any       bool
	primitive bool
	matcher   *visitor.Matcher
}

// NewTypePattern converts a source-level type pattern such as
// "java.lang.*[]", "int", "%" or "***" into a descriptor pattern.
func NewTypePattern(text string) TypePattern {
	tp := TypePattern{text: text}
	switch text {
	case "***", "...":
		tp.any = true
	case "%":
		tp.primitive = true
	default:
		tp.matcher = visitor.NewMatcher(classfile.TypeDescriptor(text))
	}
	return tp
}

// Match reports whether a field descriptor matches.
func (tp TypePattern) Match(desc string) bool {
	switch {
	case tp.any:
		return true
	case tp.primitive:
		return len(desc) == 1 && desc != "V"
	}
	return tp.matcher.Match(desc)
}

func (tp TypePattern) String() string { return tp.text }

// MatchClass reports whether the class itself satisfies the name, access
// and supertype constraints. Member constraints of
// keepclasseswithmembers rules are checked as well.
func (s *ClassSpec) MatchClass(p *classfile.Program, c *classfile.Class) bool {
	if !s.Name.Match(c.Name()) || !visitor.AccessAccepts(c.AccessFlags, s.Required, s.Forbidden) {
		return false
	}
	if s.Extends != nil && !s.extends(p, c) {
		return false
	}
	if s.Rule == RuleKeepClassesWithMembers {
		for i := range s.Members {
			if !s.Members[i].declaredIn(c) {
				return false
			}
		}
	}
	return true
}

func (s *ClassSpec) extends(p *classfile.Program, c *classfile.Class) bool {
	if s.Extends.Match(c.SuperName()) {
		return true
	}
	for _, name := range c.InterfaceNames() {
		if s.Extends.Match(name) {
			return true
		}
	}
	if p == nil || c.ID() == classfile.NoClass {
		return false
	}
	found := false
	h := &visitor.HierarchyTraveler{Program: p, Supers: true, Interfaces: true,
		Visitor: classfile.ClassFunc(func(super *classfile.Class) {
			if s.Extends.Match(super.Name()) {
				found = true
			}
		})}
	h.Travel(c.ID())
	return found
}

// Accept visits every class of the program matched by the spec, building
// the same filter chain a hand-written traversal would.
func (s *ClassSpec) Accept(p *classfile.Program, v classfile.ClassVisitor) {
	var chain classfile.ClassVisitor = v
	if s.Extends != nil || s.Rule == RuleKeepClassesWithMembers {
		chain = visitor.ClassPredicateFilter{
			Accept:  func(c *classfile.Class) bool { return s.MatchClass(p, c) },
			Visitor: chain,
		}
	}
	chain = &visitor.ClassAccessFilter{Required: s.Required, Forbidden: s.Forbidden, Visitor: chain}
	if name, ok := s.Name.IsLiteral(); ok {
		if id := p.Lookup(name); id != classfile.NoClass {
			p.Class(id).Accept(chain)
		}
		return
	}
	p.ClassesAccept(&visitor.ClassNameFilter{Matcher: s.Name, Visitor: chain})
}

// MembersAccept visits the members of c selected by the member specs.
// A member selected by several specs is visited once per spec.
func (s *ClassSpec) MembersAccept(c *classfile.Class, v classfile.MemberVisitor) {
	for i := range s.Members {
		c.MembersAccept(s.Members[i].filter(v))
	}
}

func (ms *MemberSpec) filter(v classfile.MemberVisitor) classfile.MemberVisitor {
	var chain classfile.MemberVisitor = visitor.MemberPredicateFilter{
		Accept: func(c *classfile.Class, m *classfile.Member) bool {
			return ms.matchDescriptor(m.Descriptor(c))
		},
		Visitor: v,
	}
	chain = &visitor.MemberNameFilter{Name: ms.Name, Visitor: chain}
	chain = &visitor.MemberAccessFilter{Required: ms.Required, Forbidden: ms.Forbidden, Visitor: chain}
	kinds := visitor.MemberKindFilter{}
	if ms.Fields {
		kinds.Fields = chain
	}
	if ms.Methods {
		kinds.Methods = chain
	}
	return kinds
}

// Match reports whether the member matches the spec.
func (ms *MemberSpec) Match(c *classfile.Class, m *classfile.Member) bool {
	if m.Kind == classfile.FieldKind && !ms.Fields || m.Kind == classfile.MethodKind && !ms.Methods {
		return false
	}
	return ms.MatchSignature(m.AccessFlags, m.Name(c), m.Descriptor(c), true)
}

// MatchSignature matches by name and descriptor, and by flags when
// checkFlags is set.
func (ms *MemberSpec) MatchSignature(flags classfile.AccessFlags, name, desc string, checkFlags bool) bool {
	if checkFlags && !visitor.AccessAccepts(flags, ms.Required, ms.Forbidden) {
		return false
	}
	isMethod := strings.HasPrefix(desc, "(")
	if isMethod && !ms.Methods || !isMethod && !ms.Fields {
		return false
	}
	return ms.Name.Match(name) && ms.matchDescriptor(desc)
}

func (ms *MemberSpec) declaredIn(c *classfile.Class) bool {
	for _, m := range c.Members() {
		if ms.Match(c, m) {
			return true
		}
	}
	return false
}

func (ms *MemberSpec) matchDescriptor(desc string) bool {
	if !strings.HasPrefix(desc, "(") {
		return ms.Type == nil || ms.Type.Match(desc)
	}
	mt, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return false
	}
	if ms.Type != nil && !ms.Type.Match(mt.Return) {
		return false
	}
	if ms.AnyParams || ms.Params == nil {
		return true
	}
	return matchParams(ms.Params, mt.Params)
}

func matchParams(patterns []TypePattern, params []string) bool {
	if len(patterns) == 0 {
		return len(params) == 0
	}
	if patterns[0].text == "..." {
		for i := 0; i <= len(params); i++ {
			if matchParams(patterns[1:], params[i:]) {
				return true
			}
		}
		return false
	}
	if len(params) == 0 || !patterns[0].Match(params[0]) {
		return false
	}
	return matchParams(patterns[1:], params[1:])
}

func (s *ClassSpec) String() string { return s.Text }
