package visitor

import "github.com/l3aro/go-class-shrink/pkg/classfile"

// AccessAccepts reports whether flags satisfy a required/forbidden pair.
// Public, private and protected in required form a one-of group: any one
// of the requested visibilities satisfies it.
func AccessAccepts(flags, required, forbidden classfile.AccessFlags) bool {
	visibility := required & classfile.AccVisibility
	rest := required &^ classfile.AccVisibility
	if flags&rest != rest {
		return false
	}
	if visibility != 0 && flags&visibility == 0 {
		return false
	}
	return flags&forbidden == 0
}

// ClassNameFilter forwards classes whose internal name matches.
type ClassNameFilter struct {
	Matcher *Matcher
	Visitor classfile.ClassVisitor
}

// NewClassNameFilter builds a filter from a class name pattern list.
func NewClassNameFilter(patterns string, v classfile.ClassVisitor) *ClassNameFilter {
	return &ClassNameFilter{Matcher: NewClassMatcher(patterns), Visitor: v}
}

func (f *ClassNameFilter) VisitProgramClass(c *classfile.Class) {
	if f.Matcher.Match(c.Name()) {
		f.Visitor.VisitProgramClass(c)
	}
}

func (f *ClassNameFilter) VisitLibraryClass(c *classfile.Class) {
	if f.Matcher.Match(c.Name()) {
		f.Visitor.VisitLibraryClass(c)
	}
}

// ClassAccessFilter forwards classes whose flags satisfy the masks.
type ClassAccessFilter struct {
	Required  classfile.AccessFlags
	Forbidden classfile.AccessFlags
	Visitor   classfile.ClassVisitor
}

func (f *ClassAccessFilter) VisitProgramClass(c *classfile.Class) {
	if AccessAccepts(c.AccessFlags, f.Required, f.Forbidden) {
		f.Visitor.VisitProgramClass(c)
	}
}

func (f *ClassAccessFilter) VisitLibraryClass(c *classfile.Class) {
	if AccessAccepts(c.AccessFlags, f.Required, f.Forbidden) {
		f.Visitor.VisitLibraryClass(c)
	}
}

// ProgramClassFilter forwards program classes only.
type ProgramClassFilter struct {
	Visitor classfile.ClassVisitor
}

func (f ProgramClassFilter) VisitProgramClass(c *classfile.Class) { f.Visitor.VisitProgramClass(c) }
func (ProgramClassFilter) VisitLibraryClass(*classfile.Class)     {}

// LibraryClassFilter forwards library classes only.
type LibraryClassFilter struct {
	Visitor classfile.ClassVisitor
}

func (LibraryClassFilter) VisitProgramClass(*classfile.Class)     {}
func (f LibraryClassFilter) VisitLibraryClass(c *classfile.Class) { f.Visitor.VisitLibraryClass(c) }

// ClassPredicateFilter forwards classes accepted by a predicate, such as a
// usage mark lookup.
type ClassPredicateFilter struct {
	Accept  func(c *classfile.Class) bool
	Visitor classfile.ClassVisitor
}

func (f ClassPredicateFilter) VisitProgramClass(c *classfile.Class) {
	if f.Accept(c) {
		f.Visitor.VisitProgramClass(c)
	}
}

func (f ClassPredicateFilter) VisitLibraryClass(c *classfile.Class) {
	if f.Accept(c) {
		f.Visitor.VisitLibraryClass(c)
	}
}

// MemberNameFilter forwards members whose name and descriptor match. A nil
// matcher accepts everything.
type MemberNameFilter struct {
	Name       *Matcher
	Descriptor *Matcher
	Visitor    classfile.MemberVisitor
}

func (f *MemberNameFilter) accepts(c *classfile.Class, m *classfile.Member) bool {
	return f.Name.Match(m.Name(c)) && f.Descriptor.Match(m.Descriptor(c))
}

func (f *MemberNameFilter) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	if f.accepts(c, m) {
		f.Visitor.VisitProgramField(c, m)
	}
}

func (f *MemberNameFilter) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	if f.accepts(c, m) {
		f.Visitor.VisitProgramMethod(c, m)
	}
}

func (f *MemberNameFilter) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	if f.accepts(c, m) {
		f.Visitor.VisitLibraryField(c, m)
	}
}

func (f *MemberNameFilter) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	if f.accepts(c, m) {
		f.Visitor.VisitLibraryMethod(c, m)
	}
}

// MemberAccessFilter forwards members whose flags satisfy the masks.
type MemberAccessFilter struct {
	Required  classfile.AccessFlags
	Forbidden classfile.AccessFlags
	Visitor   classfile.MemberVisitor
}

func (f *MemberAccessFilter) ok(m *classfile.Member) bool {
	return AccessAccepts(m.AccessFlags, f.Required, f.Forbidden)
}

func (f *MemberAccessFilter) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	if f.ok(m) {
		f.Visitor.VisitProgramField(c, m)
	}
}

func (f *MemberAccessFilter) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	if f.ok(m) {
		f.Visitor.VisitProgramMethod(c, m)
	}
}

func (f *MemberAccessFilter) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	if f.ok(m) {
		f.Visitor.VisitLibraryField(c, m)
	}
}

func (f *MemberAccessFilter) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	if f.ok(m) {
		f.Visitor.VisitLibraryMethod(c, m)
	}
}

// ProgramMemberFilter forwards members of program classes only.
type ProgramMemberFilter struct {
	Visitor classfile.MemberVisitor
}

func (f ProgramMemberFilter) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	f.Visitor.VisitProgramField(c, m)
}

func (f ProgramMemberFilter) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	f.Visitor.VisitProgramMethod(c, m)
}

func (ProgramMemberFilter) VisitLibraryField(*classfile.Class, *classfile.Member)  {}
func (ProgramMemberFilter) VisitLibraryMethod(*classfile.Class, *classfile.Member) {}

// LibraryMemberFilter forwards members of library classes only.
type LibraryMemberFilter struct {
	Visitor classfile.MemberVisitor
}

func (LibraryMemberFilter) VisitProgramField(*classfile.Class, *classfile.Member)  {}
func (LibraryMemberFilter) VisitProgramMethod(*classfile.Class, *classfile.Member) {}

func (f LibraryMemberFilter) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	f.Visitor.VisitLibraryField(c, m)
}

func (f LibraryMemberFilter) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	f.Visitor.VisitLibraryMethod(c, m)
}

// MemberPredicateFilter forwards members accepted by a predicate.
type MemberPredicateFilter struct {
	Accept  func(c *classfile.Class, m *classfile.Member) bool
	Visitor classfile.MemberVisitor
}

func (f MemberPredicateFilter) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	if f.Accept(c, m) {
		f.Visitor.VisitProgramField(c, m)
	}
}

func (f MemberPredicateFilter) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	if f.Accept(c, m) {
		f.Visitor.VisitProgramMethod(c, m)
	}
}

func (f MemberPredicateFilter) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	if f.Accept(c, m) {
		f.Visitor.VisitLibraryField(c, m)
	}
}

func (f MemberPredicateFilter) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	if f.Accept(c, m) {
		f.Visitor.VisitLibraryMethod(c, m)
	}
}

// MemberKindFilter splits members into fields and methods. A nil side drops
// that kind.
type MemberKindFilter struct {
	Fields  classfile.MemberVisitor
	Methods classfile.MemberVisitor
}

func (f MemberKindFilter) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	if f.Fields != nil {
		f.Fields.VisitProgramField(c, m)
	}
}

func (f MemberKindFilter) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	if f.Methods != nil {
		f.Methods.VisitProgramMethod(c, m)
	}
}

func (f MemberKindFilter) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	if f.Fields != nil {
		f.Fields.VisitLibraryField(c, m)
	}
}

func (f MemberKindFilter) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	if f.Methods != nil {
		f.Methods.VisitLibraryMethod(c, m)
	}
}
