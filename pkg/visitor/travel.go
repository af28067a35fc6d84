package visitor

import "github.com/l3aro/go-class-shrink/pkg/classfile"

// AllMembers visits every field and method of each class.
type AllMembers struct {
	Visitor classfile.MemberVisitor
}

func (a AllMembers) VisitProgramClass(c *classfile.Class) { c.MembersAccept(a.Visitor) }
func (a AllMembers) VisitLibraryClass(c *classfile.Class) { c.MembersAccept(a.Visitor) }

// AllFields visits every field of each class.
type AllFields struct {
	Visitor classfile.MemberVisitor
}

func (a AllFields) VisitProgramClass(c *classfile.Class) { c.FieldsAccept(a.Visitor) }
func (a AllFields) VisitLibraryClass(c *classfile.Class) { c.FieldsAccept(a.Visitor) }

// AllMethods visits every method of each class.
type AllMethods struct {
	Visitor classfile.MemberVisitor
}

func (a AllMethods) VisitProgramClass(c *classfile.Class) { c.MethodsAccept(a.Visitor) }
func (a AllMethods) VisitLibraryClass(c *classfile.Class) { c.MethodsAccept(a.Visitor) }

// AllConstants visits every live pool entry of each class.
type AllConstants struct {
	Visitor classfile.ConstantVisitor
}

func (a AllConstants) VisitProgramClass(c *classfile.Class) { c.ConstantsAccept(a.Visitor) }
func (a AllConstants) VisitLibraryClass(c *classfile.Class) { c.ConstantsAccept(a.Visitor) }

// AllAttributes visits the class attributes of each class.
type AllAttributes struct {
	Visitor classfile.AttributeVisitor
}

func (a AllAttributes) VisitProgramClass(c *classfile.Class) { c.AttributesAccept(a.Visitor) }
func (a AllAttributes) VisitLibraryClass(c *classfile.Class) { c.AttributesAccept(a.Visitor) }

// AllInstructions visits the instructions of every method with code. The
// first decoding failure is kept in Err and stops further decoding.
type AllInstructions struct {
	Visitor classfile.InstructionVisitor
	Err     error
}

func (a *AllInstructions) visit(c *classfile.Class, m *classfile.Member) {
	if a.Err != nil {
		return
	}
	if code := m.Code(); code != nil {
		a.Err = code.InstructionsAccept(c, m, a.Visitor)
	}
}

func (a *AllInstructions) VisitProgramField(*classfile.Class, *classfile.Member) {}
func (a *AllInstructions) VisitLibraryField(*classfile.Class, *classfile.Member) {}

func (a *AllInstructions) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	a.visit(c, m)
}

func (a *AllInstructions) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	a.visit(c, m)
}

// MultiClassVisitor fans a class out to several visitors in order.
type MultiClassVisitor []classfile.ClassVisitor

func (vs MultiClassVisitor) VisitProgramClass(c *classfile.Class) {
	for _, v := range vs {
		v.VisitProgramClass(c)
	}
}

func (vs MultiClassVisitor) VisitLibraryClass(c *classfile.Class) {
	for _, v := range vs {
		v.VisitLibraryClass(c)
	}
}

// MultiMemberVisitor fans a member out to several visitors in order.
type MultiMemberVisitor []classfile.MemberVisitor

func (vs MultiMemberVisitor) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	for _, v := range vs {
		v.VisitProgramField(c, m)
	}
}

func (vs MultiMemberVisitor) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	for _, v := range vs {
		v.VisitProgramMethod(c, m)
	}
}

func (vs MultiMemberVisitor) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	for _, v := range vs {
		v.VisitLibraryField(c, m)
	}
}

func (vs MultiMemberVisitor) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	for _, v := range vs {
		v.VisitLibraryMethod(c, m)
	}
}

// HierarchyTraveler visits a class and, optionally, its superclass chain,
// its interfaces and its subclasses, recursively. Every class is visited at
// most once per travel even when the hierarchy has diamonds or the library
// stubs are cyclic.
type HierarchyTraveler struct {
	Program    *classfile.Program
	Self       bool
	Supers     bool
	Interfaces bool
	Subclasses bool
	Visitor    classfile.ClassVisitor
}

func (h *HierarchyTraveler) VisitProgramClass(c *classfile.Class) { h.Travel(c.ID()) }
func (h *HierarchyTraveler) VisitLibraryClass(c *classfile.Class) { h.Travel(c.ID()) }

type travelMode uint8

const (
	travelSupers travelMode = 1 << iota
	travelInterfaces
	travelSubclasses
)

type travelKey struct {
	id   classfile.ClassID
	mode travelMode
}

type travel struct {
	h        *HierarchyTraveler
	visited  map[classfile.ClassID]bool
	traveled map[travelKey]bool
}

// Travel starts a travel at the class with the given id.
func (h *HierarchyTraveler) Travel(id classfile.ClassID) {
	if id == classfile.NoClass {
		return
	}
	t := &travel{h: h, visited: make(map[classfile.ClassID]bool), traveled: make(map[travelKey]bool)}
	var mode travelMode
	if h.Supers {
		mode |= travelSupers
	}
	if h.Interfaces {
		mode |= travelInterfaces
	}
	if h.Subclasses {
		mode |= travelSubclasses
	}
	if h.Self {
		t.visit(id)
	} else {
		t.visited[id] = true
	}
	t.walk(id, mode)
}

func (t *travel) visit(id classfile.ClassID) {
	if t.visited[id] {
		return
	}
	t.visited[id] = true
	t.h.Program.Class(id).Accept(t.h.Visitor)
}

func (t *travel) walk(id classfile.ClassID, mode travelMode) {
	key := travelKey{id, mode}
	if t.traveled[key] {
		return
	}
	t.traveled[key] = true
	p := t.h.Program
	if mode&travelSupers != 0 {
		if s := p.Super(id); s != classfile.NoClass {
			t.visit(s)
			t.walk(s, mode&^travelSubclasses)
		}
	}
	if mode&travelInterfaces != 0 {
		for _, i := range p.Interfaces(id) {
			if i != classfile.NoClass {
				t.visit(i)
				t.walk(i, travelInterfaces)
			}
		}
	}
	if mode&travelSubclasses != 0 {
		for _, s := range p.Subclasses(id) {
			t.visit(s)
			t.walk(s, travelSubclasses)
		}
	}
}
