package classfile

import (
	"fmt"
	"sort"
)

// Ref is the resolved target of a Class or member reference constant.
type Ref struct {
	// Class is the class named by the constant (the element class for array
	// descriptors), or NoClass when it is not part of the program.
	Class ClassID
	// Owner declares Member; it may be a superclass or superinterface of Class.
	Owner  ClassID
	Member *Member
}

// Program is the arena of program and library classes. Hierarchy links and
// resolved references are side tables indexed by ClassID, filled in by Link.
type Program struct {
	classes []*Class
	byName  map[string]ClassID
	super   []ClassID
	ifaces  [][]ClassID
	subs    [][]ClassID
	refs    []map[uint16]Ref
	missing map[string]bool
	linked  bool
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{byName: make(map[string]ClassID)}
}

// NewProgramOf adds every class to a new program and links it.
func NewProgramOf(classes ...*Class) (*Program, error) {
	p := NewProgram()
	for _, c := range classes {
		if _, err := p.Add(c); err != nil {
			return nil, err
		}
	}
	p.Link()
	return p, nil
}

// Add appends a class to the arena. A program class replaces nothing: adding
// two classes with the same name is an error.
func (p *Program) Add(c *Class) (ClassID, error) {
	name := c.Name()
	if name == "" {
		return NoClass, fmt.Errorf("class has no name")
	}
	if _, dup := p.byName[name]; dup {
		return NoClass, fmt.Errorf("duplicate class %s", name)
	}
	id := ClassID(len(p.classes))
	c.id = id
	p.classes = append(p.classes, c)
	p.byName[name] = id
	p.linked = false
	return id, nil
}

// Len returns the number of classes.
func (p *Program) Len() int { return len(p.classes) }

// Class returns the class with the given id.
func (p *Program) Class(id ClassID) *Class {
	if id < 0 || int(id) >= len(p.classes) {
		return nil
	}
	return p.classes[id]
}

// Classes returns every class in arena order.
func (p *Program) Classes() []*Class { return p.classes }

// Lookup returns the id of the named class, or NoClass.
func (p *Program) Lookup(name string) ClassID {
	if id, ok := p.byName[name]; ok {
		return id
	}
	return NoClass
}

// Linked reports whether Link ran since the last Add.
func (p *Program) Linked() bool { return p.linked }

// Link resolves hierarchy links and reference constants. It is idempotent
// and must run after every class of the program and its libraries is added.
func (p *Program) Link() {
	if p.linked {
		return
	}
	n := len(p.classes)
	p.super = make([]ClassID, n)
	p.ifaces = make([][]ClassID, n)
	p.subs = make([][]ClassID, n)
	p.refs = make([]map[uint16]Ref, n)
	p.missing = make(map[string]bool)

	for id, c := range p.classes {
		p.super[id] = NoClass
		if c.SuperClass != 0 {
			p.super[id] = p.lookupRef(c.SuperName())
		}
		for _, name := range c.InterfaceNames() {
			p.ifaces[id] = append(p.ifaces[id], p.lookupRef(name))
		}
	}
	for id := range p.classes {
		if s := p.super[id]; s != NoClass {
			p.subs[s] = append(p.subs[s], ClassID(id))
		}
		for _, iface := range p.ifaces[id] {
			if iface != NoClass {
				p.subs[iface] = append(p.subs[iface], ClassID(id))
			}
		}
	}
	p.linked = true
	for id, c := range p.classes {
		if !c.Library {
			p.refs[id] = p.resolveConstants(c)
		}
	}
}

func (p *Program) lookupRef(name string) ClassID {
	id := p.Lookup(name)
	if id == NoClass && name != "" {
		p.missing[name] = true
	}
	return id
}

func (p *Program) resolveConstants(c *Class) map[uint16]Ref {
	refs := make(map[uint16]Ref)
	for i, k := range c.Pool {
		idx := uint16(i)
		switch k := k.(type) {
		case *ClassConstant:
			name := ElementClass(c.Pool.Str(k.NameIndex))
			if name == "" {
				continue
			}
			refs[idx] = Ref{Class: p.lookupRef(name), Owner: NoClass}
		case *RefConstant:
			className, name, desc, err := c.Pool.MemberRef(idx)
			if err != nil {
				continue
			}
			cls := p.lookupRef(ElementClass(className))
			ref := Ref{Class: cls, Owner: NoClass}
			if cls != NoClass {
				if k.Kind == TagFieldref {
					ref.Owner, ref.Member = p.ResolveField(cls, name, desc)
				} else {
					ref.Owner, ref.Member = p.ResolveMethod(cls, name, desc)
				}
			}
			refs[idx] = ref
		}
	}
	return refs
}

// Super returns the resolved superclass id.
func (p *Program) Super(id ClassID) ClassID {
	p.Link()
	return p.super[id]
}

// Interfaces returns the resolved direct interfaces; unresolved entries are NoClass.
func (p *Program) Interfaces(id ClassID) []ClassID {
	p.Link()
	return p.ifaces[id]
}

// Subclasses returns direct subclasses, and for interfaces the direct
// implementors and subinterfaces.
func (p *Program) Subclasses(id ClassID) []ClassID {
	p.Link()
	return p.subs[id]
}

// Resolve returns the resolved target of the reference constant at idx in
// the given program class.
func (p *Program) Resolve(id ClassID, idx uint16) (Ref, bool) {
	p.Link()
	ref, ok := p.refs[id][idx]
	return ref, ok
}

// Missing returns the names of referenced classes that are not in the program.
func (p *Program) Missing() []string {
	p.Link()
	out := make([]string, 0, len(p.missing))
	for name := range p.missing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveField finds a field by searching the class, its superinterfaces and
// then its superclasses.
func (p *Program) ResolveField(id ClassID, name, desc string) (ClassID, *Member) {
	p.Link()
	seen := make(map[ClassID]bool)
	var walk func(ClassID) (ClassID, *Member)
	walk = func(cur ClassID) (ClassID, *Member) {
		if cur == NoClass || seen[cur] {
			return NoClass, nil
		}
		seen[cur] = true
		if f := p.classes[cur].FindField(name, desc); f != nil {
			return cur, f
		}
		for _, iface := range p.ifaces[cur] {
			if owner, f := walk(iface); f != nil {
				return owner, f
			}
		}
		return walk(p.super[cur])
	}
	return walk(id)
}

// ResolveMethod finds a method by searching the superclass chain first and
// the superinterfaces second.
func (p *Program) ResolveMethod(id ClassID, name, desc string) (ClassID, *Member) {
	p.Link()
	seen := make(map[ClassID]bool)
	var chain []ClassID
	for cur := id; cur != NoClass && !seen[cur]; cur = p.super[cur] {
		seen[cur] = true
		chain = append(chain, cur)
		if m := p.classes[cur].FindMethod(name, desc); m != nil {
			return cur, m
		}
	}
	visited := make(map[ClassID]bool)
	var walk func(ClassID) (ClassID, *Member)
	walk = func(cur ClassID) (ClassID, *Member) {
		if cur == NoClass || visited[cur] {
			return NoClass, nil
		}
		visited[cur] = true
		if p.classes[cur].IsInterface() {
			if m := p.classes[cur].FindMethod(name, desc); m != nil {
				return cur, m
			}
		}
		for _, iface := range p.ifaces[cur] {
			if owner, m := walk(iface); m != nil {
				return owner, m
			}
		}
		return NoClass, nil
	}
	for _, cur := range chain {
		if owner, m := walk(cur); m != nil {
			return owner, m
		}
	}
	return NoClass, nil
}

// IsSubtype reports whether sub extends or implements super, directly or
// transitively. A class is a subtype of itself.
func (p *Program) IsSubtype(sub, super ClassID) bool {
	p.Link()
	seen := make(map[ClassID]bool)
	var walk func(ClassID) bool
	walk = func(cur ClassID) bool {
		if cur == NoClass || seen[cur] {
			return false
		}
		if cur == super {
			return true
		}
		seen[cur] = true
		if walk(p.super[cur]) {
			return true
		}
		for _, iface := range p.ifaces[cur] {
			if walk(iface) {
				return true
			}
		}
		return false
	}
	return walk(sub)
}
