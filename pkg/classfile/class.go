package classfile

import "fmt"

// MemberKind distinguishes fields from methods.
type MemberKind uint8

const (
	FieldKind MemberKind = iota
	MethodKind
)

func (k MemberKind) String() string {
	if k == FieldKind {
		return "field"
	}
	return "method"
}

// ClassID is the arena index of a class inside a Program.
type ClassID int

// NoClass is the id of an absent or unresolved class.
const NoClass ClassID = -1

// Class is one parsed class file. Library classes are immutable context;
// program classes may be shrunk and rewritten.
type Class struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         ConstantPool
	AccessFlags  AccessFlags
	ThisClass    uint16
	SuperClass   uint16 // 0 only for java/lang/Object and module-info
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute
	Library      bool

	id ClassID
}

// Member is a field or a method.
type Member struct {
	Kind            MemberKind
	AccessFlags     AccessFlags
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// ID returns the arena id assigned when the class was added to a Program,
// or NoClass.
func (c *Class) ID() ClassID { return c.id }

// Name returns the internal name of the class.
func (c *Class) Name() string {
	name, _ := c.Pool.ClassName(c.ThisClass)
	return name
}

// SuperName returns the internal name of the superclass, or "".
func (c *Class) SuperName() string {
	if c.SuperClass == 0 {
		return ""
	}
	name, _ := c.Pool.ClassName(c.SuperClass)
	return name
}

// InterfaceNames returns the internal names of the direct interfaces.
func (c *Class) InterfaceNames() []string {
	names := make([]string, 0, len(c.Interfaces))
	for _, idx := range c.Interfaces {
		name, _ := c.Pool.ClassName(idx)
		names = append(names, name)
	}
	return names
}

func (c *Class) IsInterface() bool { return c.AccessFlags.IsInterface() }

// Members returns fields followed by methods.
func (c *Class) Members() []*Member {
	out := make([]*Member, 0, len(c.Fields)+len(c.Methods))
	out = append(out, c.Fields...)
	return append(out, c.Methods...)
}

// FindField returns the field declared with the given name and descriptor.
func (c *Class) FindField(name, desc string) *Member {
	return c.find(c.Fields, name, desc)
}

// FindMethod returns the method declared with the given name and descriptor.
func (c *Class) FindMethod(name, desc string) *Member {
	return c.find(c.Methods, name, desc)
}

func (c *Class) find(members []*Member, name, desc string) *Member {
	for _, m := range members {
		if c.Pool.Str(m.NameIndex) == name && c.Pool.Str(m.DescriptorIndex) == desc {
			return m
		}
	}
	return nil
}

// Attribute returns the first class attribute of the given kind.
func (c *Class) Attribute(kind AttributeKind) Attribute {
	return findAttribute(c.Attributes, kind)
}

func (c *Class) String() string {
	kind := "class"
	if c.IsInterface() {
		kind = "interface"
	}
	return fmt.Sprintf("%s %s", kind, c.Name())
}

// Name returns the member name.
func (m *Member) Name(c *Class) string { return c.Pool.Str(m.NameIndex) }

// Descriptor returns the member descriptor.
func (m *Member) Descriptor(c *Class) string { return c.Pool.Str(m.DescriptorIndex) }

// Signature is name plus descriptor for methods and name:descriptor for fields.
func (m *Member) Signature(c *Class) string {
	if m.Kind == MethodKind {
		return m.Name(c) + m.Descriptor(c)
	}
	return m.Name(c) + ":" + m.Descriptor(c)
}

// Code returns the Code attribute of a method, or nil.
func (m *Member) Code() *CodeAttribute {
	if a, ok := findAttribute(m.Attributes, AttrCode).(*CodeAttribute); ok {
		return a
	}
	return nil
}

// Attribute returns the first member attribute of the given kind.
func (m *Member) Attribute(kind AttributeKind) Attribute {
	return findAttribute(m.Attributes, kind)
}

// IsInitializer reports whether a method is a constructor or static initializer.
func (m *Member) IsInitializer(c *Class) bool {
	name := m.Name(c)
	return name == "<init>" || name == "<clinit>"
}

// IsVirtual reports whether calls to the method dispatch dynamically.
func (m *Member) IsVirtual(c *Class) bool {
	return m.Kind == MethodKind && !m.AccessFlags.IsStatic() && !m.AccessFlags.IsPrivate() && !m.IsInitializer(c)
}
