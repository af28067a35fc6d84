package classfile

// ClassVisitor receives classes, split by partition.
type ClassVisitor interface {
	VisitProgramClass(c *Class)
	VisitLibraryClass(c *Class)
}

// MemberVisitor receives fields and methods, split by partition.
type MemberVisitor interface {
	VisitProgramField(c *Class, f *Member)
	VisitProgramMethod(c *Class, m *Member)
	VisitLibraryField(c *Class, f *Member)
	VisitLibraryMethod(c *Class, m *Member)
}

// ConstantVisitor receives pool entries; implementations switch on the
// concrete constant type.
type ConstantVisitor interface {
	VisitConstant(c *Class, index uint16, k Constant)
}

// AttributeVisitor receives attributes. m is nil for class attributes.
type AttributeVisitor interface {
	VisitAttribute(c *Class, m *Member, a Attribute)
}

// InstructionVisitor receives decoded instructions by operand family.
type InstructionVisitor interface {
	VisitSimpleInstruction(c *Class, m *Member, code *CodeAttribute, ins *Instruction)
	VisitConstantInstruction(c *Class, m *Member, code *CodeAttribute, ins *Instruction)
	VisitSwitchInstruction(c *Class, m *Member, code *CodeAttribute, ins *Instruction)
}

// ClassFunc adapts a function to ClassVisitor for both partitions.
type ClassFunc func(c *Class)

func (f ClassFunc) VisitProgramClass(c *Class) { f(c) }
func (f ClassFunc) VisitLibraryClass(c *Class) { f(c) }

// MemberFunc adapts a function to MemberVisitor for every member kind.
type MemberFunc func(c *Class, m *Member)

func (f MemberFunc) VisitProgramField(c *Class, m *Member)  { f(c, m) }
func (f MemberFunc) VisitProgramMethod(c *Class, m *Member) { f(c, m) }
func (f MemberFunc) VisitLibraryField(c *Class, m *Member)  { f(c, m) }
func (f MemberFunc) VisitLibraryMethod(c *Class, m *Member) { f(c, m) }

// ConstantFunc adapts a function to ConstantVisitor.
type ConstantFunc func(c *Class, index uint16, k Constant)

func (f ConstantFunc) VisitConstant(c *Class, index uint16, k Constant) { f(c, index, k) }

// AttributeFunc adapts a function to AttributeVisitor.
type AttributeFunc func(c *Class, m *Member, a Attribute)

func (f AttributeFunc) VisitAttribute(c *Class, m *Member, a Attribute) { f(c, m, a) }

// InstructionFunc adapts a function to InstructionVisitor for every family.
type InstructionFunc func(c *Class, m *Member, code *CodeAttribute, ins *Instruction)

func (f InstructionFunc) VisitSimpleInstruction(c *Class, m *Member, code *CodeAttribute, ins *Instruction) {
	f(c, m, code, ins)
}
func (f InstructionFunc) VisitConstantInstruction(c *Class, m *Member, code *CodeAttribute, ins *Instruction) {
	f(c, m, code, ins)
}
func (f InstructionFunc) VisitSwitchInstruction(c *Class, m *Member, code *CodeAttribute, ins *Instruction) {
	f(c, m, code, ins)
}

// Accept dispatches the class to the visitor method of its partition.
func (c *Class) Accept(v ClassVisitor) {
	if c.Library {
		v.VisitLibraryClass(c)
	} else {
		v.VisitProgramClass(c)
	}
}

// Accept dispatches the member to the visitor method of its kind and partition.
func (m *Member) Accept(c *Class, v MemberVisitor) {
	switch {
	case c.Library && m.Kind == FieldKind:
		v.VisitLibraryField(c, m)
	case c.Library:
		v.VisitLibraryMethod(c, m)
	case m.Kind == FieldKind:
		v.VisitProgramField(c, m)
	default:
		v.VisitProgramMethod(c, m)
	}
}

// FieldsAccept visits the fields in file order.
func (c *Class) FieldsAccept(v MemberVisitor) {
	for _, f := range c.Fields {
		f.Accept(c, v)
	}
}

// MethodsAccept visits the methods in file order.
func (c *Class) MethodsAccept(v MemberVisitor) {
	for _, m := range c.Methods {
		m.Accept(c, v)
	}
}

// MembersAccept visits fields then methods.
func (c *Class) MembersAccept(v MemberVisitor) {
	c.FieldsAccept(v)
	c.MethodsAccept(v)
}

// ConstantsAccept visits every live pool entry in index order.
func (c *Class) ConstantsAccept(v ConstantVisitor) {
	for i, k := range c.Pool {
		if k != nil {
			v.VisitConstant(c, uint16(i), k)
		}
	}
}

// ConstantAccept visits a single pool entry if it is live.
func (c *Class) ConstantAccept(index uint16, v ConstantVisitor) {
	if c.Pool.Valid(index) {
		v.VisitConstant(c, index, c.Pool[index])
	}
}

// AttributesAccept visits the class attributes.
func (c *Class) AttributesAccept(v AttributeVisitor) {
	for _, a := range c.Attributes {
		v.VisitAttribute(c, nil, a)
	}
}

// AttributesAccept visits the member attributes.
func (m *Member) AttributesAccept(c *Class, v AttributeVisitor) {
	for _, a := range m.Attributes {
		v.VisitAttribute(c, m, a)
	}
}

// AttributesAccept visits the attributes nested in a Code attribute.
func (a *CodeAttribute) AttributesAccept(c *Class, m *Member, v AttributeVisitor) {
	for _, nested := range a.Attributes {
		v.VisitAttribute(c, m, nested)
	}
}

// InstructionsAccept decodes the code array and visits every instruction.
func (a *CodeAttribute) InstructionsAccept(c *Class, m *Member, v InstructionVisitor) error {
	instructions, err := a.Instructions()
	if err != nil {
		return WithLocation(err, c.Name(), m.Signature(c))
	}
	for _, ins := range instructions {
		ins.Accept(c, m, a, v)
	}
	return nil
}

// Accept dispatches the instruction to the visitor method of its family.
func (ins *Instruction) Accept(c *Class, m *Member, code *CodeAttribute, v InstructionVisitor) {
	switch ins.Shape() {
	case ShapeConstant:
		v.VisitConstantInstruction(c, m, code, ins)
	case ShapeTableSwitch, ShapeLookupSwitch:
		v.VisitSwitchInstruction(c, m, code, ins)
	default:
		v.VisitSimpleInstruction(c, m, code, ins)
	}
}

// ClassesAccept visits every class of the program in arena order.
func (p *Program) ClassesAccept(v ClassVisitor) {
	for _, c := range p.classes {
		c.Accept(v)
	}
}

// ProgramClassesAccept visits only program classes.
func (p *Program) ProgramClassesAccept(v ClassVisitor) {
	for _, c := range p.classes {
		if !c.Library {
			c.Accept(v)
		}
	}
}

// LibraryClassesAccept visits only library classes.
func (p *Program) LibraryClassesAccept(v ClassVisitor) {
	for _, c := range p.classes {
		if c.Library {
			c.Accept(v)
		}
	}
}

// Walker bundles one visitor per role for an accept-all-children walk. Nil
// roles are skipped; Recursive descends from members into their attributes
// and from Code attributes into instructions and nested attributes.
type Walker struct {
	Members      MemberVisitor
	Constants    ConstantVisitor
	Attributes   AttributeVisitor
	Instructions InstructionVisitor
	Recursive    bool
}

// ChildrenAccept visits the directly owned children of the class in file
// order: constants, fields, methods, attributes.
func (c *Class) ChildrenAccept(w *Walker) error {
	if w.Constants != nil {
		c.ConstantsAccept(w.Constants)
	}
	for _, m := range c.Members() {
		if w.Members != nil {
			m.Accept(c, w.Members)
		}
		if w.Recursive {
			if err := m.ChildrenAccept(c, w); err != nil {
				return err
			}
		}
	}
	return w.attributes(c, nil, c.Attributes)
}

// ChildrenAccept visits the attributes of the member, descending into code
// when the walk is recursive.
func (m *Member) ChildrenAccept(c *Class, w *Walker) error {
	return w.attributes(c, m, m.Attributes)
}

func (w *Walker) attributes(c *Class, m *Member, attrs []Attribute) error {
	for _, a := range attrs {
		if w.Attributes != nil {
			w.Attributes.VisitAttribute(c, m, a)
		}
		code, ok := a.(*CodeAttribute)
		if !ok || !w.Recursive {
			continue
		}
		if w.Instructions != nil {
			if err := code.InstructionsAccept(c, m, w.Instructions); err != nil {
				return err
			}
		}
		if err := w.attributes(c, m, code.Attributes); err != nil {
			return err
		}
	}
	return nil
}
