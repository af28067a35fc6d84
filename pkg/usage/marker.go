package usage

import (
	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/keep"
	"github.com/l3aro/go-class-shrink/pkg/visitor"
)

// Option configures a Marker.
type Option func(*Marker)

// WithLogger sets the logger used for warnings and progress.
func WithLogger(l log.Logger) Option {
	return func(mk *Marker) {
		mk.logger = l
	}
}

// WithKeepAttributes sets the comma-separated attribute name globs that
// keep optional attributes such as SourceFile or LineNumberTable.
func WithKeepAttributes(patterns string) Option {
	return func(mk *Marker) {
		mk.keepAttributes = visitor.NewMatcher(patterns)
	}
}

// WithReflection toggles the detection of classes loaded by a constant
// name through Class.forName or ClassLoader.loadClass.
func WithReflection(enabled bool) Option {
	return func(mk *Marker) {
		mk.reflection = enabled
	}
}

// Marker computes the reachability closure of a program from its keep
// rules, its library classes and reflective class loads.
//
// Interfaces are confirmed in two phases. An interface reached only as a
// supertype of a used class is PossiblyUsed; it becomes Used when a rule
// keeps it, when anything references it, or when one of its own
// superinterfaces is Used. A used implementing class alone leaves it
// PossiblyUsed. Members reached while their class is not Used
// stay PossiblyUsed until the class is confirmed.
type Marker struct {
	program        *classfile.Program
	specs          []*keep.ClassSpec
	logger         log.Logger
	keepAttributes *visitor.Matcher
	reflection     bool

	marks    *Marks
	seeder   *keep.Seeder
	work     []workItem
	deferred map[classfile.ClassID][]deferredMember
	waiting  map[*classfile.Member]bool
	from     origin
	err      error
}

type workItem struct {
	class  classfile.ClassID
	member *classfile.Member
}

type deferredMember struct {
	member *classfile.Member
	reason Reason
}

type origin struct {
	class  classfile.ClassID
	member *classfile.Member
}

var reflectionCalls = map[string]bool{
	"java/lang/Class.forName(Ljava/lang/String;)Ljava/lang/Class;":           true,
	"java/lang/ClassLoader.loadClass(Ljava/lang/String;)Ljava/lang/Class;": true,
}

// NewMarker prepares a marker for the program. The specs may include
// assumption rules; they are ignored here.
func NewMarker(p *classfile.Program, specs []*keep.ClassSpec, opts ...Option) *Marker {
	mk := &Marker{
		program:        p,
		specs:          specs,
		logger:         log.Discard(),
		keepAttributes: visitor.NewMatcher(""),
		reflection:     true,
	}
	for _, opt := range opts {
		opt(mk)
	}
	return mk
}

// Run marks into a fresh table.
func (mk *Marker) Run() (*Marks, error) {
	marks := NewMarks()
	if err := mk.Mark(marks); err != nil {
		return nil, err
	}
	return marks, nil
}

// Mark extends marks to the reachability fixed point. Running it again on
// its own result changes nothing.
func (mk *Marker) Mark(marks *Marks) error {
	p := mk.program
	p.Link()
	mk.marks = marks
	mk.work = nil
	mk.deferred = make(map[classfile.ClassID][]deferredMember)
	mk.waiting = make(map[*classfile.Member]bool)
	mk.from = origin{class: classfile.NoClass}
	mk.err = nil
	mk.seeder = keep.NewSeeder(p, mk.specs)

	p.LibraryClassesAccept(classfile.ClassFunc(func(c *classfile.Class) {
		mk.markClass(c.ID(), Reason{Kind: ReasonLibrary, Class: classfile.NoClass})
	}))
	for _, spec := range mk.seeder.Seed(seeds{mk}) {
		mk.logger.Warn("keep rule matched no class", "rule", spec.Text)
	}

	rounds := 0
	for {
		rounds++
		mk.drain()
		if mk.err != nil {
			return mk.err
		}
		before := marks.Changes()
		mk.promoteInterfaces()
		mk.markRows()
		if marks.Changes() == before && len(mk.work) == 0 {
			break
		}
	}

	s := marks.Summary()
	mk.logger.Debug("marking finished", "rounds", rounds,
		"classes", s.Classes.Used, "members", s.Members.Used, "constants", s.Constants.Used,
		"possibly_used", s.Classes.PossiblyUsed+s.Members.PossiblyUsed)
	for _, name := range p.Missing() {
		mk.logger.Debug("unresolved class", "class", name)
	}
	return nil
}

type seeds struct {
	mk *Marker
}

func (s seeds) KeepClass(c *classfile.Class, spec *keep.ClassSpec) {
	s.mk.markClass(c.ID(), Reason{Kind: ReasonKeep, Rule: spec.Text, Class: classfile.NoClass})
}

func (s seeds) KeepMember(c *classfile.Class, m *classfile.Member, spec *keep.ClassSpec) {
	s.mk.markMember(c, m, Reason{Kind: ReasonKeep, Rule: spec.Text, Class: classfile.NoClass})
}

func (mk *Marker) fail(err error) {
	if mk.err == nil {
		mk.err = err
	}
}

func (mk *Marker) because(kind ReasonKind) Reason {
	return Reason{Kind: kind, Class: mk.from.class, Member: mk.from.member}
}

func (mk *Marker) drain() {
	for len(mk.work) > 0 && mk.err == nil {
		item := mk.work[len(mk.work)-1]
		mk.work = mk.work[:len(mk.work)-1]
		c := mk.program.Class(item.class)
		if item.member == nil {
			mk.processClass(c)
		} else {
			mk.processMember(c, item.member)
		}
	}
}

// markClass confirms a class.
func (mk *Marker) markClass(id classfile.ClassID, r Reason) {
	if id == classfile.NoClass {
		return
	}
	if mk.marks.SetClass(id, Used) {
		mk.marks.noteClass(id, r)
		mk.work = append(mk.work, workItem{class: id})
	}
}

// markInterface follows an implements or extends edge to an interface.
func (mk *Marker) markInterface(id classfile.ClassID) {
	if id == classfile.NoClass {
		return
	}
	c := mk.program.Class(id)
	if c.Library || !c.IsInterface() {
		mk.markClass(id, mk.because(ReasonSuperclass))
		return
	}
	if mk.marks.SetClass(id, PossiblyUsed) {
		for _, super := range mk.program.Interfaces(id) {
			mk.markInterface(super)
		}
	}
}

func (mk *Marker) markMember(c *classfile.Class, m *classfile.Member, r Reason) {
	if mk.marks.IsMemberUsed(m) {
		return
	}
	id := c.ID()
	if !mk.marks.IsClassUsed(id) {
		if !mk.waiting[m] {
			mk.waiting[m] = true
			mk.marks.SetMember(m, PossiblyUsed)
			mk.deferred[id] = append(mk.deferred[id], deferredMember{m, r})
		}
		return
	}
	if mk.marks.SetMember(m, Used) {
		mk.marks.noteMember(m, r)
		mk.work = append(mk.work, workItem{class: id, member: m})
	}
}

func (mk *Marker) processClass(c *classfile.Class) {
	p := mk.program
	id := c.ID()
	mk.from = origin{class: id}

	mk.markClass(p.Super(id), mk.because(ReasonSuperclass))
	if c.Library {
		for _, m := range c.Members() {
			mk.markMember(c, m, mk.because(ReasonLibrary))
		}
		return
	}

	mk.markConstant(c, c.ThisClass)
	mk.markConstant(c, c.SuperClass)
	for _, iface := range p.Interfaces(id) {
		mk.markInterface(iface)
	}
	if clinit := c.FindMethod("<clinit>", "()V"); clinit != nil {
		mk.markMember(c, clinit, mk.because(ReasonInitializer))
	}
	mk.attributes(c, nil, c.Attributes)

	pending := mk.deferred[id]
	delete(mk.deferred, id)
	for _, d := range pending {
		delete(mk.waiting, d.member)
		mk.markMember(c, d.member, d.reason)
	}
	mk.seeder.SeedMembers(c, seeds{mk})
}

func (mk *Marker) processMember(c *classfile.Class, m *classfile.Member) {
	mk.from = origin{class: c.ID(), member: m}
	if !c.Library {
		mk.markConstant(c, m.NameIndex)
		mk.markConstant(c, m.DescriptorIndex)
		mk.markDescriptorClasses(m.Descriptor(c))
		mk.attributes(c, m, m.Attributes)
	}
	if m.IsVirtual(c) {
		mk.markOverrides(c, m)
	}
}

// markOverrides keeps every redefinition of a used virtual method down the
// hierarchy. A concrete subclass that inherits the implementation from a
// superclass outside the hierarchy keeps that implementation instead.
func (mk *Marker) markOverrides(c *classfile.Class, m *classfile.Member) {
	p := mk.program
	name, desc := m.Name(c), m.Descriptor(c)
	r := mk.because(ReasonOverride)
	h := &visitor.HierarchyTraveler{
		Program:    p,
		Subclasses: true,
		Visitor: classfile.ClassFunc(func(sub *classfile.Class) {
			if sub.Library {
				return
			}
			if o := sub.FindMethod(name, desc); o != nil {
				if !o.AccessFlags.IsStatic() && !o.AccessFlags.IsPrivate() {
					mk.markMember(sub, o, r)
				}
				return
			}
			if sub.IsInterface() || sub.AccessFlags.IsAbstract() {
				return
			}
			owner, o := p.ResolveMethod(sub.ID(), name, desc)
			if o == nil || owner == c.ID() {
				return
			}
			if oc := p.Class(owner); !oc.Library && o.IsVirtual(oc) {
				mk.markMember(oc, o, r)
			}
		}),
	}
	h.Travel(c.ID())
}

func (mk *Marker) markDescriptorClasses(desc string) {
	for _, name := range classfile.ClassNames(desc) {
		mk.markClass(mk.program.Lookup(name), mk.because(ReasonDescriptor))
	}
}

func (mk *Marker) markConstant(c *classfile.Class, idx uint16) {
	if idx == 0 || c.Library {
		return
	}
	id := c.ID()
	if !mk.marks.SetConstant(id, idx, Used) {
		return
	}
	k, err := c.Pool.Get(idx)
	if err != nil {
		mk.fail(classfile.Inconsistent(c.Name(), "", -1, "reference to pool index %d: %v", idx, err))
		return
	}
	for _, dep := range classfile.Dependencies(k) {
		mk.markConstant(c, dep)
	}

	p := mk.program
	switch k := k.(type) {
	case *classfile.ClassConstant:
		if ref, ok := p.Resolve(id, idx); ok {
			mk.markClass(ref.Class, mk.because(ReasonReference))
		}
	case *classfile.RefConstant:
		if ref, ok := p.Resolve(id, idx); ok && ref.Member != nil {
			r := mk.because(ReasonReference)
			mk.markClass(ref.Owner, r)
			mk.markMember(p.Class(ref.Owner), ref.Member, r)
		}
	case *classfile.MethodTypeConstant:
		mk.markDescriptorClasses(c.Pool.Str(k.DescriptorIndex))
	case *classfile.DynamicConstant:
		mk.markBootstrap(c, k.BootstrapMethodAttrIndex)
	}
}

func (mk *Marker) markBootstrap(c *classfile.Class, row uint16) {
	a, _ := c.Attribute(classfile.AttrBootstrapMethods).(*classfile.BootstrapMethodsAttribute)
	if a == nil || int(row) >= len(a.Methods) {
		mk.fail(classfile.Inconsistent(c.Name(), "", -1, "bootstrap method %d does not exist", row))
		return
	}
	mk.useTable(c, a)
	if !mk.marks.SetRow(a, int(row), Used) {
		return
	}
	bm := a.Methods[row]
	mk.markConstant(c, bm.MethodRef)
	for _, arg := range bm.Arguments {
		mk.markConstant(c, arg)
	}
}

// useTable marks a table attribute whose rows are kept individually.
func (mk *Marker) useTable(c *classfile.Class, a classfile.Attribute) {
	if mk.marks.SetAttribute(a, Used) {
		mk.markConstant(c, a.NameIndex())
	}
}

func optional(kind classfile.AttributeKind) bool {
	switch kind {
	case classfile.AttrSourceFile, classfile.AttrLineNumberTable,
		classfile.AttrLocalVariableTable, classfile.AttrLocalVariableTypeTable,
		classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations,
		classfile.AttrRuntimeVisibleParameterAnnotations, classfile.AttrRuntimeInvisibleParameterAnnotations,
		classfile.AttrDeprecated, classfile.AttrSynthetic:
		return true
	}
	return false
}

// rowTable reports attributes whose rows are marked on demand.
func rowTable(a classfile.Attribute) bool {
	switch a.Kind() {
	case classfile.AttrBootstrapMethods, classfile.AttrInnerClasses,
		classfile.AttrNestMembers, classfile.AttrPermittedSubclasses:
		return true
	}
	return false
}

func (mk *Marker) attributes(c *classfile.Class, m *classfile.Member, attrs []classfile.Attribute) {
	for _, a := range attrs {
		if rowTable(a) {
			continue
		}
		if a.Kind() == classfile.AttrUnknown {
			mk.dropUnknown(c, m, a)
			continue
		}
		if optional(a.Kind()) && !mk.keepAttributes.Match(c.Pool.Str(a.NameIndex())) {
			continue
		}
		if !mk.marks.SetAttribute(a, Used) {
			continue
		}
		mk.markConstant(c, a.NameIndex())
		mk.attribute(c, m, a)
	}
}

// dropUnknown leaves an attribute of an unknown kind unmarked. Its body may
// hold pool indices that compaction cannot remap.
func (mk *Marker) dropUnknown(c *classfile.Class, m *classfile.Member, a classfile.Attribute) {
	var member string
	if m != nil {
		member = m.Signature(c)
	}
	err := classfile.Unsupported(c.Name(), member, -1, "attribute %s", c.Pool.Str(a.NameIndex()))
	mk.logger.Warn("dropping attribute", "err", err)
}

func (mk *Marker) attribute(c *classfile.Class, m *classfile.Member, a classfile.Attribute) {
	switch a := a.(type) {
	case *classfile.ConstantValueAttribute:
		mk.markConstant(c, a.ValueIndex)
	case *classfile.CodeAttribute:
		mk.code(c, m, a)
	case *classfile.IndexAttribute:
		mk.markConstant(c, a.Index)
	case *classfile.ClassListAttribute:
		for _, idx := range a.Classes {
			mk.markConstant(c, idx)
		}
	case *classfile.EnclosingMethodAttribute:
		mk.markConstant(c, a.ClassIndex)
		mk.markConstant(c, a.MethodIndex)
	case *classfile.LocalVariableTableAttribute:
		for _, v := range a.Variables {
			mk.markConstant(c, v.NameIndex)
			mk.markConstant(c, v.DescriptorIndex)
		}
	case *classfile.StackMapTableAttribute:
		for _, f := range a.Frames {
			mk.verificationTypes(c, f.Locals)
			mk.verificationTypes(c, f.Stack)
		}
	case *classfile.AnnotationsAttribute:
		for i := range a.Annotations {
			mk.annotation(c, &a.Annotations[i])
		}
	case *classfile.ParameterAnnotationsAttribute:
		for _, param := range a.Parameters {
			for i := range param {
				mk.annotation(c, &param[i])
			}
		}
	case *classfile.AnnotationDefaultAttribute:
		mk.elementValue(c, &a.Value)
	case *classfile.MethodParametersAttribute:
		for _, param := range a.Parameters {
			mk.markConstant(c, param.NameIndex)
		}
	}
}

func (mk *Marker) verificationTypes(c *classfile.Class, types []classfile.VerificationType) {
	for _, t := range types {
		if t.Tag == classfile.VerifyObject {
			mk.markConstant(c, t.Index)
		}
	}
}

func (mk *Marker) annotation(c *classfile.Class, a *classfile.Annotation) {
	mk.markConstant(c, a.TypeIndex)
	mk.markDescriptorClasses(c.Pool.Str(a.TypeIndex))
	for i := range a.Elements {
		mk.markConstant(c, a.Elements[i].NameIndex)
		mk.elementValue(c, &a.Elements[i].Value)
	}
}

func (mk *Marker) elementValue(c *classfile.Class, v *classfile.ElementValue) {
	switch v.Tag {
	case '@':
		if v.Annotation != nil {
			mk.annotation(c, v.Annotation)
		}
	case '[':
		for i := range v.Values {
			mk.elementValue(c, &v.Values[i])
		}
	case 'e':
		mk.markConstant(c, v.Index)
		mk.markConstant(c, v.EnumConst)
		mk.markDescriptorClasses(c.Pool.Str(v.Index))
	case 'c':
		mk.markConstant(c, v.Index)
		mk.markDescriptorClasses(c.Pool.Str(v.Index))
	default:
		mk.markConstant(c, v.Index)
	}
}

// codeMarker marks every instruction of a method body and what the
// instructions reference.
type codeMarker struct {
	mk   *Marker
	prev *classfile.Instruction
}

func (cm *codeMarker) VisitSimpleInstruction(c *classfile.Class, m *classfile.Member, code *classfile.CodeAttribute, ins *classfile.Instruction) {
	cm.mk.marks.SetInstruction(code, ins.Offset, Used)
	cm.prev = ins
}

func (cm *codeMarker) VisitSwitchInstruction(c *classfile.Class, m *classfile.Member, code *classfile.CodeAttribute, ins *classfile.Instruction) {
	cm.VisitSimpleInstruction(c, m, code, ins)
}

func (cm *codeMarker) VisitConstantInstruction(c *classfile.Class, m *classfile.Member, code *classfile.CodeAttribute, ins *classfile.Instruction) {
	cm.mk.marks.SetInstruction(code, ins.Offset, Used)
	cm.mk.markConstant(c, ins.Index)
	if cm.mk.reflection {
		cm.mk.reflect(c, m, cm.prev, ins)
	}
	cm.prev = ins
}

func (mk *Marker) code(c *classfile.Class, m *classfile.Member, code *classfile.CodeAttribute) {
	if err := code.InstructionsAccept(c, m, &codeMarker{mk: mk}); err != nil {
		mk.fail(err)
		return
	}
	for i, h := range code.ExceptionTable {
		mk.marks.SetRow(code, i, Used)
		mk.markConstant(c, h.CatchType)
	}
	mk.attributes(c, m, code.Attributes)
}

// reflect recognizes a constant class name passed straight to a class
// loading call.
func (mk *Marker) reflect(c *classfile.Class, m *classfile.Member, prev, ins *classfile.Instruction) {
	if prev == nil || prev.Opcode != classfile.OpLdc && prev.Opcode != classfile.OpLdcW {
		return
	}
	if ins.Opcode != classfile.OpInvokestatic && ins.Opcode != classfile.OpInvokevirtual {
		return
	}
	class, name, desc, err := c.Pool.MemberRef(ins.Index)
	if err != nil || !reflectionCalls[class+"."+name+desc] {
		return
	}
	k, err := c.Pool.Get(prev.Index)
	if err != nil {
		return
	}
	s, ok := k.(*classfile.StringConstant)
	if !ok {
		return
	}
	target := c.Pool.Str(s.StringIndex)
	id := mk.program.Lookup(classfile.InternalName(target))
	if id == classfile.NoClass {
		mk.logger.Debug("reflectively loaded class not found", "class", target, "in", c.Name())
		return
	}
	r := Reason{Kind: ReasonReflection, Rule: target, Class: c.ID(), Member: m}
	mk.markClass(id, r)
	loaded := mk.program.Class(id)
	if init := loaded.FindMethod("<init>", "()V"); init != nil {
		mk.markMember(loaded, init, r)
	}
}

// promoteInterfaces confirms provisional interfaces that extend a used or
// unresolved interface.
func (mk *Marker) promoteInterfaces() {
	p := mk.program
	for _, c := range p.Classes() {
		id := c.ID()
		if mk.marks.Class(id) != PossiblyUsed {
			continue
		}
		names := c.InterfaceNames()
		for i, super := range p.Interfaces(id) {
			if super == classfile.NoClass {
				mk.markClass(id, Reason{Kind: ReasonInterface, Rule: names[i], Class: classfile.NoClass})
				break
			}
			if mk.marks.IsClassUsed(super) {
				mk.markClass(id, Reason{Kind: ReasonInterface, Class: super})
				break
			}
		}
	}
}

// markRows keeps the interface entries and table rows of used classes
// whose class is itself used or lies outside the program.
func (mk *Marker) markRows() {
	p := mk.program
	for _, c := range p.Classes() {
		id := c.ID()
		if c.Library || !mk.marks.IsClassUsed(id) {
			continue
		}
		mk.from = origin{class: id}
		ifaces := p.Interfaces(id)
		for i, idx := range c.Interfaces {
			if ifaces[i] == classfile.NoClass || mk.marks.IsClassUsed(ifaces[i]) {
				mk.markConstant(c, idx)
			}
		}
		for _, a := range c.Attributes {
			switch a := a.(type) {
			case *classfile.InnerClassesAttribute:
				for i, row := range a.Classes {
					if mk.marks.IsRowUsed(a, i) || !mk.rowClassUsed(c, row.InnerClassIndex) {
						continue
					}
					mk.useTable(c, a)
					mk.marks.SetRow(a, i, Used)
					mk.markConstant(c, row.InnerClassIndex)
					mk.markConstant(c, row.OuterClassIndex)
					mk.markConstant(c, row.InnerNameIndex)
				}
			case *classfile.ClassListAttribute:
				if !rowTable(a) {
					continue
				}
				for i, idx := range a.Classes {
					if mk.marks.IsRowUsed(a, i) || !mk.rowClassUsed(c, idx) {
						continue
					}
					mk.useTable(c, a)
					mk.marks.SetRow(a, i, Used)
					mk.markConstant(c, idx)
				}
			}
		}
	}
}

func (mk *Marker) rowClassUsed(c *classfile.Class, idx uint16) bool {
	ref, ok := mk.program.Resolve(c.ID(), idx)
	return !ok || ref.Class == classfile.NoClass || mk.marks.IsClassUsed(ref.Class)
}
