package shrink

import (
	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/usage"
)

// Count compares the number of entities before and after compaction.
type Count struct {
	Before int `json:"before" msgpack:"before"`
	After  int `json:"after" msgpack:"after"`
}

// Removed returns Before - After.
func (c Count) Removed() int { return c.Before - c.After }

// Stats summarizes a compaction. Constants count pool slots, so wide
// entries count twice.
type Stats struct {
	Classes    Count `json:"classes" msgpack:"classes"`
	Fields     Count `json:"fields" msgpack:"fields"`
	Methods    Count `json:"methods" msgpack:"methods"`
	Constants  Count `json:"constants" msgpack:"constants"`
	Attributes Count `json:"attributes" msgpack:"attributes"`
}

func (s *Stats) add(o Stats) {
	for _, pair := range [][2]*Count{
		{&s.Classes, &o.Classes}, {&s.Fields, &o.Fields}, {&s.Methods, &o.Methods},
		{&s.Constants, &o.Constants}, {&s.Attributes, &o.Attributes},
	} {
		pair[0].Before += pair[1].Before
		pair[0].After += pair[1].After
	}
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(cp *Compactor) {
		cp.logger = l
	}
}

// WithValidation toggles the validation of every compacted class.
func WithValidation(enabled bool) Option {
	return func(cp *Compactor) {
		cp.validate = enabled
	}
}

// Compactor rewrites marked programs. It trusts the marks: it never runs
// reachability itself.
type Compactor struct {
	logger   log.Logger
	validate bool
}

// NewCompactor returns a compactor that validates its output.
func NewCompactor(opts ...Option) *Compactor {
	cp := &Compactor{logger: log.Discard(), validate: true}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// Compact compacts p with the default compactor.
func Compact(p *classfile.Program, marks *usage.Marks) (*classfile.Program, Stats, error) {
	return NewCompactor().Compact(p, marks)
}

// Compact returns a new linked program holding the used program classes in
// compacted form and the library classes unchanged. The input program is
// not modified.
func (cp *Compactor) Compact(p *classfile.Program, marks *usage.Marks) (*classfile.Program, Stats, error) {
	var stats Stats
	out := classfile.NewProgram()
	for _, c := range p.Classes() {
		if c.Library {
			lib := *c
			if _, err := out.Add(&lib); err != nil {
				return nil, stats, err
			}
			continue
		}
		stats.Classes.Before++
		if !marks.IsClassUsed(c.ID()) {
			cp.logger.Debug("removing class", "class", c.Name())
			continue
		}
		nc, s, err := cp.compactClass(c, marks)
		if err != nil {
			return nil, stats, err
		}
		stats.add(s)
		stats.Classes.After++
		if _, err := out.Add(nc); err != nil {
			return nil, stats, err
		}
	}
	out.Link()
	cp.logger.Debug("compaction finished",
		"classes", stats.Classes.After, "removed_classes", stats.Classes.Removed(),
		"removed_fields", stats.Fields.Removed(), "removed_methods", stats.Methods.Removed(),
		"removed_constants", stats.Constants.Removed())
	return out, stats, nil
}

// CompactClass returns the compacted form of one used program class.
func (cp *Compactor) CompactClass(c *classfile.Class, marks *usage.Marks) (*classfile.Class, error) {
	nc, _, err := cp.compactClass(c, marks)
	return nc, err
}

func (cp *Compactor) compactClass(c *classfile.Class, marks *usage.Marks) (*classfile.Class, Stats, error) {
	cc := &classCompactor{class: c, marks: marks, remap: NewRemap(c, marks)}
	nc, err := cc.run()
	if err != nil {
		return nil, cc.stats, classfile.WithLocation(err, c.Name(), cc.member)
	}
	if cp.validate {
		if err := classfile.Validate(nc); err != nil {
			return nil, cc.stats, classfile.Inconsistent(c.Name(), "", -1, "compacted class is invalid: %v", err)
		}
	}
	return nc, cc.stats, nil
}

type classCompactor struct {
	class     *classfile.Class
	marks     *usage.Marks
	remap     *Remap
	bootstrap []int
	member    string
	stats     Stats
}

func (cc *classCompactor) index(idx uint16) (uint16, error) {
	return cc.remap.Index(idx)
}

func (cc *classCompactor) indices(idx ...*uint16) error {
	for _, p := range idx {
		n, err := cc.index(*p)
		if err != nil {
			return err
		}
		*p = n
	}
	return nil
}

func (cc *classCompactor) row(old uint16) (uint16, error) {
	if int(old) >= len(cc.bootstrap) || cc.bootstrap[old] < 0 {
		return 0, classfile.Inconsistent(cc.class.Name(), "", -1, "dynamic constant uses removed bootstrap method %d", old)
	}
	return uint16(cc.bootstrap[old]), nil
}

func (cc *classCompactor) run() (*classfile.Class, error) {
	c := cc.class
	if bm, ok := c.Attribute(classfile.AttrBootstrapMethods).(*classfile.BootstrapMethodsAttribute); ok {
		cc.bootstrap = make([]int, len(bm.Methods))
		n := 0
		for i := range bm.Methods {
			cc.bootstrap[i] = -1
			if cc.marks.IsRowUsed(bm, i) {
				cc.bootstrap[i] = n
				n++
			}
		}
	}

	out := &classfile.Class{
		MinorVersion: c.MinorVersion,
		MajorVersion: c.MajorVersion,
		AccessFlags:  c.AccessFlags,
		ThisClass:    c.ThisClass,
		SuperClass:   c.SuperClass,
	}
	if err := cc.indices(&out.ThisClass, &out.SuperClass); err != nil {
		return nil, err
	}
	for _, idx := range c.Interfaces {
		if !cc.marks.IsConstantUsed(c.ID(), idx) {
			continue
		}
		n, err := cc.index(idx)
		if err != nil {
			return nil, err
		}
		out.Interfaces = append(out.Interfaces, n)
	}

	var err error
	if out.Fields, err = cc.members(c.Fields, &cc.stats.Fields); err != nil {
		return nil, err
	}
	if out.Methods, err = cc.members(c.Methods, &cc.stats.Methods); err != nil {
		return nil, err
	}
	cc.member = ""
	if out.Attributes, err = cc.attributes(c.Attributes); err != nil {
		return nil, err
	}
	if out.Pool, err = cc.remap.Pool(cc.row); err != nil {
		return nil, err
	}
	cc.stats.Constants = Count{Before: len(c.Pool) - 1, After: len(out.Pool) - 1}
	return out, nil
}

func (cc *classCompactor) members(members []*classfile.Member, count *Count) ([]*classfile.Member, error) {
	var out []*classfile.Member
	for _, m := range members {
		count.Before++
		if !cc.marks.IsMemberUsed(m) {
			continue
		}
		cc.member = m.Signature(cc.class)
		nm := &classfile.Member{Kind: m.Kind, AccessFlags: m.AccessFlags, NameIndex: m.NameIndex, DescriptorIndex: m.DescriptorIndex}
		if err := cc.indices(&nm.NameIndex, &nm.DescriptorIndex); err != nil {
			return nil, err
		}
		attrs, err := cc.attributes(m.Attributes)
		if err != nil {
			return nil, err
		}
		nm.Attributes = attrs
		out = append(out, nm)
		count.After++
	}
	return out, nil
}

func (cc *classCompactor) attributes(attrs []classfile.Attribute) ([]classfile.Attribute, error) {
	var out []classfile.Attribute
	for _, a := range attrs {
		cc.stats.Attributes.Before++
		if !cc.marks.IsAttributeUsed(a) {
			continue
		}
		na, err := cc.attribute(a)
		if err != nil {
			return nil, err
		}
		name, err := cc.index(a.NameIndex())
		if err != nil {
			return nil, err
		}
		na.SetNameIndex(name)
		out = append(out, na)
		cc.stats.Attributes.After++
	}
	return out, nil
}

// attribute returns a remapped copy of a; the name index is remapped by
// the caller.
func (cc *classCompactor) attribute(a classfile.Attribute) (classfile.Attribute, error) {
	switch a := a.(type) {
	case *classfile.RawAttribute:
		if a.AttrKind == classfile.AttrUnknown {
			return nil, classfile.Inconsistent(cc.class.Name(), cc.member, -1, "opaque attribute %s cannot be remapped", cc.class.Pool.Str(a.NameIndex()))
		}
		v := *a
		v.Info = append([]byte(nil), a.Info...)
		return &v, nil
	case *classfile.ConstantValueAttribute:
		v := *a
		return &v, cc.indices(&v.ValueIndex)
	case *classfile.CodeAttribute:
		return cc.code(a)
	case *classfile.IndexAttribute:
		v := *a
		return &v, cc.indices(&v.Index)
	case *classfile.ClassListAttribute:
		v := *a
		v.Classes = nil
		rows := a.AttrKind == classfile.AttrNestMembers || a.AttrKind == classfile.AttrPermittedSubclasses
		for i, idx := range a.Classes {
			if rows && !cc.marks.IsRowUsed(a, i) {
				continue
			}
			if err := cc.indices(&idx); err != nil {
				return nil, err
			}
			v.Classes = append(v.Classes, idx)
		}
		return &v, nil
	case *classfile.InnerClassesAttribute:
		v := &classfile.InnerClassesAttribute{Header: a.Header}
		for i, row := range a.Classes {
			if !cc.marks.IsRowUsed(a, i) {
				continue
			}
			if err := cc.indices(&row.InnerClassIndex, &row.OuterClassIndex, &row.InnerNameIndex); err != nil {
				return nil, err
			}
			v.Classes = append(v.Classes, row)
		}
		return v, nil
	case *classfile.EnclosingMethodAttribute:
		v := *a
		return &v, cc.indices(&v.ClassIndex, &v.MethodIndex)
	case *classfile.LineNumberTableAttribute:
		v := *a
		v.Lines = append([]classfile.LineNumber(nil), a.Lines...)
		return &v, nil
	case *classfile.LocalVariableTableAttribute:
		v := *a
		v.Variables = append([]classfile.LocalVariable(nil), a.Variables...)
		for i := range v.Variables {
			if err := cc.indices(&v.Variables[i].NameIndex, &v.Variables[i].DescriptorIndex); err != nil {
				return nil, err
			}
		}
		return &v, nil
	case *classfile.StackMapTableAttribute:
		v := &classfile.StackMapTableAttribute{Header: a.Header}
		for _, f := range a.Frames {
			nf := f
			var err error
			if nf.Locals, err = cc.verificationTypes(f.Locals); err != nil {
				return nil, err
			}
			if nf.Stack, err = cc.verificationTypes(f.Stack); err != nil {
				return nil, err
			}
			v.Frames = append(v.Frames, nf)
		}
		return v, nil
	case *classfile.AnnotationsAttribute:
		v := *a
		anns, err := cc.annotations(a.Annotations)
		v.Annotations = anns
		return &v, err
	case *classfile.ParameterAnnotationsAttribute:
		v := *a
		v.Parameters = make([][]classfile.Annotation, len(a.Parameters))
		for i, param := range a.Parameters {
			anns, err := cc.annotations(param)
			if err != nil {
				return nil, err
			}
			v.Parameters[i] = anns
		}
		return &v, nil
	case *classfile.AnnotationDefaultAttribute:
		v := *a
		ev, err := cc.elementValue(a.Value)
		v.Value = ev
		return &v, err
	case *classfile.BootstrapMethodsAttribute:
		v := &classfile.BootstrapMethodsAttribute{Header: a.Header}
		for i, bm := range a.Methods {
			if !cc.marks.IsRowUsed(a, i) {
				continue
			}
			nb := classfile.BootstrapMethod{MethodRef: bm.MethodRef, Arguments: append([]uint16(nil), bm.Arguments...)}
			if err := cc.indices(&nb.MethodRef); err != nil {
				return nil, err
			}
			for j := range nb.Arguments {
				if err := cc.indices(&nb.Arguments[j]); err != nil {
					return nil, err
				}
			}
			v.Methods = append(v.Methods, nb)
		}
		return v, nil
	case *classfile.MethodParametersAttribute:
		v := *a
		v.Parameters = append([]classfile.MethodParameter(nil), a.Parameters...)
		for i := range v.Parameters {
			if err := cc.indices(&v.Parameters[i].NameIndex); err != nil {
				return nil, err
			}
		}
		return &v, nil
	}
	return nil, classfile.Inconsistent(cc.class.Name(), cc.member, -1, "cannot compact attribute %T", a)
}

func (cc *classCompactor) code(a *classfile.CodeAttribute) (*classfile.CodeAttribute, error) {
	instructions, err := a.Instructions()
	if err != nil {
		return nil, err
	}
	out := &classfile.CodeAttribute{
		Header:    a.Header,
		MaxStack:  a.MaxStack,
		MaxLocals: a.MaxLocals,
		Code:      append([]byte(nil), a.Code...),
	}
	for _, ins := range instructions {
		if cc.marks.Instruction(a, ins.Offset) != usage.Used {
			return nil, classfile.Inconsistent(cc.class.Name(), cc.member, ins.Offset, "%s was not marked", ins.Opcode)
		}
		if ins.Shape() != classfile.ShapeConstant {
			continue
		}
		idx, err := cc.index(ins.Index)
		if err != nil {
			return nil, classfile.Inconsistent(cc.class.Name(), cc.member, ins.Offset, "%s references unmarked constant %d", ins.Opcode, ins.Index)
		}
		if err := classfile.SetConstantIndex(out.Code, ins, idx); err != nil {
			return nil, classfile.Inconsistent(cc.class.Name(), cc.member, ins.Offset, "%v", err)
		}
	}
	for i, h := range a.ExceptionTable {
		if !cc.marks.IsRowUsed(a, i) {
			continue
		}
		if err := cc.indices(&h.CatchType); err != nil {
			return nil, err
		}
		out.ExceptionTable = append(out.ExceptionTable, h)
	}
	if out.Attributes, err = cc.attributes(a.Attributes); err != nil {
		return nil, err
	}
	return out, nil
}

func (cc *classCompactor) verificationTypes(types []classfile.VerificationType) ([]classfile.VerificationType, error) {
	out := append([]classfile.VerificationType(nil), types...)
	for i := range out {
		if out[i].Tag != classfile.VerifyObject {
			continue
		}
		if err := cc.indices(&out[i].Index); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (cc *classCompactor) annotations(anns []classfile.Annotation) ([]classfile.Annotation, error) {
	out := make([]classfile.Annotation, len(anns))
	for i := range anns {
		a, err := cc.annotation(anns[i])
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func (cc *classCompactor) annotation(a classfile.Annotation) (classfile.Annotation, error) {
	out := classfile.Annotation{TypeIndex: a.TypeIndex, Elements: make([]classfile.ElementPair, len(a.Elements))}
	if err := cc.indices(&out.TypeIndex); err != nil {
		return out, err
	}
	for i, e := range a.Elements {
		out.Elements[i].NameIndex = e.NameIndex
		if err := cc.indices(&out.Elements[i].NameIndex); err != nil {
			return out, err
		}
		v, err := cc.elementValue(e.Value)
		if err != nil {
			return out, err
		}
		out.Elements[i].Value = v
	}
	return out, nil
}

func (cc *classCompactor) elementValue(v classfile.ElementValue) (classfile.ElementValue, error) {
	out := classfile.ElementValue{Tag: v.Tag, Index: v.Index, EnumConst: v.EnumConst}
	switch v.Tag {
	case '@':
		if v.Annotation != nil {
			a, err := cc.annotation(*v.Annotation)
			if err != nil {
				return out, err
			}
			out.Annotation = &a
		}
	case '[':
		out.Values = make([]classfile.ElementValue, len(v.Values))
		for i := range v.Values {
			ev, err := cc.elementValue(v.Values[i])
			if err != nil {
				return out, err
			}
			out.Values[i] = ev
		}
	case 'e':
		return out, cc.indices(&out.Index, &out.EnumConst)
	default:
		return out, cc.indices(&out.Index)
	}
	return out, nil
}
