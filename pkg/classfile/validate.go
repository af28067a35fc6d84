package classfile

import "fmt"

// Validate checks that every index reference in the class denotes a live
// pool entry of a compatible tag and that every code array decodes cleanly.
// Failures are MalformedInput errors carrying the class and member name.
func Validate(c *Class) error {
	v := &validator{class: c, pool: c.Pool}
	v.run()
	if v.err != nil {
		return WithLocation(v.err, c.Name(), v.member)
	}
	return nil
}

type validator struct {
	class  *Class
	pool   ConstantPool
	member string
	err    error
}

func (v *validator) fail(format string, args ...interface{}) {
	if v.err == nil {
		v.err = malformed(format, args...)
	}
}

func (v *validator) failAt(offset int, format string, args ...interface{}) {
	if v.err == nil {
		v.err = &Error{Kind: ErrMalformedInput, Offset: offset, Err: fmt.Errorf(format, args...)}
	}
}

// want checks that idx is live and has one of the given tags.
func (v *validator) want(what string, idx uint16, tags ...Tag) {
	if v.err != nil {
		return
	}
	k, err := v.pool.Get(idx)
	if err != nil {
		v.fail("%s: %v", what, err)
		return
	}
	for _, t := range tags {
		if k.Tag() == t {
			return
		}
	}
	v.fail("%s: constant %d is %s, want %v", what, idx, k.Tag(), tags)
}

// optional is want that accepts 0.
func (v *validator) optional(what string, idx uint16, tags ...Tag) {
	if idx != 0 {
		v.want(what, idx, tags...)
	}
}

var loadableTags = []Tag{TagInteger, TagFloat, TagLong, TagDouble, TagClass, TagString, TagMethodHandle, TagMethodType, TagDynamic}

func (v *validator) run() {
	v.constants()
	v.want("this_class", v.class.ThisClass, TagClass)
	v.optional("super_class", v.class.SuperClass, TagClass)
	for _, idx := range v.class.Interfaces {
		v.want("interface", idx, TagClass)
	}
	for _, m := range v.class.Members() {
		if v.err != nil {
			return
		}
		v.want("member name", m.NameIndex, TagUtf8)
		v.want("member descriptor", m.DescriptorIndex, TagUtf8)
		if v.err != nil {
			return
		}
		v.member = m.Signature(v.class)
		v.attributes(m.Attributes)
	}
	if v.err == nil {
		v.member = ""
		v.attributes(v.class.Attributes)
	}
}

func (v *validator) constants() {
	bootstraps := -1
	if bm, ok := v.class.Attribute(AttrBootstrapMethods).(*BootstrapMethodsAttribute); ok {
		bootstraps = len(bm.Methods)
	}
	for i := 1; i < len(v.pool) && v.err == nil; i++ {
		switch c := v.pool[i].(type) {
		case nil:
			if prev := v.pool[i-1]; prev == nil || !prev.Tag().Wide() {
				v.fail("constant pool slot %d is empty", i)
			}
		case *ClassConstant:
			v.want("class name", c.NameIndex, TagUtf8)
		case *StringConstant:
			v.want("string value", c.StringIndex, TagUtf8)
		case *RefConstant:
			v.want("reference class", c.ClassIndex, TagClass)
			v.want("reference name and type", c.NameAndTypeIndex, TagNameAndType)
		case *NameAndTypeConstant:
			v.want("name", c.NameIndex, TagUtf8)
			v.want("descriptor", c.DescriptorIndex, TagUtf8)
		case *MethodHandleConstant:
			switch {
			case c.ReferenceKind >= RefGetField && c.ReferenceKind <= RefPutStatic:
				v.want("method handle", c.ReferenceIndex, TagFieldref)
			case c.ReferenceKind >= RefInvokeVirtual && c.ReferenceKind <= RefInvokeInterface:
				v.want("method handle", c.ReferenceIndex, TagMethodref, TagInterfaceMethodref)
			default:
				v.fail("method handle %d has reference kind %d", i, c.ReferenceKind)
			}
		case *MethodTypeConstant:
			v.want("method type", c.DescriptorIndex, TagUtf8)
		case *DynamicConstant:
			v.want("dynamic name and type", c.NameAndTypeIndex, TagNameAndType)
			if bootstraps >= 0 && int(c.BootstrapMethodAttrIndex) >= bootstraps {
				v.fail("dynamic constant %d uses bootstrap method %d of %d", i, c.BootstrapMethodAttrIndex, bootstraps)
			}
		case *ModuleConstant:
			v.want("module name", c.NameIndex, TagUtf8)
		case *PackageConstant:
			v.want("package name", c.NameIndex, TagUtf8)
		}
	}
}

func (v *validator) attributes(attrs []Attribute) {
	for _, a := range attrs {
		if v.err != nil {
			return
		}
		v.want("attribute name", a.NameIndex(), TagUtf8)
		switch a := a.(type) {
		case *ConstantValueAttribute:
			v.want("constant value", a.ValueIndex, TagInteger, TagFloat, TagLong, TagDouble, TagString)
		case *CodeAttribute:
			v.code(a)
		case *IndexAttribute:
			if a.AttrKind == AttrNestHost {
				v.want("nest host", a.Index, TagClass)
			} else {
				v.want(a.AttrKind.String(), a.Index, TagUtf8)
			}
		case *ClassListAttribute:
			for _, idx := range a.Classes {
				v.want(a.AttrKind.String(), idx, TagClass)
			}
		case *InnerClassesAttribute:
			for _, ic := range a.Classes {
				v.want("inner class", ic.InnerClassIndex, TagClass)
				v.optional("outer class", ic.OuterClassIndex, TagClass)
				v.optional("inner name", ic.InnerNameIndex, TagUtf8)
			}
		case *EnclosingMethodAttribute:
			v.want("enclosing class", a.ClassIndex, TagClass)
			v.optional("enclosing method", a.MethodIndex, TagNameAndType)
		case *LocalVariableTableAttribute:
			for _, lv := range a.Variables {
				v.want("local variable name", lv.NameIndex, TagUtf8)
				v.want("local variable type", lv.DescriptorIndex, TagUtf8)
			}
		case *StackMapTableAttribute:
			for _, f := range a.Frames {
				for _, vt := range append(append([]VerificationType(nil), f.Locals...), f.Stack...) {
					if vt.Tag == VerifyObject {
						v.want("stack map object", vt.Index, TagClass)
					}
				}
			}
		case *AnnotationsAttribute:
			for _, an := range a.Annotations {
				v.annotation(an)
			}
		case *ParameterAnnotationsAttribute:
			for _, p := range a.Parameters {
				for _, an := range p {
					v.annotation(an)
				}
			}
		case *AnnotationDefaultAttribute:
			v.elementValue(a.Value)
		case *BootstrapMethodsAttribute:
			for _, m := range a.Methods {
				v.want("bootstrap method", m.MethodRef, TagMethodHandle)
				for _, arg := range m.Arguments {
					v.want("bootstrap argument", arg, loadableTags...)
				}
			}
		case *MethodParametersAttribute:
			for _, p := range a.Parameters {
				v.optional("parameter name", p.NameIndex, TagUtf8)
			}
		}
	}
}

func (v *validator) annotation(a Annotation) {
	v.want("annotation type", a.TypeIndex, TagUtf8)
	for _, e := range a.Elements {
		v.want("annotation element name", e.NameIndex, TagUtf8)
		v.elementValue(e.Value)
	}
}

func (v *validator) elementValue(e ElementValue) {
	switch e.Tag {
	case 'B', 'C', 'I', 'S', 'Z':
		v.want("annotation value", e.Index, TagInteger)
	case 'D':
		v.want("annotation value", e.Index, TagDouble)
	case 'F':
		v.want("annotation value", e.Index, TagFloat)
	case 'J':
		v.want("annotation value", e.Index, TagLong)
	case 's', 'c':
		v.want("annotation value", e.Index, TagUtf8)
	case 'e':
		v.want("enum type", e.Index, TagUtf8)
		v.want("enum constant", e.EnumConst, TagUtf8)
	case '@':
		v.annotation(*e.Annotation)
	case '[':
		for _, x := range e.Values {
			v.elementValue(x)
		}
	}
}

// operandTags lists the pool tags a constant instruction may reference.
func operandTags(op Opcode) []Tag {
	switch op {
	case OpLdc, OpLdcW:
		return []Tag{TagInteger, TagFloat, TagClass, TagString, TagMethodHandle, TagMethodType, TagDynamic}
	case OpLdc2W:
		return []Tag{TagLong, TagDouble, TagDynamic}
	case OpGetstatic, OpPutstatic, OpGetfield, OpPutfield:
		return []Tag{TagFieldref}
	case OpInvokevirtual:
		return []Tag{TagMethodref}
	case OpInvokespecial, OpInvokestatic:
		return []Tag{TagMethodref, TagInterfaceMethodref}
	case OpInvokeinterface:
		return []Tag{TagInterfaceMethodref}
	case OpInvokedynamic:
		return []Tag{TagInvokeDynamic}
	}
	return []Tag{TagClass}
}

func (v *validator) code(a *CodeAttribute) {
	instructions, err := DecodeCode(a.Code)
	if err != nil {
		v.err = err
		return
	}
	starts := IndexByOffset(instructions)
	for _, ins := range instructions {
		if ins.Shape() != ShapeConstant {
			continue
		}
		v.want(ins.Opcode.String(), ins.Index, operandTags(ins.Opcode)...)
		if v.err != nil {
			if ce, ok := v.err.(*Error); ok && ce.Offset < 0 {
				ce.Offset = ins.Offset
			}
			return
		}
	}
	for i, h := range a.ExceptionTable {
		if starts[int(h.StartPC)] == nil || starts[int(h.HandlerPC)] == nil ||
			(int(h.EndPC) != len(a.Code) && starts[int(h.EndPC)] == nil) || h.StartPC >= h.EndPC {
			v.failAt(int(h.StartPC), "exception table row %d has invalid range [%d,%d)->%d", i, h.StartPC, h.EndPC, h.HandlerPC)
			return
		}
		v.optional("catch type", h.CatchType, TagClass)
	}
	v.attributes(a.Attributes)
}
