package classfile

import (
	"encoding/binary"
	"fmt"
)

// reader is a big-endian cursor with a sticky error. Every accessor returns
// zero after the first failure.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = malformed(format, args...)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.fail("truncated input: need %d bytes at offset %d, have %d", n, r.pos, len(r.data)-r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u1() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u2s() []uint16 {
	n := int(r.u2())
	if r.err != nil {
		return nil
	}
	out := make([]uint16, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.u2())
	}
	return out
}

func (r *reader) done() bool { return r.pos == len(r.data) }

// Parse decodes one class file. On failure it returns a MalformedInput error
// and no class.
func Parse(data []byte, library bool) (*Class, error) {
	r := &reader{data: data}
	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, malformed("bad magic 0x%08X", magic)
	}
	c := &Class{Library: library, id: NoClass}
	c.MinorVersion = r.u2()
	c.MajorVersion = r.u2()
	c.Pool = r.pool()
	if r.err != nil {
		return nil, r.err
	}

	c.AccessFlags = AccessFlags(r.u2())
	c.ThisClass = r.u2()
	c.SuperClass = r.u2()
	c.Interfaces = r.u2s()

	p := &attrParser{pool: c.Pool}
	c.Fields = p.members(r, FieldKind)
	c.Methods = p.members(r, MethodKind)
	c.Attributes = p.attributes(r)
	if r.err == nil && p.err != nil {
		r.err = p.err
	}
	if r.err != nil {
		return nil, WithLocation(r.err, c.Pool.nameOf(c.ThisClass), "")
	}
	if !r.done() {
		return nil, malformed("%d trailing bytes after class structure", len(data)-r.pos)
	}
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// nameOf is ClassName without the error, for diagnostics.
func (p ConstantPool) nameOf(idx uint16) string {
	name, _ := p.ClassName(idx)
	return name
}

func (r *reader) pool() ConstantPool {
	count := int(r.u2())
	if r.err != nil {
		return nil
	}
	if count == 0 {
		r.fail("constant_pool_count is zero")
		return nil
	}
	pool := make(ConstantPool, count)
	for i := 1; i < count && r.err == nil; i++ {
		tag := Tag(r.u1())
		var k Constant
		switch tag {
		case TagUtf8:
			n := int(r.u2())
			k = &Utf8Constant{Value: string(r.take(n))}
		case TagInteger:
			k = &IntegerConstant{Value: int32(r.u4())}
		case TagFloat:
			k = &FloatConstant{Bits: r.u4()}
		case TagLong:
			hi := uint64(r.u4())
			k = &LongConstant{Value: int64(hi<<32 | uint64(r.u4()))}
		case TagDouble:
			hi := uint64(r.u4())
			k = &DoubleConstant{Bits: hi<<32 | uint64(r.u4())}
		case TagClass:
			k = &ClassConstant{NameIndex: r.u2()}
		case TagString:
			k = &StringConstant{StringIndex: r.u2()}
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			k = &RefConstant{Kind: tag, ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagNameAndType:
			k = &NameAndTypeConstant{NameIndex: r.u2(), DescriptorIndex: r.u2()}
		case TagMethodHandle:
			k = &MethodHandleConstant{ReferenceKind: r.u1(), ReferenceIndex: r.u2()}
		case TagMethodType:
			k = &MethodTypeConstant{DescriptorIndex: r.u2()}
		case TagDynamic, TagInvokeDynamic:
			k = &DynamicConstant{Kind: tag, BootstrapMethodAttrIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagModule:
			k = &ModuleConstant{NameIndex: r.u2()}
		case TagPackage:
			k = &PackageConstant{NameIndex: r.u2()}
		default:
			r.fail("unknown constant tag %d at pool index %d", tag, i)
			return nil
		}
		pool[i] = k
		if tag.Wide() {
			if i+1 >= count {
				r.fail("wide constant at pool index %d overruns the pool", i)
				return nil
			}
			i++
		}
	}
	return pool
}

// attrParser decodes attributes against a finished constant pool.
type attrParser struct {
	pool ConstantPool
	err  error
}

func (p *attrParser) members(r *reader, kind MemberKind) []*Member {
	n := int(r.u2())
	out := make([]*Member, 0, n)
	for i := 0; i < n && r.err == nil && p.err == nil; i++ {
		m := &Member{
			Kind:            kind,
			AccessFlags:     AccessFlags(r.u2()),
			NameIndex:       r.u2(),
			DescriptorIndex: r.u2(),
		}
		m.Attributes = p.attributes(r)
		out = append(out, m)
	}
	return out
}

func (p *attrParser) attributes(r *reader) []Attribute {
	n := int(r.u2())
	out := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil && p.err == nil; i++ {
		nameIdx := r.u2()
		length := int(r.u4())
		body := r.take(length)
		if r.err != nil {
			return out
		}
		name, err := p.pool.Utf8(nameIdx)
		if err != nil {
			p.err = malformed("attribute name: %v", err)
			return out
		}
		a, err := p.attribute(name, nameIdx, body)
		if err != nil {
			p.err = err
			return out
		}
		out = append(out, a)
	}
	return out
}

// attribute decodes one body. Known attributes must consume their body
// exactly, otherwise the write-back would not be byte identical.
func (p *attrParser) attribute(name string, nameIdx uint16, body []byte) (Attribute, error) {
	kind := KindOf(name)
	r := &reader{data: body}
	h := Header{Name: nameIdx}
	var a Attribute

	switch kind {
	case AttrConstantValue:
		a = &ConstantValueAttribute{Header: h, ValueIndex: r.u2()}
	case AttrCode:
		code := &CodeAttribute{Header: h, MaxStack: r.u2(), MaxLocals: r.u2()}
		n := int(r.u4())
		code.Code = append([]byte(nil), r.take(n)...)
		rows := int(r.u2())
		for i := 0; i < rows && r.err == nil; i++ {
			code.ExceptionTable = append(code.ExceptionTable, ExceptionHandler{
				StartPC: r.u2(), EndPC: r.u2(), HandlerPC: r.u2(), CatchType: r.u2(),
			})
		}
		if r.err == nil {
			code.Attributes = p.attributes(r)
			if p.err != nil {
				return nil, p.err
			}
		}
		a = code
	case AttrSignature, AttrSourceFile, AttrNestHost:
		a = &IndexAttribute{Header: h, AttrKind: kind, Index: r.u2()}
	case AttrExceptions, AttrNestMembers, AttrPermittedSubclasses:
		a = &ClassListAttribute{Header: h, AttrKind: kind, Classes: r.u2s()}
	case AttrInnerClasses:
		ic := &InnerClassesAttribute{Header: h}
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			ic.Classes = append(ic.Classes, InnerClass{
				InnerClassIndex: r.u2(), OuterClassIndex: r.u2(), InnerNameIndex: r.u2(), AccessFlags: AccessFlags(r.u2()),
			})
		}
		a = ic
	case AttrEnclosingMethod:
		a = &EnclosingMethodAttribute{Header: h, ClassIndex: r.u2(), MethodIndex: r.u2()}
	case AttrLineNumberTable:
		lt := &LineNumberTableAttribute{Header: h}
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			lt.Lines = append(lt.Lines, LineNumber{StartPC: r.u2(), Line: r.u2()})
		}
		a = lt
	case AttrLocalVariableTable, AttrLocalVariableTypeTable:
		lv := &LocalVariableTableAttribute{Header: h, AttrKind: kind}
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			lv.Variables = append(lv.Variables, LocalVariable{
				StartPC: r.u2(), Length: r.u2(), NameIndex: r.u2(), DescriptorIndex: r.u2(), Index: r.u2(),
			})
		}
		a = lv
	case AttrStackMapTable:
		a = &StackMapTableAttribute{Header: h, Frames: r.frames()}
	case AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		a = &AnnotationsAttribute{Header: h, AttrKind: kind, Annotations: r.annotations()}
	case AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations:
		pa := &ParameterAnnotationsAttribute{Header: h, AttrKind: kind}
		n := int(r.u1())
		for i := 0; i < n && r.err == nil; i++ {
			pa.Parameters = append(pa.Parameters, r.annotations())
		}
		a = pa
	case AttrAnnotationDefault:
		a = &AnnotationDefaultAttribute{Header: h, Value: r.elementValue(0)}
	case AttrBootstrapMethods:
		bm := &BootstrapMethodsAttribute{Header: h}
		n := int(r.u2())
		for i := 0; i < n && r.err == nil; i++ {
			bm.Methods = append(bm.Methods, BootstrapMethod{MethodRef: r.u2(), Arguments: r.u2s()})
		}
		a = bm
	case AttrMethodParameters:
		mp := &MethodParametersAttribute{Header: h}
		n := int(r.u1())
		for i := 0; i < n && r.err == nil; i++ {
			mp.Parameters = append(mp.Parameters, MethodParameter{NameIndex: r.u2(), AccessFlags: AccessFlags(r.u2())})
		}
		a = mp
	default:
		return &RawAttribute{Header: h, AttrKind: kind, Info: append([]byte(nil), body...)}, nil
	}

	if r.err != nil {
		return nil, fmt.Errorf("%s attribute: %w", name, r.err)
	}
	if !r.done() {
		return nil, malformed("%s attribute has %d unread bytes", name, len(body)-r.pos)
	}
	return a, nil
}

func (r *reader) verificationTypes(n int) []VerificationType {
	out := make([]VerificationType, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		v := VerificationType{Tag: r.u1()}
		switch {
		case v.Tag == VerifyObject || v.Tag == VerifyUninitialized:
			v.Index = r.u2()
		case v.Tag > VerifyUninitialized:
			r.fail("unknown verification type tag %d", v.Tag)
		}
		out = append(out, v)
	}
	return out
}

func (r *reader) frames() []StackMapFrame {
	n := int(r.u2())
	out := make([]StackMapFrame, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		f := StackMapFrame{Type: r.u1()}
		switch t := f.Type; {
		case t <= 63:
			f.OffsetDelta = uint16(t)
		case t <= 127:
			f.OffsetDelta = uint16(t - 64)
			f.Stack = r.verificationTypes(1)
		case t < 247:
			r.fail("reserved stack map frame type %d", t)
		case t == 247:
			f.OffsetDelta = r.u2()
			f.Stack = r.verificationTypes(1)
		case t <= 251:
			f.OffsetDelta = r.u2()
		case t <= 254:
			f.OffsetDelta = r.u2()
			f.Locals = r.verificationTypes(int(t - 251))
		default:
			f.OffsetDelta = r.u2()
			f.Locals = r.verificationTypes(int(r.u2()))
			f.Stack = r.verificationTypes(int(r.u2()))
		}
		out = append(out, f)
	}
	return out
}

func (r *reader) annotations() []Annotation {
	n := int(r.u2())
	out := make([]Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.annotation(0))
	}
	return out
}

// maxAnnotationDepth bounds recursion on hostile input.
const maxAnnotationDepth = 64

func (r *reader) annotation(depth int) Annotation {
	a := Annotation{TypeIndex: r.u2()}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u2()
		a.Elements = append(a.Elements, ElementPair{NameIndex: name, Value: r.elementValue(depth + 1)})
	}
	return a
}

func (r *reader) elementValue(depth int) ElementValue {
	if depth > maxAnnotationDepth {
		r.fail("annotation nesting deeper than %d", maxAnnotationDepth)
		return ElementValue{}
	}
	v := ElementValue{Tag: r.u1()}
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		v.Index = r.u2()
	case 'e':
		v.Index = r.u2()
		v.EnumConst = r.u2()
	case '@':
		nested := r.annotation(depth + 1)
		v.Annotation = &nested
	case '[':
		n := int(r.u2())
		v.Values = make([]ElementValue, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			v.Values = append(v.Values, r.elementValue(depth+1))
		}
	default:
		r.fail("unknown element value tag %q", v.Tag)
	}
	return v
}
