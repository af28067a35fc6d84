package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// byteWriter accumulates big-endian output.
type byteWriter struct {
	buf bytes.Buffer
}

func (w *byteWriter) u1(v uint8) { w.buf.WriteByte(v) }

func (w *byteWriter) u2(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *byteWriter) u4(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *byteWriter) u2s(vs []uint16) {
	w.u2(uint16(len(vs)))
	for _, v := range vs {
		w.u2(v)
	}
}

// Bytes serializes the class. It is the exact inverse of Parse.
func (c *Class) Bytes() ([]byte, error) {
	w := &byteWriter{}
	w.u4(Magic)
	w.u2(c.MinorVersion)
	w.u2(c.MajorVersion)
	if err := w.pool(c.Pool); err != nil {
		return nil, err
	}
	w.u2(uint16(c.AccessFlags))
	w.u2(c.ThisClass)
	w.u2(c.SuperClass)
	w.u2s(c.Interfaces)
	for _, members := range [][]*Member{c.Fields, c.Methods} {
		w.u2(uint16(len(members)))
		for _, m := range members {
			w.u2(uint16(m.AccessFlags))
			w.u2(m.NameIndex)
			w.u2(m.DescriptorIndex)
			if err := w.attributes(m.Attributes); err != nil {
				return nil, err
			}
		}
	}
	if err := w.attributes(c.Attributes); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// WriteTo writes the serialized class to w.
func (c *Class) WriteTo(w io.Writer) (int64, error) {
	data, err := c.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

func (w *byteWriter) pool(pool ConstantPool) error {
	if len(pool) == 0 || len(pool) > 0xffff {
		return fmt.Errorf("constant pool size %d out of range", len(pool))
	}
	w.u2(uint16(len(pool)))
	for i := 1; i < len(pool); i++ {
		k := pool[i]
		if k == nil {
			return fmt.Errorf("constant pool slot %d is empty", i)
		}
		w.u1(uint8(k.Tag()))
		switch c := k.(type) {
		case *Utf8Constant:
			if len(c.Value) > 0xffff {
				return fmt.Errorf("utf8 constant %d too long", i)
			}
			w.u2(uint16(len(c.Value)))
			w.buf.WriteString(c.Value)
		case *IntegerConstant:
			w.u4(uint32(c.Value))
		case *FloatConstant:
			w.u4(c.Bits)
		case *LongConstant:
			w.u4(uint32(uint64(c.Value) >> 32))
			w.u4(uint32(c.Value))
		case *DoubleConstant:
			w.u4(uint32(c.Bits >> 32))
			w.u4(uint32(c.Bits))
		case *ClassConstant:
			w.u2(c.NameIndex)
		case *StringConstant:
			w.u2(c.StringIndex)
		case *RefConstant:
			w.u2(c.ClassIndex)
			w.u2(c.NameAndTypeIndex)
		case *NameAndTypeConstant:
			w.u2(c.NameIndex)
			w.u2(c.DescriptorIndex)
		case *MethodHandleConstant:
			w.u1(c.ReferenceKind)
			w.u2(c.ReferenceIndex)
		case *MethodTypeConstant:
			w.u2(c.DescriptorIndex)
		case *DynamicConstant:
			w.u2(c.BootstrapMethodAttrIndex)
			w.u2(c.NameAndTypeIndex)
		case *ModuleConstant:
			w.u2(c.NameIndex)
		case *PackageConstant:
			w.u2(c.NameIndex)
		default:
			return fmt.Errorf("constant %d has unsupported type %T", i, k)
		}
		if k.Tag().Wide() {
			i++
		}
	}
	return nil
}

func (w *byteWriter) attributes(attrs []Attribute) error {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		body := &byteWriter{}
		if err := body.attributeBody(a); err != nil {
			return err
		}
		w.u2(a.NameIndex())
		w.u4(uint32(body.buf.Len()))
		w.buf.Write(body.buf.Bytes())
	}
	return nil
}

func (w *byteWriter) attributeBody(a Attribute) error {
	switch a := a.(type) {
	case *RawAttribute:
		w.buf.Write(a.Info)
	case *ConstantValueAttribute:
		w.u2(a.ValueIndex)
	case *CodeAttribute:
		w.u2(a.MaxStack)
		w.u2(a.MaxLocals)
		w.u4(uint32(len(a.Code)))
		w.buf.Write(a.Code)
		w.u2(uint16(len(a.ExceptionTable)))
		for _, h := range a.ExceptionTable {
			w.u2(h.StartPC)
			w.u2(h.EndPC)
			w.u2(h.HandlerPC)
			w.u2(h.CatchType)
		}
		return w.attributes(a.Attributes)
	case *IndexAttribute:
		w.u2(a.Index)
	case *ClassListAttribute:
		w.u2s(a.Classes)
	case *InnerClassesAttribute:
		w.u2(uint16(len(a.Classes)))
		for _, ic := range a.Classes {
			w.u2(ic.InnerClassIndex)
			w.u2(ic.OuterClassIndex)
			w.u2(ic.InnerNameIndex)
			w.u2(uint16(ic.AccessFlags))
		}
	case *EnclosingMethodAttribute:
		w.u2(a.ClassIndex)
		w.u2(a.MethodIndex)
	case *LineNumberTableAttribute:
		w.u2(uint16(len(a.Lines)))
		for _, l := range a.Lines {
			w.u2(l.StartPC)
			w.u2(l.Line)
		}
	case *LocalVariableTableAttribute:
		w.u2(uint16(len(a.Variables)))
		for _, v := range a.Variables {
			w.u2(v.StartPC)
			w.u2(v.Length)
			w.u2(v.NameIndex)
			w.u2(v.DescriptorIndex)
			w.u2(v.Index)
		}
	case *StackMapTableAttribute:
		w.u2(uint16(len(a.Frames)))
		for _, f := range a.Frames {
			w.frame(f)
		}
	case *AnnotationsAttribute:
		w.annotations(a.Annotations)
	case *ParameterAnnotationsAttribute:
		w.u1(uint8(len(a.Parameters)))
		for _, p := range a.Parameters {
			w.annotations(p)
		}
	case *AnnotationDefaultAttribute:
		w.elementValue(a.Value)
	case *BootstrapMethodsAttribute:
		w.u2(uint16(len(a.Methods)))
		for _, m := range a.Methods {
			w.u2(m.MethodRef)
			w.u2s(m.Arguments)
		}
	case *MethodParametersAttribute:
		w.u1(uint8(len(a.Parameters)))
		for _, p := range a.Parameters {
			w.u2(p.NameIndex)
			w.u2(uint16(p.AccessFlags))
		}
	default:
		return fmt.Errorf("cannot serialize attribute %T", a)
	}
	return nil
}

func (w *byteWriter) frame(f StackMapFrame) {
	w.u1(f.Type)
	switch t := f.Type; {
	case t <= 63:
	case t <= 127:
		w.verificationTypes(f.Stack)
	case t == 247:
		w.u2(f.OffsetDelta)
		w.verificationTypes(f.Stack)
	case t <= 254:
		w.u2(f.OffsetDelta)
		w.verificationTypes(f.Locals)
	default:
		w.u2(f.OffsetDelta)
		w.u2(uint16(len(f.Locals)))
		w.verificationTypes(f.Locals)
		w.u2(uint16(len(f.Stack)))
		w.verificationTypes(f.Stack)
	}
}

func (w *byteWriter) verificationTypes(vs []VerificationType) {
	for _, v := range vs {
		w.u1(v.Tag)
		if v.Tag == VerifyObject || v.Tag == VerifyUninitialized {
			w.u2(v.Index)
		}
	}
}

func (w *byteWriter) annotations(as []Annotation) {
	w.u2(uint16(len(as)))
	for _, a := range as {
		w.annotation(a)
	}
}

func (w *byteWriter) annotation(a Annotation) {
	w.u2(a.TypeIndex)
	w.u2(uint16(len(a.Elements)))
	for _, e := range a.Elements {
		w.u2(e.NameIndex)
		w.elementValue(e.Value)
	}
}

func (w *byteWriter) elementValue(v ElementValue) {
	w.u1(v.Tag)
	switch v.Tag {
	case 'e':
		w.u2(v.Index)
		w.u2(v.EnumConst)
	case '@':
		w.annotation(*v.Annotation)
	case '[':
		w.u2(uint16(len(v.Values)))
		for _, e := range v.Values {
			w.elementValue(e)
		}
	default:
		w.u2(v.Index)
	}
}
