package classfile

import (
	"fmt"
	"math"
)

// Constant is one constant pool entry. The concrete type identifies the
// variant; Tag reports the on-disk tag.
type Constant interface {
	Tag() Tag
}

type Utf8Constant struct {
	// Value holds the raw modified-UTF-8 bytes.
	Value string
}

type IntegerConstant struct {
	Value int32
}

// FloatConstant keeps the raw bits so that NaN payloads survive a round trip.
type FloatConstant struct {
	Bits uint32
}

type LongConstant struct {
	Value int64
}

type DoubleConstant struct {
	Bits uint64
}

type ClassConstant struct {
	NameIndex uint16
}

type StringConstant struct {
	StringIndex uint16
}

// RefConstant is a Fieldref, Methodref or InterfaceMethodref.
type RefConstant struct {
	Kind             Tag
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type NameAndTypeConstant struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

type MethodHandleConstant struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type MethodTypeConstant struct {
	DescriptorIndex uint16
}

// DynamicConstant is a Dynamic or InvokeDynamic entry.
type DynamicConstant struct {
	Kind                     Tag
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

type ModuleConstant struct {
	NameIndex uint16
}

type PackageConstant struct {
	NameIndex uint16
}

func (*Utf8Constant) Tag() Tag         { return TagUtf8 }
func (*IntegerConstant) Tag() Tag      { return TagInteger }
func (*FloatConstant) Tag() Tag        { return TagFloat }
func (*LongConstant) Tag() Tag         { return TagLong }
func (*DoubleConstant) Tag() Tag       { return TagDouble }
func (*ClassConstant) Tag() Tag        { return TagClass }
func (*StringConstant) Tag() Tag       { return TagString }
func (c *RefConstant) Tag() Tag        { return c.Kind }
func (*NameAndTypeConstant) Tag() Tag  { return TagNameAndType }
func (*MethodHandleConstant) Tag() Tag { return TagMethodHandle }
func (*MethodTypeConstant) Tag() Tag   { return TagMethodType }
func (c *DynamicConstant) Tag() Tag    { return c.Kind }
func (*ModuleConstant) Tag() Tag       { return TagModule }
func (*PackageConstant) Tag() Tag      { return TagPackage }

// Float returns the float value of the entry.
func (c *FloatConstant) Float() float32 { return math.Float32frombits(c.Bits) }

// Float returns the double value of the entry.
func (c *DoubleConstant) Float() float64 { return math.Float64frombits(c.Bits) }

// ConstantPool is indexed by pool index. Slot 0 and the slot following a
// Long or Double entry are nil.
type ConstantPool []Constant

// Count is the constant_pool_count written to disk.
func (p ConstantPool) Count() int { return len(p) }

// Valid reports whether i denotes a live entry.
func (p ConstantPool) Valid(i uint16) bool {
	return i > 0 && int(i) < len(p) && p[i] != nil
}

// Get returns the entry at index i.
func (p ConstantPool) Get(i uint16) (Constant, error) {
	if !p.Valid(i) {
		return nil, fmt.Errorf("constant pool index %d out of range", i)
	}
	return p[i], nil
}

// Utf8 returns the string held by the Utf8 entry at index i.
func (p ConstantPool) Utf8(i uint16) (string, error) {
	k, err := p.Get(i)
	if err != nil {
		return "", err
	}
	u, ok := k.(*Utf8Constant)
	if !ok {
		return "", fmt.Errorf("constant %d is %s, not Utf8", i, k.Tag())
	}
	return u.Value, nil
}

// Str is Utf8 without the error; it returns "" for a bad index.
func (p ConstantPool) Str(i uint16) string {
	s, _ := p.Utf8(i)
	return s
}

// ClassName returns the internal name named by the Class entry at index i.
func (p ConstantPool) ClassName(i uint16) (string, error) {
	k, err := p.Get(i)
	if err != nil {
		return "", err
	}
	c, ok := k.(*ClassConstant)
	if !ok {
		return "", fmt.Errorf("constant %d is %s, not Class", i, k.Tag())
	}
	return p.Utf8(c.NameIndex)
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p ConstantPool) NameAndType(i uint16) (string, string, error) {
	k, err := p.Get(i)
	if err != nil {
		return "", "", err
	}
	nt, ok := k.(*NameAndTypeConstant)
	if !ok {
		return "", "", fmt.Errorf("constant %d is %s, not NameAndType", i, k.Tag())
	}
	name, err := p.Utf8(nt.NameIndex)
	if err != nil {
		return "", "", err
	}
	desc, err := p.Utf8(nt.DescriptorIndex)
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef returns the class, name and descriptor of a field or method reference.
func (p ConstantPool) MemberRef(i uint16) (class, name, desc string, err error) {
	k, err := p.Get(i)
	if err != nil {
		return "", "", "", err
	}
	ref, ok := k.(*RefConstant)
	if !ok {
		return "", "", "", fmt.Errorf("constant %d is %s, not a member reference", i, k.Tag())
	}
	if class, err = p.ClassName(ref.ClassIndex); err != nil {
		return "", "", "", err
	}
	name, desc, err = p.NameAndType(ref.NameAndTypeIndex)
	return class, name, desc, err
}

// Dependencies lists the pool indices k refers to, in field order.
func Dependencies(k Constant) []uint16 {
	switch c := k.(type) {
	case *ClassConstant:
		return []uint16{c.NameIndex}
	case *StringConstant:
		return []uint16{c.StringIndex}
	case *RefConstant:
		return []uint16{c.ClassIndex, c.NameAndTypeIndex}
	case *NameAndTypeConstant:
		return []uint16{c.NameIndex, c.DescriptorIndex}
	case *MethodHandleConstant:
		return []uint16{c.ReferenceIndex}
	case *MethodTypeConstant:
		return []uint16{c.DescriptorIndex}
	case *DynamicConstant:
		return []uint16{c.NameAndTypeIndex}
	case *ModuleConstant:
		return []uint16{c.NameIndex}
	case *PackageConstant:
		return []uint16{c.NameIndex}
	}
	return nil
}

// RemapConstant rewrites every pool index held by k through fn.
func RemapConstant(k Constant, fn func(uint16) (uint16, error)) error {
	var err error
	remap := func(p *uint16) {
		if err != nil {
			return
		}
		*p, err = fn(*p)
	}
	switch c := k.(type) {
	case *ClassConstant:
		remap(&c.NameIndex)
	case *StringConstant:
		remap(&c.StringIndex)
	case *RefConstant:
		remap(&c.ClassIndex)
		remap(&c.NameAndTypeIndex)
	case *NameAndTypeConstant:
		remap(&c.NameIndex)
		remap(&c.DescriptorIndex)
	case *MethodHandleConstant:
		remap(&c.ReferenceIndex)
	case *MethodTypeConstant:
		remap(&c.DescriptorIndex)
	case *DynamicConstant:
		remap(&c.NameAndTypeIndex)
	case *ModuleConstant:
		remap(&c.NameIndex)
	case *PackageConstant:
		remap(&c.NameIndex)
	}
	return err
}

// Loadable reports whether an ldc-family instruction may push this entry.
func Loadable(k Constant) bool {
	switch k.Tag() {
	case TagInteger, TagFloat, TagLong, TagDouble, TagClass, TagString, TagMethodHandle, TagMethodType, TagDynamic:
		return true
	}
	return false
}

// Describe renders an entry for listings.
func (p ConstantPool) Describe(i uint16) string {
	k, err := p.Get(i)
	if err != nil {
		return fmt.Sprintf("#%d <invalid>", i)
	}
	switch c := k.(type) {
	case *Utf8Constant:
		return fmt.Sprintf("%q", c.Value)
	case *IntegerConstant:
		return fmt.Sprintf("int %d", c.Value)
	case *FloatConstant:
		return fmt.Sprintf("float %g", c.Float())
	case *LongConstant:
		return fmt.Sprintf("long %d", c.Value)
	case *DoubleConstant:
		return fmt.Sprintf("double %g", c.Float())
	case *ClassConstant:
		return "class " + p.Str(c.NameIndex)
	case *StringConstant:
		return fmt.Sprintf("string %q", p.Str(c.StringIndex))
	case *RefConstant:
		cls, name, desc, _ := p.MemberRef(i)
		return fmt.Sprintf("%s %s.%s:%s", c.Kind, cls, name, desc)
	case *NameAndTypeConstant:
		return fmt.Sprintf("nameandtype %s:%s", p.Str(c.NameIndex), p.Str(c.DescriptorIndex))
	case *MethodHandleConstant:
		return fmt.Sprintf("methodhandle %d %s", c.ReferenceKind, p.Describe(c.ReferenceIndex))
	case *MethodTypeConstant:
		return "methodtype " + p.Str(c.DescriptorIndex)
	case *DynamicConstant:
		name, desc, _ := p.NameAndType(c.NameAndTypeIndex)
		return fmt.Sprintf("%s #%d %s:%s", c.Kind, c.BootstrapMethodAttrIndex, name, desc)
	case *ModuleConstant:
		return "module " + p.Str(c.NameIndex)
	case *PackageConstant:
		return "package " + p.Str(c.NameIndex)
	}
	return k.Tag().String()
}
