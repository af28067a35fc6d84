package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Builder assembles a class programmatically, deduplicating pool entries.
type Builder struct {
	class *Class
	index map[string]uint16
}

// NewBuilder starts a class with the given internal name and superclass.
// An empty super leaves super_class at 0.
func NewBuilder(name, super string, flags AccessFlags) *Builder {
	b := &Builder{
		class: &Class{MajorVersion: 52, Pool: ConstantPool{nil}, AccessFlags: flags, id: NoClass},
		index: make(map[string]uint16),
	}
	b.class.ThisClass = b.ClassRef(name)
	if super != "" {
		b.class.SuperClass = b.ClassRef(super)
	}
	return b
}

// Library marks the class under construction as a library class.
func (b *Builder) Library() *Builder {
	b.class.Library = true
	return b
}

// Version sets the class file version.
func (b *Builder) Version(major, minor uint16) *Builder {
	b.class.MajorVersion, b.class.MinorVersion = major, minor
	return b
}

func (b *Builder) add(key string, k Constant) uint16 {
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint16(len(b.class.Pool))
	b.class.Pool = append(b.class.Pool, k)
	if k.Tag().Wide() {
		b.class.Pool = append(b.class.Pool, nil)
	}
	b.index[key] = idx
	return idx
}

func (b *Builder) Utf8(s string) uint16 {
	return b.add("U"+s, &Utf8Constant{Value: s})
}

func (b *Builder) ClassRef(name string) uint16 {
	return b.add("C"+name, &ClassConstant{NameIndex: b.Utf8(name)})
}

func (b *Builder) String(s string) uint16 {
	return b.add("S"+s, &StringConstant{StringIndex: b.Utf8(s)})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.add(fmt.Sprintf("I%d", v), &IntegerConstant{Value: v})
}

func (b *Builder) Long(v int64) uint16 {
	return b.add(fmt.Sprintf("J%d", v), &LongConstant{Value: v})
}

func (b *Builder) Float(v float32) uint16 {
	bits := math.Float32bits(v)
	return b.add(fmt.Sprintf("F%x", bits), &FloatConstant{Bits: bits})
}

func (b *Builder) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	return b.add(fmt.Sprintf("D%x", bits), &DoubleConstant{Bits: bits})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	return b.add("N"+name+":"+desc, &NameAndTypeConstant{NameIndex: b.Utf8(name), DescriptorIndex: b.Utf8(desc)})
}

func (b *Builder) ref(kind Tag, class, name, desc string) uint16 {
	key := fmt.Sprintf("R%d%s.%s:%s", kind, class, name, desc)
	return b.add(key, &RefConstant{Kind: kind, ClassIndex: b.ClassRef(class), NameAndTypeIndex: b.NameAndType(name, desc)})
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.ref(TagFieldref, class, name, desc)
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.ref(TagMethodref, class, name, desc)
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.ref(TagInterfaceMethodref, class, name, desc)
}

func (b *Builder) MethodType(desc string) uint16 {
	return b.add("T"+desc, &MethodTypeConstant{DescriptorIndex: b.Utf8(desc)})
}

func (b *Builder) MethodHandle(kind uint8, ref uint16) uint16 {
	return b.add(fmt.Sprintf("H%d:%d", kind, ref), &MethodHandleConstant{ReferenceKind: kind, ReferenceIndex: ref})
}

// InvokeDynamic adds an InvokeDynamic entry using the given bootstrap row.
func (b *Builder) InvokeDynamic(bootstrap uint16, name, desc string) uint16 {
	return b.add(fmt.Sprintf("Y%d:%s:%s", bootstrap, name, desc),
		&DynamicConstant{Kind: TagInvokeDynamic, BootstrapMethodAttrIndex: bootstrap, NameAndTypeIndex: b.NameAndType(name, desc)})
}

// Dynamic adds a Dynamic entry using the given bootstrap row.
func (b *Builder) Dynamic(bootstrap uint16, name, desc string) uint16 {
	return b.add(fmt.Sprintf("Q%d:%s:%s", bootstrap, name, desc),
		&DynamicConstant{Kind: TagDynamic, BootstrapMethodAttrIndex: bootstrap, NameAndTypeIndex: b.NameAndType(name, desc)})
}

// AddInterface appends a directly implemented interface.
func (b *Builder) AddInterface(name string) *Builder {
	b.class.Interfaces = append(b.class.Interfaces, b.ClassRef(name))
	return b
}

// AddField appends a field.
func (b *Builder) AddField(flags AccessFlags, name, desc string, attrs ...Attribute) *Member {
	m := &Member{Kind: FieldKind, AccessFlags: flags, NameIndex: b.Utf8(name), DescriptorIndex: b.Utf8(desc), Attributes: attrs}
	b.class.Fields = append(b.class.Fields, m)
	return m
}

// AddMethod appends a method. A nil code leaves the method abstract or native.
func (b *Builder) AddMethod(flags AccessFlags, name, desc string, code *CodeAttribute, attrs ...Attribute) *Member {
	m := &Member{Kind: MethodKind, AccessFlags: flags, NameIndex: b.Utf8(name), DescriptorIndex: b.Utf8(desc)}
	if code != nil {
		m.Attributes = append(m.Attributes, code)
	}
	m.Attributes = append(m.Attributes, attrs...)
	b.class.Methods = append(b.class.Methods, m)
	return m
}

// Code builds a Code attribute.
func (b *Builder) Code(maxStack, maxLocals uint16, code []byte, handlers ...ExceptionHandler) *CodeAttribute {
	return &CodeAttribute{
		Header:         Header{Name: b.Utf8("Code")},
		MaxStack:       maxStack,
		MaxLocals:      maxLocals,
		Code:           code,
		ExceptionTable: handlers,
	}
}

// SourceFile builds a SourceFile attribute.
func (b *Builder) SourceFile(name string) Attribute {
	return &IndexAttribute{Header: Header{Name: b.Utf8("SourceFile")}, AttrKind: AttrSourceFile, Index: b.Utf8(name)}
}

// Raw builds an opaque attribute.
func (b *Builder) Raw(name string, info []byte) Attribute {
	return &RawAttribute{Header: Header{Name: b.Utf8(name)}, AttrKind: KindOf(name), Info: info}
}

// AddAttribute appends a class attribute.
func (b *Builder) AddAttribute(a Attribute) *Builder {
	b.class.Attributes = append(b.class.Attributes, a)
	return b
}

// Build returns the assembled class.
func (b *Builder) Build() *Class {
	return b.class
}

// Label marks a code offset for branch fixups.
type Label struct {
	offset int
}

type fixup struct {
	label *Label
	base  int // offset of the branching instruction
	at    int // position of the operand
	wide  bool
}

// CodeBuilder assembles a code array with symbolic branch targets.
type CodeBuilder struct {
	buf    []byte
	fixups []fixup
}

// NewCodeBuilder returns an empty code builder.
func NewCodeBuilder() *CodeBuilder { return &CodeBuilder{} }

// Offset is the offset of the next emitted instruction.
func (cb *CodeBuilder) Offset() int { return len(cb.buf) }

// Op emits operand-less instructions.
func (cb *CodeBuilder) Op(ops ...Opcode) *CodeBuilder {
	for _, op := range ops {
		cb.buf = append(cb.buf, byte(op))
	}
	return cb
}

// Byte emits an instruction with a one-byte operand.
func (cb *CodeBuilder) Byte(op Opcode, v int) *CodeBuilder {
	cb.buf = append(cb.buf, byte(op), byte(v))
	return cb
}

// Short emits an instruction with a two-byte operand.
func (cb *CodeBuilder) Short(op Opcode, v int) *CodeBuilder {
	cb.buf = append(cb.buf, byte(op), byte(v>>8), byte(v))
	return cb
}

// Ldc loads a pool entry with ldc or ldc_w depending on the index.
func (cb *CodeBuilder) Ldc(idx uint16) *CodeBuilder {
	if idx <= 0xff {
		return cb.Byte(OpLdc, int(idx))
	}
	return cb.Short(OpLdcW, int(idx))
}

// Iinc emits iinc, widened when needed.
func (cb *CodeBuilder) Iinc(local, delta int) *CodeBuilder {
	if local > 0xff || delta < -128 || delta > 127 {
		cb.buf = append(cb.buf, byte(OpWide), byte(OpIinc), byte(local>>8), byte(local), byte(delta>>8), byte(delta))
		return cb
	}
	cb.buf = append(cb.buf, byte(OpIinc), byte(local), byte(delta))
	return cb
}

// Invokeinterface emits invokeinterface with its argument slot count.
func (cb *CodeBuilder) Invokeinterface(idx uint16, count int) *CodeBuilder {
	cb.buf = append(cb.buf, byte(OpInvokeinterface), byte(idx>>8), byte(idx), byte(count), 0)
	return cb
}

// Invokedynamic emits invokedynamic with its two zero bytes.
func (cb *CodeBuilder) Invokedynamic(idx uint16) *CodeBuilder {
	cb.buf = append(cb.buf, byte(OpInvokedynamic), byte(idx>>8), byte(idx), 0, 0)
	return cb
}

// NewLabel returns an unplaced label.
func (cb *CodeBuilder) NewLabel() *Label { return &Label{offset: -1} }

// Mark places a label at the current offset.
func (cb *CodeBuilder) Mark(l *Label) *CodeBuilder {
	l.offset = len(cb.buf)
	return cb
}

// Jump emits a branch to a label.
func (cb *CodeBuilder) Jump(op Opcode, l *Label) *CodeBuilder {
	base := len(cb.buf)
	wide := op == OpGotoW || op == OpJsrW
	cb.buf = append(cb.buf, byte(op))
	cb.fixups = append(cb.fixups, fixup{label: l, base: base, at: len(cb.buf), wide: wide})
	if wide {
		cb.buf = append(cb.buf, 0, 0, 0, 0)
	} else {
		cb.buf = append(cb.buf, 0, 0)
	}
	return cb
}

func (cb *CodeBuilder) switchHeader(op Opcode) int {
	base := len(cb.buf)
	cb.buf = append(cb.buf, byte(op))
	for len(cb.buf)%4 != 0 {
		cb.buf = append(cb.buf, 0)
	}
	return base
}

func (cb *CodeBuilder) target(base int, l *Label) {
	cb.fixups = append(cb.fixups, fixup{label: l, base: base, at: len(cb.buf), wide: true})
	cb.buf = append(cb.buf, 0, 0, 0, 0)
}

func (cb *CodeBuilder) int32(v int32) {
	cb.buf = binary.BigEndian.AppendUint32(cb.buf, uint32(v))
}

// TableSwitch emits a tableswitch over keys low..low+len(targets)-1.
func (cb *CodeBuilder) TableSwitch(low int32, def *Label, targets ...*Label) *CodeBuilder {
	base := cb.switchHeader(OpTableswitch)
	cb.target(base, def)
	cb.int32(low)
	cb.int32(low + int32(len(targets)) - 1)
	for _, t := range targets {
		cb.target(base, t)
	}
	return cb
}

// LookupSwitch emits a lookupswitch; keys must be sorted.
func (cb *CodeBuilder) LookupSwitch(def *Label, keys []int32, targets []*Label) *CodeBuilder {
	base := cb.switchHeader(OpLookupswitch)
	cb.target(base, def)
	cb.int32(int32(len(keys)))
	for i, k := range keys {
		cb.int32(k)
		cb.target(base, targets[i])
	}
	return cb
}

// Bytes resolves label fixups and returns the code array.
func (cb *CodeBuilder) Bytes() ([]byte, error) {
	out := append([]byte(nil), cb.buf...)
	for _, f := range cb.fixups {
		if f.label.offset < 0 {
			return nil, fmt.Errorf("branch at offset %d targets an unplaced label", f.base)
		}
		rel := f.label.offset - f.base
		if f.wide {
			binary.BigEndian.PutUint32(out[f.at:], uint32(int32(rel)))
			continue
		}
		if rel < math.MinInt16 || rel > math.MaxInt16 {
			return nil, fmt.Errorf("branch at offset %d out of range", f.base)
		}
		binary.BigEndian.PutUint16(out[f.at:], uint16(int16(rel)))
	}
	return out, nil
}

// MustBytes is Bytes for code known to be well formed.
func (cb *CodeBuilder) MustBytes() []byte {
	out, err := cb.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}
