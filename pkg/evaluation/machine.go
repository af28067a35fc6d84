package evaluation

import (
	"fmt"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// step is the effect of executing one instruction on one frame.
type step struct {
	ins    *classfile.Instruction
	before *Frame
	after  *Frame
	next   []int

	outcome      Outcome
	switchTarget int
	decided      bool

	// popped holds the entries the instruction consumed, top first.
	// Stack shuffles that only move entries leave it empty.
	popped []Entry

	loadSlot  int
	sources   OffsetSet
	storeSlot int
}

var (
	numericKinds = [...]Kind{KindInteger, KindLong, KindFloat, KindDouble}
	localKinds   = [...]Kind{KindInteger, KindLong, KindFloat, KindDouble, KindReference}
	arrayKinds   = [...]Kind{KindInteger, KindLong, KindFloat, KindDouble, KindReference, KindInteger, KindInteger, KindInteger}
	newarrayType = map[int32]string{4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J"}
)

// machine interprets a single instruction. The first failure is kept in
// err; later operations still run on placeholder values.
type machine struct {
	r     *run
	ins   *classfile.Instruction
	frame *Frame
	st    *step
	err   error
}

func (x *machine) fail(format string, args ...interface{}) {
	if x.err == nil {
		x.err = x.r.inconsistent(x.ins.Offset, "%s: %s", x.ins.Opcode, fmt.Sprintf(format, args...))
	}
}

func (x *machine) push(v Value) {
	x.frame.Stack.Push(Entry{Value: v, Producers: NewOffsetSet(x.ins.Offset)})
}

func (x *machine) popEntry() Entry {
	if x.frame.Stack.Size() == 0 {
		x.fail("stack underflow")
		return Entry{}
	}
	e := x.frame.Stack.Pop()
	x.st.popped = append(x.st.popped, e)
	return e
}

// pop removes the top value and checks its computational type.
func (x *machine) pop(k Kind) Value {
	e := x.popEntry()
	if x.err != nil {
		return Generic(k)
	}
	if e.Value.Kind() != k {
		x.fail("expected %s on the stack, found %s", k, e.Value.Kind())
		return Generic(k)
	}
	return e.Value
}

// popWords removes n stack words, bottom entry first. A long or double may
// not be split.
func (x *machine) popWords(n int) []Entry {
	var out []Entry
	words := 0
	for words < n {
		if x.frame.Stack.Size() == 0 {
			x.fail("stack underflow")
			return out
		}
		e := x.frame.Stack.Pop()
		words += e.Value.Category()
		out = append([]Entry{e}, out...)
	}
	if words != n {
		x.fail("would split a %s value", out[0].Value.Kind())
	}
	return out
}

func (x *machine) pushEntries(entries []Entry) {
	for _, e := range entries {
		x.frame.Stack.Push(e)
	}
}

// dup duplicates the top n words and inserts the copy depth words down.
func (x *machine) dup(n, depth int) {
	top := x.popWords(n)
	below := x.popWords(depth)
	if x.err != nil {
		return
	}
	x.pushEntries(top)
	x.pushEntries(below)
	x.pushEntries(top)
}

func (x *machine) load(slot int, k Kind) Value {
	if slot < 0 || slot+k.Category() > x.frame.Locals.Size() {
		x.fail("local %d out of range", slot)
		return Generic(k)
	}
	v := x.frame.Locals.Value(slot)
	if v.Kind() != k {
		x.fail("expected %s in local %d, found %s", k, slot, v.Kind())
		return Generic(k)
	}
	x.st.loadSlot = slot
	x.st.sources = x.frame.Locals.Producers(slot)
	return v
}

func (x *machine) store(slot int, v Value) {
	if slot < 0 || slot+v.Category() > x.frame.Locals.Size() {
		x.fail("local %d out of range", slot)
		return
	}
	x.frame.Locals.Store(slot, v, NewOffsetSet(x.ins.Offset))
	x.st.storeSlot = slot
}

func (x *machine) fallThrough() { x.st.next = append(x.st.next, x.ins.Next()) }

func (x *machine) jumpTo(targets ...int) {
	for _, t := range targets {
		dup := false
		for _, n := range x.st.next {
			if n == t {
				dup = true
				break
			}
		}
		if !dup {
			x.st.next = append(x.st.next, t)
		}
	}
}

func (x *machine) pool() classfile.ConstantPool { return x.r.class.Pool }

func (x *machine) execute() {
	ins := x.ins
	op := ins.Opcode
	switch {
	case op == classfile.OpNop:
	case op == classfile.OpAconstNull:
		x.push(Null())
	case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5:
		x.push(Int(int32(op) - int32(classfile.OpIconst0)))
	case op == classfile.OpLconst0 || op == classfile.OpLconst1:
		x.push(Long(int64(op - classfile.OpLconst0)))
	case op >= classfile.OpFconst0 && op <= classfile.OpFconst2:
		x.push(Float(float32(op - classfile.OpFconst0)))
	case op == classfile.OpDconst0 || op == classfile.OpDconst1:
		x.push(Double(float64(op - classfile.OpDconst0)))
	case op == classfile.OpBipush || op == classfile.OpSipush:
		x.push(Int(ins.Literal))
	case op == classfile.OpLdc || op == classfile.OpLdcW || op == classfile.OpLdc2W:
		x.ldc()

	case op >= classfile.OpIload && op <= classfile.OpAload3:
		k := localKinds[localGroup(op, classfile.OpIload, classfile.OpIload0)]
		x.push(x.load(ins.Local, k))
	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		x.pop(KindInteger)
		arr := x.pop(KindReference)
		k := arrayKinds[op-classfile.OpIaload]
		if k == KindReference {
			x.push(Reference(componentType(arr.Type())))
		} else {
			x.push(Generic(k))
		}
	case op >= classfile.OpIstore && op <= classfile.OpAstore3:
		k := localKinds[localGroup(op, classfile.OpIstore, classfile.OpIstore0)]
		if k == KindReference {
			// astore also spills jsr return addresses.
			e := x.popEntry()
			if x.err == nil && e.Value.Kind() != KindReference && e.Value.Kind() != KindReturnAddress {
				x.fail("expected reference on the stack, found %s", e.Value.Kind())
			}
			x.store(ins.Local, e.Value)
		} else {
			x.store(ins.Local, x.pop(k))
		}
	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		x.pop(arrayKinds[op-classfile.OpIastore])
		x.pop(KindInteger)
		x.pop(KindReference)

	case op == classfile.OpPop:
		x.st.popped = append(x.st.popped, x.popWords(1)...)
	case op == classfile.OpPop2:
		x.st.popped = append(x.st.popped, x.popWords(2)...)
	case op == classfile.OpDup:
		x.dup(1, 0)
	case op == classfile.OpDupX1:
		x.dup(1, 1)
	case op == classfile.OpDupX2:
		x.dup(1, 2)
	case op == classfile.OpDup2:
		x.dup(2, 0)
	case op == classfile.OpDup2X1:
		x.dup(2, 1)
	case op == classfile.OpDup2X2:
		x.dup(2, 2)
	case op == classfile.OpSwap:
		top := x.popWords(1)
		below := x.popWords(1)
		if x.err == nil {
			x.pushEntries(top)
			x.pushEntries(below)
		}

	case op >= classfile.OpIadd && op <= classfile.OpDrem:
		k := numericKinds[(op-classfile.OpIadd)%4]
		b := x.pop(k)
		a := x.pop(k)
		x.push(binary(op, k, a, b))
	case op >= classfile.OpIneg && op <= classfile.OpDneg:
		x.push(Negate(op, x.pop(numericKinds[op-classfile.OpIneg])))
	case op >= classfile.OpIshl && op <= classfile.OpLushr:
		k := numericKinds[(op-classfile.OpIshl)%2]
		s := x.pop(KindInteger)
		a := x.pop(k)
		x.push(binary(op, k, a, s))
	case op >= classfile.OpIand && op <= classfile.OpLxor:
		k := numericKinds[(op-classfile.OpIand)%2]
		b := x.pop(k)
		a := x.pop(k)
		x.push(binary(op, k, a, b))
	case op == classfile.OpIinc:
		v := x.load(ins.Local, KindInteger)
		x.store(ins.Local, IntBinary(classfile.OpIadd, v, Int(ins.Literal)))
	case op >= classfile.OpI2l && op <= classfile.OpI2s:
		from := KindInteger
		if op <= classfile.OpD2f {
			from = numericKinds[(op-classfile.OpI2l)/3]
		}
		x.push(Convert(op, x.pop(from)))
	case op == classfile.OpLcmp:
		b := x.pop(KindLong)
		a := x.pop(KindLong)
		x.push(Compare(op, a, b))
	case op == classfile.OpFcmpl || op == classfile.OpFcmpg:
		b := x.pop(KindFloat)
		a := x.pop(KindFloat)
		x.push(Compare(op, a, b))
	case op == classfile.OpDcmpl || op == classfile.OpDcmpg:
		b := x.pop(KindDouble)
		a := x.pop(KindDouble)
		x.push(Compare(op, a, b))

	case op.IsConditional():
		x.conditional()
		return
	case op == classfile.OpGoto || op == classfile.OpGotoW:
		x.jumpTo(ins.Target())
		return
	case op == classfile.OpJsr || op == classfile.OpJsrW:
		x.push(ReturnAddress(ins.Next()))
		x.jumpTo(ins.Target())
		return
	case op == classfile.OpRet:
		v := x.load(ins.Local, KindReturnAddress)
		if addr, ok := v.Address(); ok {
			x.jumpTo(addr)
		} else {
			x.jumpTo(x.r.returnSites...)
		}
		return
	case op == classfile.OpTableswitch || op == classfile.OpLookupswitch:
		key := x.pop(KindInteger)
		if k, ok := key.IntValue(); ok {
			t := ins.SwitchTarget(k)
			x.st.decided, x.st.switchTarget = true, t
			x.jumpTo(t)
		} else {
			x.jumpTo(ins.Targets()...)
		}
		return
	case op >= classfile.OpIreturn && op <= classfile.OpAreturn:
		x.pop(localKinds[op-classfile.OpIreturn])
		return
	case op == classfile.OpReturn:
		return

	case op >= classfile.OpGetstatic && op <= classfile.OpPutfield:
		x.field()
	case op.IsInvoke():
		x.invoke()

	case op == classfile.OpNew:
		x.push(Object(classType(x.className())))
	case op == classfile.OpNewarray:
		x.pop(KindInteger)
		typ, ok := newarrayType[ins.Literal]
		if !ok {
			x.fail("unknown array type %d", ins.Literal)
		}
		x.push(Object(typ))
	case op == classfile.OpAnewarray:
		x.pop(KindInteger)
		x.push(Object("[" + classType(x.className())))
	case op == classfile.OpMultianewarray:
		for i := int32(0); i < ins.Literal; i++ {
			x.pop(KindInteger)
		}
		x.push(Object(classType(x.className())))
	case op == classfile.OpArraylength:
		x.pop(KindReference)
		x.push(Generic(KindInteger))
	case op == classfile.OpAthrow:
		x.pop(KindReference)
		return
	case op == classfile.OpCheckcast:
		v := x.pop(KindReference)
		typ := classType(x.className())
		switch {
		case v.IsNull():
			x.push(Null())
		case v.IsNonNull():
			x.push(Object(typ))
		default:
			x.push(Reference(typ))
		}
	case op == classfile.OpInstanceof:
		v := x.pop(KindReference)
		x.className()
		if v.IsNull() {
			x.push(Int(0))
		} else {
			x.push(Generic(KindInteger))
		}
	case op == classfile.OpMonitorenter || op == classfile.OpMonitorexit:
		x.pop(KindReference)
	default:
		// breakpoint and the implementation-dependent opcodes have no
		// stack effect.
	}
	x.fallThrough()
}

// localGroup returns the type group of a load or store: the explicit
// forms are consecutive, the compact forms come in runs of four.
func localGroup(op, explicit, compact classfile.Opcode) int {
	if op < compact {
		return int(op - explicit)
	}
	return int(op-compact) / 4
}

func binary(op classfile.Opcode, k Kind, a, b Value) Value {
	switch k {
	case KindInteger:
		return IntBinary(op, a, b)
	case KindLong:
		return LongBinary(op, a, b)
	case KindFloat:
		return FloatBinary(op, a, b)
	}
	return DoubleBinary(op, a, b)
}

func (x *machine) conditional() {
	op := x.ins.Opcode
	var a, b Value
	switch {
	case op >= classfile.OpIfeq && op <= classfile.OpIfle:
		a = x.pop(KindInteger)
	case op >= classfile.OpIfIcmpeq && op <= classfile.OpIfIcmple:
		b = x.pop(KindInteger)
		a = x.pop(KindInteger)
	case op == classfile.OpIfAcmpeq || op == classfile.OpIfAcmpne:
		b = x.pop(KindReference)
		a = x.pop(KindReference)
	default:
		a = x.pop(KindReference)
	}
	x.st.outcome = Branch(op, a, b)
	switch x.st.outcome {
	case OutcomeTaken:
		x.jumpTo(x.ins.Target())
	case OutcomeNotTaken:
		x.jumpTo(x.ins.Next())
	default:
		x.jumpTo(x.ins.Next(), x.ins.Target())
	}
}

func (x *machine) className() string {
	name, err := x.pool().ClassName(x.ins.Index)
	if err != nil {
		x.fail("%v", err)
		return "java/lang/Object"
	}
	return name
}

// classType turns a Class constant name into a field descriptor; array
// class names already are descriptors.
func classType(name string) string {
	if len(name) > 0 && name[0] == '[' {
		return name
	}
	return "L" + name + ";"
}

func componentType(arrayType string) string {
	if len(arrayType) > 1 && arrayType[0] == '[' {
		return arrayType[1:]
	}
	return ""
}

func (x *machine) ldc() {
	k, err := x.pool().Get(x.ins.Index)
	if err != nil {
		x.fail("%v", err)
		return
	}
	var v Value
	switch k := k.(type) {
	case *classfile.IntegerConstant:
		v = Int(k.Value)
	case *classfile.FloatConstant:
		v = Value{kind: KindFloat, specific: true, bits: uint64(k.Bits)}
	case *classfile.LongConstant:
		v = Long(k.Value)
	case *classfile.DoubleConstant:
		v = Value{kind: KindDouble, specific: true, bits: k.Bits}
	case *classfile.StringConstant:
		v = Object("Ljava/lang/String;")
	case *classfile.ClassConstant:
		v = Object("Ljava/lang/Class;")
	case *classfile.MethodTypeConstant:
		v = Object("Ljava/lang/invoke/MethodType;")
	case *classfile.MethodHandleConstant:
		v = Object("Ljava/lang/invoke/MethodHandle;")
	case *classfile.DynamicConstant:
		_, desc, err := x.pool().NameAndType(k.NameAndTypeIndex)
		if err != nil {
			x.fail("%v", err)
			return
		}
		v = FromDescriptor(desc)
	default:
		x.fail("cannot load a %s constant", k.Tag())
		return
	}
	if wide := v.Category() == 2; wide != (x.ins.Opcode == classfile.OpLdc2W) {
		x.fail("cannot load a %s constant", v.Kind())
		return
	}
	x.push(v)
}

func (x *machine) field() {
	op := x.ins.Opcode
	class, name, desc, err := x.pool().MemberRef(x.ins.Index)
	if err != nil {
		x.fail("%v", err)
		return
	}
	declared := FromDescriptor(desc)
	switch op {
	case classfile.OpGetstatic:
		x.push(x.fieldValue(class, name, desc, declared))
	case classfile.OpPutstatic:
		x.pop(declared.Kind())
	case classfile.OpGetfield:
		x.pop(KindReference)
		x.push(x.fieldValue(class, name, desc, declared))
	case classfile.OpPutfield:
		x.pop(declared.Kind())
		x.pop(KindReference)
	}
}

func (x *machine) fieldValue(class, name, desc string, declared Value) Value {
	v := x.r.e.unit.Field(x.r.class, x.ins, class, name, desc)
	if v.Kind() != declared.Kind() {
		return declared
	}
	return v
}

func (x *machine) invoke() {
	op := x.ins.Opcode
	var class, name, desc string
	if op == classfile.OpInvokedynamic {
		k, err := x.pool().Get(x.ins.Index)
		if err != nil {
			x.fail("%v", err)
			return
		}
		d, ok := k.(*classfile.DynamicConstant)
		if !ok {
			x.fail("constant %d is %s, not InvokeDynamic", x.ins.Index, k.Tag())
			return
		}
		if name, desc, err = x.pool().NameAndType(d.NameAndTypeIndex); err != nil {
			x.fail("%v", err)
			return
		}
	} else {
		var err error
		if class, name, desc, err = x.pool().MemberRef(x.ins.Index); err != nil {
			x.fail("%v", err)
			return
		}
	}
	mt, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		x.fail("%v", err)
		return
	}
	for i := len(mt.Params) - 1; i >= 0; i-- {
		x.pop(FromDescriptor(mt.Params[i]).Kind())
	}
	if op != classfile.OpInvokestatic && op != classfile.OpInvokedynamic {
		x.pop(KindReference)
	}
	if mt.Return == "V" {
		return
	}
	declared := FromDescriptor(mt.Return)
	v := x.r.e.unit.Invoke(x.r.class, x.ins, class, name, desc)
	if v.Kind() != declared.Kind() {
		v = declared
	}
	x.push(v)
}

// escapes lists the consumed entries whose values leave the method or the
// frame: call arguments, returned and thrown values and values written to
// fields or arrays.
func (st *step) escapes() []Entry {
	op := st.ins.Opcode
	switch {
	case op.IsInvoke():
		return st.popped
	case op >= classfile.OpIreturn && op <= classfile.OpAreturn,
		op == classfile.OpAthrow,
		op == classfile.OpPutstatic, op == classfile.OpPutfield,
		op >= classfile.OpIastore && op <= classfile.OpSastore:
		if len(st.popped) > 0 {
			return st.popped[:1]
		}
	}
	return nil
}

// pushes reports whether the instruction computed a new top of stack.
func (st *step) pushes() (Value, bool) {
	if st.after == nil || st.after.Stack.Size() == 0 {
		return Value{}, false
	}
	top := st.after.Stack.Peek(0)
	if top.Producers.Len() != 1 || !top.Producers.Contains(st.ins.Offset) {
		return Value{}, false
	}
	return top.Value, true
}
