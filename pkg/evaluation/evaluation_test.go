package evaluation

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/keep"
)

const static = classfile.AccPublic | classfile.AccStatic

func sampleValues() []Value {
	return []Value{
		Top(),
		Int(0), Int(1), Int(-1), Generic(KindInteger),
		Long(0), Long(math.MaxInt64), Generic(KindLong),
		Float(1.5), Float(float32(math.NaN())), Generic(KindFloat),
		Double(-0.0), Double(2), Generic(KindDouble),
		Null(), Reference(""), Reference("Ljava/lang/String;"), Object("Ljava/lang/String;"), Object("LA;"),
		ReturnAddress(3), ReturnAddress(7), Generic(KindReturnAddress),
	}
}

func TestValue_GeneralizeLaws(t *testing.T) {
	values := sampleValues()
	for _, a := range values {
		assert.Equal(t, a, a.Generalize(a), "idempotent: %s", a)
		for _, b := range values {
			ab := a.Generalize(b)
			assert.Equal(t, ab, b.Generalize(a), "commutative: %s, %s", a, b)
			assert.True(t, ab.MoreGeneral(a) && ab.MoreGeneral(b), "upper bound: %s, %s", a, b)
			if a.IsSpecific() && b.IsSpecific() && a.Kind() == b.Kind() {
				assert.Equal(t, a == b, ab.IsSpecific(), "specific join: %s, %s", a, b)
			}
			for _, c := range values {
				assert.Equal(t, ab.Generalize(c), a.Generalize(b.Generalize(c)), "associative: %s, %s, %s", a, b, c)
			}
		}
	}
}

func TestValue_ReferenceJoin(t *testing.T) {
	str := "Ljava/lang/String;"
	assert.Equal(t, Reference(str), Null().Generalize(Object(str)), "null keeps the other type but drops non-null")
	assert.Equal(t, Object(""), Object(str).Generalize(Object("LA;")))
	assert.True(t, Object(str).IsNonNull())
	assert.False(t, Reference(str).IsNonNull())
	assert.False(t, Null().IsNonNull())
	assert.Equal(t, Top(), Int(1).Generalize(Float(1)))
}

func TestValue_FromDescriptor(t *testing.T) {
	tests := []struct {
		desc string
		want Value
	}{
		{"Z", Generic(KindInteger)},
		{"C", Generic(KindInteger)},
		{"I", Generic(KindInteger)},
		{"J", Generic(KindLong)},
		{"F", Generic(KindFloat)},
		{"D", Generic(KindDouble)},
		{"Ljava/lang/Object;", Reference("Ljava/lang/Object;")},
		{"[I", Reference("[I")},
		{"V", Top()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromDescriptor(tt.desc), tt.desc)
	}
	assert.Equal(t, 2, Generic(KindDouble).Category())
	assert.Equal(t, 1, Null().Category())
}

func TestArithmetic(t *testing.T) {
	nan32 := float32(math.NaN())
	tests := []struct {
		name string
		got  Value
		want Value
	}{
		{"iadd wraps", IntBinary(classfile.OpIadd, Int(math.MaxInt32), Int(1)), Int(math.MinInt32)},
		{"imul wraps", IntBinary(classfile.OpImul, Int(0x10000), Int(0x10000)), Int(0)},
		{"idiv min by -1", IntBinary(classfile.OpIdiv, Int(math.MinInt32), Int(-1)), Int(math.MinInt32)},
		{"irem min by -1", IntBinary(classfile.OpIrem, Int(math.MinInt32), Int(-1)), Int(0)},
		{"idiv truncates", IntBinary(classfile.OpIdiv, Int(-7), Int(2)), Int(-3)},
		{"irem sign of dividend", IntBinary(classfile.OpIrem, Int(-7), Int(2)), Int(-1)},
		{"idiv by zero throws", IntBinary(classfile.OpIdiv, Int(1), Int(0)), Generic(KindInteger)},
		{"ishl masks", IntBinary(classfile.OpIshl, Int(1), Int(33)), Int(2)},
		{"ishr keeps sign", IntBinary(classfile.OpIshr, Int(-16), Int(2)), Int(-4)},
		{"iushr", IntBinary(classfile.OpIushr, Int(-1), Int(28)), Int(15)},
		{"generic operand", IntBinary(classfile.OpIadd, Int(1), Generic(KindInteger)), Generic(KindInteger)},
		{"lshl masks", LongBinary(classfile.OpLshl, Long(1), Int(65)), Long(2)},
		{"lushr", LongBinary(classfile.OpLushr, Long(-1), Int(60)), Long(15)},
		{"ladd wraps", LongBinary(classfile.OpLadd, Long(math.MaxInt64), Long(1)), Long(math.MinInt64)},
		{"ldiv by zero throws", LongBinary(classfile.OpLdiv, Long(1), Long(0)), Generic(KindLong)},
		{"frem", FloatBinary(classfile.OpFrem, Float(5.5), Float(2)), Float(1.5)},
		{"fdiv by zero", FloatBinary(classfile.OpFdiv, Float(1), Float(0)), Float(float32(math.Inf(1)))},
		{"drem sign of dividend", DoubleBinary(classfile.OpDrem, Double(-5.5), Double(2)), Double(-1.5)},
		{"fneg zero", Negate(classfile.OpFneg, Float(0)), Float(float32(math.Copysign(0, -1)))},
		{"ineg min", Negate(classfile.OpIneg, Int(math.MinInt32)), Int(math.MinInt32)},
		{"i2b", Convert(classfile.OpI2b, Int(200)), Int(-56)},
		{"i2c", Convert(classfile.OpI2c, Int(-1)), Int(65535)},
		{"i2s", Convert(classfile.OpI2s, Int(0x18000)), Int(-32768)},
		{"l2i truncates", Convert(classfile.OpL2i, Long(0x1_0000_0005)), Int(5)},
		{"f2i NaN", Convert(classfile.OpF2i, Float(nan32)), Int(0)},
		{"f2i saturates", Convert(classfile.OpF2i, Float(1e20)), Int(math.MaxInt32)},
		{"d2i rounds toward zero", Convert(classfile.OpD2i, Double(-2.9)), Int(-2)},
		{"d2l saturates", Convert(classfile.OpD2l, Double(math.Inf(-1))), Long(math.MinInt64)},
		{"i2l", Convert(classfile.OpI2l, Int(-1)), Long(-1)},
		{"generic conversion", Convert(classfile.OpI2d, Generic(KindInteger)), Generic(KindDouble)},
		{"lcmp", Compare(classfile.OpLcmp, Long(1), Long(2)), Int(-1)},
		{"fcmpl NaN", Compare(classfile.OpFcmpl, Float(nan32), Float(0)), Int(-1)},
		{"fcmpg NaN", Compare(classfile.OpFcmpg, Float(nan32), Float(0)), Int(1)},
		{"dcmpg equal", Compare(classfile.OpDcmpg, Double(0), Double(math.Copysign(0, -1))), Int(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got, "got %s", tt.got)
		})
	}
}

func TestBranch(t *testing.T) {
	tests := []struct {
		op   classfile.Opcode
		a, b Value
		want Outcome
	}{
		{classfile.OpIfeq, Int(0), Value{}, OutcomeTaken},
		{classfile.OpIfne, Int(0), Value{}, OutcomeNotTaken},
		{classfile.OpIflt, Int(-1), Value{}, OutcomeTaken},
		{classfile.OpIfge, Generic(KindInteger), Value{}, OutcomeUnknown},
		{classfile.OpIfIcmplt, Int(1), Int(2), OutcomeTaken},
		{classfile.OpIfIcmpgt, Int(1), Int(2), OutcomeNotTaken},
		{classfile.OpIfIcmple, Int(2), Int(2), OutcomeTaken},
		{classfile.OpIfAcmpeq, Null(), Null(), OutcomeTaken},
		{classfile.OpIfAcmpne, Object(""), Object(""), OutcomeUnknown},
		{classfile.OpIfnull, Null(), Value{}, OutcomeTaken},
		{classfile.OpIfnull, Object("LA;"), Value{}, OutcomeNotTaken},
		{classfile.OpIfnonnull, Reference("LA;"), Value{}, OutcomeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Branch(tt.op, tt.a, tt.b), "%s %s %s", tt.op, tt.a, tt.b)
	}
}

func TestOffsetSet(t *testing.T) {
	a := NewOffsetSet(5, 1, 5, ParameterOffset(0))
	assert.Equal(t, []int{-1, 1, 5}, a.Slice())
	assert.True(t, a.Contains(-1))
	assert.False(t, a.Contains(2))
	assert.Equal(t, "{p0,1,5}", a.String())

	u := a.Union(NewOffsetSet(2, 5))
	assert.Equal(t, []int{-1, 1, 2, 5}, u.Slice())
	assert.Equal(t, []int{-1, 1, 5}, a.Slice(), "sets are immutable")
	assert.True(t, a.Union(NewOffsetSet(1)).Equal(a))

	p, ok := IsParameter(ParameterOffset(3))
	assert.True(t, ok)
	assert.Equal(t, 3, p)
	_, ok = IsParameter(0)
	assert.False(t, ok)
}

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(6)
	assert.True(t, uf.Union(0, 3))
	assert.True(t, uf.Union(4, 3))
	assert.False(t, uf.Union(0, 4))
	assert.True(t, uf.Union(5, 1))
	assert.Equal(t, uf.Find(0), uf.Find(4))
	assert.NotEqual(t, uf.Find(0), uf.Find(1))
	assert.Equal(t, [][]int{{0, 3, 4}, {1, 5}, {2}}, uf.Groups())
}

// method builds a single class holding one method and returns both.
type method struct {
	flags     classfile.AccessFlags
	name      string
	desc      string
	maxStack  uint16
	maxLocals uint16
	build     func(b *classfile.Builder) *classfile.CodeBuilder
	handlers  []classfile.ExceptionHandler
}

func (m method) compile(t *testing.T, extra ...*classfile.Class) (*classfile.Program, *classfile.Class, *classfile.Member) {
	t.Helper()
	object := classfile.NewBuilder("java/lang/Object", "", classfile.AccPublic).Library().Build()
	b := classfile.NewBuilder("app/M", "java/lang/Object", classfile.AccPublic)
	cb := m.build(b)
	member := b.AddMethod(m.flags, m.name, m.desc, b.Code(m.maxStack, m.maxLocals, cb.MustBytes(), m.handlers...))
	c := b.Build()
	p, err := classfile.NewProgramOf(append([]*classfile.Class{object, c}, extra...)...)
	require.NoError(t, err)
	return p, c, member
}

func evaluate(t *testing.T, m method, opts ...Option) *Result {
	t.Helper()
	p, c, member := m.compile(t)
	res, err := NewEvaluator(p, opts...).Evaluate(c, member)
	require.NoError(t, err)
	return res
}

func TestEvaluate_DeadStore(t *testing.T) {
	res := evaluate(t, method{
		flags: static, name: "dead", desc: "()I", maxStack: 1, maxLocals: 1,
		build: func(*classfile.Builder) *classfile.CodeBuilder {
			return classfile.NewCodeBuilder().Op(
				classfile.OpIconst5, classfile.OpIstore0, // 0, 1: overwritten before any load
				classfile.OpIconst3, classfile.OpIstore0, // 2, 3
				classfile.OpIload0, classfile.OpIreturn) // 4, 5
		},
	})

	assert.Equal(t, []int{1}, res.DeadStores)
	assert.True(t, res.IsDeadStore(1))
	assert.False(t, res.IsDeadStore(3), "a stored value that is loaded and returned is live")
	assert.Equal(t, map[int]int{1: 0, 3: 0}, res.Stores)
	assert.True(t, NewOffsetSet(3).Equal(res.LoadSources[4]))
	assert.Equal(t, Int(3), res.Constants[4])
	assert.Empty(t, res.Unreachable)
	if diff := cmp.Diff([]Web{{Slot: 0, Producers: []int{1}}, {Slot: 0, Producers: []int{3}}}, res.Webs); diff != "" {
		t.Errorf("webs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{5}, res.Consumers[4])
}

// branchy returns p0 == 0 ? 2 : 1 through local 1.
func branchy() method {
	return method{
		flags: static, name: "pick", desc: "(I)I", maxStack: 1, maxLocals: 2,
		build: func(*classfile.Builder) *classfile.CodeBuilder {
			cb := classfile.NewCodeBuilder()
			zero, end := cb.NewLabel(), cb.NewLabel()
			cb.Op(classfile.OpIload0).Jump(classfile.OpIfeq, zero) // 0, 1
			cb.Op(classfile.OpIconst1, classfile.OpIstore1)        // 4, 5
			cb.Jump(classfile.OpGoto, end)                         // 6
			cb.Mark(zero).Op(classfile.OpIconst2, classfile.OpIstore1)
			cb.Mark(end).Op(classfile.OpIload1, classfile.OpIreturn) // 11, 12
			return cb
		},
	}
}

func TestEvaluate_BranchMerge(t *testing.T) {
	res := evaluate(t, branchy())

	assert.Equal(t, OutcomeUnknown, res.Branches[1])
	assert.Empty(t, res.Unreachable)
	assert.Empty(t, res.DeadStores)
	assert.Equal(t, []int{5, 10}, res.LoadSources[11].Slice())
	assert.Equal(t, Generic(KindInteger), res.Frames[11].Locals.Value(1))
	assert.NotContains(t, res.Constants, 11)
	if diff := cmp.Diff([]Web{
		{Slot: 0, Producers: []int{ParameterOffset(0)}},
		{Slot: 1, Producers: []int{5, 10}},
	}, res.Webs); diff != "" {
		t.Errorf("webs mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, res.Parameters, 1)
	assert.Equal(t, Parameter{Index: 0, Slot: 0, Descriptor: "I", Used: true}, res.Parameters[0])
}

func TestEvaluate_InjectedArgumentDecidesBranch(t *testing.T) {
	p, c, m := branchy().compile(t)
	unit := NewBasicInvocationUnit(p, map[int]Value{0: Int(0)})
	res, err := NewEvaluator(p, WithInvocationUnit(unit)).Evaluate(c, m)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTaken, res.Branches[1])
	assert.Equal(t, []int{4, 5, 6}, res.Unreachable)
	assert.False(t, res.IsReachable(5))
	assert.NotContains(t, res.Stores, 5, "unreachable stores are not traced")
	assert.Equal(t, []int{10}, res.LoadSources[11].Slice())
	assert.Equal(t, Int(2), res.Constants[11])
}

func TestEvaluate_Parameters(t *testing.T) {
	res := evaluate(t, method{
		flags: classfile.AccPublic, name: "use", desc: "(ILjava/lang/String;)V", maxStack: 1, maxLocals: 3,
		build: func(b *classfile.Builder) *classfile.CodeBuilder {
			return classfile.NewCodeBuilder().
				Op(classfile.OpAload2).
				Short(classfile.OpInvokestatic, int(b.Methodref("app/Out", "print", "(Ljava/lang/String;)V"))).
				Op(classfile.OpReturn)
		},
	})

	want := []Parameter{
		{Index: 0, Slot: 0, Descriptor: "Lapp/M;"},
		{Index: 1, Slot: 1, Descriptor: "I"},
		{Index: 2, Slot: 2, Descriptor: "Ljava/lang/String;", Used: true, Escapes: true},
	}
	if diff := cmp.Diff(want, res.Parameters); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{0, 1}, res.UnusedParameters())
	assert.True(t, res.Frames[0].Locals.Value(0).IsNonNull(), "the receiver is never null")
}

func TestEvaluate_RemovableInvocations(t *testing.T) {
	var length, valueOf int
	res := evaluate(t, method{
		flags: static, name: "calls", desc: "()Ljava/lang/Integer;", maxStack: 1, maxLocals: 0,
		build: func(b *classfile.Builder) *classfile.CodeBuilder {
			cb := classfile.NewCodeBuilder().Ldc(b.String("x"))
			length = cb.Offset()
			cb.Short(classfile.OpInvokevirtual, int(b.Methodref("java/lang/String", "length", "()I"))).
				Op(classfile.OpPop, classfile.OpIconst1)
			valueOf = cb.Offset()
			return cb.Short(classfile.OpInvokestatic, int(b.Methodref("java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;"))).
				Op(classfile.OpAreturn)
		},
	}, WithSideEffects(keep.DefaultSideEffectTable()))

	assert.Equal(t, []int{length}, res.RemovableInvocations)
	assert.NotContains(t, res.RemovableInvocations, valueOf, "its result is returned")
	assert.Equal(t, []int{length + 3}, res.Consumers[length])
}

func TestEvaluate_ExceptionHandler(t *testing.T) {
	res := evaluate(t, method{
		flags: static, name: "guarded", desc: "()I", maxStack: 1, maxLocals: 2,
		build: func(*classfile.Builder) *classfile.CodeBuilder {
			return classfile.NewCodeBuilder().Op(
				classfile.OpIconst0, classfile.OpIstore0, // 0, 1
				classfile.OpIconst1, classfile.OpIstore0, // 2, 3: protected
				classfile.OpIload0, classfile.OpIreturn, // 4, 5
				classfile.OpAstore1, classfile.OpIload0, classfile.OpIreturn) // 6, 7, 8: handler
		},
		handlers: []classfile.ExceptionHandler{{StartPC: 2, EndPC: 4, HandlerPC: 6}},
	})

	assert.Empty(t, res.Unreachable)
	assert.Equal(t, []int{1, 3}, res.LoadSources[7].Slice(), "the handler sees the locals before and after the store")
	assert.Equal(t, []int{3}, res.LoadSources[4].Slice())
	assert.Equal(t, []int{6}, res.DeadStores, "the caught exception is never read")
	assert.Equal(t, Generic(KindInteger), res.Frames[7].Locals.Value(0))
	assert.Equal(t, Int(1), res.Constants[4])

	handler := res.Frames[6]
	require.Equal(t, 1, handler.Stack.Size())
	assert.Equal(t, Object("Ljava/lang/Throwable;"), handler.Stack.Peek(0).Value)
}

func TestEvaluate_Subroutine(t *testing.T) {
	res := evaluate(t, method{
		flags: static, name: "finally", desc: "()V", maxStack: 1, maxLocals: 1,
		build: func(*classfile.Builder) *classfile.CodeBuilder {
			cb := classfile.NewCodeBuilder()
			sub := cb.NewLabel()
			cb.Jump(classfile.OpJsr, sub).Op(classfile.OpReturn) // 0, 3
			return cb.Mark(sub).Op(classfile.OpAstore0).Byte(classfile.OpRet, 0) // 4, 5
		},
	})

	assert.Empty(t, res.Unreachable)
	assert.Empty(t, res.DeadStores)
	assert.Equal(t, []int{4}, res.LoadSources[5].Slice())
	addr, ok := res.Frames[5].Locals.Value(0).Address()
	require.True(t, ok)
	assert.Equal(t, 3, addr)
}

func TestEvaluate_DecidedSwitch(t *testing.T) {
	var a, b, d int
	res := evaluate(t, method{
		flags: static, name: "sw", desc: "()I", maxStack: 1, maxLocals: 0,
		build: func(*classfile.Builder) *classfile.CodeBuilder {
			cb := classfile.NewCodeBuilder()
			la, lb, ld := cb.NewLabel(), cb.NewLabel(), cb.NewLabel()
			cb.Op(classfile.OpIconst1).TableSwitch(0, ld, la, lb)
			a = cb.Offset()
			cb.Mark(la).Op(classfile.OpIconst0, classfile.OpIreturn)
			b = cb.Offset()
			cb.Mark(lb).Op(classfile.OpIconst1, classfile.OpIreturn)
			d = cb.Offset()
			return cb.Mark(ld).Op(classfile.OpIconstM1, classfile.OpIreturn)
		},
	})

	assert.Equal(t, b, res.SwitchTargets[1])
	assert.Equal(t, []int{a, a + 1, d, d + 1}, res.Unreachable)
}

func TestEvaluate_WideValues(t *testing.T) {
	res := evaluate(t, method{
		flags: static, name: "twice", desc: "()J", maxStack: 4, maxLocals: 2,
		build: func(*classfile.Builder) *classfile.CodeBuilder {
			return classfile.NewCodeBuilder().Op(
				classfile.OpLconst1, classfile.OpDup2, classfile.OpLadd, // 0, 1, 2
				classfile.OpLstore0, classfile.OpLload0, classfile.OpLreturn) // 3, 4, 5
		},
	})

	assert.Equal(t, Long(2), res.Constants[2])
	assert.Equal(t, Long(2), res.Constants[4])
	assert.Equal(t, Top(), res.Frames[4].Locals.Value(1), "the second half of a long is unusable")
	assert.Equal(t, []int{2}, res.Consumers[0], "dup2 passes its operand through")
}

func TestEvaluate_ConstantField(t *testing.T) {
	consts := classfile.NewBuilder("app/K", "java/lang/Object", classfile.AccPublic)
	consts.AddField(static|classfile.AccFinal, "SIZE", "I", &classfile.ConstantValueAttribute{
		Header:     classfile.Header{Name: consts.Utf8("ConstantValue")},
		ValueIndex: consts.Integer(42),
	})
	consts.AddField(static, "mutable", "I")

	p, c, m := method{
		flags: static, name: "size", desc: "()I", maxStack: 2, maxLocals: 0,
		build: func(b *classfile.Builder) *classfile.CodeBuilder {
			return classfile.NewCodeBuilder().
				Short(classfile.OpGetstatic, int(b.Fieldref("app/K", "SIZE", "I"))). // 0
				Short(classfile.OpGetstatic, int(b.Fieldref("app/K", "mutable", "I"))). // 3
				Op(classfile.OpIadd, classfile.OpIreturn)
		},
	}.compile(t, consts.Build())
	res, err := NewEvaluator(p).Evaluate(c, m)
	require.NoError(t, err)

	assert.Equal(t, Int(42), res.Constants[0])
	assert.NotContains(t, res.Constants, 3)
	assert.NotContains(t, res.Constants, 6)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		m      method
		offset int
		want   error
	}{
		{
			name: "category mismatch",
			m: method{
				flags: static, name: "bad", desc: "()V", maxStack: 2, maxLocals: 0,
				build: func(*classfile.Builder) *classfile.CodeBuilder {
					return classfile.NewCodeBuilder().Op(classfile.OpIconst0, classfile.OpLneg, classfile.OpPop2, classfile.OpReturn)
				},
			},
			offset: 1,
			want:   classfile.ErrInternalConsistency,
		},
		{
			name: "split long",
			m: method{
				flags: static, name: "bad", desc: "()V", maxStack: 2, maxLocals: 0,
				build: func(*classfile.Builder) *classfile.CodeBuilder {
					return classfile.NewCodeBuilder().Op(classfile.OpLconst0, classfile.OpPop, classfile.OpReturn)
				},
			},
			offset: 1,
			want:   classfile.ErrInternalConsistency,
		},
		{
			name: "uninitialized local",
			m: method{
				flags: static, name: "bad", desc: "()I", maxStack: 1, maxLocals: 1,
				build: func(*classfile.Builder) *classfile.CodeBuilder {
					return classfile.NewCodeBuilder().Op(classfile.OpIload0, classfile.OpIreturn)
				},
			},
			offset: 0,
			want:   classfile.ErrInternalConsistency,
		},
		{
			name: "falls off the end",
			m: method{
				flags: static, name: "bad", desc: "()V", maxStack: 1, maxLocals: 0,
				build: func(*classfile.Builder) *classfile.CodeBuilder {
					return classfile.NewCodeBuilder().Op(classfile.OpIconst0, classfile.OpPop)
				},
			},
			offset: 1,
			want:   classfile.ErrInternalConsistency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, c, m := tt.m.compile(t)
			_, err := NewEvaluator(p).Evaluate(c, m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
			var ce *classfile.Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "app/M", ce.Class)
			assert.Equal(t, tt.m.name+tt.m.desc, ce.Member)
			assert.Equal(t, tt.offset, ce.Offset)
		})
	}
}

func TestEvaluate_NoCode(t *testing.T) {
	b := classfile.NewBuilder("app/A", "", classfile.AccPublic|classfile.AccAbstract)
	m := b.AddMethod(classfile.AccPublic|classfile.AccAbstract, "run", "()V", nil)
	c := b.Build()
	p, err := classfile.NewProgramOf(c)
	require.NoError(t, err)

	_, err = NewEvaluator(p).Evaluate(c, m)
	assert.True(t, errors.Is(err, ErrNoCode))
}
