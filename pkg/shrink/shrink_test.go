package shrink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/keep"
	"github.com/l3aro/go-class-shrink/pkg/usage"
)

const pub = classfile.AccPublic

// twoClasses builds class A with an unused private field x and its private
// accessor, a public method f printing a constant, and an unused class B.
func twoClasses(t *testing.T) *classfile.Program {
	t.Helper()
	object := classfile.NewBuilder("java/lang/Object", "", pub).Library()
	object.AddMethod(pub, "<init>", "()V", nil)
	system := classfile.NewBuilder("java/lang/System", "java/lang/Object", pub|classfile.AccFinal).Library()
	system.AddField(pub|classfile.AccStatic|classfile.AccFinal, "out", "Ljava/io/PrintStream;")
	stream := classfile.NewBuilder("java/io/PrintStream", "java/lang/Object", pub).Library()
	stream.AddMethod(pub, "println", "(Ljava/lang/String;)V", nil)

	a := classfile.NewBuilder("A", "java/lang/Object", pub|classfile.AccSuper)
	a.AddField(classfile.AccPrivate, "x", "I")
	init := classfile.NewCodeBuilder().
		Op(classfile.OpAload0).
		Short(classfile.OpInvokespecial, int(a.Methodref("java/lang/Object", "<init>", "()V"))).
		Op(classfile.OpReturn)
	a.AddMethod(pub, "<init>", "()V", a.Code(1, 1, init.MustBytes()))
	f := classfile.NewCodeBuilder().
		Short(classfile.OpGetstatic, int(a.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;"))).
		Ldc(a.String("hi")).
		Short(classfile.OpInvokevirtual, int(a.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V"))).
		Short(classfile.OpLdc2W, int(a.Long(1234567890123))).
		Op(classfile.OpPop2, classfile.OpReturn)
	a.AddMethod(pub, "f", "()V", a.Code(2, 1, f.MustBytes()))
	getX := classfile.NewCodeBuilder().
		Op(classfile.OpAload0).
		Short(classfile.OpGetfield, int(a.Fieldref("A", "x", "I"))).
		Op(classfile.OpIreturn)
	a.AddMethod(classfile.AccPrivate, "getX", "()I", a.Code(1, 1, getX.MustBytes()))
	a.AddAttribute(a.SourceFile("A.java"))

	b := classfile.NewBuilder("B", "java/lang/Object", pub)
	b.AddMethod(pub|classfile.AccStatic, "unused", "()V", nil)

	p, err := classfile.NewProgramOf(object.Build(), system.Build(), stream.Build(), a.Build(), b.Build())
	require.NoError(t, err)
	return p
}

func markAll(t *testing.T, p *classfile.Program, rules string) *usage.Marks {
	t.Helper()
	marks, err := usage.NewMarker(p, keep.MustParse(rules)).Run()
	require.NoError(t, err)
	return marks
}

func hasUtf8(pool classfile.ConstantPool, s string) bool {
	for _, k := range pool {
		if u, ok := k.(*classfile.Utf8Constant); ok && u.Value == s {
			return true
		}
	}
	return false
}

func TestCompact_EndToEnd(t *testing.T) {
	p := twoClasses(t)
	orig := p.Class(p.Lookup("A"))
	origBytes, err := orig.Bytes()
	require.NoError(t, err)

	marks := markAll(t, p, "keep class A { public *; }")
	out, stats, err := Compact(p, marks)
	require.NoError(t, err)

	assert.Equal(t, classfile.NoClass, out.Lookup("B"))
	require.NotEqual(t, classfile.NoClass, out.Lookup("A"))
	assert.NotEqual(t, classfile.NoClass, out.Lookup("java/lang/System"), "library classes pass through")
	a := out.Class(out.Lookup("A"))

	assert.Nil(t, a.FindField("x", "I"))
	assert.Nil(t, a.FindMethod("getX", "()I"))
	require.NotNil(t, a.FindMethod("f", "()V"))
	require.NotNil(t, a.FindMethod("<init>", "()V"))
	assert.False(t, hasUtf8(a.Pool, "x"))
	assert.False(t, hasUtf8(a.Pool, "getX"))
	assert.False(t, hasUtf8(a.Pool, "SourceFile"))
	assert.True(t, hasUtf8(a.Pool, "hi"))
	assert.Empty(t, a.Attributes)

	// every operand of f still names the same entry
	before, err := orig.FindMethod("f", "()V").Code().Instructions()
	require.NoError(t, err)
	after, err := a.FindMethod("f", "()V").Code().Instructions()
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		if before[i].Shape() == classfile.ShapeConstant {
			assert.Equal(t, orig.Pool.Describe(before[i].Index), a.Pool.Describe(after[i].Index), "offset %d", before[i].Offset)
		}
	}

	used, wide := 0, 0
	for i, k := range orig.Pool {
		if k != nil && marks.IsConstantUsed(orig.ID(), uint16(i)) {
			used++
			if k.Tag().Wide() {
				wide++
			}
		}
	}
	assert.Equal(t, used+wide, len(a.Pool)-1)

	assert.Equal(t, Count{Before: 2, After: 1}, stats.Classes)
	assert.Equal(t, Count{Before: 1, After: 0}, stats.Fields)
	assert.Equal(t, Count{Before: 3, After: 2}, stats.Methods, "methods of removed classes are not counted")
	assert.Equal(t, len(orig.Pool)-len(a.Pool), stats.Constants.Removed())

	data, err := a.Bytes()
	require.NoError(t, err)
	assert.Less(t, len(data), len(origBytes))
	assert.Equal(t, origBytes[:4], data[:4])
	parsed, err := classfile.Parse(data, false)
	require.NoError(t, err)
	require.NoError(t, classfile.Validate(parsed))
	assert.Equal(t, "A", parsed.Name())

	assert.NotNil(t, p.Class(p.Lookup("A")).FindField("x", "I"), "the input program is left alone")
}

func TestCompact_KeepsOptionalAttributesWhenMarked(t *testing.T) {
	p := twoClasses(t)
	marks, err := usage.NewMarker(p, keep.MustParse("keep class A"), usage.WithKeepAttributes("SourceFile")).Run()
	require.NoError(t, err)

	out, _, err := Compact(p, marks)
	require.NoError(t, err)
	a := out.Class(out.Lookup("A"))
	require.Len(t, a.Attributes, 1)
	src, ok := a.Attributes[0].(*classfile.IndexAttribute)
	require.True(t, ok)
	assert.Equal(t, "A.java", a.Pool.Str(src.Index))
	assert.Equal(t, "SourceFile", a.Pool.Str(src.NameIndex()))
}

func TestCompact_UnmarkedReference(t *testing.T) {
	p := twoClasses(t)
	marks := markAll(t, p, "keep class A { public *; }")

	// Point the ldc in f at the unmarked name of x, as if the marker had
	// missed an edge.
	a := p.Class(p.Lookup("A"))
	x := a.FindField("x", "I")
	code := a.FindMethod("f", "()V").Code()
	instructions, err := code.Instructions()
	require.NoError(t, err)
	ldc := instructions[1]
	require.Equal(t, classfile.OpLdc, ldc.Opcode)
	require.NoError(t, classfile.SetConstantIndex(code.Code, ldc, x.NameIndex))

	_, _, err = Compact(p, marks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, classfile.ErrInternalConsistency))
	var ce *classfile.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "A", ce.Class)
	assert.Equal(t, "f()V", ce.Member)
	assert.Equal(t, ldc.Offset, ce.Offset)
}

func TestRemap(t *testing.T) {
	c := &classfile.Class{Pool: classfile.ConstantPool{
		nil,
		&classfile.Utf8Constant{Value: "a"},
		&classfile.LongConstant{Value: 1},
		nil,
		&classfile.Utf8Constant{Value: "b"},
		&classfile.DoubleConstant{},
		nil,
		&classfile.IntegerConstant{Value: 7},
	}}
	marks := usage.NewMarks()
	for _, idx := range []uint16{1, 2, 7} {
		marks.SetConstant(c.ID(), idx, usage.Used)
	}

	r := NewRemap(c, marks)
	assert.Equal(t, 5, r.Len())
	tests := []struct {
		old  uint16
		want uint16
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{7, 4},
	}
	for _, tt := range tests {
		got, err := r.Index(tt.old)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "index %d", tt.old)
	}
	for _, old := range []uint16{3, 4, 5, 8} {
		_, err := r.Index(old)
		assert.True(t, errors.Is(err, classfile.ErrInternalConsistency), "index %d", old)
	}

	pool, err := r.Pool(func(row uint16) (uint16, error) { return row, nil })
	require.NoError(t, err)
	require.Len(t, pool, 5)
	assert.Nil(t, pool[3], "placeholder follows the surviving long")
	assert.Equal(t, &classfile.IntegerConstant{Value: 7}, pool[4])
	assert.NotSame(t, c.Pool[7], pool[4])
}

func TestCompact_BootstrapRows(t *testing.T) {
	object := classfile.NewBuilder("java/lang/Object", "", pub).Library()
	main := classfile.NewBuilder("app/Main", "java/lang/Object", pub)
	handle := main.MethodHandle(classfile.RefInvokeStatic, main.Methodref("app/Main", "bootstrap",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;"))
	main.InvokeDynamic(0, "dead", "()V")
	live := main.InvokeDynamic(1, "live", "()V")
	code := classfile.NewCodeBuilder().Invokedynamic(live).Op(classfile.OpReturn)
	main.AddMethod(pub|classfile.AccStatic, "run", "()V", main.Code(0, 0, code.MustBytes()))
	main.AddMethod(pub|classfile.AccStatic, "bootstrap",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;", nil)
	main.AddAttribute(&classfile.BootstrapMethodsAttribute{
		Header: classfile.Header{Name: main.Utf8("BootstrapMethods")},
		Methods: []classfile.BootstrapMethod{
			{MethodRef: handle, Arguments: []uint16{main.MethodType("()V")}},
			{MethodRef: handle, Arguments: []uint16{main.String("live")}},
		},
	})
	p, err := classfile.NewProgramOf(object.Build(), main.Build())
	require.NoError(t, err)

	marks := markAll(t, p, "keep class app.Main { static void run(); }")
	out, _, err := Compact(p, marks)
	require.NoError(t, err)

	c := out.Class(out.Lookup("app/Main"))
	bm, ok := c.Attribute(classfile.AttrBootstrapMethods).(*classfile.BootstrapMethodsAttribute)
	require.True(t, ok)
	require.Len(t, bm.Methods, 1)
	assert.Equal(t, `string "live"`, c.Pool.Describe(bm.Methods[0].Arguments[0]))

	instructions, err := c.FindMethod("run", "()V").Code().Instructions()
	require.NoError(t, err)
	indy, ok := c.Pool[instructions[0].Index].(*classfile.DynamicConstant)
	require.True(t, ok)
	assert.Equal(t, uint16(0), indy.BootstrapMethodAttrIndex)
	assert.NotNil(t, c.FindMethod("bootstrap", "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;"),
		"the bootstrap method is referenced through its handle")
}

// recordClass builds class A whose unused field pad comes before method f in
// the pool, and a Record attribute whose body holds the pool index of "f".
func recordClass(t *testing.T) (*classfile.Program, classfile.Attribute) {
	t.Helper()
	object := classfile.NewBuilder("java/lang/Object", "", pub).Library()
	a := classfile.NewBuilder("A", "java/lang/Object", pub)
	a.AddField(classfile.AccPrivate, "pad", "J")
	a.AddMethod(pub, "f", "()V", a.Code(0, 1, classfile.NewCodeBuilder().Op(classfile.OpReturn).MustBytes()))
	idx := a.Utf8("f")
	record := a.Raw("Record", []byte{byte(idx >> 8), byte(idx)})
	a.AddAttribute(record)
	p, err := classfile.NewProgramOf(object.Build(), a.Build())
	require.NoError(t, err)
	return p, record
}

func TestCompact_DropsUnknownAttributes(t *testing.T) {
	p, record := recordClass(t)
	marks, err := usage.NewMarker(p, keep.MustParse("keep class A { public void f(); }"), usage.WithKeepAttributes("*")).Run()
	require.NoError(t, err)
	assert.Equal(t, usage.Unused, marks.Attribute(record))

	out, _, err := Compact(p, marks)
	require.NoError(t, err)
	a := out.Class(out.Lookup("A"))
	for _, attr := range a.Attributes {
		assert.NotEqual(t, "Record", a.Pool.Str(attr.NameIndex()))
	}
	assert.Nil(t, a.FindField("pad", "J"))
	assert.False(t, hasUtf8(a.Pool, "Record"))
}

func TestCompact_KeptUnknownAttribute(t *testing.T) {
	p, record := recordClass(t)
	marks := markAll(t, p, "keep class A { public void f(); }")
	marks.SetAttribute(record, usage.Used)

	_, _, err := Compact(p, marks)
	require.Error(t, err)
	assert.True(t, errors.Is(err, classfile.ErrInternalConsistency))
	var ce *classfile.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "A", ce.Class)
	assert.Contains(t, ce.Error(), "Record")
}
