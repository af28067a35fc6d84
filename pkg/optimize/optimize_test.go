package optimize

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/keep"
	"github.com/l3aro/go-class-shrink/pkg/usage"
)

const pub = classfile.AccPublic

// program builds class A with a public method f that discards a call to
// String.length at offset 1 and stores a dead local at offset 6, a public
// method broken whose control falls off the end, and an unused private
// helper. Class B is never referenced.
func program(t *testing.T) *classfile.Program {
	t.Helper()
	object := classfile.NewBuilder("java/lang/Object", "", pub).Library()
	object.AddMethod(pub, "<init>", "()V", nil)
	str := classfile.NewBuilder("java/lang/String", "java/lang/Object", pub|classfile.AccFinal).Library()
	str.AddMethod(pub, "length", "()I", nil)

	a := classfile.NewBuilder("A", "java/lang/Object", pub|classfile.AccSuper)
	init := classfile.NewCodeBuilder().
		Op(classfile.OpAload0).
		Short(classfile.OpInvokespecial, int(a.Methodref("java/lang/Object", "<init>", "()V"))).
		Op(classfile.OpReturn)
	a.AddMethod(pub, "<init>", "()V", a.Code(1, 1, init.MustBytes()))
	f := classfile.NewCodeBuilder().
		Op(classfile.OpAload1).
		Short(classfile.OpInvokevirtual, int(a.Methodref("java/lang/String", "length", "()I"))).
		Op(classfile.OpPop).
		Op(classfile.OpIconst1, classfile.OpIstore2).
		Op(classfile.OpIconst2, classfile.OpIreturn)
	a.AddMethod(pub, "f", "(Ljava/lang/String;)I", a.Code(1, 3, f.MustBytes()))
	broken := classfile.NewCodeBuilder().Op(classfile.OpIconst0, classfile.OpPop)
	a.AddMethod(pub, "broken", "()V", a.Code(1, 1, broken.MustBytes()))
	helper := classfile.NewCodeBuilder().Op(classfile.OpReturn)
	a.AddMethod(classfile.AccPrivate, "helper", "()V", a.Code(0, 1, helper.MustBytes()))

	b := classfile.NewBuilder("B", "java/lang/Object", pub)
	b.AddMethod(pub|classfile.AccStatic, "unused", "()V", b.Code(0, 0, helper.MustBytes()))

	p, err := classfile.NewProgramOf(object.Build(), str.Build(), a.Build(), b.Build())
	require.NoError(t, err)
	return p
}

func TestOptimizer_Pipeline(t *testing.T) {
	p := program(t)
	out, err := New(keep.MustParse("keep class A { public *; }")).Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, classfile.NoClass, out.Program.Lookup("B"))
	a := out.Program.Class(out.Program.Lookup("A"))
	require.NotNil(t, a)
	assert.Nil(t, a.FindMethod("helper", "()V"))
	assert.Equal(t, 1, out.Stats.Classes.Removed())
	assert.Equal(t, 1, out.Stats.Methods.Removed())

	require.Len(t, out.Results, 2)
	assert.Equal(t, "<init>()V", out.Results[0].Method)
	f := out.Result("A", "f(Ljava/lang/String;)I")
	require.NotNil(t, f)
	assert.Equal(t, []int{1}, f.RemovableInvocations)
	assert.Equal(t, []int{6}, f.DeadStores)

	require.Len(t, out.Failures, 1)
	fail := out.Failures[0]
	assert.Equal(t, "A", fail.Class)
	assert.Equal(t, "broken()V", fail.Method)
	assert.True(t, errors.Is(fail, classfile.ErrInternalConsistency))
	var ce *classfile.Error
	require.True(t, errors.As(fail, &ce))
	assert.Equal(t, 1, ce.Offset)
}

func TestOptimizer_ParallelismDoesNotChangeResults(t *testing.T) {
	type fact struct {
		Method    string
		Dead      []int
		Removable []int
		Webs      int
	}
	facts := func(out *Output) []fact {
		var fs []fact
		for _, r := range out.Results {
			fs = append(fs, fact{r.Method, r.DeadStores, r.RemovableInvocations, len(r.Webs)})
		}
		return fs
	}

	specs := keep.MustParse("keep class A { public *; }")
	serial, err := New(specs, WithParallelism(1)).Run(context.Background(), program(t))
	require.NoError(t, err)
	parallel, err := New(specs, WithParallelism(8)).Run(context.Background(), program(t))
	require.NoError(t, err)

	if diff := cmp.Diff(facts(serial), facts(parallel)); diff != "" {
		t.Errorf("results differ (-serial +parallel):\n%s", diff)
	}
	assert.Len(t, parallel.Failures, len(serial.Failures))
}

func TestOptimizer_ReusedMarksAreCleared(t *testing.T) {
	p := program(t)
	marks := usage.NewMarks()

	wide, err := New(keep.MustParse("keep class A,B { *; }")).RunMarks(context.Background(), p, marks)
	require.NoError(t, err)
	assert.NotEqual(t, classfile.NoClass, wide.Program.Lookup("B"))

	narrow, err := New(keep.MustParse("keep class A { public *; }")).RunMarks(context.Background(), p, marks)
	require.NoError(t, err)
	assert.Equal(t, classfile.NoClass, narrow.Program.Lookup("B"))
	assert.False(t, marks.IsClassUsed(p.Lookup("B")))

	fresh, err := New(keep.MustParse("keep class A { public *; }")).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, fresh.Marks.Summary(), marks.Summary())
}

func TestOptimizer_WithoutEvaluation(t *testing.T) {
	out, err := New(keep.MustParse("keep class A { public *; }"), WithEvaluation(false)).
		Run(context.Background(), program(t))
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Failures)
	assert.NotEqual(t, classfile.NoClass, out.Program.Lookup("A"))
}

func TestOptimizer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(keep.MustParse("keep class A { public *; }")).Run(ctx, program(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizer_MarkerErrorAborts(t *testing.T) {
	a := classfile.NewBuilder("A", "java/lang/Object", pub)
	code := classfile.NewCodeBuilder().Short(classfile.OpGetstatic, 999).Op(classfile.OpPop, classfile.OpReturn)
	a.AddMethod(pub|classfile.AccStatic, "m", "()V", a.Code(1, 0, code.MustBytes()))
	object := classfile.NewBuilder("java/lang/Object", "", pub).Library()
	p, err := classfile.NewProgramOf(object.Build(), a.Build())
	require.NoError(t, err)

	_, err = New(keep.MustParse("keep class A { *; }")).Run(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, classfile.ErrInternalConsistency))
	assert.Contains(t, err.Error(), "marking")
}
