package dfg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/evaluation"
)

const static = classfile.AccPublic | classfile.AccStatic

type method struct {
	desc      string
	maxStack  uint16
	maxLocals uint16
	build     func() *classfile.CodeBuilder
	handlers  []classfile.ExceptionHandler
}

func (m method) compile(t *testing.T) (*classfile.Program, *classfile.Class, *classfile.Member) {
	t.Helper()
	object := classfile.NewBuilder("java/lang/Object", "", classfile.AccPublic).Library().Build()
	b := classfile.NewBuilder("app/M", "java/lang/Object", classfile.AccPublic)
	member := b.AddMethod(static, "m", m.desc, b.Code(m.maxStack, m.maxLocals, m.build().MustBytes(), m.handlers...))
	c := b.Build()
	p, err := classfile.NewProgramOf(object, c)
	require.NoError(t, err)
	return p, c, member
}

func branchy() method {
	return method{desc: "(I)I", maxStack: 1, maxLocals: 2, build: func() *classfile.CodeBuilder {
		cb := classfile.NewCodeBuilder()
		zero, end := cb.NewLabel(), cb.NewLabel()
		cb.Op(classfile.OpIload0).Jump(classfile.OpIfeq, zero)
		cb.Op(classfile.OpIconst1, classfile.OpIstore1)
		cb.Jump(classfile.OpGoto, end)
		cb.Mark(zero).Op(classfile.OpIconst2, classfile.OpIstore1)
		cb.Mark(end).Op(classfile.OpIload1, classfile.OpIreturn)
		return cb
	}}
}

func loop() method {
	return method{desc: "()V", maxStack: 2, maxLocals: 1, build: func() *classfile.CodeBuilder {
		cb := classfile.NewCodeBuilder()
		cond, end := cb.NewLabel(), cb.NewLabel()
		cb.Op(classfile.OpIconst0, classfile.OpIstore0)
		cb.Mark(cond).Op(classfile.OpIload0).Byte(classfile.OpBipush, 10).Jump(classfile.OpIfIcmpge, end)
		cb.Iinc(0, 1).Jump(classfile.OpGoto, cond)
		cb.Mark(end).Op(classfile.OpReturn)
		return cb
	}}
}

func guarded() method {
	return method{
		desc: "()I", maxStack: 1, maxLocals: 1,
		build: func() *classfile.CodeBuilder {
			return classfile.NewCodeBuilder().Op(
				classfile.OpIconst1, classfile.OpIstore0, // 0, 1
				classfile.OpIconst2, classfile.OpIstore0, // 2, 3: protected
				classfile.OpIload0, classfile.OpIreturn, // 4, 5
				classfile.OpPop, classfile.OpIload0, classfile.OpIreturn, // 6, 7, 8: handler
			)
		},
		handlers: []classfile.ExceptionHandler{{StartPC: 2, EndPC: 4, HandlerPC: 6}},
	}
}

type link struct{ def, use int }

func links(edges []DataflowEdge) []link {
	var out []link
	for _, e := range edges {
		out = append(out, link{e.DefRef.Offset, e.UseRef.Offset})
	}
	return out
}

func TestBuild_DefUseChains(t *testing.T) {
	tests := []struct {
		name   string
		method method
		want   []link
	}{
		{"branch merge", branchy(), []link{{-1, 0}, {5, 11}, {10, 11}}},
		{"loop with iinc", loop(), []link{{1, 2}, {8, 2}, {1, 8}, {8, 8}}},
		{"exception handler sees every definition of the range", guarded(), []link{{3, 4}, {1, 7}, {3, 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c, m := tt.method.compile(t)
			info, err := Build(c, m)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, links(info.DataflowEdges), cmp.AllowUnexported(link{})); diff != "" {
				t.Errorf("def-use mismatch (-want +got):\n%s", diff)
			}
			for _, e := range info.DataflowEdges {
				assert.Equal(t, e.DefRef.Name, e.VarName)
				assert.Equal(t, RefTypeUse, e.UseRef.RefType)
			}
		})
	}
}

func TestFromResult_AgreesWithReachingDefinitions(t *testing.T) {
	for name, m := range map[string]method{"branchy": branchy(), "loop": loop(), "guarded": guarded()} {
		t.Run(name, func(t *testing.T) {
			p, c, member := m.compile(t)
			reaching, err := Build(c, member)
			require.NoError(t, err)
			res, err := evaluation.NewEvaluator(p).Evaluate(c, member)
			require.NoError(t, err)
			traced := FromResult(res)

			if diff := cmp.Diff(reaching.DataflowEdges, traced.DataflowEdges); diff != "" {
				t.Errorf("edges differ (-reaching +traced):\n%s", diff)
			}
			if diff := cmp.Diff(reaching.VarRefs, traced.VarRefs); diff != "" {
				t.Errorf("refs differ (-reaching +traced):\n%s", diff)
			}
			assert.Equal(t, res.Webs, traced.Webs)
		})
	}
}

func TestRefs_Iinc(t *testing.T) {
	_, c, m := loop().compile(t)
	refs, err := Refs(c, m)
	require.NoError(t, err)
	assert.Equal(t, []VarRef{
		{Name: "local0", RefType: RefTypeDefinition, Offset: 1, Slot: 0},
		{Name: "local0", RefType: RefTypeUse, Offset: 2, Slot: 0},
		{Name: "local0", RefType: RefTypeUse, Offset: 8, Slot: 0},
		{Name: "local0", RefType: RefTypeUpdate, Offset: 8, Slot: 0},
	}, refs)
}

func TestDeadDefinitions(t *testing.T) {
	m := method{desc: "(J)I", maxStack: 1, maxLocals: 3, build: func() *classfile.CodeBuilder {
		return classfile.NewCodeBuilder().Op(
			classfile.OpIconst5, classfile.OpIstore2, // 0, 1: overwritten
			classfile.OpIconst3, classfile.OpIstore2, // 2, 3
			classfile.OpIload2, classfile.OpIreturn,
		)
	}}
	p, c, member := m.compile(t)
	res, err := evaluation.NewEvaluator(p).Evaluate(c, member)
	require.NoError(t, err)
	info := FromResult(res)

	var offsets []int
	for _, d := range DeadDefinitions(info) {
		offsets = append(offsets, d.Offset)
	}
	assert.Equal(t, []int{evaluation.ParameterOffset(0), 1}, offsets)
	assert.Equal(t, []int{1}, res.DeadStores)
	assert.Len(t, info.Variables["local2"], 3)
	assert.Equal(t, 0, info.VarRefs[0].Slot, "the long parameter occupies slots 0 and 1")
}
