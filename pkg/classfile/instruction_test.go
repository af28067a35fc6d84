package classfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInstruction_Operands(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		offset int
		want   Instruction
	}{
		{
			name: "implicit local",
			code: []byte{byte(OpIload3)},
			want: Instruction{Opcode: OpIload3, Length: 1, Local: 3},
		},
		{
			name: "astore_0 implicit local",
			code: []byte{byte(OpAstore0)},
			want: Instruction{Opcode: OpAstore0, Length: 1, Local: 0},
		},
		{
			name: "bipush sign extends",
			code: []byte{byte(OpBipush), 0xfb},
			want: Instruction{Opcode: OpBipush, Length: 2, Local: -1, Literal: -5},
		},
		{
			name: "sipush",
			code: []byte{byte(OpSipush), 0x80, 0x00},
			want: Instruction{Opcode: OpSipush, Length: 3, Local: -1, Literal: -32768},
		},
		{
			name: "ldc",
			code: []byte{byte(OpLdc), 0xfe},
			want: Instruction{Opcode: OpLdc, Length: 2, Local: -1, Index: 254},
		},
		{
			name: "wide iload",
			code: []byte{byte(OpWide), byte(OpIload), 0x01, 0x00},
			want: Instruction{Opcode: OpIload, Wide: true, Length: 4, Local: 256},
		},
		{
			name: "wide iinc",
			code: []byte{byte(OpWide), byte(OpIinc), 0x00, 0x05, 0xff, 0x00},
			want: Instruction{Opcode: OpIinc, Wide: true, Length: 6, Local: 5, Literal: -256},
		},
		{
			name: "iinc",
			code: []byte{byte(OpIinc), 2, 0xff},
			want: Instruction{Opcode: OpIinc, Length: 3, Local: 2, Literal: -1},
		},
		{
			name: "invokeinterface count",
			code: []byte{byte(OpInvokeinterface), 0, 9, 2, 0},
			want: Instruction{Opcode: OpInvokeinterface, Length: 5, Local: -1, Index: 9, Literal: 2},
		},
		{
			name: "multianewarray dimensions",
			code: []byte{byte(OpMultianewarray), 0, 4, 3},
			want: Instruction{Opcode: OpMultianewarray, Length: 4, Local: -1, Index: 4, Literal: 3},
		},
		{
			name:   "backward goto",
			code:   []byte{byte(OpNop), byte(OpGoto), 0xff, 0xff},
			offset: 1,
			want:   Instruction{Offset: 1, Opcode: OpGoto, Length: 3, Local: -1, Branch: -1},
		},
		{
			name: "goto_w",
			code: []byte{byte(OpGotoW), 0, 1, 0, 0},
			want: Instruction{Opcode: OpGotoW, Length: 5, Local: -1, Branch: 65536},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins, err := DecodeInstruction(tt.code, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *ins)
		})
	}
}

func TestDecodeInstruction_SwitchPadding(t *testing.T) {
	// The padding before the 4-byte aligned operands depends only on the
	// offset of the opcode.
	for lead := 0; lead < 4; lead++ {
		cb := NewCodeBuilder()
		for i := 0; i < lead; i++ {
			cb.Op(OpNop)
		}
		a, b, def := cb.NewLabel(), cb.NewLabel(), cb.NewLabel()
		cb.TableSwitch(5, def, a, b)
		cb.Mark(a).Op(OpReturn)
		cb.Mark(b).Op(OpReturn)
		cb.Mark(def).Op(OpReturn)
		code := cb.MustBytes()

		ins, err := DecodeInstruction(code, lead)
		require.NoError(t, err)
		pad := (4 - (lead+1)%4) % 4
		assert.Equal(t, 1+pad+12+8, ins.Length, "lead %d", lead)
		assert.Equal(t, int32(5), ins.Switch.Low)
		assert.Equal(t, int32(6), ins.Switch.High)
		end := lead + ins.Length
		assert.Equal(t, []int{end + 2, end, end + 1}, ins.Targets())
		assert.Equal(t, end+1, ins.SwitchTarget(6))
		assert.Equal(t, end+2, ins.SwitchTarget(99))

		all, err := DecodeCode(code)
		require.NoError(t, err)
		assert.Len(t, all, lead+4)
	}
}

func TestDecodeInstruction_LookupSwitch(t *testing.T) {
	cb := NewCodeBuilder()
	x, y, def := cb.NewLabel(), cb.NewLabel(), cb.NewLabel()
	cb.Op(OpIload0).LookupSwitch(def, []int32{-1, 40}, []*Label{x, y})
	cb.Mark(x).Op(OpReturn)
	cb.Mark(y).Op(OpReturn)
	cb.Mark(def).Op(OpReturn)
	code := cb.MustBytes()

	ins, err := DecodeInstruction(code, 1)
	require.NoError(t, err)
	assert.Equal(t, ShapeLookupSwitch, ins.Shape())
	assert.Equal(t, []int32{-1, 40}, ins.Switch.Keys)
	assert.Equal(t, x.offset, ins.SwitchTarget(-1))
	assert.Equal(t, y.offset, ins.SwitchTarget(40))
	assert.Equal(t, def.offset, ins.SwitchTarget(0))
	assert.Contains(t, ins.String(), "lookupswitch default:")
}

func TestDecodeInstruction_Errors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"wide on non-local", []byte{byte(OpWide), byte(OpNop), 0, 0}},
		{"truncated wide iinc", []byte{byte(OpWide), byte(OpIinc), 0, 1}},
		{"tableswitch high below low", []byte{byte(OpTableswitch), 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 1}},
		{"lookupswitch negative count", []byte{byte(OpLookupswitch), 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}},
		{"unknown opcode", []byte{0xe0}},
		{"truncated branch", []byte{byte(OpGoto), 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInstruction(tt.code, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedInput))
		})
	}

	_, err := DecodeInstruction([]byte{byte(OpNop)}, 1)
	assert.Error(t, err, "offset past the end")
}

func TestDecodeCode_BranchMustLandOnBoundary(t *testing.T) {
	_, err := DecodeCode([]byte{byte(OpGoto), 0, 2, byte(OpReturn)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an instruction boundary")

	_, err = DecodeCode([]byte{byte(OpGoto), 0, 3, byte(OpReturn)})
	assert.NoError(t, err)
}

func TestSetConstantIndex(t *testing.T) {
	code := []byte{byte(OpLdc), 9, byte(OpGetstatic), 0x01, 0x02, byte(OpReturn)}
	all, err := DecodeCode(code)
	require.NoError(t, err)

	require.NoError(t, SetConstantIndex(code, all[0], 4))
	require.NoError(t, SetConstantIndex(code, all[1], 0x0203))
	assert.Equal(t, []byte{byte(OpLdc), 4, byte(OpGetstatic), 0x02, 0x03, byte(OpReturn)}, code)
	assert.Equal(t, uint16(0x0203), all[1].Index)

	assert.Error(t, SetConstantIndex(code, all[0], 300), "ldc cannot address a wide index")
	assert.Error(t, SetConstantIndex(code, all[2], 1), "return has no operand")
}

func TestFindInstruction(t *testing.T) {
	all, err := DecodeCode([]byte{byte(OpIconst1), byte(OpBipush), 3, byte(OpIadd), byte(OpIreturn)})
	require.NoError(t, err)
	assert.Equal(t, OpIadd, FindInstruction(all, 3).Opcode)
	assert.Nil(t, FindInstruction(all, 2))
	assert.Len(t, IndexByOffset(all), 4)
}

func TestOpcode_Classification(t *testing.T) {
	assert.True(t, OpIfeq.IsConditional())
	assert.True(t, OpIfnonnull.IsConditional())
	assert.False(t, OpGoto.IsConditional())
	assert.True(t, OpGoto.IsUnconditional())
	assert.True(t, OpAthrow.IsUnconditional())
	assert.True(t, OpLreturn.IsReturn())
	assert.True(t, OpInvokedynamic.IsInvoke())
	assert.True(t, OpAload2.IsLoad())
	assert.True(t, OpDstore.IsStore())
	assert.Equal(t, "invokeinterface", OpInvokeinterface.String())
	assert.False(t, Opcode(0xe0).Known())
}
