package classfile

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
)

// Instruction is one decoded instruction. Which operand fields are
// meaningful depends on Opcode.Shape.
type Instruction struct {
	Offset int
	Opcode Opcode
	Wide   bool
	Length int

	// Literal holds bipush/sipush values, the iinc increment, the newarray
	// type, the invokeinterface count and the multianewarray dimensions.
	Literal int32
	// Local is the local variable index, including the implicit index of
	// forms like iload_2, or -1.
	Local int
	// Index is the constant pool index for ShapeConstant instructions.
	Index uint16
	// Branch is the relative target of a branch instruction.
	Branch int32
	Switch *SwitchTable
}

// SwitchTable holds a tableswitch (Keys nil) or lookupswitch. Offsets are
// relative to the switch instruction.
type SwitchTable struct {
	Default int32
	Low     int32
	High    int32
	Keys    []int32
	Offsets []int32
}

// Shape returns the operand shape.
func (ins *Instruction) Shape() Shape { return ins.Opcode.Shape() }

// Target returns the absolute branch target.
func (ins *Instruction) Target() int { return ins.Offset + int(ins.Branch) }

// Next returns the offset of the following instruction.
func (ins *Instruction) Next() int { return ins.Offset + ins.Length }

// Targets returns every absolute jump target; for switches the default
// target comes first.
func (ins *Instruction) Targets() []int {
	switch ins.Shape() {
	case ShapeBranch:
		return []int{ins.Target()}
	case ShapeTableSwitch, ShapeLookupSwitch:
		out := make([]int, 0, len(ins.Switch.Offsets)+1)
		out = append(out, ins.Offset+int(ins.Switch.Default))
		for _, off := range ins.Switch.Offsets {
			out = append(out, ins.Offset+int(off))
		}
		return out
	}
	return nil
}

// SwitchTarget returns the absolute target taken for a known key.
func (ins *Instruction) SwitchTarget(key int32) int {
	s := ins.Switch
	if s.Keys == nil {
		if key >= s.Low && key <= s.High {
			return ins.Offset + int(s.Offsets[key-s.Low])
		}
		return ins.Offset + int(s.Default)
	}
	for i, k := range s.Keys {
		if k == key {
			return ins.Offset + int(s.Offsets[i])
		}
	}
	return ins.Offset + int(s.Default)
}

func (ins *Instruction) String() string {
	var sb strings.Builder
	if ins.Wide {
		sb.WriteString("wide ")
	}
	sb.WriteString(ins.Opcode.String())
	switch ins.Shape() {
	case ShapeLocal:
		fmt.Fprintf(&sb, " %d", ins.Local)
		if ins.Opcode == OpIinc {
			fmt.Fprintf(&sb, " %d", ins.Literal)
		}
	case ShapeLiteral:
		fmt.Fprintf(&sb, " %d", ins.Literal)
	case ShapeConstant:
		fmt.Fprintf(&sb, " #%d", ins.Index)
		if ins.Opcode == OpMultianewarray || ins.Opcode == OpInvokeinterface {
			fmt.Fprintf(&sb, " %d", ins.Literal)
		}
	case ShapeBranch:
		fmt.Fprintf(&sb, " %d", ins.Target())
	case ShapeTableSwitch, ShapeLookupSwitch:
		targets := ins.Targets()
		fmt.Fprintf(&sb, " default:%d", targets[0])
		for i, t := range targets[1:] {
			key := ins.Switch.Low + int32(i)
			if ins.Switch.Keys != nil {
				key = ins.Switch.Keys[i]
			}
			fmt.Fprintf(&sb, " %d:%d", key, t)
		}
	}
	return sb.String()
}

// implicitLocal maps the compact load/store forms to their slot.
func implicitLocal(op Opcode) int {
	switch {
	case op >= OpIload0 && op <= OpAload3:
		return int(op-OpIload0) % 4
	case op >= OpIstore0 && op <= OpAstore3:
		return int(op-OpIstore0) % 4
	}
	return -1
}

// DecodeInstruction decodes the instruction starting at offset. It depends
// only on the bytes of code.
func DecodeInstruction(code []byte, offset int) (*Instruction, error) {
	if offset < 0 || offset >= len(code) {
		return nil, malformed("instruction offset %d outside code of length %d", offset, len(code))
	}
	op := Opcode(code[offset])
	ins := &Instruction{Offset: offset, Opcode: op, Local: implicitLocal(op)}

	need := func(n int) error {
		if offset+n > len(code) {
			return malformed("truncated %s at offset %d", op, offset)
		}
		return nil
	}
	u1 := func(at int) int { return int(code[offset+at]) }
	u2 := func(at int) int { return int(binary.BigEndian.Uint16(code[offset+at:])) }
	s2 := func(at int) int32 { return int32(int16(binary.BigEndian.Uint16(code[offset+at:]))) }
	s4 := func(at int) int32 { return int32(binary.BigEndian.Uint32(code[offset+at:])) }

	switch op {
	case OpWide:
		if err := need(2); err != nil {
			return nil, err
		}
		inner := Opcode(code[offset+1])
		ins.Opcode = inner
		ins.Wide = true
		switch {
		case inner == OpIinc:
			if err := need(6); err != nil {
				return nil, err
			}
			ins.Local = u2(2)
			ins.Literal = s2(4)
			ins.Length = 6
		case inner.Shape() == ShapeLocal:
			if err := need(4); err != nil {
				return nil, err
			}
			ins.Local = u2(2)
			ins.Length = 4
		default:
			return nil, malformed("wide prefix on %s at offset %d", inner, offset)
		}
		return ins, nil

	case OpTableswitch, OpLookupswitch:
		pad := (4 - (offset+1)%4) % 4
		base := 1 + pad
		if err := need(base + 8); err != nil {
			return nil, err
		}
		table := &SwitchTable{Default: s4(base)}
		if op == OpTableswitch {
			if err := need(base + 12); err != nil {
				return nil, err
			}
			table.Low, table.High = s4(base+4), s4(base+8)
			if table.High < table.Low {
				return nil, malformed("tableswitch at offset %d has high %d < low %d", offset, table.High, table.Low)
			}
			n := int(int64(table.High) - int64(table.Low) + 1)
			if err := need(base + 12 + 4*n); err != nil {
				return nil, err
			}
			table.Offsets = make([]int32, n)
			for i := range table.Offsets {
				table.Offsets[i] = s4(base + 12 + 4*i)
			}
			ins.Length = base + 12 + 4*n
		} else {
			n := int(s4(base + 4))
			if n < 0 {
				return nil, malformed("lookupswitch at offset %d has negative pair count", offset)
			}
			if err := need(base + 8 + 8*n); err != nil {
				return nil, err
			}
			table.Keys = make([]int32, n)
			table.Offsets = make([]int32, n)
			for i := 0; i < n; i++ {
				table.Keys[i] = s4(base + 8 + 8*i)
				table.Offsets[i] = s4(base + 12 + 8*i)
			}
			ins.Length = base + 8 + 8*n
		}
		ins.Switch = table
		return ins, nil
	}

	info := opcodeTable[op]
	if !info.known {
		return nil, malformed("unknown opcode 0x%02x at offset %d", uint8(op), offset)
	}
	if err := need(info.length); err != nil {
		return nil, err
	}
	ins.Length = info.length

	switch info.shape {
	case ShapeLocal:
		ins.Local = u1(1)
		if op == OpIinc {
			ins.Literal = int32(int8(code[offset+2]))
		}
	case ShapeLiteral:
		switch op {
		case OpBipush:
			ins.Literal = int32(int8(code[offset+1]))
		case OpSipush:
			ins.Literal = s2(1)
		default:
			ins.Literal = int32(u1(1))
		}
	case ShapeConstant:
		if op == OpLdc {
			ins.Index = uint16(u1(1))
		} else {
			ins.Index = uint16(u2(1))
		}
		switch op {
		case OpInvokeinterface:
			ins.Literal = int32(u1(3))
		case OpMultianewarray:
			ins.Literal = int32(u1(3))
		}
	case ShapeBranch:
		if info.length == 5 {
			ins.Branch = s4(1)
		} else {
			ins.Branch = s2(1)
		}
	}
	return ins, nil
}

// DecodeCode decodes every instruction of a code array and checks that
// lengths tile the array exactly and every jump lands on an instruction.
func DecodeCode(code []byte) ([]*Instruction, error) {
	var out []*Instruction
	starts := make(map[int]bool)
	for offset := 0; offset < len(code); {
		ins, err := DecodeInstruction(code, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
		starts[offset] = true
		offset += ins.Length
	}
	for _, ins := range out {
		for _, t := range ins.Targets() {
			if !starts[t] {
				return nil, malformed("%s at offset %d jumps to %d, not an instruction boundary", ins.Opcode, ins.Offset, t)
			}
		}
	}
	return out, nil
}

// IndexByOffset maps offsets to instructions.
func IndexByOffset(instructions []*Instruction) map[int]*Instruction {
	m := make(map[int]*Instruction, len(instructions))
	for _, ins := range instructions {
		m[ins.Offset] = ins
	}
	return m
}

// FindInstruction returns the instruction at offset using binary search
// over an offset-ordered slice.
func FindInstruction(instructions []*Instruction, offset int) *Instruction {
	i := sort.Search(len(instructions), func(i int) bool { return instructions[i].Offset >= offset })
	if i < len(instructions) && instructions[i].Offset == offset {
		return instructions[i]
	}
	return nil
}

// SetConstantIndex rewrites the pool operand of a constant instruction in
// place. The instruction length never changes.
func SetConstantIndex(code []byte, ins *Instruction, idx uint16) error {
	if ins.Shape() != ShapeConstant {
		return fmt.Errorf("%s has no constant operand", ins.Opcode)
	}
	if ins.Opcode == OpLdc {
		if idx > 0xff {
			return fmt.Errorf("ldc at offset %d cannot address constant %d", ins.Offset, idx)
		}
		code[ins.Offset+1] = byte(idx)
	} else {
		binary.BigEndian.PutUint16(code[ins.Offset+1:], idx)
	}
	ins.Index = idx
	return nil
}
