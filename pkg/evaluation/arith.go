package evaluation

import (
	"math"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// Arithmetic follows the JVM exactly: two's complement wrap-around,
// masked shift counts, IEEE 754 float operations without fused
// multiply-add, saturating float to integer conversion with NaN to 0, and
// division by an integer zero left unfolded because it throws.

// IntBinary folds an int arithmetic or bitwise opcode.
func IntBinary(op classfile.Opcode, a, b Value) Value {
	x, okx := a.IntValue()
	y, oky := b.IntValue()
	if !okx || !oky {
		return Generic(KindInteger)
	}
	switch op {
	case classfile.OpIadd:
		return Int(x + y)
	case classfile.OpIsub:
		return Int(x - y)
	case classfile.OpImul:
		return Int(x * y)
	case classfile.OpIdiv:
		if y == 0 {
			return Generic(KindInteger)
		}
		return Int(x / y)
	case classfile.OpIrem:
		if y == 0 {
			return Generic(KindInteger)
		}
		return Int(x % y)
	case classfile.OpIand:
		return Int(x & y)
	case classfile.OpIor:
		return Int(x | y)
	case classfile.OpIxor:
		return Int(x ^ y)
	case classfile.OpIshl:
		return Int(x << (uint32(y) & 31))
	case classfile.OpIshr:
		return Int(x >> (uint32(y) & 31))
	case classfile.OpIushr:
		return Int(int32(uint32(x) >> (uint32(y) & 31)))
	}
	return Generic(KindInteger)
}

// LongBinary folds a long opcode. For shifts b is the int shift count.
func LongBinary(op classfile.Opcode, a, b Value) Value {
	x, okx := a.LongValue()
	if !okx {
		return Generic(KindLong)
	}
	switch op {
	case classfile.OpLshl, classfile.OpLshr, classfile.OpLushr:
		s, ok := b.IntValue()
		if !ok {
			return Generic(KindLong)
		}
		n := uint32(s) & 63
		switch op {
		case classfile.OpLshl:
			return Long(x << n)
		case classfile.OpLshr:
			return Long(x >> n)
		default:
			return Long(int64(uint64(x) >> n))
		}
	}
	y, oky := b.LongValue()
	if !oky {
		return Generic(KindLong)
	}
	switch op {
	case classfile.OpLadd:
		return Long(x + y)
	case classfile.OpLsub:
		return Long(x - y)
	case classfile.OpLmul:
		return Long(x * y)
	case classfile.OpLdiv:
		if y == 0 {
			return Generic(KindLong)
		}
		return Long(x / y)
	case classfile.OpLrem:
		if y == 0 {
			return Generic(KindLong)
		}
		return Long(x % y)
	case classfile.OpLand:
		return Long(x & y)
	case classfile.OpLor:
		return Long(x | y)
	case classfile.OpLxor:
		return Long(x ^ y)
	}
	return Generic(KindLong)
}

// FloatBinary folds a float opcode.
func FloatBinary(op classfile.Opcode, a, b Value) Value {
	x, okx := a.FloatValue()
	y, oky := b.FloatValue()
	if !okx || !oky {
		return Generic(KindFloat)
	}
	var r float32
	switch op {
	case classfile.OpFadd:
		r = x + y
	case classfile.OpFsub:
		r = x - y
	case classfile.OpFmul:
		r = x * y
	case classfile.OpFdiv:
		r = x / y
	case classfile.OpFrem:
		// fmod of two float32 values is exact in float64.
		r = float32(math.Mod(float64(x), float64(y)))
	default:
		return Generic(KindFloat)
	}
	return Float(r)
}

// DoubleBinary folds a double opcode.
func DoubleBinary(op classfile.Opcode, a, b Value) Value {
	x, okx := a.DoubleValue()
	y, oky := b.DoubleValue()
	if !okx || !oky {
		return Generic(KindDouble)
	}
	var r float64
	switch op {
	case classfile.OpDadd:
		r = x + y
	case classfile.OpDsub:
		r = x - y
	case classfile.OpDmul:
		r = x * y
	case classfile.OpDdiv:
		r = x / y
	case classfile.OpDrem:
		r = math.Mod(x, y)
	default:
		return Generic(KindDouble)
	}
	return Double(r)
}

// Negate folds ineg, lneg, fneg and dneg.
func Negate(op classfile.Opcode, a Value) Value {
	switch op {
	case classfile.OpIneg:
		if x, ok := a.IntValue(); ok {
			return Int(-x)
		}
		return Generic(KindInteger)
	case classfile.OpLneg:
		if x, ok := a.LongValue(); ok {
			return Long(-x)
		}
		return Generic(KindLong)
	case classfile.OpFneg:
		if x, ok := a.FloatValue(); ok {
			return Float(math.Float32frombits(math.Float32bits(x) ^ 1<<31))
		}
		return Generic(KindFloat)
	case classfile.OpDneg:
		if x, ok := a.DoubleValue(); ok {
			return Double(math.Float64frombits(math.Float64bits(x) ^ 1<<63))
		}
		return Generic(KindDouble)
	}
	return Top()
}

// Convert folds the primitive conversion opcodes.
func Convert(op classfile.Opcode, a Value) Value {
	result := conversionResult(op)
	if !a.IsSpecific() {
		return Generic(result)
	}
	switch op {
	case classfile.OpI2l:
		x, _ := a.IntValue()
		return Long(int64(x))
	case classfile.OpI2f:
		x, _ := a.IntValue()
		return Float(float32(x))
	case classfile.OpI2d:
		x, _ := a.IntValue()
		return Double(float64(x))
	case classfile.OpI2b:
		x, _ := a.IntValue()
		return Int(int32(int8(x)))
	case classfile.OpI2c:
		x, _ := a.IntValue()
		return Int(int32(uint16(x)))
	case classfile.OpI2s:
		x, _ := a.IntValue()
		return Int(int32(int16(x)))
	case classfile.OpL2i:
		x, _ := a.LongValue()
		return Int(int32(x))
	case classfile.OpL2f:
		x, _ := a.LongValue()
		return Float(float32(x))
	case classfile.OpL2d:
		x, _ := a.LongValue()
		return Double(float64(x))
	case classfile.OpF2i:
		x, _ := a.FloatValue()
		return Int(toInt32(float64(x)))
	case classfile.OpF2l:
		x, _ := a.FloatValue()
		return Long(toInt64(float64(x)))
	case classfile.OpF2d:
		x, _ := a.FloatValue()
		return Double(float64(x))
	case classfile.OpD2i:
		x, _ := a.DoubleValue()
		return Int(toInt32(x))
	case classfile.OpD2l:
		x, _ := a.DoubleValue()
		return Long(toInt64(x))
	case classfile.OpD2f:
		x, _ := a.DoubleValue()
		return Float(float32(x))
	}
	return Generic(result)
}

func conversionResult(op classfile.Opcode) Kind {
	switch op {
	case classfile.OpI2l, classfile.OpF2l, classfile.OpD2l:
		return KindLong
	case classfile.OpI2f, classfile.OpL2f, classfile.OpD2f:
		return KindFloat
	case classfile.OpI2d, classfile.OpL2d, classfile.OpF2d:
		return KindDouble
	}
	return KindInteger
}

func toInt32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func toInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// Compare folds lcmp, fcmpl, fcmpg, dcmpl and dcmpg. NaN yields -1 for the
// "l" forms and 1 for the "g" forms.
func Compare(op classfile.Opcode, a, b Value) Value {
	if !a.IsSpecific() || !b.IsSpecific() {
		return Generic(KindInteger)
	}
	switch op {
	case classfile.OpLcmp:
		x, _ := a.LongValue()
		y, _ := b.LongValue()
		return Int(sign(x < y, x > y))
	case classfile.OpFcmpl, classfile.OpFcmpg:
		x, _ := a.FloatValue()
		y, _ := b.FloatValue()
		return Int(compareFloat(float64(x), float64(y), op == classfile.OpFcmpg))
	case classfile.OpDcmpl, classfile.OpDcmpg:
		x, _ := a.DoubleValue()
		y, _ := b.DoubleValue()
		return Int(compareFloat(x, y, op == classfile.OpDcmpg))
	}
	return Generic(KindInteger)
}

func sign(less, greater bool) int32 {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func compareFloat(x, y float64, nanGreater bool) int32 {
	if math.IsNaN(x) || math.IsNaN(y) {
		if nanGreater {
			return 1
		}
		return -1
	}
	return sign(x < y, x > y)
}

// Outcome is the decision of a conditional branch.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	OutcomeTaken
	OutcomeNotTaken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTaken:
		return "taken"
	case OutcomeNotTaken:
		return "not-taken"
	}
	return "unknown"
}

func decide(b bool) Outcome {
	if b {
		return OutcomeTaken
	}
	return OutcomeNotTaken
}

// Branch decides a conditional branch from its operands. Single-operand
// forms ignore b.
func Branch(op classfile.Opcode, a, b Value) Outcome {
	switch op {
	case classfile.OpIfnull:
		if a.IsNull() {
			return OutcomeTaken
		}
		return nonNull(a, OutcomeNotTaken)
	case classfile.OpIfnonnull:
		if a.IsNull() {
			return OutcomeNotTaken
		}
		return nonNull(a, OutcomeTaken)
	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		if a.IsNull() && b.IsNull() {
			return decide(op == classfile.OpIfAcmpeq)
		}
		return OutcomeUnknown
	}
	x, ok := a.IntValue()
	if !ok {
		return OutcomeUnknown
	}
	if op >= classfile.OpIfeq && op <= classfile.OpIfle {
		return decide(compareInt(op-classfile.OpIfeq, x, 0))
	}
	y, ok := b.IntValue()
	if !ok {
		return OutcomeUnknown
	}
	return decide(compareInt(op-classfile.OpIfIcmpeq, x, y))
}

func nonNull(v Value, outcome Outcome) Outcome {
	if v.IsNonNull() {
		return outcome
	}
	return OutcomeUnknown
}

// compareInt evaluates eq, ne, lt, ge, gt, le by their order in the opcode
// table.
func compareInt(rel classfile.Opcode, x, y int32) bool {
	switch rel {
	case 0:
		return x == y
	case 1:
		return x != y
	case 2:
		return x < y
	case 3:
		return x >= y
	case 4:
		return x > y
	}
	return x <= y
}
