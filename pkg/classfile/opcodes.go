package classfile

// Opcode is a bytecode instruction opcode.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpAconstNull
	OpIconstM1
	OpIconst0
	OpIconst1
	OpIconst2
	OpIconst3
	OpIconst4
	OpIconst5
	OpLconst0
	OpLconst1
	OpFconst0
	OpFconst1
	OpFconst2
	OpDconst0
	OpDconst1
	OpBipush
	OpSipush
	OpLdc
	OpLdcW
	OpLdc2W
	OpIload
	OpLload
	OpFload
	OpDload
	OpAload
	OpIload0
	OpIload1
	OpIload2
	OpIload3
	OpLload0
	OpLload1
	OpLload2
	OpLload3
	OpFload0
	OpFload1
	OpFload2
	OpFload3
	OpDload0
	OpDload1
	OpDload2
	OpDload3
	OpAload0
	OpAload1
	OpAload2
	OpAload3
	OpIaload
	OpLaload
	OpFaload
	OpDaload
	OpAaload
	OpBaload
	OpCaload
	OpSaload
	OpIstore
	OpLstore
	OpFstore
	OpDstore
	OpAstore
	OpIstore0
	OpIstore1
	OpIstore2
	OpIstore3
	OpLstore0
	OpLstore1
	OpLstore2
	OpLstore3
	OpFstore0
	OpFstore1
	OpFstore2
	OpFstore3
	OpDstore0
	OpDstore1
	OpDstore2
	OpDstore3
	OpAstore0
	OpAstore1
	OpAstore2
	OpAstore3
	OpIastore
	OpLastore
	OpFastore
	OpDastore
	OpAastore
	OpBastore
	OpCastore
	OpSastore
	OpPop
	OpPop2
	OpDup
	OpDupX1
	OpDupX2
	OpDup2
	OpDup2X1
	OpDup2X2
	OpSwap
	OpIadd
	OpLadd
	OpFadd
	OpDadd
	OpIsub
	OpLsub
	OpFsub
	OpDsub
	OpImul
	OpLmul
	OpFmul
	OpDmul
	OpIdiv
	OpLdiv
	OpFdiv
	OpDdiv
	OpIrem
	OpLrem
	OpFrem
	OpDrem
	OpIneg
	OpLneg
	OpFneg
	OpDneg
	OpIshl
	OpLshl
	OpIshr
	OpLshr
	OpIushr
	OpLushr
	OpIand
	OpLand
	OpIor
	OpLor
	OpIxor
	OpLxor
	OpIinc
	OpI2l
	OpI2f
	OpI2d
	OpL2i
	OpL2f
	OpL2d
	OpF2i
	OpF2l
	OpF2d
	OpD2i
	OpD2l
	OpD2f
	OpI2b
	OpI2c
	OpI2s
	OpLcmp
	OpFcmpl
	OpFcmpg
	OpDcmpl
	OpDcmpg
	OpIfeq
	OpIfne
	OpIflt
	OpIfge
	OpIfgt
	OpIfle
	OpIfIcmpeq
	OpIfIcmpne
	OpIfIcmplt
	OpIfIcmpge
	OpIfIcmpgt
	OpIfIcmple
	OpIfAcmpeq
	OpIfAcmpne
	OpGoto
	OpJsr
	OpRet
	OpTableswitch
	OpLookupswitch
	OpIreturn
	OpLreturn
	OpFreturn
	OpDreturn
	OpAreturn
	OpReturn
	OpGetstatic
	OpPutstatic
	OpGetfield
	OpPutfield
	OpInvokevirtual
	OpInvokespecial
	OpInvokestatic
	OpInvokeinterface
	OpInvokedynamic
	OpNew
	OpNewarray
	OpAnewarray
	OpArraylength
	OpAthrow
	OpCheckcast
	OpInstanceof
	OpMonitorenter
	OpMonitorexit
	OpWide
	OpMultianewarray
	OpIfnull
	OpIfnonnull
	OpGotoW
	OpJsrW
	OpBreakpoint
)

const (
	OpImpdep1 Opcode = 0xfe
	OpImpdep2 Opcode = 0xff
)

// Shape classifies how an instruction encodes its operands.
type Shape uint8

const (
	ShapeSimple Shape = iota
	ShapeLocal
	ShapeLiteral
	ShapeConstant
	ShapeBranch
	ShapeTableSwitch
	ShapeLookupSwitch
)

type opInfo struct {
	name   string
	shape  Shape
	length int // 0 for variable-length instructions
	known  bool
}

var opcodeNames = [...]string{
	"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3", "iconst_4", "iconst_5",
	"lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2", "dconst_0", "dconst_1",
	"bipush", "sipush", "ldc", "ldc_w", "ldc2_w",
	"iload", "lload", "fload", "dload", "aload",
	"iload_0", "iload_1", "iload_2", "iload_3", "lload_0", "lload_1", "lload_2", "lload_3",
	"fload_0", "fload_1", "fload_2", "fload_3", "dload_0", "dload_1", "dload_2", "dload_3",
	"aload_0", "aload_1", "aload_2", "aload_3",
	"iaload", "laload", "faload", "daload", "aaload", "baload", "caload", "saload",
	"istore", "lstore", "fstore", "dstore", "astore",
	"istore_0", "istore_1", "istore_2", "istore_3", "lstore_0", "lstore_1", "lstore_2", "lstore_3",
	"fstore_0", "fstore_1", "fstore_2", "fstore_3", "dstore_0", "dstore_1", "dstore_2", "dstore_3",
	"astore_0", "astore_1", "astore_2", "astore_3",
	"iastore", "lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore",
	"pop", "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
	"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
	"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
	"irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
	"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land", "ior", "lor", "ixor", "lxor",
	"iinc", "i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l", "d2f",
	"i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl", "dcmpg",
	"ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
	"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple", "if_acmpeq", "if_acmpne",
	"goto", "jsr", "ret", "tableswitch", "lookupswitch",
	"ireturn", "lreturn", "freturn", "dreturn", "areturn", "return",
	"getstatic", "putstatic", "getfield", "putfield",
	"invokevirtual", "invokespecial", "invokestatic", "invokeinterface", "invokedynamic",
	"new", "newarray", "anewarray", "arraylength", "athrow", "checkcast", "instanceof",
	"monitorenter", "monitorexit", "wide", "multianewarray", "ifnull", "ifnonnull", "goto_w", "jsr_w",
	"breakpoint",
}

var opcodeTable [256]opInfo

func init() {
	for i, name := range opcodeNames {
		opcodeTable[i] = opInfo{name: name, shape: ShapeSimple, length: 1, known: true}
	}
	opcodeTable[OpImpdep1] = opInfo{name: "impdep1", shape: ShapeSimple, length: 1, known: true}
	opcodeTable[OpImpdep2] = opInfo{name: "impdep2", shape: ShapeSimple, length: 1, known: true}
	for i := int(OpBreakpoint) + 1; i < int(OpImpdep1); i++ {
		opcodeTable[i] = opInfo{name: "unknown", shape: ShapeSimple, length: 1}
	}

	set := func(shape Shape, length int, ops ...Opcode) {
		for _, op := range ops {
			opcodeTable[op].shape = shape
			opcodeTable[op].length = length
		}
	}
	set(ShapeLiteral, 2, OpBipush, OpNewarray)
	set(ShapeLiteral, 3, OpSipush)
	set(ShapeConstant, 2, OpLdc)
	set(ShapeConstant, 3, OpLdcW, OpLdc2W, OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpNew, OpAnewarray, OpCheckcast, OpInstanceof)
	set(ShapeConstant, 5, OpInvokeinterface, OpInvokedynamic)
	set(ShapeConstant, 4, OpMultianewarray)
	set(ShapeLocal, 2, OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet)
	set(ShapeLocal, 3, OpIinc)
	set(ShapeBranch, 3, OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull)
	set(ShapeBranch, 5, OpGotoW, OpJsrW)
	set(ShapeTableSwitch, 0, OpTableswitch)
	set(ShapeLookupSwitch, 0, OpLookupswitch)
	set(ShapeSimple, 0, OpWide)
}

func (op Opcode) String() string { return opcodeTable[op].name }

// Shape returns the operand shape of the opcode.
func (op Opcode) Shape() Shape { return opcodeTable[op].shape }

// Known reports whether the opcode is defined by the instruction set.
func (op Opcode) Known() bool { return opcodeTable[op].known }

// IsReturn reports whether the opcode returns from the method.
func (op Opcode) IsReturn() bool { return op >= OpIreturn && op <= OpReturn }

// IsInvoke reports whether the opcode invokes a method.
func (op Opcode) IsInvoke() bool { return op >= OpInvokevirtual && op <= OpInvokedynamic }

// IsConditional reports whether the opcode is a two-way conditional branch.
func (op Opcode) IsConditional() bool {
	return (op >= OpIfeq && op <= OpIfAcmpne) || op == OpIfnull || op == OpIfnonnull
}

// IsUnconditional reports whether control never falls through to the next
// instruction.
func (op Opcode) IsUnconditional() bool {
	switch op {
	case OpGoto, OpGotoW, OpRet, OpTableswitch, OpLookupswitch, OpAthrow,
		OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn:
		return true
	}
	return false
}

// IsLoad reports whether the opcode reads a local variable.
func (op Opcode) IsLoad() bool {
	return (op >= OpIload && op <= OpAload3) || op == OpRet
}

// IsStore reports whether the opcode writes a local variable.
func (op Opcode) IsStore() bool {
	return op >= OpIstore && op <= OpAstore3
}
