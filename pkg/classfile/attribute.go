package classfile

// AttributeKind identifies an attribute by its well-known name.
type AttributeKind uint8

const (
	AttrUnknown AttributeKind = iota
	AttrConstantValue
	AttrCode
	AttrStackMapTable
	AttrExceptions
	AttrInnerClasses
	AttrEnclosingMethod
	AttrSynthetic
	AttrSignature
	AttrSourceFile
	AttrLineNumberTable
	AttrLocalVariableTable
	AttrLocalVariableTypeTable
	AttrDeprecated
	AttrRuntimeVisibleAnnotations
	AttrRuntimeInvisibleAnnotations
	AttrRuntimeVisibleParameterAnnotations
	AttrRuntimeInvisibleParameterAnnotations
	AttrAnnotationDefault
	AttrBootstrapMethods
	AttrMethodParameters
	AttrNestHost
	AttrNestMembers
	AttrPermittedSubclasses
)

var attributeKinds = map[string]AttributeKind{
	"ConstantValue":                        AttrConstantValue,
	"Code":                                 AttrCode,
	"StackMapTable":                        AttrStackMapTable,
	"Exceptions":                           AttrExceptions,
	"InnerClasses":                         AttrInnerClasses,
	"EnclosingMethod":                      AttrEnclosingMethod,
	"Synthetic":                            AttrSynthetic,
	"Signature":                            AttrSignature,
	"SourceFile":                           AttrSourceFile,
	"LineNumberTable":                      AttrLineNumberTable,
	"LocalVariableTable":                   AttrLocalVariableTable,
	"LocalVariableTypeTable":               AttrLocalVariableTypeTable,
	"Deprecated":                           AttrDeprecated,
	"RuntimeVisibleAnnotations":            AttrRuntimeVisibleAnnotations,
	"RuntimeInvisibleAnnotations":          AttrRuntimeInvisibleAnnotations,
	"RuntimeVisibleParameterAnnotations":   AttrRuntimeVisibleParameterAnnotations,
	"RuntimeInvisibleParameterAnnotations": AttrRuntimeInvisibleParameterAnnotations,
	"AnnotationDefault":                    AttrAnnotationDefault,
	"BootstrapMethods":                     AttrBootstrapMethods,
	"MethodParameters":                     AttrMethodParameters,
	"NestHost":                             AttrNestHost,
	"NestMembers":                          AttrNestMembers,
	"PermittedSubclasses":                  AttrPermittedSubclasses,
}

// KindOf maps an attribute name to its kind.
func KindOf(name string) AttributeKind {
	if k, ok := attributeKinds[name]; ok {
		return k
	}
	return AttrUnknown
}

func (k AttributeKind) String() string {
	for name, kind := range attributeKinds {
		if kind == k {
			return name
		}
	}
	return "Unknown"
}

// Attribute is one attribute_info structure.
type Attribute interface {
	Kind() AttributeKind
	NameIndex() uint16
	SetNameIndex(uint16)
}

// Header holds the attribute_name_index shared by every attribute.
type Header struct {
	Name uint16
}

func (h *Header) NameIndex() uint16       { return h.Name }
func (h *Header) SetNameIndex(idx uint16) { h.Name = idx }

// RawAttribute is kept as opaque bytes: unknown attributes and the
// zero-length Deprecated and Synthetic markers.
type RawAttribute struct {
	Header
	AttrKind AttributeKind
	Info     []byte
}

type ConstantValueAttribute struct {
	Header
	ValueIndex uint16
}

type CodeAttribute struct {
	Header
	MaxStack       uint16
	MaxLocals      uint16
	Code           []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

// ExceptionHandler is one exception table row. CatchType 0 catches everything.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// IndexAttribute holds a single pool index: Signature, SourceFile and NestHost.
type IndexAttribute struct {
	Header
	AttrKind AttributeKind
	Index    uint16
}

// ClassListAttribute holds a list of Class entries: Exceptions, NestMembers
// and PermittedSubclasses.
type ClassListAttribute struct {
	Header
	AttrKind AttributeKind
	Classes  []uint16
}

type InnerClassesAttribute struct {
	Header
	Classes []InnerClass
}

type InnerClass struct {
	InnerClassIndex uint16
	OuterClassIndex uint16
	InnerNameIndex  uint16
	AccessFlags     AccessFlags
}

type EnclosingMethodAttribute struct {
	Header
	ClassIndex  uint16
	MethodIndex uint16
}

type LineNumberTableAttribute struct {
	Header
	Lines []LineNumber
}

type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LocalVariableTableAttribute serves LocalVariableTable and LocalVariableTypeTable.
type LocalVariableTableAttribute struct {
	Header
	AttrKind  AttributeKind
	Variables []LocalVariable
}

type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

type StackMapTableAttribute struct {
	Header
	Frames []StackMapFrame
}

// StackMapFrame keeps the frame type byte so the compressed encoding is
// written back unchanged.
type StackMapFrame struct {
	Type        uint8
	OffsetDelta uint16
	Locals      []VerificationType
	Stack       []VerificationType
}

// Verification type tags.
const (
	VerifyTop               uint8 = 0
	VerifyInteger           uint8 = 1
	VerifyFloat             uint8 = 2
	VerifyDouble            uint8 = 3
	VerifyLong              uint8 = 4
	VerifyNull              uint8 = 5
	VerifyUninitializedThis uint8 = 6
	VerifyObject            uint8 = 7
	VerifyUninitialized     uint8 = 8
)

// VerificationType holds a pool index for Object and a code offset for
// Uninitialized.
type VerificationType struct {
	Tag   uint8
	Index uint16
}

type AnnotationsAttribute struct {
	Header
	AttrKind    AttributeKind
	Annotations []Annotation
}

type ParameterAnnotationsAttribute struct {
	Header
	AttrKind   AttributeKind
	Parameters [][]Annotation
}

type AnnotationDefaultAttribute struct {
	Header
	Value ElementValue
}

type Annotation struct {
	TypeIndex uint16
	Elements  []ElementPair
}

type ElementPair struct {
	NameIndex uint16
	Value     ElementValue
}

// ElementValue is an annotation element. Index is const_value_index,
// class_info_index or the enum type_name_index depending on Tag.
type ElementValue struct {
	Tag        byte
	Index      uint16
	EnumConst  uint16
	Annotation *Annotation
	Values     []ElementValue
}

type BootstrapMethodsAttribute struct {
	Header
	Methods []BootstrapMethod
}

type BootstrapMethod struct {
	MethodRef uint16
	Arguments []uint16
}

type MethodParametersAttribute struct {
	Header
	Parameters []MethodParameter
}

type MethodParameter struct {
	NameIndex   uint16 // 0 when the parameter is unnamed
	AccessFlags AccessFlags
}

func (a *RawAttribute) Kind() AttributeKind                  { return a.AttrKind }
func (*ConstantValueAttribute) Kind() AttributeKind          { return AttrConstantValue }
func (*CodeAttribute) Kind() AttributeKind                   { return AttrCode }
func (a *IndexAttribute) Kind() AttributeKind                { return a.AttrKind }
func (a *ClassListAttribute) Kind() AttributeKind            { return a.AttrKind }
func (*InnerClassesAttribute) Kind() AttributeKind           { return AttrInnerClasses }
func (*EnclosingMethodAttribute) Kind() AttributeKind        { return AttrEnclosingMethod }
func (*LineNumberTableAttribute) Kind() AttributeKind        { return AttrLineNumberTable }
func (a *LocalVariableTableAttribute) Kind() AttributeKind   { return a.AttrKind }
func (*StackMapTableAttribute) Kind() AttributeKind          { return AttrStackMapTable }
func (a *AnnotationsAttribute) Kind() AttributeKind          { return a.AttrKind }
func (a *ParameterAnnotationsAttribute) Kind() AttributeKind { return a.AttrKind }
func (*AnnotationDefaultAttribute) Kind() AttributeKind      { return AttrAnnotationDefault }
func (*BootstrapMethodsAttribute) Kind() AttributeKind       { return AttrBootstrapMethods }
func (*MethodParametersAttribute) Kind() AttributeKind       { return AttrMethodParameters }

// Instructions decodes the whole code array.
func (a *CodeAttribute) Instructions() ([]*Instruction, error) {
	return DecodeCode(a.Code)
}

// Attribute returns the first nested attribute of the given kind.
func (a *CodeAttribute) Attribute(kind AttributeKind) Attribute {
	return findAttribute(a.Attributes, kind)
}

func findAttribute(attrs []Attribute, kind AttributeKind) Attribute {
	for _, a := range attrs {
		if a.Kind() == kind {
			return a
		}
	}
	return nil
}
