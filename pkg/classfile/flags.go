package classfile

import "strings"

// Magic is the first word of every class file.
const Magic uint32 = 0xCAFEBABE

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "Unknown"
}

// Wide reports whether entries of this tag occupy two pool slots.
func (t Tag) Wide() bool {
	return t == TagLong || t == TagDouble
}

// Method handle reference kinds.
const (
	RefGetField         uint8 = 1
	RefGetStatic        uint8 = 2
	RefPutField         uint8 = 3
	RefPutStatic        uint8 = 4
	RefInvokeVirtual    uint8 = 5
	RefInvokeStatic     uint8 = 6
	RefInvokeSpecial    uint8 = 7
	RefNewInvokeSpecial uint8 = 8
	RefInvokeInterface  uint8 = 9
)

// AccessFlags is the access_flags bit set of a class or member.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020 // classes
	AccSynchronized AccessFlags = 0x0020 // methods
	AccVolatile     AccessFlags = 0x0040 // fields
	AccBridge       AccessFlags = 0x0040 // methods
	AccTransient    AccessFlags = 0x0080 // fields
	AccVarargs      AccessFlags = 0x0080 // methods
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
	AccModule       AccessFlags = 0x8000
)

// AccVisibility groups the mutually exclusive visibility flags.
const AccVisibility = AccPublic | AccPrivate | AccProtected

// Has reports whether every bit of mask is set.
func (f AccessFlags) Has(mask AccessFlags) bool { return f&mask == mask }

func (f AccessFlags) IsPublic() bool    { return f&AccPublic != 0 }
func (f AccessFlags) IsPrivate() bool   { return f&AccPrivate != 0 }
func (f AccessFlags) IsProtected() bool { return f&AccProtected != 0 }
func (f AccessFlags) IsStatic() bool    { return f&AccStatic != 0 }
func (f AccessFlags) IsFinal() bool     { return f&AccFinal != 0 }
func (f AccessFlags) IsInterface() bool { return f&AccInterface != 0 }
func (f AccessFlags) IsAbstract() bool  { return f&AccAbstract != 0 }
func (f AccessFlags) IsNative() bool    { return f&AccNative != 0 }
func (f AccessFlags) IsEnum() bool      { return f&AccEnum != 0 }

// ClassString renders class-level flags as source modifiers.
func (f AccessFlags) ClassString() string {
	return f.render([]flagName{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"}, {AccAbstract, "abstract"},
		{AccInterface, "interface"}, {AccEnum, "enum"}, {AccAnnotation, "@interface"},
	})
}

// MemberString renders member-level flags as source modifiers.
func (f AccessFlags) MemberString(kind MemberKind) string {
	names := []flagName{
		{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
		{AccStatic, "static"}, {AccFinal, "final"},
	}
	if kind == FieldKind {
		names = append(names, flagName{AccVolatile, "volatile"}, flagName{AccTransient, "transient"})
	} else {
		names = append(names,
			flagName{AccSynchronized, "synchronized"}, flagName{AccNative, "native"},
			flagName{AccAbstract, "abstract"}, flagName{AccStrict, "strictfp"})
	}
	return f.render(names)
}

type flagName struct {
	flag AccessFlags
	name string
}

func (f AccessFlags) render(names []flagName) string {
	var parts []string
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseModifier maps a source modifier keyword to its flag.
func ParseModifier(s string) (AccessFlags, bool) {
	switch s {
	case "public":
		return AccPublic, true
	case "private":
		return AccPrivate, true
	case "protected":
		return AccProtected, true
	case "static":
		return AccStatic, true
	case "final":
		return AccFinal, true
	case "synchronized":
		return AccSynchronized, true
	case "volatile":
		return AccVolatile, true
	case "transient":
		return AccTransient, true
	case "bridge":
		return AccBridge, true
	case "varargs":
		return AccVarargs, true
	case "native":
		return AccNative, true
	case "abstract":
		return AccAbstract, true
	case "strictfp":
		return AccStrict, true
	case "synthetic":
		return AccSynthetic, true
	case "enum":
		return AccEnum, true
	}
	return 0, false
}
