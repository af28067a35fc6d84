package classfile

import (
	"fmt"
	"strings"
)

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []string
	Return string
}

// ParseMethodDescriptor splits "(IJLjava/lang/String;)V" into field types.
func ParseMethodDescriptor(desc string) (MethodType, error) {
	var mt MethodType
	if !strings.HasPrefix(desc, "(") {
		return mt, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		end, err := fieldTypeEnd(desc, i)
		if err != nil {
			return mt, err
		}
		mt.Params = append(mt.Params, desc[i:end])
		i = end
	}
	if i >= len(desc) {
		return mt, fmt.Errorf("method descriptor %q is missing ')'", desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		end, err := fieldTypeEnd(desc, i+1)
		if err != nil {
			return mt, err
		}
		if end != len(desc) {
			return mt, fmt.Errorf("method descriptor %q has trailing characters", desc)
		}
	}
	mt.Return = ret
	return mt, nil
}

func fieldTypeEnd(desc string, i int) (int, error) {
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return 0, fmt.Errorf("descriptor %q is truncated", desc)
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		semi := strings.IndexByte(desc[i:], ';')
		if semi < 0 {
			return 0, fmt.Errorf("descriptor %q has unterminated class type", desc)
		}
		return i + semi + 1, nil
	}
	return 0, fmt.Errorf("descriptor %q has invalid type character %q", desc, desc[i])
}

// TypeSize is the number of slots a field type occupies.
func TypeSize(t string) int {
	if t == "J" || t == "D" {
		return 2
	}
	if t == "V" {
		return 0
	}
	return 1
}

// ParameterSize counts the local slots taken by parameters, including the
// receiver for instance methods.
func (mt MethodType) ParameterSize(static bool) int {
	n := 0
	if !static {
		n = 1
	}
	for _, p := range mt.Params {
		n += TypeSize(p)
	}
	return n
}

// ClassNames returns the internal names of every class mentioned in a field
// or method descriptor, in order of appearance.
func ClassNames(desc string) []string {
	var names []string
	for i := 0; i < len(desc); i++ {
		if desc[i] != 'L' {
			continue
		}
		semi := strings.IndexByte(desc[i:], ';')
		if semi < 0 {
			break
		}
		names = append(names, desc[i+1:i+semi])
		i += semi
	}
	return names
}

// ElementClass returns the class name behind a Class constant name, which
// may be an array descriptor. It returns "" for primitive arrays.
func ElementClass(name string) string {
	if !strings.HasPrefix(name, "[") {
		return name
	}
	t := strings.TrimLeft(name, "[")
	if strings.HasPrefix(t, "L") && strings.HasSuffix(t, ";") {
		return t[1 : len(t)-1]
	}
	return ""
}

// ExternalName turns an internal name into its dotted form.
func ExternalName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalName turns a dotted class name into its internal form.
func InternalName(external string) string {
	return strings.ReplaceAll(external, ".", "/")
}

var primitiveTypes = map[string]string{
	"boolean": "Z", "byte": "B", "char": "C", "short": "S",
	"int": "I", "long": "J", "float": "F", "double": "D", "void": "V",
}

// TypeDescriptor converts a source type such as "java.lang.String[]" to a
// field descriptor.
func TypeDescriptor(javaType string) string {
	dims := 0
	for strings.HasSuffix(javaType, "[]") {
		dims++
		javaType = strings.TrimSuffix(javaType, "[]")
	}
	d, ok := primitiveTypes[javaType]
	if !ok {
		d = "L" + InternalName(javaType) + ";"
	}
	return strings.Repeat("[", dims) + d
}

// JavaType converts a field descriptor back to source form.
func JavaType(desc string) string {
	dims := 0
	for strings.HasPrefix(desc, "[") {
		dims++
		desc = desc[1:]
	}
	out := desc
	for name, d := range primitiveTypes {
		if d == desc {
			out = name
		}
	}
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		out = ExternalName(desc[1 : len(desc)-1])
	}
	return out + strings.Repeat("[]", dims)
}
