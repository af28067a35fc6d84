// Package evaluation is an abstract interpreter for method bytecode. It
// computes a fixed point of frames over a flat value lattice and traces
// which stores feed which loads.
package evaluation

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the computational type of a value.
type Kind uint8

const (
	// KindTop is the unusable value: an uninitialized slot, the second half
	// of a long or double, or the join of incompatible kinds.
	KindTop Kind = iota
	KindInteger
	KindLong
	KindFloat
	KindDouble
	KindReference
	KindReturnAddress
)

var kindNames = [...]string{"top", "int", "long", "float", "double", "reference", "returnAddress"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Category is the number of slots a value of this kind occupies.
func (k Kind) Category() int {
	if k == KindLong || k == KindDouble {
		return 2
	}
	return 1
}

// Value is an element of the lattice. The zero Value is Top. Values are
// comparable with ==; floating point payloads compare by bit pattern.
//
// A specific value carries its exact payload: the number, the null
// reference or the return address. A generic value only carries its kind
// and, for references, the type descriptor when all sources agree on it.
type Value struct {
	kind     Kind
	specific bool
	bits     uint64
	typ      string
}

// Top returns the unusable value.
func Top() Value { return Value{} }

// Generic returns the unknown value of kind k.
func Generic(k Kind) Value { return Value{kind: k} }

func Int(v int32) Value { return Value{kind: KindInteger, specific: true, bits: uint64(uint32(v))} }

func Long(v int64) Value { return Value{kind: KindLong, specific: true, bits: uint64(v)} }

func Float(v float32) Value {
	return Value{kind: KindFloat, specific: true, bits: uint64(math.Float32bits(v))}
}

func Double(v float64) Value {
	return Value{kind: KindDouble, specific: true, bits: math.Float64bits(v)}
}

// Null returns the specific null reference.
func Null() Value { return Value{kind: KindReference, specific: true} }

// nonNullBit marks a generic reference known to denote an object.
const nonNullBit = 1

// Reference returns a possibly null reference of unknown identity. typ is
// a field descriptor such as "Ljava/lang/String;" or "" when unknown.
func Reference(typ string) Value { return Value{kind: KindReference, typ: typ} }

// Object returns a reference known not to be null, such as the result of
// new or the receiver of an instance method.
func Object(typ string) Value { return Value{kind: KindReference, typ: typ, bits: nonNullBit} }

// ReturnAddress returns the address pushed by a jsr.
func ReturnAddress(offset int) Value {
	return Value{kind: KindReturnAddress, specific: true, bits: uint64(offset)}
}

// FromDescriptor returns the generic value of a field type.
func FromDescriptor(desc string) Value {
	if desc == "" {
		return Top()
	}
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return Generic(KindInteger)
	case 'J':
		return Generic(KindLong)
	case 'F':
		return Generic(KindFloat)
	case 'D':
		return Generic(KindDouble)
	case 'L', '[':
		return Reference(desc)
	}
	return Top()
}

func (v Value) Kind() Kind { return v.kind }

// IsSpecific reports whether the exact payload is known.
func (v Value) IsSpecific() bool { return v.specific }

// Category is 2 for longs and doubles and 1 otherwise.
func (v Value) Category() int { return v.kind.Category() }

// Type returns the reference type descriptor, if known.
func (v Value) Type() string { return v.typ }

func (v Value) IntValue() (int32, bool) {
	return int32(uint32(v.bits)), v.kind == KindInteger && v.specific
}

func (v Value) LongValue() (int64, bool) {
	return int64(v.bits), v.kind == KindLong && v.specific
}

func (v Value) FloatValue() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.kind == KindFloat && v.specific
}

func (v Value) DoubleValue() (float64, bool) {
	return math.Float64frombits(v.bits), v.kind == KindDouble && v.specific
}

// IsNull reports whether v is the specific null reference.
func (v Value) IsNull() bool { return v.kind == KindReference && v.specific }

// Address returns the jsr return address of a specific ReturnAddress.
func (v Value) Address() (int, bool) {
	return int(v.bits), v.kind == KindReturnAddress && v.specific
}

// Generalize is the lattice join. It is commutative, associative and
// idempotent; two specific values stay specific only when equal, and
// values of different kinds join to Top.
func (v Value) Generalize(o Value) Value {
	if v == o {
		return v
	}
	if v.kind != o.kind {
		return Top()
	}
	if v.kind != KindReference {
		return Generic(v.kind)
	}
	// A null contributes no type of its own.
	typ := ""
	switch {
	case v.IsNull():
		typ = o.typ
	case o.IsNull():
		typ = v.typ
	case v.typ == o.typ:
		typ = v.typ
	}
	return Value{kind: KindReference, typ: typ, bits: v.bits & o.bits}
}

// IsNonNull reports whether v is a reference known to denote an object.
func (v Value) IsNonNull() bool {
	return v.kind == KindReference && !v.specific && v.bits == nonNullBit
}

// MoreGeneral reports whether v already covers o, that is v.Generalize(o) == v.
func (v Value) MoreGeneral(o Value) bool { return v.Generalize(o) == v }

func (v Value) String() string {
	if !v.specific {
		switch v.kind {
		case KindTop:
			return "top"
		case KindReference:
			if v.typ != "" {
				return v.typ
			}
		}
		return v.kind.String()
	}
	switch v.kind {
	case KindInteger:
		i, _ := v.IntValue()
		return fmt.Sprintf("int %d", i)
	case KindLong:
		l, _ := v.LongValue()
		return fmt.Sprintf("long %d", l)
	case KindFloat:
		f, _ := v.FloatValue()
		return "float " + formatFloat(float64(f), 32)
	case KindDouble:
		d, _ := v.DoubleValue()
		return "double " + formatFloat(d, 64)
	case KindReference:
		return "null"
	case KindReturnAddress:
		a, _ := v.Address()
		return fmt.Sprintf("returnAddress %d", a)
	}
	return v.kind.String()
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := fmt.Sprint(f)
	if bits == 32 {
		s = fmt.Sprint(float32(f))
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
