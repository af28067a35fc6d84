package evaluation

import (
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// InvocationUnit supplies the values that enter a method from outside:
// its parameters, the fields it reads and the results of the calls it
// makes.
type InvocationUnit interface {
	// Parameter returns the initial value of parameter index, where the
	// receiver of an instance method is parameter 0.
	Parameter(c *classfile.Class, m *classfile.Member, index int, desc string) Value
	// Field returns the value read by getfield or getstatic.
	Field(c *classfile.Class, ins *classfile.Instruction, class, name, desc string) Value
	// Invoke returns the result of a call; desc is the method descriptor.
	Invoke(c *classfile.Class, ins *classfile.Instruction, class, name, desc string) Value
}

// SideEffects answers whether a call may be dropped when its result is
// unused. *keep.SideEffectTable implements it.
type SideEffects interface {
	Lookup(p *classfile.Program, class, name, desc string) bool
}

// BasicInvocationUnit returns generic values of the declared types, except
// for injected arguments and constant static final fields.
type BasicInvocationUnit struct {
	Program   *classfile.Program
	Arguments map[int]Value
}

// NewBasicInvocationUnit returns a unit that seeds parameter i with args[i]
// when the kinds agree.
func NewBasicInvocationUnit(p *classfile.Program, args map[int]Value) *BasicInvocationUnit {
	return &BasicInvocationUnit{Program: p, Arguments: args}
}

func (u *BasicInvocationUnit) Parameter(c *classfile.Class, m *classfile.Member, index int, desc string) Value {
	declared := FromDescriptor(desc)
	if v, ok := u.Arguments[index]; ok && v.Kind() == declared.Kind() {
		return v
	}
	if index == 0 && !m.AccessFlags.IsStatic() {
		return Object(desc)
	}
	return declared
}

func (u *BasicInvocationUnit) Field(c *classfile.Class, ins *classfile.Instruction, class, name, desc string) Value {
	if ins.Opcode == classfile.OpGetstatic && u.Program != nil {
		if v, ok := u.constantField(class, name, desc); ok {
			return v
		}
	}
	return FromDescriptor(desc)
}

// constantField folds a static final field with a ConstantValue attribute.
func (u *BasicInvocationUnit) constantField(class, name, desc string) (Value, bool) {
	id := u.Program.Lookup(class)
	if id == classfile.NoClass {
		return Value{}, false
	}
	owner, f := u.Program.ResolveField(id, name, desc)
	if f == nil || !f.AccessFlags.IsStatic() || !f.AccessFlags.IsFinal() {
		return Value{}, false
	}
	cv, ok := f.Attribute(classfile.AttrConstantValue).(*classfile.ConstantValueAttribute)
	if !ok {
		return Value{}, false
	}
	k, err := u.Program.Class(owner).Pool.Get(cv.ValueIndex)
	if err != nil {
		return Value{}, false
	}
	var v Value
	switch k := k.(type) {
	case *classfile.IntegerConstant:
		v = Int(k.Value)
	case *classfile.LongConstant:
		v = Long(k.Value)
	case *classfile.FloatConstant:
		v = Float(k.Float())
	case *classfile.DoubleConstant:
		v = Double(k.Float())
	case *classfile.StringConstant:
		v = Object("Ljava/lang/String;")
	default:
		return Value{}, false
	}
	return v, v.Kind() == FromDescriptor(desc).Kind()
}

func (u *BasicInvocationUnit) Invoke(c *classfile.Class, ins *classfile.Instruction, class, name, desc string) Value {
	mt, err := classfile.ParseMethodDescriptor(desc)
	if err != nil || mt.Return == "V" {
		return Top()
	}
	return FromDescriptor(mt.Return)
}
