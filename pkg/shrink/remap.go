// Package shrink removes unused entities from a marked program and
// renumbers the constant pools of the surviving classes.
package shrink

import (
	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/usage"
)

// Remap is the old to new constant pool index map of one class. Index 0
// maps to itself; unused entries map to 0.
type Remap struct {
	class string
	to    []uint16
	pool  classfile.ConstantPool
}

// NewRemap numbers the used entries of c in their original order. The
// placeholder slot after a Long or Double survives exactly when its first
// half does.
func NewRemap(c *classfile.Class, marks *usage.Marks) *Remap {
	r := &Remap{class: c.Name(), to: make([]uint16, len(c.Pool)), pool: classfile.ConstantPool{nil}}
	for i := 1; i < len(c.Pool); i++ {
		k := c.Pool[i]
		if k == nil || !marks.IsConstantUsed(c.ID(), uint16(i)) {
			continue
		}
		r.to[i] = uint16(len(r.pool))
		r.pool = append(r.pool, cloneConstant(k))
		if k.Tag().Wide() {
			r.pool = append(r.pool, nil)
		}
	}
	return r
}

// Len returns the size of the compacted pool, slot 0 included.
func (r *Remap) Len() int { return len(r.pool) }

// Index maps an old index. A reference to a removed entry means the marker
// missed an edge and is reported as an internal consistency error.
func (r *Remap) Index(old uint16) (uint16, error) {
	if old == 0 {
		return 0, nil
	}
	if int(old) >= len(r.to) || r.to[old] == 0 {
		return 0, classfile.Inconsistent(r.class, "", -1, "reference to unmarked constant %d", old)
	}
	return r.to[old], nil
}

// Pool returns the compacted pool with every internal reference remapped.
// Dynamic entries keep their bootstrap row; rows is applied to them.
func (r *Remap) Pool(rows func(uint16) (uint16, error)) (classfile.ConstantPool, error) {
	for _, k := range r.pool {
		if k == nil {
			continue
		}
		if err := classfile.RemapConstant(k, r.Index); err != nil {
			return nil, err
		}
		if d, ok := k.(*classfile.DynamicConstant); ok {
			row, err := rows(d.BootstrapMethodAttrIndex)
			if err != nil {
				return nil, err
			}
			d.BootstrapMethodAttrIndex = row
		}
	}
	return r.pool, nil
}

func cloneConstant(k classfile.Constant) classfile.Constant {
	switch k := k.(type) {
	case *classfile.Utf8Constant:
		v := *k
		return &v
	case *classfile.IntegerConstant:
		v := *k
		return &v
	case *classfile.FloatConstant:
		v := *k
		return &v
	case *classfile.LongConstant:
		v := *k
		return &v
	case *classfile.DoubleConstant:
		v := *k
		return &v
	case *classfile.ClassConstant:
		v := *k
		return &v
	case *classfile.StringConstant:
		v := *k
		return &v
	case *classfile.RefConstant:
		v := *k
		return &v
	case *classfile.NameAndTypeConstant:
		v := *k
		return &v
	case *classfile.MethodHandleConstant:
		v := *k
		return &v
	case *classfile.MethodTypeConstant:
		v := *k
		return &v
	case *classfile.DynamicConstant:
		v := *k
		return &v
	case *classfile.ModuleConstant:
		v := *k
		return &v
	case *classfile.PackageConstant:
		v := *k
		return &v
	}
	return k
}
