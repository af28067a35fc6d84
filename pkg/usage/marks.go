// Package usage computes which classes, members, constants, attributes and
// instructions of a program are reachable from its entry points.
package usage

import (
	"fmt"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// Mark is the usage state of one entity.
type Mark uint8

const (
	Unused Mark = iota
	// PossiblyUsed is provisional: interfaces pending confirmation and
	// members whose class is not yet used.
	PossiblyUsed
	Used
)

func (m Mark) String() string {
	switch m {
	case PossiblyUsed:
		return "possibly-used"
	case Used:
		return "used"
	}
	return "unused"
}

// ConstantKey identifies a pool entry of a class.
type ConstantKey struct {
	Class classfile.ClassID
	Index uint16
}

// InstructionKey identifies an instruction by its code attribute and offset.
type InstructionKey struct {
	Code   *classfile.CodeAttribute
	Offset int
}

// RowKey identifies one row of a table inside an attribute: an exception
// table row of a code attribute, an inner class, a bootstrap method, a nest
// member or a permitted subclass.
type RowKey struct {
	Attribute classfile.Attribute
	Row       int
}

// Marks is the side table of usage marks for one analysis run. Marks only
// ever increase; Reset clears them before a new run.
type Marks struct {
	classes      map[classfile.ClassID]Mark
	members      map[*classfile.Member]Mark
	constants    map[ConstantKey]Mark
	attributes   map[classfile.Attribute]Mark
	instructions map[InstructionKey]Mark
	rows         map[RowKey]Mark

	classReasons  map[classfile.ClassID]Reason
	memberReasons map[*classfile.Member]Reason

	changes int
}

// NewMarks returns an empty mark table.
func NewMarks() *Marks {
	m := &Marks{}
	m.Reset()
	return m
}

// Reset forgets every mark and reason.
func (m *Marks) Reset() {
	m.classes = make(map[classfile.ClassID]Mark)
	m.members = make(map[*classfile.Member]Mark)
	m.constants = make(map[ConstantKey]Mark)
	m.attributes = make(map[classfile.Attribute]Mark)
	m.instructions = make(map[InstructionKey]Mark)
	m.rows = make(map[RowKey]Mark)
	m.classReasons = make(map[classfile.ClassID]Reason)
	m.memberReasons = make(map[*classfile.Member]Reason)
	m.changes = 0
}

// Changes counts the mark transitions since the last Reset.
func (m *Marks) Changes() int { return m.changes }

func raise[K comparable](m *Marks, table map[K]Mark, key K, to Mark) bool {
	if table[key] >= to {
		return false
	}
	table[key] = to
	m.changes++
	return true
}

func (m *Marks) Class(id classfile.ClassID) Mark { return m.classes[id] }

// SetClass raises the mark of a class and reports whether it changed.
func (m *Marks) SetClass(id classfile.ClassID, to Mark) bool {
	return raise(m, m.classes, id, to)
}

// IsClassUsed reports whether the class is confirmed used.
func (m *Marks) IsClassUsed(id classfile.ClassID) bool { return m.classes[id] == Used }

func (m *Marks) Member(mem *classfile.Member) Mark { return m.members[mem] }

func (m *Marks) SetMember(mem *classfile.Member, to Mark) bool {
	return raise(m, m.members, mem, to)
}

func (m *Marks) IsMemberUsed(mem *classfile.Member) bool { return m.members[mem] == Used }

func (m *Marks) Constant(id classfile.ClassID, idx uint16) Mark {
	return m.constants[ConstantKey{id, idx}]
}

func (m *Marks) SetConstant(id classfile.ClassID, idx uint16, to Mark) bool {
	return raise(m, m.constants, ConstantKey{id, idx}, to)
}

func (m *Marks) IsConstantUsed(id classfile.ClassID, idx uint16) bool {
	return m.Constant(id, idx) == Used
}

func (m *Marks) Attribute(a classfile.Attribute) Mark { return m.attributes[a] }

func (m *Marks) SetAttribute(a classfile.Attribute, to Mark) bool {
	return raise(m, m.attributes, a, to)
}

func (m *Marks) IsAttributeUsed(a classfile.Attribute) bool { return m.attributes[a] == Used }

func (m *Marks) Instruction(code *classfile.CodeAttribute, offset int) Mark {
	return m.instructions[InstructionKey{code, offset}]
}

func (m *Marks) SetInstruction(code *classfile.CodeAttribute, offset int, to Mark) bool {
	return raise(m, m.instructions, InstructionKey{code, offset}, to)
}

func (m *Marks) Row(a classfile.Attribute, row int) Mark { return m.rows[RowKey{a, row}] }

func (m *Marks) SetRow(a classfile.Attribute, row int, to Mark) bool {
	return raise(m, m.rows, RowKey{a, row}, to)
}

func (m *Marks) IsRowUsed(a classfile.Attribute, row int) bool { return m.Row(a, row) == Used }

// ClassReason returns why a class was first marked.
func (m *Marks) ClassReason(id classfile.ClassID) (Reason, bool) {
	r, ok := m.classReasons[id]
	return r, ok
}

// MemberReason returns why a member was first marked.
func (m *Marks) MemberReason(mem *classfile.Member) (Reason, bool) {
	r, ok := m.memberReasons[mem]
	return r, ok
}

func (m *Marks) noteClass(id classfile.ClassID, r Reason) {
	if _, ok := m.classReasons[id]; !ok {
		m.classReasons[id] = r
	}
}

func (m *Marks) noteMember(mem *classfile.Member, r Reason) {
	if _, ok := m.memberReasons[mem]; !ok {
		m.memberReasons[mem] = r
	}
}

// Counts summarizes the marks of one entity kind.
type Counts struct {
	Used         int `json:"used" msgpack:"used"`
	PossiblyUsed int `json:"possibly_used" msgpack:"possibly_used"`
}

func count[K comparable](table map[K]Mark) Counts {
	var c Counts
	for _, mark := range table {
		switch mark {
		case Used:
			c.Used++
		case PossiblyUsed:
			c.PossiblyUsed++
		}
	}
	return c
}

// Summary counts marks per entity kind.
type Summary struct {
	Classes      Counts `json:"classes" msgpack:"classes"`
	Members      Counts `json:"members" msgpack:"members"`
	Constants    Counts `json:"constants" msgpack:"constants"`
	Attributes   Counts `json:"attributes" msgpack:"attributes"`
	Instructions Counts `json:"instructions" msgpack:"instructions"`
	Rows         Counts `json:"rows" msgpack:"rows"`
}

// Summary returns the per-kind mark counts.
func (m *Marks) Summary() Summary {
	return Summary{
		Classes:      count(m.classes),
		Members:      count(m.members),
		Constants:    count(m.constants),
		Attributes:   count(m.attributes),
		Instructions: count(m.instructions),
		Rows:         count(m.rows),
	}
}

// Snapshot is a copy of every non-zero mark keyed by a printable path, so
// that runs over separately built programs can be compared.
type Snapshot map[string]Mark

// Snapshot renders the marks of every entity of p.
func (m *Marks) Snapshot(p *classfile.Program) Snapshot {
	s := make(Snapshot)
	for _, c := range p.Classes() {
		id := c.ID()
		s.put(c.Name(), m.Class(id))
		for i := range c.Pool {
			s.put(fmt.Sprintf("%s#%d", c.Name(), i), m.Constant(id, uint16(i)))
		}
		m.snapshotAttributes(s, c.Name(), c.Attributes)
		for _, mem := range c.Members() {
			key := c.Name() + "." + mem.Signature(c)
			s.put(key, m.Member(mem))
			m.snapshotAttributes(s, key, mem.Attributes)
		}
	}
	return s
}

func (s Snapshot) put(key string, mark Mark) {
	if mark != Unused {
		s[key] = mark
	}
}

func (m *Marks) snapshotAttributes(s Snapshot, owner string, attrs []classfile.Attribute) {
	for i, a := range attrs {
		key := fmt.Sprintf("%s@%d", owner, i)
		s.put(key, m.Attribute(a))
		for r := 0; r < rowCount(a); r++ {
			s.put(fmt.Sprintf("%s[%d]", key, r), m.Row(a, r))
		}
		if code, ok := a.(*classfile.CodeAttribute); ok {
			for off := range code.Code {
				s.put(fmt.Sprintf("%s+%d", key, off), m.Instruction(code, off))
			}
			m.snapshotAttributes(s, key, code.Attributes)
		}
	}
}

func rowCount(a classfile.Attribute) int {
	switch a := a.(type) {
	case *classfile.CodeAttribute:
		return len(a.ExceptionTable)
	case *classfile.InnerClassesAttribute:
		return len(a.Classes)
	case *classfile.ClassListAttribute:
		return len(a.Classes)
	case *classfile.BootstrapMethodsAttribute:
		return len(a.Methods)
	}
	return 0
}
