package evaluation

import (
	"fmt"
	"strings"
)

// Entry is one operand stack element: a value and the instructions that
// may have pushed it.
type Entry struct {
	Value     Value
	Producers OffsetSet
}

func (e Entry) String() string { return e.Value.String() + e.Producers.String() }

// Variables are the local variable slots of a frame. A long or double
// occupies its slot and the next one, which holds Top.
type Variables struct {
	values    []Value
	producers []OffsetSet
}

func NewVariables(size int) Variables {
	return Variables{values: make([]Value, size), producers: make([]OffsetSet, size)}
}

func (v Variables) Size() int { return len(v.values) }

// Value returns the value in slot i.
func (v Variables) Value(i int) Value { return v.values[i] }

// Producers returns the stores, or parameters, that may have written slot i.
func (v Variables) Producers(i int) OffsetSet { return v.producers[i] }

// Store writes slot i, invalidating a wide value it overlaps.
func (v Variables) Store(i int, val Value, producers OffsetSet) {
	v.values[i] = val
	v.producers[i] = producers
	if val.Category() == 2 {
		v.values[i+1] = Top()
		v.producers[i+1] = OffsetSet{}
	}
	if i > 0 && v.values[i-1].Category() == 2 {
		v.values[i-1] = Top()
	}
}

func (v Variables) clone() Variables {
	return Variables{
		values:    append([]Value(nil), v.values...),
		producers: append([]OffsetSet(nil), v.producers...),
	}
}

// generalize joins o into v and reports whether v changed.
func (v Variables) generalize(o Variables) bool {
	changed := false
	for i := range v.values {
		val := v.values[i].Generalize(o.values[i])
		prod := v.producers[i].Union(o.producers[i])
		if val != v.values[i] || prod.Len() != v.producers[i].Len() {
			changed = true
		}
		v.values[i], v.producers[i] = val, prod
	}
	return changed
}

// Stack is the operand stack. Each entry holds a whole value whatever its
// category.
type Stack struct {
	entries []Entry
}

func (s *Stack) Push(e Entry) { s.entries = append(s.entries, e) }

// Pop removes the top entry. The caller checks Size first.
func (s *Stack) Pop() Entry {
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e
}

// Peek returns the entry i positions below the top.
func (s *Stack) Peek(i int) Entry { return s.entries[len(s.entries)-1-i] }

// Size is the number of entries.
func (s *Stack) Size() int { return len(s.entries) }

// Depth is the number of words, counting longs and doubles twice.
func (s *Stack) Depth() int {
	n := 0
	for _, e := range s.entries {
		n += e.Value.Category()
	}
	return n
}

func (s *Stack) clone() Stack { return Stack{entries: append([]Entry(nil), s.entries...)} }

func (s *Stack) generalize(o *Stack) (bool, error) {
	if len(s.entries) != len(o.entries) {
		return false, fmt.Errorf("stack size %d does not match %d", len(s.entries), len(o.entries))
	}
	changed := false
	for i := range s.entries {
		a, b := s.entries[i], o.entries[i]
		val := a.Value.Generalize(b.Value)
		if val.Kind() == KindTop && a.Value.Kind() != KindTop {
			return false, fmt.Errorf("stack entry %d is %s on one path and %s on another", i, a.Value.Kind(), b.Value.Kind())
		}
		prod := a.Producers.Union(b.Producers)
		if val != a.Value || prod.Len() != a.Producers.Len() {
			changed = true
		}
		s.entries[i] = Entry{Value: val, Producers: prod}
	}
	return changed, nil
}

// Frame is the abstract machine state before an instruction.
type Frame struct {
	Locals Variables
	Stack  Stack
}

func NewFrame(maxLocals int) *Frame { return &Frame{Locals: NewVariables(maxLocals)} }

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return &Frame{Locals: f.Locals.clone(), Stack: f.Stack.clone()}
}

// Generalize joins o into f and reports whether f changed. Stacks of
// different shapes cannot be joined.
func (f *Frame) Generalize(o *Frame) (bool, error) {
	changed, err := f.Stack.generalize(&o.Stack)
	if err != nil {
		return false, err
	}
	if f.Locals.generalize(o.Locals) {
		changed = true
	}
	return changed, nil
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("locals [")
	for i := 0; i < f.Locals.Size(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Locals.Value(i).String())
	}
	sb.WriteString("] stack [")
	for i, e := range f.Stack.entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Value.String())
	}
	sb.WriteString("]")
	return sb.String()
}
