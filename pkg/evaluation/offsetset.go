package evaluation

import (
	"sort"
	"strconv"
	"strings"
)

// OffsetSet is an immutable sorted set of instruction offsets. Method
// parameters are encoded as negative entries, see ParameterOffset.
type OffsetSet struct {
	offsets []int
}

// NewOffsetSet builds a set from arbitrary offsets.
func NewOffsetSet(offsets ...int) OffsetSet {
	if len(offsets) == 0 {
		return OffsetSet{}
	}
	s := append([]int(nil), offsets...)
	sort.Ints(s)
	out := s[:1]
	for _, o := range s[1:] {
		if o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return OffsetSet{offsets: out}
}

// ParameterOffset encodes parameter i (the receiver is parameter 0 of an
// instance method) as a producer.
func ParameterOffset(i int) int { return -1 - i }

// IsParameter decodes a producer created by ParameterOffset.
func IsParameter(offset int) (int, bool) {
	if offset < 0 {
		return -1 - offset, true
	}
	return 0, false
}

func (s OffsetSet) Len() int { return len(s.offsets) }

func (s OffsetSet) IsEmpty() bool { return len(s.offsets) == 0 }

func (s OffsetSet) Contains(offset int) bool {
	i := sort.SearchInts(s.offsets, offset)
	return i < len(s.offsets) && s.offsets[i] == offset
}

// Slice returns the offsets in ascending order. The caller must not modify it.
func (s OffsetSet) Slice() []int { return s.offsets }

// Union returns s ∪ o, sharing storage with s when o adds nothing.
func (s OffsetSet) Union(o OffsetSet) OffsetSet {
	switch {
	case len(o.offsets) == 0:
		return s
	case len(s.offsets) == 0:
		return o
	}
	out := make([]int, 0, len(s.offsets)+len(o.offsets))
	i, j := 0, 0
	for i < len(s.offsets) && j < len(o.offsets) {
		a, b := s.offsets[i], o.offsets[j]
		switch {
		case a < b:
			out = append(out, a)
			i++
		case a > b:
			out = append(out, b)
			j++
		default:
			out = append(out, a)
			i++
			j++
		}
	}
	out = append(out, s.offsets[i:]...)
	out = append(out, o.offsets[j:]...)
	if len(out) == len(s.offsets) {
		return s
	}
	return OffsetSet{offsets: out}
}

func (s OffsetSet) Equal(o OffsetSet) bool {
	if len(s.offsets) != len(o.offsets) {
		return false
	}
	for i := range s.offsets {
		if s.offsets[i] != o.offsets[i] {
			return false
		}
	}
	return true
}

func (s OffsetSet) String() string {
	parts := make([]string, len(s.offsets))
	for i, o := range s.offsets {
		if p, ok := IsParameter(o); ok {
			parts[i] = "p" + strconv.Itoa(p)
		} else {
			parts[i] = strconv.Itoa(o)
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}
