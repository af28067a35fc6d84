package keep

import (
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// defaultSideEffectFree lists common library methods whose calls can be
// dropped when their result is unused.
const defaultSideEffectFree = `
assumenosideeffects class java.lang.Math { public static *** *(...); }
assumenosideeffects class java.lang.StrictMath { public static *** *(...); }
assumenosideeffects class java.lang.Object {
	public final java.lang.Class getClass();
	public boolean equals(java.lang.Object);
	public int hashCode();
}
assumenosideeffects class java.lang.String {
	public int length();
	public boolean isEmpty();
	public char charAt(int);
	public boolean equals(java.lang.Object);
	public int hashCode();
	public int compareTo(java.lang.String);
	public java.lang.String substring(...);
	public java.lang.String trim();
	public java.lang.String toString();
	public static java.lang.String valueOf(...);
}
assumenosideeffects class java.lang.Integer,java.lang.Long,java.lang.Short,java.lang.Byte,java.lang.Character,java.lang.Boolean,java.lang.Float,java.lang.Double {
	public static *** valueOf(%);
	public *** *Value();
	public static int compare(%,%);
}
`

// SideEffectTable answers whether a method call may be removed when its
// result is not used. It is read-only once built and safe for concurrent
// lookups.
type SideEffectTable struct {
	specs []*ClassSpec
}

// NewSideEffectTable keeps the assumption rules among specs.
func NewSideEffectTable(specs []*ClassSpec) *SideEffectTable {
	t := &SideEffectTable{}
	t.Add(specs...)
	return t
}

// DefaultSideEffectTable returns a table seeded with the built-in library
// assumptions plus the given rules.
func DefaultSideEffectTable(specs ...*ClassSpec) *SideEffectTable {
	t := NewSideEffectTable(MustParse(defaultSideEffectFree))
	t.Add(specs...)
	return t
}

// Add appends assumption rules, ignoring any other rule kind.
func (t *SideEffectTable) Add(specs ...*ClassSpec) {
	for _, s := range specs {
		if s.Rule == RuleAssumeNoSideEffects {
			t.specs = append(t.specs, s)
		}
	}
}

// Len returns the number of assumption rules.
func (t *SideEffectTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.specs)
}

// Lookup reports whether class.name desc is free of side effects. When the
// program declares the method (directly or by inheritance), class and
// member flags are checked as well; otherwise only names are compared.
func (t *SideEffectTable) Lookup(p *classfile.Program, class, name, desc string) bool {
	if t == nil {
		return false
	}
	var (
		owner  *classfile.Class
		member *classfile.Member
	)
	if p != nil {
		if id := p.Lookup(class); id != classfile.NoClass {
			if oid, m := p.ResolveMethod(id, name, desc); m != nil {
				owner, member = p.Class(oid), m
			}
		}
	}
	for _, s := range t.specs {
		if !s.Name.Match(class) && (owner == nil || !s.Name.Match(owner.Name())) {
			continue
		}
		for i := range s.Members {
			ms := &s.Members[i]
			if member != nil {
				if ms.MatchSignature(member.AccessFlags, name, desc, true) {
					return true
				}
				continue
			}
			if ms.MatchSignature(0, name, desc, false) {
				return true
			}
		}
	}
	return false
}
