package keep

import (
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// Seeds receives what keep rules retain.
type Seeds interface {
	KeepClass(c *classfile.Class, spec *ClassSpec)
	KeepMember(c *classfile.Class, m *classfile.Member, spec *ClassSpec)
}

// Seeder applies keep rules to a program. Rules that allow shrinking and
// assumption rules do not seed anything.
type Seeder struct {
	program     *classfile.Program
	classes     []*ClassSpec
	conditional []*ClassSpec
}

// NewSeeder sorts the rules into unconditional and class-conditional ones.
func NewSeeder(p *classfile.Program, specs []*ClassSpec) *Seeder {
	s := &Seeder{program: p}
	for _, spec := range specs {
		if spec.AllowShrinking {
			continue
		}
		switch spec.Rule {
		case RuleKeep, RuleKeepClassesWithMembers:
			s.classes = append(s.classes, spec)
		case RuleKeepClassMembers:
			s.conditional = append(s.conditional, spec)
		}
	}
	return s
}

// Seed reports every class and member kept unconditionally and returns the
// rules that matched no class.
func (s *Seeder) Seed(t Seeds) []*ClassSpec {
	var unmatched []*ClassSpec
	for _, spec := range s.classes {
		matched := false
		spec.Accept(s.program, classfile.ClassFunc(func(c *classfile.Class) {
			matched = true
			t.KeepClass(c, spec)
			spec.MembersAccept(c, keepMembers{t, spec})
		}))
		if !matched {
			unmatched = append(unmatched, spec)
		}
	}
	return unmatched
}

// SeedMembers reports the members of c kept by class-conditional rules. It
// is called once c is known to be used.
func (s *Seeder) SeedMembers(c *classfile.Class, t Seeds) {
	for _, spec := range s.conditional {
		if spec.MatchClass(s.program, c) {
			spec.MembersAccept(c, keepMembers{t, spec})
		}
	}
}

// HasConditional reports whether any rule depends on class use.
func (s *Seeder) HasConditional() bool { return len(s.conditional) > 0 }

type keepMembers struct {
	seeds Seeds
	spec  *ClassSpec
}

func (k keepMembers) VisitProgramField(c *classfile.Class, m *classfile.Member) {
	k.seeds.KeepMember(c, m, k.spec)
}

func (k keepMembers) VisitProgramMethod(c *classfile.Class, m *classfile.Member) {
	k.seeds.KeepMember(c, m, k.spec)
}

func (k keepMembers) VisitLibraryField(c *classfile.Class, m *classfile.Member) {
	k.seeds.KeepMember(c, m, k.spec)
}

func (k keepMembers) VisitLibraryMethod(c *classfile.Class, m *classfile.Member) {
	k.seeds.KeepMember(c, m, k.spec)
}
