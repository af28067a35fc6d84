package keep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

func program(t *testing.T) *classfile.Program {
	t.Helper()
	object := classfile.NewBuilder("java/lang/Object", "", classfile.AccPublic).Library()

	main := classfile.NewBuilder("app/Main", "java/lang/Object", classfile.AccPublic)
	main.AddField(classfile.AccPrivate, "count", "I")
	main.AddField(classfile.AccPublic|classfile.AccStatic, "NAME", "Ljava/lang/String;")
	main.AddMethod(classfile.AccPublic, "<init>", "()V", nil)
	main.AddMethod(classfile.AccPublic|classfile.AccStatic, "main", "([Ljava/lang/String;)V", nil)
	main.AddMethod(classfile.AccPrivate, "helper", "()V", nil)

	plugin := classfile.NewBuilder("app/Plugin", "java/lang/Object", classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract)
	plugin.AddMethod(classfile.AccPublic|classfile.AccAbstract, "run", "()V", nil)

	impl := classfile.NewBuilder("app/impl/PluginImpl", "java/lang/Object", classfile.AccPublic)
	impl.AddInterface("app/Plugin")
	impl.AddMethod(classfile.AccPublic, "run", "()V", nil)
	impl.AddMethod(classfile.AccPrivate, "unused", "()V", nil)

	sub := classfile.NewBuilder("app/impl/SubImpl", "app/impl/PluginImpl", classfile.AccPublic)
	sub.AddMethod(classfile.AccPublic, "more", "()V", nil)

	color := classfile.NewBuilder("app/Color", "java/lang/Enum", classfile.AccPublic|classfile.AccFinal|classfile.AccEnum)
	color.AddMethod(classfile.AccPublic|classfile.AccStatic, "values", "()[Lapp/Color;", nil)
	color.AddMethod(classfile.AccPublic|classfile.AccStatic, "valueOf", "(Ljava/lang/String;)Lapp/Color;", nil)

	log := classfile.NewBuilder("app/Log", "java/lang/Object", classfile.AccPublic)
	log.AddMethod(classfile.AccPublic|classfile.AccStatic, "d", "(Ljava/lang/String;)V", nil)
	log.AddMethod(classfile.AccPublic, "e", "(Ljava/lang/String;)V", nil)
	subLog := classfile.NewBuilder("app/SubLog", "app/Log", classfile.AccPublic)

	p, err := classfile.NewProgramOf(object.Build(), main.Build(), plugin.Build(), impl.Build(), sub.Build(),
		color.Build(), log.Build(), subLog.Build())
	require.NoError(t, err)
	return p
}

func TestParse_Rule(t *testing.T) {
	specs, err := Parse(`
		# entry point
		-keep public class com.example.Main {
			public static void main(java.lang.String[]);
		}`)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	s := specs[0]
	assert.Equal(t, RuleKeep, s.Rule)
	assert.False(t, s.AllowShrinking)
	assert.Equal(t, classfile.AccPublic, s.Required)
	name, ok := s.Name.IsLiteral()
	assert.True(t, ok)
	assert.Equal(t, "com/example/Main", name)
	assert.Nil(t, s.Extends)
	assert.Equal(t, "keep public class com.example.Main { public static void main(java.lang.String[]); }", s.Text)

	require.Len(t, s.Members, 1)
	m := s.Members[0]
	assert.True(t, m.Methods)
	assert.False(t, m.Fields)
	assert.Equal(t, classfile.AccPublic|classfile.AccStatic, m.Required)
	assert.True(t, m.Name.Match("main"))
	require.Len(t, m.Params, 1)
	assert.Equal(t, "java.lang.String[]", m.Params[0].String())
}

func TestParse_Variants(t *testing.T) {
	specs, err := Parse(`
		keepnames class a.B
		keep,allowshrinking class a.C
		keepclassmembers !public enum * { public static **[] values(); }
		keepclasseswithmembers interface a.*, b.** extends a.Base
		assumenosideeffects class java.lang.Math { public static *** *(...); }
		keep class X`)
	require.NoError(t, err)
	require.Len(t, specs, 6)

	assert.True(t, specs[0].AllowShrinking)
	assert.Equal(t, RuleKeep, specs[0].Rule)
	assert.True(t, specs[1].AllowShrinking)

	assert.Equal(t, RuleKeepClassMembers, specs[2].Rule)
	assert.Equal(t, classfile.AccEnum, specs[2].Required)
	assert.Equal(t, classfile.AccPublic, specs[2].Forbidden)
	assert.True(t, specs[2].Name.Match("deep/pkg/Color"), "a lone * names classes in any package")

	assert.Equal(t, RuleKeepClassesWithMembers, specs[3].Rule)
	assert.Equal(t, classfile.AccInterface, specs[3].Required)
	assert.True(t, specs[3].Name.Match("b/x/Y"))
	assert.False(t, specs[3].Name.Match("a/x/Y"))
	assert.True(t, specs[3].Extends.Match("a/Base"))

	assert.Equal(t, RuleAssumeNoSideEffects, specs[4].Rule)
	assert.True(t, specs[4].Members[0].AnyParams)
	assert.Equal(t, "keep class X", specs[5].Text)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"keyword only", "keep"},
		{"no class name", "keep class"},
		{"unknown rule", "frobnicate class A"},
		{"unknown option", "keep,allowfoo class A"},
		{"unterminated members", "keep class A { *;"},
		{"field without type", "keep class A { count; }"},
		{"method without return type", "keep class A { run(); }"},
		{"missing semicolon", "keep class A { int x }"},
		{"unclosed params", "keep class A { void run(int; }"},
		{"bad class keyword", "keep public A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}

	_, err := ParseRules([]string{"keep class A", "keep class"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 2")
	assert.Panics(t, func() { MustParse("keep") })
}

func memberSpec(t *testing.T, member string) *MemberSpec {
	t.Helper()
	specs, err := Parse("keep class X { " + member + " }")
	require.NoError(t, err)
	return &specs[0].Members[0]
}

func TestMemberSpec_Match(t *testing.T) {
	p := program(t)
	main := p.Class(p.Lookup("app/Main"))

	tests := []struct {
		member string
		want   []string
	}{
		{"*;", []string{"count:I", "NAME:Ljava/lang/String;", "<init>()V", "main([Ljava/lang/String;)V", "helper()V"}},
		{"<fields>;", []string{"count:I", "NAME:Ljava/lang/String;"}},
		{"public static <fields>;", []string{"NAME:Ljava/lang/String;"}},
		{"!static <fields>;", []string{"count:I"}},
		{"public <methods>;", []string{"<init>()V", "main([Ljava/lang/String;)V"}},
		{"<init>(...);", []string{"<init>()V"}},
		{"<init>(int);", nil},
		{"*** *(...);", []string{"<init>()V", "main([Ljava/lang/String;)V", "helper()V"}},
		{"java.lang.String NAME;", []string{"NAME:Ljava/lang/String;"}},
		{"% *;", []string{"count:I"}},
		{"*** c*;", []string{"count:I"}},
		{"public static void main(java.lang.String[]);", []string{"main([Ljava/lang/String;)V"}},
		{"void main(java.lang.*[]);", []string{"main([Ljava/lang/String;)V"}},
		{"void main(int,...);", nil},
		{"void main(...,java.lang.String[]);", []string{"main([Ljava/lang/String;)V"}},
		{"void helper();", []string{"helper()V"}},
		{"public void helper();", nil},
	}
	for _, tt := range tests {
		t.Run(tt.member, func(t *testing.T) {
			ms := memberSpec(t, tt.member)
			var got []string
			for _, m := range main.Members() {
				if ms.Match(main, m) {
					got = append(got, m.Signature(main))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

type recorder struct {
	classes []string
	members []string
}

func (r *recorder) KeepClass(c *classfile.Class, _ *ClassSpec) {
	r.classes = append(r.classes, c.Name())
}

func (r *recorder) KeepMember(c *classfile.Class, m *classfile.Member, _ *ClassSpec) {
	r.members = append(r.members, c.Name()+"."+m.Signature(c))
}

func TestSeeder_Seed(t *testing.T) {
	p := program(t)
	specs := MustParse(`
		keep class app.Main { public static void main(java.lang.String[]); }
		keep class * implements app.Plugin { public <methods>; }
		keepclassmembers enum * { public static **[] values(); }
		keepnames class app.Log
		keep class app.Missing
		assumenosideeffects class app.Log { *; }`)

	s := NewSeeder(p, specs)
	assert.True(t, s.HasConditional())

	var r recorder
	unmatched := s.Seed(&r)
	assert.Equal(t, []string{"app/Main", "app/impl/PluginImpl", "app/impl/SubImpl"}, r.classes)
	assert.Equal(t, []string{
		"app/Main.main([Ljava/lang/String;)V",
		"app/impl/PluginImpl.run()V",
		"app/impl/SubImpl.more()V",
	}, r.members)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "keep class app.Missing", unmatched[0].Text)

	r = recorder{}
	s.SeedMembers(p.Class(p.Lookup("app/Color")), &r)
	s.SeedMembers(p.Class(p.Lookup("app/Main")), &r)
	assert.Empty(t, r.classes)
	assert.Equal(t, []string{"app/Color.values()[Lapp/Color;"}, r.members)
}

func TestSeeder_ClassesWithMembers(t *testing.T) {
	p := program(t)
	s := NewSeeder(p, MustParse(`keepclasseswithmembers class * { public static void main(java.lang.String[]); }`))
	assert.False(t, s.HasConditional())

	var r recorder
	assert.Empty(t, s.Seed(&r))
	assert.Equal(t, []string{"app/Main"}, r.classes)
	assert.Equal(t, []string{"app/Main.main([Ljava/lang/String;)V"}, r.members)
}

func TestClassSpec_Extends(t *testing.T) {
	p := program(t)
	spec := MustParse("keep class ** extends app.Log")[0]

	assert.True(t, spec.MatchClass(p, p.Class(p.Lookup("app/SubLog"))))
	assert.False(t, spec.MatchClass(p, p.Class(p.Lookup("app/Log"))), "a class does not extend itself")

	spec = MustParse("keep class ** implements app.Plugin")[0]
	assert.True(t, spec.MatchClass(p, p.Class(p.Lookup("app/impl/SubImpl"))), "interfaces are inherited")
	assert.False(t, spec.MatchClass(p, p.Class(p.Lookup("app/Main"))))

	// Supertypes outside the program still match by name.
	spec = MustParse("keep class ** extends java.lang.Enum")[0]
	assert.True(t, spec.MatchClass(p, p.Class(p.Lookup("app/Color"))))
}

func TestSideEffectTable_Lookup(t *testing.T) {
	p := program(t)
	table := DefaultSideEffectTable(MustParse(`
		keep class app.Main
		assumenosideeffects class app.Log { public static void d(...); }`)...)
	assert.Greater(t, table.Len(), 1)

	tests := []struct {
		class, name, desc string
		want              bool
	}{
		{"java/lang/Math", "sqrt", "(D)D", true},
		{"java/lang/StrictMath", "max", "(II)I", true},
		{"java/lang/String", "length", "()I", true},
		{"java/lang/String", "substring", "(II)Ljava/lang/String;", true},
		{"java/lang/String", "getBytes", "()[B", false},
		{"java/lang/Integer", "valueOf", "(I)Ljava/lang/Integer;", true},
		{"java/lang/Integer", "valueOf", "(Ljava/lang/String;)Ljava/lang/Integer;", false},
		{"java/lang/Long", "compare", "(JJ)I", true},
		{"java/lang/Double", "doubleValue", "()D", true},
		{"app/Log", "d", "(Ljava/lang/String;)V", true},
		{"app/Log", "e", "(Ljava/lang/String;)V", false},
		{"app/SubLog", "d", "(Ljava/lang/String;)V", true},
		{"app/Main", "main", "([Ljava/lang/String;)V", false},
		{"java/lang/System", "exit", "(I)V", false},
	}
	for _, tt := range tests {
		t.Run(tt.class+"."+tt.name+tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Lookup(p, tt.class, tt.name, tt.desc))
		})
	}

	var none *SideEffectTable
	assert.False(t, none.Lookup(p, "java/lang/Math", "abs", "(I)I"))
	assert.Zero(t, none.Len())
}

func TestSideEffectTable_ChecksDeclaredFlags(t *testing.T) {
	p := program(t)
	table := NewSideEffectTable(MustParse(`assumenosideeffects class app.Log { public static void *(java.lang.String); }`))

	assert.True(t, table.Lookup(p, "app/Log", "d", "(Ljava/lang/String;)V"))
	assert.False(t, table.Lookup(p, "app/Log", "e", "(Ljava/lang/String;)V"), "e is not static")
	assert.True(t, table.Lookup(nil, "app/Log", "e", "(Ljava/lang/String;)V"), "without a program only names count")
}
