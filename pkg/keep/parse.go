package keep

import (
	"errors"
	"fmt"
	"strings"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/visitor"
)

// ErrSyntax is wrapped by every rule parse error.
var ErrSyntax = errors.New("keep rule syntax error")

type token struct {
	text  string
	line  int
	start int
	end   int
}

type parser struct {
	src    string
	tokens []token
	pos    int
}

func tokenize(src string) []token {
	var tokens []token
	line := 1
	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case ch == '\n':
			line++
			i++
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.IndexByte("{}();,", ch) >= 0:
			tokens = append(tokens, token{text: src[i : i+1], line: line, start: i, end: i + 1})
			i++
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\r\n#{}();,", rune(src[j])) {
				j++
			}
			tokens = append(tokens, token{text: src[i:j], line: line, start: i, end: j})
			i = j
		}
	}
	return tokens
}

var ruleKeywords = map[string]struct {
	rule           RuleKind
	allowShrinking bool
}{
	"keep":                       {RuleKeep, false},
	"keepclassmembers":           {RuleKeepClassMembers, false},
	"keepclasseswithmembers":     {RuleKeepClassesWithMembers, false},
	"keepnames":                  {RuleKeep, true},
	"keepclassmembernames":       {RuleKeepClassMembers, true},
	"keepclasseswithmembernames": {RuleKeepClassesWithMembers, true},
	"assumenosideeffects":        {RuleAssumeNoSideEffects, false},
}

func isRuleKeyword(s string) bool {
	_, ok := ruleKeywords[strings.TrimPrefix(s, "-")]
	return ok
}

// Parse reads a list of rules such as
//
//	keep public class com.example.Main { public static void main(java.lang.String[]); }
//	keepclassmembers enum * { public static **[] values(); }
//	assumenosideeffects class java.lang.Math { public static *** *(...); }
//
// Rule keywords may carry a leading '-'. '#' starts a comment.
func Parse(src string) ([]*ClassSpec, error) {
	p := &parser{src: src, tokens: tokenize(src)}
	var specs []*ClassSpec
	for !p.eof() {
		spec, err := p.rule()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ParseRules parses each rule string in turn, as read from a configuration
// list.
func ParseRules(rules []string) ([]*ClassSpec, error) {
	var specs []*ClassSpec
	for i, rule := range rules {
		parsed, err := Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		specs = append(specs, parsed...)
	}
	return specs, nil
}

// MustParse is Parse for rules known to be valid.
func MustParse(src string) []*ClassSpec {
	specs, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return specs
}

func (p *parser) eof() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() string {
	if p.eof() {
		return ""
	}
	return p.tokens[p.pos].text
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	line := 0
	switch {
	case !p.eof():
		line = p.tokens[p.pos].line
	case len(p.tokens) > 0:
		line = p.tokens[len(p.tokens)-1].line
	}
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, fmt.Sprintf(format, args...))
}

func (p *parser) expect(text string) error {
	if p.peek() != text {
		if p.eof() {
			return p.errorf("expected %q, found end of input", text)
		}
		return p.errorf("expected %q, found %q", text, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) word(what string) (string, error) {
	if p.eof() || strings.IndexByte("{}();,", p.peek()[0]) >= 0 {
		if p.eof() {
			return "", p.errorf("expected %s, found end of input", what)
		}
		return "", p.errorf("expected %s, found %q", what, p.peek())
	}
	return p.next().text, nil
}

func (p *parser) rule() (*ClassSpec, error) {
	first := p.next()
	kw, ok := ruleKeywords[strings.TrimPrefix(first.text, "-")]
	if !ok {
		p.pos--
		return nil, p.errorf("unknown rule %q", first.text)
	}
	spec := &ClassSpec{Rule: kw.rule, AllowShrinking: kw.allowShrinking}

	for p.peek() == "," {
		p.pos++
		opt, err := p.word("rule option")
		if err != nil {
			return nil, err
		}
		switch opt {
		case "allowshrinking":
			spec.AllowShrinking = true
		case "allowobfuscation", "allowoptimization", "includedescriptorclasses":
		default:
			p.pos--
			return nil, p.errorf("unknown rule option %q", opt)
		}
	}

	if err := p.classHeader(spec); err != nil {
		return nil, err
	}
	if p.peek() == "{" {
		p.pos++
		for p.peek() != "}" {
			if p.eof() {
				return nil, p.errorf("unterminated member list")
			}
			ms, err := p.member()
			if err != nil {
				return nil, err
			}
			spec.Members = append(spec.Members, ms)
		}
		p.pos++
	}
	last := p.tokens[p.pos-1]
	spec.Text = strings.Join(strings.Fields(p.src[first.start:last.end]), " ")
	spec.Text = strings.TrimPrefix(spec.Text, "-")
	return spec, nil
}

func (p *parser) modifier(required, forbidden *classfile.AccessFlags) bool {
	text := p.peek()
	negate := strings.HasPrefix(text, "!")
	flag, ok := classfile.ParseModifier(strings.TrimPrefix(text, "!"))
	if !ok {
		return false
	}
	p.pos++
	if negate {
		*forbidden |= flag
	} else {
		*required |= flag
	}
	return true
}

func (p *parser) classHeader(spec *ClassSpec) error {
	for {
		switch p.peek() {
		case "class":
		case "interface":
			spec.Required |= classfile.AccInterface
		case "!interface":
			spec.Forbidden |= classfile.AccInterface
		case "@interface":
			spec.Required |= classfile.AccInterface | classfile.AccAnnotation
		case "enum":
			spec.Required |= classfile.AccEnum
		default:
			if p.modifier(&spec.Required, &spec.Forbidden) {
				continue
			}
			if p.eof() {
				return p.errorf("expected class keyword, found end of input")
			}
			return p.errorf("expected class keyword, found %q", p.peek())
		}
		p.pos++
		break
	}

	names, err := p.nameList()
	if err != nil {
		return err
	}
	spec.Name = visitor.NewClassMatcher(names)

	if t := p.peek(); t == "extends" || t == "implements" {
		p.pos++
		super, err := p.nameList()
		if err != nil {
			return err
		}
		spec.Extends = visitor.NewClassMatcher(super)
	}
	return nil
}

func (p *parser) nameList() (string, error) {
	name, err := p.word("class name")
	if err != nil {
		return "", err
	}
	names := []string{anyClass(name)}
	// Commas only continue the list when a name follows.
	for p.peek() == "," && p.pos+1 < len(p.tokens) && !isRuleKeyword(p.tokens[p.pos+1].text) {
		p.pos++
		name, err := p.word("class name")
		if err != nil {
			return "", err
		}
		names = append(names, anyClass(name))
	}
	return strings.Join(names, ","), nil
}

// A lone '*' names every class, whatever its package.
func anyClass(name string) string {
	if name == "*" {
		return "**"
	}
	return name
}

func (p *parser) member() (MemberSpec, error) {
	var ms MemberSpec
	for p.modifier(&ms.Required, &ms.Forbidden) {
	}

	var words []string
	for !p.eof() && p.peek() != "(" && p.peek() != ";" {
		w, err := p.word("member")
		if err != nil {
			return ms, err
		}
		words = append(words, w)
	}

	method := p.peek() == "("
	switch {
	case len(words) == 1 && !method:
		switch words[0] {
		case "*":
			ms.Fields, ms.Methods = true, true
		case "<fields>":
			ms.Fields = true
		case "<methods>":
			ms.Methods = true
		default:
			return ms, p.errorf("field %q needs a type", words[0])
		}
	case len(words) == 1 && method:
		if words[0] != "<init>" && words[0] != "<clinit>" {
			return ms, p.errorf("method %q needs a return type", words[0])
		}
		ms.Methods = true
		ms.Name = visitor.NewMatcher(words[0])
		void := NewTypePattern("void")
		ms.Type = &void
	case len(words) == 2:
		tp := NewTypePattern(words[0])
		ms.Type = &tp
		ms.Name = visitor.NewMatcher(words[1])
		ms.Fields, ms.Methods = !method, method
	default:
		return ms, p.errorf("malformed member %q", strings.Join(words, " "))
	}

	if method {
		params, any, err := p.params()
		if err != nil {
			return ms, err
		}
		ms.Params, ms.AnyParams = params, any
	}
	return ms, p.expect(";")
}

func (p *parser) params() ([]TypePattern, bool, error) {
	if err := p.expect("("); err != nil {
		return nil, false, err
	}
	params := []TypePattern{}
	if p.peek() == ")" {
		p.pos++
		return params, false, nil
	}
	for {
		w, err := p.word("parameter type")
		if err != nil {
			return nil, false, err
		}
		params = append(params, NewTypePattern(w))
		if p.peek() == ")" {
			p.pos++
			break
		}
		if err := p.expect(","); err != nil {
			return nil, false, err
		}
	}
	if len(params) == 1 && params[0].text == "..." {
		return nil, true, nil
	}
	return params, false, nil
}
