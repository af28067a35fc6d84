// Package report summarizes an optimization run: what was kept and removed,
// how much the constant pools shrank and what the evaluator found in every
// surviving method. Reports persist with msgpack and print as JSON or text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-class-shrink/pkg/evaluation"
	"github.com/l3aro/go-class-shrink/pkg/optimize"
	"github.com/l3aro/go-class-shrink/pkg/shrink"
	"github.com/l3aro/go-class-shrink/pkg/usage"
)

// Version is bumped whenever the persisted layout changes.
const Version = 1

// ClassEntry lists members of one class. In Report.Removed a class with
// Whole set was dropped entirely and Members lists what it declared.
type ClassEntry struct {
	Name    string   `json:"name" msgpack:"name"`
	Whole   bool     `json:"whole,omitempty" msgpack:"whole"`
	Members []string `json:"members,omitempty" msgpack:"members"`
}

// Fact is a value or outcome found at one instruction.
type Fact struct {
	Offset int    `json:"offset" msgpack:"off"`
	Value  string `json:"value" msgpack:"val"`
}

// MethodFacts holds the evaluation result of one method in printable form.
type MethodFacts struct {
	Class                string `json:"class" msgpack:"class"`
	Method               string `json:"method" msgpack:"method"`
	Instructions         int    `json:"instructions" msgpack:"insns"`
	Unreachable          []int  `json:"unreachable,omitempty" msgpack:"unreachable"`
	DeadStores           []int  `json:"dead_stores,omitempty" msgpack:"dead"`
	UnusedParameters     []int  `json:"unused_parameters,omitempty" msgpack:"unused"`
	EscapingParameters   []int  `json:"escaping_parameters,omitempty" msgpack:"escaping"`
	RemovableInvocations []int  `json:"removable_invocations,omitempty" msgpack:"removable"`
	DecidedBranches      []Fact `json:"decided_branches,omitempty" msgpack:"branches"`
	Constants            []Fact `json:"constants,omitempty" msgpack:"constants"`
	Webs                 int    `json:"webs" msgpack:"webs"`
}

// Finds reports whether the evaluator found anything to optimize.
func (f *MethodFacts) Finds() bool {
	return len(f.Unreachable)+len(f.DeadStores)+len(f.UnusedParameters)+
		len(f.RemovableInvocations)+len(f.DecidedBranches)+len(f.Constants) > 0
}

// MethodError records a method the evaluator rejected.
type MethodError struct {
	Class   string `json:"class" msgpack:"class"`
	Method  string `json:"method" msgpack:"method"`
	Message string `json:"message" msgpack:"msg"`
}

// Report is the persisted summary of one run.
type Report struct {
	Version   int              `json:"version" msgpack:"v"`
	CreatedAt time.Time        `json:"created_at" msgpack:"created"`
	Inputs    []string         `json:"inputs,omitempty" msgpack:"inputs"`
	Marks     usage.Summary    `json:"marks" msgpack:"marks"`
	Stats     shrink.Stats     `json:"stats" msgpack:"stats"`
	Timings   optimize.Timings `json:"timings" msgpack:"timings"`
	Kept      []ClassEntry     `json:"kept" msgpack:"kept"`
	Removed   []ClassEntry     `json:"removed" msgpack:"removed"`
	Methods   []MethodFacts    `json:"methods" msgpack:"methods"`
	Errors    []MethodError    `json:"errors,omitempty" msgpack:"errors"`
}

// New builds the report of a run. Inputs names the files the program was
// loaded from and may be nil.
func New(out *optimize.Output, inputs []string) *Report {
	r := &Report{
		Version:   Version,
		CreatedAt: time.Now().UTC(),
		Inputs:    inputs,
		Marks:     out.Marks.Summary(),
		Stats:     out.Stats,
		Timings:   out.Timings,
	}

	for _, c := range out.Input.Classes() {
		if c.Library {
			continue
		}
		var kept, removed []string
		for _, m := range c.Members() {
			if out.Marks.IsMemberUsed(m) {
				kept = append(kept, m.Signature(c))
			} else {
				removed = append(removed, m.Signature(c))
			}
		}
		if !out.Marks.IsClassUsed(c.ID()) {
			r.Removed = append(r.Removed, ClassEntry{Name: c.Name(), Whole: true, Members: append(kept, removed...)})
			continue
		}
		r.Kept = append(r.Kept, ClassEntry{Name: c.Name(), Members: kept})
		if len(removed) > 0 {
			r.Removed = append(r.Removed, ClassEntry{Name: c.Name(), Members: removed})
		}
	}
	sortEntries(r.Kept)
	sortEntries(r.Removed)

	for _, res := range out.Results {
		r.Methods = append(r.Methods, Facts(res))
	}
	for _, f := range out.Failures {
		r.Errors = append(r.Errors, MethodError{Class: f.Class, Method: f.Method, Message: f.Err.Error()})
	}
	return r
}

func sortEntries(entries []ClassEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
}

// Facts condenses an evaluation result.
func Facts(res *evaluation.Result) MethodFacts {
	f := MethodFacts{
		Class:                res.Class,
		Method:               res.Method,
		Instructions:         len(res.Instructions),
		Unreachable:          res.Unreachable,
		DeadStores:           res.DeadStores,
		UnusedParameters:     res.UnusedParameters(),
		RemovableInvocations: res.RemovableInvocations,
		Webs:                 len(res.Webs),
	}
	for _, p := range res.Parameters {
		if p.Escapes {
			f.EscapingParameters = append(f.EscapingParameters, p.Index)
		}
	}
	for off, outcome := range res.Branches {
		if outcome != evaluation.OutcomeUnknown {
			f.DecidedBranches = append(f.DecidedBranches, Fact{Offset: off, Value: outcome.String()})
		}
	}
	for off, target := range res.SwitchTargets {
		f.DecidedBranches = append(f.DecidedBranches, Fact{Offset: off, Value: fmt.Sprintf("goto %d", target)})
	}
	for off, v := range res.Constants {
		f.Constants = append(f.Constants, Fact{Offset: off, Value: v.String()})
	}
	sortFacts(f.DecidedBranches)
	sortFacts(f.Constants)
	return f
}

func sortFacts(facts []Fact) {
	sort.Slice(facts, func(i, j int) bool { return facts[i].Offset < facts[j].Offset })
}

// Save persists the report to a file using msgpack, creating parent
// directories as needed.
func (r *Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := msgpack.NewEncoder(file).Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// Load restores a report saved by Save.
func Load(path string) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var r Report
	if err := msgpack.NewDecoder(file).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if r.Version != Version {
		return nil, fmt.Errorf("report %s has version %d, want %d", path, r.Version, Version)
	}
	return &r, nil
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human-readable summary. Methods without findings are
// left out unless verbose is set.
func (r *Report) WriteText(w io.Writer, verbose bool) error {
	s := r.Stats
	fmt.Fprintf(w, "=== Shrink report (%s) ===\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Classes:    %d -> %d\n", s.Classes.Before, s.Classes.After)
	fmt.Fprintf(w, "Fields:     %d -> %d\n", s.Fields.Before, s.Fields.After)
	fmt.Fprintf(w, "Methods:    %d -> %d\n", s.Methods.Before, s.Methods.After)
	fmt.Fprintf(w, "Constants:  %d -> %d\n", s.Constants.Before, s.Constants.After)
	fmt.Fprintf(w, "Attributes: %d -> %d\n", s.Attributes.Before, s.Attributes.After)

	if len(r.Removed) > 0 {
		fmt.Fprintf(w, "\nRemoved (%d):\n", len(r.Removed))
		for _, e := range r.Removed {
			if e.Whole {
				fmt.Fprintf(w, "  %s\n", e.Name)
				continue
			}
			for _, m := range e.Members {
				fmt.Fprintf(w, "  %s.%s\n", e.Name, m)
			}
		}
	}

	fmt.Fprintf(w, "\nMethods evaluated: %d\n", len(r.Methods))
	for _, m := range r.Methods {
		if !verbose && !m.Finds() {
			continue
		}
		m.WriteText(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s.%s: %s\n", e.Class, e.Method, e.Message)
		}
	}
	return nil
}

// WriteText writes the method name followed by one line per finding.
func (f *MethodFacts) WriteText(w io.Writer) {
	fmt.Fprintf(w, "  %s.%s\n", f.Class, f.Method)
	writeInts(w, "unreachable", f.Unreachable)
	writeInts(w, "dead stores", f.DeadStores)
	writeInts(w, "unused parameters", f.UnusedParameters)
	writeInts(w, "escaping parameters", f.EscapingParameters)
	writeInts(w, "removable calls", f.RemovableInvocations)
	for _, b := range f.DecidedBranches {
		fmt.Fprintf(w, "    branch at %d: %s\n", b.Offset, b.Value)
	}
	for _, c := range f.Constants {
		fmt.Fprintf(w, "    constant at %d: %s\n", c.Offset, c.Value)
	}
}

func writeInts(w io.Writer, label string, values []int) {
	if len(values) > 0 {
		fmt.Fprintf(w, "    %s: %v\n", label, values)
	}
}

// Method returns the facts of one method, or nil.
func (r *Report) Method(class, method string) *MethodFacts {
	for i := range r.Methods {
		if r.Methods[i].Class == class && r.Methods[i].Method == method {
			return &r.Methods[i]
		}
	}
	return nil
}

// KeptClass reports whether the named class survived.
func (r *Report) KeptClass(name string) bool {
	for _, e := range r.Kept {
		if e.Name == name {
			return true
		}
	}
	return false
}
