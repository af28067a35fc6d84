// Package optimize runs the shrinking passes over a program in their fixed
// order: marking, compaction and the per-method evaluation of what is left.
package optimize

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/evaluation"
	"github.com/l3aro/go-class-shrink/pkg/keep"
	"github.com/l3aro/go-class-shrink/pkg/shrink"
	"github.com/l3aro/go-class-shrink/pkg/usage"
)

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger handed to every pass.
func WithLogger(l log.Logger) Option {
	return func(o *Optimizer) {
		o.logger = l
	}
}

// WithParallelism bounds the number of methods evaluated at once. Values
// below one select GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *Optimizer) {
		o.parallelism = n
	}
}

// WithSideEffects replaces the default side-effect table.
func WithSideEffects(t *keep.SideEffectTable) Option {
	return func(o *Optimizer) {
		o.effects = t
	}
}

// WithKeepAttributes is passed to the marker.
func WithKeepAttributes(patterns string) Option {
	return func(o *Optimizer) {
		o.keepAttributes = patterns
	}
}

// WithReflection is passed to the marker.
func WithReflection(enabled bool) Option {
	return func(o *Optimizer) {
		o.reflection = enabled
	}
}

// WithEvaluation toggles the evaluation stage.
func WithEvaluation(enabled bool) Option {
	return func(o *Optimizer) {
		o.evaluate = enabled
	}
}

// WithValidation toggles the validation of compacted classes.
func WithValidation(enabled bool) Option {
	return func(o *Optimizer) {
		o.validate = enabled
	}
}

// Optimizer holds the configuration of a pipeline run. It keeps no state
// between runs.
type Optimizer struct {
	specs          []*keep.ClassSpec
	logger         log.Logger
	parallelism    int
	effects        *keep.SideEffectTable
	keepAttributes string
	reflection     bool
	evaluate       bool
	validate       bool
}

// New returns an optimizer for the given keep and assumption rules. The
// assumption rules are added to the built-in side-effect table.
func New(specs []*keep.ClassSpec, opts ...Option) *Optimizer {
	o := &Optimizer{
		specs:      specs,
		logger:     log.Discard(),
		reflection: true,
		evaluate:   true,
		validate:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.effects == nil {
		o.effects = keep.DefaultSideEffectTable(specs...)
	}
	if o.parallelism < 1 {
		o.parallelism = runtime.GOMAXPROCS(0)
	}
	return o
}

// MethodError records a method the evaluator could not analyze.
type MethodError struct {
	Class  string
	Method string
	Err    error
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Class, e.Method, e.Err)
}

func (e *MethodError) Unwrap() error { return e.Err }

// Timings records the wall time of each stage.
type Timings struct {
	Mark     time.Duration `json:"mark" msgpack:"mark"`
	Compact  time.Duration `json:"compact" msgpack:"compact"`
	Evaluate time.Duration `json:"evaluate" msgpack:"evaluate"`
}

// Output is the result of one pipeline run.
type Output struct {
	// Input is the program the run started from. Marks refer to its
	// entities.
	Input   *classfile.Program
	Marks   *usage.Marks
	Program *classfile.Program
	Stats   shrink.Stats
	// Results holds one entry per evaluated method, ordered by class and
	// then by declaration.
	Results  []*evaluation.Result
	Failures []*MethodError
	Timings  Timings
}

// Run executes the pipeline on p with a fresh mark table.
func (o *Optimizer) Run(ctx context.Context, p *classfile.Program) (*Output, error) {
	return o.RunMarks(ctx, p, usage.NewMarks())
}

// RunMarks executes the pipeline, reusing marks after clearing them. Marker
// and compaction errors abort the run. Evaluation errors are recorded per
// method in Output.Failures.
func (o *Optimizer) RunMarks(ctx context.Context, p *classfile.Program, marks *usage.Marks) (*Output, error) {
	out := &Output{Input: p, Marks: marks}
	marks.Reset()

	start := time.Now()
	marker := usage.NewMarker(p, o.specs,
		usage.WithLogger(o.logger),
		usage.WithKeepAttributes(o.keepAttributes),
		usage.WithReflection(o.reflection))
	if err := marker.Mark(marks); err != nil {
		return nil, fmt.Errorf("marking: %w", err)
	}
	out.Timings.Mark = time.Since(start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	compactor := shrink.NewCompactor(shrink.WithLogger(o.logger), shrink.WithValidation(o.validate))
	compacted, stats, err := compactor.Compact(p, marks)
	if err != nil {
		return nil, fmt.Errorf("compacting: %w", err)
	}
	out.Program = compacted
	out.Stats = stats
	out.Timings.Compact = time.Since(start)

	if o.evaluate {
		start = time.Now()
		if err := o.evaluateAll(ctx, out); err != nil {
			return nil, err
		}
		out.Timings.Evaluate = time.Since(start)
	}

	o.logger.Info("optimization finished",
		"classes", stats.Classes.After,
		"removed_classes", stats.Classes.Removed(),
		"removed_members", stats.Fields.Removed()+stats.Methods.Removed(),
		"evaluated", len(out.Results),
		"failed", len(out.Failures))
	return out, nil
}

type job struct {
	class  *classfile.Class
	method *classfile.Member
}

// evaluateAll analyzes every program method with code. The compacted
// program is linked by the compactor and nothing writes to it afterwards,
// so the evaluators only ever read shared state.
func (o *Optimizer) evaluateAll(ctx context.Context, out *Output) error {
	p := out.Program
	p.Link()

	var jobs []job
	for _, c := range p.Classes() {
		if c.Library {
			continue
		}
		for _, m := range c.Methods {
			if m.Code() != nil {
				jobs = append(jobs, job{class: c, method: m})
			}
		}
	}

	ev := evaluation.NewEvaluator(p,
		evaluation.WithLogger(o.logger),
		evaluation.WithSideEffects(o.effects))

	results := make([]*evaluation.Result, len(jobs))
	var (
		mu       sync.Mutex
		failures []*MethodError
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := ev.Evaluate(j.class, j.method)
			if err != nil {
				o.logger.Warn("evaluation failed",
					"class", j.class.Name(), "method", j.method.Signature(j.class), "error", err)
				mu.Lock()
				failures = append(failures, &MethodError{
					Class:  j.class.Name(),
					Method: j.method.Signature(j.class),
					Err:    err,
				})
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r != nil {
			out.Results = append(out.Results, r)
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Class != failures[j].Class {
			return failures[i].Class < failures[j].Class
		}
		return failures[i].Method < failures[j].Method
	})
	out.Failures = failures
	return nil
}

// Result returns the evaluation result of a method, or nil.
func (out *Output) Result(class, method string) *evaluation.Result {
	for _, r := range out.Results {
		if r.Class == class && r.Method == method {
			return r
		}
	}
	return nil
}
