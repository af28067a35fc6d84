package evaluation

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// ErrNoCode is returned for abstract and native methods.
var ErrNoCode = errors.New("method has no code")

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// WithInvocationUnit replaces the default BasicInvocationUnit.
func WithInvocationUnit(u InvocationUnit) Option {
	return func(e *Evaluator) {
		e.unit = u
	}
}

// WithSideEffects enables the detection of removable invocations.
func WithSideEffects(s SideEffects) Option {
	return func(e *Evaluator) {
		e.effects = s
	}
}

// Evaluator runs the abstract interpreter over single methods. It keeps no
// per-method state and may be shared by goroutines as long as the program
// is not modified.
type Evaluator struct {
	program *classfile.Program
	unit    InvocationUnit
	effects SideEffects
	logger  log.Logger
}

func NewEvaluator(p *classfile.Program, opts ...Option) *Evaluator {
	e := &Evaluator{program: p, logger: log.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	if e.unit == nil {
		e.unit = NewBasicInvocationUnit(p, nil)
	}
	return e
}

// run is the state of one Evaluate call.
type run struct {
	e            *Evaluator
	class        *classfile.Class
	method       *classfile.Member
	sig          string
	code         *classfile.CodeAttribute
	instructions []*classfile.Instruction
	index        map[int]int
	before       []*Frame
	params       []Parameter
	returnSites  []int
	work         []int
	queued       []bool
	iterations   int
}

// Evaluate computes the stable before-frame of every reachable
// instruction of m and traces its producers and consumers.
func (e *Evaluator) Evaluate(c *classfile.Class, m *classfile.Member) (*Result, error) {
	sig := m.Signature(c)
	code := m.Code()
	if code == nil {
		return nil, fmt.Errorf("%s.%s: %w", c.Name(), sig, ErrNoCode)
	}
	instructions, err := code.Instructions()
	if err != nil {
		return nil, classfile.WithLocation(err, c.Name(), sig)
	}
	if len(instructions) == 0 {
		return nil, classfile.Inconsistent(c.Name(), sig, -1, "empty code")
	}

	r := &run{
		e:            e,
		class:        c,
		method:       m,
		sig:          sig,
		code:         code,
		instructions: instructions,
		index:        make(map[int]int, len(instructions)),
		before:       make([]*Frame, len(instructions)),
		queued:       make([]bool, len(instructions)),
	}
	for i, ins := range instructions {
		r.index[ins.Offset] = i
		if ins.Opcode == classfile.OpJsr || ins.Opcode == classfile.OpJsrW {
			r.returnSites = append(r.returnSites, ins.Next())
		}
	}

	entry, err := r.entryFrame()
	if err != nil {
		return nil, err
	}
	if err := r.fixpoint(entry); err != nil {
		return nil, err
	}
	res, err := r.trace()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("evaluated method",
		"class", c.Name(),
		"method", sig,
		"instructions", len(instructions),
		"iterations", r.iterations,
		"unreachable", len(res.Unreachable),
		"dead_stores", len(res.DeadStores))
	return res, nil
}

func (r *run) inconsistent(offset int, format string, args ...interface{}) error {
	return classfile.Inconsistent(r.class.Name(), r.sig, offset, format, args...)
}

// entryFrame seeds the parameter slots through the invocation unit.
func (r *run) entryFrame() (*Frame, error) {
	mt, err := classfile.ParseMethodDescriptor(r.method.Descriptor(r.class))
	if err != nil {
		return nil, classfile.WithLocation(err, r.class.Name(), r.sig)
	}
	maxLocals := int(r.code.MaxLocals)
	if need := mt.ParameterSize(r.method.AccessFlags.IsStatic()); need > maxLocals {
		return nil, r.inconsistent(-1, "parameters need %d locals, max_locals is %d", need, maxLocals)
	}

	f := NewFrame(maxLocals)
	slot, index := 0, 0
	seed := func(desc string) {
		v := r.e.unit.Parameter(r.class, r.method, index, desc)
		f.Locals.Store(slot, v, NewOffsetSet(ParameterOffset(index)))
		r.params = append(r.params, Parameter{Index: index, Slot: slot, Descriptor: desc})
		slot += classfile.TypeSize(desc)
		index++
	}
	if !r.method.AccessFlags.IsStatic() {
		seed("L" + r.class.Name() + ";")
	}
	for _, p := range mt.Params {
		seed(p)
	}
	return f, nil
}

func (r *run) enqueue(i int) {
	if !r.queued[i] {
		r.queued[i] = true
		r.work = append(r.work, i)
	}
}

// fixpoint iterates the worklist until no before-frame changes. Values only
// ever generalize and the lattice has finite height, so it terminates.
func (r *run) fixpoint(entry *Frame) error {
	r.before[0] = entry
	r.enqueue(0)
	for len(r.work) > 0 {
		i := r.work[len(r.work)-1]
		r.work = r.work[:len(r.work)-1]
		r.queued[i] = false
		r.iterations++

		st, err := r.step(i)
		if err != nil {
			return err
		}
		for _, target := range st.next {
			if err := r.propagate(st.ins.Offset, target, st.after); err != nil {
				return err
			}
		}
		for _, h := range r.handlers(st) {
			if err := r.propagate(st.ins.Offset, h.offset, h.frame); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) propagate(from, target int, f *Frame) error {
	j, ok := r.index[target]
	if !ok {
		if target == r.instructions[len(r.instructions)-1].Next() {
			return r.inconsistent(from, "control falls off the end of the code")
		}
		return r.inconsistent(from, "target %d is not an instruction boundary", target)
	}
	if r.before[j] == nil {
		r.before[j] = f.Clone()
		r.enqueue(j)
		return nil
	}
	changed, err := r.before[j].Generalize(f)
	if err != nil {
		return r.inconsistent(target, "merging frame from offset %d: %v", from, err)
	}
	if changed {
		r.enqueue(j)
	}
	return nil
}

type handlerEntry struct {
	offset int
	frame  *Frame
}

// handlers returns the entry frames of the exception handlers covering the
// instruction. Any instruction in a protected range may throw before or
// after its own effect on the locals, so both states flow in. The caught
// exception is attributed to the handler offset.
func (r *run) handlers(st *step) []handlerEntry {
	var out []handlerEntry
	off := st.ins.Offset
	for _, h := range r.code.ExceptionTable {
		if off < int(h.StartPC) || off >= int(h.EndPC) {
			continue
		}
		typ := "Ljava/lang/Throwable;"
		if h.CatchType != 0 {
			if name, err := r.class.Pool.ClassName(h.CatchType); err == nil {
				typ = "L" + name + ";"
			}
		}
		f := &Frame{Locals: st.before.Locals.clone()}
		f.Locals.generalize(st.after.Locals)
		f.Stack.Push(Entry{Value: Object(typ), Producers: NewOffsetSet(int(h.HandlerPC))})
		out = append(out, handlerEntry{offset: int(h.HandlerPC), frame: f})
	}
	return out
}

// step executes instruction i on a copy of its before-frame.
func (r *run) step(i int) (*step, error) {
	ins := r.instructions[i]
	st := &step{ins: ins, before: r.before[i], loadSlot: -1, storeSlot: -1}
	x := &machine{r: r, ins: ins, frame: r.before[i].Clone(), st: st}
	x.execute()
	if x.err != nil {
		return nil, x.err
	}
	st.after = x.frame
	return st, nil
}
