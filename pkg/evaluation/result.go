package evaluation

import (
	"sort"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

// Parameter describes one method parameter after evaluation. Index counts
// the receiver of instance methods as parameter 0.
type Parameter struct {
	Index      int    `json:"index"`
	Slot       int    `json:"slot"`
	Descriptor string `json:"descriptor"`
	Used       bool   `json:"used"`
	Escapes    bool   `json:"escapes"`
}

// Web is a set of producers of one local slot that reach common loads.
// Distinct webs of the same slot are independent variables.
type Web struct {
	Slot      int   `json:"slot"`
	Producers []int `json:"producers"`
}

// Result holds the stable facts about one method.
type Result struct {
	Class        string
	Method       string
	Instructions []*classfile.Instruction

	// Frames maps the offset of every reachable instruction to its stable
	// before-frame.
	Frames      map[int]*Frame
	Unreachable []int

	// Branches holds the outcome of every reachable conditional branch.
	Branches map[int]Outcome
	// SwitchTargets holds the single target of switches on a known key.
	SwitchTargets map[int]int
	// Constants maps instructions that compute a value to that value when it
	// is specific on every path. Plain constant pushes are left out.
	Constants map[int]Value

	// Stores maps every reachable store, iinc included, to its slot.
	Stores     map[int]int
	DeadStores []int
	// LoadSources maps every reachable load to the stores and parameters
	// it may read.
	LoadSources map[int]OffsetSet
	// Consumers maps a producing instruction to the instructions that pop
	// its value.
	Consumers map[int][]int

	Parameters           []Parameter
	Webs                 []Web
	RemovableInvocations []int
}

func (r *Result) IsReachable(offset int) bool {
	_, ok := r.Frames[offset]
	return ok
}

func (r *Result) IsDeadStore(offset int) bool {
	i := sort.SearchInts(r.DeadStores, offset)
	return i < len(r.DeadStores) && r.DeadStores[i] == offset
}

// UnusedParameters returns the indices of parameters that are never loaded.
func (r *Result) UnusedParameters() []int {
	var out []int
	for _, p := range r.Parameters {
		if !p.Used {
			out = append(out, p.Index)
		}
	}
	return out
}

// trace re-executes every reachable instruction on its stable frame and
// collects the producer and consumer relations.
func (r *run) trace() (*Result, error) {
	res := &Result{
		Class:         r.class.Name(),
		Method:        r.sig,
		Instructions:  r.instructions,
		Frames:        make(map[int]*Frame),
		Branches:      make(map[int]Outcome),
		SwitchTargets: make(map[int]int),
		Constants:     make(map[int]Value),
		Stores:        make(map[int]int),
		LoadSources:   make(map[int]OffsetSet),
		Consumers:     make(map[int][]int),
	}

	loadedBy := make(map[int][]int)
	escaping := make(map[int]bool)
	var loads []int
	for i, ins := range r.instructions {
		if r.before[i] == nil {
			res.Unreachable = append(res.Unreachable, ins.Offset)
			continue
		}
		st, err := r.step(i)
		if err != nil {
			return nil, err
		}
		off := ins.Offset
		res.Frames[off] = r.before[i]

		if st.loadSlot >= 0 {
			res.LoadSources[off] = st.sources
			loads = append(loads, off)
			for _, p := range st.sources.Slice() {
				loadedBy[p] = append(loadedBy[p], off)
			}
		}
		if st.storeSlot >= 0 {
			res.Stores[off] = st.storeSlot
		}
		for _, e := range st.popped {
			for _, p := range e.Producers.Slice() {
				if c := res.Consumers[p]; len(c) == 0 || c[len(c)-1] != off {
					res.Consumers[p] = append(c, off)
				}
			}
		}
		for _, e := range st.escapes() {
			for _, p := range e.Producers.Slice() {
				escaping[p] = true
			}
		}

		switch {
		case ins.Opcode.IsConditional():
			res.Branches[off] = st.outcome
		case st.decided:
			res.SwitchTargets[off] = st.switchTarget
		}
		if ins.Opcode > classfile.OpLdc2W {
			if v, ok := st.pushes(); ok && v.IsSpecific() {
				res.Constants[off] = v
			}
		}
	}

	for _, ins := range r.instructions {
		off := ins.Offset
		if _, ok := res.Stores[off]; ok && len(loadedBy[off]) == 0 {
			res.DeadStores = append(res.DeadStores, off)
		}
	}

	res.Parameters = make([]Parameter, len(r.params))
	for i, p := range r.params {
		users := loadedBy[ParameterOffset(p.Index)]
		p.Used = len(users) > 0
		for _, l := range users {
			if escaping[l] {
				p.Escapes = true
				break
			}
		}
		res.Parameters[i] = p
	}

	res.Webs = r.webs(res, loads)
	res.RemovableInvocations = r.removableInvocations(res)
	return res, nil
}

// webs groups the producers of every slot: two producers belong to the same
// web when some load may read either of them.
func (r *run) webs(res *Result, loads []int) []Web {
	var producers []int
	slotOf := make(map[int]int)
	for _, p := range r.params {
		off := ParameterOffset(p.Index)
		producers = append(producers, off)
		slotOf[off] = p.Slot
	}
	for _, ins := range r.instructions {
		if slot, ok := res.Stores[ins.Offset]; ok {
			producers = append(producers, ins.Offset)
			slotOf[ins.Offset] = slot
		}
	}
	sort.Ints(producers)
	id := make(map[int]int, len(producers))
	for i, p := range producers {
		id[p] = i
	}

	uf := NewUnionFind(len(producers))
	for _, l := range loads {
		src := res.LoadSources[l].Slice()
		for _, p := range src[min(1, len(src)):] {
			a, okA := id[src[0]]
			b, okB := id[p]
			if okA && okB {
				uf.Union(a, b)
			}
		}
	}

	groups := uf.Groups()
	out := make([]Web, 0, len(groups))
	for _, g := range groups {
		w := Web{Slot: slotOf[producers[g[0]]]}
		for _, i := range g {
			w.Producers = append(w.Producers, producers[i])
		}
		out = append(out, w)
	}
	return out
}

// removableInvocations lists calls to methods without side effects whose
// result, if any, is only ever discarded.
func (r *run) removableInvocations(res *Result) []int {
	if r.e.effects == nil {
		return nil
	}
	var out []int
	for i, ins := range r.instructions {
		if r.before[i] == nil || !ins.Opcode.IsInvoke() || ins.Opcode == classfile.OpInvokedynamic {
			continue
		}
		class, name, desc, err := r.class.Pool.MemberRef(ins.Index)
		if err != nil || name == "<init>" || !r.e.effects.Lookup(r.e.program, class, name, desc) {
			continue
		}
		discarded := true
		for _, c := range res.Consumers[ins.Offset] {
			op := r.instructions[r.index[c]].Opcode
			if op != classfile.OpPop && op != classfile.OpPop2 {
				discarded = false
				break
			}
		}
		if discarded {
			out = append(out, ins.Offset)
		}
	}
	return out
}
