package dfg

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-class-shrink/pkg/cfg"
	"github.com/l3aro/go-class-shrink/pkg/classfile"
	"github.com/l3aro/go-class-shrink/pkg/evaluation"
)

func varName(slot int) string {
	return fmt.Sprintf("local%d", slot)
}

// Refs lists the local variable references of a method: its parameters
// first, then every load, store and iinc in offset order.
func Refs(c *classfile.Class, m *classfile.Member) ([]VarRef, error) {
	sig := m.Signature(c)
	code := m.Code()
	if code == nil {
		return nil, fmt.Errorf("method %s.%s has no code", c.Name(), sig)
	}
	mt, err := classfile.ParseMethodDescriptor(m.Descriptor(c))
	if err != nil {
		return nil, classfile.WithLocation(err, c.Name(), sig)
	}
	instructions, err := code.Instructions()
	if err != nil {
		return nil, classfile.WithLocation(err, c.Name(), sig)
	}

	var refs []VarRef
	slot, index := 0, 0
	param := func(desc string) {
		refs = append(refs, VarRef{
			Name:    varName(slot),
			RefType: RefTypeDefinition,
			Offset:  evaluation.ParameterOffset(index),
			Slot:    slot,
		})
		slot += classfile.TypeSize(desc)
		index++
	}
	if !m.AccessFlags.IsStatic() {
		param("L" + c.Name() + ";")
	}
	for _, p := range mt.Params {
		param(p)
	}

	for _, ins := range instructions {
		ref := VarRef{Name: varName(ins.Local), Offset: ins.Offset, Slot: ins.Local}
		switch {
		case ins.Opcode == classfile.OpIinc:
			ref.RefType = RefTypeUse
			refs = append(refs, ref)
			ref.RefType = RefTypeUpdate
			refs = append(refs, ref)
		case ins.Opcode.IsLoad():
			ref.RefType = RefTypeUse
			refs = append(refs, ref)
		case ins.Opcode.IsStore():
			ref.RefType = RefTypeDefinition
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// Build computes the data flow graph of a method by reaching definitions
// over its control flow graph.
func Build(c *classfile.Class, m *classfile.Member) (*DFGInfo, error) {
	info, err := cfg.Build(c, m)
	if err != nil {
		return nil, err
	}
	refs, err := Refs(c, m)
	if err != nil {
		return nil, err
	}
	edges := NewReachingDefsAnalyzer().ComputeDefUseChains(info, refs)
	return &DFGInfo{
		ClassName:     c.Name(),
		FunctionName:  info.FunctionName,
		VarRefs:       refs,
		DataflowEdges: edges,
		Variables:     groupVariables(refs),
	}, nil
}

// FromResult derives the data flow graph from an evaluation result. Only
// reachable instructions contribute, and a use is connected exactly to the
// producers the evaluator traced for it.
func FromResult(res *evaluation.Result) *DFGInfo {
	var refs []VarRef
	defs := make(map[int]VarRef)
	for _, p := range res.Parameters {
		ref := VarRef{
			Name:    varName(p.Slot),
			RefType: RefTypeDefinition,
			Offset:  evaluation.ParameterOffset(p.Index),
			Slot:    p.Slot,
		}
		refs = append(refs, ref)
		defs[ref.Offset] = ref
	}

	var uses []VarRef
	for _, ins := range res.Instructions {
		off := ins.Offset
		if _, ok := res.LoadSources[off]; ok {
			use := VarRef{Name: varName(ins.Local), RefType: RefTypeUse, Offset: off, Slot: ins.Local}
			refs = append(refs, use)
			uses = append(uses, use)
		}
		if slot, ok := res.Stores[off]; ok {
			def := VarRef{Name: varName(slot), RefType: RefTypeDefinition, Offset: off, Slot: slot}
			if ins.Opcode == classfile.OpIinc {
				def.RefType = RefTypeUpdate
			}
			refs = append(refs, def)
			defs[off] = def
		}
	}

	var edges []DataflowEdge
	for _, use := range uses {
		for _, p := range res.LoadSources[use.Offset].Slice() {
			def, ok := defs[p]
			if !ok || def.Slot != use.Slot {
				continue
			}
			edges = append(edges, DataflowEdge{DefRef: def, UseRef: use, VarName: use.Name})
		}
	}

	return &DFGInfo{
		ClassName:     res.Class,
		FunctionName:  res.Method,
		VarRefs:       refs,
		DataflowEdges: sortEdges(edges),
		Variables:     groupVariables(refs),
		Parameters:    res.Parameters,
		Webs:          res.Webs,
	}
}

// DeadDefinitions returns the definitions no use is connected to, in
// offset order. Parameters are included.
func DeadDefinitions(info *DFGInfo) []VarRef {
	used := make(map[int]bool)
	for _, e := range info.DataflowEdges {
		used[e.DefRef.Offset] = true
	}
	var out []VarRef
	for _, r := range info.VarRefs {
		if r.isDef() && !used[r.Offset] {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
