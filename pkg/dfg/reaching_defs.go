// Package dfg provides data flow analysis including reaching definitions.
package dfg

import (
	"container/list"
	"sort"

	"github.com/l3aro/go-class-shrink/pkg/cfg"
)

// ReachingDefsAnalyzer performs reaching definitions analysis on a control flow graph.
// It uses a worklist-based algorithm to compute which definitions reach each block,
// then builds def-use chains by walking every block in instruction order.
type ReachingDefsAnalyzer struct {
	// defs lists every definition; a definition ID is its index
	defs []VarRef
	// blockRefs holds the references of each block in offset order
	blockRefs map[string][]VarRef
	// blockGen maps block ID to the definitions that leave the block
	blockGen map[string]map[int]struct{}
	// blockAll maps block ID to every definition made inside the block
	blockAll map[string]map[int]struct{}
	// blockKill maps block ID to set of variable names killed in that block
	blockKill map[string]map[string]struct{}
	// entryDefs holds the parameters, defined before the entry block
	entryDefs map[int]struct{}
	// defID maps a definition offset to its ID
	defID map[int]int
}

// NewReachingDefsAnalyzer creates a new ReachingDefsAnalyzer.
func NewReachingDefsAnalyzer() *ReachingDefsAnalyzer {
	return &ReachingDefsAnalyzer{}
}

// ComputeDefUseChains computes def-use chains using reaching definitions analysis.
// It takes a CFG and the variable references of the same method, then returns
// data flow edges connecting definitions to their uses, ordered by use and then
// by definition offset.
//
// An exception edge carries every definition that reaches any instruction of
// its source block, since the handler may be entered from any of them.
func (r *ReachingDefsAnalyzer) ComputeDefUseChains(cfgInfo *cfg.CFGInfo, refs []VarRef) []DataflowEdge {
	if cfgInfo == nil || len(cfgInfo.Blocks) == 0 {
		return nil
	}

	r.initialize(cfgInfo, refs)

	in := make(map[string]map[int]struct{})
	out := make(map[string]map[int]struct{})
	for blockID := range cfgInfo.Blocks {
		in[blockID] = make(map[int]struct{})
		out[blockID] = make(map[int]struct{})
	}
	preds := r.buildPredecessors(cfgInfo)

	// Worklist algorithm
	worklist := list.New()
	queued := make(map[string]bool)
	for _, block := range cfg.SortedBlocks(cfgInfo) {
		worklist.PushBack(block.ID)
		queued[block.ID] = true
	}

	for worklist.Len() > 0 {
		blockID := worklist.Remove(worklist.Front()).(string)
		queued[blockID] = false

		oldIn, oldOut := in[blockID], out[blockID]

		newIn := r.unionPreds(in, out, preds[blockID])
		if blockID == cfgInfo.EntryBlockID {
			for d := range r.entryDefs {
				newIn[d] = struct{}{}
			}
		}
		in[blockID] = newIn
		out[blockID] = r.computeOut(newIn, blockID)

		// exception successors read the in-set too
		if !r.setsEqual(oldIn, in[blockID]) || !r.setsEqual(oldOut, out[blockID]) {
			for _, edge := range cfgInfo.Edges {
				if edge.SourceID == blockID && !queued[edge.TargetID] {
					worklist.PushBack(edge.TargetID)
					queued[edge.TargetID] = true
				}
			}
		}
	}

	return r.buildDefUseChains(cfgInfo, in)
}

type pred struct {
	id        string
	exception bool
}

// initialize numbers the definitions and builds the gen and kill sets.
func (r *ReachingDefsAnalyzer) initialize(cfgInfo *cfg.CFGInfo, refs []VarRef) {
	r.defs = nil
	r.blockRefs = make(map[string][]VarRef)
	r.blockGen = make(map[string]map[int]struct{})
	r.blockAll = make(map[string]map[int]struct{})
	r.blockKill = make(map[string]map[string]struct{})
	r.entryDefs = make(map[int]struct{})
	r.defID = make(map[int]int)

	for _, ref := range refs {
		if ref.isDef() {
			r.defID[ref.Offset] = len(r.defs)
			r.defs = append(r.defs, ref)
		}
		if ref.Offset < 0 {
			if ref.isDef() {
				r.entryDefs[r.defID[ref.Offset]] = struct{}{}
			}
			continue
		}
		if block, ok := cfgInfo.BlockAt(ref.Offset); ok {
			r.blockRefs[block.ID] = append(r.blockRefs[block.ID], ref)
		}
	}

	for blockID := range cfgInfo.Blocks {
		gen := make(map[int]struct{})
		all := make(map[int]struct{})
		kill := make(map[string]struct{})
		last := make(map[string]int)
		for _, ref := range r.blockRefs[blockID] {
			if !ref.isDef() {
				continue
			}
			id := r.defID[ref.Offset]
			all[id] = struct{}{}
			kill[ref.Name] = struct{}{}
			last[ref.Name] = id
		}
		for _, id := range last {
			gen[id] = struct{}{}
		}
		r.blockGen[blockID] = gen
		r.blockAll[blockID] = all
		r.blockKill[blockID] = kill
	}
}

// buildPredecessors builds a map of block ID to its predecessors.
func (r *ReachingDefsAnalyzer) buildPredecessors(cfgInfo *cfg.CFGInfo) map[string][]pred {
	preds := make(map[string][]pred)
	for _, edge := range cfgInfo.Edges {
		preds[edge.TargetID] = append(preds[edge.TargetID], pred{
			id:        edge.SourceID,
			exception: edge.EdgeType == cfg.EdgeTypeException,
		})
	}
	return preds
}

// unionPreds computes the union of the sets flowing in from all predecessors.
func (r *ReachingDefsAnalyzer) unionPreds(in, out map[string]map[int]struct{}, preds []pred) map[int]struct{} {
	result := make(map[int]struct{})
	for _, p := range preds {
		for defID := range out[p.id] {
			result[defID] = struct{}{}
		}
		if p.exception {
			for defID := range in[p.id] {
				result[defID] = struct{}{}
			}
			for defID := range r.blockAll[p.id] {
				result[defID] = struct{}{}
			}
		}
	}
	return result
}

// computeOut computes out[block] = gen[block] U (in[block] - kill[block]).
func (r *ReachingDefsAnalyzer) computeOut(inSet map[int]struct{}, blockID string) map[int]struct{} {
	outSet := make(map[int]struct{})
	for defID := range r.blockGen[blockID] {
		outSet[defID] = struct{}{}
	}
	for defID := range inSet {
		if _, killed := r.blockKill[blockID][r.defs[defID].Name]; !killed {
			outSet[defID] = struct{}{}
		}
	}
	return outSet
}

// setsEqual checks if two sets are equal.
func (r *ReachingDefsAnalyzer) setsEqual(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// buildDefUseChains walks every block from its in-set, connecting each use
// to the definitions of its variable that reach it.
func (r *ReachingDefsAnalyzer) buildDefUseChains(cfgInfo *cfg.CFGInfo, in map[string]map[int]struct{}) []DataflowEdge {
	var edges []DataflowEdge
	for blockID := range cfgInfo.Blocks {
		reaching := make(map[string][]int)
		for defID := range in[blockID] {
			name := r.defs[defID].Name
			reaching[name] = append(reaching[name], defID)
		}
		for _, ref := range r.blockRefs[blockID] {
			if ref.isDef() {
				reaching[ref.Name] = []int{r.defID[ref.Offset]}
				continue
			}
			for _, defID := range reaching[ref.Name] {
				edges = append(edges, DataflowEdge{
					DefRef:  r.defs[defID],
					UseRef:  ref,
					VarName: ref.Name,
				})
			}
		}
	}
	return sortEdges(edges)
}

// sortEdges orders edges by use and definition offset and drops duplicates.
func sortEdges(edges []DataflowEdge) []DataflowEdge {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].UseRef.Offset != edges[j].UseRef.Offset {
			return edges[i].UseRef.Offset < edges[j].UseRef.Offset
		}
		return edges[i].DefRef.Offset < edges[j].DefRef.Offset
	})
	var result []DataflowEdge
	for i, e := range edges {
		if i > 0 && e.UseRef == edges[i-1].UseRef && e.DefRef == edges[i-1].DefRef {
			continue
		}
		result = append(result, e)
	}
	return result
}
