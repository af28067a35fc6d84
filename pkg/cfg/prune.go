package cfg

import (
	"github.com/l3aro/go-class-shrink/pkg/evaluation"
)

// Prune returns a copy of info without the blocks the evaluator found
// unreachable and without the edges of branches and switches whose outcome
// it decided. The exit block is always kept.
func Prune(info *CFGInfo, res *evaluation.Result) *CFGInfo {
	out := &CFGInfo{
		ClassName:    info.ClassName,
		FunctionName: info.FunctionName,
		Blocks:       make(map[string]CFGBlock),
		EntryBlockID: info.EntryBlockID,
		ExitBlockIDs: info.ExitBlockIDs,
	}
	starts := make(map[string]int)
	for id, b := range info.Blocks {
		if b.Type == BlockTypeExit || res.IsReachable(b.StartOffset) {
			out.Blocks[id] = b
			starts[id] = b.StartOffset
		}
	}

	for _, e := range info.Edges {
		src, ok := out.Blocks[e.SourceID]
		if !ok {
			continue
		}
		if _, ok := out.Blocks[e.TargetID]; !ok {
			continue
		}
		if !keepEdge(src, e, res, starts) {
			continue
		}
		out.Edges = append(out.Edges, e)
	}
	finish(out)
	return out
}

func keepEdge(src CFGBlock, e CFGEdge, res *evaluation.Result, starts map[string]int) bool {
	switch e.EdgeType {
	case EdgeTypeTrue:
		return res.Branches[src.EndOffset] != evaluation.OutcomeNotTaken
	case EdgeTypeFalse:
		return res.Branches[src.EndOffset] != evaluation.OutcomeTaken
	case EdgeTypeSwitch:
		if target, ok := res.SwitchTargets[src.EndOffset]; ok {
			return starts[e.TargetID] == target
		}
	}
	return true
}
