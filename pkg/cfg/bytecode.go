package cfg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/go-class-shrink/pkg/classfile"
)

type cfgBuilder struct {
	class        *classfile.Class
	sig          string
	code         *classfile.CodeAttribute
	instructions []*classfile.Instruction
	index        map[int]int
	leaders      map[int]bool
	returnSites  []int

	blocks  map[string]*CFGBlock
	order   []*CFGBlock
	byStart map[int]*CFGBlock
	edges   []CFGEdge
	blockID int
}

// Build extracts the control flow graph of a method. Blocks are split at
// jump targets, after every instruction that transfers control, and at the
// boundaries of protected ranges and their handlers.
func Build(c *classfile.Class, m *classfile.Member) (*CFGInfo, error) {
	sig := m.Signature(c)
	code := m.Code()
	if code == nil {
		return nil, fmt.Errorf("method %s.%s has no code", c.Name(), sig)
	}
	instructions, err := code.Instructions()
	if err != nil {
		return nil, classfile.WithLocation(err, c.Name(), sig)
	}
	if len(instructions) == 0 {
		return nil, classfile.Inconsistent(c.Name(), sig, -1, "empty code")
	}

	b := &cfgBuilder{
		class:        c,
		sig:          sig,
		code:         code,
		instructions: instructions,
		index:        make(map[int]int, len(instructions)),
		leaders:      map[int]bool{0: true},
		blocks:       make(map[string]*CFGBlock),
		byStart:      make(map[int]*CFGBlock),
	}
	for i, ins := range instructions {
		b.index[ins.Offset] = i
	}
	if err := b.findLeaders(); err != nil {
		return nil, err
	}
	b.split()
	if err := b.connect(); err != nil {
		return nil, err
	}

	exit := b.newBlock(BlockTypeExit, len(code.Code))
	exit.EndOffset = len(code.Code)
	exit.Instructions = []string{"exit"}
	b.addBlock(exit)
	for i, e := range b.edges {
		if e.TargetID == "" {
			b.edges[i].TargetID = exit.ID
		}
	}

	info := &CFGInfo{
		ClassName:    c.Name(),
		FunctionName: sig,
		Blocks:       b.blocksToMap(),
		Edges:        b.edges,
		EntryBlockID: b.order[0].ID,
		ExitBlockIDs: []string{exit.ID},
	}
	finish(info)
	return info, nil
}

func (b *cfgBuilder) inconsistent(offset int, format string, args ...interface{}) error {
	return classfile.Inconsistent(b.class.Name(), b.sig, offset, format, args...)
}

func (b *cfgBuilder) leader(from, offset int) error {
	if _, ok := b.index[offset]; !ok {
		return b.inconsistent(from, "target %d is not an instruction boundary", offset)
	}
	b.leaders[offset] = true
	return nil
}

func (b *cfgBuilder) findLeaders() error {
	end := len(b.code.Code)
	for _, ins := range b.instructions {
		for _, t := range ins.Targets() {
			if err := b.leader(ins.Offset, t); err != nil {
				return err
			}
		}
		op := ins.Opcode
		if op == classfile.OpJsr || op == classfile.OpJsrW {
			b.returnSites = append(b.returnSites, ins.Next())
		}
		if ins.Shape() == classfile.ShapeBranch || op.IsUnconditional() {
			if next := ins.Next(); next < end {
				b.leaders[next] = true
			}
		}
	}
	for _, h := range b.code.ExceptionTable {
		for _, off := range []int{int(h.StartPC), int(h.HandlerPC)} {
			if err := b.leader(off, off); err != nil {
				return err
			}
		}
		if int(h.EndPC) < end {
			if err := b.leader(int(h.StartPC), int(h.EndPC)); err != nil {
				return err
			}
		}
	}
	return nil
}

// split creates one block per leader.
func (b *cfgBuilder) split() {
	var cur *CFGBlock
	for _, ins := range b.instructions {
		if b.leaders[ins.Offset] {
			cur = b.newBlock(BlockTypePlain, ins.Offset)
			b.addBlock(cur)
		}
		cur.EndOffset = ins.Offset
		cur.Instructions = append(cur.Instructions, b.render(ins))
	}
	b.order[0].Type = BlockTypeEntry
}

func (b *cfgBuilder) render(ins *classfile.Instruction) string {
	s := fmt.Sprintf("%d: %s", ins.Offset, ins)
	if ins.Shape() == classfile.ShapeConstant {
		s += " // " + b.class.Pool.Describe(ins.Index)
	}
	return s
}

func (b *cfgBuilder) last(block *CFGBlock) *classfile.Instruction {
	return b.instructions[b.index[block.EndOffset]]
}

// connect adds the edges leaving every block and assigns block types.
// Edges into the exit block get an empty target until the exit exists.
func (b *cfgBuilder) connect() error {
	for i, block := range b.order {
		ins := b.last(block)
		op := ins.Opcode
		switch {
		case op.IsConditional():
			b.addEdge(block, b.byStart[ins.Target()], EdgeTypeTrue, op.String())
			b.addEdge(block, b.byStart[ins.Next()], EdgeTypeFalse, op.String())
			b.setType(block, BlockTypeBranch)
		case op == classfile.OpGoto || op == classfile.OpGotoW || op == classfile.OpJsr || op == classfile.OpJsrW:
			b.addEdge(block, b.byStart[ins.Target()], EdgeTypeUnconditional, "")
		case op == classfile.OpRet:
			for _, site := range b.returnSites {
				if target, ok := b.byStart[site]; ok {
					b.addEdge(block, target, EdgeTypeUnconditional, "")
				}
			}
		case op == classfile.OpTableswitch || op == classfile.OpLookupswitch:
			b.switchEdges(block, ins)
			b.setType(block, BlockTypeSwitch)
		case op.IsReturn():
			b.edges = append(b.edges, CFGEdge{SourceID: block.ID, EdgeType: EdgeTypeUnconditional})
			b.setType(block, BlockTypeReturn)
		case op == classfile.OpAthrow:
			b.edges = append(b.edges, CFGEdge{SourceID: block.ID, EdgeType: EdgeTypeUnconditional, Condition: "athrow"})
			b.setType(block, BlockTypeThrow)
		default:
			if i+1 == len(b.order) {
				return b.inconsistent(ins.Offset, "control falls off the end of the code")
			}
			b.addEdge(block, b.order[i+1], EdgeTypeUnconditional, "")
		}
	}

	for _, h := range b.code.ExceptionTable {
		handler := b.byStart[int(h.HandlerPC)]
		b.setType(handler, BlockTypeHandler)
		catch := "any"
		if h.CatchType != 0 {
			name, err := b.class.Pool.ClassName(h.CatchType)
			if err != nil {
				return b.inconsistent(int(h.HandlerPC), "catch type: %v", err)
			}
			catch = name
		}
		for _, block := range b.order {
			if block.StartOffset >= int(h.StartPC) && block.StartOffset < int(h.EndPC) {
				b.addEdge(block, handler, EdgeTypeException, catch)
			}
		}
	}
	return nil
}

// switchEdges adds one edge per distinct target, labeled with the keys that
// lead there.
func (b *cfgBuilder) switchEdges(block *CFGBlock, ins *classfile.Instruction) {
	targets := ins.Targets()
	labels := make(map[int][]string)
	var order []int
	for i, t := range targets {
		label := "default"
		if i > 0 {
			key := ins.Switch.Low + int32(i-1)
			if ins.Switch.Keys != nil {
				key = ins.Switch.Keys[i-1]
			}
			label = strconv.Itoa(int(key))
		}
		if _, seen := labels[t]; !seen {
			order = append(order, t)
		}
		labels[t] = append(labels[t], label)
	}
	for _, t := range order {
		b.addEdge(block, b.byStart[t], EdgeTypeSwitch, strings.Join(labels[t], ","))
	}
}

// setType records the strongest role of a block: entry, then handler, then
// loop body, then whatever its last instruction makes it.
func (b *cfgBuilder) setType(block *CFGBlock, t BlockType) {
	if rank(t) > rank(block.Type) {
		block.Type = t
	}
}

func rank(t BlockType) int {
	switch t {
	case BlockTypeEntry:
		return 4
	case BlockTypeHandler:
		return 3
	case BlockTypeLoopBody:
		return 2
	case BlockTypePlain:
		return 0
	}
	return 1
}

func (b *cfgBuilder) newBlock(blockType BlockType, offset int) *CFGBlock {
	b.blockID++
	return &CFGBlock{
		ID:           fmt.Sprintf("block_%d", b.blockID),
		Type:         blockType,
		StartOffset:  offset,
		EndOffset:    offset,
		Instructions: make([]string, 0),
		Predecessors: make([]string, 0),
	}
}

func (b *cfgBuilder) addBlock(block *CFGBlock) {
	b.blocks[block.ID] = block
	b.order = append(b.order, block)
	b.byStart[block.StartOffset] = block
}

// addEdge connects two blocks. A normal edge to a block that does not start
// after the source marks its target as a loop body; unconditional ones
// become back edges.
func (b *cfgBuilder) addEdge(source, target *CFGBlock, edgeType EdgeType, condition string) {
	if edgeType != EdgeTypeException && target.StartOffset <= source.StartOffset {
		b.setType(target, BlockTypeLoopBody)
		if edgeType == EdgeTypeUnconditional {
			edgeType = EdgeTypeBackEdge
		}
	}
	for _, e := range b.edges {
		if e.SourceID == source.ID && e.TargetID == target.ID && e.EdgeType == edgeType && e.Condition == condition {
			return
		}
	}
	b.edges = append(b.edges, CFGEdge{
		SourceID:  source.ID,
		TargetID:  target.ID,
		EdgeType:  edgeType,
		Condition: condition,
	})
}

func (b *cfgBuilder) blocksToMap() map[string]CFGBlock {
	result := make(map[string]CFGBlock)
	for id, block := range b.blocks {
		result[id] = *block
	}
	return result
}

// finish recomputes predecessors and the cyclomatic complexity from the
// edges of info.
func finish(info *CFGInfo) {
	preds := make(map[string][]string)
	for _, e := range info.Edges {
		if !contains(preds[e.TargetID], e.SourceID) {
			preds[e.TargetID] = append(preds[e.TargetID], e.SourceID)
		}
	}
	for id, block := range info.Blocks {
		block.Predecessors = preds[id]
		if block.Predecessors == nil {
			block.Predecessors = make([]string, 0)
		}
		info.Blocks[id] = block
	}
	info.CyclomaticComplexity = calculateCyclomaticComplexity(info)
}

// calculateCyclomaticComplexity counts decision points plus one. A block
// with n distinct normal successors contributes n-1, and every handler
// reached by an exception edge contributes one.
func calculateCyclomaticComplexity(info *CFGInfo) int {
	successors := make(map[string][]string)
	handlers := make(map[string]bool)
	for _, e := range info.Edges {
		if e.EdgeType == EdgeTypeException {
			handlers[e.TargetID] = true
			continue
		}
		successors[e.SourceID] = append(successors[e.SourceID], e.TargetID+"/"+string(e.EdgeType))
	}
	decisionPoints := len(handlers)
	for _, s := range successors {
		if len(s) > 1 {
			decisionPoints += len(s) - 1
		}
	}
	return decisionPoints + 1
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// SortedBlocks returns the blocks of info ordered by start offset, with the
// exit last.
func SortedBlocks(info *CFGInfo) []CFGBlock {
	out := make([]CFGBlock, 0, len(info.Blocks))
	for _, b := range info.Blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Type == BlockTypeExit) != (out[j].Type == BlockTypeExit) {
			return out[j].Type == BlockTypeExit
		}
		return out[i].StartOffset < out[j].StartOffset
	})
	return out
}
