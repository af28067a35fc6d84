// Package cfg defines data structures for representing Control Flow Graphs (CFGs)
// of method bytecode. It provides types for blocks, edges, and the complete CFG
// information, and builds them from a decoded Code attribute.
package cfg

// BlockType represents the type of a CFG block.
type BlockType string

const (
	BlockTypeEntry    BlockType = "entry"     // Method entry point
	BlockTypeBranch   BlockType = "branch"    // Ends in a two-way conditional
	BlockTypeSwitch   BlockType = "switch"    // Ends in a tableswitch or lookupswitch
	BlockTypeLoopBody BlockType = "loop_body" // Target of a back edge
	BlockTypeHandler  BlockType = "handler"   // Exception handler entry
	BlockTypeReturn   BlockType = "return"    // Ends in a return
	BlockTypeThrow    BlockType = "throw"     // Ends in athrow
	BlockTypeExit     BlockType = "exit"      // Synthetic method exit
	BlockTypePlain    BlockType = "plain"     // Straight-line code
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Fall through, goto, jsr or ret
	EdgeTypeTrue          EdgeType = "true"          // Taken branch of a conditional
	EdgeTypeFalse         EdgeType = "false"         // Fall through of a conditional
	EdgeTypeBackEdge      EdgeType = "back_edge"     // Jump to a block at or before the source
	EdgeTypeSwitch        EdgeType = "switch"        // Switch case or default
	EdgeTypeException     EdgeType = "exception"     // Into an exception handler
)

// CFGBlock represents a basic block in the Control Flow Graph.
// A block is a sequence of instructions with a single entry and exit point.
type CFGBlock struct {
	ID           string    `json:"id"`           // Unique identifier for the block
	Type         BlockType `json:"type"`         // Type of block
	StartOffset  int       `json:"start_offset"` // Offset of the first instruction
	EndOffset    int       `json:"end_offset"`   // Offset of the last instruction
	Instructions []string  `json:"instructions"` // Rendered instructions in this block
	Predecessors []string  `json:"predecessors"` // IDs of blocks that can precede this block
}

// CFGEdge represents a directed edge between two CFG blocks.
type CFGEdge struct {
	SourceID  string   `json:"source_id"`           // ID of the source block
	TargetID  string   `json:"target_id"`           // ID of the target block
	EdgeType  EdgeType `json:"edge_type"`           // Type of edge (true, false, unconditional, etc.)
	Condition string   `json:"condition,omitempty"` // Branch opcode, switch key or caught type
}

// CFGInfo represents the complete Control Flow Graph for a method.
type CFGInfo struct {
	ClassName            string              `json:"class_name"`            // Internal name of the declaring class
	FunctionName         string              `json:"function_name"`         // Method name and descriptor
	Blocks               map[string]CFGBlock `json:"blocks"`                // Map of block ID to block
	Edges                []CFGEdge           `json:"edges"`                 // List of edges in the graph
	EntryBlockID         string              `json:"entry_block_id"`        // ID of the entry block
	ExitBlockIDs         []string            `json:"exit_block_ids"`        // IDs of exit blocks
	CyclomaticComplexity int                 `json:"cyclomatic_complexity"` // Cyclomatic complexity of the method
}

// BlockAt returns the block that contains the instruction at offset.
func (info *CFGInfo) BlockAt(offset int) (CFGBlock, bool) {
	for _, b := range info.Blocks {
		if b.Type != BlockTypeExit && offset >= b.StartOffset && offset <= b.EndOffset {
			return b, true
		}
	}
	return CFGBlock{}, false
}

// Successors returns the IDs of the direct successors of a block, in edge
// order.
func (info *CFGInfo) Successors(id string) []string {
	var out []string
	for _, e := range info.Edges {
		if e.SourceID == id {
			out = append(out, e.TargetID)
		}
	}
	return out
}
