// Package dfg defines data structures for representing Data Flow Graphs (DFGs)
// over the local variable slots of a method.
// It provides types for variable references, data flow edges, and DFG information.
package dfg

import (
	"github.com/l3aro/go-class-shrink/pkg/evaluation"
)

// RefType represents the type of variable reference in data flow analysis.
type RefType string

const (
	RefTypeDefinition RefType = "definition" // Store or incoming parameter
	RefTypeUpdate     RefType = "update"     // iinc, which reads and writes the slot
	RefTypeUse        RefType = "use"        // Load, ret or the read half of iinc
)

// VarRef represents a reference to a local variable slot.
// Parameters are defined before the first instruction at offset -1-index.
type VarRef struct {
	Name    string  `json:"name"`     // Variable name, local<slot>
	RefType RefType `json:"ref_type"` // Type of reference (definition, update, use)
	Offset  int     `json:"offset"`   // Instruction offset
	Slot    int     `json:"slot"`     // Local variable slot
}

func (r VarRef) isDef() bool {
	return r.RefType == RefTypeDefinition || r.RefType == RefTypeUpdate
}

// DataflowEdge represents a data flow edge between two variable references.
// It connects a definition/update to a use of a variable.
type DataflowEdge struct {
	DefRef  VarRef `json:"def_ref"`  // Definition or update reference
	UseRef  VarRef `json:"use_ref"`  // Use reference
	VarName string `json:"var_name"` // Name of the variable being tracked
}

// DFGInfo represents the complete Data Flow Graph for a method.
// It contains all variable references, data flow edges, and grouped variables.
type DFGInfo struct {
	ClassName     string                 `json:"class_name"`           // Internal name of the declaring class
	FunctionName  string                 `json:"function_name"`        // Method name and descriptor
	VarRefs       []VarRef               `json:"var_refs"`             // All variable references in order
	DataflowEdges []DataflowEdge         `json:"dataflow_edges"`       // Data flow edges between references
	Variables     map[string][]VarRef    `json:"variables"`            // Variables grouped by name
	Parameters    []evaluation.Parameter `json:"parameters,omitempty"` // Parameter usage, when evaluated
	Webs          []evaluation.Web       `json:"webs,omitempty"`       // Independent variables per slot, when evaluated
}

func groupVariables(refs []VarRef) map[string][]VarRef {
	vars := make(map[string][]VarRef)
	for _, r := range refs {
		vars[r.Name] = append(vars[r.Name], r)
	}
	return vars
}
