package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/pkg/cfg"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <class> <method>",
	Short: "Extract control flow graph for a method",
	Long: `Builds the Control Flow Graph (CFG) of a method's bytecode, with exception
edges into handlers. With --prune, blocks and edges the interpreter proved
unreachable are dropped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		c, err := s.class(args[0])
		if err != nil {
			return err
		}
		m, err := findMember(c, c.Methods, args[1])
		if err != nil {
			return err
		}

		cfgInfo, err := cfg.Build(c, m)
		if err != nil {
			return fmt.Errorf("extracting CFG: %w", err)
		}
		if prune, _ := cmd.Flags().GetBool("prune"); prune {
			res, err := s.evaluateMethod(c, m)
			if err != nil {
				return err
			}
			cfgInfo = cfg.Prune(cfgInfo, res)
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(w, cfgInfo)
		}
		printCFGInfo(w, cfgInfo)
		return nil
	},
}

// printCFGInfo prints CFG information in human-readable format.
func printCFGInfo(w io.Writer, info *cfg.CFGInfo) {
	fmt.Fprintf(w, "=== CFG for method: %s.%s ===\n", info.ClassName, info.FunctionName)
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Fprintf(w, "Entry Block: %s\n", info.EntryBlockID)
	fmt.Fprintf(w, "Exit Blocks: %v\n", info.ExitBlockIDs)
	fmt.Fprintf(w, "\nBlocks (%d):\n", len(info.Blocks))
	for _, block := range cfg.SortedBlocks(info) {
		fmt.Fprintf(w, "  %s (%s, offsets %d-%d)\n", block.ID, block.Type, block.StartOffset, block.EndOffset)
		for _, ins := range block.Instructions {
			fmt.Fprintf(w, "    %s\n", ins)
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(info.Edges))
	for _, edge := range info.Edges {
		if edge.Condition != "" {
			fmt.Fprintf(w, "  %s --%s(%s)--> %s\n", edge.SourceID, edge.EdgeType, edge.Condition, edge.TargetID)
			continue
		}
		fmt.Fprintf(w, "  %s --%s--> %s\n", edge.SourceID, edge.EdgeType, edge.TargetID)
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("prune", false, "Drop code the interpreter proves unreachable")
	RootCmd.AddCommand(cfgCmd)
}
