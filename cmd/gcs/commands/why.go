package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/pkg/usage"
)

var whyCmd = &cobra.Command{
	Use:   "why <class> [member]",
	Short: "Explain why a class or member is kept",
	Long: `Follows the chain of reasons the marker recorded, from the class or member back
to the keep rule that made it reachable. Members are named by signature,
such as "main([Ljava/lang/String;)V" or "count:I", or by a unique name.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		c, err := s.class(args[0])
		if err != nil {
			return err
		}
		marks, err := usage.NewMarker(s.program, s.specs,
			usage.WithLogger(s.logger),
			usage.WithKeepAttributes(s.cfg.KeepAttributes),
			usage.WithReflection(s.cfg.Reflection),
		).Run()
		if err != nil {
			return fmt.Errorf("marking: %w", err)
		}

		var lines []string
		if len(args) == 2 {
			m, err := findMember(c, c.Members(), args[1])
			if err != nil {
				return err
			}
			lines = usage.ExplainMember(s.program, marks, c.ID(), m)
		} else {
			lines = usage.Explain(s.program, marks, c.ID())
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(w, lines)
		}
		for i, line := range lines {
			indent := ""
			if i > 0 {
				indent = "  <- "
			}
			fmt.Fprintf(w, "%s%s\n", indent, line)
		}
		return nil
	},
}

func init() {
	whyCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(whyCmd)
}
