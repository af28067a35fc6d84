package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/pkg/usage"
)

type memberMark struct {
	Signature string `json:"signature"`
	Used      bool   `json:"used"`
}

type classMark struct {
	Name    string       `json:"name"`
	Used    bool         `json:"used"`
	Members []memberMark `json:"members"`
}

type markOutput struct {
	Summary usage.Summary `json:"summary"`
	Classes []classMark   `json:"classes"`
}

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Show which classes and members are used",
	Long: `Runs the reachability marker from the keep rules and lists every program class
with its members. Use --unused to list only what shrinking would remove.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
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

		unusedOnly, _ := cmd.Flags().GetBool("unused")
		out := markOutput{Summary: marks.Summary()}
		for _, c := range s.program.Classes() {
			if c.Library {
				continue
			}
			entry := classMark{Name: c.Name(), Used: marks.IsClassUsed(c.ID())}
			for _, m := range c.Members() {
				used := entry.Used && marks.IsMemberUsed(m)
				if unusedOnly && used {
					continue
				}
				entry.Members = append(entry.Members, memberMark{Signature: m.Signature(c), Used: used})
			}
			if unusedOnly && entry.Used && len(entry.Members) == 0 {
				continue
			}
			out.Classes = append(out.Classes, entry)
		}
		sort.Slice(out.Classes, func(i, j int) bool { return out.Classes[i].Name < out.Classes[j].Name })

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return writeJSON(w, out)
		}
		fmt.Fprintf(w, "Used: %d classes, %d members, %d constants\n",
			out.Summary.Classes.Used, out.Summary.Members.Used, out.Summary.Constants.Used)
		for _, c := range out.Classes {
			fmt.Fprintf(w, "%s %s\n", markSymbol(c.Used), c.Name)
			for _, m := range c.Members {
				fmt.Fprintf(w, "    %s %s\n", markSymbol(m.Used), m.Signature)
			}
		}
		return nil
	},
}

func markSymbol(used bool) string {
	if used {
		return "+"
	}
	return "-"
}

func init() {
	markCmd.Flags().Bool("unused", false, "List only unused classes and members")
	markCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(markCmd)
}
