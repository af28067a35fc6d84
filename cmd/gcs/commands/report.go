package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/pkg/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Print the report of the last shrink",
	Long: `Loads the report saved by "gcs shrink" and prints it. Without a path the
report_path from the configuration is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path = cfg.ReportPath
		}

		rep, err := report.Load(path)
		if err != nil {
			return fmt.Errorf("loading report: %w", err)
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return rep.WriteJSON(w)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		return rep.WriteText(w, verbose)
	},
}

func init() {
	reportCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(reportCmd)
}
