package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/internal/classpath"
	"github.com/l3aro/go-class-shrink/internal/log"
	"github.com/l3aro/go-class-shrink/pkg/optimize"
	"github.com/l3aro/go-class-shrink/pkg/report"
)

// shrinkCmd represents the shrink command
var shrinkCmd = &cobra.Command{
	Use:   "shrink",
	Short: "Shrink a class path",
	Long: `Marks everything reachable from the keep rules, removes the rest, evaluates the
remaining methods and writes the shrunk classes to the output directory or archive.
A report of the run is saved for "gcs report".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		cfg := s.cfg
		if cmd.Flags().Changed("output") {
			cfg.Output, _ = cmd.Flags().GetString("output")
		}
		if cmd.Flags().Changed("report") {
			cfg.ReportPath, _ = cmd.Flags().GetString("report")
		}
		if noOpt, _ := cmd.Flags().GetBool("no-optimize"); noOpt {
			cfg.Optimize = false
		}
		if len(s.specs) == 0 {
			return fmt.Errorf("no keep rules: everything would be removed")
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		var spinner *log.ProgressSpinner
		if !jsonOutput && log.IsTTY() {
			spinner = log.NewProgressSpinner("Shrinking...")
			spinner.Start()
		}

		opt := optimize.New(s.specs,
			optimize.WithLogger(s.logger),
			optimize.WithParallelism(cfg.Parallelism),
			optimize.WithKeepAttributes(cfg.KeepAttributes),
			optimize.WithReflection(cfg.Reflection),
			optimize.WithEvaluation(cfg.Optimize),
		)
		out, err := opt.Run(cmd.Context(), s.program)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return err
		}

		n, err := classpath.Write(cfg.Output, out.Program)
		if err != nil {
			return fmt.Errorf("writing output: %w", err)
		}

		rep := report.New(out, cfg.Inputs)
		if cfg.ReportPath != "" {
			if err := rep.Save(cfg.ReportPath); err != nil {
				return fmt.Errorf("saving report: %w", err)
			}
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return rep.WriteJSON(w)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		if err := rep.WriteText(w, verbose); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nWrote %d classes to %s\n", n, cfg.Output)
		return nil
	},
}

func init() {
	shrinkCmd.Flags().StringP("output", "o", "", "Output directory, or archive when ending in .jar or .zip")
	shrinkCmd.Flags().String("report", "", "Report file path (default from config)")
	shrinkCmd.Flags().Bool("no-optimize", false, "Skip method evaluation")
	shrinkCmd.Flags().BoolP("json", "j", false, "Output the report as JSON")
	RootCmd.AddCommand(shrinkCmd)
}
