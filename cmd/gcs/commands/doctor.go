package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/internal/config"
	"github.com/l3aro/go-class-shrink/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the configuration",
	Long: `Checks that the configured inputs, libraries and keep files exist, that every
rule parses and that the output can be written.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		result, err := healthcheck.Check(cfg, "", effectiveConfigPath(cmd))
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)
		if result.HasErrors() {
			return fmt.Errorf("health check failed: fix the errors above")
		}
		return nil
	},
}

// effectiveConfigPath returns the config file Load would read last, or the
// --config flag when set.
func effectiveConfigPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if p := config.ProjectConfigFilePath(); fileExists(p) {
		return p
	}
	if p := config.GlobalConfigFilePath(); p != "" && fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath != "" {
		fmt.Fprintf(w, "Using config: %s (%s)\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Fprintln(w, "Using config: defaults and flags")
	}

	fmt.Fprintln(w, "\nInputs:")
	if len(result.Inputs) == 0 {
		fmt.Fprintf(w, "  %s none configured\n", formatStatusIcon("error"))
	}
	printPathStatuses(w, result.Inputs)
	if len(result.Libraries) > 0 {
		fmt.Fprintln(w, "\nLibraries:")
		printPathStatuses(w, result.Libraries)
	}
	if len(result.KeepFiles) > 0 {
		fmt.Fprintln(w, "\nKeep files:")
		printPathStatuses(w, result.KeepFiles)
	}

	fmt.Fprintln(w, "\nRules:")
	fmt.Fprintf(w, "  %s %s (%d rules)\n", formatStatusIcon(result.Rules.Status), result.Rules.Status, result.Rules.Count)
	if result.Rules.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", result.Rules.Error)
	}

	fmt.Fprintln(w, "\nOutput:")
	printPathStatuses(w, []healthcheck.PathStatus{result.Output})
}

func printPathStatuses(w io.Writer, statuses []healthcheck.PathStatus) {
	for _, s := range statuses {
		fmt.Fprintf(w, "  %s %s", formatStatusIcon(s.Status), s.Path)
		if s.Kind != "" {
			fmt.Fprintf(w, " (%s)", s.Kind)
		}
		fmt.Fprintln(w)
		if s.Error != "" {
			fmt.Fprintf(w, "    Error: %s\n", s.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case "ready":
		return "✓"
	case "empty":
		return "!"
	case "missing", "error":
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
