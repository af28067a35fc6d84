// Package commands provides the CLI commands for the go-class-shrink tool.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gcs",
	Short: "go-class-shrink - Class file shrinker and analyzer",
	Long: `go-class-shrink removes unused classes, members and constants from compiled
Java class files, and analyzes the methods that remain.

Commands:
  shrink      Mark, compact and evaluate a class path, writing the result
  mark        Show which classes and members are used
  why         Explain why a class or member is kept
  evaluate    Run the abstract interpreter over methods of a class
  cfg         Control flow graph of a method
  dfg         Data flow graph of a method
  dump        Disassemble a class
  report      Print the report of the last shrink
  init        Create a configuration file interactively
  doctor      Check the configuration, inputs and rules

Inputs, libraries and keep rules come from .gcs/config.yaml, GCS_* variables
or the flags below.

Use "gcs [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.String("config", "", "Config file path (default: ./.gcs/config.yaml over ~/.gcs/config.yaml)")
	flags.StringSliceP("input", "i", nil, "Program class files, directories or archives")
	flags.StringSliceP("library", "l", nil, "Library class files, directories or archives")
	flags.StringArrayP("keep", "k", nil, "Keep rule (repeatable)")
	flags.StringSlice("keep-file", nil, "File of keep rules")
	flags.Int("parallelism", 0, "Maximum concurrent workers (0: one per CPU)")
	flags.BoolP("verbose", "v", false, "Verbose logging")
	flags.Bool("log-json", false, "Log as JSON lines")
}
