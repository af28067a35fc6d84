// Package main implements the go-class-shrink CLI (gcs).
// It shrinks compiled Java class paths and inspects what the shrinker and
// the method evaluator found.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-class-shrink/cmd/gcs/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gcs version %s\n", version)
			if buildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", buildTime)
			}
		},
	}
	commands.RootCmd.AddCommand(versionCmd)

	commands.RootCmd.SetVersionTemplate(`gcs version {{.Version}}
`)
	commands.RootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.RootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
