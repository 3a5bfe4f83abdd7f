// schedsim boots the ember scheduler on the host and drives it with a
// simulated timer, so scheduling behavior can be observed and profiled
// without target hardware.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ember/internal/buildinfo"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "schedsim",
		Short:        "Host simulator for the ember task scheduler",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "schedsim %s\n", buildinfo.Short())
		},
	}
}
