//go:build linux

// testfs-helper runs inside E2E containers and prepares or inspects test volumes.
//
//	testfs-helper sow           - create volumes from a FileTree JSON on stdin
//	testfs-helper reap PATH...  - print a JSON snapshot of PATH... to stdout
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupesniff/internal/testfs"
)

func main() {
	root := &cobra.Command{
		Use:           "testfs-helper",
		Short:         "Create and snapshot dupesniff test volumes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(&cobra.Command{
		Use:   "sow",
		Short: "Create volumes from a FileTree JSON read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Volumes are real tmpfs mounts, so paths are used as-is.
			return testfs.SowFromReader(cmd.InOrStdin(), "/")
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "reap PATH...",
		Short: "Print a JSON snapshot of the given volumes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return testfs.ReapToWriter(cmd.OutOrStdout(), args)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "testfs-helper: %v\n", err)
		os.Exit(1)
	}
}
