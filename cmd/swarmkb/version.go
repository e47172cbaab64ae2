package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/swarmkb/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "swarmkb "+version.String())
		},
	}
}
