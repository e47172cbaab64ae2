// Command swarmkb runs and operates a swarmkb catalog node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/swarmkb/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	env        string
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "swarmkb",
		Short:         "Peer-to-peer knowledge catalog node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.env, "env", config.GetEnv(),
		"environment name, selects config/<env>.yaml")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"explicit config file path (overrides --env lookup)")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newVerifySchemaCmd(flags),
		newReplicationCmd(),
		newStatusCmd(),
		newQueryCmd(),
		newGetCmd(),
		newVersionCmd(),
	)
	return root
}

func (f *globalFlags) load() (config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	return config.Load(f.env)
}
