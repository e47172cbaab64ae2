package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/swarmkb/internal/db/postgres"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	var (
		down  bool
		steps int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back relational mirror migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Mirror.DSN == "" {
				return fmt.Errorf("mirror.dsn is not configured")
			}
			conn, err := postgres.Open(cmd.Context(), postgres.Config{DSN: cfg.Mirror.DSN})
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if down {
				if err := postgres.MigrateDown(conn, steps); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mirror migrations rolled back")
				return nil
			}
			if err := postgres.Migrate(conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "mirror schema is current")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back instead of applying")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back (0 = all)")
	return cmd
}
