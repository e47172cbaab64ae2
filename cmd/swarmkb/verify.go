package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/swarmkb/internal/db/postgres"
	mirrorrepo "github.com/kailas-cloud/swarmkb/internal/repository/mirror"
	"github.com/kailas-cloud/swarmkb/internal/usecase/verifier"
	swarmkb "github.com/kailas-cloud/swarmkb/pkg/sdk"
)

func newVerifySchemaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-schema",
		Short: "Compare the mirror table with the metadata field list",
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

			report, err := verifier.New(mirrorrepo.New(conn), zap.NewNop()).VerifySchema(cmd.Context(), nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "columns: %d of %d expected\n", len(report.Actual), len(report.Expected))
			if len(report.Missing) > 0 {
				fmt.Fprintf(out, "missing: %s\n", strings.Join(report.Missing, ", "))
			}
			if len(report.Extra) > 0 {
				fmt.Fprintf(out, "extra: %s\n", strings.Join(report.Extra, ", "))
			}
			if !report.OK() {
				return fmt.Errorf("mirror schema is missing %d columns", len(report.Missing))
			}
			fmt.Fprintln(out, "schema ok")
			return nil
		},
	}
}

// nodeFlags address a running node through the client SDK.
type nodeFlags struct {
	url     string
	apiKey  string
	context string
}

func (f *nodeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "node", "http://localhost:8080", "node base URL")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "bearer API key")
	cmd.Flags().StringVar(&f.context, "context", swarmkb.DefaultContext, "cluster context path")
}

func (f *nodeFlags) client() (*swarmkb.Client, error) {
	opts := []swarmkb.Option{swarmkb.WithContext(f.context)}
	if f.apiKey != "" {
		opts = append(opts, swarmkb.WithAPIKey(f.apiKey))
	}
	return swarmkb.New(f.url, opts...)
}

func newReplicationCmd() *cobra.Command {
	nf := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   "replication <associated_id>",
		Short: "Report which nodes hold the metadata of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := nf.client()
			if err != nil {
				return err
			}
			report, err := c.Replication(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.FullyReplicated {
				return fmt.Errorf("%s is not fully replicated: absent=%v unreachable=%v",
					args[0], report.Absent, report.Unreachable)
			}
			return nil
		},
	}
	nf.bind(cmd)
	return cmd
}

func newStatusCmd() *cobra.Command {
	nf := &nodeFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a node's identity, peers and health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := nf.client()
			if err != nil {
				return err
			}
			st, err := c.AgentStatus(cmd.Context())
			if err != nil {
				return err
			}
			hs, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Agent  swarmkb.AgentStatus  `json:"agent"`
				Health swarmkb.HealthStatus `json:"health"`
			}{st, hs})
		},
	}
	nf.bind(cmd)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
