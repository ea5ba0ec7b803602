package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check backend availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			status, err := client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("backend at %s is unreachable: %w", cfg.Server.APIURL, err)
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend %s: %s\n", cfg.Server.APIURL, status.Status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
