package probe

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/oracle"
	"github/chapool/vault-oracle/internal/util/command"
)

func newLiveness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Runs liveness probes",
		Long:  "Validates the config and derives the signing identity without any network call.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, err := cmd.Flags().GetBool(verboseFlag)
			if err != nil {
				return err
			}

			return command.Run(cmd, func(_ context.Context, o *oracle.Oracle) error {
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "identity %s\n", o.Signer.Address().Hex())
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Show verbose output.")

	return cmd
}
