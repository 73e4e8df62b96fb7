package probe

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/oracle"
	"github/chapool/vault-oracle/internal/util/command"
)

func newReadiness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Runs readiness probes",
		Long:  "Checks every chain RPC and the NEAR signer account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, err := cmd.Flags().GetBool(verboseFlag)
			if err != nil {
				return err
			}

			return command.Run(cmd, func(ctx context.Context, o *oracle.Oracle) error {
				failed := 0
				for _, res := range o.Readiness(ctx) {
					if res.Err != nil {
						failed++
						fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", res.Name, res.Err)
						continue
					}
					if verbose {
						fmt.Fprintf(cmd.OutOrStdout(), "OK   %s: %s\n", res.Name, res.Detail)
					}
				}

				if failed > 0 {
					return errors.Errorf("%d readiness checks failed", failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Show verbose output.")

	return cmd
}
