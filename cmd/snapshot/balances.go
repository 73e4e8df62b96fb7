package snapshot

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/oracle"
	"github/chapool/vault-oracle/internal/util/command"
)

const holderFlag = "holder"

func newBalances() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Aggregates balances across all configured chains",
		Long: `Reads the agent's token balance on every configured chain and the idle, invested and
total assets of every configured vault, and prints the aggregate as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			holder, err := cmd.Flags().GetString(holderFlag)
			if err != nil {
				return err
			}
			if holder != "" && !common.IsHexAddress(holder) {
				return errors.Errorf("invalid --%s %q", holderFlag, holder)
			}

			return command.Run(cmd, func(ctx context.Context, o *oracle.Oracle) error {
				agent := o.Signer.Address()
				if holder != "" {
					agent = common.HexToAddress(holder)
				}

				aggregated, err := o.Aggregator.Aggregate(ctx, agent)
				if err != nil {
					return err
				}

				return writeJSON(cmd.OutOrStdout(), aggregated)
			})
		},
	}

	cmd.Flags().String(holderFlag, "", "Address to aggregate for instead of the derived identity")

	return cmd
}
