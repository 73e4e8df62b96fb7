package snapshot

import (
	"context"
	"encoding/hex"

	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/oracle"
	"github/chapool/vault-oracle/internal/util/command"
)

type identityOutput struct {
	Namespace   string `json:"namespace"`
	ContractID  string `json:"contract_id"`
	Path        string `json:"path"`
	PublicKey   string `json:"public_key"`
	Address     string `json:"address"`
	NEARAccount string `json:"near_account"`
	NEARKey     string `json:"near_public_key"`
}

func newIdentity() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Prints the derived signing identity",
		Long:  "Derives the agent identity from the configured root public key and prints its key and address.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return command.Run(cmd, func(_ context.Context, o *oracle.Oracle) error {
				id := o.Signer.Identity()

				return writeJSON(cmd.OutOrStdout(), identityOutput{
					Namespace:   o.Config.Identity.Namespace,
					ContractID:  o.Config.Identity.ContractID,
					Path:        o.Config.Identity.Path,
					PublicKey:   "0x" + hex.EncodeToString(id.PublicKey),
					Address:     id.Address.Hex(),
					NEARAccount: o.NEAR.AccountID(),
					NEARKey:     o.NEAR.PublicKey(),
				})
			})
		},
	}
}
