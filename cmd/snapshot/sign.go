package snapshot

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/oracle"
	"github/chapool/vault-oracle/internal/oracle/signer"
	"github/chapool/vault-oracle/internal/util/command"
)

const (
	assetsFlag   = "assets"
	receiverFlag = "receiver"
	chainIDFlag  = "chain-id"
)

type signOutput struct {
	RequestID         string   `json:"request_id"`
	Balance           *big.Int `json:"balance"`
	Nonce             *big.Int `json:"nonce"`
	Deadline          uint64   `json:"deadline"`
	Assets            string   `json:"assets"`
	Receiver          string   `json:"receiver"`
	ChainID           int64    `json:"chain_id"`
	VerifyingContract string   `json:"verifying_contract"`
	Digest            string   `json:"digest"`
	Signature         string   `json:"signature"`
	Signer            string   `json:"signer"`
}

func newSign() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Signs a cross-chain balance snapshot",
		Long: `Aggregates balances, reads the vault nonce, submits the snapshot to the remote MPC signer
and prints the verified signature. No retry is performed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := signRequestFromFlags(cmd)
			if err != nil {
				return err
			}

			return command.Run(cmd, func(ctx context.Context, o *oracle.Oracle) error {
				signed, err := o.Signer.SignSnapshot(ctx, req)
				if err != nil {
					return err
				}

				return writeJSON(cmd.OutOrStdout(), signOutput{
					RequestID:         signed.RequestID,
					Balance:           signed.Snapshot.Balance,
					Nonce:             signed.Snapshot.Nonce,
					Deadline:          signed.Snapshot.Deadline,
					Assets:            signed.Snapshot.Assets.String(),
					Receiver:          signed.Snapshot.Receiver.Hex(),
					ChainID:           signed.Domain.ChainID,
					VerifyingContract: signed.Domain.VerifyingContract.Hex(),
					Digest:            signed.Digest.Hex(),
					Signature:         hexutil.Encode(signed.Signature),
					Signer:            signed.Signer.Hex(),
				})
			})
		},
	}

	cmd.Flags().String(assetsFlag, "", "Assets to attest, in base units (decimal)")
	cmd.Flags().String(receiverFlag, "", "Receiver address")
	cmd.Flags().Int64(chainIDFlag, 0, "Chain id of the vault consuming the snapshot")

	for _, name := range []string{assetsFlag, receiverFlag, chainIDFlag} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	return cmd
}

func signRequestFromFlags(cmd *cobra.Command) (*signer.SnapshotRequest, error) {
	flags := cmd.Flags()

	rawAssets, err := flags.GetString(assetsFlag)
	if err != nil {
		return nil, err
	}
	assets, ok := new(big.Int).SetString(rawAssets, 10)
	if !ok || assets.Sign() < 0 {
		return nil, errors.Errorf("invalid --%s %q", assetsFlag, rawAssets)
	}

	receiver, err := flags.GetString(receiverFlag)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(receiver) {
		return nil, errors.Errorf("invalid --%s %q", receiverFlag, receiver)
	}

	chainID, err := flags.GetInt64(chainIDFlag)
	if err != nil {
		return nil, err
	}

	return &signer.SnapshotRequest{
		Assets:       assets,
		Receiver:     common.HexToAddress(receiver),
		VaultChainID: chainID,
	}, nil
}
