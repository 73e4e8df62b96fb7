package keystore

import (
	"crypto/ed25519"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/oracle/keystore"
	"github/chapool/vault-oracle/internal/oracle/near"
	"github/chapool/vault-oracle/internal/util/command"
)

const outFlag = "out"

func newEncrypt() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypts the NEAR signer key into a keystore file",
		Long: `Reads signer.private_key and signer.keystore_password from the config
(ORACLE_SIGNER_PRIVATE_KEY, ORACLE_SIGNER_KEYSTORE_PASSWORD) and writes the encrypted key to --out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := cmd.Flags().GetString(outFlag)
			if err != nil {
				return err
			}

			cfg, err := command.LoadConfig(cmd)
			if err != nil {
				return err
			}

			if cfg.Signer.KeystorePassword == "" {
				return errors.New("signer.keystore_password is required")
			}

			key, err := near.ParsePrivateKey(cfg.Signer.PrivateKey)
			if err != nil {
				return errors.Wrap(err, "invalid signer.private_key")
			}

			ks, err := keystore.Encrypt([]byte(cfg.Signer.PrivateKey), cfg.Signer.KeystorePassword, keystore.DefaultScryptParams())
			if err != nil {
				return err
			}

			if err := keystore.Save(out, ks); err != nil {
				return err
			}

			pub, ok := key.Public().(ed25519.PublicKey)
			if !ok {
				return errors.New("failed to derive NEAR public key")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s for %s\n", out, near.FormatPublicKey(pub))
			return nil
		},
	}

	cmd.Flags().String(outFlag, "signer.keystore.json", "Path of the keystore file to write")

	return cmd
}
