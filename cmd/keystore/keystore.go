package keystore

import (
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("keystore",
		newEncrypt(),
	)
}
