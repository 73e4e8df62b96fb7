package snapshot

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("snapshot",
		newIdentity(),
		newBalances(),
		newSign(),
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode output")
	}

	return nil
}
