package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/cmd/keystore"
	"github/chapool/vault-oracle/cmd/probe"
	"github/chapool/vault-oracle/cmd/snapshot"
	"github/chapool/vault-oracle/internal/config"
	"github/chapool/vault-oracle/internal/util/command"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "app",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

Attests cross-chain vault balances and has them signed by a remote MPC signer.
Configured through a config file (--config) and ORACLE_* environment variables.`, config.ModuleName),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.PersistentFlags().StringP(command.ConfigFlag, "c", "", "Config file (toml, yaml or json)")
	rootCmd.PersistentFlags().String(command.MetricsFileFlag, "", "Write metrics to this file (node_exporter textfile format) on exit")

	// attach the subcommands
	rootCmd.AddCommand(
		keystore.New(),
		probe.New(),
		snapshot.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
