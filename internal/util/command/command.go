package command

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/vault-oracle/internal/config"
	"github/chapool/vault-oracle/internal/oracle"
)

// NewSubcommandGroup returns a command that only groups subCommands and prints help when run.
func NewSubcommandGroup(name string, subCommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <subcommand>", name),
		Short: fmt.Sprintf("%s related subcommands", name),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(subCommands...)

	return cmd
}

// WithOracle sets up logging, validates cfg, builds the Oracle and runs f with it.
// Once f returns, metrics are written to cfg.Metrics.Textfile (if set) and the Oracle is closed.
func WithOracle(ctx context.Context, cfg config.Server, f func(ctx context.Context, o *oracle.Oracle) error) error {
	config.SetupLogger(cfg.Logger)

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	o, err := oracle.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize oracle")
		return errors.Wrap(err, "failed to initialize oracle")
	}
	defer o.Close()

	requestLogger := log.Logger.Level(cfg.Logger.RequestLevelOrDefault())
	ctx = requestLogger.WithContext(ctx)

	err = f(ctx, o)

	if cfg.Metrics.Textfile != "" {
		if writeErr := o.WriteMetrics(cfg.Metrics.Textfile); writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to export metrics")
			if err == nil {
				err = writeErr
			}
		}
	}

	return err
}

const (
	// ConfigFlag is the persistent flag holding the config file path.
	ConfigFlag = "config"
	// MetricsFileFlag is the persistent flag overriding metrics.textfile.
	MetricsFileFlag = "metrics-file"
)

// LoadConfig loads the config file named by the --config flag of cmd, if any.
// A non-empty --metrics-file replaces metrics.textfile.
func LoadConfig(cmd *cobra.Command) (config.Server, error) {
	path, err := cmd.Flags().GetString(ConfigFlag)
	if err != nil {
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Server{}, err
	}

	if metricsFile, err := cmd.Flags().GetString(MetricsFileFlag); err == nil && metricsFile != "" {
		cfg.Metrics.Textfile = metricsFile
	}

	return cfg, nil
}

// Run loads the config of cmd and runs f with a fully built Oracle.
func Run(cmd *cobra.Command, f func(ctx context.Context, o *oracle.Oracle) error) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	return WithOracle(cmd.Context(), cfg, f)
}
