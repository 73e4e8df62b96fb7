package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	// EnvPrefix is prepended to every environment override, e.g. ORACLE_SIGNER_ACCOUNT_ID.
	EnvPrefix = "ORACLE"

	// DefaultNamespace is the epsilon derivation prefix shared with the MPC signer.
	// Changing it yields a different identity for every context.
	DefaultNamespace = "near-mpc-recovery v0.1.0 epsilon derivation:"

	// DefaultSignerMethod is the contract method that builds and signs the balance snapshot.
	DefaultSignerMethod = "build_and_sign_crosschain_balance_snapshot_tx"

	defaultGasTgas         = 300
	defaultCallbackGasTgas = 50
	defaultDeadlineWindow  = 300 * time.Second
)

// LoggerServer configures the process logger.
type LoggerServer struct {
	Level              string `mapstructure:"level"`
	RequestLevel       string `mapstructure:"request_level"`
	PrettyPrintConsole bool   `mapstructure:"pretty_print_console"`
	LogCaller          bool   `mapstructure:"log_caller"`
}

// Identity holds the root key material and derivation context of the oracle agent.
type Identity struct {
	RootPublicKey string `mapstructure:"root_public_key"`
	Namespace     string `mapstructure:"namespace"`
	ContractID    string `mapstructure:"contract_id"`
	Path          string `mapstructure:"path"`
}

// Signer configures the remote NEAR signer contract call.
type Signer struct {
	RPCURLs          []string      `mapstructure:"rpc_urls"`
	AccountID        string        `mapstructure:"account_id"`
	PrivateKey       string        `mapstructure:"private_key"`
	KeystoreFile     string        `mapstructure:"keystore_file"`
	KeystorePassword string        `mapstructure:"keystore_password"`
	ContractID       string        `mapstructure:"contract_id"`
	Method           string        `mapstructure:"method"`
	GasTgas          uint64        `mapstructure:"gas_tgas"`
	CallbackGasTgas  uint64        `mapstructure:"callback_gas_tgas"`
	DepositYocto     string        `mapstructure:"deposit_yocto"`
	DeadlineWindow   time.Duration `mapstructure:"deadline_window"`
}

// Chain is a single configured EVM chain. Vault is empty when the chain has no vault.
type Chain struct {
	ChainID   int64    `mapstructure:"chain_id"`
	Name      string   `mapstructure:"name"`
	RPCURLs   []string `mapstructure:"rpc_urls"`
	BaseAsset string   `mapstructure:"base_asset"`
	Pool      string   `mapstructure:"pool"`
	Vault     string   `mapstructure:"vault"`
}

// Metrics configures where collected metrics are exported when a command finishes.
type Metrics struct {
	// Textfile is written in the node_exporter textfile format. Empty disables the export.
	Textfile string `mapstructure:"textfile"`
}

// Server is the root configuration of the oracle process.
type Server struct {
	Logger     LoggerServer `mapstructure:"logger"`
	Identity   Identity     `mapstructure:"identity"`
	Signer     Signer       `mapstructure:"signer"`
	Chains     []Chain      `mapstructure:"chains"`
	TokenTable string       `mapstructure:"token_table"`
	Metrics    Metrics      `mapstructure:"metrics"`
}

// DefaultServiceConfigFromEnv returns the configuration built from defaults and ORACLE_* env vars only.
func DefaultServiceConfigFromEnv() Server {
	var cfg Server
	if err := newViper().Unmarshal(&cfg); err != nil {
		log.Warn().Err(err).Msg("Failed to decode config from env, using zero values")
	}

	return cfg
}

// Load reads the configuration file at path (optional) and applies ORACLE_* env overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (Server, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := gotenv.Load(".env"); err != nil {
			return Server{}, errors.Wrap(err, "failed to load .env file")
		}
	}

	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Server{}, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return Server{}, errors.Wrap(err, "failed to decode config")
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logger.level", zerolog.InfoLevel.String())
	v.SetDefault("logger.request_level", zerolog.DebugLevel.String())
	v.SetDefault("logger.pretty_print_console", false)
	v.SetDefault("logger.log_caller", false)

	v.SetDefault("identity.root_public_key", "")
	v.SetDefault("identity.namespace", DefaultNamespace)
	v.SetDefault("identity.contract_id", "")
	v.SetDefault("identity.path", "")

	v.SetDefault("signer.rpc_urls", []string{"https://rpc.testnet.near.org"})
	v.SetDefault("signer.account_id", "")
	v.SetDefault("signer.private_key", "")
	v.SetDefault("signer.keystore_file", "")
	v.SetDefault("signer.keystore_password", "")
	v.SetDefault("signer.contract_id", "")
	v.SetDefault("signer.method", DefaultSignerMethod)
	v.SetDefault("signer.gas_tgas", defaultGasTgas)
	v.SetDefault("signer.callback_gas_tgas", defaultCallbackGasTgas)
	v.SetDefault("signer.deposit_yocto", "1")
	v.SetDefault("signer.deadline_window", defaultDeadlineWindow)

	v.SetDefault("token_table", "")
	v.SetDefault("metrics.textfile", "")

	return v
}

// Validate checks that every credential required to serve signing requests is present.
func (c Server) Validate() error {
	switch {
	case c.Identity.RootPublicKey == "":
		return errors.New("identity.root_public_key is required")
	case c.Identity.ContractID == "":
		return errors.New("identity.contract_id is required")
	case c.Identity.Path == "":
		return errors.New("identity.path is required")
	case c.Signer.AccountID == "":
		return errors.New("signer.account_id is required")
	case c.Signer.PrivateKey == "" && c.Signer.KeystoreFile == "":
		return errors.New("signer.private_key or signer.keystore_file is required")
	case c.Signer.ContractID == "":
		return errors.New("signer.contract_id is required")
	case len(c.Signer.RPCURLs) == 0:
		return errors.New("signer.rpc_urls must not be empty")
	case len(c.Chains) == 0:
		return errors.New("at least one chain must be configured")
	}

	seen := make(map[int64]struct{}, len(c.Chains))
	for _, ch := range c.Chains {
		if _, ok := seen[ch.ChainID]; ok {
			return errors.Errorf("chain %d configured twice", ch.ChainID)
		}
		seen[ch.ChainID] = struct{}{}

		if len(ch.RPCURLs) == 0 {
			return errors.Errorf("chain %s (%d) has no rpc_urls", ch.Name, ch.ChainID)
		}
		if ch.BaseAsset == "" {
			return errors.Errorf("chain %s (%d) has no base_asset", ch.Name, ch.ChainID)
		}
	}

	return nil
}
