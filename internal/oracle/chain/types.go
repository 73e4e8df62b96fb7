package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/chapool/vault-oracle/internal/config"
)

// Config is a configured EVM chain. It is static for the process lifetime.
type Config struct {
	ChainID   int64
	Name      string
	RPCURLs   []string
	BaseAsset common.Address
	Pool      common.Address
	Vault     *common.Address
}

// HasVault reports whether a vault is deployed on the chain.
func (c Config) HasVault() bool {
	return c.Vault != nil
}

// ChainBalance is the agent's yield-token balance on one chain, read at BlockNumber.
type ChainBalance struct {
	ChainID       int64
	ChainName     string
	TokenAddress  common.Address
	TokenBalance  *big.Int
	BlockNumber   uint64
	TimestampUnix uint64
}

// VaultBalance is a vault's position on its chain, read at BlockNumber.
// TotalAssets comes from the vault's own accessor, or idle + invested when that call fails.
type VaultBalance struct {
	ChainID         int64
	ChainName       string
	VaultAddress    common.Address
	IdleBalance     *big.Int
	InvestedBalance *big.Int
	TotalAssets     *big.Int
	BlockNumber     uint64
	TimestampUnix   uint64
}

// ConfigsFromServer converts and validates the chain section of the server config.
func ConfigsFromServer(chains []config.Chain) ([]Config, error) {
	result := make([]Config, 0, len(chains))

	for _, ch := range chains {
		cfg := Config{
			ChainID: ch.ChainID,
			Name:    ch.Name,
			RPCURLs: ch.RPCURLs,
		}

		if !common.IsHexAddress(ch.BaseAsset) {
			return nil, errors.Errorf("chain %s: invalid base_asset %q", ch.Name, ch.BaseAsset)
		}
		cfg.BaseAsset = common.HexToAddress(ch.BaseAsset)

		if ch.Pool != "" {
			if !common.IsHexAddress(ch.Pool) {
				return nil, errors.Errorf("chain %s: invalid pool %q", ch.Name, ch.Pool)
			}
			cfg.Pool = common.HexToAddress(ch.Pool)
		}

		if ch.Vault != "" {
			if !common.IsHexAddress(ch.Vault) {
				return nil, errors.Errorf("chain %s: invalid vault %q", ch.Name, ch.Vault)
			}
			vault := common.HexToAddress(ch.Vault)
			cfg.Vault = &vault
		}

		result = append(result, cfg)
	}

	return result, nil
}
