package chain

import (
	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// TokenEntry maps a base asset on a chain to its yield-bearing token.
type TokenEntry struct {
	ChainID int64  `toml:"chain_id"`
	Asset   string `toml:"asset"`
	Token   string `toml:"token"`
}

// TokenTable is the versioned static fallback used when the live pool lookup fails.
// It is never refreshed at runtime.
type TokenTable struct {
	Version string       `toml:"version"`
	Tokens  []TokenEntry `toml:"tokens"`

	index map[tokenKey]common.Address
}

type tokenKey struct {
	chainID int64
	asset   common.Address
}

// LoadTokenTable decodes the TOML table at path.
func LoadTokenTable(path string) (*TokenTable, error) {
	var table TokenTable
	if _, err := toml.DecodeFile(path, &table); err != nil {
		return nil, errors.Wrapf(err, "failed to decode token table %s", path)
	}

	if err := table.build(); err != nil {
		return nil, errors.Wrapf(err, "invalid token table %s", path)
	}

	return &table, nil
}

// ParseTokenTable decodes a TOML table from memory.
func ParseTokenTable(data string) (*TokenTable, error) {
	var table TokenTable
	if _, err := toml.Decode(data, &table); err != nil {
		return nil, errors.Wrap(err, "failed to decode token table")
	}

	if err := table.build(); err != nil {
		return nil, err
	}

	return &table, nil
}

func (t *TokenTable) build() error {
	if t.Version == "" {
		return errors.New("token table has no version")
	}

	t.index = make(map[tokenKey]common.Address, len(t.Tokens))
	for i, entry := range t.Tokens {
		if !common.IsHexAddress(entry.Asset) || !common.IsHexAddress(entry.Token) {
			return errors.Errorf("entry %d: invalid address (asset=%q token=%q)", i, entry.Asset, entry.Token)
		}

		key := tokenKey{chainID: entry.ChainID, asset: common.HexToAddress(entry.Asset)}
		if _, ok := t.index[key]; ok {
			return errors.Errorf("entry %d: duplicate asset %s on chain %d", i, entry.Asset, entry.ChainID)
		}
		t.index[key] = common.HexToAddress(entry.Token)
	}

	return nil
}

// Lookup returns the token for asset on chainID. A nil table has no entries.
func (t *TokenTable) Lookup(chainID int64, asset common.Address) (common.Address, bool) {
	if t == nil || t.index == nil {
		return common.Address{}, false
	}

	token, ok := t.index[tokenKey{chainID: chainID, asset: asset}]
	return token, ok
}
