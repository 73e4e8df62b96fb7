package keystore

import (
	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
)

// KeystoreJSON represents the Ethereum keystore v3 JSON structure around an arbitrary secret
//
//nolint:revive // KeystoreJSON is the standard name for Ethereum keystore JSON structure
type KeystoreJSON struct {
	Version int                     `json:"version"`
	ID      string                  `json:"id"`
	Crypto  gethkeystore.CryptoJSON `json:"crypto"`
}

// ScryptParams defines the tunable scrypt KDF parameters. r and dklen are fixed by keystore v3.
type ScryptParams struct {
	N int // CPU/memory cost parameter
	P int // Parallelization parameter
}

// DefaultScryptParams returns default scrypt parameters for Ethereum keystore v3
func DefaultScryptParams() ScryptParams {
	return ScryptParams{
		N: gethkeystore.StandardScryptN,
		P: gethkeystore.StandardScryptP,
	}
}
