package signer

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
)

const (
	signatureLength = 65
	recoveryIDIndex = 64

	// ethereumRecoveryOffset maps recovery id 0/1 onto v = 27/28
	ethereumRecoveryOffset = 27
)

// DecodeSignature parses the remote signer's SuccessValue, a JSON array of byte values,
// into r || s || recoveryID. Anything other than 65 values in 0..255 is malformed.
func DecodeSignature(value []byte) ([]byte, error) {
	var values []int
	if err := json.Unmarshal(value, &values); err != nil {
		return nil, oracleerrors.Mark(oracleerrors.ErrMalformedSignature, err, "signature is not a JSON byte array")
	}

	if len(values) != signatureLength {
		return nil, errors.Wrapf(oracleerrors.ErrMalformedSignature, "got %d bytes, want %d", len(values), signatureLength)
	}

	sig := make([]byte, signatureLength)
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, errors.Wrapf(oracleerrors.ErrMalformedSignature, "byte %d out of range: %d", i, v)
		}
		sig[i] = byte(v)
	}

	if sig[recoveryIDIndex] > 1 {
		return nil, errors.Wrapf(oracleerrors.ErrMalformedSignature, "recovery id %d", sig[recoveryIDIndex])
	}

	return sig, nil
}

// ToEthereumSignature returns a copy of sig with the recovery id moved to v = 27/28
func ToEthereumSignature(sig []byte) []byte {
	out := append([]byte(nil), sig...)
	out[recoveryIDIndex] += ethereumRecoveryOffset

	return out
}

// RecoverSigner recovers the address that produced sig (recovery id 0/1 or v 27/28) over digest
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, errors.Wrapf(oracleerrors.ErrMalformedSignature, "got %d bytes, want %d", len(sig), signatureLength)
	}

	normalized := append([]byte(nil), sig...)
	if normalized[recoveryIDIndex] >= ethereumRecoveryOffset {
		normalized[recoveryIDIndex] -= ethereumRecoveryOffset
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, oracleerrors.Mark(oracleerrors.ErrSignatureMismatch, err, "failed to recover public key")
	}

	return crypto.PubkeyToAddress(*pub), nil
}
