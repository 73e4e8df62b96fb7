package identity

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
)

const (
	rawPointLength          = 64
	uncompressedPointLength = 65
	compressedPointLength   = 33
	uncompressedMarker      = 0x04

	nearSecp256k1Prefix = "secp256k1:"
)

// ParseRootPublicKey decodes a textual root public key. Accepted forms are the NEAR
// "secp256k1:<base58>" encoding and hex (with or without 0x) of a 33, 64 or 65 byte point.
func ParseRootPublicKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(oracleerrors.ErrInvalidKeyFormat, "root public key is empty")
	}

	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(s, nearSecp256k1Prefix) {
		raw, err = base58.Decode(strings.TrimPrefix(s, nearSecp256k1Prefix))
		if err != nil {
			return nil, oracleerrors.Mark(oracleerrors.ErrInvalidKeyFormat, err, "failed to decode base58 root public key")
		}
	} else {
		raw, err = hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
		if err != nil {
			return nil, oracleerrors.Mark(oracleerrors.ErrInvalidKeyFormat, err, "failed to decode hex root public key")
		}
	}

	return NormalizePublicKey(raw)
}

// NormalizePublicKey returns the 65-byte uncompressed form (leading 0x04) of a secp256k1 point
// given as a 64-byte raw point, a 33-byte compressed point or an uncompressed point.
func NormalizePublicKey(key []byte) ([]byte, error) {
	pub, err := parsePoint(key)
	if err != nil {
		return nil, err
	}

	return pub.SerializeUncompressed(), nil
}

func parsePoint(key []byte) (*secp256k1.PublicKey, error) {
	var serialized []byte

	switch len(key) {
	case rawPointLength:
		serialized = make([]byte, 0, uncompressedPointLength)
		serialized = append(serialized, uncompressedMarker)
		serialized = append(serialized, key...)
	case uncompressedPointLength:
		if key[0] != uncompressedMarker {
			return nil, errors.Wrapf(oracleerrors.ErrInvalidKeyFormat, "uncompressed key has marker 0x%02x", key[0])
		}
		serialized = key
	case compressedPointLength:
		serialized = key
	default:
		return nil, errors.Wrapf(oracleerrors.ErrInvalidKeyFormat, "unexpected key length %d", len(key))
	}

	pub, err := secp256k1.ParsePubKey(serialized)
	if err != nil {
		return nil, oracleerrors.Mark(oracleerrors.ErrInvalidKeyFormat, err, "key is not a valid secp256k1 point")
	}

	return pub, nil
}
