package near

import (
	"bytes"
	"crypto/ed25519"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const ed25519Prefix = "ed25519:"

// ParsePrivateKey decodes a NEAR "ed25519:<base58>" key holding either the 64-byte
// expanded key or the 32-byte seed.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	if !strings.HasPrefix(s, ed25519Prefix) {
		return nil, errors.New("private key must start with " + ed25519Prefix)
	}

	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode private key")
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !bytes.Equal(key[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
			return nil, errors.New("private key public half does not match its seed")
		}
		return key, nil
	default:
		return nil, errors.Errorf("unexpected private key length %d", len(raw))
	}
}

// FormatPublicKey returns the NEAR textual form of an ed25519 public key.
func FormatPublicKey(pub ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pub)
}
