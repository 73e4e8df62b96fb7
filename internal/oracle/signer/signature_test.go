package signer_test

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
	"github/chapool/vault-oracle/internal/oracle/signer"
)

func jsonBytes(t *testing.T, b []byte) []byte {
	t.Helper()

	values := make([]int, len(b))
	for i, v := range b {
		values[i] = int(v)
	}

	out, err := json.Marshal(values)
	require.NoError(t, err)

	return out
}

func TestDecodeSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest := crypto.Keccak256Hash([]byte("snapshot"))
	sig, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	decoded, err := signer.DecodeSignature(jsonBytes(t, sig))
	require.NoError(t, err)
	assert.Equal(t, sig, decoded)

	eth := signer.ToEthereumSignature(decoded)
	assert.Equal(t, sig[64]+27, eth[64])
	assert.Equal(t, sig[:64], eth[:64])
	assert.Equal(t, sig[64], decoded[64], "input is not modified")

	recovered, err := signer.RecoverSigner(digest, eth)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)

	recovered, err = signer.RecoverSigner(digest, decoded)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestDecodeSignatureRejectsMalformed(t *testing.T) {
	valid := make([]byte, 65)

	badRecovery := make([]byte, 65)
	badRecovery[64] = 27

	tests := []struct {
		name  string
		value []byte
	}{
		{"64 bytes", jsonBytes(t, valid[:64])},
		{"66 bytes", jsonBytes(t, append(valid, 0))},
		{"empty", []byte(`[]`)},
		{"not json", []byte(`0xdeadbeef`)},
		{"base64 string", []byte(`"AAAA"`)},
		{"out of range", []byte(`[256` + string(jsonBytes(t, valid)[2:]))},
		{"recovery id", jsonBytes(t, badRecovery)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.DecodeSignature(tt.value)
			require.Error(t, err)
			assert.ErrorIs(t, err, oracleerrors.ErrMalformedSignature)
		})
	}
}

func TestRecoverSignerRejectsWrongLength(t *testing.T) {
	_, err := signer.RecoverSigner(crypto.Keccak256Hash(nil), make([]byte, 64))
	assert.ErrorIs(t, err, oracleerrors.ErrMalformedSignature)
}
