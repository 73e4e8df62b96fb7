// Package keystore keeps the NEAR signer key encrypted at rest in the keystore v3 layout
// (scrypt, AES-128-CTR, keccak256 MAC).
package keystore

import (
	"encoding/json"
	"os"

	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	version = 3
	kdfName = "scrypt"
)

// ErrInvalidPassword is returned when the MAC does not match.
var ErrInvalidPassword = errors.New("invalid password: MAC mismatch")

// Encrypt encrypts secret with password.
func Encrypt(secret []byte, password string, params ScryptParams) (*KeystoreJSON, error) {
	cryptoJSON, err := gethkeystore.EncryptDataV3(secret, []byte(password), params.N, params.P)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt secret")
	}

	return &KeystoreJSON{
		Version: version,
		ID:      uuid.New().String(),
		Crypto:  cryptoJSON,
	}, nil
}

// Decrypt returns the secret stored in ks.
func Decrypt(ks *KeystoreJSON, password string) ([]byte, error) {
	if ks.Version != version || ks.Crypto.KDF != kdfName {
		return nil, errors.Errorf("unsupported keystore (version %d, kdf %s)", ks.Version, ks.Crypto.KDF)
	}
	if err := checkKDFParams(ks.Crypto.KDFParams); err != nil {
		return nil, err
	}

	secret, err := gethkeystore.DecryptDataV3(ks.Crypto, password)
	if err != nil {
		if errors.Is(err, gethkeystore.ErrDecrypt) {
			return nil, ErrInvalidPassword
		}
		return nil, errors.Wrap(err, "failed to decrypt keystore")
	}

	return secret, nil
}

// checkKDFParams rejects scrypt parameters DecryptDataV3 cannot read.
func checkKDFParams(params map[string]interface{}) error {
	if _, ok := params["salt"].(string); !ok {
		return errors.New("kdfparams.salt is missing")
	}

	for _, name := range []string{"n", "r", "p", "dklen"} {
		var value int
		switch v := params[name].(type) {
		case int:
			value = v
		case float64:
			value = int(v)
		default:
			return errors.Errorf("kdfparams.%s is missing", name)
		}

		if value <= 0 {
			return errors.Errorf("kdfparams.%s must be positive", name)
		}
		if name == "dklen" && value < 32 {
			return errors.Errorf("derived key length %d is too short", value)
		}
	}

	return nil
}

// Load reads and decrypts the keystore file at path.
func Load(path string, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keystore %s", path)
	}

	var ks KeystoreJSON
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal keystore %s", path)
	}

	secret, err := Decrypt(&ks, password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt keystore %s", path)
	}

	return secret, nil
}

// Save writes ks to path, readable by the owner only.
func Save(path string, ks *KeystoreJSON) error {
	data, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal keystore JSON")
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write keystore %s", path)
	}

	return nil
}
