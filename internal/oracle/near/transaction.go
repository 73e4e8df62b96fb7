package near

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"math/big"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

const (
	keyTypeED25519 uint8 = 0

	actionFunctionCall borsh.Enum = 2

	// TeraGas is 10^12 gas units.
	TeraGas uint64 = 1_000_000_000_000
)

// PublicKey is the borsh layout of a NEAR public key.
type PublicKey struct {
	KeyType uint8
	Data    [ed25519.PublicKeySize]byte
}

// Signature is the borsh layout of a NEAR signature.
type Signature struct {
	KeyType uint8
	Data    [ed25519.SignatureSize]byte
}

// Action is the borsh enum of NEAR actions. Only FunctionCall is ever sent; the
// preceding variants keep the enum indices aligned.
type Action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  CreateAccount
	DeployContract DeployContract
	FunctionCall   FunctionCall
}

// CreateAccount is action variant 0.
type CreateAccount struct{}

// DeployContract is action variant 1.
type DeployContract struct {
	Code []byte
}

// FunctionCall is action variant 2. Deposit is a u128 in yoctoNEAR.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    big.Int
}

// Transaction is the borsh layout of an unsigned NEAR transaction.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// SignedTransaction is a transaction plus its ed25519 signature.
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

// NewFunctionCallTransaction builds a single-action function call transaction.
func NewFunctionCallTransaction(
	signerID string,
	pub ed25519.PublicKey,
	nonce uint64,
	receiverID string,
	blockHash string,
	call FunctionCall,
) (*Transaction, error) {
	hash, err := base58.Decode(blockHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode block hash")
	}
	if len(hash) != 32 {
		return nil, errors.Errorf("block hash has %d bytes, want 32", len(hash))
	}

	tx := &Transaction{
		SignerID:   signerID,
		Nonce:      nonce,
		ReceiverID: receiverID,
		Actions: []Action{{
			Enum:         actionFunctionCall,
			FunctionCall: call,
		}},
	}
	tx.PublicKey.KeyType = keyTypeED25519
	copy(tx.PublicKey.Data[:], pub)
	copy(tx.BlockHash[:], hash)

	return tx, nil
}

// Hash returns sha256 over the borsh encoding, which is what gets signed.
func (tx *Transaction) Hash() ([32]byte, error) {
	encoded, err := borsh.Serialize(*tx)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "failed to serialize transaction")
	}

	return sha256.Sum256(encoded), nil
}

// Sign signs the transaction hash with key.
func (tx *Transaction) Sign(key ed25519.PrivateKey) (*SignedTransaction, error) {
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}

	signed := &SignedTransaction{Transaction: *tx}
	signed.Signature.KeyType = keyTypeED25519
	copy(signed.Signature.Data[:], ed25519.Sign(key, hash[:]))

	return signed, nil
}

// Base64 returns the base64 borsh encoding expected by broadcast_tx_commit.
func (s *SignedTransaction) Base64() (string, error) {
	encoded, err := borsh.Serialize(*s)
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize signed transaction")
	}

	return base64.StdEncoding.EncodeToString(encoded), nil
}
