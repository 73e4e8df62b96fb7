package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github/chapool/vault-oracle/internal/oracle/identity"
)

// Service signs balance snapshots through the remote MPC signer and verifies the result
type Service interface {
	// Identity returns the derived identity the remote signer signs with
	Identity() *identity.Derived
	// Address returns the derived identity's account address
	Address() common.Address
	// State reports whether the signer is serving or mid-request
	State() State
	// SignSnapshot builds, submits and verifies one balance snapshot
	SignSnapshot(ctx context.Context, req *SnapshotRequest) (*SignedSnapshot, error)
}

// SnapshotRequest is the caller-supplied part of a snapshot
type SnapshotRequest struct {
	Assets       *big.Int       // Assets to attest (base units)
	Receiver     common.Address // Account the vault acts for
	VaultChainID int64          // Chain of the vault that consumes the snapshot
}

// Snapshot is the attested record, in the field order of the typed data
type Snapshot struct {
	Balance  *big.Int
	Nonce    *big.Int
	Deadline uint64
	Assets   *big.Int
	Receiver common.Address
}

// Domain is the typed data domain of the consuming vault
type Domain struct {
	ChainID           int64
	VerifyingContract common.Address
}

// SignedSnapshot is a snapshot whose signature recovered to the derived identity
type SignedSnapshot struct {
	RequestID string
	Snapshot  Snapshot
	Domain    Domain
	Digest    common.Hash
	Signature []byte // r || s || v with v in {27, 28}
	Signer    common.Address
}

// SnapshotArgs is the argument object of the remote signing method. Balance, nonce and
// deadline serialize as JSON numbers; assets is a decimal string.
type SnapshotArgs struct {
	Balance           *big.Int `json:"balance"`
	ChainID           int64    `json:"chain_id"`
	VerifyingContract string   `json:"verifying_contract"`
	Nonce             *big.Int `json:"nonce"`
	Deadline          uint64   `json:"deadline"`
	Assets            string   `json:"assets"`
	Receiver          string   `json:"receiver"`
}

// SignCall is the full JSON payload of the remote signing method
type SignCall struct {
	Args            SnapshotArgs `json:"args"`
	CallbackGasTgas uint64       `json:"callback_gas_tgas"`
}

// NewSignCall maps a snapshot and its domain onto the remote call payload
func NewSignCall(snapshot Snapshot, domain Domain, callbackGasTgas uint64) SignCall {
	return SignCall{
		Args: SnapshotArgs{
			Balance:           snapshot.Balance,
			ChainID:           domain.ChainID,
			VerifyingContract: domain.VerifyingContract.Hex(),
			Nonce:             snapshot.Nonce,
			Deadline:          snapshot.Deadline,
			Assets:            snapshot.Assets.String(),
			Receiver:          snapshot.Receiver.Hex(),
		},
		CallbackGasTgas: callbackGasTgas,
	}
}

// State of the signer
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateSigning
	StateVerified
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateSigning:
		return "signing"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
