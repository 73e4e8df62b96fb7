package signer

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

const (
	DomainName    = "AaveVault"
	DomainVersion = "1"
	PrimaryType   = "CrossChainBalanceSnapshot"
)

var snapshotTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "balance", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "assets", Type: "uint256"},
		{Name: "receiver", Type: "address"},
	},
}

// TypedData returns the EIP-712 typed data of snapshot under domain
func TypedData(snapshot Snapshot, domain Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       snapshotTypes,
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"balance":  snapshot.Balance.String(),
			"nonce":    snapshot.Nonce.String(),
			"deadline": strconv.FormatUint(snapshot.Deadline, 10),
			"assets":   snapshot.Assets.String(),
			"receiver": snapshot.Receiver.Hex(),
		},
	}
}

// SnapshotDigest returns keccak256("\x19\x01" || domainSeparator || hashStruct(snapshot))
func SnapshotDigest(snapshot Snapshot, domain Domain) (common.Hash, error) {
	if snapshot.Balance == nil || snapshot.Nonce == nil || snapshot.Assets == nil {
		return common.Hash{}, errors.New("snapshot has unset fields")
	}

	digest, _, err := apitypes.TypedDataAndHash(TypedData(snapshot, domain))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to hash typed data")
	}

	return common.BytesToHash(digest), nil
}
