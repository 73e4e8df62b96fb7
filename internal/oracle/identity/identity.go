// Package identity derives the oracle agent's signing identity from the MPC root public key.
//
// The derivation is additive: the MPC network computes the child private key as
// rootPrivateKey + epsilon (mod n), so the child public key is rootPublicKey + epsilon*G.
// Epsilon is SHA3-256(namespace || contractID || "," || path) read as a big-endian scalar.
package identity

import (
	"crypto/ecdsa"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
	"golang.org/x/crypto/sha3"
)

// Context fully determines epsilon. Identical contexts always yield identical identities.
type Context struct {
	Namespace  string
	ContractID string
	Path       string
}

// Derived is the agent identity: the derived public key and its 20-byte account address.
type Derived struct {
	// PublicKey is the 65-byte uncompressed point including the 0x04 marker.
	PublicKey []byte
	Address   common.Address
}

// Epsilon returns the 32-byte derivation tweak for ctx.
func Epsilon(ctx Context) [32]byte {
	return sha3.Sum256([]byte(ctx.Namespace + ctx.ContractID + "," + ctx.Path))
}

// Derive computes the identity for rootPublicKey (33, 64 or 65 bytes) under ctx.
// It is pure; callers derive once at startup and keep the result.
func Derive(rootPublicKey []byte, ctx Context) (*Derived, error) {
	root, err := parsePoint(rootPublicKey)
	if err != nil {
		return nil, err
	}

	eps := Epsilon(ctx)

	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(eps[:])
	if scalar.IsZero() {
		return nil, errors.Wrap(oracleerrors.ErrInvalidDerivation, "epsilon reduces to zero")
	}

	var rootPoint, epsPoint, derivedPoint secp256k1.JacobianPoint
	root.AsJacobian(&rootPoint)
	secp256k1.ScalarBaseMultNonConst(&scalar, &epsPoint)
	if isInfinity(&epsPoint) {
		return nil, errors.Wrap(oracleerrors.ErrInvalidDerivation, "epsilon*G is the point at infinity")
	}

	secp256k1.AddNonConst(&rootPoint, &epsPoint, &derivedPoint)
	if isInfinity(&derivedPoint) {
		return nil, errors.Wrap(oracleerrors.ErrInvalidDerivation, "derived point is the point at infinity")
	}
	derivedPoint.ToAffine()

	pub := secp256k1.NewPublicKey(&derivedPoint.X, &derivedPoint.Y)
	uncompressed := pub.SerializeUncompressed()

	return &Derived{
		PublicKey: uncompressed,
		Address:   AddressFromPublicKey(uncompressed),
	}, nil
}

// AddressFromPublicKey returns the last 20 bytes of keccak256 over the point without its marker byte.
func AddressFromPublicKey(uncompressed []byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256(uncompressed[1:])[12:])
}

// ECDSA returns the derived public key as an *ecdsa.PublicKey.
func (d *Derived) ECDSA() (*ecdsa.PublicKey, error) {
	pub, err := crypto.UnmarshalPubkey(d.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal derived public key")
	}

	return pub, nil
}

func isInfinity(p *secp256k1.JacobianPoint) bool {
	return p.Z.IsZero() || (p.X.IsZero() && p.Y.IsZero())
}
