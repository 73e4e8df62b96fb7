//nolint:ireturn // Returning interface is intentional for dependency injection
package signer

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github/chapool/vault-oracle/internal/metrics"
	"github/chapool/vault-oracle/internal/oracle/balance"
	"github/chapool/vault-oracle/internal/oracle/chain"
	"github/chapool/vault-oracle/internal/oracle/identity"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
	"github/chapool/vault-oracle/internal/util"
)

// DefaultDeadlineWindow is how far in the future a snapshot deadline is set
const DefaultDeadlineWindow = 300 * time.Second

// RemoteSigner submits a function call to the signing contract and returns its raw result
type RemoteSigner interface {
	CallFunction(ctx context.Context, receiverID, method string, args []byte) ([]byte, error)
}

// VaultReader reads the vault's expected next snapshot nonce
type VaultReader interface {
	VaultNonce(ctx context.Context, chain chain.Config) (*big.Int, error)
}

// Config carries the identity material and remote signer parameters
type Config struct {
	RootPublicKey   []byte
	Derivation      identity.Context
	ContractID      string // Signing contract on NEAR
	Method          string
	CallbackGasTgas uint64
	DeadlineWindow  time.Duration
	Chains          []chain.Config

	// Now defaults to time.Now
	Now func() time.Time
}

type service struct {
	cfg        Config
	identity   *identity.Derived
	remote     RemoteSigner
	aggregator balance.Service
	vaults     VaultReader
	metrics    *metrics.Collectors

	inFlight atomic.Int32
}

// NewService derives the identity and validates the signer configuration. On error no
// signer exists: identity failures are fatal for the process.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(
	cfg Config,
	remote RemoteSigner,
	aggregator balance.Service,
	vaults VaultReader,
	collectors *metrics.Collectors,
) (Service, error) {
	switch {
	case cfg.ContractID == "":
		return nil, errors.New("signer contract id is required")
	case cfg.Method == "":
		return nil, errors.New("signer method is required")
	case remote == nil || aggregator == nil || vaults == nil:
		return nil, errors.New("signer dependencies are required")
	}

	derived, err := identity.Derive(cfg.RootPublicKey, cfg.Derivation)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive signer identity")
	}

	if cfg.DeadlineWindow <= 0 {
		cfg.DeadlineWindow = DefaultDeadlineWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &service{
		cfg:        cfg,
		identity:   derived,
		remote:     remote,
		aggregator: aggregator,
		vaults:     vaults,
		metrics:    collectors,
	}, nil
}

// Identity implements Service.
func (s *service) Identity() *identity.Derived {
	return s.identity
}

// Address implements Service.
func (s *service) Address() common.Address {
	return s.identity.Address
}

// State implements Service.
func (s *service) State() State {
	if s.inFlight.Load() > 0 {
		return StateSigning
	}

	return StateReady
}

func (s *service) vaultChain(chainID int64) (chain.Config, error) {
	for _, ch := range s.cfg.Chains {
		if ch.ChainID != chainID {
			continue
		}
		if !ch.HasVault() {
			return chain.Config{}, errors.Wrapf(oracleerrors.ErrVaultNotConfigured, "chain %s (%d)", ch.Name, chainID)
		}
		return ch, nil
	}

	return chain.Config{}, errors.Wrapf(oracleerrors.ErrChainNotConfigured, "chain %d", chainID)
}

// SignSnapshot implements Service.
func (s *service) SignSnapshot(ctx context.Context, req *SnapshotRequest) (*SignedSnapshot, error) {
	if req == nil || req.Assets == nil || req.Assets.Sign() < 0 {
		return nil, errors.New("assets must be a non-negative integer")
	}

	vaultChain, err := s.vaultChain(req.VaultChainID)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	ctx = util.WithLogger(ctx, map[string]string{
		"request_id": requestID,
		"vault":      vaultChain.Vault.Hex(),
	})
	log := util.LogFromContext(ctx)

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	signed, err := s.sign(ctx, log, requestID, vaultChain, req)
	if err != nil {
		s.metrics.ObserveSigning(StateFailed.String())
		log.Error().Err(err).Msg("Snapshot signing failed")
		return nil, err
	}

	s.metrics.ObserveSigning(StateVerified.String())
	log.Info().
		Str("digest", signed.Digest.Hex()).
		Str("balance", signed.Snapshot.Balance.String()).
		Str("nonce", signed.Snapshot.Nonce.String()).
		Uint64("deadline", signed.Snapshot.Deadline).
		Msg("Snapshot signed and verified")

	return signed, nil
}

func (s *service) sign(
	ctx context.Context,
	log *zerolog.Logger,
	requestID string,
	vaultChain chain.Config,
	req *SnapshotRequest,
) (*SignedSnapshot, error) {
	aggregated, err := s.aggregator.Aggregate(ctx, s.identity.Address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate balances")
	}
	if _, ok := aggregated.Vault(vaultChain.ChainID); !ok {
		return nil, errors.Wrapf(oracleerrors.ErrBalanceQueryFailed, "no vault balance for chain %s", vaultChain.Name)
	}

	nonce, err := s.vaults.VaultNonce(ctx, vaultChain)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read vault nonce")
	}

	snapshot := Snapshot{
		Balance:  new(big.Int).Set(aggregated.TotalTokens),
		Nonce:    nonce,
		Deadline: uint64(s.cfg.Now().Add(s.cfg.DeadlineWindow).Unix()), //nolint:gosec // unix time is positive
		Assets:   new(big.Int).Set(req.Assets),
		Receiver: req.Receiver,
	}
	domain := Domain{
		ChainID:           vaultChain.ChainID,
		VerifyingContract: *vaultChain.Vault,
	}

	digest, err := SnapshotDigest(snapshot, domain)
	if err != nil {
		return nil, err
	}

	args, err := json.Marshal(NewSignCall(snapshot, domain, s.cfg.CallbackGasTgas))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode sign call")
	}

	log.Debug().
		Str("contract", s.cfg.ContractID).
		Str("method", s.cfg.Method).
		RawJSON("args", args).
		Msg("Submitting snapshot to remote signer")

	value, err := s.remote.CallFunction(ctx, s.cfg.ContractID, s.cfg.Method, args)
	if err != nil {
		return nil, oracleerrors.Mark(oracleerrors.ErrRemoteSignerFailure, err, "remote signer call failed")
	}

	raw, err := DecodeSignature(value)
	if err != nil {
		return nil, err
	}
	sig := ToEthereumSignature(raw)

	recovered, err := RecoverSigner(digest, sig)
	if err != nil {
		return nil, err
	}

	if recovered != s.identity.Address {
		return nil, errors.Wrapf(oracleerrors.ErrSignatureMismatch, "recovered %s, expected %s",
			recovered.Hex(), s.identity.Address.Hex())
	}

	return &SignedSnapshot{
		RequestID: requestID,
		Snapshot:  snapshot,
		Domain:    domain,
		Digest:    digest,
		Signature: sig,
		Signer:    recovered,
	}, nil
}
