//nolint:ireturn // Returning interface is intentional for dependency injection
package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
)

// Service reads balances and vault state from the configured chains.
type Service interface {
	// ResolveTokenAddress returns the yield-bearing token for baseAsset on chain.
	// The pool is asked first; the static table is the fallback.
	ResolveTokenAddress(ctx context.Context, chain Config, baseAsset common.Address) (common.Address, error)

	// GetBalance returns holder's token balance at the latest block. Empty responses read as zero.
	GetBalance(ctx context.Context, chain Config, token, holder common.Address) (*big.Int, error)

	// ReadChainBalance returns holder's yield-token balance pinned to the latest header.
	ReadChainBalance(ctx context.Context, chain Config, holder common.Address) (*ChainBalance, error)

	// ReadVaultBalance returns the vault's idle, invested and total assets pinned to the latest header.
	ReadVaultBalance(ctx context.Context, chain Config) (*VaultBalance, error)

	// VaultNonce returns the vault's current snapshot nonce. It is never cached.
	VaultNonce(ctx context.Context, chain Config) (*big.Int, error)
}

type service struct {
	callers map[int64]Caller
	table   *TokenTable

	// tokenKey -> common.Address. Entries are authoritative once written.
	tokens sync.Map
}

// NewService creates a chain balance source over one Caller per chain id.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(callers map[int64]Caller, table *TokenTable) Service {
	return &service{
		callers: callers,
		table:   table,
	}
}

func (s *service) caller(chain Config) (Caller, error) {
	c, ok := s.callers[chain.ChainID]
	if !ok || c == nil {
		return nil, errors.Wrapf(oracleerrors.ErrChainNotConfigured, "no RPC client for chain %s (%d)", chain.Name, chain.ChainID)
	}

	return c, nil
}

// ResolveTokenAddress implements Service.
func (s *service) ResolveTokenAddress(ctx context.Context, chain Config, baseAsset common.Address) (common.Address, error) {
	key := tokenKey{chainID: chain.ChainID, asset: baseAsset}
	if cached, ok := s.tokens.Load(key); ok {
		return cached.(common.Address), nil //nolint:forcetypeassert // only addresses are stored
	}

	token, err := s.lookupReserveToken(ctx, chain, baseAsset)
	if err != nil {
		fallback, ok := s.table.Lookup(chain.ChainID, baseAsset)
		if !ok {
			return common.Address{}, oracleerrors.Markf(oracleerrors.ErrUnresolvedToken, err,
				"chain %s: pool lookup failed and asset %s is not in the token table", chain.Name, baseAsset.Hex())
		}

		log.Warn().
			Err(err).
			Int64("chain_id", chain.ChainID).
			Str("chain", chain.Name).
			Str("asset", baseAsset.Hex()).
			Str("token", fallback.Hex()).
			Msg("Pool reserve lookup failed, using token table")
		token = fallback
	}

	s.tokens.Store(key, token)
	return token, nil
}

func (s *service) lookupReserveToken(ctx context.Context, chain Config, baseAsset common.Address) (common.Address, error) {
	if chain.Pool == (common.Address{}) {
		return common.Address{}, errors.New("no pool configured")
	}

	caller, err := s.caller(chain)
	if err != nil {
		return common.Address{}, err
	}

	data, err := poolABI.Pack("getReserveData", baseAsset)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to pack getReserveData")
	}

	res := caller.CallContract(ctx, chain.Pool, data, nil)
	if res.Outcome != CallSucceeded {
		if res.Err != nil {
			return common.Address{}, errors.Wrap(res.Err, "getReserveData failed")
		}
		return common.Address{}, errors.Errorf("getReserveData returned %s", res.Outcome)
	}

	out, err := poolABI.Unpack("getReserveData", res.Data)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to unpack getReserveData")
	}

	token, ok := out[reserveTokenOutputIndex].(common.Address)
	if !ok || token == (common.Address{}) {
		return common.Address{}, errors.New("reserve has no token address")
	}

	return token, nil
}

// GetBalance implements Service.
func (s *service) GetBalance(ctx context.Context, chain Config, token, holder common.Address) (*big.Int, error) {
	caller, err := s.caller(chain)
	if err != nil {
		return nil, err
	}

	return balanceOf(ctx, caller, chain, token, holder, nil)
}

func balanceOf(ctx context.Context, caller Caller, chain Config, token, holder common.Address, block *big.Int) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack balanceOf")
	}

	return readUint256(caller.CallContract(ctx, token, data, block), erc20ABI.Unpack, "balanceOf", chain)
}

type unpackFunc func(name string, data []byte) ([]interface{}, error)

// readUint256 maps a tagged call result to a value: empty responses are zero, everything
// other than a decodable uint256 is a balance query failure.
func readUint256(res CallResult, unpack unpackFunc, method string, chain Config) (*big.Int, error) {
	switch res.Outcome {
	case CallEmptyResponse:
		return new(big.Int), nil
	case CallTransportError:
		return nil, oracleerrors.Markf(oracleerrors.ErrBalanceQueryFailed, res.Err, "chain %s: %s", chain.Name, method)
	case CallSucceeded:
	}

	out, err := unpack(method, res.Data)
	if err != nil {
		return nil, oracleerrors.Markf(oracleerrors.ErrBalanceQueryFailed, err, "chain %s: malformed %s response", chain.Name, method)
	}

	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Wrapf(oracleerrors.ErrBalanceQueryFailed, "chain %s: %s returned %T", chain.Name, method, out[0])
	}

	return value, nil
}

func (s *service) latestHeader(ctx context.Context, caller Caller, chain Config) (*types.Header, error) {
	header, err := caller.LatestHeader(ctx)
	if err != nil {
		return nil, oracleerrors.Markf(oracleerrors.ErrBalanceQueryFailed, err, "chain %s: latest header", chain.Name)
	}

	return header, nil
}

// ReadChainBalance implements Service.
func (s *service) ReadChainBalance(ctx context.Context, chain Config, holder common.Address) (*ChainBalance, error) {
	caller, err := s.caller(chain)
	if err != nil {
		return nil, err
	}

	token, err := s.ResolveTokenAddress(ctx, chain, chain.BaseAsset)
	if err != nil {
		return nil, err
	}

	header, err := s.latestHeader(ctx, caller, chain)
	if err != nil {
		return nil, err
	}

	balance, err := balanceOf(ctx, caller, chain, token, holder, header.Number)
	if err != nil {
		return nil, err
	}

	return &ChainBalance{
		ChainID:       chain.ChainID,
		ChainName:     chain.Name,
		TokenAddress:  token,
		TokenBalance:  balance,
		BlockNumber:   header.Number.Uint64(),
		TimestampUnix: header.Time,
	}, nil
}

// ReadVaultBalance implements Service.
func (s *service) ReadVaultBalance(ctx context.Context, chain Config) (*VaultBalance, error) {
	if !chain.HasVault() {
		return nil, errors.Wrapf(oracleerrors.ErrVaultNotConfigured, "chain %s (%d)", chain.Name, chain.ChainID)
	}
	vault := *chain.Vault

	caller, err := s.caller(chain)
	if err != nil {
		return nil, err
	}

	token, err := s.ResolveTokenAddress(ctx, chain, chain.BaseAsset)
	if err != nil {
		return nil, err
	}

	header, err := s.latestHeader(ctx, caller, chain)
	if err != nil {
		return nil, err
	}

	idle, err := balanceOf(ctx, caller, chain, chain.BaseAsset, vault, header.Number)
	if err != nil {
		return nil, errors.Wrap(err, "idle balance")
	}

	invested, err := balanceOf(ctx, caller, chain, token, vault, header.Number)
	if err != nil {
		return nil, errors.Wrap(err, "invested balance")
	}

	total, err := s.totalAssets(ctx, caller, chain, vault, header.Number)
	if err != nil {
		total = new(big.Int).Add(idle, invested)
		log.Warn().
			Err(err).
			Int64("chain_id", chain.ChainID).
			Str("vault", vault.Hex()).
			Str("fallback_total", total.String()).
			Msg("totalAssets call failed, summing idle and invested balances")
	}

	return &VaultBalance{
		ChainID:         chain.ChainID,
		ChainName:       chain.Name,
		VaultAddress:    vault,
		IdleBalance:     idle,
		InvestedBalance: invested,
		TotalAssets:     total,
		BlockNumber:     header.Number.Uint64(),
		TimestampUnix:   header.Time,
	}, nil
}

func (s *service) totalAssets(ctx context.Context, caller Caller, chain Config, vault common.Address, block *big.Int) (*big.Int, error) {
	data, err := vaultABI.Pack("totalAssets")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack totalAssets")
	}

	return readVaultUint256(caller.CallContract(ctx, vault, data, block), "totalAssets", chain)
}

// VaultNonce implements Service.
func (s *service) VaultNonce(ctx context.Context, chain Config) (*big.Int, error) {
	if !chain.HasVault() {
		return nil, errors.Wrapf(oracleerrors.ErrVaultNotConfigured, "chain %s (%d)", chain.Name, chain.ChainID)
	}

	caller, err := s.caller(chain)
	if err != nil {
		return nil, err
	}

	data, err := vaultABI.Pack("nonce")
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack nonce")
	}

	return readVaultUint256(caller.CallContract(ctx, *chain.Vault, data, nil), "nonce", chain)
}

// readVaultUint256 is readUint256 for vault accessors, where no data means the accessor is missing.
func readVaultUint256(res CallResult, method string, chain Config) (*big.Int, error) {
	if res.Outcome == CallEmptyResponse {
		return nil, errors.Wrapf(oracleerrors.ErrBalanceQueryFailed, "chain %s: vault %s returned no data", chain.Name, method)
	}

	return readUint256(res, vaultABI.Unpack, method, chain)
}
