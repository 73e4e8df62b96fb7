package chain_test

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/vault-oracle/internal/oracle/chain"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
)

var (
	selBalanceOf      = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selGetReserveData = crypto.Keccak256([]byte("getReserveData(address)"))[:4]
	selTotalAssets    = crypto.Keccak256([]byte("totalAssets()"))[:4]
	selNonce          = crypto.Keccak256([]byte("nonce()"))[:4]

	usdc   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	aUSDC  = common.HexToAddress("0x724dc807b04555b71ed48a6896b6F41593b8C637")
	pool   = common.HexToAddress("0x794a61358D6845594F94dc1DB02A252b5b4814aD")
	vault  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	holder = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type fakeCaller struct {
	mu     sync.Mutex
	calls  map[string]int
	handle func(to common.Address, data []byte) chain.CallResult
}

func newFakeCaller(handle func(to common.Address, data []byte) chain.CallResult) *fakeCaller {
	return &fakeCaller{calls: make(map[string]int), handle: handle}
}

func (f *fakeCaller) CallContract(_ context.Context, to common.Address, data []byte, _ *big.Int) chain.CallResult {
	f.mu.Lock()
	f.calls[common.Bytes2Hex(data[:4])]++
	f.mu.Unlock()

	return f.handle(to, data)
}

func (f *fakeCaller) LatestHeader(context.Context) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1234), Time: 1_700_000_000}, nil
}

func (f *fakeCaller) count(selector []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[common.Bytes2Hex(selector)]
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func reserveData(token common.Address) []byte {
	out := make([]byte, 0, 15*32)
	for i := 0; i < 15; i++ {
		if i == 8 {
			out = append(out, common.LeftPadBytes(token.Bytes(), 32)...)
			continue
		}
		out = append(out, make([]byte, 32)...)
	}
	return out
}

func ok(data []byte) chain.CallResult {
	return chain.CallResult{Outcome: chain.CallSucceeded, Data: data}
}

func empty() chain.CallResult {
	return chain.CallResult{Outcome: chain.CallEmptyResponse}
}

func transportErr() chain.CallResult {
	return chain.CallResult{Outcome: chain.CallTransportError, Err: errors.New("connection refused")}
}

func arbitrum() chain.Config {
	v := vault
	return chain.Config{ChainID: 42161, Name: "arbitrum", BaseAsset: usdc, Pool: pool, Vault: &v}
}

func newService(t *testing.T, caller chain.Caller, table *chain.TokenTable) chain.Service {
	t.Helper()
	return chain.NewService(map[int64]chain.Caller{42161: caller}, table)
}

func TestGetBalanceEmptyResponseIsZero(t *testing.T) {
	caller := newFakeCaller(func(common.Address, []byte) chain.CallResult { return empty() })
	svc := newService(t, caller, nil)

	balance, err := svc.GetBalance(t.Context(), arbitrum(), aUSDC, holder)
	require.NoError(t, err)
	assert.Equal(t, 0, balance.Sign())
}

func TestGetBalanceFailures(t *testing.T) {
	tests := []struct {
		name    string
		result  chain.CallResult
		message string
	}{
		{"transport error", transportErr(), "chain arbitrum: balanceOf: connection refused"},
		{"malformed response", ok([]byte{0x01, 0x02}), "chain arbitrum: malformed balanceOf response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller(func(common.Address, []byte) chain.CallResult { return tt.result })
			svc := newService(t, caller, nil)

			_, err := svc.GetBalance(t.Context(), arbitrum(), aUSDC, holder)
			require.Error(t, err)
			assert.ErrorIs(t, err, oracleerrors.ErrBalanceQueryFailed)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestGetBalanceUnknownChain(t *testing.T) {
	svc := chain.NewService(map[int64]chain.Caller{}, nil)

	_, err := svc.GetBalance(t.Context(), arbitrum(), aUSDC, holder)
	assert.ErrorIs(t, err, oracleerrors.ErrChainNotConfigured)
}

func TestResolveTokenAddressFromPoolIsCached(t *testing.T) {
	caller := newFakeCaller(func(to common.Address, data []byte) chain.CallResult {
		if to == pool && bytes.Equal(data[:4], selGetReserveData) {
			return ok(reserveData(aUSDC))
		}
		return transportErr()
	})
	svc := newService(t, caller, nil)

	for i := 0; i < 3; i++ {
		token, err := svc.ResolveTokenAddress(t.Context(), arbitrum(), usdc)
		require.NoError(t, err)
		assert.Equal(t, aUSDC, token)
	}

	assert.Equal(t, 1, caller.count(selGetReserveData))
}

func TestResolveTokenAddressFallsBackToTable(t *testing.T) {
	table, err := chain.ParseTokenTable(`
version = "test-1"

[[tokens]]
chain_id = 42161
asset = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
token = "0x724dc807b04555b71ed48a6896b6F41593b8C637"
`)
	require.NoError(t, err)

	caller := newFakeCaller(func(common.Address, []byte) chain.CallResult { return transportErr() })
	svc := newService(t, caller, table)

	token, err := svc.ResolveTokenAddress(t.Context(), arbitrum(), usdc)
	require.NoError(t, err)
	assert.Equal(t, aUSDC, token)

	// cached: the pool is not asked again
	_, err = svc.ResolveTokenAddress(t.Context(), arbitrum(), usdc)
	require.NoError(t, err)
	assert.Equal(t, 1, caller.count(selGetReserveData))
}

func TestResolveTokenAddressZeroReserveFallsBack(t *testing.T) {
	table, err := chain.ParseTokenTable(`
version = "test-1"

[[tokens]]
chain_id = 42161
asset = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
token = "0x724dc807b04555b71ed48a6896b6F41593b8C637"
`)
	require.NoError(t, err)

	caller := newFakeCaller(func(common.Address, []byte) chain.CallResult { return ok(reserveData(common.Address{})) })
	svc := newService(t, caller, table)

	token, err := svc.ResolveTokenAddress(t.Context(), arbitrum(), usdc)
	require.NoError(t, err)
	assert.Equal(t, aUSDC, token)
}

func TestResolveTokenAddressUnresolved(t *testing.T) {
	table, err := chain.ParseTokenTable(`version = "empty"`)
	require.NoError(t, err)

	caller := newFakeCaller(func(common.Address, []byte) chain.CallResult { return empty() })
	svc := newService(t, caller, table)

	_, err = svc.ResolveTokenAddress(t.Context(), arbitrum(), usdc)
	require.Error(t, err)
	assert.ErrorIs(t, err, oracleerrors.ErrUnresolvedToken)
	assert.Contains(t, err.Error(), "chain arbitrum: pool lookup failed and asset "+usdc.Hex()+" is not in the token table")
}

func vaultCaller(totalAssets chain.CallResult) *fakeCaller {
	return newFakeCaller(func(to common.Address, data []byte) chain.CallResult {
		switch {
		case bytes.Equal(data[:4], selGetReserveData):
			return ok(reserveData(aUSDC))
		case bytes.Equal(data[:4], selBalanceOf) && to == usdc:
			return ok(word(big.NewInt(250)))
		case bytes.Equal(data[:4], selBalanceOf) && to == aUSDC:
			return ok(word(big.NewInt(750)))
		case bytes.Equal(data[:4], selTotalAssets):
			return totalAssets
		case bytes.Equal(data[:4], selNonce):
			return ok(word(big.NewInt(7)))
		}
		return transportErr()
	})
}

func TestReadVaultBalance(t *testing.T) {
	svc := newService(t, vaultCaller(ok(word(big.NewInt(1001)))), nil)

	vb, err := svc.ReadVaultBalance(t.Context(), arbitrum())
	require.NoError(t, err)

	assert.Equal(t, vault, vb.VaultAddress)
	assert.Equal(t, "250", vb.IdleBalance.String())
	assert.Equal(t, "750", vb.InvestedBalance.String())
	assert.Equal(t, "1001", vb.TotalAssets.String())
	assert.Equal(t, uint64(1234), vb.BlockNumber)
	assert.Equal(t, uint64(1_700_000_000), vb.TimestampUnix)
}

func TestReadVaultBalanceTotalAssetsFallback(t *testing.T) {
	for name, res := range map[string]chain.CallResult{
		"transport": transportErr(),
		"empty":     empty(),
	} {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, vaultCaller(res), nil)

			vb, err := svc.ReadVaultBalance(t.Context(), arbitrum())
			require.NoError(t, err)
			assert.Equal(t, "1000", vb.TotalAssets.String())
		})
	}
}

func TestReadVaultBalanceWithoutVault(t *testing.T) {
	svc := newService(t, vaultCaller(empty()), nil)

	noVault := arbitrum()
	noVault.Vault = nil

	_, err := svc.ReadVaultBalance(t.Context(), noVault)
	assert.ErrorIs(t, err, oracleerrors.ErrVaultNotConfigured)

	_, err = svc.VaultNonce(t.Context(), noVault)
	assert.ErrorIs(t, err, oracleerrors.ErrVaultNotConfigured)
}

func TestReadChainBalance(t *testing.T) {
	svc := newService(t, vaultCaller(empty()), nil)

	cb, err := svc.ReadChainBalance(t.Context(), arbitrum(), holder)
	require.NoError(t, err)

	assert.Equal(t, aUSDC, cb.TokenAddress)
	assert.Equal(t, "750", cb.TokenBalance.String())
	assert.Equal(t, "arbitrum", cb.ChainName)
	assert.Equal(t, uint64(1234), cb.BlockNumber)
}

func TestVaultNonceIsReadEveryTime(t *testing.T) {
	caller := vaultCaller(empty())
	svc := newService(t, caller, nil)

	for i := 0; i < 2; i++ {
		nonce, err := svc.VaultNonce(t.Context(), arbitrum())
		require.NoError(t, err)
		assert.Equal(t, "7", nonce.String())
	}
	assert.Equal(t, 2, caller.count(selNonce))
}
