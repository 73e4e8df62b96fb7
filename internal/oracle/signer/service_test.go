package signer_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/vault-oracle/internal/metrics"
	"github/chapool/vault-oracle/internal/oracle/balance"
	"github/chapool/vault-oracle/internal/oracle/chain"
	"github/chapool/vault-oracle/internal/oracle/identity"
	"github/chapool/vault-oracle/internal/oracle/oracleerrors"
	"github/chapool/vault-oracle/internal/oracle/signer"
)

var (
	derivation = identity.Context{
		Namespace:  "near-mpc-recovery v0.1.0 epsilon derivation:",
		ContractID: "oracle.testnet",
		Path:       "ethereum-1",
	}
	vaultAddress = common.HexToAddress("0x2222222222222222222222222222222222222222")
	receiver     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	fixedNow     = time.Unix(1_760_000_000, 0)
)

type fakeAggregator struct {
	result *balance.Aggregated
	err    error
	agents []common.Address
}

func (f *fakeAggregator) Aggregate(_ context.Context, agent common.Address) (*balance.Aggregated, error) {
	f.agents = append(f.agents, agent)
	return f.result, f.err
}

type fakeVaults struct {
	nonce *big.Int
	err   error
	calls int
}

func (f *fakeVaults) VaultNonce(_ context.Context, _ chain.Config) (*big.Int, error) {
	f.calls++
	return f.nonce, f.err
}

// mpcSigner signs whatever snapshot it receives with the derived child key, the way the
// remote contract does, and answers with a JSON byte array.
type mpcSigner struct {
	t   *testing.T
	key *ecdsa.PrivateKey
	err error

	// overrides the response when set
	response []byte

	contract string
	method   string
	calls    []signer.SignCall
	rawArgs  []byte
}

func (m *mpcSigner) CallFunction(_ context.Context, receiverID, method string, args []byte) ([]byte, error) {
	m.contract = receiverID
	m.method = method
	m.rawArgs = args

	if m.err != nil {
		return nil, m.err
	}

	var call signer.SignCall
	require.NoError(m.t, json.Unmarshal(args, &call))
	m.calls = append(m.calls, call)

	if m.response != nil {
		return m.response, nil
	}

	assets, ok := new(big.Int).SetString(call.Args.Assets, 10)
	require.True(m.t, ok)

	digest, err := signer.SnapshotDigest(signer.Snapshot{
		Balance:  call.Args.Balance,
		Nonce:    call.Args.Nonce,
		Deadline: call.Args.Deadline,
		Assets:   assets,
		Receiver: common.HexToAddress(call.Args.Receiver),
	}, signer.Domain{
		ChainID:           call.Args.ChainID,
		VerifyingContract: common.HexToAddress(call.Args.VerifyingContract),
	})
	require.NoError(m.t, err)

	sig, err := crypto.Sign(digest.Bytes(), m.key)
	require.NoError(m.t, err)

	return jsonBytes(m.t, sig), nil
}

// childKey returns root + epsilon (mod n), the key the MPC network signs with.
func childKey(t *testing.T, root *ecdsa.PrivateKey) *ecdsa.PrivateKey {
	t.Helper()

	eps := identity.Epsilon(derivation)
	d := new(big.Int).Add(root.D, new(big.Int).SetBytes(eps[:]))
	d.Mod(d, crypto.S256().Params().N)

	key, err := crypto.ToECDSA(math.PaddedBigBytes(d, 32))
	require.NoError(t, err)

	return key
}

type fixture struct {
	svc        signer.Service
	remote     *mpcSigner
	aggregator *fakeAggregator
	vaults     *fakeVaults
	collectors *metrics.Collectors
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root, err := crypto.GenerateKey()
	require.NoError(t, err)

	vault := vaultAddress
	chains := []chain.Config{
		{ChainID: 42161, Name: "arbitrum", Vault: &vault},
		{ChainID: 8453, Name: "base"},
	}

	invested, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	f := &fixture{
		remote: &mpcSigner{t: t, key: childKey(t, root)},
		aggregator: &fakeAggregator{result: &balance.Aggregated{
			Vaults: []*chain.VaultBalance{{
				ChainID:         42161,
				ChainName:       "arbitrum",
				VaultAddress:    vault,
				IdleBalance:     big.NewInt(5),
				InvestedBalance: invested,
				TotalAssets:     new(big.Int).Add(invested, big.NewInt(5)),
			}},
			TotalTokens: invested,
		}},
		vaults:     &fakeVaults{nonce: big.NewInt(7)},
		collectors: metrics.New(prometheus.NewRegistry()),
	}

	f.svc, err = signer.NewService(signer.Config{
		RootPublicKey:   crypto.FromECDSAPub(&root.PublicKey),
		Derivation:      derivation,
		ContractID:      "signer.testnet",
		Method:          "build_and_sign_crosschain_balance_snapshot_tx",
		CallbackGasTgas: 50,
		Chains:          chains,
		Now:             func() time.Time { return fixedNow },
	}, f.remote, f.aggregator, f.vaults, f.collectors)
	require.NoError(t, err)

	return f
}

func request() *signer.SnapshotRequest {
	return &signer.SnapshotRequest{
		Assets:       big.NewInt(1_000_000),
		Receiver:     receiver,
		VaultChainID: 42161,
	}
}

func TestSignSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, signer.StateReady, f.svc.State())

	signed, err := f.svc.SignSnapshot(t.Context(), request())
	require.NoError(t, err)

	assert.Equal(t, f.svc.Address(), signed.Signer)
	assert.Equal(t, crypto.PubkeyToAddress(f.remote.key.PublicKey), f.svc.Address())
	assert.Equal(t, []common.Address{f.svc.Address()}, f.aggregator.agents)

	require.Len(t, signed.Signature, 65)
	assert.Contains(t, []byte{27, 28}, signed.Signature[64])

	assert.Equal(t, 0, signed.Snapshot.Balance.Cmp(f.aggregator.result.TotalTokens))
	assert.Equal(t, int64(7), signed.Snapshot.Nonce.Int64())
	assert.Equal(t, uint64(fixedNow.Unix())+300, signed.Snapshot.Deadline)
	assert.Equal(t, receiver, signed.Snapshot.Receiver)
	assert.Equal(t, int64(42161), signed.Domain.ChainID)
	assert.Equal(t, vaultAddress, signed.Domain.VerifyingContract)
	assert.NotEmpty(t, signed.RequestID)

	recovered, err := signer.RecoverSigner(signed.Digest, signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, f.svc.Address(), recovered)

	assert.Equal(t, "signer.testnet", f.remote.contract)
	assert.Equal(t, "build_and_sign_crosschain_balance_snapshot_tx", f.remote.method)
	assert.Equal(t, signer.StateReady, f.svc.State())
	assert.InDelta(t, 1, testutil.ToFloat64(f.collectors.SigningOutcomes.WithLabelValues("verified")), 0)
}

func TestSignSnapshotArgumentEncoding(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SignSnapshot(t.Context(), request())
	require.NoError(t, err)

	var raw struct {
		Args            map[string]json.RawMessage `json:"args"`
		CallbackGasTgas json.RawMessage            `json:"callback_gas_tgas"`
	}
	require.NoError(t, json.Unmarshal(f.remote.rawArgs, &raw))

	assert.Equal(t, `"1000000"`, string(raw.Args["assets"]))
	assert.Equal(t, `123456789012345678901234567890`, string(raw.Args["balance"]))
	assert.Equal(t, `7`, string(raw.Args["nonce"]))
	assert.Equal(t, `1760000300`, string(raw.Args["deadline"]))
	assert.Equal(t, `42161`, string(raw.Args["chain_id"]))
	assert.Equal(t, `"`+vaultAddress.Hex()+`"`, string(raw.Args["verifying_contract"]))
	assert.Equal(t, `"`+receiver.Hex()+`"`, string(raw.Args["receiver"]))
	assert.Equal(t, `50`, string(raw.CallbackGasTgas))
	assert.Len(t, raw.Args, 7)
}

func TestSignSnapshotReadsNonceEveryTime(t *testing.T) {
	f := newFixture(t)

	for range 2 {
		_, err := f.svc.SignSnapshot(t.Context(), request())
		require.NoError(t, err)
	}

	assert.Equal(t, 2, f.vaults.calls)
}

func TestSignSnapshotSignatureMismatch(t *testing.T) {
	f := newFixture(t)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	f.remote.key = other

	signed, err := f.svc.SignSnapshot(t.Context(), request())
	require.Error(t, err)
	assert.Nil(t, signed)
	assert.ErrorIs(t, err, oracleerrors.ErrSignatureMismatch)
	assert.InDelta(t, 1, testutil.ToFloat64(f.collectors.SigningOutcomes.WithLabelValues("failed")), 0)

	// the signer keeps serving
	assert.Equal(t, signer.StateReady, f.svc.State())
}

func TestSignSnapshotMalformedSignature(t *testing.T) {
	f := newFixture(t)
	f.remote.response = jsonBytes(t, make([]byte, 64))

	_, err := f.svc.SignSnapshot(t.Context(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracleerrors.ErrMalformedSignature)
}

func TestSignSnapshotRemoteFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.err = errors.New("broadcast_tx_commit failed: timeout")

	_, err := f.svc.SignSnapshot(t.Context(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracleerrors.ErrRemoteSignerFailure)
	assert.Contains(t, err.Error(), "timeout")
}

func TestSignSnapshotAggregationFailure(t *testing.T) {
	f := newFixture(t)
	f.aggregator.err = errors.Wrap(oracleerrors.ErrBalanceQueryFailed, "chain base")

	_, err := f.svc.SignSnapshot(t.Context(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracleerrors.ErrBalanceQueryFailed)
	assert.Empty(t, f.remote.calls)
	assert.Zero(t, f.vaults.calls)
}

func TestSignSnapshotNonceFailure(t *testing.T) {
	f := newFixture(t)
	f.vaults.err = errors.Wrap(oracleerrors.ErrBalanceQueryFailed, "vault nonce returned no data")

	_, err := f.svc.SignSnapshot(t.Context(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracleerrors.ErrBalanceQueryFailed)
	assert.Empty(t, f.remote.calls)
}

func TestSignSnapshotRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  *signer.SnapshotRequest
		want error
	}{
		{"unknown chain", &signer.SnapshotRequest{Assets: big.NewInt(1), VaultChainID: 1}, oracleerrors.ErrChainNotConfigured},
		{"chain without vault", &signer.SnapshotRequest{Assets: big.NewInt(1), VaultChainID: 8453}, oracleerrors.ErrVaultNotConfigured},
		{"nil assets", &signer.SnapshotRequest{VaultChainID: 42161}, nil},
		{"negative assets", &signer.SnapshotRequest{Assets: big.NewInt(-1), VaultChainID: 42161}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignSnapshot(t.Context(), tt.req)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	assert.Empty(t, f.remote.calls)
}

func TestNewServiceRejectsInvalidIdentity(t *testing.T) {
	_, err := signer.NewService(signer.Config{
		RootPublicKey: []byte{0x04, 0x01},
		Derivation:    derivation,
		ContractID:    "signer.testnet",
		Method:        "sign",
	}, &mpcSigner{t: t}, &fakeAggregator{}, &fakeVaults{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, oracleerrors.ErrInvalidKeyFormat)
}

func TestNewServiceRequiresRemoteParameters(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = signer.NewService(signer.Config{
		RootPublicKey: crypto.FromECDSAPub(&key.PublicKey),
		Derivation:    derivation,
		Method:        "sign",
	}, &mpcSigner{t: t}, &fakeAggregator{}, &fakeVaults{}, nil)
	require.Error(t, err)
}
