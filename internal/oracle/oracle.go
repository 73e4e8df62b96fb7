// Package oracle wires the configured chains, the balance aggregator and the attestation
// signer into one explicitly constructed Oracle.
package oracle

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github/chapool/vault-oracle/internal/config"
	"github/chapool/vault-oracle/internal/metrics"
	"github/chapool/vault-oracle/internal/oracle/balance"
	"github/chapool/vault-oracle/internal/oracle/chain"
	"github/chapool/vault-oracle/internal/oracle/identity"
	"github/chapool/vault-oracle/internal/oracle/keystore"
	"github/chapool/vault-oracle/internal/oracle/near"
	"github/chapool/vault-oracle/internal/oracle/signer"
)

// Oracle holds every service of one oracle process.
type Oracle struct {
	Config config.Server

	Chains     []chain.Config
	Tokens     *chain.TokenTable
	Balances   chain.Service
	Aggregator balance.Service
	Signer     signer.Service

	NEAR     *near.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Collectors

	rpcClients []*chain.RPCClient
}

// New builds the Oracle from cfg. The identity is derived here; a bad root key or missing
// signer credential means no Oracle is returned.
func New(ctx context.Context, cfg config.Server) (*Oracle, error) {
	o := &Oracle{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
	}
	o.Metrics = metrics.New(o.Registry)

	if err := o.initChains(ctx); err != nil {
		o.Close()
		return nil, err
	}

	if err := o.initSigner(); err != nil {
		o.Close()
		return nil, err
	}

	log.Info().
		Str("address", o.Signer.Address().Hex()).
		Int("chains", len(o.Chains)).
		Str("near_account", o.NEAR.AccountID()).
		Msg("Oracle initialized")

	return o, nil
}

func (o *Oracle) initChains(ctx context.Context) error {
	chains, err := chain.ConfigsFromServer(o.Config.Chains)
	if err != nil {
		return errors.Wrap(err, "invalid chain config")
	}
	o.Chains = chains

	if o.Config.TokenTable != "" {
		table, err := chain.LoadTokenTable(o.Config.TokenTable)
		if err != nil {
			return errors.Wrap(err, "failed to load token table")
		}
		o.Tokens = table

		log.Info().
			Str("path", o.Config.TokenTable).
			Str("version", table.Version).
			Int("entries", len(table.Tokens)).
			Msg("Loaded token table")
	}

	callers := make(map[int64]chain.Caller, len(chains))
	for _, ch := range chains {
		client, err := chain.NewRPCClient(ctx, ch.RPCURLs)
		if err != nil {
			return errors.Wrapf(err, "failed to create RPC client for chain %s (%d)", ch.Name, ch.ChainID)
		}
		o.rpcClients = append(o.rpcClients, client)
		callers[ch.ChainID] = client
	}

	o.Balances = chain.NewService(callers, o.Tokens)
	o.Aggregator = balance.NewService(chains, o.Balances, o.Metrics)

	return nil
}

func (o *Oracle) initSigner() error {
	root, err := identity.ParseRootPublicKey(o.Config.Identity.RootPublicKey)
	if err != nil {
		return errors.Wrap(err, "invalid identity.root_public_key")
	}

	key, err := o.signerKey()
	if err != nil {
		return err
	}

	deposit, ok := new(big.Int).SetString(o.Config.Signer.DepositYocto, 10)
	if !ok || deposit.Sign() < 0 {
		return errors.Errorf("invalid signer.deposit_yocto %q", o.Config.Signer.DepositYocto)
	}

	o.NEAR, err = near.NewClient(near.Config{
		RPCURLs:    o.Config.Signer.RPCURLs,
		AccountID:  o.Config.Signer.AccountID,
		PrivateKey: key,
		Gas:        o.Config.Signer.GasTgas * near.TeraGas,
		Deposit:    deposit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create NEAR client")
	}

	o.Signer, err = signer.NewService(signer.Config{
		RootPublicKey: root,
		Derivation: identity.Context{
			Namespace:  o.Config.Identity.Namespace,
			ContractID: o.Config.Identity.ContractID,
			Path:       o.Config.Identity.Path,
		},
		ContractID:      o.Config.Signer.ContractID,
		Method:          o.Config.Signer.Method,
		CallbackGasTgas: o.Config.Signer.CallbackGasTgas,
		DeadlineWindow:  o.Config.Signer.DeadlineWindow,
		Chains:          o.Chains,
	}, o.NEAR, o.Aggregator, o.Balances, o.Metrics)
	if err != nil {
		return errors.Wrap(err, "failed to create signer service")
	}

	return nil
}

// signerKey returns the NEAR key from signer.private_key, or decrypts signer.keystore_file.
func (o *Oracle) signerKey() (ed25519.PrivateKey, error) {
	encoded := o.Config.Signer.PrivateKey

	if encoded == "" {
		secret, err := keystore.Load(o.Config.Signer.KeystoreFile, o.Config.Signer.KeystorePassword)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load signer keystore")
		}
		encoded = string(secret)
	}

	key, err := near.ParsePrivateKey(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signer private key")
	}

	return key, nil
}

// Close releases all RPC connections.
func (o *Oracle) Close() {
	for _, client := range o.rpcClients {
		client.Close()
	}
	o.rpcClients = nil

	if o.NEAR != nil {
		o.NEAR.Close()
	}
}

// WriteMetrics writes every registered collector to path in the textfile exposition format.
func (o *Oracle) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, o.Registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}

	return nil
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name   string
	Detail string
	Err    error
}

// Readiness checks that every chain RPC serves a latest header and that the NEAR signing
// key has an access key. It does not stop at the first failure.
func (o *Oracle) Readiness(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(o.rpcClients)+1)

	for i, client := range o.rpcClients {
		ch := o.Chains[i]
		res := CheckResult{Name: "chain " + ch.Name}

		header, err := client.LatestHeader(ctx)
		if err != nil {
			res.Err = err
		} else {
			res.Detail = "block " + header.Number.String()
		}
		results = append(results, res)
	}

	res := CheckResult{Name: "near " + o.NEAR.AccountID()}
	view, _, err := o.NEAR.ViewAccessKey(ctx)
	if err != nil {
		res.Err = err
	} else {
		res.Detail = "access key nonce " + strconv.FormatUint(view.Nonce, 10)
	}

	return append(results, res)
}
