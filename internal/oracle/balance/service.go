//nolint:ireturn // Returning interface is intentional for dependency injection
package balance

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/chapool/vault-oracle/internal/metrics"
	"github/chapool/vault-oracle/internal/oracle/chain"
	"github/chapool/vault-oracle/internal/util"
	"golang.org/x/sync/errgroup"
)

// Reader is the per-chain read access the aggregator fans out over.
type Reader interface {
	ReadChainBalance(ctx context.Context, chain chain.Config, holder common.Address) (*chain.ChainBalance, error)
	ReadVaultBalance(ctx context.Context, chain chain.Config) (*chain.VaultBalance, error)
}

// Service aggregates balances across all configured chains and vaults.
type Service interface {
	// Aggregate queries every chain for agent's token balance and every vault for its
	// assets, concurrently. Any single failure fails the whole round.
	Aggregate(ctx context.Context, agent common.Address) (*Aggregated, error)
}

// Aggregated is one complete, consistent aggregation round.
type Aggregated struct {
	Agent  common.Address
	Chains []*chain.ChainBalance
	Vaults []*chain.VaultBalance

	// AgentBalance is the sum of the agent's token balances over all chains.
	AgentBalance *big.Int
	// TotalTokens is the sum of vault invested balances.
	TotalTokens *big.Int
	// TotalIdle is the sum of vault idle balances.
	TotalIdle *big.Int
	// TotalValue is TotalTokens + TotalIdle.
	TotalValue *big.Int
	// TotalManaged is the sum of each vault's totalAssets.
	TotalManaged *big.Int
}

// Vault returns the vault balance read for chainID.
func (a *Aggregated) Vault(chainID int64) (*chain.VaultBalance, bool) {
	for _, v := range a.Vaults {
		if v.ChainID == chainID {
			return v, true
		}
	}

	return nil, false
}

type service struct {
	chains  []chain.Config
	reader  Reader
	metrics *metrics.Collectors
}

// NewService creates the balance aggregator.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(chains []chain.Config, reader Reader, collectors *metrics.Collectors) Service {
	return &service{
		chains:  chains,
		reader:  reader,
		metrics: collectors,
	}
}

// Aggregate implements Service.
func (s *service) Aggregate(ctx context.Context, agent common.Address) (result *Aggregated, err error) {
	log := util.LogFromContext(ctx)
	started := time.Now()
	defer func() { s.metrics.ObserveAggregation(started, err) }()

	vaultChains := make([]chain.Config, 0, len(s.chains))
	for _, ch := range s.chains {
		if ch.HasVault() {
			vaultChains = append(vaultChains, ch)
		}
	}

	chainBalances := make([]*chain.ChainBalance, len(s.chains))
	vaultBalances := make([]*chain.VaultBalance, len(vaultChains))

	// No shared context cancellation: a failing chain does not abort siblings in flight.
	var g errgroup.Group

	for i, ch := range s.chains {
		g.Go(func() error {
			cb, err := s.reader.ReadChainBalance(ctx, ch, agent)
			if err != nil {
				log.Error().
					Err(err).
					Int64("chain_id", ch.ChainID).
					Str("chain", ch.Name).
					Msg("Failed to read agent balance")
				return errors.Wrapf(err, "agent balance on %s", ch.Name)
			}
			chainBalances[i] = cb
			return nil
		})
	}

	for i, ch := range vaultChains {
		g.Go(func() error {
			vb, err := s.reader.ReadVaultBalance(ctx, ch)
			if err != nil {
				log.Error().
					Err(err).
					Int64("chain_id", ch.ChainID).
					Str("chain", ch.Name).
					Msg("Failed to read vault balance")
				return errors.Wrapf(err, "vault balance on %s", ch.Name)
			}
			vaultBalances[i] = vb
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "aggregation aborted")
	}

	result = &Aggregated{
		Agent:        agent,
		Chains:       chainBalances,
		Vaults:       vaultBalances,
		AgentBalance: new(big.Int),
		TotalTokens:  new(big.Int),
		TotalIdle:    new(big.Int),
		TotalValue:   new(big.Int),
		TotalManaged: new(big.Int),
	}

	for _, cb := range chainBalances {
		result.AgentBalance.Add(result.AgentBalance, cb.TokenBalance)
	}

	for _, vb := range vaultBalances {
		result.TotalTokens.Add(result.TotalTokens, vb.InvestedBalance)
		result.TotalIdle.Add(result.TotalIdle, vb.IdleBalance)
		result.TotalManaged.Add(result.TotalManaged, vb.TotalAssets)
	}
	result.TotalValue.Add(result.TotalTokens, result.TotalIdle)

	log.Debug().
		Str("agent", agent.Hex()).
		Int("chains", len(chainBalances)).
		Int("vaults", len(vaultBalances)).
		Str("total_value", result.TotalValue.String()).
		Dur("duration", time.Since(started)).
		Msg("Aggregated balances")

	return result, nil
}
