package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// CallOutcome tags the result of a read-only contract call.
type CallOutcome int

const (
	// CallSucceeded means the call returned non-empty data.
	CallSucceeded CallOutcome = iota
	// CallEmptyResponse means the call returned no data, or reverted without revert data.
	CallEmptyResponse
	// CallTransportError means the node could not be reached or rejected the request.
	CallTransportError
)

func (o CallOutcome) String() string {
	switch o {
	case CallSucceeded:
		return "succeeded"
	case CallEmptyResponse:
		return "empty_response"
	case CallTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// CallResult is the tagged result of Caller.CallContract. Err is set only for CallTransportError.
type CallResult struct {
	Outcome CallOutcome
	Data    []byte
	Err     error
}

// Caller is the chain access the balance source needs.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) CallResult
	LatestHeader(ctx context.Context) (*types.Header, error)
}

// RPCClient wraps ethclient with multiple URLs and failover.
type RPCClient struct {
	urls    []string
	clients []*ethclient.Client
	mu      sync.RWMutex
	current int
}

// NewRPCClient dials every URL. URLs that fail to dial are retried lazily on use.
func NewRPCClient(ctx context.Context, urls []string) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	clients := make([]*ethclient.Client, len(urls))
	connected := 0
	for i, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn().
				Str("url", url).
				Err(err).
				Msg("Failed to connect to RPC node, will retry on use")
			continue
		}
		clients[i] = client
		connected++
	}

	if connected == 0 {
		return nil, errors.New("failed to connect to any RPC node")
	}

	return &RPCClient{
		urls:    urls,
		clients: clients,
	}, nil
}

// Close closes all client connections.
func (c *RPCClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		if client != nil {
			client.Close()
		}
	}
}

// LatestHeader returns the header of the latest block.
func (c *RPCClient) LatestHeader(ctx context.Context) (*types.Header, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get RPC client")
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest header")
	}

	return header, nil
}

// CallContract executes a read-only call at blockNumber (nil for latest).
func (c *RPCClient) CallContract(ctx context.Context, to common.Address, data []byte, blockNumber *big.Int) CallResult {
	client, err := c.getClient(ctx)
	if err != nil {
		return CallResult{Outcome: CallTransportError, Err: errors.Wrap(err, "failed to get RPC client")}
	}

	resp, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, blockNumber)
	return classifyCall(resp, err)
}

func classifyCall(resp []byte, err error) CallResult {
	if err != nil {
		if isRevertWithoutData(err) {
			return CallResult{Outcome: CallEmptyResponse}
		}
		return CallResult{Outcome: CallTransportError, Err: errors.Wrap(err, "eth_call failed")}
	}

	if len(resp) == 0 {
		return CallResult{Outcome: CallEmptyResponse}
	}

	return CallResult{Outcome: CallSucceeded, Data: resp}
}

func isRevertWithoutData(err error) bool {
	if !strings.Contains(err.Error(), "execution reverted") {
		return false
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return false
	}

	switch data := dataErr.ErrorData().(type) {
	case nil:
		return true
	case string:
		return data == "" || data == "0x"
	default:
		return false
	}
}

// getClient returns the first healthy client starting from the current one, redialing nil slots.
// The health check runs without holding the lock.
func (c *RPCClient) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.RLock()
	start := c.current
	c.mu.RUnlock()

	for i := 0; i < len(c.urls); i++ {
		idx := (start + i) % len(c.urls)

		client, err := c.clientAt(ctx, idx)
		if err != nil {
			continue
		}

		if _, err := client.ChainID(ctx); err != nil {
			log.Warn().
				Str("url", c.urls[idx]).
				Err(err).
				Msg("RPC client health check failed, trying next node")
			continue
		}

		c.mu.Lock()
		c.current = idx
		c.mu.Unlock()

		return client, nil
	}

	return nil, errors.New("all RPC clients are unavailable")
}

func (c *RPCClient) clientAt(ctx context.Context, idx int) (*ethclient.Client, error) {
	c.mu.RLock()
	client := c.clients[idx]
	c.mu.RUnlock()

	if client != nil {
		return client, nil
	}

	dialed, err := ethclient.DialContext(ctx, c.urls[idx])
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller dialed the slot first
	if c.clients[idx] != nil {
		dialed.Close()
		return c.clients[idx], nil
	}
	c.clients[idx] = dialed

	return dialed, nil
}
