// Package near submits function-call transactions to a NEAR contract over JSON-RPC and
// returns the decoded SuccessValue of the final execution outcome.
package near

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config describes the account that signs NEAR transactions.
type Config struct {
	RPCURLs    []string
	AccountID  string
	PrivateKey ed25519.PrivateKey
	Gas        uint64
	Deposit    *big.Int
}

// AccessKeyView is the result of an access key query.
type AccessKeyView struct {
	Nonce       uint64 `json:"nonce"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	Error       string `json:"error,omitempty"`
}

// ExecutionStatus is the status of a final execution outcome. Exactly one of the
// fields is set; Other holds the string statuses (NotStarted, Started).
type ExecutionStatus struct {
	SuccessValue *string
	Failure      json.RawMessage
	Other        string
}

// UnmarshalJSON accepts both the object and the plain string forms of the status.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Other)
	}

	var raw struct {
		SuccessValue     *string         `json:"SuccessValue"`
		SuccessReceiptID *string         `json:"SuccessReceiptId"`
		Failure          json.RawMessage `json:"Failure"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.SuccessValue = raw.SuccessValue
	s.Failure = raw.Failure
	if raw.SuccessReceiptID != nil {
		s.Other = "SuccessReceiptId"
	}

	return nil
}

// FinalExecutionOutcome is the broadcast_tx_commit result, reduced to what is used.
type FinalExecutionOutcome struct {
	Status      ExecutionStatus `json:"status"`
	Transaction struct {
		Hash string `json:"hash"`
	} `json:"transaction"`
}

// Client signs and submits function calls on behalf of one NEAR account.
type Client struct {
	cfg       Config
	publicKey ed25519.PublicKey

	mu        sync.Mutex
	clients   []*rpc.Client
	lastNonce uint64
}

// NewClient validates cfg. Connections are dialed lazily.
func NewClient(cfg Config) (*Client, error) {
	switch {
	case len(cfg.RPCURLs) == 0:
		return nil, errors.New("at least one NEAR RPC URL is required")
	case cfg.AccountID == "":
		return nil, errors.New("NEAR account id is required")
	case len(cfg.PrivateKey) != ed25519.PrivateKeySize:
		return nil, errors.New("NEAR private key is required")
	case cfg.Gas == 0:
		return nil, errors.New("gas must be positive")
	}

	if cfg.Deposit == nil {
		cfg.Deposit = new(big.Int)
	}

	pub, ok := cfg.PrivateKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("failed to derive NEAR public key")
	}

	return &Client{
		cfg:       cfg,
		publicKey: pub,
		clients:   make([]*rpc.Client, len(cfg.RPCURLs)),
	}, nil
}

// AccountID returns the signing account.
func (c *Client) AccountID() string {
	return c.cfg.AccountID
}

// PublicKey returns the NEAR textual form of the signing key.
func (c *Client) PublicKey() string {
	return FormatPublicKey(c.publicKey)
}

// Close closes all dialed connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, client := range c.clients {
		if client != nil {
			client.Close()
			c.clients[i] = nil
		}
	}
}

func (c *Client) client(ctx context.Context, idx int) (*rpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clients[idx] != nil {
		return c.clients[idx], nil
	}

	client, err := rpc.DialContext(ctx, c.cfg.RPCURLs[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", c.cfg.RPCURLs[idx])
	}
	c.clients[idx] = client

	return client, nil
}

// ViewAccessKey queries the signing key's access key, trying each RPC URL in turn.
// It returns the index of the URL that answered.
func (c *Client) ViewAccessKey(ctx context.Context) (*AccessKeyView, int, error) {
	path := "access_key/" + c.cfg.AccountID + "/" + c.PublicKey()

	var lastErr error
	for idx := range c.cfg.RPCURLs {
		client, err := c.client(ctx, idx)
		if err != nil {
			lastErr = err
			continue
		}

		var view AccessKeyView
		if err := client.CallContext(ctx, &view, "query", path, ""); err != nil {
			log.Warn().
				Str("url", c.cfg.RPCURLs[idx]).
				Err(err).
				Msg("NEAR access key query failed, trying next node")
			lastErr = err
			continue
		}

		if view.Error != "" {
			return nil, idx, errors.Errorf("access key query: %s", view.Error)
		}

		return &view, idx, nil
	}

	return nil, -1, errors.Wrap(lastErr, "all NEAR RPC nodes failed")
}

// nextNonce returns a nonce above both the chain's view and any nonce used locally.
func (c *Client) nextNonce(chainNonce uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := chainNonce + 1
	if next <= c.lastNonce {
		next = c.lastNonce + 1
	}
	c.lastNonce = next

	return next
}

// CallFunction signs a function call of method on receiverID with JSON args, submits it with
// broadcast_tx_commit and returns the base64-decoded SuccessValue. It does not retry.
func (c *Client) CallFunction(ctx context.Context, receiverID, method string, args []byte) ([]byte, error) {
	view, idx, err := c.ViewAccessKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query access key")
	}

	tx, err := NewFunctionCallTransaction(
		c.cfg.AccountID,
		c.publicKey,
		c.nextNonce(view.Nonce),
		receiverID,
		view.BlockHash,
		FunctionCall{
			MethodName: method,
			Args:       args,
			Gas:        c.cfg.Gas,
			Deposit:    *c.cfg.Deposit,
		},
	)
	if err != nil {
		return nil, err
	}

	signed, err := tx.Sign(c.cfg.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	encoded, err := signed.Base64()
	if err != nil {
		return nil, err
	}

	client, err := c.client(ctx, idx)
	if err != nil {
		return nil, err
	}

	var outcome FinalExecutionOutcome
	if err := client.CallContext(ctx, &outcome, "broadcast_tx_commit", encoded); err != nil {
		return nil, errors.Wrap(err, "broadcast_tx_commit failed")
	}

	log.Debug().
		Str("tx_hash", outcome.Transaction.Hash).
		Str("receiver", receiverID).
		Str("method", method).
		Uint64("nonce", tx.Nonce).
		Msg("NEAR transaction executed")

	return outcome.SuccessValue()
}

// SuccessValue returns the decoded SuccessValue or an error describing the failure.
func (o *FinalExecutionOutcome) SuccessValue() ([]byte, error) {
	switch {
	case o.Status.Failure != nil:
		return nil, errors.Errorf("transaction %s failed: %s", o.Transaction.Hash, string(o.Status.Failure))
	case o.Status.SuccessValue == nil:
		status := o.Status.Other
		if status == "" {
			status = "unknown"
		}
		return nil, errors.Errorf("transaction %s has no success value (status %s)", o.Transaction.Hash, status)
	}

	value, err := base64.StdEncoding.DecodeString(*o.Status.SuccessValue)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode success value")
	}

	return value, nil
}
