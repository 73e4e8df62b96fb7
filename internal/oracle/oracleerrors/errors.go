// Package oracleerrors defines the error taxonomy shared by the identity, aggregation and
// signing layers. Callers match with errors.Is; wrapped messages carry chain and step.
package oracleerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Identity layer. Fatal at startup.
var (
	ErrInvalidKeyFormat  = errors.New("invalid key format")
	ErrInvalidDerivation = errors.New("invalid derivation")
)

// Aggregation layer. Aborts the current aggregation request.
var (
	ErrUnresolvedToken    = errors.New("unresolved token")
	ErrBalanceQueryFailed = errors.New("balance query failed")
	ErrVaultNotConfigured = errors.New("vault not configured")
	ErrChainNotConfigured = errors.New("chain not configured")
)

// Signing layer. Aborts the current signing request.
var (
	ErrMalformedSignature  = errors.New("malformed signature")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrRemoteSignerFailure = errors.New("remote signer failure")
)

// Mark wraps cause so that errors.Is(err, kind) holds while the message keeps both.
// A nil cause yields kind wrapped with msg.
func Mark(kind error, cause error, msg string) error {
	if cause == nil {
		return errors.Wrap(kind, msg)
	}

	return &marked{kind: kind, cause: errors.Wrap(cause, msg)}
}

// Markf is Mark with a formatted message.
func Markf(kind error, cause error, format string, args ...interface{}) error {
	return Mark(kind, cause, fmt.Sprintf(format, args...))
}

type marked struct {
	kind  error
	cause error
}

func (m *marked) Error() string {
	return m.kind.Error() + ": " + m.cause.Error()
}

func (m *marked) Unwrap() []error {
	return []error{m.kind, m.cause}
}

func (m *marked) Cause() error {
	return m.cause
}
