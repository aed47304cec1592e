// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package forward

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrAlreadyRunning is returned by Run when the controller was
	// already started.
	ErrAlreadyRunning = errors.New("forwarding service already running")

	// ErrShutdown is returned by Run after Close.
	ErrShutdown = errors.New("forwarding service shutting down")

	// ErrNoScopedOutputs is wrapped by a SelectionError when none of the
	// wallet's spendable outputs belong to the deposit.
	ErrNoScopedOutputs = errors.New("no spendable outputs left for " +
		"deposit")

	// ErrTxConflicted is wrapped by a ConfirmationAbort when the deposit
	// was double spent.
	ErrTxConflicted = errors.New("transaction conflicts with the chain")

	// ErrTxDropped is wrapped by a ConfirmationAbort when the wallet no
	// longer knows the deposit.
	ErrTxDropped = errors.New("transaction dropped by wallet")

	// ErrDustSweep is wrapped by a BroadcastError when the deposit does
	// not cover the fee of its own sweep.
	ErrDustSweep = errors.New("deposit value does not cover sweep fee")

	// ErrIncompleteSignature is wrapped by a BroadcastError when the
	// wallet could not sign every input of the sweep.
	ErrIncompleteSignature = errors.New("sweep transaction not fully " +
		"signed")

	// ErrRelayTimeout is wrapped by a BroadcastError when no peer
	// acknowledged the sweep in time.
	ErrRelayTimeout = errors.New("timed out waiting for relay")
)

// ConfigError reports an invalid startup configuration: bad command line
// arity, an unknown network or an address that does not fit the network.
type ConfigError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err == nil {
		return e.Reason
	}

	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SelectionError is returned when the scoped selection for a deposit is
// empty at the time the sweep is built.
type SelectionError struct {
	TxID chainhash.Hash
	Err  error
}

// NewSelectionError returns a SelectionError for deposit txid caused by err.
func NewSelectionError(txid chainhash.Hash, err error) *SelectionError {
	return &SelectionError{TxID: txid, Err: err}
}

// Error implements the error interface.
func (e *SelectionError) Error() string {
	return fmt.Sprintf("coin selection for deposit %v failed: %v",
		e.TxID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SelectionError) Unwrap() error {
	return e.Err
}

// BroadcastOp names the step of a sweep that failed.
type BroadcastOp string

const (
	// OpBuild is the construction of the unsigned sweep.
	OpBuild BroadcastOp = "build"

	// OpSign is the wallet signing the sweep.
	OpSign BroadcastOp = "sign"

	// OpPublish is handing the sweep to the network.
	OpPublish BroadcastOp = "publish"

	// OpRelay is waiting for peers to acknowledge the sweep.
	OpRelay BroadcastOp = "relay"
)

// BroadcastError is returned when a sweep could not be built, signed,
// published or relayed.
type BroadcastError struct {
	Op  BroadcastOp
	Err error
}

// NewBroadcastError returns a BroadcastError for op caused by err.
func NewBroadcastError(op BroadcastOp, err error) *BroadcastError {
	return &BroadcastError{Op: op, Err: err}
}

// Error implements the error interface.
func (e *BroadcastError) Error() string {
	return fmt.Sprintf("sweep %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// ConfirmationAbort is returned when a deposit is invalidated before it
// reaches the required depth.
type ConfirmationAbort struct {
	TxID chainhash.Hash
	Err  error
}

// NewConfirmationAbort returns a ConfirmationAbort for txid caused by err.
func NewConfirmationAbort(txid chainhash.Hash,
	err error) *ConfirmationAbort {

	return &ConfirmationAbort{TxID: txid, Err: err}
}

// Error implements the error interface.
func (e *ConfirmationAbort) Error() string {
	return fmt.Sprintf("deposit %v abandoned before confirmation: %v",
		e.TxID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfirmationAbort) Unwrap() error {
	return e.Err
}
