// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package forward implements the coin forwarding service: every deposit seen
// by the watched wallet is forwarded, once it has enough confirmations, to a
// fixed destination address by a sweep transaction that spends exactly the
// deposit's outputs.
package forward

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcfwd/netparams"
)

// Deposit is an incoming transaction paying value to the watched wallet.
type Deposit struct {
	// TxID is the hash of the deposit transaction.  It scopes the coin
	// selection of the sweep.
	TxID chainhash.Hash

	// Value is the amount the transaction pays to the wallet.
	Value btcutil.Amount

	// PrevBalance and NewBalance are the wallet balances before and after
	// the deposit.  They are informational only.
	PrevBalance btcutil.Amount
	NewBalance  btcutil.Amount

	// Confirmations is the depth of the transaction when it was first
	// seen.
	Confirmations int32
}

// DepositListener receives deposit notifications from a WalletService.
// Implementations must not block: OnDeposit is called from the wallet's
// notification goroutine.
type DepositListener interface {
	OnDeposit(deposit Deposit)
}

// ConfirmationWaiter waits for a transaction to reach a confirmation depth.
type ConfirmationWaiter interface {
	// WaitForConfirmations blocks until the transaction has at least
	// numConfs confirmations and returns the depth reached.  If the
	// transaction is double spent or dropped by the wallet, an
	// *ConfirmationAbort is returned.  Cancelling ctx releases the wait.
	WaitForConfirmations(ctx context.Context, txid chainhash.Hash,
		numConfs int32) (int32, error)
}

// BroadcastHandle represents a sweep transaction that has been signed and
// handed to the network.
type BroadcastHandle interface {
	// TxID returns the hash of the sweep transaction.
	TxID() chainhash.Hash

	// Tx returns the signed sweep transaction.
	Tx() *wire.MsgTx

	// Forwarded is the value paid to the destination.
	Forwarded() btcutil.Amount

	// Fee is the network fee paid by the sweep.
	Fee() btcutil.Amount

	// AwaitRelayed blocks until peers have acknowledged the transaction
	// or ctx is done.
	AwaitRelayed(ctx context.Context) error
}

// WalletService is the wallet collaborator the forwarding service runs on.
type WalletService interface {
	ConfirmationWaiter

	// Start brings up the wallet for the given network.  storageDir is the
	// directory the wallet may keep its files in.
	Start(ctx context.Context, net *netparams.Params,
		storageDir string) error

	// Stop shuts the wallet down.
	Stop() error

	// IsRunning reports whether Start has succeeded and Stop has not yet
	// been called.
	IsRunning() bool

	// CurrentReceiveAddress returns the address deposits should be sent
	// to.
	CurrentReceiveAddress() (btcutil.Address, error)

	// AddDepositListener registers l for deposit notifications.
	AddDepositListener(l DepositListener)

	// RemoveDepositListener unregisters l.
	RemoveDepositListener(l DepositListener)

	// BuildAndBroadcast sweeps the coins chosen by selector to dest.  The
	// whole selection is spent with no change output.  It fails with a
	// *SelectionError if the selector picks nothing and with a
	// *BroadcastError if the transaction cannot be built, signed or
	// published.
	BuildAndBroadcast(ctx context.Context, dest btcutil.Address,
		selector CoinSelector) (BroadcastHandle, error)
}

// Result describes a completed forward.
type Result struct {
	// Deposit is the deposit that was forwarded.
	Deposit Deposit

	// Confirmations is the deposit depth reached before sweeping.
	Confirmations int32

	// TxID is the hash of the sweep transaction.
	TxID chainhash.Hash

	// Forwarded is the value that reached the destination.
	Forwarded btcutil.Amount

	// Fee is the network fee of the sweep.
	Fee btcutil.Amount
}

// Observer is notified about pipeline progress.  It is used for metrics.
type Observer interface {
	// DepositSeen is called once per accepted deposit notification.
	DepositSeen(deposit Deposit)

	// PipelineDone is called when a deposit was forwarded.
	PipelineDone(result *Result)

	// PipelineFailed is called when a pipeline terminated at stage.
	PipelineFailed(stage Stage, err error)
}

// noopObserver is used when no Observer is configured.
type noopObserver struct{}

func (noopObserver) DepositSeen(Deposit)         {}
func (noopObserver) PipelineDone(*Result)        {}
func (noopObserver) PipelineFailed(Stage, error) {}
