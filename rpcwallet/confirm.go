// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcfwd/forward"
)

// WaitForConfirmations polls the wallet until txid is numConfs deep.  A
// negative depth means the wallet saw the transaction double spent; a
// transaction the wallet no longer knows was dropped.  Both abort the wait.
// Other RPC failures are logged and retried on the next tick.
//
// This is part of the forward.ConfirmationWaiter interface.
func (w *Wallet) WaitForConfirmations(ctx context.Context,
	txid chainhash.Hash, numConfs int32) (int32, error) {

	client, blocks, quit, err := w.state()
	if err != nil {
		return 0, err
	}

	t := w.newPollTicker()
	defer t.Stop()

	for {
		newBlock := blocks.next()

		confs, err := w.txConfirmations(client, txid)
		switch {
		case errors.Is(err, forward.ErrTxDropped):
			return 0, forward.NewConfirmationAbort(txid, err)

		case err != nil:
			log.Warnf("Unable to query transaction %v: %v", txid,
				err)

		case confs < 0:
			return 0, forward.NewConfirmationAbort(
				txid, forward.ErrTxConflicted,
			)

		case confs >= numConfs:
			return confs, nil

		default:
			log.Tracef("Transaction %v at %d of %d confirmations",
				txid, confs, numConfs)
		}

		select {
		case <-t.Ticks():
		case <-newBlock:
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-quit:
			return 0, ErrNotRunning
		}
	}
}

// txConfirmations returns the wallet's depth of txid.  forward.ErrTxDropped
// is returned if the wallet does not know the transaction.
func (w *Wallet) txConfirmations(client Client,
	txid chainhash.Hash) (int32, error) {

	w.limiter.Take()

	result, err := client.GetTransaction(&txid)
	if isNoTxInfo(err) {
		return 0, forward.ErrTxDropped
	}
	if err != nil {
		return 0, err
	}

	return int32(result.Confirmations), nil
}

// isNoTxInfo reports whether err is the RPC error for an unknown
// transaction.
func isNoTxInfo(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCNoTxInfo
}
