// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcfwd/forward"
)

// sweepTx is a published sweep.  It implements forward.BroadcastHandle.
type sweepTx struct {
	w      *Wallet
	client Client

	tx        *wire.MsgTx
	txid      chainhash.Hash
	forwarded btcutil.Amount
	fee       btcutil.Amount
}

// A compile time check to ensure sweepTx implements forward.BroadcastHandle.
var _ forward.BroadcastHandle = (*sweepTx)(nil)

// TxID returns the hash of the sweep.
func (s *sweepTx) TxID() chainhash.Hash {
	return s.txid
}

// Tx returns the signed sweep.
func (s *sweepTx) Tx() *wire.MsgTx {
	return s.tx
}

// Forwarded returns the value paid to the destination.
func (s *sweepTx) Forwarded() btcutil.Amount {
	return s.forwarded
}

// Fee returns the fee paid by the sweep.
func (s *sweepTx) Fee() btcutil.Amount {
	return s.fee
}

// AwaitRelayed polls the chain backend, through the wallet's passthrough,
// until it reports the sweep in its mempool or in a block.
func (s *sweepTx) AwaitRelayed(ctx context.Context) error {
	_, blocks, quit, err := s.w.state()
	if err != nil {
		return err
	}

	t := s.w.newPollTicker()
	defer t.Stop()

	for {
		newBlock := blocks.next()

		if s.visible() {
			log.Debugf("Sweep %v seen by chain backend", s.txid)
			return nil
		}

		select {
		case <-t.Ticks():
		case <-newBlock:
		case <-ctx.Done():
			return ctx.Err()
		case <-quit:
			return ErrNotRunning
		}
	}
}

// visible reports whether the chain backend knows the sweep.
func (s *sweepTx) visible() bool {
	s.w.limiter.Take()

	_, err := s.client.GetRawTransactionVerbose(&s.txid)
	switch {
	case err == nil:
		return true

	case isNoTxInfo(err):
		log.Tracef("Sweep %v not yet relayed", s.txid)

	default:
		log.Warnf("Unable to look up sweep %v: %v", s.txid, err)
	}

	return false
}
