// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcfwd/forward"
	"github.com/lightningnetwork/lnd/ticker"
)

// unspentSet is a listunspent result grouped by creating transaction.
type unspentSet struct {
	// order lists the transactions in the order they were first seen.
	order []chainhash.Hash

	values map[chainhash.Hash]btcutil.Amount
	confs  map[chainhash.Hash]int32

	// total is the value of all spendable outputs.
	total btcutil.Amount
}

// groupUnspent sums the spendable outputs of unspent per transaction.
// Entries that cannot be parsed are logged and skipped.
func groupUnspent(unspent []btcjson.ListUnspentResult) *unspentSet {
	set := &unspentSet{
		values: make(map[chainhash.Hash]btcutil.Amount),
		confs:  make(map[chainhash.Hash]int32),
	}

	for _, output := range unspent {
		if !output.Spendable {
			continue
		}

		txid, err := chainhash.NewHashFromStr(output.TxID)
		if err != nil {
			log.Warnf("Invalid txid %q in listunspent result: %v",
				output.TxID, err)
			continue
		}
		amount, err := btcutil.NewAmount(output.Amount)
		if err != nil || !saneOutputValue(amount) {
			log.Warnf("Invalid amount %v in listunspent result",
				output.Amount)
			continue
		}

		confs := int32(output.Confirmations)
		prev, ok := set.confs[*txid]
		if !ok {
			set.order = append(set.order, *txid)
		}
		if !ok || confs < prev {
			set.confs[*txid] = confs
		}

		set.values[*txid] += amount
		set.total += amount
	}

	return set
}

// sweepPruneConfs is the depth at which a published sweep is forgotten.
const sweepPruneConfs = 6

// sweepRecord is a sweep published by this wallet.
type sweepRecord struct {
	// deposits are the transactions whose outputs the sweep spends.
	deposits []chainhash.Hash

	// spent is set once the deposits left the unspent set.
	spent bool
}

// newSweepRecord returns the record of a sweep spending outPoints.
func newSweepRecord(outPoints []wire.OutPoint) *sweepRecord {
	rec := &sweepRecord{}
	known := make(map[chainhash.Hash]struct{}, len(outPoints))
	for _, op := range outPoints {
		if _, ok := known[op.Hash]; ok {
			continue
		}
		known[op.Hash] = struct{}{}
		rec.deposits = append(rec.deposits, op.Hash)
	}

	return rec
}

// present counts the deposits of rec found in set.
func (rec *sweepRecord) present(set *unspentSet) int {
	var n int
	for _, txid := range rec.deposits {
		if _, ok := set.values[txid]; ok {
			n++
		}
	}

	return n
}

// depositPoller reports new deposits until quit is closed.  It polls once
// immediately, then on every tick or new block.
//
// NOTE: This must be run as a goroutine.
func (w *Wallet) depositPoller(client Client, t ticker.Ticker,
	blocks *blockSignal, quit <-chan struct{}) {

	defer w.wg.Done()
	defer t.Stop()

	for {
		newBlock := blocks.next()
		w.pollDeposits(client)

		select {
		case <-t.Ticks():
		case <-newBlock:
		case <-quit:
			return
		}
	}
}

// pollDeposits lists the wallet's outputs once and notifies the listeners
// of every transaction not seen before.
func (w *Wallet) pollDeposits(client Client) {
	w.limiter.Take()

	unspent, err := client.ListUnspentMinMax(0, maxConfs)
	if err != nil {
		log.Errorf("Unable to list unspent outputs: %v", err)
		return
	}

	deposits, listeners := w.scanUnspent(groupUnspent(unspent))
	for _, deposit := range deposits {
		log.Debugf("New deposit %v of %v with %d confirmations",
			deposit.TxID, deposit.Value, deposit.Confirmations)

		for _, l := range listeners {
			l.OnDeposit(deposit)
		}
	}

	w.pruneSweeps(client)
}

// pruneSweeps forgets the published sweeps that are sweepPruneConfs deep.
func (w *Wallet) pruneSweeps(client Client) {
	w.mu.Lock()
	pending := make([]chainhash.Hash, 0, len(w.sweeps))
	for txid := range w.sweeps {
		pending = append(pending, txid)
	}
	w.mu.Unlock()

	for _, txid := range pending {
		confs, err := w.txConfirmations(client, txid)
		if err != nil || confs < sweepPruneConfs {
			continue
		}

		log.Debugf("Sweep %v is %d deep, forgetting it", txid, confs)

		w.mu.Lock()
		delete(w.sweeps, txid)
		w.mu.Unlock()
	}
}

// scanUnspent diffs set against the transactions already reported and
// returns the new deposits along with the listeners to notify.
// Transactions that left the set are forgotten unless a pending sweep of
// this wallet spends them.  Their outputs reappear if the sweep is dropped,
// and must not be reported again.
func (w *Wallet) scanUnspent(set *unspentSet) ([]forward.Deposit,
	[]forward.DepositListener) {

	w.mu.Lock()
	defer w.mu.Unlock()

	swept := make(map[chainhash.Hash]struct{})
	for txid, rec := range w.sweeps {
		n := rec.present(set)
		switch {
		case n == 0:
			rec.spent = true

		// The deposits are unspent again, so presence alone keeps
		// them in seen.
		case rec.spent && n == len(rec.deposits):
			log.Warnf("Sweep %v no longer spends its deposits, "+
				"forgetting it", txid)
			delete(w.sweeps, txid)
			continue
		}

		for _, deposit := range rec.deposits {
			swept[deposit] = struct{}{}
		}
	}

	for txid := range w.seen {
		if _, ok := set.values[txid]; ok {
			continue
		}
		if _, ok := swept[txid]; ok {
			continue
		}
		delete(w.seen, txid)
	}

	var (
		deposits []forward.Deposit
		newValue btcutil.Amount
	)
	for _, txid := range set.order {
		if _, ok := w.seen[txid]; ok {
			continue
		}
		w.seen[txid] = struct{}{}

		// A sweep paying back into this wallet is not a deposit.
		if _, ok := w.sweeps[txid]; ok {
			log.Debugf("Ignoring outputs of own sweep %v", txid)
			continue
		}

		deposits = append(deposits, forward.Deposit{
			TxID:          txid,
			Value:         set.values[txid],
			Confirmations: set.confs[txid],
		})
		newValue += set.values[txid]
	}

	balance := set.total - newValue
	for i := range deposits {
		deposits[i].PrevBalance = balance
		balance += deposits[i].Value
		deposits[i].NewBalance = balance
	}

	listeners := make([]forward.DepositListener, 0, len(w.listeners))
	for l := range w.listeners {
		listeners = append(listeners, l)
	}

	return deposits, listeners
}

// coinsFromUnspent converts a listunspent result to selector candidates,
// keeping the order of the result.
func coinsFromUnspent(unspent []btcjson.ListUnspentResult) ([]forward.Coin,
	error) {

	coins := make([]forward.Coin, 0, len(unspent))
	for i := range unspent {
		output := &unspent[i]
		if !output.Spendable {
			continue
		}

		amount, err := btcutil.NewAmount(output.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount `%v` in "+
				"listunspent result", output.Amount)
		}
		if !saneOutputValue(amount) {
			return nil, fmt.Errorf("impossible output amount `%v` "+
				"in listunspent result", amount)
		}

		outPoint, err := parseOutPoint(output)
		if err != nil {
			return nil, fmt.Errorf("invalid data in listunspent "+
				"result: %w", err)
		}

		pkScript, err := hex.DecodeString(output.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("invalid script in listunspent "+
				"result: %w", err)
		}

		coins = append(coins, forward.Coin{
			TxOut:    *wire.NewTxOut(int64(amount), pkScript),
			OutPoint: outPoint,
		})
	}

	return coins, nil
}

func saneOutputValue(amount btcutil.Amount) bool {
	return amount >= 0 && amount <= btcutil.MaxSatoshi
}

func parseOutPoint(input *btcjson.ListUnspentResult) (wire.OutPoint, error) {
	txHash, err := chainhash.NewHashFromStr(input.TxID)
	if err != nil {
		return wire.OutPoint{}, err
	}
	return wire.OutPoint{Hash: *txHash, Index: input.Vout}, nil
}
