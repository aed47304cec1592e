// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcfwd/forward"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/davecgh/go-spew/spew"
)

// BuildAndBroadcast sweeps the outputs picked by selector to dest.  The
// destination is used as the change script of an otherwise output-less
// transaction, so the whole selection minus the fee is paid to it.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) BuildAndBroadcast(ctx context.Context, dest btcutil.Address,
	selector forward.CoinSelector) (forward.BroadcastHandle, error) {

	client, _, _, err := w.state()
	if err != nil {
		return nil, forward.NewBroadcastError(forward.OpBuild, err)
	}

	w.limiter.Take()
	unspent, err := client.ListUnspentMinMax(0, maxConfs)
	if err != nil {
		return nil, forward.NewBroadcastError(forward.OpBuild,
			fmt.Errorf("unable to list unspent outputs: %w", err))
	}
	coins, err := coinsFromUnspent(unspent)
	if err != nil {
		return nil, forward.NewBroadcastError(forward.OpBuild, err)
	}

	selection := selector.Select(coins)
	if selection.Empty() {
		return nil, forward.NewSelectionError(
			boundTxID(selector), forward.ErrNoScopedOutputs,
		)
	}

	outPoints := selection.OutPoints()
	log.Debugf("Sweeping %d outputs of %v: %v", len(outPoints),
		selection.Total, outPoints)

	authored, err := authorSweep(selection, dest, w.cfg.FeeRate)
	if err != nil {
		return nil, forward.NewBroadcastError(forward.OpBuild, err)
	}

	log.Debugf("Unsigned sweep of %v: %v", selection.Total,
		newLogClosure(func() string {
			packet, err := psbt.NewFromUnsignedTx(authored.Tx)
			if err != nil {
				return err.Error()
			}
			b64, err := packet.B64Encode()
			if err != nil {
				return err.Error()
			}
			return b64
		}))

	signed, err := w.signSweep(ctx, client, authored.Tx)
	if err != nil {
		return nil, err
	}

	log.Tracef("Signed sweep: %v", newLogClosure(func() string {
		return spew.Sdump(signed)
	}))

	// Record the sweep before it can show up in a deposit poll.
	txid := signed.TxHash()
	w.mu.Lock()
	w.sweeps[txid] = newSweepRecord(outPoints)
	w.mu.Unlock()

	if _, err := client.SendRawTransaction(signed, false); err != nil {
		w.mu.Lock()
		delete(w.sweeps, txid)
		w.mu.Unlock()

		return nil, forward.NewBroadcastError(forward.OpPublish,
			fmt.Errorf("unable to publish %v: %w", txid, err))
	}

	forwarded := btcutil.Amount(signed.TxOut[0].Value)
	sweep := &sweepTx{
		w:         w,
		client:    client,
		tx:        signed,
		txid:      txid,
		forwarded: forwarded,
		fee:       authored.TotalInput - forwarded,
	}

	log.Infof("Published sweep %v paying %v to %v (fee %v)", txid,
		forwarded, dest, sweep.fee)

	return sweep, nil
}

// signSweep unlocks the wallet if a passphrase is configured, has it sign tx
// and locks it again.  Only one sweep is signed at a time.
func (w *Wallet) signSweep(ctx context.Context, client Client,
	tx *wire.MsgTx) (*wire.MsgTx, error) {

	if err := w.signSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.signSem.Release(1)

	if w.cfg.Passphrase != "" {
		err := client.WalletPassphrase(
			w.cfg.Passphrase, int64(w.cfg.UnlockTimeout.Seconds()),
		)
		if err != nil {
			return nil, forward.NewBroadcastError(forward.OpSign,
				fmt.Errorf("unable to unlock wallet: %w", err))
		}
		defer func() {
			if err := client.WalletLock(); err != nil {
				log.Warnf("Unable to lock wallet: %v", err)
			}
		}()
	}

	signed, complete, err := client.SignRawTransaction(tx)
	if err != nil {
		return nil, forward.NewBroadcastError(forward.OpSign, err)
	}
	if !complete {
		return nil, forward.NewBroadcastError(
			forward.OpSign, forward.ErrIncompleteSignature,
		)
	}

	return signed, nil
}

// authorSweep builds the unsigned sweep of selection to dest at feeRate.
// forward.ErrDustSweep is returned when nothing would be left for dest.
func authorSweep(selection forward.CoinSelection, dest btcutil.Address,
	feeRate btcutil.Amount) (*txauthor.AuthoredTx, error) {

	destScript, err := txscript.PayToAddrScript(dest)
	if err != nil {
		return nil, fmt.Errorf("unable to create destination script: %w",
			err)
	}

	estimatedFee := estimateSweepFee(selection.Coins, destScript, feeRate)
	if selection.Total <= estimatedFee {
		return nil, fmt.Errorf("%w: %v does not cover estimated fee %v",
			forward.ErrDustSweep, selection.Total, estimatedFee)
	}

	changeSource := &txauthor.ChangeSource{
		NewScript: func() ([]byte, error) {
			return destScript, nil
		},
		ScriptSize: len(destScript),
	}

	authored, err := txauthor.NewUnsignedTransaction(
		nil, feeRate, constantInputSource(selection.Coins), changeSource,
	)
	var inputErr txauthor.InputSourceError
	switch {
	case errors.As(err, &inputErr):
		return nil, fmt.Errorf("%w: %v", forward.ErrDustSweep, err)

	case err != nil:
		return nil, err
	}

	// With no payment outputs, a dust change output is dropped and the
	// whole value would go to fees.
	if len(authored.Tx.TxOut) != 1 {
		return nil, fmt.Errorf("%w: %v would be left below the dust "+
			"limit", forward.ErrDustSweep, selection.Total-estimatedFee)
	}

	return authored, nil
}

// constantInputSource returns an input source that always offers exactly
// coins, whatever the target.
func constantInputSource(coins []forward.Coin) txauthor.InputSource {
	var (
		total       btcutil.Amount
		inputs      = make([]*wire.TxIn, 0, len(coins))
		inputValues = make([]btcutil.Amount, 0, len(coins))
		scripts     = make([][]byte, 0, len(coins))
	)
	for _, coin := range coins {
		outPoint := coin.OutPoint
		inputs = append(inputs, wire.NewTxIn(&outPoint, nil, nil))
		inputValues = append(inputValues, coin.Amount())
		scripts = append(scripts, coin.PkScript)
		total += coin.Amount()
	}

	return func(btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		return total, inputs, inputValues, scripts, nil
	}
}

// estimateSweepFee returns the worst case fee of a sweep spending coins to
// a single output with destScript.
func estimateSweepFee(coins []forward.Coin, destScript []byte,
	feeRate btcutil.Amount) btcutil.Amount {

	var nested, p2wpkh, p2tr, p2pkh int
	for _, coin := range coins {
		switch {
		case txscript.IsPayToScriptHash(coin.PkScript):
			nested++
		case txscript.IsPayToWitnessPubKeyHash(coin.PkScript):
			p2wpkh++
		case txscript.IsPayToTaproot(coin.PkScript):
			p2tr++
		default:
			p2pkh++
		}
	}

	size := txsizes.EstimateVirtualSize(
		p2pkh, p2tr, p2wpkh, nested, nil, len(destScript),
	)

	return txrules.FeeForSerializeSize(feeRate, size)
}

// boundTxID returns the deposit a selector is scoped to, if it is.
func boundTxID(selector forward.CoinSelector) chainhash.Hash {
	if scoped, ok := selector.(*forward.ScopedSelector); ok {
		return scoped.BoundTxID
	}

	return chainhash.Hash{}
}
