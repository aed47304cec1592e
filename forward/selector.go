// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package forward

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Coin represents a spendable UTXO which is available for coin selection.
type Coin struct {
	wire.TxOut
	wire.OutPoint
}

// Amount returns the value of the coin.
func (c *Coin) Amount() btcutil.Amount {
	return btcutil.Amount(c.Value)
}

// CoinSelection is an ordered set of chosen coins and their summed value.
type CoinSelection struct {
	Coins []Coin
	Total btcutil.Amount
}

// Empty reports whether nothing was selected.
func (s *CoinSelection) Empty() bool {
	return len(s.Coins) == 0
}

// OutPoints returns the outpoints of the selected coins in order.
func (s *CoinSelection) OutPoints() []wire.OutPoint {
	ops := make([]wire.OutPoint, 0, len(s.Coins))
	for _, c := range s.Coins {
		ops = append(ops, c.OutPoint)
	}

	return ops
}

// CoinSelector chooses the coins that fund an outgoing transaction from the
// wallet's spendable candidates.
type CoinSelector interface {
	Select(candidates []Coin) CoinSelection
}

// ScopedSelector selects every candidate created by one transaction and
// nothing else.  A fresh selector is bound to each deposit so that a sweep
// never touches another deposit's outputs.
type ScopedSelector struct {
	// BoundTxID is the transaction whose outputs are selected.
	BoundTxID chainhash.Hash
}

// A compile time check to ensure ScopedSelector implements CoinSelector.
var _ CoinSelector = (*ScopedSelector)(nil)

// NewScopedSelector returns a selector bound to txid.
func NewScopedSelector(txid chainhash.Hash) *ScopedSelector {
	return &ScopedSelector{BoundTxID: txid}
}

// Select returns the candidates whose outpoint hash is the bound transaction,
// in the order they were given.  The value of the coins is irrelevant: a
// deposit is always swept in full.  An empty selection is not an error here.
func (s *ScopedSelector) Select(candidates []Coin) CoinSelection {
	var sel CoinSelection
	for _, c := range candidates {
		if c.Hash != s.BoundTxID {
			continue
		}

		sel.Coins = append(sel.Coins, c)
		sel.Total += c.Amount()
	}

	return sel
}
