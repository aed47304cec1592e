// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package forward

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcfwd/netparams"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockWallet is a mock implementation of the WalletService interface.
type mockWallet struct {
	mock.Mock
}

// A compile time check to ensure mockWallet implements WalletService.
var _ WalletService = (*mockWallet)(nil)

func (m *mockWallet) Start(ctx context.Context, net *netparams.Params,
	storageDir string) error {

	args := m.Called(ctx, net, storageDir)
	return args.Error(0)
}

func (m *mockWallet) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockWallet) IsRunning() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *mockWallet) CurrentReceiveAddress() (btcutil.Address, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(btcutil.Address), args.Error(1)
}

func (m *mockWallet) AddDepositListener(l DepositListener) {
	m.Called(l)
}

func (m *mockWallet) RemoveDepositListener(l DepositListener) {
	m.Called(l)
}

func (m *mockWallet) WaitForConfirmations(ctx context.Context,
	txid chainhash.Hash, numConfs int32) (int32, error) {

	args := m.Called(ctx, txid, numConfs)
	return args.Get(0).(int32), args.Error(1)
}

func (m *mockWallet) BuildAndBroadcast(ctx context.Context,
	dest btcutil.Address, selector CoinSelector) (BroadcastHandle, error) {

	args := m.Called(ctx, dest, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(BroadcastHandle), args.Error(1)
}

// fakeHandle is a BroadcastHandle whose relay completes when relayed is
// closed, or immediately when it is nil.
type fakeHandle struct {
	tx        *wire.MsgTx
	forwarded btcutil.Amount
	fee       btcutil.Amount
	relayed   chan struct{}
}

func (h *fakeHandle) TxID() chainhash.Hash      { return h.tx.TxHash() }
func (h *fakeHandle) Tx() *wire.MsgTx           { return h.tx }
func (h *fakeHandle) Forwarded() btcutil.Amount { return h.forwarded }
func (h *fakeHandle) Fee() btcutil.Amount       { return h.fee }

func (h *fakeHandle) AwaitRelayed(ctx context.Context) error {
	if h.relayed == nil {
		return nil
	}

	select {
	case <-h.relayed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeWallet is an in-memory WalletService.  Tests mint deposits, bump
// their confirmations and inspect the sweeps that were broadcast.
type fakeWallet struct {
	mu sync.Mutex

	running   bool
	listeners map[DepositListener]struct{}

	coins   []Coin
	confs   map[chainhash.Hash]int32
	invalid map[chainhash.Hash]bool

	// changed is closed and replaced whenever confirmation state moves.
	changed chan struct{}

	fee     btcutil.Amount
	nonce   uint32
	sweeps  []*wire.MsgTx
	relayed chan struct{}

	pkScript []byte
	addr     btcutil.Address
}

// A compile time check to ensure fakeWallet implements WalletService.
var _ WalletService = (*fakeWallet)(nil)

func newFakeWallet(t *testing.T, fee btcutil.Amount) *fakeWallet {
	t.Helper()

	addr := testAddress(t, &netparams.RegressionNetParams)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return &fakeWallet{
		listeners: make(map[DepositListener]struct{}),
		confs:     make(map[chainhash.Hash]int32),
		invalid:   make(map[chainhash.Hash]bool),
		changed:   make(chan struct{}),
		fee:       fee,
		pkScript:  pkScript,
		addr:      addr,
	}
}

func (f *fakeWallet) Start(context.Context, *netparams.Params,
	string) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.running = true
	return nil
}

func (f *fakeWallet) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.running = false
	return nil
}

func (f *fakeWallet) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.running
}

func (f *fakeWallet) CurrentReceiveAddress() (btcutil.Address, error) {
	return f.addr, nil
}

func (f *fakeWallet) AddDepositListener(l DepositListener) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listeners[l] = struct{}{}
}

func (f *fakeWallet) RemoveDepositListener(l DepositListener) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.listeners, l)
}

func (f *fakeWallet) WaitForConfirmations(ctx context.Context,
	txid chainhash.Hash, numConfs int32) (int32, error) {

	for {
		f.mu.Lock()
		invalid := f.invalid[txid]
		confs := f.confs[txid]
		changed := f.changed
		f.mu.Unlock()

		switch {
		case invalid:
			return 0, NewConfirmationAbort(txid, ErrTxConflicted)
		case confs >= numConfs:
			return confs, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (f *fakeWallet) BuildAndBroadcast(_ context.Context,
	dest btcutil.Address, selector CoinSelector) (BroadcastHandle, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	sel := selector.Select(f.coins)
	if sel.Empty() {
		var txid chainhash.Hash
		if scoped, ok := selector.(*ScopedSelector); ok {
			txid = scoped.BoundTxID
		}

		return nil, NewSelectionError(txid, ErrNoScopedOutputs)
	}
	if sel.Total <= f.fee {
		return nil, NewBroadcastError(OpBuild, ErrDustSweep)
	}

	destScript, err := txscript.PayToAddrScript(dest)
	if err != nil {
		return nil, NewBroadcastError(OpBuild, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	spent := make(map[wire.OutPoint]struct{}, len(sel.Coins))
	for _, c := range sel.Coins {
		op := c.OutPoint
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
		spent[op] = struct{}{}
	}
	forwarded := sel.Total - f.fee
	tx.AddTxOut(wire.NewTxOut(int64(forwarded), destScript))

	remaining := f.coins[:0:0]
	for _, c := range f.coins {
		if _, ok := spent[c.OutPoint]; !ok {
			remaining = append(remaining, c)
		}
	}
	f.coins = remaining
	f.sweeps = append(f.sweeps, tx)

	return &fakeHandle{
		tx:        tx,
		forwarded: forwarded,
		fee:       f.fee,
		relayed:   f.relayed,
	}, nil
}

// mintDeposit creates a deposit transaction paying values to the wallet and
// adds its outputs to the spendable set without notifying anybody.
func (f *fakeWallet) mintDeposit(values ...btcutil.Amount) Deposit {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nonce++
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(
		&wire.OutPoint{Hash: chainhash.Hash{0x01}, Index: f.nonce},
		nil, nil,
	))

	var total btcutil.Amount
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(int64(v), f.pkScript))
		total += v
	}

	var prev btcutil.Amount
	for _, c := range f.coins {
		prev += c.Amount()
	}

	txid := tx.TxHash()
	for i, out := range tx.TxOut {
		f.coins = append(f.coins, Coin{
			TxOut:    *out,
			OutPoint: wire.OutPoint{Hash: txid, Index: uint32(i)},
		})
	}

	return Deposit{
		TxID:        txid,
		Value:       total,
		PrevBalance: prev,
		NewBalance:  prev + total,
	}
}

// notify delivers deposit to every registered listener.
func (f *fakeWallet) notify(deposit Deposit) {
	f.mu.Lock()
	listeners := make([]DepositListener, 0, len(f.listeners))
	for l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l.OnDeposit(deposit)
	}
}

// deposit mints and announces a deposit.
func (f *fakeWallet) deposit(values ...btcutil.Amount) Deposit {
	d := f.mintDeposit(values...)
	f.notify(d)

	return d
}

// setConfs sets the depth of txid and wakes the waiters.
func (f *fakeWallet) setConfs(txid chainhash.Hash, confs int32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.confs[txid] = confs
	close(f.changed)
	f.changed = make(chan struct{})
}

// invalidate marks txid as double spent and wakes the waiters.
func (f *fakeWallet) invalidate(txid chainhash.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.invalid[txid] = true
	close(f.changed)
	f.changed = make(chan struct{})
}

// broadcasts returns a copy of the sweeps published so far.
func (f *fakeWallet) broadcasts() []*wire.MsgTx {
	f.mu.Lock()
	defer f.mu.Unlock()

	sweeps := make([]*wire.MsgTx, len(f.sweeps))
	copy(sweeps, f.sweeps)

	return sweeps
}

// failure records a PipelineFailed notification.
type failure struct {
	stage Stage
	err   error
}

// recordingObserver forwards observer callbacks to channels.
type recordingObserver struct {
	seen   chan Deposit
	done   chan *Result
	failed chan failure
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		seen:   make(chan Deposit, 16),
		done:   make(chan *Result, 16),
		failed: make(chan failure, 16),
	}
}

func (o *recordingObserver) DepositSeen(d Deposit) { o.seen <- d }

func (o *recordingObserver) PipelineDone(r *Result) { o.done <- r }

func (o *recordingObserver) PipelineFailed(stage Stage, err error) {
	o.failed <- failure{stage: stage, err: err}
}

const testTimeout = 5 * time.Second

// waitDone returns the next completed forward or fails the test.
func (o *recordingObserver) waitDone(t *testing.T) *Result {
	t.Helper()

	select {
	case r := <-o.done:
		return r
	case f := <-o.failed:
		t.Fatalf("pipeline failed at %v: %v", f.stage, f.err)
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for forward")
	}

	return nil
}

// waitFailed returns the next pipeline failure or fails the test.
func (o *recordingObserver) waitFailed(t *testing.T) failure {
	t.Helper()

	select {
	case f := <-o.failed:
		return f
	case r := <-o.done:
		t.Fatalf("unexpected forward %v", r.TxID)
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for failure")
	}

	return failure{}
}

// testAddress returns a fresh P2WPKH address on net.
func testAddress(t *testing.T, net *netparams.Params) btcutil.Address {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(privKey.PubKey().SerializeCompressed()),
		net.Params,
	)
	require.NoError(t, err)

	return addr
}
