// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcfwd/forward"
	"github.com/btcsuite/btcfwd/netparams"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// mockClient is a mock implementation of the Client interface.
type mockClient struct {
	mock.Mock
}

// A compile time check to ensure mockClient implements Client.
var _ Client = (*mockClient)(nil)

func (m *mockClient) ListUnspentMinMax(minConf,
	maxConf int) ([]btcjson.ListUnspentResult, error) {

	args := m.Called(minConf, maxConf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]btcjson.ListUnspentResult), args.Error(1)
}

func (m *mockClient) GetTransaction(
	txHash *chainhash.Hash) (*btcjson.GetTransactionResult, error) {

	args := m.Called(*txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*btcjson.GetTransactionResult), args.Error(1)
}

func (m *mockClient) GetRawTransactionVerbose(
	txHash *chainhash.Hash) (*btcjson.TxRawResult, error) {

	args := m.Called(*txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*btcjson.TxRawResult), args.Error(1)
}

func (m *mockClient) GetAccountAddress(account string) (btcutil.Address,
	error) {

	args := m.Called(account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(btcutil.Address), args.Error(1)
}

// SignRawTransaction returns the configured transaction, or tx itself when
// the expectation returns nil.
func (m *mockClient) SignRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, bool,
	error) {

	args := m.Called(tx)

	signed := tx
	if s, ok := args.Get(0).(*wire.MsgTx); ok {
		signed = s
	}

	return signed, args.Bool(1), args.Error(2)
}

func (m *mockClient) SendRawTransaction(tx *wire.MsgTx,
	allowHighFees bool) (*chainhash.Hash, error) {

	args := m.Called(tx, allowHighFees)
	if err := args.Error(1); err != nil {
		return nil, err
	}

	txid := tx.TxHash()
	return &txid, nil
}

func (m *mockClient) WalletPassphrase(passphrase string,
	timeoutSecs int64) error {

	args := m.Called(passphrase, timeoutSecs)
	return args.Error(0)
}

func (m *mockClient) WalletLock() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockClient) Shutdown() {
	m.Called()
}

func (m *mockClient) WaitForShutdown() {
	m.Called()
}

// testNet is the network every test wallet runs on.
var testNet = &netparams.RegressionNetParams

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

// testScript returns the output script of a fresh address on testNet.
func testScript(t *testing.T) []byte {
	t.Helper()

	pkScript, err := txscript.PayToAddrScript(testAddress(t, testNet))
	require.NoError(t, err)

	return pkScript
}

// unspentOutput returns a spendable listunspent entry.
func unspentOutput(txid chainhash.Hash, vout uint32, value btcutil.Amount,
	pkScript []byte, confs int64) btcjson.ListUnspentResult {

	return btcjson.ListUnspentResult{
		TxID:          txid.String(),
		Vout:          vout,
		Amount:        value.ToBTC(),
		ScriptPubKey:  hex.EncodeToString(pkScript),
		Confirmations: confs,
		Spendable:     true,
	}
}

// noTxInfo is the error btcwallet returns for unknown transactions.
var noTxInfo = &btcjson.RPCError{
	Code:    btcjson.ErrRPCNoTxInfo,
	Message: "No information for transaction",
}

// testConfig returns a Config dialing client whose tickers are sent on
// tickers as they are created.  They only fire when forced.
func testConfig(client *mockClient) (Config, chan *ticker.Force) {
	tickers := make(chan *ticker.Force, 16)

	cfg := DefaultConfig()
	cfg.Host = "localhost:18332"
	cfg.PollInterval = time.Hour
	cfg.PollJitter = 0
	cfg.RateLimit = 0
	cfg.Dial = func(*rpcclient.ConnConfig) (Client, error) {
		return client, nil
	}
	cfg.NewTicker = func(d time.Duration) ticker.Ticker {
		t := ticker.NewForce(d)
		tickers <- t
		return t
	}

	return cfg, tickers
}

// expectConnect registers the calls made while connecting and
// disconnecting.
func expectConnect(t *testing.T, client *mockClient) btcutil.Address {
	t.Helper()

	addr := testAddress(t, testNet)
	client.On("GetAccountAddress", DefaultAccount).Return(addr, nil)
	client.On("Shutdown").Return()
	client.On("WaitForShutdown").Return()

	return addr
}

// startTestWallet starts a wallet on testNet dialing client.  The caller
// registers the ListUnspentMinMax expectations.
func startTestWallet(t *testing.T, client *mockClient,
	modify func(cfg *Config)) (*Wallet, chan *ticker.Force) {

	t.Helper()

	cfg, tickers := testConfig(client)
	if modify != nil {
		modify(&cfg)
	}

	w, err := New(cfg)
	require.NoError(t, err)

	err = w.Start(context.Background(), testNet, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, w.Stop())
	})

	return w, tickers
}

// nextTicker returns the next ticker created by the wallet.
func nextTicker(t *testing.T, tickers chan *ticker.Force) *ticker.Force {
	t.Helper()

	select {
	case tk := <-tickers:
		return tk
	case <-time.After(testTimeout):
		t.Fatalf("no ticker created")
	}

	return nil
}

// forceTick delivers one tick to a loop selecting on tk.
func forceTick(t *testing.T, tk *ticker.Force) {
	t.Helper()

	select {
	case tk.Force <- time.Now():
	case <-time.After(testTimeout):
		t.Fatalf("tick not consumed")
	}
}

// recordingListener collects deposit notifications.
type recordingListener struct {
	deposits chan forward.Deposit
}

func newRecordingListener() *recordingListener {
	return &recordingListener{deposits: make(chan forward.Deposit, 16)}
}

func (l *recordingListener) OnDeposit(d forward.Deposit) {
	l.deposits <- d
}

// nextDeposit returns the next notification or fails the test.
func (l *recordingListener) nextDeposit(t *testing.T) forward.Deposit {
	t.Helper()

	select {
	case d := <-l.deposits:
		return d
	case <-time.After(testTimeout):
		t.Fatalf("no deposit reported")
	}

	return forward.Deposit{}
}
