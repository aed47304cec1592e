// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"errors"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultAccount is the wallet account whose address deposits are
	// requested on.
	DefaultAccount = "default"

	// DefaultPollInterval is the interval the wallet is polled at when no
	// block notification arrives first.
	DefaultPollInterval = 10 * time.Second

	// DefaultPollJitter scales the random spread applied to the poll
	// interval of each waiter.
	DefaultPollJitter = 0.1

	// DefaultRateLimit is the maximum number of polling RPC calls issued
	// per second across all waiters.
	DefaultRateLimit = 10

	// DefaultUnlockTimeout is how long the wallet is unlocked for while a
	// sweep is signed.
	DefaultUnlockTimeout = 60 * time.Second

	// DefaultZMQReadDeadline is the read deadline of the block
	// notification socket.
	DefaultZMQReadDeadline = 5 * time.Second

	// maxConfs is the upper confirmation bound passed to listunspent.
	maxConfs = math.MaxInt32
)

var (
	// ErrNotRunning is returned by calls that need a started wallet.
	ErrNotRunning = errors.New("wallet not running")

	// ErrAlreadyStarted is returned by Start on a running wallet.
	ErrAlreadyStarted = errors.New("wallet already started")

	// ErrNetworkMismatch is returned by Start when the remote wallet runs
	// on a different network.
	ErrNetworkMismatch = errors.New("wallet is on a different network")
)

// Client is the subset of the btcwallet JSON-RPC API the wallet uses.  It is
// satisfied by *rpcclient.Client.
type Client interface {
	// ListUnspentMinMax returns the wallet's unspent outputs with a
	// depth between minConf and maxConf.
	ListUnspentMinMax(minConf, maxConf int) ([]btcjson.ListUnspentResult,
		error)

	// GetTransaction returns the wallet's view of a transaction.
	GetTransaction(txHash *chainhash.Hash) (*btcjson.GetTransactionResult,
		error)

	// GetRawTransactionVerbose looks a transaction up on the chain
	// backend, mempool included.
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult,
		error)

	// GetAccountAddress returns the current receive address of account.
	GetAccountAddress(account string) (btcutil.Address, error)

	// SignRawTransaction signs every input of tx the wallet has keys for.
	SignRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, bool, error)

	// SendRawTransaction publishes tx.
	SendRawTransaction(tx *wire.MsgTx,
		allowHighFees bool) (*chainhash.Hash, error)

	// WalletPassphrase unlocks the wallet for timeoutSecs.
	WalletPassphrase(passphrase string, timeoutSecs int64) error

	// WalletLock locks the wallet.
	WalletLock() error

	// Shutdown disconnects the client.
	Shutdown()

	// WaitForShutdown blocks until the client is disconnected.
	WaitForShutdown()
}

// Config holds the connection and policy settings of a Wallet.
type Config struct {
	// Host is the host:port of the btcwallet RPC server.
	Host string

	// User and Pass are the RPC credentials.
	User string
	Pass string

	// Certificates holds the PEM encoded RPC server certificate.
	Certificates []byte

	// DisableTLS connects without TLS.
	DisableTLS bool

	// Account is the wallet account receive addresses are taken from.
	Account string

	// FeeRate is the fee rate of sweep transactions, per kB.
	FeeRate btcutil.Amount

	// Passphrase is the private passphrase used to unlock the wallet for
	// signing.  If empty the wallet is expected to be unlocked already.
	Passphrase string

	// UnlockTimeout is how long the wallet is unlocked for per sweep.
	UnlockTimeout time.Duration

	// PollInterval is the base interval of every poll loop.
	PollInterval time.Duration

	// PollJitter spreads waiter poll intervals by up to this fraction of
	// PollInterval.  It must be in [0, 1).
	PollJitter float64

	// RateLimit is the number of polling RPC calls allowed per second.
	// Zero disables the limit.
	RateLimit int

	// SweepExisting causes outputs already in the wallet at start to be
	// reported as deposits.
	SweepExisting bool

	// ZMQBlockHost is the bitcoind zmqpubhashblock endpoint.  If empty,
	// polling is driven by the ticker alone.
	ZMQBlockHost string

	// ZMQReadDeadline is the read deadline of the block notification
	// socket.
	ZMQReadDeadline time.Duration

	// Dial creates the RPC client.  Defaults to rpcclient.New in HTTP POST
	// mode.
	Dial func(cfg *rpcclient.ConnConfig) (Client, error)

	// NewTicker creates poll tickers.  Defaults to ticker.New.
	NewTicker func(interval time.Duration) ticker.Ticker
}

// DefaultConfig returns a Config with every policy set to its default.
func DefaultConfig() Config {
	return Config{
		Account:         DefaultAccount,
		FeeRate:         txrules.DefaultRelayFeePerKb,
		UnlockTimeout:   DefaultUnlockTimeout,
		PollInterval:    DefaultPollInterval,
		PollJitter:      DefaultPollJitter,
		RateLimit:       DefaultRateLimit,
		ZMQReadDeadline: DefaultZMQReadDeadline,
	}
}

// validate checks cfg and fills in the zero values.
func (cfg *Config) validate() error {
	if cfg.Account == "" {
		cfg.Account = DefaultAccount
	}
	if cfg.FeeRate == 0 {
		cfg.FeeRate = txrules.DefaultRelayFeePerKb
	}
	if cfg.FeeRate < 0 {
		return errors.New("fee rate must not be negative")
	}
	if cfg.UnlockTimeout == 0 {
		cfg.UnlockTimeout = DefaultUnlockTimeout
	}
	if cfg.UnlockTimeout < time.Second {
		return errors.New("unlock timeout must be at least one second")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollInterval < 0 {
		return errors.New("poll interval must be positive")
	}
	if cfg.PollJitter < 0 || cfg.PollJitter >= 1 {
		return errors.New("poll jitter must be in [0, 1)")
	}
	if cfg.RateLimit < 0 {
		return errors.New("rate limit must not be negative")
	}
	if cfg.ZMQReadDeadline == 0 {
		cfg.ZMQReadDeadline = DefaultZMQReadDeadline
	}
	if cfg.Dial == nil {
		cfg.Dial = dialWallet
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker {
			return ticker.New(d)
		}
	}

	return nil
}

// dialWallet connects to btcwallet.  POST mode is used since no
// notifications are needed.
func dialWallet(cfg *rpcclient.ConnConfig) (Client, error) {
	cfg.HTTPPostMode = true

	client, err := rpcclient.New(cfg, nil)
	if err != nil {
		return nil, err
	}

	return client, nil
}
