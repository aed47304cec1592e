// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package rpcwallet implements the forwarding service's wallet collaborator
// on top of a running btcwallet daemon, reached over its JSON-RPC interface.
//
// Deposits are detected by polling listunspent.  Sweeps are authored
// locally, signed by the wallet with signrawtransaction and published with
// sendrawtransaction.  Every poll loop runs on a ticker and may additionally
// be woken by bitcoind block notifications over ZMQ.
package rpcwallet

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcfwd/forward"
	"github.com/btcsuite/btcfwd/netparams"
	"github.com/lightningnetwork/lnd/ticker"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/semaphore"
)

// Wallet is a forward.WalletService backed by btcwallet.
type Wallet struct {
	cfg Config

	// limiter bounds the rate of polling RPC calls.
	limiter ratelimit.Limiter

	// signSem serializes the unlock, sign and lock sequence.
	signSem *semaphore.Weighted

	mu        sync.Mutex
	running   bool
	client    Client
	net       *netparams.Params
	blocks    *blockSignal
	listeners map[forward.DepositListener]struct{}

	// seen holds the deposit transactions that were already reported,
	// sweeps those this wallet published itself.
	seen   map[chainhash.Hash]struct{}
	sweeps map[chainhash.Hash]*sweepRecord

	quit chan struct{}
	wg   sync.WaitGroup
}

// A compile time check to ensure Wallet implements forward.WalletService.
var _ forward.WalletService = (*Wallet)(nil)

// New returns an unstarted Wallet.
func New(cfg Config) (*Wallet, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid wallet config: %w", err)
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	return &Wallet{
		cfg:       cfg,
		limiter:   limiter,
		signSem:   semaphore.NewWeighted(1),
		listeners: make(map[forward.DepositListener]struct{}),
		seen:      make(map[chainhash.Hash]struct{}),
		sweeps:    make(map[chainhash.Hash]*sweepRecord),
	}, nil
}

// Start connects to btcwallet, checks that it runs on net, records the
// outputs it already holds and starts polling for deposits.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) Start(ctx context.Context, net *netparams.Params,
	storageDir string) error {

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyStarted
	}

	if err := os.MkdirAll(storageDir, 0700); err != nil {
		return fmt.Errorf("unable to create storage directory: %w", err)
	}

	client, err := w.cfg.Dial(&rpcclient.ConnConfig{
		Host:         w.cfg.Host,
		User:         w.cfg.User,
		Pass:         w.cfg.Pass,
		Params:       net.Name,
		DisableTLS:   w.cfg.DisableTLS,
		Certificates: w.cfg.Certificates,
		HTTPPostMode: true,
	})
	if err != nil {
		return fmt.Errorf("unable to create RPC client: %w", err)
	}

	if err := w.init(ctx, client, net); err != nil {
		client.Shutdown()
		client.WaitForShutdown()

		return err
	}

	blocks := newBlockSignal(nil)
	if w.cfg.ZMQBlockHost != "" {
		blocks, err = subscribeBlocks(
			w.cfg.ZMQBlockHost, w.cfg.ZMQReadDeadline,
		)
		if err != nil {
			client.Shutdown()
			client.WaitForShutdown()

			return err
		}
	}
	blocks.start()

	pollTicker := w.cfg.NewTicker(w.cfg.PollInterval)
	pollTicker.Resume()

	w.client = client
	w.net = net
	w.blocks = blocks
	w.quit = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go w.depositPoller(client, pollTicker, blocks, w.quit)

	log.Infof("Connected to wallet at %v on %v, storage in %v",
		w.cfg.Host, net, storageDir)

	return nil
}

// init verifies the remote wallet's network and snapshots its unspent
// outputs.  The caller must hold w.mu.
func (w *Wallet) init(ctx context.Context, client Client,
	net *netparams.Params) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	addr, err := client.GetAccountAddress(w.cfg.Account)
	if err != nil {
		return fmt.Errorf("unable to query wallet account %q: %w",
			w.cfg.Account, err)
	}
	if !addr.IsForNet(net.Params) {
		return fmt.Errorf("%w: address %v is not for %v",
			ErrNetworkMismatch, addr, net)
	}

	unspent, err := client.ListUnspentMinMax(0, maxConfs)
	if err != nil {
		return fmt.Errorf("unable to list unspent outputs: %w", err)
	}

	for txid := range groupUnspent(unspent).values {
		if w.cfg.SweepExisting {
			log.Infof("Existing wallet transaction %v will be "+
				"forwarded", txid)
			continue
		}
		w.seen[txid] = struct{}{}
	}

	return nil
}

// Stop halts polling, releases the waiters and disconnects from btcwallet.
// Stopping a wallet that is not running is a no-op.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.quit)
	client, blocks := w.client, w.blocks
	w.mu.Unlock()

	w.wg.Wait()

	err := blocks.stop()

	client.Shutdown()
	client.WaitForShutdown()

	log.Infof("Disconnected from wallet at %v", w.cfg.Host)

	return err
}

// IsRunning reports whether the wallet has been started and not stopped.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// CurrentReceiveAddress returns the current address of the configured
// account.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) CurrentReceiveAddress() (btcutil.Address, error) {
	client, _, _, err := w.state()
	if err != nil {
		return nil, err
	}

	return client.GetAccountAddress(w.cfg.Account)
}

// AddDepositListener registers l for deposit notifications.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) AddDepositListener(l forward.DepositListener) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.listeners[l] = struct{}{}
}

// RemoveDepositListener unregisters l.
//
// This is part of the forward.WalletService interface.
func (w *Wallet) RemoveDepositListener(l forward.DepositListener) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.listeners, l)
}

// state returns what a poll loop needs, or ErrNotRunning.
func (w *Wallet) state() (Client, *blockSignal, <-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil, nil, nil, ErrNotRunning
	}

	return w.client, w.blocks, w.quit, nil
}

// newPollTicker returns a running ticker for a waiter loop.
func (w *Wallet) newPollTicker() ticker.Ticker {
	t := w.cfg.NewTicker(
		jitterInterval(w.cfg.PollInterval, w.cfg.PollJitter),
	)
	t.Resume()

	return t
}
