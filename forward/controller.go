// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package forward

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcfwd/netparams"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// RequiredConfirmations is the default depth a deposit must reach
	// before it is forwarded.
	RequiredConfirmations = 1

	// DefaultRelayTimeout bounds the wait for peers to acknowledge a
	// sweep.
	DefaultRelayTimeout = 10 * time.Minute

	// DefaultStopTimeout bounds how long Close waits for the wallet to
	// stop.
	DefaultStopTimeout = 30 * time.Second

	// storagePrefix is prepended to the network name to form the wallet
	// storage directory.
	storagePrefix = "forwarding-service-"
)

// Config holds everything needed to create a Controller.
type Config struct {
	// Destination is the address text all deposits are forwarded to.
	Destination string

	// Network is the network to run on.  When unset the network encoded
	// in Destination is used.
	Network fn.Option[*netparams.Params]

	// Wallet is the wallet collaborator.
	Wallet WalletService

	// DataDir is the directory the wallet storage lives under.
	DataDir string

	// NumConfs is the depth a deposit needs before it is forwarded.
	// Defaults to RequiredConfirmations.
	NumConfs int32

	// RelayTimeout bounds the relay wait.  Defaults to
	// DefaultRelayTimeout.
	RelayTimeout time.Duration

	// StopTimeout bounds the wallet stop in Close.  Defaults to
	// DefaultStopTimeout.
	StopTimeout time.Duration

	// Observer, if set, is notified about pipeline progress.
	Observer Observer
}

// Controller owns the wallet lifecycle and runs one forwarding pipeline per
// deposit.  The destination address and network are fixed at construction.
type Controller struct {
	cfg  Config
	net  *netparams.Params
	dest btcutil.Address

	pcfg      *pipelineConfig
	listener  *depositListener
	pipelines *registry

	// ctx is the parent of every pipeline context; cancel is called by
	// Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
}

// ParseNetwork resolves a network name given on the command line.
func ParseNetwork(name string) (*netparams.Params, error) {
	net, err := netparams.ByName(name).UnwrapOrErr(
		fmt.Errorf("want one of %s",
			strings.Join(netparams.Names(), "|")),
	)
	if err != nil {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("unknown network %q", name),
			Err:    err,
		}
	}

	return net, nil
}

// ResolveDestination parses the forwarding address text.  When network is
// set the address must be encoded for it, otherwise the network is taken
// from the address.  Failures are returned as a *ConfigError.
func ResolveDestination(text string,
	network fn.Option[*netparams.Params]) (btcutil.Address,
	*netparams.Params, error) {

	dest, net, err := netparams.ParseAddress(text, network)
	switch {
	case errors.Is(err, netparams.ErrNilNetwork):
		return nil, nil, &ConfigError{
			Reason: "no network given",
			Err:    err,
		}

	case errors.Is(err, netparams.ErrWrongNetwork):
		return nil, nil, &ConfigError{
			Reason: "forwarding address does not match network",
			Err:    err,
		}

	case err != nil:
		return nil, nil, &ConfigError{
			Reason: "invalid forwarding address",
			Err:    err,
		}
	}

	return dest, net, nil
}

// New validates cfg and resolves the forwarding target.  The address is
// parsed against cfg.Network when one is given, otherwise the network is
// taken from the address itself.
func New(cfg Config) (*Controller, error) {
	if cfg.Wallet == nil {
		return nil, &ConfigError{Reason: "no wallet service configured"}
	}
	if cfg.NumConfs < 0 {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("invalid confirmation depth %d",
				cfg.NumConfs),
		}
	}
	if cfg.NumConfs == 0 {
		cfg.NumConfs = RequiredConfirmations
	}
	if cfg.RelayTimeout == 0 {
		cfg.RelayTimeout = DefaultRelayTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	dest, net, err := ResolveDestination(cfg.Destination, cfg.Network)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:  cfg,
		net:  net,
		dest: dest,
		pcfg: &pipelineConfig{
			wallet:       cfg.Wallet,
			net:          net,
			dest:         dest,
			numConfs:     cfg.NumConfs,
			relayTimeout: cfg.RelayTimeout,
			observer:     cfg.Observer,
		},
		pipelines: newRegistry(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.listener = &depositListener{c: c}

	return c, nil
}

// Network returns the network the controller runs on.
func (c *Controller) Network() *netparams.Params {
	return c.net
}

// Destination returns the forwarding address.
func (c *Controller) Destination() btcutil.Address {
	return c.dest
}

// StorageDir returns the directory handed to the wallet on start.
func (c *Controller) StorageDir() string {
	return filepath.Join(c.cfg.DataDir, storagePrefix+c.net.ID)
}

// InFlight returns the number of deposits currently being forwarded.
func (c *Controller) InFlight() int {
	return c.pipelines.inFlight()
}

// Run starts the wallet and subscribes to deposits.  Deposits are handled
// asynchronously from then on; Run returns once the wallet is up.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return ErrShutdown
	case c.started:
		return ErrAlreadyRunning
	}

	log.Infof("Network: %v", c.net)
	log.Infof("Forwarding address: %v", c.dest)

	err := c.cfg.Wallet.Start(ctx, c.net, c.StorageDir())
	if err != nil {
		return fmt.Errorf("unable to start wallet: %w", err)
	}
	c.started = true

	c.cfg.Wallet.AddDepositListener(c.listener)

	// Only now that we are listening can the receive address be handed
	// out.
	addr, err := c.cfg.Wallet.CurrentReceiveAddress()
	if err != nil {
		log.Warnf("Unable to fetch receive address: %v", err)
	} else {
		log.Infof("Waiting to receive coins on: %v", addr)
	}

	return nil
}

// Close unsubscribes from deposits, cancels in-flight pipelines and stops
// the wallet.  It is safe to call more than once and before Run; failures
// are logged and never returned.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if !started {
		return
	}

	wallet := c.cfg.Wallet
	if wallet.IsRunning() {
		wallet.RemoveDepositListener(c.listener)
	}

	if n := c.pipelines.inFlight(); n > 0 {
		log.Infof("Abandoning %d in-flight %s", n,
			pickNoun(n, "forward", "forwards"))
	}
	c.pipelines.shutdown()

	// The wallet may be wedged; don't let that hold up process exit.
	errChan := make(chan error, 1)
	go func() {
		errChan <- wallet.Stop()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Errorf("Unable to stop wallet: %v", err)
		}

	case <-time.After(c.cfg.StopTimeout):
		log.Errorf("Wallet did not stop within %v", c.cfg.StopTimeout)
	}
}

// handleDeposit starts a pipeline for deposit unless one is already running.
func (c *Controller) handleDeposit(deposit Deposit) {
	log.Infof("Received tx %v for %v (balance %v -> %v)", deposit.TxID,
		deposit.Value, deposit.PrevBalance, deposit.NewBalance)

	p := newPipeline(c.pcfg, deposit)
	started := c.pipelines.spawn(c.ctx, deposit.TxID,
		func(ctx context.Context) {
			c.runPipeline(ctx, p)
		},
	)
	if !started {
		log.Debugf("Ignoring deposit %v: already being forwarded or "+
			"shutting down", deposit.TxID)
		return
	}

	c.cfg.Observer.DepositSeen(deposit)
	log.Infof("Transaction %v will be forwarded after it confirms",
		deposit.TxID)
}

// runPipeline executes p and reports its outcome.  Errors stay local to the
// pipeline and are never retried.
func (c *Controller) runPipeline(ctx context.Context, p *pipeline) {
	result, err := p.run(ctx)
	switch {
	case err == nil:
		log.Infof("Sent %v onwards and acknowledged by peers, via "+
			"transaction %v (fee %v)", result.Forwarded,
			result.TxID, result.Fee)
		c.cfg.Observer.PipelineDone(result)

	case ctx.Err() != nil:
		log.Infof("Forward of deposit %v abandoned at stage %v: %v",
			p.deposit.TxID, p.stage, ctx.Err())

	default:
		log.Errorf("Forward of deposit %v failed at stage %v: %v",
			p.deposit.TxID, p.stage, err)
		c.cfg.Observer.PipelineFailed(p.stage, err)
	}
}

// depositListener adapts the controller to the DepositListener interface.
// A pointer is registered so it can be removed again by identity.
type depositListener struct {
	c *Controller
}

// OnDeposit implements DepositListener.
func (l *depositListener) OnDeposit(deposit Deposit) {
	l.c.handleDeposit(deposit)
}
