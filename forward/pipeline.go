// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcfwd/netparams"
)

// Stage is a step of a forwarding pipeline.
type Stage uint8

const (
	// StageConfirm waits for the deposit to reach the required depth.
	StageConfirm Stage = iota

	// StageSelect selects the deposit's outputs and builds the sweep.
	StageSelect

	// StageBroadcast signs and publishes the sweep.
	StageBroadcast

	// StageRelay waits for peers to acknowledge the sweep.
	StageRelay

	// StageDone means the deposit was forwarded.
	StageDone
)

// String returns a human readable name for the stage.
func (s Stage) String() string {
	switch s {
	case StageConfirm:
		return "confirm"
	case StageSelect:
		return "select"
	case StageBroadcast:
		return "broadcast"
	case StageRelay:
		return "relay"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// pipelineConfig is the read-only configuration shared by all pipelines.
type pipelineConfig struct {
	wallet       WalletService
	net          *netparams.Params
	dest         btcutil.Address
	numConfs     int32
	relayTimeout time.Duration
	observer     Observer
}

// pipeline forwards a single deposit.  It walks the stages strictly in
// order; every wait is a context-aware call so that shutdown releases it.
type pipeline struct {
	cfg     *pipelineConfig
	deposit Deposit
	stage   Stage
}

// newPipeline creates a pipeline for deposit.
func newPipeline(cfg *pipelineConfig, deposit Deposit) *pipeline {
	return &pipeline{
		cfg:     cfg,
		deposit: deposit,
		stage:   StageConfirm,
	}
}

// run executes the pipeline to completion.  On failure the returned error
// is tagged with the stage it happened in.
func (p *pipeline) run(ctx context.Context) (*Result, error) {
	txid := p.deposit.TxID

	log.Infof("Waiting for deposit %v (%v) to reach %d %s", txid,
		p.deposit.Value, p.cfg.numConfs,
		pickNoun(int(p.cfg.numConfs), "confirmation", "confirmations"))

	confs, err := p.cfg.wallet.WaitForConfirmations(
		ctx, txid, p.cfg.numConfs,
	)
	if err != nil {
		return nil, err
	}
	log.Infof("Deposit %v has received %d %s", txid, confs,
		pickNoun(int(confs), "confirmation", "confirmations"))

	p.stage = StageSelect
	handle, err := p.sweep(ctx)
	if err != nil {
		return nil, err
	}

	p.stage = StageRelay
	log.Infof("Transaction %v is signed and is being delivered to %v",
		handle.TxID(), p.cfg.net)

	if err := p.awaitRelay(ctx, handle); err != nil {
		return nil, err
	}

	p.stage = StageDone

	return &Result{
		Deposit:       p.deposit,
		Confirmations: confs,
		TxID:          handle.TxID(),
		Forwarded:     handle.Forwarded(),
		Fee:           handle.Fee(),
	}, nil
}

// sweep asks the wallet to build and broadcast a transaction spending the
// deposit's outputs to the destination.
func (p *pipeline) sweep(ctx context.Context) (BroadcastHandle, error) {
	selector := NewScopedSelector(p.deposit.TxID)

	log.Infof("Creating outgoing transaction for %v spending outputs "+
		"of %v", p.cfg.dest, p.deposit.TxID)

	handle, err := p.cfg.wallet.BuildAndBroadcast(
		ctx, p.cfg.dest, selector,
	)

	var (
		selErr *SelectionError
		bcErr  *BroadcastError
	)
	switch {
	case err == nil:
		p.stage = StageBroadcast
		return handle, nil

	case errors.As(err, &selErr):
		return nil, err

	case errors.As(err, &bcErr):
		if bcErr.Op != OpBuild {
			p.stage = StageBroadcast
		}
		return nil, err

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):

		return nil, err

	default:
		return nil, NewBroadcastError(OpBuild, err)
	}
}

// awaitRelay waits for peers to acknowledge the sweep, bounded by the
// configured relay timeout.
func (p *pipeline) awaitRelay(ctx context.Context,
	handle BroadcastHandle) error {

	relayCtx := ctx
	if p.cfg.relayTimeout > 0 {
		var cancel context.CancelFunc
		relayCtx, cancel = context.WithTimeout(ctx, p.cfg.relayTimeout)
		defer cancel()
	}

	err := handle.AwaitRelayed(relayCtx)
	switch {
	case err == nil:
		return nil

	// Our own shutdown is not a relay failure.
	case ctx.Err() != nil:
		return ctx.Err()

	case errors.Is(err, context.DeadlineExceeded):
		return NewBroadcastError(OpRelay, fmt.Errorf("%w: %v after %v",
			ErrRelayTimeout, handle.TxID(), p.cfg.relayTimeout))

	default:
		return NewBroadcastError(OpRelay, err)
	}
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
