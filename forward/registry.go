// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package forward

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// registry tracks the pipelines that are in flight, one per deposit, so that
// duplicate notifications are ignored and shutdown can cancel and join them.
type registry struct {
	mu     sync.Mutex
	active map[chainhash.Hash]context.CancelFunc
	closed bool

	wg sync.WaitGroup
}

// newRegistry returns an empty registry.
func newRegistry() *registry {
	return &registry{
		active: make(map[chainhash.Hash]context.CancelFunc),
	}
}

// spawn runs f in a new goroutine with a context derived from parent, unless
// a pipeline for txid is already in flight or the registry was shut down.
// It reports whether f was started.
func (r *registry) spawn(parent context.Context, txid chainhash.Hash,
	f func(ctx context.Context)) bool {

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, ok := r.active[txid]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	r.active[txid] = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.remove(txid)

		f(ctx)
	}()

	return true
}

// remove drops txid from the active set and releases its context.
func (r *registry) remove(txid chainhash.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.active[txid]; ok {
		cancel()
		delete(r.active, txid)
	}
}

// inFlight returns the number of running pipelines.
func (r *registry) inFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.active)
}

// shutdown refuses new pipelines, cancels the running ones and waits for
// them to return.
func (r *registry) shutdown() {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.active {
		cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
}
