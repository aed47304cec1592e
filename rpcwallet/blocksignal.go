// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/gozmq"
)

const (
	// hashBlockZMQCommand is the command used by bitcoind's ZMQ interface
	// to announce the hash of a new block.
	hashBlockZMQCommand = "hashblock"

	// seqNumLen is the length of the sequence number of a message sent
	// from bitcoind through ZMQ.
	seqNumLen = 4
)

// blockSignal wakes poll loops when a new block arrives.  Each loop takes
// the channel returned by next before polling and selects on it; the channel
// is closed on the following block.
type blockSignal struct {
	// conn is nil when no block notifications are configured, in which
	// case next never fires.
	conn *gozmq.Conn

	mu    sync.Mutex
	epoch chan struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

// newBlockSignal returns a blockSignal reading from conn.
func newBlockSignal(conn *gozmq.Conn) *blockSignal {
	return &blockSignal{
		conn:  conn,
		epoch: make(chan struct{}),
		quit:  make(chan struct{}),
	}
}

// subscribeBlocks connects to bitcoind's zmqpubhashblock endpoint.
func subscribeBlocks(host string,
	readDeadline time.Duration) (*blockSignal, error) {

	conn, err := gozmq.Subscribe(
		host, []string{hashBlockZMQCommand}, readDeadline,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to subscribe for zmq block "+
			"events: %w", err)
	}

	return newBlockSignal(conn), nil
}

// start spins off the notification handler if there is a connection.
func (b *blockSignal) start() {
	if b.conn == nil {
		return
	}

	b.wg.Add(1)
	go b.blockEventHandler()
}

// stop closes the connection and waits for the handler to exit.
func (b *blockSignal) stop() error {
	var err error
	if b.conn != nil {
		err = b.conn.Close()
	}

	close(b.quit)
	b.wg.Wait()

	return err
}

// next returns a channel that is closed when the next block arrives.
func (b *blockSignal) next() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.epoch
}

// notify wakes every loop waiting on the current epoch.
func (b *blockSignal) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()

	close(b.epoch)
	b.epoch = make(chan struct{})
}

// blockEventHandler reads block hash events from the ZMQ socket and bumps
// the epoch for each.
//
// NOTE: This must be run as a goroutine.
func (b *blockSignal) blockEventHandler() {
	defer b.wg.Done()

	log.Infof("Started listening for bitcoind block notifications via "+
		"ZMQ on %v", b.conn.RemoteAddr())

	var (
		command [len(hashBlockZMQCommand)]byte
		seqNum  [seqNumLen]byte
		data    [chainhash.HashSize]byte
	)

	for {
		select {
		case <-b.quit:
			return
		default:
		}

		bufs, err := b.conn.Receive(
			[][]byte{command[:], data[:], seqNum[:]},
		)
		if err != nil {
			// EOF should only be returned if the connection was
			// explicitly closed, so we can exit at this point.
			if errors.Is(err, io.EOF) {
				return
			}

			// Timeouts are expected whenever no block arrives
			// within the read deadline.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			log.Errorf("Unable to receive ZMQ %v message: %v",
				hashBlockZMQCommand, err)
			continue
		}

		eventType := string(bufs[0])
		if eventType != hashBlockZMQCommand {
			if eventType == "" || !isASCII(eventType) {
				continue
			}

			log.Warnf("Received unexpected event type from %v "+
				"subscription: %v", hashBlockZMQCommand,
				eventType)
			continue
		}

		// bitcoind sends the hash in display order.
		hash, err := chainhash.NewHashFromStr(hex.EncodeToString(bufs[1]))
		if err != nil {
			log.Errorf("Unable to parse block hash: %v", err)
			continue
		}
		log.Debugf("New block %v", hash)

		b.notify()
	}
}

// isASCII is a helper method that checks whether all bytes in `data` would be
// printable ASCII characters if interpreted as a string.
func isASCII(s string) bool {
	for _, c := range s {
		if c < 32 || c > 126 {
			return false
		}
	}
	return true
}
