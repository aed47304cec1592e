// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrWrongNetwork is returned when an address is well formed but
	// encodes a network other than the requested one.
	ErrWrongNetwork = errors.New("address is for a different network")

	// ErrUnknownNetwork is returned when an address does not decode for
	// any supported network.
	ErrUnknownNetwork = errors.New("address does not match any " +
		"supported network")

	// ErrNilNetwork is returned when the requested network is set but
	// nil.
	ErrNilNetwork = errors.New("no network parameters given")
)

// ParseError describes an address that could not be parsed, either because
// the text is malformed or because it belongs to another network.
type ParseError struct {
	// Text is the address text as given.
	Text string

	// Err is the underlying decoding failure.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid address %q: %v", e.Text, e.Err)
}

// Unwrap returns the underlying decoding failure.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseAddress decodes text into an address.  When a network is given the
// address must be encoded for it.  Otherwise every supported network is
// tried in registry order and the first one the address is valid for is
// adopted.  The network the address is bound to is returned along with it.
func ParseAddress(text string,
	net fn.Option[*Params]) (btcutil.Address, *Params, error) {

	if net.IsNone() {
		return inferAddress(text)
	}

	params := net.UnwrapOr(nil)
	if params == nil || params.Params == nil {
		return nil, nil, &ParseError{Text: text, Err: ErrNilNetwork}
	}

	addr, err := decodeForNet(text, params)
	if err == nil {
		return addr, params, nil
	}

	// Tell a mismatching network apart from garbage so the caller can
	// report something useful.
	if _, other, inferErr := inferAddress(text); inferErr == nil {
		return nil, nil, &ParseError{
			Text: text,
			Err: fmt.Errorf("%w: encoded for %v, want %v",
				ErrWrongNetwork, other, params),
		}
	}

	return nil, nil, &ParseError{Text: text, Err: err}
}

// inferAddress decodes text against every registered network.
func inferAddress(text string) (btcutil.Address, *Params, error) {
	for _, params := range registry {
		addr, err := decodeForNet(text, params)
		if err != nil {
			continue
		}

		return addr, params, nil
	}

	return nil, nil, &ParseError{Text: text, Err: ErrUnknownNetwork}
}

// decodeForNet decodes text with params as the default network and makes
// sure the result is actually valid on it.  DecodeAddress accepts segwit
// addresses of any registered network, so the IsForNet check is required.
func decodeForNet(text string, params *Params) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(text, params.Params)
	if err != nil {
		return nil, err
	}

	if !addr.IsForNet(params.Params) {
		return nil, ErrWrongNetwork
	}

	return addr, nil
}
