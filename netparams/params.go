// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// ID is the short identifier used to select the network on the
	// command line.
	ID string

	// RPCServerPort is the default port of the btcwallet RPC server.
	RPCServerPort string
}

// String returns the command line identifier of the network.
func (p *Params) String() string {
	return p.ID
}

// MainNetParams contains parameters specific running btcfwd against
// btcwallet on the main network (wire.MainNet).
var MainNetParams = Params{
	Params:        &chaincfg.MainNetParams,
	ID:            "mainnet",
	RPCServerPort: "8332",
}

// TestNet3Params contains parameters specific running btcfwd against
// btcwallet on the test network (version 3) (wire.TestNet3).
var TestNet3Params = Params{
	Params:        &chaincfg.TestNet3Params,
	ID:            "testnet",
	RPCServerPort: "18332",
}

// SigNetParams contains parameters specific to the default signet network
// (wire.SigNet).
var SigNetParams = Params{
	Params:        &chaincfg.SigNetParams,
	ID:            "signet",
	RPCServerPort: "38332",
}

// RegressionNetParams contains parameters specific to the regression test
// network (wire.TestNet).
var RegressionNetParams = Params{
	Params:        &chaincfg.RegressionNetParams,
	ID:            "regtest",
	RPCServerPort: "18332",
}

// SimNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var SimNetParams = Params{
	Params:        &chaincfg.SimNetParams,
	ID:            "simnet",
	RPCServerPort: "18554",
}

// registry lists every supported network.  The order matters: when an
// address encoding is shared by several networks, the first match wins.
var registry = []*Params{
	&MainNetParams,
	&TestNet3Params,
	&SigNetParams,
	&RegressionNetParams,
	&SimNetParams,
}

// Names returns the identifiers of all supported networks.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, p := range registry {
		names = append(names, p.ID)
	}
	return names
}

// ByName looks up a network by its command line identifier.  The chaincfg
// name (e.g. "testnet3") is accepted as an alias.
func ByName(name string) fn.Option[*Params] {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range registry {
		if p.ID == name || p.Params.Name == name {
			return fn.Some(p)
		}
	}

	return fn.None[*Params]()
}
