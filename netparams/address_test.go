// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// testPubKeyHash returns the hash160 of a fresh compressed public key.
func testPubKeyHash(t *testing.T) []byte {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return btcutil.Hash160(privKey.PubKey().SerializeCompressed())
}

// TestByName checks that every registered network can be looked up by its
// identifier and that unknown names yield nothing.
func TestByName(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		net := ByName(name)
		require.True(t, net.IsSome(), name)
		require.Equal(t, name, net.UnwrapOr(nil).ID)
	}

	require.Equal(t, &TestNet3Params, ByName("testnet3").UnwrapOr(nil))
	require.Equal(t, &MainNetParams, ByName(" MainNet ").UnwrapOr(nil))
	require.True(t, ByName("litecoin").IsNone())
	require.True(t, ByName("").IsNone())
}

// TestParseAddressInfersNetwork checks that an address whose encoding is
// unique to one network is bound to that network when none is given.
func TestParseAddressInfersNetwork(t *testing.T) {
	t.Parallel()

	hash := testPubKeyHash(t)

	mainP2PKH, err := btcutil.NewAddressPubKeyHash(hash, MainNetParams.Params)
	require.NoError(t, err)
	mainP2WPKH, err := btcutil.NewAddressWitnessPubKeyHash(
		hash, MainNetParams.Params,
	)
	require.NoError(t, err)
	testP2WPKH, err := btcutil.NewAddressWitnessPubKeyHash(
		hash, TestNet3Params.Params,
	)
	require.NoError(t, err)
	regtestP2WPKH, err := btcutil.NewAddressWitnessPubKeyHash(
		hash, RegressionNetParams.Params,
	)
	require.NoError(t, err)
	simP2PKH, err := btcutil.NewAddressPubKeyHash(hash, SimNetParams.Params)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		addr    btcutil.Address
		wantNet *Params
	}{
		{"mainnet p2pkh", mainP2PKH, &MainNetParams},
		{"mainnet p2wpkh", mainP2WPKH, &MainNetParams},
		{"testnet p2wpkh", testP2WPKH, &TestNet3Params},
		{"regtest p2wpkh", regtestP2WPKH, &RegressionNetParams},
		{"simnet p2pkh", simP2PKH, &SimNetParams},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			addr, net, err := ParseAddress(
				tc.addr.EncodeAddress(), fn.None[*Params](),
			)
			require.NoError(t, err)
			require.Equal(t, tc.wantNet, net)
			require.Equal(t, tc.addr.EncodeAddress(),
				addr.EncodeAddress())
			require.True(t, addr.IsForNet(net.Params))
		})
	}
}

// TestParseAddressSharedEncoding checks that encodings shared between test
// networks resolve to the first registered one, and that an explicit
// network accepts them.
func TestParseAddressSharedEncoding(t *testing.T) {
	t.Parallel()

	hash := testPubKeyHash(t)
	signetAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		hash, SigNetParams.Params,
	)
	require.NoError(t, err)

	_, net, err := ParseAddress(
		signetAddr.EncodeAddress(), fn.None[*Params](),
	)
	require.NoError(t, err)
	require.Equal(t, &TestNet3Params, net)

	_, net, err = ParseAddress(
		signetAddr.EncodeAddress(), fn.Some(&SigNetParams),
	)
	require.NoError(t, err)
	require.Equal(t, &SigNetParams, net)
}

// TestParseAddressErrors checks malformed and mismatching addresses.
func TestParseAddressErrors(t *testing.T) {
	t.Parallel()

	hash := testPubKeyHash(t)
	mainAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		hash, MainNetParams.Params,
	)
	require.NoError(t, err)
	legacyMain, err := btcutil.NewAddressPubKeyHash(
		hash, MainNetParams.Params,
	)
	require.NoError(t, err)

	testCases := []struct {
		name      string
		text      string
		net       fn.Option[*Params]
		wrongNet  bool
		unknownNt bool
		nilNet    bool
	}{
		{
			name:     "segwit on wrong network",
			text:     mainAddr.EncodeAddress(),
			net:      fn.Some(&TestNet3Params),
			wrongNet: true,
		},
		{
			name:     "legacy on wrong network",
			text:     legacyMain.EncodeAddress(),
			net:      fn.Some(&RegressionNetParams),
			wrongNet: true,
		},
		{
			name:      "garbage without network",
			text:      "not-an-address",
			net:       fn.None[*Params](),
			unknownNt: true,
		},
		{
			name: "garbage with network",
			text: "1111",
			net:  fn.Some(&MainNetParams),
		},
		{
			name:   "nil network",
			text:   mainAddr.EncodeAddress(),
			net:    fn.Some[*Params](nil),
			nilNet: true,
		},
		{
			name:   "network without chain parameters",
			text:   mainAddr.EncodeAddress(),
			net:    fn.Some(&Params{ID: "bogus"}),
			nilNet: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			addr, net, err := ParseAddress(tc.text, tc.net)
			require.Nil(t, addr)
			require.Nil(t, net)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			require.Equal(t, tc.text, parseErr.Text)

			if tc.wrongNet {
				require.ErrorIs(t, err, ErrWrongNetwork)
			}
			if tc.unknownNt {
				require.ErrorIs(t, err, ErrUnknownNetwork)
			}
			if tc.nilNet {
				require.ErrorIs(t, err, ErrNilNetwork)
			}
		})
	}
}
