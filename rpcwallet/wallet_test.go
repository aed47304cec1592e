// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcfwd/forward"
	"github.com/btcsuite/btcfwd/netparams"
	"github.com/stretchr/testify/require"
)

// TestStartStop checks the wallet lifecycle against the RPC client.
func TestStartStop(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	addr := expectConnect(t, client)
	client.On("ListUnspentMinMax", 0, maxConfs).Return(
		[]btcjson.ListUnspentResult{}, nil,
	)

	var connCfg *rpcclient.ConnConfig
	cfg, _ := testConfig(client)
	cfg.User = "user"
	cfg.Pass = "pass"
	cfg.Dial = func(c *rpcclient.ConnConfig) (Client, error) {
		connCfg = c
		return client, nil
	}

	w, err := New(cfg)
	require.NoError(t, err)
	require.False(t, w.IsRunning())

	storageDir := filepath.Join(t.TempDir(), "forwarding-service-regtest")
	require.NoError(t, w.Start(context.Background(), testNet, storageDir))
	require.True(t, w.IsRunning())

	info, err := os.Stat(storageDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.Equal(t, "localhost:18332", connCfg.Host)
	require.Equal(t, "user", connCfg.User)
	require.Equal(t, "pass", connCfg.Pass)
	require.Equal(t, testNet.Name, connCfg.Params)
	require.True(t, connCfg.HTTPPostMode)

	err = w.Start(context.Background(), testNet, storageDir)
	require.ErrorIs(t, err, ErrAlreadyStarted)

	got, err := w.CurrentReceiveAddress()
	require.NoError(t, err)
	require.Equal(t, addr, got)

	require.NoError(t, w.Stop())
	require.False(t, w.IsRunning())
	require.NoError(t, w.Stop())

	client.AssertNumberOfCalls(t, "Shutdown", 1)
	client.AssertNumberOfCalls(t, "WaitForShutdown", 1)
}

// TestStartFailures checks that a failed start leaves nothing running.
func TestStartFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		setup   func(t *testing.T, client *mockClient)
		wantErr error
	}{
		{
			name: "wrong network",
			setup: func(t *testing.T, client *mockClient) {
				client.On("GetAccountAddress", DefaultAccount).
					Return(testAddress(
						t, &netparams.MainNetParams,
					), nil)
			},
			wantErr: ErrNetworkMismatch,
		},
		{
			name: "account query",
			setup: func(t *testing.T, client *mockClient) {
				client.On("GetAccountAddress", DefaultAccount).
					Return(nil, errors.New("no such account"))
			},
		},
		{
			name: "list unspent",
			setup: func(t *testing.T, client *mockClient) {
				client.On("GetAccountAddress", DefaultAccount).
					Return(testAddress(t, testNet), nil)
				client.On("ListUnspentMinMax", 0, maxConfs).
					Return(nil, errors.New("wallet busy"))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &mockClient{}
			tc.setup(t, client)
			client.On("Shutdown").Return().Once()
			client.On("WaitForShutdown").Return().Once()

			cfg, _ := testConfig(client)
			w, err := New(cfg)
			require.NoError(t, err)

			err = w.Start(context.Background(), testNet, t.TempDir())
			require.Error(t, err)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}

			require.False(t, w.IsRunning())
			client.AssertExpectations(t)
		})
	}
}

// TestDialFailure checks that a client creation error is returned.
func TestDialFailure(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")

	cfg, _ := testConfig(&mockClient{})
	cfg.Dial = func(*rpcclient.ConnConfig) (Client, error) {
		return nil, dialErr
	}

	w, err := New(cfg)
	require.NoError(t, err)

	err = w.Start(context.Background(), testNet, t.TempDir())
	require.ErrorIs(t, err, dialErr)
	require.False(t, w.IsRunning())
}

// TestNotRunning checks that calls before Start fail cleanly.
func TestNotRunning(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(&mockClient{})
	w, err := New(cfg)
	require.NoError(t, err)

	_, err = w.CurrentReceiveAddress()
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = w.WaitForConfirmations(
		context.Background(), chainhash.Hash{0x01}, 1,
	)
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = w.BuildAndBroadcast(
		context.Background(), testAddress(t, testNet),
		forward.NewScopedSelector(chainhash.Hash{0x01}),
	)
	var bcErr *forward.BroadcastError
	require.ErrorAs(t, err, &bcErr)
	require.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, w.Stop())
}

// TestConfigValidate checks the policy validation of New.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		modify func(cfg *Config)
		valid  bool
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
			valid:  true,
		},
		{
			name:   "zero config",
			modify: func(cfg *Config) { *cfg = Config{} },
			valid:  true,
		},
		{
			name:   "negative fee rate",
			modify: func(cfg *Config) { cfg.FeeRate = -1 },
		},
		{
			name:   "jitter too large",
			modify: func(cfg *Config) { cfg.PollJitter = 1 },
		},
		{
			name:   "negative rate limit",
			modify: func(cfg *Config) { cfg.RateLimit = -1 },
		},
		{
			name: "short unlock",
			modify: func(cfg *Config) {
				cfg.UnlockTimeout = 1
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.modify(&cfg)

			_, err := New(cfg)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

// TestListenerRegistration checks that removed listeners are no longer
// notified.
func TestListenerRegistration(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(&mockClient{})
	w, err := New(cfg)
	require.NoError(t, err)

	l1 := newRecordingListener()
	l2 := newRecordingListener()
	w.AddDepositListener(l1)
	w.AddDepositListener(l2)
	w.RemoveDepositListener(l1)

	_, listeners := w.scanUnspent(groupUnspent(nil))
	require.Equal(t, []forward.DepositListener{l2}, listeners)
}
