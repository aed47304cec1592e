// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcfwd/forward"
	"github.com/btcsuite/btcfwd/internal/prompt"
	"github.com/btcsuite/btcfwd/metrics"
	"github.com/btcsuite/btcfwd/rpcwallet"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
)

func main() {
	// Work around defer not working after os.Exit.
	if err := fwdMain(); err != nil {
		os.Exit(1)
	}
}

// fwdMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func fwdMain() error {
	// Load configuration and parse command line.  This function also
	// sets the requested log levels.
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}

		fmt.Fprintln(os.Stderr, err)
		return err
	}

	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer closeLogRotator()

	log.Infof("Version %s", version())

	passphrase := cfg.WalletPass
	if cfg.PromptPass {
		passphrase, err = prompt.ProvidePrivPassphrase(
			int(os.Stdin.Fd()), os.Stdout,
		)
		if err != nil {
			log.Errorf("Unable to read passphrase: %v", err)
			return err
		}
	}

	wallet, err := rpcwallet.New(walletConfig(cfg, passphrase))
	if err != nil {
		log.Errorf("Invalid wallet configuration: %v", err)
		return err
	}

	ctrl, err := forward.New(forward.Config{
		Destination:  cfg.destination,
		Network:      fn.Some(cfg.activeNet),
		Wallet:       wallet,
		DataDir:      cfg.DataDir,
		NumConfs:     cfg.MinConf,
		RelayTimeout: cfg.RelayTimeout,
		Observer:     metrics.NewForwarder(cfg.activeNet.ID),
	})
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	defer ctrl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addInterruptHandler(cancel)

	if cfg.MetricsListen != "" {
		err := metrics.RegisterInFlight(cfg.activeNet.ID, ctrl.InFlight)
		if err != nil {
			log.Errorf("Unable to register metrics: %v", err)
			return err
		}

		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsListen); err != nil {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	if err := ctrl.Run(ctx); err != nil {
		log.Errorf("Unable to start forwarding: %v", err)
		return err
	}

	// Wait until an interrupt is received and all of its handlers ran.
	<-interruptHandlersDone
	ctrl.Close()
	log.Info("Shutdown complete")

	return nil
}

// walletConfig maps the command line options onto the RPC wallet settings.
func walletConfig(cfg *config, passphrase string) rpcwallet.Config {
	walletCfg := rpcwallet.DefaultConfig()
	walletCfg.Host = cfg.RPCConnect
	walletCfg.User = cfg.RPCUser
	walletCfg.Pass = cfg.RPCPass
	walletCfg.Certificates = cfg.certs
	walletCfg.DisableTLS = cfg.DisableClientTLS
	walletCfg.Account = cfg.Account
	walletCfg.FeeRate = cfg.FeeRate.Amount
	walletCfg.Passphrase = passphrase
	walletCfg.PollInterval = cfg.PollInterval
	walletCfg.RateLimit = cfg.RPCRateLimit
	walletCfg.SweepExisting = cfg.SweepExisting
	walletCfg.ZMQBlockHost = cfg.ZMQPubHashBlock

	return walletCfg
}
