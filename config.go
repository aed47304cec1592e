// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcfwd/forward"
	"github.com/btcsuite/btcfwd/internal/cfgutil"
	"github.com/btcsuite/btcfwd/netparams"
	"github.com/btcsuite/btcfwd/rpcwallet"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	defaultConfigFilename = "btcfwd.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btcfwd.log"
	defaultMinConf        = forward.RequiredConfirmations
)

var (
	btcfwdHomeDir     = btcutil.AppDataDir("btcfwd", false)
	btcwalletHomeDir  = btcutil.AppDataDir("btcwallet", false)
	defaultCAFile     = filepath.Join(btcwalletHomeDir, "rpc.cert")
	defaultConfigFile = filepath.Join(btcfwdHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(btcfwdHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(btcfwdHomeDir, defaultLogDirname)
)

// errUsage is returned when the positional arguments are wrong.
var errUsage = &forward.ConfigError{
	Reason: "usage: btcfwd [options] <destination-address> [network]",
}

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string                  `short:"b" long:"datadir" description:"Directory to store wallet storage directories in"`
	LogDir      string                  `long:"logdir" description:"Directory to log output"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// Wallet RPC client options
	RPCConnect       string                  `short:"c" long:"rpcconnect" description:"Hostname/IP and port of btcwallet RPC server to connect to (default localhost:8332, testnet: localhost:18332, simnet: localhost:18554)"`
	RPCUser          string                  `short:"u" long:"rpcuser" description:"Username for btcwallet RPC authentication"`
	RPCPass          string                  `short:"P" long:"rpcpass" default-mask:"-" description:"Password for btcwallet RPC authentication"`
	CAFile           *cfgutil.ExplicitString `long:"cafile" description:"File containing root certificates to authenticate a TLS connection with btcwallet"`
	DisableClientTLS bool                    `long:"noclienttls" description:"Disable TLS for the RPC client -- NOTE: This is only allowed if the RPC client is connecting to localhost"`
	Account          string                  `long:"account" description:"Wallet account whose address deposits are sent to"`
	WalletPass       string                  `long:"walletpass" default-mask:"-" description:"The private wallet passphrase used to sign sweeps"`
	PromptPass       bool                    `long:"promptpass" description:"Prompt for the private wallet passphrase on startup"`

	// Forwarding policy
	MinConf       int32               `long:"minconf" description:"Confirmations a deposit needs before it is forwarded"`
	FeeRate       *cfgutil.AmountFlag `long:"feerate" description:"Fee rate of sweeps per kB, in BTC or with a sat suffix"`
	PollInterval  time.Duration       `long:"pollinterval" description:"Interval between wallet polls"`
	RPCRateLimit  int                 `long:"rpcratelimit" description:"Maximum number of polling RPC calls per second (0 to disable)"`
	RelayTimeout  time.Duration       `long:"relaytimeout" description:"How long to wait for a published sweep to be relayed"`
	SweepExisting bool                `long:"sweepexisting" description:"Also forward outputs held by the wallet at startup"`

	// Notifications and monitoring
	ZMQPubHashBlock string `long:"zmqpubhashblock" description:"bitcoind ZMQ endpoint announcing new blocks (eg. tcp://127.0.0.1:28332)"`
	MetricsListen   string `long:"metricslisten" description:"Listen for Prometheus scrapes on this interface/port (disabled if empty)"`

	// destination is the positional forwarding address.
	destination string

	// activeNet is the network resolved from the positional arguments.
	activeNet *netparams.Params

	// certs holds the contents of CAFile, if it was read.
	certs []byte
}

// defaultConfig returns a config with sane settings.
func defaultConfig() config {
	return config{
		ConfigFile:   cfgutil.NewExplicitString(defaultConfigFile),
		DataDir:      defaultDataDir,
		LogDir:       defaultLogDir,
		DebugLevel:   defaultLogLevel,
		CAFile:       cfgutil.NewExplicitString(defaultCAFile),
		Account:      rpcwallet.DefaultAccount,
		MinConf:      defaultMinConf,
		FeeRate:      cfgutil.NewAmountFlag(txrules.DefaultRelayFeePerKb),
		PollInterval: rpcwallet.DefaultPollInterval,
		RPCRateLimit: rpcwallet.DefaultRateLimit,
		RelayTimeout: forward.DefaultRelayTimeout,
	}
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	return cfgutil.CleanAndExpandPath(path, filepath.Dir(btcfwdHomeDir))
}

// newConfigParser returns a go-flags parser over cfg.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	parser.Usage = "[OPTIONS] <destination-address> [network]"
	return parser
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//  5. Resolve the forwarding address and network from the positional
//     arguments
//
// The above results in btcfwd functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(args []string) (*config, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := newConfigParser(
		&preCfg, flags.HelpFlag|flags.PassDoubleDash,
	)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
		}
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.  A missing default config file is
	// not an error.
	parser := newConfigParser(&cfg, flags.PassDoubleDash)
	configFile := cleanAndExpandPath(preCfg.ConfigFile.Value)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile.ExplicitlySet() {
			return nil, fmt.Errorf("unable to read config file: %w",
				err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}

	if len(remainingArgs) < 1 || len(remainingArgs) > 2 {
		return nil, errUsage
	}
	cfg.destination = remainingArgs[0]

	// Resolve the network.  An explicit network must match the address,
	// otherwise the address decides.
	network := fn.None[*netparams.Params]()
	if len(remainingArgs) == 2 {
		params, err := forward.ParseNetwork(remainingArgs[1])
		if err != nil {
			return nil, err
		}
		network = fn.Some(params)
	}
	_, cfg.activeNet, err = forward.ResolveDestination(
		cfg.destination, network,
	)
	if err != nil {
		return nil, err
	}

	if cfg.MinConf < 1 {
		return nil, &forward.ConfigError{
			Reason: fmt.Sprintf("--minconf must be at least 1, got %d",
				cfg.MinConf),
		}
	}
	if cfg.WalletPass != "" && cfg.PromptPass {
		return nil, &forward.ConfigError{
			Reason: "--walletpass and --promptpass can not be used " +
				"together",
		}
	}

	// Expand environment variable and leading ~ for filepaths.  The log
	// directory is namespaced per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.activeNet.ID)

	if cfg.RPCConnect == "" {
		cfg.RPCConnect = net.JoinHostPort(
			"localhost", cfg.activeNet.RPCServerPort,
		)
	}

	// Add default port to connect flag if missing.
	cfg.RPCConnect, err = cfgutil.NormalizeAddress(
		cfg.RPCConnect, cfg.activeNet.RPCServerPort,
	)
	if err != nil {
		return nil, &forward.ConfigError{
			Reason: "invalid rpcconnect network address",
			Err:    err,
		}
	}

	if cfg.DisableClientTLS {
		if !cfgutil.IsLoopback(cfg.RPCConnect) {
			return nil, &forward.ConfigError{
				Reason: fmt.Sprintf("the --noclienttls option may "+
					"not be used when connecting RPC to non "+
					"localhost addresses: %s", cfg.RPCConnect),
			}
		}
		return &cfg, nil
	}

	// Read the CA certificate.  Without the default one the system roots
	// are used, but an explicitly named file must exist.
	cfg.CAFile.Value = cleanAndExpandPath(cfg.CAFile.Value)
	exists, err := cfgutil.FileExists(cfg.CAFile.Value)
	if err != nil {
		return nil, &forward.ConfigError{
			Reason: "unable to check --cafile",
			Err:    err,
		}
	}
	if !exists {
		if cfg.CAFile.ExplicitlySet() {
			return nil, &forward.ConfigError{
				Reason: fmt.Sprintf("--cafile %s does not exist",
					cfg.CAFile.Value),
			}
		}

		return &cfg, nil
	}

	cfg.certs, err = os.ReadFile(cfg.CAFile.Value)
	if err != nil {
		return nil, &forward.ConfigError{
			Reason: "unable to read --cafile",
			Err:    err,
		}
	}

	return &cfg, nil
}
