package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ligun0805/txcoord/internal/artifact"
	"github.com/ligun0805/txcoord/internal/config"
	"github.com/ligun0805/txcoord/internal/coordinator"
	"github.com/ligun0805/txcoord/internal/session"
)

type rootFlags struct {
	rpcURL    string
	artifacts string
	timeout   time.Duration
	poll      time.Duration
	verbose   bool
}

// app is what every subcommand needs once flags and env are resolved.
type app struct {
	settings  config.Settings
	session   *session.Session
	contracts *artifact.Provider
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "txcoord",
		Short: "Deploy and drive contracts with nonce-serialized transactions",
		Long: `txcoord deploys contracts, submits state-changing calls and performs
read-only calls against an Ethereum JSON-RPC node.

Settings come from the environment (.env and .env.local are loaded first);
flags override them.

Examples:
  # Deploy a contract from ./abi/Counter.json with constructor arg 5
  txcoord deploy Counter 5

  # Call a mutating method and wait for the receipt
  txcoord transact Counter 0x5FbDB2315678afecb367f032d93F642f64180aa3 increment 1

  # Recover the revert reason of a failed transaction
  txcoord reason 0x9c1f...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.rpcURL, "rpc", "", "RPC endpoint URL (env RPC_URL)")
	pf.StringVar(&flags.artifacts, "artifacts", "", "Directory with compiled contract artifacts (env ARTIFACTS_DIR)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Receipt wait timeout (env RECEIPT_TIMEOUT_MS)")
	pf.DurationVar(&flags.poll, "poll", 0, "Receipt poll interval (env RECEIPT_POLL_MS)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log submissions and receipts")

	cmd.AddCommand(
		newDeployCmd(flags),
		newTransactCmd(flags),
		newCallCmd(flags),
		newReasonCmd(flags),
	)
	return cmd
}

func setupLogging(verbose bool) {
	lvl := log.LevelWarn
	if verbose {
		lvl = log.LevelDebug
	}
	useColor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	out := colorable.NewColorableStderr()
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(out, lvl, useColor)))
}

func (f *rootFlags) settings() config.Settings {
	st := config.Load()
	if f.rpcURL != "" { st.RPCURL = f.rpcURL }
	if f.artifacts != "" { st.ArtifactsDir = f.artifacts }
	if f.timeout > 0 { st.ReceiptTimeout = f.timeout }
	if f.poll > 0 { st.PollInterval = f.poll }
	return st
}

// open resolves settings, picks the sending account and dials the node.
func (f *rootFlags) open(ctx context.Context, needSender bool) (*app, error) {
	setupLogging(f.verbose)
	st := f.settings()

	opts := []session.Option{session.WithBaseFeeMul(st.BaseFeeMul)}
	if id, ok := st.ChainIDBig(); ok {
		opts = append(opts, session.WithChainID(id))
	}

	pk := st.PrivateKeyHex
	_, hasFrom := st.From()
	if pk == "" && !hasFrom && needSender && isatty.IsTerminal(os.Stdin.Fd()) {
		pk = readPassword("Private key (hex): ")
	}
	switch {
	case pk != "":
		key, err := session.HexToECDSA(pk)
		if err != nil {
			return nil, fmt.Errorf("private key %s: %w", maskHex(pk), err)
		}
		opts = append(opts, session.WithPrivateKey(key))
	case hasFrom:
		from, _ := st.From()
		opts = append(opts, session.WithAccount(from))
	}

	sess, err := session.Dial(ctx, st.RPCURL, opts...)
	if err != nil {
		return nil, err
	}
	return &app{settings: st, session: sess, contracts: artifact.DirProvider(st.ArtifactsDir)}, nil
}

func (a *app) Close() { a.session.Close() }

// coordinator binds contract name at address; a nil address means undeployed.
func (a *app) coordinator(name string, address *common.Address) (*coordinator.Coordinator, error) {
	contract, err := a.contracts.Load(name)
	if err != nil {
		return nil, err
	}
	return coordinator.New(a.session, contract, address,
		coordinator.WithDefaults(a.settings.TxDefaults),
		coordinator.WithTimeout(a.settings.ReceiptTimeout),
		coordinator.WithPollInterval(a.settings.PollInterval),
	)
}
