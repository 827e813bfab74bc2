package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ligun0805/txcoord/internal/artifact"
	"github.com/ligun0805/txcoord/internal/coordinator"
	"github.com/ligun0805/txcoord/internal/txopts"
)

// txFlags are per-call transaction overrides on top of the env defaults.
type txFlags struct {
	gas   uint64
	nonce int64
	value string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&f.gas, "gas", 0, "Gas limit (estimated when 0)")
	cmd.Flags().Int64Var(&f.nonce, "nonce", -1, "Explicit nonce (pending nonce when negative)")
	cmd.Flags().StringVar(&f.value, "value", "", "Value to send in ETH, e.g. 0.01")
}

func (f *txFlags) options() (*txopts.Options, error) {
	opts := &txopts.Options{}
	if f.gas > 0 { opts.Gas = txopts.Uint64(f.gas) }
	if f.nonce >= 0 { opts.Nonce = txopts.Uint64(uint64(f.nonce)) }
	if f.value != "" {
		v, err := parseETH(f.value)
		if err != nil {
			return nil, fmt.Errorf("--value: %w", err)
		}
		opts.Value = v
	}
	return opts, nil
}

func newDeployCmd(root *rootFlags) *cobra.Command {
	tf := &txFlags{}
	cmd := &cobra.Command{
		Use:   "deploy <contract> [args...]",
		Short: "Deploy a contract and print its address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			txOpts, err := tf.options()
			if err != nil {
				return err
			}
			a, err := root.open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()
			printAccount(ctx, a)

			c, err := a.coordinator(args[0], nil)
			if err != nil {
				return err
			}
			ctorArgs, err := artifact.CoerceArgs(c.ABI().Constructor.Inputs, args[1:])
			if err != nil {
				return fmt.Errorf("constructor args: %w", err)
			}
			if err := c.Deploy(ctx, txOpts, ctorArgs...); err != nil {
				return reportTxError(err)
			}
			addr, _ := c.Address()
			fmt.Println("Deployed:", c.Name(), "at", color.GreenString(addr.Hex()))
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newTransactCmd(root *rootFlags) *cobra.Command {
	tf := &txFlags{}
	cmd := &cobra.Command{
		Use:   "transact <contract> <address> <method> [args...]",
		Short: "Send a state-changing call and wait for its receipt",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			txOpts, err := tf.options()
			if err != nil {
				return err
			}
			a, c, err := root.bind(ctx, args[0], args[1], true)
			if err != nil {
				return err
			}
			defer a.Close()
			printAccount(ctx, a)

			method, ok := c.ABI().Methods[args[2]]
			if !ok {
				return fmt.Errorf("%w: %s.%s", coordinator.ErrUnknownMethod, args[0], args[2])
			}
			vals, err := artifact.CoerceArgs(method.Inputs, args[3:])
			if err != nil {
				return fmt.Errorf("%s args: %w", method.Name, err)
			}
			receipt, err := c.Transact(ctx, method.Name, txOpts, vals...)
			if err != nil {
				return reportTxError(err)
			}
			printReceipt(receipt)
			return nil
		},
	}
	tf.register(cmd)
	return cmd
}

func newCallCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <contract> <address> <method> [args...]",
		Short: "Run a read-only call and print the decoded result",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, c, err := root.bind(ctx, args[0], args[1], false)
			if err != nil {
				return err
			}
			defer a.Close()

			method, ok := c.ABI().Methods[args[2]]
			if !ok {
				return fmt.Errorf("%w: %s.%s", coordinator.ErrUnknownMethod, args[0], args[2])
			}
			vals, err := artifact.CoerceArgs(method.Inputs, args[3:])
			if err != nil {
				return fmt.Errorf("%s args: %w", method.Name, err)
			}
			out, err := c.Call(ctx, method.Name, vals...)
			if err != nil {
				return err
			}
			fmt.Println(artifact.FormatValues(out))
			return nil
		},
	}
}

func newReasonCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reason <txhash> [contract]",
		Short: "Replay a mined transaction and print why it reverted",
		Long: `Replays the transaction as a call at the block before it was mined.
When a contract name is given its custom errors are decoded too.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := root.open(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			hash := common.HexToHash(args[0])
			tx, err := a.session.RecordedTransaction(ctx, hash)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", hash.Hex(), err)
			}
			to := common.Address{}
			if tx.To != nil {
				to = *tx.To
			}
			contract := artifact.Contract{Name: "unknown"}
			if len(args) == 2 {
				if contract, err = a.contracts.Load(args[1]); err != nil {
					return err
				}
			}
			c, err := coordinator.New(a.session, contract, &to)
			if err != nil {
				return err
			}
			reason, err := c.RevertReason(ctx, hash)
			if err != nil {
				return err
			}
			if reason == "" {
				fmt.Println(color.GreenString("Replay succeeded, no revert reason"))
				return nil
			}
			fmt.Println("Reason:", color.RedString(reason))
			return nil
		},
	}
}

// bind opens the session and binds contract name at hexAddr.
func (f *rootFlags) bind(ctx context.Context, name, hexAddr string, needSender bool) (*app, *coordinator.Coordinator, error) {
	if !common.IsHexAddress(hexAddr) {
		return nil, nil, fmt.Errorf("invalid contract address %q", hexAddr)
	}
	addr := common.HexToAddress(hexAddr)
	a, err := f.open(ctx, needSender)
	if err != nil {
		return nil, nil, err
	}
	c, err := a.coordinator(name, &addr)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, c, nil
}

func printReceipt(r *types.Receipt) {
	fmt.Println("Tx      :", r.TxHash.Hex())
	fmt.Println("Block   :", r.BlockNumber)
	fmt.Println("Gas used:", r.GasUsed)
	fmt.Println("Status  :", color.GreenString("success"))
}

func reportTxError(err error) error {
	var reverted *coordinator.TxRevertedError
	if errors.As(err, &reverted) {
		fmt.Println("Tx      :", reverted.Hash.Hex())
		fmt.Println("Status  :", color.RedString("reverted"))
		if reverted.Reason != "" {
			fmt.Println("Reason  :", color.RedString(reverted.Reason))
		}
	}
	var timeout *coordinator.ReceiptTimeoutError
	if errors.As(err, &timeout) {
		fmt.Println("Tx      :", timeout.Hash.Hex())
		fmt.Println("Status  :", color.YellowString("pending after %s", timeout.Timeout))
	}
	return err
}
