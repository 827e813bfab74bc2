package coordinator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/txcoord/internal/txopts"
)

func (c *Coordinator) lockNonce(ctx context.Context) error {
	select {
	case c.nonceLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) unlockNonce() { <-c.nonceLock }

// submit resolves options, assigns From/Nonce and sends the transaction. The
// nonce lock is held only for the fetch-and-send section.
func (c *Coordinator) submit(ctx context.Context, method string, opts *txopts.Options, to *common.Address, data []byte) (common.Hash, error) {
	account, ok := c.backend.DefaultAccount()
	if !ok {
		return common.Hash{}, ErrNoDefaultAccount
	}
	eff := txopts.Merge(c.defaults(), opts)

	if err := c.lockNonce(ctx); err != nil {
		return common.Hash{}, err
	}
	defer c.unlockNonce()

	if eff.Nonce == nil {
		nonce, err := c.backend.PendingNonceAt(ctx, account)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%s: pending nonce: %w", method, err)
		}
		eff = eff.WithNonce(nonce)
	}
	if eff.From == nil {
		eff = eff.WithFrom(account)
	}
	hash, err := c.backend.SendTransaction(ctx, eff, to, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: send: %w", method, err)
	}
	c.logger.Debug("Transaction submitted", "method", method, "hash", hash, "opts", eff)
	return hash, nil
}

// Deploy creates the contract with constructor args and binds the coordinator
// to the new address. opts may be nil.
func (c *Coordinator) Deploy(ctx context.Context, opts *txopts.Options, args ...any) error {
	return c.DeployWait(ctx, WaitOptions{}, opts, args...)
}

// DeployWait is Deploy with an explicit receipt wait.
func (c *Coordinator) DeployWait(ctx context.Context, wait WaitOptions, opts *txopts.Options, args ...any) error {
	// flag before state, so a deploy finishing in between is seen as Deployed
	if !c.deploying.CompareAndSwap(false, true) {
		if c.Deployed() {
			return ErrAlreadyDeployed
		}
		return ErrDeployInProgress
	}
	defer c.deploying.Store(false)

	cur := c.state.Load()
	pending, ok := (*cur).(undeployedState)
	if !ok {
		return ErrAlreadyDeployed
	}

	input, err := c.abi.Pack("", args...)
	if err != nil {
		return fmt.Errorf("deploy: pack constructor args: %w", err)
	}
	data := make([]byte, 0, len(pending.bytecode)+len(input))
	data = append(data, pending.bytecode...)
	data = append(data, input...)

	hash, err := c.submit(ctx, "deploy", opts, nil, data)
	if err != nil {
		return err
	}
	receipt, err := c.WaitForReceipt(ctx, "deploy", hash, wait)
	if err != nil {
		return err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return fmt.Errorf("%w (tx %s)", ErrDeploymentAddressMissing, hash.Hex())
	}

	var next contractState = deployedState{address: receipt.ContractAddress}
	if !c.state.CompareAndSwap(cur, &next) {
		return ErrAlreadyDeployed
	}
	c.logger.Info("Contract deployed", "address", receipt.ContractAddress, "tx", hash, "block", receipt.BlockNumber)
	return nil
}

// Transact invokes a state-changing method and waits for its receipt with the
// coordinator's default timeout and poll interval.
func (c *Coordinator) Transact(ctx context.Context, method string, opts *txopts.Options, args ...any) (*types.Receipt, error) {
	return c.TransactWait(ctx, method, WaitOptions{}, opts, args...)
}

// TransactWait is Transact with an explicit receipt wait.
func (c *Coordinator) TransactWait(ctx context.Context, method string, wait WaitOptions, opts *txopts.Options, args ...any) (*types.Receipt, error) {
	addr, err := c.Address()
	if err != nil {
		return nil, err
	}
	data, err := c.packMethod(method, args)
	if err != nil {
		return nil, err
	}
	hash, err := c.submit(ctx, method, opts, &addr, data)
	if err != nil {
		return nil, err
	}
	return c.WaitForReceipt(ctx, method, hash, wait)
}

func (c *Coordinator) packMethod(method string, args []any) ([]byte, error) {
	if _, ok := c.abi.Methods[method]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, c.name, method)
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack args: %w", method, err)
	}
	return data, nil
}
