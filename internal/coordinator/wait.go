package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// WaitForReceipt polls for the receipt of hash. A failed receipt is replayed
// against the parent block to recover the revert reason and reported as
// *TxRevertedError tagged with method.
func (c *Coordinator) WaitForReceipt(ctx context.Context, method string, hash common.Hash, wait WaitOptions) (*types.Receipt, error) {
	wait = c.waitOptions(wait)
	receipt, err := c.waitMined(ctx, method, hash, wait)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		c.logger.Debug("Transaction confirmed", "method", method, "hash", hash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
		return receipt, nil
	}

	reason, err := c.replay(ctx, hash, receipt)
	if err != nil {
		return nil, err
	}
	c.logger.Warn("Transaction reverted", "method", method, "hash", hash, "block", receipt.BlockNumber, "reason", reason)
	return nil, &TxRevertedError{Method: method, Hash: hash, Reason: reason}
}

func (c *Coordinator) waitMined(ctx context.Context, method string, hash common.Hash, wait WaitOptions) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, wait.Timeout)
	defer cancel()

	ticker := time.NewTicker(wait.PollInterval)
	defer ticker.Stop()

	timedOut := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return &ReceiptTimeoutError{Method: method, Hash: hash, Timeout: wait.Timeout}
	}

	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err == nil, errors.Is(err, ethereum.NotFound):
			// still pending
		case waitCtx.Err() != nil:
			return nil, timedOut()
		default:
			return nil, fmt.Errorf("%s: receipt %s: %w", method, hash.Hex(), err)
		}

		select {
		case <-waitCtx.Done():
			return nil, timedOut()
		case <-ticker.C:
		}
	}
}
