package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ligun0805/txcoord/internal/artifact"
)

var errNotMined = errors.New("transaction is not mined")

// RevertReason replays a mined transaction as a call against the state before
// its block and returns the failure message, or "" if the call succeeds.
func (c *Coordinator) RevertReason(ctx context.Context, hash common.Hash) (string, error) {
	return c.replay(ctx, hash, nil)
}

// replay re-issues the recorded call at (mined block - 1). Only fetching the
// recorded transaction can fail; whatever the replay call returns is the reason.
func (c *Coordinator) replay(ctx context.Context, hash common.Hash, receipt *types.Receipt) (string, error) {
	tx, err := c.backend.RecordedTransaction(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("fetch transaction %s: %w", hash.Hex(), err)
	}
	mined := tx.BlockNumber
	if mined == nil && receipt != nil {
		mined = receipt.BlockNumber
	}
	if mined == nil {
		return "", fmt.Errorf("%w: %s", errNotMined, hash.Hex())
	}
	parent := new(big.Int).Sub(mined, big.NewInt(1))
	if parent.Sign() < 0 {
		parent.SetInt64(0)
	}

	msg := ethereum.CallMsg{
		From:  tx.From,
		To:    tx.To,
		Value: tx.Value,
		Data:  tx.Input,
	}
	if _, err := c.backend.CallContract(ctx, msg, parent); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return c.reasonFromError(err), nil
	}
	return "", nil
}

// reasonFromError keeps the node's message and appends whatever the revert
// data decodes to when the message does not already carry it.
func (c *Coordinator) reasonFromError(err error) string {
	reason := err.Error()
	var de rpc.DataError
	if !errors.As(err, &de) {
		return reason
	}
	data := revertData(de.ErrorData())
	if len(data) < 4 {
		return reason
	}
	decoded := c.decodeRevert(data)
	if decoded == "" || strings.Contains(reason, decoded) {
		return reason
	}
	return reason + ": " + decoded
}

func revertData(v any) []byte {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return nil
		}
		return b
	case []byte:
		return d
	case hexutil.Bytes:
		return d
	}
	return nil
}

// decodeRevert understands Error(string), Panic(uint256) and the contract's
// own custom errors.
func (c *Coordinator) decodeRevert(data []byte) string {
	if s, err := abi.UnpackRevert(data); err == nil {
		return s
	}
	for _, e := range c.abi.Errors {
		if !bytes.Equal(data[:4], e.ID[:4]) {
			continue
		}
		vals, err := e.Unpack(data)
		if err != nil {
			return e.Name
		}
		if list, ok := vals.([]any); ok {
			return e.Name + "(" + artifact.FormatValues(list) + ")"
		}
		return fmt.Sprintf("%s(%v)", e.Name, vals)
	}
	return ""
}
