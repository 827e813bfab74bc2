package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotDeployed              = errors.New("contract has not been deployed")
	ErrAlreadyDeployed          = errors.New("contract has been deployed")
	ErrDeployInProgress         = errors.New("contract deployment already in progress")
	ErrNoDefaultAccount         = errors.New("the default account is empty")
	ErrReceiptTimeout           = errors.New("timed out waiting for receipt")
	ErrDeploymentAddressMissing = errors.New("deployed contract address is empty")
	ErrTxReverted               = errors.New("transaction reverted")
	ErrUnknownMethod            = errors.New("unknown contract method")
	ErrNoBytecode               = errors.New("contract has no creation bytecode")
)

// TxRevertedError reports a mined transaction with a failed status. Reason is
// best effort and empty when the replay did not reproduce the revert.
type TxRevertedError struct {
	Method string
	Hash   common.Hash
	Reason string
}

func (e *TxRevertedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s (tx %s)", e.Method, ErrTxReverted, e.Hash.Hex())
	}
	return fmt.Sprintf("%s: %s (tx %s): %s", e.Method, ErrTxReverted, e.Hash.Hex(), e.Reason)
}

func (e *TxRevertedError) Is(target error) bool { return target == ErrTxReverted }

// ReceiptTimeoutError means no receipt was observed in time. The transaction
// may still be mined later.
type ReceiptTimeoutError struct {
	Method  string
	Hash    common.Hash
	Timeout time.Duration
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s %s after %s", e.Method, ErrReceiptTimeout, e.Hash.Hex(), e.Timeout)
}

func (e *ReceiptTimeoutError) Is(target error) bool { return target == ErrReceiptTimeout }
