package session

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ligun0805/txcoord/internal/txopts"
)

// RecordedTx holds the fields of a submitted transaction needed to replay it
// as a call. BlockNumber is nil while the transaction is pending.
type RecordedTx struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address
	Value       *big.Int
	Input       []byte
	BlockNumber *big.Int
}

// ===== eth_getTransactionByHash =====
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Input       hexutil.Bytes   `json:"input"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
}

func (t *rpcTransaction) recorded() *RecordedTx {
	out := &RecordedTx{
		Hash:  t.Hash,
		From:  t.From,
		To:    t.To,
		Value: new(big.Int),
		Input: []byte(t.Input),
	}
	if t.Value != nil {
		out.Value.Set(t.Value.ToInt())
	}
	if t.BlockNumber != nil {
		out.BlockNumber = new(big.Int).Set(t.BlockNumber.ToInt())
	}
	return out
}

// ===== eth_sendTransaction (node-managed account) =====
type sendTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Input                hexutil.Bytes   `json:"input,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

// sendViaNode leaves unset gas and fee fields to the node.
func (s *Session) sendViaNode(ctx context.Context, opts txopts.Options, to *common.Address, data []byte) (common.Hash, error) {
	args := sendTxArgs{
		From:                 *opts.From,
		To:                   to,
		Nonce:                hexutil.Uint64(*opts.Nonce),
		GasPrice:             (*hexutil.Big)(opts.GasPrice),
		MaxFeePerGas:         (*hexutil.Big)(opts.GasFeeCap),
		MaxPriorityFeePerGas: (*hexutil.Big)(opts.GasTipCap),
		Value:                (*hexutil.Big)(opts.Value),
		Input:                data,
		ChainID:              (*hexutil.Big)(opts.ChainID),
	}
	if opts.Gas != nil {
		g := hexutil.Uint64(*opts.Gas)
		args.Gas = &g
	}
	var hash common.Hash
	if err := s.rc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	s.logger.Debug("Submitted transaction via node account", "hash", hash, "from", opts.From, "nonce", *opts.Nonce, "create", to == nil)
	return hash, nil
}
