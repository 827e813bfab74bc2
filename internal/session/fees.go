package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/txcoord/internal/txopts"
)

// feeSet is either a legacy gas price or an EIP-1559 tip/cap pair.
type feeSet struct {
	gasPrice *big.Int
	tip      *big.Int
	feeCap   *big.Int
}

func (f feeSet) legacy() bool { return f.gasPrice != nil }

// fillFees completes fee fields missing from opts. An explicit GasPrice forces
// a legacy transaction; otherwise tip = eth_maxPriorityFeePerGas and
// feeCap = nextBaseFee*baseMul + tip.
func (s *Session) fillFees(ctx context.Context, opts txopts.Options) (feeSet, error) {
	if opts.GasPrice != nil {
		return feeSet{gasPrice: new(big.Int).Set(opts.GasPrice)}, nil
	}
	tip := opts.GasTipCap
	if tip == nil {
		t, err := s.ec.SuggestGasTipCap(ctx)
		if err != nil {
			return feeSet{}, fmt.Errorf("suggest tip: %w", err)
		}
		tip = t
	}
	if opts.GasFeeCap != nil {
		return feeSet{tip: new(big.Int).Set(tip), feeCap: new(big.Int).Set(opts.GasFeeCap)}, nil
	}

	baseFee, err := s.nextBaseFee(ctx)
	if err != nil {
		// pre-London chain: fall back to a legacy price
		price, err2 := s.ec.SuggestGasPrice(ctx)
		if err2 != nil {
			return feeSet{}, fmt.Errorf("suggest gas price: %w", err2)
		}
		s.logger.Debug("No base fee, using legacy gas price", "err", err, "gasPrice", price)
		return feeSet{gasPrice: price}, nil
	}
	feeCap := addBig(mulBig(baseFee, s.baseMul), tip)
	return feeSet{tip: new(big.Int).Set(tip), feeCap: feeCap}, nil
}

// nextBaseFee asks eth_feeHistory for the pending block's base fee and falls
// back to the latest header.
func (s *Session) nextBaseFee(ctx context.Context) (*big.Int, error) {
	var hist struct {
		BaseFeePerGas []*hexutil.Big `json:"baseFeePerGas"`
	}
	err := s.rc.CallContext(ctx, &hist, "eth_feeHistory", hexutil.Uint64(1), "pending", []int{})
	if err == nil && len(hist.BaseFeePerGas) > 0 {
		if last := hist.BaseFeePerGas[len(hist.BaseFeePerGas)-1]; last != nil && last.ToInt().Sign() > 0 {
			return new(big.Int).Set(last.ToInt()), nil
		}
	}
	h, err := s.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	if h.BaseFee == nil {
		return nil, errors.New("no baseFee (pre-1559?)")
	}
	return new(big.Int).Set(h.BaseFee), nil
}

// Build EIP-1559 transaction.
func buildDynamicTx(chain *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) types.TxData {
	return &types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	}
}

func buildLegacyTx(nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) types.TxData {
	return &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(gasPrice),
		Gas:      gasLimit,
		To:       to,
		Value:    new(big.Int).Set(value),
		Data:     data,
	}
}

// Sign transaction with latest signer for given chain ID.
func signTx(txdata types.TxData, chain *big.Int, prv *ecdsa.PrivateKey) (*types.Transaction, error) {
	return types.SignNewTx(prv, types.LatestSignerForChainID(chain), txdata)
}

func mulBig(a *big.Int, m int64) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(a, big.NewInt(m))
}

func addBig(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return new(big.Int).Add(a, b)
}
