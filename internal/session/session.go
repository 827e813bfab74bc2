// Package session is the go-ethereum backed RPC session used by the
// coordinator: nonces, submission, receipts, recorded transactions and
// read-only calls against one node.
package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ligun0805/txcoord/internal/txopts"
)

var (
	ErrMissingFrom  = errors.New("transaction has no sender")
	ErrMissingNonce = errors.New("transaction has no nonce")
	ErrWrongSender  = errors.New("sender does not match signing key")
)

// Session talks to one node. With a private key it signs locally and sends raw
// transactions, otherwise it relies on a node-managed account and
// eth_sendTransaction.
type Session struct {
	rc *rpc.Client
	ec *ethclient.Client

	key     *ecdsa.PrivateKey
	account *common.Address
	baseMul int64
	logger  log.Logger

	mu      sync.Mutex
	chainID *big.Int
}

type Option func(*Session)

// WithPrivateKey makes the key's address the default account and signs locally.
func WithPrivateKey(key *ecdsa.PrivateKey) Option {
	return func(s *Session) { s.key = key }
}

// WithAccount sets a node-managed default account.
func WithAccount(addr common.Address) Option {
	return func(s *Session) { s.account = &addr }
}

// WithBaseFeeMul sets the multiplier used for feeCap = baseFee*mul + tip.
func WithBaseFeeMul(mul int64) Option {
	return func(s *Session) {
		if mul > 0 {
			s.baseMul = mul
		}
	}
}

// WithChainID skips the eth_chainId lookup.
func WithChainID(id *big.Int) Option {
	return func(s *Session) {
		if id != nil {
			s.chainID = new(big.Int).Set(id)
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// Dial connects to rawurl (http, ws or ipc).
func Dial(ctx context.Context, rawurl string, opts ...Option) (*Session, error) {
	rc, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return New(rc, opts...), nil
}

// New wraps an existing RPC client.
func New(rc *rpc.Client, opts ...Option) *Session {
	s := &Session{
		rc:      rc,
		ec:      ethclient.NewClient(rc),
		baseMul: 2,
		logger:  log.Root(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HexToECDSA parses a hex private key with or without 0x.
func HexToECDSA(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(h) == 0 {
		return nil, errors.New("empty private key")
	}
	return gethcrypto.HexToECDSA(h)
}

// Close releases the underlying connection.
func (s *Session) Close() { s.rc.Close() }

// Client exposes the ethclient for callers needing more than the session.
func (s *Session) Client() *ethclient.Client { return s.ec }

// DefaultAccount returns the sending account, if one is configured.
func (s *Session) DefaultAccount() (common.Address, bool) {
	if s.key != nil {
		return gethcrypto.PubkeyToAddress(s.key.PublicKey), true
	}
	if s.account != nil {
		return *s.account, true
	}
	return common.Address{}, false
}

// ChainID returns the node's chain ID, cached after the first query.
func (s *Session) ChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return new(big.Int).Set(s.chainID), nil
	}
	id, err := s.ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	s.chainID = id
	return new(big.Int).Set(id), nil
}

// PendingNonceAt returns the account's transaction count in the pending state.
func (s *Session) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return s.ec.PendingNonceAt(ctx, account)
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (s *Session) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return s.ec.TransactionReceipt(ctx, hash)
}

// CallContract executes a read-only call at block (nil = latest).
func (s *Session) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return s.ec.CallContract(ctx, msg, block)
}

// SendTransaction submits a contract creation (to == nil) or a call. opts must
// carry From and Nonce; missing gas and fee fields are filled here.
func (s *Session) SendTransaction(ctx context.Context, opts txopts.Options, to *common.Address, data []byte) (common.Hash, error) {
	if opts.From == nil {
		return common.Hash{}, ErrMissingFrom
	}
	if opts.Nonce == nil {
		return common.Hash{}, ErrMissingNonce
	}
	if s.key == nil {
		return s.sendViaNode(ctx, opts, to, data)
	}
	if addr := gethcrypto.PubkeyToAddress(s.key.PublicKey); addr != *opts.From {
		return common.Hash{}, fmt.Errorf("%w: from=%s key=%s", ErrWrongSender, opts.From.Hex(), addr.Hex())
	}

	chainID := opts.ChainID
	if chainID == nil {
		id, err := s.ChainID(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		chainID = id
	}
	fees, err := s.fillFees(ctx, opts)
	if err != nil {
		return common.Hash{}, err
	}
	gas, err := s.gasLimit(ctx, opts, fees, to, data)
	if err != nil {
		return common.Hash{}, err
	}

	var txdata types.TxData
	if fees.legacy() {
		txdata = buildLegacyTx(*opts.Nonce, to, opts.ValueOrZero(), gas, fees.gasPrice, data)
	} else {
		txdata = buildDynamicTx(chainID, *opts.Nonce, to, opts.ValueOrZero(), gas, fees.tip, fees.feeCap, data)
	}
	signed, err := signTx(txdata, chainID, s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := s.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	s.logger.Debug("Submitted transaction", "hash", signed.Hash(), "from", opts.From, "nonce", *opts.Nonce, "gas", gas, "create", to == nil)
	return signed.Hash(), nil
}

func (s *Session) gasLimit(ctx context.Context, opts txopts.Options, fees feeSet, to *common.Address, data []byte) (uint64, error) {
	if opts.Gas != nil {
		return *opts.Gas, nil
	}
	msg := ethereum.CallMsg{
		From:  *opts.From,
		To:    to,
		Value: opts.ValueOrZero(),
		Data:  data,
	}
	if fees.legacy() {
		msg.GasPrice = fees.gasPrice
	} else {
		msg.GasTipCap = fees.tip
		msg.GasFeeCap = fees.feeCap
	}
	gas, err := s.ec.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas, nil
}

// RecordedTransaction returns the recorded fields of a transaction, or
// ethereum.NotFound.
func (s *Session) RecordedTransaction(ctx context.Context, hash common.Hash) (*RecordedTx, error) {
	var raw *rpcTransaction
	if err := s.rc.CallContext(ctx, &raw, "eth_getTransactionByHash", hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ethereum.NotFound
	}
	return raw.recorded(), nil
}
