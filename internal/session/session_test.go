package session

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/txcoord/internal/txopts"
)

type rpcHandler func(params []json.RawMessage) (any, error)

// fakeNode is a minimal JSON-RPC server answering the methods registered in it.
type fakeNode struct {
	t       *testing.T
	mu      sync.Mutex
	methods map[string]rpcHandler
	calls   []string
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	n := &fakeNode{t: t, methods: map[string]rpcHandler{}}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) handle(method string, h rpcHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods[method] = h
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))

	n.mu.Lock()
	n.calls = append(n.calls, req.Method)
	h, ok := n.methods[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]any{"code": -32601, "message": "method not found: " + req.Method}
	} else if res, err := h(req.Params); err != nil {
		resp["error"] = map[string]any{"code": 3, "message": err.Error()}
	} else {
		resp["result"] = res
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(n.t, json.NewEncoder(w).Encode(resp))
}

func decodeRawTx(t *testing.T, params []json.RawMessage) *types.Transaction {
	var raw hexutil.Bytes
	require.NoError(t, json.Unmarshal(params[0], &raw))
	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))
	return tx
}

func dialFake(t *testing.T, srv *httptest.Server, opts ...Option) *Session {
	s, err := Dial(context.Background(), srv.URL, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSendTransaction_SignsDynamicFeeTx(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	node, srv := newFakeNode(t)
	var sent *types.Transaction
	node.handle("eth_sendRawTransaction", func(p []json.RawMessage) (any, error) {
		sent = decodeRawTx(t, p)
		return sent.Hash(), nil
	})

	s := dialFake(t, srv, WithPrivateKey(key), WithChainID(big.NewInt(1337)))
	to := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	opts := txopts.Options{
		From:      &from,
		Nonce:     txopts.Uint64(5),
		Gas:       txopts.Uint64(50_000),
		GasTipCap: txopts.GweiToWei(1),
		GasFeeCap: txopts.GweiToWei(10),
	}

	hash, err := s.SendTransaction(context.Background(), opts, &to, []byte{0xde, 0xad})
	require.NoError(t, err)
	require.NotNil(t, sent)
	assert.Equal(t, sent.Hash(), hash)
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent.Type())
	assert.Equal(t, uint64(5), sent.Nonce())
	assert.Equal(t, uint64(50_000), sent.Gas())
	assert.Equal(t, to, *sent.To())
	assert.Equal(t, []byte{0xde, 0xad}, sent.Data())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), sent)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
}

func TestSendTransaction_FillsFeesAndGas(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	node, srv := newFakeNode(t)
	node.handle("eth_chainId", func([]json.RawMessage) (any, error) { return "0x539", nil })
	node.handle("eth_maxPriorityFeePerGas", func([]json.RawMessage) (any, error) { return "0x3b9aca00", nil })
	node.handle("eth_feeHistory", func([]json.RawMessage) (any, error) {
		return map[string]any{
			"oldestBlock":   "0x10",
			"baseFeePerGas": []string{"0x3b9aca00", "0x77359400"},
			"gasUsedRatio":  []float64{0.5},
		}, nil
	})
	node.handle("eth_estimateGas", func([]json.RawMessage) (any, error) { return "0x5208", nil })
	var sent *types.Transaction
	node.handle("eth_sendRawTransaction", func(p []json.RawMessage) (any, error) {
		sent = decodeRawTx(t, p)
		return sent.Hash(), nil
	})

	s := dialFake(t, srv, WithPrivateKey(key), WithBaseFeeMul(2))
	_, err = s.SendTransaction(context.Background(), txopts.Options{From: &from, Nonce: txopts.Uint64(0)}, nil, []byte{0x60, 0x00})
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Nil(t, sent.To(), "contract creation")
	assert.Equal(t, uint64(21_000), sent.Gas())
	assert.Equal(t, int64(1337), sent.ChainId().Int64())
	assert.Equal(t, 0, sent.GasTipCap().Cmp(txopts.GweiToWei(1)))
	// feeCap = nextBaseFee(2 gwei)*2 + tip(1 gwei)
	assert.Equal(t, 0, sent.GasFeeCap().Cmp(txopts.GweiToWei(5)))

	// chain id is cached
	_, err = s.ChainID(context.Background())
	require.NoError(t, err)
	chainIDCalls := 0
	for _, c := range node.calls {
		if c == "eth_chainId" {
			chainIDCalls++
		}
	}
	assert.Equal(t, 1, chainIDCalls)
}

func TestSendTransaction_LegacyWhenGasPriceSet(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	node, srv := newFakeNode(t)
	var sent *types.Transaction
	node.handle("eth_sendRawTransaction", func(p []json.RawMessage) (any, error) {
		sent = decodeRawTx(t, p)
		return sent.Hash(), nil
	})

	s := dialFake(t, srv, WithPrivateKey(key), WithChainID(big.NewInt(1)))
	opts := txopts.Options{From: &from, Nonce: txopts.Uint64(1), Gas: txopts.Uint64(21_000), GasPrice: txopts.GweiToWei(7)}
	_, err = s.SendTransaction(context.Background(), opts, &from, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), sent.Type())
	assert.Equal(t, 0, sent.GasPrice().Cmp(txopts.GweiToWei(7)))
}

func TestSendTransaction_Preconditions(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, srv := newFakeNode(t)
	s := dialFake(t, srv, WithPrivateKey(key), WithChainID(big.NewInt(1)))

	other := common.HexToAddress("0x1")
	_, err = s.SendTransaction(context.Background(), txopts.Options{Nonce: txopts.Uint64(0)}, nil, nil)
	require.ErrorIs(t, err, ErrMissingFrom)

	_, err = s.SendTransaction(context.Background(), txopts.Options{From: &other}, nil, nil)
	require.ErrorIs(t, err, ErrMissingNonce)

	_, err = s.SendTransaction(context.Background(), txopts.Options{From: &other, Nonce: txopts.Uint64(0)}, nil, nil)
	require.ErrorIs(t, err, ErrWrongSender)
}

func TestSendTransaction_NodeManagedAccount(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	want := common.HexToHash("0x1234")

	node, srv := newFakeNode(t)
	var args map[string]any
	node.handle("eth_sendTransaction", func(p []json.RawMessage) (any, error) {
		require.NoError(t, json.Unmarshal(p[0], &args))
		return want, nil
	})

	s := dialFake(t, srv, WithAccount(account))
	got, ok := s.DefaultAccount()
	require.True(t, ok)
	require.Equal(t, account, got)

	to := common.HexToAddress("0xbb")
	hash, err := s.SendTransaction(context.Background(), txopts.Options{From: &account, Nonce: txopts.Uint64(9)}, &to, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, want, hash)
	assert.Equal(t, "0x9", args["nonce"])
	assert.Equal(t, "0x01", args["input"])
	assert.NotContains(t, args, "gas")
	assert.NotContains(t, args, "gasPrice")
}

func TestDefaultAccount_None(t *testing.T) {
	_, srv := newFakeNode(t)
	s := dialFake(t, srv)
	_, ok := s.DefaultAccount()
	assert.False(t, ok)
}

func TestPendingNonceAt(t *testing.T) {
	node, srv := newFakeNode(t)
	node.handle("eth_getTransactionCount", func(p []json.RawMessage) (any, error) {
		var tag string
		require.NoError(t, json.Unmarshal(p[1], &tag))
		require.Equal(t, "pending", tag)
		return "0x7", nil
	})
	s := dialFake(t, srv)

	n, err := s.PendingNonceAt(context.Background(), common.HexToAddress("0x1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
}

func TestRecordedTransaction(t *testing.T) {
	node, srv := newFakeNode(t)
	to := common.HexToAddress("0xc0")
	node.handle("eth_getTransactionByHash", func(p []json.RawMessage) (any, error) {
		var h common.Hash
		require.NoError(t, json.Unmarshal(p[0], &h))
		if h == (common.Hash{}) {
			return nil, nil
		}
		return map[string]any{
			"hash":        h,
			"from":        "0x00000000000000000000000000000000000000aa",
			"to":          to,
			"value":       "0x10",
			"input":       "0xabcd",
			"blockNumber": "0x20",
		}, nil
	})
	s := dialFake(t, srv)

	tx, err := s.RecordedTransaction(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xaa"), tx.From)
	assert.Equal(t, to, *tx.To)
	assert.Equal(t, int64(16), tx.Value.Int64())
	assert.Equal(t, []byte{0xab, 0xcd}, tx.Input)
	assert.Equal(t, int64(32), tx.BlockNumber.Int64())

	_, err = s.RecordedTransaction(context.Background(), common.Hash{})
	require.ErrorIs(t, err, ethereum.NotFound)
}

func TestTransactionReceipt_NotFoundWhilePending(t *testing.T) {
	node, srv := newFakeNode(t)
	node.handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, error) { return nil, nil })
	s := dialFake(t, srv)

	_, err := s.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, ethereum.NotFound)
}
