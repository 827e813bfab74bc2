package config

import (
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/txcoord/internal/txopts"
)

// Settings keeps all configuration options.
// Every key is accepted in UPPER_CASE and lower_case form.
type Settings struct {
	RPCURL        string
	ChainID       string // optional, queried from the node when empty
	PrivateKeyHex string
	FromAddress   string // node-managed account when no private key is set
	ArtifactsDir  string

	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	BaseFeeMul     int64

	// process-wide default transaction options
	TxGas         uint64
	TxGasPriceWei *big.Int
	TxTipWei      *big.Int
	TxFeeCapWei   *big.Int
	TxValueWei    *big.Int
}

const (
	DefaultReceiptTimeout = 120 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
)

// Load reads settings from the environment.
func Load() Settings {
	return load(os.Getenv)
}

func load(getenv func(string) string) Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" { return v }
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.ParseInt(s, 10, 64); err == nil { return n }
		return def
	}
	getUint64 := func(keys []string, def uint64) uint64 {
		s := get(keys, "")
		if s == "" { return def }
		if n, err := strconv.ParseUint(s, 10, 64); err == nil { return n }
		return def
	}
	getMillis := func(keys []string, def time.Duration) time.Duration {
		ms := getInt64(keys, -1)
		if ms <= 0 { return def }
		return time.Duration(ms) * time.Millisecond
	}
	getGwei := func(keys []string) *big.Int {
		g := getInt64(keys, -1)
		if g < 0 { return nil }
		return txopts.GweiToWei(g)
	}
	getWei := func(keys []string) *big.Int {
		s := get(keys, "")
		if s == "" { return nil }
		v, ok := parseBig(s)
		if !ok { return nil }
		return v
	}

	st := Settings{}
	st.RPCURL        = get([]string{"rpc_url", "RPC_URL"}, "http://127.0.0.1:8545")
	st.ChainID       = get([]string{"chain_id", "CHAIN_ID"}, "")
	st.PrivateKeyHex = get([]string{"private_key", "PRIVATE_KEY"}, "")
	st.FromAddress   = get([]string{"from_address", "FROM_ADDRESS"}, "")
	st.ArtifactsDir  = get([]string{"artifacts_dir", "ARTIFACTS_DIR"}, "abi")

	st.ReceiptTimeout = getMillis([]string{"receipt_timeout_ms", "RECEIPT_TIMEOUT_MS"}, DefaultReceiptTimeout)
	st.PollInterval   = getMillis([]string{"receipt_poll_ms", "RECEIPT_POLL_MS"}, DefaultPollInterval)
	st.BaseFeeMul     = getInt64([]string{"basefee_mul", "BASEFEE_MUL"}, 2)

	st.TxGas         = getUint64([]string{"tx_gas", "TX_GAS"}, 0)
	st.TxGasPriceWei = getGwei([]string{"tx_gas_price_gwei", "TX_GAS_PRICE_GWEI"})
	st.TxTipWei      = getGwei([]string{"tx_tip_gwei", "TX_TIP_GWEI"})
	st.TxFeeCapWei   = getGwei([]string{"tx_fee_cap_gwei", "TX_FEE_CAP_GWEI"})
	st.TxValueWei    = getWei([]string{"tx_value_wei", "TX_VALUE_WEI"})

	return st
}

// TxDefaults returns the process-wide default transaction options. Every call
// returns a fresh value, callers may modify it freely.
func (st Settings) TxDefaults() txopts.Options {
	var o txopts.Options
	if st.TxGas > 0 { o.Gas = txopts.Uint64(st.TxGas) }
	o.GasPrice  = copyBig(st.TxGasPriceWei)
	o.GasTipCap = copyBig(st.TxTipWei)
	o.GasFeeCap = copyBig(st.TxFeeCapWei)
	o.Value     = copyBig(st.TxValueWei)
	if id, ok := st.ChainIDBig(); ok { o.ChainID = id }
	return o
}

// ChainIDBig parses ChainID (decimal or 0x-hex).
func (st Settings) ChainIDBig() (*big.Int, bool) {
	if st.ChainID == "" { return nil, false }
	return parseBig(st.ChainID)
}

// From returns the configured node-managed account, if any.
func (st Settings) From() (common.Address, bool) {
	if !common.IsHexAddress(st.FromAddress) { return common.Address{}, false }
	return common.HexToAddress(st.FromAddress), true
}

func parseBig(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

func copyBig(x *big.Int) *big.Int {
	if x == nil { return nil }
	return new(big.Int).Set(x)
}
