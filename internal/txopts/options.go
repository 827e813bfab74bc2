// Package txopts holds the partial transaction parameter set shared by the
// coordinator, the RPC session and the configuration layer.
package txopts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Options is a partial set of transaction parameters. A nil field is "absent"
// and gets completed further down the pipeline (coordinator fills From/Nonce,
// the session fills gas and fees).
type Options struct {
	From      *common.Address
	Nonce     *uint64
	Gas       *uint64
	GasPrice  *big.Int // set => legacy transaction
	GasTipCap *big.Int
	GasFeeCap *big.Int
	Value     *big.Int
	ChainID   *big.Int
}

// Clone returns a deep copy. Big integers and pointers are never shared with o.
func (o Options) Clone() Options {
	out := Options{
		GasPrice:  copyBig(o.GasPrice),
		GasTipCap: copyBig(o.GasTipCap),
		GasFeeCap: copyBig(o.GasFeeCap),
		Value:     copyBig(o.Value),
		ChainID:   copyBig(o.ChainID),
	}
	if o.From != nil {
		from := *o.From
		out.From = &from
	}
	if o.Nonce != nil {
		n := *o.Nonce
		out.Nonce = &n
	}
	if o.Gas != nil {
		g := *o.Gas
		out.Gas = &g
	}
	return out
}

// Merge lays override over base. Fields set in override win; neither argument
// is modified and the result shares no memory with them.
func Merge(base Options, override *Options) Options {
	out := base.Clone()
	if override == nil {
		return out
	}
	o := override.Clone()
	if o.From != nil {
		out.From = o.From
	}
	if o.Nonce != nil {
		out.Nonce = o.Nonce
	}
	if o.Gas != nil {
		out.Gas = o.Gas
	}
	if o.GasPrice != nil {
		out.GasPrice = o.GasPrice
	}
	if o.GasTipCap != nil {
		out.GasTipCap = o.GasTipCap
	}
	if o.GasFeeCap != nil {
		out.GasFeeCap = o.GasFeeCap
	}
	if o.Value != nil {
		out.Value = o.Value
	}
	if o.ChainID != nil {
		out.ChainID = o.ChainID
	}
	return out
}

// WithFrom returns a copy of o with From set to addr.
func (o Options) WithFrom(addr common.Address) Options {
	out := o.Clone()
	out.From = &addr
	return out
}

// WithNonce returns a copy of o with Nonce set to n.
func (o Options) WithNonce(n uint64) Options {
	out := o.Clone()
	out.Nonce = &n
	return out
}

// ValueOrZero never returns nil.
func (o Options) ValueOrZero() *big.Int {
	if o.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(o.Value)
}

func (o Options) String() string {
	parts := make([]string, 0, 8)
	if o.From != nil {
		parts = append(parts, "from="+o.From.Hex())
	}
	if o.Nonce != nil {
		parts = append(parts, fmt.Sprintf("nonce=%d", *o.Nonce))
	}
	if o.Gas != nil {
		parts = append(parts, fmt.Sprintf("gas=%d", *o.Gas))
	}
	if o.GasPrice != nil {
		parts = append(parts, "gasPrice="+o.GasPrice.String())
	}
	if o.GasTipCap != nil {
		parts = append(parts, "tip="+o.GasTipCap.String())
	}
	if o.GasFeeCap != nil {
		parts = append(parts, "feeCap="+o.GasFeeCap.String())
	}
	if o.Value != nil {
		parts = append(parts, "value="+o.Value.String())
	}
	if o.ChainID != nil {
		parts = append(parts, "chainID="+o.ChainID.String())
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

// Uint64 is a helper for building literal Options.
func Uint64(v uint64) *uint64 { return &v }

// Address is a helper for building literal Options.
func Address(a common.Address) *common.Address { return &a }

// GweiToWei converts whole gwei to wei.
func GweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}
