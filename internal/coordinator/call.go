package coordinator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
)

// Call invokes a read-only method from the default account and returns the
// decoded outputs. It never takes the nonce lock.
func (c *Coordinator) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	addr, err := c.Address()
	if err != nil {
		return nil, err
	}
	account, ok := c.backend.DefaultAccount()
	if !ok {
		return nil, ErrNoDefaultAccount
	}
	data, err := c.packMethod(method, args)
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: account, To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}
	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	return vals, nil
}
