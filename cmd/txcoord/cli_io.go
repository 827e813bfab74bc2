package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

func readPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil { return "" }
	return strings.TrimSpace(string(b))
}

func maskHex(h string) string { h = strings.TrimSpace(h); if len(h) <= 10 { return "***" }; return h[:6] + "…" + h[len(h)-4:] }

func formatEther(v *big.Int) string {
	if v == nil { return "0" }
	s := new(big.Rat).SetFrac(v, big.NewInt(1_000_000_000_000_000_000))
	return s.FloatString(6)
}

// parseETH converts a decimal ETH amount ("1", "0.01", ".5") to wei.
func parseETH(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" { return big.NewInt(0), nil }
	if s[0] == '-' { return nil, fmt.Errorf("negative amount %q", s) }
	s = strings.TrimPrefix(s, "+")
	parts := strings.SplitN(s, ".", 2)
	frac := ""
	if len(parts) == 2 { frac = parts[1] }
	if parts[0] == "" && frac == "" { return nil, fmt.Errorf("invalid amount %q", s) }
	if !isDigits(parts[0]) || !isDigits(frac) { return nil, fmt.Errorf("invalid amount %q", s) }
	if len(frac) > 18 { return nil, fmt.Errorf("amount %q has more than 18 decimals", s) }

	wei := new(big.Int)
	if parts[0] != "" { wei.SetString(parts[0], 10) }
	wei.Mul(wei, big.NewInt(1_000_000_000_000_000_000))
	if frac != "" {
		fracInt, _ := new(big.Int).SetString(frac+strings.Repeat("0", 18-len(frac)), 10)
		wei.Add(wei, fracInt)
	}
	return wei, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' { return false }
	}
	return true
}

func printAccount(ctx context.Context, a *app) {
	acc, ok := a.session.DefaultAccount()
	if !ok {
		return
	}
	bal, err := a.session.Client().BalanceAt(ctx, acc, nil)
	if err != nil {
		fmt.Println("Account :", color.CyanString(acc.Hex()))
		return
	}
	fmt.Println("Account :", color.CyanString(acc.Hex()), "|", formatEther(bal), "ETH")
}
