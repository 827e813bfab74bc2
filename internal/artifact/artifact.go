// Package artifact loads compiled contract artifacts (ABI + creation bytecode)
// by logical contract name.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("contract artifact not found")

// Contract is the interface descriptor of one contract. Bytecode is empty for
// artifacts that only describe an interface.
type Contract struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// HasBytecode reports whether the contract can be deployed.
func (c Contract) HasBytecode() bool { return len(c.Bytecode) > 0 }

type artifactJSON struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// Parse decodes one artifact. Both the truffle/hardhat layout
// ({"abi": [...], "bytecode": "0x.."}) and the foundry layout
// ({"bytecode": {"object": "0x.."}}) are accepted.
func Parse(name string, data []byte) (Contract, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Contract{}, fmt.Errorf("artifact %s: %w", name, err)
	}
	if len(raw.ABI) == 0 {
		return Contract{}, fmt.Errorf("artifact %s: missing abi", name)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return Contract{}, fmt.Errorf("artifact %s: abi: %w", name, err)
	}
	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return Contract{}, fmt.Errorf("artifact %s: bytecode: %w", name, err)
	}
	if name == "" {
		name = raw.ContractName
	}
	return Contract{Name: name, ABI: parsed, Bytecode: code}, nil
}

func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err2 := json.Unmarshal(raw, &obj); err2 != nil {
			return nil, err
		}
		s = obj.Object
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	if len(s)%2 != 0 {
		return nil, errors.New("odd length hex")
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return nil, fmt.Errorf("invalid hex character %q (unlinked library?)", r)
		}
	}
	return common.FromHex(s), nil
}

// Provider resolves logical contract names to artifacts stored as
// <name>.json under a directory.
type Provider struct {
	fsys fs.FS
	dir  string
}

// NewProvider reads artifacts from fsys under dir ("." for the root).
func NewProvider(fsys fs.FS, dir string) *Provider {
	if dir == "" {
		dir = "."
	}
	return &Provider{fsys: fsys, dir: dir}
}

// DirProvider reads artifacts from a directory on disk.
func DirProvider(dir string) *Provider {
	return NewProvider(os.DirFS(dir), ".")
}

// Load returns the artifact for name.
func (p *Provider) Load(name string) (Contract, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".json")
	if name == "" || strings.Contains(name, "/") {
		return Contract{}, fmt.Errorf("bad contract name %q", name)
	}
	data, err := fs.ReadFile(p.fsys, path.Join(p.dir, name+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Contract{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Contract{}, err
	}
	return Parse(name, data)
}
