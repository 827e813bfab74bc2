package artifact

import (
	"math/big"
	"testing"
	"testing/fstest"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterABI = `[
 {"inputs":[{"internalType":"uint256","name":"start","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"},
 {"inputs":[{"internalType":"uint256","name":"by","type":"uint256"}],"name":"increment","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[],"name":"value","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

func TestParse_HardhatLayout(t *testing.T) {
	c, err := Parse("Counter", []byte(`{"abi":`+counterABI+`,"bytecode":"0x6001600055"}`))
	require.NoError(t, err)
	assert.Equal(t, "Counter", c.Name)
	assert.True(t, c.HasBytecode())
	assert.Equal(t, []byte{0x60, 0x01, 0x60, 0x00, 0x55}, c.Bytecode)
	assert.Contains(t, c.ABI.Methods, "increment")
	assert.Len(t, c.ABI.Constructor.Inputs, 1)
}

func TestParse_FoundryLayout(t *testing.T) {
	c, err := Parse("", []byte(`{"contractName":"Counter","abi":`+counterABI+`,"bytecode":{"object":"6001"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Counter", c.Name)
	assert.Equal(t, []byte{0x60, 0x01}, c.Bytecode)
}

func TestParse_InterfaceOnly(t *testing.T) {
	c, err := Parse("ICounter", []byte(`{"abi":`+counterABI+`,"bytecode":"0x"}`))
	require.NoError(t, err)
	assert.False(t, c.HasBytecode())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("x", []byte(`{"bytecode":"0x00"}`))
	require.ErrorContains(t, err, "missing abi")

	_, err = Parse("x", []byte(`{"abi":`+counterABI+`,"bytecode":"0x60__$lib$___"}`))
	require.ErrorContains(t, err, "unlinked library")

	_, err = Parse("x", []byte(`not json`))
	require.Error(t, err)
}

func TestProvider_Load(t *testing.T) {
	fsys := fstest.MapFS{
		"abi/Counter.json": {Data: []byte(`{"abi":` + counterABI + `,"bytecode":"0x00"}`)},
	}
	p := NewProvider(fsys, "abi")

	c, err := p.Load("Counter")
	require.NoError(t, err)
	assert.Equal(t, "Counter", c.Name)

	_, err = p.Load("Missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = p.Load("../etc/passwd")
	require.Error(t, err)
}

func mustType(t *testing.T, s string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return typ
}

func TestCoerce_Scalars(t *testing.T) {
	v, err := Coerce(mustType(t, "address"), "0x00000000000000000000000000000000000000ff")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xff"), v)

	v, err = Coerce(mustType(t, "uint256"), "1000000000000000000000")
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(v.(*big.Int)))

	v, err = Coerce(mustType(t, "uint8"), "0x10")
	require.NoError(t, err)
	assert.Equal(t, uint8(16), v)

	v, err = Coerce(mustType(t, "int64"), "-5")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)

	v, err = Coerce(mustType(t, "bool"), "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Coerce(mustType(t, "bytes4"), "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0xde, 0xad, 0xbe, 0xef}, v)

	v, err = Coerce(mustType(t, "bytes"), "0x0102")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, v)
}

func TestCoerce_Rejects(t *testing.T) {
	_, err := Coerce(mustType(t, "uint8"), "256")
	require.ErrorContains(t, err, "overflows")

	_, err = Coerce(mustType(t, "uint256"), "-1")
	require.ErrorContains(t, err, "negative")

	_, err = Coerce(mustType(t, "address"), "bob")
	require.Error(t, err)

	_, err = Coerce(mustType(t, "bytes4"), "0x01")
	require.Error(t, err)
}

func TestCoerce_SignedBounds(t *testing.T) {
	int8Ty := mustType(t, "int8")
	for in, want := range map[string]int8{"-128": -128, "127": 127, "0": 0} {
		v, err := Coerce(int8Ty, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v)
	}
	for _, in := range []string{"128", "-129"} {
		_, err := Coerce(int8Ty, in)
		require.ErrorContains(t, err, "overflows", in)
	}

	int256Ty := mustType(t, "int256")
	minInt256 := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	v, err := Coerce(int256Ty, minInt256.String())
	require.NoError(t, err)
	assert.Equal(t, 0, minInt256.Cmp(v.(*big.Int)))

	_, err = Coerce(int256Ty, new(big.Int).Lsh(big.NewInt(1), 255).String())
	require.ErrorContains(t, err, "overflows")
}

func TestCoerce_Lists(t *testing.T) {
	v, err := Coerce(mustType(t, "address[]"), `["0x0000000000000000000000000000000000000001","0x0000000000000000000000000000000000000002"]`)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}, v)

	v, err = Coerce(mustType(t, "uint16[2]"), `[1, "0x02"]`)
	require.NoError(t, err)
	assert.Equal(t, [2]uint16{1, 2}, v)

	_, err = Coerce(mustType(t, "uint16[2]"), `[1]`)
	require.Error(t, err)
}

func TestCoerceArgs_PacksWithABI(t *testing.T) {
	c, err := Parse("Counter", []byte(`{"abi":`+counterABI+`,"bytecode":"0x00"}`))
	require.NoError(t, err)

	args, err := CoerceArgs(c.ABI.Methods["increment"].Inputs, []string{"42"})
	require.NoError(t, err)
	_, err = c.ABI.Pack("increment", args...)
	require.NoError(t, err)

	_, err = CoerceArgs(c.ABI.Methods["increment"].Inputs, nil)
	require.ErrorContains(t, err, "argument count mismatch")
}

func TestFormatValues(t *testing.T) {
	s := FormatValues([]any{big.NewInt(3), common.HexToAddress("0x1"), []byte{0xab}, [2]byte{1, 2}, true})
	assert.Equal(t, "3, 0x0000000000000000000000000000000000000001, 0xab, 0x0102, true", s)
}
