package artifact

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// CoerceArgs converts textual arguments (as typed on a command line) into the
// Go values abi.Pack expects for args. Slices and arrays are given as JSON
// arrays, e.g. ["0x01","0x02"].
func CoerceArgs(args abi.Arguments, raw []string) ([]any, error) {
	if len(args) != len(raw) {
		return nil, fmt.Errorf("argument count mismatch: want %d, got %d", len(args), len(raw))
	}
	out := make([]any, len(raw))
	for i, a := range args {
		v, err := Coerce(a.Type, raw[i])
		if err != nil {
			name := a.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("arg %s (%s): %w", name, a.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

// Coerce converts one textual value to the Go type matching t.
func Coerce(t abi.Type, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("not an address: %q", s)
		}
		return common.HexToAddress(s), nil
	case abi.BoolTy:
		return strconv.ParseBool(s)
	case abi.StringTy:
		return s, nil
	case abi.BytesTy:
		return hexBytes(s)
	case abi.FixedBytesTy:
		b, err := hexBytes(s)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(b))
		}
		rv := reflect.New(t.GetType()).Elem()
		reflect.Copy(rv, reflect.ValueOf(b))
		return rv.Interface(), nil
	case abi.IntTy, abi.UintTy:
		return coerceInteger(t, s)
	case abi.SliceTy, abi.ArrayTy:
		return coerceList(t, s)
	}
	return nil, fmt.Errorf("unsupported type %s", t.String())
}

func hexBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("bytes must be 0x-prefixed hex: %q", s)
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd length hex: %q", s)
	}
	return common.FromHex(s), nil
}

func coerceInteger(t abi.Type, s string) (any, error) {
	v, ok := new(big.Int), false
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok = v.SetString(s[2:], 16)
	} else {
		v, ok = v.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("not an integer: %q", s)
	}
	if t.T == abi.UintTy {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("negative value for unsigned type")
		}
		if v.BitLen() > t.Size {
			return nil, fmt.Errorf("value overflows uint%d", t.Size)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if v.Cmp(new(big.Int).Neg(limit)) < 0 || v.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("value overflows int%d", t.Size)
		}
	}

	rt := t.GetType()
	if rt == bigIntType {
		return v, nil
	}
	rv := reflect.New(rt).Elem()
	if t.T == abi.UintTy {
		rv.SetUint(v.Uint64())
	} else {
		rv.SetInt(v.Int64())
	}
	return rv.Interface(), nil
}

func coerceList(t abi.Type, s string) (any, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("want JSON array: %w", err)
	}
	if t.T == abi.ArrayTy && len(items) != t.Size {
		return nil, fmt.Errorf("want %d elements, got %d", t.Size, len(items))
	}

	var rv reflect.Value
	if t.T == abi.SliceTy {
		rv = reflect.MakeSlice(t.GetType(), len(items), len(items))
	} else {
		rv = reflect.New(t.GetType()).Elem()
	}
	for i, item := range items {
		text := string(item)
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			text = str
		}
		v, err := Coerce(*t.Elem, text)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		rv.Index(i).Set(reflect.ValueOf(v))
	}
	return rv.Interface(), nil
}

// FormatValues renders decoded call results for display.
func FormatValues(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case []byte:
			parts[i] = "0x" + common.Bytes2Hex(x)
		case common.Address:
			parts[i] = x.Hex()
		case fmt.Stringer:
			parts[i] = x.String()
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
				b := make([]byte, rv.Len())
				for j := range b {
					b[j] = byte(rv.Index(j).Uint())
				}
				parts[i] = "0x" + common.Bytes2Hex(b)
				continue
			}
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, ", ")
}
