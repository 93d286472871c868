package contract

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cast"

	"github.com/vitwit/w3session/types"
)

// EncodeCall ABI-encodes a resolved method invocation: the 4-byte selector
// followed by the packed arguments. Argument values are coerced from the
// representations callers actually hold (hex strings, decimal strings, native
// ints, *big.Int) into the packer's expected forms.
func EncodeCall(method abi.Method, args ...interface{}) ([]byte, error) {
	if len(args) != len(method.Inputs) {
		return nil, encodingErr(fmt.Sprintf("method %s expects %d arguments, got %d", method.RawName, len(method.Inputs), len(args)))
	}

	coerced := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := coerce(method.Inputs[i].Type, arg)
		if err != nil {
			return nil, encodingErr(fmt.Sprintf("method %s argument %d: %v", method.RawName, i, err))
		}
		coerced[i] = v
	}

	packed, err := method.Inputs.Pack(coerced...)
	if err != nil {
		return nil, encodingErr(fmt.Sprintf("method %s: %v", method.RawName, err))
	}

	data := make([]byte, 0, len(method.ID)+len(packed))
	data = append(data, method.ID...)
	data = append(data, packed...)
	return data, nil
}

// coerce converts a caller-supplied value into the Go representation the
// packer expects for the target type. Values already in packer form pass
// through untouched; so does anything coerce does not understand, leaving the
// packer to reject it.
func coerce(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		switch vv := v.(type) {
		case common.Address:
			return vv, nil
		case string:
			if !common.IsHexAddress(vv) {
				return nil, fmt.Errorf("invalid address %q", vv)
			}
			return common.HexToAddress(vv), nil
		}

	case abi.UintTy, abi.IntTy:
		return coerceInteger(t, v)

	case abi.BoolTy:
		return cast.ToBoolE(v)

	case abi.StringTy:
		return cast.ToStringE(v)

	case abi.BytesTy:
		switch vv := v.(type) {
		case []byte:
			return vv, nil
		case string:
			decoded, err := hexutil.Decode(vv)
			if err != nil {
				return nil, fmt.Errorf("invalid bytes hex: %v", err)
			}
			return decoded, nil
		}

	case abi.FixedBytesTy:
		return coerceFixedBytes(t, v)
	}

	return v, nil
}

// coerceInteger maps any supported numeric representation onto the packer's
// expected form: native sized integers for 8/16/32/64-bit types, *big.Int for
// everything wider.
func coerceInteger(t abi.Type, v interface{}) (interface{}, error) {
	n, err := toBigInt(v)
	if err != nil {
		return nil, err
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for unsigned type", n)
	}

	switch t.Size {
	case 8, 16, 32, 64:
	default:
		return n, nil
	}

	if t.T == abi.UintTy {
		if !n.IsUint64() || n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows uint%d", n, t.Size)
		}
		u := n.Uint64()
		switch t.Size {
		case 8:
			return uint8(u), nil
		case 16:
			return uint16(u), nil
		case 32:
			return uint32(u), nil
		default:
			return u, nil
		}
	}

	if !n.IsInt64() {
		return nil, fmt.Errorf("value %s overflows int%d", n, t.Size)
	}
	i := n.Int64()
	switch t.Size {
	case 8:
		if i < math.MinInt8 || i > math.MaxInt8 {
			return nil, fmt.Errorf("value %s overflows int8", n)
		}
		return int8(i), nil
	case 16:
		if i < math.MinInt16 || i > math.MaxInt16 {
			return nil, fmt.Errorf("value %s overflows int16", n)
		}
		return int16(i), nil
	case 32:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("value %s overflows int32", n)
		}
		return int32(i), nil
	default:
		return i, nil
	}
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch vv := v.(type) {
	case *big.Int:
		if vv == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return vv, nil
	case big.Int:
		return new(big.Int).Set(&vv), nil
	case string:
		s := strings.TrimSpace(vv)
		base := 10
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s, base = s[2:], 16
		}
		n, ok := new(big.Int).SetString(s, base)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", vv)
		}
		return n, nil
	case uint64:
		// cast.ToInt64E wraps values above MaxInt64.
		return new(big.Int).SetUint64(vv), nil
	case uint:
		return new(big.Int).SetUint64(uint64(vv)), nil
	case uintptr:
		return new(big.Int).SetUint64(uint64(vv)), nil
	default:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return nil, fmt.Errorf("cannot use %T as integer", v)
		}
		return big.NewInt(i), nil
	}
}

func coerceFixedBytes(t abi.Type, v interface{}) (interface{}, error) {
	var b []byte
	switch vv := v.(type) {
	case []byte:
		b = vv
	case string:
		decoded, err := hexutil.Decode(vv)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes%d hex: %v", t.Size, err)
		}
		b = decoded
	default:
		// Likely already a fixed-size array.
		return v, nil
	}

	if len(b) != t.Size {
		return nil, fmt.Errorf("bytes%d value has %d bytes", t.Size, len(b))
	}
	arr := reflect.New(t.GetType()).Elem()
	reflect.Copy(arr, reflect.ValueOf(b))
	return arr.Interface(), nil
}

func encodingErr(msg string) *types.SessionError {
	return &types.SessionError{Code: types.ErrEncodingError, Message: msg}
}
