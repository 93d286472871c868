package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vitwit/w3session/types"
)

// ValidateAmount checks that an amount string is a valid non-negative decimal.
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: "amount cannot be empty",
		}
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("invalid amount format: %v", err),
		}
	}

	if dec.IsNegative() {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: "amount cannot be negative",
		}
	}

	return &dec, nil
}

// ValidateBigInt checks that a string is a valid non-negative base-10 integer.
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: "value cannot be empty",
		}
	}

	bigInt := new(big.Int)
	_, success := bigInt.SetString(value, 10)
	if !success {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("invalid integer format: %q", value),
		}
	}

	if bigInt.Sign() < 0 {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: "value cannot be negative",
		}
	}

	return bigInt, nil
}

// ParseAmountWithDecimals scales a human-readable decimal amount into token
// base units (amount * 10^decimals). The arithmetic stays in arbitrary
// precision end to end; fractional digits beyond the token's precision are
// truncated.
func ParseAmountWithDecimals(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, &types.SessionError{
			Code:    types.ErrInvalidAmount,
			Message: "decimals cannot be negative",
		}
	}

	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	// Multiply by 10^decimals to get the raw integer amount
	multiplier := decimal.NewFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil), 0)
	result := dec.Mul(multiplier)

	return result.BigInt(), nil
}

// FormatAmountFromBigInt renders a base-unit amount as a human-readable
// decimal string. For non-negative decimals this is the exact inverse of
// ParseAmountWithDecimals.
func FormatAmountFromBigInt(amount *big.Int, decimals int) string {
	dec := decimal.NewFromBigInt(amount, -int32(decimals))
	return dec.String()
}

// ConvertDecimals converts an amount from one decimal precision to another.
func ConvertDecimals(amount *big.Int, fromDecimals, toDecimals int) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}

	result := new(big.Int).Set(amount)

	if fromDecimals > toDecimals {
		// Divide by 10^(fromDecimals - toDecimals)
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-toDecimals)), nil)
		result.Div(result, divisor)
	} else {
		// Multiply by 10^(toDecimals - fromDecimals)
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDecimals-fromDecimals)), nil)
		result.Mul(result, multiplier)
	}

	return result
}
