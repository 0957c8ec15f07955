package txbuilder

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the precision transfer amounts are rounded to.
const AmountDecimals = 6

// Decimal exponents of the native unit and gwei relative to wei.
const (
	nativeExp = 18
	gweiExp   = 9
)

// RoundAmount rounds a native-unit amount to AmountDecimals places.
func RoundAmount(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount).Round(AmountDecimals)
}

// NativeToWei converts a native-unit amount to wei, truncating sub-wei digits.
func NativeToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(nativeExp).BigInt()
}

// FormatNative renders wei as a native-unit decimal string.
func FormatNative(wei *big.Int) string {
	if wei == nil {
		return ""
	}
	return decimal.NewFromBigInt(wei, -nativeExp).String()
}

// FormatGwei renders wei as a gwei decimal string.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return ""
	}
	return decimal.NewFromBigInt(wei, -gweiExp).String()
}

// Fee returns gasUsed * gasPrice in wei.
func Fee(gasUsed uint64, gasPrice *big.Int) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
}
