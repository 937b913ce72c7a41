// Package billing prices book line items into invoices and rolls committed rows up into
// billing reports. Every function in this package is pure and safe for concurrent use.
package billing

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NoUpperBound is the default upper clamp for quantities.
const NoUpperBound = math.MaxInt

var hundred = decimal.NewFromInt(100)

// ToNumber coerces user supplied values into a decimal. Anything that cannot be read as a
// number yields zero.
func ToNumber(v any) decimal.Decimal {
	switch n := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return n
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero
		}
		return *n
	case int:
		return decimal.NewFromInt(int64(n))
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(n)), 0)
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case json.Number:
		return parseLoose(n.String())
	case string:
		return parseLoose(n)
	case *string:
		if n == nil {
			return decimal.Zero
		}
		return parseLoose(*n)
	default:
		return decimal.Zero
	}
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// parseLoose keeps digits, sign and decimal point, drops any sign past the first
// character, then reads up to a second decimal point. "₹1,250.50" reads as 1250.50 and
// "12.5.1" as 12.5.
func parseLoose(s string) decimal.Decimal {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero
	}

	neg := false
	i := 0
	if cleaned[0] == '-' {
		neg = true
		i = 1
	}
	var intPart, fracPart strings.Builder
	seenDot := false
	for ; i < len(cleaned); i++ {
		c := cleaned[i]
		switch {
		case c >= '0' && c <= '9':
			if seenDot {
				fracPart.WriteByte(c)
			} else {
				intPart.WriteByte(c)
			}
		case c == '.' && !seenDot:
			seenDot = true
		case c == '-':
		default:
			i = len(cleaned)
		}
	}
	if intPart.Len() == 0 && fracPart.Len() == 0 {
		return decimal.Zero
	}
	num := intPart.String()
	if num == "" {
		num = "0"
	}
	if fracPart.Len() > 0 {
		num += "." + fracPart.String()
	}
	if neg {
		num = "-" + num
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round2 rounds half away from zero at the cent.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ClampInt clamps v into [min, max].
func ClampInt(v, min, max int) int {
	if max < min {
		max = min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampQty floors any numeric-ish value to an integer quantity in [0, NoUpperBound].
func ClampQty(v any) int {
	if i, ok := v.(int); ok {
		return ClampInt(i, 0, NoUpperBound)
	}
	d := ToNumber(v).Floor()
	if d.IsNegative() {
		return 0
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return NoUpperBound
	}
	return ClampInt(int(d.IntPart()), 0, NoUpperBound)
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return Round2(d).StringFixed(2)
}
