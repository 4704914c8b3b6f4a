// Package decimal provides exact decimal arithmetic over decimal
// strings. Scores and thresholds never touch binary floating point:
// values parse into big.Rat, combine exactly, and format back at an
// explicit scale with an explicit rounding mode.
package decimal

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Rounding defines rounding modes for formatting.
type Rounding string

const (
	RoundDown     Rounding = "DOWN"
	RoundHalfUp   Rounding = "HALF_UP"
	RoundHalfEven Rounding = "HALF_EVEN"
)

// ScoreScale is the house scale for all emitted scores and ratios.
const ScoreScale = 4

// decimalPattern matches valid decimal strings: ^[+-]?[0-9]+(\.[0-9]+)?$
var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// Value is an exact decimal. The zero Value is 0.
type Value struct {
	rat *big.Rat
}

// Parse validates and parses a decimal string.
func Parse(s string) (Value, error) {
	if !decimalPattern.MatchString(s) {
		return Value{}, fmt.Errorf("decimal: invalid format %q (must match ^[+-]?[0-9]+(\\.[0-9]+)?$)", s)
	}
	rat := new(big.Rat)
	if _, ok := rat.SetString(s); !ok {
		return Value{}, fmt.Errorf("decimal: could not parse %q as rational", s)
	}
	return Value{rat: rat}, nil
}

// MustParse parses a decimal string and panics on failure. For
// constants known valid at compile time.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromInt builds a Value from an integer.
func FromInt(n int64) Value {
	return Value{rat: new(big.Rat).SetInt64(n)}
}

// Ratio builds the exact quotient num/den. Panics if den is zero.
func Ratio(num, den int64) Value {
	if den == 0 {
		panic("decimal: zero denominator")
	}
	return Value{rat: big.NewRat(num, den)}
}

// Zero is the zero value.
func Zero() Value { return Value{} }

// One is the unit value.
func One() Value { return FromInt(1) }

func (v Value) r() *big.Rat {
	if v.rat == nil {
		return new(big.Rat)
	}
	return v.rat
}

// Add returns v + o.
func (v Value) Add(o Value) Value {
	return Value{rat: new(big.Rat).Add(v.r(), o.r())}
}

// Sub returns v - o.
func (v Value) Sub(o Value) Value {
	return Value{rat: new(big.Rat).Sub(v.r(), o.r())}
}

// Mul returns v * o.
func (v Value) Mul(o Value) Value {
	return Value{rat: new(big.Rat).Mul(v.r(), o.r())}
}

// Div returns v / o. Panics if o is zero; callers guard.
func (v Value) Div(o Value) Value {
	if o.r().Sign() == 0 {
		panic("decimal: division by zero")
	}
	return Value{rat: new(big.Rat).Quo(v.r(), o.r())}
}

// Abs returns |v|.
func (v Value) Abs() Value {
	return Value{rat: new(big.Rat).Abs(v.r())}
}

// Cmp compares v and o: -1 if v < o, 0 if equal, +1 if v > o.
func (v Value) Cmp(o Value) int {
	return v.r().Cmp(o.r())
}

// Sign returns -1, 0, or +1.
func (v Value) Sign() int { return v.r().Sign() }

// IsZero reports whether v is exactly zero.
func (v Value) IsZero() bool { return v.r().Sign() == 0 }

// Clamp01 bounds v into [0, 1].
func (v Value) Clamp01() Value {
	if v.Sign() < 0 {
		return Zero()
	}
	if v.Cmp(One()) > 0 {
		return One()
	}
	return v
}

// Format renders v at the given scale with the given rounding mode.
// The sign is separated before integer division so DOWN truncates
// toward zero for negatives too.
func (v Value) Format(scale int, rounding Rounding) string {
	rat := v.r()
	sign := ""
	if rat.Sign() < 0 {
		sign = "-"
		rat = new(big.Rat).Abs(rat)
	}

	scaleFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scaleFactor))

	intPart := new(big.Int).Div(scaled.Num(), scaled.Denom())
	remainder := new(big.Int).Mod(scaled.Num(), scaled.Denom())

	if remainder.Sign() != 0 {
		doubled := new(big.Int).Mul(remainder, big.NewInt(2))
		cmp := doubled.Cmp(scaled.Denom())
		switch rounding {
		case RoundDown:
			// Truncate.
		case RoundHalfUp:
			if cmp >= 0 {
				intPart.Add(intPart, big.NewInt(1))
			}
		case RoundHalfEven:
			if cmp > 0 {
				intPart.Add(intPart, big.NewInt(1))
			} else if cmp == 0 {
				if new(big.Int).And(intPart, big.NewInt(1)).Sign() != 0 {
					intPart.Add(intPart, big.NewInt(1))
				}
			}
		}
	}

	var out string
	if scale == 0 {
		out = sign + intPart.String()
	} else {
		intStr := intPart.String()
		for len(intStr) <= scale {
			intStr = "0" + intStr
		}
		insertPoint := len(intStr) - scale
		out = sign + intStr[:insertPoint] + "." + intStr[insertPoint:]
	}
	// Negative zero never escapes.
	if isZeroString(out) {
		return strings.TrimPrefix(out, "-")
	}
	return out
}

// Score renders v at the house score scale with HALF_EVEN rounding.
func (v Value) Score() string {
	return v.Format(ScoreScale, RoundHalfEven)
}

func isZeroString(s string) bool {
	for _, c := range s {
		if c != '0' && c != '.' && c != '-' {
			return false
		}
	}
	return true
}

// WeightedSum computes sum(weights[i] * values[i]) exactly. The slices
// must have equal length.
func WeightedSum(weights, values []Value) (Value, error) {
	if len(weights) != len(values) {
		return Value{}, fmt.Errorf("decimal: weighted sum arity mismatch: %d weights, %d values", len(weights), len(values))
	}
	acc := Zero()
	for i := range weights {
		acc = acc.Add(weights[i].Mul(values[i]))
	}
	return acc, nil
}
