package database

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimals is the number of fractional digits an Amount carries.
const Decimals = 8

// unit is the number of minor units in one whole coin.
const unit = 100_000_000

// Amount represents a coin value as an integer count of minor units so
// encoding and hashing never depend on floating point.
type Amount uint64

// ParseAmount converts a decimal string like "10", "0.5" or "3.14159265"
// into an Amount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > Decimals) {
		return 0, fmt.Errorf("amount %q: at most %d decimal places", s, Decimals)
	}

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	if w > math.MaxUint64/unit {
		return 0, fmt.Errorf("amount %q: out of range", s)
	}

	var f uint64
	if hasFrac {
		frac += strings.Repeat("0", Decimals-len(frac))
		if f, err = strconv.ParseUint(frac, 10, 64); err != nil {
			return 0, fmt.Errorf("amount %q: %w", s, err)
		}
	}

	total := w * unit
	if total > math.MaxUint64-f {
		return 0, fmt.Errorf("amount %q: out of range", s)
	}

	return Amount(total + f), nil
}

// MustParseAmount is ParseAmount for constants known to be valid.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount in decimal form without trailing zeros.
func (a Amount) String() string {
	whole := uint64(a) / unit
	frac := uint64(a) % unit
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}

	fs := fmt.Sprintf("%0*d", Decimals, frac)
	return strconv.FormatUint(whole, 10) + "." + strings.TrimRight(fs, "0")
}

// MarshalText implements encoding.TextMarshaler so amounts travel as
// decimal strings in JSON.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	v, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
