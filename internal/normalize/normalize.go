// Package normalize converts human-formatted count text ("1.54K", "465M",
// "12,345") into canonical integers.
package normalize

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

var (
	mantissaPattern = regexp.MustCompile(`^(\d*)(?:\.(\d*))?$`)
	separators      = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "\u202f", "", "\u2009", "", "_", "", "'", "")
	maxCount        = big.NewInt(1<<63 - 1)
)

var magnitudes = map[byte]int64{
	'K': 1_000,
	'M': 1_000_000,
	'B': 1_000_000_000,
}

// Count parses s into a non-negative integer. Thousands separators are
// dropped and at most one trailing K/M/B suffix (case-insensitive) scales the
// value. Fractional results are truncated, never rounded.
//
// Failures wrap channel.ErrUnparsableNumber; the caller chooses between a nil
// field and skipping the row.
func Count(s string) (int64, error) {
	text := strings.ToUpper(separators.Replace(strings.TrimSpace(s)))
	if text == "" {
		return 0, fmt.Errorf("%w: empty input", channel.ErrUnparsableNumber)
	}

	magnitude := int64(1)
	if m, ok := magnitudes[text[len(text)-1]]; ok {
		magnitude = m
		text = text[:len(text)-1]
	}

	parts := mantissaPattern.FindStringSubmatch(text)
	if parts == nil || (parts[1] == "" && parts[2] == "") {
		return 0, fmt.Errorf("%w: %q", channel.ErrUnparsableNumber, s)
	}

	// Exact decimal arithmetic: digits * magnitude / 10^len(fraction).
	digits, ok := new(big.Int).SetString(parts[1]+parts[2], 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q", channel.ErrUnparsableNumber, s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(parts[2]))), nil)
	value := digits.Mul(digits, big.NewInt(magnitude))
	value.Quo(value, scale)
	if value.Cmp(maxCount) > 0 {
		return 0, fmt.Errorf("%w: %q overflows int64", channel.ErrUnparsableNumber, s)
	}
	return value.Int64(), nil
}

// CountOrNil returns nil instead of an error, keeping "unknown" distinct
// from zero.
func CountOrNil(s string) *int64 {
	v, err := Count(s)
	if err != nil {
		return nil
	}
	return &v
}
