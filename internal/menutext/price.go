package menutext

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// PriceToken matches anything that could be a price in running text.
var PriceToken = regexp.MustCompile(`\$?\d[\d.,]*`)

var (
	numberRe   = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)(?:([.,])(\d{1,2}))?`)
	trailingRe = regexp.MustCompile(`([$€£]\s?|\s)?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d{1,4}(?:[.,]\d{1,2})?)\s*$`)
	currencyRe = regexp.MustCompile(`([$€£])\s?(\d{1,4}(?:[.,]\d{1,2})?)`)
)

const (
	nameTrimChars = " \t.·…:|•–—-_*"
	leadTrimChars = " \t•·*-–—|>"
	minLinePrice  = 0.5
	maxLinePrice  = 999.0
)

// Coerce converts a loosely typed price to a number. Strings may carry
// currency symbols, thousands separators or a decimal comma ("12,50").
// Anything unparseable, non-finite or non-positive yields nil.
func Coerce(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return nil
		}
		f = p
	case string:
		p, ok := parseNumber(x)
		if !ok {
			return nil
		}
		f = p
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	return &f
}

func parseNumber(s string) (float64, bool) {
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num := strings.ReplaceAll(m[1], ",", "")
	if m[3] != "" {
		num += "." + m[3]
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SplitPrice separates a menu row into its name and price. The price is the
// trailing number, or failing that the first currency-marked number. It
// reports false when the line carries no plausible price. A bare price line
// returns an empty name.
func SplitPrice(line string) (string, float64, bool) {
	line = strings.TrimSpace(line)
	if loc := trailingRe.FindStringSubmatchIndex(line); loc != nil {
		start := loc[0]
		lead := ""
		if loc[2] >= 0 {
			lead = line[loc[2]:loc[3]]
		}
		// "Route66" is a name, not a price; a price needs a gap or symbol.
		if start == 0 || lead != "" || strings.ContainsRune(nameTrimChars, rune(line[start-1])) {
			if p := Coerce(line[loc[4]:loc[5]]); p != nil && *p >= minLinePrice && *p <= maxLinePrice {
				name := strings.TrimRight(line[:start], nameTrimChars)
				return cleanLead(name), *p, true
			}
		}
	}
	if loc := currencyRe.FindStringSubmatchIndex(line); loc != nil {
		if p := Coerce(line[loc[4]:loc[5]]); p != nil && *p >= minLinePrice && *p <= maxLinePrice {
			name := strings.TrimRight(line[:loc[0]], nameTrimChars)
			if name == "" {
				name = strings.Trim(line[loc[1]:], nameTrimChars)
			}
			return cleanLead(name), *p, true
		}
	}
	return "", 0, false
}

// HasPriceToken reports whether s contains any number that could be a price.
func HasPriceToken(s string) bool {
	return PriceToken.MatchString(s)
}

// FormatPrice renders a price without trailing zeros.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func cleanLead(s string) string {
	return CollapseSpace(strings.TrimLeft(s, leadTrimChars))
}
