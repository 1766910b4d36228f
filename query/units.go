package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Configurations lists distinct "<n> BHK" mentions in order of appearance.
func Configurations(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, match := range bhkPattern.FindAllStringSubmatch(text, -1) {
		label := FormatBHK(match[1])
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

// FormatBHK renders a bedroom count the way brochures print it.
func FormatBHK(count string) string {
	return fmt.Sprintf("%s BHK", strings.TrimSpace(count))
}

// Amounts extracts every lakh/crore figure in text, normalised to lakh, in
// order of appearance.
func Amounts(text string) []float64 {
	var amounts []float64
	for _, match := range pricePattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		amounts = append(amounts, ToLakh(value, match[2]))
	}
	return amounts
}

// ToLakh converts an amount in the given unit to lakh.
func ToLakh(value float64, unit string) float64 {
	if strings.HasPrefix(strings.ToLower(unit), "cr") {
		return value * 100
	}
	return value
}
