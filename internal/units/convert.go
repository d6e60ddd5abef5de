package units

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// System is a measurement system an ingredient can be converted to.
type System string

const (
	Metric   System = "metric"
	Imperial System = "imperial"
)

// NotAvailable is the converted value when no conversion applies.
const NotAvailable = "N/A"

// Conversion holds the measured part of an ingredient line and its converted value.
type Conversion struct {
	Original  string `json:"original"`
	Converted string `json:"converted"`
}

type factor struct {
	multiplier float64
	unit       string
}

var toMetric = map[string]factor{
	"lb":   {0.453592, "kg"},
	"oz":   {28.3495, "g"},
	"cup":  {236.588, "ml"},
	"tsp":  {4.92892, "ml"},
	"tbsp": {14.7868, "ml"},
}

var quantityPattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([A-Za-z]+)`)

// ConvertIngredientUnit converts the leading "<number><unit>" of an ingredient line.
// Lines without a measured quantity come back unchanged in both fields.
func ConvertIngredientUnit(text string, target System) Conversion {
	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return Conversion{Original: text, Converted: text}
	}

	original := strings.TrimSpace(m[0])
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Conversion{Original: text, Converted: text}
	}

	f, ok := toMetric[normalizeUnit(m[2])]
	if !ok || target != Metric {
		return Conversion{Original: original, Converted: NotAvailable}
	}

	return Conversion{
		Original:  original,
		Converted: fmt.Sprintf("%.1f %s", amount*f.multiplier, f.unit),
	}
}

// ConvertAll converts every line of an ingredient list.
func ConvertAll(ingredients []string, target System) []Conversion {
	out := make([]Conversion, 0, len(ingredients))
	for _, line := range ingredients {
		out = append(out, ConvertIngredientUnit(line, target))
	}
	return out
}

// normalizeUnit lowercases and strips plural forms ("Cups", "lbs").
func normalizeUnit(unit string) string {
	u := strings.ToLower(unit)
	if _, ok := toMetric[u]; ok {
		return u
	}
	return strings.TrimSuffix(u, "s")
}
