package coercer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Policy decides what happens to a column that does not coerce to numbers.
type Policy string

const (
	// PolicyLenient keeps mostly-text columns as text and treats stray
	// unparseable cells in numeric columns as missing.
	PolicyLenient Policy = "lenient"
	// PolicyStrict fails the load on the first uncoercible value.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy name, defaulting to lenient.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown coercion policy %q", s)
}

// TypeCoercer handles deterministic numeric coercion of raw cell text
type TypeCoercer struct {
	config CoercionConfig
}

// CoercionConfig defines the coercion thresholds and rules
type CoercionConfig struct {
	Policy           Policy  `json:"policy" yaml:"policy"`
	NumericThreshold float64 `json:"numeric_threshold" yaml:"numeric_threshold"` // share of non-empty values that must parse
	AllowCurrency    bool    `json:"allow_currency" yaml:"allow_currency"`
	AllowPercent     bool    `json:"allow_percent" yaml:"allow_percent"`
}

// DefaultCoercionConfig returns sensible defaults
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		Policy:           PolicyLenient,
		NumericThreshold: 0.5,
		AllowCurrency:    true,
		AllowPercent:     true,
	}
}

// NewTypeCoercer creates a coercer with the given config
func NewTypeCoercer(config CoercionConfig) *TypeCoercer {
	if config.Policy == "" {
		config.Policy = PolicyLenient
	}
	if config.NumericThreshold <= 0 || config.NumericThreshold > 1 {
		config.NumericThreshold = 0.5
	}
	return &TypeCoercer{config: config}
}

// Config returns the effective configuration.
func (c *TypeCoercer) Config() CoercionConfig {
	return c.config
}

// IsMissing reports blank cells and the usual spreadsheet null spellings.
func IsMissing(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "na", "n/a", "nan", "null", "none", "-":
		return true
	}
	return false
}

// ParseFloat coerces one cell. Missing cells and unparseable text return false.
func (c *TypeCoercer) ParseFloat(raw string) (float64, bool) {
	if IsMissing(raw) {
		return 0, false
	}
	return c.tryParseNumeric(raw)
}

// ParseInt coerces a cell holding a whole number. "2019" and "2019.0" both parse;
// fractional values do not.
func (c *TypeCoercer) ParseInt(raw string) (int64, bool) {
	v, ok := c.ParseFloat(raw)
	if !ok || v != math.Trunc(v) || math.Abs(v) > 1<<53 {
		return 0, false
	}
	return int64(v), true
}

// ParseYear coerces a year cell to an int.
func (c *TypeCoercer) ParseYear(raw string) (int, bool) {
	v, ok := c.ParseInt(raw)
	if !ok || v < 0 || v > 9999 {
		return 0, false
	}
	return int(v), true
}

// AnalyzeColumn measures how much of a column parses as numbers.
func (c *TypeCoercer) AnalyzeColumn(name string, values []string) ColumnAnalysis {
	analysis := ColumnAnalysis{Name: name, TotalCount: len(values)}
	for _, raw := range values {
		if IsMissing(raw) {
			analysis.MissingCount++
			continue
		}
		if _, ok := c.tryParseNumeric(raw); ok {
			analysis.NumericCount++
		} else if analysis.FirstBadValue == "" {
			analysis.FirstBadValue = raw
		}
	}

	valid := analysis.TotalCount - analysis.MissingCount
	if valid > 0 {
		analysis.NumericRatio = float64(analysis.NumericCount) / float64(valid)
	}
	analysis.Numeric = valid > 0 && analysis.NumericRatio >= c.config.NumericThreshold
	return analysis
}

var thousandsPattern = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// tryParseNumeric attempts to parse as numeric with strict rules
// Handles parentheses for negatives, thousands separators, currency symbols and percent
func (c *TypeCoercer) tryParseNumeric(strVal string) (float64, bool) {
	cleanVal := strings.TrimSpace(strVal)
	if cleanVal == "" {
		return 0, false
	}

	// Handle parentheses for negative numbers: (123) -> -123
	isNegative := false
	if strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSuffix(strings.TrimPrefix(cleanVal, "("), ")")
		isNegative = true
	}

	if c.config.AllowCurrency {
		for _, symbol := range []string{"$", "€", "£", "¥", "USD", "EUR", "GBP"} {
			cleanVal = strings.ReplaceAll(cleanVal, symbol, "")
		}
	}
	if c.config.AllowPercent {
		cleanVal = strings.TrimSuffix(cleanVal, "%")
	}
	cleanVal = strings.TrimSpace(cleanVal)

	switch {
	case thousandsPattern.MatchString(cleanVal):
		cleanVal = strings.ReplaceAll(cleanVal, ",", "")
	case strings.Contains(cleanVal, ","):
		// European decimal comma, optionally with dot or space grouping: 1.234,5
		idx := strings.LastIndex(cleanVal, ",")
		if !allDigits(cleanVal[idx+1:]) || strings.Count(cleanVal, ",") > 1 {
			return 0, false
		}
		cleanVal = strings.ReplaceAll(cleanVal, ".", "")
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
		cleanVal = strings.Replace(cleanVal, ",", ".", 1)
	default:
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
	}

	if isNegative {
		cleanVal = "-" + cleanVal
	}

	// ParseFloat handles scientific notation
	val, err := strconv.ParseFloat(cleanVal, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ColumnAnalysis contains the results of numeric coercion analysis for one column
type ColumnAnalysis struct {
	Name          string  `json:"name"`
	TotalCount    int     `json:"total_count"`
	MissingCount  int     `json:"missing_count"`
	NumericCount  int     `json:"numeric_count"`
	NumericRatio  float64 `json:"numeric_ratio"`
	Numeric       bool    `json:"numeric"`
	FirstBadValue string  `json:"first_bad_value,omitempty"`
}
