package coercer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloat(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{" 3.5 ", 3.5, true},
		{"1,234", 1234, true},
		{"1,234,567.25", 1234567.25, true},
		{"12,5", 12.5, true},
		{"1.234,5", 1234.5, true},
		{"(120)", -120, true},
		{"$1,000", 1000, true},
		{"45%", 45, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"NA", 0, false},
		{"n/a", 0, false},
		{"abc", 0, false},
		{"1,23,4", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		got, ok := c.ParseFloat(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
		}
	}
}

func TestParseFloat_CurrencyDisabled(t *testing.T) {
	cfg := DefaultCoercionConfig()
	cfg.AllowCurrency = false
	cfg.AllowPercent = false
	c := NewTypeCoercer(cfg)

	_, ok := c.ParseFloat("$10")
	assert.False(t, ok)
	_, ok = c.ParseFloat("10%")
	assert.False(t, ok)
}

func TestParseYear(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	y, ok := c.ParseYear("2019")
	require.True(t, ok)
	assert.Equal(t, 2019, y)

	y, ok = c.ParseYear("2019.0")
	require.True(t, ok)
	assert.Equal(t, 2019, y)

	for _, bad := range []string{"2019.5", "twenty", "", "-4", "100000"} {
		_, ok := c.ParseYear(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestAnalyzeColumn(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	a := c.AnalyzeColumn("Murder", []string{"1", "", "3", "NA"})
	assert.True(t, a.Numeric)
	assert.Equal(t, 2, a.MissingCount)
	assert.Equal(t, 1.0, a.NumericRatio)

	a = c.AnalyzeColumn("Region", []string{"North", "South", "2"})
	assert.False(t, a.Numeric)
	assert.Equal(t, "North", a.FirstBadValue)
	assert.InDelta(t, 1.0/3, a.NumericRatio, 1e-9)

	a = c.AnalyzeColumn("Empty", []string{"", ""})
	assert.False(t, a.Numeric)

	assert.True(t, c.AnalyzeColumn("Mixed", []string{"North", "2"}).Numeric)
	exact := NewTypeCoercer(CoercionConfig{NumericThreshold: 1})
	assert.False(t, exact.AnalyzeColumn("Mixed", []string{"North", "2"}).Numeric)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyLenient, p)

	p, err = ParsePolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	_, err = ParsePolicy("loose")
	assert.Error(t, err)
}
