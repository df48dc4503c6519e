package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	cases := []struct {
		raw    any
		expect any
	}{
		{raw: nil, expect: nil},
		{raw: json.Number("13"), expect: int64(13)},
		{raw: json.Number("-0.295"), expect: -0.295},
		{raw: json.Number("1360221280600"), expect: int64(1360221280600)},
		{raw: 33.85, expect: 33.85},
		{raw: 7, expect: 7},
		{raw: "1.36T", expect: 1.36e12},
		{raw: "1.36t", expect: 1.36e12},
		{raw: "399.96B", expect: 399.96e9},
		{raw: "2.5M", expect: 2.5e6},
		{raw: "1,250K", expect: 1.25e6},
		{raw: "-2.28%", expect: -2.28},
		{raw: "1,204.5%", expect: 1204.5},
		{raw: "1,500.00", expect: 1500.0},
		{raw: "2,235,327", expect: int64(2235327)},
		{raw: "  42 ", expect: int64(42)},
		{raw: "Feb 26, 2026", expect: "Feb 26, 2026"},
		{raw: "Semi-Annual", expect: "Semi-Annual"},
		{raw: "Radiotelephone Communications", expect: "Radiotelephone Communications"},
		{raw: "Investment", expect: "Investment"},
		{raw: "abc%", expect: "abc%"},
		{raw: "xM", expect: "xM"},
		{raw: "1.2.3", expect: "1.2.3"},
		{raw: ",", expect: ","},
		{raw: "1e400T", expect: "1e400T"},
		{raw: "1e400%", expect: "1e400%"},
		{raw: "1" + strings.Repeat("0", 400), expect: "1" + strings.Repeat("0", 400)},
		{raw: true, expect: true},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, Value(test.raw), "raw: %#v", test.raw)
	}
}

func TestNoDataTokens(t *testing.T) {
	for _, token := range []string{"", "-", "--", "n/a", "N/A", "na", "NA", "null", "NULL", "none", "None", "  -  "} {
		require.Nil(t, Value(token), "token: %q", token)
	}
}

func TestMetrics(t *testing.T) {
	row := map[string]any{
		"no":        json.Number("1"),
		"s":         "nase/SCOM",
		"n":         "Safaricom PLC",
		"tr1m":      json.Number("13.97"),
		"exDivDate": "Feb 26, 2026",
	}

	raw, metrics := Metrics(row, []string{"no", "s", "tr1m", "exDivDate", "tr10y"}, "no", "s", "n")
	require.Equal(t, map[string]any{
		"tr1m":      json.Number("13.97"),
		"exDivDate": "Feb 26, 2026",
		"tr10y":     nil,
	}, raw)
	require.Equal(t, map[string]any{
		"tr1m":      13.97,
		"exDivDate": "Feb 26, 2026",
		"tr10y":     nil,
	}, metrics)
}

func TestScalars(t *testing.T) {
	require.Equal(t, null.IntFrom(3), Int(json.Number("3")))
	require.Equal(t, null.IntFrom(3), Int("3"))
	require.False(t, Int("3.5").Valid)
	require.False(t, Int(nil).Valid)

	require.Equal(t, null.FloatFrom(-2.28), Float("-2.28%"))
	require.Equal(t, null.FloatFrom(75), Float(json.Number("75")))
	require.False(t, Float("-").Valid)
	require.False(t, Float("Kenya").Valid)
}
