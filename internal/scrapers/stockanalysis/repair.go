package stockanalysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	undefinedRegex       = regexp.MustCompile(`\bundefined\b`)
	bareDecimalRegex     = regexp.MustCompile(`([:\[,]\s*)\.(\d+)`)
	negativeDecimalRegex = regexp.MustCompile(`([:\[,]\s*)-(\.\d+)`)
	bareKeyRegex         = regexp.MustCompile(`([{\[,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	trailingCommaRegex   = regexp.MustCompile(`,\s*([}\]])`)
)

// Repair rewrites the object literal dialect the listing pages embed into
// strict JSON. Only the constructs that dialect is known to use are handled:
// "void 0" and undefined, decimals without a leading zero, unquoted keys and
// trailing commas.
func Repair(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "void 0", "null")
	text = undefinedRegex.ReplaceAllString(text, "null")
	text = bareDecimalRegex.ReplaceAllString(text, "${1}0.${2}")
	text = negativeDecimalRegex.ReplaceAllString(text, "${1}-0${2}")
	text = bareKeyRegex.ReplaceAllString(text, `${1}"${2}":`)
	text = trailingCommaRegex.ReplaceAllString(text, "${1}")
	return text
}

// DecodeLiteral repairs text and decodes it into v. Numbers are kept as
// json.Number so integers survive untouched.
func DecodeLiteral(text string, v any) error {
	decoder := json.NewDecoder(strings.NewReader(Repair(text)))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after literal")
	}
	return nil
}
