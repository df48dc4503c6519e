package stockanalysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractSymbol turns an exchange qualified symbol such as "nase/SCOM" into
// the bare upper-cased ticker. It returns "" when there is no symbol.
func ExtractSymbol(raw any) string {
	text := strings.TrimSpace(stringify(raw))
	if text == "" {
		return ""
	}
	if idx := strings.LastIndex(text, "/"); idx >= 0 {
		text = text[idx+1:]
	}
	return strings.ToUpper(text)
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// truthy follows the loose truthiness the page's own client applies to
// optional query fields.
func truthy(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
