package stockanalysis

import (
	"regexp"
	"strings"
)

const (
	rowsMarker  = "stockData:["
	viewsMarker = "initialDynamicViews:"
)

var (
	scriptRegex = regexp.MustCompile(`(?s)<script[^>]*>(.*?)</script>`)
	rowsRegex   = regexp.MustCompile(`(?s)stockData:\s*(\[.*?\])\s*,\s*pagination:`)
	viewsRegex  = regexp.MustCompile(`(?s)initialDynamicViews:\s*(\{.*?\})\s*,\s*columnId:`)
	queryRegex  = regexp.MustCompile(`(?s)stockQuery:\s*(\{.*?\})\s*,\s*stockFixed:`)
)

// Payload holds the raw literal slices of the embedded data.
type Payload struct {
	Rows     string
	Views    string
	Query    string
	HasQuery bool
}

// Locate finds the inline script carrying the listing data and slices the
// rows, view metadata and optional query literals out of it. Scripts that
// carry the markers but not the slices are skipped.
func Locate(body string) (Payload, bool) {
	for _, match := range scriptRegex.FindAllStringSubmatch(body, -1) {
		script := match[1]
		if !strings.Contains(script, rowsMarker) || !strings.Contains(script, viewsMarker) {
			continue
		}

		rows := rowsRegex.FindStringSubmatch(script)
		views := viewsRegex.FindStringSubmatch(script)
		if rows == nil || views == nil {
			continue
		}

		payload := Payload{
			Rows:  rows[1],
			Views: views[1],
		}
		if query := queryRegex.FindStringSubmatch(script); query != nil {
			payload.Query = query[1]
			payload.HasQuery = true
		}
		return payload, true
	}
	return Payload{}, false
}
