// Package fetch retrieves page and API bodies for the scraper.
package fetch

import (
	"context"
	"fmt"
)

// Fetcher retrieves the body behind url. Implementations own timeouts,
// politeness and transport details.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}
