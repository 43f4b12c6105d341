package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// expiryParams are the access-link lifetime query parameters used by the
// CDNs trailers resolve to: "Expires" on IMDb links, "expire" on YouTube
// links. Both carry unix seconds.
var expiryParams = []string{"Expires", "expire"}

// ExtractExpiry extracts the access-link expiry from a resolved trailer URL.
// Returns nil when the URL carries no lifetime, meaning the link is durable.
func ExtractExpiry(rawURL string) *time.Time {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	query := parsed.Query()
	for _, param := range expiryParams {
		value := query.Get(param)
		if value == "" {
			continue
		}
		seconds, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		expiry := time.Unix(seconds, 0)
		return &expiry
	}

	return nil
}

// FormatDuration formats a duration as minutes and seconds for log output
func FormatDuration(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%dmin %dsec", seconds/60, seconds%60)
}
