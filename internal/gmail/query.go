package gmail

import (
	"strings"
	"time"
)

const (
	// DefaultQuery selects the New York Times morning newsletter.
	DefaultQuery = `from:"New York Times" subject:"The Morning"`

	// DefaultWindowDays is how far back messages are searched.
	DefaultWindowDays = 7

	afterLayout = "2006/01/02"
)

// BuildQuery appends an after: clause for the day windowDays before now.
func BuildQuery(query string, windowDays int, now time.Time) string {
	after := now.AddDate(0, 0, -windowDays).Format(afterLayout)
	query = strings.TrimSpace(query)
	if query == "" {
		return "after:" + after
	}
	return query + " after:" + after
}
