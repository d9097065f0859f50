package gmail

import (
	"testing"
	"time"
)

func TestBuildQuery(t *testing.T) {
	now := time.Date(2024, 1, 8, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      string
		windowDays int
		want       string
	}{
		{"default newsletter", DefaultQuery, 7, `from:"New York Times" subject:"The Morning" after:2024/01/01`},
		{"crosses year", `from:"X" subject:"Y"`, 10, `from:"X" subject:"Y" after:2023/12/29`},
		{"zero window", "label:news", 0, "label:news after:2024/01/08"},
		{"empty query", "", 1, "after:2024/01/07"},
		{"trims query", "  from:a  ", 1, "from:a after:2024/01/07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.query, tt.windowDays, now); got != tt.want {
				t.Errorf("BuildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
