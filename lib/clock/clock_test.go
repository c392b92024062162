package clock

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2024, 3, 9, 22, 5, 7, 999, time.FixedZone("CET", 3600))
	if got := Format(ts); got != "2024-03-09T21:05:07Z" {
		t.Errorf("Format() = %q", got)
	}
}
