package clock

import "time"

const layout = "2006-01-02T15:04:05Z"

func Now() string {
	return Format(time.Now())
}

// Format renders t in UTC with second precision, the format used in API envelopes.
func Format(t time.Time) string {
	return t.UTC().Format(layout)
}
