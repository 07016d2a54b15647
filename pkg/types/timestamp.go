package types

import (
	"fmt"
	"time"
)

// millisLayout is ISO-8601 with millisecond precision. All timestamps in
// API payloads use this format; the database stores timestamptz.
const millisLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a time.Time that marshals to ISO-8601 with millisecond
// precision. Store timestamps are truncated to milliseconds on creation so
// a round-trip through the API and the database yields equal values.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a millisecond-truncated UTC Timestamp
func Now() Timestamp {
	return NewTimestamp(time.Now())
}

// NewTimestamp converts t to a millisecond-truncated UTC Timestamp
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// NewTimestampPtr is NewTimestamp for optional fields
func NewTimestampPtr(t time.Time) *Timestamp {
	ts := NewTimestamp(t)
	return &ts
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(millisLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	parsed, err := time.Parse(millisLayout, s[1:len(s)-1])
	if err != nil {
		// Tolerate plain RFC 3339 from older clients
		parsed, err = time.Parse(time.RFC3339, s[1:len(s)-1])
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// Equal compares at millisecond precision
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Time.Truncate(time.Millisecond).Equal(other.Time.Truncate(time.Millisecond))
}
