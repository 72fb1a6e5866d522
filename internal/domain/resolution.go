package domain

import (
	"fmt"
)

// Resolution is a candle bucket width.
type Resolution int

// Supported resolutions, ordered by bucket width.
const (
	ResolutionS1 Resolution = iota
	ResolutionM1
	ResolutionM5
	ResolutionM15
	ResolutionH1
	ResolutionD1
)

// ResolutionCount is the number of resolutions maintained for every trade.
const ResolutionCount = 6

var resolutionNames = [ResolutionCount]string{"S1", "M1", "M5", "M15", "H1", "D1"}

var resolutionSeconds = [ResolutionCount]int64{1, 60, 300, 900, 3600, 86400}

// AllResolutions returns every supported resolution in ascending width order.
func AllResolutions() [ResolutionCount]Resolution {
	return [ResolutionCount]Resolution{
		ResolutionS1,
		ResolutionM1,
		ResolutionM5,
		ResolutionM15,
		ResolutionH1,
		ResolutionD1,
	}
}

// ParseResolution parses a short resolution name (S1, M1, M5, M15, H1, D1).
func ParseResolution(s string) (Resolution, error) {
	for i, name := range resolutionNames {
		if name == s {
			return Resolution(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resolution %q", s)
}

// Valid reports whether r is one of the supported resolutions.
func (r Resolution) Valid() bool {
	return r >= ResolutionS1 && r <= ResolutionD1
}

// String returns the short name.
func (r Resolution) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
	return resolutionNames[r]
}

// Seconds returns the bucket width in seconds.
func (r Resolution) Seconds() int64 {
	if !r.Valid() {
		return 0
	}
	return resolutionSeconds[r]
}

// Millis returns the bucket width in milliseconds.
func (r Resolution) Millis() int64 {
	return r.Seconds() * 1000
}

// Align returns the start of the bucket containing unix timestamp ts (seconds).
func (r Resolution) Align(ts int64) int64 {
	w := r.Seconds()
	if w == 0 {
		return ts
	}
	// floor division, so pre-epoch timestamps align downwards too
	q := ts / w
	if ts%w != 0 && ts < 0 {
		q--
	}
	return q * w
}

// MarshalText encodes the resolution as its short name.
func (r Resolution) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid resolution %d", int(r))
	}
	return []byte(resolutionNames[r]), nil
}

// UnmarshalText decodes a short resolution name.
func (r *Resolution) UnmarshalText(text []byte) error {
	parsed, err := ParseResolution(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
