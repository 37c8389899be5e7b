package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// naiveLayouts are ISO-8601 forms without an offset. They are read as UTC,
// which is what the server hands out.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Watermark is a client's last-sync point. On the wire it may be RFC 3339,
// ISO-8601 without an offset, or epoch seconds (integer or fractional).
// null and "" mean "from the beginning".
type Watermark struct {
	time.Time
}

func (w *Watermark) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		w.Time = time.Time{}
		return nil
	}

	if data[0] != '"' {
		t, err := parseEpoch(string(data))
		if err != nil {
			return err
		}
		w.Time = t
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := ParseWatermark(s)
	if err != nil {
		return err
	}
	w.Time = t
	return nil
}

// ParseWatermark accepts the same forms as the JSON decoder, without quoting.
func ParseWatermark(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := parseEpoch(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC 3339, ISO-8601 or epoch seconds", s)
}

func parseEpoch(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("invalid epoch timestamp %q", s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(i, 0).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}
