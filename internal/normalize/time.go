package normalize

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// tsFormat identifies a provider's native timestamp encoding. All
// timestamps normalize to UTC regardless of format.
type tsFormat int

const (
	tsRFC3339 tsFormat = iota // "2024-01-02T15:04:05.999999999Z"
	tsUnixSec                 // 1704207845
	tsUnixMilli               // 1704207845000
	tsDate                    // "2024-01-02" (daily bars)
)

// parseTime converts a provider timestamp value to UTC.
func parseTime(format tsFormat, v gjson.Result) (time.Time, error) {
	if !v.Exists() {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}
	switch format {
	case tsRFC3339:
		t, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v.String(), err)
		}
		return t.UTC(), nil
	case tsUnixSec:
		return time.Unix(v.Int(), 0).UTC(), nil
	case tsUnixMilli:
		return time.UnixMilli(v.Int()).UTC(), nil
	case tsDate:
		t, err := time.Parse("2006-01-02", v.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing date %q: %w", v.String(), err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unknown timestamp format %d", format)
}
