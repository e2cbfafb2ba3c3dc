package telemetry

import "time"

// BucketTime maps a raw timestamp onto the canonical 30-second grid.
//
// Seconds 0-14 floor to the current half-minute boundary, 15-44 map to the
// :30 mark of the same minute, and 45-59 roll forward to the next minute's
// :00. The result is rounding to the nearest grid point, so two polls that
// land in the same half-minute window always share a bucket.
func BucketTime(raw time.Time) time.Time {
	truncated := raw.Truncate(time.Minute)
	switch sec := raw.Second(); {
	case sec < 15:
		return truncated
	case sec < 45:
		return truncated.Add(30 * time.Second)
	default:
		return truncated.Add(time.Minute)
	}
}

// Bucket5MinEnd maps a timestamp to the END of its 5-minute period.
// 10:00:00-10:04:59 all report as 10:05:00; an exact boundary is kept as-is.
func Bucket5MinEnd(t time.Time) time.Time {
	floored := t.Truncate(5 * time.Minute)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(5 * time.Minute)
}
