package common

import "time"

func NowMillis() int64 {
	return TimeToMillis(time.Now())
}

func TimeToMillis(t time.Time) int64 {
	return t.UnixNano() / 1e6
}

func MillisToTime(millis int64) time.Time {
	return time.Unix(0, millis*1e6)
}

func MinutesToMillis(minutes int) int64 {
	return int64(minutes) * 60 * 1000
}

// MillisToDuration converts a millisecond count, as used in grid snapshots, to a time.Duration
func MillisToDuration(millis int64) time.Duration {
	return time.Duration(millis) * time.Millisecond
}
