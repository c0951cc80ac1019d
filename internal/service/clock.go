package service

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock truncates to microseconds to match Postgres timestamp precision,
// so values compared in memory and in SQL agree.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
