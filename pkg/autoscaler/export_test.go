package autoscaler

// SetTimeNow replaces the clock used by manual operations and event timestamps
func SetTimeNow(fx func() int64) func() int64 {
	prev := timeNow
	timeNow = fx
	return prev
}
