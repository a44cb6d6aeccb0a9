// Package notify posts archived-raid summaries to a Discord webhook.
package notify

import "time"

// TimerHandle allows stopping a scheduled callback.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) TimerHandle

// DefaultAfterFunc is time.AfterFunc.
var DefaultAfterFunc AfterFunc = func(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}
