// Package usage tracks per-credential, per-resource quota consumption and
// persists it across process restarts.
package usage

import (
	"time"

	"github.com/jmylchreest/distill/pkg/quota"
)

// Counter is the usage row for one (credential, resource) pair.
type Counter struct {
	CredentialID     string    `json:"credential_id" yaml:"credential_id"`
	ResourceID       string    `json:"resource_id" yaml:"resource_id"`
	WindowStart      time.Time `json:"window_start" yaml:"window_start"`
	RequestsInWindow int       `json:"requests_in_window" yaml:"requests_in_window"`
	TokensInWindow   int       `json:"tokens_in_window" yaml:"tokens_in_window"`
	DayStamp         string    `json:"day_stamp" yaml:"day_stamp"`
	RequestsToday    int       `json:"requests_today" yaml:"requests_today"`
}

// DayStamp formats the UTC calendar day used for the daily counter.
func DayStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WindowElapsed reports whether the minute window has expired at now.
func (c Counter) WindowElapsed(now time.Time) bool {
	return c.WindowStart.IsZero() || now.Sub(c.WindowStart) >= quota.Window
}

// Roll resets whichever windows have expired at now.
func (c *Counter) Roll(now time.Time) {
	if c.WindowElapsed(now) {
		c.WindowStart = now
		c.RequestsInWindow = 0
		c.TokensInWindow = 0
	}
	if today := DayStamp(now); c.DayStamp != today {
		c.DayStamp = today
		c.RequestsToday = 0
	}
}

// Record rolls the counter and accounts one request of the given size.
func (c *Counter) Record(now time.Time, tokens int) {
	c.Roll(now)
	c.RequestsInWindow++
	c.TokensInWindow += tokens
	c.RequestsToday++
}

// Admit decides whether a request of est tokens fits the limits at now.
// When it does not, wait is how long until it might.
func (c Counter) Admit(now time.Time, limits quota.Limits, est int) (ok bool, wait time.Duration) {
	if c.DayStamp == DayStamp(now) && c.RequestsToday >= limits.RPD {
		return false, quota.DailyCooldown
	}

	if c.WindowElapsed(now) {
		return true, 0
	}

	if c.RequestsInWindow >= limits.RPM || c.TokensInWindow+est > limits.TPM {
		wait = quota.Window - now.Sub(c.WindowStart)
		if wait < time.Second {
			wait = time.Second
		}
		return false, wait
	}

	return true, 0
}
