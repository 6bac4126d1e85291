package game

import (
	"math"
	"time"
)

// DefaultOverrideMinutes applies when an administrative duration override
// is not a usable number.
const DefaultOverrideMinutes = 15

// Policy maps each timed phase to how long it stays open. LISTEN has no
// timer of its own.
type Policy struct {
	Submit  time.Duration
	Vote    time.Duration
	Process time.Duration
}

// Duration returns the timer length for p and false for LISTEN.
func (pol Policy) Duration(p Phase) (time.Duration, bool) {
	switch p {
	case PhaseSubmit:
		return pol.Submit, true
	case PhaseVote:
		return pol.Vote, true
	case PhaseProcess:
		return pol.Process, true
	}
	return 0, false
}

// ExpiryFrom returns the expiry for entering p at now, or nil when p is
// untimed.
func (pol Policy) ExpiryFrom(p Phase, now time.Time) *time.Time {
	d, ok := pol.Duration(p)
	if !ok {
		return nil
	}
	t := now.Add(d)
	return &t
}

// OverrideDuration turns a requested number of minutes into a duration:
// floored, never below one minute, and DefaultOverrideMinutes when the input
// is NaN or infinite.
func OverrideDuration(minutes float64) time.Duration {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return DefaultOverrideMinutes * time.Minute
	}
	m := math.Max(1, math.Floor(minutes))
	return time.Duration(m) * time.Minute
}
