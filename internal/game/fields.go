package game

import "time"

// Fields names a subset of GameState columns, either as values to write or
// as values a conditional update must match. A nil pointer leaves the column
// out; a pointer to a zero value stands for NULL.
type Fields struct {
	Phase              *Phase
	EpisodeID          *string
	SeriesBibleID      *string
	PhaseExpiry        *time.Time
	IsTransitioning    *bool
	TransitioningSince *time.Time
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Null is the NULL marker for time columns in Fields.
func Null() *time.Time { return &time.Time{} }

// TimeOrNull maps a nullable GameState time onto a Fields value.
func TimeOrNull(t *time.Time) *time.Time {
	if t == nil {
		return Null()
	}
	return Ptr(*t)
}

// Empty reports whether f names no column.
func (f Fields) Empty() bool {
	return f.Phase == nil && f.EpisodeID == nil && f.SeriesBibleID == nil &&
		f.PhaseExpiry == nil && f.IsTransitioning == nil && f.TransitioningSince == nil
}
