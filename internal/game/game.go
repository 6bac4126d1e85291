// Package game defines the campfire domain types: the phase cycle, the
// singleton game state, rounds of submissions, options and votes.
// It has zero external dependencies.
package game

import "time"

type Phase string

const (
	PhaseListen  Phase = "LISTEN"
	PhaseSubmit  Phase = "SUBMIT"
	PhaseVote    Phase = "VOTE"
	PhaseProcess Phase = "PROCESS"
)

// ParsePhase accepts exactly the four phase names.
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(s); p {
	case PhaseListen, PhaseSubmit, PhaseVote, PhaseProcess:
		return p, true
	}
	return "", false
}

func (p Phase) String() string { return string(p) }

// Next returns the phase a due tick moves p into. PROCESS rotates back to
// SUBMIT; LISTEN is never revisited by the timer.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhaseListen:
		return PhaseSubmit, true
	case PhaseSubmit:
		return PhaseVote, true
	case PhaseVote:
		return PhaseProcess, true
	case PhaseProcess:
		return PhaseSubmit, true
	}
	return "", false
}

// GameState is the single shared record the phase engine advances.
// Empty IDs and nil times stand for NULL columns.
type GameState struct {
	ID                   string
	Phase                Phase
	CurrentEpisodeID     string
	CurrentSeriesBibleID string
	PhaseExpiry          *time.Time
	IsTransitioning      bool
	TransitioningSince   *time.Time
	UpdatedAt            time.Time
}

// Due reports whether the armed timer has run out at now.
func (s GameState) Due(now time.Time) bool {
	return s.PhaseExpiry != nil && !now.Before(*s.PhaseExpiry)
}

type Episode struct {
	ID              string
	SeasonNum       int
	EpisodeNum      int
	Title           string
	Narrative       string
	AudioURL        string
	CreditedAuthors []string
	CreatedAt       time.Time
}

type SeriesBible struct {
	ID            string
	Title         string
	Genre         string
	Tone          string
	Premise       string
	Content       []byte // raw JSON
	IntroAudioURL string
	CreatedAt     time.Time
}

type Submission struct {
	ID          string
	EpisodeID   string
	UserID      string
	Content     string
	Heat        int
	IsSynthetic bool
	CreatedAt   time.Time
}

// PathOption is one of the three paths offered in a VOTE phase.
// SourceSubmissionIDs is nil when the option credits nobody and empty
// when it was drawn from synthetic submissions only.
type PathOption struct {
	ID                  string
	EpisodeID           string
	Title               string
	Description         string
	SourceSubmissionIDs []string
	CreatedAt           time.Time
}

// OptionDraft is a PathOption before it is stored.
type OptionDraft struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	SourceSubmissionIDs []string `json:"sourceSubmissionIds"`
}

// OptionsPerRound is the fixed number of paths offered for a vote.
const OptionsPerRound = 3

type Vote struct {
	ID        string
	UserID    string
	OptionID  string
	CreatedAt time.Time
}

type Profile struct {
	ID           string
	Username     string
	IsAdmin      bool
	PasswordHash string
	CreatedAt    time.Time
}

// PurgeCounts reports what a round rotation deleted.
type PurgeCounts struct {
	Votes       int64 `json:"votes"`
	Options     int64 `json:"options"`
	Submissions int64 `json:"submissions"`
}
