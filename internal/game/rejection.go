package game

import "fmt"

type RejectionKind int

const (
	Invalid RejectionKind = iota
	Conflict
	TooMany
	Missing
	Unavailable
)

// Rejection is a refused request whose message is meant for the caller as is.
type Rejection struct {
	Kind RejectionKind
	Msg  string
}

func (r *Rejection) Error() string { return r.Msg }

func Reject(kind RejectionKind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrVotingNotOpen   = &Rejection{Conflict, "Voting is not open."}
	ErrVotingClosed    = &Rejection{Conflict, "Voting has closed."}
	ErrVoteInvalid     = &Rejection{Conflict, "This vote is no longer valid."}
	ErrSubmitNotOpen   = &Rejection{Conflict, "Submissions are not open."}
	ErrSubmitClosed    = &Rejection{Conflict, "Submissions have closed."}
	ErrSubmitEmpty     = &Rejection{Invalid, "Say something first."}
	ErrSubmitTooLong   = &Rejection{Invalid, "Keep it under 500 characters."}
	ErrEchoFaded       = &Rejection{Missing, "This echo has faded."}
	ErrBoostCooldown   = &Rejection{TooMany, "Let the fire breathe a moment."}
	ErrFireCrowded     = &Rejection{Conflict, "The fire is crowded, try again."}
	ErrNoActiveEpisode = &Rejection{Conflict, "No active episode."}
	ErrInvalidPhase    = &Rejection{Invalid, "Invalid phase."}
	ErrOptionCount     = &Rejection{Invalid, "Must provide exactly 3 options."}
	ErrOptionFields    = &Rejection{Invalid, "Each option must have a title and description."}
	ErrAlreadyIgnited  = &Rejection{Conflict, "Campaign already ignited."}
	ErrNotEnoughData   = &Rejection{Invalid, "Not enough data to synthesize options."}
	ErrNoWriter        = &Rejection{Unavailable, "Story generation is not configured."}
	ErrNoStoryBible    = &Rejection{Missing, "No active story bible found. Ignite a campaign first."}
)

// MaxSubmissionRunes bounds a participant submission.
const MaxSubmissionRunes = 500
