package models

// BlockRosterView is the signup page payload for one block: every
// non-deleted occurrence with resolved capacity state, plus the
// viewing user's current signup when one exists.
type BlockRosterView struct {
	Block      Block                     `json:"block"`
	Activities []ScheduledActivityDetail `json:"activities"`
	UserSignup *SignupDetail             `json:"user_signup,omitempty"`
}

// RosterEntry is one attendance line for a block's printed roster.
type RosterEntry struct {
	UserName      string `db:"full_name" json:"user_name"`
	Email         string `db:"email" json:"email"`
	ActivityName  string `db:"name" json:"activity_name"`
	AfterDeadline bool   `db:"after_deadline" json:"after_deadline"`
}
