package models

import (
	"fmt"
	"time"
)

// Signup is a user's reservation of a seat in a scheduled activity.
// Unique on (user_id, block_id): a user holds at most one signup per
// block.
type Signup struct {
	ID                  string `db:"id" json:"id"`
	UserID              string `db:"user_id" json:"user_id"`
	ScheduledActivityID string `db:"scheduled_activity_id" json:"scheduled_activity_id"`
	BlockID             string `db:"block_id" json:"block_id"`

	// AfterDeadline marks a late signup, treated as a pass.
	AfterDeadline bool `db:"after_deadline" json:"after_deadline"`

	// PreviousActivityName and PreviousActivitySponsors snapshot the
	// activity a signup displaced. Set only on displacement.
	PreviousActivityName     *string `db:"previous_activity_name" json:"previous_activity_name,omitempty"`
	PreviousActivitySponsors *string `db:"previous_activity_sponsors" json:"previous_activity_sponsors,omitempty"`

	PassAccepted        bool `db:"pass_accepted" json:"pass_accepted"`
	WasAbsent           bool `db:"was_absent" json:"was_absent"`
	AbsenceAcknowledged bool `db:"absence_acknowledged" json:"absence_acknowledged"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SignupDetail joins a signup with its block and activity for listings
// and for the coordinator's displacement bookkeeping.
type SignupDetail struct {
	Signup
	Block    Block    `json:"block"`
	Activity Activity `json:"activity"`
}

// ViolationKind tags one eligibility rule a signup attempt violated.
type ViolationKind string

const (
	ViolationBlockLocked                ViolationKind = "BlockLocked"
	ViolationScheduledActivityCancelled ViolationKind = "ScheduledActivityCancelled"
	ViolationActivityDeleted            ViolationKind = "ActivityDeleted"
	ViolationActivityFull               ViolationKind = "ActivityFull"
	ViolationPresign                    ViolationKind = "Presign"
	ViolationSticky                     ViolationKind = "Sticky"
	ViolationOneADay                    ViolationKind = "OneADay"
	ViolationRestricted                 ViolationKind = "Restricted"
)

// GenericDenialMessage is what non-admin callers see in place of rule
// details.
const GenericDenialMessage = "You are not able to sign up for this activity. Contact the eighth period office for assistance."

// SignupViolation pairs a violated rule with its admin-facing message.
type SignupViolation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

// SignupViolationError accumulates every rule a signup attempt
// violated. Rules are checked independently, never short-circuited.
type SignupViolationError struct {
	Violations []SignupViolation `json:"violations"`
}

// Error implements the error interface.
func (e *SignupViolationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "signup denied"
	}
	return fmt.Sprintf("signup denied: %s", e.Violations[0].Kind)
}

// Has reports whether the given rule is among the violations.
func (e *SignupViolationError) Has(kind ViolationKind) bool {
	if e == nil {
		return false
	}
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Messages renders the violation list for a caller. Admin callers see
// internal rule names and messages; everyone else gets the generic
// denial only.
func (e *SignupViolationError) Messages(admin bool) []string {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	if !admin {
		return []string{GenericDenialMessage}
	}
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = fmt.Sprintf("%s: %s", v.Kind, v.Message)
	}
	return out
}

// SignupPlan is the ordered mutation set the coordinator hands to the
// ledger: capture happened before the plan was built, then deletes run
// before creates within one transaction, all-or-none.
type SignupPlan struct {
	UserID        string
	ActivityID    string
	Date          time.Time
	AfterDeadline bool
	Force         bool

	// Reassign moves an existing signup to a new occurrence in place,
	// preserving the row so the displaced-activity trail survives.
	// Mutually exclusive with ClearDay/Creates for the same block.
	Reassign *SignupReassign

	// ClearDay deletes every signup the user holds on Date before the
	// creates run (both-blocks replacement).
	ClearDay bool

	Creates []SignupCreate

	// CapacityChecks are re-verified inside the transaction for
	// non-forced plans; a full occurrence aborts the whole plan.
	CapacityChecks []CapacityCheck
}

// SignupReassign updates a signup row in place.
type SignupReassign struct {
	SignupID                 string
	ScheduledActivityID      string
	BlockID                  string
	PreviousActivityName     string
	PreviousActivitySponsors string
}

// SignupCreate inserts a fresh signup, optionally carrying forward a
// displaced-activity snapshot.
type SignupCreate struct {
	ScheduledActivityID      string
	BlockID                  string
	PreviousActivityName     *string
	PreviousActivitySponsors *string
}

// CapacityCheck pins the effective capacity of an occurrence the plan
// adds the user to.
type CapacityCheck struct {
	ScheduledActivityID string
	Capacity            int
}
