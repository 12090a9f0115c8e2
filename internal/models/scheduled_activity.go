package models

import "time"

// ScheduledActivity joins an activity to a block, carrying
// per-occurrence overrides. Unique on (block_id, activity_id).
type ScheduledActivity struct {
	ID         string `db:"id" json:"id"`
	BlockID    string `db:"block_id" json:"block_id"`
	ActivityID string `db:"activity_id" json:"activity_id"`

	// Capacity overrides the capacity derived from the resolved rooms
	// when set.
	Capacity *int `db:"capacity" json:"capacity,omitempty"`

	Comments      string `db:"comments" json:"comments"`
	AdminComments string `db:"admin_comments" json:"admin_comments"`

	AttendanceTaken bool `db:"attendance_taken" json:"attendance_taken"`
	Cancelled       bool `db:"cancelled" json:"cancelled"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduledActivityDetail is an occurrence joined with its block and
// activity plus resolved capacity state, the unit the eligibility rules
// operate on.
type ScheduledActivityDetail struct {
	ScheduledActivity
	Block    Block    `json:"block"`
	Activity Activity `json:"activity"`

	// TrueCapacity is the effective capacity: the occurrence override
	// when set, otherwise the summed capacity of the resolved rooms.
	TrueCapacity int `json:"true_capacity"`
	// SignupCount is the current ledger occupancy.
	SignupCount int `json:"signup_count"`

	Sponsors []Sponsor `json:"sponsors,omitempty"`
	Rooms    []Room    `json:"rooms,omitempty"`
}

// IsFull reports whether occupancy has reached effective capacity.
// Unlimited capacity is never full.
func (d *ScheduledActivityDetail) IsFull() bool {
	if d.TrueCapacity == UnlimitedCapacity {
		return false
	}
	return d.SignupCount >= d.TrueCapacity
}

// IsOverbooked reports whether occupancy exceeds effective capacity.
func (d *ScheduledActivityDetail) IsOverbooked() bool {
	if d.TrueCapacity == UnlimitedCapacity {
		return false
	}
	return d.SignupCount > d.TrueCapacity
}

// IsTooEarlyToSignup applies the presign lead window: signups open
// presignDays before the block's date at midnight.
func (d *ScheduledActivityDetail) IsTooEarlyToSignup(now time.Time, presignDays int) bool {
	activityDate := time.Date(d.Block.Date.Year(), d.Block.Date.Month(), d.Block.Date.Day(), 0, 0, 0, 0, now.Location())
	opensAt := activityDate.AddDate(0, 0, -presignDays)
	return now.Before(opensAt)
}
