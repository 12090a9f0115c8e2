package models

import (
	"strings"
	"time"
)

// UnlimitedCapacity marks a room or occurrence that never fills up.
// A capacity of zero forbids all signups.
const UnlimitedCapacity = -1

// Sponsor is a staff member responsible for an activity. It may be
// linked to a user account or exist as a bare name.
type Sponsor struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	ShowFullName bool      `db:"show_full_name" json:"show_full_name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Name returns the sponsor's display name. Full names are shown only
// when requested, e.g. to disambiguate two teachers sharing a surname.
func (s *Sponsor) Name() string {
	if s.ShowFullName {
		return s.FirstName + " " + s.LastName
	}
	return s.LastName
}

// SponsorNames joins sponsor display names for snapshot fields.
func SponsorNames(sponsors []Sponsor) string {
	names := make([]string, len(sponsors))
	for i := range sponsors {
		names[i] = sponsors[i].Name()
	}
	return strings.Join(names, ", ")
}

// Room is a physical space an activity can be held in.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TotalRoomCapacity sums room capacities. Any unlimited room makes the
// whole set unlimited.
func TotalRoomCapacity(rooms []Room) int {
	total := 0
	for _, r := range rooms {
		if r.Capacity == UnlimitedCapacity {
			return UnlimitedCapacity
		}
		total += r.Capacity
	}
	return total
}

// Activity is a reusable offering template scheduled into blocks.
type Activity struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`

	Presign        bool `db:"presign" json:"presign"`
	OneADay        bool `db:"one_a_day" json:"one_a_day"`
	BothBlocks     bool `db:"both_blocks" json:"both_blocks"`
	Sticky         bool `db:"sticky" json:"sticky"`
	Special        bool `db:"special" json:"special"`
	Administrative bool `db:"administrative" json:"administrative"`
	Restricted     bool `db:"restricted" json:"restricted"`
	Deleted        bool `db:"deleted" json:"deleted"`

	FreshmenAllowed   bool `db:"freshmen_allowed" json:"freshmen_allowed"`
	SophomoresAllowed bool `db:"sophomores_allowed" json:"sophomores_allowed"`
	JuniorsAllowed    bool `db:"juniors_allowed" json:"juniors_allowed"`
	SeniorsAllowed    bool `db:"seniors_allowed" json:"seniors_allowed"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NameWithFlags renders the activity name annotated with its flags,
// the form used for displaced-activity snapshots.
func (a *Activity) NameWithFlags() string {
	return a.nameWithFlags(true)
}

// NameWithFlagsNoRestricted omits the restricted marker, for listings
// shown to users outside the allow-list.
func (a *Activity) NameWithFlagsNoRestricted() string {
	return a.nameWithFlags(false)
}

func (a *Activity) nameWithFlags(includeRestricted bool) string {
	var b strings.Builder
	if a.Special {
		b.WriteString("Special: ")
	}
	b.WriteString(a.Name)
	if includeRestricted && a.Restricted {
		b.WriteString(" (R)")
	}
	if a.BothBlocks {
		b.WriteString(" (BB)")
	}
	if a.Administrative {
		b.WriteString(" (A)")
	}
	if a.Sticky {
		b.WriteString(" (S)")
	}
	if a.Deleted {
		b.WriteString(" (Deleted)")
	}
	return b.String()
}

// GradeAllowed reports whether the activity's grade-level allow-list
// admits the given grade.
func (a *Activity) GradeAllowed(grade int) bool {
	switch grade {
	case 9:
		return a.FreshmenAllowed
	case 10:
		return a.SophomoresAllowed
	case 11:
		return a.JuniorsAllowed
	case 12:
		return a.SeniorsAllowed
	default:
		return false
	}
}

// Block identifies one scheduling slot: a (date, letter) pair.
type Block struct {
	ID          string     `db:"id" json:"id"`
	Date        time.Time  `db:"date" json:"date"`
	BlockLetter string     `db:"block_letter" json:"block_letter"`
	Locked      bool       `db:"locked" json:"locked"`
	SignupTime  *time.Time `db:"signup_time" json:"signup_time,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// DisplayName renders the block as "Jan 2, 2006 (A)".
func (b *Block) DisplayName() string {
	return b.Date.Format("Jan 2, 2006") + " (" + b.BlockLetter + ")"
}

// IsToday reports whether the block occurs on the given wall-clock day.
func (b *Block) IsToday(now time.Time) bool {
	y1, m1, d1 := b.Date.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// BlockFilter describes query params for listing blocks.
type BlockFilter struct {
	Date     *time.Time
	Locked   *bool
	Page     int
	PageSize int
}
