package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivityNameWithFlags(t *testing.T) {
	activity := Activity{
		Name:       "Sign Language Club",
		Special:    true,
		Restricted: true,
		BothBlocks: true,
		Sticky:     true,
	}
	assert.Equal(t, "Special: Sign Language Club (R) (BB) (S)", activity.NameWithFlags())
	assert.Equal(t, "Special: Sign Language Club (BB) (S)", activity.NameWithFlagsNoRestricted())

	deleted := Activity{Name: "Old Club", Administrative: true, Deleted: true}
	assert.Equal(t, "Old Club (A) (Deleted)", deleted.NameWithFlags())

	plain := Activity{Name: "Chess Club"}
	assert.Equal(t, "Chess Club", plain.NameWithFlags())
}

func TestActivityGradeAllowed(t *testing.T) {
	activity := Activity{SophomoresAllowed: true, SeniorsAllowed: true}
	assert.False(t, activity.GradeAllowed(9))
	assert.True(t, activity.GradeAllowed(10))
	assert.False(t, activity.GradeAllowed(11))
	assert.True(t, activity.GradeAllowed(12))
	assert.False(t, activity.GradeAllowed(13))
}

func TestTotalRoomCapacity(t *testing.T) {
	rooms := []Room{{Capacity: 28}, {Capacity: 15}}
	assert.Equal(t, 43, TotalRoomCapacity(rooms))

	withUnlimited := []Room{{Capacity: 28}, {Capacity: UnlimitedCapacity}}
	assert.Equal(t, UnlimitedCapacity, TotalRoomCapacity(withUnlimited))

	assert.Equal(t, 0, TotalRoomCapacity(nil))
}

func TestSponsorName(t *testing.T) {
	sponsor := Sponsor{FirstName: "Jane", LastName: "Smith"}
	assert.Equal(t, "Smith", sponsor.Name())

	sponsor.ShowFullName = true
	assert.Equal(t, "Jane Smith", sponsor.Name())

	names := SponsorNames([]Sponsor{
		{FirstName: "Jane", LastName: "Smith", ShowFullName: true},
		{FirstName: "Joe", LastName: "Jones"},
	})
	assert.Equal(t, "Jane Smith, Jones", names)
}

func TestBlockDisplayName(t *testing.T) {
	block := Block{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), BlockLetter: "B"}
	assert.Equal(t, "Jan 2, 2026 (B)", block.DisplayName())
}
