package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledActivityDetailIsFull(t *testing.T) {
	detail := ScheduledActivityDetail{TrueCapacity: 2, SignupCount: 1}
	assert.False(t, detail.IsFull())

	detail.SignupCount = 2
	assert.True(t, detail.IsFull())
	assert.False(t, detail.IsOverbooked())

	detail.SignupCount = 3
	assert.True(t, detail.IsOverbooked())

	detail = ScheduledActivityDetail{TrueCapacity: UnlimitedCapacity, SignupCount: 10000}
	assert.False(t, detail.IsFull())
	assert.False(t, detail.IsOverbooked())

	detail = ScheduledActivityDetail{TrueCapacity: 0, SignupCount: 0}
	assert.True(t, detail.IsFull())
}

func TestIsTooEarlyToSignup(t *testing.T) {
	detail := ScheduledActivityDetail{
		Block: Block{Date: time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)},
	}

	// Window opens at midnight two days before the block.
	tooEarly := time.Date(2026, 4, 7, 23, 59, 0, 0, time.UTC)
	assert.True(t, detail.IsTooEarlyToSignup(tooEarly, 2))

	open := time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)
	assert.False(t, detail.IsTooEarlyToSignup(open, 2))

	dayOf := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	assert.False(t, detail.IsTooEarlyToSignup(dayOf, 2))
}
