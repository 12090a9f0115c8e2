package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/czhao39/ion/internal/models"
)

type eligibilityLedger interface {
	ExistsStickyInBlock(ctx context.Context, userID, blockID string) (bool, error)
	ExistsStickyOnDate(ctx context.Context, userID string, date time.Time, activityID string) (bool, error)
	ExistsSameActivityOnDate(ctx context.Context, userID string, date time.Time, activityID, excludeBlockID string) (bool, error)
}

type allowListResolver interface {
	RestrictedActivityIDsForUser(ctx context.Context, user *models.User, groupIDs []string) ([]string, error)
}

type groupReader interface {
	GroupIDs(ctx context.Context, userID string) ([]string, error)
}

// EligibilityService decides whether a signup attempt is permitted.
// Every rule is checked independently and all violations are returned
// together so the caller can render them at once.
type EligibilityService struct {
	ledger      eligibilityLedger
	allowLists  allowListResolver
	groups      groupReader
	presignDays int
	logger      *zap.Logger
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(ledger eligibilityLedger, allowLists allowListResolver, groups groupReader, presignDays int, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if presignDays <= 0 {
		presignDays = 2
	}
	return &EligibilityService{ledger: ledger, allowLists: allowLists, groups: groups, presignDays: presignDays, logger: logger}
}

// Evaluate checks the user against the target occurrence and the full
// relevant set (the target alone, or every same-day occurrence for
// both-blocks activities). A nil violation result means permitted.
// Callers honoring a force override skip Evaluate entirely.
func (s *EligibilityService) Evaluate(ctx context.Context, user *models.User, target *models.ScheduledActivityDetail, relevant []models.ScheduledActivityDetail, now time.Time) (*models.SignupViolationError, error) {
	var violations []models.SignupViolation
	add := func(kind models.ViolationKind, message string) {
		for _, v := range violations {
			if v.Kind == kind {
				return
			}
		}
		violations = append(violations, models.SignupViolation{Kind: kind, Message: message})
	}

	for i := range relevant {
		if relevant[i].Block.Locked {
			add(models.ViolationBlockLocked, fmt.Sprintf("signups for block %s are locked", relevant[i].Block.DisplayName()))
		}
	}

	for i := range relevant {
		if relevant[i].Cancelled {
			add(models.ViolationScheduledActivityCancelled, "this activity has been cancelled for the block")
		}
	}

	if target.Activity.Deleted {
		add(models.ViolationActivityDeleted, "this activity has been deleted")
	}

	for i := range relevant {
		if relevant[i].IsFull() {
			add(models.ViolationActivityFull, "this activity is full")
		}
	}

	if target.Activity.Presign && target.IsTooEarlyToSignup(now, s.presignDays) {
		add(models.ViolationPresign, fmt.Sprintf("this activity requires presigning and opens %d days before the block", s.presignDays))
	}

	// The sticky check has two deliberate branches. For ordinary
	// activities any sticky signup in the target block pins the user.
	// For both-blocks activities the query scopes to the same activity
	// across the whole day instead.
	var inSticky bool
	var err error
	if !target.Activity.BothBlocks {
		inSticky, err = s.ledger.ExistsStickyInBlock(ctx, user.ID, target.BlockID)
	} else {
		inSticky, err = s.ledger.ExistsStickyOnDate(ctx, user.ID, target.Block.Date, target.ActivityID)
	}
	if err != nil {
		return nil, fmt.Errorf("sticky check: %w", err)
	}
	if inSticky {
		add(models.ViolationSticky, "you are in a sticky activity and cannot change this signup")
	}

	if !target.Activity.BothBlocks && target.Activity.OneADay {
		inActivity, err := s.ledger.ExistsSameActivityOnDate(ctx, user.ID, target.Block.Date, target.ActivityID, target.BlockID)
		if err != nil {
			return nil, fmt.Errorf("one-a-day check: %w", err)
		}
		if inActivity {
			add(models.ViolationOneADay, "you may only sign up for this activity once per day")
		}
	}

	if target.Activity.Restricted {
		allowed, err := s.isAllowed(ctx, user, target.ActivityID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			add(models.ViolationRestricted, "you are not on the allow-list for this restricted activity")
		}
	}

	if len(violations) == 0 {
		return nil, nil
	}
	s.logger.Debug("signup attempt denied",
		zap.String("user_id", user.ID),
		zap.String("scheduled_activity_id", target.ID),
		zap.Int("violations", len(violations)),
	)
	return &models.SignupViolationError{Violations: violations}, nil
}

func (s *EligibilityService) isAllowed(ctx context.Context, user *models.User, activityID string) (bool, error) {
	groupIDs, err := s.groups.GroupIDs(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("resolve groups: %w", err)
	}
	allowedIDs, err := s.allowLists.RestrictedActivityIDsForUser(ctx, user, groupIDs)
	if err != nil {
		return false, fmt.Errorf("resolve allow-list: %w", err)
	}
	for _, id := range allowedIDs {
		if id == activityID {
			return true, nil
		}
	}
	return false, nil
}
