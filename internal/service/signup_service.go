package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/czhao39/ion/internal/models"
	"github.com/czhao39/ion/internal/repository"
	appErrors "github.com/czhao39/ion/pkg/errors"
)

type signupLedger interface {
	FindByUserAndBlock(ctx context.Context, userID, blockID string) (*models.SignupDetail, error)
	ListByUserAndDate(ctx context.Context, userID string, date time.Time) ([]models.SignupDetail, error)
	ListByUser(ctx context.Context, userID string) ([]models.SignupDetail, error)
	Apply(ctx context.Context, plan *models.SignupPlan) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserDateActivity(ctx context.Context, userID string, date time.Time, activityID string) error
}

type occurrenceReader interface {
	FindSignupTarget(ctx context.Context, blockID, activityID string) (*models.ScheduledActivityDetail, error)
	FindDetailByID(ctx context.Context, id string) (*models.ScheduledActivityDetail, error)
	ListByActivityAndDate(ctx context.Context, activityID string, date time.Time) ([]models.ScheduledActivityDetail, error)
}

type signupUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type signupBlockReader interface {
	FindByID(ctx context.Context, id string) (*models.Block, error)
}

type evaluator interface {
	Evaluate(ctx context.Context, user *models.User, target *models.ScheduledActivityDetail, relevant []models.ScheduledActivityDetail, now time.Time) (*models.SignupViolationError, error)
}

type rosterInvalidator interface {
	InvalidateRoster(ctx context.Context, blockIDs ...string)
}

// SignupRequest is the signup operation payload.
type SignupRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	BlockID    string `json:"block_id" validate:"required"`
	ActivityID string `json:"activity_id" validate:"required"`
	Force      bool   `json:"force"`
}

// UnsignupRequest is the un-signup operation payload.
type UnsignupRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	BlockID string `json:"block_id" validate:"required"`
	Force   bool   `json:"force"`
}

// SignupResult reports a successful ledger mutation. Notification
// dispatch is the caller's concern.
type SignupResult struct {
	Message string                `json:"message"`
	Signups []models.SignupDetail `json:"signups,omitempty"`
}

// SignupService coordinates the read-check-write signup flow: it loads
// the target occurrence, runs the eligibility rules, then hands the
// ledger one transactional mutation plan. No other component writes
// signups.
type SignupService struct {
	ledger      signupLedger
	occurrences occurrenceReader
	users       signupUserReader
	blocks      signupBlockReader
	eligibility evaluator
	roster      rosterInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSignupService constructs SignupService.
func NewSignupService(ledger signupLedger, occurrences occurrenceReader, users signupUserReader, blocks signupBlockReader, eligibility evaluator, roster rosterInvalidator, validate *validator.Validate, logger *zap.Logger) *SignupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignupService{
		ledger:      ledger,
		occurrences: occurrences,
		users:       users,
		blocks:      blocks,
		eligibility: eligibility,
		roster:      roster,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// SignUp reserves a seat for the user in the target occurrence. For
// both-blocks activities the mutation fans out across every same-day
// occurrence as one unit.
func (s *SignupService) SignUp(ctx context.Context, req SignupRequest, actor *models.JWTClaims) (*SignupResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signup payload")
	}

	force, err := s.authorize(req.UserID, req.Force, actor)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if _, err := s.blocks.FindByID(ctx, req.BlockID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "block not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load block")
	}
	target, err := s.occurrences.FindSignupTarget(ctx, req.BlockID, req.ActivityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not scheduled for block")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduled activity")
	}

	relevant, err := s.relevantSet(ctx, target)
	if err != nil {
		return nil, err
	}

	if !force {
		violations, err := s.eligibility.Evaluate(ctx, user, target, relevant, s.now())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate signup rules")
		}
		if violations != nil {
			return nil, appErrors.Wrap(violations, appErrors.ErrSignupDenied.Code, appErrors.ErrSignupDenied.Status, "signup request denied")
		}
	}

	// A locked block at this point means an admin is pushing the
	// signup through after the deadline, so it is tagged as a pass.
	afterDeadline := target.Block.Locked

	var plan *models.SignupPlan
	if target.Activity.BothBlocks {
		plan, err = s.buildBothBlocksPlan(ctx, user.ID, target, relevant, afterDeadline, force)
	} else {
		plan, err = s.buildSingleBlockPlan(ctx, user.ID, target, afterDeadline, force)
	}
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Apply(ctx, plan); err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityExceeded):
			full := &models.SignupViolationError{Violations: []models.SignupViolation{
				{Kind: models.ViolationActivityFull, Message: "this activity is full"},
			}}
			return nil, appErrors.Wrap(full, appErrors.ErrSignupDenied.Code, appErrors.ErrSignupDenied.Status, "signup request denied")
		case errors.Is(err, repository.ErrDuplicateSignup):
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "signup conflicted with a concurrent request, try again")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply signup")
		}
	}

	s.invalidateRoster(ctx, relevant)
	s.logger.Info("signup applied",
		zap.String("user_id", user.ID),
		zap.String("activity_id", target.ActivityID),
		zap.String("block_id", target.BlockID),
		zap.Bool("both_blocks", target.Activity.BothBlocks),
		zap.Bool("force", force),
		zap.Bool("after_deadline", afterDeadline),
	)

	signups, err := s.ledger.ListByUserAndDate(ctx, user.ID, target.Block.Date)
	if err != nil {
		signups = nil
	}
	message := fmt.Sprintf("Successfully signed up for %s on %s.", target.Activity.NameWithFlags(), target.Block.DisplayName())
	return &SignupResult{Message: message, Signups: signups}, nil
}

// Unsignup removes the user's signup in a block. Both-blocks signups
// are removed across the whole day as one unit.
func (s *SignupService) Unsignup(ctx context.Context, req UnsignupRequest, actor *models.JWTClaims) (*SignupResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unsignup payload")
	}

	force, err := s.authorize(req.UserID, req.Force, actor)
	if err != nil {
		return nil, err
	}

	signup, err := s.ledger.FindByUserAndBlock(ctx, req.UserID, req.BlockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "signup does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signup")
	}

	if signup.Block.Locked && !force {
		locked := &models.SignupViolationError{Violations: []models.SignupViolation{
			{Kind: models.ViolationBlockLocked, Message: fmt.Sprintf("signups for block %s are locked", signup.Block.DisplayName())},
		}}
		return nil, appErrors.Wrap(locked, appErrors.ErrSignupDenied.Code, appErrors.ErrSignupDenied.Status, "signup request denied")
	}

	affectedBlocks := []string{signup.BlockID}
	if signup.Activity.BothBlocks {
		sameDay, err := s.ledger.ListByUserAndDate(ctx, req.UserID, signup.Block.Date)
		if err == nil {
			for _, sd := range sameDay {
				if sd.Activity.ID == signup.Activity.ID && sd.BlockID != signup.BlockID {
					affectedBlocks = append(affectedBlocks, sd.BlockID)
				}
			}
		}
		if err := s.ledger.DeleteByUserDateActivity(ctx, req.UserID, signup.Block.Date, signup.Activity.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove signups")
		}
	} else {
		if err := s.ledger.DeleteByID(ctx, signup.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "signup does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove signup")
		}
	}

	if s.roster != nil {
		s.roster.InvalidateRoster(ctx, affectedBlocks...)
	}
	s.logger.Info("signup removed",
		zap.String("user_id", req.UserID),
		zap.String("block_id", req.BlockID),
		zap.Bool("both_blocks", signup.Activity.BothBlocks),
		zap.Bool("force", force),
	)

	message := fmt.Sprintf("Successfully removed signup for %s.", signup.Block.DisplayName())
	return &SignupResult{Message: message}, nil
}

// ListForUser returns the user's signup schedule.
func (s *SignupService) ListForUser(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.SignupDetail, error) {
	if _, err := s.authorize(userID, false, actor); err != nil {
		return nil, err
	}
	signups, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list signups")
	}
	return signups, nil
}

// authorize enforces the pre-check: only the target user or an eighth
// admin may mutate a signup, and only an admin's force is honored.
func (s *SignupService) authorize(targetUserID string, force bool, actor *models.JWTClaims) (bool, error) {
	if actor == nil {
		return false, appErrors.ErrUnauthorized
	}
	if actor.UserID != targetUserID && !actor.IsEighthAdmin() {
		return false, appErrors.Clone(appErrors.ErrForbidden, "you may not change another user's signups")
	}
	return force && actor.IsEighthAdmin(), nil
}

// relevantSet resolves the occurrences a signup touches: the target
// alone, or every occurrence of the activity on the block's date for
// both-blocks activities.
func (s *SignupService) relevantSet(ctx context.Context, target *models.ScheduledActivityDetail) ([]models.ScheduledActivityDetail, error) {
	if !target.Activity.BothBlocks {
		return []models.ScheduledActivityDetail{*target}, nil
	}
	relevant, err := s.occurrences.ListByActivityAndDate(ctx, target.ActivityID, target.Block.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load same-day occurrences")
	}
	if len(relevant) == 0 {
		relevant = []models.ScheduledActivityDetail{*target}
	}
	return relevant, nil
}

// buildSingleBlockPlan captures the displaced signup if one exists,
// then either reassigns the row in place (preserving the previous-
// activity trail) or clears the day and creates fresh when the user is
// leaving a both-blocks activity.
func (s *SignupService) buildSingleBlockPlan(ctx context.Context, userID string, target *models.ScheduledActivityDetail, afterDeadline, force bool) (*models.SignupPlan, error) {
	plan := &models.SignupPlan{
		UserID:        userID,
		ActivityID:    target.ActivityID,
		Date:          target.Block.Date,
		AfterDeadline: afterDeadline,
		Force:         force,
	}

	existing, err := s.ledger.FindByUserAndBlock(ctx, userID, target.BlockID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing signup")
	}

	if existing == nil {
		plan.Creates = []models.SignupCreate{{ScheduledActivityID: target.ID, BlockID: target.BlockID}}
		plan.CapacityChecks = []models.CapacityCheck{{ScheduledActivityID: target.ID, Capacity: target.TrueCapacity}}
		return plan, nil
	}

	prevName, prevSponsors, err := s.displacedSnapshot(ctx, existing.ScheduledActivityID)
	if err != nil {
		return nil, err
	}

	if !existing.Activity.BothBlocks {
		plan.Reassign = &models.SignupReassign{
			SignupID:                 existing.ID,
			ScheduledActivityID:      target.ID,
			BlockID:                  target.BlockID,
			PreviousActivityName:     prevName,
			PreviousActivitySponsors: prevSponsors,
		}
		return plan, nil
	}

	// Switching out of a both-blocks activity: its other half must go
	// too, so the whole day is cleared before the fresh signup lands.
	plan.ClearDay = true
	plan.Creates = []models.SignupCreate{{
		ScheduledActivityID:      target.ID,
		BlockID:                  target.BlockID,
		PreviousActivityName:     &prevName,
		PreviousActivitySponsors: &prevSponsors,
	}}
	plan.CapacityChecks = []models.CapacityCheck{{ScheduledActivityID: target.ID, Capacity: target.TrueCapacity}}
	return plan, nil
}

// buildBothBlocksPlan snapshots every same-day signup keyed by block
// letter, clears the day, and recreates one signup per occurrence with
// each block's own snapshot carried forward.
func (s *SignupService) buildBothBlocksPlan(ctx context.Context, userID string, target *models.ScheduledActivityDetail, relevant []models.ScheduledActivityDetail, afterDeadline, force bool) (*models.SignupPlan, error) {
	plan := &models.SignupPlan{
		UserID:        userID,
		ActivityID:    target.ActivityID,
		Date:          target.Block.Date,
		AfterDeadline: afterDeadline,
		Force:         force,
		ClearDay:      true,
	}

	existing, err := s.ledger.ListByUserAndDate(ctx, userID, target.Block.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load same-day signups")
	}

	type snapshot struct {
		name     string
		sponsors string
	}
	prevData := make(map[string]snapshot, len(existing))
	for _, sd := range existing {
		name, sponsors, err := s.displacedSnapshot(ctx, sd.ScheduledActivityID)
		if err != nil {
			return nil, err
		}
		prevData[sd.Block.BlockLetter] = snapshot{name: name, sponsors: sponsors}
	}

	for i := range relevant {
		occ := relevant[i]
		create := models.SignupCreate{ScheduledActivityID: occ.ID, BlockID: occ.BlockID}
		if prev, ok := prevData[occ.Block.BlockLetter]; ok {
			name, sponsors := prev.name, prev.sponsors
			create.PreviousActivityName = &name
			create.PreviousActivitySponsors = &sponsors
		}
		plan.Creates = append(plan.Creates, create)
		plan.CapacityChecks = append(plan.CapacityChecks, models.CapacityCheck{ScheduledActivityID: occ.ID, Capacity: occ.TrueCapacity})
	}
	return plan, nil
}

// displacedSnapshot renders the name-with-flags and resolved sponsor
// names of the occurrence a signup is being displaced from. Snapshots
// are captured only from genuinely displaced signups.
func (s *SignupService) displacedSnapshot(ctx context.Context, scheduledActivityID string) (string, string, error) {
	detail, err := s.occurrences.FindDetailByID(ctx, scheduledActivityID)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load displaced activity")
	}
	return detail.Activity.NameWithFlags(), models.SponsorNames(detail.Sponsors), nil
}

func (s *SignupService) invalidateRoster(ctx context.Context, relevant []models.ScheduledActivityDetail) {
	if s.roster == nil {
		return
	}
	blockIDs := make([]string, 0, len(relevant))
	for i := range relevant {
		blockIDs = append(blockIDs, relevant[i].BlockID)
	}
	s.roster.InvalidateRoster(ctx, blockIDs...)
}
