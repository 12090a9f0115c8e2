package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/czhao39/ion/internal/models"
	"github.com/czhao39/ion/internal/service"
	appErrors "github.com/czhao39/ion/pkg/errors"
	"github.com/czhao39/ion/pkg/response"
)

type signupCoordinator interface {
	SignUp(ctx context.Context, req service.SignupRequest, actor *models.JWTClaims) (*service.SignupResult, error)
	Unsignup(ctx context.Context, req service.UnsignupRequest, actor *models.JWTClaims) (*service.SignupResult, error)
	ListForUser(ctx context.Context, userID string, actor *models.JWTClaims) ([]models.SignupDetail, error)
}

// SignupHandler exposes the signup and un-signup operations.
type SignupHandler struct {
	signups signupCoordinator
	metrics *service.MetricsService
}

// NewSignupHandler constructs SignupHandler.
func NewSignupHandler(signups signupCoordinator, metrics *service.MetricsService) *SignupHandler {
	return &SignupHandler{signups: signups, metrics: metrics}
}

// SignUp godoc
// @Summary Sign up for a scheduled activity
// @Description Reserve a seat in an activity for a block. Both-blocks activities reserve every same-day occurrence as one unit.
// @Tags Signups
// @Accept json
// @Produce json
// @Param payload body service.SignupRequest true "Signup payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /eighth/signup [post]
func (h *SignupHandler) SignUp(c *gin.Context) {
	claims := claimsFromContext(c)

	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid signup payload"))
		return
	}
	if req.UserID == "" && claims != nil {
		req.UserID = claims.UserID
	}

	result, err := h.signups.SignUp(c.Request.Context(), req, claims)
	if err != nil {
		h.renderSignupError(c, err, claims, req.Force)
		return
	}

	h.metrics.ObserveSignup(service.SignupOutcomeAccepted, req.Force)
	response.JSON(c, http.StatusOK, result, nil)
}

// Unsignup godoc
// @Summary Remove a signup
// @Description Remove the user's signup in a block. Both-blocks signups are removed across the whole day.
// @Tags Signups
// @Accept json
// @Produce json
// @Param payload body service.UnsignupRequest true "Unsignup payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/unsignup [post]
func (h *SignupHandler) Unsignup(c *gin.Context) {
	claims := claimsFromContext(c)

	var req service.UnsignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unsignup payload"))
		return
	}
	if req.UserID == "" && claims != nil {
		req.UserID = claims.UserID
	}

	result, err := h.signups.Unsignup(c.Request.Context(), req, claims)
	if err != nil {
		h.renderSignupError(c, err, claims, req.Force)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List a user's signups
// @Tags Signups
// @Produce json
// @Param user_id query string false "User ID, defaults to caller"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /eighth/signups [get]
func (h *SignupHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)

	userID := c.Query("user_id")
	if userID == "" && claims != nil {
		userID = claims.UserID
	}

	signups, err := h.signups.ListForUser(c.Request.Context(), userID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signups, nil)
}

// renderSignupError unpacks rule violations so admins see which rules
// fired while everyone else gets the generic denial.
func (h *SignupHandler) renderSignupError(c *gin.Context, err error, claims *models.JWTClaims, forced bool) {
	var violations *models.SignupViolationError
	if errors.As(err, &violations) {
		h.metrics.ObserveSignup(service.SignupOutcomeDenied, forced)
		for _, v := range violations.Violations {
			h.metrics.ObserveDenial(string(v.Kind))
		}
		response.ErrorWithMeta(c, err, map[string]interface{}{
			"messages": violations.Messages(claims.IsEighthAdmin()),
		})
		return
	}

	appErr := appErrors.FromError(err)
	switch appErr.Code {
	case appErrors.ErrConflict.Code:
		h.metrics.ObserveSignup(service.SignupOutcomeConflict, forced)
	case appErrors.ErrInternal.Code:
		h.metrics.ObserveSignup(service.SignupOutcomeError, forced)
	}
	response.Error(c, err)
}
