package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/czhao39/ion/internal/service"
	appErrors "github.com/czhao39/ion/pkg/errors"
	"github.com/czhao39/ion/pkg/response"
)

// ActivityHandler exposes the activity catalog and favorites.
type ActivityHandler struct {
	catalog *service.CatalogService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(catalog *service.CatalogService) *ActivityHandler {
	return &ActivityHandler{catalog: catalog}
}

// List godoc
// @Summary List activities
// @Tags Activities
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /eighth/activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	activities, err := h.catalog.ListActivities(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, nil)
}

// Get godoc
// @Summary Get activity detail
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	viewerID := ""
	if claims := claimsFromContext(c); claims != nil {
		viewerID = claims.UserID
	}
	activity, err := h.catalog.GetActivity(c.Request.Context(), c.Param("id"), viewerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Favorite godoc
// @Summary Toggle favorite
// @Description Flip the caller's favorite mark on an activity.
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/activities/{id}/favorite [post]
func (h *ActivityHandler) Favorite(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	favorited, err := h.catalog.ToggleFavorite(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"favorited": favorited}, nil)
}
