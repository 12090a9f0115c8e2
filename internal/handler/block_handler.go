package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/czhao39/ion/internal/models"
	"github.com/czhao39/ion/internal/service"
	appErrors "github.com/czhao39/ion/pkg/errors"
	"github.com/czhao39/ion/pkg/response"
)

// BlockHandler exposes block listings, rosters and lock management.
type BlockHandler struct {
	catalog       *service.CatalogService
	exportEnabled bool
}

// NewBlockHandler constructs BlockHandler.
func NewBlockHandler(catalog *service.CatalogService, exportEnabled bool) *BlockHandler {
	return &BlockHandler{catalog: catalog, exportEnabled: exportEnabled}
}

// List godoc
// @Summary List blocks
// @Tags Blocks
// @Produce json
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param locked query bool false "Filter by locked state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /eighth/blocks [get]
func (h *BlockHandler) List(c *gin.Context) {
	var filter models.BlockFilter
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		filter.Date = &date
	}
	if raw := c.Query("locked"); raw != "" {
		locked, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "locked must be true or false"))
			return
		}
		filter.Locked = &locked
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	blocks, pagination, err := h.catalog.ListBlocks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, pagination)
}

// Current godoc
// @Summary First upcoming block
// @Description The current day counts until the cutover hour, after which the search starts tomorrow.
// @Tags Blocks
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/blocks/current [get]
func (h *BlockHandler) Current(c *gin.Context) {
	block, err := h.catalog.CurrentBlock(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, block, nil)
}

// Roster godoc
// @Summary Block roster
// @Description Scheduled activities with occupancy for one block, plus the caller's own signup.
// @Tags Blocks
// @Produce json
// @Param id path string true "Block ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/blocks/{id} [get]
func (h *BlockHandler) Roster(c *gin.Context) {
	viewerID := ""
	if claims := claimsFromContext(c); claims != nil {
		viewerID = claims.UserID
	}
	view, err := h.catalog.BlockRoster(c.Request.Context(), c.Param("id"), viewerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Lock godoc
// @Summary Lock a block
// @Description Close a block to further signups. Admin only.
// @Tags Blocks
// @Produce json
// @Param id path string true "Block ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/blocks/{id}/lock [put]
func (h *BlockHandler) Lock(c *gin.Context) {
	h.setLocked(c, true)
}

// Unlock godoc
// @Summary Unlock a block
// @Description Reopen a block to signups. Admin only.
// @Tags Blocks
// @Produce json
// @Param id path string true "Block ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/blocks/{id}/lock [delete]
func (h *BlockHandler) Unlock(c *gin.Context) {
	h.setLocked(c, false)
}

func (h *BlockHandler) setLocked(c *gin.Context, locked bool) {
	block, err := h.catalog.SetBlockLocked(c.Request.Context(), c.Param("id"), locked)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, block, nil)
}

// Export godoc
// @Summary Export a block roster
// @Description Download the attendance roster as CSV or PDF. Admin only.
// @Tags Blocks
// @Produce octet-stream
// @Param id path string true "Block ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /eighth/blocks/{id}/export [get]
func (h *BlockHandler) Export(c *gin.Context) {
	if !h.exportEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.catalog.ExportRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "csv"
	if format == "pdf" {
		ext = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=roster-%s.%s", c.Param("id"), ext))
	c.Data(http.StatusOK, contentType, payload)
}
