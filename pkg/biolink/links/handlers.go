package links

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/mikepea/biolink/pkg/biolink/ordering"
)

// Handler handles link-related requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new links handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	OrderIndex  int    `json:"order_index"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ReorderRequest is a list-move gesture. A null destination means the item
// was dropped outside the list.
type ReorderRequest struct {
	Source      *int `json:"source"`
	Destination *int `json:"destination"`
}

// ReorderResponse returns the new order and the positions that were written
type ReorderResponse struct {
	Links    []LinkResponse    `json:"links"`
	WriteSet ordering.WriteSet `json:"write_set"`
}

func linkToResponse(link models.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		Title:       link.Title,
		URL:         link.URL,
		Description: models.StringValue(link.Description),
		IsActive:    link.IsActive,
		OrderIndex:  link.OrderIndex,
		CreatedAt:   link.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   link.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// LinksToResponse converts links to their API form
func LinksToResponse(links []models.Link) []LinkResponse {
	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = linkToResponse(link)
	}
	return responses
}

// respond writes err, reporting links owned by someone else as missing
func respond(c *gin.Context, err error) {
	var ae *apperrors.AuthorizationError
	if errors.As(err, &ae) && !errors.Is(err, apperrors.ErrUnauthenticated) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	apperrors.Respond(c, err)
}

// List returns the caller's active links in display order
// @Summary List own links
// @Description Active links of the authenticated owner, ordered by order_index
// @Tags links
// @Produce json
// @Success 200 {array} LinkResponse
// @Security BearerAuth
// @Router /links [get]
func (h *Handler) List(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	links, err := h.svc.List(c.Request.Context(), ownerID)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, LinksToResponse(links))
}

// Create adds a link at the top of the caller's list
// @Summary Create a link
// @Description New links are placed first; the list is renumbered densely
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateInput true "Link details"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Security BearerAuth
// @Router /links [post]
func (h *Handler) Create(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.svc.Create(c.Request.Context(), ownerID, req)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, linkToResponse(*link))
}

// Update patches a link
// @Summary Update a link
// @Description Patch title, url or description of an owned, active link
// @Tags links
// @Accept json
// @Produce json
// @Param id path string true "Link ID"
// @Param request body UpdateInput true "Fields to change"
// @Success 200 {object} LinkResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.svc.Update(c.Request.Context(), c.Param("id"), ownerID, req)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, linkToResponse(*link))
}

// Delete soft-deletes a link
// @Summary Delete a link
// @Description Hide a link from every read path; the row is kept
// @Tags links
// @Produce json
// @Param id path string true "Link ID"
// @Success 200 {object} map[string]string "Link deleted"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	if err := h.svc.SoftDelete(c.Request.Context(), c.Param("id"), ownerID); err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

// Reorder moves one link
// @Summary Reorder links
// @Description Move the link at source to destination (0-based); a null destination is a no-op
// @Tags links
// @Accept json
// @Produce json
// @Param request body ReorderRequest true "Move gesture"
// @Success 200 {object} ReorderResponse
// @Failure 400 {object} map[string]string "Invalid positions"
// @Security BearerAuth
// @Router /links/reorder [post]
func (h *Handler) Reorder(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source is required"})
		return
	}

	links, ws, err := h.svc.Reorder(c.Request.Context(), ownerID, *req.Source, req.Destination)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, ReorderResponse{Links: LinksToResponse(links), WriteSet: ws})
}

// PersistOrderRequest carries a write-set computed by the client
type PersistOrderRequest struct {
	Positions ordering.WriteSet `json:"positions" binding:"required"`
}

// PersistOrder applies a client-computed ordering
// @Summary Persist link order
// @Description Apply a write-set of {id, order_index} covering every active link with indexes 0..N-1, as one batch
// @Tags links
// @Accept json
// @Produce json
// @Param request body PersistOrderRequest true "Positions"
// @Success 200 {array} LinkResponse
// @Failure 400 {object} map[string]interface{} "Not a dense renumbering of the active links"
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/order [put]
func (h *Handler) PersistOrder(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	var req PersistOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Persist(c.Request.Context(), ownerID, req.Positions); err != nil {
		respond(c, err)
		return
	}

	links, err := h.svc.List(c.Request.Context(), ownerID)
	if err != nil {
		respond(c, err)
		return
	}
	c.JSON(http.StatusOK, LinksToResponse(links))
}

// RegisterRoutes registers link routes. The group must be authenticated.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/links", h.List)
	rg.POST("/links", h.Create)
	rg.POST("/links/reorder", h.Reorder)
	rg.PUT("/links/order", h.PersistOrder)
	rg.PUT("/links/:id", h.Update)
	rg.DELETE("/links/:id", h.Delete)
}
