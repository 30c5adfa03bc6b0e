package importexport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/links"
	"github.com/mikepea/biolink/pkg/biolink/models"
)

// MaxImport bounds the number of bookmarks accepted in one request
const MaxImport = 500

// Handler handles import/export requests
type Handler struct {
	links *links.Service
}

// NewHandler creates a new import/export handler
func NewHandler(svc *links.Service) *Handler {
	return &Handler{links: svc}
}

// Bookmark is one link in Pinboard JSON format
type Bookmark struct {
	Href        string `json:"href"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Time        string `json:"time,omitempty"`
	Shared      string `json:"shared,omitempty"`
}

// ImportRequest wraps bookmarks. A bare JSON array is accepted as well.
type ImportRequest struct {
	Bookmarks []Bookmark `json:"bookmarks"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

func linkToBookmark(link models.Link) Bookmark {
	return Bookmark{
		Href:        link.URL,
		Description: link.Title,
		Extended:    models.StringValue(link.Description),
		Time:        link.CreatedAt.UTC().Format(time.RFC3339),
		Shared:      "yes",
	}
}

// decodeBookmarks reads either {"bookmarks": [...]} or a bare array
func decodeBookmarks(body []byte) ([]Bookmark, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var bookmarks []Bookmark
		err := json.Unmarshal(trimmed, &bookmarks)
		return bookmarks, err
	}
	var req ImportRequest
	err := json.Unmarshal(trimmed, &req)
	return req.Bookmarks, err
}

// Import adds bookmarks to the top of the caller's list in file order
// @Summary Import links
// @Description Import Pinboard-style bookmarks; they are placed first, in file order. Invalid entries are skipped.
// @Tags import-export
// @Accept json
// @Produce json
// @Param request body ImportRequest true "Bookmarks"
// @Success 200 {object} ImportResult
// @Failure 400 {object} map[string]string "Malformed body"
// @Security BearerAuth
// @Router /links/import [post]
func (h *Handler) Import(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}
	bookmarks, err := decodeBookmarks(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON: " + err.Error()})
		return
	}
	if len(bookmarks) > MaxImport {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d bookmarks per import", MaxImport)})
		return
	}

	result := ImportResult{Errors: []string{}}
	inputs := make([]links.CreateInput, 0, len(bookmarks))
	for i, b := range bookmarks {
		in := links.CreateInput{
			Title:       strings.TrimSpace(b.Description),
			URL:         strings.TrimSpace(b.Href),
			Description: strings.TrimSpace(b.Extended),
		}
		if in.Title == "" {
			in.Title = in.URL
		}
		if err := apperrors.FromValidation(in.Validate()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("bookmark %d: %v", i, err))
			result.Skipped++
			continue
		}
		inputs = append(inputs, in)
	}

	created, err := h.links.InsertManyAtHead(c.Request.Context(), ownerID, inputs)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	result.Imported = len(created)

	c.JSON(http.StatusOK, result)
}

// Export returns the caller's active links in display order
// @Summary Export links
// @Description Active links as Pinboard-style bookmarks, in display order
// @Tags import-export
// @Produce json
// @Param download query bool false "Send as attachment"
// @Success 200 {array} Bookmark
// @Security BearerAuth
// @Router /links/export [get]
func (h *Handler) Export(c *gin.Context) {
	ownerID, _ := auth.GetAccountID(c)

	list, err := h.links.List(c.Request.Context(), ownerID)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	bookmarks := make([]Bookmark, len(list))
	for i, link := range list {
		bookmarks[i] = linkToBookmark(link)
	}

	// Set content disposition for download
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=biolink-export.json")
	}

	c.JSON(http.StatusOK, bookmarks)
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/links/import", h.Import)
	rg.GET("/links/export", h.Export)
}
