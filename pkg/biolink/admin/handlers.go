package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"gorm.io/gorm"
)

// ChangeNotifier is told when an account's public page disappears
type ChangeNotifier interface {
	OwnerChanged(ctx context.Context, ownerID string)
}

// Handler handles admin requests
type Handler struct {
	db       *gorm.DB
	notifier ChangeNotifier
}

// NewHandler creates a new admin handler. notifier may be nil.
func NewHandler(db *gorm.DB, notifier ChangeNotifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

// AccountResponse represents account data in admin responses
type AccountResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	SystemRole string `json:"system_role"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at"`
	LinkCount  int64  `json:"link_count"`
}

// UpdateAccountRequest represents the request to update an account
type UpdateAccountRequest struct {
	SystemRole *string `json:"system_role"`
	Active     *bool   `json:"active"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalAccounts  int64 `json:"total_accounts"`
	ActiveAccounts int64 `json:"active_accounts"`
	AdminAccounts  int64 `json:"admin_accounts"`
	TotalProfiles  int64 `json:"total_profiles"`
	ActiveLinks    int64 `json:"active_links"`
	DeletedLinks   int64 `json:"deleted_links"`
	ActiveAPIKeys  int64 `json:"active_api_keys"`
	OIDCIdentities int64 `json:"oidc_identities"`
}

func (h *Handler) toResponse(account models.Account) AccountResponse {
	var profile models.Profile
	h.db.Select("username").Where("id = ?", account.ID).Limit(1).Find(&profile)

	var linkCount int64
	h.db.Model(&models.Link{}).Where("user_id = ? AND is_active = ?", account.ID, true).Count(&linkCount)

	return AccountResponse{
		ID:         account.ID,
		Email:      account.Email,
		Username:   profile.Username,
		SystemRole: string(account.SystemRole),
		Active:     account.Active,
		CreatedAt:  account.CreatedAt.Format("2006-01-02T15:04:05Z"),
		LinkCount:  linkCount,
	}
}

// ListAccounts returns all accounts (admin only)
// @Summary List accounts
// @Tags admin
// @Produce json
// @Param q query string false "Email or username contains"
// @Param role query string false "System role"
// @Success 200 {array} AccountResponse
// @Security BearerAuth
// @Router /admin/accounts [get]
func (h *Handler) ListAccounts(c *gin.Context) {
	var accounts []models.Account

	query := h.db.Order("created_at DESC")

	// Optional search by email or username
	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("email LIKE ? OR id IN (?)", like,
			h.db.Model(&models.Profile{}).Select("id").Where("username LIKE ?", like))
	}

	// Optional filter by role
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch accounts"})
		return
	}

	responses := make([]AccountResponse, len(accounts))
	for i, account := range accounts {
		responses[i] = h.toResponse(account)
	}

	c.JSON(http.StatusOK, responses)
}

// GetAccount returns a single account by ID (admin only)
// @Summary Get account
// @Tags admin
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} AccountResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/accounts/{id} [get]
func (h *Handler) GetAccount(c *gin.Context) {
	var account models.Account
	if err := h.db.First(&account, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(account))
}

// UpdateAccount changes an account's role or active flag (admin only)
// @Summary Update account
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body UpdateAccountRequest true "Changes"
// @Success 200 {object} AccountResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/accounts/{id} [put]
func (h *Handler) UpdateAccount(c *gin.Context) {
	id := c.Param("id")

	var account models.Account
	if err := h.db.First(&account, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from locking themselves out
	currentID, _ := auth.GetAccountID(c)
	if id == currentID {
		if req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
			return
		}
		if req.Active != nil && !*req.Active {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate yourself"})
			return
		}
	}

	updates := make(map[string]interface{})
	if req.SystemRole != nil {
		role := models.SystemRole(*req.SystemRole)
		if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		updates["system_role"] = role
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := h.db.Model(&account).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update account"})
			return
		}
		if req.Active != nil {
			h.notify(c, id)
		}
	}

	h.db.First(&account, "id = ?", id)
	c.JSON(http.StatusOK, h.toResponse(account))
}

// DeleteAccount removes an account with its profile, links and credentials (admin only)
// @Summary Delete account
// @Tags admin
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/accounts/{id} [delete]
func (h *Handler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")

	currentID, _ := auth.GetAccountID(c)
	if id == currentID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var account models.Account
	if err := h.db.First(&account, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&models.OIDCIdentity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Link{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Profile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&account).Error
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
		return
	}
	h.notify(c, id)

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

// GetStats returns system-wide statistics (admin only)
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse

	h.db.Model(&models.Account{}).Count(&stats.TotalAccounts)
	h.db.Model(&models.Account{}).Where("active = ?", true).Count(&stats.ActiveAccounts)
	h.db.Model(&models.Account{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminAccounts)
	h.db.Model(&models.Profile{}).Count(&stats.TotalProfiles)
	h.db.Model(&models.Link{}).Where("is_active = ?", true).Count(&stats.ActiveLinks)
	h.db.Model(&models.Link{}).Where("is_active = ?", false).Count(&stats.DeletedLinks)
	h.db.Model(&models.APIKey{}).Count(&stats.ActiveAPIKeys)
	h.db.Model(&models.OIDCIdentity{}).Count(&stats.OIDCIdentities)

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) notify(c *gin.Context, ownerID string) {
	if h.notifier != nil {
		h.notifier.OwnerChanged(c.Request.Context(), ownerID)
	}
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/accounts", h.ListAccounts)
	rg.GET("/accounts/:id", h.GetAccount)
	rg.PUT("/accounts/:id", h.UpdateAccount)
	rg.DELETE("/accounts/:id", h.DeleteAccount)
}
