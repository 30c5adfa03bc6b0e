package avatars

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/rs/zerolog/log"
)

// ErrStorageDisabled is returned when no object store is configured
var ErrStorageDisabled = errors.New("avatar storage is not configured")

// AvatarSetter records the new avatar URL on the owner's profile and returns
// the URL it replaced
type AvatarSetter interface {
	SetAvatar(ctx context.Context, ownerID, avatarURL string) (string, error)
}

// Handler handles avatar uploads
type Handler struct {
	storage  Storage
	profiles AvatarSetter
}

// NewHandler creates an avatar handler. A nil storage disables uploads.
func NewHandler(storage Storage, profiles AvatarSetter) *Handler {
	return &Handler{storage: storage, profiles: profiles}
}

// Enabled reports whether uploads have somewhere to go
func (h *Handler) Enabled() bool {
	return h.storage != nil
}

// Save processes an upload and points the owner's profile at it
func (h *Handler) Save(ctx context.Context, ownerID string, data []byte) (string, error) {
	if h.storage == nil {
		return "", ErrStorageDisabled
	}

	avatar, err := Process(data)
	if err != nil {
		return "", &apperrors.ValidationError{Message: err.Error(), Fields: map[string]string{"avatar": err.Error()}}
	}

	key := ownerPrefix(ownerID) + uuid.NewString() + ".jpg"
	url, err := h.storage.Put(ctx, key, avatar, "image/jpeg")
	if err != nil {
		return "", apperrors.Store("upload avatar", err)
	}

	previous, err := h.profiles.SetAvatar(ctx, ownerID, url)
	if err != nil {
		h.remove(ctx, key)
		return "", err
	}
	if old, ok := storedKey(ownerID, previous); ok && old != key {
		h.remove(ctx, old)
	}
	return url, nil
}

func ownerPrefix(ownerID string) string {
	return "avatars/" + ownerID + "/"
}

// storedKey recovers the object key from an avatar URL this package wrote.
// URLs from elsewhere, such as an identity provider picture, are left alone.
func storedKey(ownerID, url string) (string, bool) {
	i := strings.Index(url, ownerPrefix(ownerID))
	if i < 0 {
		return "", false
	}
	return url[i:], true
}

func (h *Handler) remove(ctx context.Context, key string) {
	if err := h.storage.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to remove orphaned avatar")
	}
}

// Upload accepts a multipart "avatar" file
// @Summary Upload avatar
// @Description Crops to a 256x256 JPEG and sets it as the profile avatar
// @Tags profiles
// @Accept multipart/form-data
// @Produce json
// @Param avatar formData file true "Image (jpeg, png or gif, max 5MB)"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string "Storage not configured"
// @Security BearerAuth
// @Router /profile/avatar [post]
func (h *Handler) Upload(c *gin.Context) {
	ownerID, ok := auth.GetAccountID(c)
	if !ok {
		apperrors.Respond(c, apperrors.ErrUnauthenticated)
		return
	}
	if !h.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Avatar uploads are not available"})
		return
	}

	data, err := ReadUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url, err := h.Save(c.Request.Context(), ownerID, data)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"avatar_url": url})
}

// ReadUpload returns the bytes of the "avatar" form file
func ReadUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+1<<20)

	file, _, err := c.Request.FormFile("avatar")
	if err != nil {
		return nil, errors.New("avatar file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return nil, errors.New("failed to read avatar")
	}
	return data, nil
}

// RegisterRoutes registers avatar routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/profile/avatar", h.Upload)
}
