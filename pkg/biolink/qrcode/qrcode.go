package qrcode

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/skip2/go-qrcode"
)

const (
	// DefaultSize is the PNG edge length in pixels
	DefaultSize = 256
	MinSize     = 128
	MaxSize     = 1024
)

// ProfileFinder looks up a profile by handle
type ProfileFinder interface {
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
}

// Options controls the generated image
type Options struct {
	Content string
	Size    int
	// Background is a #rgb or #rrggbb color; empty means white
	Background string
}

// Generate renders content as a PNG QR code. The foreground is black or
// white, whichever contrasts with the background.
func Generate(opts Options) ([]byte, error) {
	qr, err := qrcode.New(opts.Content, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	bg := ParseHexColor(opts.Background, color.White)
	qr.BackgroundColor = bg
	qr.ForegroundColor = contrasting(bg)

	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseHexColor parses #rgb or #rrggbb, returning fallback on any error
func ParseHexColor(s string, fallback color.Color) color.Color {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// contrasting picks black for light backgrounds and white for dark ones
func contrasting(bg color.Color) color.Color {
	r, g, b, _ := bg.RGBA()
	// ITU-R BT.601 luma on 16-bit channels
	luma := (299*r + 587*g + 114*b) / 1000
	if luma > 0x7fff {
		return color.Black
	}
	return color.White
}

// Handler serves profile QR codes
type Handler struct {
	profiles ProfileFinder
	baseURL  string
}

// NewHandler creates a QR handler. baseURL prefixes the encoded profile URL.
func NewHandler(profiles ProfileFinder, baseURL string) *Handler {
	return &Handler{profiles: profiles, baseURL: strings.TrimRight(baseURL, "/")}
}

// ProfileQR returns a PNG QR code for a public profile URL
// @Summary Profile QR code
// @Description PNG QR code of the public profile URL, colored with the profile background
// @Tags profiles
// @Produce png
// @Param username path string true "Username"
// @Param size query int false "Edge length in pixels (128-1024)"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string
// @Router /{username}/qr.png [get]
func (h *Handler) ProfileQR(c *gin.Context) {
	profile, err := h.profiles.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	size := DefaultSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < MinSize || n > MaxSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 128 and 1024"})
			return
		}
		size = n
	}

	data, err := Generate(Options{
		Content:    h.baseURL + "/" + profile.Username,
		Size:       size,
		Background: models.StringValue(profile.BackgroundColor),
	})
	if err != nil {
		apperrors.Respond(c, apperrors.Store("generate qr", err))
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/png", data)
}

// RegisterRoutes registers the QR route on the root router
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/:username/qr.png", h.ProfileQR)
}
