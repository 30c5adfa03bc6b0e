package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/avatars"
	"github.com/mikepea/biolink/pkg/biolink/links"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
)

// owner returns the signed-in account or sends the browser to sign in
func owner(c *gin.Context) (string, bool) {
	id, ok := auth.GetAccountID(c)
	if !ok {
		c.Redirect(http.StatusFound, auth.SignInPath)
		c.Abort()
	}
	return id, ok
}

func (h *Handler) dashboardPage(c *gin.Context, ownerID string) (*page, error) {
	view, err := h.Views.AssembleOwner(c.Request.Context(), ownerID)
	if err != nil {
		return nil, err
	}
	p := h.newPage(c, pageTitle(c, "dashboard"))
	p.View = view
	p.PublicURL = h.BaseURL + "/" + view.Username
	p.SocialFields = profiles.SocialFields(view.Socials)
	p.AvatarUploads = h.Avatars != nil && h.Avatars.Enabled()
	return p, nil
}

// Dashboard renders the owner's editable view
func (h *Handler) Dashboard(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	p, err := h.dashboardPage(c, ownerID)
	if err != nil {
		h.renderFailure(c, err)
		return
	}
	h.render(c, http.StatusOK, "dashboard.html", p)
}

// mutated sends the browser back to the dashboard after a successful write
func mutated(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, auth.DashboardPath)
}

// rejected re-renders the dashboard from the store with err shown. Form
// values are kept so the owner can correct them.
func (h *Handler) rejected(c *gin.Context, ownerID string, err error, form map[string]string) {
	p, loadErr := h.dashboardPage(c, ownerID)
	if loadErr != nil {
		h.renderFailure(c, loadErr)
		return
	}
	for k, v := range form {
		p.Form[k] = v
	}
	h.render(c, fail(c, p, err), "dashboard.html", p)
}

// CreateLink adds a link from the dashboard form
func (h *Handler) CreateLink(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	var in links.CreateInput
	if err := c.ShouldBind(&in); err != nil {
		h.rejected(c, ownerID, apperrors.Validation(err.Error()), nil)
		return
	}

	if _, err := h.Links.Create(c.Request.Context(), ownerID, in); err != nil {
		h.rejected(c, ownerID, err, map[string]string{
			"title":       in.Title,
			"url":         in.URL,
			"description": in.Description,
		})
		return
	}
	mutated(c)
}

// UpdateLink saves an edited link
func (h *Handler) UpdateLink(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	var in links.UpdateInput
	if err := c.ShouldBind(&in); err != nil {
		h.rejected(c, ownerID, apperrors.Validation(err.Error()), nil)
		return
	}

	if _, err := h.Links.Update(c.Request.Context(), c.Param("id"), ownerID, in); err != nil {
		h.rejected(c, ownerID, err, nil)
		return
	}
	mutated(c)
}

// DeleteLink soft-deletes a link
func (h *Handler) DeleteLink(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	if err := h.Links.SoftDelete(c.Request.Context(), c.Param("id"), ownerID); err != nil {
		h.rejected(c, ownerID, err, nil)
		return
	}
	mutated(c)
}

// MoveLink moves a link one place up or down, or to the 1-based position in
// the "to" field. Moves past either end are ignored.
func (h *Handler) MoveLink(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	current, err := h.Links.List(ctx, ownerID)
	if err != nil {
		h.rejected(c, ownerID, err, nil)
		return
	}

	source := -1
	for i, l := range current {
		if l.ID == c.Param("id") {
			source = i
			break
		}
	}
	if source < 0 {
		h.rejected(c, ownerID, apperrors.NotFound("Link"), nil)
		return
	}

	dest := source
	switch c.PostForm("direction") {
	case "up":
		dest--
	case "down":
		dest++
	default:
		to, err := strconv.Atoi(c.PostForm("to"))
		if err != nil {
			h.rejected(c, ownerID, apperrors.Validation("direction must be up or down, or to a position"), nil)
			return
		}
		dest = to - 1
	}
	if dest < 0 || dest >= len(current) || dest == source {
		mutated(c)
		return
	}

	if _, _, err := h.Links.Reorder(ctx, ownerID, source, &dest); err != nil {
		h.rejected(c, ownerID, err, nil)
		return
	}
	mutated(c)
}

// UpdateProfile saves the profile form
func (h *Handler) UpdateProfile(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}

	var in profiles.UpdateInput
	if err := c.ShouldBind(&in); err != nil {
		h.rejected(c, ownerID, apperrors.Validation(err.Error()), nil)
		return
	}

	if _, err := h.Profiles.Update(c.Request.Context(), ownerID, in); err != nil {
		h.rejected(c, ownerID, err, nil)
		return
	}
	mutated(c)
}

// UploadAvatar stores the avatar from the dashboard form
func (h *Handler) UploadAvatar(c *gin.Context) {
	ownerID, ok := owner(c)
	if !ok {
		return
	}
	if h.Avatars == nil || !h.Avatars.Enabled() {
		h.rejected(c, ownerID, apperrors.Validation(avatars.ErrStorageDisabled.Error()), nil)
		return
	}

	data, err := avatars.ReadUpload(c)
	if err != nil {
		h.rejected(c, ownerID, &apperrors.ValidationError{
			Message: err.Error(),
			Fields:  map[string]string{"avatar": err.Error()},
		}, nil)
		return
	}

	if _, err := h.Avatars.Save(c.Request.Context(), ownerID, data); err != nil {
		if errors.Is(err, avatars.ErrStorageDisabled) {
			err = apperrors.Validation(err.Error())
		}
		h.rejected(c, ownerID, err, nil)
		return
	}
	mutated(c)
}

// RegisterRoutes registers the page routes except the public profile, which
// must come last. The router must carry the session, gate and locale
// middleware. guard runs before the credential-checking form posts.
func (h *Handler) RegisterRoutes(r gin.IRoutes, guard ...gin.HandlerFunc) {
	r.GET("/", h.Home)

	guarded := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, guard...), handler)
	}

	r.GET(auth.SignInPath, h.SignIn)
	r.GET(auth.SignInPath+"/signup", h.SignUp)
	r.POST(auth.SignInPath+"/login", guarded(h.Login)...)
	r.POST(auth.SignInPath+"/signup", guarded(h.Register)...)
	r.POST(auth.SignInPath+"/logout", h.Logout)

	r.GET(auth.DashboardPath, h.Dashboard)
	r.POST(auth.DashboardPath+"/links", h.CreateLink)
	r.POST(auth.DashboardPath+"/links/:id", h.UpdateLink)
	r.POST(auth.DashboardPath+"/links/:id/delete", h.DeleteLink)
	r.POST(auth.DashboardPath+"/links/:id/move", h.MoveLink)
	r.POST(auth.DashboardPath+"/profile", h.UpdateProfile)
	r.POST(auth.DashboardPath+"/avatar", h.UploadAvatar)
}

// RegisterProfileRoute registers GET /:username. Register it after every
// other root route.
func (h *Handler) RegisterProfileRoute(r gin.IRoutes) {
	r.GET("/:username", h.Profile)
}
