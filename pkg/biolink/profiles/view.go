package profiles

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

// ProfileView is the render-ready profile: identity, populated socials and the
// active links in display order.
type ProfileView struct {
	ID              string       `json:"id"`
	Username        string       `json:"username"`
	DisplayName     string       `json:"display_name"`
	AvatarURL       string       `json:"avatar_url,omitempty"`
	Bio             string       `json:"bio,omitempty"`
	BioHTML         string       `json:"bio_html,omitempty"`
	BackgroundColor string       `json:"background_color,omitempty"`
	Socials         []SocialLink `json:"socials"`
	Links           []LinkView   `json:"links"`
	Editable        bool         `json:"editable"`
}

// Name is the display name, falling back to the handle
func (v *ProfileView) Name() string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return v.Username
}

// LinkView is one active link as shown on the page
type LinkView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Host        string `json:"host,omitempty"`
	FaviconURL  string `json:"favicon_url,omitempty"`
	OrderIndex  int    `json:"order_index"`
	Position    int    `json:"position"` // 1-based
}

// FaviconURL returns the favicon service URL and display host for a link
// target. ok is false when the URL has no parseable host.
func FaviconURL(raw string) (favicon, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}
	h := u.Hostname()
	return "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(h) + "&sz=32",
		strings.TrimPrefix(h, "www."), true
}

// RenderBio converts bio markdown into sanitized HTML
func RenderBio(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(md), &buf); err != nil {
		return sanitizer.Sanitize(md)
	}
	return sanitizer.Sanitize(buf.String())
}

func newLinkViews(links []models.Link) []LinkView {
	out := make([]LinkView, len(links))
	for i, l := range links {
		v := LinkView{
			ID:          l.ID,
			Title:       l.Title,
			URL:         l.URL,
			Description: models.StringValue(l.Description),
			OrderIndex:  l.OrderIndex,
			Position:    i + 1,
		}
		if favicon, host, ok := FaviconURL(l.URL); ok {
			v.FaviconURL = favicon
			v.Host = host
		}
		out[i] = v
	}
	return out
}

func newProfileView(p *models.Profile, links []models.Link) *ProfileView {
	bio := models.StringValue(p.Bio)
	return &ProfileView{
		ID:              p.ID,
		Username:        p.Username,
		DisplayName:     models.StringValue(p.DisplayName),
		AvatarURL:       models.StringValue(p.AvatarURL),
		Bio:             bio,
		BioHTML:         RenderBio(bio),
		BackgroundColor: models.StringValue(p.BackgroundColor),
		Socials:         Socials(p),
		Links:           newLinkViews(links),
	}
}
