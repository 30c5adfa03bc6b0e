package profiles

import (
	"regexp"
	"strings"

	"github.com/mikepea/biolink/pkg/biolink/models"
)

// SocialLink is a populated social handle with its resolved URL
type SocialLink struct {
	Platform string `json:"platform"`
	Label    string `json:"label"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
}

type platform struct {
	key   string
	label string
	base  string
	get   func(p *models.Profile) *string
}

// platforms lists supported networks in display order
var platforms = []platform{
	{"twitter", "X", "https://x.com/", func(p *models.Profile) *string { return p.TwitterUsername }},
	{"instagram", "Instagram", "https://instagram.com/", func(p *models.Profile) *string { return p.InstagramUsername }},
	{"tiktok", "TikTok", "https://tiktok.com/@", func(p *models.Profile) *string { return p.TiktokUsername }},
	{"youtube", "YouTube", "https://youtube.com/@", func(p *models.Profile) *string { return p.YoutubeUsername }},
	{"snapchat", "Snapchat", "https://snapchat.com/add/", func(p *models.Profile) *string { return p.SnapchatUsername }},
	{"whatsapp", "WhatsApp", "https://wa.me/", func(p *models.Profile) *string { return p.WhatsappNumber }},
	{"facebook", "Facebook", "https://facebook.com/", func(p *models.Profile) *string { return p.FacebookUsername }},
	{"linkedin", "LinkedIn", "https://linkedin.com/in/", func(p *models.Profile) *string { return p.LinkedinUsername }},
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Socials returns the profile's non-empty social handles in display order
func Socials(p *models.Profile) []SocialLink {
	out := make([]SocialLink, 0, len(platforms))
	for _, pl := range platforms {
		handle := strings.TrimSpace(models.StringValue(pl.get(p)))
		if handle == "" {
			continue
		}
		path := handle
		if pl.key == "whatsapp" {
			path = nonDigits.ReplaceAllString(handle, "")
		}
		out = append(out, SocialLink{
			Platform: pl.key,
			Label:    pl.label,
			Handle:   handle,
			URL:      pl.base + path,
		})
	}
	return out
}

// CleanHandle strips whitespace and a leading @ from a social handle
func CleanHandle(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// SocialField is one editable social handle input
type SocialField struct {
	Name  string
	Label string
	Value string
}

// SocialFields lists every supported platform in display order, filled with
// the handles present in socials. Name matches the UpdateInput form key.
func SocialFields(socials []SocialLink) []SocialField {
	current := make(map[string]string, len(socials))
	for _, s := range socials {
		current[s.Platform] = s.Handle
	}
	out := make([]SocialField, len(platforms))
	for i, pl := range platforms {
		name := pl.key + "_username"
		if pl.key == "whatsapp" {
			name = "whatsapp_number"
		}
		out[i] = SocialField{Name: name, Label: pl.label, Value: current[pl.key]}
	}
	return out
}
