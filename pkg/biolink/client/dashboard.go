package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/mikepea/biolink/pkg/biolink/locale"
	"github.com/mikepea/biolink/pkg/biolink/ordering"
)

// Dashboard is an owner's link list kept in sync with the server. Every
// mutation is shown at once and rolled back if the server rejects it.
type Dashboard struct {
	api   *Client
	links *Pending[[]Link]
	lang  *locale.Switch

	mu   sync.Mutex
	pref locale.Preference
}

// NewDashboard loads the owner's links. lang supplies the display language.
func NewDashboard(ctx context.Context, api *Client, lang *locale.Switch) (*Dashboard, error) {
	list, err := api.Links(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		api:   api,
		links: NewPending(list),
		lang:  lang,
		pref:  lang.Current(),
	}, nil
}

// Links returns a copy of the list as it should be displayed
func (d *Dashboard) Links() []Link {
	return clone(d.links.Value())
}

// Saving reports whether a write is in flight
func (d *Dashboard) Saving() bool {
	return d.links.InFlight()
}

// Reload replaces the list with the server's
func (d *Dashboard) Reload(ctx context.Context) error {
	list, err := d.api.Links(ctx)
	if err != nil {
		return err
	}
	if !d.links.Reset(list) {
		return ErrWriteInFlight
	}
	return nil
}

// Move applies a drag-and-drop gesture. A nil destination does nothing.
func (d *Dashboard) Move(ctx context.Context, source int, destination *int) error {
	next, ws, err := ordering.Reorder(d.Links(), source, destination)
	if err != nil {
		return err
	}
	if len(ws) == 0 {
		return nil
	}
	return d.links.Apply(ctx, next, func(ctx context.Context) ([]Link, error) {
		return d.api.PersistOrder(ctx, ws)
	})
}

// Add creates a link at the top of the list
func (d *Dashboard) Add(ctx context.Context, in NewLink) error {
	placeholder := Link{Title: in.Title, URL: in.URL, Description: in.Description, IsActive: true}
	next, _ := ordering.InsertAtHead(d.Links(), placeholder)

	return d.links.Apply(ctx, next, func(ctx context.Context) ([]Link, error) {
		if _, err := d.api.CreateLink(ctx, in); err != nil {
			return nil, err
		}
		return d.api.Links(ctx)
	})
}

// Edit patches the link with id
func (d *Dashboard) Edit(ctx context.Context, id string, patch LinkPatch) error {
	current := d.Links()
	i := indexOf(current, id)
	if i < 0 {
		return fmt.Errorf("link %s is not on the dashboard", id)
	}

	next := clone(current)
	if patch.Title != nil {
		next[i].Title = *patch.Title
	}
	if patch.URL != nil {
		next[i].URL = *patch.URL
	}
	if patch.Description != nil {
		next[i].Description = *patch.Description
	}

	return d.links.Apply(ctx, next, func(ctx context.Context) ([]Link, error) {
		stored, err := d.api.UpdateLink(ctx, id, patch)
		if err != nil {
			return nil, err
		}
		confirmed := clone(current)
		confirmed[i] = *stored
		return confirmed, nil
	})
}

// Remove soft-deletes the link with id. The others keep their positions.
func (d *Dashboard) Remove(ctx context.Context, id string) error {
	current := d.Links()
	i := indexOf(current, id)
	if i < 0 {
		return fmt.Errorf("link %s is not on the dashboard", id)
	}
	next := append(clone(current[:i]), current[i+1:]...)

	return d.links.Apply(ctx, next, func(ctx context.Context) ([]Link, error) {
		if err := d.api.DeleteLink(ctx, id); err != nil {
			return nil, err
		}
		return next, nil
	})
}

// Preference is the display language in use
func (d *Dashboard) Preference() locale.Preference {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pref
}

// Run follows language changes until ctx is done or the switch closes
func (d *Dashboard) Run(ctx context.Context) {
	ch := d.lang.Subscribe()
	defer d.lang.Unsubscribe(ch)
	d.setPreference(d.lang.Current())

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			d.setPreference(p)
		}
	}
}

func (d *Dashboard) setPreference(p locale.Preference) {
	d.mu.Lock()
	d.pref = p
	d.mu.Unlock()
}

// Render draws the list as numbered plain-text lines
func (d *Dashboard) Render() string {
	pref := d.Preference()
	list := d.Links()

	mark := ""
	if pref.RTL() {
		mark = "\u200f"
	}

	var b strings.Builder
	b.WriteString(mark + pref.T("dashboard") + "\n")
	if len(list) == 0 {
		b.WriteString(mark + pref.T("no_links") + "\n")
		return b.String()
	}
	for i, l := range list {
		fmt.Fprintf(&b, "%s%d. %s", mark, i+1, l.Title)
		if u, err := url.Parse(l.URL); err == nil && u.Hostname() != "" {
			fmt.Fprintf(&b, " (%s)", strings.TrimPrefix(u.Hostname(), "www."))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func indexOf(list []Link, id string) int {
	for i, l := range list {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func clone(list []Link) []Link {
	out := make([]Link, len(list))
	copy(out, list)
	return out
}
