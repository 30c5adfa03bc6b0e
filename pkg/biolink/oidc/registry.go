package oidc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"golang.org/x/oauth2"
)

// discoveryTimeout bounds the issuer's .well-known lookup
const discoveryTimeout = 10 * time.Second

// client is a discovered provider ready to run the code flow
type client struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// registry holds discovered clients by provider id. Providers that failed
// discovery are absent and report as not ready.
type registry struct {
	mu      sync.RWMutex
	clients map[uint]*client
}

func newRegistry() *registry {
	return &registry{clients: make(map[uint]*client)}
}

func (r *registry) get(id uint) (*client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *registry) ready(id uint) bool {
	_, ok := r.get(id)
	return ok
}

func (r *registry) drop(id uint) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// discover resolves p's issuer and stores a client that redirects back to
// callbackURL. Any previous client for p is replaced.
func (r *registry) discover(p models.OIDCProvider, callbackURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, p.Issuer)
	if err != nil {
		return err
	}

	scopes := strings.Fields(p.Scopes)
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	c := &client{
		oauth: oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  callbackURL,
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: p.ClientID}),
	}

	r.mu.Lock()
	r.clients[p.ID] = c
	r.mu.Unlock()
	return nil
}
