package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/mikepea/biolink/pkg/biolink/profiles"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func setupTestHandler(t *testing.T) (*Handler, *gorm.DB) {
	db := setupTestDB(t)
	return NewHandler(db, "http://localhost:8080/", profiles.NewService(db, nil)), db
}

func setupTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.Sessions("test-secret", false))

	api := r.Group("/api")
	h.RegisterRoutes(api.Group("/oidc"))
	h.RegisterAdminRoutes(api.Group("/admin/oidc"))
	return r
}

func createTestProvider(t *testing.T, db *gorm.DB, slug string, enabled, autoProvision bool) models.OIDCProvider {
	provider := models.OIDCProvider{
		Name:          "Provider " + slug,
		Slug:          slug,
		Issuer:        "https://idp.example.com/" + slug,
		ClientID:      "client",
		ClientSecret:  "secret",
		Enabled:       enabled,
		AutoProvision: autoProvision,
	}
	if err := db.Create(&provider).Error; err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

func createTestAccount(t *testing.T, db *gorm.DB, email string) models.Account {
	account := models.Account{Email: email, Active: true, SystemRole: models.SystemRoleUser}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}

func TestSafeReturnURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/dashboard", "/dashboard"},
		{"/dashboard?tab=links", "/dashboard?tab=links"},
		{"", ""},
		{"https://evil.example.com", ""},
		{"//evil.example.com", ""},
		{"/\\evil.example.com", ""},
		{"dashboard", ""},
	}

	for _, tt := range tests {
		if got := SafeReturnURL(tt.in); got != tt.want {
			t.Errorf("SafeReturnURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveAccountBySubject(t *testing.T) {
	h, db := setupTestHandler(t)
	provider := createTestProvider(t, db, "corp", false, false)
	account := createTestAccount(t, db, "ada@example.com")
	db.Create(&models.OIDCIdentity{AccountID: account.ID, ProviderID: provider.ID, Subject: "sub-1", Email: "old@example.com"})

	got, err := h.ResolveAccount(context.Background(), &provider, Identity{Subject: "sub-1", Email: "changed@example.com"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("Expected account %s, got %s", account.ID, got.ID)
	}
}

func TestResolveAccountLinksByEmail(t *testing.T) {
	h, db := setupTestHandler(t)
	provider := createTestProvider(t, db, "corp", false, false)
	account := createTestAccount(t, db, "ada@example.com")

	got, err := h.ResolveAccount(context.Background(), &provider, Identity{Subject: "sub-1", Email: "Ada@Example.com"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("Expected account %s, got %s", account.ID, got.ID)
	}

	var count int64
	db.Model(&models.OIDCIdentity{}).Where("account_id = ? AND subject = ?", account.ID, "sub-1").Count(&count)
	if count != 1 {
		t.Errorf("Expected identity link to be created, got %d", count)
	}
}

func TestResolveAccountWithoutAutoProvision(t *testing.T) {
	h, db := setupTestHandler(t)
	provider := createTestProvider(t, db, "corp", false, false)

	_, err := h.ResolveAccount(context.Background(), &provider, Identity{Subject: "sub-1", Email: "new@example.com"})
	if err != ErrNotProvisioned {
		t.Errorf("Expected ErrNotProvisioned, got %v", err)
	}
}

func TestResolveAccountAutoProvisions(t *testing.T) {
	h, db := setupTestHandler(t)
	provider := createTestProvider(t, db, "corp", false, true)

	// "grace" is taken, so the derived handle gets a suffix
	taken := createTestAccount(t, db, "someone@example.com")
	db.Create(&models.Profile{ID: taken.ID, Username: "grace"})

	got, err := h.ResolveAccount(context.Background(), &provider, Identity{Subject: "sub-9", Email: "Grace@example.com", Name: "Grace Hopper"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !got.Active || got.SystemRole != models.SystemRoleUser {
		t.Errorf("Unexpected provisioned account: %+v", got)
	}

	var profile models.Profile
	if err := db.First(&profile, "id = ?", got.ID).Error; err != nil {
		t.Fatalf("Expected profile to be created: %v", err)
	}
	if profile.Username != "grace2" {
		t.Errorf("Expected username grace2, got %s", profile.Username)
	}
	if models.StringValue(profile.DisplayName) != "Grace Hopper" {
		t.Errorf("Expected display name from claims, got %q", models.StringValue(profile.DisplayName))
	}
}

func TestListProvidersOnlyEnabled(t *testing.T) {
	h, db := setupTestHandler(t)
	router := setupTestRouter(h)
	// created after the handler so no discovery is attempted
	createTestProvider(t, db, "on", true, false)
	createTestProvider(t, db, "off", false, false)

	req, _ := http.NewRequest("GET", "/api/oidc/providers", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var providers []ProviderResponse
	json.Unmarshal(resp.Body.Bytes(), &providers)
	if len(providers) != 1 || providers[0].Slug != "on" {
		t.Errorf("Expected only the enabled provider, got %+v", providers)
	}
}

func TestGetAuthURLUnknownAndUnconfigured(t *testing.T) {
	h, db := setupTestHandler(t)
	router := setupTestRouter(h)
	createTestProvider(t, db, "pending", true, false)

	tests := []struct {
		slug string
		want int
	}{
		{"missing", http.StatusNotFound},
		{"pending", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest("POST", "/api/oidc/providers/"+tt.slug+"/auth", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.slug, tt.want, resp.Code)
		}
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := setupTestRouter(h)

	req, _ := http.NewRequest("GET", "/api/oidc/callback?state=forged&code=abc", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestAdminProviderLifecycle(t *testing.T) {
	h, db := setupTestHandler(t)
	router := setupTestRouter(h)

	body, _ := json.Marshal(CreateProviderRequest{
		Name:         "Corp SSO",
		Slug:         "Corp",
		Issuer:       "https://sso.example.com",
		ClientID:     "client",
		ClientSecret: "secret",
	})
	req, _ := http.NewRequest("POST", "/api/admin/oidc/providers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created AdminProviderResponse
	json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Slug != "corp" || created.Ready {
		t.Errorf("Unexpected provider: %+v", created)
	}

	// duplicate slug
	req, _ = http.NewRequest("POST", "/api/admin/oidc/providers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for duplicate, got %d", resp.Code)
	}

	req, _ = http.NewRequest("PUT", "/api/admin/oidc/providers/1", bytes.NewBufferString(`{"auto_provision":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	var updated AdminProviderResponse
	json.Unmarshal(resp.Body.Bytes(), &updated)
	if resp.Code != http.StatusOK || !updated.AutoProvision {
		t.Errorf("Expected auto_provision to be set, got %d %+v", resp.Code, updated)
	}

	account := createTestAccount(t, db, "ada@example.com")
	db.Create(&models.OIDCIdentity{AccountID: account.ID, ProviderID: created.ID, Subject: "sub-1"})

	req, _ = http.NewRequest("DELETE", "/api/admin/oidc/providers/1", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}

	var identities int64
	db.Model(&models.OIDCIdentity{}).Where("provider_id = ?", created.ID).Count(&identities)
	if identities != 0 {
		t.Errorf("Expected identities to be removed, got %d", identities)
	}

	req, _ = http.NewRequest("GET", "/api/admin/oidc/providers", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	var remaining []AdminProviderResponse
	json.Unmarshal(resp.Body.Bytes(), &remaining)
	if len(remaining) != 0 {
		t.Errorf("Expected no providers, got %d", len(remaining))
	}
}

func TestCreateProviderValidation(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := setupTestRouter(h)

	body, _ := json.Marshal(CreateProviderRequest{Name: "Bad", Slug: "no spaces", Issuer: "not a url"})
	req, _ := http.NewRequest("POST", "/api/admin/oidc/providers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Fields map[string]string `json:"fields"`
	}
	json.Unmarshal(resp.Body.Bytes(), &out)
	for _, field := range []string{"slug", "issuer", "client_id", "client_secret"} {
		if out.Fields[field] == "" {
			t.Errorf("Expected an error for %s, got %+v", field, out.Fields)
		}
	}
}

func TestUpdateUnknownProvider(t *testing.T) {
	h, _ := setupTestHandler(t)
	router := setupTestRouter(h)

	req, _ := http.NewRequest("PUT", "/api/admin/oidc/providers/42", bytes.NewBufferString(`{"enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

// discoveryServer serves just enough of an issuer for provider discovery
func discoveryServer(t *testing.T) *httptest.Server {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthFlowStoresStateInSession(t *testing.T) {
	srv := discoveryServer(t)
	db := setupTestDB(t)
	provider := models.OIDCProvider{
		Name: "Acme", Slug: "acme", Issuer: srv.URL,
		ClientID: "client", ClientSecret: "secret", Enabled: true,
	}
	if err := db.Create(&provider).Error; err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	h := NewHandler(db, "http://localhost:8080", profiles.NewService(db, nil))
	router := setupTestRouter(h)

	req, _ := http.NewRequest("GET", "/api/oidc/providers/acme/login", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d: %s", resp.Code, resp.Body.String())
	}
	location, err := url.Parse(resp.Header().Get("Location"))
	if err != nil || !strings.HasPrefix(location.String(), srv.URL+"/authorize") {
		t.Fatalf("Unexpected redirect %q", resp.Header().Get("Location"))
	}
	q := location.Query()
	if q.Get("state") == "" || q.Get("nonce") == "" {
		t.Errorf("Expected state and nonce, got %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost:8080/api/oidc/callback" {
		t.Errorf("Unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
	cookies := resp.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Expected the flow to be kept in a session cookie")
	}

	// a different state with the right session is still rejected
	req, _ = http.NewRequest("GET", "/api/oidc/callback?state=other&code=abc", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}

	// the admin view reports the discovered provider as ready
	req, _ = http.NewRequest("GET", "/api/admin/oidc/providers", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	var listed []AdminProviderResponse
	json.Unmarshal(resp.Body.Bytes(), &listed)
	if len(listed) != 1 || !listed[0].Ready {
		t.Errorf("Expected a ready provider, got %+v", listed)
	}
}
