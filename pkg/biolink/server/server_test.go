package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/config"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:          "test",
		Port:            "0",
		BaseURL:         "http://links.test",
		SessionSecret:   "test-session-secret",
		RateLimitRPS:    100,
		RateLimitBurst:  100,
		DefaultLanguage: "en",
	}
}

func setupRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { sqlDB.Close() })

	return NewRouter(cfg, db, Backends{}), db
}

func doJSON(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func signUp(t *testing.T, r http.Handler, username string) string {
	t.Helper()
	resp := doJSON(r, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"display_name":          "Ada Lovelace",
		"username":              username,
		"email":                 username + "@example.com",
		"password":              "secret1",
		"password_confirmation": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var out auth.AuthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t, testConfig())

	resp := doJSON(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"service":"biolink"`)
}

func TestHealthReportsDatabaseOutage(t *testing.T) {
	r, db := setupRouter(t, testConfig())
	sqlDB, _ := db.DB()
	sqlDB.Close()

	resp := doJSON(r, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "degraded")
}

func TestRequestIDHeader(t *testing.T) {
	r, _ := setupRouter(t, testConfig())

	resp := doJSON(r, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, resp.Header().Get("X-Request-ID"))
}

func TestLinksThroughAPI(t *testing.T) {
	r, _ := setupRouter(t, testConfig())
	token := signUp(t, r, "ada")

	for _, title := range []string{"Gamma", "Beta", "Alpha"} {
		resp := doJSON(r, http.MethodPost, "/api/links", token, map[string]string{
			"title": title,
			"url":   "https://" + strings.ToLower(title) + ".example.com",
		})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}

	// newest first
	resp := doJSON(r, http.MethodGet, "/api/links", token, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list []struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "Alpha", list[0].Title)
	assert.Equal(t, "Gamma", list[2].Title)

	resp = doJSON(r, http.MethodPost, "/api/links/reorder", token, map[string]int{"source": 0, "destination": 2})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var moved struct {
		Links []struct {
			Title string `json:"title"`
		} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &moved))
	require.Len(t, moved.Links, 3)
	assert.Equal(t, "Beta", moved.Links[0].Title)
	assert.Equal(t, "Alpha", moved.Links[2].Title)

	page := doJSON(r, http.MethodGet, "/ada", "", nil)
	require.Equal(t, http.StatusOK, page.Code)
	body := page.Body.String()
	assert.Less(t, strings.Index(body, "Beta"), strings.Index(body, "Gamma"))
	assert.Less(t, strings.Index(body, "Gamma"), strings.Index(body, "Alpha"))

	api := doJSON(r, http.MethodGet, "/api/profiles/ada", "", nil)
	assert.Equal(t, http.StatusOK, api.Code)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r, _ := setupRouter(t, testConfig())

	for _, path := range []string{"/api/links", "/api/profile", "/api/api-keys", "/api/admin/stats"} {
		resp := doJSON(r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
}

func TestAdminRequiresAdminRole(t *testing.T) {
	r, _ := setupRouter(t, testConfig())
	token := signUp(t, r, "ada")

	resp := doJSON(r, http.MethodGet, "/api/admin/stats", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestFormSignUpReachesDashboard(t *testing.T) {
	r, _ := setupRouter(t, testConfig())

	form := url.Values{
		"display_name":          {"Grace Hopper"},
		"username":              {"grace"},
		"email":                 {"grace@example.com"},
		"password":              {"secret1"},
		"password_confirmation": {"secret1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusSeeOther, resp.Code, resp.Body.String())
	assert.Equal(t, "/dashboard", resp.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range resp.Result().Cookies() {
		req.AddCookie(c)
	}
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "http://links.test/grace")
}

func TestFixedRoutesWinOverProfiles(t *testing.T) {
	r, _ := setupRouter(t, testConfig())

	resp := doJSON(r, http.MethodGet, "/auth", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `action="/auth/login"`)

	resp = doJSON(r, http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Biolink API")

	resp = doJSON(r, http.MethodGet, "/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doJSON(r, http.MethodGet, "/api/nothing/here", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Type"), "application/json")
}

func TestDefaultLanguage(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultLanguage = "ar"
	r, _ := setupRouter(t, cfg)

	resp := doJSON(r, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `dir="rtl"`)
}

func TestAuthRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.01
	cfg.RateLimitBurst = 2
	r, _ := setupRouter(t, cfg)

	creds := map[string]string{"email": "nobody@example.com", "password": "wrong"}
	login := func(forwardedFor string) int {
		body, _ := json.Marshal(creds)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	// a rotating X-Forwarded-For does not buy a fresh bucket
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, login("203.0.113.3"))

	resp := doJSON(r, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	// the public page is not throttled
	resp = doJSON(r, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestTrustedProxyForwardsClientIP(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.01
	cfg.RateLimitBurst = 1
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	r, _ := setupRouter(t, cfg)

	login := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"x@example.com","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	// requests arrive from 192.0.2.1, the configured proxy
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, login("203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.2"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeReportsListenError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	err = Serve(context.Background(), l.Addr().String(), http.NotFoundHandler())
	assert.Error(t, err)
}
