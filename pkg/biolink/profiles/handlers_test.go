package profiles

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/auth"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"gorm.io/gorm"
)

func setupTestRouter(db *gorm.DB, provisionToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	views := NewAssembler(db, nil, time.Minute)
	handler := NewHandler(NewService(db, views), views)

	api := r.Group("/api")
	handler.RegisterPublicRoutes(api, provisionToken)
	handler.RegisterRoutes(api.Group("", auth.AuthMiddleware()))
	return r
}

func getAuthHeader(p models.Profile) string {
	token, _ := auth.GenerateToken(p.ID, p.Username+"@example.com", "user")
	return "Bearer " + token
}

func TestPublicProfileHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, "")
	owner := createTestProfile(t, db, "owner-1", "mona")
	createTestLink(t, db, owner.ID, "a", 0, true)

	req, _ := http.NewRequest("GET", "/api/profiles/mona", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var view ProfileView
	json.Unmarshal(resp.Body.Bytes(), &view)
	if view.Username != "mona" || len(view.Links) != 1 {
		t.Errorf("Unexpected view: %+v", view)
	}
	if view.Editable {
		t.Error("Expected anonymous view to be read-only")
	}
}

func TestPublicProfileNotFound(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, "")

	req, _ := http.NewRequest("GET", "/api/profiles/nobody", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestMineHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, "")
	owner := createTestProfile(t, db, "owner-1", "mona")

	req, _ := http.NewRequest("GET", "/api/profile", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var view ProfileView
	json.Unmarshal(resp.Body.Bytes(), &view)
	if !view.Editable {
		t.Error("Expected owner view to be editable")
	}
}

func TestUpdateHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, "")
	owner := createTestProfile(t, db, "owner-1", "mona")

	body, _ := json.Marshal(map[string]string{"bio": "hi", "background_color": "#112233", "username": "hacked"})
	req, _ := http.NewRequest("PUT", "/api/profile", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var got ProfileResponse
	json.Unmarshal(resp.Body.Bytes(), &got)
	if got.Username != "mona" {
		t.Errorf("Expected username to stay mona, got %s", got.Username)
	}
	if got.Bio == nil || *got.Bio != "hi" {
		t.Errorf("Expected bio hi, got %v", got.Bio)
	}

	body, _ = json.Marshal(map[string]string{"background_color": "blue"})
	req, _ = http.NewRequest("PUT", "/api/profile", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestProvisionHandler(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, "s3cret")

	post := func(token string, body interface{}) *httptest.ResponseRecorder {
		jsonBody, _ := json.Marshal(body)
		req, _ := http.NewRequest("POST", "/api/accounts/provision", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set(ProvisionTokenHeader, token)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	if resp := post("", ProvisionInput{ID: "x", Email: "x@example.com"}); resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", resp.Code)
	}

	if resp := post("s3cret", map[string]string{"email": "x@example.com"}); resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without id, got %d", resp.Code)
	}

	resp := post("s3cret", ProvisionInput{ID: "x", Email: "x@example.com", DisplayName: "X"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var got ProfileResponse
	json.Unmarshal(resp.Body.Bytes(), &got)
	if got.Username != "x" || got.ID != "x" {
		t.Errorf("Unexpected profile: %+v", got)
	}
}

func TestProvisionDisabledWithoutToken(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db, "")

	req, _ := http.NewRequest("POST", "/api/accounts/provision", bytes.NewBufferString(`{"id":"x","email":"x@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}
