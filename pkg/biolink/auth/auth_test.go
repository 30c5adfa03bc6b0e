package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
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

// stubProfiles writes bare profile rows so the auth package can be tested on
// its own.
type stubProfiles struct {
	db *gorm.DB
}

func (s stubProfiles) ValidateUsername(username string) error {
	if username == "dashboard" {
		return apperrors.Validation("username is reserved")
	}
	return nil
}

func (s stubProfiles) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (s stubProfiles) CreateProfile(tx *gorm.DB, accountID, username, displayName string) error {
	return tx.Create(&models.Profile{ID: accountID, Username: username, DisplayName: models.StringPtr(displayName)}).Error
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Sessions("test-secret", false), LoadSession())
	handler := NewHandler(NewService(db, stubProfiles{db: db}))
	auth := r.Group("/api/auth")
	handler.RegisterRoutes(auth)
	return r
}

func signUpBody() SignUpInput {
	return SignUpInput{
		Email:                "mona@example.com",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
		Username:             "mona",
		DisplayName:          "Mona",
	}
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPasswordHashing(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == password {
		t.Error("Hash should not equal plain password")
	}

	if !CheckPassword(password, hash) {
		t.Error("CheckPassword should return true for correct password")
	}

	if CheckPassword("wrongpassword", hash) {
		t.Error("CheckPassword should return false for incorrect password")
	}

	if CheckPassword("", "") {
		t.Error("CheckPassword should reject an empty hash")
	}
}

func TestJWTToken(t *testing.T) {
	token, err := GenerateToken("acc-1", "test@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	if claims.AccountID != "acc-1" {
		t.Errorf("Expected AccountID acc-1, got %s", claims.AccountID)
	}

	if claims.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", claims.Email)
	}

	if claims.SystemRole != "user" {
		t.Errorf("Expected role user, got %s", claims.SystemRole)
	}
}

func TestInvalidToken(t *testing.T) {
	_, err := ValidateToken("invalid-token")
	if err == nil {
		t.Error("Expected error for invalid token")
	}
}

func TestExpiredToken(t *testing.T) {
	Configure("", time.Millisecond)
	defer Configure("", 24*time.Hour)

	token, _ := GenerateToken("acc-1", "test@example.com", "user")
	time.Sleep(1100 * time.Millisecond)

	if _, err := ValidateToken(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestSignUp(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := postJSON(router, "/api/auth/signup", signUpBody())

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Token == "" {
		t.Error("Expected token in response")
	}
	if response.Account.Email != "mona@example.com" {
		t.Errorf("Expected email mona@example.com, got %s", response.Account.Email)
	}
	if resp.Header().Get("Set-Cookie") == "" {
		t.Error("Expected session cookie to be set")
	}

	var profile models.Profile
	if err := db.First(&profile, "id = ?", response.Account.ID).Error; err != nil {
		t.Fatalf("Expected profile sharing the account ID: %v", err)
	}
	if profile.Username != "mona" {
		t.Errorf("Expected username mona, got %s", profile.Username)
	}
}

func TestSignUpValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	cases := []struct {
		name   string
		mutate func(*SignUpInput)
		field  string
	}{
		{"missing display name", func(in *SignUpInput) { in.DisplayName = "" }, "display_name"},
		{"bad username", func(in *SignUpInput) { in.Username = "mona lisa!" }, "username"},
		{"short password", func(in *SignUpInput) { in.Password, in.PasswordConfirmation = "abc", "abc" }, "password"},
		{"mismatched confirmation", func(in *SignUpInput) { in.PasswordConfirmation = "other1" }, "password_confirmation"},
		{"bad email", func(in *SignUpInput) { in.Email = "not-an-email" }, "email"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := signUpBody()
			tc.mutate(&body)
			resp := postJSON(router, "/api/auth/signup", body)

			if resp.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
			}
			var response struct {
				Fields map[string]string `json:"fields"`
			}
			json.Unmarshal(resp.Body.Bytes(), &response)
			if _, ok := response.Fields[tc.field]; !ok {
				t.Errorf("Expected field error for %s, got %v", tc.field, response.Fields)
			}
		})
	}

	var count int64
	db.Model(&models.Account{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no accounts after failed sign-ups, got %d", count)
	}
}

func TestSignUpUppercaseUsernameIsNormalized(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	body := signUpBody()
	body.Username = "Mona"
	resp := postJSON(router, "/api/auth/signup", body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var profile models.Profile
	db.First(&profile)
	if profile.Username != "mona" {
		t.Errorf("Expected lowercased username, got %s", profile.Username)
	}
}

func TestSignUpReservedUsername(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	body := signUpBody()
	body.Username = "dashboard"
	resp := postJSON(router, "/api/auth/signup", body)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestSignUpDuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	postJSON(router, "/api/auth/signup", signUpBody())

	second := signUpBody()
	second.Email = "other@example.com"
	second.Username = "MONA"
	resp := postJSON(router, "/api/auth/signup", second)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}

	var count int64
	db.Model(&models.Account{}).Where("email = ?", "other@example.com").Count(&count)
	if count != 0 {
		t.Error("Expected no account row for the rejected sign-up")
	}
}

// blindProfiles never sees existing usernames, as when a concurrent sign-up
// commits between the check and the insert
type blindProfiles struct {
	stubProfiles
}

func (blindProfiles) UsernameTaken(context.Context, string) (bool, error) {
	return false, nil
}

func TestSignUpLosingUsernameRaceIsConflict(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Create(&models.Profile{ID: "rival", Username: "mona"}).Error; err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}

	svc := NewService(db, blindProfiles{stubProfiles{db: db}})
	_, err := svc.SignUp(context.Background(), signUpBody())

	var ce *apperrors.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if apperrors.Status(err) != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", apperrors.Status(err))
	}

	var count int64
	db.Model(&models.Account{}).Where("email = ?", "mona@example.com").Count(&count)
	if count != 0 {
		t.Error("Expected the account insert to be rolled back")
	}
}

func TestEnsureAdminEmailTakenIsConflict(t *testing.T) {
	db := setupTestDB(t)
	existing := models.Account{Email: "admin@example.com", Active: true, SystemRole: models.SystemRoleUser}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}

	svc := NewService(db, stubProfiles{db: db})
	err := svc.EnsureAdmin(context.Background(), "admin@example.com", "secret1", "admin")

	var ce *apperrors.ConflictError
	if !errors.As(err, &ce) {
		t.Errorf("Expected ConflictError, got %v", err)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	postJSON(router, "/api/auth/signup", signUpBody())

	second := signUpBody()
	second.Username = "mona2"
	resp := postJSON(router, "/api/auth/signup", second)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestLogin(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	postJSON(router, "/api/auth/signup", signUpBody())

	resp := postJSON(router, "/api/auth/login", LoginRequest{
		Email:    "Mona@Example.com",
		Password: "secret1",
	})

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Token == "" {
		t.Error("Expected token in response")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	postJSON(router, "/api/auth/signup", signUpBody())

	resp := postJSON(router, "/api/auth/login", LoginRequest{
		Email:    "mona@example.com",
		Password: "wrongpassword",
	})

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestMe(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := postJSON(router, "/api/auth/signup", signUpBody())

	var authResponse AuthResponse
	json.Unmarshal(resp.Body.Bytes(), &authResponse)

	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+authResponse.Token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var accountResponse AccountResponse
	json.Unmarshal(resp.Body.Bytes(), &accountResponse)

	if accountResponse.Email != "mona@example.com" {
		t.Errorf("Expected email mona@example.com, got %s", accountResponse.Email)
	}
}

func TestMeWithoutAuth(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestMeWithSessionCookie(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	resp := postJSON(router, "/api/auth/signup", signUpBody())

	req, _ := http.NewRequest("GET", "/api/auth/me", nil)
	for _, c := range resp.Result().Cookies() {
		req.AddCookie(c)
	}
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 from the session alone, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Sessions("test-secret", false), LoadSession(), Gate())
	r.GET("/dashboard", func(c *gin.Context) { c.String(http.StatusOK, "dashboard") })
	r.GET("/auth", func(c *gin.Context) { c.String(http.StatusOK, "sign in") })
	r.GET("/mona", func(c *gin.Context) { c.String(http.StatusOK, "public") })
	r.POST("/login", func(c *gin.Context) {
		SetSession(c, &models.Account{ID: "acc-1", Email: "mona@example.com", SystemRole: models.SystemRoleUser})
		c.Status(http.StatusNoContent)
	})

	get := func(path, cookie string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest("GET", path, nil)
		if cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	resp := get("/dashboard", "")
	if resp.Code != http.StatusFound || resp.Header().Get("Location") != SignInPath {
		t.Errorf("Expected redirect to sign-in, got %d %s", resp.Code, resp.Header().Get("Location"))
	}

	if resp := get("/auth", ""); resp.Code != http.StatusOK {
		t.Errorf("Expected sign-in page without session, got %d", resp.Code)
	}

	req, _ := http.NewRequest("POST", "/login", nil)
	login := httptest.NewRecorder()
	r.ServeHTTP(login, req)
	cookie := strings.Split(login.Header().Get("Set-Cookie"), ";")[0]
	if cookie == "" {
		t.Fatal("Expected session cookie")
	}

	if resp := get("/dashboard", cookie); resp.Code != http.StatusOK {
		t.Errorf("Expected dashboard with session, got %d", resp.Code)
	}

	resp = get("/auth", cookie)
	if resp.Code != http.StatusFound || resp.Header().Get("Location") != DashboardPath {
		t.Errorf("Expected redirect to dashboard, got %d %s", resp.Code, resp.Header().Get("Location"))
	}

	if resp := get("/mona", ""); resp.Code != http.StatusOK {
		t.Errorf("Expected public page to pass through, got %d", resp.Code)
	}
}
