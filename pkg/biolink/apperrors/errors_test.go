package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"not found", NotFound("Link"), http.StatusNotFound},
		{"forbidden", Forbidden("nope"), http.StatusForbidden},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"conflict", Conflict("taken"), http.StatusConflict},
		{"store", Store("insert", errors.New("disk full")), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("create: %w", NotFound("Profile")), http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Status(tc.err))
		})
	}
}

func TestStoreKeepsClassifiedErrors(t *testing.T) {
	nf := NotFound("Link")
	assert.Same(t, nf, Store("load", nf))
	assert.Nil(t, Store("load", nil))

	var se *StoreError
	require.ErrorAs(t, Store("load", errors.New("conn reset")), &se)
	assert.Equal(t, "load", se.Op)
}

func TestFromValidation(t *testing.T) {
	type input struct {
		Title string
		URL   string
	}
	in := input{}
	err := FromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.URL, validation.Required),
	))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
	assert.Contains(t, ve.Fields, "Title")
	assert.Nil(t, FromValidation(nil))
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Respond(c, &ValidationError{Message: "title: required", Fields: map[string]string{"title": "required"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "title: required", body["error"])
	assert.NotNil(t, body["fields"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Respond(c, Store("update", errors.New("secret detail")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret detail")
}
