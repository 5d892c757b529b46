package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, res *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestWriteDevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, TypeServerError, "boom", errors.New("pool closed"), "development")

	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	body := decode(t, res)
	assert.Equal(t, "pool closed", body.Detail)
	assert.Equal(t, "/api/v1/events", body.Instance)
	assert.Equal(t, http.StatusInternalServerError, body.Status)
}

func TestWriteProdHidesServerErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusInternalServerError, TypeServerError, "boom", errors.New("pool closed"), "production")

	assert.Equal(t, http.StatusText(http.StatusInternalServerError), decode(t, res).Detail)
}

func TestWriteProdKeepsClientErrorDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/events/x/registrations", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusConflict, TypeConflict, "Conflict", errors.New("event is full"), "production")

	assert.Equal(t, "event is full", decode(t, res).Detail)
}

func TestWriteWithErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/admin/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusUnprocessableEntity, TypeValidation, "Validation failed", nil, "production",
		WithErrors(map[string]string{"title": "is required"}), WithDetail("check the fields"))

	body := decode(t, res)
	assert.Equal(t, map[string]string{"title": "is required"}, body.Errors)
	assert.Equal(t, "check the fields", body.Detail)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
}
