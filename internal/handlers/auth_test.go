package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/auth"
	"github.com/chatrelay/chatrelay/internal/config"
)

func newAuthTestEnv(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewAuthHandler(log, testAuthService(t), config.AdminConfig{
		Username: "admin",
		Password: hash,
	}).Register(e)
	return e
}

func TestLogin(t *testing.T) {
	e := newAuthTestEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/admin/login",
		`{"username":"admin","password":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	e := newAuthTestEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/admin/login",
		`{"username":"admin","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/admin/login",
		`{"username":"someone","password":"s3cret"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	e := newAuthTestEnv(t)
	rec := doJSON(e, http.MethodPost, "/api/v1/admin/login", `{"username":"admin"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
