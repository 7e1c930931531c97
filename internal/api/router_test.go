package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashplayd/internal/api"
	"dashplayd/internal/logger"
)

type stubControl struct {
	createErr error

	createdID  string
	createdURL string
	destroyed  int
}

func (s *stubControl) Create(ctx context.Context, id, manifestURL string) error {
	s.createdID = id
	s.createdURL = manifestURL
	return s.createErr
}

func (s *stubControl) Destroy() { s.destroyed++ }

func TestHealth(t *testing.T) {
	h := api.New(&stubControl{}, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateSession(t *testing.T) {
	ctrl := &stubControl{}
	h := api.New(ctrl, logger.Nop())

	body := `{"id": "living-room", "manifest_url": "http://origin/media/manifest.mpd"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "living-room", ctrl.createdID)
	assert.Equal(t, "http://origin/media/manifest.mpd", ctrl.createdURL)

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "living-room", resp.ID)
}

func TestCreateSessionGeneratesID(t *testing.T) {
	ctrl := &stubControl{}
	h := api.New(ctrl, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"manifest_url": "http://origin/media/manifest.mpd"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.ID)
	assert.NoError(t, err, "generated id is a uuid")
	assert.Equal(t, resp.ID, ctrl.createdID)
}

func TestCreateSessionRequiresManifestURL(t *testing.T) {
	ctrl := &stubControl{}
	h := api.New(ctrl, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"id": "living-room"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ctrl.createdID, "control must not be reached")
}

func TestCreateSessionBadBody(t *testing.T) {
	h := api.New(&stubControl{}, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionUpstreamFailure(t *testing.T) {
	ctrl := &stubControl{createErr: errors.New("failed to load manifest")}
	h := api.New(ctrl, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"manifest_url": "http://origin/media/manifest.mpd"}`)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDestroySession(t *testing.T) {
	ctrl := &stubControl{}
	h := api.New(ctrl, logger.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, ctrl.destroyed)
}
