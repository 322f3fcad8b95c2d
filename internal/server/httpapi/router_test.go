package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/civisync/internal/common"
	"github.com/dmitrijs2005/civisync/internal/logging"
	"github.com/dmitrijs2005/civisync/internal/server/config"
	"github.com/dmitrijs2005/civisync/internal/server/services"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, args ...any) {}
func (n nopLogger) With(args ...any) logging.Logger                  { return n }

const testSecret = "test-secret"

func testRouter(contactSync, contributionSync SyncFunc) http.Handler {
	cfg := &config.Config{SecretKey: testSecret}
	if contactSync == nil {
		contactSync = func(ctx context.Context, payload map[string]any) *services.SyncResponse {
			return &services.SyncResponse{}
		}
	}
	if contributionSync == nil {
		contributionSync = contactSync
	}
	return NewRouter(cfg, nopLogger{}, contactSync, contributionSync)
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRouter_MissingTokenRejected(t *testing.T) {
	router := testRouter(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/contact", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing bearer token")
}

func TestRouter_BadTokenRejected(t *testing.T) {
	router := testRouter(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/contact", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong-secret"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), common.ErrInvalidToken.Error())
}

func TestRouter_SyncResponsePassthrough(t *testing.T) {
	var gotPayload map[string]any
	sync := func(ctx context.Context, payload map[string]any) *services.SyncResponse {
		gotPayload = payload
		return &services.SyncResponse{ContactID: 42, PartnerID: 5, Timestamp: 1700000000}
	}
	router := testRouter(sync, nil)

	body := `{"x_civicrm_id": 42, "name": "Jane Doe"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/contact", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane Doe", gotPayload["name"])

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp["is_error"])
	assert.Equal(t, float64(42), resp["contact_id"])
	assert.Equal(t, float64(5), resp["partner_id"])
}

func TestRouter_SyncErrorsTravelInBody(t *testing.T) {
	sync := func(ctx context.Context, payload map[string]any) *services.SyncResponse {
		return &services.SyncResponse{IsError: 1, ErrorLog: []string{"wrong CiviCRM request - missed required field: name"}}
	}
	router := testRouter(nil, sync)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/contribution", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Validation failures answer 200; the error is in the body.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_error":1`)
	assert.Contains(t, w.Body.String(), "missed required field")
}

func TestRouter_MalformedBody(t *testing.T) {
	router := testRouter(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/contact", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_error":1`)
	assert.Contains(t, w.Body.String(), "malformed request body")
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	router := testRouter(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/contact", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))

	// Without a client-supplied id one is generated.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync/contact", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testSecret))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
