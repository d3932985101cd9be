package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspections-api/api/middleware"
	"inspections-api/api/services"
	"inspections-api/pkg/ontology"
	"inspections-api/pkg/shared"
	"inspections-api/pkg/store/memstore"
	"inspections-api/pkg/validation"
)

type stubNATS struct{ err error }

func (s stubNATS) HealthCheck() error { return s.err }

func newServer(t *testing.T, nats HealthChecker) http.Handler {
	t.Helper()
	v, err := validation.New()
	require.NoError(t, err)

	st := memstore.New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inspections := services.NewInspectionService(st, v, nil)
	inspections.SetClock(func() time.Time { return now })
	queries := services.NewQueryService(st)
	queries.SetClock(func() time.Time { return now })

	mux := http.NewServeMux()
	NewHandlers(inspections, queries).RegisterRoutes(mux, nats)
	return middleware.CORS(middleware.RequestLogger(mux))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const siteA = `{"location":"Site A","status":"Pending","inspector":"J. Doe","type":"Air","notes":"check"}`

func createSite(t *testing.T, h http.Handler, body string) ontology.Inspection {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/inspections", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ontology.Inspection](t, rec)
}

func path(id int64) string {
	return "/api/inspections/" + strconv.FormatInt(id, 10)
}

func TestRootBanner(t *testing.T) {
	h := newServer(t, nil)

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shared.MsgServiceRunning, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndGet(t *testing.T) {
	h := newServer(t, nil)

	created := createSite(t, h, siteA)
	assert.Equal(t, ontology.PriorityMedium, created.Priority)

	rec := do(t, h, http.MethodGet, path(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Nil(t, raw["coordinates"], "coordinates must be present as null")
	assert.Contains(t, raw, "coordinates")
	assert.Equal(t, []any{}, raw["violations"])
	assert.Equal(t, "2024-05-01T12:00:00Z", raw["date"])
}

func TestCreateValidationErrors(t *testing.T) {
	h := newServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/inspections", `{"location":"Site A","priority":"Urgent"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[shared.ValidationErrorResponse](t, rec)
	assert.Len(t, body.Errors, 5)
	assert.Contains(t, body.Errors, `"status" is required`)
}

func TestMalformedJSON(t *testing.T) {
	h := newServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/inspections", `{"location":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.MsgInvalidJSON, decodeBody[shared.ErrorResponse](t, rec).Error)
}

func TestOversizedBody(t *testing.T) {
	h := newServer(t, nil)

	big := `{"location":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec := do(t, h, http.MethodPost, "/api/inspections", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, shared.MsgBodyTooLarge, decodeBody[shared.ErrorResponse](t, rec).Error)

	created := createSite(t, h, siteA)
	rec = do(t, h, http.MethodPatch, path(created.ID), `{"notes":"`+strings.Repeat("y", maxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetErrors(t *testing.T) {
	h := newServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/inspections/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.MsgInvalidID, decodeBody[shared.ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/inspections/77", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, shared.MsgNotFound, decodeBody[shared.ErrorResponse](t, rec).Error)
}

func TestPatch(t *testing.T) {
	h := newServer(t, nil)
	created := createSite(t, h, siteA)

	rec := do(t, h, http.MethodPatch, path(created.ID), `{"priority":"High","coordinates":{"lat":1,"lng":2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ontology.Inspection](t, rec)
	assert.Equal(t, ontology.PriorityHigh, updated.Priority)
	assert.Equal(t, &ontology.Coordinates{Lat: 1, Lng: 2}, updated.Coordinates)
	assert.Equal(t, created.Location, updated.Location)

	rec = do(t, h, http.MethodPatch, path(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, "empty body is an empty update")

	rec = do(t, h, http.MethodPatch, path(created.ID), `{"priority":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeBody[shared.ValidationErrorResponse](t, rec).Errors, 1)

	rec = do(t, h, http.MethodPatch, "/api/inspections/999", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelete(t *testing.T) {
	h := newServer(t, nil)
	created := createSite(t, h, siteA)

	rec := do(t, h, http.MethodDelete, path(created.ID), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodGet, path(created.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, path(created.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSearchAndStats(t *testing.T) {
	h := newServer(t, nil)
	createSite(t, h, siteA)
	createSite(t, h, `{"location":"River","status":"Completed","inspector":"K","type":"Water","priority":"Low","violations":["leak"],"notes":"n"}`)

	rec := do(t, h, http.MethodGet, "/api/inspections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ontology.Inspection](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/api/inspections/search?q=air", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[ontology.SearchResult](t, rec)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, "air", result.Query)

	rec = do(t, h, http.MethodGet, "/api/inspections/search", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.MsgQueryRequired, decodeBody[shared.ErrorResponse](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/api/inspections/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[ontology.Stats](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.WithViolations)
	assert.Equal(t, map[string]int{"Medium": 1, "Low": 1}, stats.ByPriority)
}

func TestEmptyListIsArray(t *testing.T) {
	h := newServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/inspections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := do(t, newServer(t, nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[shared.HealthStatus](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Details["nats"])

	rec = do(t, newServer(t, stubNATS{}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[shared.HealthStatus](t, rec).Details["nats"])

	rec = do(t, newServer(t, stubNATS{err: errors.New("down")}), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeBody[shared.HealthStatus](t, rec).Status)
}

func TestMiddleware(t *testing.T) {
	h := newServer(t, nil)

	rec := do(t, h, http.MethodOptions, "/api/inspections/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")

	rec = do(t, h, http.MethodGet, "/", "")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
}
