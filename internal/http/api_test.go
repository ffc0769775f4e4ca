package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"users-api/internal/events"
	"users-api/internal/repository/memory"
	"users-api/internal/service"
)

func newTestRouter(t *testing.T, allowReset bool) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger, _ := test.NewNullLogger()
	svc := service.NewUserService(memory.NewUserRepository(), events.Noop{}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	NewHandler(svc, logger, allowReset).RegisterRoutes(router)
	return WithCORS(router)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeObject(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func decodeArray(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seed(t *testing.T, h http.Handler, bodies ...string) {
	t.Helper()
	for _, body := range bodies {
		rec := doRequest(t, h, http.MethodPost, "/users", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestCRUDScenario(t *testing.T) {
	h := newTestRouter(t, false)

	rec := doRequest(t, h, http.MethodPost, "/users", `{"name":"A","email":"a@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decodeObject(t, rec)
	assert.Equal(t, float64(1), a["id"])
	assert.Equal(t, a["createdAt"], a["updatedAt"])

	rec = doRequest(t, h, http.MethodPost, "/users", `{"name":"B","email":"b@x.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(2), decodeObject(t, rec)["id"])

	rec = doRequest(t, h, http.MethodPatch, "/users/1", `{"name":"A2","id":77}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeObject(t, rec)
	assert.Equal(t, float64(1), updated["id"])
	assert.Equal(t, "A2", updated["name"])
	assert.Equal(t, "a@x.com", updated["email"])
	assert.Equal(t, a["createdAt"], updated["createdAt"])

	rec = doRequest(t, h, http.MethodDelete, "/users/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decodeObject(t, rec)
	assert.Equal(t, float64(2), deleted["id"])
	assert.Contains(t, deleted["message"], "2")

	rec = doRequest(t, h, http.MethodGet, "/users/2", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	notFound := decodeObject(t, rec)
	assert.Equal(t, float64(2), notFound["id"])
	assert.Equal(t, "user with id 2 not found", notFound["error"])

	rec = doRequest(t, h, http.MethodDelete, "/users/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeArray(t, rec)
	require.Len(t, all, 1)
	assert.Equal(t, "A2", all[0]["name"])
}

func TestInvalidInput(t *testing.T) {
	h := newTestRouter(t, false)

	for _, path := range []string{"/users/abc", "/users/0", "/users/-3"} {
		rec := doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "invalid user id", decodeObject(t, rec)["error"])
	}

	rec := doRequest(t, h, http.MethodPost, "/users", `["not","an","object"]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/users", `null`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPatch, "/users/1", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUsers_SearchAndPaging(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h,
		`{"name":"Alice"}`,
		`{"name":"Bob"}`,
		`{"name":"Alina"}`,
	)

	rec := doRequest(t, h, http.MethodGet, "/users?search=ali", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeArray(t, rec), 2)

	rec = doRequest(t, h, http.MethodGet, "/users?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeArray(t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, "Alina", page[0]["name"])

	rec = doRequest(t, h, http.MethodGet, "/users?page=2", "")
	assert.Len(t, decodeArray(t, rec), 3)
}

func TestListUsers_EmptyIsArray(t *testing.T) {
	h := newTestRouter(t, false)

	rec := doRequest(t, h, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSearchRouteIsNotAnID(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h, `{"name":"Alice"}`, `{"name":"Bob"}`)

	rec := doRequest(t, h, http.MethodGet, "/users/search?q=bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, "bob", body["query"])
	assert.Equal(t, "Searching for users with query: bob", body["message"])
	assert.Len(t, body["data"], 1)
}

func TestPaginated(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h, `{"name":"A"}`, `{"name":"B"}`, `{"name":"C"}`)

	rec := doRequest(t, h, http.MethodGet, "/users/paginated", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(10), pagination["limit"])
	assert.Equal(t, "id", pagination["sortBy"])
	assert.Equal(t, "asc", pagination["order"])
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, "Showing items 1 to 10", pagination["range"])
	assert.Len(t, body["data"], 3)

	rec = doRequest(t, h, http.MethodGet, "/users/paginated?page=2&limit=2&sortBy=name&order=DESC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeObject(t, rec)
	pagination = body["pagination"].(map[string]any)
	assert.Equal(t, "desc", pagination["order"])
	assert.Equal(t, float64(2), pagination["offset"])
	assert.Equal(t, float64(2), pagination["totalPages"])
	assert.Equal(t, "Showing items 3 to 4", pagination["range"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "A", data[0].(map[string]any)["name"])

	rec = doRequest(t, h, http.MethodGet, "/users/paginated?page=abc&limit=-4", "")
	pagination = decodeObject(t, rec)["pagination"].(map[string]any)
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(10), pagination["limit"])
}

func TestPaginated_HugePage(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h, `{"name":"A"}`, `{"name":"B"}`, `{"name":"C"}`)

	rec := doRequest(t, h, http.MethodGet, "/users/paginated?page=9223372036854775807&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, float64(2), pagination["totalPages"])
	assert.Equal(t, "Showing items 9223372036854775807 to 9223372036854775807", pagination["range"])
	assert.Empty(t, body["data"])

	rec = doRequest(t, h, http.MethodGet, "/users/paginated?page=1&limit=9223372036854775807", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeObject(t, rec)
	pagination = body["pagination"].(map[string]any)
	assert.Equal(t, "Showing items 1 to 9223372036854775807", pagination["range"])
	assert.Len(t, body["data"], 3)

	rec = doRequest(t, h, http.MethodGet, "/users?page=9223372036854775807&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestFilter(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h,
		`{"name":"A","city":"Oslo","age":30}`,
		`{"name":"B","city":"Oslo","age":41}`,
		`{"name":"C","city":"Rome","age":30}`,
	)

	rec := doRequest(t, h, http.MethodGet, "/users/filter?city=Oslo&age=30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, map[string]any{"city": "Oslo", "age": "30"}, body["filters"])
	assert.Equal(t, float64(2), body["appliedFilters"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "A", data[0].(map[string]any)["name"])

	rec = doRequest(t, h, http.MethodGet, "/users/filter", "")
	body = decodeObject(t, rec)
	assert.Equal(t, float64(0), body["appliedFilters"])
	assert.Len(t, body["data"], 3)
}

func TestByRoles(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h,
		`{"name":"A","role":"admin"}`,
		`{"name":"B","role":"user"}`,
		`{"name":"C","role":"guest"}`,
	)

	rec := doRequest(t, h, http.MethodGet, "/users/by-roles?roles=admin&roles=user", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	assert.Equal(t, []any{"admin", "user"}, body["roles"])
	assert.Equal(t, float64(2), body["count"])
	assert.Len(t, body["data"], 2)

	rec = doRequest(t, h, http.MethodGet, "/users/by-roles?roles=admin", "")
	body = decodeObject(t, rec)
	assert.Equal(t, []any{"admin"}, body["roles"])
	assert.Equal(t, float64(1), body["count"])
	assert.Len(t, body["data"], 1)

	rec = doRequest(t, h, http.MethodGet, "/users/by-roles?roles[]=guest&roles[]=user", "")
	body = decodeObject(t, rec)
	assert.Equal(t, []any{"guest", "user"}, body["roles"])
	assert.Equal(t, float64(2), body["count"])
}

func TestActive(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h,
		`{"name":"A","isActive":true,"age":25}`,
		`{"name":"B","isActive":false,"age":35}`,
		`{"name":"C","isActive":true,"age":45}`,
	)

	rec := doRequest(t, h, http.MethodGet, "/users/active?isActive=FALSE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeObject(t, rec)
	filters := body["filters"].(map[string]any)
	assert.Equal(t, false, filters["isActive"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "B", data[0].(map[string]any)["name"])

	rec = doRequest(t, h, http.MethodGet, "/users/active?isActive=True&minAge=abc&maxAge=40", "")
	body = decodeObject(t, rec)
	filters = body["filters"].(map[string]any)
	valid := body["validFilters"].(map[string]any)
	assert.Equal(t, true, filters["isActive"])
	assert.Nil(t, filters["minAge"])
	assert.Equal(t, float64(40), filters["maxAge"])
	assert.Equal(t, false, valid["hasMinAge"])
	assert.Equal(t, true, valid["hasMaxAge"])
	data = body["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "A", data[0].(map[string]any)["name"])
}

func TestCountAndByEmail(t *testing.T) {
	h := newTestRouter(t, false)
	seed(t, h, `{"name":"A","email":"a@x.com"}`, `{"name":"B","email":"b@x.com"}`)

	rec := doRequest(t, h, http.MethodGet, "/users/count", "")
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/users/by-email?email=b@x.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B", decodeObject(t, rec)["name"])

	rec = doRequest(t, h, http.MethodGet, "/users/by-email?email=z@x.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/users/by-email", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReset(t *testing.T) {
	locked := newTestRouter(t, false)
	seed(t, locked, `{"name":"A"}`)
	rec := doRequest(t, locked, http.MethodDelete, "/users", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)

	h := newTestRouter(t, true)
	seed(t, h, `{"name":"A"}`, `{"name":"B"}`)

	rec = doRequest(t, h, http.MethodDelete, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "All users have been cleared", decodeObject(t, rec)["message"])

	rec = doRequest(t, h, http.MethodPost, "/users", `{"name":"C"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), decodeObject(t, rec)["id"])
}

func TestRequestIDAndCORS(t *testing.T) {
	h := newTestRouter(t, false)

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	req.Header.Set("Origin", "http://example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/users", strings.NewReader(""))
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
