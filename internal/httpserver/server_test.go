package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vpsinv/internal/auth"
	"github.com/MrSnakeDoc/vpsinv/internal/config"
	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/index"
	"github.com/MrSnakeDoc/vpsinv/internal/inventory"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	"github.com/MrSnakeDoc/vpsinv/internal/metrics"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	d   deps.Deps
}

func newTestServer(t *testing.T, tweak func(*deps.Deps)) *testServer {
	t.Helper()

	store := docstore.NewMemory(docstore.DefaultSchema)
	log := logger.Nop()
	m := metrics.New()

	d := deps.Deps{
		Logger:         log,
		StartTime:      time.Now(),
		Version:        "test",
		AuthRatePerMin: 100,
		StoreName:      config.StoreMemory,
		Store:          store,
		Inventory:      inventory.NewService(inventory.NewStoreRepository(store), index.NewMemoryIndex(), log, m, time.Minute),
		Auth:           auth.NewService(store, auth.NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour), log),
		Metrics:        m,
	}
	if tweak != nil {
		tweak(&d)
	}

	srv := httptest.NewServer(NewRouter(&config.Config{RequestTimeout: 5 * time.Second}, d))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, d: d}
}

func (ts *testServer) do(method, path, token string, body any, headers ...string) *http.Response {
	ts.t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(ts.t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(ts.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// login registers a user and returns a bearer token.
func (ts *testServer) login(email string) string {
	ts.t.Helper()

	resp := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "long-enough", "name": "Ops",
	})
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "long-enough",
	})
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)
	return decode[auth.Session](ts.t, resp).Token
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login("ops@example.com")

	resp := ts.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[struct{ User auth.User }](t, resp)
	assert.Equal(t, "ops@example.com", me.User.Email)

	resp = ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "OPS@example.com", "password": "long-enough", "name": "Again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ops@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "nope", "password": "short", "name": "",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[errorBody](t, resp)
	assert.Len(t, body.Fields, 3)

	resp = ts.do(http.MethodPost, "/api/auth/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields"`
}

func TestServersRequireAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/servers"},
		{http.MethodPost, "/api/servers"},
		{http.MethodPut, "/api/servers/x"},
		{http.MethodDelete, "/api/servers/x"},
		{http.MethodGet, "/api/servers/export"},
		{http.MethodPost, "/api/servers/import"},
	} {
		resp := ts.do(tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.method+" "+tc.path)
	}

	resp := ts.do(http.MethodGet, "/api/servers", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServerLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login("ops@example.com")

	resp := ts.do(http.MethodPost, "/api/servers", token, domain.InsertServer{
		Name:     "web1",
		IP:       "10.0.0.1",
		Provider: "Hetzner",
		Services: []domain.Service{{Name: "nginx", Port: "80,443"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `"1"`, resp.Header.Get("ETag"))
	web1 := decode[domain.Server](t, resp)
	assert.NotEmpty(t, web1.ID)
	assert.NotEmpty(t, web1.Services[0].ID)

	resp = ts.do(http.MethodPost, "/api/servers", token, domain.InsertServer{Name: "db1", Provider: "OVH"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/api/servers?provider=Hetzner&q=NGINX", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[inventory.View](t, resp)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, 1, view.Filtered)
	assert.Equal(t, []string{"Hetzner", "OVH"}, view.Providers)
	require.Len(t, view.Servers, 1)
	assert.Equal(t, "web1", view.Servers[0].Name)

	// Stale If-Match is rejected.
	update := domain.InsertServer{Name: "web1", IP: "10.0.0.2", Services: web1.Services}
	resp = ts.do(http.MethodPut, "/api/servers/"+web1.ID, token, update, "If-Match", `"7"`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(http.MethodPut, "/api/servers/"+web1.ID, token, update, "If-Match", `"1"`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[domain.Server](t, resp)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, web1.Services[0].ID, updated.Services[0].ID)

	resp = ts.do(http.MethodPut, "/api/servers/"+web1.ID, token, domain.InsertServer{Name: " "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = ts.do(http.MethodPut, "/api/servers/"+web1.ID, token, update, "If-Match", "abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(http.MethodDelete, "/api/servers/"+web1.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(http.MethodDelete, "/api/servers/"+web1.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/api/servers?sort=services", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[inventory.View](t, resp).Total)

	resp = ts.do(http.MethodGet, "/api/servers?sort=price", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServersAreScopedToTheirOwner(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.login("alice@example.com")
	bob := ts.login("bob@example.com")

	resp := ts.do(http.MethodPost, "/api/servers", alice, domain.InsertServer{Name: "alice-web"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	srv := decode[domain.Server](t, resp)

	resp = ts.do(http.MethodGet, "/api/servers", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[inventory.View](t, resp).Servers)

	resp = ts.do(http.MethodPut, "/api/servers/"+srv.ID, bob, domain.InsertServer{Name: "stolen"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(http.MethodDelete, "/api/servers/"+srv.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImportExport(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login("ops@example.com")

	seedFile := `servers:
  - name: web1
    provider: Hetzner
    services:
      - name: nginx
        port: 443
  - name: db1
    provider: OVH
`
	resp := ts.do(http.MethodPost, "/api/servers/import", token, seedFile)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[inventory.ImportResult](t, resp)
	assert.Equal(t, 2, res.Created)

	resp = ts.do(http.MethodPost, "/api/servers/import", token, seedFile)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[inventory.ImportResult](t, resp).Updated)

	resp = ts.do(http.MethodGet, "/api/servers/export", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: web1")
	assert.Contains(t, string(data), "port: \"443\"")

	resp = ts.do(http.MethodPost, "/api/servers/import", token, "servers: []\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) { d.MaxBodyBytes = 100 })
	token := ts.login("ops@example.com")

	resp := ts.do(http.MethodPost, "/api/servers", token, domain.InsertServer{
		Name:  "web1",
		Notes: strings.Repeat("x", 200),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestOpsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "memory", health["store"])

	resp = ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/infra", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	infra := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", infra["status"])

	resp = ts.do(http.MethodPost, "/reload", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `vpsinv_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestReloadTrigger(t *testing.T) {
	trigger := make(chan struct{}, 1)
	ts := newTestServer(t, func(d *deps.Deps) { d.ReloadTrigger = trigger })

	resp := ts.do(http.MethodPost, "/reload", "", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = ts.do(http.MethodPost, "/reload", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestOpsEndpointsGuardedByCIDR(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) { d.AllowedCIDRS = []string{"10.0.0.0/8"} })

	resp := ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzStoreDown(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) { d.Store = downStore{d.Store} })

	resp := ts.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/infra", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "critical", decode[map[string]any](t, resp)["status"])
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) { d.AuthRatePerMin = 2 })

	creds := map[string]string{"email": "x@example.com", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		resp := ts.do(http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp := ts.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, func(d *deps.Deps) { d.CORSOrigins = []string{"https://app.example.com"} })

	resp := ts.do(http.MethodOptions, "/api/servers", "", nil,
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", "PUT")
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = ts.do(http.MethodGet, "/healthz", "", nil, "Origin", "https://evil.example.com")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

type downStore struct{ docstore.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }
