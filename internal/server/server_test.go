package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"projectdesk/internal/db"
	"projectdesk/internal/domain"
	"projectdesk/internal/engine"
	"projectdesk/internal/fixtures"
	"projectdesk/internal/logging"
	"projectdesk/internal/migrate"
	"projectdesk/internal/view"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	if _, err := e.SeedProjects(context.Background(), fixtures.MockProjects(), "builtin"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	handler, err := New(Config{Projects: e.Repo, Events: &e.Events, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, "tester", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope %s: %v", string(data), err)
	}
	return env
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing X-Request-Id")
	}
}

func TestGetProject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/2", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if p.ID == nil || *p.ID != 2 || p.Name != "Wisozk Group" || !p.IsActive || p.Budget != 91638 {
		t.Fatalf("unexpected project %+v", p)
	}
	if p.ContractTypeID == nil || *p.ContractTypeID != 4 {
		t.Fatalf("contract type lost: %v", p.ContractTypeID)
	}
}

func TestGetProjectNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/7", nil, bearer(t))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	env := decodeEnvelope(t, data)
	if env.Error.Code != "not_found" || env.Error.Message != "not found" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestGetProjectRejectsNonNumericID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/abc", nil, bearer(t))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeEnvelope(t, data); env.Error.Code != "bad_request" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	cases := []struct {
		name    string
		headers map[string]string
		code    string
	}{
		{"missing", nil, "unauthorized"},
		{"not bearer", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, "invalid_credentials"},
		{"bad signature", map[string]string{"Authorization": "Bearer " + mustSign(t, "other-secret")}, "invalid_credentials"},
	}
	for _, tc := range cases {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/1", nil, tc.headers)
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d %s", tc.name, res.StatusCode, string(data))
		}
		if env := decodeEnvelope(t, data); env.Error.Code != tc.code {
			t.Fatalf("%s: unexpected code %q", tc.name, env.Error.Code)
		}
	}
}

func mustSign(t *testing.T, secret string) string {
	t.Helper()
	token, err := SignToken(secret, "tester", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestSignTokenValidation(t *testing.T) {
	if _, err := SignToken("", "tester", time.Hour); err == nil {
		t.Fatalf("expected error without secret")
	}
	if _, err := SignToken(testSecret, " ", time.Hour); err == nil {
		t.Fatalf("expected error without subject")
	}
	expired, err := SignToken(testSecret, "tester", -time.Minute)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := authenticateJWT(expired, testSecret); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	p, err := authenticateJWT(mustSign(t, testSecret), testSecret)
	if err != nil || p.Subject != "tester" {
		t.Fatalf("authenticate: %+v %v", p, err)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := bearer(t)
	headers["X-Request-Id"] = "req-123"
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/1", nil, headers)
	if got := res.Header.Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestOpenAPISpec(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/v0/projects/{id}"]; !ok {
		t.Fatalf("project path missing from spec")
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d", res.StatusCode)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	err := srv.Engine.RecordTransition(ctx, view.Transition{
		Generation: 1,
		From:       view.Idle{},
		To:         view.Loading{ID: 3},
		At:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?project_id=3", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var list EventListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].To != "loading(3)" || list.Items[0].Payload["branch"] != "loading" {
		t.Fatalf("unexpected events %+v", list.Items)
	}
}

func TestFixtureStoreAsSource(t *testing.T) {
	store, err := fixtures.Seeded()
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	handler, err := New(Config{Projects: store, Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())

	url := "http://" + ln.Addr().String() + "/v0/projects/"
	res, _ := doJSON(t, http.DefaultClient, http.MethodGet, url+"6", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res, data := doJSON(t, http.DefaultClient, http.MethodGet, url+"60", nil, bearer(t))
	if res.StatusCode != http.StatusNotFound || decodeEnvelope(t, data).Error.Message != "not found" {
		t.Fatalf("expected not found envelope, got %d %s", res.StatusCode, string(data))
	}
	// events route is absent without a journal
	res, _ = doJSON(t, http.DefaultClient, http.MethodGet, "http://"+ln.Addr().String()+"/v0/events", nil, bearer(t))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for events, got %d", res.StatusCode)
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without project source")
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	bodies := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := http.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Fatalf("openapi document %d differs", i)
		}
	}

	var doc struct {
		Paths      map[string]map[string]json.RawMessage `json:"paths"`
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	var op struct {
		Responses map[string]struct {
			Content map[string]struct {
				Schema struct {
					Ref string `json:"$ref"`
				} `json:"schema"`
			} `json:"content"`
		} `json:"responses"`
	}
	if err := json.Unmarshal(doc.Paths["/v0/projects/{id}"]["get"], &op); err != nil {
		t.Fatalf("decode operation: %v", err)
	}
	ref := op.Responses["default"].Content["application/json"].Schema.Ref
	name := strings.TrimPrefix(ref, "#/components/schemas/")
	if ref == "" || name == ref {
		t.Fatalf("default response ref = %q", ref)
	}
	if _, ok := doc.Components.Schemas[name]; !ok {
		t.Fatalf("schema %q is not in components", name)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProjectReadLogsCaller(t *testing.T) {
	store, err := fixtures.Seeded()
	if err != nil {
		t.Fatalf("fixtures: %v", err)
	}
	var out lockedBuffer
	log, err := logging.New(&out, "json", "debug")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	handler, err := New(Config{Projects: store, Auth: AuthConfig{JWTSecret: testSecret}, Logger: log})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())

	res, _ := doJSON(t, http.DefaultClient, http.MethodGet, "http://"+ln.Addr().String()+"/v0/projects/3", nil, bearer(t))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var served map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil && entry["msg"] == "project served" {
			served = entry
		}
	}
	if served == nil {
		t.Fatalf("no project log line in %s", out.String())
	}
	if served["subject"] != "tester" || served["id"] != float64(3) {
		t.Fatalf("unexpected log entry %v", served)
	}
}
