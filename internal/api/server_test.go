package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/syncgate/internal/backend"
	"github.com/nerrad567/syncgate/internal/infrastructure/config"
	"github.com/nerrad567/syncgate/internal/infrastructure/database"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
	"github.com/nerrad567/syncgate/internal/registry"
	"github.com/nerrad567/syncgate/internal/session"
	_ "github.com/nerrad567/syncgate/migrations"
)

// testGateway wires a full server over an in-memory database.
type testGateway struct {
	router  http.Handler
	server  *Server
	backend backend.Service
	db      *sql.DB
}

func setupTestGateway(t *testing.T) *testGateway {
	t.Helper()

	memDB, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := memDB.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		memDB.Close()
	})
	db := memDB.DB

	log := logging.Default()
	svc := backend.NewTenantService(backend.NewTenantRepository(db), log)
	sessions, err := session.NewManager("", 0, false)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		Feed:     config.FeedConfig{MaxMessageSize: 65536, PingInterval: 30, PongTimeout: 60},
		Logger:   log,
		Backend:  svc,
		Registry: registry.New(db),
		Sessions: sessions,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return &testGateway{
		router:  srv.buildRouter(),
		server:  srv,
		backend: svc,
		db:      db,
	}
}

// register creates a tenant account directly against the backend.
func (g *testGateway) register(t *testing.T, name, password string, admin bool) *backend.Tenant {
	t.Helper()
	tenant, err := g.backend.Register(context.Background(), name, password, admin)
	if err != nil {
		t.Fatalf("registering %s: %v", name, err)
	}
	return tenant
}

// login performs POST /login and returns the session cookies.
func (g *testGateway) login(t *testing.T, name, password string) []*http.Cookie {
	t.Helper()
	rec := g.do(t, http.MethodPost, "/login",
		fmt.Sprintf(`{"username":%q,"password":%q}`, name, password), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

// do runs one request through the router.
func (g *testGateway) do(t *testing.T, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestLoginReturnsTenantWithoutCredentials(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)

	rec := g.do(t, http.MethodPost, "/login", `{"username":"alice","password":"pw"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["name"] != "alice" {
		t.Errorf("login name = %v, want alice", body["name"])
	}
	if body["isAdmin"] != false {
		t.Errorf("login isAdmin = %v, want false", body["isAdmin"])
	}
	if _, ok := body["_id"]; !ok {
		t.Error("login response missing _id")
	}
	if strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Error("login response leaks credential material")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("login did not set a session cookie")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username":"alice","password":"nope"}`},
		{"unknown tenant", `{"username":"mallory","password":"pw"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(t, http.MethodPost, "/login", tt.body, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("login status = %d, want 401", rec.Code)
			}
		})
	}

	rec := g.do(t, http.MethodPost, "/login", `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed login status = %d, want 400", rec.Code)
	}
}

func TestLoginProbe(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)

	// Unauthenticated probe is 200, not 401.
	rec := g.do(t, http.MethodGet, "/login", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("probe status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["logged_in"] != false {
		t.Errorf("probe logged_in = %v, want false", body["logged_in"])
	}

	cookies := g.login(t, "alice", "pw")
	rec = g.do(t, http.MethodGet, "/login", "", cookies)
	if body := decodeBody(t, rec); body["logged_in"] != true {
		t.Errorf("probe after login logged_in = %v, want true", body["logged_in"])
	}
}

func TestGuardsRejectAnonymous(t *testing.T) {
	g := setupTestGateway(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/metadata"},
		{http.MethodGet, "/changes/0"},
		{http.MethodPost, "/changes"},
		{http.MethodGet, "/objects/obj1"},
		{http.MethodGet, "/tags"},
		{http.MethodPost, "/run-query"},
	}
	for _, p := range paths {
		rec := g.do(t, p.method, p.path, "{}", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, rec.Code)
		}
		if body := decodeBody(t, rec); body["message"] != "not logged in" {
			t.Errorf("%s %s message = %v, want \"not logged in\"", p.method, p.path, body["message"])
		}
	}
}

func TestAdminGuard(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	g.register(t, "root", "pw", true)

	cookies := g.login(t, "alice", "pw")
	rec := g.do(t, http.MethodGet, "/tenants", "", cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-admin /tenants status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "requires admin" {
		t.Errorf("non-admin message = %v, want \"requires admin\"", body["message"])
	}

	adminCookies := g.login(t, "root", "pw")
	rec = g.do(t, http.MethodGet, "/tenants", "", adminCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin /tenants status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("/tenants count = %v, want 2", body["count"])
	}
}

func TestStaleSessionRejected(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	// A fresh gateway over the same tenant table: the cookie was minted by
	// a session manager with a different key, so it reads as no session.
	g2 := setupTestGateway(t)
	g2.register(t, "alice", "pw", false)
	rec := g2.do(t, http.MethodGet, "/metadata", "", cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("foreign cookie status = %d, want 401", rec.Code)
	}

	// Same session manager but an unactivated registry: the stale-session
	// path with its distinct error code.
	g.server.registry = registry.New(g.db)
	g.router = g.server.buildRouter()
	rec = g.do(t, http.MethodGet, "/metadata", "", cookies)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale session status = %d, want 401", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != ErrCodeSessionStale {
		t.Errorf("stale session code = %v, want %q", body["code"], ErrCodeSessionStale)
	}
}

func TestKindCRUDWithIDStrip(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	rec := g.do(t, http.MethodPost, "/tags", `{"name":"urgent","color":"red"}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("create tag status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	id, _ := created["_id"].(string)
	if id == "" {
		t.Fatal("created tag has no _id")
	}

	// Modify must ignore an _id in the body.
	rec = g.do(t, http.MethodPut, "/tags/"+id, `{"_id":"hijacked","color":"blue"}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("modify tag status = %d, body %s", rec.Code, rec.Body.String())
	}
	modified := decodeBody(t, rec)
	if modified["_id"] != id {
		t.Errorf("modify _id = %v, want %v", modified["_id"], id)
	}
	if modified["color"] != "blue" {
		t.Errorf("modify color = %v, want blue", modified["color"])
	}

	rec = g.do(t, http.MethodGet, "/tags", "", cookies)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding tag list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("tag list len = %d, want 1", len(list))
	}

	rec = g.do(t, http.MethodDelete, "/tags/"+id, "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete tag status = %d", rec.Code)
	}
	rec = g.do(t, http.MethodDelete, "/tags/"+id, "", cookies)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing tag status = %d, want 404", rec.Code)
	}
}

func TestObjectGroupsPutThenGet(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	rec := g.do(t, http.MethodPut, "/object-groups/123", `["g1","g2"]`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /object-groups status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = g.do(t, http.MethodGet, "/object-groups/123", "", cookies)
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
	results, _ := body["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("results = %v, want 2 entries", results)
	}

	// PUT is a union: repeating an id does not shrink or duplicate.
	rec = g.do(t, http.MethodPut, "/object-groups/123", `["g2","g3"]`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("second PUT status = %d", rec.Code)
	}
	rec = g.do(t, http.MethodGet, "/object-groups/123", "", cookies)
	if body := decodeBody(t, rec); body["count"] != float64(3) {
		t.Errorf("count after union = %v, want 3", body["count"])
	}

	// POST replaces the whole set.
	rec = g.do(t, http.MethodPost, "/object-groups/123", `["g9"]`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST replace status = %d", rec.Code)
	}
	rec = g.do(t, http.MethodGet, "/object-groups/123", "", cookies)
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("count after replace = %v, want 1", body["count"])
	}
}

func TestReverseMembershipAndSingleAssign(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	rec := g.do(t, http.MethodPost, "/object-tags/obj1/t1", "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("single tag assign status = %d", rec.Code)
	}
	rec = g.do(t, http.MethodPut, "/tagged/t1", `["obj2","obj3"]`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /tagged status = %d", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/tagged/t1", "", cookies)
	if body := decodeBody(t, rec); body["count"] != float64(3) {
		t.Errorf("tagged count = %v, want 3", body["count"])
	}

	rec = g.do(t, http.MethodGet, "/object-tags/obj2", "", cookies)
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("object-tags count = %v, want 1", body["count"])
	}
}

func TestRelatedObjectsAndRoles(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	rec := g.do(t, http.MethodPut, "/related-objects/obj1/owns", `["obj2","obj3"]`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /related-objects status = %d", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/related-objects/obj1/owns", "", cookies)
	if body := decodeBody(t, rec); body["count"] != float64(2) {
		t.Errorf("related count = %v, want 2", body["count"])
	}

	rec = g.do(t, http.MethodGet, "/object-roles/obj1", "", cookies)
	body := decodeBody(t, rec)
	results, _ := body["results"].([]any)
	if len(results) != 1 || results[0] != "owns" {
		t.Errorf("object-roles = %v, want [owns]", results)
	}

	rec = g.do(t, http.MethodPost, "/related-objects/obj1/owns", `["obj9"]`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /related-objects status = %d", rec.Code)
	}
	rec = g.do(t, http.MethodGet, "/related-objects/obj1/owns", "", cookies)
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("related count after replace = %v, want 1", body["count"])
	}

	rec = g.do(t, http.MethodGet, "/role-neighbors/obj9", "", cookies)
	var neighbors map[string]map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &neighbors); err != nil {
		t.Fatalf("decoding role neighbors: %v", err)
	}
	if got := neighbors["in"]["owns"]; len(got) != 1 || got[0] != "obj1" {
		t.Errorf("role-neighbors in = %v, want owns -> [obj1]", neighbors["in"])
	}
}

func TestChangesRoundTrip(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	apply := `{"changes":[
		{"op":"create","kind":"tag","entity_id":"tag-a","payload":{"name":"a"}},
		{"op":"create","kind":"object","entity_id":"obj1","payload":{"title":"one"}},
		{"op":"assign","kind":"tagging","entity_id":"obj1","payload":{"ids":["tag-a"]}}
	]}`
	rec := g.do(t, http.MethodPost, "/changes", apply, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = g.do(t, http.MethodGet, "/changes/0", "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	changes, _ := body["changes"].([]any)
	if len(changes) != 3 {
		t.Fatalf("fetched %d changes, want 3", len(changes))
	}
	cursor, _ := body["until"].(string)
	if cursor == "" {
		t.Fatal("fetch returned no cursor")
	}

	// Re-fetching from the cursor is empty and idempotent.
	rec = g.do(t, http.MethodGet, "/changes/"+cursor, "", cookies)
	body = decodeBody(t, rec)
	if changes, _ := body["changes"].([]any); len(changes) != 0 {
		t.Errorf("fetched %d changes after cursor, want 0", len(changes))
	}

	// The applied state is visible through the graph surface.
	rec = g.do(t, http.MethodGet, "/objects/obj1", "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("get object status = %d", rec.Code)
	}

	// Invalid change sets are a 400, not a partial apply.
	rec = g.do(t, http.MethodPost, "/changes", `{"changes":[{"op":"bogus","kind":"tag","entity_id":"x"}]}`, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid changeset status = %d, want 400", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/changes/not-a-cursor", "", cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor status = %d, want 400", rec.Code)
	}
}

func TestFailedApplyLeavesNoTrace(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	// A relation change without a role cannot apply; the valid create in the
	// same set must roll back with it.
	rec := g.do(t, http.MethodPost, "/changes", `{"changes":[
		{"op":"create","kind":"tag","entity_id":"tag-a","payload":{"name":"a"}},
		{"op":"assign","kind":"relation","entity_id":"obj1","payload":{"ids":["obj2"]}}
	]}`, cookies)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("broken apply status = %d, want 500", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/changes/0", "", cookies)
	body := decodeBody(t, rec)
	if changes, _ := body["changes"].([]any); len(changes) != 0 {
		t.Errorf("change log has %d entries after failed apply, want 0", len(changes))
	}
	rec = g.do(t, http.MethodGet, "/tags", "", cookies)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding tag list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("tag list has %d entries after failed apply, want 0", len(list))
	}
}

func TestStoredAndAdHocQueriesAgree(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	// Seed two objects, one tagged.
	rec := g.do(t, http.MethodPost, "/changes", `{"changes":[
		{"op":"create","kind":"object","entity_id":"obj1","payload":{"title":"alpha"}},
		{"op":"create","kind":"object","entity_id":"obj2","payload":{"title":"beta"}},
		{"op":"assign","kind":"tagging","entity_id":"obj1","payload":{"ids":["tag-q"]}}
	]}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rec.Code)
	}

	def := `{"tags":["tag-q"]}`
	rec = g.do(t, http.MethodPost, "/queries", `{"name":"tagged-q","def":{"tags":["tag-q"]}}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("create query status = %d, body %s", rec.Code, rec.Body.String())
	}
	queryID, _ := decodeBody(t, rec)["_id"].(string)

	stored := g.do(t, http.MethodPost, "/run-query/"+queryID, "", cookies)
	adhoc := g.do(t, http.MethodPost, "/run-query", def, cookies)
	if stored.Code != http.StatusOK || adhoc.Code != http.StatusOK {
		t.Fatalf("run-query statuses = %d, %d", stored.Code, adhoc.Code)
	}
	if stored.Body.String() != adhoc.Body.String() {
		t.Errorf("stored and ad hoc results differ:\n%s\n%s", stored.Body.String(), adhoc.Body.String())
	}
	if body := decodeBody(t, stored); body["count"] != float64(1) {
		t.Errorf("query count = %v, want 1", body["count"])
	}
}

func TestObjectStringAndBulkLoad(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	rec := g.do(t, http.MethodPost, "/tags", `{"name":"urgent"}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("create tag status = %d", rec.Code)
	}

	rec = g.do(t, http.MethodPost, "/object-string", `{"objectRef":"tag:urgent"}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("object-string status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["name"] != "urgent" {
		t.Errorf("object-string name = %v, want urgent", body["name"])
	}

	// Unknown refs are a 404, never auto-created.
	rec = g.do(t, http.MethodPost, "/object-string", `{"objectRef":"tag:missing"}`, cookies)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown ref status = %d, want 404", rec.Code)
	}

	rec = g.do(t, http.MethodPost, "/changes", `{"changes":[
		{"op":"create","kind":"object","entity_id":"obj1","payload":{"n":1}},
		{"op":"create","kind":"object","entity_id":"obj2","payload":{"n":2}}
	]}`, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed objects status = %d", rec.Code)
	}

	rec = g.do(t, http.MethodPost, "/bulk-load", `{"ids":["obj1","obj-missing","obj2"]}`, cookies)
	if body := decodeBody(t, rec); body["count"] != float64(2) {
		t.Errorf("bulk-load count = %v, want 2", body["count"])
	}
}

func TestBatchAssignFailureReportsProgress(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	cookies := g.login(t, "alice", "pw")

	rec := g.do(t, http.MethodPut, "/object-tags/obj1", `{"not":"an array"}`, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-array body status = %d, want 400", rec.Code)
	}

	// With the database gone every assignment in the batch fails; the
	// response still reports how many landed.
	g.db.Close()
	rec = g.do(t, http.MethodPut, "/object-tags/obj1", `["t1","t2"]`, cookies)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("batch failure status = %d, want 500", rec.Code)
	}
	var e Error
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decoding batch error: %v", err)
	}
	if e.Code != ErrCodeInternal {
		t.Errorf("batch error code = %q, want %q", e.Code, ErrCodeInternal)
	}
	if e.Succeeded != 0 {
		t.Errorf("batch succeeded = %d, want 0", e.Succeeded)
	}
}

func TestTenantIsolationAcrossSessions(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)
	g.register(t, "bob", "pw", false)

	aliceCookies := g.login(t, "alice", "pw")
	bobCookies := g.login(t, "bob", "pw")

	rec := g.do(t, http.MethodPost, "/tags", `{"name":"private"}`, aliceCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("create tag status = %d", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/tags", "", bobCookies)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding bob's tag list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("bob sees %d of alice's tags, want 0", len(list))
	}
}

func TestFallbackServesShell(t *testing.T) {
	g := setupTestGateway(t)

	rec := g.do(t, http.MethodGet, "/totally-unmapped-path", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("fallback status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SyncGate") {
		t.Error("fallback did not serve the application shell")
	}

	// Non-GET misses stay 404 so broken API calls surface.
	rec = g.do(t, http.MethodPost, "/totally-unmapped-path", "{}", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-GET fallback status = %d, want 404", rec.Code)
	}

	// A GET on a write-only path is a deep link, not an API call.
	rec = g.do(t, http.MethodGet, "/register", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET on write-only path status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SyncGate") {
		t.Error("GET on write-only path did not serve the application shell")
	}

	// Other method misses keep a structured 405.
	rec = g.do(t, http.MethodPut, "/login", "{}", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT /login status = %d, want 405", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != ErrCodeMethodNotAllowed {
		t.Errorf("method miss code = %v, want %q", body["code"], ErrCodeMethodNotAllowed)
	}
}

func TestHealthAndLogout(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "alice", "pw", false)

	rec := g.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	cookies := g.login(t, "alice", "pw")
	rec = g.do(t, http.MethodPost, "/logout", "", cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", rec.Code)
	}
	// Logging out twice is fine.
	rec = g.do(t, http.MethodPost, "/logout", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("second logout status = %d, want 200", rec.Code)
	}
}

func TestCORSEchoesOriginWithCredentials(t *testing.T) {
	g := setupTestGateway(t)

	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "http://client.example")
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://client.example" {
		t.Errorf("Allow-Origin = %q, want the caller's origin", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestRegisterAndDropTenant(t *testing.T) {
	g := setupTestGateway(t)
	g.register(t, "root", "pw", true)
	adminCookies := g.login(t, "root", "pw")

	rec := g.do(t, http.MethodPost, "/register", `{"name":"carol","password":"pw"}`, adminCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	carolID, _ := decodeBody(t, rec)["_id"].(string)

	rec = g.do(t, http.MethodPost, "/register", `{"name":"carol","password":"pw"}`, adminCookies)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = g.do(t, http.MethodDelete, "/tenants/"+carolID, "", adminCookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("drop tenant status = %d", rec.Code)
	}
	rec = g.do(t, http.MethodDelete, "/tenants/"+carolID, "", adminCookies)
	if rec.Code != http.StatusNotFound {
		t.Errorf("drop missing tenant status = %d, want 404", rec.Code)
	}
}
