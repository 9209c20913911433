package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/oddaja/internal/audit"
	"github.com/erazemk/oddaja/internal/auth"
	"github.com/erazemk/oddaja/internal/db"
	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/store"
	"github.com/erazemk/oddaja/internal/workflow"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	items  store.ItemStore
	token  string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T, items func(store.ItemStore) store.ItemStore) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	var st store.ItemStore = store.NewSQLite(database)
	if items != nil {
		st = items(st)
	}

	router := NewRouter(Deps{
		DB:        database,
		JWTSecret: testJWTSecret,
		Store:     st,
		Sessions:  NewSessions(st, nil, quietLogger()),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create admin user.
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateOperator(context.Background(), database, "admin", string(hash), model.RoleAdmin); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}

	env := &testEnv{server: server, db: database, items: st}
	env.token = env.login(t, "admin", "password")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(e.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}
	var lr loginResponse
	json.NewDecoder(resp.Body).Decode(&lr)
	if lr.Token == "" {
		t.Fatal("empty token from login")
	}
	return lr.Token
}

// client returns an HTTP client with its own cookie jar, i.e. its own
// session.
func client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call performs a request and decodes the JSON response into out when it is
// not nil.
func call(t *testing.T, c *http.Client, req *http.Request, out any) int {
	t.Helper()
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", req.Method, req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, e.token, body)
	if err != nil {
		t.Fatal(err)
	}
	return call(t, c, req, out)
}

func (e *testEnv) seed(t *testing.T, title string, status model.Status, created time.Time) model.Record {
	t.Helper()
	rec, err := e.items.Insert(context.Background(), model.Record{
		Kind: model.KindSingle,
		Listing: &model.ListingFields{
			Title:       title,
			Description: "Wool, size M",
			Price:       decimal.RequireFromString("45.5"),
			Photos:      []byte(`["https://cdn.example/1.jpg"]`),
		},
		Status:    status,
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func TestLoginEndpoint(t *testing.T) {
	env := newEnv(t, nil)

	tests := map[string]struct {
		body map[string]string
		want int
	}{
		"bad password":  {map[string]string{"username": "admin", "password": "wrong"}, http.StatusUnauthorized},
		"unknown user":  {map[string]string{"username": "nobody", "password": "password"}, http.StatusUnauthorized},
		"missing field": {map[string]string{"username": "admin"}, http.StatusBadRequest},
	}
	for name, tt := range tests {
		body, _ := json.Marshal(tt.body)
		resp, err := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s: expected %d, got %d", name, tt.want, resp.StatusCode)
		}
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newEnv(t, nil)
	c := client(t)

	if code := env.do(t, c, "GET", "/api/keymap", nil, nil); code != http.StatusOK {
		t.Fatalf("keymap before logout: %d", code)
	}
	if code := env.do(t, c, "POST", "/api/auth/logout", nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout: %d", code)
	}
	if code := env.do(t, c, "GET", "/api/keymap", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", code)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := newEnv(t, nil)

	for _, path := range []string{"/api/queue", "/api/keymap", "/api/users"} {
		resp, err := http.Get(env.server.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestRoleBasedAccess(t *testing.T) {
	env := newEnv(t, nil)
	c := client(t)

	hash, _ := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	u, err := store.CreateOperator(context.Background(), env.db, "maja", string(hash), model.RoleOperator)
	if err != nil {
		t.Fatal(err)
	}
	opToken, _, _ := auth.Issue(testJWTSecret, u, time.Now())

	req, _ := authRequest("GET", env.server.URL+"/api/users", opToken, nil)
	if code := call(t, c, req, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for operator listing users, got %d", code)
	}

	req, _ = authRequest("GET", env.server.URL+"/api/queue", opToken, nil)
	if code := call(t, c, req, nil); code != http.StatusOK {
		t.Errorf("expected 200 for operator reading queue, got %d", code)
	}
}

func TestUsersAPI(t *testing.T) {
	env := newEnv(t, nil)
	c := client(t)

	newUser := map[string]string{"username": "maja", "password": "long-enough", "role": model.RoleOperator}
	var created model.User
	if code := env.do(t, c, "POST", "/api/users", newUser, &created); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	if code := env.do(t, c, "POST", "/api/users", newUser, nil); code != http.StatusConflict {
		t.Errorf("duplicate create: expected 409, got %d", code)
	}
	short := map[string]string{"username": "kratek", "password": "short", "role": model.RoleOperator}
	if code := env.do(t, c, "POST", "/api/users", short, nil); code != http.StatusBadRequest {
		t.Errorf("short password: expected 400, got %d", code)
	}

	var users []model.User
	env.do(t, c, "GET", "/api/users", nil, &users)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	var admin model.User
	for _, u := range users {
		if u.Role == model.RoleAdmin {
			admin = u
		}
	}
	demote := map[string]string{"role": model.RoleOperator}
	if code := env.do(t, c, "PUT", "/api/users/"+strconv.FormatInt(admin.ID, 10), demote, nil); code != http.StatusConflict {
		t.Errorf("demoting last admin: expected 409, got %d", code)
	}
	if code := env.do(t, c, "DELETE", "/api/users/"+strconv.FormatInt(admin.ID, 10), nil, nil); code != http.StatusBadRequest {
		t.Errorf("deleting self: expected 400, got %d", code)
	}

	if code := env.do(t, c, "DELETE", "/api/users/"+strconv.FormatInt(created.ID, 10), nil, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	body, _ := json.Marshal(map[string]string{"username": "maja", "password": "long-enough"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("disabled account logged in: %d", resp.StatusCode)
	}
	if code := env.do(t, c, "DELETE", "/api/users/9999", nil, nil); code != http.StatusNotFound {
		t.Errorf("delete missing: expected 404, got %d", code)
	}
}

func TestWorkflowAPIFlow(t *testing.T) {
	env := newEnv(t, nil)
	c := client(t)
	t0 := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	rec := env.seed(t, "Wool sweater", model.StatusReady, t0)
	base := "/api/items/single/" + rec.ID

	var q queueResponse
	if code := env.do(t, c, "GET", "/api/queue", nil, &q); code != http.StatusOK {
		t.Fatalf("queue: %d", code)
	}
	if len(q.Items) != 1 || q.Items[0].ID != rec.ID || q.Selected != 0 {
		t.Fatalf("unexpected queue %+v", q)
	}

	var res actionResponse
	if code := env.do(t, c, "POST", base+"/steps/copy-title", nil, &res); code != http.StatusUnprocessableEntity {
		t.Errorf("copy before claim: expected 422, got %d", code)
	}

	if code := env.do(t, c, "POST", base+"/claim", nil, &res); code != http.StatusOK {
		t.Fatalf("claim: %d %+v", code, res.Notice)
	}
	session := res.Workflow.Session
	if res.Workflow.Step != model.StepCopyTitle || res.Workflow.ClaimedBy != session {
		t.Errorf("after claim: %+v", res.Workflow)
	}

	copies := map[string]string{
		"copy-title":       "Wool sweater",
		"copy-description": "Wool, size M",
		"copy-price":       "45.50",
	}
	for _, step := range []string{"copy-title", "copy-description", "copy-price"} {
		res = actionResponse{}
		if code := env.do(t, c, "POST", base+"/steps/"+step, nil, &res); code != http.StatusOK {
			t.Fatalf("%s: %d %+v", step, code, res.Notice)
		}
		if res.Notice.Copied != copies[step] {
			t.Errorf("%s copied %q", step, res.Notice.Copied)
		}
	}
	if code := env.do(t, c, "POST", base+"/steps/copy-media", nil, &res); code != http.StatusOK {
		t.Fatalf("copy-media: %d", code)
	}
	if res.Workflow.Step != model.StepRecordReference {
		t.Fatalf("expected record-reference step, got %s", res.Workflow.StepName)
	}

	if code := env.do(t, c, "PUT", base+"/reference", referenceRequest{"www.example.com/1"}, &res); code != http.StatusOK {
		t.Fatalf("reference: %d", code)
	}
	if res.Notice.Level != workflow.LevelWarning {
		t.Errorf("expected warning for non-URL reference, got %+v", res.Notice)
	}
	if code := env.do(t, c, "POST", base+"/publish", nil, &res); code != http.StatusUnprocessableEntity {
		t.Errorf("publish with bad reference: expected 422, got %d", code)
	}

	ref := referenceRequest{"https://marketplace.example/items/1"}
	if code := env.do(t, c, "PUT", base+"/reference", ref, &res); code != http.StatusOK {
		t.Fatalf("reference: %d", code)
	}
	if code := env.do(t, c, "POST", base+"/publish", nil, &res); code != http.StatusOK {
		t.Fatalf("publish: %d %+v", code, res.Notice)
	}

	env.do(t, c, "GET", "/api/queue", nil, &q)
	if len(q.Items) != 0 || q.Selected != -1 {
		t.Errorf("queue after publish: %+v", q)
	}

	var a auditResponse
	if code := env.do(t, c, "GET", base+"/audit", nil, &a); code != http.StatusOK {
		t.Fatalf("audit: %d", code)
	}
	if a.Status != model.StatusPublished || len(a.Tags) != 2 {
		t.Fatalf("unexpected audit %+v", a)
	}
	if a.Tags[0].Kind != audit.KindLock || a.ClaimedBy != session || a.DoneBy != session {
		t.Errorf("audit not attributed to %s: %+v", session, a)
	}
}

func TestClaimConflict(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.seed(t, "Jacket", model.StatusReady, time.Now().Add(-time.Hour))
	path := "/api/items/single/" + rec.ID + "/claim"

	first, second := client(t), client(t)
	env.do(t, first, "GET", "/api/queue", nil, nil)
	env.do(t, second, "GET", "/api/queue", nil, nil)

	if code := env.do(t, first, "POST", path, nil, nil); code != http.StatusOK {
		t.Fatalf("first claim: %d", code)
	}
	var res actionResponse
	if code := env.do(t, second, "POST", path, nil, &res); code != http.StatusConflict {
		t.Fatalf("second claim: expected 409, got %d", code)
	}
	if !res.Notice.Refresh {
		t.Errorf("expected refresh flag on lost claim, got %+v", res.Notice)
	}

	// The losing session sees the item but cannot act on it.
	base := "/api/items/single/" + rec.ID
	var v workflowView
	if code := env.do(t, second, "GET", base+"/workflow", nil, &v); code != http.StatusOK {
		t.Fatalf("workflow: %d", code)
	}
	if len(v.Enabled) != 0 || v.ClaimedBy == v.Session {
		t.Errorf("loser workflow: %+v", v)
	}
	if code := env.do(t, second, "POST", base+"/steps/copy-title", nil, nil); code != http.StatusConflict {
		t.Errorf("loser copy: expected 409, got %d", code)
	}
	if code := env.do(t, second, "PUT", base+"/reference", referenceRequest{"https://marketplace.example/x"}, nil); code != http.StatusConflict {
		t.Errorf("loser reference: expected 409, got %d", code)
	}
	if code := env.do(t, second, "POST", base+"/publish", nil, nil); code != http.StatusConflict {
		t.Errorf("loser publish: expected 409, got %d", code)
	}
	got, err := env.items.Get(context.Background(), rec.Kind, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusProcessing || got.DestinationReference != nil {
		t.Errorf("item changed by loser: status=%s reference=%v", got.Status, got.DestinationReference)
	}
}

func TestDraftPublishAfterQueueReload(t *testing.T) {
	env := newEnv(t, nil)
	c := client(t)
	rec := env.seed(t, "Coat", model.StatusReady, time.Now().Add(-time.Hour))
	base := "/api/items/single/" + rec.ID

	if code := env.do(t, c, "POST", base+"/claim", nil, nil); code != http.StatusOK {
		t.Fatalf("claim: %d", code)
	}
	for _, step := range []string{"copy-title", "copy-description", "copy-price", "copy-media"} {
		if code := env.do(t, c, "POST", base+"/steps/"+step, nil, nil); code != http.StatusOK {
			t.Fatalf("%s: %d", step, code)
		}
	}
	if code := env.do(t, c, "PUT", base+"/reference", referenceRequest{"https://marketplace.example/items/7"}, nil); code != http.StatusOK {
		t.Fatalf("reference: %d", code)
	}
	if code := env.do(t, c, "POST", base+"/draft", nil, nil); code != http.StatusOK {
		t.Fatalf("draft: %d", code)
	}

	var q queueResponse
	env.do(t, c, "GET", "/api/queue", nil, &q)
	if len(q.Items) != 0 {
		t.Fatalf("drafted item still queued: %+v", q.Items)
	}

	// Another session cannot pick up the draft.
	if code := env.do(t, client(t), "POST", base+"/publish", nil, nil); code != http.StatusNotFound {
		t.Errorf("other session publish: expected 404, got %d", code)
	}

	var res actionResponse
	if code := env.do(t, c, "POST", base+"/publish", nil, &res); code != http.StatusOK {
		t.Fatalf("publish after reload: %d %+v", code, res.Notice)
	}
	got, _ := env.items.Get(context.Background(), rec.Kind, rec.ID)
	if got.Status != model.StatusPublished {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSessionHeader(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.seed(t, "Scarf", model.StatusReady, time.Now().Add(-time.Hour))

	req, _ := authRequest("POST", env.server.URL+"/api/items/single/"+rec.ID+"/claim", env.token, nil)
	req.Header.Set(SessionHeader, "agent-7")
	if code := call(t, http.DefaultClient, req, nil); code != http.StatusOK {
		t.Fatalf("claim: %d", code)
	}

	var a auditResponse
	env.do(t, http.DefaultClient, "GET", "/api/items/single/"+rec.ID+"/audit", nil, &a)
	if a.ClaimedBy != "agent-7" {
		t.Errorf("expected claim by agent-7, got %q", a.ClaimedBy)
	}
}

func TestSessionCookieIssued(t *testing.T) {
	env := newEnv(t, nil)
	req, _ := authRequest("GET", env.server.URL+"/api/queue", env.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			found = c
		}
	}
	if found == nil || found.Value == "" || found.MaxAge != sessionMaxAge || !found.HttpOnly {
		t.Errorf("unexpected session cookie %+v", found)
	}
}

func TestItemRequestErrors(t *testing.T) {
	env := newEnv(t, nil)
	c := client(t)
	rec := env.seed(t, "Boots", model.StatusReady, time.Now().Add(-time.Hour))

	tests := map[string]struct {
		method, path string
		want         int
	}{
		"unknown kind":   {"POST", "/api/items/lot/" + rec.ID + "/claim", http.StatusBadRequest},
		"unknown step":   {"POST", "/api/items/single/" + rec.ID + "/steps/copy-size", http.StatusBadRequest},
		"missing item":   {"POST", "/api/items/single/nope/claim", http.StatusNotFound},
		"missing audit":  {"GET", "/api/items/bundle/nope/audit", http.StatusNotFound},
		"locked publish": {"POST", "/api/items/single/" + rec.ID + "/publish", http.StatusConflict},
	}
	for name, tt := range tests {
		if code := env.do(t, c, tt.method, tt.path, nil, nil); code != tt.want {
			t.Errorf("%s: expected %d, got %d", name, tt.want, code)
		}
	}
}

// downStore fails every read as an unreachable backend would.
type downStore struct {
	store.ItemStore
}

func (downStore) FetchQueueCandidates(context.Context, model.Kind, []model.Status) ([]model.Record, error) {
	return nil, model.ErrStoreUnavailable
}

func TestQueueStoreUnavailable(t *testing.T) {
	env := newEnv(t, func(s store.ItemStore) store.ItemStore { return downStore{s} })

	var q queueResponse
	if code := env.do(t, client(t), "GET", "/api/queue", nil, &q); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if !q.Notice.Retry {
		t.Errorf("expected retry flag, got %+v", q.Notice)
	}
}

func TestKeymap(t *testing.T) {
	env := newEnv(t, nil)

	var bindings []workflow.Binding
	env.do(t, client(t), "GET", "/api/keymap", nil, &bindings)
	if len(bindings) != len(workflow.DefaultBindings) {
		t.Fatalf("expected %d bindings, got %d", len(workflow.DefaultBindings), len(bindings))
	}
	if bindings[0].KeyName != "c" || bindings[0].Action != workflow.ActionClaim {
		t.Errorf("unexpected first binding %+v", bindings[0])
	}
}
