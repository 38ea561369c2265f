package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/staffreg/internal/registry"
	"github.com/starford/staffreg/internal/staffservice"
	"github.com/starford/staffreg/internal/testutil"
)

// recordingEvents is an Events stub that records notifications and serves a
// stream that blocks until the request context ends.
type recordingEvents struct {
	mu       sync.Mutex
	reloads  int
	clears   int
	lastData any
}

func (e *recordingEvents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
}

func (e *recordingEvents) PublishReload(data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reloads++
	e.lastData = data
}

func (e *recordingEvents) PublishCleared() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clears++
}

// testEnv builds a service over the shared test organisation and a router.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*staffservice.Service, http.Handler, *recordingEvents) {
	t.Helper()
	_, store := testutil.OrgSources(t)
	reg := registry.New(registry.WithLogger(testutil.QuietLogger()))
	svc := staffservice.NewService(store, reg, "", testutil.QuietLogger())
	if _, err := svc.Reload(context.Background(), false); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	events := &recordingEvents{}
	router := NewRouter(svc, authToken != "", authToken, events)
	return svc, router, events
}

func do(t *testing.T, router http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var resp EmployeeListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v (body %s)", err, w.Body.String())
	}
	if resp.Total != len(resp.Employees) {
		t.Errorf("total = %d, employees = %d", resp.Total, len(resp.Employees))
	}
	out := make([]string, 0, len(resp.Employees))
	for _, e := range resp.Employees {
		out = append(out, e.Name)
	}
	return out
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", got, want)
	}
}

func TestListEmployees(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/employees", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	assertNames(t, decodeList(t, w), "Alice", "Bob", "Carol", "Dan", "Erin", "Finn")

	w = do(t, router, http.MethodGet, "/employees?min_age=30&max_age=45", "")
	assertNames(t, decodeList(t, w), "Bob", "Carol", "Erin")
}

func TestListEmployees_BadAge(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/employees?min_age=old", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetEmployee(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/employees/Dan", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var e Employee
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e.Manager != "Bob" || e.Age != 29 || strings.Join(e.Workdays, " ") != "Mon Fri" {
		t.Errorf("employee = %+v", e)
	}
}

func TestGetEmployee_NotFound(t *testing.T) {
	_, router, _ := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/employees/Nobody", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetEmployee_EncodedName(t *testing.T) {
	svc, router, _ := testEnv(t, "")
	if _, err := svc.PutSource(context.Background(), "extra.tsv", []byte("Ann Lee\t40\tOps\tLead\t\tMon\n")); err != nil {
		t.Fatal(err)
	}
	w := do(t, router, http.MethodGet, "/employees/Ann%20Lee", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?prefix=Ca", "")
	assertNames(t, decodeList(t, w), "Carol")

	w = do(t, router, http.MethodGet, "/search", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing prefix = %d, want 400", w.Code)
	}
}

func TestDepartmentsEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/departments", "")
	var resp DepartmentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, d := range resp.Departments {
		got = append(got, d.Name)
	}
	assertNames(t, got, "Eng", "Exec", "Ops", "Sales")
}

func TestReportsEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/reports/Alice", "")
	assertNames(t, decodeList(t, w), "Bob", "Dan", "Carol", "Erin")

	w = do(t, router, http.MethodGet, "/reports/Alice?direct=true", "")
	assertNames(t, decodeList(t, w), "Bob", "Carol")

	w = do(t, router, http.MethodGet, "/reports/Alice?direct=maybe", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direct = %d, want 400", w.Code)
	}
}

func TestReportsEndpoint_QueryForm(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/reports?manager=&direct=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	assertNames(t, decodeList(t, w), "Alice", "Finn")

	w = do(t, router, http.MethodGet, "/reports?manager=", "")
	assertNames(t, decodeList(t, w), "Alice", "Bob", "Dan", "Carol", "Erin", "Finn")

	w = do(t, router, http.MethodGet, "/reports?manager=Carol", "")
	assertNames(t, decodeList(t, w), "Erin")

	w = do(t, router, http.MethodGet, "/reports", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing manager = %d, want 400", w.Code)
	}
}

func TestWorkdaysEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/workdays?day=Sat&day=Sun", "")
	assertNames(t, decodeList(t, w), "Erin", "Finn")

	w = do(t, router, http.MethodGet, "/workdays?days=Sat,%20Sun", "")
	assertNames(t, decodeList(t, w), "Erin", "Finn")

	w = do(t, router, http.MethodGet, "/workdays", "")
	assertNames(t, decodeList(t, w))
}

func TestStatsEndpoint(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/stats", "")
	var st staffservice.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Records != 6 || st.Departments != 4 {
		t.Errorf("stats = %+v", st)
	}
}

func TestReloadEndpoint(t *testing.T) {
	_, router, events := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/reload", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res ReloadResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Changed {
		t.Error("unchanged sources should not reload")
	}
	if events.reloads != 0 {
		t.Errorf("reload events = %d, want 0", events.reloads)
	}

	w = do(t, router, http.MethodPost, "/reload?force=true", "")
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Changed || res.Loaded != 6 {
		t.Errorf("forced reload = %+v", res)
	}
	if events.reloads != 1 {
		t.Errorf("reload events = %d, want 1", events.reloads)
	}
}

func TestClearEndpoint(t *testing.T) {
	_, router, events := testEnv(t, "")

	w := do(t, router, http.MethodDelete, "/employees", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if events.clears != 1 {
		t.Errorf("clear events = %d, want 1", events.clears)
	}

	w = do(t, router, http.MethodGet, "/employees/Alice", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("after clear = %d, want 404", w.Code)
	}

	// Cleared registries reload even when sources are unchanged.
	do(t, router, http.MethodPost, "/reload", "")
	w = do(t, router, http.MethodGet, "/employees/Alice", "")
	if w.Code != http.StatusOK {
		t.Errorf("after reload = %d, want 200", w.Code)
	}
}

func TestSourcesEndpoints(t *testing.T) {
	_, router, events := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/sources/team/ops.tsv", "Gus\t45\tOps\tLead\tFinn\tMon\nbroken line\n")
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d, body = %s", w.Code, w.Body.String())
	}
	var res ReloadResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Loaded != 7 || res.Failed != 1 {
		t.Errorf("put result = %+v", res)
	}
	if len(res.Problems) != 1 || res.Problems[0].Path != "team/ops.tsv" || res.Problems[0].Line != 2 {
		t.Errorf("problems = %+v", res.Problems)
	}
	if events.reloads != 1 {
		t.Errorf("reload events = %d, want 1", events.reloads)
	}

	w = do(t, router, http.MethodGet, "/sources", "")
	var srcs SourcesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &srcs)
	if len(srcs.Sources) != 2 {
		t.Errorf("sources = %+v", srcs.Sources)
	}

	w = do(t, router, http.MethodPut, "/sources/readme.md", "hello")
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-source put = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodDelete, "/sources/team/ops.tsv", "")
	if w.Code != http.StatusOK {
		t.Errorf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/sources/team/ops.tsv", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestPutSource_TooLarge(t *testing.T) {
	svc, router, events := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/sources/huge.tsv", strings.Repeat("x", maxSourceBytes+1))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	var body errResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != http.StatusRequestEntityTooLarge || !strings.Contains(body.Error, "exceeds") {
		t.Errorf("error body = %+v", body)
	}

	srcs, err := svc.Sources(context.Background())
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	for _, m := range srcs {
		if m.Path == "huge.tsv" {
			t.Error("oversized source must not be written")
		}
	}
	if events.reloads != 0 {
		t.Errorf("reload announced for rejected upload")
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/employees", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/employees", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/employees", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnv(t, "secret")

	w := do(t, router, http.MethodGet, "/events", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestRouter_NilEvents(t *testing.T) {
	svc, _, _ := testEnv(t, "")
	router := NewRouter(svc, false, "", nil)

	if w := do(t, router, http.MethodGet, "/events", ""); w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("events without broker = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/employees", ""); w.Code != http.StatusNoContent {
		t.Errorf("clear without broker = %d", w.Code)
	}
}
