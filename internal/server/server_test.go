package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"fundtrail/internal/config"
	"fundtrail/internal/db"
	"fundtrail/internal/domain"
	"fundtrail/internal/engine"
	"fundtrail/internal/migrate"
)

const testSecret = "test-secret-for-tokens"

type testServer struct {
	URL       string
	Engine    engine.Engine
	Chief     domain.Actor
	Admin     domain.Actor
	Associate domain.Actor
	client    *http.Client
	close     func()
}

func (s *testServer) Client() *http.Client { return s.client }

func (s *testServer) token(t *testing.T, a domain.Actor) string {
	t.Helper()
	tok, err := MintToken(testSecret, a.ID, string(a.Role), time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return tok
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	chief, err := eng.CreateActor(ctx, engine.CreateActorOptions{
		Username: "chief", Name: "Chief Admin", Role: domain.RoleChiefAdmin, Password: "password-chief",
	})
	if err != nil {
		t.Fatalf("seed chief: %v", err)
	}
	admin, err := eng.CreateActor(ctx, engine.CreateActorOptions{
		Username: "admin", Name: "Committee Admin", Role: domain.RoleCommitteeAdmin, Password: "password-admin", ActorID: chief.ID,
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	assoc, err := eng.CreateActor(ctx, engine.CreateActorOptions{
		Username: "assoc", Name: "Staff Associate", Role: domain.RoleStaffAssociate, Password: "password-assoc", ActorID: chief.ID,
	})
	if err != nil {
		t.Fatalf("seed associate: %v", err)
	}

	handler, err := New(Config{Engine: eng, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
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
		URL:       "http://" + ln.Addr().String(),
		Engine:    eng,
		Chief:     chief,
		Admin:     admin,
		Associate: assoc,
		client:    &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func submitTestRequest(t *testing.T, srv *testServer, amount string) RequestResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"title":      "Drainage repair",
		"reason":     "Flooding during monsoon season",
		"amount":     amount,
		"site":       "Barangay San Isidro",
		"start_date": "2026-03-10",
		"end_date":   "2026-06-30",
	}, srv.token(t, srv.Associate))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit request: %d %s", res.StatusCode, string(data))
	}
	var fr RequestResponse
	if err := json.Unmarshal(data, &fr); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return fr
}

func finalizeApprove(t *testing.T, srv *testServer, requestID string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests/"+requestID+"/finalize", map[string]any{
		"approve": true,
	}, srv.token(t, srv.Chief))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finalize: %d %s", res.StatusCode, string(data))
	}
}

func TestLoginReturnsToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"username": "chief",
		"password": "password-chief",
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("empty token")
	}
	if login.ActorID != srv.Chief.ID {
		t.Errorf("actor_id = %s, want %s", login.ActorID, srv.Chief.ID)
	}

	listRes, listData := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests", nil, login.Token)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list with minted token: %d %s", listRes.StatusCode, string(listData))
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"username": "chief",
		"password": "wrong-password",
	}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestMissingTokenUnauthorized(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "unauthorized" {
		t.Errorf("code = %s, want unauthorized", env.Error.Code)
	}
}

func TestDuplicateVoteConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	fr := submitTestRequest(t, srv, "50000")
	token := srv.token(t, srv.Admin)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests/"+fr.ID+"/votes", map[string]any{
		"choice": "approve",
	}, token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("first vote: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests/"+fr.ID+"/votes", map[string]any{
		"choice": "reject",
	}, token)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "duplicate_vote" {
		t.Errorf("code = %s, want duplicate_vote", env.Error.Code)
	}

	tallyRes, tallyData := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests/"+fr.ID+"/tally", nil, token)
	if tallyRes.StatusCode != http.StatusOK {
		t.Fatalf("tally: %d %s", tallyRes.StatusCode, string(tallyData))
	}
	var tally TallyResponse
	if err := json.Unmarshal(tallyData, &tally); err != nil {
		t.Fatalf("unmarshal tally: %v", err)
	}
	if tally.Approve != 1 || tally.Reject != 0 {
		t.Errorf("tally = %d/%d, want 1/0", tally.Approve, tally.Reject)
	}
}

func TestAssociateCannotVote(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	fr := submitTestRequest(t, srv, "50000")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests/"+fr.ID+"/votes", map[string]any{
		"choice": "approve",
	}, srv.token(t, srv.Associate))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "forbidden" {
		t.Errorf("code = %s, want forbidden", env.Error.Code)
	}
}

func TestFinalizeTwiceConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	fr := submitTestRequest(t, srv, "50000")
	finalizeApprove(t, srv, fr.ID)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests/"+fr.ID+"/finalize", map[string]any{
		"approve": false,
	}, srv.token(t, srv.Chief))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "invalid_state" {
		t.Errorf("code = %s, want invalid_state", env.Error.Code)
	}
}

func TestBudgetExceededEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	fr := submitTestRequest(t, srv, "10000")
	finalizeApprove(t, srv, fr.ID)

	listRes, listData := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, srv.token(t, srv.Chief))
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list projects: %d %s", listRes.StatusCode, string(listData))
	}
	var projects []ProjectResponse
	if err := json.Unmarshal(listData, &projects); err != nil {
		t.Fatalf("unmarshal projects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}
	projectID := projects[0].ID

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/updates", map[string]any{
		"kind":   "expense",
		"title":  "Gravel delivery",
		"amount": "12000",
	}, srv.token(t, srv.Associate))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "budget_exceeded" {
		t.Errorf("code = %s, want budget_exceeded", env.Error.Code)
	}
	if env.Error.Details["remaining"] != "10000" {
		t.Errorf("details.remaining = %v, want 10000", env.Error.Details["remaining"])
	}
}

func TestCompletedProjectNotOverdue(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	// End date already behind the engine clock (2026-03-01).
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"title":      "Footbridge repair",
		"reason":     "Storm damage",
		"amount":     "20000",
		"site":       "Barangay San Isidro",
		"start_date": "2026-01-10",
		"end_date":   "2026-02-01",
	}, srv.token(t, srv.Associate))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit request: %d %s", res.StatusCode, string(data))
	}
	var fr RequestResponse
	if err := json.Unmarshal(data, &fr); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	finalizeApprove(t, srv, fr.ID)

	listRes, listData := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, srv.token(t, srv.Chief))
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list projects: %d %s", listRes.StatusCode, string(listData))
	}
	var projects []ProjectResponse
	if err := json.Unmarshal(listData, &projects); err != nil {
		t.Fatalf("unmarshal projects: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects, want 1", len(projects))
	}
	p := projects[0]
	if p.Overdue == nil || !*p.Overdue {
		t.Fatal("ongoing project past its end date not reported overdue")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/"+p.ID+"/status", map[string]any{
		"status": "Completed",
	}, srv.token(t, srv.Chief))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d %s", res.StatusCode, string(data))
	}

	getRes, getData := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, srv.token(t, srv.Chief))
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("get project: %d %s", getRes.StatusCode, string(getData))
	}
	var got struct {
		Project ProjectResponse `json:"project"`
	}
	if err := json.Unmarshal(getData, &got); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if got.Project.Overdue == nil || got.Project.Urgent == nil || got.Project.DaysRemaining == nil {
		t.Fatal("deadline flags missing from get-project")
	}
	if *got.Project.Overdue {
		t.Error("completed project still reported overdue")
	}
	if *got.Project.Urgent {
		t.Error("completed project reported urgent")
	}
}

func TestRequestNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests/no-such-id", nil, srv.token(t, srv.Chief))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "not_found" {
		t.Errorf("code = %s, want not_found", env.Error.Code)
	}
}

func TestLedgerActionFilterSet(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	fr := submitTestRequest(t, srv, "50000")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests/"+fr.ID+"/votes", map[string]any{
		"choice": "approve",
	}, srv.token(t, srv.Admin))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("vote: %d %s", res.StatusCode, string(data))
	}
	finalizeApprove(t, srv, fr.ID)

	token := srv.token(t, srv.Chief)
	for _, query := range []string{
		"?action=CreateRequest&action=VoteCast",
		"?action=CreateRequest,VoteCast",
	} {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/ledger"+query, nil, token)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("ledger %s: %d %s", query, res.StatusCode, string(data))
		}
		var entries []LedgerEntryResponse
		if err := json.Unmarshal(data, &entries); err != nil {
			t.Fatalf("unmarshal entries: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("ledger %s returned %d entries, want 2", query, len(entries))
		}
		kinds := map[string]bool{}
		for _, entry := range entries {
			kinds[entry.Action] = true
		}
		if !kinds["CreateRequest"] || !kinds["VoteCast"] {
			t.Errorf("ledger %s kinds = %v, want CreateRequest and VoteCast", query, kinds)
		}
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/ledger?action=NoSuchKind", nil, token)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d %s", res.StatusCode, string(data))
	}
}

func TestProjectsCSVExport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	fr := submitTestRequest(t, srv, "50000")
	finalizeApprove(t, srv, fr.ID)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/projects/export.csv", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+srv.token(t, srv.Chief))
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %s", ct)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d csv lines, want header + 1", len(lines))
	}
	if !strings.HasPrefix(lines[0], "project_id,title,site,status") {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.Contains(lines[1], "Drainage repair") {
		t.Errorf("row = %s", lines[1])
	}
}

func TestHealthOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}
