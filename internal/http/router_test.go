package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"timetracker/internal/auth"
	"timetracker/internal/handlers"
	"timetracker/internal/logging"
	"timetracker/internal/repos"
	"timetracker/internal/services"
	"timetracker/internal/syncer"
)

func setupRouter(t *testing.T) (http.Handler, *auth.TokenService) {
	t.Helper()
	db, err := sqlx.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '#808080',
			UNIQUE(user_id, name)
		);`,
		`CREATE TABLE time_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			category_id INTEGER NOT NULL,
			task_name TEXT,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			scheduled_end_time DATETIME,
			duration_minutes INTEGER,
			created_at DATETIME NOT NULL
		);`,
		`CREATE UNIQUE INDEX idx_time_entries_open ON time_entries(user_id) WHERE end_time IS NULL;`,
		`INSERT INTO categories (user_id, name, color) VALUES ('session:tab1', 'Work', '#ff0000');`,
		`INSERT INTO categories (user_id, name, color) VALUES ('alice', 'Work', '#ff0000');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}

	log := logging.New("error")
	tokens := auth.NewTokenService("test-secret", time.Hour)
	b := syncer.NewBroadcaster(log)
	t.Cleanup(b.Shutdown)
	svc := services.NewEntryService(repos.NewEntryRepo(db), repos.NewCategoryRepo(db), b, log)
	eh := handlers.NewEntryHandler(svc, log)
	sh := handlers.NewSyncHandler(b, tokens, 100*time.Millisecond, log)
	return NewRouter(tokens, eh, sh, log), tokens
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", "tab1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUnauthorizedWithoutCredential(t *testing.T) {
	r, _ := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/time-entries", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	r, tokens := setupRouter(t)
	token, err := tokens.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/time-entries/start", strings.NewReader(`{"category_id":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d body=%s", rec.Code, rec.Body.String())
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/time-entries", nil)
	bad.Header.Set("Authorization", "Bearer not-a-token")
	badRec := httptest.NewRecorder()
	r.ServeHTTP(badRec, bad)
	if badRec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", badRec.Code)
	}
}

func TestEntryLifecycleFlow(t *testing.T) {
	r, _ := setupRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/time-entries/start", `{"category_id":1,"task_name":"writing"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d body=%s", rec.Code, rec.Body.String())
	}
	var started struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatal(err)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/time-entries/active", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) == "null" {
		t.Fatalf("active status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/api/v1/time-entries/start", `{"category_id":99}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid category status = %d, want 400", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/time-entries/"+itoa(started.ID)+"/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec = do(t, r, http.MethodPost, "/api/v1/time-entries/"+itoa(started.ID)+"/stop", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double stop status = %d, want 404", rec.Code)
	}

	rec = do(t, r, http.MethodGet, "/api/v1/time-entries/active", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("active after stop = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodPost, "/api/v1/time-entries",
		`{"category_id":1,"start_time":"2025-03-01T10:00:00Z","end_time":"2025-03-01T09:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative duration status = %d, want 400", rec.Code)
	}

	rec = do(t, r, http.MethodDelete, "/api/v1/time-entries/"+itoa(started.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = do(t, r, http.MethodDelete, "/api/v1/time-entries/"+itoa(started.ID), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d, want 404", rec.Code)
	}
}

func TestScheduleStopEndpoints(t *testing.T) {
	r, _ := setupRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/time-entries/start", `{"category_id":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d", rec.Code)
	}
	var started struct {
		ID int64 `json:"id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &started)

	rec = do(t, r, http.MethodPost, "/api/v1/time-entries/"+itoa(started.ID)+"/schedule-stop",
		`{"scheduled_end_time":"2020-01-01T00:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("past schedule status = %d, want 400", rec.Code)
	}

	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	rec = do(t, r, http.MethodPost, "/api/v1/time-entries/"+itoa(started.ID)+"/schedule-stop",
		`{"scheduled_end_time":"`+future+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, http.MethodDelete, "/api/v1/time-entries/"+itoa(started.ID)+"/schedule-stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear schedule status = %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/time-entries/9999/schedule-stop",
		`{"scheduled_end_time":"`+future+`"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("schedule on missing entry = %d, want 404", rec.Code)
	}
}

func TestSyncStreamAndStatus(t *testing.T) {
	r, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sync?sessionId=tab1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	if name := readFrameEvent(t, reader); name != "connected" {
		t.Fatalf("first frame = %q, want connected", name)
	}

	// status sees one connection for this user
	statusReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sync/status", nil)
	statusReq.Header.Set("X-Session-ID", "tab1")
	statusResp, err := http.DefaultClient.Do(statusReq)
	if err != nil {
		t.Fatal(err)
	}
	defer statusResp.Body.Close()
	var status struct {
		TotalClients int   `json:"totalClients"`
		UserClients  int   `json:"userClients"`
		EventCounter int64 `json:"eventCounter"`
	}
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.TotalClients != 1 || status.UserClients != 1 {
		t.Fatalf("status = %+v", status)
	}

	// a mutation for this user must arrive as a sync frame
	startReq, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/time-entries/start", strings.NewReader(`{"category_id":1}`))
	startReq.Header.Set("Content-Type", "application/json")
	startReq.Header.Set("X-Session-ID", "tab1")
	startResp, err := http.DefaultClient.Do(startReq)
	if err != nil {
		t.Fatal(err)
	}
	startResp.Body.Close()
	if startResp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", startResp.StatusCode)
	}

	if name := readFrameEvent(t, reader); name != "sync" {
		t.Fatalf("expected sync frame, got %q", name)
	}
}

// readFrameEvent reads one frame and returns its event name, skipping
// heartbeat comment lines.
func readFrameEvent(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	event := ""
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event
			}
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
