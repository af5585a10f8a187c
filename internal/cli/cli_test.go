package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"

	"taskflow/domain"
	"taskflow/session"
	"taskflow/storage"
)

const testSecret = "cli-test-secret"

type upstream struct {
	mu    sync.Mutex
	tasks []domain.Task
	moves []string
}

func newUpstream(t *testing.T) (*upstream, string) {
	t.Helper()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	u := &upstream{tasks: []domain.Task{
		{ID: 1, Title: "Write docs", Status: domain.StatusTodo, AssigneeID: domain.Int64(5), CreatedByID: 5, CreatedAt: created},
		{ID: 2, Title: "Review PR", Status: domain.StatusDoing, AssigneeID: domain.Int64(6), CreatedByID: 6, CreatedAt: created},
	}}
	me := domain.User{ID: 5, Email: "mo@example.com", Role: domain.RoleMember, CreatedAt: created}

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		data, _ := sonic.Marshal(v)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(data)
	}
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": me.Email,
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		writeJSON(w, http.StatusOK, map[string]string{"token": tok, "tokenType": "Bearer"})
	})
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, me)
	})
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		writeJSON(w, http.StatusOK, u.tasks)
	})
	mux.HandleFunc("PUT /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var patch struct {
			Status domain.Status `json:"status"`
		}
		_ = sonic.Unmarshal(raw, &patch)
		u.mu.Lock()
		defer u.mu.Unlock()
		u.moves = append(u.moves, r.PathValue("id")+":"+string(patch.Status))
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		for i := range u.tasks {
			if u.tasks[i].ID == id {
				u.tasks[i].Status = patch.Status
				writeJSON(w, http.StatusOK, u.tasks[i])
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Task not found"})
	})
	mux.HandleFunc("GET /api/audit/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.AuditLogEntry{
			{ID: 1, UserID: 5, Action: domain.ActionCreate, Entity: "Task", EntityID: 1, NewData: `{"id":1,"title":"Write docs","status":"TODO"}`, Timestamp: created},
			{ID: 2, UserID: 5, Action: domain.ActionUpdate, Entity: "Task", EntityID: 1, OldData: `{"title":"Write docs","status":"TODO"}`, NewData: `{"title":"Write docs","status":"DOING"}`, Timestamp: created.Add(time.Hour)},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return u, srv.URL
}

func setupEnv(t *testing.T) (*upstream, *miniredis.Miniredis) {
	t.Helper()
	u, url := newUpstream(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	t.Setenv("TASKS_API_URL", url)
	t.Setenv("REDIS_CONNECTION_STRING", mr.Addr())
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("DISPLAY_TIMEZONE", "UTC")
	t.Setenv(sessionEnv, "")
	return u, mr
}

func seedSession(t *testing.T, mr *miniredis.Miniredis) string {
	t.Helper()
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	s := session.Session{
		ID:        "s-cli",
		Token:     "tok",
		User:      domain.User{ID: 5, Email: "mo@example.com", Role: domain.RoleMember},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := storage.NewRedisSessionStore(rc, 0).Save(context.Background(), s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s.ID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginStoresSession(t *testing.T) {
	_, mr := setupEnv(t)

	out, err := run(t, "login", "--email", "mo@example.com", "--password", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Signed in as mo@example.com (MEMBER)") {
		t.Fatalf("unexpected output: %q", out)
	}
	idx := strings.Index(out, sessionEnv+"=")
	if idx < 0 {
		t.Fatalf("expected export line, got %q", out)
	}
	id := strings.TrimSpace(out[idx+len(sessionEnv)+1:])
	if !mr.Exists("session:" + id) {
		t.Fatalf("expected session %q in redis, keys: %v", id, mr.Keys())
	}
}

func TestBoardCommandRendersColumns(t *testing.T) {
	_, mr := setupEnv(t)
	id := seedSession(t, mr)

	out, err := run(t, "board", "--session", id)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	for _, want := range []string{"To do (1)", "In progress (1)", "Done (0)", "#1 Write docs", "#2 Review PR"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = run(t, "board", "--session", id, "--search", "review")
	if err != nil {
		t.Fatalf("board search: %v", err)
	}
	if !strings.Contains(out, "Showing 1 of 2 tasks") || strings.Contains(out, "Write docs") {
		t.Fatalf("unexpected filtered output:\n%s", out)
	}

	if _, err := run(t, "board", "--session", id, "--status", "blocked"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestBoardCommandRequiresSession(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "board"); err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Fatalf("expected not signed in error, got %v", err)
	}
	if _, err := run(t, "board", "--session", "missing"); err == nil {
		t.Fatalf("expected error for unknown session")
	}
}

func TestMoveCommandRunsDragProtocol(t *testing.T) {
	u, mr := setupEnv(t)
	id := seedSession(t, mr)

	out, err := run(t, "move", "--session", id, "--task", "1", "--to", "doing")
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !strings.Contains(out, `Moved #1 "Write docs" to In progress.`) {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(u.moves) != 1 || u.moves[0] != "1:DOING" {
		t.Fatalf("unexpected upstream moves: %v", u.moves)
	}

	if _, err := run(t, "move", "--session", id, "--task", "2", "--to", "DONE"); err == nil {
		t.Fatalf("expected foreign task to be rejected")
	}
	if len(u.moves) != 1 {
		t.Fatalf("expected no upstream call for rejected move, got %v", u.moves)
	}
}

func TestAuditCommand(t *testing.T) {
	_, mr := setupEnv(t)
	id := seedSession(t, mr)

	out, err := run(t, "audit", "--session", id)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	for _, want := range []string{"Audit log (mine): 2 entries", "updated Task #1", "- Status: TODO", "+ Status: DOING"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	out, err = run(t, "audit", "--session", id, "--limit", "1")
	if err != nil {
		t.Fatalf("audit recent: %v", err)
	}
	if !strings.Contains(out, "updated Task #1") || strings.Contains(out, "created Task #1") {
		t.Fatalf("expected only the newest entry:\n%s", out)
	}

	if _, err := run(t, "audit", "--session", id, "--action", "MOVE"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
