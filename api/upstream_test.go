package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"taskflow/domain"
)

// fakeTasksAPI serves the subset of the tasks API the workspaces call.
type fakeTasksAPI struct {
	*httptest.Server

	mu      sync.Mutex
	users   map[string]domain.User
	tasks   []domain.Task
	audit   []domain.AuditLogEntry
	nextID  int64
	deletes int
	calls   map[string]int
}

func newFakeTasksAPI(t *testing.T) *fakeTasksAPI {
	t.Helper()
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := &fakeTasksAPI{
		users: map[string]domain.User{
			"tok-admin":  {ID: 1, Email: "admin@example.com", Role: domain.RoleAdmin, CreatedAt: created},
			"tok-member": {ID: 2, Email: "mia@example.com", Role: domain.RoleMember, CreatedAt: created},
		},
		nextID: 100,
		calls:  map[string]int{},
	}
	f.tasks = []domain.Task{
		{ID: 10, Title: "Write docs", Status: domain.StatusTodo, AssigneeID: domain.Int64(2), CreatedByID: 1, CreatedAt: created},
		{ID: 11, Title: "Fix login", Status: domain.StatusDoing, AssigneeID: domain.Int64(1), CreatedByID: 1, CreatedAt: created},
		{ID: 12, Title: "Ship it", Status: domain.StatusDone, CreatedByID: 1, CreatedAt: created},
	}
	f.audit = []domain.AuditLogEntry{
		{ID: 1, UserID: 1, Action: domain.ActionCreate, Entity: "Task", EntityID: 10, NewData: `{"id":10,"title":"Write docs","status":"TODO"}`, Timestamp: created},
		{ID: 2, UserID: 1, Action: domain.ActionUpdate, Entity: "Task", EntityID: 10, OldData: `{"id":10,"title":"Write docs","status":"TODO"}`, NewData: `{"id":10,"title":"Write docs","status":"DOING"}`, Timestamp: created.Add(time.Hour)},
		{ID: 3, UserID: 2, Action: domain.ActionDelete, Entity: "Task", EntityID: 9, OldData: `{"id":9,"title":"Old"}`, Timestamp: created.Add(2 * time.Hour)},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		f.writeJSON(w, http.StatusOK, f.tasks)
	}))
	mux.HandleFunc("POST /api/tasks", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		var nt domain.NewTask
		if !f.decode(w, r, &nt) {
			return
		}
		f.nextID++
		task := domain.Task{ID: f.nextID, Title: nt.Title, Status: domain.StatusTodo, AssigneeID: nt.AssigneeID, CreatedByID: u.ID, CreatedAt: time.Now().UTC()}
		if nt.Status != "" {
			task.Status = nt.Status
		}
		if nt.Description != "" {
			task.Description = domain.String(nt.Description)
		}
		f.tasks = append(f.tasks, task)
		f.writeJSON(w, http.StatusCreated, task)
	}))
	mux.HandleFunc("PUT /api/tasks/{id}", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		var patch map[string]any
		if !f.decode(w, r, &patch) {
			return
		}
		for i := range f.tasks {
			if f.tasks[i].ID != id {
				continue
			}
			if v, ok := patch["status"].(string); ok {
				f.tasks[i].Status = domain.Status(v)
			}
			if v, ok := patch["title"].(string); ok {
				f.tasks[i].Title = v
			}
			if v, ok := patch["assigneeId"]; ok {
				if v == nil {
					f.tasks[i].AssigneeID = nil
				} else if n, ok := v.(float64); ok {
					f.tasks[i].AssigneeID = domain.Int64(int64(n))
				}
			}
			f.writeJSON(w, http.StatusOK, f.tasks[i])
			return
		}
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "Task not found"})
	}))
	mux.HandleFunc("DELETE /api/tasks/{id}", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		kept := f.tasks[:0]
		for _, t := range f.tasks {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		f.tasks = kept
		f.deletes++
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /api/users", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		if u.Role != domain.RoleAdmin {
			f.writeJSON(w, http.StatusForbidden, map[string]string{"message": "Forbidden"})
			return
		}
		f.writeJSON(w, http.StatusOK, f.userList())
	}))
	mux.HandleFunc("GET /api/users/assignable", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		f.writeJSON(w, http.StatusOK, f.userList())
	}))
	mux.HandleFunc("PUT /api/users/{id}/role", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		var body struct {
			Role domain.Role `json:"role"`
		}
		if !f.decode(w, r, &body) {
			return
		}
		for tok, usr := range f.users {
			if usr.ID == id {
				usr.Role = body.Role
				f.users[tok] = usr
				f.writeJSON(w, http.StatusOK, usr)
				return
			}
		}
		f.writeJSON(w, http.StatusNotFound, map[string]string{"message": "User not found"})
	}))
	mux.HandleFunc("GET /api/audit", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		f.writeJSON(w, http.StatusOK, f.audit)
	}))
	mux.HandleFunc("GET /api/audit/me", f.auth(func(w http.ResponseWriter, r *http.Request, u domain.User) {
		var mine []domain.AuditLogEntry
		for _, e := range f.audit {
			if e.UserID == u.ID {
				mine = append(mine, e)
			}
		}
		f.writeJSON(w, http.StatusOK, mine)
	}))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeTasksAPI) auth(next func(http.ResponseWriter, *http.Request, domain.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls[r.Method+" "+r.URL.Path]++
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		u, ok := f.users[tok]
		if !ok {
			f.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next(w, r, u)
	}
}

func (f *fakeTasksAPI) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	raw, err := io.ReadAll(r.Body)
	if err == nil {
		err = sonic.Unmarshal(raw, v)
	}
	if err != nil {
		f.writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
		return false
	}
	return true
}

func (f *fakeTasksAPI) writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := sonic.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (f *fakeTasksAPI) userList() []domain.User {
	out := make([]domain.User, 0, len(f.users))
	for id := int64(1); id <= int64(len(f.users)); id++ {
		for _, u := range f.users {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out
}

func (f *fakeTasksAPI) task(id int64) (domain.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func (f *fakeTasksAPI) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}
