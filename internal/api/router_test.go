package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dirconsole/internal/core"
	"dirconsole/internal/directory"
	"dirconsole/internal/store"
)

// fakeDirectory serves canned users and records mutations.
type fakeDirectory struct {
	users    map[string]*directory.User
	disabled []string
	enabled  []string
}

func newFakeDirectory(users ...*directory.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[string]*directory.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) SearchUsers(ctx context.Context, query string) ([]*directory.User, error) {
	var out []*directory.User
	for _, u := range d.users {
		if query == "" || strings.Contains(u.ID, query) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetUser(ctx context.Context, userID string) (*directory.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) CreateUser(ctx context.Context, user *directory.User, password string) error {
	d.users[user.ID] = user
	return nil
}

func (d *fakeDirectory) ModifyUser(ctx context.Context, userID string, attrs map[string]string) error {
	if _, ok := d.users[userID]; !ok {
		return directory.ErrUserNotFound
	}
	return nil
}

func (d *fakeDirectory) DeleteUser(ctx context.Context, userID string) error {
	if _, ok := d.users[userID]; !ok {
		return directory.ErrUserNotFound
	}
	delete(d.users, userID)
	return nil
}

func (d *fakeDirectory) DisableAccount(ctx context.Context, userID string) error {
	u, ok := d.users[userID]
	if !ok {
		return directory.ErrUserNotFound
	}
	u.Enabled = false
	d.disabled = append(d.disabled, userID)
	return nil
}

func (d *fakeDirectory) EnableAccount(ctx context.Context, userID string) error {
	u, ok := d.users[userID]
	if !ok {
		return directory.ErrUserNotFound
	}
	u.Enabled = true
	d.enabled = append(d.enabled, userID)
	return nil
}

func (d *fakeDirectory) UnlockAccount(ctx context.Context, userID string) error {
	if _, ok := d.users[userID]; !ok {
		return directory.ErrUserNotFound
	}
	return nil
}

func (d *fakeDirectory) MoveUser(ctx context.Context, userID, targetOU string) error {
	u, ok := d.users[userID]
	if !ok {
		return directory.ErrUserNotFound
	}
	u.OrgUnit = targetOU
	return nil
}

func (d *fakeDirectory) ListGroups(ctx context.Context) ([]*directory.Group, error) {
	return nil, nil
}

func (d *fakeDirectory) AddGroupMember(ctx context.Context, group, userID string) error {
	return nil
}

func (d *fakeDirectory) RemoveGroupMember(ctx context.Context, group, userID string) error {
	return nil
}

func (d *fakeDirectory) ListOrgUnits(ctx context.Context) ([]*directory.OrgUnit, error) {
	return nil, nil
}

func newTestServer(t *testing.T, authToken string, dir directory.Client) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	vacations := core.NewVacationService(st, logger)
	tasks := core.NewTaskService(st, logger)
	server, err := NewServer("127.0.0.1:0", authToken, st, vacations, tasks, dir, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server, st
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Body.String(), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

func TestAuthMiddleware(t *testing.T) {
	server, _ := newTestServer(t, "secret", newFakeDirectory())

	rec, _ := doJSON(t, server.Handler(), http.MethodGet, "/v1/schedule", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec, _ = doJSON(t, server.Handler(), http.MethodGet, "/v1/schedule", "wrong", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	rec, _ = doJSON(t, server.Handler(), http.MethodGet, "/v1/schedule", "secret", "")
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}
}

func TestScheduleAndCancelVacation(t *testing.T) {
	server, _ := newTestServer(t, "", newFakeDirectory())
	handler := server.Handler()

	rec, payload := doJSON(t, handler, http.MethodPost, "/v1/vacations", "",
		`{"user_id":"jdoe","start_date":"2025-06-01T00:00:00Z","end_date":"2025-06-10T00:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("schedule: status = %d, body %s", rec.Code, rec.Body.String())
	}
	vacationID, _ := payload["vacation_id"].(string)
	if vacationID == "" {
		t.Fatalf("missing vacation_id in %v", payload)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/schedule", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, req)
	var tasks []map[string]any
	if err := json.Unmarshal(listRec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 scheduled tasks, got %d", len(tasks))
	}
	if tasks[0]["type"] != "VACATION_START" || tasks[1]["type"] != "VACATION_END" {
		t.Errorf("task types = %v, %v", tasks[0]["type"], tasks[1]["type"])
	}

	rec, payload = doJSON(t, handler, http.MethodDelete, "/v1/vacations/"+vacationID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status = %d", rec.Code)
	}
	if payload["tasks_removed"] != float64(2) {
		t.Errorf("tasks_removed = %v, want 2", payload["tasks_removed"])
	}

	listRec = httptest.NewRecorder()
	handler.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/v1/schedule", nil))
	tasks = nil
	if err := json.Unmarshal(listRec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("%d tasks survived cancellation", len(tasks))
	}
}

func TestScheduleVacationValidation(t *testing.T) {
	server, _ := newTestServer(t, "", newFakeDirectory())
	handler := server.Handler()

	cases := []struct {
		name string
		body string
	}{
		{"missing user", `{"start_date":"2025-06-01","end_date":"2025-06-10"}`},
		{"end before start", `{"user_id":"jdoe","start_date":"2025-06-10","end_date":"2025-06-01"}`},
		{"end equals start", `{"user_id":"jdoe","start_date":"2025-06-01","end_date":"2025-06-01"}`},
		{"bad date", `{"user_id":"jdoe","start_date":"June 1st","end_date":"2025-06-10"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := doJSON(t, handler, http.MethodPost, "/v1/vacations", "", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRemoveUnknownScheduledTask(t *testing.T) {
	server, _ := newTestServer(t, "", newFakeDirectory())

	rec, payload := doJSON(t, server.Handler(), http.MethodDelete, "/v1/schedule/nope", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload["removed"] != false {
		t.Errorf("removed = %v, want false", payload["removed"])
	}
}

func TestDisableUserAuditsOutcome(t *testing.T) {
	dir := newFakeDirectory(&directory.User{ID: "jdoe", Enabled: true})
	server, st := newTestServer(t, "", dir)
	handler := server.Handler()

	rec, _ := doJSON(t, handler, http.MethodPost, "/v1/users/jdoe/disable", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: status = %d", rec.Code)
	}
	if len(dir.disabled) != 1 || dir.disabled[0] != "jdoe" {
		t.Errorf("disabled = %v, want [jdoe]", dir.disabled)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/v1/users/ghost/disable", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("disable missing user: status = %d, want 404", rec.Code)
	}

	entries, err := st.ListAuditEntries(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	// Newest first: the failed attempt, then the successful one.
	if entries[0].Success || entries[0].Action != core.AuditUserDisable {
		t.Errorf("failed attempt not audited: %+v", entries[0])
	}
	if !entries[1].Success || *entries[1].Target != "jdoe" {
		t.Errorf("successful disable not audited: %+v", entries[1])
	}
	if entries[1].Actor != "admin" {
		t.Errorf("default actor = %q, want admin", entries[1].Actor)
	}
}

func TestActorHeaderIsRecorded(t *testing.T) {
	dir := newFakeDirectory(&directory.User{ID: "jdoe", Enabled: false})
	server, st := newTestServer(t, "", dir)

	req := httptest.NewRequest(http.MethodPost, "/v1/users/jdoe/enable", nil)
	req.Header.Set("X-Actor", "helpdesk")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable: status = %d", rec.Code)
	}

	entries, err := st.ListAuditEntries(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "helpdesk" {
		t.Errorf("audit actor not taken from header: %+v", entries)
	}
}
