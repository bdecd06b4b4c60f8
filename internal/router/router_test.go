package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-trash/internal/auth"
	"clinic-trash/internal/config"
	"clinic-trash/internal/handler"
	"clinic-trash/internal/metrics"
	"clinic-trash/internal/middleware"
	"clinic-trash/internal/model"
	"clinic-trash/internal/repository"
	"clinic-trash/internal/router"
	"clinic-trash/internal/service"
	"clinic-trash/internal/store"
)

var (
	admin  = model.Principal{ID: "u-admin", DisplayName: "Dr. Grey", Role: "admin"}
	editor = model.Principal{ID: "u-editor", DisplayName: "Nurse Joy", Role: "editor"}
	viewer = model.Principal{ID: "u-viewer", DisplayName: "Front Desk", Role: "viewer"}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
	Meta    *model.Meta     `json:"meta"`
}

type testServer struct {
	*httptest.Server
	registry *store.Registry
	tokens   *auth.TokenValidator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := store.NewClinicRegistry(store.NewMemoryBackend())
	audit := repository.NewMemoryAuditLog()
	directory := auth.NewDirectory(repository.NewMemoryUserStore(admin, editor, viewer), nil, logger)
	promRegistry := prometheus.NewRegistry()

	trashService := service.NewTrashService(registry, repository.NewMemoryTrashStore(), audit, service.TrashOptions{
		Directory: directory,
		Metrics:   metrics.NewTrash(promRegistry),
		Logger:    logger,
	})

	cfg := &config.Config{
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"*"},
		CORSMaxAge:     10 * time.Minute,
	}
	tokens := auth.NewTokenValidator("test-secret")
	h := router.New(cfg, logger, promRegistry, nil, middleware.NewAuthMiddleware(tokens, directory), router.Handlers{
		Auth:   handler.NewAuthHandler(directory),
		Trash:  handler.NewTrashHandler(trashService),
		Record: handler.NewRecordHandler(trashService),
		Audit:  handler.NewAuditHandler(audit),
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return &testServer{Server: server, registry: registry, tokens: tokens}
}

func (s *testServer) seedPatient(t *testing.T, id string, name string) {
	t.Helper()
	collection, err := s.registry.Resolve(model.EntityPatient)
	require.NoError(t, err)
	_, err = collection.Insert(context.Background(), model.Document{"id": id, "full_name": name, "phone": "555-0100"})
	require.NoError(t, err)
}

func (s *testServer) do(t *testing.T, as *model.Principal, method string, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if as != nil {
		token, err := s.tokens.IssueToken(*as, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func TestSoftDeleteRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seedPatient(t, "p-1", "Ada Lovelace")

	status, env := srv.do(t, &editor, http.MethodDelete, "/api/v1/records/Patient/p-1", map[string]any{
		"trash_message": "duplicate intake",
		"audit_message": "merged into p-7",
		"scope":         "clinic-north",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	var entry model.TrashEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.Equal(t, "Patient", entry.OriginalType)
	assert.Equal(t, "p-1", entry.OriginalID)
	assert.True(t, entry.AutoDelete)

	status, env = srv.do(t, &viewer, http.MethodGet, "/api/v1/records/Patient/p-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = srv.do(t, &viewer, http.MethodGet, "/api/v1/trash?scope=clinic-north", nil)
	require.Equal(t, http.StatusOK, status)
	var page model.TrashPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, entry.ID, page.Items[0].ID)
	assert.Equal(t, "Nurse Joy", page.Items[0].DeletedByDisplayName)
	require.NotNil(t, page.Items[0].ExpiresAt)
	assert.Equal(t, "Ada Lovelace", page.Items[0].Snapshot["full_name"])

	status, env = srv.do(t, &editor, http.MethodPost, "/api/v1/trash/"+entry.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var restored struct {
		EntityType string         `json:"entity_type"`
		EntityID   string         `json:"entity_id"`
		Fields     map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &restored))
	assert.Equal(t, "Patient", restored.EntityType)
	assert.Equal(t, "p-1", restored.EntityID)
	assert.Equal(t, "555-0100", restored.Fields["phone"])

	status, _ = srv.do(t, &viewer, http.MethodGet, "/api/v1/records/Patient/p-1", nil)
	assert.Equal(t, http.StatusOK, status)

	// Restoring twice reports the entry as gone.
	status, env = srv.do(t, &editor, http.MethodPost, "/api/v1/trash/"+entry.ID+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "This item is no longer available", env.Error.Message)

	status, env = srv.do(t, &admin, http.MethodGet, "/api/v1/audit?entity_type=Patient&entity_id=p-1", nil)
	require.Equal(t, http.StatusOK, status)
	var audit model.AuditListData
	require.NoError(t, json.Unmarshal(env.Data, &audit))
	require.Len(t, audit.Items, 2)
	actions := []model.AuditAction{audit.Items[0].Action, audit.Items[1].Action}
	assert.ElementsMatch(t, []model.AuditAction{model.ActionDeleted, model.ActionRestored}, actions)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
}

func TestAuthorization(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seedPatient(t, "p-2", "Grace Hopper")

	status, _ := srv.do(t, nil, http.MethodGet, "/api/v1/trash", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := srv.do(t, &viewer, http.MethodDelete, "/api/v1/records/Patient/p-2", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = srv.do(t, &editor, http.MethodDelete, "/api/v1/trash", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = srv.do(t, &editor, http.MethodGet, "/api/v1/audit", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = srv.do(t, &model.Principal{ID: "u-gone", Role: "admin"}, http.MethodGet, "/api/v1/trash", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = srv.do(t, &viewer, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	var me model.Principal
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, viewer, me)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	tests := []struct {
		name   string
		as     model.Principal
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "missing live record", as: editor, method: http.MethodDelete, path: "/api/v1/records/Patient/nobody", status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "unknown entity type", as: editor, method: http.MethodDelete, path: "/api/v1/records/Invoice/i-1", status: http.StatusBadRequest, code: "UNKNOWN_ENTITY_TYPE"},
		{name: "restore unknown entry", as: editor, method: http.MethodPost, path: "/api/v1/trash/nonexistent/restore", status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "hard delete unknown entry", as: admin, method: http.MethodDelete, path: "/api/v1/trash/nonexistent", status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "retention without flag", as: admin, method: http.MethodPut, path: "/api/v1/trash/t-1/retention", body: map[string]any{}, status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "unknown body field", as: editor, method: http.MethodDelete, path: "/api/v1/records/Patient/p-9", body: map[string]any{"reason": "x"}, status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "malformed cursor", as: viewer, method: http.MethodGet, path: "/api/v1/trash?cursor=%21%21", status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "bad audit bound", as: admin, method: http.MethodGet, path: "/api/v1/audit?from=yesterday", status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "bad audit action", as: admin, method: http.MethodGet, path: "/api/v1/audit?action=archived", status: http.StatusBadRequest, code: "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := srv.do(t, &tt.as, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestHardDeleteAndEmpty(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	for _, id := range []string{"p-10", "p-11", "p-12"} {
		srv.seedPatient(t, id, "Patient "+id)
		status, env := srv.do(t, &editor, http.MethodDelete, "/api/v1/records/Patient/"+id, map[string]any{"retain": id == "p-12"})
		require.Equal(t, http.StatusOK, status, env.Error)
	}

	status, env := srv.do(t, &viewer, http.MethodGet, "/api/v1/trash?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	var page model.TrashPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)

	status, _ = srv.do(t, &admin, http.MethodDelete, "/api/v1/trash/"+page.Items[0].ID, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = srv.do(t, &editor, http.MethodPost, "/api/v1/trash/"+page.Items[0].ID+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = srv.do(t, &admin, http.MethodDelete, "/api/v1/trash", nil)
	require.Equal(t, http.StatusOK, status)
	var emptied struct {
		Deleted int `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &emptied))
	assert.Equal(t, 2, emptied.Deleted)

	status, env = srv.do(t, &viewer, http.MethodGet, "/api/v1/trash", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Empty(t, page.Items)
}

func TestSetRetention(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seedPatient(t, "p-20", "Mary Seacole")

	status, env := srv.do(t, &editor, http.MethodDelete, "/api/v1/records/Patient/p-20", nil)
	require.Equal(t, http.StatusOK, status)
	var entry model.TrashEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))

	status, env = srv.do(t, &admin, http.MethodPut, "/api/v1/trash/"+entry.ID+"/retention", map[string]any{"auto_delete": false})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.False(t, entry.AutoDelete)

	status, env = srv.do(t, &viewer, http.MethodGet, "/api/v1/trash", nil)
	require.Equal(t, http.StatusOK, status)
	var page model.TrashPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Items[0].ExpiresAt)
}

func TestRestoreBlockedByDifferentRecord(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seedPatient(t, "p-40", "Mary Anning")

	status, env := srv.do(t, &editor, http.MethodDelete, "/api/v1/records/Patient/p-40", nil)
	require.Equal(t, http.StatusOK, status)
	var entry model.TrashEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))

	srv.seedPatient(t, "p-40", "Rosalind Franklin")

	status, env = srv.do(t, &editor, http.MethodPost, "/api/v1/trash/"+entry.ID+"/restore", nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RECORD_EXISTS", env.Error.Code)

	status, env = srv.do(t, &viewer, http.MethodGet, "/api/v1/trash", nil)
	require.Equal(t, http.StatusOK, status)
	var page model.TrashPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, entry.ID, page.Items[0].ID)
}

func TestCORSPreflightUsesConfig(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/trash", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	srv.seedPatient(t, "p-30", "Florence Nightingale")

	status, _ := srv.do(t, &editor, http.MethodDelete, "/api/v1/records/Patient/p-30", nil)
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clinic_trash_soft_deletes_total{entity_type="Patient",result="success"} 1`)
}

func TestLogoutInvalidatesPrincipal(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, env := srv.do(t, &viewer, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.JSONEq(t, `{"logged_out":true}`, string(env.Data))
}
