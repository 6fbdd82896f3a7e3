package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/uk030621/MultiAdaptDB/internal/adapters/allowlist"
	"github.com/uk030621/MultiAdaptDB/internal/adapters/db/sqlite"
	"github.com/uk030621/MultiAdaptDB/internal/application"
	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

const testActor = "editor@example.com"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "builder_test.db")

	db, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	store := sqlite.NewDocumentStore(db)
	if err := allowlist.Seed(ctx, store, []string{testActor}); err != nil {
		t.Fatalf("seed allow-list: %v", err)
	}
	return NewRouter(application.NewBuilderService(store, allowlist.New(store)))
}

func doRequest(t *testing.T, router http.Handler, method, path, actor string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(blob)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set("X-Forwarded-Email", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestMutationsRejectMissingAndUnknownActor(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/databases/0/fields", "", map[string]any{"label": "Title"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing actor: expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/databases/0/fields", "stranger@example.com", map[string]any{"label": "Title"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown actor: expected 401, got %d", rec.Code)
	}

	// Reads stay open.
	rec = doRequest(t, router, http.MethodGet, "/api/databases/0/fields", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read without actor: expected 200, got %d", rec.Code)
	}
}

func TestFieldLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/databases/0/fields", testActor, map[string]any{"label": "Title"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create field: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.FieldDefinition
	decodeBody(t, rec, &created)
	if created.Name == "" || !created.ID.Valid() {
		t.Fatalf("created field incomplete: %+v", created)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/databases/0/fields", testActor, map[string]any{"id": created.ID.String(), "label": "Book Title"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update field: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/databases/0/fields", "", nil)
	var fields []domain.FieldDefinition
	decodeBody(t, rec, &fields)
	if len(fields) != 1 || fields[0].Label != "Book Title" {
		t.Fatalf("unexpected fields after update: %+v", fields)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/databases/0/fields", testActor, map[string]any{"id": created.ID.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete field: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/databases/0/fields", "", nil)
	fields = nil
	decodeBody(t, rec, &fields)
	if len(fields) != 0 {
		t.Fatalf("expected no fields after delete, got %+v", fields)
	}
}

func TestRecordLifecycleAndSearchOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/databases/1/fields", testActor, map[string]any{"label": "Title", "name": "title"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create field: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/databases/1/records", testActor, map[string]any{"title": "Dune"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Record
	decodeBody(t, rec, &created)

	rec = doRequest(t, router, http.MethodPost, "/api/databases/1/records", testActor, map[string]any{"title": "Neuromancer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/databases/1/records?q=dune", "", nil)
	var matches []domain.Record
	decodeBody(t, rec, &matches)
	if len(matches) != 1 || matches[0].ID != created.ID {
		t.Fatalf("search: expected only the Dune record, got %+v", matches)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/databases/1/records", testActor, map[string]any{"id": created.ID.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete record: got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/databases/1/records", "", nil)
	var all []domain.Record
	decodeBody(t, rec, &all)
	if len(all) != 1 {
		t.Fatalf("expected one record left, got %d", len(all))
	}
}

func TestDatabaseRenameOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/databases", "", nil)
	var slots []domain.Slot
	decodeBody(t, rec, &slots)
	if len(slots) != domain.SlotCount || slots[0].Name != "Database 1" {
		t.Fatalf("unexpected default slots: %+v", slots)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/databases/rename", testActor, map[string]any{"index": 0, "name": "Books"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: got %d: %s", rec.Code, rec.Body.String())
	}
	slots = nil
	decodeBody(t, rec, &slots)
	if slots[0].Name != "Books" {
		t.Fatalf("rename not applied: %+v", slots)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/databases/rename", testActor, map[string]any{"index": 0, "name": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/databases/rename", testActor, map[string]any{"index": 9, "name": "Nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range slot: expected 400, got %d", rec.Code)
	}
}

func TestErrorTaxonomyOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/databases/9/fields", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range slot: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/databases/0/fields", testActor, map[string]any{"id": "not-a-valid-id"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("malformed field id: expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/databases/0/records", testActor, map[string]any{"id": "not-a-valid-id"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed record id: expected 400, got %d", rec.Code)
	}
}

func TestAccessEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/access/allow", testActor, map[string]any{"email": "reader@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("allow: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/access/allowed", "", nil)
	var allowed []domain.AllowedEmail
	decodeBody(t, rec, &allowed)
	if len(allowed) != 2 {
		t.Fatalf("expected two allowed emails, got %+v", allowed)
	}

	// The newly allowed email can now mutate.
	rec = doRequest(t, router, http.MethodPost, "/api/databases/0/fields", "reader@example.com", map[string]any{"label": "Title"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("new editor create field: got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/access/disallow", testActor, map[string]any{"email": "reader@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("disallow: got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/databases/0/fields", "reader@example.com", map[string]any{"label": "Another"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked editor: expected 401, got %d", rec.Code)
	}
}
