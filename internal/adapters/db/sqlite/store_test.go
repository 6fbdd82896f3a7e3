package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "builder_test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewDocumentStore(db)
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	inserted, err := store.InsertOne(ctx, "records_0", map[string]any{"title": "Dune", "year": 1965})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted.ID.Valid() {
		t.Fatalf("inserted document got malformed id %q", inserted.ID)
	}

	found, err := store.FindByID(ctx, "records_0", inserted.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if found.Attrs["title"] != "Dune" {
		t.Fatalf("unexpected title %v", found.Attrs["title"])
	}

	if _, err := store.FindByID(ctx, "records_1", inserted.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("lookup in another collection should be not found, got %v", err)
	}
	if _, err := store.FindByID(ctx, "records_0", domain.NewDocumentID()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("lookup of unknown id should be not found, got %v", err)
	}
}

func TestDocumentStoreFindAllKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		if _, err := store.InsertOne(ctx, "records_0", map[string]any{"title": title}); err != nil {
			t.Fatalf("insert %s: %v", title, err)
		}
	}

	docs, err := store.FindAll(ctx, "records_0")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(docs) != len(titles) {
		t.Fatalf("expected %d documents, got %d", len(titles), len(docs))
	}
	for i, title := range titles {
		if docs[i].Attrs["title"] != title {
			t.Fatalf("position %d: expected %q, got %v", i, title, docs[i].Attrs["title"])
		}
	}
}

func TestDocumentStoreFindByAttr(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.InsertOne(ctx, "allowed_emails", map[string]any{"email": "a@example.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.InsertOne(ctx, "allowed_emails", map[string]any{"email": "b@example.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	doc, err := store.FindByAttr(ctx, "allowed_emails", "email", "b@example.com")
	if err != nil {
		t.Fatalf("find by attr: %v", err)
	}
	if doc.Attrs["email"] != "b@example.com" {
		t.Fatalf("unexpected email %v", doc.Attrs["email"])
	}

	if _, err := store.FindByAttr(ctx, "allowed_emails", "email", "missing@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentStoreUpdateOneMerges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, err := store.InsertOne(ctx, "records_0", map[string]any{"title": "Dune", "author": "Herbert"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.UpdateOne(ctx, "records_0", doc.ID, map[string]any{"title": "Dune Messiah"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, err := store.FindByID(ctx, "records_0", doc.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if updated.Attrs["title"] != "Dune Messiah" {
		t.Fatalf("title not updated: %v", updated.Attrs["title"])
	}
	if updated.Attrs["author"] != "Herbert" {
		t.Fatalf("untouched attribute lost: %v", updated.Attrs["author"])
	}

	if err := store.UpdateOne(ctx, "records_0", domain.NewDocumentID(), map[string]any{"x": 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentStoreUpdateManySetAndUnset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, err := store.InsertOne(ctx, "records_0", map[string]any{"old": "v"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	// Another collection must stay untouched.
	other, err := store.InsertOne(ctx, "records_1", map[string]any{"old": "v"})
	if err != nil {
		t.Fatalf("insert other: %v", err)
	}

	if err := store.UpdateMany(ctx, "records_0", map[string]any{"fresh": nil}, []string{"old"}); err != nil {
		t.Fatalf("update many: %v", err)
	}

	docs, err := store.FindAll(ctx, "records_0")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	for _, doc := range docs {
		if _, ok := doc.Attrs["fresh"]; !ok {
			t.Fatalf("set key missing on %v", doc.ID)
		}
		if doc.Attrs["fresh"] != nil {
			t.Fatalf("set value should be null, got %v", doc.Attrs["fresh"])
		}
		if _, ok := doc.Attrs["old"]; ok {
			t.Fatalf("unset key still present on %v", doc.ID)
		}
	}

	untouched, err := store.FindByID(ctx, "records_1", other.ID)
	if err != nil {
		t.Fatalf("find other: %v", err)
	}
	if _, ok := untouched.Attrs["fresh"]; ok {
		t.Fatalf("bulk write leaked into another collection")
	}
}

func TestDocumentStoreUpsertByAttr(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.UpsertByAttr(ctx, "database_names", "index", 1, map[string]any{"index": 1, "name": "Books"}); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}
	if err := store.UpsertByAttr(ctx, "database_names", "index", 1, map[string]any{"index": 1, "name": "Library"}); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	docs, err := store.FindAll(ctx, "database_names")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected single document after double upsert, got %d", len(docs))
	}
	if docs[0].Attrs["name"] != "Library" {
		t.Fatalf("expected latest name, got %v", docs[0].Attrs["name"])
	}
}

func TestDocumentStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	doc, err := store.InsertOne(ctx, "records_0", map[string]any{"title": "Dune"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.DeleteOne(ctx, "records_0", doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteOne(ctx, "records_0", doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.InsertOne(ctx, "records_0", map[string]any{"n": i}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := store.DeleteMany(ctx, "records_0"); err != nil {
		t.Fatalf("delete many: %v", err)
	}
	docs, err := store.FindAll(ctx, "records_0")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty collection, got %d documents", len(docs))
	}
}
