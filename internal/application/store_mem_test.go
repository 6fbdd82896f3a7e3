package application

import (
	"context"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

// memStore is an in-memory domain.DocumentStore for service tests. It keeps
// insertion order per collection, like the real adapter.
type memStore struct {
	collections map[string][]domain.Document
}

func newMemStore() *memStore {
	return &memStore{collections: map[string][]domain.Document{}}
}

func (s *memStore) FindAll(_ context.Context, collection string) ([]domain.Document, error) {
	docs := s.collections[collection]
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, cloneDoc(doc))
	}
	return out, nil
}

func (s *memStore) FindByID(_ context.Context, collection string, id domain.DocumentID) (domain.Document, error) {
	for _, doc := range s.collections[collection] {
		if doc.ID == id {
			return cloneDoc(doc), nil
		}
	}
	return domain.Document{}, domain.ErrNotFound
}

func (s *memStore) FindByAttr(_ context.Context, collection, key string, value any) (domain.Document, error) {
	for _, doc := range s.collections[collection] {
		if doc.Attrs[key] == value {
			return cloneDoc(doc), nil
		}
	}
	return domain.Document{}, domain.ErrNotFound
}

func (s *memStore) InsertOne(_ context.Context, collection string, attrs map[string]any) (domain.Document, error) {
	doc := domain.Document{ID: domain.NewDocumentID(), Attrs: cloneAttrs(attrs)}
	s.collections[collection] = append(s.collections[collection], doc)
	return cloneDoc(doc), nil
}

func (s *memStore) InsertMany(ctx context.Context, collection string, docs []map[string]any) error {
	for _, attrs := range docs {
		if _, err := s.InsertOne(ctx, collection, attrs); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) UpdateOne(_ context.Context, collection string, id domain.DocumentID, set map[string]any) error {
	for i, doc := range s.collections[collection] {
		if doc.ID != id {
			continue
		}
		for key, value := range set {
			s.collections[collection][i].Attrs[key] = value
		}
		return nil
	}
	return domain.ErrNotFound
}

func (s *memStore) UpdateMany(_ context.Context, collection string, set map[string]any, unset []string) error {
	for i := range s.collections[collection] {
		for key, value := range set {
			s.collections[collection][i].Attrs[key] = value
		}
		for _, key := range unset {
			delete(s.collections[collection][i].Attrs, key)
		}
	}
	return nil
}

func (s *memStore) UpsertByAttr(ctx context.Context, collection, key string, value any, set map[string]any) error {
	for i, doc := range s.collections[collection] {
		if doc.Attrs[key] != value {
			continue
		}
		for k, v := range set {
			s.collections[collection][i].Attrs[k] = v
		}
		return nil
	}
	_, err := s.InsertOne(ctx, collection, set)
	return err
}

func (s *memStore) DeleteOne(_ context.Context, collection string, id domain.DocumentID) error {
	docs := s.collections[collection]
	for i, doc := range docs {
		if doc.ID == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memStore) DeleteMany(_ context.Context, collection string) error {
	delete(s.collections, collection)
	return nil
}

func cloneDoc(doc domain.Document) domain.Document {
	return domain.Document{ID: doc.ID, Attrs: cloneAttrs(doc.Attrs)}
}

func cloneAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// allowEveryone authorizes any non-empty actor.
type allowEveryone struct{}

func (allowEveryone) Authorize(context.Context, string) error { return nil }

// denyEveryone rejects every actor.
type denyEveryone struct{}

func (denyEveryone) Authorize(context.Context, string) error { return domain.ErrUnauthorized }
