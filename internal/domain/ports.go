package domain

import "context"

// DocumentStore is the document persistence port: flat documents keyed by
// identifier, grouped into named collections. Every call is independent;
// there is no cross-call transaction. FindAll returns documents in storage
// (insertion) order.
type DocumentStore interface {
	FindAll(ctx context.Context, collection string) ([]Document, error)
	FindByID(ctx context.Context, collection string, id DocumentID) (Document, error)
	FindByAttr(ctx context.Context, collection, key string, value any) (Document, error)
	InsertOne(ctx context.Context, collection string, attrs map[string]any) (Document, error)
	InsertMany(ctx context.Context, collection string, docs []map[string]any) error
	// UpdateOne merges set into the attributes of the document with the
	// given id; ErrNotFound when no document matches.
	UpdateOne(ctx context.Context, collection string, id DocumentID, set map[string]any) error
	// UpdateMany applies set and unset to every document in the collection.
	UpdateMany(ctx context.Context, collection string, set map[string]any, unset []string) error
	// UpsertByAttr updates the first document whose key equals value, or
	// inserts a new one when none exists.
	UpsertByAttr(ctx context.Context, collection, key string, value any, set map[string]any) error
	DeleteOne(ctx context.Context, collection string, id DocumentID) error
	DeleteMany(ctx context.Context, collection string) error
}

// Authorizer is the mutation gate consulted before every mutating
// operation. A nil return means the actor may mutate; ErrUnauthorized
// otherwise.
type Authorizer interface {
	Authorize(ctx context.Context, email string) error
}
