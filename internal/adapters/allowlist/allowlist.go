// Package allowlist gates mutations on membership in the allowed_emails
// collection. Authentication itself happens upstream (the OAuth proxy);
// this adapter only answers "may this email mutate".
package allowlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

const collection = "allowed_emails"

type Authorizer struct {
	store domain.DocumentStore
}

func New(store domain.DocumentStore) *Authorizer {
	return &Authorizer{store: store}
}

func (a *Authorizer) Authorize(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.ErrUnauthorized
	}
	_, err := a.store.FindByAttr(ctx, collection, "email", email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("%w: allow-list lookup", domain.ErrStoreFailure)
	}
	return nil
}

// Seed inserts the given emails when the allow-list is empty, so a fresh
// deployment has at least one admin able to mutate. Idempotent.
func Seed(ctx context.Context, store domain.DocumentStore, emails []string) error {
	existing, err := store.FindAll(ctx, collection)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	docs := make([]map[string]any, 0, len(emails))
	for _, email := range emails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			continue
		}
		docs = append(docs, map[string]any{"email": email})
	}
	return store.InsertMany(ctx, collection, docs)
}
