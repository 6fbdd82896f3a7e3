package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

const (
	namesCollection   = "database_names"
	allowedCollection = "allowed_emails"
)

func fieldsCollection(slot int) string  { return fmt.Sprintf("fields_%d", slot) }
func recordsCollection(slot int) string { return fmt.Sprintf("records_%d", slot) }

// BuilderService implements the schema and record engine: per-slot field
// registries, the record stores tracking them, schema sync between the two,
// slot display names and the mutation allow-list. Field registry mutations
// for a slot serialize behind a per-slot lock; record writes are
// last-writer-wins per document.
type BuilderService struct {
	store domain.DocumentStore
	auth  domain.Authorizer
	slots [domain.SlotCount]sync.Mutex
}

func NewBuilderService(store domain.DocumentStore, auth domain.Authorizer) *BuilderService {
	return &BuilderService{store: store, auth: auth}
}

func checkSlot(slot int) error {
	if slot < 0 || slot >= domain.SlotCount {
		return fmt.Errorf("%w: slot index %d out of range", domain.ErrInvalidArgument, slot)
	}
	return nil
}

func (s *BuilderService) authorize(ctx context.Context, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domain.ErrUnauthorized
	}
	return s.auth.Authorize(ctx, actor)
}

// storeErr logs the underlying persistence error and returns the generic
// taxonomy sentinel so internal detail never reaches the caller.
func storeErr(op string, err error) error {
	log.Printf("store error in %s: %v", op, err)
	return fmt.Errorf("%w: %s", domain.ErrStoreFailure, op)
}

// ---- Field Registry ----

// ListFields returns a slot's field definitions sorted by order ascending,
// ties broken by storage order.
func (s *BuilderService) ListFields(ctx context.Context, slot int) ([]domain.FieldDefinition, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	docs, err := s.store.FindAll(ctx, fieldsCollection(slot))
	if err != nil {
		return nil, storeErr("list fields", err)
	}
	fields := make([]domain.FieldDefinition, 0, len(docs))
	for _, doc := range docs {
		fields = append(fields, fieldFromDoc(doc))
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Order < fields[j].Order })
	return fields, nil
}

// CreateField registers a new field definition. The machine name is
// generated when absent and guaranteed unique within the slot; an explicit
// name colliding with an existing one is rejected. Every existing record of
// the slot is backfilled with a null placeholder for the new attribute.
func (s *BuilderService) CreateField(ctx context.Context, actor string, slot int, def domain.FieldDefinition) (domain.FieldDefinition, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return domain.FieldDefinition{}, err
	}
	if err := checkSlot(slot); err != nil {
		return domain.FieldDefinition{}, err
	}
	def.Label = strings.TrimSpace(def.Label)
	if def.Label == "" {
		return domain.FieldDefinition{}, fmt.Errorf("%w: field label is required", domain.ErrInvalidArgument)
	}
	if def.Type == "" {
		def.Type = domain.FieldTypeText
	}
	if !def.Type.Valid() {
		return domain.FieldDefinition{}, fmt.Errorf("%w: unknown field type %q", domain.ErrInvalidArgument, def.Type)
	}

	s.slots[slot].Lock()
	defer s.slots[slot].Unlock()

	existing, err := s.ListFields(ctx, slot)
	if err != nil {
		return domain.FieldDefinition{}, err
	}
	taken := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		taken[f.Name] = struct{}{}
	}
	if def.Name == "" {
		def.Name = uniqueFieldName(taken)
	} else if _, dup := taken[def.Name]; dup {
		return domain.FieldDefinition{}, fmt.Errorf("%w: field name %q already in use", domain.ErrInvalidArgument, def.Name)
	}
	if def.Order == 0 {
		def.Order = len(existing)
	}

	doc, err := s.store.InsertOne(ctx, fieldsCollection(slot), fieldToAttrs(def))
	if err != nil {
		return domain.FieldDefinition{}, storeErr("create field", err)
	}
	def.ID = doc.ID

	// Schema sync: backfill the new attribute on every record. Not atomic
	// with the insert above; Resync re-converges after a partial failure.
	if err := s.store.UpdateMany(ctx, recordsCollection(slot), map[string]any{def.Name: nil}, nil); err != nil {
		return domain.FieldDefinition{}, storeErr("backfill new field", err)
	}
	return def, nil
}

// UpdateField applies a partial change to label, type, options or order.
// The machine name is immutable. A malformed or unknown identifier is
// reported as not found, matching lookup-by-either-encoding semantics.
func (s *BuilderService) UpdateField(ctx context.Context, actor string, slot int, rawID any, patch domain.FieldPatch) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
	}

	set := map[string]any{}
	if patch.Label != nil {
		label := strings.TrimSpace(*patch.Label)
		if label == "" {
			return fmt.Errorf("%w: field label is required", domain.ErrInvalidArgument)
		}
		set["label"] = label
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return fmt.Errorf("%w: unknown field type %q", domain.ErrInvalidArgument, *patch.Type)
		}
		set["type"] = string(*patch.Type)
	}
	if patch.Options != nil {
		set["options"] = *patch.Options
	}
	if patch.Order != nil {
		set["order"] = *patch.Order
	}
	if len(set) == 0 {
		return nil
	}

	s.slots[slot].Lock()
	defer s.slots[slot].Unlock()

	err = s.store.UpdateOne(ctx, fieldsCollection(slot), id, set)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("update field", err)
	}
	return nil
}

// DeleteField removes a field definition and strips its attribute from
// every record in the slot, so the name can later be reused without stale
// data leaking through.
func (s *BuilderService) DeleteField(ctx context.Context, actor string, slot int, rawID any) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
	}

	s.slots[slot].Lock()
	defer s.slots[slot].Unlock()

	doc, err := s.store.FindByID(ctx, fieldsCollection(slot), id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("find field", err)
	}
	field := fieldFromDoc(doc)

	if err := s.store.DeleteOne(ctx, fieldsCollection(slot), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
		}
		return storeErr("delete field", err)
	}

	// Schema sync: unset the attribute on every record of the slot.
	if err := s.store.UpdateMany(ctx, recordsCollection(slot), nil, []string{field.Name}); err != nil {
		return storeErr("strip deleted field", err)
	}
	return nil
}

// ReorderFields rewrites the rank of every listed definition so that array
// position equals intended rank. Each definition is updated in place by
// identifier; nothing is deleted or reinserted, and the per-slot lock keeps
// concurrent registry mutations from interleaving.
func (s *BuilderService) ReorderFields(ctx context.Context, actor string, slot int, orderedIDs []any) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	ids := make([]domain.DocumentID, 0, len(orderedIDs))
	for _, raw := range orderedIDs {
		id, err := domain.ParseDocumentID(raw)
		if err != nil {
			return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
		}
		ids = append(ids, id)
	}

	s.slots[slot].Lock()
	defer s.slots[slot].Unlock()

	for rank, id := range ids {
		err := s.store.UpdateOne(ctx, fieldsCollection(slot), id, map[string]any{"order": rank})
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: no field matches identifier", domain.ErrNotFound)
		}
		if err != nil {
			return storeErr("reorder fields", err)
		}
	}
	return nil
}

// uniqueFieldName generates a collision-resistant machine key. The
// timestamp+random token is checked against the names already registered in
// the slot and a monotonic suffix appended until it is free.
func uniqueFieldName(taken map[string]struct{}) string {
	base := fmt.Sprintf("field_%d_%d", time.Now().UnixMilli(), rand.IntN(1000))
	name := base
	for i := 1; ; i++ {
		if _, exists := taken[name]; !exists {
			return name
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// ---- Record Store ----

// ListRecords returns all records of a slot in storage order.
func (s *BuilderService) ListRecords(ctx context.Context, slot int) ([]domain.Record, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	docs, err := s.store.FindAll(ctx, recordsCollection(slot))
	if err != nil {
		return nil, storeErr("list records", err)
	}
	records := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, domain.Record{ID: doc.ID, Attrs: doc.Attrs})
	}
	return records, nil
}

// SearchRecords narrows the slot's records with the schema-driven filter.
func (s *BuilderService) SearchRecords(ctx context.Context, slot int, term string) ([]domain.Record, error) {
	fields, err := s.ListFields(ctx, slot)
	if err != nil {
		return nil, err
	}
	records, err := s.ListRecords(ctx, slot)
	if err != nil {
		return nil, err
	}
	return FilterRecords(fields, records, term), nil
}

// CreateRecord stores a new record with the given attribute map. Attribute
// keys are not validated against the registry (permissive write); the
// reserved identifier keys are stripped and never stored as data.
func (s *BuilderService) CreateRecord(ctx context.Context, actor string, slot int, attrs map[string]any) (domain.Record, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return domain.Record{}, err
	}
	if err := checkSlot(slot); err != nil {
		return domain.Record{}, err
	}
	doc, err := s.store.InsertOne(ctx, recordsCollection(slot), stripReserved(attrs))
	if err != nil {
		return domain.Record{}, storeErr("create record", err)
	}
	return domain.Record{ID: doc.ID, Attrs: doc.Attrs}, nil
}

// UpdateRecord replaces the named attributes of one record. The supplied
// identifier routes the write and is excluded from the payload, so an
// update can never overwrite the stored identifier with a literal value.
func (s *BuilderService) UpdateRecord(ctx context.Context, actor string, slot int, rawID any, attrs map[string]any) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return err
	}
	err = s.store.UpdateOne(ctx, recordsCollection(slot), id, stripReserved(attrs))
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: no record matches identifier", domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("update record", err)
	}
	return nil
}

// DeleteRecord removes one record by identifier.
func (s *BuilderService) DeleteRecord(ctx context.Context, actor string, slot int, rawID any) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	id, err := domain.ParseDocumentID(rawID)
	if err != nil {
		return err
	}
	err = s.store.DeleteOne(ctx, recordsCollection(slot), id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: no record matches identifier", domain.ErrNotFound)
	}
	if err != nil {
		return storeErr("delete record", err)
	}
	return nil
}

// PurgeRecords deletes every record of a slot. Admin convenience exposed on
// the CLI and RPC surfaces only.
func (s *BuilderService) PurgeRecords(ctx context.Context, actor string, slot int) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	if err := s.store.DeleteMany(ctx, recordsCollection(slot)); err != nil {
		return storeErr("purge records", err)
	}
	return nil
}

// ---- Schema Sync ----

// Resync re-converges a slot's records with its field registry: records
// missing an attribute for a currently defined field get a null placeholder,
// and attributes whose field no longer exists are stripped. Safe to run
// repeatedly; this is the recovery path for the non-atomic two-step schema
// changes in CreateField and DeleteField.
func (s *BuilderService) Resync(ctx context.Context, actor string, slot int) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}

	s.slots[slot].Lock()
	defer s.slots[slot].Unlock()

	fields, err := s.ListFields(ctx, slot)
	if err != nil {
		return err
	}
	current := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		current[f.Name] = struct{}{}
	}

	records, err := s.ListRecords(ctx, slot)
	if err != nil {
		return err
	}

	orphans := map[string]struct{}{}
	for _, rec := range records {
		missing := map[string]any{}
		for name := range current {
			if _, ok := rec.Attrs[name]; !ok {
				missing[name] = nil
			}
		}
		if len(missing) > 0 {
			if err := s.store.UpdateOne(ctx, recordsCollection(slot), rec.ID, missing); err != nil {
				return storeErr("resync backfill", err)
			}
		}
		for key := range rec.Attrs {
			if _, ok := current[key]; !ok {
				orphans[key] = struct{}{}
			}
		}
	}
	if len(orphans) > 0 {
		unset := make([]string, 0, len(orphans))
		for key := range orphans {
			unset = append(unset, key)
		}
		if err := s.store.UpdateMany(ctx, recordsCollection(slot), nil, unset); err != nil {
			return storeErr("resync strip", err)
		}
	}
	return nil
}

// ---- Slot Manager ----

// ListSlots returns index and display name for every slot. Names fall back
// to "Database {index+1}" when no rename has been persisted; the default is
// computed here, never stored.
func (s *BuilderService) ListSlots(ctx context.Context) ([]domain.Slot, error) {
	docs, err := s.store.FindAll(ctx, namesCollection)
	if err != nil {
		return nil, storeErr("list slots", err)
	}
	persisted := map[int]string{}
	for _, doc := range docs {
		idx, ok := attrInt(doc.Attrs["index"])
		if !ok {
			continue
		}
		if name, ok := doc.Attrs["name"].(string); ok && strings.TrimSpace(name) != "" {
			persisted[idx] = name
		}
	}
	slots := make([]domain.Slot, 0, domain.SlotCount)
	for i := 0; i < domain.SlotCount; i++ {
		name, ok := persisted[i]
		if !ok {
			name = DefaultSlotName(i)
		}
		slots = append(slots, domain.Slot{Index: i, Name: name})
	}
	return slots, nil
}

// RenameSlot upserts the display name for one slot.
func (s *BuilderService) RenameSlot(ctx context.Context, actor string, slot int, name string) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: database name is required", domain.ErrInvalidArgument)
	}
	set := map[string]any{"index": slot, "name": name}
	if err := s.store.UpsertByAttr(ctx, namesCollection, "index", slot, set); err != nil {
		return storeErr("rename slot", err)
	}
	return nil
}

// DefaultSlotName is the display name of a slot nobody has renamed yet.
func DefaultSlotName(slot int) string {
	return fmt.Sprintf("Database %d", slot+1)
}

// ---- Access ----

// ListAllowed returns the mutation allow-list.
func (s *BuilderService) ListAllowed(ctx context.Context) ([]domain.AllowedEmail, error) {
	docs, err := s.store.FindAll(ctx, allowedCollection)
	if err != nil {
		return nil, storeErr("list allowed emails", err)
	}
	out := make([]domain.AllowedEmail, 0, len(docs))
	for _, doc := range docs {
		email, _ := doc.Attrs["email"].(string)
		out = append(out, domain.AllowedEmail{ID: doc.ID, Email: email})
	}
	return out, nil
}

// Allow adds an email to the mutation allow-list. Idempotent.
func (s *BuilderService) Allow(ctx context.Context, actor, email string) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	if err := s.store.UpsertByAttr(ctx, allowedCollection, "email", email, map[string]any{"email": email}); err != nil {
		return storeErr("allow email", err)
	}
	return nil
}

// Disallow removes an email from the mutation allow-list.
func (s *BuilderService) Disallow(ctx context.Context, actor, email string) error {
	if err := s.authorize(ctx, actor); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	doc, err := s.store.FindByAttr(ctx, allowedCollection, "email", email)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: email %q is not on the allow-list", domain.ErrNotFound, email)
	}
	if err != nil {
		return storeErr("find allowed email", err)
	}
	if err := s.store.DeleteOne(ctx, allowedCollection, doc.ID); err != nil {
		return storeErr("disallow email", err)
	}
	return nil
}

// ---- codecs ----

func fieldToAttrs(def domain.FieldDefinition) map[string]any {
	return map[string]any{
		"name":    def.Name,
		"label":   def.Label,
		"type":    string(def.Type),
		"options": def.Options,
		"order":   def.Order,
	}
}

func fieldFromDoc(doc domain.Document) domain.FieldDefinition {
	def := domain.FieldDefinition{ID: doc.ID}
	def.Name, _ = doc.Attrs["name"].(string)
	def.Label, _ = doc.Attrs["label"].(string)
	if t, ok := doc.Attrs["type"].(string); ok {
		def.Type = domain.FieldType(t)
	}
	def.Options = attrStrings(doc.Attrs["options"])
	def.Order, _ = attrInt(doc.Attrs["order"])
	return def
}

func stripReserved(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for key, value := range attrs {
		if key == "id" || key == "_id" {
			continue
		}
		out[key] = value
	}
	return out
}

// attrInt tolerates the float64 that JSON round-trips integers into.
func attrInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func attrStrings(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, item := range vs {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
