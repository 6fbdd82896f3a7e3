package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/uk030621/MultiAdaptDB/internal/application"
	"github.com/uk030621/MultiAdaptDB/internal/domain"
)

// actorHeader carries the authenticated email set by the fronting OAuth
// proxy. Session issuance and verification happen upstream; this adapter
// only extracts the identity and lets the service run its allow-list gate.
const actorHeader = "X-Forwarded-Email"

type contextKey string

const actorKey contextKey = "actor"

type Handler struct {
	service *application.BuilderService
}

func NewRouter(service *application.BuilderService) http.Handler {
	h := &Handler{service: service}
	r := chi.NewRouter()

	r.Route("/api", func(api chi.Router) {
		api.Get("/databases", h.handleListDatabases)
		api.With(h.requireActor).Post("/databases/rename", h.handleRenameDatabase)

		api.Route("/databases/{slot}", func(db chi.Router) {
			db.Get("/fields", h.handleListFields)
			db.With(h.requireActor).Post("/fields", h.handleCreateField)
			db.With(h.requireActor).Put("/fields", h.handleUpdateField)
			db.With(h.requireActor).Delete("/fields", h.handleDeleteField)
			db.With(h.requireActor).Post("/fields/reorder", h.handleReorderFields)

			db.Get("/records", h.handleListRecords)
			db.With(h.requireActor).Post("/records", h.handleCreateRecord)
			db.With(h.requireActor).Put("/records", h.handleUpdateRecord)
			db.With(h.requireActor).Delete("/records", h.handleDeleteRecord)
			db.With(h.requireActor).Post("/records/purge", h.handlePurgeRecords)

			db.With(h.requireActor).Post("/resync", h.handleResync)
		})

		api.Get("/access/allowed", h.handleListAllowed)
		api.With(h.requireActor).Post("/access/allow", h.handleAllow)
		api.With(h.requireActor).Post("/access/disallow", h.handleDisallow)
	})

	return r
}

func (h *Handler) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(actorHeader))
		if actor == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

func slotParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "slot")
	slot, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrInvalidArgument
	}
	return slot, nil
}

// ---- databases ----

func (h *Handler) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	slots, err := h.service.ListSlots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

type renameDatabaseRequest struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func (h *Handler) handleRenameDatabase(w http.ResponseWriter, r *http.Request) {
	var req renameDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.RenameSlot(r.Context(), actorFromContext(r.Context()), req.Index, req.Name); err != nil {
		writeError(w, err)
		return
	}
	slots, err := h.service.ListSlots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// ---- fields ----

func (h *Handler) handleListFields(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	fields, err := h.service.ListFields(r.Context(), slot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

type createFieldRequest struct {
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Type    string   `json:"type"`
	Options []string `json:"options"`
	Order   int      `json:"order"`
}

func (h *Handler) handleCreateField(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	field, err := h.service.CreateField(r.Context(), actorFromContext(r.Context()), slot, domain.FieldDefinition{
		Name:    req.Name,
		Label:   req.Label,
		Type:    domain.FieldType(req.Type),
		Options: req.Options,
		Order:   req.Order,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, field)
}

func (h *Handler) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	id, ok := body["id"]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing field id"})
		return
	}
	patch := fieldPatchFromBody(body)
	if err := h.service.UpdateField(r.Context(), actorFromContext(r.Context()), slot, id, patch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// fieldPatchFromBody keeps partial-update semantics: only keys present in
// the payload are touched.
func fieldPatchFromBody(body map[string]any) domain.FieldPatch {
	var patch domain.FieldPatch
	if raw, ok := body["label"]; ok {
		if label, ok := raw.(string); ok {
			patch.Label = &label
		}
	}
	if raw, ok := body["type"]; ok {
		if t, ok := raw.(string); ok {
			ft := domain.FieldType(t)
			patch.Type = &ft
		}
	}
	if raw, ok := body["options"]; ok {
		options := toStrings(raw)
		patch.Options = &options
	}
	if raw, ok := body["order"]; ok {
		if n, ok := raw.(float64); ok {
			order := int(n)
			patch.Order = &order
		}
	}
	return patch
}

type deleteRequest struct {
	ID any `json:"id"`
}

func (h *Handler) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.DeleteField(r.Context(), actorFromContext(r.Context()), slot, req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReorderFields(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var entries []any
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	ids := make([]any, 0, len(entries))
	for _, entry := range entries {
		// Clients send either bare identifiers or whole field objects.
		if obj, ok := entry.(map[string]any); ok {
			if id, ok := obj["id"]; ok {
				ids = append(ids, id)
				continue
			}
			if id, ok := obj["_id"]; ok {
				ids = append(ids, id)
				continue
			}
		}
		ids = append(ids, entry)
	}
	if err := h.service.ReorderFields(r.Context(), actorFromContext(r.Context()), slot, ids); err != nil {
		writeError(w, err)
		return
	}
	fields, err := h.service.ListFields(r.Context(), slot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

// ---- records ----

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	term := r.URL.Query().Get("q")
	var records []domain.Record
	if strings.TrimSpace(term) == "" {
		records, err = h.service.ListRecords(r.Context(), slot)
	} else {
		records, err = h.service.SearchRecords(r.Context(), slot, term)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	record, err := h.service.CreateRecord(r.Context(), actorFromContext(r.Context()), slot, attrs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	id, ok := body["id"]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing record id"})
		return
	}
	if err := h.service.UpdateRecord(r.Context(), actorFromContext(r.Context()), slot, id, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.DeleteRecord(r.Context(), actorFromContext(r.Context()), slot, req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handlePurgeRecords(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.PurgeRecords(r.Context(), actorFromContext(r.Context()), slot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Resync(r.Context(), actorFromContext(r.Context()), slot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- access ----

func (h *Handler) handleListAllowed(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListAllowed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleAllow(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.Allow(r.Context(), actorFromContext(r.Context()), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleDisallow(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if err := h.service.Disallow(r.Context(), actorFromContext(r.Context()), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ---- helpers ----

func toStrings(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	default:
		// Store failures and anything unexpected stay generic.
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
