package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gezin/internal/model"
	"github.com/dukerupert/gezin/internal/store"
	"github.com/dukerupert/gezin/internal/websocket"
)

// Resource serves the five record endpoints for one collection.
type Resource[T store.Record] struct {
	noun      string // "Task", used in messages
	entity    string // "task", used in change notifications
	records   *store.Collection[T]
	newRecord func() T
	hub       websocket.Broadcaster
	logger    *slog.Logger
}

// NewResource builds a Resource. newRecord returns a record with the create
// defaults applied; it may be nil when the zero value is the default. hub
// may be nil.
func NewResource[T store.Record](noun, entity string, records *store.Collection[T], newRecord func() T, hub websocket.Broadcaster, logger *slog.Logger) *Resource[T] {
	if newRecord == nil {
		newRecord = func() T {
			var zero T
			return zero
		}
	}
	return &Resource[T]{
		noun:      noun,
		entity:    entity,
		records:   records,
		newRecord: newRecord,
		hub:       hub,
		logger:    logger.With("kind", records.Kind()),
	}
}

// Register mounts the resource under base, e.g. "/api/tasks".
func (h *Resource[T]) Register(mux *http.ServeMux, base string) {
	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("GET "+base+"/{id}", h.Get)
	mux.HandleFunc("PUT "+base+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
}

func (h *Resource[T]) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.records.ReadAll(r.Context()))
}

func (h *Resource[T]) Get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.records.FindByID(r.Context(), r.PathValue("id"))
	if !ok {
		h.notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Resource[T]) Create(w http.ResponseWriter, r *http.Request) {
	record := h.newRecord()
	if err := decodeJSON(w, r, &record); err != nil {
		writeDecodeError(w, err)
		return
	}
	if !h.validate(w, record) {
		return
	}

	created, err := h.records.Create(r.Context(), record)
	if errors.Is(err, store.ErrDuplicateID) {
		writeError(w, http.StatusConflict, fmt.Sprintf("%s with id %q already exists", h.noun, record.RecordID()))
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "failed to create "+h.records.Kind(), err)
		return
	}

	h.broadcast("created", created.RecordID())
	writeJSON(w, http.StatusCreated, created)
}

// Update merges the supplied fields into the stored record. The merged
// record must still pass validation; nothing is written when it does not.
func (h *Resource[T]) Update(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := decodeJSON(w, r, &patch); err != nil {
		writeDecodeError(w, err)
		return
	}
	if patch == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	updated, found, err := h.records.Update(r.Context(), r.PathValue("id"), func(current T) (T, error) {
		merged, err := store.MergeFields(current, patch)
		if err != nil {
			return merged, err
		}
		return merged, model.Validate(merged)
	})

	var verr *model.ValidationError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
		return
	case errors.As(err, &typeErr):
		writeDecodeError(w, err)
		return
	case err != nil:
		internalError(w, r, h.logger, "failed to update "+h.records.Kind(), err)
		return
	case !found:
		h.notFound(w)
		return
	}

	h.broadcast("updated", updated.RecordID())
	writeJSON(w, http.StatusOK, updated)
}

func (h *Resource[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := h.records.Delete(r.Context(), id)
	if err != nil {
		internalError(w, r, h.logger, "failed to delete "+h.records.Kind(), err)
		return
	}
	if !removed {
		h.notFound(w)
		return
	}

	h.broadcast("deleted", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": h.noun + " deleted"})
}

func (h *Resource[T]) validate(w http.ResponseWriter, record T) bool {
	err := model.Validate(record)
	if err == nil {
		return true
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeValidation(w, verr)
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func (h *Resource[T]) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, h.noun+" not found")
}

func (h *Resource[T]) broadcast(action, id string) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(websocket.NewMessage(h.entity, action, id, nil))
}
