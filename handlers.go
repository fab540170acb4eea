package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	maxBodyBytes = 1 << 20

	// statusClientClosedRequest is reported when the caller went away before
	// the store answered.
	statusClientClosedRequest = 499
)

// Handler handles HTTP requests for list items.
type Handler struct {
	repo   Repository
	insert *InsertService
	update *UpdateService
	remove *DeleteService
	routes RouteHelper
	logger *log.Logger
}

// NewHandler creates a Handler with dependencies.
func NewHandler(repo Repository, ids IDGenerator, clock Clock, routes RouteHelper, logger *log.Logger) *Handler {
	return &Handler{
		repo:   repo,
		insert: NewInsertService(repo, ids, clock),
		update: NewUpdateService(repo, clock),
		remove: NewDeleteService(repo),
		routes: routes,
		logger: logger,
	}
}

// handleListItems processes GET /items.
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.GetAll(r.Context())
	if err != nil {
		h.serverError(w, r, "listing items", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleGetItem processes GET /items/{id}.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	var id uuid.UUID
	if rerr := runChecks(validIDParam(chi.URLParam(r, "id"), &id)); rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	item, ok, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.serverError(w, r, "getting item", err)
		return
	}
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleCreateItem processes POST /items.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var payload *ItemPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rerr := runChecks(
		notNull(payload),
		validPayload(payload),
		emptyID(payload),
	); rerr != nil {
		writeRequestError(w, rerr)
		return
	}

	item, err := h.insert.Insert(r.Context(), payload.Text)
	if err != nil {
		h.serverError(w, r, "saving item", err)
		return
	}
	w.Header().Set("Location", h.routes.ItemURL(item.ID))
	writeJSON(w, http.StatusCreated, item)
}

// handleUpsertItem processes PUT /items/{id}: an existing item is replaced,
// a missing one is created under the given id.
func (h *Handler) handleUpsertItem(w http.ResponseWriter, r *http.Request) {
	var payload *ItemPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var id uuid.UUID
	if rerr := runChecks(
		notNull(payload),
		validIDParam(chi.URLParam(r, "id"), &id),
		validPayload(payload),
		requiredID(payload),
		consistentIDs(&id, payload),
	); rerr != nil {
		writeRequestError(w, rerr)
		return
	}

	existing, err := h.update.CheckExists(r.Context(), id)
	if err != nil {
		h.serverError(w, r, "fetching item for update", err)
		return
	}
	if existing.Found {
		res, err := h.update.Update(r.Context(), existing.Item, payload.Text)
		if err != nil {
			h.serverError(w, r, "updating item", err)
			return
		}
		if res.Found {
			writeJSON(w, http.StatusOK, res.Item)
			return
		}
		// deleted since CheckExists; fall through to create
	}

	item, err := h.insert.InsertAt(r.Context(), id, payload.Text)
	if errors.Is(err, ErrDuplicateKey) {
		http.Error(w, "item was created concurrently", http.StatusConflict)
		return
	}
	if err != nil {
		h.serverError(w, r, "creating item", err)
		return
	}
	w.Header().Set("Location", h.routes.ItemURL(item.ID))
	writeJSON(w, http.StatusCreated, item)
}

// handleReplaceItems processes PUT /items, swapping the whole collection.
func (h *Handler) handleReplaceItems(w http.ResponseWriter, r *http.Request) {
	var payload *[]*ItemPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rerr := runChecks(notNull(payload)); rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	if rerr := runChecks(
		validCollection(*payload),
		nonEmptyCollection(*payload),
		uniqueIDs(*payload),
	); rerr != nil {
		writeRequestError(w, rerr)
		return
	}

	items := make([]ListItem, len(*payload))
	for i, p := range *payload {
		items[i] = ListItem{ID: p.parsedID(), Text: p.Text}
		if p.Created != nil {
			items[i].Created = p.Created.UTC()
		}
		if p.LastModified != nil {
			items[i].LastModified = p.LastModified.UTC()
		}
	}
	stored, err := h.update.ReplaceAll(r.Context(), items)
	if err != nil {
		h.serverError(w, r, "replacing items", err)
		return
	}
	w.Header().Set("Location", h.routes.ItemsURL())
	writeJSON(w, http.StatusCreated, stored)
}

// handlePatchItem processes PATCH /items/{id} with a JSON-Patch document.
func (h *Handler) handlePatchItem(w http.ResponseWriter, r *http.Request) {
	var id uuid.UUID
	if rerr := runChecks(validIDParam(chi.URLParam(r, "id"), &id)); rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid request payload: %v", err), http.StatusBadRequest)
		return
	}
	patch, rerr := decodePatch(body)
	if rerr == nil {
		rerr = runChecks(
			patchHasOperations(patch),
			patchOnlyReplacesText(patch),
		)
	}
	if rerr != nil {
		writeRequestError(w, rerr)
		return
	}

	existing, err := h.update.CheckExists(r.Context(), id)
	if err != nil {
		h.serverError(w, r, "fetching item for patch", err)
		return
	}
	if !existing.Found {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	text, rerr := patchedText(patch, existing.Item.Text)
	if rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	res, err := h.update.Update(r.Context(), existing.Item, text)
	if err != nil {
		h.serverError(w, r, "patching item", err)
		return
	}
	if !res.Found {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res.Item)
}

// handleDeleteItem processes DELETE /items/{id}.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	var id uuid.UUID
	if rerr := runChecks(validIDParam(chi.URLParam(r, "id"), &id)); rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	res, err := h.remove.Delete(r.Context(), id)
	if err != nil {
		h.serverError(w, r, "deleting item", err)
		return
	}
	if !res.Found {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res.Item)
}

// handleDeleteItems processes DELETE /items with a JSON array of ids. Nothing
// is removed unless every id exists.
func (h *Handler) handleDeleteItems(w http.ResponseWriter, r *http.Request) {
	var payload *[]uuid.UUID
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rerr := runChecks(notNull(payload)); rerr != nil {
		writeRequestError(w, rerr)
		return
	}
	if rerr := runChecks(
		nonEmptyIDs(*payload),
		distinctIDs(*payload),
	); rerr != nil {
		writeRequestError(w, rerr)
		return
	}

	res, err := h.remove.DeleteAll(r.Context(), *payload)
	if err != nil {
		h.serverError(w, r, "deleting items", err)
		return
	}
	if !res.Found {
		http.Error(w, "One or more of the ids specified for deletion has not been found.", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res.Items)
}

// handleHealth processes GET /healthz.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Printf("[%s] health check failed: %v", middleware.GetReqID(r.Context()), err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serverError answers a failed store call. Cancelled requests are not logged
// as failures. When the request deadline itself has passed the timeout
// middleware writes the 504, so nothing is written here.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, action string, err error) {
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		return
	}
	switch {
	case errors.Is(err, context.Canceled):
		http.Error(w, "client closed request", statusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
	default:
		h.logger.Printf("[%s] error %s: %v", middleware.GetReqID(r.Context()), action, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeRequestError(w http.ResponseWriter, rerr *requestError) {
	http.Error(w, rerr.Message, rerr.Status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON value from the request body into dst.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", ErrInvalidInput)
		}
		return fmt.Errorf("invalid request payload: %v", err)
	}
	return ensureSingleJSON(dec)
}

// ensureSingleJSON ensures only a single JSON value is in the request body.
func ensureSingleJSON(dec *json.Decoder) error {
	if t, err := dec.Token(); err != io.EOF || t != nil {
		return fmt.Errorf("%w: request body must only contain a single JSON value", ErrInvalidInput)
	}
	return nil
}
