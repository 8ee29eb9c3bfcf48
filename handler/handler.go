// Package handler provides the HTTP handlers for the record server.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stevemurr/simple-record-server/lifecycle"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Simple Record Server"

// Handler holds the server dependencies and registers routes.
type Handler struct {
	engine *lifecycle.Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler and wires up all routes. logger may be nil.
func New(e *lifecycle.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{engine: e, logger: logger, mux: http.NewServeMux()}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Status. Every other single-segment path is a collection.
	h.mux.HandleFunc("GET /{$}", h.root)

	// Records
	h.mux.HandleFunc("GET /{collection}", h.list)
	h.mux.HandleFunc("POST /{collection}", h.create)
	h.mux.HandleFunc("GET /{collection}/{id}", h.get)
	h.mux.HandleFunc("PATCH /{collection}/{id}", h.amend)
	h.mux.HandleFunc("DELETE /{collection}/{id}", h.softDelete)
	h.mux.HandleFunc("POST /{collection}/{id}/retrieve", h.restore)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps engine errors to responses. Anything unrecognised, storage
// failures included, is a 500.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, "Store not found")
	case errors.Is(err, lifecycle.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, lifecycle.ErrNotDeleted):
		writeError(w, http.StatusBadRequest, "Record is not deleted")
	case errors.Is(err, lifecycle.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "Internal server error",
			"detail": err.Error(),
		})
	}
}

// readJSON decodes an object body. An empty body reads as {}. Numbers stay
// json.Number so large integers are stored exactly.
func readJSON(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var v map[string]any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	return v, nil
}

// ---------- status ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     ServiceName,
		"collections": h.engine.Collections(),
	})
}

// ---------- records ----------

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.List(r.PathValue("collection"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Get(r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	rec, err := h.engine.Create(r.PathValue("collection"), body)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) amend(w http.ResponseWriter, r *http.Request) {
	body, err := readJSON(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	rec, err := h.engine.Amend(r.PathValue("collection"), r.PathValue("id"), body)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.SoftDelete(r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Restore(r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
