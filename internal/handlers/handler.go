package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/broadcast"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/engine"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/registry"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc      *engine.Service
	registry *registry.RoomRegistry
	store    store.DataStore
	pipeline *attach.Pipeline
	blobs    *attach.DiskBlobStore
	hub      *broadcast.Hub
	redis    *store.RedisStore
}

// NewHandler creates a new Handler with the given collaborators.
func NewHandler(svc *engine.Service, reg *registry.RoomRegistry, ds store.DataStore, pipeline *attach.Pipeline, blobs *attach.DiskBlobStore, hub *broadcast.Hub, redis *store.RedisStore) *Handler {
	return &Handler{
		svc:      svc,
		registry: reg,
		store:    ds,
		pipeline: pipeline,
		blobs:    blobs,
		hub:      hub,
		redis:    redis,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// EngineError maps pipeline errors onto HTTP responses.
func (h *Handler) EngineError(w http.ResponseWriter, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.Is(err, errs.ErrForbidden):
		h.Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		h.Error(w, http.StatusNotFound, "not found")
	case errors.As(err, &ve):
		h.JSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "validation failed",
			"field":  ve.Field,
			"detail": ve.Reason,
		})
	case errors.Is(err, errs.ErrTransient):
		h.Error(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
