package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// GetVariant renders (or serves from cache) a resized variant of an
// attachment. Defaults to the 150x150 chat thumbnail.
func (h *Handler) GetVariant(w http.ResponseWriter, r *http.Request) {
	attID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid attachment ID format")
		return
	}

	spec := models.VariantChat
	if ws := r.URL.Query().Get("w"); ws != "" {
		if width, err := strconv.Atoi(ws); err == nil && width > 0 && width <= 1024 {
			spec.Width = uint(width)
		}
	}
	if hs := r.URL.Query().Get("h"); hs != "" {
		if height, err := strconv.Atoi(hs); err == nil && height > 0 && height <= 1024 {
			spec.Height = uint(height)
		}
	}

	ref, err := h.pipeline.Variant(r.Context(), attID, spec)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	data, err := h.blobs.Open(ref.Ref)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// GetBlob serves a raw blob or rendered variant by ref.
func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		h.Error(w, http.StatusBadRequest, "blob ref is required")
		return
	}

	data, err := h.blobs.Open(ref)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
