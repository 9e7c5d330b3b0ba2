package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// CreateUserRequest represents the user registration request.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CreateUserResponse represents the user registration response.
type CreateUserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateUser handles user registration.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Name, req.Email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.JSON(w, http.StatusCreated, CreateUserResponse{
		ID:   user.ID.String(),
		Name: user.Name,
	})
}

// SetAvatarRequest represents the avatar upload request.
type SetAvatarRequest struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // base64
}

// SetAvatarResponse carries the stored blob ref and its 50x50 variant.
type SetAvatarResponse struct {
	AvatarBlob string `json:"avatar_blob"`
	Thumbnail  string `json:"thumbnail"`
}

// SetAvatar stores a user's avatar image and renders its thumbnail.
func (h *Handler) SetAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	var req SetAvatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil || len(data) == 0 {
		h.Error(w, http.StatusBadRequest, "invalid avatar encoding")
		return
	}
	kind, _ := attach.Classify(req.ContentType, data)
	if kind != models.KindImage {
		h.Error(w, http.StatusUnprocessableEntity, "avatar must be an image")
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	ref, err := h.blobs.Store(data)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "blob storage unavailable")
		return
	}
	if err := h.store.SetUserAvatar(r.Context(), id, ref); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to set avatar")
		return
	}
	// The previous avatar blob is no longer referenced.
	if user.AvatarBlob != "" && user.AvatarBlob != ref {
		h.pipeline.PurgeLater(user.AvatarBlob)
	}

	variant, err := h.blobs.Variant(ref, models.KindImage, models.VariantAvatar)
	if err != nil {
		h.Error(w, http.StatusUnprocessableEntity, "avatar image could not be rendered")
		return
	}

	h.JSON(w, http.StatusOK, SetAvatarResponse{
		AvatarBlob: ref,
		Thumbnail:  "/blobs/" + variant.Ref,
	})
}

// GetUser handles fetching a user profile.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, user)
}
