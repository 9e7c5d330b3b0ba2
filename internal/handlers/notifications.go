package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MarkReadRequest represents the mark-read request.
type MarkReadRequest struct {
	UserID string `json:"user_id"`
}

// MarkRead clears a user's unread notifications for a room.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id format")
		return
	}

	if err := h.svc.MarkRead(r.Context(), userID, roomID); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// UnreadCount returns a user's unread badge for a room.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id format")
		return
	}

	count, err := h.svc.UnreadCount(r.Context(), userID, roomID)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID.String(),
		"room_id": roomID.String(),
		"count":   count,
	})
}
