package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Room name validation: alphanumeric, hyphens, underscores, 1-50 chars
var roomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
	CreatedBy string `json:"created_by"`
}

// CreateRoomResponse represents the room creation response.
type CreateRoomResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// JoinRoomRequest represents the join request.
type JoinRoomRequest struct {
	UserID    string `json:"user_id"`
	InvitedBy string `json:"invited_by,omitempty"`
}

// CreateRoom handles room creation. The creator joins automatically.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !roomNameRegex.MatchString(req.Name) {
		h.Error(w, http.StatusBadRequest, "name must be 1-50 characters, alphanumeric with hyphens and underscores only")
		return
	}

	createdBy, err := uuid.Parse(req.CreatedBy)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid created_by ID format")
		return
	}

	room, err := h.registry.CreateRoom(r.Context(), req.Name, req.IsPrivate, createdBy)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, CreateRoomResponse{
		ID:        room.ID.String(),
		Name:      room.Name,
		IsPrivate: room.IsPrivate,
	})
}

// ListRooms handles listing public rooms ordered by recent activity.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o > 0 {
		offset = o
	}

	rooms, total, err := h.registry.ListPublicRooms(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
		"total": total,
	})
}

// JoinRoom handles adding a user to a room's membership.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id format")
		return
	}

	var invitedBy *uuid.UUID
	if req.InvitedBy != "" {
		inviter, err := uuid.Parse(req.InvitedBy)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid invited_by format")
			return
		}
		invitedBy = &inviter
	}

	if err := h.registry.Join(r.Context(), userID, roomID, invitedBy); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

// GetRoomMessages handles fetching messages from a room, newest first.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}

	var before time.Time
	if b := r.URL.Query().Get("before"); b != "" {
		ts, err := time.Parse(time.RFC3339, b)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = ts
	}

	messages, err := h.svc.ListMessages(r.Context(), roomID, limit, before)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID.String(),
		"messages": messages,
	})
}
