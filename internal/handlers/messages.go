package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/attach"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/engine"
)

// AttachmentPayload carries one uploaded blob, base64-encoded.
type AttachmentPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	AuthorID    string              `json:"author_id"`
	Body        string              `json:"body"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
}

// UpdateMessageRequest represents the message edit request.
type UpdateMessageRequest struct {
	ActorID           string              `json:"actor_id"`
	Body              *string             `json:"body,omitempty"`
	AddAttachments    []AttachmentPayload `json:"add_attachments,omitempty"`
	RemoveAttachments []string            `json:"remove_attachments,omitempty"`
}

// DeleteMessageRequest represents the message delete request.
type DeleteMessageRequest struct {
	ActorID string `json:"actor_id"`
}

func decodeUploads(payloads []AttachmentPayload) ([]attach.Upload, error) {
	uploads := make([]attach.Upload, 0, len(payloads))
	for _, p := range payloads {
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, attach.Upload{
			Filename:    p.Filename,
			ContentType: p.ContentType,
			Data:        data,
		})
	}
	return uploads, nil
}

// PostMessage handles posting a message to a room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	authorID, err := uuid.Parse(req.AuthorID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid author_id format")
		return
	}

	uploads, err := decodeUploads(req.Attachments)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid attachment encoding")
		return
	}

	msg, err := h.svc.CreateMessage(r.Context(), authorID, roomID, req.Body, uploads)
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// UpdateMessage handles editing a message's body and attachments.
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}
	messageID := chi.URLParam(r, "mid")

	var req UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid actor_id format")
		return
	}

	uploads, err := decodeUploads(req.AddAttachments)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid attachment encoding")
		return
	}

	removals := make([]uuid.UUID, 0, len(req.RemoveAttachments))
	for _, idStr := range req.RemoveAttachments {
		id, err := uuid.Parse(idStr)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid attachment ID format")
			return
		}
		removals = append(removals, id)
	}

	msg, err := h.svc.UpdateMessage(r.Context(), actorID, roomID, messageID, engine.MessageUpdate{
		Body:              req.Body,
		AddAttachments:    uploads,
		RemoveAttachments: removals,
	})
	if err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// DeleteMessage handles deleting a message and releasing its attachments.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return
	}
	messageID := chi.URLParam(r, "mid")

	var req DeleteMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid actor_id format")
		return
	}

	if err := h.svc.DeleteMessage(r.Context(), actorID, roomID, messageID); err != nil {
		h.EngineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
