package models

import (
	"time"

	"github.com/google/uuid"
)

// AttachmentKind classifies an attachment by its content type.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindVideo AttachmentKind = "video"
	KindAudio AttachmentKind = "audio"
	KindOther AttachmentKind = "other"
)

// Resizable reports whether display variants can be computed for this kind.
// Audio and other kinds render with a fixed icon instead.
func (k AttachmentKind) Resizable() bool {
	return k == KindImage || k == KindVideo
}

// Attachment binds a stored blob to a message.
type Attachment struct {
	ID          uuid.UUID      `json:"id"`
	MessageID   string         `json:"message_id"`
	BlobRef     string         `json:"blob_ref"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	Kind        AttachmentKind `json:"kind"`
	ByteSize    int64          `json:"byte_size"`
	CreatedAt   time.Time      `json:"created_at"`
}

// VariantSpec identifies a derived rendering of an image or video blob.
type VariantSpec struct {
	Width  uint `json:"w"`
	Height uint `json:"h"`
}

// The two variants the chat UI actually renders.
var (
	VariantChat   = VariantSpec{Width: 150, Height: 150}
	VariantAvatar = VariantSpec{Width: 50, Height: 50}
)

// ImageRef points at a rendered variant in the attachment store.
type ImageRef struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Width       uint   `json:"w"`
	Height      uint   `json:"h"`
}
