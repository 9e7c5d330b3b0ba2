package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

func Test_Classify(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		kind     models.AttachmentKind
		mt       string
	}{
		{"declared image", "image/png", nil, models.KindImage, "image/png"},
		{"declared with params", "image/jpeg; charset=binary", nil, models.KindImage, "image/jpeg"},
		{"declared video", "video/mp4", nil, models.KindVideo, "video/mp4"},
		{"declared audio", "audio/mpeg", nil, models.KindAudio, "audio/mpeg"},
		{"declared document", "application/pdf", nil, models.KindOther, "application/pdf"},
		{"sniffed png", "", pngData, models.KindImage, "image/png"},
		{"sniffed text", "application/octet-stream", []byte("hello world"), models.KindOther, "text/plain"},
		{"garbage declaration", "not a type", []byte("hello"), models.KindOther, "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, mt := Classify(tt.declared, tt.data)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.mt, mt)
		})
	}
}
