package attach

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// Classify maps a declared content type onto an attachment kind, sniffing
// the payload when the declaration is missing or unparseable.
func Classify(declared string, data []byte) (models.AttachmentKind, string) {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || mt == "" || mt == "application/octet-stream" {
		detected := mimetype.Detect(data)
		mt = detected.String()
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
	}

	switch {
	case strings.HasPrefix(mt, "image/"):
		return models.KindImage, mt
	case strings.HasPrefix(mt, "video/"):
		return models.KindVideo, mt
	case strings.HasPrefix(mt, "audio/"):
		return models.KindAudio, mt
	default:
		return models.KindOther, mt
	}
}
