package attach

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/nfnt/resize"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

// BlobStore is the object-storage capability the pipeline renders against.
type BlobStore interface {
	// Store writes a blob and returns its ref.
	Store(data []byte) (string, error)
	// Variant renders a resized variant of an image or video blob.
	// Returns errs.ErrNotFound when the blob has been purged.
	Variant(ref string, kind models.AttachmentKind, spec models.VariantSpec) (models.ImageRef, error)
	// Purge releases a blob and every variant rendered from it.
	Purge(ref string) error
}

// DiskBlobStore keeps blobs content-addressed on the local filesystem and
// renders JPEG thumbnails next to them.
type DiskBlobStore struct {
	dir string
}

// NewDiskBlobStore creates the blob directory if needed.
func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if dir == "" {
		dir = "./data/blobs"
	}
	if err := os.MkdirAll(filepath.Join(dir, "variants"), 0755); err != nil {
		return nil, err
	}
	return &DiskBlobStore{dir: dir}, nil
}

// Ping verifies the blob directory is still reachable.
func (s *DiskBlobStore) Ping() error {
	_, err := os.Stat(s.dir)
	return err
}

// Store writes the blob under its content hash. Storing the same bytes
// twice yields the same ref.
func (s *DiskBlobStore) Store(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])
	path := s.blobPath(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return ref, nil
}

// Variant renders a resized rendering of the blob. Image blobs are decoded
// and thumbnailed in-process; video blobs go through ffmpeg for a scaled
// first frame. A purged blob fails with errs.ErrNotFound.
func (s *DiskBlobStore) Variant(ref string, kind models.AttachmentKind, spec models.VariantSpec) (models.ImageRef, error) {
	variantRef := fmt.Sprintf("%s_%dx%d", ref, spec.Width, spec.Height)
	variantPath := s.variantPath(variantRef)

	if _, err := os.Stat(variantPath); err == nil {
		return models.ImageRef{Ref: variantRef, ContentType: "image/jpeg", Width: spec.Width, Height: spec.Height}, nil
	}

	var rendered []byte
	var err error
	switch kind {
	case models.KindVideo:
		rendered, err = renderVideoFrame(s.blobPath(ref), spec)
	default:
		rendered, err = s.renderImage(ref, spec)
	}
	if err != nil {
		return models.ImageRef{}, err
	}

	if err := os.WriteFile(variantPath, rendered, 0644); err != nil {
		return models.ImageRef{}, err
	}
	return models.ImageRef{Ref: variantRef, ContentType: "image/jpeg", Width: spec.Width, Height: spec.Height}, nil
}

func (s *DiskBlobStore) renderImage(ref string, spec models.VariantSpec) ([]byte, error) {
	f, err := os.Open(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode blob %s: %w", ref, err)
	}

	thumb := resize.Thumbnail(spec.Width, spec.Height, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderVideoFrame extracts a scaled first frame with ffmpeg.
func renderVideoFrame(path string, spec models.VariantSpec) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	cmd := exec.Command("ffmpeg", "-i", path, "-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", spec.Width), "-f", "image2pipe", "-vcodec", "mjpeg", "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction: %w", err)
	}
	return out, nil
}

// Open returns the raw bytes of a blob or variant.
func (s *DiskBlobStore) Open(ref string) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(ref))
	if err == nil {
		return data, nil
	}
	data, err = os.ReadFile(s.variantPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Purge removes the blob and any variants rendered from it. Purging a
// missing blob is a no-op.
func (s *DiskBlobStore) Purge(ref string) error {
	if err := os.Remove(s.blobPath(ref)); err != nil && !os.IsNotExist(err) {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "variants", ref+"_*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *DiskBlobStore) blobPath(ref string) string {
	return filepath.Join(s.dir, ref)
}

func (s *DiskBlobStore) variantPath(ref string) string {
	return filepath.Join(s.dir, "variants", ref+".jpg")
}
