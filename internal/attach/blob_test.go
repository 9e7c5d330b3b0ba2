package attach

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newDiskStore(t *testing.T) *DiskBlobStore {
	t.Helper()
	s, err := NewDiskBlobStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func Test_DiskBlobStore_ContentAddressed(t *testing.T) {
	req := require.New(t)
	s := newDiskStore(t)

	data := []byte("same bytes")
	ref1, err := s.Store(data)
	req.NoError(err)
	ref2, err := s.Store(data)
	req.NoError(err)
	req.Equal(ref1, ref2)

	other, err := s.Store([]byte("different bytes"))
	req.NoError(err)
	req.NotEqual(ref1, other)

	got, err := s.Open(ref1)
	req.NoError(err)
	req.Equal(data, got)
}

func Test_DiskBlobStore_ImageVariant(t *testing.T) {
	req := require.New(t)
	s := newDiskStore(t)

	ref, err := s.Store(encodePNG(t, 400, 300))
	req.NoError(err)

	variant, err := s.Variant(ref, models.KindImage, models.VariantChat)
	req.NoError(err)
	req.Equal("image/jpeg", variant.ContentType)

	data, err := s.Open(variant.Ref)
	req.NoError(err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	req.NoError(err)

	// Thumbnail fits within 150x150 preserving aspect ratio.
	bounds := img.Bounds()
	req.LessOrEqual(bounds.Dx(), 150)
	req.LessOrEqual(bounds.Dy(), 150)

	// Small images pass through without upscaling.
	smallRef, err := s.Store(encodePNG(t, 40, 40))
	req.NoError(err)
	small, err := s.Variant(smallRef, models.KindImage, models.VariantChat)
	req.NoError(err)
	data, err = s.Open(small.Ref)
	req.NoError(err)
	img, err = jpeg.Decode(bytes.NewReader(data))
	req.NoError(err)
	req.Equal(40, img.Bounds().Dx())
}

func Test_DiskBlobStore_VariantOfPurgedBlob(t *testing.T) {
	req := require.New(t)
	s := newDiskStore(t)

	ref, err := s.Store(encodePNG(t, 100, 100))
	req.NoError(err)
	req.NoError(s.Purge(ref))

	_, err = s.Variant(ref, models.KindImage, models.VariantChat)
	req.ErrorIs(err, errs.ErrNotFound)
}

func Test_DiskBlobStore_PurgeRemovesVariants(t *testing.T) {
	req := require.New(t)
	s := newDiskStore(t)

	ref, err := s.Store(encodePNG(t, 100, 100))
	req.NoError(err)
	variant, err := s.Variant(ref, models.KindImage, models.VariantChat)
	req.NoError(err)

	req.NoError(s.Purge(ref))

	_, err = s.Open(ref)
	req.ErrorIs(err, errs.ErrNotFound)
	_, err = s.Open(variant.Ref)
	req.ErrorIs(err, errs.ErrNotFound)

	// Purging again is a no-op.
	req.NoError(s.Purge(ref))
}

func Test_DiskBlobStore_UndecodableImage(t *testing.T) {
	req := require.New(t)
	s := newDiskStore(t)

	ref, err := s.Store([]byte("this is not an image"))
	req.NoError(err)

	_, err = s.Variant(ref, models.KindImage, models.VariantChat)
	req.Error(err)
	req.NotErrorIs(err, errs.ErrNotFound)
}
