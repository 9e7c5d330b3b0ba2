package attach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

// memBlobStore is an in-memory BlobStore so variant tests do not depend on
// image decoding or ffmpeg. Like DiskBlobStore it is content-addressed:
// identical bytes share one ref.
type memBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	renders int

	// barrier, when set, blocks a render after it has read the blob,
	// mimicking a render holding the file open across a purge. started
	// closes when the first render reaches the barrier.
	barrier   chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		blobs:   make(map[string][]byte),
		started: make(chan struct{}),
	}
}

func (m *memBlobStore) Store(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := "blob-" + hex.EncodeToString(sum[:8])
	m.mu.Lock()
	m.blobs[ref] = data
	m.mu.Unlock()
	return ref, nil
}

func (m *memBlobStore) Variant(ref string, kind models.AttachmentKind, spec models.VariantSpec) (models.ImageRef, error) {
	m.mu.Lock()
	_, ok := m.blobs[ref]
	m.mu.Unlock()
	if !ok {
		return models.ImageRef{}, errs.ErrNotFound
	}

	if m.barrier != nil {
		m.startOnce.Do(func() { close(m.started) })
		<-m.barrier
	}

	m.mu.Lock()
	m.renders++
	m.mu.Unlock()
	return models.ImageRef{
		Ref:         fmt.Sprintf("%s_%dx%d", ref, spec.Width, spec.Height),
		ContentType: "image/jpeg",
		Width:       spec.Width,
		Height:      spec.Height,
	}, nil
}

func (m *memBlobStore) Purge(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *memBlobStore, store.DataStore) {
	t.Helper()
	ds, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	blobs := newMemBlobStore()
	p := NewPipeline(ds, blobs, zerolog.Nop())
	t.Cleanup(p.Close)
	return p, blobs, ds
}

func attachUpload(t *testing.T, p *Pipeline, contentType string, data []byte) *models.Attachment {
	return attachTo(t, p, "m1", contentType, data)
}

func attachTo(t *testing.T, p *Pipeline, messageID, contentType string, data []byte) *models.Attachment {
	t.Helper()
	att, err := p.Attach(context.Background(), messageID, Upload{
		Filename:    "file.bin",
		ContentType: contentType,
		Data:        data,
	})
	require.NoError(t, err)
	return att
}

// Tiny but valid PNG header so content sniffing classifies as image.
var pngData = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
}

func Test_Attach_RejectsEmpty(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Attach(context.Background(), "m1", Upload{Filename: "x"})
	require.True(t, errs.IsValidation(err))
}

func Test_Attach_ClassifiesAndPersists(t *testing.T) {
	req := require.New(t)
	p, _, ds := newTestPipeline(t)

	att := attachUpload(t, p, "image/png", pngData)
	req.Equal(models.KindImage, att.Kind)
	req.NotEmpty(att.BlobRef)

	stored, err := ds.GetAttachment(context.Background(), att.ID)
	req.NoError(err)
	req.NotNil(stored)
	req.Equal(att.BlobRef, stored.BlobRef)
}

func Test_Variant_ComputedOnce(t *testing.T) {
	req := require.New(t)
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	att := attachUpload(t, p, "image/png", pngData)

	first, err := p.Variant(ctx, att.ID, models.VariantChat)
	req.NoError(err)
	req.EqualValues(150, first.Width)
	req.EqualValues(1, p.Computations())

	second, err := p.Variant(ctx, att.ID, models.VariantChat)
	req.NoError(err)
	req.Equal(first, second)
	req.EqualValues(1, p.Computations())

	// A different spec is its own cache entry.
	_, err = p.Variant(ctx, att.ID, models.VariantAvatar)
	req.NoError(err)
	req.EqualValues(2, p.Computations())
}

func Test_Variant_SharedAcrossConcurrentCallers(t *testing.T) {
	req := require.New(t)
	p, blobs, _ := newTestPipeline(t)
	ctx := context.Background()

	att := attachUpload(t, p, "image/png", pngData)
	blobs.barrier = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]models.ImageRef, callers)
	errc := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := p.Variant(ctx, att.ID, models.VariantChat)
			if err != nil {
				errc <- err
				return
			}
			results[i] = ref
		}(i)
	}

	close(blobs.barrier)
	wg.Wait()
	close(errc)
	for err := range errc {
		req.NoError(err)
	}
	req.EqualValues(1, p.Computations())
	for _, ref := range results {
		req.Equal(results[0], ref)
	}
}

func Test_Variant_NonResizableKind(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	att := attachUpload(t, p, "application/pdf", []byte("%PDF-1.4 not an image"))
	require.Equal(t, models.KindOther, att.Kind)

	_, err := p.Variant(context.Background(), att.ID, models.VariantChat)
	require.True(t, errs.IsValidation(err))
}

func Test_Variant_UnknownAttachment(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Variant(context.Background(), uuid.New(), models.VariantChat)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func Test_Variant_AfterPurge(t *testing.T) {
	req := require.New(t)
	p, blobs, _ := newTestPipeline(t)
	ctx := context.Background()

	att := attachUpload(t, p, "image/png", pngData)
	req.NoError(blobs.Purge(att.BlobRef))

	_, err := p.Variant(ctx, att.ID, models.VariantChat)
	req.ErrorIs(err, errs.ErrNotFound)
}

func Test_Variant_ConcurrentWithPurge(t *testing.T) {
	req := require.New(t)
	p, blobs, _ := newTestPipeline(t)
	ctx := context.Background()

	att := attachUpload(t, p, "image/png", pngData)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = blobs.Purge(att.BlobRef)
	}()

	ref, err := p.Variant(ctx, att.ID, models.VariantChat)
	wg.Wait()

	// The race resolves to exactly one of the two valid outcomes.
	if err != nil {
		req.ErrorIs(err, errs.ErrNotFound)
	} else {
		req.NotEmpty(ref.Ref)
	}
}

func Test_Release_InvalidatesCacheAndPurges(t *testing.T) {
	req := require.New(t)
	p, blobs, ds := newTestPipeline(t)
	ctx := context.Background()

	att := attachUpload(t, p, "image/png", pngData)
	_, err := p.Variant(ctx, att.ID, models.VariantChat)
	req.NoError(err)

	_, err = ds.RemoveAttachment(ctx, att.MessageID, att.ID)
	req.NoError(err)
	p.Release(att.ID, att.BlobRef)

	_, ok := p.CachedVariant(att.ID, models.VariantChat)
	req.False(ok)

	p.Close() // drain the purge queue
	blobs.mu.Lock()
	_, exists := blobs.blobs[att.BlobRef]
	blobs.mu.Unlock()
	req.False(exists)
}

func Test_Release_SharedBlobSurvives(t *testing.T) {
	req := require.New(t)
	p, blobs, ds := newTestPipeline(t)
	ctx := context.Background()

	// Identical bytes on two messages share one content-addressed blob.
	a1 := attachTo(t, p, "m1", "image/png", pngData)
	a2 := attachTo(t, p, "m2", "image/png", pngData)
	req.Equal(a1.BlobRef, a2.BlobRef)

	_, err := ds.RemoveAttachment(ctx, "m1", a1.ID)
	req.NoError(err)
	p.Release(a1.ID, a1.BlobRef)
	p.Close() // drain the purge queue

	// m2's attachment still references the bytes.
	blobs.mu.Lock()
	_, exists := blobs.blobs[a2.BlobRef]
	blobs.mu.Unlock()
	req.True(exists)

	// Dropping the last reference releases the blob.
	_, err = ds.RemoveAttachment(ctx, "m2", a2.ID)
	req.NoError(err)
	req.NoError(p.Purge(ctx, a2.BlobRef))
	blobs.mu.Lock()
	_, exists = blobs.blobs[a2.BlobRef]
	blobs.mu.Unlock()
	req.False(exists)
}

func Test_Release_DuringRenderNotCached(t *testing.T) {
	req := require.New(t)
	p, blobs, ds := newTestPipeline(t)
	ctx := context.Background()

	att := attachUpload(t, p, "image/png", pngData)
	blobs.barrier = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Variant(ctx, att.ID, models.VariantChat)
		done <- err
	}()
	<-blobs.started

	// Release lands while the render is in flight.
	_, err := ds.RemoveAttachment(ctx, att.MessageID, att.ID)
	req.NoError(err)
	p.Release(att.ID, att.BlobRef)
	close(blobs.barrier)

	// The render read the blob before the release, so it completes, but
	// its result must not repopulate the invalidated cache.
	req.NoError(<-done)
	_, ok := p.CachedVariant(att.ID, models.VariantChat)
	req.False(ok)
}
