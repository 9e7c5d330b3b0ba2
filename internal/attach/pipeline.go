// Package attach resolves uploaded blobs into stored attachments and lazily
// computes display variants, cached per (attachment, spec).
package attach

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/errs"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/metrics"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/models"
	"github.com/BinhNguyenDang/Demo-Turbochat/internal/store"
)

// Upload is a raw blob handed in by the HTTP layer.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Pipeline stores uploads, classifies them, and serves cached variants.
type Pipeline struct {
	store  store.DataStore
	blobs  BlobStore
	logger zerolog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]models.ImageRef
	// gen bumps on Release so an in-flight render for a released
	// attachment cannot re-populate the cache behind the invalidation.
	gen map[uuid.UUID]uint64

	computations atomic.Int64

	purgeCh chan string
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPipeline creates a Pipeline and starts its background purge worker.
func NewPipeline(ds store.DataStore, blobs BlobStore, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{
		store:   ds,
		blobs:   blobs,
		logger:  logger.With().Str("component", "attach").Logger(),
		cache:   make(map[string]models.ImageRef),
		gen:     make(map[uuid.UUID]uint64),
		purgeCh: make(chan string, 128),
	}
	p.wg.Add(1)
	go p.purgeWorker()
	return p
}

// Attach stores a raw upload, classifies it, and binds it to the message.
func (p *Pipeline) Attach(ctx context.Context, messageID string, up Upload) (*models.Attachment, error) {
	if len(up.Data) == 0 {
		return nil, errs.Validation("attachment", "is empty")
	}

	ref, err := p.blobs.Store(up.Data)
	if err != nil {
		return nil, errs.Transient(err)
	}

	kind, contentType := Classify(up.ContentType, up.Data)
	att := &models.Attachment{
		ID:          uuid.New(),
		MessageID:   messageID,
		BlobRef:     ref,
		Filename:    up.Filename,
		ContentType: contentType,
		Kind:        kind,
		ByteSize:    int64(len(up.Data)),
	}
	if err := p.store.AddAttachment(ctx, att); err != nil {
		return nil, err
	}
	metrics.AttachmentsStored.WithLabelValues(string(kind)).Inc()
	return att, nil
}

// Variant returns the rendered variant for an attachment, computing it at
// most once per (attachment, spec). Concurrent callers for an uncached spec
// share a single computation.
func (p *Pipeline) Variant(ctx context.Context, attachmentID uuid.UUID, spec models.VariantSpec) (models.ImageRef, error) {
	key := variantKey(attachmentID, spec)

	p.mu.RLock()
	ref, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		metrics.VariantCacheHits.Inc()
		return ref, nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		// Re-check under singleflight: a just-finished flight may have
		// populated the cache between the read above and here.
		p.mu.RLock()
		cached, ok := p.cache[key]
		gen := p.gen[attachmentID]
		p.mu.RUnlock()
		if ok {
			return cached, nil
		}

		att, err := p.store.GetAttachment(ctx, attachmentID)
		if err != nil {
			return nil, err
		}
		if att == nil {
			return nil, errs.ErrNotFound
		}
		if !att.Kind.Resizable() {
			return nil, errs.Validation("kind", "has no variants")
		}

		metrics.VariantCacheMisses.Inc()
		p.computations.Add(1)
		rendered, err := p.blobs.Variant(att.BlobRef, att.Kind, spec)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		if p.gen[attachmentID] == gen {
			p.cache[key] = rendered
		}
		p.mu.Unlock()
		return rendered, nil
	})
	if err != nil {
		return models.ImageRef{}, err
	}
	return v.(models.ImageRef), nil
}

// CachedVariant returns an already-computed variant without triggering a
// computation. Broadcast rendering uses it to decide between a thumbnail
// URL and a placeholder.
func (p *Pipeline) CachedVariant(attachmentID uuid.UUID, spec models.VariantSpec) (models.ImageRef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ref, ok := p.cache[variantKey(attachmentID, spec)]
	return ref, ok
}

// Computations reports how many variant renders have actually run.
func (p *Pipeline) Computations() int64 {
	return p.computations.Load()
}

// Release drops the variant cache for an attachment and schedules its blob
// for background purge. Used when an attachment or its message is removed.
func (p *Pipeline) Release(attachmentID uuid.UUID, blobRef string) {
	p.invalidate(attachmentID)
	p.PurgeLater(blobRef)
}

// Purge releases a blob synchronously.
func (p *Pipeline) Purge(ctx context.Context, blobRef string) error {
	return p.releaseBlob(ctx, blobRef)
}

// PurgeLater defers blob release to the background worker. Failure to purge
// is logged, never fatal.
func (p *Pipeline) PurgeLater(blobRef string) {
	select {
	case p.purgeCh <- blobRef:
	default:
		// Worker queue is full; purge inline rather than drop the release.
		if err := p.releaseBlob(context.Background(), blobRef); err != nil {
			metrics.PurgeFailures.Inc()
			p.logger.Error().Err(err).Str("blob_ref", blobRef).Msg("inline purge failed")
		}
	}
}

// releaseBlob purges a blob only once nothing references it. Identical
// uploads share one content-addressed ref, so releasing one attachment
// must not destroy another's bytes.
func (p *Pipeline) releaseBlob(ctx context.Context, blobRef string) error {
	refs, err := p.store.CountBlobRefs(ctx, blobRef)
	if err != nil {
		return err
	}
	if refs > 0 {
		return nil
	}
	return p.blobs.Purge(blobRef)
}

// Close drains the purge queue and stops the worker.
func (p *Pipeline) Close() {
	p.once.Do(func() { close(p.purgeCh) })
	p.wg.Wait()
}

func (p *Pipeline) purgeWorker() {
	defer p.wg.Done()
	for ref := range p.purgeCh {
		if err := p.releaseBlob(context.Background(), ref); err != nil {
			metrics.PurgeFailures.Inc()
			p.logger.Error().Err(err).Str("blob_ref", ref).Msg("background purge failed")
		}
	}
}

func (p *Pipeline) invalidate(attachmentID uuid.UUID) {
	prefix := attachmentID.String()
	p.mu.Lock()
	p.gen[attachmentID]++
	for key := range p.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(p.cache, key)
		}
	}
	p.mu.Unlock()
}

func variantKey(attachmentID uuid.UUID, spec models.VariantSpec) string {
	return fmt.Sprintf("%s:%dx%d", attachmentID, spec.Width, spec.Height)
}
