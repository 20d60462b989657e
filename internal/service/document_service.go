package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/extract"
	"github.com/xxxsen/ragdesk/internal/filestore"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
	"github.com/xxxsen/ragdesk/internal/workerpool"
)

const queueFullMessage = "queue full: ingestion workers are saturated"

// DocumentRepository is the persistence surface the ingestion pipeline needs.
// repo.DocumentRepo implements it.
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	NextDisplayOrder(ctx context.Context, tenantID string) (int, error)
	GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error)
	List(ctx context.Context, tenantID string, offset, limit uint) ([]*model.Document, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
	SaveProgress(ctx context.Context, doc *model.Document) error
	MarkFailed(ctx context.Context, doc *model.Document) error
	SoftDelete(ctx context.Context, tenantID, docID string, mtime int64) error
	ListStale(ctx context.Context, before int64, limit uint) ([]*model.Document, error)
	PurgeDeleted(ctx context.Context, before int64) (int64, error)
}

// TaskRunner hands a run to background workers without blocking.
type TaskRunner interface {
	Submit(task func()) error
}

// TenantLookup returns the active tenant with the given id.
type TenantLookup interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
}

type Segmenter interface {
	Split(docID, text string) []model.TextSegment
}

type IngestOptions struct {
	MaxFileBytes           int64
	AllowedTypes           []string
	PersistEvery           int
	RollbackPartialVectors bool
	Dimension              int
	Ready                  vectorstore.ReadyConfig
}

type SubmitInput struct {
	TenantID   string
	Collection string
	FileName   string
	Data       []byte
}

type DocumentService struct {
	docs      DocumentRepository
	tenants   TenantLookup
	blobs     filestore.Store
	vectors   vectorstore.Store
	extractor extract.Extractor
	chunker   Segmenter
	embedder  ai.IEmbedder
	tokenizer ai.Tokenizer
	runner    TaskRunner
	opts      IngestOptions
	allowed   map[string]struct{}
	now       func() time.Time
	newID     func() string
}

func NewDocumentService(docs DocumentRepository, tenants TenantLookup, blobs filestore.Store, vectors vectorstore.Store, extractor extract.Extractor, chunker Segmenter, embedder ai.IEmbedder, tokenizer ai.Tokenizer, runner TaskRunner, opts IngestOptions) *DocumentService {
	if opts.PersistEvery <= 0 {
		opts.PersistEvery = 5
	}
	allowed := make(map[string]struct{}, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[extract.NormalizeType(t)] = struct{}{}
	}
	return &DocumentService{
		docs:      docs,
		tenants:   tenants,
		blobs:     blobs,
		vectors:   vectors,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		tokenizer: tokenizer,
		runner:    runner,
		opts:      opts,
		allowed:   allowed,
		now:       time.Now,
		newID:     newID,
	}
}

// Submit records a PENDING document and hands its run to the worker pool.
// The row is committed and re-read before the handoff, so a run never starts
// for a document a poller cannot see.
func (s *DocumentService) Submit(ctx context.Context, in SubmitInput) (*model.Document, error) {
	fileType, err := s.validateSubmit(in)
	if err != nil {
		return nil, err
	}
	collection, err := s.tenantCollection(ctx, in.TenantID, in.Collection)
	if err != nil {
		return nil, err
	}
	order, err := s.docs.NextDisplayOrder(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	doc := model.NewDocument(s.newID(), in.TenantID, collection, filepath.Base(in.FileName), fileType, int64(len(in.Data)), contentHash(in.Data), s.now())
	doc.DisplayOrder = order
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	stored, err := s.docs.GetByID(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("confirm document %s: %w", doc.ID, err)
	}

	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", stored.ID), zap.String("tenant_id", stored.TenantID))
	owned := *stored
	data := in.Data
	if err := s.runner.Submit(func() { s.run(&owned, data) }); err != nil {
		logger.Warn("ingestion run rejected", zap.Error(err))
		if ferr := stored.Fail(queueFullMessage, s.now()); ferr == nil {
			if merr := s.docs.MarkFailed(ctx, stored); merr != nil {
				logger.Error("mark rejected document failed", zap.Error(merr))
			}
		}
		if errors.Is(err, workerpool.ErrSaturated) || errors.Is(err, workerpool.ErrClosed) {
			return nil, fmt.Errorf("%w: %s", appErr.ErrTooMany, queueFullMessage)
		}
		return nil, err
	}
	logger.Info("document accepted", zap.String("name", stored.Name), zap.Int64("size", stored.Size))
	return stored, nil
}

// tenantCollection resolves the collection a tenant may write to. A requested
// collection other than the tenant's own is rejected.
func (s *DocumentService) tenantCollection(ctx context.Context, tenantID, requested string) (string, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return "", appErr.ErrUnauthorized
		}
		return "", err
	}
	requested = strings.TrimSpace(requested)
	if requested != "" && requested != tenant.Collection {
		logutil.GetLogger(ctx).Warn("upload to foreign collection rejected",
			zap.String("tenant_id", tenant.ID), zap.String("collection", requested))
		return "", fmt.Errorf("%w: collection %q does not belong to tenant", appErr.ErrForbidden, requested)
	}
	return tenant.Collection, nil
}

func (s *DocumentService) validateSubmit(in SubmitInput) (string, error) {
	if strings.TrimSpace(in.TenantID) == "" {
		return "", appErr.Invalid("tenant is required")
	}
	if strings.TrimSpace(in.FileName) == "" {
		return "", appErr.Invalid("file name is required")
	}
	if len(in.Data) == 0 {
		return "", appErr.Invalid("file is empty")
	}
	if s.opts.MaxFileBytes > 0 && int64(len(in.Data)) > s.opts.MaxFileBytes {
		return "", appErr.Invalid("file exceeds %d bytes", s.opts.MaxFileBytes)
	}
	fileType := extract.NormalizeType(filepath.Ext(in.FileName))
	if fileType == "" {
		return "", appErr.Invalid("file %q has no extension", in.FileName)
	}
	if _, ok := s.allowed[fileType]; !ok {
		return "", appErr.Invalid("file type %q is not allowed", fileType)
	}
	if reg, ok := s.extractor.(interface{ Supports(string) bool }); ok && !reg.Supports(fileType) {
		return "", appErr.Invalid("file type %q is not supported", fileType)
	}
	return fileType, nil
}

func (s *DocumentService) Get(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	if tenantID == "" || docID == "" {
		return nil, appErr.ErrNotFound
	}
	return s.docs.GetByID(ctx, tenantID, docID)
}

// Original returns the uploaded bytes. Documents whose run has not stored
// the blob yet report not found.
func (s *DocumentService) Original(ctx context.Context, tenantID, docID string) (*model.Document, []byte, error) {
	doc, err := s.Get(ctx, tenantID, docID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, blobKey(doc))
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, nil, fmt.Errorf("%w: original of document %s not stored", appErr.ErrNotFound, doc.ID)
		}
		return nil, nil, appErr.External("read blob", err)
	}
	return doc, data, nil
}

type DocumentPage struct {
	Items []*model.Document `json:"items"`
	Total int               `json:"total"`
}

func (s *DocumentService) List(ctx context.Context, tenantID string, offset, limit uint) (*DocumentPage, error) {
	docs, err := s.docs.List(ctx, tenantID, offset, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.docs.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	return &DocumentPage{Items: docs, Total: total}, nil
}

// Delete hides the row first, then removes the vectors and the blob. Once the
// row is inactive a run still working on it fails its next checkpoint and
// rolls back whatever it wrote after this cleanup.
func (s *DocumentService) Delete(ctx context.Context, tenantID, docID string) error {
	doc, err := s.Get(ctx, tenantID, docID)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.String("tenant_id", doc.TenantID))
	if err := s.docs.SoftDelete(ctx, doc.TenantID, doc.ID, s.now().UnixMilli()); err != nil {
		return err
	}
	removed, err := s.vectors.DeleteByFilter(ctx, doc.Collection, model.MetaDocumentID, doc.ID)
	if err != nil {
		logger.Error("delete vectors of hidden document failed", zap.Error(err))
		return appErr.External("delete vectors", err)
	}
	if err := s.blobs.Delete(ctx, blobKey(doc)); err != nil {
		logger.Error("delete blob of hidden document failed", zap.Error(err))
		return appErr.External("delete blob", err)
	}
	logger.Info("document deleted", zap.Int64("vectors", removed))
	return nil
}

// SweepStale fails runs that stopped reporting progress before the cutoff.
// They are not retried.
func (s *DocumentService) SweepStale(ctx context.Context, olderThan time.Duration, batch uint) (int, error) {
	cutoff := s.now().Add(-olderThan).UnixMilli()
	docs, err := s.docs.ListStale(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, doc := range docs {
		logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
		if err := doc.Fail("interrupted: ingestion run did not finish", s.now()); err != nil {
			continue
		}
		if err := s.docs.MarkFailed(ctx, doc); err != nil {
			if !appErr.IsConflict(err) {
				logger.Error("mark stale document failed", zap.Error(err))
			}
			continue
		}
		s.removeBlob(ctx, doc)
		swept++
	}
	return swept, nil
}

// PurgeDeleted hard deletes rows soft-deleted before the cutoff.
func (s *DocumentService) PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.docs.PurgeDeleted(ctx, s.now().Add(-olderThan).UnixMilli())
}

func (s *DocumentService) removeBlob(ctx context.Context, doc *model.Document) {
	if err := s.blobs.Delete(ctx, blobKey(doc)); err != nil {
		logutil.GetLogger(ctx).Warn("delete blob failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}
}

func blobKey(doc *model.Document) string {
	if doc.BlobKey != "" {
		return doc.BlobKey
	}
	return filestore.DocumentKey(doc.TenantID, doc.ID, doc.FileType)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
