package service

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/trace"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/filestore"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
)

// Progress checkpoints of a run.
const (
	progressUploadStart   = 10
	progressUploadDone    = 20
	progressExtractStart  = 30
	progressExtractDone   = 45
	progressChunkStart    = 50
	progressChunkDone     = 60
	progressEmbedStart    = 65
	progressStoreCeiling  = 95
	progressStoreInterval = progressStoreCeiling - progressEmbedStart
)

type runState struct {
	blobWritten    bool
	vectorsWritten int
}

// run owns doc until it reaches a terminal stage. It is detached from the
// request that submitted the document.
func (s *DocumentService) run(doc *model.Document, data []byte) {
	ctx := trace.WithTraceId(context.Background(), "ingest-"+doc.ID)
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID), zap.String("tenant_id", doc.TenantID))
	state := &runState{}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ingestion run panicked", zap.Any("panic", r))
			s.fail(ctx, doc, fmt.Sprintf("internal error: %v", r), state)
		}
	}()
	if err := s.process(ctx, doc, data, state); err != nil {
		logger.Error("ingestion run failed", zap.String("stage", string(doc.Stage)), zap.Int("progress", doc.Progress), zap.Error(err))
		s.fail(ctx, doc, err.Error(), state)
		return
	}
	logger.Info("ingestion run completed",
		zap.Int("chars", doc.CharCount),
		zap.Int("tokens", doc.TokenCount),
		zap.Int("chunks", doc.ChunkCount))
}

func (s *DocumentService) process(ctx context.Context, doc *model.Document, data []byte, state *runState) error {
	logger := logutil.GetLogger(ctx)

	if err := s.checkpoint(ctx, doc, model.StageUploading, progressUploadStart); err != nil {
		return err
	}
	key := filestore.DocumentKey(doc.TenantID, doc.ID, doc.FileType)
	if err := s.blobs.Put(ctx, key, data, contentTypeOf(doc.FileType)); err != nil {
		return appErr.External("store blob", err)
	}
	state.blobWritten = true
	doc.BlobKey = key
	if err := s.checkpoint(ctx, doc, model.StageUploading, progressUploadDone); err != nil {
		return err
	}

	if err := s.checkpoint(ctx, doc, model.StageExtractingText, progressExtractStart); err != nil {
		return err
	}
	text, err := s.extractor.Extract(data, doc.FileType)
	if err != nil {
		return appErr.Processing("extract text", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: extract text: document has no extractable text", appErr.ErrProcessing)
	}
	doc.CharCount = utf8.RuneCountInString(text)
	doc.TokenCount = s.tokenizer.EstimateTokens(text)
	if err := s.checkpoint(ctx, doc, model.StageExtractingText, progressExtractDone); err != nil {
		return err
	}

	if err := s.checkpoint(ctx, doc, model.StageCreatingChunks, progressChunkStart); err != nil {
		return err
	}
	segments := s.chunker.Split(doc.ID, text)
	if len(segments) == 0 {
		return fmt.Errorf("%w: chunk text: no segments produced", appErr.ErrProcessing)
	}
	doc.ChunkCount = len(segments)
	if err := s.checkpoint(ctx, doc, model.StageCreatingChunks, progressChunkDone); err != nil {
		return err
	}

	if err := vectorstore.EnsureCollection(ctx, s.vectors, doc.Collection, s.opts.Dimension, s.opts.Ready); err != nil {
		return appErr.External("prepare collection", err)
	}
	if err := s.checkpoint(ctx, doc, model.StageCreatingEmbeddings, progressEmbedStart); err != nil {
		return err
	}

	total := len(segments)
	for i, seg := range segments {
		vec, err := s.embedder.Embed(ctx, seg.Content, ai.TaskRetrievalDocument)
		if err != nil {
			return appErr.External(fmt.Sprintf("embed chunk %d", seg.Index), err)
		}
		rec := &model.EmbeddingRecord{
			Vector:       vec,
			Text:         seg.Content,
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			ChunkIndex:   seg.Index,
			TenantID:     doc.TenantID,
		}
		if err := s.vectors.Upsert(ctx, doc.Collection, rec); err != nil {
			return appErr.External(fmt.Sprintf("store chunk %d", seg.Index), err)
		}
		state.vectorsWritten++
		logger.Debug("chunk stored", zap.Int("chunk_index", seg.Index), zap.Int("dim", len(vec)))

		done := i + 1
		if done%s.opts.PersistEvery != 0 && done != total {
			continue
		}
		progress := progressEmbedStart + progressStoreInterval*done/total
		if err := s.checkpoint(ctx, doc, model.StageStoring, progress); err != nil {
			return err
		}
	}

	final := *doc
	if err := final.Complete(doc.CharCount, doc.TokenCount, doc.ChunkCount, s.now()); err != nil {
		return err
	}
	if err := s.docs.SaveProgress(ctx, &final); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	*doc = final
	return nil
}

func (s *DocumentService) checkpoint(ctx context.Context, doc *model.Document, stage model.Stage, progress int) error {
	if err := doc.Advance(stage, progress, s.now()); err != nil {
		return err
	}
	if err := s.docs.SaveProgress(ctx, doc); err != nil {
		return fmt.Errorf("persist %s at %d: %w", stage, progress, err)
	}
	logutil.GetLogger(ctx).Info("ingestion progress", zap.String("stage", string(stage)), zap.Int("progress", progress))
	return nil
}

// fail records msg on the document and compensates best effort. A document
// deleted while running loses the vectors it wrote regardless of the rollback
// switch, since nothing else would ever remove them.
func (s *DocumentService) fail(ctx context.Context, doc *model.Document, msg string, state *runState) {
	logger := logutil.GetLogger(ctx)
	rollback := s.opts.RollbackPartialVectors
	if err := doc.Fail(msg, s.now()); err != nil {
		logger.Error("mark document failed", zap.Error(err))
		return
	}
	if err := s.docs.MarkFailed(ctx, doc); err != nil {
		if !appErr.IsConflict(err) {
			logger.Error("persist failure", zap.Error(err))
		}
		if _, gerr := s.docs.GetByID(ctx, doc.TenantID, doc.ID); appErr.IsNotFound(gerr) {
			logger.Info("document deleted during run, discarding its output")
			rollback = true
		}
	}
	if state.blobWritten {
		s.removeBlob(ctx, doc)
	}
	if state.vectorsWritten == 0 {
		return
	}
	if !rollback {
		logger.Warn("partial vectors kept", zap.Int("written", state.vectorsWritten))
		return
	}
	removed, err := s.vectors.DeleteByFilter(ctx, doc.Collection, model.MetaDocumentID, doc.ID)
	if err != nil {
		logger.Warn("roll back partial vectors failed", zap.Error(err))
		return
	}
	logger.Warn("partial vectors rolled back", zap.Int64("removed", removed))
}

func contentTypeOf(fileType string) string {
	if ct := mime.TypeByExtension("." + fileType); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
