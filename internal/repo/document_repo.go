package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

const documentTable = "documents"

var documentColumns = []string{
	"id", "tenant_id", "collection", "name", "file_type", "size", "content_hash", "blob_key",
	"status", "stage", "progress", "char_count", "token_count", "chunk_count",
	"display_order", "active", "error_message", "ctime", "mtime", "processed_time",
}

var terminalStages = []interface{}{string(model.StageCompleted), string(model.StageFailed)}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":             doc.ID,
		"tenant_id":      doc.TenantID,
		"collection":     doc.Collection,
		"name":           doc.Name,
		"file_type":      doc.FileType,
		"size":           doc.Size,
		"content_hash":   doc.ContentHash,
		"blob_key":       doc.BlobKey,
		"status":         string(doc.Status),
		"stage":          string(doc.Stage),
		"progress":       doc.Progress,
		"char_count":     doc.CharCount,
		"token_count":    doc.TokenCount,
		"chunk_count":    doc.ChunkCount,
		"display_order":  doc.DisplayOrder,
		"active":         doc.Active,
		"error_message":  doc.ErrorMessage,
		"ctime":          doc.Ctime,
		"mtime":          doc.Mtime,
		"processed_time": doc.ProcessedTime,
	}
	sqlStr, args, err := builder.BuildInsert(documentTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// NextDisplayOrder places new uploads after everything the tenant already has.
func (r *DocumentRepo) NextDisplayOrder(ctx context.Context, tenantID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(display_order), 0) + 1 FROM documents WHERE tenant_id = $1`, tenantID).Scan(&next)
	return next, err
}

func (r *DocumentRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":        docID,
		"tenant_id": tenantID,
		"active":    true,
	}
	docs, err := r.query(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

func (r *DocumentRepo) List(ctx context.Context, tenantID string, offset, limit uint) ([]*model.Document, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"active":    true,
		"_orderby":  "display_order asc, ctime asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.query(ctx, where)
}

func (r *DocumentRepo) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM documents WHERE tenant_id = $1 AND active = TRUE`, tenantID).Scan(&n)
	return n, err
}

// SaveProgress persists the run columns of doc. The write is refused when the
// stored row already finished or carries higher progress, so concurrent
// readers never see progress go backwards. A refused write returns ErrConflict.
func (r *DocumentRepo) SaveProgress(ctx context.Context, doc *model.Document) error {
	where := map[string]interface{}{
		"id":           doc.ID,
		"active":       true,
		"progress <=":  doc.Progress,
		"stage not in": terminalStages,
	}
	update := map[string]interface{}{
		"status":         string(doc.Status),
		"stage":          string(doc.Stage),
		"progress":       doc.Progress,
		"char_count":     doc.CharCount,
		"token_count":    doc.TokenCount,
		"chunk_count":    doc.ChunkCount,
		"blob_key":       doc.BlobKey,
		"mtime":          doc.Mtime,
		"processed_time": doc.ProcessedTime,
	}
	return r.guardedUpdate(ctx, where, update)
}

// MarkFailed moves a running document to FAILED keeping its stored progress.
func (r *DocumentRepo) MarkFailed(ctx context.Context, doc *model.Document) error {
	where := map[string]interface{}{
		"id":           doc.ID,
		"active":       true,
		"stage not in": terminalStages,
	}
	update := map[string]interface{}{
		"status":        string(model.StatusFailed),
		"stage":         string(model.StageFailed),
		"error_message": doc.ErrorText(),
		"mtime":         doc.Mtime,
	}
	return r.guardedUpdate(ctx, where, update)
}

func (r *DocumentRepo) guardedUpdate(ctx context.Context, where, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate(documentTable, where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %v not updatable", appErr.ErrConflict, where["id"])
	}
	return nil
}

func (r *DocumentRepo) SoftDelete(ctx context.Context, tenantID, docID string, mtime int64) error {
	where := map[string]interface{}{
		"id":        docID,
		"tenant_id": tenantID,
		"active":    true,
	}
	update := map[string]interface{}{
		"active": false,
		"mtime":  mtime,
	}
	sqlStr, args, err := builder.BuildUpdate(documentTable, where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ListStale finds active runs that have not reported progress since before.
func (r *DocumentRepo) ListStale(ctx context.Context, before int64, limit uint) ([]*model.Document, error) {
	where := map[string]interface{}{
		"active":       true,
		"stage not in": terminalStages,
		"mtime <":      before,
		"_orderby":     "mtime asc",
		"_limit":       []uint{0, limit},
	}
	return r.query(ctx, where)
}

// PurgeDeleted hard deletes soft-deleted rows last touched before cutoff.
func (r *DocumentRepo) PurgeDeleted(ctx context.Context, before int64) (int64, error) {
	where := map[string]interface{}{
		"active":  false,
		"mtime <": before,
	}
	sqlStr, args, err := builder.BuildDelete(documentTable, where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepo) query(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect(documentTable, where, append([]string(nil), documentColumns...))
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var (
		doc    model.Document
		status string
		stage  string
		errMsg sql.NullString
	)
	if err := rows.Scan(
		&doc.ID, &doc.TenantID, &doc.Collection, &doc.Name, &doc.FileType, &doc.Size, &doc.ContentHash, &doc.BlobKey,
		&status, &stage, &doc.Progress, &doc.CharCount, &doc.TokenCount, &doc.ChunkCount,
		&doc.DisplayOrder, &doc.Active, &errMsg, &doc.Ctime, &doc.Mtime, &doc.ProcessedTime,
	); err != nil {
		return nil, err
	}
	doc.Status = model.Status(status)
	doc.Stage = model.Stage(stage)
	if errMsg.Valid {
		msg := errMsg.String
		doc.ErrorMessage = &msg
	}
	return &doc, nil
}
