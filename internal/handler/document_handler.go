package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdesk/internal/model"
	"github.com/xxxsen/ragdesk/internal/pkg/errcode"
	"github.com/xxxsen/ragdesk/internal/pkg/response"
	"github.com/xxxsen/ragdesk/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type DocumentService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*model.Document, error)
	Get(ctx context.Context, tenantID, docID string) (*model.Document, error)
	List(ctx context.Context, tenantID string, offset, limit uint) (*service.DocumentPage, error)
	Delete(ctx context.Context, tenantID, docID string) error
	Original(ctx context.Context, tenantID, docID string) (*model.Document, []byte, error)
}

type DocumentHandler struct {
	documents    DocumentService
	maxFileBytes int64
}

func NewDocumentHandler(documents DocumentService, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxFileBytes: maxFileBytes}
}

// Upload accepts a multipart "file" and answers with the PENDING record.
func (h *DocumentHandler) Upload(c *gin.Context) {
	if h.maxFileBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileBytes+multipartOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxFileBytes))
			return
		}
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxFileBytes > 0 && file.Size > h.maxFileBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.maxFileBytes))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to read file")
		return
	}
	doc, err := h.documents.Submit(c.Request.Context(), service.SubmitInput{
		TenantID:   getTenantID(c),
		Collection: c.PostForm("collection"),
		FileName:   file.Filename,
		Data:       data,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// Download streams the stored original back with its detected content type.
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, data, err := h.documents.Original(c.Request.Context(), getTenantID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	contentType := mime.TypeByExtension("." + doc.FileType)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	c.Data(http.StatusOK, contentType, data)
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit := parseUint(c.Query("limit"), defaultListLimit)
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseUint(c.Query("offset"), 0)
	page, err := h.documents.List(c.Request.Context(), getTenantID(c), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, page)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getTenantID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id")})
}
