package model

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Stage is the fine grained step of an ingestion run. Stages only move forward,
// except that any non-terminal stage may fall into StageFailed.
type Stage string

const (
	StagePending            Stage = "PENDING"
	StageUploading          Stage = "UPLOADING"
	StageExtractingText     Stage = "EXTRACTING_TEXT"
	StageCreatingChunks     Stage = "CREATING_CHUNKS"
	StageCreatingEmbeddings Stage = "CREATING_EMBEDDINGS"
	StageStoring            Stage = "STORING"
	StageCompleted          Stage = "COMPLETED"
	StageFailed             Stage = "FAILED"
)

var stageOrder = map[Stage]int{
	StagePending:            0,
	StageUploading:          1,
	StageExtractingText:     2,
	StageCreatingChunks:     3,
	StageCreatingEmbeddings: 4,
	StageStoring:            5,
	StageCompleted:          6,
}

var (
	ErrIllegalTransition = errors.New("illegal stage transition")
	ErrProgressRegressed = errors.New("progress regressed")
)

func (s Stage) Valid() bool {
	if s == StageFailed {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

func (s Stage) Status() Status {
	switch s {
	case StagePending:
		return StatusPending
	case StageCompleted:
		return StatusCompleted
	case StageFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// Transition reports whether a run may move from one stage to another.
// Re-entering the current stage is allowed so progress can be reported inside it.
func Transition(from, to Stage) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: unknown stage %s -> %s", ErrIllegalTransition, from, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrIllegalTransition, from)
	}
	if to == StageFailed {
		return nil
	}
	if from == to && from != StagePending {
		return nil
	}
	if stageOrder[to] != stageOrder[from]+1 {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

type Document struct {
	ID            string  `json:"id"`
	TenantID      string  `json:"tenant_id"`
	Collection    string  `json:"collection"`
	Name          string  `json:"name"`
	FileType      string  `json:"file_type"`
	Size          int64   `json:"size"`
	ContentHash   string  `json:"content_hash"`
	BlobKey       string  `json:"-"`
	Status        Status  `json:"status"`
	Stage         Stage   `json:"stage"`
	Progress      int     `json:"progress"`
	CharCount     int     `json:"char_count"`
	TokenCount    int     `json:"token_count"`
	ChunkCount    int     `json:"chunk_count"`
	DisplayOrder  int     `json:"display_order"`
	Active        bool    `json:"active"`
	ErrorMessage  *string `json:"error_message"`
	Ctime         int64   `json:"ctime"`
	Mtime         int64   `json:"mtime"`
	ProcessedTime int64   `json:"processed_time,omitempty"`
}

// NewDocument builds a fresh PENDING record with progress 0.
func NewDocument(id, tenantID, collection, name, fileType string, size int64, contentHash string, now time.Time) *Document {
	ts := now.UnixMilli()
	return &Document{
		ID:          id,
		TenantID:    tenantID,
		Collection:  collection,
		Name:        name,
		FileType:    fileType,
		Size:        size,
		ContentHash: contentHash,
		Status:      StatusPending,
		Stage:       StagePending,
		Progress:    0,
		Active:      true,
		Ctime:       ts,
		Mtime:       ts,
	}
}

// Advance moves the document to stage with the given progress.
func (d *Document) Advance(stage Stage, progress int, now time.Time) error {
	if stage == StageFailed {
		return fmt.Errorf("%w: use Fail to enter %s", ErrIllegalTransition, stage)
	}
	if err := Transition(d.Stage, stage); err != nil {
		return err
	}
	if progress < d.Progress {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegressed, d.Progress, progress)
	}
	if stage == StageCompleted && progress != 100 {
		return fmt.Errorf("%w: completed run must report 100, got %d", ErrIllegalTransition, progress)
	}
	if stage != StageCompleted && progress >= 100 {
		return fmt.Errorf("%w: progress %d before completion", ErrIllegalTransition, progress)
	}
	d.Stage = stage
	d.Status = stage.Status()
	d.Progress = progress
	d.Mtime = now.UnixMilli()
	return nil
}

// Complete finishes the run with the final counters.
func (d *Document) Complete(chars, tokens, chunks int, now time.Time) error {
	if err := d.Advance(StageCompleted, 100, now); err != nil {
		return err
	}
	d.CharCount = chars
	d.TokenCount = tokens
	d.ChunkCount = chunks
	d.ProcessedTime = now.UnixMilli()
	return nil
}

// Fail freezes progress and records msg.
func (d *Document) Fail(msg string, now time.Time) error {
	if err := Transition(d.Stage, StageFailed); err != nil {
		return err
	}
	if msg == "" {
		msg = "processing failed"
	}
	d.Stage = StageFailed
	d.Status = StatusFailed
	d.ErrorMessage = &msg
	d.Mtime = now.UnixMilli()
	return nil
}

func (d *Document) SoftDelete(now time.Time) {
	d.Active = false
	d.Mtime = now.UnixMilli()
}

// Validate checks the cross-field invariants of a persisted record.
func (d *Document) Validate() error {
	if d.Stage.Status() != d.Status {
		return fmt.Errorf("status %s does not match stage %s", d.Status, d.Stage)
	}
	if (d.Progress == 100) != (d.Status == StatusCompleted) {
		return fmt.Errorf("progress %d with status %s", d.Progress, d.Status)
	}
	if (d.ErrorMessage != nil) != (d.Status == StatusFailed) {
		return fmt.Errorf("error message presence does not match status %s", d.Status)
	}
	if d.Progress < 0 || d.Progress > 100 {
		return fmt.Errorf("progress %d out of range", d.Progress)
	}
	return nil
}

func (d *Document) ErrorText() string {
	if d.ErrorMessage == nil {
		return ""
	}
	return *d.ErrorMessage
}
