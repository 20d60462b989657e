package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
		ok   bool
	}{
		{"pending to uploading", StagePending, StageUploading, true},
		{"uploading to extracting", StageUploading, StageExtractingText, true},
		{"extracting to chunking", StageExtractingText, StageCreatingChunks, true},
		{"chunking to embeddings", StageCreatingChunks, StageCreatingEmbeddings, true},
		{"embeddings to storing", StageCreatingEmbeddings, StageStoring, true},
		{"storing to completed", StageStoring, StageCompleted, true},
		{"storing progress", StageStoring, StageStoring, true},
		{"pending straight to completed", StagePending, StageCompleted, false},
		{"skip a stage", StageUploading, StageCreatingChunks, false},
		{"backwards", StageStoring, StageUploading, false},
		{"pending re-entry", StagePending, StagePending, false},
		{"fail from pending", StagePending, StageFailed, true},
		{"fail from storing", StageStoring, StageFailed, true},
		{"leave completed", StageCompleted, StageFailed, false},
		{"leave failed", StageFailed, StageUploading, false},
		{"unknown stage", Stage("BOGUS"), StageUploading, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, ErrIllegalTransition))
		})
	}
}

func TestNewDocumentIsPending(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	doc := NewDocument("d1", "t1", "c1", "a.txt", "txt", 10, "hash", now)
	require.Equal(t, StatusPending, doc.Status)
	require.Equal(t, StagePending, doc.Stage)
	require.Equal(t, 0, doc.Progress)
	require.True(t, doc.Active)
	require.Nil(t, doc.ErrorMessage)
	require.Equal(t, now.UnixMilli(), doc.Ctime)
	require.Equal(t, now.UnixMilli(), doc.Mtime)
	require.NoError(t, doc.Validate())
}

func TestDocumentLifecycle(t *testing.T) {
	now := time.Now()
	doc := NewDocument("d1", "t1", "c1", "a.txt", "txt", 10, "hash", now)

	require.NoError(t, doc.Advance(StageUploading, 10, now))
	require.Equal(t, StatusProcessing, doc.Status)
	require.NoError(t, doc.Advance(StageUploading, 20, now))
	require.ErrorIs(t, doc.Advance(StageExtractingText, 15, now), ErrProgressRegressed)
	require.NoError(t, doc.Advance(StageExtractingText, 30, now))
	require.ErrorIs(t, doc.Advance(StageExtractingText, 100, now), ErrIllegalTransition)
	require.NoError(t, doc.Advance(StageCreatingChunks, 50, now))
	require.NoError(t, doc.Advance(StageCreatingEmbeddings, 65, now))
	require.NoError(t, doc.Advance(StageStoring, 80, now))
	require.NoError(t, doc.Validate())

	later := now.Add(time.Second)
	require.NoError(t, doc.Complete(1200, 300, 4, later))
	require.Equal(t, StatusCompleted, doc.Status)
	require.Equal(t, 100, doc.Progress)
	require.Equal(t, later.UnixMilli(), doc.ProcessedTime)
	require.NoError(t, doc.Validate())

	require.ErrorIs(t, doc.Fail("late", later), ErrIllegalTransition)
}

func TestDocumentFailFreezesProgress(t *testing.T) {
	now := time.Now()
	doc := NewDocument("d1", "t1", "c1", "a.txt", "txt", 10, "hash", now)
	require.NoError(t, doc.Advance(StageUploading, 20, now))
	require.NoError(t, doc.Fail("blob store down", now))
	require.Equal(t, StatusFailed, doc.Status)
	require.Equal(t, 20, doc.Progress)
	require.Equal(t, "blob store down", doc.ErrorText())
	require.NoError(t, doc.Validate())
	require.ErrorIs(t, doc.Advance(StageExtractingText, 30, now), ErrIllegalTransition)
}

func TestAdvanceRejectsFailedStage(t *testing.T) {
	doc := NewDocument("d1", "t1", "c1", "a.txt", "txt", 10, "hash", time.Now())
	require.ErrorIs(t, doc.Advance(StageFailed, 0, time.Now()), ErrIllegalTransition)
}
