package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
)

// memDocRepo mirrors the guards of repo.DocumentRepo.
type memDocRepo struct {
	mu    sync.Mutex
	docs  map[string]*model.Document
	saves map[string][]int
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{docs: map[string]*model.Document{}, saves: map[string][]int{}}
}

func (r *memDocRepo) Create(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return appErr.ErrConflict
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	r.saves[doc.ID] = append(r.saves[doc.ID], doc.Progress)
	return nil
}

func (r *memDocRepo) NextDisplayOrder(ctx context.Context, tenantID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	highest := 0
	for _, d := range r.docs {
		if d.TenantID == tenantID && d.DisplayOrder > highest {
			highest = d.DisplayOrder
		}
	}
	return highest + 1, nil
}

func (r *memDocRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[docID]
	if !ok || d.TenantID != tenantID || !d.Active {
		return nil, appErr.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDocRepo) List(ctx context.Context, tenantID string, offset, limit uint) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, d := range r.docs {
		if d.TenantID == tenantID && d.Active {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDocRepo) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	docs, _ := r.List(ctx, tenantID, 0, 0)
	return len(docs), nil
}

func (r *memDocRepo) SaveProgress(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[doc.ID]
	if !ok || !d.Active || d.Stage.Terminal() || d.Progress > doc.Progress {
		return fmt.Errorf("%w: document %s not updatable", appErr.ErrConflict, doc.ID)
	}
	d.Status = doc.Status
	d.Stage = doc.Stage
	d.Progress = doc.Progress
	d.CharCount = doc.CharCount
	d.TokenCount = doc.TokenCount
	d.ChunkCount = doc.ChunkCount
	d.BlobKey = doc.BlobKey
	d.Mtime = doc.Mtime
	d.ProcessedTime = doc.ProcessedTime
	r.saves[doc.ID] = append(r.saves[doc.ID], doc.Progress)
	return nil
}

func (r *memDocRepo) MarkFailed(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[doc.ID]
	if !ok || !d.Active || d.Stage.Terminal() {
		return fmt.Errorf("%w: document %s not updatable", appErr.ErrConflict, doc.ID)
	}
	msg := doc.ErrorText()
	d.Status = model.StatusFailed
	d.Stage = model.StageFailed
	d.ErrorMessage = &msg
	d.Mtime = doc.Mtime
	return nil
}

func (r *memDocRepo) SoftDelete(ctx context.Context, tenantID, docID string, mtime int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[docID]
	if !ok || d.TenantID != tenantID || !d.Active {
		return appErr.ErrNotFound
	}
	d.Active = false
	d.Mtime = mtime
	return nil
}

func (r *memDocRepo) ListStale(ctx context.Context, before int64, limit uint) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Document
	for _, d := range r.docs {
		if d.Active && !d.Stage.Terminal() && d.Mtime < before {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memDocRepo) PurgeDeleted(ctx context.Context, before int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, d := range r.docs {
		if !d.Active && d.Mtime < before {
			delete(r.docs, id)
			n++
		}
	}
	return n, nil
}

// stored reads a row regardless of its active flag.
func (r *memDocRepo) stored(id string) *model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (r *memDocRepo) progressLog(id string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.saves[id]...)
}

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Type() string { return "memory" }

func (b *memBlobs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrNotFound, key)
	}
	return v, nil
}

func (b *memBlobs) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memBlobs) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// inlineRunner runs tasks on the caller's goroutine.
type inlineRunner struct{}

func (inlineRunner) Submit(task func()) error {
	task()
	return nil
}

// deferredRunner holds tasks until drain is called.
type deferredRunner struct {
	tasks []func()
}

func (d *deferredRunner) Submit(task func()) error {
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *deferredRunner) drain() {
	tasks := d.tasks
	d.tasks = nil
	for _, task := range tasks {
		task()
	}
}

type rejectingRunner struct {
	err error
}

func (r rejectingRunner) Submit(task func()) error { return r.err }

// fakeEmbedder returns fixed vectors per text and a dim-4 default otherwise.
type fakeEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	calls     int
	failAfter int
	err       error
	onCall    func(call int)
	lastText  string
	lastTask  string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastText = text
	f.lastTask = taskType
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if f.err != nil && (f.failAfter == 0 || call > f.failAfter) {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, float32(len(text)%7) + 1, 0.5, 0.25}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

type fakeGenerator struct {
	reply string
	err   error
	calls int
	msgs  []ai.Message
}

func (f *fakeGenerator) Generate(ctx context.Context, msgs []ai.Message) (string, error) {
	f.calls++
	f.msgs = msgs
	return f.reply, f.err
}

type fakeResolver struct {
	tenants map[string]*model.Tenant
}

func (f *fakeResolver) Resolve(ctx context.Context, key string) (*model.Tenant, error) {
	t, ok := f.tenants[key]
	if !ok {
		return nil, appErr.ErrUnauthorized
	}
	return t, nil
}

type memTenantRepo struct {
	mu        sync.Mutex
	byID      map[string]*model.Tenant
	conflicts int
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{byID: map[string]*model.Tenant{}}
}

func (r *memTenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return appErr.ErrConflict
	}
	for _, t := range r.byID {
		if t.KeyPrefix == tenant.KeyPrefix {
			return appErr.ErrConflict
		}
	}
	cp := *tenant
	r.byID[tenant.ID] = &cp
	return nil
}

func (r *memTenantRepo) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTenantRepo) GetByKeyPrefix(ctx context.Context, prefix string) (*model.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.KeyPrefix == prefix {
			cp := *t
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

type staticTenants map[string]*model.Tenant

func (s staticTenants) Get(ctx context.Context, id string) (*model.Tenant, error) {
	t, ok := s[id]
	if !ok || !t.Active {
		return nil, appErr.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// gatedVectors pauses the writer after its pauseAt-th upsert until release is
// closed. afterDelete runs once, after the first DeleteByFilter.
type gatedVectors struct {
	*vectorstore.MemoryStore
	pauseAt     int32
	upserts     atomic.Int32
	reached     chan struct{}
	release     chan struct{}
	afterDelete func()
	deleted     atomic.Bool
}

func newGatedVectors(inner *vectorstore.MemoryStore, pauseAt int32) *gatedVectors {
	return &gatedVectors{
		MemoryStore: inner,
		pauseAt:     pauseAt,
		reached:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedVectors) Upsert(ctx context.Context, collection string, rec *model.EmbeddingRecord) error {
	if err := g.MemoryStore.Upsert(ctx, collection, rec); err != nil {
		return err
	}
	if g.upserts.Add(1) == g.pauseAt {
		close(g.reached)
		<-g.release
	}
	return nil
}

func (g *gatedVectors) DeleteByFilter(ctx context.Context, collection string, field string, value string) (int64, error) {
	n, err := g.MemoryStore.DeleteByFilter(ctx, collection, field, value)
	if g.deleted.CompareAndSwap(false, true) && g.afterDelete != nil {
		g.afterDelete()
	}
	return n, err
}
