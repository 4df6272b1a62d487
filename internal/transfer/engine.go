package transfer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parnexcodes/ferry/internal/logging"
	"github.com/parnexcodes/ferry/internal/transport"
	"golang.org/x/sync/semaphore"
)

var (
	ErrEntryNotFound   = errors.New("entry not found")
	ErrTransferActive  = errors.New("transfer already in progress")
	ErrNotUploading    = errors.New("entry is not uploading")
	ErrNotPaused       = errors.New("entry is not paused")
	ErrAlreadyComplete = errors.New("entry already uploaded")
)

// Cancellation causes
var (
	errPaused  = errors.New("transfer paused")
	errRemoved = errors.New("entry removed")
)

// cancelHandle is the per-entry cancellation handle shared between the
// coordinator and the running transfer.
type cancelHandle struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newCancelHandle(parent context.Context) *cancelHandle {
	ctx, cancel := context.WithCancelCause(parent)
	return &cancelHandle{ctx: ctx, cancel: cancel}
}

// Engine is the transfer coordinator. It is the only writer of the registry
// and owns the map of live cancellation handles.
type Engine struct {
	ctx       context.Context
	cfg       Config
	callbacks Callbacks
	registry  *Registry
	single    *SingleShot
	chunked   *Chunked
	remover   *Remover
	sem       *semaphore.Weighted

	mu         sync.Mutex
	handles    map[string]*cancelHandle
	validation *ValidationError
	wg         sync.WaitGroup

	// notifyMu is taken before mu is released, so callbacks observe
	// registry writes in the order they were made.
	notifyMu sync.Mutex
}

// New creates an engine. Cancelling ctx cancels every running transfer, which
// then ends paused.
func New(ctx context.Context, cfg Config, t Transport, callbacks Callbacks) *Engine {
	e := &Engine{
		ctx:       ctx,
		cfg:       cfg,
		callbacks: callbacks,
		registry:  NewRegistry(),
		single:    NewSingleShot(t, cfg.Endpoints.Upload, cfg.Timeout, cfg.Options, cfg.TargetPath),
		chunked:   NewChunked(t, cfg.Endpoints.Chunk, cfg.Endpoints.Merge, cfg.ChunkSize),
		handles:   make(map[string]*cancelHandle),
	}
	if cfg.Endpoints.Remove != "" {
		e.remover = NewRemover(t, cfg.Endpoints.Remove, cfg.RemoveMode)
	}
	if cfg.Concurrency > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}
	logging.ConcurrencySettings(cfg.Concurrency)
	return e
}

// Add validates files and tracks the accepted ones as pending entries, starting
// them when AutoStart is set. The returned error is the last validation
// violation; accepted files are tracked even when it is non-nil.
func (e *Engine) Add(files []SourceFile) ([]Entry, error) {
	e.mu.Lock()
	accepted, verr := Validate(files, e.registry.Len(), e.cfg.Limits)
	e.validation = verr

	added := make([]Entry, 0, len(accepted))
	for _, file := range accepted {
		entry := Entry{
			ID:     uuid.NewString(),
			File:   file,
			Status: StatusPending,
		}
		e.registry.Put(entry)
		added = append(added, entry)
	}
	e.unlockAndNotify(added...)

	if e.cfg.AutoStart {
		for i, entry := range added {
			if err := e.Start(entry.ID); err != nil {
				logging.ErrorContext("auto_start", err, map[string]interface{}{
					"id": entry.ID,
				})
				continue
			}
			if current, ok := e.registry.Get(entry.ID); ok {
				added[i] = current
			}
		}
	}

	if verr != nil {
		return added, verr
	}
	return added, nil
}

// Start moves a pending, paused or failed entry to uploading and launches its transfer.
func (e *Engine) Start(id string) error {
	e.mu.Lock()
	entry, h, err := e.startLocked(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	e.unlockAndNotify(entry)
	go e.run(entry, h)
	return nil
}

// Resume restarts a paused entry. Chunked transfers begin again at chunk 0.
func (e *Engine) Resume(id string) error {
	e.mu.Lock()
	current, ok := e.registry.Get(id)
	if !ok {
		e.mu.Unlock()
		return ErrEntryNotFound
	}
	if current.Status != StatusPaused {
		e.mu.Unlock()
		return ErrNotPaused
	}
	entry, h, err := e.startLocked(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	e.unlockAndNotify(entry)
	go e.run(entry, h)
	return nil
}

func (e *Engine) startLocked(id string) (Entry, *cancelHandle, error) {
	entry, ok := e.registry.Get(id)
	if !ok {
		return Entry{}, nil, ErrEntryNotFound
	}
	if _, active := e.handles[id]; active {
		return Entry{}, nil, ErrTransferActive
	}
	if entry.Status == StatusSuccess {
		return Entry{}, nil, ErrAlreadyComplete
	}

	h := newCancelHandle(e.ctx)
	e.handles[id] = h

	entry.Status = StatusUploading
	entry.Error = ""
	if e.cfg.Chunked {
		entry.TotalChunks = e.chunked.TotalChunks(entry.File.Size)
	} else {
		entry.Progress = 0
	}
	e.registry.Put(entry)
	e.wg.Add(1)

	return entry, h, nil
}

// Pause triggers the cancellation handle of an uploading entry.
func (e *Engine) Pause(id string) error {
	e.mu.Lock()
	h, active := e.handles[id]
	if !active {
		_, exists := e.registry.Get(id)
		e.mu.Unlock()
		if !exists {
			return ErrEntryNotFound
		}
		return ErrNotUploading
	}

	delete(e.handles, id)
	h.cancel(errPaused)

	entry, _ := e.registry.Get(id)
	entry.Status = StatusPaused
	entry.Error = ""
	e.registry.Put(entry)

	logging.TransferPaused(entry.ID, entry.File.Name)
	e.unlockAndNotify(entry)
	return nil
}

// Remove cancels any running transfer of id, optionally asks the server to
// delete an uploaded copy, and drops the entry. Removing an unknown id is a
// no-op. It reports whether the entry existed.
func (e *Engine) Remove(ctx context.Context, id string, cleanup bool) bool {
	e.mu.Lock()
	entry, ok := e.registry.Get(id)
	e.releaseLocked(id)
	e.mu.Unlock()

	if !ok {
		return false
	}

	if cleanup && entry.Status == StatusSuccess && e.remover != nil {
		if err := e.remover.Remove(ctx, entry); err != nil {
			logging.CleanupFailed(entry.ID, entry.File.Name, err)
		}
	}

	e.mu.Lock()
	e.releaseLocked(id)
	e.registry.Delete(id)
	e.mu.Unlock()
	return true
}

// Clear removes every tracked entry and returns the snapshots taken just before
// removal. Cleanup requests are sent one after another.
func (e *Engine) Clear(ctx context.Context, cleanup bool) []Entry {
	var removed []Entry
	for _, entry := range e.registry.List() {
		if e.Remove(ctx, entry.ID, cleanup) {
			removed = append(removed, entry)
		}
	}
	return removed
}

func (e *Engine) releaseLocked(id string) {
	if h, active := e.handles[id]; active {
		delete(e.handles, id)
		h.cancel(errRemoved)
	}
}

// Entries returns snapshots of all tracked entries in admission order
func (e *Engine) Entries() []Entry {
	return e.registry.List()
}

// Entry returns a snapshot of one entry
func (e *Engine) Entry(id string) (Entry, bool) {
	return e.registry.Get(id)
}

// Active reports whether a cancellation handle is registered for id
func (e *Engine) Active(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handles[id]
	return ok
}

// ValidationError returns the violation surfaced by the most recent Add
func (e *Engine) ValidationError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.validation == nil {
		return nil
	}
	return e.validation
}

// Wait blocks until every launched transfer has returned
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(entry Entry, h *cancelHandle) {
	defer e.wg.Done()

	if e.sem != nil {
		if err := e.sem.Acquire(h.ctx, 1); err != nil {
			e.finish(entry, h, nil, transport.NewCancelledError("transfer cancelled", err), 0)
			return
		}
		defer e.sem.Release(1)
	}

	file, release, err := entry.File.acquire()
	if err != nil {
		e.finish(entry, h, nil, err, 0)
		return
	}
	defer release()

	logging.TransferStart(entry.ID, file.Name, file.Size, e.cfg.Chunked)
	start := time.Now()

	progress := func(percent int) {
		e.updateProgress(entry.ID, h, percent)
	}

	var result *UploadResponse
	if e.cfg.Chunked {
		result, err = e.chunked.Upload(h.ctx, entry.ID, file, progress, func(index, total int) {
			e.recordChunk(entry.ID, h, index, total)
		})
	} else {
		result, err = e.single.Upload(h.ctx, file, progress)
	}

	e.finish(entry, h, result, err, time.Since(start))
}

// finish writes the terminal state of a transfer. Outcomes of a handle that is
// no longer registered (paused, removed or restarted since) are dropped.
func (e *Engine) finish(started Entry, h *cancelHandle, result *UploadResponse, err error, duration time.Duration) {
	defer h.cancel(nil)

	e.mu.Lock()
	if e.handles[started.ID] != h {
		e.mu.Unlock()
		return
	}
	delete(e.handles, started.ID)

	entry, ok := e.registry.Get(started.ID)
	if !ok {
		e.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		entry.Status = StatusSuccess
		entry.Progress = 100
		entry.Result = result
		entry.Error = ""
	case transport.IsCancelled(err):
		entry.Status = StatusPaused
		entry.Error = ""
	default:
		entry.Status = StatusError
		entry.Error = transport.Message(err)
	}
	e.registry.Put(entry)
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	e.notifyChange(entry)

	switch entry.Status {
	case StatusSuccess:
		logging.TransferComplete(entry.ID, entry.File.Name, duration)
		if e.callbacks.OnSuccess != nil {
			e.callbacks.OnSuccess(entry, result)
		}
	case StatusPaused:
		logging.TransferPaused(entry.ID, entry.File.Name)
	case StatusError:
		logging.TransferError(entry.ID, entry.File.Name, err)
		if e.callbacks.OnError != nil {
			e.callbacks.OnError(entry, err)
		}
	}
}

func (e *Engine) updateProgress(id string, h *cancelHandle, percent int) {
	if percent > 100 {
		percent = 100
	}

	e.mu.Lock()
	if e.handles[id] != h {
		e.mu.Unlock()
		return
	}
	entry, ok := e.registry.Get(id)
	if !ok || percent <= entry.Progress {
		e.mu.Unlock()
		return
	}
	entry.Progress = percent
	e.registry.Put(entry)

	logging.TransferProgress(id, percent)
	e.unlockAndNotify(entry)
}

func (e *Engine) recordChunk(id string, h *cancelHandle, index, total int) {
	e.mu.Lock()
	if e.handles[id] != h {
		e.mu.Unlock()
		return
	}
	entry, ok := e.registry.Get(id)
	if !ok {
		e.mu.Unlock()
		return
	}

	pos := sort.SearchInts(entry.UploadedChunks, index)
	if pos == len(entry.UploadedChunks) || entry.UploadedChunks[pos] != index {
		entry.UploadedChunks = append(entry.UploadedChunks, 0)
		copy(entry.UploadedChunks[pos+1:], entry.UploadedChunks[pos:])
		entry.UploadedChunks[pos] = index
	}
	entry.TotalChunks = total
	e.registry.Put(entry)
	e.unlockAndNotify(entry)
}

// unlockAndNotify releases mu, which the caller holds, and publishes entries
// before any later registry write can be published.
func (e *Engine) unlockAndNotify(entries ...Entry) {
	e.notifyMu.Lock()
	e.mu.Unlock()
	defer e.notifyMu.Unlock()

	for _, entry := range entries {
		e.notifyChange(entry)
	}
}

func (e *Engine) notifyChange(entry Entry) {
	if e.callbacks.OnChange != nil {
		e.callbacks.OnChange(entry)
	}
}
