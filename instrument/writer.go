package instrument

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/dkmeans/blobstore"
	"github.com/hupe1980/dkmeans/codec"
	"github.com/hupe1980/dkmeans/resource"
)

// ErrWriterClosed is returned by Write after the writer was closed.
var ErrWriterClosed = errors.New("trace writer is closed")

// MemoryWriter collects events in memory.
type MemoryWriter struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewMemoryWriter returns an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) Write(_ context.Context, events []Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("%w: %d events dropped", ErrWriterClosed, len(events))
	}
	w.events = append(w.events, events...)
	return nil
}

func (w *MemoryWriter) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Events returns a sorted copy of the collected events.
func (w *MemoryWriter) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Event, len(w.events))
	copy(out, w.events)
	SortEvents(out)
	return out
}

// Closed reports whether Close was called.
func (w *MemoryWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// EncodeTrace renders events as a Chrome trace JSON document.
func EncodeTrace(events []Event) ([]byte, error) {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	return codec.GoJSON{}.MarshalIndent(Trace{TraceEvents: sorted})
}

// DecodeTrace parses a Chrome trace JSON document.
func DecodeTrace(data []byte) ([]Event, error) {
	var t Trace
	if err := (codec.GoJSON{}).Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t.TraceEvents, nil
}

// FileWriter accumulates events and writes them as one trace document to a
// file on Close.
type FileWriter struct {
	MemoryWriter
	path string
}

// NewFileWriter returns a writer targeting path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

func (w *FileWriter) Close(ctx context.Context) error {
	if err := w.MemoryWriter.Close(ctx); err != nil {
		return err
	}

	data, err := EncodeTrace(w.Events())
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(w.path, data, 0o644)
}

// BlobWriter accumulates events and uploads them as one trace document to a
// blob store on Close. Uploads are throttled by the resource controller's IO
// limit; a nil controller uploads unthrottled.
type BlobWriter struct {
	MemoryWriter
	store blobstore.BlobStore
	name  string
	rc    *resource.Controller
}

// NewBlobWriter returns a writer that uploads to name in store.
func NewBlobWriter(store blobstore.BlobStore, name string, rc *resource.Controller) *BlobWriter {
	return &BlobWriter{store: store, name: name, rc: rc}
}

func (w *BlobWriter) Close(ctx context.Context) error {
	if err := w.MemoryWriter.Close(ctx); err != nil {
		return err
	}

	data, err := EncodeTrace(w.Events())
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	blob, err := w.store.Create(ctx, w.name)
	if err != nil {
		return fmt.Errorf("create trace blob: %w", err)
	}

	if _, err := io.Copy(resource.NewRateLimitedWriter(ctx, blob, w.rc), bytes.NewReader(data)); err != nil {
		_ = blob.Close()
		return fmt.Errorf("upload trace: %w", err)
	}
	return blob.Close()
}

// Sink receives event batches gathered from other workers.
type Sink interface {
	PushEvents(ctx context.Context, rank int, events []Event) error
}

// GatherWriter forwards every batch to a Sink, typically the coordinator.
type GatherWriter struct {
	sink Sink
	rank int
}

// NewGatherWriter returns a writer forwarding rank's events to sink.
func NewGatherWriter(sink Sink, rank int) *GatherWriter {
	return &GatherWriter{sink: sink, rank: rank}
}

func (w *GatherWriter) Write(ctx context.Context, events []Event) error {
	return w.sink.PushEvents(ctx, w.rank, events)
}

func (w *GatherWriter) Close(context.Context) error {
	return nil
}

// WriterSink adapts a Writer to a Sink, merging other workers' events into
// the local output.
type WriterSink struct {
	W Writer
}

func (s WriterSink) PushEvents(ctx context.Context, _ int, events []Event) error {
	return s.W.Write(ctx, events)
}
