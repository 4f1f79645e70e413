package instrument

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTargetBufferSize is the number of buffered events that triggers a
// flush to the writer.
const DefaultTargetBufferSize = 1024

// Writer receives batches of finished events.
type Writer interface {
	// Write consumes a batch. The slice is not retained by the caller.
	Write(ctx context.Context, events []Event) error
	// Close finalizes the output.
	Close(ctx context.Context) error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithProcessID sets the pid of recorded events (the worker rank).
func WithProcessID(pid int) Option {
	return func(r *Recorder) { r.pid = pid }
}

// WithTargetBufferSize sets the buffer size that triggers a flush.
func WithTargetBufferSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.target = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder buffers trace events and forwards them to a Writer.
// It is safe for concurrent use.
type Recorder struct {
	w      Writer
	pid    int
	target int
	now    func() time.Time

	mu     sync.Mutex
	buf    []Event
	err    error
	closed bool

	inflight sync.WaitGroup
}

// NewRecorder returns a recorder writing to w.
func NewRecorder(w Writer, opts ...Option) *Recorder {
	r := &Recorder{
		w:      w,
		target: DefaultTargetBufferSize,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buf = make([]Event, 0, r.target)
	return r
}

// Span is an open timed scope.
type Span struct {
	r     *Recorder
	name  string
	tid   int
	start time.Time
	once  sync.Once
}

// Start opens a span on thread 0.
func (r *Recorder) Start(name string) *Span {
	return r.StartThread(name, 0)
}

// StartThread opens a span on the given thread id.
func (r *Recorder) StartThread(name string, tid int) *Span {
	if r == nil {
		return nil
	}
	return &Span{r: r, name: name, tid: tid, start: r.now()}
}

// End closes the span and records it. Calling End more than once records a
// single event.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		end := s.r.now()
		s.r.Record(Event{
			Cat:  CategoryFunction,
			Dur:  end.Sub(s.start).Microseconds(),
			Name: s.name,
			Ph:   PhaseComplete,
			Pid:  s.r.pid,
			Tid:  s.tid,
			Ts:   s.start.UnixMicro(),
		})
	})
}

// Record appends a finished event, flushing when the buffer exceeds its
// target size. Write errors are kept and reported by Flush and Close.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, e)
	var batch []Event
	if len(r.buf) > r.target {
		batch = r.takeLocked()
	}
	r.mu.Unlock()

	r.write(context.Background(), batch)
}

// Flush hands buffered events to the writer.
func (r *Recorder) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	batch := r.takeLocked()
	r.mu.Unlock()

	r.write(ctx, batch)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// takeLocked detaches the buffered events and registers them as in flight.
// The caller must hold r.mu and pass the batch to write.
func (r *Recorder) takeLocked() []Event {
	if len(r.buf) == 0 {
		return nil
	}

	batch := make([]Event, len(r.buf))
	copy(batch, r.buf)
	r.buf = r.buf[:0]
	r.inflight.Add(1)
	return batch
}

// write hands a batch from takeLocked to the writer. It is called without
// r.mu held.
func (r *Recorder) write(ctx context.Context, batch []Event) {
	if batch == nil {
		return
	}
	defer r.inflight.Done()

	if err := r.w.Write(ctx, batch); err != nil {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Close flushes and closes the writer once in-flight batches are written.
// Spans ended afterwards are dropped.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		defer r.mu.Unlock()
		return r.err
	}
	r.closed = true
	batch := r.takeLocked()
	r.mu.Unlock()

	r.write(ctx, batch)
	r.inflight.Wait()

	cerr := r.w.Close(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.err, cerr)
}
