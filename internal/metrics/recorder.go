// Package metrics records per-call telemetry asynchronously and serves it
// back for reporting.
package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrRecorderClosed = errors.New("metrics recorder is closed")

const (
	defaultBuffer     = 1024
	defaultAppendWait = 20 * time.Millisecond
	writeTimeout      = 5 * time.Second
)

// Recorder accepts records on a bounded buffer and writes them to a Sink
// from a single background goroutine. Timestamps are kept monotonic per
// identity in append order.
type Recorder struct {
	sink       Sink
	log        log.FieldLogger
	appendWait time.Duration

	mu      sync.Mutex
	lanes   map[string]*lane
	closed  bool
	pending sync.WaitGroup

	in       chan Record
	flushReq chan chan error
	stop     chan struct{}
	done     chan struct{}
	dropped  atomic.Int64

	subsMu  sync.RWMutex
	subs    map[int]chan Record
	nextSub int
}

// lane serializes appends of one identity so queue order matches
// timestamp order.
type lane struct {
	mu   sync.Mutex
	last time.Time
}

type RecorderOption func(*Recorder)

// WithBuffer sets how many records may wait for the writer.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.in = make(chan Record, n)
		}
	}
}

// WithAppendWait bounds how long Append waits on a full buffer before the
// record is dropped.
func WithAppendWait(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.appendWait = d }
}

func WithLogger(l log.FieldLogger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder starts the writer goroutine. Close stops it.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:       sink,
		log:        log.StandardLogger(),
		appendWait: defaultAppendWait,
		lanes:      map[string]*lane{},
		in:         make(chan Record, defaultBuffer),
		flushReq:   make(chan chan error),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		subs:       map[int]chan Record{},
	}
	for _, o := range opts {
		o(r)
	}
	go r.loop()
	return r
}

// Append queues rec. It returns false when the record was dropped because
// the recorder is closed or the buffer stayed full for the append wait.
// Appends of different identities do not wait on each other.
func (r *Recorder) Append(rec Record) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.dropped.Add(1)
		return false
	}
	ln, ok := r.lanes[rec.Identity]
	if !ok {
		ln = &lane{}
		r.lanes[rec.Identity] = ln
	}
	r.pending.Add(1)
	r.mu.Unlock()
	defer r.pending.Done()

	ln.mu.Lock()
	defer ln.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Timestamp.Before(ln.last) {
		rec.Timestamp = ln.last
	}

	select {
	case r.in <- rec:
	default:
		t := time.NewTimer(r.appendWait)
		defer t.Stop()
		select {
		case r.in <- rec:
		case <-t.C:
			r.dropped.Add(1)
			r.log.WithFields(log.Fields{"event": "metric_dropped", "model": rec.ModelID, "run_id": rec.RunID}).Warn("metrics buffer full")
			return false
		}
	}
	ln.last = rec.Timestamp
	return true
}

// Dropped is the number of records that never reached the sink queue.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Flush blocks until every record appended before the call was written.
func (r *Recorder) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.flushReq <- reply:
	case <-r.done:
		return ErrRecorderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query flushes pending records and reads from the sink.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Record, error) {
	if err := r.Flush(ctx); err != nil && !errors.Is(err, ErrRecorderClosed) {
		return nil, err
	}
	return r.sink.Query(ctx, f)
}

// Subscribe streams every record after it was written. The channel is
// closed when ctx is done or the recorder closes. Slow subscribers miss
// records rather than stall the writer.
func (r *Recorder) Subscribe(ctx context.Context) <-chan Record {
	ch := make(chan Record, 64)
	r.subsMu.Lock()
	select {
	case <-r.done:
		r.subsMu.Unlock()
		close(ch)
		return ch
	default:
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
		}
		r.subsMu.Lock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
		r.subsMu.Unlock()
	}()
	return ch
}

// Close drains the buffer, stops the writer and closes the sink.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	// appends already past the closed check still reach the writer
	r.pending.Wait()
	close(r.stop)
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.sink.Close()
}

func (r *Recorder) loop() {
	defer close(r.done)
	var batch []Record
	for {
		select {
		case rec := <-r.in:
			batch = r.drain(append(batch[:0], rec))
			_ = r.write(batch)
		case reply := <-r.flushReq:
			batch = r.drain(batch[:0])
			reply <- r.write(batch)
		case <-r.stop:
			_ = r.write(r.drain(batch[:0]))
			return
		}
	}
}

func (r *Recorder) drain(batch []Record) []Record {
	for {
		select {
		case rec := <-r.in:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}

func (r *Recorder) write(batch []Record) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.sink.Write(ctx, batch); err != nil {
		r.log.WithFields(log.Fields{"event": "metric_write_failed", "records": len(batch)}).WithError(err).Error("metrics sink write failed")
		return err
	}
	r.subsMu.RLock()
	for _, ch := range r.subs {
		for _, rec := range batch {
			select {
			case ch <- rec:
			default:
			}
		}
	}
	r.subsMu.RUnlock()
	return nil
}
