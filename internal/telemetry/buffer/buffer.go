// Package buffer accumulates records per artifact type and flushes them in
// batches, by size or by age. Flushes retry with exponential backoff and
// spill to an overflow sink when retries are exhausted, so ingestion never
// blocks on storage and accepted records are never silently lost
package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rklog/internal/core/artifact"
	perr "rklog/internal/platform/errors"
	"rklog/internal/platform/logger"
)

// Sink receives flushed batches. The writer backend satisfies this through a
// small adapter in the engine facade
type Sink interface {
	WriteBatch(ctx context.Context, t artifact.Type, records []artifact.Record) error
}

// OverflowFunc persists a batch that exhausted its flush retries
type OverflowFunc func(t artifact.Type, records []artifact.Record) error

// Options tunes the manager. Zero values take the defaults below
type Options struct {
	// MaxBatchSize triggers a flush when a shard reaches this many records
	MaxBatchSize int
	// MaxBatchAge triggers a flush when a shard's oldest record is this old
	MaxBatchAge time.Duration
	// Workers bounds concurrent async flushes; 0 flushes inline on the
	// enqueue path, which is what tests and small tools want
	Workers int
	// MaxRetries caps flush attempts beyond the first
	MaxRetries int
	// RetryInterval seeds the backoff; left zero it defaults to 50ms
	RetryInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 100
	}
	if o.MaxBatchAge <= 0 {
		o.MaxBatchAge = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	return o
}

// Stats is a snapshot of the manager's counters
type Stats struct {
	Enqueued        uint64
	FlushedBatches  uint64
	FlushedRecords  uint64
	WriteErrors     uint64
	OverflowBatches uint64
	LostRecords     uint64
}

type shard struct {
	mu      sync.Mutex
	recs    []artifact.Record
	firstAt time.Time
}

// take swaps the shard's contents out under the lock
func (s *shard) take() []artifact.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.recs
	s.recs = nil
	s.firstAt = time.Time{}
	return recs
}

// Manager owns one shard per artifact type and the flush machinery around
// them. Enqueue is non-blocking: full batches are handed to a bounded worker
// pool (or flushed inline when Workers is 0)
type Manager struct {
	sink     Sink
	overflow OverflowFunc
	opts     Options
	log      *logger.Logger

	shards map[artifact.Type]*shard

	sem    chan struct{}
	wg     sync.WaitGroup
	ticker *time.Ticker
	done   chan struct{}
	closed atomic.Bool

	enqueued        atomic.Uint64
	flushedBatches  atomic.Uint64
	flushedRecords  atomic.Uint64
	writeErrors     atomic.Uint64
	overflowBatches atomic.Uint64
	lostRecords     atomic.Uint64
}

// NewManager builds a manager with one shard per type and starts the age
// sweeper. Call Close to stop it
func NewManager(sink Sink, overflow OverflowFunc, types []artifact.Type, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		sink:     sink,
		overflow: overflow,
		opts:     opts,
		log:      logger.Named("buffer"),
		shards:   make(map[artifact.Type]*shard, len(types)),
		done:     make(chan struct{}),
	}
	for _, t := range types {
		m.shards[t] = &shard{}
	}
	if opts.Workers > 0 {
		m.sem = make(chan struct{}, opts.Workers)
	}

	sweep := opts.MaxBatchAge / 4
	if sweep < 10*time.Millisecond {
		sweep = 10 * time.Millisecond
	}
	m.ticker = time.NewTicker(sweep)
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// Enqueue appends one record to its shard and dispatches a flush when the
// shard reaches the size threshold
func (m *Manager) Enqueue(ctx context.Context, rec artifact.Record) error {
	if m.closed.Load() {
		return perr.Unavailablef("buffer manager is closed")
	}
	s, ok := m.shards[rec.Type]
	if !ok {
		return perr.UnknownArtifactf("artifact type %q has no buffer shard", rec.Type)
	}

	var full []artifact.Record
	s.mu.Lock()
	if len(s.recs) == 0 {
		s.firstAt = time.Now()
	}
	s.recs = append(s.recs, rec)
	if len(s.recs) >= m.opts.MaxBatchSize {
		full = s.recs
		s.recs = nil
		s.firstAt = time.Time{}
	}
	s.mu.Unlock()

	m.enqueued.Add(1)
	if full != nil {
		m.dispatch(ctx, rec.Type, full)
	}
	return nil
}

// dispatch flushes inline or on a bounded worker goroutine
func (m *Manager) dispatch(ctx context.Context, t artifact.Type, recs []artifact.Record) {
	if m.sem == nil {
		m.flush(ctx, t, recs)
		return
	}
	m.sem <- struct{}{}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.sem }()
		m.flush(context.WithoutCancel(ctx), t, recs)
	}()
}

// flush writes one batch through the sink with retries, spilling to overflow
// when attempts are exhausted or the error is not retryable
func (m *Manager) flush(ctx context.Context, t artifact.Type, recs []artifact.Record) {
	if len(recs) == 0 {
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.RetryInterval
	bo.MaxElapsedTime = 0

	op := func() error {
		err := m.sink.WriteBatch(ctx, t, recs)
		if err == nil {
			return nil
		}
		m.writeErrors.Add(1)
		if !perr.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(m.opts.MaxRetries)), ctx))
	if err == nil {
		m.flushedBatches.Add(1)
		m.flushedRecords.Add(uint64(len(recs)))
		return
	}

	m.log.Warn().Err(err).Str("artifact_type", string(t)).Int("records", len(recs)).
		Msg("flush exhausted retries; spilling to overflow")
	if m.overflow == nil {
		m.lostRecords.Add(uint64(len(recs)))
		return
	}
	if oerr := m.overflow(t, recs); oerr != nil {
		m.lostRecords.Add(uint64(len(recs)))
		m.log.Error().Err(oerr).Str("artifact_type", string(t)).Int("records", len(recs)).
			Msg("overflow write failed; records lost")
		return
	}
	m.overflowBatches.Add(1)
}

// sweepLoop flushes shards whose oldest record exceeds MaxBatchAge
func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			now := time.Now()
			for t, s := range m.shards {
				s.mu.Lock()
				aged := len(s.recs) > 0 && now.Sub(s.firstAt) >= m.opts.MaxBatchAge
				var recs []artifact.Record
				if aged {
					recs = s.recs
					s.recs = nil
					s.firstAt = time.Time{}
				}
				s.mu.Unlock()
				if recs != nil {
					m.dispatch(context.Background(), t, recs)
				}
			}
		}
	}
}

// Flush synchronously writes whatever t's shard holds
func (m *Manager) Flush(ctx context.Context, t artifact.Type) error {
	s, ok := m.shards[t]
	if !ok {
		return perr.UnknownArtifactf("artifact type %q has no buffer shard", t)
	}
	m.flush(ctx, t, s.take())
	return nil
}

// FlushAll synchronously drains every shard
func (m *Manager) FlushAll(ctx context.Context) {
	for t, s := range m.shards {
		m.flush(ctx, t, s.take())
	}
}

// Close stops the sweeper, waits for in-flight async flushes, then drains the
// shards synchronously. Safe to call more than once
func (m *Manager) Close(ctx context.Context) {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.ticker.Stop()
	close(m.done)
	m.wg.Wait()
	m.FlushAll(ctx)
}

// Stats returns a counter snapshot
func (m *Manager) Stats() Stats {
	return Stats{
		Enqueued:        m.enqueued.Load(),
		FlushedBatches:  m.flushedBatches.Load(),
		FlushedRecords:  m.flushedRecords.Load(),
		WriteErrors:     m.writeErrors.Load(),
		OverflowBatches: m.overflowBatches.Load(),
		LostRecords:     m.lostRecords.Load(),
	}
}

// Pending reports how many records are sitting unflushed in t's shard
func (m *Manager) Pending(t artifact.Type) int {
	s, ok := m.shards[t]
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
