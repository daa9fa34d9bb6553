// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package queue

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
)

const (
	// maxPromotions bounds how many delayed or expired jobs one Claim moves.
	maxPromotions = 256

	// bulkChunk is the number of jobs written per transaction in EnqueueBulk.
	bulkChunk = 500
)

// Queue is one named priority queue inside a Store.
type Queue struct {
	db    *badger.DB
	name  string
	seq   *badger.Sequence
	lease time.Duration

	maxAttempts int
	backoff     time.Duration

	// mu serializes writers; one process owns a queue name.
	mu     sync.Mutex
	notify chan struct{}
	now    func() time.Time
	onDrop DropFunc

	prefixJob     []byte
	prefixReady   []byte
	prefixDelayed []byte
	prefixActive  []byte
	prefixDedupe  []byte
}

func newQueue(db *badger.DB, name string, seq *badger.Sequence, cfg Config) *Queue {
	base := "q/" + name + "/"
	return &Queue{
		db:            db,
		name:          name,
		seq:           seq,
		lease:         cfg.LeaseDuration,
		maxAttempts:   cfg.MaxAttempts,
		backoff:       cfg.Backoff,
		notify:        make(chan struct{}, 1),
		now:           time.Now,
		prefixJob:     []byte(base + "job/"),
		prefixReady:   []byte(base + "ready/"),
		prefixDelayed: []byte(base + "delayed/"),
		prefixActive:  []byte(base + "active/"),
		prefixDedupe:  []byte(base + "dedupe/"),
	}
}

// DropFunc is called after a job leaves the queue without succeeding.
// It must not call back into the same queue.
type DropFunc func(ctx context.Context, job *Job, cause error)

// OnDrop registers fn for dropped jobs. Call it before workers start.
func (q *Queue) OnDrop(fn DropFunc) {
	q.mu.Lock()
	q.onDrop = fn
	q.mu.Unlock()
}

func (q *Queue) dropped(ctx context.Context, jobs []*Job, cause error) {
	q.mu.Lock()
	fn := q.onDrop
	q.mu.Unlock()
	if fn == nil {
		return
	}
	for _, job := range jobs {
		fn(ctx, job, cause)
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Notify returns a channel that receives a value after jobs are enqueued.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func concat(prefix []byte, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// readyKey orders by descending priority, then ascending sequence.
func (q *Queue) readyKey(priority int, seq uint64) []byte {
	return concat(q.prefixReady, be32(^uint32(priority)), be64(seq))
}

func (q *Queue) delayedKey(runAt time.Time, seq uint64) []byte {
	return concat(q.prefixDelayed, be64(uint64(runAt.UnixNano())), be64(seq))
}

func (q *Queue) jobKey(id string) []byte {
	return concat(q.prefixJob, []byte(id))
}

func (q *Queue) activeKey(id string) []byte {
	return concat(q.prefixActive, []byte(id))
}

func (q *Queue) dedupeKey(key string) []byte {
	return concat(q.prefixDedupe, []byte(key))
}

// Enqueue adds one job and returns its ID. When the dedupe key matches a
// job still in the queue, the existing job's ID is returned and nothing is written.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	ids, err := q.enqueue(ctx, []Request{req})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// EnqueueBulk adds many jobs and returns how many were newly written.
func (q *Queue) EnqueueBulk(ctx context.Context, reqs []Request) (int, error) {
	written := 0
	for start := 0; start < len(reqs); start += bulkChunk {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := start + bulkChunk
		if end > len(reqs) {
			end = len(reqs)
		}
		ids, err := q.enqueue(ctx, reqs[start:end])
		if err != nil {
			return written, err
		}
		for _, id := range ids {
			if id != "" && !isExisting(id) {
				written++
			}
		}
	}
	return written, nil
}

// existingMarker prefixes IDs of jobs that were deduplicated.
const existingMarker = "="

func isExisting(id string) bool {
	return len(id) > 0 && id[:1] == existingMarker
}

func (q *Queue) enqueue(ctx context.Context, reqs []Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(reqs))
	now := q.now().UTC()

	err := q.db.Update(func(txn *badger.Txn) error {
		for i, req := range reqs {
			opts := req.Options.normalized(q.maxAttempts, q.backoff)

			if opts.DedupeKey != "" {
				item, err := txn.Get(q.dedupeKey(opts.DedupeKey))
				if err == nil {
					existing, verr := item.ValueCopy(nil)
					if verr != nil {
						return verr
					}
					ids[i] = existingMarker + string(existing)
					continue
				}
				if !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("check dedupe key: %w", err)
				}
			}

			payload, err := json.Marshal(req.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}
			seq, err := q.seq.Next()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}

			job := Job{
				ID:          uuid.New().String(),
				Queue:       q.name,
				Kind:        req.Kind,
				Payload:     payload,
				Priority:    opts.Priority,
				MaxAttempts: opts.MaxAttempts,
				Backoff:     opts.Backoff,
				DedupeKey:   opts.DedupeKey,
				CreatedAt:   now,
			}
			if err := q.putJob(txn, &job); err != nil {
				return err
			}
			if err := txn.Set(q.readyKey(job.Priority, seq), []byte(job.ID)); err != nil {
				return fmt.Errorf("set ready key: %w", err)
			}
			if job.DedupeKey != "" {
				if err := txn.Set(q.dedupeKey(job.DedupeKey), []byte(job.ID)); err != nil {
					return fmt.Errorf("set dedupe key: %w", err)
				}
			}
			ids[i] = job.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue on %s: %w", q.name, err)
	}

	newJobs := 0
	for i, id := range ids {
		if isExisting(id) {
			metrics.QueueDeduplicated.WithLabelValues(q.name).Inc()
			if len(reqs) == 1 {
				ids[i] = id[1:]
			}
			continue
		}
		newJobs++
		metrics.QueueEnqueued.WithLabelValues(q.name, strconv.Itoa(reqs[i].Options.normalized(q.maxAttempts, q.backoff).Priority)).Inc()
	}
	if newJobs > 0 {
		q.signal()
	}
	return ids, nil
}

func (q *Queue) putJob(txn *badger.Txn, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := txn.Set(q.jobKey(job.ID), data); err != nil {
		return fmt.Errorf("set job: %w", err)
	}
	return nil
}

func (q *Queue) getJob(txn *badger.Txn, id string) (*Job, error) {
	item, err := txn.Get(q.jobKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	var job Job
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Claim leases the next ready job to holder. Returns ErrEmpty when nothing
// is ready.
func (q *Queue) Claim(ctx context.Context, holder string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job, expired, err := q.claim(holder)
	if len(expired.dropped) > 0 {
		q.dropped(ctx, expired.dropped, ErrLeaseExpired)
	}
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrEmpty
	}
	return job, nil
}

// expiredLeases is what recoverExpired did to jobs whose lease ran out.
type expiredLeases struct {
	retried int
	dropped []*Job
}

func (q *Queue) claim(holder string) (*Job, expiredLeases, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var (
		claimed *Job
		expired expiredLeases
	)

	err := q.db.Update(func(txn *badger.Txn) error {
		expired = expiredLeases{}
		if err := q.promoteDelayed(txn, now); err != nil {
			return err
		}
		if err := q.recoverExpired(txn, now, &expired); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = q.prefixReady
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			id, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read ready entry: %w", err)
			}
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete ready key: %w", err)
			}

			job, err := q.getJob(txn, string(id))
			if errors.Is(err, ErrJobNotFound) {
				// Orphaned index entry; skip it.
				continue
			}
			if err != nil {
				return err
			}

			job.Attempts++
			job.LeaseHolder = holder
			job.LeaseExpiry = now.Add(q.lease)
			if err := q.putJob(txn, job); err != nil {
				return err
			}
			if err := txn.Set(q.activeKey(job.ID), nil); err != nil {
				return fmt.Errorf("set active key: %w", err)
			}
			claimed = job
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, expiredLeases{}, fmt.Errorf("claim on %s: %w", q.name, err)
	}

	if expired.retried > 0 {
		metrics.QueueRetried.WithLabelValues(q.name).Add(float64(expired.retried))
	}
	if n := len(expired.dropped); n > 0 {
		metrics.QueueFailed.WithLabelValues(q.name, "exhausted").Add(float64(n))
	}
	return claimed, expired, nil
}

// promoteDelayed moves jobs whose backoff has elapsed back to ready.
func (q *Queue) promoteDelayed(txn *badger.Txn, now time.Time) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = q.prefixDelayed
	it := txn.NewIterator(opts)
	defer it.Close()

	limit := concat(q.prefixDelayed, be64(uint64(now.UnixNano())))
	moved := 0
	for it.Rewind(); it.Valid() && moved < maxPromotions; it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if bytes.Compare(key[:len(limit)], limit) > 0 {
			break
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read delayed entry: %w", err)
		}
		job, err := q.getJob(txn, string(id))
		if err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete delayed key: %w", err)
		}
		if job == nil {
			continue
		}
		seq, err := q.seq.Next()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		if err := txn.Set(q.readyKey(job.Priority, seq), id); err != nil {
			return fmt.Errorf("set ready key: %w", err)
		}
		moved++
	}
	return nil
}

// recoverExpired counts a lapsed lease as a failed attempt: the job is
// dropped at its attempt cap and otherwise rescheduled after its backoff.
func (q *Queue) recoverExpired(txn *badger.Txn, now time.Time, out *expiredLeases) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = q.prefixActive
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	moved := 0
	for it.Rewind(); it.Valid() && moved < maxPromotions; it.Next() {
		key := it.Item().KeyCopy(nil)
		id := string(key[len(q.prefixActive):])

		job, err := q.getJob(txn, id)
		if errors.Is(err, ErrJobNotFound) {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete orphaned active key: %w", err)
			}
			continue
		}
		if err != nil {
			return err
		}
		if now.Before(job.LeaseExpiry) {
			continue
		}

		log := logging.Warn().
			Str("queue", q.name).
			Str("job_id", job.ID).
			Str("lease_holder", job.LeaseHolder).
			Int("attempt", job.Attempts).
			Int("max_attempts", job.MaxAttempts)

		if job.Attempts >= job.MaxAttempts {
			if err := q.removeJob(txn, job); err != nil {
				return err
			}
			log.Msg("Job lease expired on its final attempt, dropping")
			out.dropped = append(out.dropped, job)
			moved++
			continue
		}

		job.LastError = ErrLeaseExpired.Error()
		job.LeaseHolder = ""
		job.LeaseExpiry = time.Time{}
		if err := q.putJob(txn, job); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete active key: %w", err)
		}
		seq, err := q.seq.Next()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		if err := txn.Set(q.delayedKey(now.Add(job.Backoff), seq), []byte(job.ID)); err != nil {
			return fmt.Errorf("set delayed key: %w", err)
		}
		log.Dur("backoff", job.Backoff).Msg("Job lease expired, retrying after backoff")
		out.retried++
		moved++
	}
	return nil
}

// Ack removes a successfully processed job.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.db.Update(func(txn *badger.Txn) error {
		return q.removeJob(txn, job)
	})
	if err != nil {
		return fmt.Errorf("ack %s on %s: %w", job.ID, q.name, err)
	}
	metrics.QueueCompleted.WithLabelValues(q.name).Inc()
	return nil
}

func (q *Queue) removeJob(txn *badger.Txn, job *Job) error {
	if err := txn.Delete(q.activeKey(job.ID)); err != nil {
		return fmt.Errorf("delete active key: %w", err)
	}
	if err := txn.Delete(q.jobKey(job.ID)); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if job.DedupeKey != "" {
		if err := txn.Delete(q.dedupeKey(job.DedupeKey)); err != nil {
			return fmt.Errorf("delete dedupe key: %w", err)
		}
	}
	return nil
}

// Fail records a failed attempt. The job is rescheduled after its backoff
// unless cause is permanent or the attempt cap is reached, in which case
// it is dropped.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Retrying, err
	}

	outcome, err := q.fail(job, cause)
	if err == nil && outcome == Dropped {
		q.dropped(ctx, []*Job{job}, cause)
	}
	return outcome, err
}

func (q *Queue) fail(job *Job, cause error) (Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	outcome := Retrying
	permanent := IsPermanent(cause)

	err := q.db.Update(func(txn *badger.Txn) error {
		if permanent || job.Attempts >= job.MaxAttempts {
			outcome = Dropped
			return q.removeJob(txn, job)
		}

		job.LastError = cause.Error()
		job.LeaseHolder = ""
		job.LeaseExpiry = time.Time{}
		if err := q.putJob(txn, job); err != nil {
			return err
		}
		if err := txn.Delete(q.activeKey(job.ID)); err != nil {
			return fmt.Errorf("delete active key: %w", err)
		}
		seq, err := q.seq.Next()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		return txn.Set(q.delayedKey(now.Add(job.Backoff), seq), []byte(job.ID))
	})
	if err != nil {
		return outcome, fmt.Errorf("fail %s on %s: %w", job.ID, q.name, err)
	}

	if outcome == Dropped {
		reason := "exhausted"
		if permanent {
			reason = "permanent"
		}
		metrics.QueueFailed.WithLabelValues(q.name, reason).Inc()
	} else {
		metrics.QueueRetried.WithLabelValues(q.name).Inc()
	}
	return outcome, nil
}

// Counts reports jobs by state.
type Counts struct {
	Ready   int
	Delayed int
	Active  int
}

// Total returns every job still held by the queue.
func (c Counts) Total() int {
	return c.Ready + c.Delayed + c.Active
}

// Stats counts jobs by state.
func (q *Queue) Stats(ctx context.Context) (Counts, error) {
	var c Counts
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		if c.Ready, err = countPrefix(ctx, txn, q.prefixReady); err != nil {
			return err
		}
		if c.Delayed, err = countPrefix(ctx, txn, q.prefixDelayed); err != nil {
			return err
		}
		c.Active, err = countPrefix(ctx, txn, q.prefixActive)
		return err
	})
	if err != nil {
		return Counts{}, fmt.Errorf("stats on %s: %w", q.name, err)
	}
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(c.Ready + c.Delayed))
	return c, nil
}

// Count returns the number of jobs in the queue in any state.
func (q *Queue) Count(ctx context.Context) (int, error) {
	c, err := q.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return c.Total(), nil
}

func countPrefix(ctx context.Context, txn *badger.Txn, prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}
