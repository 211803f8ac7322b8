// Package linearizer implements the Session Linearizer (spec.md §4.2):
// one FIFO job queue and one worker goroutine per session, guaranteeing
// at-most-one-in-flight append and a correct parent-pointer chain
// regardless of how many producers (turn handlers, tool callbacks,
// subagent forwarders, hook completions) submit concurrently.
//
// Adapted from the teacher's internal/session/processor.go, which gates
// a session to one in-flight Process call via a mutex-guarded map and a
// waiter-channel list; this package generalizes that single-slot gate
// into an unbounded FIFO so submitters never block on queue capacity,
// only (optionally) on their own job's completion.
package linearizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/mhismail3/tron-sub003/internal/logging"
	"github.com/mhismail3/tron-sub003/internal/metrics"
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

// OnCreated runs after an event is durable. It receives the created
// event and may enqueue follow-up appends on the same session via
// re-queueing (calling back into the Linearizer), never via direct
// recursion into the worker loop.
type OnCreated func(types.Event)

// Linearizer owns one queue per session. The Event Store is the single
// durability boundary; the Linearizer only serializes access to it.
type Linearizer struct {
	store   *store.Store
	metrics *metrics.Metrics

	mu     sync.Mutex
	queues map[string]*sessionQueue
}

// New constructs a Linearizer over an already-open Event Store.
func New(s *store.Store, m *metrics.Metrics) *Linearizer {
	return &Linearizer{store: s, metrics: m, queues: make(map[string]*sessionQueue)}
}

type job struct {
	eventType  types.EventType
	payload    any
	parentMeta store.AppendParams // Turn/ToolName/ToolCallID/InputTokens/OutputTokens/RunID, filled by caller
	onCreated  OnCreated
	result     chan appendOutcome // nil for fire-and-forget
	flush      chan struct{}      // non-nil for a waitIdle marker
}

type appendOutcome struct {
	event types.Event
	err   error
}

type sessionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*job
	closed bool
	done   chan struct{}
}

func newSessionQueue() *sessionQueue {
	q := &sessionQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (l *Linearizer) queueFor(sessionID string) *sessionQueue {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, ok := l.queues[sessionID]
	if !ok {
		q = newSessionQueue()
		l.queues[sessionID] = q
		go l.run(sessionID, q)
	}
	return q
}

// AppendLinearized submits an append fire-and-forget. onCreated may be
// nil. Errors during the append itself are logged, not returned, since
// the caller has already moved on by the time the worker processes it.
func (l *Linearizer) AppendLinearized(sessionID string, eventType types.EventType, payload any, onCreated OnCreated) {
	l.submit(sessionID, &job{eventType: eventType, payload: payload, onCreated: onCreated})
}

// AppendLinearizedMeta is AppendLinearized plus the indexed-column
// metadata (turn, toolName, toolCallId, token counts, runId) mirrored
// onto the event row for query acceleration.
func (l *Linearizer) AppendLinearizedMeta(sessionID string, eventType types.EventType, payload any, meta store.AppendParams, onCreated OnCreated) {
	meta.SessionID = sessionID
	meta.Type = eventType
	meta.Payload = payload
	l.submit(sessionID, &job{eventType: eventType, payload: payload, parentMeta: meta, onCreated: onCreated})
}

// AppendLinearizedSync blocks until the event is durable (or the append
// fails), for callers that must observe their own write before
// proceeding (spec.md §4.2, "the implementation exposes a blocking
// variant").
func (l *Linearizer) AppendLinearizedSync(ctx context.Context, sessionID string, eventType types.EventType, payload any) (types.Event, error) {
	j := &job{eventType: eventType, payload: payload, result: make(chan appendOutcome, 1)}
	l.submit(sessionID, j)

	select {
	case out := <-j.result:
		return out.event, out.err
	case <-ctx.Done():
		return types.Event{}, ctx.Err()
	}
}

func (l *Linearizer) submit(sessionID string, j *job) {
	q := l.queueFor(sessionID)
	q.mu.Lock()
	q.items = append(q.items, j)
	depth := len(q.items)
	q.cond.Signal()
	q.mu.Unlock()

	l.metrics.LinearizerQueueDepth.WithLabelValues(sessionID).Set(float64(depth))
}

// WaitIdle resolves once every job submitted before this call for
// sessionId has completed. It works by enqueueing a marker job and
// blocking until the worker reaches it, so jobs enqueued concurrently
// with WaitIdle itself are not guaranteed to be drained.
func (l *Linearizer) WaitIdle(sessionID string) {
	q := l.queueFor(sessionID)
	marker := &job{flush: make(chan struct{})}

	q.mu.Lock()
	q.items = append(q.items, marker)
	q.cond.Signal()
	q.mu.Unlock()

	<-marker.flush
}

// Close drains sessionId's queue (processing every already-submitted
// job) and then tears the queue down. Submitting after Close is a
// programming error; the caller is responsible for not racing session
// teardown against live producers.
func (l *Linearizer) Close(sessionID string) {
	l.mu.Lock()
	q, ok := l.queues[sessionID]
	if ok {
		delete(l.queues, sessionID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}

	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()

	<-q.done
	l.metrics.LinearizerQueueDepth.DeleteLabelValues(sessionID)
}

func (l *Linearizer) run(sessionID string, q *sessionQueue) {
	ctx := context.Background()
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		j := q.items[0]
		q.items = q.items[1:]
		depth := len(q.items)
		q.mu.Unlock()

		l.metrics.LinearizerQueueDepth.WithLabelValues(sessionID).Set(float64(depth))

		if j.flush != nil {
			close(j.flush)
			continue
		}

		l.processJob(ctx, sessionID, j)
	}
}

func (l *Linearizer) processJob(ctx context.Context, sessionID string, j *job) {
	sess, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		l.finish(j, types.Event{}, fmt.Errorf("linearizer: lookup session %s: %w", sessionID, err))
		return
	}

	params := j.parentMeta
	params.SessionID = sessionID
	params.Type = j.eventType
	params.Payload = j.payload
	params.ParentID = sess.HeadEventID

	ev, err := l.store.Append(ctx, params)
	l.finish(j, ev, err)

	if err != nil {
		logging.Component("linearizer").Debug().Err(err).Str("session_id", sessionID).Msg("append failed")
		return
	}

	if j.onCreated != nil {
		// onCreated may itself call AppendLinearized on this session:
		// that re-enters via submit(), appending to this same queue from
		// the worker goroutine, never recursing into run() directly.
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Component("linearizer").Debug().Str("session_id", sessionID).Msg("onCreated panicked")
				}
			}()
			j.onCreated(ev)
		}()
	}
}

func (l *Linearizer) finish(j *job, ev types.Event, err error) {
	if j.result != nil {
		j.result <- appendOutcome{event: ev, err: err}
	}
}
