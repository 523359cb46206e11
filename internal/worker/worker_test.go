package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/last-signal/internal/narrator"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/services/queue"
	"github.com/jwebster45206/last-signal/internal/services/turns"
	"github.com/jwebster45206/last-signal/internal/storage"
	"github.com/jwebster45206/last-signal/pkg/chat"
	queuePkg "github.com/jwebster45206/last-signal/pkg/queue"
	"github.com/jwebster45206/last-signal/pkg/persona"
	"github.com/jwebster45206/last-signal/pkg/story"
)

type fixture struct {
	mr          *miniredis.Miniredis
	queue       *queue.TurnQueue
	lock        *queue.SessionLock
	processor   *turns.Processor
	broadcaster *events.Broadcaster
	client      *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	g, err := story.Default()
	require.NoError(t, err)
	pool, err := persona.Default()
	require.NoError(t, err)

	qc := queue.NewClient(client, log)
	lock := queue.NewSessionLock(qc, time.Minute)
	b := events.NewBroadcaster(client, log)
	p := turns.NewProcessor(storage.NewRedisStorageFromClient(client, log), g,
		func() *narrator.Service { return narrator.New(narrator.Scripted{}, pool, narrator.WithLogger(log)) },
		log, turns.WithBroadcaster(b), turns.WithLocker(lock))

	return &fixture{
		mr:          mr,
		queue:       queue.NewTurnQueue(qc),
		lock:        lock,
		processor:   p,
		broadcaster: b,
		client:      client,
	}
}

func (f *fixture) worker() *Worker {
	return New(f.queue, f.processor, f.broadcaster, slog.New(slog.NewTextHandler(io.Discard, nil)), "worker-test")
}

// subscribe returns a function yielding the session's events of the
// given types, skipping everything else.
func (f *fixture) subscribe(t *testing.T, sessionID uuid.UUID) func(types ...events.EventType) events.Event {
	t.Helper()
	ctx := context.Background()
	sub := f.broadcaster.Subscribe(ctx, sessionID)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	ch := sub.Channel()

	return func(types ...events.EventType) events.Event {
		t.Helper()
		for {
			select {
			case msg := <-ch:
				var e events.Event
				require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
				for _, typ := range types {
					if e.Type == typ {
						return e
					}
				}
			case <-time.After(3 * time.Second):
				t.Fatalf("timed out waiting for %v", types)
				return events.Event{}
			}
		}
	}
}

func TestWorker_ProcessRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, _, _, err := f.processor.Create(ctx, "ada")
	require.NoError(t, err)
	next := f.subscribe(t, sessionID)

	w := f.worker()
	req := queuePkg.NewRequest(sessionID, chat.TurnRequest{Text: "begin"})
	require.NoError(t, w.processRequest(ctx, req))

	e := next(events.EventTypeRequestProcessing)
	assert.Equal(t, req.RequestID, e.Data["request_id"])

	e = next(events.EventTypeRequestCompleted)
	assert.Equal(t, req.RequestID, e.Data["request_id"])
	out, ok := e.Data["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "awaiting_choice", out["mode"])

	// The lock is released once the turn is stored.
	assert.False(t, f.mr.Exists("session-lock:"+sessionID.String()))

	sess, _, err := f.processor.Open(ctx, sessionID, nil)
	require.NoError(t, err)
	assert.Len(t, sess.View().Choices, 3)
}

func TestWorker_BusySessionIsRequeued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, _, _, err := f.processor.Create(ctx, "ada")
	require.NoError(t, err)

	ok, err := f.lock.Acquire(ctx, sessionID, "api-1")
	require.NoError(t, err)
	require.True(t, ok)

	w := f.worker()
	req := queuePkg.NewRequest(sessionID, chat.TurnRequest{Text: "begin"})
	require.NoError(t, w.processRequest(ctx, req))

	requeued, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	assert.Equal(t, req.RequestID, requeued.RequestID)
	assert.Equal(t, 1, requeued.Attempts)

	// Past the attempt limit the request fails instead.
	next := f.subscribe(t, sessionID)
	requeued.Attempts = MaxAttempts
	require.NoError(t, w.processRequest(ctx, requeued))
	e := next(events.EventTypeRequestFailed)
	assert.Equal(t, "Session is busy with another turn. Try again.", e.Data["error"])
}

func TestWorker_FailedRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.worker()

	missing := uuid.New()
	next := f.subscribe(t, missing)
	require.NoError(t, w.processRequest(ctx, queuePkg.NewRequest(missing, chat.TurnRequest{Text: "begin"})))
	e := next(events.EventTypeRequestFailed)
	assert.Equal(t, "Session not found", e.Data["error"])

	sessionID, _, _, err := f.processor.Create(ctx, "ada")
	require.NoError(t, err)
	require.NoError(t, w.processRequest(ctx, queuePkg.NewRequest(sessionID, chat.TurnRequest{Text: "begin"})))

	next = f.subscribe(t, sessionID)
	idx := 8
	require.NoError(t, w.processRequest(ctx, queuePkg.NewRequest(sessionID, chat.TurnRequest{ChooseIndex: &idx})))
	e = next(events.EventTypeRequestFailed)
	assert.Contains(t, e.Data["error"], "invalid choice")
}

// chanQueue is an in-memory Queue for driving Start and Stop.
type chanQueue struct {
	mu  sync.Mutex
	ch  chan *queuePkg.Request
	got []*queuePkg.Request
}

func (q *chanQueue) Enqueue(ctx context.Context, req *queuePkg.Request) error {
	q.ch <- req
	return nil
}

func (q *chanQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queuePkg.Request, error) {
	select {
	case req := <-q.ch:
		q.mu.Lock()
		q.got = append(q.got, req)
		q.mu.Unlock()
		return req, nil
	case <-ctx.Done():
		return nil, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func TestWorker_StartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sessionID, _, _, err := f.processor.Create(ctx, "ada")
	require.NoError(t, err)
	next := f.subscribe(t, sessionID)

	q := &chanQueue{ch: make(chan *queuePkg.Request, 4)}
	w := New(q, f.processor, f.broadcaster, slog.New(slog.NewTextHandler(io.Discard, nil)), "")
	assert.Contains(t, w.ID(), "worker-")

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start() }()

	require.NoError(t, q.Enqueue(ctx, queuePkg.NewRequest(sessionID, chat.TurnRequest{Text: "begin"})))
	next(events.EventTypeRequestCompleted)

	w.Stop(2 * time.Second)
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
