// Package worker plays queued turns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/services"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/services/turns"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/pkg/chat"
	queuePkg "github.com/jwebster45206/last-signal/pkg/queue"
	"github.com/jwebster45206/last-signal/pkg/story"
)

const (
	workerTimeout = 5 * time.Second
	// MaxAttempts bounds how often a request waits on a busy session.
	MaxAttempts = 20
)

// Queue is the part of the turn queue a worker needs.
type Queue interface {
	Enqueue(ctx context.Context, req *queuePkg.Request) error
	BlockingDequeue(ctx context.Context, timeout time.Duration) (*queuePkg.Request, error)
}

// TurnPlayer plays one turn against a stored session.
type TurnPlayer interface {
	Turn(ctx context.Context, sessionID uuid.UUID, holder string, req chat.TurnRequest) (*session.Output, error)
}

// Worker processes requests from the turn queue
type Worker struct {
	id          string
	queue       Queue
	player      TurnPlayer
	broadcaster *events.Broadcaster
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a new worker instance. broadcaster may be nil.
func New(q Queue, player TurnPlayer, broadcaster *events.Broadcaster, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       q,
		player:      player,
		broadcaster: broadcaster,
		log:         log.With("worker_id", workerID),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// ID returns the worker's lock holder name.
func (w *Worker) ID() string {
	return w.id
}

// Start processes requests until Stop is called.
func (w *Worker) Start() error {
	defer close(w.done)
	w.log.Info("Worker starting")

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err)
				// Continue processing even on error
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// Stop asks the worker to finish its current request and waits up to
// timeout for it to do so.
func (w *Worker) Stop(timeout time.Duration) {
	w.log.Info("Worker stop requested")
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(timeout):
		w.log.Warn("Worker did not stop in time")
	}
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeue(w.ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}
	return w.processRequest(w.ctx, req)
}

// processRequest plays one queued turn and reports the outcome on the
// session's event channel.
func (w *Worker) processRequest(ctx context.Context, req *queuePkg.Request) error {
	log := w.log.With(
		"request_id", req.RequestID,
		"session_id", req.SessionID.String(),
	)
	log.Info("Processing request", "attempts", req.Attempts)
	start := time.Now()

	// The turn is not abandoned mid-way when the worker is stopping.
	turnCtx := context.WithoutCancel(ctx)

	if w.broadcaster != nil && req.Attempts == 0 {
		if pubErr := w.broadcaster.PublishRequestProcessing(turnCtx, req.SessionID, req.RequestID); pubErr != nil {
			log.Error("Failed to publish processing event", "error", pubErr)
		}
	}

	out, err := w.player.Turn(turnCtx, req.SessionID, w.id, req.Turn)
	if errors.Is(err, turns.ErrSessionBusy) && req.Attempts < MaxAttempts {
		// Another holder is playing this session. Re-queue at the end and
		// try the next request.
		req.Attempts++
		log.Info("Session busy, re-queueing request")
		if err := w.queue.Enqueue(turnCtx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		services.RecordQueuedTurn("requeued")
		return nil
	}

	if err != nil {
		services.RecordQueuedTurn("failed")
		log.Error("Turn failed", "error", err)
		if w.broadcaster != nil {
			if pubErr := w.broadcaster.PublishRequestFailed(turnCtx, req.SessionID, req.RequestID, failureMessage(err)); pubErr != nil {
				log.Error("Failed to publish failure event", "error", pubErr)
			}
		}
		// Player mistakes are reported on the channel, not as worker errors.
		if isPlayerError(err) {
			return nil
		}
		return fmt.Errorf("failed to play turn: %w", err)
	}

	services.RecordQueuedTurn("completed")
	duration := time.Since(start).Milliseconds()
	log.Info("Request processed successfully", "duration_ms", duration, "mode", out.Mode)
	if w.broadcaster != nil {
		if err := w.broadcaster.PublishRequestCompleted(turnCtx, req.SessionID, req.RequestID, out, duration); err != nil {
			log.Error("Failed to publish completion event", "error", err)
		}
	}
	return nil
}

func isPlayerError(err error) bool {
	return errors.Is(err, turns.ErrSessionNotFound) ||
		errors.Is(err, turns.ErrSessionBusy) ||
		errors.Is(err, story.ErrInvalidChoice)
}

// failureMessage is what a client sees; internal errors stay in the log.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, turns.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, turns.ErrSessionBusy):
		return "Session is busy with another turn. Try again."
	case errors.Is(err, story.ErrInvalidChoice):
		return err.Error()
	}
	return "Turn failed"
}
