package assistant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = time.Second
	// DefaultRunTimeout matches the execution ceiling of the serverless
	// platforms the portal deploys to.
	DefaultRunTimeout = 9 * time.Minute

	cancelGrace = 5 * time.Second
)

// RunFailedError is returned when a run reaches a terminal state other
// than completed.
type RunFailedError struct {
	Status  Status
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("run ended with status %q: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("run ended with status %q", e.Status)
}

// RunTimeoutError is returned when a run is still non-terminal after the
// polling bound elapses.
type RunTimeoutError struct {
	RunID   string
	Elapsed time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s did not reach a terminal state after %s", e.RunID, e.Elapsed)
}

// clock abstracts time so tests can drive the poll loop without real delays.
type clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Orchestrator drives a run through its lifecycle: append the user message,
// create the run, then poll until a terminal state is observed. Callers only
// ever see the terminal projection — the completed message list or an error.
type Orchestrator struct {
	client       Client
	pollInterval time.Duration
	timeout      time.Duration
	clk          clock
	logger       *zap.Logger
}

func NewOrchestrator(client Client, pollInterval, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Orchestrator{
		client:       client,
		pollInterval: pollInterval,
		timeout:      timeout,
		clk:          realClock{},
		logger:       logger,
	}
}

// Execute appends content as a user message on threadID, runs assistantID
// against the thread, and blocks until the run is terminal. On completion it
// returns the thread's full ordered message list. Exactly one outcome is
// produced per invocation: messages, *RunFailedError, *RunTimeoutError, or a
// transport error.
//
// If run creation fails after the message append succeeded, the message
// remains in the thread; the inconsistency is accepted and the error is
// surfaced without entering the poll loop.
func (o *Orchestrator) Execute(ctx context.Context, threadID, assistantID, content string) ([]Message, error) {
	if _, err := o.client.CreateMessage(ctx, threadID, content); err != nil {
		return nil, fmt.Errorf("failed to append message to thread %s: %w", threadID, err)
	}

	run, err := o.client.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return nil, fmt.Errorf("failed to create run on thread %s: %w", threadID, err)
	}

	o.logger.Debug("Run created",
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID))

	start := o.clk.Now()
	for {
		switch run.Status {
		case StatusCompleted:
			messages, err := o.client.ListMessages(ctx, threadID)
			if err != nil {
				return nil, fmt.Errorf("failed to list messages after run %s: %w", run.ID, err)
			}
			return messages, nil

		case StatusFailed, StatusCancelled, StatusExpired:
			return nil, &RunFailedError{
				Status:  run.Status,
				Code:    run.ErrCode,
				Message: run.ErrMessage,
			}

		case StatusQueued, StatusInProgress, StatusRequiresAction:
			// still working

		default:
			// Unrecognized statuses are treated as transient; the overall
			// timeout still bounds them.
			o.logger.Warn("Unrecognized run status",
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)))
		}

		elapsed := o.clk.Now().Sub(start)
		if elapsed >= o.timeout {
			o.cancelAfterTimeout(run)
			return nil, &RunTimeoutError{RunID: run.ID, Elapsed: elapsed}
		}

		// A cancelled caller context stops polling here, before any further
		// network call.
		if err := o.clk.Sleep(ctx, o.pollInterval); err != nil {
			return nil, err
		}

		next, err := o.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll run %s: %w", run.ID, err)
		}
		run = next
	}
}

// cancelAfterTimeout makes a best-effort attempt to stop the abandoned run at
// the provider. It uses a detached context so the attempt is bounded on its
// own and survives caller cancellation.
func (o *Orchestrator) cancelAfterTimeout(run Run) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelGrace)
	defer cancel()

	if err := o.client.CancelRun(ctx, run.ThreadID, run.ID); err != nil {
		o.logger.Warn("Failed to cancel timed-out run",
			zap.Error(err),
			zap.String("run_id", run.ID))
	}
}
