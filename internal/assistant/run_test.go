package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeClock advances virtual time on every Sleep so poll loops run without
// real delays.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

// fakeClient scripts provider responses for orchestrator tests.
type fakeClient struct {
	createMessageErr error
	createRunErr     error
	createRunStatus  Status

	// pollStatuses are consumed one per GetRun call; the last entry repeats.
	pollStatuses []Status
	pollErrCode  string
	pollErrMsg   string

	messages []Message
	listErr  error

	createMessageCalls int
	createRunCalls     int
	getRunCalls        int
	listCalls          int
	cancelCalls        int
}

func (f *fakeClient) CreateAssistant(ctx context.Context, name, instructions, model string) (string, error) {
	return "asst_1", nil
}

func (f *fakeClient) CreateThread(ctx context.Context) (Thread, error) {
	return Thread{ID: "thread_1"}, nil
}

func (f *fakeClient) DeleteThread(ctx context.Context, threadID string) error { return nil }

func (f *fakeClient) CreateMessage(ctx context.Context, threadID, content string) (Message, error) {
	f.createMessageCalls++
	if f.createMessageErr != nil {
		return Message{}, f.createMessageErr
	}
	return Message{ID: "msg_user", Role: "user", Content: content}, nil
}

func (f *fakeClient) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.messages, nil
}

func (f *fakeClient) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	f.createRunCalls++
	if f.createRunErr != nil {
		return Run{}, f.createRunErr
	}
	status := f.createRunStatus
	if status == "" {
		status = StatusQueued
	}
	return Run{ID: "run_1", ThreadID: threadID, Status: status}, nil
}

func (f *fakeClient) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	idx := f.getRunCalls
	f.getRunCalls++
	if idx >= len(f.pollStatuses) {
		idx = len(f.pollStatuses) - 1
	}
	run := Run{ID: runID, ThreadID: threadID, Status: f.pollStatuses[idx]}
	if run.Status == StatusFailed {
		run.ErrCode = f.pollErrCode
		run.ErrMessage = f.pollErrMsg
	}
	return run, nil
}

func (f *fakeClient) CancelRun(ctx context.Context, threadID, runID string) error {
	f.cancelCalls++
	return nil
}

func (f *fakeClient) UploadFile(ctx context.Context, filename string, data []byte) (File, error) {
	return File{ID: "file_1", Filename: filename, Size: int64(len(data))}, nil
}

func (f *fakeClient) GetFile(ctx context.Context, fileID string) (File, error) {
	return File{ID: fileID}, nil
}

func (f *fakeClient) DeleteFile(ctx context.Context, fileID string) error { return nil }

func (f *fakeClient) AttachFileToAssistant(ctx context.Context, assistantID, fileID string) error {
	return nil
}

func (f *fakeClient) DetachFileFromAssistant(ctx context.Context, assistantID, fileID string) error {
	return nil
}

func newTestOrchestrator(client Client, clk clock, interval, timeout time.Duration) *Orchestrator {
	o := NewOrchestrator(client, interval, timeout, zap.NewNop())
	o.clk = clk
	return o
}

func TestExecuteCompleted(t *testing.T) {
	client := &fakeClient{
		pollStatuses: []Status{StatusInProgress, StatusCompleted},
		messages: []Message{
			{ID: "msg_1", Role: "user", Content: "hello"},
			{ID: "msg_2", Role: "assistant", Content: "hi there"},
		},
	}
	orch := newTestOrchestrator(client, newFakeClock(), time.Second, time.Minute)

	messages, err := orch.Execute(context.Background(), "thread_1", "asst_1", "hello")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Execute() returned %d messages, want 2", len(messages))
	}
	if client.getRunCalls != 2 {
		t.Errorf("GetRun called %d times, want 2", client.getRunCalls)
	}
	if client.listCalls != 1 {
		t.Errorf("ListMessages called %d times, want 1", client.listCalls)
	}
}

func TestExecuteRunFailed(t *testing.T) {
	client := &fakeClient{
		pollStatuses: []Status{StatusFailed},
		pollErrCode:  "server_error",
		pollErrMsg:   "the model had an internal error",
	}
	orch := newTestOrchestrator(client, newFakeClock(), time.Second, time.Minute)

	_, err := orch.Execute(context.Background(), "thread_1", "asst_1", "hello")
	var runErr *RunFailedError
	if !errors.As(err, &runErr) {
		t.Fatalf("Execute() error = %v, want *RunFailedError", err)
	}
	if runErr.Status != StatusFailed {
		t.Errorf("RunFailedError.Status = %q, want %q", runErr.Status, StatusFailed)
	}
	if runErr.Code != "server_error" {
		t.Errorf("RunFailedError.Code = %q, want %q", runErr.Code, "server_error")
	}
	if client.listCalls != 0 {
		t.Errorf("ListMessages called %d times after failed run, want 0", client.listCalls)
	}
}

func TestExecuteTimeout(t *testing.T) {
	client := &fakeClient{pollStatuses: []Status{StatusQueued}}
	clk := newFakeClock()
	interval := time.Second
	timeout := 10 * time.Second
	orch := newTestOrchestrator(client, clk, interval, timeout)

	_, err := orch.Execute(context.Background(), "thread_1", "asst_1", "hello")
	var timeoutErr *RunTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Execute() error = %v, want *RunTimeoutError", err)
	}
	if timeoutErr.Elapsed < timeout {
		t.Errorf("RunTimeoutError.Elapsed = %v, want >= %v", timeoutErr.Elapsed, timeout)
	}

	wantPolls := int(timeout / interval)
	if client.getRunCalls != wantPolls {
		t.Errorf("GetRun called %d times, want %d", client.getRunCalls, wantPolls)
	}
	if client.cancelCalls != 1 {
		t.Errorf("CancelRun called %d times after timeout, want 1", client.cancelCalls)
	}
}

func TestExecuteUnknownStatusIsTransient(t *testing.T) {
	client := &fakeClient{
		pollStatuses: []Status{Status("warming_up"), StatusCompleted},
		messages:     []Message{{ID: "msg_1", Role: "assistant", Content: "done"}},
	}
	orch := newTestOrchestrator(client, newFakeClock(), time.Second, time.Minute)

	messages, err := orch.Execute(context.Background(), "thread_1", "asst_1", "hello")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Execute() returned %d messages, want 1", len(messages))
	}
}

func TestExecuteMessageAppendFails(t *testing.T) {
	client := &fakeClient{
		createMessageErr: &ProviderError{StatusCode: 500, Message: "boom"},
	}
	orch := newTestOrchestrator(client, newFakeClock(), time.Second, time.Minute)

	_, err := orch.Execute(context.Background(), "thread_1", "asst_1", "hello")
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("Execute() error = %v, want *ProviderError", err)
	}
	if client.createRunCalls != 0 {
		t.Errorf("CreateRun called %d times after failed append, want 0", client.createRunCalls)
	}
}

func TestExecuteRunCreationFails(t *testing.T) {
	client := &fakeClient{
		createRunErr: &ProviderError{StatusCode: 429, Message: "rate limited"},
	}
	orch := newTestOrchestrator(client, newFakeClock(), time.Second, time.Minute)

	_, err := orch.Execute(context.Background(), "thread_1", "asst_1", "hello")
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("Execute() error = %v, want *ProviderError", err)
	}
	// The appended message stays in the thread; no polling happens.
	if client.createMessageCalls != 1 {
		t.Errorf("CreateMessage called %d times, want 1", client.createMessageCalls)
	}
	if client.getRunCalls != 0 {
		t.Errorf("GetRun called %d times after failed run creation, want 0", client.getRunCalls)
	}
}

func TestExecuteCallerCancellation(t *testing.T) {
	client := &fakeClient{pollStatuses: []Status{StatusQueued}}
	orch := newTestOrchestrator(client, newFakeClock(), time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Execute(ctx, "thread_1", "asst_1", "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	// Caller cancellation stops local polling; it does not cancel the run at
	// the provider.
	if client.cancelCalls != 0 {
		t.Errorf("CancelRun called %d times on caller cancellation, want 0", client.cancelCalls)
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusQueued, false},
		{StatusInProgress, false},
		{StatusRequiresAction, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusExpired, true},
		{Status("warming_up"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Status(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
