package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/leadflowhq/leadflow/internal/assistant"
)

// fakeProvider is an in-memory assistant provider for lifecycle and façade
// tests. Failure injection fields make individual steps fail.
type fakeProvider struct {
	mu sync.Mutex

	threadSeq int
	fileSeq   int
	runSeq    int

	createThreadErr error
	deleteThreadErr error
	uploadErr       error
	getFileErr      error
	attachErr       error
	detachErr       error
	deleteFileErr   error

	deleteFileCalls int

	// providerFiles holds files uploaded directly at the provider, keyed by
	// ID, for attach tests.
	providerFiles map[string]assistant.File

	// runStatuses are consumed one per GetRun call; the last entry repeats.
	runStatuses []assistant.Status
	runErrCode  string
	runErrMsg   string
	getRunCalls int

	messages []assistant.Message
	replied  bool

	createAssistantCalls int
}

func (f *fakeProvider) CreateAssistant(ctx context.Context, name, instructions, model string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createAssistantCalls++
	return "asst_1", nil
}

func (f *fakeProvider) CreateThread(ctx context.Context) (assistant.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createThreadErr != nil {
		return assistant.Thread{}, f.createThreadErr
	}
	f.threadSeq++
	return assistant.Thread{ID: fmt.Sprintf("thread_%d", f.threadSeq)}, nil
}

func (f *fakeProvider) DeleteThread(ctx context.Context, threadID string) error {
	return f.deleteThreadErr
}

func (f *fakeProvider) CreateMessage(ctx context.Context, threadID, content string) (assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := assistant.Message{
		ID:      fmt.Sprintf("msg_%d", len(f.messages)+1),
		Role:    "user",
		Content: content,
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]assistant.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeProvider) CreateRun(ctx context.Context, threadID, assistantID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSeq++
	return assistant.Run{
		ID:       fmt.Sprintf("run_%d", f.runSeq),
		ThreadID: threadID,
		Status:   assistant.StatusQueued,
	}, nil
}

func (f *fakeProvider) GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.getRunCalls
	f.getRunCalls++
	if idx >= len(f.runStatuses) {
		idx = len(f.runStatuses) - 1
	}

	run := assistant.Run{ID: runID, ThreadID: threadID, Status: f.runStatuses[idx]}
	switch run.Status {
	case assistant.StatusCompleted:
		if !f.replied {
			f.replied = true
			f.messages = append(f.messages, assistant.Message{
				ID:      fmt.Sprintf("msg_%d", len(f.messages)+1),
				Role:    "assistant",
				Content: "Happy to help with your lead list.",
			})
		}
	case assistant.StatusFailed:
		run.ErrCode = f.runErrCode
		run.ErrMessage = f.runErrMsg
	}
	return run, nil
}

func (f *fakeProvider) CancelRun(ctx context.Context, threadID, runID string) error {
	return nil
}

func (f *fakeProvider) UploadFile(ctx context.Context, filename string, data []byte) (assistant.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return assistant.File{}, f.uploadErr
	}
	f.fileSeq++
	file := assistant.File{
		ID:       fmt.Sprintf("file_%d", f.fileSeq),
		Filename: filename,
		Size:     int64(len(data)),
	}
	if f.providerFiles == nil {
		f.providerFiles = make(map[string]assistant.File)
	}
	f.providerFiles[file.ID] = file
	return file, nil
}

func (f *fakeProvider) GetFile(ctx context.Context, fileID string) (assistant.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getFileErr != nil {
		return assistant.File{}, f.getFileErr
	}
	if file, ok := f.providerFiles[fileID]; ok {
		return file, nil
	}
	return assistant.File{}, &assistant.ProviderError{StatusCode: 404, Message: "no file found"}
}

func (f *fakeProvider) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFileCalls++
	return f.deleteFileErr
}

func (f *fakeProvider) AttachFileToAssistant(ctx context.Context, assistantID, fileID string) error {
	return f.attachErr
}

func (f *fakeProvider) DetachFileFromAssistant(ctx context.Context, assistantID, fileID string) error {
	return f.detachErr
}
