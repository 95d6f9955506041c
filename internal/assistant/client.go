package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// TokenSource supplies a bearer credential for the assistant provider.
// Token is called immediately before every provider request; credentials are
// short-lived and must not be cached across calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed API key. Used for deployments where the
// provider credential is a long-lived key rather than a per-session token.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no provider API key configured")
	}
	return string(s), nil
}

// ProviderError is a decoded failure response from the assistant provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.StatusCode == 404
}

// Status is a run lifecycle state as reported by the provider.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
	StatusExpired        Status = "expired"
)

// Terminal reports whether the status ends a run's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Thread is the provider-side conversation container.
type Thread struct {
	ID        string
	CreatedAt time.Time
}

// Message is a single conversation entry, decoded down to the fields the
// core reads; everything else in the provider payload is ignored.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is the provider-side execution of an assistant against a thread.
// It lives only in orchestrator memory and is never persisted locally.
type Run struct {
	ID         string
	ThreadID   string
	Status     Status
	ErrCode    string
	ErrMessage string
}

// File is a provider-side uploaded file.
type File struct {
	ID       string
	Filename string
	Size     int64
}

// Client is a stateless wrapper over the assistant provider API: one method
// per resource-action pair, no retries, no business-state interpretation.
type Client interface {
	CreateAssistant(ctx context.Context, name, instructions, model string) (string, error)
	CreateThread(ctx context.Context) (Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	CreateMessage(ctx context.Context, threadID, content string) (Message, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	UploadFile(ctx context.Context, filename string, data []byte) (File, error)
	GetFile(ctx context.Context, fileID string) (File, error)
	DeleteFile(ctx context.Context, fileID string) error
	AttachFileToAssistant(ctx context.Context, assistantID, fileID string) error
	DetachFileFromAssistant(ctx context.Context, assistantID, fileID string) error
}

// OpenAIClient implements Client against the OpenAI assistants API. A fresh
// SDK client is built per call so every request carries a freshly obtained
// credential.
type OpenAIClient struct {
	tokens TokenSource
}

func NewOpenAIClient(tokens TokenSource) *OpenAIClient {
	return &OpenAIClient{tokens: tokens}
}

func (c *OpenAIClient) api(ctx context.Context) (*openai.Client, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain provider credential: %w", err)
	}
	return openai.NewClient(token), nil
}

// asProviderError converts SDK failures into the core error taxonomy.
func asProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}

func (c *OpenAIClient) CreateAssistant(ctx context.Context, name, instructions, model string) (string, error) {
	api, err := c.api(ctx)
	if err != nil {
		return "", err
	}

	resp, err := api.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeRetrieval}},
	})
	if err != nil {
		return "", asProviderError(err)
	}

	return resp.ID, nil
}

func (c *OpenAIClient) CreateThread(ctx context.Context) (Thread, error) {
	api, err := c.api(ctx)
	if err != nil {
		return Thread{}, err
	}

	resp, err := api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return Thread{}, asProviderError(err)
	}

	return Thread{
		ID:        resp.ID,
		CreatedAt: time.Unix(resp.CreatedAt, 0),
	}, nil
}

func (c *OpenAIClient) DeleteThread(ctx context.Context, threadID string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	if _, err := api.DeleteThread(ctx, threadID); err != nil {
		return asProviderError(err)
	}
	return nil
}

func (c *OpenAIClient) CreateMessage(ctx context.Context, threadID, content string) (Message, error) {
	api, err := c.api(ctx)
	if err != nil {
		return Message{}, err
	}

	resp, err := api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return Message{}, asProviderError(err)
	}

	return decodeMessage(resp), nil
}

func (c *OpenAIClient) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	order := "asc"
	resp, err := api.ListMessage(ctx, threadID, nil, &order, nil, nil, nil)
	if err != nil {
		return nil, asProviderError(err)
	}

	messages := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, decodeMessage(m))
	}
	return messages, nil
}

func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	api, err := c.api(ctx)
	if err != nil {
		return Run{}, err
	}

	resp, err := api.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: assistantID,
	})
	if err != nil {
		return Run{}, asProviderError(err)
	}

	return decodeRun(resp), nil
}

func (c *OpenAIClient) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	api, err := c.api(ctx)
	if err != nil {
		return Run{}, err
	}

	resp, err := api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, asProviderError(err)
	}

	return decodeRun(resp), nil
}

func (c *OpenAIClient) CancelRun(ctx context.Context, threadID, runID string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	if _, err := api.CancelRun(ctx, threadID, runID); err != nil {
		return asProviderError(err)
	}
	return nil
}

func (c *OpenAIClient) UploadFile(ctx context.Context, filename string, data []byte) (File, error) {
	api, err := c.api(ctx)
	if err != nil {
		return File{}, err
	}

	resp, err := api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    filename,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return File{}, asProviderError(err)
	}

	return File{
		ID:       resp.ID,
		Filename: resp.FileName,
		Size:     int64(resp.Bytes),
	}, nil
}

func (c *OpenAIClient) GetFile(ctx context.Context, fileID string) (File, error) {
	api, err := c.api(ctx)
	if err != nil {
		return File{}, err
	}

	resp, err := api.GetFile(ctx, fileID)
	if err != nil {
		return File{}, asProviderError(err)
	}

	return File{
		ID:       resp.ID,
		Filename: resp.FileName,
		Size:     int64(resp.Bytes),
	}, nil
}

func (c *OpenAIClient) DeleteFile(ctx context.Context, fileID string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	if err := api.DeleteFile(ctx, fileID); err != nil {
		return asProviderError(err)
	}
	return nil
}

func (c *OpenAIClient) AttachFileToAssistant(ctx context.Context, assistantID, fileID string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	if _, err := api.CreateAssistantFile(ctx, assistantID, openai.AssistantFileRequest{
		FileID: fileID,
	}); err != nil {
		return asProviderError(err)
	}
	return nil
}

func (c *OpenAIClient) DetachFileFromAssistant(ctx context.Context, assistantID, fileID string) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	if err := api.DeleteAssistantFile(ctx, assistantID, fileID); err != nil {
		return asProviderError(err)
	}
	return nil
}

func decodeMessage(m openai.Message) Message {
	var parts []string
	for _, content := range m.Content {
		if content.Text != nil {
			parts = append(parts, content.Text.Value)
		}
	}

	return Message{
		ID:        m.ID,
		Role:      m.Role,
		Content:   strings.Join(parts, "\n"),
		CreatedAt: time.Unix(int64(m.CreatedAt), 0),
	}
}

func decodeRun(r openai.Run) Run {
	run := Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   Status(r.Status),
	}
	if r.LastError != nil {
		run.ErrCode = string(r.LastError.Code)
		run.ErrMessage = r.LastError.Message
	}
	return run
}
