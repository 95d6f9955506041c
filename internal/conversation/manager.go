package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadflowhq/leadflow/internal/assistant"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/storage"
	"go.uber.org/zap"
)

// AssistantProfile describes the provider assistant provisioned for each
// owner on first use.
type AssistantProfile struct {
	Name         string
	Instructions string
	Model        string
}

// Manager composes the provider client and the metadata store to keep both
// sides in agreement across thread and file lifecycles. Ordering rules:
// provider resources are created before local records, and local records are
// removed only after the provider no longer holds the resource.
type Manager struct {
	store   storage.Storage
	client  assistant.Client
	profile AssistantProfile
	logger  *zap.Logger
}

func NewManager(store storage.Storage, client assistant.Client, profile AssistantProfile, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		client:  client,
		profile: profile,
		logger:  logger,
	}
}

// EnsureAssistant returns the owner's assistant binding, provisioning a
// provider assistant and recording the binding on first use.
func (m *Manager) EnsureAssistant(ctx context.Context, ownerKey string) (*models.AssistantBinding, error) {
	binding, err := m.store.GetAssistantBinding(ctx, ownerKey)
	if err == nil {
		return binding, nil
	}

	var notFound *storage.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	assistantID, err := m.client.CreateAssistant(ctx, m.profile.Name, m.profile.Instructions, m.profile.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to provision assistant: %w", err)
	}

	binding = &models.AssistantBinding{
		OwnerKey:    ownerKey,
		AssistantID: assistantID,
		Status:      models.BindingStatusActive,
		Metadata:    map[string]string{"model": m.profile.Model},
	}
	if err := m.store.UpsertAssistantBinding(ctx, binding); err != nil {
		return nil, fmt.Errorf("failed to record assistant binding: %w", err)
	}

	m.logger.Info("Provisioned assistant",
		zap.String("owner_key", ownerKey),
		zap.String("assistant_id", assistantID))

	return binding, nil
}

// CreateThread creates a provider thread and records it locally. A local
// insert failure after a successful provider create leaves an orphan thread
// at the provider; it is surfaced as a PartialWriteError, not compensated.
func (m *Manager) CreateThread(ctx context.Context, ownerKey, title string) (*models.Thread, error) {
	if title == "" {
		title = models.DefaultThreadTitle
	}

	providerThread, err := m.client.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	thread := &models.Thread{
		OwnerKey: ownerKey,
		ThreadID: providerThread.ID,
		Title:    title,
	}
	if err := m.store.CreateThread(ctx, thread); err != nil {
		m.logger.Error("Thread created at provider but not recorded locally",
			zap.Error(err),
			zap.String("thread_id", providerThread.ID),
			zap.String("owner_key", ownerKey))
		return nil, &PartialWriteError{Step: StepRecordThread, Err: err}
	}

	return thread, nil
}

// DeleteThread removes the thread at the provider before removing the local
// row, so the metadata store is never ahead of the provider. A provider 404
// means the thread is already gone and the local row is removed anyway.
func (m *Manager) DeleteThread(ctx context.Context, ownerKey, threadID string) error {
	if _, err := m.store.GetThread(ctx, ownerKey, threadID); err != nil {
		return err
	}

	if err := m.client.DeleteThread(ctx, threadID); err != nil {
		if !assistant.IsNotFound(err) {
			return fmt.Errorf("failed to delete thread at provider: %w", err)
		}
		m.logger.Info("Thread already deleted at provider",
			zap.String("thread_id", threadID))
	}

	return m.store.DeleteThread(ctx, ownerKey, threadID)
}

// ListMessages returns the thread's messages after verifying ownership.
func (m *Manager) ListMessages(ctx context.Context, ownerKey, threadID string) ([]assistant.Message, error) {
	if _, err := m.store.GetThread(ctx, ownerKey, threadID); err != nil {
		return nil, err
	}
	return m.client.ListMessages(ctx, threadID)
}

// UploadFile uploads to the provider, attaches the file to the owner's
// assistant, then records the binding. A failure after the upload leaves an
// unattached provider file; no rollback is attempted.
func (m *Manager) UploadFile(ctx context.Context, ownerKey, filename, contentType string, data []byte) (*models.FileBinding, error) {
	binding, err := m.EnsureAssistant(ctx, ownerKey)
	if err != nil {
		return nil, err
	}

	file, err := m.client.UploadFile(ctx, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	if err := m.client.AttachFileToAssistant(ctx, binding.AssistantID, file.ID); err != nil {
		m.logger.Error("File uploaded but not attached",
			zap.Error(err),
			zap.String("file_id", file.ID),
			zap.String("assistant_id", binding.AssistantID))
		return nil, &PartialWriteError{Step: StepAttachFile, Err: err}
	}

	fileBinding := &models.FileBinding{
		OwnerKey:    ownerKey,
		AssistantID: binding.AssistantID,
		FileID:      file.ID,
		Filename:    file.Filename,
		Size:        file.Size,
		ContentType: contentType,
	}
	if fileBinding.Size == 0 {
		fileBinding.Size = int64(len(data))
	}
	if err := m.store.CreateFileBinding(ctx, fileBinding); err != nil {
		m.logger.Error("File attached but not recorded locally",
			zap.Error(err),
			zap.String("file_id", file.ID),
			zap.String("owner_key", ownerKey))
		return nil, &PartialWriteError{Step: StepRecordFile, Err: err}
	}

	return fileBinding, nil
}

// AttachFile attaches a file that already exists at the provider to the
// owner's assistant and records the binding. The file's name and size are
// read back from the provider rather than trusted from the caller.
func (m *Manager) AttachFile(ctx context.Context, ownerKey, fileID string) (*models.FileBinding, error) {
	binding, err := m.EnsureAssistant(ctx, ownerKey)
	if err != nil {
		return nil, err
	}

	file, err := m.client.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up file: %w", err)
	}

	if err := m.client.AttachFileToAssistant(ctx, binding.AssistantID, file.ID); err != nil {
		return nil, &PartialWriteError{Step: StepAttachFile, Err: err}
	}

	fileBinding := &models.FileBinding{
		OwnerKey:    ownerKey,
		AssistantID: binding.AssistantID,
		FileID:      file.ID,
		Filename:    file.Filename,
		Size:        file.Size,
	}
	if err := m.store.CreateFileBinding(ctx, fileBinding); err != nil {
		m.logger.Error("File attached but not recorded locally",
			zap.Error(err),
			zap.String("file_id", file.ID),
			zap.String("owner_key", ownerKey))
		return nil, &PartialWriteError{Step: StepRecordFile, Err: err}
	}

	return fileBinding, nil
}

// RemoveFile detaches the file from the assistant and removes the local
// binding. The file itself stays at the provider and can be re-attached;
// DeleteFile is the full teardown.
func (m *Manager) RemoveFile(ctx context.Context, ownerKey, fileID string) error {
	binding, err := m.store.GetFileBinding(ctx, ownerKey, fileID)
	if err != nil {
		return err
	}

	if err := m.client.DetachFileFromAssistant(ctx, binding.AssistantID, fileID); err != nil {
		return &PartialWriteError{Step: StepDetachFile, Err: err}
	}

	if err := m.store.DeleteFileBinding(ctx, ownerKey, fileID); err != nil {
		m.logger.Error("File detached but local binding remains",
			zap.Error(err),
			zap.String("file_id", fileID))
		return &PartialWriteError{Step: StepRemoveFileRecord, Err: err}
	}

	return nil
}

// DeleteFile detaches the file from the assistant, deletes it at the
// provider, then removes the local binding, in that order. A failure at any
// step aborts the remaining steps and names the step that failed.
func (m *Manager) DeleteFile(ctx context.Context, ownerKey, fileID string) error {
	binding, err := m.store.GetFileBinding(ctx, ownerKey, fileID)
	if err != nil {
		return err
	}

	if err := m.client.DetachFileFromAssistant(ctx, binding.AssistantID, fileID); err != nil {
		return &PartialWriteError{Step: StepDetachFile, Err: err}
	}

	if err := m.client.DeleteFile(ctx, fileID); err != nil {
		return &PartialWriteError{Step: StepDeleteFile, Err: err}
	}

	if err := m.store.DeleteFileBinding(ctx, ownerKey, fileID); err != nil {
		m.logger.Error("File deleted at provider but local binding remains",
			zap.Error(err),
			zap.String("file_id", fileID))
		return &PartialWriteError{Step: StepRemoveFileRecord, Err: err}
	}

	return nil
}

// ListFiles returns the owner's file bindings, newest first.
func (m *Manager) ListFiles(ctx context.Context, ownerKey string) ([]*models.FileBinding, error) {
	return m.store.ListFileBindings(ctx, ownerKey)
}
