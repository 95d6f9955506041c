package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/leadflowhq/leadflow/internal/models"
)

// NotFoundError is returned when a targeted single-record read matches zero rows.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// ConflictError is returned when a unique constraint is violated, e.g. a
// second AssistantBinding for the same owner.
type ConflictError struct {
	Kind string
	Key  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Key)
}

// Storage is the metadata store adapter. Every thread and file-binding
// operation is scoped by owner key; no call can observe another owner's rows.
type Storage interface {
	GetOwnerBySubject(ctx context.Context, subjectID string) (*models.Owner, error)
	CreateOwner(ctx context.Context, owner *models.Owner) error

	GetAssistantBinding(ctx context.Context, ownerKey string) (*models.AssistantBinding, error)
	UpsertAssistantBinding(ctx context.Context, binding *models.AssistantBinding) error

	CreateThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, ownerKey, threadID string) (*models.Thread, error)
	ListThreads(ctx context.Context, ownerKey string) ([]*models.Thread, error)
	TouchThread(ctx context.Context, ownerKey, threadID string, at time.Time) error
	SetThreadTitle(ctx context.Context, ownerKey, threadID, title string) error
	DeleteThread(ctx context.Context, ownerKey, threadID string) error

	CreateFileBinding(ctx context.Context, binding *models.FileBinding) error
	GetFileBinding(ctx context.Context, ownerKey, fileID string) (*models.FileBinding, error)
	ListFileBindings(ctx context.Context, ownerKey string) ([]*models.FileBinding, error)
	DeleteFileBinding(ctx context.Context, ownerKey, fileID string) error

	Close() error
}
