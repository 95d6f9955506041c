package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leadflowhq/leadflow/internal/models"
)

// MemoryStorage is a mutex-guarded in-memory implementation of Storage,
// used for tests and local development.
type MemoryStorage struct {
	mu       sync.RWMutex
	owners   map[string]*models.Owner // keyed by subject ID
	bindings map[string]*models.AssistantBinding
	threads  map[string]*models.Thread
	files    map[string]*models.FileBinding
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		owners:   make(map[string]*models.Owner),
		bindings: make(map[string]*models.AssistantBinding),
		threads:  make(map[string]*models.Thread),
		files:    make(map[string]*models.FileBinding),
	}
}

func (s *MemoryStorage) GetOwnerBySubject(ctx context.Context, subjectID string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, exists := s.owners[subjectID]
	if !exists {
		return nil, &NotFoundError{Kind: "owner", Key: subjectID}
	}
	copied := *owner
	return &copied, nil
}

func (s *MemoryStorage) CreateOwner(ctx context.Context, owner *models.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[owner.SubjectID]; exists {
		return &ConflictError{Kind: "owner", Key: owner.SubjectID}
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now()
	}
	copied := *owner
	s.owners[owner.SubjectID] = &copied
	return nil
}

func (s *MemoryStorage) GetAssistantBinding(ctx context.Context, ownerKey string) (*models.AssistantBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, exists := s.bindings[ownerKey]
	if !exists {
		return nil, &NotFoundError{Kind: "assistant binding", Key: ownerKey}
	}
	copied := *binding
	return &copied, nil
}

func (s *MemoryStorage) UpsertAssistantBinding(ctx context.Context, binding *models.AssistantBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.bindings[binding.OwnerKey]; exists {
		binding.CreatedAt = existing.CreatedAt
	} else if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now()
	}
	copied := *binding
	s.bindings[binding.OwnerKey] = &copied
	return nil
}

func (s *MemoryStorage) CreateThread(ctx context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[thread.ThreadID]; exists {
		return &ConflictError{Kind: "thread", Key: thread.ThreadID}
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now()
	}
	copied := *thread
	s.threads[thread.ThreadID] = &copied
	return nil
}

func (s *MemoryStorage) GetThread(ctx context.Context, ownerKey, threadID string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, exists := s.threads[threadID]
	if !exists || thread.OwnerKey != ownerKey {
		return nil, &NotFoundError{Kind: "thread", Key: threadID}
	}
	copied := *thread
	return &copied, nil
}

func (s *MemoryStorage) ListThreads(ctx context.Context, ownerKey string) ([]*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var threads []*models.Thread
	for _, thread := range s.threads {
		if thread.OwnerKey != ownerKey {
			continue
		}
		copied := *thread
		threads = append(threads, &copied)
	}

	// Newest activity first; untouched threads sort by creation time.
	sort.Slice(threads, func(i, j int) bool {
		ti, tj := threads[i], threads[j]
		switch {
		case ti.LastMessageAt != nil && tj.LastMessageAt != nil:
			return ti.LastMessageAt.After(*tj.LastMessageAt)
		case ti.LastMessageAt != nil:
			return true
		case tj.LastMessageAt != nil:
			return false
		default:
			return ti.CreatedAt.After(tj.CreatedAt)
		}
	})

	return threads, nil
}

func (s *MemoryStorage) TouchThread(ctx context.Context, ownerKey, threadID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, exists := s.threads[threadID]
	if !exists || thread.OwnerKey != ownerKey {
		return &NotFoundError{Kind: "thread", Key: threadID}
	}
	if thread.LastMessageAt == nil || at.After(*thread.LastMessageAt) {
		thread.LastMessageAt = &at
	}
	return nil
}

func (s *MemoryStorage) SetThreadTitle(ctx context.Context, ownerKey, threadID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, exists := s.threads[threadID]
	if !exists || thread.OwnerKey != ownerKey {
		return &NotFoundError{Kind: "thread", Key: threadID}
	}
	thread.Title = title
	return nil
}

func (s *MemoryStorage) DeleteThread(ctx context.Context, ownerKey, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, exists := s.threads[threadID]
	if !exists || thread.OwnerKey != ownerKey {
		return &NotFoundError{Kind: "thread", Key: threadID}
	}
	delete(s.threads, threadID)
	return nil
}

func (s *MemoryStorage) CreateFileBinding(ctx context.Context, binding *models.FileBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.files[binding.FileID]; exists {
		return &ConflictError{Kind: "file binding", Key: binding.FileID}
	}
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now()
	}
	copied := *binding
	s.files[binding.FileID] = &copied
	return nil
}

func (s *MemoryStorage) GetFileBinding(ctx context.Context, ownerKey, fileID string) (*models.FileBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	binding, exists := s.files[fileID]
	if !exists || binding.OwnerKey != ownerKey {
		return nil, &NotFoundError{Kind: "file binding", Key: fileID}
	}
	copied := *binding
	return &copied, nil
}

func (s *MemoryStorage) ListFileBindings(ctx context.Context, ownerKey string) ([]*models.FileBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bindings []*models.FileBinding
	for _, binding := range s.files {
		if binding.OwnerKey != ownerKey {
			continue
		}
		copied := *binding
		bindings = append(bindings, &copied)
	}

	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].CreatedAt.After(bindings[j].CreatedAt)
	})

	return bindings, nil
}

func (s *MemoryStorage) DeleteFileBinding(ctx context.Context, ownerKey, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, exists := s.files[fileID]
	if !exists || binding.OwnerKey != ownerKey {
		return &NotFoundError{Kind: "file binding", Key: fileID}
	}
	delete(s.files, fileID)
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
