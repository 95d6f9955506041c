package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leadflowhq/leadflow/internal/assistant"
	"github.com/leadflowhq/leadflow/internal/identity"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/storage"
	"go.uber.org/zap"
)

const maxDerivedTitleLen = 48

// Service is the conversation façade consumed by the UI layer. Every method
// resolves the caller's owner key through the identity bridge first, then
// delegates to the lifecycle manager and the run orchestrator.
type Service struct {
	resolver *identity.Resolver
	store    storage.Storage
	manager  *Manager
	orch     *assistant.Orchestrator
	logger   *zap.Logger

	// activeRuns guards the one-active-run-per-thread invariant within this
	// process. Keyed by thread ID.
	activeRuns sync.Map
}

func NewService(resolver *identity.Resolver, store storage.Storage, manager *Manager, orch *assistant.Orchestrator, logger *zap.Logger) *Service {
	return &Service{
		resolver: resolver,
		store:    store,
		manager:  manager,
		orch:     orch,
		logger:   logger,
	}
}

func (s *Service) GetOrCreateAssistant(ctx context.Context, claims identity.Claims) (*models.AssistantBinding, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.manager.EnsureAssistant(ctx, owner.Key)
}

func (s *Service) CreateThread(ctx context.Context, claims identity.Claims, title string) (*models.Thread, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.manager.CreateThread(ctx, owner.Key, title)
}

func (s *Service) ListThreads(ctx context.Context, claims identity.Claims) ([]*models.Thread, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.store.ListThreads(ctx, owner.Key)
}

func (s *Service) DeleteThread(ctx context.Context, claims identity.Claims, threadID string) error {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return err
	}
	return s.manager.DeleteThread(ctx, owner.Key, threadID)
}

func (s *Service) ListMessages(ctx context.Context, claims identity.Claims, threadID string) ([]assistant.Message, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.manager.ListMessages(ctx, owner.Key, threadID)
}

// SendMessage appends content to the thread, drives a run to completion, and
// returns the full message list. It is all-or-nothing: either the list after
// a completed run, or an error. Duration is dominated by run polling.
func (s *Service) SendMessage(ctx context.Context, claims identity.Claims, threadID, content string) ([]assistant.Message, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}

	thread, err := s.store.GetThread(ctx, owner.Key, threadID)
	if err != nil {
		return nil, err
	}

	binding, err := s.manager.EnsureAssistant(ctx, owner.Key)
	if err != nil {
		return nil, err
	}

	if _, busy := s.activeRuns.LoadOrStore(threadID, struct{}{}); busy {
		return nil, &storage.ConflictError{Kind: "active run on thread", Key: threadID}
	}
	defer s.activeRuns.Delete(threadID)

	messages, err := s.orch.Execute(ctx, threadID, binding.AssistantID, content)
	if err != nil {
		return nil, err
	}

	// The message list has already been delivered; a lost activity-timestamp
	// or title update is logged rather than failing the send.
	if err := s.store.TouchThread(ctx, owner.Key, threadID, time.Now()); err != nil {
		s.logger.Warn("Failed to update thread activity timestamp",
			zap.Error(err),
			zap.String("thread_id", threadID))
	}

	if thread.Title == "" || thread.Title == models.DefaultThreadTitle {
		if err := s.store.SetThreadTitle(ctx, owner.Key, threadID, deriveTitle(content)); err != nil {
			s.logger.Warn("Failed to set thread title",
				zap.Error(err),
				zap.String("thread_id", threadID))
		}
	}

	return messages, nil
}

func (s *Service) UploadFile(ctx context.Context, claims identity.Claims, filename, contentType string, data []byte) (*models.FileBinding, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.manager.UploadFile(ctx, owner.Key, filename, contentType, data)
}

func (s *Service) AttachFile(ctx context.Context, claims identity.Claims, fileID string) (*models.FileBinding, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.manager.AttachFile(ctx, owner.Key, fileID)
}

func (s *Service) RemoveFile(ctx context.Context, claims identity.Claims, fileID string) error {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return err
	}
	return s.manager.RemoveFile(ctx, owner.Key, fileID)
}

func (s *Service) ListFiles(ctx context.Context, claims identity.Claims) ([]*models.FileBinding, error) {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return nil, err
	}
	return s.manager.ListFiles(ctx, owner.Key)
}

func (s *Service) DeleteFile(ctx context.Context, claims identity.Claims, fileID string) error {
	owner, err := s.resolver.ResolveOwner(ctx, claims.SubjectID, claims.Email)
	if err != nil {
		return err
	}
	return s.manager.DeleteFile(ctx, owner.Key, fileID)
}

// deriveTitle turns the first user message into a thread title.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > maxDerivedTitleLen {
		title = strings.TrimSpace(string(runes[:maxDerivedTitleLen])) + "..."
	}
	if title == "" {
		title = models.DefaultThreadTitle
	}
	return title
}
