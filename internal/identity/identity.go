package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/leadflowhq/leadflow/internal/models"
	"github.com/leadflowhq/leadflow/internal/storage"
	"go.uber.org/zap"
)

// Claims carries the identity attributes extracted from an external-auth
// credential. The core never reads session state directly; callers pass
// Claims explicitly on every operation.
type Claims struct {
	SubjectID string
	Email     string
}

// ResolutionError wraps a failure to map an external subject to a local owner.
type ResolutionError struct {
	SubjectID string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve owner for subject %q: %v", e.SubjectID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver maps external-auth subject IDs to stable local owner keys,
// creating the mapping on first use.
type Resolver struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewResolver(store storage.Storage, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// ResolveOwner returns the owner for the given subject, creating it on first
// use. Idempotent: calling it twice with the same subject returns the same
// owner key and creates at most one row.
func (r *Resolver) ResolveOwner(ctx context.Context, subjectID, email string) (*models.Owner, error) {
	if subjectID == "" {
		return nil, &ResolutionError{SubjectID: subjectID, Err: errors.New("empty subject ID")}
	}

	owner, err := r.store.GetOwnerBySubject(ctx, subjectID)
	if err == nil {
		return owner, nil
	}

	var notFound *storage.NotFoundError
	if !errors.As(err, &notFound) {
		return nil, &ResolutionError{SubjectID: subjectID, Err: err}
	}

	owner = &models.Owner{
		Key:       uuid.New().String(),
		SubjectID: subjectID,
		Email:     email,
	}

	if err := r.store.CreateOwner(ctx, owner); err != nil {
		// Another request for the same subject may have won the insert race;
		// the existing row is authoritative.
		var conflict *storage.ConflictError
		if errors.As(err, &conflict) {
			return r.fetchExisting(ctx, subjectID)
		}
		return nil, &ResolutionError{SubjectID: subjectID, Err: err}
	}

	r.logger.Info("Created owner mapping",
		zap.String("owner_key", owner.Key),
		zap.String("subject_id", subjectID))

	return owner, nil
}

func (r *Resolver) fetchExisting(ctx context.Context, subjectID string) (*models.Owner, error) {
	owner, err := r.store.GetOwnerBySubject(ctx, subjectID)
	if err != nil {
		return nil, &ResolutionError{SubjectID: subjectID, Err: err}
	}
	return owner, nil
}
