package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/leadflowhq/leadflow/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// uniqueViolation is the Postgres error code for a unique constraint violation.
const uniqueViolation = "23505"

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func (s *PostgresStorage) GetOwnerBySubject(ctx context.Context, subjectID string) (*models.Owner, error) {
	query := `
		SELECT key, subject_id, email, created_at
		FROM owners
		WHERE subject_id = $1`

	owner := &models.Owner{}
	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(
		&owner.Key,
		&owner.SubjectID,
		&owner.Email,
		&owner.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "owner", Key: subjectID}
	}
	if err != nil {
		return nil, fmt.Errorf("error querying owner: %v", err)
	}

	return owner, nil
}

func (s *PostgresStorage) CreateOwner(ctx context.Context, owner *models.Owner) error {
	query := `
		INSERT INTO owners (key, subject_id, email)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, owner.Key, owner.SubjectID, owner.Email).
		Scan(&owner.CreatedAt)
	if isUniqueViolation(err) {
		return &ConflictError{Kind: "owner", Key: owner.SubjectID}
	}
	if err != nil {
		return fmt.Errorf("error creating owner: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetAssistantBinding(ctx context.Context, ownerKey string) (*models.AssistantBinding, error) {
	query := `
		SELECT owner_key, assistant_id, status, metadata, created_at
		FROM assistant_bindings
		WHERE owner_key = $1`

	binding := &models.AssistantBinding{}
	var metadata []byte
	err := s.db.QueryRowContext(ctx, query, ownerKey).Scan(
		&binding.OwnerKey,
		&binding.AssistantID,
		&binding.Status,
		&metadata,
		&binding.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "assistant binding", Key: ownerKey}
	}
	if err != nil {
		return nil, fmt.Errorf("error querying assistant binding: %v", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &binding.Metadata); err != nil {
			return nil, fmt.Errorf("error decoding binding metadata: %v", err)
		}
	}

	return binding, nil
}

func (s *PostgresStorage) UpsertAssistantBinding(ctx context.Context, binding *models.AssistantBinding) error {
	var metadata []byte
	if binding.Metadata != nil {
		var err error
		metadata, err = json.Marshal(binding.Metadata)
		if err != nil {
			return fmt.Errorf("error encoding binding metadata: %v", err)
		}
	}

	query := `
		INSERT INTO assistant_bindings (owner_key, assistant_id, status, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_key) DO UPDATE
		SET assistant_id = EXCLUDED.assistant_id,
		    status = EXCLUDED.status,
		    metadata = EXCLUDED.metadata
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		binding.OwnerKey, binding.AssistantID, binding.Status, metadata,
	).Scan(&binding.CreatedAt)
	if err != nil {
		return fmt.Errorf("error upserting assistant binding: %v", err)
	}

	return nil
}

func (s *PostgresStorage) CreateThread(ctx context.Context, thread *models.Thread) error {
	query := `
		INSERT INTO threads (thread_id, owner_key, title)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, thread.ThreadID, thread.OwnerKey, thread.Title).
		Scan(&thread.CreatedAt)
	if isUniqueViolation(err) {
		return &ConflictError{Kind: "thread", Key: thread.ThreadID}
	}
	if err != nil {
		return fmt.Errorf("error creating thread: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetThread(ctx context.Context, ownerKey, threadID string) (*models.Thread, error) {
	query := `
		SELECT thread_id, owner_key, title, created_at, last_message_at
		FROM threads
		WHERE owner_key = $1 AND thread_id = $2`

	thread := &models.Thread{}
	err := s.db.QueryRowContext(ctx, query, ownerKey, threadID).Scan(
		&thread.ThreadID,
		&thread.OwnerKey,
		&thread.Title,
		&thread.CreatedAt,
		&thread.LastMessageAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "thread", Key: threadID}
	}
	if err != nil {
		return nil, fmt.Errorf("error querying thread: %v", err)
	}

	return thread, nil
}

func (s *PostgresStorage) ListThreads(ctx context.Context, ownerKey string) ([]*models.Thread, error) {
	query := `
		SELECT thread_id, owner_key, title, created_at, last_message_at
		FROM threads
		WHERE owner_key = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("error querying threads: %v", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread := &models.Thread{}
		err := rows.Scan(
			&thread.ThreadID,
			&thread.OwnerKey,
			&thread.Title,
			&thread.CreatedAt,
			&thread.LastMessageAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning thread: %v", err)
		}
		threads = append(threads, thread)
	}

	return threads, rows.Err()
}

func (s *PostgresStorage) TouchThread(ctx context.Context, ownerKey, threadID string, at time.Time) error {
	// GREATEST keeps last_message_at monotonically non-decreasing even if
	// touches arrive out of order.
	query := `
		UPDATE threads
		SET last_message_at = GREATEST(COALESCE(last_message_at, $3), $3)
		WHERE owner_key = $1 AND thread_id = $2`

	result, err := s.db.ExecContext(ctx, query, ownerKey, threadID, at)
	if err != nil {
		return fmt.Errorf("error touching thread: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Kind: "thread", Key: threadID}
	}

	return nil
}

func (s *PostgresStorage) SetThreadTitle(ctx context.Context, ownerKey, threadID, title string) error {
	query := `
		UPDATE threads
		SET title = $3
		WHERE owner_key = $1 AND thread_id = $2`

	result, err := s.db.ExecContext(ctx, query, ownerKey, threadID, title)
	if err != nil {
		return fmt.Errorf("error updating thread title: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Kind: "thread", Key: threadID}
	}

	return nil
}

func (s *PostgresStorage) DeleteThread(ctx context.Context, ownerKey, threadID string) error {
	query := `DELETE FROM threads WHERE owner_key = $1 AND thread_id = $2`

	result, err := s.db.ExecContext(ctx, query, ownerKey, threadID)
	if err != nil {
		return fmt.Errorf("error deleting thread: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Kind: "thread", Key: threadID}
	}

	return nil
}

func (s *PostgresStorage) CreateFileBinding(ctx context.Context, binding *models.FileBinding) error {
	query := `
		INSERT INTO file_bindings (file_id, owner_key, assistant_id, filename, size, content_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		binding.FileID,
		binding.OwnerKey,
		binding.AssistantID,
		binding.Filename,
		binding.Size,
		binding.ContentType,
	).Scan(&binding.CreatedAt)
	if isUniqueViolation(err) {
		return &ConflictError{Kind: "file binding", Key: binding.FileID}
	}
	if err != nil {
		return fmt.Errorf("error creating file binding: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetFileBinding(ctx context.Context, ownerKey, fileID string) (*models.FileBinding, error) {
	query := `
		SELECT file_id, owner_key, assistant_id, filename, size, content_type, created_at
		FROM file_bindings
		WHERE owner_key = $1 AND file_id = $2`

	binding := &models.FileBinding{}
	err := s.db.QueryRowContext(ctx, query, ownerKey, fileID).Scan(
		&binding.FileID,
		&binding.OwnerKey,
		&binding.AssistantID,
		&binding.Filename,
		&binding.Size,
		&binding.ContentType,
		&binding.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "file binding", Key: fileID}
	}
	if err != nil {
		return nil, fmt.Errorf("error querying file binding: %v", err)
	}

	return binding, nil
}

func (s *PostgresStorage) ListFileBindings(ctx context.Context, ownerKey string) ([]*models.FileBinding, error) {
	query := `
		SELECT file_id, owner_key, assistant_id, filename, size, content_type, created_at
		FROM file_bindings
		WHERE owner_key = $1
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("error querying file bindings: %v", err)
	}
	defer rows.Close()

	var bindings []*models.FileBinding
	for rows.Next() {
		binding := &models.FileBinding{}
		err := rows.Scan(
			&binding.FileID,
			&binding.OwnerKey,
			&binding.AssistantID,
			&binding.Filename,
			&binding.Size,
			&binding.ContentType,
			&binding.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning file binding: %v", err)
		}
		bindings = append(bindings, binding)
	}

	return bindings, rows.Err()
}

func (s *PostgresStorage) DeleteFileBinding(ctx context.Context, ownerKey, fileID string) error {
	query := `DELETE FROM file_bindings WHERE owner_key = $1 AND file_id = $2`

	result, err := s.db.ExecContext(ctx, query, ownerKey, fileID)
	if err != nil {
		return fmt.Errorf("error deleting file binding: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Kind: "file binding", Key: fileID}
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
