package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leadflowhq/leadflow/internal/models"
)

func TestOwnerCreateAndGet(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	owner := &models.Owner{Key: "owner-1", SubjectID: "auth0|a", Email: "a@example.com"}
	if err := store.CreateOwner(ctx, owner); err != nil {
		t.Fatalf("CreateOwner() error = %v", err)
	}

	got, err := store.GetOwnerBySubject(ctx, "auth0|a")
	if err != nil {
		t.Fatalf("GetOwnerBySubject() error = %v", err)
	}
	if got.Key != "owner-1" {
		t.Errorf("GetOwnerBySubject() key = %q, want %q", got.Key, "owner-1")
	}

	var conflict *ConflictError
	err = store.CreateOwner(ctx, &models.Owner{Key: "owner-2", SubjectID: "auth0|a"})
	if !errors.As(err, &conflict) {
		t.Errorf("CreateOwner() duplicate error = %v, want *ConflictError", err)
	}

	var notFound *NotFoundError
	_, err = store.GetOwnerBySubject(ctx, "auth0|missing")
	if !errors.As(err, &notFound) {
		t.Errorf("GetOwnerBySubject() missing error = %v, want *NotFoundError", err)
	}
}

func TestThreadOwnerScoping(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	if err := store.CreateThread(ctx, &models.Thread{OwnerKey: "owner-a", ThreadID: "thread_a"}); err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	if err := store.CreateThread(ctx, &models.Thread{OwnerKey: "owner-b", ThreadID: "thread_b"}); err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}

	// owner-b must not see or act on owner-a's thread
	var notFound *NotFoundError
	if _, err := store.GetThread(ctx, "owner-b", "thread_a"); !errors.As(err, &notFound) {
		t.Errorf("GetThread() cross-owner error = %v, want *NotFoundError", err)
	}
	if err := store.DeleteThread(ctx, "owner-b", "thread_a"); !errors.As(err, &notFound) {
		t.Errorf("DeleteThread() cross-owner error = %v, want *NotFoundError", err)
	}

	threads, err := store.ListThreads(ctx, "owner-a")
	if err != nil {
		t.Fatalf("ListThreads() error = %v", err)
	}
	if len(threads) != 1 || threads[0].ThreadID != "thread_a" {
		t.Errorf("ListThreads(owner-a) = %v, want only thread_a", threads)
	}
}

func TestListThreadsNewestFirst(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"thread_1", "thread_2", "thread_3"} {
		thread := &models.Thread{
			OwnerKey:  "owner-a",
			ThreadID:  id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateThread(ctx, thread); err != nil {
			t.Fatalf("CreateThread(%s) error = %v", id, err)
		}
	}

	// thread_1 is touched last, so it sorts first despite being oldest.
	if err := store.TouchThread(ctx, "owner-a", "thread_2", base.Add(time.Hour)); err != nil {
		t.Fatalf("TouchThread() error = %v", err)
	}
	if err := store.TouchThread(ctx, "owner-a", "thread_1", base.Add(2*time.Hour)); err != nil {
		t.Fatalf("TouchThread() error = %v", err)
	}

	threads, err := store.ListThreads(ctx, "owner-a")
	if err != nil {
		t.Fatalf("ListThreads() error = %v", err)
	}

	want := []string{"thread_1", "thread_2", "thread_3"}
	for i, id := range want {
		if threads[i].ThreadID != id {
			t.Errorf("ListThreads()[%d] = %q, want %q", i, threads[i].ThreadID, id)
		}
	}
}

func TestTouchThreadMonotonic(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	if err := store.CreateThread(ctx, &models.Thread{OwnerKey: "owner-a", ThreadID: "thread_1"}); err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}

	later := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := store.TouchThread(ctx, "owner-a", "thread_1", later); err != nil {
		t.Fatalf("TouchThread() error = %v", err)
	}
	// An out-of-order touch must not move last_message_at backwards.
	if err := store.TouchThread(ctx, "owner-a", "thread_1", earlier); err != nil {
		t.Fatalf("TouchThread() error = %v", err)
	}

	thread, err := store.GetThread(ctx, "owner-a", "thread_1")
	if err != nil {
		t.Fatalf("GetThread() error = %v", err)
	}
	if thread.LastMessageAt == nil || !thread.LastMessageAt.Equal(later) {
		t.Errorf("LastMessageAt = %v, want %v", thread.LastMessageAt, later)
	}
}

func TestAssistantBindingUpsert(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	binding := &models.AssistantBinding{
		OwnerKey:    "owner-a",
		AssistantID: "asst_1",
		Status:      models.BindingStatusActive,
	}
	if err := store.UpsertAssistantBinding(ctx, binding); err != nil {
		t.Fatalf("UpsertAssistantBinding() error = %v", err)
	}
	created := binding.CreatedAt

	// Upsert with a new assistant ID replaces the binding but keeps the row's
	// creation time.
	updated := &models.AssistantBinding{
		OwnerKey:    "owner-a",
		AssistantID: "asst_2",
		Status:      models.BindingStatusActive,
	}
	if err := store.UpsertAssistantBinding(ctx, updated); err != nil {
		t.Fatalf("UpsertAssistantBinding() second error = %v", err)
	}

	got, err := store.GetAssistantBinding(ctx, "owner-a")
	if err != nil {
		t.Fatalf("GetAssistantBinding() error = %v", err)
	}
	if got.AssistantID != "asst_2" {
		t.Errorf("AssistantID = %q, want %q", got.AssistantID, "asst_2")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on upsert: %v vs %v", got.CreatedAt, created)
	}
}

func TestFileBindingLifecycle(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	binding := &models.FileBinding{
		OwnerKey:    "owner-a",
		AssistantID: "asst_1",
		FileID:      "file_1",
		Filename:    "leads.csv",
		Size:        1024,
		ContentType: "text/csv",
	}
	if err := store.CreateFileBinding(ctx, binding); err != nil {
		t.Fatalf("CreateFileBinding() error = %v", err)
	}

	var notFound *NotFoundError
	if _, err := store.GetFileBinding(ctx, "owner-b", "file_1"); !errors.As(err, &notFound) {
		t.Errorf("GetFileBinding() cross-owner error = %v, want *NotFoundError", err)
	}

	if err := store.DeleteFileBinding(ctx, "owner-a", "file_1"); err != nil {
		t.Fatalf("DeleteFileBinding() error = %v", err)
	}
	if err := store.DeleteFileBinding(ctx, "owner-a", "file_1"); !errors.As(err, &notFound) {
		t.Errorf("DeleteFileBinding() repeat error = %v, want *NotFoundError", err)
	}
}
