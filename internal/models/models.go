package models

import "time"

// Owner is the stable local identity key for a portal user. It is created
// lazily the first time an external-auth subject touches the assistant
// subsystem and is immutable afterwards.
type Owner struct {
	Key       string    `json:"key"`
	SubjectID string    `json:"subject_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AssistantBinding links an owner to their provider-side assistant.
// At most one binding exists per owner.
type AssistantBinding struct {
	OwnerKey    string            `json:"owner_key"`
	AssistantID string            `json:"assistant_id"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

const BindingStatusActive = "active"

// Thread is the local record of a provider conversation thread.
// LastMessageAt is nil until the first message is sent and is
// monotonically non-decreasing afterwards.
type Thread struct {
	OwnerKey      string     `json:"owner_key"`
	ThreadID      string     `json:"thread_id"`
	Title         string     `json:"title"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// DefaultThreadTitle is assigned to threads created without an explicit title.
const DefaultThreadTitle = "New Conversation"

// FileBinding records a file that has been uploaded to the provider and
// attached to the owner's assistant. A binding never exists without the
// corresponding provider file.
type FileBinding struct {
	OwnerKey    string    `json:"owner_key"`
	AssistantID string    `json:"assistant_id"`
	FileID      string    `json:"file_id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
