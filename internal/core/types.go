// Package core defines the fundamental types for SENTIENCE.
// Every store and every request handler speaks in these types.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// TURN - One message in a conversation
// -----------------------------------------------------------------------------

// Role identifies the author of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// CONVERSATION - A durable, named sequence of turns
// -----------------------------------------------------------------------------

// DefaultConversationTitle is used until the first user turn is stored
const DefaultConversationTitle = "New Conversation"

// TitleMaxLen bounds a title derived from the first user prompt
const TitleMaxLen = 50

// Conversation holds the ordered turns addressed by one id
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     []Turn    `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ConversationSummary is the list view of a conversation
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	Preview      string    `json:"preview"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TitleFromPrompt derives a display title from the first user prompt.
func TitleFromPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) == 0 {
		return DefaultConversationTitle
	}
	if len(runes) > TitleMaxLen {
		runes = runes[:TitleMaxLen]
	}
	return string(runes)
}

// -----------------------------------------------------------------------------
// KNOWLEDGE - Uploaded files kept as prompt context
// -----------------------------------------------------------------------------

// FileRecord is one uploaded file with its extracted text
type FileRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// -----------------------------------------------------------------------------
// PERSONAL MEMORY - What the user has told the assistant about themselves
// -----------------------------------------------------------------------------

// PersonalMemory is the single user-declared profile
type PersonalMemory struct {
	Name        string            `json:"name"`
	Preferences map[string]string `json:"preferences"`
	Facts       []string          `json:"facts"`
	Goals       []string          `json:"goals"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// IsEmpty reports whether nothing has been declared yet.
func (m *PersonalMemory) IsEmpty() bool {
	return m.Name == "" && len(m.Preferences) == 0 && len(m.Facts) == 0 && len(m.Goals) == 0
}

// -----------------------------------------------------------------------------
// TASKS - Background LLM jobs
// -----------------------------------------------------------------------------

// TaskStatus is the lifecycle state of a task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// TaskType distinguishes one-shot from recurring tasks
type TaskType string

const (
	TaskOnce      TaskType = "once"
	TaskRecurring TaskType = "recurring"
)

// MinTaskInterval is the shortest accepted recurring interval
const MinTaskInterval = 10 * time.Second

// Task is a background job executed through the LLM
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Result      string     `json:"result,omitempty"`
	Type        TaskType   `json:"type"`
	IntervalMs  int64      `json:"intervalMs,omitempty"`
	NextRun     *time.Time `json:"nextRun,omitempty"`
	RunCount    int        `json:"runCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// -----------------------------------------------------------------------------
// VAULT - Saved notes, links and snippets
// -----------------------------------------------------------------------------

// VaultItemType classifies a vault entry
type VaultItemType string

const (
	VaultNote    VaultItemType = "note"
	VaultLink    VaultItemType = "link"
	VaultSnippet VaultItemType = "snippet"
	VaultFile    VaultItemType = "file"
	VaultOutput  VaultItemType = "output"
)

// Valid reports whether t is a known vault item type.
func (t VaultItemType) Valid() bool {
	switch t {
	case VaultNote, VaultLink, VaultSnippet, VaultFile, VaultOutput:
		return true
	}
	return false
}

// VaultItem is one saved entry
type VaultItem struct {
	ID        string        `json:"id"`
	Type      VaultItemType `json:"type"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Tags      []string      `json:"tags"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
