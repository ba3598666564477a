// Package chatstore persists the conventional chat-backend entities:
// projects, chats, messages, and upload metadata. The stream cache never
// touches this package; completed turns land here as ordinary messages.
package chatstore

import "context"

// Project groups chats.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Chat is one conversation, optionally inside a project, pinned to a
// provider name.
type Chat struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id,omitempty"`
	Title       string `json:"title,omitempty"`
	Provider    string `json:"provider,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// Message is one persisted chat turn half (user or assistant).
type Message struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// Upload records one file attached to a chat; raw bytes live on disk.
type Upload struct {
	ID          string `json:"id"`
	ChatID      string `json:"chat_id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// MessageQuery filters message listings.
type MessageQuery struct {
	ChatID  string
	SinceMs int64
	Limit   int
}

// ChatQuery filters chat listings.
type ChatQuery struct {
	ProjectID string
	Limit     int
}

// Store is the persistence surface the HTTP layer depends on.
type Store interface {
	CreateProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id string) (Project, bool, error)
	ListProjects(ctx context.Context, limit int) ([]Project, error)

	CreateChat(ctx context.Context, c Chat) error
	GetChat(ctx context.Context, id string) (Chat, bool, error)
	ListChats(ctx context.Context, q ChatQuery) ([]Chat, error)
	TouchChat(ctx context.Context, id string, updatedAtMs int64) error

	AppendMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, q MessageQuery) ([]Message, error)

	PutUpload(ctx context.Context, u Upload) error
	ListUploads(ctx context.Context, chatID string, limit int) ([]Upload, error)

	Close() error
}
