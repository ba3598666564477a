package chatstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore is an in-memory Store that mirrors the ordering semantics of
// the SQLite store. Used in tests and for throwaway local runs.
type MemoryStore struct {
	mu       sync.Mutex
	projects map[string]Project
	chats    map[string]Chat
	messages map[string][]Message
	uploads  map[string][]Upload
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: map[string]Project{},
		chats:    map[string]Chat{},
		messages: map[string][]Message{},
		uploads:  map[string][]Upload{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateProject(_ context.Context, p Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("chat store: project id is empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("chat store: project name is empty")
	}
	if p.CreatedAtMs <= 0 {
		p.CreatedAtMs = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[p.ID]; exists {
		return errors.Errorf("chat store: project %s already exists", p.ID)
	}
	s.projects[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (Project, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 200
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAtMs > items[j].CreatedAtMs })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) CreateChat(_ context.Context, c Chat) error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("chat store: chat id is empty")
	}
	now := time.Now().UnixMilli()
	if c.CreatedAtMs <= 0 {
		c.CreatedAtMs = now
	}
	if c.UpdatedAtMs <= 0 {
		c.UpdatedAtMs = c.CreatedAtMs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chats[c.ID]; exists {
		return errors.Errorf("chat store: chat %s already exists", c.ID)
	}
	s.chats[c.ID] = c
	return nil
}

func (s *MemoryStore) GetChat(_ context.Context, id string) (Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	return c, ok, nil
}

func (s *MemoryStore) ListChats(_ context.Context, q ChatQuery) ([]Chat, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	project := strings.TrimSpace(q.ProjectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		if project != "" && c.ProjectID != project {
			continue
		}
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAtMs > items[j].UpdatedAtMs })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) TouchChat(_ context.Context, id string, updatedAtMs int64) error {
	if updatedAtMs <= 0 {
		updatedAtMs = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil
	}
	c.UpdatedAtMs = updatedAtMs
	s.chats[id] = c
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, m Message) error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("chat store: message id is empty")
	}
	if strings.TrimSpace(m.ChatID) == "" {
		return errors.New("chat store: message chat id is empty")
	}
	if strings.TrimSpace(m.Role) == "" {
		return errors.New("chat store: message role is empty")
	}
	if m.CreatedAtMs <= 0 {
		m.CreatedAtMs = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ChatID] = append(s.messages[m.ChatID], m)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, q MessageQuery) ([]Message, error) {
	if strings.TrimSpace(q.ChatID) == "" {
		return nil, errors.New("chat store: chat id required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []Message{}
	for _, m := range s.messages[q.ChatID] {
		if q.SinceMs > 0 && m.CreatedAtMs < q.SinceMs {
			continue
		}
		items = append(items, m)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAtMs < items[j].CreatedAtMs })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) PutUpload(_ context.Context, u Upload) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("chat store: upload id is empty")
	}
	if strings.TrimSpace(u.ChatID) == "" {
		return errors.New("chat store: upload chat id is empty")
	}
	if u.CreatedAtMs <= 0 {
		u.CreatedAtMs = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[u.ChatID] = append(s.uploads[u.ChatID], u)
	return nil
}

func (s *MemoryStore) ListUploads(_ context.Context, chatID string, limit int) ([]Upload, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("chat store: chat id required")
	}
	if limit <= 0 {
		limit = 200
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]Upload(nil), s.uploads[chatID]...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAtMs > items[j].CreatedAtMs })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
