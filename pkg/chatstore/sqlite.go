package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore is the durable Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// DSNForFile builds a WAL-mode sqlite DSN for a database file path.
func DSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("chat store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("chat store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("chat store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chats_by_project ON chats(project_id, updated_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_by_chat ON messages(chat_id, created_at_ms ASC);`,
		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS uploads_by_chat ON uploads(chat_id, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "chat store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p Project) error {
	if s == nil || s.db == nil {
		return errors.New("chat store: db is nil")
	}
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("chat store: project id is empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("chat store: project name is empty")
	}
	if p.CreatedAtMs <= 0 {
		p.CreatedAtMs = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects(id, name, description, created_at_ms)
		VALUES(?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.CreatedAtMs)
	return errors.Wrap(err, "chat store: insert project")
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (Project, bool, error) {
	if s == nil || s.db == nil {
		return Project{}, false, errors.New("chat store: db is nil")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at_ms FROM projects WHERE id = ?
	`, id)
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAtMs); err != nil {
		if err == sql.ErrNoRows {
			return Project{}, false, nil
		}
		return Project{}, false, errors.Wrap(err, "chat store: get project")
	}
	return p, true, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, limit int) ([]Project, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("chat store: db is nil")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at_ms
		FROM projects ORDER BY created_at_ms DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "chat store: list projects")
	}
	defer func() { _ = rows.Close() }()

	items := []Project{}
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAtMs); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) CreateChat(ctx context.Context, c Chat) error {
	if s == nil || s.db == nil {
		return errors.New("chat store: db is nil")
	}
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats(id, project_id, title, provider, created_at_ms, updated_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, c.Title, c.Provider, c.CreatedAtMs, c.UpdatedAtMs)
	return errors.Wrap(err, "chat store: insert chat")
}

func (s *SQLiteStore) GetChat(ctx context.Context, id string) (Chat, bool, error) {
	if s == nil || s.db == nil {
		return Chat{}, false, errors.New("chat store: db is nil")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, provider, created_at_ms, updated_at_ms
		FROM chats WHERE id = ?
	`, id)
	var c Chat
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Title, &c.Provider, &c.CreatedAtMs, &c.UpdatedAtMs); err != nil {
		if err == sql.ErrNoRows {
			return Chat{}, false, nil
		}
		return Chat{}, false, errors.Wrap(err, "chat store: get chat")
	}
	return c, true, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, q ChatQuery) ([]Chat, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("chat store: db is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.ProjectID); v != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, v)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf(`
		SELECT id, project_id, title, provider, created_at_ms, updated_at_ms
		FROM chats %s ORDER BY updated_at_ms DESC LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "chat store: list chats")
	}
	defer func() { _ = rows.Close() }()

	items := []Chat{}
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Title, &c.Provider, &c.CreatedAtMs, &c.UpdatedAtMs); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) TouchChat(ctx context.Context, id string, updatedAtMs int64) error {
	if s == nil || s.db == nil {
		return errors.New("chat store: db is nil")
	}
	if updatedAtMs <= 0 {
		updatedAtMs = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at_ms = ? WHERE id = ?`, updatedAtMs, id)
	return errors.Wrap(err, "chat store: touch chat")
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, m Message) error {
	if s == nil || s.db == nil {
		return errors.New("chat store: db is nil")
	}
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages(id, chat_id, role, content, created_at_ms)
		VALUES(?, ?, ?, ?, ?)
	`, m.ID, m.ChatID, m.Role, m.Content, m.CreatedAtMs)
	return errors.Wrap(err, "chat store: insert message")
}

func (s *SQLiteStore) ListMessages(ctx context.Context, q MessageQuery) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("chat store: db is nil")
	}
	if strings.TrimSpace(q.ChatID) == "" {
		return nil, errors.New("chat store: chat id required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}
	clauses := []string{"chat_id = ?"}
	args := []any{q.ChatID}
	if q.SinceMs > 0 {
		clauses = append(clauses, "created_at_ms >= ?")
		args = append(args, q.SinceMs)
	}
	query := fmt.Sprintf(`
		SELECT id, chat_id, role, content, created_at_ms
		FROM messages WHERE %s ORDER BY created_at_ms ASC LIMIT ?
	`, strings.Join(clauses, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "chat store: list messages")
	}
	defer func() { _ = rows.Close() }()

	items := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAtMs); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) PutUpload(ctx context.Context, u Upload) error {
	if s == nil || s.db == nil {
		return errors.New("chat store: db is nil")
	}
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("chat store: upload id is empty")
	}
	if strings.TrimSpace(u.ChatID) == "" {
		return errors.New("chat store: upload chat id is empty")
	}
	if u.CreatedAtMs <= 0 {
		u.CreatedAtMs = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads(id, chat_id, name, path, size, content_type, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.ChatID, u.Name, u.Path, u.Size, u.ContentType, u.CreatedAtMs)
	return errors.Wrap(err, "chat store: insert upload")
}

func (s *SQLiteStore) ListUploads(ctx context.Context, chatID string, limit int) ([]Upload, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("chat store: db is nil")
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("chat store: chat id required")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, name, path, size, content_type, created_at_ms
		FROM uploads WHERE chat_id = ? ORDER BY created_at_ms DESC LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "chat store: list uploads")
	}
	defer func() { _ = rows.Close() }()

	items := []Upload{}
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.ID, &u.ChatID, &u.Name, &u.Path, &u.Size, &u.ContentType, &u.CreatedAtMs); err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
