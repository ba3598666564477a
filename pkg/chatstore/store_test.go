package chatstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dsn, err := DSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestProjectRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.CreateProject(ctx, Project{ID: "p1", Name: "research", CreatedAtMs: 10}))
			require.NoError(t, store.CreateProject(ctx, Project{ID: "p2", Name: "writing", CreatedAtMs: 20}))

			p, ok, err := store.GetProject(ctx, "p1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "research", p.Name)

			_, ok, err = store.GetProject(ctx, "nope")
			require.NoError(t, err)
			require.False(t, ok)

			items, err := store.ListProjects(ctx, 0)
			require.NoError(t, err)
			require.Len(t, items, 2)
			require.Equal(t, "p2", items[0].ID) // newest first
		})
	}
}

func TestProjectValidation(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.Error(t, store.CreateProject(ctx, Project{Name: "no id"}))
			require.Error(t, store.CreateProject(ctx, Project{ID: "p1"}))
		})
	}
}

func TestChatLifecycle(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.CreateChat(ctx, Chat{ID: "c1", ProjectID: "p1", Title: "first", Provider: "echo", CreatedAtMs: 10}))
			require.NoError(t, store.CreateChat(ctx, Chat{ID: "c2", Title: "second", CreatedAtMs: 20}))
			require.Error(t, store.CreateChat(ctx, Chat{ID: "c1", CreatedAtMs: 30}))

			c, ok, err := store.GetChat(ctx, "c1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "echo", c.Provider)

			require.NoError(t, store.TouchChat(ctx, "c1", 99))
			c, _, err = store.GetChat(ctx, "c1")
			require.NoError(t, err)
			require.Equal(t, int64(99), c.UpdatedAtMs)

			inProject, err := store.ListChats(ctx, ChatQuery{ProjectID: "p1"})
			require.NoError(t, err)
			require.Len(t, inProject, 1)

			all, err := store.ListChats(ctx, ChatQuery{})
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "c1", all[0].ID) // most recently updated first
		})
	}
}

func TestMessagesOrderedAndFiltered(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.AppendMessage(ctx, Message{ID: "m1", ChatID: "c1", Role: "user", Content: "hi", CreatedAtMs: 10}))
			require.NoError(t, store.AppendMessage(ctx, Message{ID: "m2", ChatID: "c1", Role: "assistant", Content: "hello", CreatedAtMs: 20}))
			require.NoError(t, store.AppendMessage(ctx, Message{ID: "m3", ChatID: "c2", Role: "user", Content: "other", CreatedAtMs: 15}))

			msgs, err := store.ListMessages(ctx, MessageQuery{ChatID: "c1"})
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			require.Equal(t, []string{"m1", "m2"}, []string{msgs[0].ID, msgs[1].ID})

			since, err := store.ListMessages(ctx, MessageQuery{ChatID: "c1", SinceMs: 15})
			require.NoError(t, err)
			require.Len(t, since, 1)
			require.Equal(t, "m2", since[0].ID)

			_, err = store.ListMessages(ctx, MessageQuery{})
			require.Error(t, err)
		})
	}
}

func TestUploadMetadata(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.PutUpload(ctx, Upload{ID: "u1", ChatID: "c1", Name: "notes.txt", Path: "/tmp/u1", Size: 42, CreatedAtMs: 10}))
			require.NoError(t, store.PutUpload(ctx, Upload{ID: "u2", ChatID: "c1", Name: "img.png", Path: "/tmp/u2", Size: 7, ContentType: "image/png", CreatedAtMs: 20}))

			items, err := store.ListUploads(ctx, "c1", 0)
			require.NoError(t, err)
			require.Len(t, items, 2)
			require.Equal(t, "u2", items[0].ID) // newest first

			empty, err := store.ListUploads(ctx, "c9", 0)
			require.NoError(t, err)
			require.Empty(t, empty)
		})
	}
}
