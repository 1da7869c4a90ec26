package pebblestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"linguachat/models"
	"linguachat/repository"
	"linguachat/repository/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPebbleStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return openTemp(t)
	})
}

func TestReopenKeepsDataAndSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Users().Create(ctx, &models.User{Username: "alice", Language: "en", Password: "h"}))
	first := models.Message{From: "alice", To: "bob", Content: "first", Language: "en", CreatedAt: at}
	require.NoError(t, s.Messages().Create(ctx, &first))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.Users().FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h", u.Password)

	// same timestamp: the later insert must still sort first
	second := models.Message{From: "bob", To: "alice", Content: "second", Language: "en", CreatedAt: at}
	require.NoError(t, s.Messages().Create(ctx, &second))

	msgs, err := s.Messages().ListThread(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Content)
	assert.Equal(t, "first", msgs[1].Content)
}

func TestThreadPrefixIsNotAmbiguous(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Messages().Create(ctx, &models.Message{From: "a", To: "b/x", Content: "1", Language: "en"}))
	require.NoError(t, s.Messages().Create(ctx, &models.Message{From: "a", To: "b", Content: "2", Language: "en"}))

	msgs, err := s.Messages().ListThread(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "2", msgs[0].Content)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, []byte("u0"), prefixUpperBound([]byte("u/")))
	assert.Equal(t, []byte("b"), prefixUpperBound([]byte{'a', 0xff}))
	assert.Nil(t, prefixUpperBound([]byte{0xff, 0xff}))
}

func TestLatestStopsAtFirstThreadEntry(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three", "four"} {
		m := models.Message{From: "alice", To: "bob", Content: text, Language: "en", CreatedAt: at.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.Messages().Create(ctx, &m))
	}

	visited := 0
	err := s.scan(threadPrefix("alice", "bob"), func(_, _ []byte) error {
		visited++
		return errStopScan
	})
	require.NoError(t, err)
	assert.Equal(t, 1, visited)

	ids, err := s.messages.threadIDs("bob", "alice", 2)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	latest, err := s.Messages().LatestInThread(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "four", latest.Content)
}
