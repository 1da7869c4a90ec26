// Package storetest holds the behavioural suite every repository.Store
// backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"linguachat/models"
	"linguachat/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newStore against the shared repository contract. newStore
// must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("ThreadOrdering", func(t *testing.T) { testThreadOrdering(t, newStore(t)) })
	t.Run("ReactionUpsert", func(t *testing.T) { testReactionUpsert(t, newStore(t)) })
	t.Run("MissingRows", func(t *testing.T) { testMissingRows(t, newStore(t)) })
}

func seedUsers(t *testing.T, s repository.Store, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, s.Users().Create(context.Background(), &models.User{
			Username: n,
			Email:    n + "@example.com",
			Language: "en",
			Password: "hash",
		}))
	}
}

func testUsers(t *testing.T, s repository.Store) {
	ctx := context.Background()
	seedUsers(t, s, "bob", "alice")

	err := s.Users().Create(ctx, &models.User{Username: "alice", Language: "fr"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	u, err := s.Users().FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "en", u.Language)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "hash", u.Password)
	assert.False(t, u.CreatedAt.IsZero())

	users, err := s.Users().List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
}

func testThreadOrdering(t *testing.T, s repository.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob", "carol")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	send := func(from, to, content string, at time.Time) models.Message {
		m := models.Message{From: from, To: to, Content: content, Language: "en", CreatedAt: at}
		require.NoError(t, s.Messages().Create(ctx, &m))
		require.NotEmpty(t, m.UUID)
		return m
	}
	first := send("alice", "bob", "one", base)
	send("carol", "alice", "other thread", base.Add(time.Second))
	second := send("bob", "alice", "two", base.Add(2*time.Second))
	third := send("alice", "bob", "three", base.Add(3*time.Second))

	msgs, err := s.Messages().ListThread(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, third.UUID, msgs[0].UUID)
	assert.Equal(t, second.UUID, msgs[1].UUID)
	assert.Equal(t, first.UUID, msgs[2].UUID)
	for _, m := range msgs {
		assert.NotNil(t, m.Reactions)
		assert.Empty(t, m.Reactions)
	}

	latest, err := s.Messages().LatestInThread(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "three", latest.Content)

	got, err := s.Messages().FindByUUID(ctx, second.UUID)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.From)
	assert.Equal(t, "alice", got.To)
	assert.Equal(t, "two", got.Content)
	assert.True(t, got.CreatedAt.Equal(base.Add(2*time.Second)))

	none, err := s.Messages().ListThread(ctx, "bob", "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testReactionUpsert(t *testing.T, s repository.Store) {
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob")
	m := models.Message{From: "alice", To: "bob", Content: "hi", Language: "en"}
	require.NoError(t, s.Messages().Create(ctx, &m))

	first, created, err := s.Reactions().Upsert(ctx, &models.Reaction{MessageUUID: m.UUID, Username: "bob", Content: "👍"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, first.UUID)

	again, created, err := s.Reactions().Upsert(ctx, &models.Reaction{MessageUUID: m.UUID, Username: "bob", Content: "👍"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UUID, again.UUID)

	changed, created, err := s.Reactions().Upsert(ctx, &models.Reaction{MessageUUID: m.UUID, Username: "bob", Content: "😡"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UUID, changed.UUID)
	assert.Equal(t, "😡", changed.Content)

	_, created, err = s.Reactions().Upsert(ctx, &models.Reaction{MessageUUID: m.UUID, Username: "alice", Content: "❤️"})
	require.NoError(t, err)
	assert.True(t, created)

	rs, err := s.Reactions().ListByMessage(ctx, m.UUID)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	byUser := map[string]string{}
	for _, r := range rs {
		byUser[r.Username] = r.Content
	}
	assert.Equal(t, map[string]string{"bob": "😡", "alice": "❤️"}, byUser)

	withReactions, err := s.Messages().FindByUUID(ctx, m.UUID)
	require.NoError(t, err)
	assert.Len(t, withReactions.Reactions, 2)

	thread, err := s.Messages().ListThread(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Len(t, thread[0].Reactions, 2)
}

func testMissingRows(t *testing.T, s repository.Store) {
	ctx := context.Background()
	_, err := s.Users().FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Messages().FindByUUID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.Messages().LatestInThread(ctx, "ghost", "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rs, err := s.Reactions().ListByMessage(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Empty(t, rs)
}
