package state

import (
	"sync"
	"testing"

	"linguachat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() State {
	return Reduce(State{}, SetUsers{Users: []models.User{
		{Username: "bob", Language: "fr"},
		{Username: "carol", Language: "en"},
	}})
}

func TestSetSelectedUserIsExclusive(t *testing.T) {
	s := Reduce(seeded(), SetSelectedUser{Username: "bob"})
	s = Reduce(s, SetSelectedUser{Username: "carol"})

	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "carol", sel.Username)
	bob, _ := s.Find("bob")
	assert.False(t, bob.Selected)

	s = Reduce(s, SetSelectedUser{Username: "nobody"})
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestAddMessagePrependsToLoadedThread(t *testing.T) {
	s := Reduce(seeded(), SetUserMessages{Username: "bob", Messages: []models.Message{{UUID: "m1"}}})
	before := s

	s = Reduce(s, AddMessage{Username: "bob", Message: models.Message{UUID: "m2", Content: "hi"}})
	bob, _ := s.Find("bob")
	require.Len(t, bob.Messages, 2)
	assert.Equal(t, "m2", bob.Messages[0].UUID)
	assert.Equal(t, []models.Reaction{}, bob.Messages[0].Reactions)
	require.NotNil(t, bob.LatestMessage)
	assert.Equal(t, "m2", bob.LatestMessage.UUID)

	old, _ := before.Find("bob")
	assert.Len(t, old.Messages, 1, "input state is not mutated")
	assert.Nil(t, old.LatestMessage)
}

func TestAddMessageKeepsUnloadedThreadUnloaded(t *testing.T) {
	s := Reduce(seeded(), AddMessage{Username: "carol", Message: models.Message{UUID: "m1"}})
	carol, _ := s.Find("carol")
	assert.False(t, carol.Loaded())
	require.NotNil(t, carol.LatestMessage)
	assert.Equal(t, "m1", carol.LatestMessage.UUID)
}

func TestUnknownUserIsNoop(t *testing.T) {
	s := seeded()
	for _, a := range []Action{
		AddMessage{Username: "zed", Message: models.Message{UUID: "m"}},
		AddReaction{Username: "zed", Reaction: models.Reaction{UUID: "r"}},
		SetUserMessages{Username: "zed"},
	} {
		assert.Equal(t, s, Reduce(s, a))
	}
}

func TestAddReactionUpsertsByUUID(t *testing.T) {
	s := Reduce(seeded(), SetUserMessages{Username: "bob", Messages: []models.Message{
		{UUID: "m1", Reactions: []models.Reaction{}},
		{UUID: "m2", Reactions: []models.Reaction{}},
	}})
	ref := &models.MessageRef{UUID: "m2", From: "alice", To: "bob"}

	s = Reduce(s, AddReaction{Username: "bob", Reaction: models.Reaction{UUID: "r1", Content: "👍", Message: ref}})
	s = Reduce(s, AddReaction{Username: "bob", Reaction: models.Reaction{UUID: "r2", Content: "😆", Message: ref}})
	s = Reduce(s, AddReaction{Username: "bob", Reaction: models.Reaction{UUID: "r1", Content: "😡", Message: ref}})

	bob, _ := s.Find("bob")
	assert.Empty(t, bob.Messages[0].Reactions)
	require.Len(t, bob.Messages[1].Reactions, 2)
	assert.Equal(t, "😡", bob.Messages[1].Reactions[0].Content)
	assert.Equal(t, "😆", bob.Messages[1].Reactions[1].Content)
}

func TestAddReactionToUnknownMessageIsNoop(t *testing.T) {
	s := Reduce(seeded(), SetUserMessages{Username: "bob", Messages: []models.Message{{UUID: "m1"}}})
	after := Reduce(s, AddReaction{Username: "bob", Reaction: models.Reaction{UUID: "r", MessageUUID: "other"}})
	assert.Equal(t, s, after)

	unloaded := Reduce(seeded(), AddReaction{Username: "carol", Reaction: models.Reaction{UUID: "r", MessageUUID: "m1"}})
	assert.Equal(t, seeded(), unloaded)
}

func TestStoreDispatch(t *testing.T) {
	var mu sync.Mutex
	changes := 0
	st := NewStore(func(State) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	st.Dispatch(SetUsers{Users: []models.User{{Username: "bob"}}})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Dispatch(AddMessage{Username: "bob", Message: models.Message{UUID: "m"}})
		}()
	}
	wg.Wait()

	bob, ok := st.State().Find("bob")
	require.True(t, ok)
	assert.Equal(t, "m", bob.LatestMessage.UUID)
	mu.Lock()
	assert.Equal(t, 21, changes)
	mu.Unlock()
}
