// Package state holds the client-side view of conversations and the pure
// transitions that update it as responses and subscription events arrive.
package state

import (
	"sync"

	"linguachat/models"
)

// User is a contact as the client shows it. Messages is nil until the
// thread has been fetched.
type User struct {
	models.User
	Selected bool             `json:"selected"`
	Messages []models.Message `json:"messages"`
}

// Loaded reports whether the thread with this user has been fetched.
func (u User) Loaded() bool { return u.Messages != nil }

type State struct {
	Users []User `json:"users"`
}

// Find returns the user named username and whether it is present.
func (s State) Find(username string) (User, bool) {
	if i := s.index(username); i >= 0 {
		return s.Users[i], true
	}
	return User{}, false
}

// Selected returns the currently selected user, if any.
func (s State) Selected() (User, bool) {
	for _, u := range s.Users {
		if u.Selected {
			return u, true
		}
	}
	return User{}, false
}

func (s State) index(username string) int {
	for i, u := range s.Users {
		if u.Username == username {
			return i
		}
	}
	return -1
}

// withUser returns a copy of s whose user at i is replaced by u.
func (s State) withUser(i int, u User) State {
	users := make([]User, len(s.Users))
	copy(users, s.Users)
	users[i] = u
	return State{Users: users}
}

// Action is a state transition. The set of actions is closed: only this
// package can implement it.
type Action interface {
	apply(State) State
}

// Reduce returns the state after a. s itself is left untouched.
func Reduce(s State, a Action) State {
	return a.apply(s)
}

// SetUsers replaces the contact list.
type SetUsers struct {
	Users []models.User
}

func (a SetUsers) apply(State) State {
	users := make([]User, len(a.Users))
	for i, u := range a.Users {
		users[i] = User{User: u}
	}
	return State{Users: users}
}

// SetUserMessages stores the fetched thread with Username.
type SetUserMessages struct {
	Username string
	Messages []models.Message
}

func (a SetUserMessages) apply(s State) State {
	i := s.index(a.Username)
	if i < 0 {
		return s
	}
	u := s.Users[i]
	u.Messages = make([]models.Message, len(a.Messages))
	copy(u.Messages, a.Messages)
	return s.withUser(i, u)
}

// SetSelectedUser marks Username as the only selected user.
type SetSelectedUser struct {
	Username string
}

func (a SetSelectedUser) apply(s State) State {
	users := make([]User, len(s.Users))
	for i, u := range s.Users {
		u.Selected = u.Username == a.Username
		users[i] = u
	}
	return State{Users: users}
}

// AddMessage prepends Message to the thread with Username and makes it the
// latest message. A thread that was never fetched stays unfetched.
type AddMessage struct {
	Username string
	Message  models.Message
}

func (a AddMessage) apply(s State) State {
	i := s.index(a.Username)
	if i < 0 {
		return s
	}
	msg := a.Message
	msg.Reactions = []models.Reaction{}

	u := s.Users[i]
	if u.Messages != nil {
		msgs := make([]models.Message, 0, len(u.Messages)+1)
		msgs = append(msgs, msg)
		u.Messages = append(msgs, u.Messages...)
	}
	latest := msg
	u.LatestMessage = &latest
	return s.withUser(i, u)
}

// AddReaction inserts Reaction into its message in the thread with
// Username, replacing a reaction with the same UUID.
type AddReaction struct {
	Username string
	Reaction models.Reaction
}

func (a AddReaction) apply(s State) State {
	i := s.index(a.Username)
	if i < 0 {
		return s
	}
	u := s.Users[i]
	target := a.Reaction.MessageUUID
	if a.Reaction.Message != nil {
		target = a.Reaction.Message.UUID
	}
	mi := -1
	for j, m := range u.Messages {
		if m.UUID == target {
			mi = j
			break
		}
	}
	if mi < 0 {
		return s
	}

	msgs := make([]models.Message, len(u.Messages))
	copy(msgs, u.Messages)
	m := msgs[mi]
	reactions := make([]models.Reaction, 0, len(m.Reactions)+1)
	replaced := false
	for _, r := range m.Reactions {
		if r.UUID == a.Reaction.UUID {
			r = a.Reaction
			replaced = true
		}
		reactions = append(reactions, r)
	}
	if !replaced {
		reactions = append(reactions, a.Reaction)
	}
	m.Reactions = reactions
	msgs[mi] = m
	u.Messages = msgs
	return s.withUser(i, u)
}

// Store serialises dispatches from the network and the user interface.
type Store struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
}

func NewStore(onChange func(State)) *Store {
	return &Store{onChange: onChange}
}

func (st *Store) Dispatch(a Action) State {
	st.mu.Lock()
	st.state = Reduce(st.state, a)
	s := st.state
	st.mu.Unlock()
	if st.onChange != nil {
		st.onChange(s)
	}
	return s
}

func (st *Store) State() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}
