package models

import "time"

type Message struct {
	UUID      string     `json:"uuid"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Content   string     `json:"content"`
	Language  string     `json:"language"`
	CreatedAt time.Time  `json:"createdAt"`
	Reactions []Reaction `json:"reactions"`
}

// MessageRef is the slice of a message a reaction payload needs to be
// routed to the right thread.
type MessageRef struct {
	UUID string `json:"uuid"`
	From string `json:"from"`
	To   string `json:"to"`
}

// IsParticipant reports whether username sent or received the message.
func (m Message) IsParticipant(username string) bool {
	return username != "" && (m.From == username || m.To == username)
}

// Peer returns the other participant as seen by username.
func (m Message) Peer(username string) string {
	if m.From == username {
		return m.To
	}
	return m.From
}

func (m Message) Ref() *MessageRef {
	return &MessageRef{UUID: m.UUID, From: m.From, To: m.To}
}

// Peer returns the other participant of the referenced message.
func (r MessageRef) Peer(username string) string {
	if r.From == username {
		return r.To
	}
	return r.From
}
