package models

import "time"

// Reactions is the closed set of glyphs a user can react with.
var Reactions = []string{"❤️", "😆", "😯", "😢", "😡", "👍", "👎"}

var allowedReactions = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Reactions))
	for _, r := range Reactions {
		m[r] = struct{}{}
	}
	return m
}()

func IsAllowedReaction(content string) bool {
	_, ok := allowedReactions[content]
	return ok
}

// Reaction is unique per (MessageUUID, Username).
type Reaction struct {
	UUID        string    `json:"uuid"`
	MessageUUID string    `json:"messageUuid"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Message is filled on responses and events only.
	Message *MessageRef `json:"message,omitempty"`
}
