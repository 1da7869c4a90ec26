package models

import "time"

type User struct {
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	Language      string    `json:"language"`
	Password      string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	LatestMessage *Message  `json:"latestMessage,omitempty"`
}

// Identity is the authenticated caller as established by a verified token.
type Identity struct {
	Username string
}
