package ws

import "encoding/json"

// Frame types exchanged on a subscription connection.
const (
	TypeSubscribe = "subscribe"
	TypeNext      = "next"
	TypeError     = "error"
	TypeComplete  = "complete"
	TypePing      = "ping"
	TypePong      = "pong"
)

// Streams a client can subscribe to.
const (
	StreamNewMessage  = "newMessage"
	StreamNewReaction = "newReaction"
)

// Frame is one JSON text message on the socket. ID ties next, error and
// complete frames to the subscribe frame that opened the stream.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Stream  string          `json:"stream,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
