package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "join:thread"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// Inbound message kinds. The set is closed: the router matches it
// exhaustively, so adding a kind means extending the switch in Dispatch.
const (
	KindSubscribePosts   = "subscribe:posts"
	KindUnsubscribePosts = "unsubscribe:posts"
	KindJoinThread       = "join:thread"
	KindLeaveThread      = "leave:thread"
	KindThreadTyping     = "thread:typing"
	KindJoinUser         = "join:user"
)

// Outbound event names pushed through the Emitter by domain logic.
const (
	EventCommentNew      = "comment.new"
	EventCommentDeleted  = "comment.deleted"
	EventThreadReplyNew  = "thread.reply.new"
	EventNotificationNew = "notification.new"
	EventTyping          = "thread:typing"
	EventError           = "error"
	EventHello           = "hello"
)

// Room name classes. Names under RoomUserPrefix are private; everything
// else is public.
const (
	RoomPosts        = "posts"
	RoomThreadPrefix = "thread:"
	RoomUserPrefix   = "user:"
)

// ──────────────────────────── Request / Response DTOs ─────────────────────────

type ThreadBody struct {
	ThreadID string `json:"thread_id"`
}

type TypingBody struct {
	ThreadID string `json:"thread_id"`
	Typing   bool   `json:"typing"`
}

type UserBody struct {
	UserID string `json:"user_id"`
}

// TypingEventBody is broadcast to thread members, sender excluded.
type TypingEventBody struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
}

// HelloBody is pushed once after a successful handshake.
type HelloBody struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id,omitempty"`
	Username     string `json:"username,omitempty"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	var body json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = raw
	}
	return json.Marshal(Envelope{Event: event, Body: body})
}
