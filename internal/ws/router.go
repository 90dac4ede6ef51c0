package ws

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

var (
	errUnknownEvent = errors.New("unknown_event")
	errInvalidBody  = errors.New("invalid_body")
)

// Router maps one inbound envelope at a time to one gateway operation.
type Router struct {
	hub     *Hub
	limiter *Limiter
}

func NewRouter(hub *Hub, limiter *Limiter) *Router {
	return &Router{hub: hub, limiter: limiter}
}

// Dispatch handles a single inbound envelope for c. Admission runs before
// anything else so an over-limit message never touches registry state;
// the drop is silent. Successful state changes are acknowledged with an
// "<event>-ack" envelope, failures with an "error" envelope.
func (rt *Router) Dispatch(c *Conn, env Envelope) {
	if !rt.limiter.Admit(c.ID(), env.Event) {
		zap.L().Debug("rate_limited",
			zap.String("conn_id", c.ID()),
			zap.String("event", env.Event),
		)
		return
	}

	var err error
	switch env.Event {
	case KindSubscribePosts:
		err = rt.hub.Join(c, RoomPosts)
	case KindUnsubscribePosts:
		rt.hub.Leave(c, RoomPosts)
	case KindJoinThread:
		var body ThreadBody
		if err = decodeBody(env.Body, &body); err == nil {
			if body.ThreadID == "" {
				err = errInvalidBody
			} else {
				err = rt.hub.Join(c, RoomThreadPrefix+body.ThreadID)
			}
		}
	case KindLeaveThread:
		var body ThreadBody
		if err = decodeBody(env.Body, &body); err == nil {
			if body.ThreadID == "" {
				err = errInvalidBody
			} else {
				rt.hub.Leave(c, RoomThreadPrefix+body.ThreadID)
			}
		}
	case KindThreadTyping:
		// fire-and-forget convenience feature, no ack either way
		rt.handleTyping(c, env.Body)
		return
	case KindJoinUser:
		var body UserBody
		if err = decodeBody(env.Body, &body); err == nil {
			if body.UserID == "" {
				err = errInvalidBody
			} else {
				err = rt.hub.Join(c, RoomUserPrefix+body.UserID)
			}
		}
	default:
		err = errUnknownEvent
	}

	if err != nil {
		_ = c.sendJSON(EventError, ErrorBody{Error: err.Error()})
		return
	}
	_ = c.sendJSON(env.Event+"-ack", nil)
}

// handleTyping relays a typing indicator to the thread room, excluding the
// sender. Anonymous senders are ignored without an error: typing is not
// security-sensitive, unlike room joins.
func (rt *Router) handleTyping(c *Conn, raw json.RawMessage) {
	ident := c.Identity()
	if ident == nil {
		return
	}

	var body TypingBody
	if err := json.Unmarshal(raw, &body); err != nil || body.ThreadID == "" {
		return
	}

	msg, err := encodeEnvelope(EventTyping, TypingEventBody{
		ThreadID: body.ThreadID,
		UserID:   ident.ID,
		Username: ident.Username,
		Typing:   body.Typing,
	})
	if err != nil {
		return
	}
	rt.hub.Broadcast(RoomThreadPrefix+body.ThreadID, EventTyping, msg, c)
}

func decodeBody(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errInvalidBody
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidBody
	}
	return nil
}
