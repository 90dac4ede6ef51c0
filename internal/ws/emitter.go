package ws

import "go.uber.org/zap"

// Emitter is the push API handed to trusted domain logic; it is never
// reachable from a client message. Publishing is fire-and-forget with
// respect to delivery: it does not wait for recipients and a dropped
// delivery never fails the caller.
type Emitter struct {
	hub *Hub
}

func NewEmitter(hub *Hub) *Emitter { return &Emitter{hub: hub} }

// Publish fans eventName out to every current member of roomName. The
// only error it can return is a payload that does not marshal.
func (e *Emitter) Publish(roomName, eventName string, payload any) error {
	msg, err := encodeEnvelope(eventName, payload)
	if err != nil {
		zap.L().Error("publish_encode",
			zap.String("room", roomName),
			zap.String("event", eventName),
			zap.Error(err),
		)
		return err
	}
	e.hub.Broadcast(roomName, eventName, msg, nil)
	return nil
}
