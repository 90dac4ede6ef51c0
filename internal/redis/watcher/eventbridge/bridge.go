package eventbridge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialgw/internal/ws"
)

const channelPrefix = "gw:fanout:"

type bridgeEvent struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

// Run bridges domain mutations signalled by the CRUD layer into the
// gateway fan-out. The CRUD side publishes one JSON event per mutation on
// "gw:fanout:<room>"; in-process callers use the Emitter directly.
// Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, emitter *ws.Emitter) {
	ps := rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ps.Channel():
			if !ok {
				return
			}
			roomName, evt, ok := parseBridgeMessage(m.Channel, m.Payload)
			if !ok {
				zap.L().Warn("bridge_malformed_event", zap.String("channel", m.Channel))
				continue
			}
			var payload any
			if len(evt.Body) > 0 {
				payload = evt.Body
			}
			_ = emitter.Publish(roomName, evt.Event, payload)
		}
	}
}

func parseBridgeMessage(channel, payload string) (string, bridgeEvent, bool) {
	roomName := strings.TrimPrefix(channel, channelPrefix)
	if roomName == channel || roomName == "" {
		return "", bridgeEvent{}, false
	}
	var evt bridgeEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil || evt.Event == "" {
		return "", bridgeEvent{}, false
	}
	return roomName, evt, true
}
