package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	onlineKey    = "presence:online"
	mirrorPeriod = 15 * time.Second
	keyTTL       = time.Minute
)

// OnlineSource reports which identities currently hold a live connection.
type OnlineSource interface {
	OnlineUsers() []string
}

// Every 15 s, mirror the online user ids -> Redis for the CRUD layer's
// "online" badges. The TTL lets the key age out if the gateway dies.
func Run(ctx context.Context, rdc *redis.Client, src OnlineSource) {
	tk := time.NewTicker(mirrorPeriod)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				mirrorOnce(ctx, rdc, src)
			}
		}
	}()
}

func mirrorOnce(ctx context.Context, rdc *redis.Client, src OnlineSource) {
	ids := src.OnlineUsers()

	pipe := rdc.Pipeline()
	pipe.Del(ctx, onlineKey)
	if len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, onlineKey, members...)
	}
	pipe.Expire(ctx, onlineKey, keyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		zap.L().Error("presence.pipeline", zap.Error(err))
	}
}
