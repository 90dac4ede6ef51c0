package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Identity is the authenticated principal bound to a connection for its
// lifetime.
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

var ErrNotFound = errors.New("identity not found")

type IIdentityService interface {
	FindIdentity(ctx context.Context, id string) (*Identity, error)
}

type identityService struct {
	rdc      *redis.Client
	db       *sql.DB
	cacheTTL time.Duration
}

const cacheKeyPrefix = "identity:"

func NewIdentityService(rdc *redis.Client, db *sql.DB, cacheTTL time.Duration) IIdentityService {
	return &identityService{
		rdc:      rdc,
		db:       db,
		cacheTTL: cacheTTL,
	}
}

func (svc *identityService) FindIdentity(ctx context.Context, id string) (*Identity, error) {
	// 1. Fast-path - serve from the Redis cache when present
	raw, err := svc.rdc.Get(ctx, cacheKeyPrefix+id).Result()
	if err == nil {
		ident := &Identity{}
		if err := json.Unmarshal([]byte(raw), ident); err == nil {
			return ident, nil
		}
		// poisoned entry, fall through to Postgres
	} else if !errors.Is(err, redis.Nil) {
		// cache trouble is not fatal for handshakes
		zap.L().Warn("identity_cache_get", zap.String("id", id), zap.Error(err))
	}

	// 2. Otherwise go to Postgres
	const q = `SELECT id, username, coalesce(display_name,''), coalesce(avatar_url,'')
                 FROM users WHERE id = $1`
	row := svc.db.QueryRowContext(ctx, q, id)
	ident := &Identity{}
	if err := row.Scan(&ident.ID, &ident.Username, &ident.DisplayName, &ident.AvatarURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if encoded, err := json.Marshal(ident); err == nil {
		if err := svc.rdc.Set(ctx, cacheKeyPrefix+id, encoded, svc.cacheTTL).Err(); err != nil {
			zap.L().Warn("identity_cache_set", zap.String("id", id), zap.Error(err))
		}
	}
	return ident, nil
}
