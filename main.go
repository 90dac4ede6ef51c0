package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialgw/internal/config"
	"socialgw/internal/database/db_client"
	"socialgw/internal/http/http_server"
	"socialgw/internal/presence"
	"socialgw/internal/redis/redis_client"
	"socialgw/internal/redis/watcher/eventbridge"
	"socialgw/internal/services/auth"
	"socialgw/internal/services/identity"
	"socialgw/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Collaborator services: credential verifier + identity store
	authService := auth.NewAuthService(cfg.JwtSecret, cfg.JwtIssuer)
	identityService := identity.NewIdentityService(redisClient, pgDb, 5*time.Minute)

	// 6. Gateway core: room registry + rate limiter + connection manager
	hub := ws.NewHub()
	limiter := ws.NewLimiter(ws.LimitTable{
		Default: ws.Limit{
			Max:    cfg.RateLimitMax,
			Window: time.Duration(cfg.RateLimitWindowMs) * time.Millisecond,
		},
		PerEvent: map[string]ws.Limit{
			ws.KindThreadTyping: {Max: 20, Window: 10 * time.Second},
			ws.KindJoinThread:   {Max: 5, Window: 10 * time.Second},
		},
	})
	wsSrv := ws.NewWsServer(hub, limiter, authService, identityService, ws.Options{
		MaxFrameBytes:  cfg.WsMaxFrameBytes,
		SendBufferSize: cfg.WsSendBufferSize,
		PongWait:       cfg.WsPongWait,
		PingPeriod:     cfg.WsPingPeriod,
	})

	// 7. Background: CRUD event bridge ➜ fan-out, and presence mirror
	emitter := ws.NewEmitter(hub)
	go eventbridge.Run(ctx, redisClient, emitter)
	presence.Run(ctx, redisClient, hub)

	// 8. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
