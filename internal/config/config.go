package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"social_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"social_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"social_db"`

	JwtSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me" validate:"min=8"`
	JwtIssuer string `env:"JWT_ISSUER" envDefault:"socialgw"`

	WsMaxFrameBytes  int64         `env:"WS_MAX_FRAME_BYTES"  envDefault:"4096" validate:"min=256"`
	WsSendBufferSize int           `env:"WS_SEND_BUFFER_SIZE" envDefault:"64"   validate:"min=1"`
	WsPongWait       time.Duration `env:"WS_PONG_WAIT"        envDefault:"60s"`
	WsPingPeriod     time.Duration `env:"WS_PING_PERIOD"      envDefault:"25s"`

	RateLimitMax      int `env:"RATE_LIMIT_MAX"       envDefault:"10"    validate:"min=1"`
	RateLimitWindowMs int `env:"RATE_LIMIT_WINDOW_MS" envDefault:"10000" validate:"min=100"`

	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8086" validate:"min=1000,max=65535"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
