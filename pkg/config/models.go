package config

import "time"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Address   string          `mapstructure:"address"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

type RateLimitConfig struct {
	PerIPRate  float64 `mapstructure:"perIpRate"`
	PerIPBurst int     `mapstructure:"perIpBurst"`
}

type TransportConfig struct {
	// ReadTimeout is an optional backstop on data frames. Zero (the
	// default) disables it; heartbeat probes are the liveness authority
	// and idle listeners stay open indefinitely.
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
}

type HeartbeatConfig struct {
	Period time.Duration `mapstructure:"period"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
