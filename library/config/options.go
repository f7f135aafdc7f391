package config

import (
	"time"

	"go.uber.org/zap/zapcore"
)

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}

func WithMockMode(on bool) Option {
	return func(c *Config) {
		c.Backend.MockMode = on
	}
}

func WithBackend(url, key string) Option {
	return func(c *Config) {
		c.Backend.URL = url
		c.Backend.Key = key
	}
}
