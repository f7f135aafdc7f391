package config

import (
	"log"
	"sync"
	"time"

	"github.com/Astemirdum/library-admin/pkg/kafka"
	"github.com/Astemirdum/library-admin/pkg/logger"
	"github.com/Astemirdum/library-admin/pkg/postgres"
	"github.com/kelseyhightower/envconfig"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"LIBRARY_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"LIBRARY_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"10s"`
}

// Backend selects between the real database and the in-process mock.
type Backend struct {
	URL      string `yaml:"url" envconfig:"BACKEND_URL"`
	Key      string `json:"-" yaml:"key" envconfig:"BACKEND_KEY"`
	MockMode bool   `yaml:"mockMode" envconfig:"MOCK_MODE"`
}

type Config struct {
	Server   HTTPServer   `yaml:"server"`
	Backend  Backend      `yaml:"backend"`
	Database postgres.DB  `yaml:"db"`
	Kafka    kafka.Config `yaml:"kafka"`
	Log      logger.Log   `yaml:"log"`
	// LendingPeriodDays is how long a book may stay out before it is overdue.
	LendingPeriodDays int `yaml:"lendingPeriodDays" envconfig:"LENDING_PERIOD_DAYS" default:"14"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options are applied after the
// environment, so explicit settings win.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		config, err := Load(ops...)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
	})

	return cfg
}

// Load reads a fresh config without touching the process-wide one.
func Load(ops ...Option) (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	for _, op := range ops {
		op(&config)
	}
	config.Database.DSN = config.Backend.URL
	return &config, nil
}
