package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/Astemirdum/silent-library/library/internal/notify"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
	"github.com/Astemirdum/silent-library/pkg/kafka"
	"github.com/Astemirdum/silent-library/pkg/logger"
	"github.com/Astemirdum/silent-library/pkg/postgres"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"LIBRARY_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"LIBRARY_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"30s"`
}

// Admin is the superuser seeded on startup; skipped when either field is empty.
type Admin struct {
	Username string `envconfig:"ADMIN_USERNAME"`
	Password string `envconfig:"ADMIN_PASSWORD" json:"-"`
}

type Config struct {
	Server   HTTPServer       `yaml:"server"`
	Database postgres.DB      `yaml:"db"`
	Log      logger.Log       `yaml:"log"`
	Kafka    kafka.Config     `yaml:"kafka"`
	Redis    auth.Redis       `yaml:"redis"`
	Auth     auth.Config      `yaml:"auth"`
	Mail     notify.Config    `yaml:"mail"`
	Media    filestore.Config `yaml:"media"`
	Admin    Admin            `yaml:"admin"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config from environment. Options are applied on top of it.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		for _, op := range ops {
			op(&config)
		}
		if config.Auth.Secret == "" {
			log.Fatal("NewConfig: JWT_SECRET is required")
		}
		cfg = &config
		printConfig(cfg)
	})

	return cfg
}

func printConfig(cfg *Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
