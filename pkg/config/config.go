package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/go-order-service/pkg/utils"
)

type Config struct {
	Env      string  `yaml:"env" env:"ENV" env-default:"local"`
	Logger   Logger  `yaml:"logger"`
	HTTP     HTTP    `yaml:"http"`
	Postgres PG      `yaml:"postgres"`
	Redis    Redis   `yaml:"redis"`
	Kafka    Kafka   `yaml:"kafka"`
	Tracing  Tracing `yaml:"tracing"`
	Limiter  Limiter `yaml:"limiter"`
	Breaker  Breaker `yaml:"breaker"`
}

type Logger struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3003"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL        string `yaml:"url" env:"DB_URL"`
	MaxConns   int32  `yaml:"max_conns" env-default:"10"`
	MinConns   int32  `yaml:"min_conns" env-default:"2"`
	Migrations string `yaml:"migrations" env:"MIGRATIONS_PATH"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout" env-default:"5s"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env-default:"30m"`
}

type Redis struct {
	Enabled bool          `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Addr    string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	TTL     time.Duration `yaml:"ttl" env-default:"10m"`
}

// Kafka with no brokers disables publishing and consuming.
type Kafka struct {
	Brokers            []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	GroupID            string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"order-service-group"`
	OrdersTopic        string   `yaml:"orders_topic" env-default:"orders"`
	NotificationsTopic string   `yaml:"notifications_topic" env-default:"order-notifications"`
	ProductsTopic      string   `yaml:"products_topic" env-default:"products"`
}

func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

type Tracing struct {
	Enabled  bool   `yaml:"enabled" env:"TRACING_ENABLED" env-default:"false"`
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"100"`
	Expiration time.Duration `yaml:"expiration" env-default:"1s"`
}

type Breaker struct {
	MaxRequests uint32        `yaml:"max_requests" env-default:"3"`
	Interval    time.Duration `yaml:"interval" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
}

func MustLoad() *Config {
	configPath := utils.EnvOr("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
