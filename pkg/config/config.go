// Package config loads service configuration from environment variables.
// Variable names keep the ones the services have always read
// (KAFKA_BROKERS, REDIS_ADDR, SCYLLA_HOSTS). KAFKA_ENABLED and REDIS_ENABLED
// switch the optional integrations off.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

const (
	DriverScylla = "scylla"
	DriverMemory = "memory"
)

type Logging struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// File receives a copy of every log line at the threshold. Unset picks
	// <service>.log, "-" disables the file.
	File string `env:"LOG_FILE"`
}

type Storage struct {
	Driver      string   `env:"STORE_DRIVER" envDefault:"scylla"`
	ScyllaHosts []string `env:"SCYLLA_HOSTS" envDefault:"localhost:9042" envSeparator:","`
	Keyspace    string   `env:"SCYLLA_KEYSPACE" envDefault:"chat"`
	// NodeID seeds the snowflake generator; it must differ between
	// processes writing to the same keyspace.
	NodeID int64 `env:"NODE_ID" envDefault:"1"`

	// Consistency is a gocql consistency name such as QUORUM or LOCAL_ONE.
	// Read receipts use lightweight transactions at LOCAL_SERIAL whatever
	// this is set to.
	Consistency       string        `env:"SCYLLA_CONSISTENCY" envDefault:"QUORUM"`
	Timeout           time.Duration `env:"SCYLLA_TIMEOUT" envDefault:"5s"`
	Retries           int           `env:"SCYLLA_RETRIES" envDefault:"3"`
	RetryMin          time.Duration `env:"SCYLLA_RETRY_MIN" envDefault:"100ms"`
	RetryMax          time.Duration `env:"SCYLLA_RETRY_MAX" envDefault:"1s"`
	ReplicationFactor int           `env:"SCYLLA_REPLICATION_FACTOR" envDefault:"1"`
}

type Kafka struct {
	On      bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	Brokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:19092" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"chat-events"`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"messaging-service-group"`
}

// Enabled reports whether the event feed is on and has brokers.
func (k Kafka) Enabled() bool {
	if !k.On {
		return false
	}
	for _, b := range k.Brokers {
		if b != "" {
			return true
		}
	}
	return false
}

type Redis struct {
	On   bool   `env:"REDIS_ENABLED" envDefault:"true"`
	Addr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
}

func (r Redis) Enabled() bool {
	return r.On && r.Addr != ""
}

type Auth struct {
	Secret   string        `env:"JWT_SECRET" envDefault:"my_secret_key"`
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	Issuer   string        `env:"JWT_ISSUER" envDefault:"dupahar-chat"`
}

type Socket struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	MaxMessageSize int64    `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	// RateLimit is the number of inbound frames per second a connection
	// may send before its reads are throttled.
	RateLimit  int `env:"RATE_LIMIT" envDefault:"20"`
	SendBuffer int `env:"SEND_BUFFER" envDefault:"256"`
}

type Gateway struct {
	Addr            string        `env:"GATEWAY_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	Logging
	Storage
	Kafka
	Redis
	Auth
	Socket
}

type API struct {
	Addr            string        `env:"API_ADDR" envDefault:":8081"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	Logging
	Storage
	Kafka
	Redis
	Auth
}

type Messaging struct {
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	Logging
	Storage
	Kafka
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}

func LoadGateway() (Gateway, error) {
	var cfg Gateway
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "gateway.log"
	}
	return cfg, cfg.Storage.validate()
}

func LoadAPI() (API, error) {
	var cfg API
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "api.log"
	}
	return cfg, cfg.Storage.validate()
}

func LoadMessaging() (Messaging, error) {
	var cfg Messaging
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "messaging.log"
	}
	if cfg.Driver != DriverScylla {
		return cfg, errors.New("messaging service requires STORE_DRIVER=scylla")
	}
	if !cfg.Kafka.Enabled() {
		return cfg, errors.New("messaging service requires KAFKA_BROKERS")
	}
	return cfg, cfg.Storage.validate()
}

func (s Storage) validate() error {
	switch s.Driver {
	case DriverScylla:
		if len(s.ScyllaHosts) == 0 {
			return errors.New("SCYLLA_HOSTS is empty")
		}
		if s.RetryMin > s.RetryMax {
			return errors.Errorf("SCYLLA_RETRY_MIN %s exceeds SCYLLA_RETRY_MAX %s", s.RetryMin, s.RetryMax)
		}
		if s.ReplicationFactor < 1 {
			return errors.New("SCYLLA_REPLICATION_FACTOR must be at least 1")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", s.Driver)
	}
	return nil
}
