package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config routemasterctl configuration
type Config struct {
	API    APIConfig    `yaml:"api"`
	Places PlacesConfig `yaml:"places"`
	Redis  RedisConfig  `yaml:"redis"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Log    struct {
		Level  string
		Format string
	}
	Metrics struct {
		Addr string
	}
}

// APIConfig REST backend connection
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"` // bearer JWT, empty means signed out
}

// PlacesConfig third-party place search service
type PlacesConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Language string        `yaml:"language"`
	Region   string        `yaml:"region"`
	Timeout  time.Duration `yaml:"timeout"`
	Cache    string        `yaml:"cache"` // "memory" or "redis"
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RedisConfig Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig change feed subscription (disabled by default)
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// LoadFromEnv overrides fields from <prefix>_ADDR, <prefix>_PASSWORD and <prefix>_DB.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
}

// LoadFromEnv overrides fields from <prefix>_BROKER, <prefix>_CLIENT_ID, ...
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if enabled := os.Getenv(prefix + "_ENABLED"); enabled != "" {
		c.Enabled = enabled == "true"
	}
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if topic := os.Getenv(prefix + "_TOPIC"); topic != "" {
		c.Topic = topic
	}
}

func Load() *Config {
	cfg := &Config{}

	cfg.API.BaseURL = getEnv("API_BASE_URL", "http://localhost:5050")
	cfg.API.Timeout = parseDuration(getEnv("API_TIMEOUT", "5s"), 5*time.Second)
	cfg.API.Token = getEnv("API_TOKEN", "")

	cfg.Places.BaseURL = getEnv("PLACES_BASE_URL", "https://places.googleapis.com/v1/places")
	cfg.Places.APIKey = getEnv("PLACES_API_KEY", "")
	cfg.Places.Language = getEnv("PLACES_LANGUAGE", "de-DE")
	cfg.Places.Region = getEnv("PLACES_REGION", "de")
	cfg.Places.Timeout = parseDuration(getEnv("PLACES_TIMEOUT", "5s"), 5*time.Second)
	cfg.Places.Cache = getEnv("PLACES_CACHE", "memory")
	cfg.Places.CacheTTL = parseDuration(getEnv("PLACES_CACHE_TTL", "24h"), 24*time.Hour)

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "routemasterctl"
	cfg.MQTT.Topic = "routemaster/projects/+/changes"
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Metrics.Addr = getEnv("METRICS_ADDR", ":9090")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
