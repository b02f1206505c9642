package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Worker   WorkerConfig   `yaml:"worker"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	DispatchTopic      string   `yaml:"dispatch_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type DispatchConfig struct {
	OfferTTLSeconds    int `yaml:"offer_ttl_seconds"`
	QueueTTLMinutes    int `yaml:"queue_ttl_minutes"`
	RetryAttempts      int `yaml:"retry_attempts"`
	RetryBackoffMillis int `yaml:"retry_backoff_millis"`
}

func (d DispatchConfig) OfferTTL() time.Duration {
	if d.OfferTTLSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(d.OfferTTLSeconds) * time.Second
}

func (d DispatchConfig) QueueTTL() time.Duration {
	if d.QueueTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(d.QueueTTLMinutes) * time.Minute
}

func (d DispatchConfig) RetryBackoff() time.Duration {
	if d.RetryBackoffMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(d.RetryBackoffMillis) * time.Millisecond
}

type WorkerConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	if w.SweepIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.SweepIntervalSeconds) * time.Second
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
