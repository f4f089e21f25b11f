package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Geocoder configuration.
	Provider         string
	APIKey           string
	AppID            string
	AppCode          string
	ClientID         string
	ClientSecret     string
	Language         string
	Region           string
	Country          string
	State            string
	Formatter        string
	FormatterPattern string
	MinConfidence    *float64
	Timeout          time.Duration
	BatchConcurrency int
	MaxMindDBPath    string
	ProviderExtra    map[string]string

	// Streaming worker configuration.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// optionsFile is the YAML shape of GEOCODER_OPTIONS_FILE. Values set in the
// file fill fields the environment left empty; extra is passed to the provider.
type optionsFile struct {
	Provider         string            `yaml:"provider"`
	APIKey           string            `yaml:"apiKey"`
	AppID            string            `yaml:"appId"`
	AppCode          string            `yaml:"appCode"`
	ClientID         string            `yaml:"clientId"`
	ClientSecret     string            `yaml:"clientSecret"`
	Language         string            `yaml:"language"`
	Formatter        string            `yaml:"formatter"`
	FormatterPattern string            `yaml:"formatterPattern"`
	Extra            map[string]string `yaml:"extra"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("GEOCODER_TIMEOUT", "5s"))
	if err != nil || timeout <= 0 {
		return nil, errors.New("invalid GEOCODER_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	concurrency, err := parseNonNegativeInt("GEOCODER_BATCH_CONCURRENCY")
	if err != nil {
		return nil, err
	}

	minConfidence, err := parseMinConfidence()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Provider:         os.Getenv("GEOCODER_PROVIDER"),
		APIKey:           os.Getenv("GEOCODER_API_KEY"),
		AppID:            os.Getenv("GEOCODER_APP_ID"),
		AppCode:          os.Getenv("GEOCODER_APP_CODE"),
		ClientID:         os.Getenv("GEOCODER_CLIENT_ID"),
		ClientSecret:     os.Getenv("GEOCODER_CLIENT_SECRET"),
		Language:         os.Getenv("GEOCODER_LANGUAGE"),
		Region:           os.Getenv("GEOCODER_REGION"),
		Country:          os.Getenv("GEOCODER_COUNTRY"),
		State:            os.Getenv("GEOCODER_STATE"),
		Formatter:        os.Getenv("GEOCODER_FORMATTER"),
		FormatterPattern: os.Getenv("GEOCODER_FORMATTER_PATTERN"),
		MinConfidence:    minConfidence,
		Timeout:          timeout,
		BatchConcurrency: concurrency,
		MaxMindDBPath:    os.Getenv("MAXMIND_DB_PATH"),
		ProviderExtra:    map[string]string{},

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "geocode-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "geocode-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "geocoder"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if path := os.Getenv("GEOCODER_OPTIONS_FILE"); path != "" {
		if err := cfg.mergeOptionsFile(path); err != nil {
			return nil, err
		}
	}
	if cfg.Provider == "" {
		cfg.Provider = "openstreetmap"
	}
	if cfg.MaxMindDBPath != "" {
		cfg.ProviderExtra["maxmindDbPath"] = cfg.MaxMindDBPath
	}

	if cfg.Language != "" {
		if _, err := language.Parse(cfg.Language); err != nil {
			return nil, fmt.Errorf("invalid GEOCODER_LANGUAGE %q: %w", cfg.Language, err)
		}
	}
	if cfg.Formatter == "string" && cfg.FormatterPattern == "" {
		return nil, errors.New("GEOCODER_FORMATTER is string but GEOCODER_FORMATTER_PATTERN is not set")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func (c *Config) mergeOptionsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read GEOCODER_OPTIONS_FILE: %w", err)
	}
	var f optionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse GEOCODER_OPTIONS_FILE: %w", err)
	}

	fill(&c.Provider, f.Provider)
	fill(&c.APIKey, f.APIKey)
	fill(&c.AppID, f.AppID)
	fill(&c.AppCode, f.AppCode)
	fill(&c.ClientID, f.ClientID)
	fill(&c.ClientSecret, f.ClientSecret)
	fill(&c.Language, f.Language)
	fill(&c.Formatter, f.Formatter)
	fill(&c.FormatterPattern, f.FormatterPattern)
	for k, v := range f.Extra {
		c.ProviderExtra[k] = v
	}
	return nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func parseNonNegativeInt(key string) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseMinConfidence() (*float64, error) {
	s := os.Getenv("GEOCODER_MIN_CONFIDENCE")
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || v > 1 {
		return nil, errors.New("invalid GEOCODER_MIN_CONFIDENCE: must be between 0 and 1")
	}
	return &v, nil
}
