package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type NetworkConfig struct {
	HorizonURL string        `yaml:"horizon_url"`
	Passphrase string        `yaml:"passphrase"`
	Timeout    time.Duration `yaml:"-"`
	RawTimeout string        `yaml:"timeout"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	// BaseURL is the public URL of this service, used to patch signature
	// request callbacks so that cosigners submit back to us.
	BaseURL          string                    `yaml:"base_url"`
	Networks         map[string]*NetworkConfig `yaml:"networks"`
	DefaultNetwork   string                    `yaml:"default_network"`
	TxMaxTTL         time.Duration             `yaml:"-"`
	RawTxMaxTTL      string                    `yaml:"tx_max_ttl"`
	SubmitTimeout    time.Duration             `yaml:"-"`
	RawSubmitTimeout string                    `yaml:"submit_timeout"`
	DBConfig         *DBConfig                 `yaml:"postgres"`
	Presenter        *PresenterConfig          `yaml:"presenter"`
	LogLevel         logrus.Level              `yaml:"-"`
	RawLogLevel      string                    `yaml:"log_level"`
}

const (
	DefaultTxMaxTTL      = 14 * 24 * time.Hour
	DefaultSubmitTimeout = 15 * time.Second
)

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	blob = []byte(os.ExpandEnv(string(blob)))

	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

func (cfg *Config) init() error {
	var err error

	cfg.LogLevel = logrus.InfoLevel
	if cfg.RawLogLevel != "" {
		cfg.LogLevel, err = logrus.ParseLevel(cfg.RawLogLevel)
		if err != nil {
			return fmt.Errorf("can't parse log level: %w", err)
		}
	}

	cfg.TxMaxTTL, err = parseDuration(cfg.RawTxMaxTTL, DefaultTxMaxTTL)
	if err != nil {
		return fmt.Errorf("can't parse tx_max_ttl: %w", err)
	}
	cfg.SubmitTimeout, err = parseDuration(cfg.RawSubmitTimeout, DefaultSubmitTimeout)
	if err != nil {
		return fmt.Errorf("can't parse submit_timeout: %w", err)
	}

	if len(cfg.Networks) == 0 {
		return fmt.Errorf("at least one stellar network should be configured")
	}
	for name, network := range cfg.Networks {
		if network.HorizonURL == "" {
			return fmt.Errorf("missing horizon_url for network %s", name)
		}
		if network.Passphrase == "" {
			return fmt.Errorf("missing passphrase for network %s", name)
		}
		network.Timeout, err = parseDuration(network.RawTimeout, DefaultSubmitTimeout)
		if err != nil {
			return fmt.Errorf("can't parse timeout for network %s: %w", name, err)
		}
	}
	if cfg.DefaultNetwork == "" {
		return fmt.Errorf("default_network should be specified")
	}
	if cfg.Networks[cfg.DefaultNetwork] == nil {
		return fmt.Errorf("default_network %s is not configured", cfg.DefaultNetwork)
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url should be specified")
	}
	if cfg.DBConfig == nil {
		return fmt.Errorf("postgres configuration should be specified")
	}
	return nil
}

// GetNetworkConfig finds a configured network by its passphrase. An empty
// passphrase selects the default network.
func (cfg *Config) GetNetworkConfig(passphrase string) *NetworkConfig {
	if passphrase == "" {
		return cfg.Networks[cfg.DefaultNetwork]
	}
	for _, network := range cfg.Networks {
		if network.Passphrase == passphrase {
			return network
		}
	}
	return nil
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}
