package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Activation ActivationConfig `yaml:"activation"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type ActivationConfig struct {
	Port int `yaml:"port"`
}

type LifecycleConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
}

type MonitorConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// UpstreamConfig names the application the primary endpoint fronts.
// When URL is empty the server answers application paths itself.
type UpstreamConfig struct {
	URL string `yaml:"url"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Activation: ActivationConfig{
			Port: 8081,
		},
		Lifecycle: LifecycleConfig{
			InactivityTimeout: 5 * time.Minute,
			ShutdownGrace:     5 * time.Second,
		},
		Monitor: MonitorConfig{
			SampleInterval: 30 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the controller cannot run with. The two
// listeners must not contend for the same port, and the inactivity window
// must be a real duration or the service would stop immediately.
func (c *Config) Validate() error {
	if c.Server.Port == c.Activation.Port {
		return fmt.Errorf("server port and activation port are both %d", c.Server.Port)
	}
	if c.Lifecycle.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivity_timeout must be positive, got %v", c.Lifecycle.InactivityTimeout)
	}
	if c.Monitor.SampleInterval <= 0 {
		return fmt.Errorf("sample_interval must be positive, got %v", c.Monitor.SampleInterval)
	}
	return nil
}
