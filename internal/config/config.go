// Package config handles TarXiv configuration loading: the YAML
// config file (config.yml) plus the authoritative environment
// variables that carry credentials and endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yml, ~/.config/tarxiv/config.yml, /config/config.yml,
// /etc/tarxiv/config.yml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tarxiv", "config.yml"))
	}

	paths = append(paths, "/config/config.yml") // container convention
	paths = append(paths, "/etc/tarxiv/config.yml")
	return paths
}

// searchPathsFunc is overridden in tests to avoid picking up real
// config files present on the developer or deploy machine.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// Config holds the parsed config.yml, as documented in spec.md §6.
type Config struct {
	LogDir       string `yaml:"log_dir"`
	APIPort      int    `yaml:"api_port"`
	LogstashHost string `yaml:"logstash_host"`
	LogstashPort int    `yaml:"logstash_port"`

	XMatchIngestTopic string  `yaml:"xmatch_ingest_topic"`
	XMatchWindowLen   int     `yaml:"xmatch_window_len"` // hours
	XMatchRadius      float64 `yaml:"xmatch_radius"`     // arcseconds
	XMatchIDLen       int     `yaml:"xmatch_id_len"`     // identifier width

	SparkExecutors      int    `yaml:"spark_executors"`
	SparkExecutorCores  int    `yaml:"spark_executor_cores"`
	SparkExecutorMemory string `yaml:"spark_executor_memory"`
	SparkDriverMemory   string `yaml:"spark_driver_memory"`

	ATLAS  SurveyConfig `yaml:"atlas"`
	ZTF    SurveyConfig `yaml:"ztf"`
	ASASSN SurveyConfig `yaml:"asas_sn"`
	LSST   SurveyConfig `yaml:"lsst"`
	TNS    TNSConfig    `yaml:"tns"`

	IMAP IMAPConfig `yaml:"imap"`

	LogLevel string `yaml:"log_level"`
}

// SurveyConfig is one per-survey configuration block.
type SurveyConfig struct {
	KafkaEndpoint     string   `yaml:"kafka_endpoint"`
	KafkaTopics       []string `yaml:"kafka_topics"`
	KafkaGroupID      string   `yaml:"kafka_group_id"`
	AssociatedSources []string `yaml:"associated_sources"`
	PollingInterval   int      `yaml:"polling_interval"` // seconds
	RateLimit         int      `yaml:"rate_limit"`       // milliseconds between requests
	URL               string   `yaml:"url"`
}

// TNSConfig extends SurveyConfig with the light-curve time-window
// parameters anchored on TNS's discovery/reporting dates (spec.md §4.4).
type TNSConfig struct {
	SurveyConfig  `yaml:",inline"`
	Email         string `yaml:"email"`          // sender address used by the mail listener
	ObjPriorDays  int    `yaml:"obj_prior_days"`  // P
	ObjActiveDays int    `yaml:"obj_active_days"` // A
}

// IMAPConfig holds the mailbox connection parameters for the alert
// listener (spec.md §6 ingress).
type IMAPConfig struct {
	Server          string `yaml:"server"`
	Port            int    `yaml:"port"`
	PollingInterval int    `yaml:"polling_interval"` // seconds
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.APIPort == 0 {
		c.APIPort = 8080
	}
	if c.LogDir == "" {
		c.LogDir = "./log"
	}
	if c.XMatchWindowLen == 0 {
		c.XMatchWindowLen = 24
	}
	if c.XMatchRadius == 0 {
		c.XMatchRadius = 15
	}
	if c.XMatchIDLen == 0 {
		c.XMatchIDLen = 6
	}
	if c.XMatchIngestTopic == "" {
		c.XMatchIngestTopic = "xmatch-detections"
	}
	if c.SparkExecutors == 0 {
		c.SparkExecutors = 1
	}
	if c.TNS.ObjPriorDays == 0 {
		c.TNS.ObjPriorDays = 30
	}
	if c.TNS.ObjActiveDays == 0 {
		c.TNS.ObjActiveDays = 180
	}
	if c.IMAP.Port == 0 {
		c.IMAP.Port = 993
	}
	if c.IMAP.PollingInterval == 0 {
		c.IMAP.PollingInterval = 60
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("api_port %d out of range (1-65535)", c.APIPort)
	}
	if c.XMatchRadius <= 0 {
		return fmt.Errorf("xmatch_radius must be positive, got %f", c.XMatchRadius)
	}
	if c.XMatchWindowLen <= 0 {
		return fmt.Errorf("xmatch_window_len must be positive, got %d", c.XMatchWindowLen)
	}
	if c.XMatchIDLen <= 0 {
		return fmt.Errorf("xmatch_id_len must be positive, got %d", c.XMatchIDLen)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}
