package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config models hamasa.yml.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Auth     Auth     `yaml:"auth"`
	OTP      OTP      `yaml:"otp"`
	SMS      SMS      `yaml:"sms"`
	Import   Import   `yaml:"import"`
	Log      Log      `yaml:"log"`
	Seed     Seed     `yaml:"seed"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Auth struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl"`
	ServiceTokenTTL    time.Duration `yaml:"service_token_ttl"`
	BcryptCost         int           `yaml:"bcrypt_cost"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

type OTP struct {
	TTL    time.Duration `yaml:"ttl"`
	Length int           `yaml:"length"`
}

type SMS struct {
	// Provider is "beem" or "log".
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	SecretKey  string        `yaml:"secret_key"`
	SourceAddr string        `yaml:"source_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Import struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Seed struct {
	Categories          []string            `yaml:"categories"`
	MediaCategories     map[string][]string `yaml:"media_categories"`
	ReportAvenues       []string            `yaml:"report_avenues"`
	ReportTimes         []string            `yaml:"report_times"`
	ReportConsultations []string            `yaml:"report_consultations"`
}

// Load reads and validates config from workspace, falling back to defaults when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	var result *multierror.Error
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		result = multierror.Append(result, fmt.Errorf("server.base_path must start with /"))
	}
	if c.Database.Path == "" {
		result = multierror.Append(result, fmt.Errorf("database.path is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("auth.access_token_ttl must be positive"))
	}
	if c.Auth.RefreshTokenTTL < c.Auth.AccessTokenTTL {
		result = multierror.Append(result, fmt.Errorf("auth.refresh_token_ttl must not be shorter than auth.access_token_ttl"))
	}
	if c.Auth.ServiceTokenTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("auth.service_token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		result = multierror.Append(result, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31"))
	}
	if c.Auth.RateLimitPerMinute < 0 {
		result = multierror.Append(result, fmt.Errorf("auth.rate_limit_per_minute must not be negative"))
	}
	if c.OTP.TTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("otp.ttl must be positive"))
	}
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		result = multierror.Append(result, fmt.Errorf("otp.length must be between 4 and 10"))
	}
	switch c.SMS.Provider {
	case "log":
	case "beem":
		if c.SMS.BaseURL == "" || c.SMS.APIKey == "" || c.SMS.SecretKey == "" {
			result = multierror.Append(result, fmt.Errorf("sms.base_url, sms.api_key and sms.secret_key are required for the beem provider"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("sms.provider must be one of beem, log"))
	}
	if c.Import.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("import.timeout must be positive"))
	}
	if c.Import.MaxBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("import.max_bytes must be positive"))
	}
	for category, sources := range c.Seed.MediaCategories {
		if strings.TrimSpace(category) == "" {
			result = multierror.Append(result, fmt.Errorf("seed.media_categories has an empty category name"))
		}
		for _, s := range sources {
			if strings.TrimSpace(s) == "" {
				result = multierror.Append(result, fmt.Errorf("seed.media_categories.%s has an empty source name", category))
			}
		}
	}
	return result.ErrorOrNil()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hamasa.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /hamasa-api/v1
  trust_proxy_headers: false

database:
  path: .hamasa/hamasa.db

auth:
  # jwt_secret is usually supplied through HAMASA_JWT_SECRET.
  jwt_secret: ""
  access_token_ttl: 30m
  refresh_token_ttl: 720h
  service_token_ttl: 8760h
  bcrypt_cost: 10
  rate_limit_per_minute: 5

otp:
  ttl: 5m
  length: 6

sms:
  provider: log
  base_url: https://apisms.beem.africa/v1/send
  api_key: ""
  secret_key: ""
  source_addr: HAMASA
  timeout: 10s

import:
  timeout: 10s
  max_bytes: 10485760

log:
  level: info
  development: false

seed:
  categories: [Politics, Sports, Education, Health, Economy, Technology, Business, Governance, Environment]
  media_categories:
    Television: [ITV, Star TV, TBC, Azam TV]
    Radio: [Clouds FM, Radio One, TBC FM]
    Digital Media: [Mwananchi Online, The Citizen, IPP Media]
    Print Media: [Mwananchi Newspaper, The Guardian, Nipashe]
    Social Media: []
  report_avenues: [Web, Mobile, Email, Dashboard]
  report_times: [Daily, Weekly, Monthly, Quarterly, Annually]
  report_consultations: [On-demand, Scheduled]
`
