// Package config provides configuration management for radigw.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Album-art selection policies for browse lists and now-playing pushes.
const (
	AATypeBanner          = "banner"
	AATypeLogo            = "logo"
	AATypeProgramThenLogo = "program-then-logo"
)

// Config is the resolved runtime configuration.
type Config struct {
	// HTTP
	Port        int
	MetricsPort int // 0 disables the metrics listener
	LogLevel    string

	// Broadcast-time behaviour
	DelaySec            int
	AAType              string
	TimeshiftPastDays   int
	TimeshiftFutureDays int
	EnabledAreas        []string

	// Premium account (both required for a login attempt)
	PremiumMail string
	PremiumPass string

	// Relay
	FFmpegPath string
	LogoDir    string // empty disables the on-disk logo cache

	// Upstream client
	UpstreamTimeout time.Duration
}

// FileConfig represents the YAML configuration structure.
// Pointers distinguish "not set" from explicit zero values.
type FileConfig struct {
	Port        *int   `yaml:"port,omitempty"`
	MetricsPort *int   `yaml:"metricsPort,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`

	DelaySec            *int     `yaml:"delaySec,omitempty"`
	AAType              string   `yaml:"aaType,omitempty"`
	TimeshiftPastDays   *int     `yaml:"timeshiftPastDays,omitempty"`
	TimeshiftFutureDays *int     `yaml:"timeshiftFutureDays,omitempty"`
	EnabledAreas        []string `yaml:"enabledAreas,omitempty"`

	PremiumMail string `yaml:"premiumMail,omitempty"`
	PremiumPass string `yaml:"premiumPass,omitempty"`

	FFmpegPath string `yaml:"ffmpegPath,omitempty"`
	LogoDir    string `yaml:"logoDir,omitempty"`

	UpstreamTimeout string `yaml:"upstreamTimeout,omitempty"` // e.g. "10s"
}

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. configPath may be empty.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load resolves the configuration: defaults, then strict YAML file, then
// environment overrides, then validation.
func (l *Loader) Load() (Config, error) {
	cfg := Config{}
	l.setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := l.mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if err := Validate(&cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *Config) {
	cfg.Port = 9000
	cfg.MetricsPort = 0
	cfg.LogLevel = "info"
	cfg.DelaySec = 20
	cfg.AAType = AATypeProgramThenLogo
	cfg.TimeshiftPastDays = 7
	cfg.TimeshiftFutureDays = 0
	cfg.FFmpegPath = "ffmpeg"
	cfg.UpstreamTimeout = 10 * time.Second
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause an error to surface misconfiguration early.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func (l *Loader) mergeFileConfig(dst *Config, src *FileConfig) error {
	if src.Port != nil {
		dst.Port = *src.Port
	}
	if src.MetricsPort != nil {
		dst.MetricsPort = *src.MetricsPort
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DelaySec != nil {
		dst.DelaySec = *src.DelaySec
	}
	if src.AAType != "" {
		dst.AAType = src.AAType
	}
	if src.TimeshiftPastDays != nil {
		dst.TimeshiftPastDays = *src.TimeshiftPastDays
	}
	if src.TimeshiftFutureDays != nil {
		dst.TimeshiftFutureDays = *src.TimeshiftFutureDays
	}
	if len(src.EnabledAreas) > 0 {
		dst.EnabledAreas = append([]string(nil), src.EnabledAreas...)
	}
	if src.PremiumMail != "" {
		dst.PremiumMail = expandEnv(src.PremiumMail)
	}
	if src.PremiumPass != "" {
		dst.PremiumPass = expandEnv(src.PremiumPass)
	}
	if src.FFmpegPath != "" {
		dst.FFmpegPath = expandEnv(src.FFmpegPath)
	}
	if src.LogoDir != "" {
		dst.LogoDir = expandEnv(src.LogoDir)
	}
	if src.UpstreamTimeout != "" {
		d, err := time.ParseDuration(src.UpstreamTimeout)
		if err != nil {
			return fmt.Errorf("invalid upstreamTimeout: %w", err)
		}
		dst.UpstreamTimeout = d
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *Config) {
	cfg.Port = envInt("RADIGW_PORT", cfg.Port)
	cfg.MetricsPort = envInt("RADIGW_METRICS_PORT", cfg.MetricsPort)
	cfg.LogLevel = envString("RADIGW_LOG_LEVEL", cfg.LogLevel)
	cfg.DelaySec = envInt("RADIGW_DELAY_SEC", cfg.DelaySec)
	cfg.AAType = envString("RADIGW_AA_TYPE", cfg.AAType)
	cfg.TimeshiftPastDays = envInt("RADIGW_TIMESHIFT_PAST_DAYS", cfg.TimeshiftPastDays)
	cfg.TimeshiftFutureDays = envInt("RADIGW_TIMESHIFT_FUTURE_DAYS", cfg.TimeshiftFutureDays)
	cfg.EnabledAreas = envList("RADIGW_ENABLED_AREAS", cfg.EnabledAreas)
	cfg.PremiumMail = envString("RADIGW_PREMIUM_MAIL", cfg.PremiumMail)
	cfg.PremiumPass = envString("RADIGW_PREMIUM_PASS", cfg.PremiumPass)
	cfg.FFmpegPath = envString("RADIGW_FFMPEG_PATH", cfg.FFmpegPath)
	cfg.LogoDir = envString("RADIGW_LOGO_DIR", cfg.LogoDir)
	cfg.UpstreamTimeout = envDuration("RADIGW_UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
}

// Validate checks the resolved configuration for contradictions.
func Validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.MetricsPort != 0 {
		if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
			return fmt.Errorf("metricsPort %d out of range", cfg.MetricsPort)
		}
		if cfg.MetricsPort == cfg.Port {
			return fmt.Errorf("metricsPort collides with port %d", cfg.Port)
		}
	}
	switch cfg.AAType {
	case AATypeBanner, AATypeLogo, AATypeProgramThenLogo:
	default:
		return fmt.Errorf("aaType %q is not one of banner, logo, program-then-logo", cfg.AAType)
	}
	if cfg.DelaySec < 0 {
		return fmt.Errorf("delaySec must not be negative")
	}
	if cfg.TimeshiftPastDays < 0 || cfg.TimeshiftFutureDays < 0 {
		return fmt.Errorf("timeshift windows must not be negative")
	}
	for _, area := range cfg.EnabledAreas {
		if !ValidAreaID(area) {
			return fmt.Errorf("enabledAreas entry %q is not JP1..JP47", area)
		}
	}
	if (cfg.PremiumMail == "") != (cfg.PremiumPass == "") {
		return fmt.Errorf("premiumMail and premiumPass must be set together")
	}
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstreamTimeout must be positive")
	}
	return nil
}

// ValidAreaID reports whether s names one of the 47 prefecture areas.
func ValidAreaID(s string) bool {
	rest, ok := strings.CutPrefix(s, "JP")
	if !ok || rest == "" {
		return false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return false
	}
	// Reject zero-padded spellings like JP07; the upstream uses JP7.
	if strconv.Itoa(n) != rest {
		return false
	}
	return n >= 1 && n <= 47
}

// PremiumConfigured reports whether a login attempt should be made.
func (c *Config) PremiumConfigured() bool {
	return c.PremiumMail != "" && c.PremiumPass != ""
}

// ListenAddr returns the bind address for the relay HTTP listener.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MetricsAddr returns the bind address for the metrics listener, or "" when
// disabled.
func (c *Config) MetricsAddr() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.MetricsPort)
}

// String renders the configuration with credentials masked.
func (c *Config) String() string {
	mail := c.PremiumMail
	if mail != "" {
		mail = maskTail(mail)
	}
	pass := ""
	if c.PremiumPass != "" {
		pass = "***"
	}
	return fmt.Sprintf(
		"port=%d metricsPort=%d delaySec=%d aaType=%s timeshift=%dd/%dd areas=%v premiumMail=%s premiumPass=%s ffmpeg=%s logoDir=%s upstreamTimeout=%s",
		c.Port, c.MetricsPort, c.DelaySec, c.AAType,
		c.TimeshiftPastDays, c.TimeshiftFutureDays, c.EnabledAreas,
		mail, pass, c.FFmpegPath, c.LogoDir, c.UpstreamTimeout,
	)
}

func maskTail(s string) string {
	if len(s) <= 3 {
		return "***"
	}
	return s[:3] + "***"
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func envString(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
