// Package config assembles dashboard settings from defaults, an optional YAML
// file and environment overrides, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"simdash/internal/observability"
	"simdash/internal/playback"
	"simdash/internal/telemetry"
	"simdash/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	EnvPeerURL     = "SIMDASH_PEER_URL"
	EnvListenAddr  = "SIMDASH_LISTEN_ADDR"
	EnvDefaultRate = "SIMDASH_DEFAULT_RATE"
	EnvMaxRate     = "SIMDASH_MAX_RATE"
	EnvLogJSON     = "SIMDASH_LOG_JSON"
	EnvLogLevel    = "SIMDASH_LOG_LEVEL"
	EnvClientDir   = "SIMDASH_CLIENT_DIR"
	EnvPprofTrace  = "ENABLE_PPROF_TRACE"
)

type PlaybackConfig struct {
	DefaultRate   float64 `yaml:"defaultRate"`
	MaxRate       float64 `yaml:"maxRate"`
	CommandBuffer int     `yaml:"commandBuffer"`
}

type PeerConfig struct {
	URL           string        `yaml:"url"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	InboundBuffer int           `yaml:"inboundBuffer"`
}

type DashboardConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	ClientDir  string `yaml:"clientDir"`
}

type Config struct {
	Peer          PeerConfig           `yaml:"peer"`
	Dashboard     DashboardConfig      `yaml:"dashboard"`
	Playback      PlaybackConfig       `yaml:"playback"`
	Logging       logging.Config       `yaml:"logging"`
	Observability observability.Config `yaml:"observability"`
}

func Default() Config {
	rates := playback.DefaultConfig()
	return Config{
		Peer: PeerConfig{
			URL:           "ws://127.0.0.1:8521/ws",
			DialTimeout:   10 * time.Second,
			WriteTimeout:  5 * time.Second,
			InboundBuffer: 256,
		},
		Dashboard: DashboardConfig{
			ListenAddr: ":8080",
		},
		Playback: PlaybackConfig{
			DefaultRate:   rates.DefaultRate,
			MaxRate:       rates.MaxRate,
			CommandBuffer: 64,
		},
		Logging: logging.DefaultConfig(),
	}
}

// PlaybackRates converts the playback section for the synchronizer.
func (c Config) PlaybackRates() playback.Config {
	return playback.Config{DefaultRate: c.Playback.DefaultRate, MaxRate: c.Playback.MaxRate}
}

// LoadFile overlays the YAML document at path on top of Default. Unknown keys
// are rejected so typos surface at startup.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides. Values that fail to parse are
// logged and skipped.
func ApplyEnv(cfg Config, getenv func(string) string, logger telemetry.Logger) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	if raw := getenv(EnvPeerURL); raw != "" {
		cfg.Peer.URL = raw
	}
	if raw := getenv(EnvListenAddr); raw != "" {
		cfg.Dashboard.ListenAddr = raw
	}
	if raw := getenv(EnvClientDir); raw != "" {
		cfg.Dashboard.ClientDir = raw
	}
	if raw := getenv(EnvDefaultRate); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Playback.DefaultRate = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvDefaultRate, raw, err)
		}
	}
	if raw := getenv(EnvMaxRate); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Playback.MaxRate = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvMaxRate, raw, err)
		}
	}
	if raw := getenv(EnvLogJSON); raw != "" {
		cfg.Logging.JSON.FilePath = raw
		if !cfg.Logging.HasSink("json") {
			cfg.Logging.EnabledSinks = append(append([]string(nil), cfg.Logging.EnabledSinks...), "json")
		}
	}
	if raw := getenv(EnvLogLevel); raw != "" {
		if value, err := logging.ParseSeverity(raw); err == nil {
			cfg.Logging.MinimumSeverity = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvLogLevel, raw, err)
		}
	}
	if raw := getenv(EnvPprofTrace); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Observability.EnablePprofTrace = value
		} else {
			logger.Printf("invalid %s=%q: %v", EnvPprofTrace, raw, err)
		}
	}
	return cfg
}

// Validate rejects settings the dashboard cannot start with.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.Peer.URL)
	if err != nil {
		return fmt.Errorf("%w: peer url %q: %v", ErrInvalid, c.Peer.URL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("%w: peer url %q must use ws or wss", ErrInvalid, c.Peer.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: peer url %q has no host", ErrInvalid, c.Peer.URL)
	}
	if c.Dashboard.ListenAddr == "" {
		return fmt.Errorf("%w: dashboard listen address is empty", ErrInvalid)
	}
	if !finite(c.Playback.MaxRate) || !finite(c.Playback.DefaultRate) {
		return fmt.Errorf("%w: playback rates must be finite, got default %v max %v", ErrInvalid, c.Playback.DefaultRate, c.Playback.MaxRate)
	}
	if c.Playback.MaxRate < playback.MinRate || c.Playback.MaxRate > playback.RateLimit {
		return fmt.Errorf("%w: max rate %v outside [%v, %v]", ErrInvalid, c.Playback.MaxRate, playback.MinRate, playback.RateLimit)
	}
	if c.Playback.DefaultRate < playback.MinRate || c.Playback.DefaultRate > c.Playback.MaxRate {
		return fmt.Errorf("%w: default rate %v outside [%v, %v]", ErrInvalid, c.Playback.DefaultRate, playback.MinRate, c.Playback.MaxRate)
	}
	if c.Logging.HasSink("json") && c.Logging.JSON.FilePath == "" {
		return fmt.Errorf("%w: json log sink enabled without a file path", ErrInvalid)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
