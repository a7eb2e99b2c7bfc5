// Package config loads server settings from YAML, .env files and
// WSAGENT_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/wsagent"
	"github.com/Zereker/wsagent/marshal"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "WSAGENT_"

// Settings holds configuration for a wsagent server.
type Settings struct {
	Listen          string        `yaml:"listen"`
	LogLevel        string        `yaml:"log_level"`
	MetricsPath     string        `yaml:"metrics_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReadLimit       int64         `yaml:"read_limit"`
	SendBuffer      int           `yaml:"send_buffer"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	WS              WS            `yaml:"ws"`
}

// WS holds the default protocol of agents.
type WS struct {
	FrameType       string `yaml:"frame_type"`
	Metadata        string `yaml:"metadata"`
	Marshal         string `yaml:"marshal"`
	TextSeparator   string `yaml:"text_separator"`
	BinarySeparator string `yaml:"binary_separator"`
	APIVersion      string `yaml:"api_version"`
}

// SetDefaults fills unset values with built-in defaults.
func (s *Settings) SetDefaults() {
	if s.Listen == "" {
		s.Listen = ":8080"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 5 * time.Second
	}
	if s.ReadLimit == 0 {
		s.ReadLimit = 1 << 20
	}
	if s.SendBuffer == 0 {
		s.SendBuffer = 16
	}
	if s.WS.FrameType == "" {
		s.WS.FrameType = wsagent.FromClient.String()
	}
	if s.WS.Metadata == "" {
		s.WS.Metadata = string(wsagent.MetaText)
	}
	if s.WS.Marshal == "" {
		s.WS.Marshal = string(marshal.KindJSON)
	}
	if s.WS.APIVersion == "" {
		s.WS.APIVersion = wsagent.DefaultAPIVersion
	}
}

// ApplyEnv overlays WSAGENT_* environment variables onto the current values.
// Malformed numbers and durations are ignored.
func (s *Settings) ApplyEnv() {
	if v := getEnv("LISTEN"); v != "" {
		s.Listen = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := getEnv("METRICS_PATH"); v != "" {
		s.MetricsPath = v
	}
	if v := getEnv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.ShutdownTimeout = d
		}
	}
	if v := getEnv("READ_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.ReadLimit = n
		}
	}
	if v := getEnv("SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.SendBuffer = n
		}
	}
	if v := getEnv("IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.IdleTimeout = d
		}
	}
	if v := getEnv("ALLOWED_ORIGINS"); v != "" {
		s.AllowedOrigins = splitComma(v)
	}
	if v := getEnv("WS_FRAME_TYPE"); v != "" {
		s.WS.FrameType = v
	}
	if v := getEnv("WS_METADATA"); v != "" {
		s.WS.Metadata = v
	}
	if v := getEnv("WS_MARSHAL"); v != "" {
		s.WS.Marshal = v
	}
	if v := getEnv("WS_TEXT_SEPARATOR"); v != "" {
		s.WS.TextSeparator = v
	}
	if v := getEnv("WS_BINARY_SEPARATOR"); v != "" {
		s.WS.BinarySeparator = v
	}
	if v := getEnv("WS_API_VERSION"); v != "" {
		s.WS.APIVersion = v
	}
}

// Load reads .env (if present), then the YAML file at path (if not empty),
// then the environment, and finally fills the defaults.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load() // allow .env for local runs

	var s Settings
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	s.ApplyEnv()
	s.SetDefaults()
	return &s, nil
}

// Protocol converts the ws section into the default agent protocol.
func (w WS) Protocol() (wsagent.Protocol, error) {
	frames, err := wsagent.ParseFrameType(w.FrameType)
	if err != nil {
		return wsagent.Protocol{}, errors.Wrap(err, "ws.frame_type")
	}
	kind, err := wsagent.ParseMetadataKind(w.Metadata)
	if err != nil {
		return wsagent.Protocol{}, errors.Wrap(err, "ws.metadata")
	}
	if _, err := marshal.For(marshal.Kind(w.Marshal)); err != nil {
		return wsagent.Protocol{}, errors.Wrap(err, "ws.marshal")
	}
	textSep, err := parseSeparator(w.TextSeparator)
	if err != nil {
		return wsagent.Protocol{}, errors.Wrap(err, "ws.text_separator")
	}
	binarySep, err := parseSeparator(w.BinarySeparator)
	if err != nil {
		return wsagent.Protocol{}, errors.Wrap(err, "ws.binary_separator")
	}
	return wsagent.Protocol{
		Frames:          frames,
		Metadata:        kind,
		Marshal:         marshal.Kind(strings.ToLower(w.Marshal)),
		TextSeparator:   textSep,
		BinarySeparator: binarySep,
		Version:         w.APIVersion,
	}, nil
}

// ConnOptions returns the connection options described by s.
func (s *Settings) ConnOptions() []wsagent.Option {
	return []wsagent.Option{
		wsagent.MessageMaxSize(s.ReadLimit),
		wsagent.BufferSizeOption(s.SendBuffer),
		wsagent.IdleTimeoutOption(s.IdleTimeout),
	}
}

// ServerOptions returns the server options described by s.
func (s *Settings) ServerOptions(logger wsagent.Logger) []wsagent.ServerOption {
	opts := []wsagent.ServerOption{
		wsagent.ServerShutdownTimeoutOption(s.ShutdownTimeout),
		wsagent.ServerMetricsOption(s.MetricsPath),
		wsagent.ServerConnOption(s.ConnOptions()...),
	}
	if logger != nil {
		opts = append(opts, wsagent.ServerLoggerOption(logger))
	}
	if len(s.AllowedOrigins) > 0 {
		opts = append(opts, wsagent.ServerOriginPatternsOption(s.AllowedOrigins...))
	}
	return opts
}

// parseSeparator accepts a single character, "space", or a decimal byte value.
// An empty string selects the default separator.
func parseSeparator(v string) (byte, error) {
	switch {
	case v == "":
		return 0, nil
	case strings.EqualFold(v, "space"):
		return ' ', nil
	case len(v) == 1:
		return v[0], nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, errors.Errorf("invalid separator: %q", v)
	}
	return byte(n), nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func splitComma(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
