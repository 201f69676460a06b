package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	MetricsNone   = "none"
	MetricsStdout = "stdout"
)

// EnvPrefix is prepended to every environment override, e.g.
// AVAILMON_INTERVAL=30s.
const EnvPrefix = "AVAILMON"

// Settings holds the runtime knobs of the monitor.
type Settings struct {
	Interval      time.Duration
	Timeout       time.Duration
	SlowThreshold time.Duration
	MaxConcurrent int
	LogFile       string
	LogLevel      string
	Metrics       string
}

// Flag names; each maps to the settings key of the same name.
const (
	flagInterval      = "interval"
	flagTimeout       = "timeout"
	flagSlowThreshold = "slow-threshold"
	flagMaxConcurrent = "max-concurrent"
	flagLogFile       = "log-file"
	flagLogLevel      = "log-level"
	flagMetrics       = "metrics"
)

// RegisterFlags adds the settings flags to fs with their defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Duration(flagInterval, 15*time.Second, "time between probes of the same endpoint")
	fs.Duration(flagTimeout, 5*time.Second, "per-probe request timeout")
	fs.Duration(flagSlowThreshold, 500*time.Millisecond, "latency at which a 2xx response counts as unhealthy")
	fs.Int(flagMaxConcurrent, 32, "maximum probes in flight across all endpoints")
	fs.String(flagLogFile, "output.log", "report log file")
	fs.String(flagLogLevel, LogLevelInfo, "log level (debug, info, warn, error)")
	fs.String(flagMetrics, MetricsNone, "metrics exporter (none, stdout)")
}

// LoadSettings resolves settings from, in increasing priority: defaults,
// AVAILMON_* environment variables, and flags explicitly set in fs.
// fs may be nil.
func LoadSettings(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	v.SetDefault(flagInterval, "15s")
	v.SetDefault(flagTimeout, "5s")
	v.SetDefault(flagSlowThreshold, "500ms")
	v.SetDefault(flagMaxConcurrent, 32)
	v.SetDefault(flagLogFile, "output.log")
	v.SetDefault(flagLogLevel, LogLevelInfo)
	v.SetDefault(flagMetrics, MetricsNone)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	s := &Settings{
		Interval:      v.GetDuration(flagInterval),
		Timeout:       v.GetDuration(flagTimeout),
		SlowThreshold: v.GetDuration(flagSlowThreshold),
		MaxConcurrent: v.GetInt(flagMaxConcurrent),
		LogFile:       v.GetString(flagLogFile),
		LogLevel:      strings.ToLower(v.GetString(flagLogLevel)),
		Metrics:       strings.ToLower(v.GetString(flagMetrics)),
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Validate checks every field is in range.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Interval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.SlowThreshold, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&s.MaxConcurrent, validation.Required, validation.Min(1)),
		validation.Field(&s.LogFile, validation.Required),
		validation.Field(&s.LogLevel,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
		validation.Field(&s.Metrics, validation.In(MetricsNone, MetricsStdout)),
	)
}
