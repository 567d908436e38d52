package bridge

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/viam-modules/aruco-bridge/marker"
	"github.com/viam-modules/aruco-bridge/plog"
)

// Environment variables read when the plugin is loaded.
const (
	EnvDictionary = "ARUCO_BRIDGE_DICTIONARY"
	EnvLogLevel   = "ARUCO_BRIDGE_LOG_LEVEL"
	EnvLogFormat  = "ARUCO_BRIDGE_LOG_FORMAT"
)

// Options configures a Bridge.
type Options struct {
	// Dictionary names the ArUco dictionary, see marker.ParseDictionary.
	Dictionary string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is "console" or "json".
	LogFormat string
}

// DefaultOptions selects the classic ArUco dictionary and logs warnings and
// errors to the console.
func DefaultOptions() Options {
	return Options{
		Dictionary: marker.DefaultDictionary,
		LogLevel:   "warn",
		LogFormat:  "console",
	}
}

// OptionsFromEnv overlays variables found by lookup on the defaults.
func OptionsFromEnv(lookup func(string) (string, bool)) (Options, error) {
	opts := DefaultOptions()
	if v, ok := lookup(EnvDictionary); ok && v != "" {
		opts.Dictionary = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		opts.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		opts.LogFormat = strings.ToLower(v)
	}
	return opts, opts.Validate()
}

// Validate checks every option.
func (o Options) Validate() error {
	if _, err := marker.ParseDictionary(o.Dictionary); err != nil {
		return err
	}
	if _, err := plog.ParseLevel(o.LogLevel); err != nil {
		return err
	}
	switch o.LogFormat {
	case "console", "json":
	default:
		return errors.Errorf("unknown log format %q, expected console or json", o.LogFormat)
	}
	return nil
}

// Logger builds the zerolog logger described by the options.
func (o Options) Logger(w io.Writer) plog.Logger {
	level, err := plog.ParseLevel(o.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	if o.LogFormat == "json" {
		return plog.NewZerolog(w, level)
	}
	return plog.NewConsole(w, level)
}
