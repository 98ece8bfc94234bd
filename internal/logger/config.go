package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LogConfig is the string form of Config, filled from the environment and
// CLI flags before any output is opened.
type LogConfig struct {
	Level      string          `json:"level"`
	Format     string          `json:"format"`
	Output     string          `json:"output"`
	Components map[string]bool `json:"components"`
	ShowCaller bool            `json:"show_caller"`
	Timestamp  bool            `json:"timestamp"`
	Rotation   *RotationConfig `json:"rotation,omitempty"`
}

// RotationConfig controls file outputs. Durations accept a "d" suffix.
type RotationConfig struct {
	Every      string `json:"every"`
	MaxAge     string `json:"max_age"`
	MaxBackups int    `json:"max_backups"` // overrides MaxAge when set
}

// defaultComponents is the component set enabled out of the box: job
// lifecycle and merge outcome only.
func defaultComponents() map[Component]bool {
	return map[Component]bool{
		ComponentApp:   true,
		ComponentMerge: true,
	}
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *LogConfig {
	comps := make(map[string]bool)
	for c, on := range defaultComponents() {
		comps[string(c)] = on
	}
	return &LogConfig{
		Level:      "INFO",
		Format:     "text",
		Output:     "stderr",
		Components: comps,
		Rotation:   &RotationConfig{Every: "1d", MaxAge: "7d"},
	}
}

var levelByName = map[string]Level{
	"TRACE":   TRACE,
	"DEBUG":   DEBUG,
	"INFO":    INFO,
	"WARN":    WARN,
	"WARNING": WARN,
	"ERROR":   ERROR,
}

var formatByName = map[string]Format{
	"text":    FormatText,
	"json":    FormatJSON,
	"color":   FormatColor,
	"colored": FormatColor,
}

func parseLevel(s string) (Level, error) {
	if l, ok := levelByName[strings.ToUpper(s)]; ok {
		return l, nil
	}
	return INFO, fmt.Errorf("unknown level: %s", s)
}

func parseFormat(s string) (Format, error) {
	if f, ok := formatByName[strings.ToLower(s)]; ok {
		return f, nil
	}
	return FormatText, fmt.Errorf("unknown format: %s", s)
}

// outputFile returns the path of a "file:PATH" output.
func outputFile(s string) (string, bool) {
	path, ok := strings.CutPrefix(s, "file:")
	return path, ok && path != ""
}

// parseOutput opens the writer named by s.
func parseOutput(s string, rotation *RotationConfig) (io.Writer, error) {
	switch strings.ToLower(s) {
	case "stdout":
		return os.Stdout, nil
	case "", "stderr":
		return os.Stderr, nil
	case "null", "none":
		return io.Discard, nil
	}
	if path, ok := outputFile(s); ok {
		return NewRotatingWriter(path, rotation)
	}
	return nil, fmt.Errorf("unknown output: %s", s)
}

// ToLoggerConfig converts LogConfig to logger.Config, opening the output.
func (c *LogConfig) ToLoggerConfig() (*Config, error) {
	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}
	level, _ := parseLevel(c.Level)
	format, _ := parseFormat(c.Format)
	output, err := parseOutput(c.Output, c.Rotation)
	if err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	components := make(map[Component]bool, len(c.Components))
	for name, enabled := range c.Components {
		components[Component(name)] = enabled
	}
	return &Config{
		Level:      level,
		Format:     format,
		Output:     output,
		Components: components,
		ShowCaller: c.ShowCaller,
		Timestamp:  c.Timestamp,
	}, nil
}

// CreateLoggerFromConfig creates a logger from LogConfig
func CreateLoggerFromConfig(config *LogConfig) (*Logger, error) {
	lc, err := config.ToLoggerConfig()
	if err != nil {
		return nil, err
	}
	return New(lc), nil
}

func envBool(v string) bool { return v == "true" || v == "1" }

// EnvironmentConfig applies MEDIAMUX_LOG_* variables over the defaults.
// MEDIAMUX_LOG_COMPONENTS replaces the default component set entirely.
func EnvironmentConfig() *LogConfig {
	config := DefaultLogConfig()

	if v := os.Getenv("MEDIAMUX_LOG_LEVEL"); v != "" {
		config.Level = v
	}
	if v := os.Getenv("MEDIAMUX_LOG_FORMAT"); v != "" {
		config.Format = v
	}
	if v := os.Getenv("MEDIAMUX_LOG_OUTPUT"); v != "" {
		config.Output = v
	}
	if v := os.Getenv("MEDIAMUX_LOG_CALLER"); v != "" {
		config.ShowCaller = envBool(v)
	}
	if v := os.Getenv("MEDIAMUX_LOG_TIMESTAMP"); v != "" {
		config.Timestamp = envBool(v)
	}
	if v := os.Getenv("MEDIAMUX_LOG_COMPONENTS"); v != "" {
		config.Components = make(map[string]bool)
		for _, comp := range strings.Split(v, ",") {
			if comp = strings.TrimSpace(comp); comp != "" {
				config.Components[comp] = true
			}
		}
	}
	return config
}

// ValidateConfig checks every field without opening any output.
func (c *LogConfig) ValidateConfig() error {
	if _, err := parseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if _, err := parseFormat(c.Format); err != nil {
		return fmt.Errorf("invalid format: %w", err)
	}
	switch strings.ToLower(c.Output) {
	case "", "stdout", "stderr", "null", "none":
	default:
		if _, ok := outputFile(c.Output); !ok {
			return fmt.Errorf("invalid output: %s", c.Output)
		}
	}
	if c.Rotation != nil {
		if err := c.Rotation.Validate(); err != nil {
			return fmt.Errorf("invalid rotation config: %w", err)
		}
	}
	return nil
}

// Validate validates rotation configuration
func (r *RotationConfig) Validate() error {
	if _, err := parseDuration(r.Every); err != nil {
		return fmt.Errorf("every: %w", err)
	}
	if _, err := parseDuration(r.MaxAge); err != nil {
		return fmt.Errorf("max_age: %w", err)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative")
	}
	return nil
}

// parseDuration is time.ParseDuration plus whole days ("7d"). Empty is zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("bad day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
