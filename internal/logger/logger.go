package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var logrusLevels = map[Level]logrus.Level{
	TRACE: logrus.TraceLevel,
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// String returns the level name.
func (l Level) String() string { return levelNames[l] }

// Component represents the logging component
type Component string

const (
	ComponentApp     Component = "app"
	ComponentFormat  Component = "format"
	ComponentSelect  Component = "select"
	ComponentFetch   Component = "fetch"
	ComponentMerge   Component = "merge"
	ComponentExtract Component = "extract"
	ComponentClient  Component = "client"
	ComponentFilter  Component = "filter"
)

// AllComponents lists every component this module logs under.
func AllComponents() []Component {
	return []Component{
		ComponentApp, ComponentFormat, ComponentSelect, ComponentFetch,
		ComponentMerge, ComponentExtract, ComponentClient, ComponentFilter,
	}
}

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:      INFO,
		Format:     FormatText,
		Output:     os.Stderr,
		Components: defaultComponents(),
	}
}

// Logger filters entries by level and component and hands the rest to logrus.
type Logger struct {
	config *Config
	base   *logrus.Logger
	mu     sync.RWMutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Components == nil {
		config.Components = map[Component]bool{}
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	l := &Logger{config: config, base: logrus.New()}
	l.apply()
	return l
}

// apply pushes the config into the logrus instance. Callers hold mu.
func (l *Logger) apply() {
	l.base.SetOutput(l.config.Output)
	l.base.SetLevel(logrusLevels[l.config.Level])
	l.base.SetReportCaller(l.config.ShowCaller)

	switch l.config.Format {
	case FormatJSON:
		l.base.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !l.config.Timestamp,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		})
	case FormatColor:
		l.base.SetFormatter(&logrus.TextFormatter{
			ForceColors:      true,
			DisableTimestamp: !l.config.Timestamp,
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
		})
	default:
		l.base.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: !l.config.Timestamp,
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  "2006-01-02 15:04:05",
		})
	}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
	l.apply()
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// Enabled reports whether an entry at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.config.Level && l.config.Components[component]
}

// log writes a log entry
func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}) {
	if !l.Enabled(level, component) {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	entry := l.base.WithField("component", string(component))
	if len(fields) > 0 {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Log(logrusLevels[level], message)
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

// log merges the field maps and writes the entry for the component.
func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	var merged map[string]interface{}
	switch len(fields) {
	case 0:
	case 1:
		merged = fields[0]
	default:
		merged = make(map[string]interface{})
		for _, f := range fields {
			for k, v := range f {
				merged[k] = v
			}
		}
	}
	cl.logger.log(level, cl.component, message, merged)
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}
