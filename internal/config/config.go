// Package config gathers mediamux settings from flags, MEDIAMUX_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ytget/mediamux/downloader"
	"github.com/ytget/mediamux/merge"
)

// EnvPrefix prefixes every environment variable, e.g. MEDIAMUX_MAX_SIZE.
const EnvPrefix = "MEDIAMUX"

// Filter engines.
const (
	EngineGoja = "goja"
	EngineOtto = "otto"
)

// Config holds all settings of one run. The `mapstructure` tags map the
// fields to flag and config file keys.
type Config struct {
	Output        string   `mapstructure:"output"`
	MaxSize       string   `mapstructure:"max-size"`
	Languages     []string `mapstructure:"lang"`
	Filter        string   `mapstructure:"filter"`
	FilterEngine  string   `mapstructure:"filter-engine"`
	PlaylistItems string   `mapstructure:"playlist-items"`
	Concurrency   int      `mapstructure:"concurrency"`
	Thumbnail     bool     `mapstructure:"thumbnail"`
	DirectNative  bool     `mapstructure:"direct-native"`
	NoProgress    bool     `mapstructure:"no-progress"`

	// Network
	HTTPTimeout time.Duration `mapstructure:"http-timeout"`
	Retries     int           `mapstructure:"retries"`
	UserAgent   string        `mapstructure:"user-agent"`
	Proxy       string        `mapstructure:"proxy"`
	RateLimit   string        `mapstructure:"rate-limit"`
	ChunkSize   string        `mapstructure:"chunk-size"`

	// Tools
	YTDLPPath    string        `mapstructure:"ytdlp-path"`
	FFmpegPath   string        `mapstructure:"ffmpeg-path"`
	MergeTimeout time.Duration `mapstructure:"merge-timeout"`

	// Debug
	MetricsAddr string `mapstructure:"metrics-addr"`

	// Logging
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	LogFile   string `mapstructure:"log-file"`

	// Parsed from the string fields above by Validate.
	Budget       int64 `mapstructure:"-"`
	RateLimitBps int64 `mapstructure:"-"`
	ChunkBytes   int64 `mapstructure:"-"`
}

// RegisterFlags adds every setting to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", ".", "Output file or directory")
	fs.String("max-size", "", "Size budget per file, e.g. 50MB (empty means unlimited)")
	fs.StringSlice("lang", nil, "Accepted audio languages, e.g. en,de (empty accepts all)")
	fs.String("filter", "", "JavaScript expression over candidate f, e.g. 'f.height <= 1080'")
	fs.String("filter-engine", EngineGoja, "Filter engine: goja or otto")
	fs.String("playlist-items", "", "Playlist item selector passed to yt-dlp, e.g. 1-5,8")
	fs.Int("concurrency", 1, "Parallel downloads for playlists")
	fs.Bool("thumbnail", false, "Save the thumbnail next to the output")
	fs.Bool("direct-native", false, "Fetch single-stream formats over HTTP instead of through yt-dlp")
	fs.Bool("no-progress", false, "Disable progress output")

	fs.Duration("http-timeout", 2*time.Minute, "Timeout for one HTTP request, range chunks included")
	fs.Int("retries", 3, "HTTP retries for transient errors")
	fs.String("user-agent", "", "Override User-Agent header")
	fs.String("proxy", "", "Proxy URL")
	fs.String("rate-limit", "", "Download rate limit, e.g. 2MiB/s")
	fs.String("chunk-size", humanize.IBytes(downloader.DefaultChunkSize), "HTTP range chunk size")

	fs.String("ytdlp-path", "yt-dlp", "yt-dlp executable")
	fs.String("ffmpeg-path", "ffmpeg", "ffmpeg executable")
	fs.Duration("merge-timeout", merge.DefaultTimeout, "Upper bound for one merge")

	fs.String("metrics-addr", "", "Serve /metrics and /debug/pprof on this address")

	fs.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text, json, color")
	fs.String("log-file", "", "Write logs to this file with daily rotation")
}

// Load reads the config file (explicit path, or mediamux-config.yaml in the
// home and working directories), then environment, then flags from fs.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("mediamux-config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings and fills the parsed fields.
func (c *Config) Validate() error {
	var err error
	if c.Budget, err = parseSize(c.MaxSize); err != nil {
		return fmt.Errorf("max-size: %w", err)
	}
	if c.RateLimitBps, err = parseSize(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(c.RateLimit)), "/s")); err != nil {
		return fmt.Errorf("rate-limit: %w", err)
	}
	if c.ChunkBytes, err = parseSize(c.ChunkSize); err != nil {
		return fmt.Errorf("chunk-size: %w", err)
	}
	if c.ChunkBytes == 0 {
		c.ChunkBytes = downloader.DefaultChunkSize
	}
	if c.Proxy != "" && !govalidator.IsURL(c.Proxy) {
		return fmt.Errorf("proxy: invalid URL %q", c.Proxy)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	switch strings.ToLower(c.FilterEngine) {
	case "", EngineGoja:
		c.FilterEngine = EngineGoja
	case EngineOtto:
		c.FilterEngine = EngineOtto
	default:
		return fmt.Errorf("filter-engine: unknown engine %q", c.FilterEngine)
	}
	if c.MergeTimeout < 0 {
		return fmt.Errorf("merge-timeout must not be negative")
	}
	if c.MetricsAddr != "" && !govalidator.IsDialString(c.MetricsAddr) && !strings.HasPrefix(c.MetricsAddr, ":") {
		return fmt.Errorf("metrics-addr: invalid address %q", c.MetricsAddr)
	}
	return nil
}

// parseSize accepts "", "0" or a humanized size such as "50MB" or "2MiB".
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
