package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ytget/mediamux"
	"github.com/ytget/mediamux/internal/config"
	"github.com/ytget/mediamux/internal/jsfilter"
	"github.com/ytget/mediamux/internal/logger"
	"github.com/ytget/mediamux/internal/stats"
	"github.com/ytget/mediamux/pkg/client"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg   *config.Config
	stats *stats.Stats
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configFile string

	root := &cobra.Command{
		Use:   "mediamux",
		Short: "Download the best audio and video of a URL as one file",
		Long: `mediamux asks yt-dlp what a URL offers, pairs audio and video streams
that fit one container, ranks the pairs by quality, size budget and language,
and merges the winner with ffmpeg.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.stats = stats.New()
			return setupLogging(cfg)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is $HOME/mediamux-config.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newGetCmd(a), newFormatsCmd(a), newVersionCmd())
	return root
}

// setupLogging starts from MEDIAMUX_LOG_* and applies the flags on top.
func setupLogging(cfg *config.Config) error {
	lc := logger.EnvironmentConfig()
	if cfg.LogLevel != "" {
		lc.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		lc.Format = cfg.LogFormat
	}
	if cfg.LogFile != "" {
		lc.Output = "file:" + cfg.LogFile
	}
	// Debug output is only useful with every component on.
	if lvl := strings.ToLower(lc.Level); lvl == "debug" || lvl == "trace" {
		for _, c := range logger.AllComponents() {
			lc.Components[string(c)] = true
		}
	}
	l, err := logger.CreateLoggerFromConfig(lc)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	logger.SetGlobalLogger(l)
	return nil
}

// downloader builds the high-level API from the parsed config.
func (a *app) downloader() (*mediamux.Downloader, error) {
	cfg := a.cfg
	c, err := client.NewWith(client.Config{
		Timeout:   cfg.HTTPTimeout,
		Retries:   cfg.Retries,
		UserAgent: cfg.UserAgent,
		ProxyURL:  cfg.Proxy,
	})
	if err != nil {
		return nil, err
	}

	var toolArgs []string
	if cfg.Proxy != "" {
		toolArgs = append(toolArgs, "--proxy", cfg.Proxy)
	}
	if cfg.HTTPTimeout > 0 {
		toolArgs = append(toolArgs, "--socket-timeout", strconv.Itoa(int(cfg.HTTPTimeout.Seconds())))
	}
	if cfg.UserAgent != "" {
		toolArgs = append(toolArgs, "--user-agent", cfg.UserAgent)
	}

	d := mediamux.New().
		WithOutputPath(cfg.Output).
		WithLanguages(cfg.Languages...).
		WithPlaylistItems(cfg.PlaylistItems).
		WithHTTPClient(c).
		WithRateLimit(cfg.RateLimitBps).
		WithChunkSize(cfg.ChunkBytes).
		WithTools(cfg.YTDLPPath, cfg.FFmpegPath).
		WithToolArgs(toolArgs...).
		WithMergeTimeout(cfg.MergeTimeout).
		WithThumbnail(cfg.Thumbnail).
		WithDirectNative(cfg.DirectNative).
		WithConcurrency(cfg.Concurrency).
		WithStats(a.stats)
	if cfg.MaxSize != "" {
		d.WithBudget(cfg.Budget)
	}

	if cfg.Filter != "" {
		f, err := jsfilter.New(cfg.FilterEngine, cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		d.WithFilter(f)
	}
	return d, nil
}

// serveMetrics runs the debug server in the background when configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := a.stats.Serve(ctx, a.cfg.MetricsAddr); err != nil {
			logger.WithComponent(logger.ComponentApp).Warn("Metrics server failed", map[string]interface{}{
				"addr": a.cfg.MetricsAddr,
				"err":  err.Error(),
			})
		}
	}()
}
