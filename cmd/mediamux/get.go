package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <url>...",
		Short: "Download the best format of each URL",
		Long: `Download the best format of each URL. Arguments may be free text such as
a pasted message; every http(s) URL found in it is downloaded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := extractURLs(args)
			if len(urls) == 0 {
				return errors.New("no URL found in arguments")
			}
			if err := preflight(a.cfg, true); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.serveMetrics(ctx)

			d, err := a.downloader()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !a.cfg.NoProgress {
				p := newProgress(out)
				d.WithProgress(p.Update)
				p.Start()
				defer p.Stop()
			}

			var failed []error
			for _, u := range urls {
				results, err := d.Download(ctx, u)
				for _, r := range results {
					fmt.Fprintf(out, "Saved: %s (%s)\n", r.Path, r.Format)
					if r.ThumbnailPath != "" {
						fmt.Fprintf(out, "Thumbnail: %s\n", r.ThumbnailPath)
					}
				}
				if err != nil {
					failed = append(failed, err)
				}
			}
			return errors.Join(failed...)
		},
	}
}
