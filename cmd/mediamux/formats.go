package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/ytget/mediamux/media/selector"
	"github.com/ytget/mediamux/types"
)

func newFormatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "formats <url>",
		Short: "List merge candidates of a URL, best first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := extractURLs(args)
			if len(urls) == 0 {
				return errors.New("no URL found in arguments")
			}
			if err := preflight(a.cfg, false); err != nil {
				return err
			}
			d, err := a.downloader()
			if err != nil {
				return err
			}
			items, err := d.Probe(cmd.Context(), urls[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, info := range items {
				scored, dropped := d.Candidates(info)
				printCandidates(out, info, scored, len(dropped))
			}
			return nil
		},
	}
}

func printCandidates(w io.Writer, info types.MediaInfo, scored []selector.Scored, dropped int) {
	fmt.Fprintf(w, "%s [%s]\n", info.Title, info.ID)

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "EXT", "RESOLUTION", "VCODEC", "ACODEC", "LANG", "SIZE", "KBPS", "SCORE")
	for _, s := range scored {
		f := s.Format
		res := "-"
		if f.Video.Height != nil {
			res = strconv.Itoa(*f.Video.Height) + "p"
			if f.Video.Width != nil {
				res = fmt.Sprintf("%dx%d", *f.Video.Width, *f.Video.Height)
			}
		}
		vcodec := "?"
		if f.Video.Codec != nil {
			vcodec = f.Video.Codec.Kind.String()
		}
		size := "?"
		if n := f.FilesizeOrApprox(); n != nil {
			size = humanize.Bytes(uint64(*n))
			if f.Filesize() == nil {
				size = "~" + size
			}
		}
		lang := f.Language()
		if lang == "" {
			lang = "-"
		}
		table.AddRow(f.FormatID(), f.Ext(), res, vcodec, f.Audio.Codec.Kind.String(), lang,
			size, strconv.FormatFloat(f.Bitrate(), 'f', 0, 64), strconv.FormatFloat(s.Total, 'f', 3, 64))
	}
	fmt.Fprintln(w, table)
	if dropped > 0 {
		fmt.Fprintf(w, "(%d formats not shown)\n", dropped)
	}
	fmt.Fprintln(w)
}
