package downloader

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/spf13/afero"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/logger"
)

// Download saves the body at url to outputPath. It writes to a temporary
// file first, resumes from it if one is left over, and renames it into
// place once complete.
func (d *Downloader) Download(ctx context.Context, url string, outputPath string) error {
	log := logger.WithComponent(logger.ComponentFetch)
	name := filepath.Base(outputPath)

	if err := d.Fs.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return &errs.AcquisitionError{Stream: name, Op: "mkdir", Err: err}
	}

	tmpPath := outputPath + temporaryFileSuffix
	outFile, err := d.Fs.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &errs.AcquisitionError{Stream: name, Op: "create", Err: err}
	}
	defer func() { _ = outFile.Close() }()

	info, err := outFile.Stat()
	if err != nil {
		return &errs.AcquisitionError{Stream: name, Op: "stat", Err: err}
	}
	downloaded := info.Size()

	totalSize, err := d.detectTotalSize(ctx, url)
	if err != nil {
		log.Debug("Total size unknown", map[string]interface{}{"url": url, "err": err.Error()})
		totalSize = 0
	}
	log.Debug("Download started", map[string]interface{}{
		"path":    outputPath,
		"resume":  downloaded,
		"total":   totalSize,
		"chunked": totalSize > 0,
	})

	if totalSize == 0 || downloaded < totalSize {
		if downloaded > 0 && totalSize == 0 {
			// Cannot tell what is left; start over.
			if err := outFile.Truncate(0); err != nil {
				return &errs.AcquisitionError{Stream: name, Op: "truncate", Err: err}
			}
			downloaded = 0
		}
		if _, err := d.streamFrom(ctx, name, url, downloaded, totalSize, outFile); err != nil {
			return err
		}
	}
	if err := outFile.Close(); err != nil {
		return &errs.AcquisitionError{Stream: name, Op: "close", Err: err}
	}

	if fi, err := d.Fs.Stat(tmpPath); err == nil && fi.Size() == 0 {
		_ = d.Fs.Remove(tmpPath)
		return &errs.AcquisitionError{Stream: name, Op: "download", Err: fmt.Errorf("empty download: 0 bytes written")}
	}
	if err := d.Fs.Rename(tmpPath, outputPath); err != nil {
		return &errs.AcquisitionError{Stream: name, Op: "rename", Err: err}
	}
	return nil
}

// FetchFile saves a small resource such as a thumbnail with one request,
// decoding brotli or gzip transfer encodings. It returns the response
// Content-Type so the caller can pick an extension.
func (d *Downloader) FetchFile(ctx context.Context, url string, outputPath string) (string, error) {
	name := filepath.Base(outputPath)

	header := http.Header{}
	header.Set(headerAccept, "image/avif,image/webp,image/*,*/*;q=0.8")
	header.Set(headerAcceptEncoding, "br, gzip")

	resp, err := d.Client.Get(ctx, url, header)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := decodeBody(resp)
	if err != nil {
		return "", &errs.TransportError{URL: url, Err: err}
	}

	tmpPath := outputPath + temporaryFileSuffix
	if err := d.Fs.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", &errs.AcquisitionError{Stream: name, Op: "mkdir", Err: err}
	}
	f, err := d.Fs.Create(tmpPath)
	if err != nil {
		return "", &errs.AcquisitionError{Stream: name, Op: "create", Err: err}
	}
	_, cerr := d.copy(ctx, f, body, url, newTracker(name, resp.ContentLength, 0))
	if err := f.Close(); cerr == nil && err != nil {
		cerr = &errs.AcquisitionError{Stream: name, Op: "close", Err: err}
	}
	if cerr != nil {
		_ = d.Fs.Remove(tmpPath)
		return "", cerr
	}
	if err := d.Fs.Rename(tmpPath, outputPath); err != nil {
		return "", &errs.AcquisitionError{Stream: name, Op: "rename", Err: err}
	}
	return resp.Header.Get("Content-Type"), nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get(headerContentEncoding))) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "", "identity":
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get(headerContentEncoding))
	}
}

// Exists reports whether path is present on the downloader's filesystem.
func (d *Downloader) Exists(path string) bool {
	ok, _ := afero.Exists(d.Fs, path)
	return ok
}
