package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// NewRotatingWriter opens a time-rotated log file at filename. Rotated files
// get a timestamp suffix and filename itself is kept as a symlink to the
// current one.
func NewRotatingWriter(filename string, rc *RotationConfig) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %v", err)
	}
	if rc == nil {
		rc = &RotationConfig{}
	}

	every, err := parseDuration(rc.Every)
	if err != nil {
		return nil, fmt.Errorf("parse rotation interval: %v", err)
	}
	if every <= 0 {
		every = 24 * time.Hour
	}

	opts := []rotatelogs.Option{
		rotatelogs.WithLinkName(filename),
		rotatelogs.WithRotationTime(every),
	}

	// rotatelogs refuses both limits at once; a backup count wins over age.
	switch {
	case rc.MaxBackups > 0:
		opts = append(opts, rotatelogs.WithRotationCount(uint(rc.MaxBackups)))
	default:
		maxAge, err := parseDuration(rc.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("parse max_age: %v", err)
		}
		if maxAge > 0 {
			opts = append(opts, rotatelogs.WithMaxAge(maxAge))
		} else {
			opts = append(opts, rotatelogs.WithMaxAge(-1))
		}
	}

	w, err := rotatelogs.New(filename+".%Y%m%d%H%M%S", opts...)
	if err != nil {
		return nil, fmt.Errorf("open log file: %v", err)
	}
	return w, nil
}
