package errs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnsupported indicates a codec or container outside the known families.
	ErrUnsupported = errors.New("codec/container not supported")
	// ErrContainerNotSupported indicates the container cannot carry the video codec.
	ErrContainerNotSupported = errors.New("container not supported by video codec")
	// ErrUnpreferredLanguage indicates a format in a language the caller did not accept.
	ErrUnpreferredLanguage = errors.New("unpreferred language")
	// ErrVideoContainerEmpty indicates a video-only format without an extension.
	ErrVideoContainerEmpty = errors.New("video container empty")
	// ErrUnknownFormat indicates a descriptor that fits no classification branch.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrNoAcceptableFormat indicates that nothing survived size filtering.
	ErrNoAcceptableFormat = errors.New("no acceptable format")
	// ErrAcquisition indicates a local failure while acquiring a stream.
	ErrAcquisition = errors.New("acquisition failed")
	// ErrTransport indicates a network or HTTP failure while fetching a stream.
	ErrTransport = errors.New("transport error")
	// ErrMergeFailed indicates the merge tool exited unsuccessfully.
	ErrMergeFailed = errors.New("merge failed")
	// ErrTimeout indicates the merge did not finish within the allotted time.
	ErrTimeout = errors.New("timed out")
)

// UnsupportedError carries the raw provider string that could not be classified.
type UnsupportedError struct {
	What string // "video codec", "audio codec" or "container"
	Raw  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s not supported: %q", e.What, e.Raw)
}

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// ClassifyError ties a classification failure to the offending format id.
type ClassifyError struct {
	FormatID string
	Err      error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("format %s: %v", e.FormatID, e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

// AcquisitionError describes a local failure (pipe, spawn, write) for one stream.
type AcquisitionError struct {
	Stream string // "video", "audio" or "native"
	Op     string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s stream: %s: %v", e.Stream, e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }

// TransportError describes a network failure or unexpected HTTP status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// MergeError describes an unsuccessful merge tool run.
type MergeError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *MergeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("merge failed: exit=%d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("merge failed: exit=%d", e.ExitCode)
}

func (e *MergeError) Unwrap() error { return e.Err }

func (e *MergeError) Is(target error) bool { return target == ErrMergeFailed }

// Kind is the coarse failure class a caller can present to a user.
type Kind int

const (
	KindUnknown Kind = iota
	KindClassification
	KindNoFormat
	KindAcquisition
	KindTransport
	KindMerge
	KindTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindClassification: "classification",
	KindNoFormat:       "no-format",
	KindAcquisition:    "acquisition",
	KindTransport:      "transport",
	KindMerge:          "merge",
	KindTimeout:        "timeout",
}

func (k Kind) String() string { return kindNames[k] }

// KindOf classifies err. Timeouts win over everything else because a killed
// merge tool also reports a non-zero exit.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNoAcceptableFormat):
		return KindNoFormat
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrAcquisition):
		return KindAcquisition
	case errors.Is(err, ErrMergeFailed):
		return KindMerge
	case errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrContainerNotSupported),
		errors.Is(err, ErrUnpreferredLanguage),
		errors.Is(err, ErrVideoContainerEmpty),
		errors.Is(err, ErrUnknownFormat):
		return KindClassification
	}
	return KindUnknown
}
