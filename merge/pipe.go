package merge

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PipeFunc creates one OS pipe. The write end must be close-on-exec so a
// spawned process never holds a write end it does not own; otherwise the
// reader would never see end-of-stream.
type PipeFunc func() (r, w *os.File, err error)

// OSPipe is the default PipeFunc.
func OSPipe() (*os.File, *os.File, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, fmt.Errorf("pipe2: %w", err)
	}
	// Pipe2 already set the flag; repeat it on the write end so the
	// guarantee does not depend on the flags argument above.
	unix.CloseOnExec(fds[1])
	return os.NewFile(uintptr(fds[0]), "|0"), os.NewFile(uintptr(fds[1]), "|1"), nil
}

// markCloseOnExec sets FD_CLOEXEC on f whatever PipeFunc produced it.
func markCloseOnExec(f *os.File) error {
	fd := f.Fd()
	unix.CloseOnExec(int(fd))
	if !isCloseOnExec(fd) {
		return fmt.Errorf("fd %d: close-on-exec not set", fd)
	}
	return nil
}

// isCloseOnExec reports whether fd carries FD_CLOEXEC.
func isCloseOnExec(fd uintptr) bool {
	flags, err := unix.FcntlInt(fd, unix.F_GETFD, 0)
	return err == nil && flags&unix.FD_CLOEXEC != 0
}
