package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/dcsystem/internal/errors"
)

const (
	fileName = "dcsystem.pid"
	filePerm = 0o600
)

// File is a held single-instance guard
type File struct {
	path string
}

// Path returns the location of the PID file in dir, or in the system
// temporary directory when dir is empty.
func Path(dir string) string {
	if dir == "" {
		dir = os.TempDir()
	}

	return filepath.Join(dir, fileName)
}

// Acquire writes the current process ID, failing with ErrAlreadyRunning when
// another live process holds the file. A stale file is replaced.
func Acquire(dir string) (*File, error) {
	errFactory := errors.New()
	path := Path(dir)

	running, err := holderRunning(path)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), filePerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &File{path: path}, nil
}

// Release removes the PID file
func (f *File) Release() error {
	errFactory := errors.New()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func (f *File) Path() string {
	return f.path
}

func holderRunning(path string) (bool, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errFactory.Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Unparseable content is treated as stale
		return false, nil //nolint:nilerr
	}
	if pid == os.Getpid() {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, errFactory.Wrap(errors.ErrInternal, err)
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil || errors.Is(err, syscall.EPERM) {
		return true, nil
	}

	return false, nil
}
