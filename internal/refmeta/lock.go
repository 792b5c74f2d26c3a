package refmeta

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive advisory lock on path (creating it if
// necessary) and returns a function that releases it. Grounded on
// wongdb's use of syscall.Flock to guard its append-only store
// (internal/wongdb/wongdb.go) against concurrent writers, generalized
// to golang.org/x/sys/unix so the lock behavior is pinned to a single,
// audited package instead of the raw syscall package.
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
