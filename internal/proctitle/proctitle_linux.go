//go:build linux

package proctitle

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// commPath names the thread group leader, whatever thread writes to it.
const commPath = "/proc/self/comm"

// Set renames the process (shown by ps, top and pgrep) to ThreadName(label).
// Worker processes also carry the full label as argv[0].
func Set(label string) error {
	name := ThreadName(label)
	if err := os.WriteFile(commPath, []byte(name), 0); err == nil {
		return nil
	}
	// Without procfs only the calling thread can be renamed.
	b := append([]byte(name), 0)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}
