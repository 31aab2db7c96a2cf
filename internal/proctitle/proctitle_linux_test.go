//go:build linux

package proctitle

import (
	"os"
	"runtime"
	"strings"
	"testing"
)

func readComm(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(commPath)
	if err != nil {
		t.Skipf("procfs unavailable: %v", err)
	}
	return strings.TrimSpace(string(b))
}

// The name lands on the process even when Set runs on another thread.
func TestSetRenamesProcessFromAnyThread(t *testing.T) {
	orig := readComm(t)
	t.Cleanup(func() { _ = os.WriteFile(commPath, []byte(orig), 0) })

	for _, label := range []string{Worker, Master} {
		errc := make(chan error, 1)
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			errc <- Set(label)
		}()
		if err := <-errc; err != nil {
			t.Fatalf("set %s: %v", label, err)
		}
		if got := readComm(t); got != ThreadName(label) {
			t.Fatalf("comm %q, want %q", got, ThreadName(label))
		}
	}
}
