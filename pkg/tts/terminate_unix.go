//go:build !windows

package tts

import (
	"os"

	"golang.org/x/sys/unix"
)

// sendTerminate asks a process to exit with SIGTERM.
func sendTerminate(proc *os.Process) error {
	return proc.Signal(unix.SIGTERM)
}
