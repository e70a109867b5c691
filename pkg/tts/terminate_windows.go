//go:build windows

package tts

import "os"

// sendTerminate kills the process. Windows has no SIGTERM delivery.
func sendTerminate(proc *os.Process) error {
	return proc.Kill()
}
