//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// killGroup sends sig to the whole process group led by pid (negative pid
// convention for unix group signals).
func killGroup(pid int, sig int) error {
	return syscall.Kill(-pid, syscall.Signal(sig))
}
