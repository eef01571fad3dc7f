//go:build windows

package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
)

// daemonLock is an exclusively created lock file, removed on release.
type daemonLock struct {
	f    *os.File
	path string
}

func acquireLock(path string) (*daemonLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, alreadyRunning(path)
		}
		return nil, err
	}
	writeHolder(f)
	return &daemonLock{f: f, path: path}, nil
}

func (l *daemonLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	_ = os.Remove(l.path)
}

// The background server shares the parent's console; Setsid has no equivalent here.
func setDaemonSysProcAttr(cmd *exec.Cmd) {}

// processExists cannot probe with signal 0 on Windows, so FindProcess is the best check available.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func signalTerm(proc *os.Process) error {
	return proc.Kill()
}
