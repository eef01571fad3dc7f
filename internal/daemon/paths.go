package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Runtime files live next to the SQLite database under home/protected.
const (
	pidFile  = "missioncontrol.pid"
	lockFile = "missioncontrol.lock"
	addrFile = "missioncontrol.addr"
	logFile  = "missioncontrol.log"
)

func protectedDir(home string) string {
	return filepath.Join(home, "protected")
}

func pidPath(home string) string  { return filepath.Join(protectedDir(home), pidFile) }
func lockPath(home string) string { return filepath.Join(protectedDir(home), lockFile) }
func addrPath(home string) string { return filepath.Join(protectedDir(home), addrFile) }

// LogPath is where a background server writes its log.
func LogPath(home string) string { return filepath.Join(protectedDir(home), logFile) }

func writeHolder(f *os.File) {
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
}

// alreadyRunning names the pid recorded in the lock file when it is readable.
func alreadyRunning(path string) error {
	b, _ := os.ReadFile(path)
	if pid, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil && pid > 0 {
		return fmt.Errorf("missioncontrol is already running (pid %d holds %s)", pid, path)
	}
	return fmt.Errorf("missioncontrol is already running (could not acquire %s)", path)
}
