//go:build linux

package geogrid

import (
	"os"
	"strconv"
	"strings"
	"syscall"
)

// totalSystemRAM returns physical RAM, lowered to the cgroup v2 memory
// limit when the process runs in a constrained container.
func totalSystemRAM() (uint64, error) {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return 0, err
	}
	total := info.Totalram * uint64(info.Unit)
	if b, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		if limit, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64); err == nil && limit < total {
			total = limit
		}
	}
	return total, nil
}
