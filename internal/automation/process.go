package automation

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/term"
)

// walkParentChain reads process names from the immediate parent upward,
// bounded to maxDepth hops, using the process table (§4.D signal 2). It
// stops early at pid 1 or on any lookup failure rather than erroring:
// an incomplete chain degrades the automation score, it is never fatal.
func walkParentChain(maxDepth int) []string {
	var names []string

	pid := int32(os.Getpid())
	for i := 0; i < maxDepth; i++ {
		proc, err := process.NewProcess(pid)
		if err != nil {
			break
		}
		ppid, err := proc.Ppid()
		if err != nil || ppid <= 1 {
			break
		}
		parent, err := process.NewProcess(ppid)
		if err != nil {
			break
		}
		name, err := parent.Name()
		if err != nil {
			break
		}
		names = append(names, filepath.Base(name))
		pid = ppid
	}
	return names
}

// isTTY reports whether fd refers to a terminal.
func isTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
