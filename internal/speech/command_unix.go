//go:build unix

package speech

import (
	"os"
	"syscall"
)

func suspend(p *os.Process) error { return p.Signal(syscall.SIGSTOP) }
func cont(p *os.Process) error    { return p.Signal(syscall.SIGCONT) }
