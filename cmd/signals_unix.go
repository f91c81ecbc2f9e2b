//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// statsSignals request a statistics snapshot without stopping the engine.
var statsSignals = []os.Signal{syscall.SIGUSR1}
