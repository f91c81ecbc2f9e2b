//go:build windows

package cmd

import "os"

var statsSignals []os.Signal
