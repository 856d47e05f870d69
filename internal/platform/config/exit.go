package config

import (
	"fmt"
	"io"
	"os"
)

// ExitCodeFailure is the process status used by Exitf.
const ExitCodeFailure = 1

var (
	exitWriter io.Writer = os.Stderr
	exitFunc             = os.Exit
)

// Exitf writes a formatted error message to stderr and exits with
// ExitCodeFailure. Command entry points use it for startup failures.
func Exitf(format string, args ...any) {
	fmt.Fprintf(exitWriter, format+"\n", args...)
	exitFunc(ExitCodeFailure)
}
