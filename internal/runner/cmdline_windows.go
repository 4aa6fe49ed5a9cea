//go:build windows

package runner

import (
	"os/exec"
	"strings"
	"syscall"
)

// setCommandLine hands cmd.exe the raw command line; the default argument
// escaping would quote the user's command as a single token.
func setCommandLine(cmd *exec.Cmd, argv []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: strings.Join(argv, " ")}
}
