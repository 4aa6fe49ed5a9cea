package runner

import (
	"os/exec"
	"runtime"
	"strings"
)

// Platform is the host description used to build an invocation.
type Platform struct {
	GOOS  string
	Shell string
}

// HostPlatform describes the running host. An empty shell picks the default
// interpreter for the host.
func HostPlatform(shell string) Platform {
	p := Platform{GOOS: runtime.GOOS, Shell: shell}
	if p.Shell == "" {
		p.Shell = DefaultShell(p.GOOS)
	}
	return p
}

// DefaultShell returns "cmd" on Windows, otherwise bash when it is on PATH
// and sh when it is not.
func DefaultShell(goos string) string {
	if isWindows(goos) {
		return "cmd"
	}
	if _, err := exec.LookPath("bash"); err == nil {
		return "bash"
	}
	return "sh"
}

// IsWindows reports whether the platform is in the Windows family.
func (p Platform) IsWindows() bool {
	return isWindows(p.GOOS)
}

func (p Platform) String() string {
	return p.GOOS + "/" + p.Shell
}

func isWindows(goos string) bool {
	return strings.EqualFold(goos, "windows")
}

// Invocation maps a command line to the argument vector that runs it through
// the platform's interpreter: "<shell> -c <command>" on Unix-like hosts so
// pipes and builtins work, "<shell> /c <command>" on Windows.
func Invocation(p Platform, command string) []string {
	shell := p.Shell
	if p.IsWindows() {
		if shell == "" {
			shell = "cmd"
		}
		return []string{shell, "/c", command}
	}
	if shell == "" {
		shell = "sh"
	}
	return []string{shell, "-c", command}
}
