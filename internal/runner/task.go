package runner

import (
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"
)

const pipeDrainTimeout = 2 * time.Second

// Task describes one external command. Kind is the mutual-exclusion key:
// at most one process per Kind runs at any time.
type Task struct {
	Kind  string
	Label string

	// Shell is run through the platform shell when set; otherwise Argv is
	// executed directly.
	Shell string
	Argv  []string

	SuccessMessage string
	Dir            string
	Env            []string // KEY=VALUE pairs appended to the parent environment
}

// ShellTask builds a Task run through the platform shell.
func ShellTask(kind, label, command, successMessage string) Task {
	return Task{Kind: kind, Label: label, Shell: command, SuccessMessage: successMessage}
}

// String returns the command line for logging.
func (t Task) String() string {
	if t.Shell != "" {
		return t.Shell
	}
	return strings.Join(t.Argv, " ")
}

func (t Task) command() *exec.Cmd {
	var cmd *exec.Cmd
	switch {
	case t.Shell != "" && runtime.GOOS == "windows":
		cmd = exec.Command("cmd", "/C", t.Shell)
	case t.Shell != "":
		cmd = exec.Command("/bin/sh", "-c", t.Shell)
	default:
		cmd = exec.Command(t.Argv[0], t.Argv[1:]...)
	}
	cmd.Dir = t.Dir
	// Grandchildren may outlive the task and keep output pipes open.
	cmd.WaitDelay = pipeDrainTimeout
	if len(t.Env) > 0 {
		cmd.Env = append(os.Environ(), slices.Clone(t.Env)...)
	}
	return cmd
}
