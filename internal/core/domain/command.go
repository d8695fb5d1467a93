package domain

import "time"

// Command is a process invocation carried out by the executor.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env overrides variables of the inherited environment.
	Env map[string]string
	// SearchPath is prepended to PATH for this command only.
	SearchPath []string
	// Isolated starts from an empty environment instead of the process environment.
	Isolated bool
	// Timeout bounds the command; zero means no bound beyond the context.
	Timeout time.Duration
	// Stream forwards output lines to the logger as they arrive.
	Stream bool
}

// CommandResult captures a finished process.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	TimedOut bool
}

// Output returns stdout followed by stderr.
func (r *CommandResult) Output() string {
	return string(r.Stdout) + string(r.Stderr)
}
