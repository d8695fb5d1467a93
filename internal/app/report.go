package app

import (
	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/engine/pipeline"
)

// Report outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Report is the machine-readable summary of one command, printed as a single JSON line.
type Report struct {
	Command    string                 `json:"command"`
	Outcome    string                 `json:"outcome"`
	Platforms  []string               `json:"platforms,omitempty"`
	Toolchains []ToolchainReport      `json:"toolchains,omitempty"`
	Artifacts  []domain.Artifact      `json:"artifacts,omitempty"`
	Tag        string                 `json:"tag,omitempty"`
	State      domain.PublishState    `json:"state,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Records    []domain.PublishRecord `json:"records,omitempty"`
	Assets     map[string]string      `json:"assets,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ExitCode   int                    `json:"exit_code"`
}

// ToolchainReport describes a bootstrapped platform toolchain.
type ToolchainReport struct {
	Platform    string            `json:"platform"`
	Interpreter string            `json:"interpreter"`
	Version     string            `json:"version"`
	Packages    map[string]string `json:"packages,omitempty"`
}

func toolchainReport(t *pipeline.Target) ToolchainReport {
	r := ToolchainReport{Platform: t.Platform.Name}
	if t.Binding != nil {
		r.Interpreter = t.Binding.Interpreter
		r.Version = t.Binding.InterpreterVersion.String()
	}
	if t.Env != nil {
		r.Packages = t.Env.Packages
	}
	return r
}

// settle records the command's outcome and returns err unchanged.
func (r *Report) settle(err error) (*Report, error) {
	r.ExitCode = domain.ExitCode(err)
	switch {
	case err != nil:
		r.Outcome = OutcomeFailed
		r.Kind = domain.KindOf(err).String()
		r.Error = err.Error()
	case r.State == domain.StateSkipped:
		r.Outcome = OutcomeSkipped
	default:
		r.Outcome = OutcomeOK
	}
	return r, err
}
