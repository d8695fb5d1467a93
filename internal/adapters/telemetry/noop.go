// Package telemetry holds telemetry adapters that need no recording backend.
package telemetry

import (
	"context"
	"io"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/ship/internal/core/ports"
)

var _ ports.Telemetry = (*NoOp)(nil)

// NoOp discards everything it records.
type NoOp struct{}

// NewNoOp creates a new NoOp.
func NewNoOp() *NoOp {
	return &NoOp{}
}

// Record returns a vertex that discards its output.
func (n *NoOp) Record(ctx context.Context, _ string) (context.Context, ports.Vertex) {
	v := noopVertex{}
	return ports.ContextWithVertex(ctx, v), v
}

// Close does nothing.
func (n *NoOp) Close() error {
	return nil
}

type noopVertex struct{}

func (noopVertex) Stdout() io.Writer              { return io.Discard }
func (noopVertex) Stderr() io.Writer              { return io.Discard }
func (noopVertex) Log(_ domain.LogLevel, _ string) {}
func (noopVertex) Complete(_ error)                {}
func (noopVertex) Cached()                         {}
