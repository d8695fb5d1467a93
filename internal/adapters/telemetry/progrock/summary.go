package progrock

import (
	"fmt"
	"sync"
	"time"

	"github.com/vito/progrock"
	"go.trai.ch/ship/internal/core/ports"
)

var _ progrock.Writer = (*SummaryWriter)(nil)

// SummaryWriter is a progrock.Writer that logs one line per finished vertex.
type SummaryWriter struct {
	logger ports.Logger

	mu       sync.Mutex
	reported map[string]struct{}
}

// NewSummaryWriter creates a SummaryWriter logging through logger.
func NewSummaryWriter(logger ports.Logger) *SummaryWriter {
	return &SummaryWriter{
		logger:   logger,
		reported: make(map[string]struct{}),
	}
}

// WriteStatus logs vertices that completed in this update.
func (w *SummaryWriter) WriteStatus(update *progrock.StatusUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, v := range update.Vertexes {
		if v.Completed == nil {
			continue
		}
		if _, done := w.reported[v.Id]; done {
			continue
		}
		w.reported[v.Id] = struct{}{}

		var elapsed time.Duration
		if v.Started != nil {
			elapsed = v.Completed.AsTime().Sub(v.Started.AsTime()).Round(time.Millisecond)
		}

		switch {
		case v.Error != nil:
			w.logger.Warn(fmt.Sprintf("%s failed after %s: %s", v.Name, elapsed, *v.Error))
		case v.Cached:
			w.logger.Info(fmt.Sprintf("%s cached", v.Name))
		default:
			w.logger.Info(fmt.Sprintf("%s done in %s", v.Name, elapsed))
		}
	}
	return nil
}

// Close does nothing.
func (w *SummaryWriter) Close() error {
	return nil
}
