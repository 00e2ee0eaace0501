package crawler

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Phase is a crawler's position in its single-use lifecycle.
type Phase int32

// Crawler phases, entered strictly in order.
const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseExtracting
	PhaseReconciling
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseExtracting:
		return "extracting"
	case PhaseReconciling:
		return "reconciling"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

type lifecycle struct {
	phase  atomic.Int32
	logger *zap.Logger
}

// Phase reports the crawler's current phase.
func (l *lifecycle) Phase() Phase {
	return Phase(l.phase.Load())
}

func (l *lifecycle) start() error {
	if !l.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseFetching)) {
		return ErrCrawlerFinished
	}
	l.logger.Debug("phase", zap.Stringer("phase", PhaseFetching))
	return nil
}

func (l *lifecycle) enter(p Phase) {
	if Phase(l.phase.Load()) >= p {
		return
	}
	l.phase.Store(int32(p))
	l.logger.Debug("phase", zap.Stringer("phase", p))
}

func (l *lifecycle) finish() {
	l.phase.Store(int32(PhaseDone))
	l.logger.Debug("phase", zap.Stringer("phase", PhaseDone))
}
