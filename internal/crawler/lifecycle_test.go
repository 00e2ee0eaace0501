package crawler

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLifecycleMovesForwardOnly(t *testing.T) {
	t.Parallel()
	l := &lifecycle{logger: zap.NewNop()}
	require.Equal(t, PhaseIdle, l.Phase())

	require.NoError(t, l.start())
	require.Equal(t, PhaseFetching, l.Phase())

	l.enter(PhaseReconciling)
	l.enter(PhaseExtracting)
	require.Equal(t, PhaseReconciling, l.Phase())

	l.finish()
	require.Equal(t, PhaseDone, l.Phase())
	require.ErrorIs(t, l.start(), ErrCrawlerFinished)
}

func TestLifecycleLogsPhasesInOrder(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	l := &lifecycle{logger: zap.New(core)}

	require.NoError(t, l.start())
	l.enter(PhaseExtracting)
	l.enter(PhaseExtracting)
	l.enter(PhaseReconciling)
	l.finish()

	var phases []string
	for _, entry := range logs.FilterMessage("phase").All() {
		phases = append(phases, entry.ContextMap()["phase"].(string))
	}
	require.Equal(t, []string{"fetching", "extracting", "reconciling", "done"}, phases)
}

func TestLifecycleStartsOnce(t *testing.T) {
	t.Parallel()
	l := &lifecycle{logger: zap.NewNop()}

	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.start() == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, started.Load())
}

func TestPhaseString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "extracting", PhaseExtracting.String())
	require.Equal(t, "unknown", Phase(42).String())
}
