package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type funcWorker struct {
	run func(ctx context.Context) error
}

func (w *funcWorker) Run(ctx context.Context) error {
	return w.run(ctx)
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int64
	worker := &funcWorker{run: func(context.Context) error {
		calls.Add(1)
		panic("boom")
	}}

	sup := NewSupervisor(slog.Default(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Add(worker).Run(ctx)

	// The worker keeps being restarted after each panic
	req.Eventually(func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int64
	worker := &funcWorker{run: func(context.Context) error {
		calls.Add(1)
		return nil
	}}

	sup := NewSupervisor(slog.Default(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Terminated properly, never restarted
		req.Equal(int64(1), calls.Load())
	case <-time.After(2 * time.Second):
		req.Fail("Supervisor should have stopped after worker success")
	}
}
