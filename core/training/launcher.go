package training

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"llama-lora/core/models"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when a training run is already executing
var ErrRunInProgress = errors.New("a training run is already in progress")

type runner interface {
	RunWithID(ctx context.Context, runID string) (*models.Run, error)
}

// Launcher starts training runs in the background, one at a time
type Launcher struct {
	ctx     context.Context
	runner  runner
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewLauncher creates a launcher whose runs are bound to ctx, not to the
// request that started them
func NewLauncher(ctx context.Context, r runner) *Launcher {
	return &Launcher{ctx: ctx, runner: r}
}

// Launch starts a run and returns its id without waiting for it
func (l *Launcher) Launch() (string, error) {
	if !l.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)

		if _, err := l.runner.RunWithID(l.ctx, runID); err != nil {
			slog.Error("background training run failed", "run_id", runID, "error", err)
		}
	}()

	return runID, nil
}

// Running reports whether a run is executing
func (l *Launcher) Running() bool {
	return l.running.Load()
}

// Wait blocks until the current run, if any, has finished
func (l *Launcher) Wait() {
	l.wg.Wait()
}
