package propship

import (
	"context"
	"sync"

	"github.com/bft-labs/propship/internal/app"
	"github.com/bft-labs/propship/internal/domain"
	"github.com/bft-labs/propship/internal/ports"
)

type worker struct {
	name string
	run  func(ctx context.Context) error
}

// runner drives the lifecycle shared by Client and Server.
type runner struct {
	name      string
	lifecycle *app.Lifecycle
	logger    ports.Logger

	mu   sync.Mutex
	done <-chan struct{}
}

func newRunner(name string, o options) *runner {
	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	return &runner{
		name:      name,
		lifecycle: app.NewLifecycle(o.logger, emitter),
		logger:    o.logger,
	}
}

func (r *runner) start(ctx context.Context, prepare func() error, workers ...worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := r.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}
	r.lifecycle.ResetErr()

	if prepare != nil {
		if err := prepare(); err != nil {
			r.logger.Error("startup failed",
				ports.String("component", r.name),
				ports.Err(err),
			)
			_ = r.lifecycle.TransitionTo(app.StateCrashed, "startup failed: "+err.Error())
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.lifecycle.SetCancel(cancel)
	if err := r.lifecycle.TransitionTo(app.StateRunning, r.name+" started"); err != nil {
		cancel()
		return err
	}
	for _, w := range workers {
		r.lifecycle.Go(runCtx, w.name, w.run)
	}
	r.done = r.lifecycle.Done()
	return nil
}

// Stop gracefully shuts down all workers.
// Waits up to 30 seconds before forcing shutdown.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (r *runner) Stop() error {
	r.mu.Lock()
	if !r.lifecycle.CanStop() {
		r.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := r.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		r.mu.Unlock()
		return err
	}
	r.lifecycle.Cancel()
	r.mu.Unlock()

	err := r.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
	if err != nil {
		_ = r.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = r.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (r *runner) Status() State {
	return State(r.lifecycle.State())
}

// Err returns the error that crashed the last run, if any.
func (r *runner) Err() error {
	return r.lifecycle.Err()
}

// Done returns a channel that is closed when every worker of the current
// run has exited, either after Stop or after a crash. It returns nil before
// the first Start.
func (r *runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
