package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

// WithSignals returns a context cancelled on SIGINT or SIGTERM.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Step stops one component. Stop must return once ctx is done; Force, when
// set, runs if it did not finish in time.
type Step struct {
	Name  string
	Stop  func(ctx context.Context) error
	Force func()
}

// Graceful runs steps in order, sharing one timeout. A step that overruns is
// forced and the remaining steps still run.
func Graceful(timeout time.Duration, log *slog.Logger, steps ...Step) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, s := range steps {
		s := s
		done := make(chan error, 1)
		go func() { done <- s.Stop(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				log.Error("shutdown step failed", slog.String("step", s.Name), slog.Any("err", err))
				errs = append(errs, err)
			}
		case <-ctx.Done():
			log.Warn("shutdown step timed out, forcing", slog.String("step", s.Name))
			if s.Force != nil {
				s.Force()
			}
			errs = append(errs, ctx.Err())
		}
	}
	return errors.Join(errs...)
}
