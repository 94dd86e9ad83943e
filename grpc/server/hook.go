package server

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ShutdownHook represents a function to be executed during graceful shutdown
type ShutdownHook struct {
	Name     string                      // Human-readable name for logging
	Priority int                         // Lower number = higher priority (executed first)
	Timeout  time.Duration               // Maximum time allowed for this hook
	Hook     func(context.Context) error // The actual cleanup function
}

// ShutdownHooks is a sortable slice of shutdown hooks
type ShutdownHooks []ShutdownHook

func (h ShutdownHooks) Len() int           { return len(h) }
func (h ShutdownHooks) Less(i, j int) bool { return h[i].Priority < h[j].Priority }
func (h ShutdownHooks) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// run executes the hook under its own timeout. A hook that overruns is abandoned.
func (h ShutdownHook) run(ctx context.Context) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Hook(ctx) }()

	select {
	case err := <-done:
		return errors.Wrapf(err, "shutdown hook %q", h.Name)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "shutdown hook %q", h.Name)
	}
}
