// Package health holds the liveness flag shared by the loops of one pipeline.
package health

import "sync/atomic"

// Controller starts healthy and can only move to unhealthy. Every pipeline
// instance owns its own Controller.
type Controller struct {
	unhealthy atomic.Bool
	done      chan struct{}
}

func New() *Controller {
	return &Controller{done: make(chan struct{})}
}

// MarkUnhealthy is safe to call from any goroutine, any number of times.
// It reports whether this call performed the transition.
func (c *Controller) MarkUnhealthy() bool {
	if !c.unhealthy.CompareAndSwap(false, true) {
		return false
	}
	close(c.done)
	return true
}

func (c *Controller) IsHealthy() bool {
	return !c.unhealthy.Load()
}

// Done is closed once the controller turns unhealthy.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
