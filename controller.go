package mediaparse

import (
	"context"
	"sync"
)

// Controller pauses, resumes, aborts and seeks one parse session from other
// goroutines. A Controller serves a single Parse call.
type Controller struct {
	mu       sync.Mutex
	attached bool
	cancel   context.CancelCauseFunc
	aborted  error // abort requested before the session started

	paused bool
	resume chan struct{}

	seekSeq    uint64
	seekTarget float64
	seekDone   uint64 // last sequence number resolved or dropped
}

// NewController returns a controller in the running state.
func NewController() *Controller {
	return &Controller{}
}

// Pause suspends the session before its next iteration.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.paused = true
		c.resume = make(chan struct{})
	}
}

// Resume continues a paused session.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		close(c.resume)
	}
}

// Paused reports whether Pause is in effect.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Abort stops the session. Parse returns an *AbortError carrying cause.
func (c *Controller) Abort(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := &AbortError{Cause: cause}
	if c.cancel != nil {
		c.cancel(err)
		return
	}
	if c.aborted == nil {
		c.aborted = err
	}
}

// Seek asks the session to continue at the keyframe at or before t
// seconds. A later call replaces a seek that has not resolved yet.
func (c *Controller) Seek(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekSeq++
	c.seekTarget = t
}

// attach binds c to a session whose context is cancelled through cancel.
func (c *Controller) attach(cancel context.CancelCauseFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return ErrControllerReused
	}
	c.attached = true
	c.cancel = cancel
	if c.aborted != nil {
		cancel(c.aborted)
	}
	return nil
}

// wait blocks while the controller is paused.
func (c *Controller) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return abortError(context.Cause(ctx))
	}
	c.mu.Lock()
	paused, resume := c.paused, c.resume
	c.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return abortError(context.Cause(ctx))
	}
}

// pendingSeek returns the newest unresolved seek and its sequence number.
func (c *Controller) pendingSeek() (t float64, seq uint64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seekSeq == c.seekDone {
		return 0, 0, false
	}
	return c.seekTarget, c.seekSeq, true
}

// settle marks seek seq as finished. It reports false when a newer seek
// arrived while seq was being resolved.
func (c *Controller) settle(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seekSeq != seq {
		return false
	}
	c.seekDone = seq
	return true
}

// current reports whether seq is still the newest seek.
func (c *Controller) current(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seekSeq == seq
}
