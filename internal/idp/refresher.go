package idp

import (
	"context"
	"errors"
	"time"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/log"
)

// Start runs the automatic refresh loop until ctx ends or Stop is called.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	log.LogInfoWithFields("idp", "Starting automatic token refresh", map[string]any{
		"leeway": c.leeway.String(),
	})
	go c.run(ctx)
}

// Stop ends the refresh loop and waits for it to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopChan) })
	if started {
		<-c.doneChan
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.doneChan)

	for {
		var timer *time.Timer
		var fire <-chan time.Time
		if d, ok := c.nextRefresh(); ok {
			timer = time.NewTimer(d)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-c.stopChan:
			stopTimer(timer)
			return
		case <-c.wake:
			stopTimer(timer)
		case <-fire:
			c.autoRefresh(ctx)
		}
	}
}

// nextRefresh returns how long until the held session should be renewed.
func (c *Client) nextRefresh() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.token == nil || c.token.RefreshToken == "" {
		return 0, false
	}

	at := c.refreshDueLocked()
	if c.retryAfter.After(at) {
		at = c.retryAfter
	}
	d := at.Sub(c.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (c *Client) autoRefresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, autoRefreshTimeout)
	defer cancel()

	_, err := c.refresh(ctx)
	if err == nil || errors.Is(err, ErrNoSession) || errors.Is(err, ErrSessionChanged) {
		return
	}

	fatal := autherr.IsFatal(err)
	if !fatal {
		c.mu.Lock()
		c.retryAfter = c.now().Add(c.retryInterval)
		c.mu.Unlock()
	}

	log.LogWarnWithFields("idp", "Automatic token refresh failed", map[string]any{
		"fatal": fatal,
		"error": err.Error(),
	})
	c.hub.Emit(identity.Event{Kind: identity.TokenRefreshed, Err: err})
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
