package session

import (
	"context"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/retry"
	"github.com/dgellow/grant-intake/internal/timeout"
)

// ticket identifies the state a remote call was started against.
type ticket struct {
	generation uint64
	subject    string
	request    uint64
}

// scheduleFetch starts a profile fetch for the active subject. Background
// fetches are dropped while another fetch is outstanding; forced fetches
// always start and supersede every earlier request.
func (o *Orchestrator) scheduleFetch(forced bool) {
	if !forced && o.inFlight > 0 {
		log.LogDebugWithFields("session", "Profile fetch already in flight", map[string]any{
			"subject": o.subject,
		})
		return
	}

	o.nextRequest++
	t := ticket{generation: o.generation, subject: o.subject, request: o.nextRequest}
	if forced {
		o.minRequest = t.request
	}
	o.inFlight++

	policy := o.retryPolicy
	retryable := policy.Retryable
	policy.Retryable = func(err error) bool {
		if autherr.IsFatal(err) {
			return false
		}
		return retryable == nil || retryable(err)
	}

	budget := o.timeouts.Profile
	go func() {
		p, err := timeout.Race(o.ctx, budget, func(ctx context.Context) (*profile.Profile, error) {
			// stop retrying once the race is lost
			ctx, cancel := context.WithTimeout(ctx, budget)
			defer cancel()
			return retry.Do(ctx, policy, func(ctx context.Context) (*profile.Profile, error) {
				return o.fetcher.FetchProfile(ctx, t.subject)
			})
		})
		o.post(func() { o.finishFetch(t, p, err) })
	}()
}

func (o *Orchestrator) finishFetch(t ticket, p *profile.Profile, err error) {
	if t.generation != o.generation || t.subject != o.subject {
		log.LogDebugWithFields("session", "Discarding profile for a previous session", map[string]any{
			"subject": t.subject,
			"request": t.request,
		})
		return
	}
	if o.inFlight > 0 {
		o.inFlight--
	}

	if err != nil {
		if autherr.IsFatal(err) {
			o.teardown("profile fetch", err)
			return
		}
		log.LogWarnWithFields("session", "Profile fetch failed, keeping current profile", map[string]any{
			"subject": t.subject,
			"error":   err.Error(),
			"timeout": timeout.IsTimeout(err),
		})
		return
	}

	if t.request < o.minRequest {
		log.LogDebugWithFields("session", "Discarding superseded profile", map[string]any{
			"request": t.request,
			"min":     o.minRequest,
		})
		return
	}
	if p == nil || p.ID != t.subject {
		log.LogWarnWithFields("session", "Backend returned a profile for another subject", map[string]any{
			"subject": t.subject,
		})
		return
	}

	o.minRequest = t.request + 1
	fresh := *p
	o.current = &fresh
	o.writeProfileCache(t.subject, &fresh)
	o.publish()
}
